package resources

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"golang.org/x/sync/errgroup"
)

/**
 * @brief Owns every texture and mesh by name. Values live in arenas and are addressed by
 * stable handles; the name maps resolve string ids to handles.
 */
type Cache struct {
	ctx  *gfx.Context
	vram *vram.VRAM

	mu           sync.RWMutex
	textures     *containers.Arena[*Texture]
	meshes       *containers.Arena[*Mesh]
	textureNames map[string]containers.Handle
	meshNames    map[string]containers.Handle
}

// NewCache creates the cache and uploads the default resources.
func NewCache(ctx *gfx.Context, v *vram.VRAM) (*Cache, error) {
	c := &Cache{
		ctx:          ctx,
		vram:         v,
		textures:     containers.NewArena[*Texture](),
		meshes:       containers.NewArena[*Mesh](),
		textureNames: map[string]containers.Handle{},
		meshNames:    map[string]containers.Handle{},
	}
	if _, err := c.AddTexture(DefaultWhiteTexture, solid(1, 255, 255, 255, 255)); err != nil {
		return nil, err
	}
	if _, err := c.AddTexture(DefaultBlackTexture, solid(1, 0, 0, 0, 255)); err != nil {
		return nil, err
	}
	var faces [6]image.Image
	for i := range faces {
		faces[i] = solid(1, 0, 0, 0, 255)
	}
	if _, err := c.AddCubemap(DefaultCubemap, faces); err != nil {
		return nil, err
	}
	vertices, indices := GenerateCube(1, 1, 1, 1, 1)
	if _, err := c.AddMesh(DefaultCubeMesh, vertices, indices, DefaultMaterial()); err != nil {
		return nil, err
	}
	return c, nil
}

// retire releases buffers and images on fences, then queues the fences themselves.
func (c *Cache) retire(buffers []*vram.Buffer, images []*vram.Image, owned []gfx.Fence, fences ...gfx.Fence) {
	all := make([]gfx.Fence, 0, len(fences)+len(owned))
	all = append(all, fences...)
	all = append(all, owned...)
	for _, b := range buffers {
		c.vram.Release(b, all...)
	}
	for _, img := range images {
		c.vram.ReleaseImage(img, all...)
	}
	for _, f := range owned {
		c.vram.ReleaseFence(f)
	}
}

func (c *Cache) createTexture(name string, width, height int, cube bool, layers [][]byte) (*Texture, error) {
	img, err := c.vram.CreateImage(gfx.ImageInfo{
		Extent:     gfx.Extent2D{Width: uint32(width), Height: uint32(height)},
		Format:     gfx.FormatR8G8B8A8Srgb,
		Usage:      gfx.ImageUsageSampled | gfx.ImageUsageTransferDst,
		Properties: gfx.MemoryDeviceLocal,
		Cube:       cube,
		Name:       name,
	})
	if err != nil {
		return nil, err
	}
	fence, err := c.vram.StageImage(img, layers)
	if err != nil {
		c.vram.ReleaseImage(img)
		return nil, err
	}
	t := &Texture{Name: name, Width: uint32(width), Height: uint32(height), Cube: cube, Image: img}
	t.upload.vram, t.upload.dev = c.vram, c.ctx.Device
	t.upload.add(fence)
	return t, nil
}

func (c *Cache) storeTexture(t *Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.textureNames[t.Name]; ok {
		if old, ok := c.textures.Remove(h); ok {
			core.LogWarn("texture '%s' replaced", t.Name)
			c.releaseTexture(old)
		}
	}
	c.textureNames[t.Name] = c.textures.Insert(t)
}

// AddTexture uploads img under name, replacing any texture with the same name.
func (c *Cache) AddTexture(name string, img image.Image) (*Texture, error) {
	rgba := ToRGBA(img, ImageOptions{})
	t, err := c.createTexture(name, rgba.Rect.Dx(), rgba.Rect.Dy(), false, [][]byte{rgba.Pix})
	if err != nil {
		return nil, fmt.Errorf("failed to add texture '%s': %w", name, err)
	}
	c.storeTexture(t)
	return t, nil
}

// AddCubemap uploads six square faces in +X, -X, +Y, -Y, +Z, -Z order.
func (c *Cache) AddCubemap(name string, faces [6]image.Image) (*Texture, error) {
	layers := make([][]byte, 6)
	var w, h int
	for i, f := range faces {
		rgba := ToRGBA(f, ImageOptions{})
		if i == 0 {
			w, h = rgba.Rect.Dx(), rgba.Rect.Dy()
		} else if rgba.Rect.Dx() != w || rgba.Rect.Dy() != h {
			err := fmt.Errorf("cubemap '%s' face %d is %dx%d, expected %dx%d", name, i, rgba.Rect.Dx(), rgba.Rect.Dy(), w, h)
			core.LogError(err.Error())
			return nil, err
		}
		layers[i] = rgba.Pix
	}
	t, err := c.createTexture(name, w, h, true, layers)
	if err != nil {
		return nil, fmt.Errorf("failed to add cubemap '%s': %w", name, err)
	}
	c.storeTexture(t)
	return t, nil
}

// LoadTextures decodes and uploads every name → path pair concurrently. Uploads complete
// asynchronously; each texture reports Ready once its staging fence has signalled.
func (c *Cache) LoadTextures(ctx context.Context, paths map[string]string, opts ImageOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := OpenImage(path)
			if err != nil {
				return err
			}
			rgba := ToRGBA(img, opts)
			t, err := c.createTexture(name, rgba.Rect.Dx(), rgba.Rect.Dy(), false, [][]byte{rgba.Pix})
			if err != nil {
				return fmt.Errorf("failed to load texture '%s': %w", name, err)
			}
			c.storeTexture(t)
			core.LogDebug("texture '%s' loaded from %s", name, path)
			return nil
		})
	}
	return g.Wait()
}

// AddMesh uploads vertices and, when given, indices. A nil material uses the default.
func (c *Cache) AddMesh(name string, vertices []math.Vertex, indices []uint32, material *Material) (*Mesh, error) {
	if len(vertices) == 0 {
		err := fmt.Errorf("mesh '%s' has no vertices", name)
		core.LogError(err.Error())
		return nil, err
	}
	if material == nil {
		material = DefaultMaterial()
	}
	m := &Mesh{
		Name:        name,
		VertexCount: uint32(len(vertices)),
		IndexCount:  uint32(len(indices)),
		Material:    material,
	}
	m.upload.vram, m.upload.dev = c.vram, c.ctx.Device

	var err error
	m.Vertices, err = c.deviceBuffer(name+"-vertices", gfx.BufferUsageVertex, gfx.Bytes(vertices))
	if err != nil {
		return nil, err
	}
	fence, err := c.vram.Stage(m.Vertices, gfx.Bytes(vertices))
	if err != nil {
		c.vram.Release(m.Vertices)
		return nil, err
	}
	m.upload.add(fence)

	if len(indices) > 0 {
		m.Indices, err = c.deviceBuffer(name+"-indices", gfx.BufferUsageIndex, gfx.Bytes(indices))
		if err != nil {
			c.retire([]*vram.Buffer{m.Vertices}, nil, m.upload.take())
			return nil, err
		}
		fence, err := c.vram.Stage(m.Indices, gfx.Bytes(indices))
		if err != nil {
			c.vram.Release(m.Indices)
			c.retire([]*vram.Buffer{m.Vertices}, nil, m.upload.take())
			return nil, err
		}
		m.upload.add(fence)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.meshNames[name]; ok {
		if old, ok := c.meshes.Remove(h); ok {
			core.LogWarn("mesh '%s' replaced", name)
			c.releaseMesh(old)
		}
	}
	c.meshNames[name] = c.meshes.Insert(m)
	return m, nil
}

func (c *Cache) deviceBuffer(name string, usage gfx.BufferUsage, data []byte) (*vram.Buffer, error) {
	return c.vram.CreateBuffer(gfx.BufferInfo{
		Size:       uint64(len(data)),
		Usage:      usage | gfx.BufferUsageTransferDst,
		Properties: gfx.MemoryDeviceLocal,
		Name:       name,
	})
}

// Texture looks up a texture or cubemap by name.
func (c *Cache) Texture(name string) (*Texture, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.textureNames[name]
	if !ok {
		return nil, false
	}
	return c.textures.Get(h)
}

func (c *Cache) Mesh(name string) (*Mesh, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.meshNames[name]
	if !ok {
		return nil, false
	}
	return c.meshes.Get(h)
}

// TextureHandle returns the stable handle of a named texture.
func (c *Cache) TextureHandle(name string) (containers.Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.textureNames[name]
	return h, ok
}

func (c *Cache) TextureByHandle(h containers.Handle) (*Texture, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.textures.Get(h)
}

func (c *Cache) releaseTexture(t *Texture, fences ...gfx.Fence) {
	c.retire(nil, []*vram.Image{t.Image}, t.upload.take(), fences...)
}

func (c *Cache) releaseMesh(m *Mesh, fences ...gfx.Fence) {
	buffers := []*vram.Buffer{m.Vertices}
	if m.Indices.Valid() {
		buffers = append(buffers, m.Indices)
	}
	c.retire(buffers, nil, m.upload.take(), fences...)
}

// RemoveTexture frees a texture once fences (typically the frames that sampled it) signal.
// Default textures cannot be removed.
func (c *Cache) RemoveTexture(name string, fences ...gfx.Fence) bool {
	if name == DefaultWhiteTexture || name == DefaultBlackTexture || name == DefaultCubemap {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.textureNames[name]
	if !ok {
		return false
	}
	t, _ := c.textures.Remove(h)
	delete(c.textureNames, name)
	c.releaseTexture(t, fences...)
	return true
}

func (c *Cache) RemoveMesh(name string, fences ...gfx.Fence) bool {
	if name == DefaultCubeMesh {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.meshNames[name]
	if !ok {
		return false
	}
	m, _ := c.meshes.Remove(h)
	delete(c.meshNames, name)
	c.releaseMesh(m, fences...)
	return true
}

// Destroy releases every resource. Callers wait for the device first.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures.Each(func(_ containers.Handle, t *Texture) {
		c.releaseTexture(t)
	})
	c.meshes.Each(func(_ containers.Handle, m *Mesh) {
		c.releaseMesh(m)
	})
	c.textures = containers.NewArena[*Texture]()
	c.meshes = containers.NewArena[*Mesh]()
	clear(c.textureNames)
	clear(c.meshNames)
}
