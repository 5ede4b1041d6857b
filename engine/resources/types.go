package resources

import (
	"sync"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
)

// Names of the resources every Cache provides.
const (
	DefaultWhiteTexture = "textures/white"
	DefaultBlackTexture = "textures/black"
	DefaultCubemap      = "cubemaps/blank"
	DefaultCubeMesh     = "meshes/cube"
)

// upload tracks the staging fences of a resource until they have signalled.
type upload struct {
	vram   *vram.VRAM
	dev    gfx.Device
	mu     sync.Mutex
	fences []gfx.Fence
}

func (u *upload) add(f gfx.Fence) {
	u.mu.Lock()
	u.fences = append(u.fences, f)
	u.mu.Unlock()
}

// take removes and returns the fences still pending; the caller becomes their owner.
func (u *upload) take() []gfx.Fence {
	u.mu.Lock()
	defer u.mu.Unlock()
	fences := u.fences
	u.fences = nil
	return fences
}

// ready polls without blocking and hands signalled fences back to the allocator.
func (u *upload) ready() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for len(u.fences) > 0 {
		f := u.fences[0]
		if u.dev.FenceStatus(f) != gfx.Success {
			return false
		}
		u.vram.ReleaseFence(f)
		u.fences = u.fences[1:]
	}
	return true
}

/**
 * @brief A sampled image living in VRAM. Cubemaps carry six layers.
 */
type Texture struct {
	Name   string
	Width  uint32
	Height uint32
	Cube   bool
	Image  *vram.Image

	upload upload
}

// Ready reports whether the upload has completed.
func (t *Texture) Ready() bool {
	return t != nil && t.Image.Valid() && t.upload.ready()
}

func (t *Texture) Descriptor() gfx.ImageDescriptor {
	return t.Image.Descriptor()
}

// Phong holds the lighting response of a material.
type Phong struct {
	Ambient   math.Colour
	Diffuse   math.Colour
	Specular  math.Colour
	Shininess float32
}

/**
 * @brief Surface description of a mesh. Diffuse and Specular may be nil; a textured
 * material with no diffuse texture is rendered with the "missing" tint.
 */
type Material struct {
	Name     string
	Diffuse  *Texture
	Specular *Texture
	Tint     math.Colour
	Phong    Phong
	Lit      bool
	Textured bool
	// Translucent materials are not flagged opaque and are blended.
	Translucent bool
	UI          bool
	// DropColour replaces vertex colour with the tint.
	DropColour bool
}

func DefaultMaterial() *Material {
	return &Material{
		Name: "default",
		Tint: math.ColourWhite,
		Phong: Phong{
			Ambient:   math.ColourWhite,
			Diffuse:   math.ColourWhite,
			Specular:  math.Colour{0.5, 0.5, 0.5, 1},
			Shininess: 32,
		},
		Lit: true,
	}
}

/**
 * @brief Vertex and optional index buffers plus the material they are drawn with.
 */
type Mesh struct {
	Name        string
	Vertices    *vram.Buffer
	Indices     *vram.Buffer
	VertexCount uint32
	IndexCount  uint32
	Material    *Material

	upload upload
}

func (m *Mesh) Indexed() bool {
	return m.Indices.Valid() && m.IndexCount > 0
}

// Triangles is the number of triangles one draw of the mesh produces.
func (m *Mesh) Triangles() uint32 {
	if m == nil {
		return 0
	}
	if m.Indexed() {
		return m.IndexCount / 3
	}
	return m.VertexCount / 3
}

// Ready reports whether the vertex and index uploads have completed.
func (m *Mesh) Ready() bool {
	return m != nil && m.Vertices.Valid() && m.upload.ready()
}
