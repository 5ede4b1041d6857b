package vram

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"golang.org/x/exp/slices"
)

// Buffer is a GPU buffer owned by the VRAM that allocated it. A nil or zero Buffer is the
// empty resource returned alongside allocation errors.
type Buffer struct {
	alloc gfx.Allocation
	info  gfx.BufferInfo
}

func (b *Buffer) Valid() bool {
	return b != nil && b.alloc.Buffer != gfx.Null
}

func (b *Buffer) Handle() gfx.Buffer {
	if b == nil {
		return gfx.Null
	}
	return b.alloc.Buffer
}

func (b *Buffer) Size() uint64 {
	if b == nil {
		return 0
	}
	return b.info.Size
}

func (b *Buffer) Info() gfx.BufferInfo {
	return b.info
}

func (b *Buffer) HostVisible() bool {
	return b != nil && b.info.Properties&gfx.MemoryHostVisible != 0
}

// Image is a GPU image with its default view and, for sampled images, a sampler.
type Image struct {
	alloc   gfx.ImageAllocation
	info    gfx.ImageInfo
	View    gfx.ImageView
	Sampler gfx.Sampler
}

func (i *Image) Valid() bool {
	return i != nil && i.alloc.Image != gfx.Null
}

func (i *Image) Handle() gfx.Image {
	if i == nil {
		return gfx.Null
	}
	return i.alloc.Image
}

func (i *Image) Info() gfx.ImageInfo {
	return i.info
}

// Descriptor binds the image as a combined image sampler.
func (i *Image) Descriptor() gfx.ImageDescriptor {
	return gfx.ImageDescriptor{View: i.View, Sampler: i.Sampler}
}

type retired struct {
	fences []gfx.Fence
	free   func()
	// owns is set on entries that destroy a fence
	owns gfx.Fence
}

type Stats struct {
	Allocated uint64
	Buffers   int
	Images    int
	Retiring  int
}

// VRAM is the only allocator of GPU memory: every buffer and image goes through it and every
// release comes back to it, so Allocated is the single count of bytes in use.
type VRAM struct {
	ctx *gfx.Context

	mu         sync.Mutex
	allocated  uint64
	buffers    int
	images     int
	retirement []retired

	// transfer command pool; recording is serialised by poolMu
	poolMu sync.Mutex
	pool   gfx.CommandPool
}

func New(ctx *gfx.Context) (*VRAM, error) {
	pool, err := ctx.Device.CreateCommandPool(gfx.QueueTransfer, true)
	if err != nil {
		err = fmt.Errorf("failed to create transfer command pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return &VRAM{ctx: ctx, pool: pool}, nil
}

func (v *VRAM) sharing(queues []gfx.QueueType) []gfx.QueueType {
	if len(queues) > 0 {
		return queues
	}
	return []gfx.QueueType{gfx.QueueGraphics, gfx.QueueTransfer}
}

// CreateBuffer allocates a buffer with the requested usage and memory properties. Buffers
// shared by queues of different families use concurrent sharing.
func (v *VRAM) CreateBuffer(info gfx.BufferInfo) (*Buffer, error) {
	if info.Size == 0 {
		err := fmt.Errorf("buffer '%s' has zero size", info.Name)
		core.LogError(err.Error())
		return nil, err
	}
	info.Queues = v.sharing(info.Queues)
	alloc, err := v.ctx.Device.CreateBuffer(info)
	if err != nil {
		err = fmt.Errorf("failed to allocate buffer '%s' (%d bytes): %w: %v", info.Name, info.Size, core.ErrOutOfDeviceMemory, err)
		core.LogError(err.Error())
		return nil, err
	}

	v.mu.Lock()
	v.allocated += alloc.Size
	v.buffers++
	total := v.allocated
	v.mu.Unlock()

	core.LogDebug("VRAM allocated buffer '%s' (%d bytes, %d in use)", info.Name, alloc.Size, total)
	return &Buffer{alloc: alloc, info: info}, nil
}

// Write copies data into a host-visible buffer at offset.
func (v *VRAM) Write(b *Buffer, data []byte, offset uint64) error {
	if !b.Valid() {
		return fmt.Errorf("write to invalid buffer: %w", core.ErrResourceMissing)
	}
	if !core.Assert(b.HostVisible(), "buffer '%s' is not host visible", b.info.Name) {
		return fmt.Errorf("write to '%s': %w", b.info.Name, core.ErrNotHostVisible)
	}
	if offset+uint64(len(data)) > b.info.Size {
		err := fmt.Errorf("write of %d bytes at offset %d overflows buffer '%s' (%d bytes)", len(data), offset, b.info.Name, b.info.Size)
		core.LogError(err.Error())
		return err
	}
	return v.ctx.Device.MapWrite(b.alloc, offset, data)
}

func (v *VRAM) staging(data []byte) (*Buffer, error) {
	st, err := v.CreateBuffer(gfx.BufferInfo{
		Size:       uint64(len(data)),
		Usage:      gfx.BufferUsageTransferSrc,
		Properties: gfx.MemoryHostVisible | gfx.MemoryHostCoherent,
		Queues:     []gfx.QueueType{gfx.QueueTransfer},
		Name:       "staging-" + uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if err := v.Write(st, data, 0); err != nil {
		v.Release(st)
		return nil, err
	}
	return st, nil
}

// submit records with record on a one-time transfer command buffer and submits it. The
// command buffer and the staging buffer are retired on the returned fence.
func (v *VRAM) submit(st *Buffer, record func(cb gfx.CommandBuffer)) (gfx.Fence, error) {
	dev := v.ctx.Device

	fence, err := dev.CreateFence(false)
	if err != nil {
		v.Release(st)
		return gfx.Null, err
	}

	v.poolMu.Lock()
	cb, err := dev.AllocateCommandBuffer(v.pool)
	if err == nil {
		if err = cb.Begin(true); err == nil {
			record(cb)
			if err = cb.End(); err == nil {
				err = dev.Submit(gfx.QueueTransfer, gfx.SubmitInfo{CommandBuffers: []gfx.CommandBuffer{cb}, Fence: fence})
			}
		}
		if err != nil {
			dev.FreeCommandBuffer(v.pool, cb)
		}
	}
	v.poolMu.Unlock()

	if err != nil {
		dev.DestroyFence(fence)
		v.Release(st)
		err = fmt.Errorf("failed to submit transfer: %w", err)
		core.LogError(err.Error())
		return gfx.Null, err
	}

	v.retire(retired{
		fences: []gfx.Fence{fence},
		free: func() {
			v.poolMu.Lock()
			dev.FreeCommandBuffer(v.pool, cb)
			v.poolMu.Unlock()
			v.free(st)
		},
	})
	return fence, nil
}

// Stage uploads data to the start of b through a temporary staging buffer. The returned fence
// signals when the copy has completed; hand it back with ReleaseFence once observed.
func (v *VRAM) Stage(b *Buffer, data []byte) (gfx.Fence, error) {
	if !b.Valid() {
		return gfx.Null, fmt.Errorf("stage to invalid buffer: %w", core.ErrResourceMissing)
	}
	if len(data) == 0 {
		return gfx.Null, errors.New("stage of empty data")
	}
	if uint64(len(data)) > b.info.Size {
		err := fmt.Errorf("stage of %d bytes overflows buffer '%s' (%d bytes)", len(data), b.info.Name, b.info.Size)
		core.LogError(err.Error())
		return gfx.Null, err
	}
	st, err := v.staging(data)
	if err != nil {
		return gfx.Null, err
	}
	return v.submit(st, func(cb gfx.CommandBuffer) {
		cb.CopyBuffer(st.Handle(), b.Handle(), []gfx.BufferCopy{{Size: uint64(len(data))}})
	})
}

// ReleaseFence queues a staging fence for destruction once it has signalled.
func (v *VRAM) ReleaseFence(f gfx.Fence) {
	if f == gfx.Null {
		return
	}
	v.retire(retired{
		fences: []gfx.Fence{f},
		free:   func() { v.ctx.Device.DestroyFence(f) },
		owns:   f,
	})
}

func aspectOf(f gfx.Format) gfx.ImageAspect {
	switch f {
	case gfx.FormatD16Unorm, gfx.FormatD32Sfloat:
		return gfx.AspectDepth
	case gfx.FormatD24UnormS8Uint, gfx.FormatD32SfloatS8Uint:
		return gfx.AspectDepth | gfx.AspectStencil
	default:
		return gfx.AspectColour
	}
}

// CreateImage allocates an image and its view. Sampled images also get a linear sampler.
func (v *VRAM) CreateImage(info gfx.ImageInfo) (*Image, error) {
	if !info.Extent.Valid() {
		err := fmt.Errorf("image '%s' has an empty extent", info.Name)
		core.LogError(err.Error())
		return nil, err
	}
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Cube {
		info.Layers = 6
	}
	info.Queues = v.sharing(info.Queues)

	dev := v.ctx.Device
	alloc, err := dev.CreateImage(info)
	if err != nil {
		err = fmt.Errorf("failed to allocate image '%s': %w: %v", info.Name, core.ErrOutOfDeviceMemory, err)
		core.LogError(err.Error())
		return nil, err
	}
	img := &Image{alloc: alloc, info: info}

	viewType := gfx.ViewType2D
	if info.Cube {
		viewType = gfx.ViewTypeCube
	}
	img.View, err = dev.CreateImageView(gfx.ImageViewInfo{
		Image:  alloc.Image,
		Format: info.Format,
		Aspect: aspectOf(info.Format),
		Type:   viewType,
		Layers: info.Layers,
	})
	if err != nil {
		dev.DestroyImage(alloc)
		err = fmt.Errorf("failed to create view for image '%s': %w", info.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	if info.Usage&gfx.ImageUsageSampled != 0 {
		img.Sampler, err = dev.CreateSampler(gfx.SamplerInfo{Linear: true, Anisotropy: true, Repeat: !info.Cube})
		if err != nil {
			dev.DestroyImageView(img.View)
			dev.DestroyImage(alloc)
			err = fmt.Errorf("failed to create sampler for image '%s': %w", info.Name, err)
			core.LogError(err.Error())
			return nil, err
		}
	}

	v.mu.Lock()
	v.allocated += alloc.Size
	v.images++
	total := v.allocated
	v.mu.Unlock()

	core.LogDebug("VRAM allocated image '%s' %dx%d x%d (%d bytes, %d in use)", info.Name, info.Extent.Width, info.Extent.Height, info.Layers, alloc.Size, total)
	return img, nil
}

// StageImage uploads one tightly packed slice of pixels per layer and leaves the image ready
// for sampling.
func (v *VRAM) StageImage(img *Image, layers [][]byte) (gfx.Fence, error) {
	if !img.Valid() {
		return gfx.Null, fmt.Errorf("stage to invalid image: %w", core.ErrResourceMissing)
	}
	if uint32(len(layers)) != img.info.Layers {
		err := fmt.Errorf("image '%s' has %d layers, got %d", img.info.Name, img.info.Layers, len(layers))
		core.LogError(err.Error())
		return gfx.Null, err
	}
	layerSize := uint64(len(layers[0]))
	data := make([]byte, 0, layerSize*uint64(len(layers)))
	for i, l := range layers {
		if uint64(len(l)) != layerSize {
			return gfx.Null, fmt.Errorf("layer %d of image '%s' is %d bytes, expected %d", i, img.info.Name, len(l), layerSize)
		}
		data = append(data, l...)
	}
	if len(data) == 0 {
		return gfx.Null, errors.New("stage of empty image data")
	}
	st, err := v.staging(data)
	if err != nil {
		return gfx.Null, err
	}
	return v.submit(st, func(cb gfx.CommandBuffer) {
		cb.CopyBufferToImage(st.Handle(), img.Handle(), gfx.ImageCopy{
			Extent:    img.info.Extent,
			Layers:    img.info.Layers,
			LayerSize: layerSize,
		})
	})
}

func (v *VRAM) retire(r retired) {
	v.mu.Lock()
	v.retirement = append(v.retirement, r)
	v.mu.Unlock()
}

func (v *VRAM) free(b *Buffer) {
	v.ctx.Device.DestroyBuffer(b.alloc)
	v.mu.Lock()
	v.allocated -= b.alloc.Size
	v.buffers--
	v.mu.Unlock()
}

func (v *VRAM) freeImage(img *Image) {
	dev := v.ctx.Device
	if img.Sampler != gfx.Null {
		dev.DestroySampler(img.Sampler)
	}
	dev.DestroyImageView(img.View)
	dev.DestroyImage(img.alloc)
	v.mu.Lock()
	v.allocated -= img.alloc.Size
	v.images--
	v.mu.Unlock()
}

// Release frees b immediately, or once every fence has signalled when the buffer may still be
// read by submitted work.
func (v *VRAM) Release(b *Buffer, fences ...gfx.Fence) {
	if !b.Valid() {
		return
	}
	if len(fences) == 0 {
		v.free(b)
		return
	}
	v.retire(retired{fences: fences, free: func() { v.free(b) }})
}

func (v *VRAM) ReleaseImage(img *Image, fences ...gfx.Fence) {
	if !img.Valid() {
		return
	}
	if len(fences) == 0 {
		v.freeImage(img)
		return
	}
	v.retire(retired{fences: fences, free: func() { v.freeImage(img) }})
}

func (v *VRAM) signaled(fences []gfx.Fence) bool {
	for _, f := range fences {
		if v.ctx.Device.FenceStatus(f) != gfx.Success {
			return false
		}
	}
	return true
}

// Update polls the retirement queue once and frees every entry whose fences have signalled,
// in the order they were queued. A fence is never destroyed while an earlier entry still
// waits on it.
func (v *VRAM) Update() {
	v.mu.Lock()
	var ready []retired
	held := map[gfx.Fence]struct{}{}
	v.retirement = slices.DeleteFunc(v.retirement, func(r retired) bool {
		_, blocked := held[r.owns]
		if !blocked && v.signaled(r.fences) {
			ready = append(ready, r)
			return true
		}
		for _, f := range r.fences {
			held[f] = struct{}{}
		}
		return false
	})
	v.mu.Unlock()

	for _, r := range ready {
		r.free()
	}
}

func (v *VRAM) Allocated() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allocated
}

func (v *VRAM) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Stats{Allocated: v.allocated, Buffers: v.buffers, Images: v.images, Retiring: len(v.retirement)}
}

// Destroy waits for the device and frees everything still queued for retirement. Buffers
// and images that were never released stay the caller's responsibility.
func (v *VRAM) Destroy() {
	dev := v.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		core.LogWarn("wait idle before VRAM destroy failed: %s", err)
	}

	v.mu.Lock()
	pending := v.retirement
	v.retirement = nil
	v.mu.Unlock()
	for _, r := range pending {
		r.free()
	}

	if v.pool != gfx.Null {
		dev.DestroyCommandPool(v.pool)
		v.pool = gfx.Null
	}
	if v.allocated > 0 {
		core.LogWarn("VRAM destroyed with %d bytes still allocated (%d buffers, %d images)", v.allocated, v.buffers, v.images)
	}
}
