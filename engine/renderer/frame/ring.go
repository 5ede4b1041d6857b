package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
)

// VirtualFrame holds everything one in-flight frame owns. None of it may be touched while
// Drawing is unsignalled, except by the submission that signals it.
type VirtualFrame struct {
	Index         int
	CommandPool   gfx.CommandPool
	CommandBuffer gfx.CommandBuffer
	RenderReady   gfx.Semaphore
	PresentReady  gfx.Semaphore
	Drawing       gfx.Fence
	Set           *descriptor.Set
	Framebuffer   gfx.Framebuffer
	// Nascent frames have never been submitted, so there is nothing to wait for.
	Nascent bool
}

func (f *VirtualFrame) Sync() swapchain.Sync {
	return swapchain.Sync{RenderReady: f.RenderReady, PresentReady: f.PresentReady, Drawing: f.Drawing}
}

// Ring is a fixed-size ring of virtual frames. Frame K+N cannot be recorded before frame K's
// fence has signalled.
type Ring struct {
	ctx         *gfx.Context
	layout      gfx.DescriptorSetLayout
	maxTextures uint32
	timeout     time.Duration

	pool   gfx.DescriptorPool
	frames *containers.Ring[*VirtualFrame]
	drawn  uint64
}

func New(ctx *gfx.Context, layout gfx.DescriptorSetLayout, count int, maxTextures uint32) (*Ring, error) {
	r := &Ring{
		ctx:         ctx,
		layout:      layout,
		maxTextures: maxTextures,
		timeout:     gfx.Infinite,
	}
	if err := r.build(count); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *Ring) build(count int) error {
	if count < 1 {
		err := fmt.Errorf("virtual frame count must be at least 1, got %d: %w", count, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return err
	}
	dev := r.ctx.Device

	pool, err := descriptor.NewPool(r.ctx, uint32(count), r.maxTextures)
	if err != nil {
		return err
	}
	r.pool = pool
	sets, err := descriptor.NewSets(r.ctx, pool, r.layout, count, r.maxTextures)
	if err != nil {
		return err
	}

	frames := make([]*VirtualFrame, count)
	r.frames = containers.NewRing(count, func(i int) *VirtualFrame {
		frames[i] = &VirtualFrame{Index: i, Set: sets[i], Nascent: true}
		return frames[i]
	})
	for _, f := range frames {
		if f.CommandPool, err = dev.CreateCommandPool(gfx.QueueGraphics, true); err != nil {
			return fmt.Errorf("failed to create command pool for frame %d: %w", f.Index, err)
		}
		if f.CommandBuffer, err = dev.AllocateCommandBuffer(f.CommandPool); err != nil {
			return fmt.Errorf("failed to allocate command buffer for frame %d: %w", f.Index, err)
		}
		if f.RenderReady, err = dev.CreateSemaphore(); err != nil {
			return fmt.Errorf("failed to create semaphore for frame %d: %w", f.Index, err)
		}
		if f.PresentReady, err = dev.CreateSemaphore(); err != nil {
			return fmt.Errorf("failed to create semaphore for frame %d: %w", f.Index, err)
		}
		// signalled, so the first wait on a fresh frame returns at once
		if f.Drawing, err = dev.CreateFence(true); err != nil {
			return fmt.Errorf("failed to create fence for frame %d: %w", f.Index, err)
		}
	}
	core.LogDebug("created %d virtual frames", count)
	return nil
}

func (r *Ring) release() {
	dev := r.ctx.Device
	if r.frames != nil {
		r.frames.Each(func(_ int, f *VirtualFrame) {
			if f == nil {
				return
			}
			if f.Framebuffer != gfx.Null {
				dev.DestroyFramebuffer(f.Framebuffer)
			}
			if f.Drawing != gfx.Null {
				dev.DestroyFence(f.Drawing)
			}
			if f.RenderReady != gfx.Null {
				dev.DestroySemaphore(f.RenderReady)
			}
			if f.PresentReady != gfx.Null {
				dev.DestroySemaphore(f.PresentReady)
			}
			if f.CommandBuffer != nil {
				dev.FreeCommandBuffer(f.CommandPool, f.CommandBuffer)
			}
			if f.CommandPool != gfx.Null {
				dev.DestroyCommandPool(f.CommandPool)
			}
		})
		r.frames = nil
	}
	// sets are freed with their pool
	if r.pool != gfx.Null {
		dev.DestroyDescriptorPool(r.pool)
		r.pool = gfx.Null
	}
}

// Sync returns the frame under the ring cursor.
func (r *Ring) Sync() *VirtualFrame {
	f, _ := r.frames.Get()
	return f
}

// Next advances the cursor and counts the frame as drawn.
func (r *Ring) Next() {
	r.frames.Next()
	r.drawn++
}

// Wait blocks until the frame's previous submission has completed and then frees its
// framebuffer. Nascent frames return at once. It returns false when the wait failed.
func (r *Ring) Wait(f *VirtualFrame) bool {
	if !f.Nascent {
		res := r.ctx.Device.WaitFences([]gfx.Fence{f.Drawing}, r.timeout)
		switch res {
		case gfx.Success:
		case gfx.Timeout:
			core.LogWarn("timed out waiting for virtual frame %d", f.Index)
			return false
		default:
			core.LogError("waiting for virtual frame %d failed: %s", f.Index, res)
			return false
		}
	}
	if f.Framebuffer != gfx.Null {
		r.ctx.Device.DestroyFramebuffer(f.Framebuffer)
		f.Framebuffer = gfx.Null
	}
	return true
}

// Recreate waits for the device and rebuilds every frame, possibly with a new count. The
// frames drawn counter carries over.
func (r *Ring) Recreate(count int) error {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before frame ring recreation: %w", err)
	}
	r.release()
	if err := r.build(count); err != nil {
		r.release()
		return err
	}
	return nil
}

func (r *Ring) Destroy() {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("wait idle before frame ring destroy failed: %s", err)
	}
	r.release()
}

// Count is the number of virtual frames, zero after Destroy.
func (r *Ring) Count() int {
	if r.frames == nil {
		return 0
	}
	return r.frames.Len()
}

func (r *Ring) FramesDrawn() uint64 {
	return r.drawn
}

// Each visits every frame in slot order.
func (r *Ring) Each(fn func(f *VirtualFrame)) {
	if r.frames == nil {
		return
	}
	r.frames.Each(func(_ int, f *VirtualFrame) { fn(f) })
}

// SetTimeout bounds the fence wait in Wait.
func (r *Ring) SetTimeout(d time.Duration) {
	r.timeout = d
}
