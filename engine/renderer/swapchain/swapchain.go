package swapchain

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
)

type State int

const (
	Constructed State = iota
	Presenting
	OutOfDate
	Suboptimal
	Paused
	Destroyed
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Presenting:
		return "presenting"
	case OutOfDate:
		return "out of date"
	case Suboptimal:
		return "suboptimal"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Sync carries the virtual frame primitives used for one acquire/present pair.
type Sync struct {
	RenderReady  gfx.Semaphore
	PresentReady gfx.Semaphore
	Drawing      gfx.Fence
}

// RenderTarget is valid only between AcquireNextImage and Present.
type RenderTarget struct {
	Colour gfx.ImageView
	Depth  gfx.ImageView
	Extent gfx.Extent2D
	Index  uint32
}

type Display struct {
	Extent    gfx.Extent2D
	Transform gfx.SurfaceTransform
}

type CreateInfo struct {
	Preferences
	// Size overrides the window's framebuffer size.
	Size           *gfx.Extent2D
	AcquireTimeout time.Duration
}

type Swapchain struct {
	ctx   *gfx.Context
	vram  *vram.VRAM
	prefs Preferences

	handle gfx.Swapchain
	images []gfx.Image
	views  []gfx.ImageView
	depth  *vram.Image

	renderPass  gfx.RenderPass
	format      gfx.SurfaceFormat
	depthFormat gfx.Format
	presentMode gfx.PresentMode

	display    Display
	state      State
	index      uint32
	generation uint64
	timeout    time.Duration
}

// New negotiates formats, creates the render pass and builds the swapchain. A zero-size
// framebuffer leaves it Paused until the next successful Reconstruct.
func New(ctx *gfx.Context, v *vram.VRAM, info CreateInfo) (*Swapchain, error) {
	sc := &Swapchain{
		ctx:     ctx,
		vram:    v,
		prefs:   info.Preferences.withDefaults(),
		timeout: info.AcquireTimeout,
		state:   Constructed,
	}
	if sc.timeout <= 0 {
		sc.timeout = gfx.Infinite
	}

	size := ctx.FramebufferExtent()
	if info.Size != nil {
		size = *info.Size
	}

	if err := sc.negotiate(); err != nil {
		return nil, err
	}
	if !size.Valid() {
		sc.state = Paused
		core.LogInfo("swapchain paused at creation, framebuffer is %dx%d", size.Width, size.Height)
		return sc, nil
	}
	if err := sc.build(size); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

// negotiate picks the surface and depth formats and (re)creates the render pass when either
// changed.
func (sc *Swapchain) negotiate() error {
	dev := sc.ctx.Device
	support, err := dev.SurfaceSupport(sc.ctx.Surface)
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError(err.Error())
		return err
	}

	format := ChooseFormat(support.Formats, sc.prefs.ColourFormats, sc.prefs.ColourSpaces)
	depth, ok := dev.SupportedDepthFormat(sc.prefs.DepthFormats)
	if !ok {
		err := fmt.Errorf("none of the depth formats %v is supported: %w", sc.prefs.DepthFormats, core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return err
	}
	sc.presentMode = ChoosePresentMode(support.PresentModes, sc.prefs.PresentModes)

	if sc.renderPass != gfx.Null && format == sc.format && depth == sc.depthFormat {
		return nil
	}
	if sc.renderPass != gfx.Null {
		core.LogInfo("swapchain format changed to %s/%s, recreating render pass", format.Format, depth)
		dev.DestroyRenderPass(sc.renderPass)
		sc.renderPass = gfx.Null
	}
	rp, err := dev.CreateRenderPass(gfx.RenderPassInfo{Colour: format.Format, Depth: depth})
	if err != nil {
		err = fmt.Errorf("failed to create render pass: %w", err)
		core.LogError(err.Error())
		return err
	}
	sc.renderPass = rp
	sc.format = format
	sc.depthFormat = depth
	return nil
}

func (sc *Swapchain) build(size gfx.Extent2D) error {
	dev := sc.ctx.Device
	support, err := dev.SurfaceSupport(sc.ctx.Surface)
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError(err.Error())
		return err
	}
	caps := support.Capabilities

	extent := ChooseExtent(caps, size)
	if !extent.Valid() {
		sc.state = Paused
		return nil
	}

	old := sc.handle
	handle, images, err := dev.CreateSwapchain(gfx.SwapchainInfo{
		Surface:     sc.ctx.Surface,
		Format:      sc.format,
		PresentMode: sc.presentMode,
		Extent:      extent,
		ImageCount:  chooseImageCount(caps, sc.prefs.ImageCount),
		Transform:   caps.CurrentTransform,
		Queues:      []gfx.QueueType{gfx.QueueGraphics, gfx.QueuePresent},
		Old:         old,
	})
	if err != nil {
		err = fmt.Errorf("failed to create swapchain: %w", err)
		core.LogError(err.Error())
		return err
	}
	sc.release()
	sc.handle = handle
	sc.images = images

	for _, img := range images {
		view, err := dev.CreateImageView(gfx.ImageViewInfo{
			Image:  img,
			Format: sc.format.Format,
			Aspect: gfx.AspectColour,
			Type:   gfx.ViewType2D,
			Layers: 1,
		})
		if err != nil {
			err = fmt.Errorf("failed to create swapchain image view: %w", err)
			core.LogError(err.Error())
			return err
		}
		sc.views = append(sc.views, view)
	}

	sc.depth, err = sc.vram.CreateImage(gfx.ImageInfo{
		Extent:     extent,
		Format:     sc.depthFormat,
		Usage:      gfx.ImageUsageDepthStencilAtt,
		Properties: gfx.MemoryDeviceLocal,
		Queues:     []gfx.QueueType{gfx.QueueGraphics},
		Name:       "swapchain-depth",
	})
	if err != nil {
		return err
	}

	sc.display = Display{Extent: extent, Transform: caps.CurrentTransform}
	if sc.Rotated() {
		core.LogWarn("surface reports a non-identity transform (%#x), output is rotated by the compositor", uint32(caps.CurrentTransform))
	}
	sc.index = 0
	sc.state = Constructed
	sc.generation++
	core.LogInfo("swapchain built: %dx%d, %d images, %s, %s", extent.Width, extent.Height, len(images), sc.format.Format, sc.presentMode)
	return nil
}

// release frees the images owned by the current swapchain and the swapchain itself.
func (sc *Swapchain) release() {
	dev := sc.ctx.Device
	for _, v := range sc.views {
		dev.DestroyImageView(v)
	}
	sc.views = nil
	sc.images = nil
	if sc.depth != nil {
		sc.vram.ReleaseImage(sc.depth)
		sc.depth = nil
	}
	if sc.handle != gfx.Null {
		dev.DestroySwapchain(sc.handle)
		sc.handle = gfx.Null
	}
}

// AcquireNextImage requests the next presentable image, signalling sync.RenderReady when it
// is available. It returns false when the frame must be dropped.
func (sc *Swapchain) AcquireNextImage(sync Sync) (RenderTarget, bool) {
	if sc.handle == gfx.Null || sc.state == Paused || sc.state == Destroyed || sc.state == OutOfDate {
		return RenderTarget{}, false
	}
	index, res := sc.ctx.Device.AcquireNextImage(sc.handle, sc.timeout, sync.RenderReady, gfx.Null)
	switch res {
	case gfx.Success:
		sc.state = Presenting
	case gfx.Suboptimal:
		core.LogDebug("swapchain acquire reported suboptimal, recreating on next update")
		sc.state = Suboptimal
	case gfx.ErrorOutOfDate:
		core.LogDebug("swapchain out of date on acquire")
		sc.state = OutOfDate
		return RenderTarget{}, false
	case gfx.Timeout, gfx.NotReady:
		core.LogWarn("swapchain acquire timed out")
		return RenderTarget{}, false
	default:
		core.LogError("failed to acquire swapchain image: %s", res)
		return RenderTarget{}, false
	}
	sc.index = index
	return sc.target(index), true
}

func (sc *Swapchain) target(index uint32) RenderTarget {
	return RenderTarget{
		Colour: sc.views[index],
		Depth:  sc.depth.View,
		Extent: sc.display.Extent,
		Index:  index,
	}
}

// Present queues the acquired image for presentation once sync.PresentReady is signalled.
func (sc *Swapchain) Present(sync Sync) bool {
	if sc.handle == gfx.Null || sc.state == Destroyed {
		return false
	}
	res := sc.ctx.Device.Present(sc.handle, sc.index, sync.PresentReady)
	switch res {
	case gfx.Success:
		return true
	case gfx.Suboptimal:
		sc.state = Suboptimal
	case gfx.ErrorOutOfDate:
		sc.state = OutOfDate
	default:
		core.LogError("failed to present swapchain image: %s", res)
		sc.state = OutOfDate
	}
	return false
}

// Reconstruct rebuilds the swapchain for size, or for the window's framebuffer size when
// size is nil. Passing present modes replaces the ranked preference. A zero size pauses.
func (sc *Swapchain) Reconstruct(size *gfx.Extent2D, modes ...gfx.PresentMode) bool {
	if sc.state == Destroyed {
		return false
	}
	if len(modes) > 0 {
		sc.prefs.PresentModes = modes
	}
	extent := sc.ctx.FramebufferExtent()
	if size != nil {
		extent = *size
	}
	if !extent.Valid() {
		if sc.state != Paused {
			core.LogInfo("framebuffer is %dx%d, pausing swapchain", extent.Width, extent.Height)
		}
		sc.state = Paused
		return false
	}

	if err := sc.ctx.Device.WaitIdle(); err != nil {
		core.LogError("wait idle before swapchain reconstruct failed: %s", err)
		return false
	}
	if err := sc.negotiate(); err != nil {
		sc.state = OutOfDate
		return false
	}
	if err := sc.build(extent); err != nil {
		sc.state = OutOfDate
		return false
	}
	return sc.state != Paused
}

// Destroy releases every object owned by the swapchain, including the render pass.
func (sc *Swapchain) Destroy() {
	if sc.state == Destroyed {
		return
	}
	dev := sc.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		core.LogWarn("wait idle before swapchain destroy failed: %s", err)
	}
	sc.release()
	if sc.renderPass != gfx.Null {
		dev.DestroyRenderPass(sc.renderPass)
		sc.renderPass = gfx.Null
	}
	sc.state = Destroyed
}

func (sc *Swapchain) State() State {
	return sc.state
}

// Ready reports whether frames can be acquired without reconstructing first.
func (sc *Swapchain) Ready() bool {
	return sc.handle != gfx.Null && (sc.state == Constructed || sc.state == Presenting)
}

// Generation increments on every rebuild; dependants compare it to know when to recreate.
func (sc *Swapchain) Generation() uint64 {
	return sc.generation
}

func (sc *Swapchain) Display() Display {
	return sc.display
}

// Rotated reports a surface transform other than identity, as on rotated mobile displays.
func (sc *Swapchain) Rotated() bool {
	return sc.display.Transform != 0 && sc.display.Transform != gfx.SurfaceTransformIdentity
}

func (sc *Swapchain) RenderPass() gfx.RenderPass {
	return sc.renderPass
}

func (sc *Swapchain) ColourFormat() gfx.Format {
	return sc.format.Format
}

func (sc *Swapchain) DepthFormat() gfx.Format {
	return sc.depthFormat
}

func (sc *Swapchain) PresentMode() gfx.PresentMode {
	return sc.presentMode
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.images)
}

func (sc *Swapchain) Preferences() Preferences {
	return sc.prefs
}
