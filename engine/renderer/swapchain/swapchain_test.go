package swapchain

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSwapchain(t *testing.T, w, h int, configure func(dev *gfxtest.Device)) (*Swapchain, *gfxtest.Device, *gfxtest.Window) {
	ctx, dev, win := gfxtest.NewContext(w, h)
	if configure != nil {
		configure(dev)
	}
	v, err := vram.New(ctx)
	require.NoError(t, err)
	sc, err := New(ctx, v, CreateInfo{})
	require.NoError(t, err)
	return sc, dev, win
}

func sync(t *testing.T, dev *gfxtest.Device) Sync {
	rr, err := dev.CreateSemaphore()
	require.NoError(t, err)
	pr, err := dev.CreateSemaphore()
	require.NoError(t, err)
	return Sync{RenderReady: rr, PresentReady: pr}
}

func TestMinimiseRoundTrip(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	s := sync(t, dev)

	target, ok := sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.Equal(t, gfx.Extent2D{Width: 800, Height: 600}, target.Extent)
	assert.Equal(t, Presenting, sc.State())

	assert.False(t, sc.Reconstruct(&gfx.Extent2D{}))
	assert.Equal(t, Paused, sc.State())
	_, ok = sc.AcquireNextImage(s)
	assert.False(t, ok)

	assert.True(t, sc.Reconstruct(&gfx.Extent2D{Width: 800, Height: 600}))
	assert.True(t, sc.Ready())
	target, ok = sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.Equal(t, gfx.Extent2D{Width: 800, Height: 600}, target.Extent)
}

func TestReconstructResizes(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	gen := sc.Generation()
	rp := sc.RenderPass()

	size := gfx.Extent2D{Width: 1024, Height: 768}
	require.True(t, sc.Reconstruct(&size))
	assert.NotEqual(t, Destroyed, sc.State())
	assert.NotEqual(t, OutOfDate, sc.State())
	assert.Equal(t, size, sc.Display().Extent)
	assert.Greater(t, sc.Generation(), gen)
	// same formats, same render pass
	assert.Equal(t, rp, sc.RenderPass())

	info, ok := dev.SwapchainInfo(sc.handle)
	require.True(t, ok)
	assert.Equal(t, size, info.Extent)
	assert.NotZero(t, info.Old)
}

func TestReconstructUsesWindowSize(t *testing.T) {
	sc, _, win := newSwapchain(t, 800, 600, nil)
	win.Width, win.Height = 640, 480

	require.True(t, sc.Reconstruct(nil))
	assert.Equal(t, gfx.Extent2D{Width: 640, Height: 480}, sc.Display().Extent)
}

func TestReconstructClampsToCapabilities(t *testing.T) {
	sc, _, _ := newSwapchain(t, 800, 600, nil)

	require.True(t, sc.Reconstruct(&gfx.Extent2D{Width: 9000, Height: 600}))
	assert.Equal(t, gfx.Extent2D{Width: 4096, Height: 600}, sc.Display().Extent)
}

func TestRenderPassRecreatedOnFormatChange(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	rp := sc.RenderPass()
	assert.Equal(t, gfx.FormatB8G8R8A8Srgb, sc.ColourFormat())

	dev.Support.Formats = []gfx.SurfaceFormat{{Format: gfx.FormatR8G8B8A8Srgb, ColourSpace: gfx.ColourSpaceSrgbNonlinear}}
	require.True(t, sc.Reconstruct(nil))
	assert.Equal(t, gfx.FormatR8G8B8A8Srgb, sc.ColourFormat())
	assert.NotEqual(t, rp, sc.RenderPass())
}

func TestAcquireOutOfDate(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	s := sync(t, dev)

	dev.AcquireResults = []gfx.Result{gfx.ErrorOutOfDate}
	_, ok := sc.AcquireNextImage(s)
	assert.False(t, ok)
	assert.Equal(t, OutOfDate, sc.State())

	// no acquires until reconstructed
	_, ok = sc.AcquireNextImage(s)
	assert.False(t, ok)
	assert.Equal(t, 1, dev.Acquires)

	require.True(t, sc.Reconstruct(nil))
	_, ok = sc.AcquireNextImage(s)
	assert.True(t, ok)
}

func TestAcquireSuboptimalStillRenders(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	s := sync(t, dev)

	dev.AcquireResults = []gfx.Result{gfx.Suboptimal}
	_, ok := sc.AcquireNextImage(s)
	assert.True(t, ok)
	assert.Equal(t, Suboptimal, sc.State())
	assert.False(t, sc.Ready())
}

func TestPresentFailures(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	s := sync(t, dev)

	_, ok := sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.True(t, sc.Present(s))

	dev.PresentResults = []gfx.Result{gfx.Suboptimal, gfx.ErrorOutOfDate}
	_, ok = sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.False(t, sc.Present(s))
	assert.Equal(t, Suboptimal, sc.State())

	_, ok = sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.False(t, sc.Present(s))
	assert.Equal(t, OutOfDate, sc.State())
}

func TestImagesAdvance(t *testing.T) {
	sc, dev, _ := newSwapchain(t, 800, 600, nil)
	s := sync(t, dev)
	assert.Equal(t, 2, sc.ImageCount())

	a, ok := sc.AcquireNextImage(s)
	require.True(t, ok)
	b, ok := sc.AcquireNextImage(s)
	require.True(t, ok)
	assert.NotEqual(t, a.Index, b.Index)
	assert.NotEqual(t, a.Colour, b.Colour)
	assert.Equal(t, a.Depth, b.Depth)
}

func TestPresentModeNegotiation(t *testing.T) {
	sc, _, _ := newSwapchain(t, 800, 600, nil)
	assert.Equal(t, gfx.PresentModeFifo, sc.PresentMode())

	require.True(t, sc.Reconstruct(nil, gfx.PresentModeMailbox, gfx.PresentModeFifo))
	assert.Equal(t, gfx.PresentModeMailbox, sc.PresentMode())

	// unsupported falls back to FIFO and the preference is kept
	require.True(t, sc.Reconstruct(nil, gfx.PresentModeImmediate))
	assert.Equal(t, gfx.PresentModeFifo, sc.PresentMode())
	assert.Equal(t, []gfx.PresentMode{gfx.PresentModeImmediate}, sc.Preferences().PresentModes)
}

func TestChooseFormat(t *testing.T) {
	srgb := gfx.ColourSpaceSrgbNonlinear
	prefs := DefaultPreferences()

	got := ChooseFormat([]gfx.SurfaceFormat{{Format: gfx.FormatR8G8B8A8Unorm, ColourSpace: srgb}, {Format: gfx.FormatR8G8B8A8Srgb, ColourSpace: srgb}}, prefs.ColourFormats, prefs.ColourSpaces)
	assert.Equal(t, gfx.FormatR8G8B8A8Srgb, got.Format)

	got = ChooseFormat([]gfx.SurfaceFormat{{Format: gfx.FormatR8G8B8A8Unorm, ColourSpace: srgb}}, prefs.ColourFormats, prefs.ColourSpaces)
	assert.Equal(t, gfx.FormatR8G8B8A8Unorm, got.Format)

	got = ChooseFormat([]gfx.SurfaceFormat{{Format: gfx.FormatUndefined}}, prefs.ColourFormats, prefs.ColourSpaces)
	assert.Equal(t, gfx.FormatB8G8R8A8Srgb, got.Format)
}

func TestRotatedSurface(t *testing.T) {
	sc, _, _ := newSwapchain(t, 800, 600, func(dev *gfxtest.Device) {
		dev.Support.Capabilities.CurrentTransform = gfx.SurfaceTransformRotate90
	})
	assert.True(t, sc.Rotated())
	assert.Equal(t, gfx.SurfaceTransformRotate90, sc.Display().Transform)
}

func TestCreatePausedAndMissingDepth(t *testing.T) {
	sc, _, _ := newSwapchain(t, 0, 0, nil)
	assert.Equal(t, Paused, sc.State())
	assert.NotZero(t, sc.RenderPass())
	assert.True(t, sc.Reconstruct(&gfx.Extent2D{Width: 10, Height: 10}))

	ctx, dev, _ := gfxtest.NewContext(800, 600)
	dev.DepthFormats = nil
	v, err := vram.New(ctx)
	require.NoError(t, err)
	_, err = New(ctx, v, CreateInfo{})
	assert.Error(t, err)
}

func TestDestroy(t *testing.T) {
	ctx, dev, _ := gfxtest.NewContext(800, 600)
	v, err := vram.New(ctx)
	require.NoError(t, err)
	sc, err := New(ctx, v, CreateInfo{})
	require.NoError(t, err)

	sc.Destroy()
	v.Destroy()
	assert.Equal(t, Destroyed, sc.State())
	assert.False(t, sc.Reconstruct(nil))
	assert.Zero(t, dev.Live())
}
