package renderer

import (
	"image"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx/gfxtest"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/spaghettifunk/lumen/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testShaders = pipeline.Shaders{Vertex: []byte{3, 2, 35, 7}, Fragment: []byte{3, 2, 35, 7}}

type harness struct {
	assets
	r   *Renderer
	win *gfxtest.Window
	v   *vram.VRAM
}

func newHarness(t *testing.T, frames int, maxTextures uint32) *harness {
	ctx, dev, win := gfxtest.NewContext(800, 600)
	v, err := vram.New(ctx)
	require.NoError(t, err)
	cache, err := resources.NewCache(ctx, v)
	require.NoError(t, err)

	r, err := New(ctx, v, cache, CreateInfo{
		Frames:        frames,
		MaxTextures:   maxTextures,
		Swapchain:     swapchain.DefaultPreferences(),
		Shaders:       testShaders,
		SkyboxShaders: testShaders,
	})
	require.NoError(t, err)
	h := &harness{assets: assets{cache: cache, dev: dev}, r: r, win: win, v: v}
	t.Cleanup(h.destroy)
	return h
}

func (h *harness) destroy() {
	if h.r == nil {
		return
	}
	h.r.Destroy()
	h.cache.Destroy()
	h.v.Destroy()
	h.r = nil
}

// scene builds a single full-screen batch drawing every mesh once.
func (h *harness) scene(meshes ...*resources.Mesh) scene.Scene {
	b := scene.NewBuilder().Begin()
	for _, m := range meshes {
		b.Add(scene.Drawable{Meshes: []*resources.Mesh{m}, Transform: math.NewTransform()})
	}
	return b.Build()
}

func (h *harness) commands(t *testing.T) []gfxtest.Command {
	s := h.dev.LastSubmission(gfx.QueueGraphics)
	require.NotNil(t, s)
	require.Len(t, s.Commands, 1)
	return s.Commands[0]
}

func TestNewRejectsBadConfig(t *testing.T) {
	a, ctx, v := newAssets(t)
	_, err := New(ctx, v, a.cache, CreateInfo{Frames: 0, MaxTextures: 8, Shaders: testShaders, SkyboxShaders: testShaders})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = New(ctx, v, a.cache, CreateInfo{Frames: 2, MaxTextures: 1, Shaders: testShaders, SkyboxShaders: testShaders})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewInitialisesSets(t *testing.T) {
	h := newHarness(t, 2, 8)
	assert.Equal(t, 2, h.r.Stats().VirtualFrames)
	assert.Equal(t, 2, h.dev.LivePipelines())

	white, _ := h.cache.Texture(resources.DefaultWhiteTexture)
	h.r.frames.Each(func(f *frame.VirtualFrame) {
		diffuse := h.dev.WritesFor(f.Set.Handle(), descriptor.BindingDiffuse)
		require.Len(t, diffuse, 1)
		assert.Len(t, diffuse[0].Images, 8)
		assert.Equal(t, white.Descriptor(), diffuse[0].Images[0])
		assert.Len(t, h.dev.WritesFor(f.Set.Handle(), descriptor.BindingCubemap), 1)
	})
}

func TestRenderEmptySceneDoesNothing(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true

	ok, err := h.r.Render(scene.NewBuilder().Begin().Batch().Build())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.dev.Acquires)
	assert.Zero(t, h.dev.Presents)
	assert.Zero(t, h.dev.SubmissionCount(gfx.QueueGraphics))
	assert.Zero(t, h.r.Stats().FramesDrawn)
}

func TestRenderThrottlesOnFrameFences(t *testing.T) {
	h := newHarness(t, 2, 8)
	s := h.scene(h.mesh(t, "cube", nil))

	for i := 0; i < 2; i++ {
		ok, err := h.r.Render(s)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 2, h.dev.SubmissionCount(gfx.QueueGraphics))
	first := h.dev.Submissions[len(h.dev.Submissions)-2]
	require.Equal(t, gfx.QueueGraphics, first.Queue)

	// the third frame reuses the first frame's slot, which is still executing
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, h.dev.SubmissionCount(gfx.QueueGraphics))
	assert.Equal(t, uint64(2), h.r.Stats().FramesDrawn)

	h.dev.Complete(first.Info.Fence)
	ok, err = h.r.Render(s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, h.dev.SubmissionCount(gfx.QueueGraphics))
	assert.Equal(t, first.Info.Fence, h.dev.LastSubmission(gfx.QueueGraphics).Info.Fence)
}

func TestRenderSubmission(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	cube := h.mesh(t, "cube", nil)

	ok, err := h.r.Render(h.scene(cube, cube, cube))
	require.NoError(t, err)
	require.True(t, ok)

	sub := h.dev.LastSubmission(gfx.QueueGraphics)
	require.Len(t, sub.Info.Wait, 1)
	require.Len(t, sub.Info.Signal, 1)
	assert.Equal(t, []gfx.PipelineStage{gfx.PipelineStageColourAttachmentOutp}, sub.Info.WaitStages)
	assert.NotEqual(t, sub.Info.Wait[0], sub.Info.Signal[0])
	assert.Equal(t, 1, h.dev.LiveFramebuffers())

	cmds := h.commands(t)
	ops := gfxtest.Ops(cmds)
	assert.Equal(t, gfxtest.OpBeginRenderPass, ops[0])
	assert.Equal(t, gfxtest.OpEndRenderPass, ops[len(ops)-1])
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpBindPipeline), 1)
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpSetLineWidth), 1)
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpDrawIndexed), 3)
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpPushConstants), 3)

	stats := h.r.Stats()
	assert.Equal(t, uint64(36), stats.TrisDrawn)
	assert.Equal(t, uint64(1), stats.FramesDrawn)
	assert.NotZero(t, stats.Allocated)
}

func TestRenderSkipsDrawsOfPendingMeshes(t *testing.T) {
	h := newHarness(t, 2, 8)
	cube := h.mesh(t, "cube", nil)
	vertices, indices := resources.GenerateCube(1, 1, 1, 1, 1)
	waiting, err := h.cache.AddMesh("waiting", vertices, indices, nil)
	require.NoError(t, err)
	require.False(t, waiting.Ready())
	h.dev.AutoComplete = true

	ok, err := h.r.Render(h.scene(cube, waiting, cube))
	require.NoError(t, err)
	require.True(t, ok)

	// the pending mesh keeps object id 1, only its draw is left out
	assert.Equal(t, 3, h.r.objects.count())
	cmds := h.commands(t)
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpDrawIndexed), 2)
	pushes := gfxtest.Filter(cmds, gfxtest.OpPushConstants)
	require.Len(t, pushes, 2)
	assert.Equal(t, uint64(24), h.r.Stats().TrisDrawn)
}

func TestRenderBindsPipelinesOnChange(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	cube := h.mesh(t, "cube", nil)
	wire := pipeline.DefaultInfo("wire", testShaders)
	wire.Polygon = gfx.PolygonLine
	p, err := h.r.CreatePipeline(wire)
	require.NoError(t, err)

	tr := math.NewTransform()
	s := scene.NewBuilder().Begin().
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: tr}).
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: tr}).
		Batch(scene.WithDebug(3)).
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: tr, Pipeline: p}).
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: tr, Pipeline: p}).
		Build()
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	require.True(t, ok)

	cmds := h.commands(t)
	binds := gfxtest.Filter(cmds, gfxtest.OpBindPipeline)
	require.Len(t, binds, 2)
	assert.Equal(t, h.r.DefaultPipeline().Handle(), binds[0].Args[0])
	assert.Equal(t, p.Handle(), binds[1].Args[0])
	assert.Len(t, gfxtest.Filter(cmds, gfxtest.OpSetViewport), 2)

	widths := gfxtest.Filter(cmds, gfxtest.OpSetLineWidth)
	require.Len(t, widths, 2)
	assert.Equal(t, float32(1), widths[0].Args[0])
	assert.Equal(t, float32(3), widths[1].Args[0])
}

func TestRenderSkybox(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	cube := h.mesh(t, "cube", nil)
	var faces [6]image.Image
	for i := range faces {
		faces[i] = image.NewRGBA(image.Rect(0, 0, 4, 4))
	}
	sky, err := h.cache.AddCubemap("sky", faces)
	require.NoError(t, err)
	h.dev.CompleteAll()

	s := h.scene(cube)
	s.Skybox = &scene.Skybox{Cubemap: sky}
	set := h.r.frames.Sync().Set
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	require.True(t, ok)

	binds := gfxtest.Filter(h.commands(t), gfxtest.OpBindPipeline)
	require.Len(t, binds, 2)
	assert.Equal(t, h.r.SkyboxPipeline().Handle(), binds[0].Args[0])
	assert.NotZero(t, h.r.objects.flags[0]&FlagSkybox)
	assert.Zero(t, h.r.objects.flags[1]&FlagSkybox)

	cubemaps := h.dev.WritesFor(set.Handle(), descriptor.BindingCubemap)
	assert.Equal(t, sky.Descriptor(), cubemaps[len(cubemaps)-1].Images[0])
}

func TestRenderResetsStaleTextureSlots(t *testing.T) {
	h := newHarness(t, 1, 8)
	h.dev.AutoComplete = true
	one, two, three := h.texture(t, "one"), h.texture(t, "two"), h.texture(t, "three")
	m1 := h.mesh(t, "m1", textured("m1", one, nil))
	m2 := h.mesh(t, "m2", textured("m2", two, nil))
	m3 := h.mesh(t, "m3", textured("m3", three, nil))
	set := h.r.frames.Sync().Set

	ok, err := h.r.Render(h.scene(m1, m2, m3))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.r.Render(h.scene(m1))
	require.NoError(t, err)
	require.True(t, ok)

	white, _ := h.cache.Texture(resources.DefaultWhiteTexture)
	writes := h.dev.WritesFor(set.Handle(), descriptor.BindingDiffuse)
	last := writes[len(writes)-1]
	assert.Equal(t, uint32(2), last.ArrayElement)
	require.Len(t, last.Images, 2)
	assert.Equal(t, white.Descriptor(), last.Images[0])
	assert.Equal(t, white.Descriptor(), last.Images[1])
	assert.Equal(t, one.Descriptor(), writes[len(writes)-2].Images[0])
}

func TestRenderOverflowIsFatal(t *testing.T) {
	h := newHarness(t, 2, 2)
	h.dev.AutoComplete = true
	m1 := h.mesh(t, "m1", textured("m1", h.texture(t, "one"), nil))
	m2 := h.mesh(t, "m2", textured("m2", h.texture(t, "two"), nil))

	_, err := h.r.Render(h.scene(m1, m2))
	assert.ErrorIs(t, err, core.ErrDescriptorOverflow)
	assert.Zero(t, h.dev.SubmissionCount(gfx.QueueGraphics))
}

func TestAcquireFailureDropsFrame(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	s := h.scene(h.mesh(t, "cube", nil))
	gen := h.r.Swapchain().Generation()

	h.dev.AcquireResults = []gfx.Result{gfx.ErrorOutOfDate}
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.dev.SubmissionCount(gfx.QueueGraphics))
	assert.Equal(t, swapchain.OutOfDate, h.r.Swapchain().State())

	require.NoError(t, h.r.Update())
	assert.Greater(t, h.r.Swapchain().Generation(), gen)

	ok, err = h.r.Render(s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), h.r.Stats().FramesDrawn)
}

func TestPresentFailureDoesNotAdvance(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	cube := h.mesh(t, "cube", nil)
	s := h.scene(cube, cube, cube)
	before := h.r.frames.Sync()

	h.dev.PresentResults = []gfx.Result{gfx.ErrorOutOfDate}
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.dev.SubmissionCount(gfx.QueueGraphics))
	assert.Same(t, before, h.r.frames.Sync())
	assert.Zero(t, h.r.Stats().FramesDrawn)
	// the buffers were not swapped, every per-object array still holds this frame
	for _, sb := range h.r.buffers.all()[1:6] {
		assert.Equal(t, 3, sb.Len())
	}

	require.NoError(t, h.r.Update())
	ok, err = h.r.Render(s)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPausedSwapchainDropsFrames(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	s := h.scene(h.mesh(t, "cube", nil))

	h.win.Width, h.win.Height = 0, 0
	h.dev.AcquireResults = []gfx.Result{gfx.ErrorOutOfDate}
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.r.Update())
	assert.Equal(t, swapchain.Paused, h.r.Swapchain().State())
	ok, err = h.r.Render(s)
	require.NoError(t, err)
	assert.False(t, ok)

	h.win.Width, h.win.Height = 1024, 768
	require.NoError(t, h.r.Update())
	ok, err = h.r.Render(s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gfx.Extent2D{Width: 1024, Height: 768}, h.r.Swapchain().Display().Extent)
}

func TestSetVirtualFrames(t *testing.T) {
	h := newHarness(t, 2, 8)
	h.dev.AutoComplete = true
	s := h.scene(h.mesh(t, "cube", nil))

	require.NoError(t, h.r.SetVirtualFrames(3))
	assert.Equal(t, 3, h.r.Stats().VirtualFrames)
	assert.Equal(t, 3, h.r.buffers.view.Copies())
	assert.ErrorIs(t, h.r.SetVirtualFrames(0), core.ErrInvalidConfig)

	ok, err := h.r.Render(s)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetPresentModes(t *testing.T) {
	h := newHarness(t, 2, 8)
	gen := h.r.Swapchain().Generation()
	require.NoError(t, h.r.SetPresentModes(gfx.PresentModeMailbox))
	assert.Equal(t, gfx.PresentModeMailbox, h.r.Swapchain().PresentMode())
	assert.Equal(t, h.r.Swapchain().Generation(), h.r.generation)
	assert.Greater(t, h.r.generation, gen)
}

func TestDestroyPipelineWaitsForFrames(t *testing.T) {
	h := newHarness(t, 2, 8)
	cube := h.mesh(t, "cube", nil)
	p, err := h.r.CreatePipeline(pipeline.DefaultInfo("extra", testShaders))
	require.NoError(t, err)

	s := scene.NewBuilder().Begin().
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: math.NewTransform(), Pipeline: p}).
		Build()
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	require.True(t, ok)

	live := h.dev.LivePipelines()
	h.r.DestroyPipeline(p)
	require.NoError(t, h.r.Update())
	assert.Equal(t, live, h.dev.LivePipelines())

	h.dev.CompleteAll()
	require.NoError(t, h.r.Update())
	assert.Equal(t, live-1, h.dev.LivePipelines())

	// built-in pipelines survive
	h.r.DestroyPipeline(h.r.DefaultPipeline())
	assert.Equal(t, live-1, h.dev.LivePipelines())
}

func TestResizeFreesRetiringPipelines(t *testing.T) {
	h := newHarness(t, 2, 8)
	cube := h.mesh(t, "cube", nil)
	p, err := h.r.CreatePipeline(pipeline.DefaultInfo("extra", testShaders))
	require.NoError(t, err)

	s := scene.NewBuilder().Begin().
		Add(scene.Drawable{Meshes: []*resources.Mesh{cube}, Transform: math.NewTransform(), Pipeline: p}).
		Build()
	ok, err := h.r.Render(s)
	require.NoError(t, err)
	require.True(t, ok)

	live := h.dev.LivePipelines()
	h.r.DestroyPipeline(p)
	require.Len(t, h.r.retiring, 1)

	// the frame fences the pipeline waited on are rebuilt by the resize
	require.NoError(t, h.r.Resize(gfx.Extent2D{Width: 640, Height: 480}))
	h.dev.CompleteAll()
	require.NoError(t, h.r.Update())
	assert.Empty(t, h.r.retiring)
	assert.Equal(t, live-1, h.dev.LivePipelines())
}

func TestDestroyReleasesEverything(t *testing.T) {
	h := newHarness(t, 3, 8)
	h.dev.AutoComplete = true
	cube := h.mesh(t, "cube", nil)
	for i := 0; i < 4; i++ {
		ok, err := h.r.Render(h.scene(cube, cube))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, h.r.Update())
	}

	h.destroy()
	assert.Zero(t, h.dev.Live())
}
