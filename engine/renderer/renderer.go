// Package renderer turns a scene into recorded, submitted and presented frames. It owns the
// swapchain, the ring of virtual frames, the shared shader buffers and the pipelines.
package renderer

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/descriptor"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/pipeline"
	"github.com/spaghettifunk/lumen/engine/renderer/scene"
	"github.com/spaghettifunk/lumen/engine/renderer/swapchain"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
	"github.com/spaghettifunk/lumen/engine/resources"
)

// defaults are the resources bound whenever a scene does not provide its own.
type defaults struct {
	white   *resources.Texture
	black   *resources.Texture
	cubemap *resources.Texture
	cube    *resources.Mesh
}

// shaderBuffers share one copy per virtual frame; their cursor advances with the ring.
type shaderBuffers struct {
	view      *descriptor.ShaderBuffer
	models    *descriptor.ShaderBuffer
	normals   *descriptor.ShaderBuffer
	materials *descriptor.ShaderBuffer
	tints     *descriptor.ShaderBuffer
	flags     *descriptor.ShaderBuffer
	dirLights *descriptor.ShaderBuffer
}

func newShaderBuffers(v *vram.VRAM, copies int) shaderBuffers {
	storage := func(name string) *descriptor.ShaderBuffer {
		return descriptor.NewShaderBuffer(v, gfx.DescriptorStorageBuffer, name, copies)
	}
	return shaderBuffers{
		view:      descriptor.NewShaderBuffer(v, gfx.DescriptorUniformBuffer, "view", copies),
		models:    storage("models"),
		normals:   storage("normals"),
		materials: storage("materials"),
		tints:     storage("tints"),
		flags:     storage("flags"),
		dirLights: storage("dir-lights"),
	}
}

func (b shaderBuffers) all() []*descriptor.ShaderBuffer {
	return []*descriptor.ShaderBuffer{b.view, b.models, b.normals, b.materials, b.tints, b.flags, b.dirLights}
}

func (b shaderBuffers) ssbos() descriptor.SSBOs {
	return descriptor.SSBOs{
		Models:    b.models,
		Normals:   b.normals,
		Materials: b.materials,
		Tints:     b.tints,
		Flags:     b.flags,
		DirLights: b.dirLights,
	}
}

/**
 * @brief The render core frontend. Render is called once per tick with a freshly built scene
 * and Update once per tick to react to swapchain changes. Neither is safe for concurrent use.
 */
type Renderer struct {
	id       uuid.UUID
	ctx      *gfx.Context
	vram     *vram.VRAM
	defaults defaults

	maxTextures uint32
	frameCount  int
	layout      gfx.DescriptorSetLayout
	swapchain   *swapchain.Swapchain
	frames      *frame.Ring
	buffers     shaderBuffers

	defaultPipeline *pipeline.Pipeline
	skyboxPipeline  *pipeline.Pipeline
	pipelines       []*pipeline.Pipeline
	retiring        []*pipeline.Pipeline

	// generation and renderPass are the swapchain state the frames and pipelines were built for.
	generation uint64
	renderPass gfx.RenderPass

	objects *objects
	batches []scene.Batch
	bound   []*pipeline.Pipeline
	// high water marks of texture slots written in any frame
	diffuseHWM  uint32
	specularHWM uint32

	trisDrawn uint64
}

func New(ctx *gfx.Context, v *vram.VRAM, provider Provider, info CreateInfo) (*Renderer, error) {
	if info.Frames < 1 {
		err := fmt.Errorf("renderer needs at least one virtual frame, got %d: %w", info.Frames, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	if info.MaxTextures < 2 {
		err := fmt.Errorf("renderer needs at least two texture slots, got %d: %w", info.MaxTextures, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}

	r := &Renderer{
		id:          uuid.New(),
		ctx:         ctx,
		vram:        v,
		maxTextures: info.MaxTextures,
		frameCount:  info.Frames,
		objects:     newObjects(info.MaxTextures),
	}
	if err := r.resolveDefaults(provider); err != nil {
		return nil, err
	}
	// default uploads must have landed before any set samples them
	if err := ctx.Device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait idle before renderer creation: %w", err)
	}

	var err error
	if r.layout, err = descriptor.Layout(ctx, info.MaxTextures); err != nil {
		return nil, err
	}
	r.swapchain, err = swapchain.New(ctx, v, swapchain.CreateInfo{
		Preferences:    info.Swapchain,
		Size:           info.Size,
		AcquireTimeout: info.AcquireTimeout,
	})
	if err != nil {
		r.Destroy()
		return nil, err
	}
	if r.frames, err = frame.New(ctx, r.layout, info.Frames, info.MaxTextures); err != nil {
		r.Destroy()
		return nil, err
	}
	if info.FrameTimeout > 0 {
		r.frames.SetTimeout(info.FrameTimeout)
	}
	r.buffers = newShaderBuffers(v, info.Frames)
	if err := r.initSets(); err != nil {
		r.Destroy()
		return nil, err
	}

	r.renderPass = r.swapchain.RenderPass()
	r.generation = r.swapchain.Generation()
	if r.defaultPipeline, err = r.CreatePipeline(pipeline.DefaultInfo("default", info.Shaders)); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.skyboxPipeline, err = r.CreatePipeline(pipeline.SkyboxInfo(info.SkyboxShaders)); err != nil {
		r.Destroy()
		return nil, err
	}

	core.LogInfo("renderer %s created with %d virtual frames and %d texture slots", r.id, info.Frames, info.MaxTextures)
	return r, nil
}

func (r *Renderer) resolveDefaults(p Provider) error {
	var ok bool
	missing := func(name string) error {
		err := fmt.Errorf("default resource '%s': %w", name, core.ErrResourceMissing)
		core.LogError(err.Error())
		return err
	}
	if r.defaults.white, ok = p.Texture(resources.DefaultWhiteTexture); !ok {
		return missing(resources.DefaultWhiteTexture)
	}
	if r.defaults.black, ok = p.Texture(resources.DefaultBlackTexture); !ok {
		return missing(resources.DefaultBlackTexture)
	}
	if r.defaults.cubemap, ok = p.Texture(resources.DefaultCubemap); !ok {
		return missing(resources.DefaultCubemap)
	}
	if r.defaults.cube, ok = p.Mesh(resources.DefaultCubeMesh); !ok {
		return missing(resources.DefaultCubeMesh)
	}
	return nil
}

// initSets fills every texture slot of every set with the defaults.
func (r *Renderer) initSets() error {
	var err error
	r.frames.Each(func(f *frame.VirtualFrame) {
		if err != nil {
			return
		}
		if err = f.Set.ResetTextures(r.defaults.white, r.defaults.black, 0, r.maxTextures); err == nil {
			err = f.Set.WriteCubemap(r.defaults.cubemap)
		}
	})
	r.diffuseHWM, r.specularHWM = 1, 1
	return err
}

func (r *Renderer) ID() uuid.UUID {
	return r.id
}

// Render draws one frame of s. It returns true when the frame was presented and false when it
// was dropped, which happens for empty scenes, fence timeouts and unusable swapchains. Errors
// are fatal to the renderer.
func (r *Renderer) Render(s scene.Scene) (bool, error) {
	if s.Empty() {
		return false, nil
	}
	if r.swapchain.Generation() != r.generation || r.frames.Count() == 0 {
		// Update has not caught up with the swapchain yet
		return false, nil
	}

	f := r.frames.Sync()
	if !r.frames.Wait(f) {
		return false, nil
	}

	r.collect(s)
	extra := Flags(0)
	if s.Skybox != nil {
		extra = FlagSkybox
	}
	if err := r.objects.build(r.batches, r.defaultPipeline, extra); err != nil {
		return false, err
	}
	if err := r.writeTextures(f.Set, s.Skybox); err != nil {
		return false, err
	}
	if err := r.writeBuffers(f.Set, s.View); err != nil {
		return false, err
	}

	target, ok := r.swapchain.AcquireNextImage(f.Sync())
	if !ok {
		return false, nil
	}
	fb, err := r.ctx.Device.CreateFramebuffer(gfx.FramebufferInfo{
		RenderPass:  r.swapchain.RenderPass(),
		Attachments: []gfx.ImageView{target.Colour, target.Depth},
		Extent:      target.Extent,
	})
	if err != nil {
		err = fmt.Errorf("failed to create framebuffer for image %d: %w", target.Index, err)
		core.LogError(err.Error())
		return false, err
	}
	f.Framebuffer = fb

	if err := r.record(f, target, s.Clear); err != nil {
		return false, err
	}
	if err := r.submit(f); err != nil {
		return false, err
	}

	if !r.swapchain.Present(f.Sync()) {
		return false, nil
	}
	r.frames.Next()
	for _, sb := range r.buffers.all() {
		sb.Swap()
	}
	r.trisDrawn = r.objects.triangles
	return true, nil
}

// collect lays out the batch list, with the skybox as a synthetic leading batch.
func (r *Renderer) collect(s scene.Scene) {
	clear(r.batches)
	r.batches = r.batches[:0]
	if s.Skybox != nil {
		mesh := s.Skybox.Mesh
		if mesh == nil {
			mesh = r.defaults.cube
		}
		r.batches = append(r.batches, scene.Batch{
			Viewport: scene.FullScreen(),
			Scissor:  scene.FullScreen(),
			Drawables: []scene.Drawable{{
				Meshes:    []*resources.Mesh{mesh},
				Transform: math.NewTransform(),
				Pipeline:  r.skyboxPipeline,
			}},
		})
	}
	r.batches = append(r.batches, s.Batches...)
}

// writeTextures binds this frame's textures and rewrites every slot a previous frame may
// have left behind with the defaults.
func (r *Renderer) writeTextures(set *descriptor.Set, skybox *scene.Skybox) error {
	for _, w := range r.objects.writes {
		var err error
		if w.specular {
			err = set.WriteSpecular(w.texture, w.slot)
		} else {
			err = set.WriteDiffuse(w.texture, w.slot)
		}
		if err != nil {
			return err
		}
	}

	used := r.objects.diffuse.next
	if err := set.ResetDiffuse(r.defaults.white, used, r.diffuseHWM); err != nil {
		return err
	}
	r.diffuseHWM = max(r.diffuseHWM, used)
	used = r.objects.specular.next
	if err := set.ResetSpecular(r.defaults.black, used, r.specularHWM); err != nil {
		return err
	}
	r.specularHWM = max(r.specularHWM, used)

	cubemap := r.defaults.cubemap
	if skybox != nil && skybox.Cubemap.Ready() {
		cubemap = skybox.Cubemap
	}
	return set.WriteCubemap(cubemap)
}

func (r *Renderer) writeBuffers(set *descriptor.Set, v scene.View) error {
	o := r.objects
	ext := r.swapchain.Display().Extent
	view := viewData{
		View:           v.View,
		Projection:     v.Projection,
		ViewProjection: v.View.Mul(v.Projection),
		UI:             math.NewMat4Orthographic(0, float32(ext.Width), 0, float32(ext.Height), -100, 100),
		Position:       math.NewVec4(v.Position.X, v.Position.Y, v.Position.Z, 1),
		Ambient:        math.Vec4(v.Ambient),
		DirLightCount:  uint32(len(v.DirLights)),
	}
	b := r.buffers
	for _, err := range []error{
		descriptor.WriteValue(b.view, view),
		descriptor.WriteSlice(b.models, o.models),
		descriptor.WriteSlice(b.normals, o.normals),
		descriptor.WriteSlice(b.materials, o.materials),
		descriptor.WriteSlice(b.tints, o.tints),
		descriptor.WriteSlice(b.flags, o.flags),
		descriptor.WriteSlice(b.dirLights, v.DirLights),
	} {
		if err != nil {
			return err
		}
	}
	if err := set.WriteView(b.view); err != nil {
		return err
	}
	return set.WriteSSBOs(b.ssbos())
}

func lineWidth(b *scene.Batch, p *pipeline.Pipeline) float32 {
	if b.Debug && b.LineWidth > 0 {
		return b.LineWidth
	}
	if w := p.Info().LineWidth; w > 0 {
		return w
	}
	return 1.0
}

func (r *Renderer) record(f *frame.VirtualFrame, target swapchain.RenderTarget, clearValues gfx.ClearValues) error {
	if err := r.ctx.Device.ResetCommandPool(f.CommandPool); err != nil {
		return fmt.Errorf("failed to reset command pool of frame %d: %w", f.Index, err)
	}
	cb := f.CommandBuffer
	if err := cb.Begin(true); err != nil {
		return fmt.Errorf("failed to begin command buffer of frame %d: %w", f.Index, err)
	}
	cb.BeginRenderPass(gfx.RenderPassBegin{
		RenderPass:  r.swapchain.RenderPass(),
		Framebuffer: f.Framebuffer,
		Area:        gfx.Rect2D{Extent: target.Extent},
		Clear:       clearValues,
	})

	sets := []gfx.DescriptorSet{f.Set.Handle()}
	clear(r.bound)
	r.bound = r.bound[:0]
	var current *pipeline.Pipeline
	width := float32(-1)
	draws := r.objects.draws
	next := 0
	for bi := range r.batches {
		b := &r.batches[bi]
		cb.SetViewport(b.Viewport.Viewport(target.Extent))
		cb.SetScissor(b.Scissor.Scissor(target.Extent))
		for ; next < len(draws) && draws[next].batch == bi; next++ {
			d := &draws[next]
			if d.skip {
				continue
			}
			if d.pipeline != current {
				current = d.pipeline
				cb.BindPipeline(current.Handle())
				cb.BindDescriptorSets(current.Layout(), 0, sets)
				if !slices.Contains(r.bound, current) {
					r.bound = append(r.bound, current)
				}
			}
			if w := lineWidth(b, current); w != width {
				cb.SetLineWidth(w)
				width = w
			}
			cb.PushConstants(current.Layout(), gfx.StageVertex|gfx.StageFragment, 0, gfx.ValueBytes(&d.push))
			cb.BindVertexBuffers(0, []gfx.Buffer{d.mesh.Vertices.Handle()}, []uint64{0})
			if d.mesh.Indexed() {
				cb.BindIndexBuffer(d.mesh.Indices.Handle(), 0)
				cb.DrawIndexed(d.mesh.IndexCount, 1)
			} else {
				cb.Draw(d.mesh.VertexCount, 1)
			}
		}
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return fmt.Errorf("failed to end command buffer of frame %d: %w", f.Index, err)
	}
	return nil
}

func (r *Renderer) submit(f *frame.VirtualFrame) error {
	dev := r.ctx.Device
	if err := dev.ResetFence(f.Drawing); err != nil {
		err = fmt.Errorf("failed to reset fence of frame %d: %w", f.Index, err)
		core.LogError(err.Error())
		return err
	}
	err := dev.Submit(gfx.QueueGraphics, gfx.SubmitInfo{
		CommandBuffers: []gfx.CommandBuffer{f.CommandBuffer},
		Wait:           []gfx.Semaphore{f.RenderReady},
		WaitStages:     []gfx.PipelineStage{gfx.PipelineStageColourAttachmentOutp},
		Signal:         []gfx.Semaphore{f.PresentReady},
		Fence:          f.Drawing,
	})
	if err != nil {
		err = fmt.Errorf("failed to submit frame %d: %w", f.Index, err)
		core.LogError(err.Error())
		return err
	}
	// the fence is pending from here on, whether or not the present succeeds
	f.Nascent = false
	for _, p := range r.bound {
		p.Track(f.Drawing)
	}
	return nil
}

// Update reconstructs an unusable swapchain, rebuilds whatever depended on it and frees
// resources whose submissions have completed. Call it once per tick.
func (r *Renderer) Update() error {
	switch r.swapchain.State() {
	case swapchain.Destroyed:
		return fmt.Errorf("renderer %s has no swapchain: %w", r.id, core.ErrSwapchainOutOfDate)
	case swapchain.OutOfDate, swapchain.Suboptimal, swapchain.Paused:
		r.swapchain.Reconstruct(nil)
	}
	if err := r.refresh(false); err != nil {
		return err
	}
	r.pollPipelines()
	r.vram.Update()
	return nil
}

// refresh rebuilds the frames, the shader buffers and the pipelines when the swapchain was
// rebuilt since the last call, or unconditionally when force is set.
func (r *Renderer) refresh(force bool) error {
	gen := r.swapchain.Generation()
	if !force && gen == r.generation {
		return nil
	}
	if err := r.frames.Recreate(r.frameCount); err != nil {
		return err
	}
	// the device is idle, nothing tracked can still be in flight
	for _, sb := range r.buffers.all() {
		sb.Destroy()
	}
	r.buffers = newShaderBuffers(r.vram, r.frameCount)
	if err := r.initSets(); err != nil {
		return err
	}

	// their fences died with the old frames
	for _, p := range r.retiring {
		p.Destroy(r.ctx)
	}
	clear(r.retiring)
	r.retiring = r.retiring[:0]

	rp := r.swapchain.RenderPass()
	for _, p := range r.pipelines {
		p.Forget()
		if rp != r.renderPass {
			if err := p.Rebuild(r.ctx, rp, r.layout); err != nil {
				return err
			}
		}
	}
	r.renderPass = rp
	r.generation = gen
	core.LogDebug("renderer %s rebuilt %d virtual frames for swapchain generation %d", r.id, r.frameCount, gen)
	return nil
}

// SetVirtualFrames changes the number of frames in flight.
func (r *Renderer) SetVirtualFrames(count int) error {
	if count < 1 {
		err := fmt.Errorf("virtual frame count must be at least 1, got %d: %w", count, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return err
	}
	r.frameCount = count
	return r.refresh(true)
}

// SetPresentModes rebuilds the swapchain with a new ranked list of present modes.
func (r *Renderer) SetPresentModes(modes ...gfx.PresentMode) error {
	r.swapchain.Reconstruct(nil, modes...)
	return r.refresh(false)
}

// Resize rebuilds the swapchain at an explicit size.
func (r *Renderer) Resize(size gfx.Extent2D) error {
	r.swapchain.Reconstruct(&size)
	return r.refresh(false)
}

func (r *Renderer) CreatePipeline(info pipeline.Info) (*pipeline.Pipeline, error) {
	p, err := pipeline.New(r.ctx, info, r.swapchain.RenderPass(), r.layout)
	if err != nil {
		return nil, err
	}
	r.pipelines = append(r.pipelines, p)
	return p, nil
}

// DestroyPipeline destroys p once no submitted frame uses it anymore. The default and skybox
// pipelines live as long as the renderer.
func (r *Renderer) DestroyPipeline(p *pipeline.Pipeline) {
	if !core.Assert(p != r.defaultPipeline && p != r.skyboxPipeline, "built-in pipeline '%s' cannot be destroyed", p.Info().Name) {
		return
	}
	i := slices.Index(r.pipelines, p)
	if i < 0 {
		return
	}
	r.pipelines = slices.Delete(r.pipelines, i, i+1)
	if p.Poll(r.ctx.Device) == 0 {
		p.Destroy(r.ctx)
		return
	}
	r.retiring = append(r.retiring, p)
}

func (r *Renderer) pollPipelines() {
	for _, p := range r.pipelines {
		p.Poll(r.ctx.Device)
	}
	r.retiring = slices.DeleteFunc(r.retiring, func(p *pipeline.Pipeline) bool {
		if p.Poll(r.ctx.Device) > 0 {
			return false
		}
		p.Destroy(r.ctx)
		return true
	})
}

func (r *Renderer) DefaultPipeline() *pipeline.Pipeline {
	return r.defaultPipeline
}

func (r *Renderer) SkyboxPipeline() *pipeline.Pipeline {
	return r.skyboxPipeline
}

func (r *Renderer) Swapchain() *swapchain.Swapchain {
	return r.swapchain
}

func (r *Renderer) Stats() Stats {
	s := Stats{TrisDrawn: r.trisDrawn, Allocated: r.vram.Allocated()}
	if r.frames != nil {
		s.FramesDrawn = r.frames.FramesDrawn()
		s.VirtualFrames = r.frames.Count()
	}
	return s
}

// Destroy waits for the device and frees everything the renderer created. The VRAM
// allocator and the resources it was given remain the caller's.
func (r *Renderer) Destroy() {
	dev := r.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		core.LogWarn("wait idle before renderer destroy failed: %s", err)
	}
	for _, p := range append(r.pipelines, r.retiring...) {
		p.Destroy(r.ctx)
	}
	r.pipelines, r.retiring = nil, nil
	if r.frames != nil {
		r.frames.Destroy()
		r.frames = nil
	}
	for _, sb := range r.buffers.all() {
		if sb != nil {
			sb.Destroy()
		}
	}
	r.buffers = shaderBuffers{}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	if r.layout != gfx.Null {
		dev.DestroyDescriptorSetLayout(r.layout)
		r.layout = gfx.Null
	}
	core.LogInfo("renderer %s destroyed", r.id)
}
