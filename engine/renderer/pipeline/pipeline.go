package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// PushConstants is the per-draw block; the shaders index every per-object array with ObjectID.
type PushConstants struct {
	ObjectID   uint32
	DiffuseID  uint32
	SpecularID uint32
}

// Shaders holds compiled SPIR-V for both stages.
type Shaders struct {
	Vertex   []byte
	Fragment []byte
}

// LoadShaders reads <dir>/<name>.vert.spv and <dir>/<name>.frag.spv.
func LoadShaders(dir, name string) (Shaders, error) {
	var s Shaders
	var err error
	if s.Vertex, err = os.ReadFile(filepath.Join(dir, name+".vert.spv")); err != nil {
		return s, fmt.Errorf("unable to read vertex shader '%s': %w", name, err)
	}
	if s.Fragment, err = os.ReadFile(filepath.Join(dir, name+".frag.spv")); err != nil {
		return s, fmt.Errorf("unable to read fragment shader '%s': %w", name, err)
	}
	return s, nil
}

// Info is the description a pipeline is created from.
type Info struct {
	Name       string
	Shaders    Shaders
	Polygon    gfx.PolygonMode
	Cull       gfx.CullMode
	FrontFace  gfx.FrontFace
	LineWidth  float32
	Blend      bool
	DepthTest  bool
	DepthWrite bool
	// UI pipelines draw unlit in screen space.
	UI bool
}

// DefaultInfo is an opaque, depth tested, back-face culled pipeline.
func DefaultInfo(name string, shaders Shaders) Info {
	return Info{
		Name:       name,
		Shaders:    shaders,
		Polygon:    gfx.PolygonFill,
		Cull:       gfx.CullBack,
		FrontFace:  gfx.FrontFaceCounterClockwise,
		LineWidth:  1.0,
		DepthTest:  true,
		DepthWrite: true,
	}
}

// SkyboxInfo draws the inside of the cube behind everything else.
func SkyboxInfo(shaders Shaders) Info {
	info := DefaultInfo("skybox", shaders)
	info.Cull = gfx.CullFront
	info.DepthWrite = false
	return info
}

var vertexAttributes = []gfx.VertexAttribute{
	{Location: 0, Format: gfx.FormatR32G32B32Sfloat, Offset: 0},
	{Location: 1, Format: gfx.FormatR32G32B32Sfloat, Offset: 12},
	{Location: 2, Format: gfx.FormatR32G32Sfloat, Offset: 24},
	{Location: 3, Format: gfx.FormatR32G32B32A32Float, Offset: 32},
}

// Pipeline is immutable once built. It remembers the fences of submissions that used it so
// it is only destroyed after they complete.
type Pipeline struct {
	id       uuid.UUID
	info     Info
	handle   gfx.Pipeline
	layout   gfx.PipelineLayout
	inFlight map[gfx.Fence]struct{}
}

func New(ctx *gfx.Context, info Info, renderPass gfx.RenderPass, setLayout gfx.DescriptorSetLayout) (*Pipeline, error) {
	p := &Pipeline{id: uuid.New(), info: info, inFlight: map[gfx.Fence]struct{}{}}
	if err := p.build(ctx, renderPass, setLayout); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx *gfx.Context, renderPass gfx.RenderPass, setLayout gfx.DescriptorSetLayout) error {
	if len(p.info.Shaders.Vertex) == 0 || len(p.info.Shaders.Fragment) == 0 {
		err := fmt.Errorf("pipeline '%s' is missing shader code: %w", p.info.Name, core.ErrResourceMissing)
		core.LogError(err.Error())
		return err
	}
	lineWidth := p.info.LineWidth
	if lineWidth <= 0 {
		lineWidth = 1.0
	}
	handle, layout, err := ctx.Device.CreatePipeline(gfx.PipelineInfo{
		RenderPass: renderPass,
		SetLayouts: []gfx.DescriptorSetLayout{setLayout},
		PushConstant: []gfx.PushConstantRange{{
			Stages: gfx.StageVertex | gfx.StageFragment,
			Size:   uint32(gfx.SizeOf[PushConstants]()),
		}},
		VertexShader: p.info.Shaders.Vertex,
		FragShader:   p.info.Shaders.Fragment,
		Stride:       uint32(gfx.SizeOf[math.Vertex]()),
		Attributes:   vertexAttributes,
		Polygon:      p.info.Polygon,
		Cull:         p.info.Cull,
		FrontFace:    p.info.FrontFace,
		LineWidth:    lineWidth,
		Blend:        p.info.Blend,
		DepthTest:    p.info.DepthTest,
		DepthWrite:   p.info.DepthWrite,
	})
	if err != nil {
		err = fmt.Errorf("failed to create pipeline '%s': %w", p.info.Name, err)
		core.LogError(err.Error())
		return err
	}
	p.handle = handle
	p.layout = layout
	core.LogDebug("pipeline '%s' (%s) built", p.info.Name, p.id)
	return nil
}

// Rebuild recreates the pipeline against a new render pass. The device must be idle.
func (p *Pipeline) Rebuild(ctx *gfx.Context, renderPass gfx.RenderPass, setLayout gfx.DescriptorSetLayout) error {
	p.Destroy(ctx)
	return p.build(ctx, renderPass, setLayout)
}

func (p *Pipeline) Destroy(ctx *gfx.Context) {
	if p.handle != gfx.Null {
		ctx.Device.DestroyPipeline(p.handle, p.layout)
		p.handle = gfx.Null
		p.layout = gfx.Null
	}
	clear(p.inFlight)
}

func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

func (p *Pipeline) Info() Info {
	return p.info
}

func (p *Pipeline) Handle() gfx.Pipeline {
	return p.handle
}

func (p *Pipeline) Layout() gfx.PipelineLayout {
	return p.layout
}

// Track records that a submission signalling f uses the pipeline.
func (p *Pipeline) Track(f gfx.Fence) {
	p.inFlight[f] = struct{}{}
}

// Poll forgets every tracked fence that has signalled and returns how many remain.
func (p *Pipeline) Poll(dev gfx.Device) int {
	for f := range p.inFlight {
		if dev.FenceStatus(f) == gfx.Success {
			delete(p.inFlight, f)
		}
	}
	return len(p.inFlight)
}

// Forget drops every tracked fence, used once the device is known to be idle.
func (p *Pipeline) Forget() {
	clear(p.inFlight)
}

func (p *Pipeline) InFlight() int {
	return len(p.inFlight)
}
