package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// maxPushConstantRanges is the most ranges the guaranteed 128 bytes of push constant space
// can hold at 4 byte alignment.
const maxPushConstantRanges = 32

// CreatePipeline builds a graphics pipeline and its layout. Viewport, scissor and line width
// are dynamic state and must be set while recording.
func (d *Device) CreatePipeline(info gfx.PipelineInfo) (gfx.Pipeline, gfx.PipelineLayout, error) {
	if len(info.PushConstant) > maxPushConstantRanges {
		err := fmt.Errorf("cannot have more than %d push constant ranges, got %d: %w", maxPushConstantRanges, len(info.PushConstant), core.ErrInvalidConfig)
		core.LogError(err.Error())
		return gfx.Null, gfx.Null, err
	}

	vertex, err := d.newShaderStage(info.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return gfx.Null, gfx.Null, err
	}
	defer d.destroyShaderStage(vertex)
	fragment, err := d.newShaderStage(info.FragShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return gfx.Null, gfx.Null, err
	}
	defer d.destroyShaderStage(fragment)

	// Viewport and scissor counts only; the values are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	lineWidth := info.LineWidth
	if lineWidth <= 0 {
		lineWidth = 1
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonMode(info.Polygon),
		LineWidth:               lineWidth,
		CullMode:                vk.CullModeFlags(info.Cull),
		FrontFace:               vk.FrontFace(info.FrontFace),
		DepthBiasEnable:         vk.False,
	}
	if info.Polygon != gfx.PolygonFill && d.features.FillModeNonSolid == vk.False {
		core.LogWarn("device has no non-solid fill mode, falling back to fill")
		rasterizer.PolygonMode = vk.PolygonModeFill
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	if info.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blend := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if info.Blend {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.AlphaBlendOp = vk.BlendOpAdd
	}
	colourBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(info.Attributes))
	for i, a := range info.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	if info.Stride > 0 {
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		setLayouts[i] = d.setLayouts.must(uint64(l))
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstant))
	for i, r := range info.PushConstant {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var layout vk.PipelineLayout
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreatePipelineLayout(d.logical, &layoutInfo, d.inst.Allocator, &layout), "vkCreatePipelineLayout")
	}); err != nil {
		return gfx.Null, gfx.Null, err
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          2,
		PStages:             []vk.PipelineShaderStageCreateInfo{vertex.CreateInfo, fragment.CreateInfo},
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colourBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          d.renderPasses.must(uint64(info.RenderPass)),
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, d.inst.Allocator, pipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		vk.DestroyPipelineLayout(d.logical, layout, d.inst.Allocator)
		return gfx.Null, gfx.Null, err
	}

	core.LogDebug("Graphics pipeline created!")
	return gfx.Pipeline(d.pipelines.add(pipelines[0])), gfx.PipelineLayout(d.layouts.add(layout)), nil
}

func (d *Device) DestroyPipeline(p gfx.Pipeline, l gfx.PipelineLayout) {
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		if pipeline, ok := d.pipelines.remove(uint64(p)); ok {
			vk.DestroyPipeline(d.logical, pipeline, d.inst.Allocator)
		}
		if layout, ok := d.layouts.remove(uint64(l)); ok {
			vk.DestroyPipelineLayout(d.logical, layout, d.inst.Allocator)
		}
		return nil
	})
}
