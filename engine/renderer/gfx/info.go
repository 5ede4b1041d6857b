package gfx

import "time"

type BufferInfo struct {
	Size       uint64
	Usage      BufferUsage
	Properties MemoryProperty
	// Queues lists the queues that access the buffer; more than one distinct family means
	// concurrent sharing.
	Queues []QueueType
	Name   string
}

// Allocation is a buffer bound to its backing memory.
type Allocation struct {
	Buffer Buffer
	Memory Memory
	Size   uint64
}

type ImageInfo struct {
	Extent     Extent2D
	Format     Format
	Usage      ImageUsage
	Properties MemoryProperty
	Layers     uint32
	Cube       bool
	Queues     []QueueType
	Name       string
}

type ImageAllocation struct {
	Image  Image
	Memory Memory
	Size   uint64
}

type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
	Type   ViewType
	Layers uint32
}

type SamplerInfo struct {
	Linear     bool
	Anisotropy bool
	Repeat     bool
}

// ImageCopy describes a full-image upload from a staging buffer, one tightly packed slice per
// layer in order.
type ImageCopy struct {
	Extent    Extent2D
	Layers    uint32
	LayerSize uint64
}

type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	WaitStages     []PipelineStage
	Signal         []Semaphore
	Fence          Fence
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type BufferDescriptor struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageDescriptor struct {
	View    ImageView
	Sampler Sampler
}

// DescriptorWrite updates one binding of a set; exactly one of Buffers or Images is used.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []BufferDescriptor
	Images       []ImageDescriptor
}

type RenderPassInfo struct {
	Colour Format
	Depth  Format
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type ClearValues struct {
	Colour  [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	Clear       ClearValues
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineInfo is the fixed-function and shader state of a graphics pipeline.
type PipelineInfo struct {
	RenderPass   RenderPass
	SetLayouts   []DescriptorSetLayout
	PushConstant []PushConstantRange
	VertexShader []byte
	FragShader   []byte
	Stride       uint32
	Attributes   []VertexAttribute
	Polygon      PolygonMode
	Cull         CullMode
	FrontFace    FrontFace
	LineWidth    float32
	Blend        bool
	DepthTest    bool
	DepthWrite   bool
}

type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32
	CurrentExtent    Extent2D
	MinImageExtent   Extent2D
	MaxImageExtent   Extent2D
	CurrentTransform SurfaceTransform
}

// UndefinedExtent is reported as the current extent when the surface size is determined by
// the swapchain.
const UndefinedExtent = ^uint32(0)

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainInfo struct {
	Surface     Surface
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D
	ImageCount  uint32
	Transform   SurfaceTransform
	Queues      []QueueType
	Old         Swapchain
}

// Infinite is the timeout used for unbounded waits.
const Infinite = time.Duration(1<<63 - 1)
