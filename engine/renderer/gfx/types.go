package gfx

import "fmt"

// Result mirrors the subset of driver results the render core reacts to.
type Result int

const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	ErrorOutOfDate
	ErrorSurfaceLost
	ErrorDeviceLost
	ErrorOutOfMemory
	ErrorUnknown
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotReady:
		return "not ready"
	case Timeout:
		return "timeout"
	case Suboptimal:
		return "suboptimal"
	case ErrorOutOfDate:
		return "out of date"
	case ErrorSurfaceLost:
		return "surface lost"
	case ErrorDeviceLost:
		return "device lost"
	case ErrorOutOfMemory:
		return "out of memory"
	default:
		return "unknown error"
	}
}

// Err converts a failed result into an error, nil otherwise.
func (r Result) Err() error {
	if r == Success || r == Suboptimal {
		return nil
	}
	return fmt.Errorf("gpu call failed: %s", r)
}

type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueuePresent
	QueueTransfer
)

// QueueFamilies reports the family index backing each queue type.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
	Transfer uint32
}

// Unique returns the distinct family indices among the given queue types.
func (q QueueFamilies) Unique(types ...QueueType) []uint32 {
	out := make([]uint32, 0, len(types))
	for _, t := range types {
		idx := q.Index(t)
		dup := false
		for _, o := range out {
			if o == idx {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, idx)
		}
	}
	return out
}

func (q QueueFamilies) Index(t QueueType) uint32 {
	switch t {
	case QueuePresent:
		return q.Present
	case QueueTransfer:
		return q.Transfer
	default:
		return q.Graphics
	}
}

type Extent2D struct {
	Width, Height uint32
}

// Valid reports whether both dimensions are non-zero.
func (e Extent2D) Valid() bool {
	return e.Width > 0 && e.Height > 0
}

type Offset2D struct {
	X, Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Values below mirror the Vulkan enums so the backend can convert by cast.

type Format uint32

const (
	FormatUndefined         Format = 0
	FormatR8G8B8A8Unorm     Format = 37
	FormatR8G8B8A8Srgb      Format = 43
	FormatB8G8R8A8Unorm     Format = 44
	FormatB8G8R8A8Srgb      Format = 50
	FormatR32G32Sfloat      Format = 103
	FormatR32G32B32Sfloat   Format = 106
	FormatR32G32B32A32Float Format = 109
	FormatD16Unorm          Format = 124
	FormatD32Sfloat         Format = 126
	FormatD24UnormS8Uint    Format = 129
	FormatD32SfloatS8Uint   Format = 130
)

type ColourSpace uint32

const (
	ColourSpaceSrgbNonlinear ColourSpace = 0
)

type SurfaceFormat struct {
	Format      Format
	ColourSpace ColourSpace
}

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

type SurfaceTransform uint32

const (
	SurfaceTransformIdentity  SurfaceTransform = 0x1
	SurfaceTransformRotate90  SurfaceTransform = 0x2
	SurfaceTransformRotate180 SurfaceTransform = 0x4
	SurfaceTransformRotate270 SurfaceTransform = 0x8
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageColourAttach    ImageUsage = 0x10
	ImageUsageDepthStencilAtt ImageUsage = 0x20
)

type ImageAspect uint32

const (
	AspectColour  ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

type ImageLayout uint32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutColourAttachment       ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutShaderReadOnly         ImageLayout = 5
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

type ViewType uint32

const (
	ViewType2D   ViewType = 1
	ViewTypeCube ViewType = 3
)

type DescriptorType uint32

const (
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorStorageBuffer        DescriptorType = 7
)

type ShaderStage uint32

const (
	StageVertex   ShaderStage = 0x1
	StageFragment ShaderStage = 0x10
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe            PipelineStage = 0x1
	PipelineStageTransfer             PipelineStage = 0x1000
	PipelineStageColourAttachmentOutp PipelineStage = 0x400
)

type PolygonMode uint32

const (
	PolygonFill  PolygonMode = 0
	PolygonLine  PolygonMode = 1
	PolygonPoint PolygonMode = 2
)

type CullMode uint32

const (
	CullNone  CullMode = 0
	CullFront CullMode = 0x1
	CullBack  CullMode = 0x2
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)
