// Package gfx is the device abstraction the render core is written against. Every GPU object
// is an opaque handle minted by a Device; the Vulkan backend and the recording test device
// both implement it.
package gfx

type (
	Fence               uint64
	Semaphore           uint64
	Buffer              uint64
	Memory              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	CommandPool         uint64
	DescriptorPool      uint64
	DescriptorSetLayout uint64
	DescriptorSet       uint64
	RenderPass          uint64
	Framebuffer         uint64
	Pipeline            uint64
	PipelineLayout      uint64
	Swapchain           uint64
	Surface             uint64
)

// Null is the invalid value for every handle type.
const Null = 0
