package gfx

import "time"

// Device is the explicit GPU context every render core component is constructed with.
type Device interface {
	QueueFamilies() QueueFamilies
	WaitIdle() error

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitFences blocks until every fence is signalled or the timeout elapses.
	WaitFences(fences []Fence, timeout time.Duration) Result
	ResetFence(f Fence) error
	// FenceStatus never blocks: Success when signalled, NotReady otherwise.
	FenceStatus(f Fence) Result
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateBuffer(info BufferInfo) (Allocation, error)
	DestroyBuffer(a Allocation)
	MapWrite(a Allocation, offset uint64, data []byte) error
	CreateImage(info ImageInfo) (ImageAllocation, error)
	DestroyImage(a ImageAllocation)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(s Sampler)
	SupportedDepthFormat(candidates []Format) (Format, bool)

	CreateCommandPool(queue QueueType, transient bool) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	ResetCommandPool(p CommandPool) error
	AllocateCommandBuffer(p CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(p CommandPool, cb CommandBuffer)
	Submit(queue QueueType, info SubmitInfo) error

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSets(p DescriptorPool, l DescriptorSetLayout, count int) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreatePipeline(info PipelineInfo) (Pipeline, PipelineLayout, error)
	DestroyPipeline(p Pipeline, l PipelineLayout)

	SurfaceSupport(surface Surface) (SurfaceSupport, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, []Image, error)
	DestroySwapchain(sc Swapchain)
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore, fence Fence) (uint32, Result)
	Present(sc Swapchain, image uint32, wait Semaphore) Result
}

// CommandBuffer records GPU commands between Begin and End.
type CommandBuffer interface {
	Begin(oneTime bool) error
	End() error
	BeginRenderPass(info RenderPassBegin)
	EndRenderPass()
	SetViewport(v Viewport)
	SetScissor(r Rect2D)
	SetLineWidth(w float32)
	BindPipeline(p Pipeline)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(b Buffer, offset uint64)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	// CopyBufferToImage transitions dst for transfer, copies every layer and leaves it ready
	// for shader reads.
	CopyBufferToImage(src Buffer, dst Image, info ImageCopy)
}

// SurfaceProvider is implemented by the window layer.
type SurfaceProvider interface {
	CreateSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (int, int)
	WindowSize() (int, int)
}

// Context is threaded explicitly into every component constructor.
type Context struct {
	Device  Device
	Surface Surface
	Window  SurfaceProvider
}

// FramebufferExtent queries the window for its current framebuffer size.
func (c *Context) FramebufferExtent() Extent2D {
	if c.Window == nil {
		return Extent2D{}
	}
	w, h := c.Window.FramebufferSize()
	if w < 0 || h < 0 {
		return Extent2D{}
	}
	return Extent2D{Width: uint32(w), Height: uint32(h)}
}
