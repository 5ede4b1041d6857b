package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

type CommandBufferState int

const (
	CommandBufferReady CommandBufferState = iota
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
	CommandBufferNotAllocated
)

// CommandBuffer records into a primary command buffer of one of the device's pools.
type CommandBuffer struct {
	dev    *Device
	Handle vk.CommandBuffer
	State  CommandBufferState
	// graphics is set when the pool's family supports graphics stages
	graphics bool
}

func (d *Device) CreateCommandPool(queue gfx.QueueType, transient bool) (gfx.CommandPool, error) {
	family := d.families.Index(queue)
	flags := vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	if transient {
		flags |= vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            flags,
	}

	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.logical, &poolCreateInfo, d.inst.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return gfx.Null, err
	}
	return gfx.CommandPool(d.commandPools.add(commandPoolRecord{handle: pool, family: family})), nil
}

func (d *Device) DestroyCommandPool(p gfx.CommandPool) {
	if rec, ok := d.commandPools.remove(uint64(p)); ok {
		vk.DestroyCommandPool(d.logical, rec.handle, d.inst.Allocator)
	}
}

// ResetCommandPool returns every buffer of the pool to the initial state.
func (d *Device) ResetCommandPool(p gfx.CommandPool) error {
	rec, ok := d.commandPools.get(uint64(p))
	if !ok {
		err := fmt.Errorf("reset of unknown command pool %d: %w", p, core.ErrResourceMissing)
		core.LogError(err.Error())
		return err
	}
	return d.locks.SafeCall(CommandPoolManagement, func() error {
		return check(vk.ResetCommandPool(d.logical, rec.handle, 0), "vkResetCommandPool")
	})
}

func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	rec, ok := d.commandPools.get(uint64(p))
	if !ok {
		err := fmt.Errorf("allocate from unknown command pool %d: %w", p, core.ErrResourceMissing)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        rec.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return check(vk.AllocateCommandBuffers(d.logical, &allocateInfo, handles), "vkAllocateCommandBuffers")
	}); err != nil {
		return nil, err
	}
	return &CommandBuffer{
		dev:      d,
		Handle:   handles[0],
		State:    CommandBufferReady,
		graphics: rec.family == d.families.Graphics,
	}, nil
}

func (d *Device) FreeCommandBuffer(p gfx.CommandPool, cb gfx.CommandBuffer) {
	rec, ok := d.commandPools.get(uint64(p))
	c, isVk := cb.(*CommandBuffer)
	if !ok || !isVk || c.Handle == nil {
		return
	}
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.logical, rec.handle, 1, []vk.CommandBuffer{c.Handle})
		return nil
	})
	c.Handle = nil
	c.State = CommandBufferNotAllocated
}

// Submit hands recorded buffers to a queue, serialised with every other use of that queue.
func (d *Device) Submit(queue gfx.QueueType, info gfx.SubmitInfo) error {
	buffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		c, ok := cb.(*CommandBuffer)
		if !ok {
			err := fmt.Errorf("submit of a foreign command buffer %T: %w", cb, core.ErrUnknown)
			core.LogError(err.Error())
			return err
		}
		buffers = append(buffers, c.Handle)
		c.State = CommandBufferSubmitted
	}
	wait := make([]vk.Semaphore, len(info.Wait))
	for i, s := range info.Wait {
		wait[i] = d.semaphore(s)
	}
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = vk.PipelineStageFlags(s)
	}
	signal := make([]vk.Semaphore, len(info.Signal))
	for i, s := range info.Signal {
		signal[i] = d.semaphore(s)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	fence := d.fence(info.Fence)
	return d.locks.SafeQueueCall(d.families.Index(queue), func() error {
		return check(vk.QueueSubmit(d.queues[queue], 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
}

func (c *CommandBuffer) Begin(oneTime bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check(vk.BeginCommandBuffer(c.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	c.State = CommandBufferRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if err := check(vk.EndCommandBuffer(c.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	c.State = CommandBufferRecordingEnded
	return nil
}

func (c *CommandBuffer) BeginRenderPass(info gfx.RenderPassBegin) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(info.Clear.Colour[:])
	clearValues[1].SetDepthStencil(info.Clear.Depth, info.Clear.Stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  c.dev.renderPasses.must(uint64(info.RenderPass)),
		Framebuffer: c.dev.framebuffers.must(uint64(info.Framebuffer)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.Offset.X, Y: info.Area.Offset.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.Handle, &beginInfo, vk.SubpassContentsInline)
	c.State = CommandBufferInRenderPass
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.Handle)
	c.State = CommandBufferRecording
}

func (c *CommandBuffer) SetViewport(v gfx.Viewport) {
	vk.CmdSetViewport(c.Handle, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(r gfx.Rect2D) {
	vk.CmdSetScissor(c.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}})
}

// SetLineWidth clamps to 1 when the device has no wide line support.
func (c *CommandBuffer) SetLineWidth(w float32) {
	if c.dev.features.WideLines == vk.False {
		w = 1
	}
	vk.CmdSetLineWidth(c.Handle, w)
}

func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	vk.CmdBindPipeline(c.Handle, vk.PipelineBindPointGraphics, c.dev.pipelines.must(uint64(p)))
}

func (c *CommandBuffer) BindDescriptorSets(layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = c.dev.sets.must(uint64(s)).handle
	}
	vk.CmdBindDescriptorSets(c.Handle, vk.PipelineBindPointGraphics, c.dev.layouts.must(uint64(layout)),
		first, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandBuffer) PushConstants(layout gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.Handle, c.dev.layouts.must(uint64(layout)), vk.ShaderStageFlags(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []gfx.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = c.dev.buffers.must(uint64(b))
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.Handle, first, uint32(len(handles)), handles, offs)
}

func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset uint64) {
	vk.CmdBindIndexBuffer(c.Handle, c.dev.buffers.must(uint64(b)), vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(c.Handle, vertexCount, instanceCount, 0, 0)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(c.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (c *CommandBuffer) CopyBuffer(src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	rg := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rg[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.Handle, c.dev.buffers.must(uint64(src)), c.dev.buffers.must(uint64(dst)), uint32(len(rg)), rg)
}

func (c *CommandBuffer) CopyBufferToImage(src gfx.Buffer, dst gfx.Image, info gfx.ImageCopy) {
	image := c.dev.images.must(uint64(dst))
	layers := info.Layers
	if layers == 0 {
		layers = 1
	}

	c.transition(image, layers, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	regions := make([]vk.BufferImageCopy, layers)
	for l := uint32(0); l < layers; l++ {
		regions[l] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(uint64(l) * info.LayerSize),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: l,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  info.Extent.Width,
				Height: info.Extent.Height,
				Depth:  1,
			},
		}
	}
	vk.CmdCopyBufferToImage(c.Handle, c.dev.buffers.must(uint64(src)), image,
		vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)

	c.transition(image, layers, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
}

// uploadBarrier returns the access masks and stages of the two layout changes an upload
// needs. A transfer-only family cannot name the fragment stage, so its final barrier ends at
// bottom of pipe and the submission fence carries the dependency to the graphics queue.
func uploadBarrier(from vk.ImageLayout, graphics bool) (srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	if from == vk.ImageLayoutUndefined {
		return 0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	}
	srcAccess = vk.AccessFlags(vk.AccessTransferWriteBit)
	srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	if !graphics {
		return srcAccess, 0, srcStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return srcAccess, vk.AccessFlags(vk.AccessShaderReadBit), srcStage, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
}

// transition records a layout change for every layer of a colour image. Only the two
// transitions an upload needs are supported.
func (c *CommandBuffer) transition(image vk.Image, layers uint32, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	barrier.SrcAccessMask, barrier.DstAccessMask, srcStage, dstStage = uploadBarrier(from, c.graphics)

	vk.CmdPipelineBarrier(c.Handle, srcStage, dstStage, 0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}
