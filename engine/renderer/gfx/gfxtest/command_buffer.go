package gfxtest

import (
	"errors"

	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

const (
	OpBeginRenderPass    = "BeginRenderPass"
	OpEndRenderPass      = "EndRenderPass"
	OpSetViewport        = "SetViewport"
	OpSetScissor         = "SetScissor"
	OpSetLineWidth       = "SetLineWidth"
	OpBindPipeline       = "BindPipeline"
	OpBindDescriptorSets = "BindDescriptorSets"
	OpPushConstants      = "PushConstants"
	OpBindVertexBuffers  = "BindVertexBuffers"
	OpBindIndexBuffer    = "BindIndexBuffer"
	OpDraw               = "Draw"
	OpDrawIndexed        = "DrawIndexed"
	OpCopyBuffer         = "CopyBuffer"
	OpCopyBufferToImage  = "CopyBufferToImage"
)

// Command is one recorded call with its arguments in declaration order.
type Command struct {
	Op   string
	Args []interface{}
}

// CommandBuffer records commands in memory.
type CommandBuffer struct {
	ID        uint64
	Pool      gfx.CommandPool
	Recording bool
	OneTime   bool
	Commands  []Command
}

func (c *CommandBuffer) record(op string, args ...interface{}) {
	c.Commands = append(c.Commands, Command{Op: op, Args: args})
}

func (c *CommandBuffer) Begin(oneTime bool) error {
	if c.Recording {
		return errors.New("command buffer already recording")
	}
	c.Recording = true
	c.OneTime = oneTime
	c.Commands = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.Recording {
		return errors.New("command buffer not recording")
	}
	c.Recording = false
	return nil
}

func (c *CommandBuffer) BeginRenderPass(info gfx.RenderPassBegin) {
	c.record(OpBeginRenderPass, info)
}

func (c *CommandBuffer) EndRenderPass() {
	c.record(OpEndRenderPass)
}

func (c *CommandBuffer) SetViewport(v gfx.Viewport) {
	c.record(OpSetViewport, v)
}

func (c *CommandBuffer) SetScissor(r gfx.Rect2D) {
	c.record(OpSetScissor, r)
}

func (c *CommandBuffer) SetLineWidth(w float32) {
	c.record(OpSetLineWidth, w)
}

func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	c.record(OpBindPipeline, p)
}

func (c *CommandBuffer) BindDescriptorSets(layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	c.record(OpBindDescriptorSets, layout, first, append([]gfx.DescriptorSet(nil), sets...))
}

func (c *CommandBuffer) PushConstants(layout gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	c.record(OpPushConstants, layout, stages, offset, append([]byte(nil), data...))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []gfx.Buffer, offsets []uint64) {
	c.record(OpBindVertexBuffers, first, append([]gfx.Buffer(nil), buffers...), append([]uint64(nil), offsets...))
}

func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset uint64) {
	c.record(OpBindIndexBuffer, b, offset)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	c.record(OpDraw, vertexCount, instanceCount)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	c.record(OpDrawIndexed, indexCount, instanceCount)
}

func (c *CommandBuffer) CopyBuffer(src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	c.record(OpCopyBuffer, src, dst, append([]gfx.BufferCopy(nil), regions...))
}

func (c *CommandBuffer) CopyBufferToImage(src gfx.Buffer, dst gfx.Image, info gfx.ImageCopy) {
	c.record(OpCopyBufferToImage, src, dst, info)
}

// Ops returns the recorded operation names in order.
func Ops(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

// Filter returns only the commands named op.
func Filter(cmds []Command, op string) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Window is a fixed-size gfx.SurfaceProvider.
type Window struct {
	Width, Height int
}

func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	return 1, nil
}

func (w *Window) FramebufferSize() (int, int) {
	return w.Width, w.Height
}

func (w *Window) WindowSize() (int, int) {
	return w.Width, w.Height
}

// NewContext returns a context over a fresh Device and a window of the given size.
func NewContext(width, height int) (*gfx.Context, *Device, *Window) {
	dev := NewDevice()
	win := &Window{Width: width, Height: height}
	return &gfx.Context{Device: dev, Surface: gfx.Surface(1), Window: win}, dev, win
}
