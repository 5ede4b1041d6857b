package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
	"github.com/spaghettifunk/lumen/engine/renderer/vram"
)

// minBufferSize keeps empty storage buffers bindable.
const minBufferSize = 256

type bufferSlot struct {
	buffer *vram.Buffer
	size   uint64
	count  int
}

/**
 * @brief A uniform or storage buffer with one GPU copy per ring slot. Writes only touch the
 * current slot, so a frame still being read by the GPU keeps its own copy intact.
 */
type ShaderBuffer struct {
	vram  *vram.VRAM
	kind  gfx.DescriptorType
	name  string
	slots *containers.Ring[*bufferSlot]
}

// NewShaderBuffer creates a buffer rotating through copies slots. kind is either
// gfx.DescriptorUniformBuffer or gfx.DescriptorStorageBuffer.
func NewShaderBuffer(v *vram.VRAM, kind gfx.DescriptorType, name string, copies int) *ShaderBuffer {
	if copies < 1 {
		copies = 1
	}
	return &ShaderBuffer{
		vram:  v,
		kind:  kind,
		name:  name,
		slots: containers.NewRing(copies, func(int) *bufferSlot { return &bufferSlot{} }),
	}
}

func (sb *ShaderBuffer) current() *bufferSlot {
	s, _ := sb.slots.Get()
	return s
}

func (sb *ShaderBuffer) usage() gfx.BufferUsage {
	if sb.kind == gfx.DescriptorUniformBuffer {
		return gfx.BufferUsageUniform
	}
	return gfx.BufferUsageStorage
}

// reserve grows the current slot's buffer to hold size bytes. The replaced buffer belonged to
// the frame this slot is aligned with, whose fence the caller has already waited on.
func (sb *ShaderBuffer) reserve(size uint64) error {
	s := sb.current()
	if s.buffer.Valid() && s.buffer.Size() >= size {
		return nil
	}
	capacity := uint64(minBufferSize)
	for capacity < size {
		capacity *= 2
	}
	b, err := sb.vram.CreateBuffer(gfx.BufferInfo{
		Size:       capacity,
		Usage:      sb.usage(),
		Properties: gfx.MemoryHostVisible | gfx.MemoryHostCoherent,
		Queues:     []gfx.QueueType{gfx.QueueGraphics},
		Name:       fmt.Sprintf("%s-%d", sb.name, sb.slots.Index()),
	})
	if err != nil {
		return err
	}
	if s.buffer.Valid() {
		core.LogDebug("shader buffer '%s' grew from %d to %d bytes", sb.name, s.buffer.Size(), capacity)
		sb.vram.Release(s.buffer)
	}
	s.buffer = b
	return nil
}

func (sb *ShaderBuffer) write(data []byte, count int) error {
	size := uint64(len(data))
	if err := sb.reserve(size); err != nil {
		return err
	}
	s := sb.current()
	s.size = size
	s.count = count
	if size == 0 {
		return nil
	}
	return sb.vram.Write(s.buffer, data, 0)
}

// Write replaces the contents of the current slot with data.
func (sb *ShaderBuffer) Write(data []byte) error {
	return sb.write(data, 1)
}

// WriteValue writes a single plain-old-data value.
func WriteValue[T any](sb *ShaderBuffer, v T) error {
	return sb.write(gfx.ValueBytes(&v), 1)
}

// WriteSlice writes a tightly packed array; Len reports its element count afterwards.
func WriteSlice[T any](sb *ShaderBuffer, s []T) error {
	return sb.write(gfx.Bytes(s), len(s))
}

// Swap advances to the next slot. Call it once per presented frame.
func (sb *ShaderBuffer) Swap() {
	sb.slots.Next()
}

// Len is the element count of the last write into the current slot.
func (sb *ShaderBuffer) Len() int {
	return sb.current().count
}

// Size is the byte size of the last write into the current slot.
func (sb *ShaderBuffer) Size() uint64 {
	return sb.current().size
}

// Buffer returns the GPU buffer backing the current slot, nil before the first write.
func (sb *ShaderBuffer) Buffer() *vram.Buffer {
	return sb.current().buffer
}

func (sb *ShaderBuffer) Kind() gfx.DescriptorType {
	return sb.kind
}

func (sb *ShaderBuffer) Copies() int {
	return sb.slots.Len()
}

// Destroy releases every slot's buffer once fences have signalled.
func (sb *ShaderBuffer) Destroy(fences ...gfx.Fence) {
	sb.slots.Each(func(_ int, s *bufferSlot) {
		if s.buffer.Valid() {
			sb.vram.Release(s.buffer, fences...)
		}
	})
	sb.slots.Reset()
}
