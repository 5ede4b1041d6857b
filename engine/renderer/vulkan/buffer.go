package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Allocation, error) {
	mode, families := d.sharing(info.Queues)
	createInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(info.Size),
		Usage:                 vk.BufferUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}

	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.logical, &createInfo, d.inst.Allocator, &buffer), "vkCreateBuffer "+info.Name); err != nil {
		return gfx.Allocation{}, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, buffer, &reqs)
	reqs.Deref()

	mem, memHandle, err := d.allocate(reqs, info.Properties)
	if err != nil {
		vk.DestroyBuffer(d.logical, buffer, d.inst.Allocator)
		return gfx.Allocation{}, err
	}
	if err := check(vk.BindBufferMemory(d.logical, buffer, mem, 0), "vkBindBufferMemory "+info.Name); err != nil {
		d.free(memHandle)
		vk.DestroyBuffer(d.logical, buffer, d.inst.Allocator)
		return gfx.Allocation{}, err
	}

	h := d.buffers.add(buffer)
	core.LogDebug("buffer '%s' created: %d bytes, %d reserved", info.Name, info.Size, uint64(reqs.Size))
	return gfx.Allocation{Buffer: gfx.Buffer(h), Memory: memHandle, Size: uint64(reqs.Size)}, nil
}

func (d *Device) DestroyBuffer(a gfx.Allocation) {
	if b, ok := d.buffers.remove(uint64(a.Buffer)); ok {
		vk.DestroyBuffer(d.logical, b, d.inst.Allocator)
	}
	d.free(a.Memory)
}

// MapWrite copies data into host visible memory at offset. Memory is coherent so no flush is
// needed.
func (d *Device) MapWrite(a gfx.Allocation, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rec, ok := d.memories.get(uint64(a.Memory))
	if !ok || !rec.hostVisible {
		err := fmt.Errorf("map write to buffer %d: %w", a.Buffer, core.ErrNotHostVisible)
		core.LogError(err.Error())
		return err
	}
	return d.locks.SafeCall(MemoryManagement, func() error {
		var ptr unsafe.Pointer
		if err := check(vk.MapMemory(d.logical, rec.handle, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr), "vkMapMemory"); err != nil {
			return err
		}
		vk.Memcopy(ptr, data)
		vk.UnmapMemory(d.logical, rec.handle)
		return nil
	})
}
