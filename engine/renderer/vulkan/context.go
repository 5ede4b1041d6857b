package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

// ExtensionProvider is implemented by windows that know which instance extensions they need.
type ExtensionProvider interface {
	RequiredExtensions() []string
}

// NewContext creates the instance, the window surface and a device able to present to it.
func NewContext(cfg Config, window gfx.SurfaceProvider) (*gfx.Context, *Device, error) {
	if ep, ok := window.(ExtensionProvider); ok {
		cfg.Extensions = append(cfg.Extensions, ep.RequiredExtensions()...)
	}
	inst, err := NewInstance(cfg)
	if err != nil {
		return nil, nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	ptr, err := window.CreateSurface(inst.Handle)
	if err != nil || ptr == 0 {
		err = fmt.Errorf("failed to create platform surface: %v", err)
		core.LogError(err.Error())
		inst.Destroy()
		return nil, nil, err
	}
	surface := vk.SurfaceFromPointer(ptr)
	core.LogDebug("Vulkan surface created.")

	dev, err := newDevice(inst, surface, cfg)
	if err != nil {
		inst.DestroySurface(surface)
		inst.Destroy()
		return nil, nil, err
	}
	handle := dev.surfaces.add(surface)

	return &gfx.Context{Device: dev, Surface: gfx.Surface(handle), Window: window}, dev, nil
}

// findMemoryIndex returns the first memory type allowed by typeFilter that has every
// requested property.
func (d *Device) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, false
}

// allocate backs reqs with memory of the given properties and registers it.
func (d *Device) allocate(reqs vk.MemoryRequirements, props gfx.MemoryProperty) (vk.DeviceMemory, gfx.Memory, error) {
	index, ok := d.findMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(props))
	if !ok {
		err := fmt.Errorf("no memory type with properties 0x%x: %w", uint32(props), core.ErrOutOfDeviceMemory)
		core.LogError(err.Error())
		return vk.NullDeviceMemory, gfx.Null, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.logical, &allocInfo, d.inst.Allocator, &mem), "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, gfx.Null, err
	}
	h := d.memories.add(memoryRecord{handle: mem, hostVisible: props&gfx.MemoryHostVisible != 0})
	return mem, gfx.Memory(h), nil
}

func (d *Device) free(m gfx.Memory) {
	if rec, ok := d.memories.remove(uint64(m)); ok {
		vk.FreeMemory(d.logical, rec.handle, d.inst.Allocator)
	}
}

// sharing returns the sharing mode for resources touched by the given queues.
func (d *Device) sharing(queues []gfx.QueueType) (vk.SharingMode, []uint32) {
	families := d.families.Unique(queues...)
	if len(families) > 1 {
		return vk.SharingModeConcurrent, families
	}
	return vk.SharingModeExclusive, nil
}
