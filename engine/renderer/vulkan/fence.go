package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := check(vk.CreateFence(d.logical, &fenceCreateInfo, d.inst.Allocator, &fence), "vkCreateFence"); err != nil {
		return gfx.Null, err
	}
	return gfx.Fence(d.fences.add(fence)), nil
}

func (d *Device) DestroyFence(f gfx.Fence) {
	if fence, ok := d.fences.remove(uint64(f)); ok {
		vk.DestroyFence(d.logical, fence, d.inst.Allocator)
	}
}

func (d *Device) WaitFences(fences []gfx.Fence, timeout time.Duration) gfx.Result {
	if len(fences) == 0 {
		return gfx.Success
	}
	handles := make([]vk.Fence, 0, len(fences))
	for _, f := range fences {
		if fence, ok := d.fences.get(uint64(f)); ok {
			handles = append(handles, fence)
		}
	}

	result := vk.WaitForFences(d.logical, uint32(len(handles)), handles, vk.True, timeoutNs(timeout))
	switch result {
	case vk.Success, vk.Timeout:
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - %s.", ResultString(result, false))
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return toResult(result)
}

func (d *Device) ResetFence(f gfx.Fence) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		err := fmt.Errorf("reset of unknown fence %d: %w", f, core.ErrResourceMissing)
		core.LogError(err.Error())
		return err
	}
	return check(vk.ResetFences(d.logical, 1, []vk.Fence{fence}), "vkResetFences")
}

func (d *Device) FenceStatus(f gfx.Fence) gfx.Result {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return gfx.ErrorUnknown
	}
	return toResult(vk.GetFenceStatus(d.logical, fence))
}

func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if err := check(vk.CreateSemaphore(d.logical, &semaphoreCreateInfo, d.inst.Allocator, &sem), "vkCreateSemaphore"); err != nil {
		return gfx.Null, err
	}
	return gfx.Semaphore(d.semaphores.add(sem)), nil
}

func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	if sem, ok := d.semaphores.remove(uint64(s)); ok {
		vk.DestroySemaphore(d.logical, sem, d.inst.Allocator)
	}
}

func (d *Device) semaphore(s gfx.Semaphore) vk.Semaphore {
	if sem, ok := d.semaphores.get(uint64(s)); ok {
		return sem
	}
	return vk.NullSemaphore
}

func (d *Device) fence(f gfx.Fence) vk.Fence {
	if fence, ok := d.fences.get(uint64(f)); ok {
		return fence
	}
	return vk.NullFence
}
