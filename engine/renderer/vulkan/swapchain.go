package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

type surfaceSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySurfaceSupport(pd vk.PhysicalDevice, surface vk.Surface) (surfaceSupportInfo, error) {
	var info surfaceSupportInfo
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &info.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return info, err
	}
	if formatCount > 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, info.Formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
			return info, err
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return info, err
	}
	if modeCount > 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, info.PresentModes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
			return info, err
		}
	}
	return info, nil
}

func extent(e vk.Extent2D) gfx.Extent2D {
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

// SurfaceSupport queries what the surface can do right now; the extent changes with the window.
func (d *Device) SurfaceSupport(surface gfx.Surface) (gfx.SurfaceSupport, error) {
	s, ok := d.surfaces.get(uint64(surface))
	if !ok {
		err := fmt.Errorf("unknown surface %d: %w", surface, core.ErrResourceMissing)
		core.LogError(err.Error())
		return gfx.SurfaceSupport{}, err
	}
	info, err := querySurfaceSupport(d.physical, s)
	if err != nil {
		return gfx.SurfaceSupport{}, err
	}

	out := gfx.SurfaceSupport{
		Capabilities: gfx.SurfaceCapabilities{
			MinImageCount:    info.Capabilities.MinImageCount,
			MaxImageCount:    info.Capabilities.MaxImageCount,
			CurrentExtent:    extent(info.Capabilities.CurrentExtent),
			MinImageExtent:   extent(info.Capabilities.MinImageExtent),
			MaxImageExtent:   extent(info.Capabilities.MaxImageExtent),
			CurrentTransform: gfx.SurfaceTransform(info.Capabilities.CurrentTransform),
		},
		Formats:      make([]gfx.SurfaceFormat, len(info.Formats)),
		PresentModes: make([]gfx.PresentMode, len(info.PresentModes)),
	}
	for i, f := range info.Formats {
		out.Formats[i] = gfx.SurfaceFormat{Format: gfx.Format(f.Format), ColourSpace: gfx.ColourSpace(f.ColorSpace)}
	}
	for i, m := range info.PresentModes {
		out.PresentModes[i] = gfx.PresentMode(m)
	}
	return out, nil
}

// CreateSwapchain creates the swapchain and registers its images, which are owned by it.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, []gfx.Image, error) {
	surface, ok := d.surfaces.get(uint64(info.Surface))
	if !ok {
		err := fmt.Errorf("unknown surface %d: %w", info.Surface, core.ErrResourceMissing)
		core.LogError(err.Error())
		return gfx.Null, nil, err
	}
	mode, families := d.sharing(info.Queues)

	createInfo := vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               surface,
		MinImageCount:         info.ImageCount,
		ImageFormat:           vk.Format(info.Format.Format),
		ImageColorSpace:       vk.ColorSpace(info.Format.ColourSpace),
		ImageExtent:           vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          vk.SurfaceTransformFlagBits(info.Transform),
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           vk.PresentMode(info.PresentMode),
		Clipped:               vk.True,
		OldSwapchain:          vk.NullSwapchain,
	}
	if old, ok := d.swapchains.get(uint64(info.Old)); ok {
		createInfo.OldSwapchain = old.handle
	}

	var handle vk.Swapchain
	if err := d.locks.SafeCall(SwapchainManagement, func() error {
		return check(vk.CreateSwapchain(d.logical, &createInfo, d.inst.Allocator, &handle), "vkCreateSwapchain")
	}); err != nil {
		return gfx.Null, nil, err
	}

	var count uint32
	if err := check(vk.GetSwapchainImages(d.logical, handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.logical, handle, d.inst.Allocator)
		return gfx.Null, nil, err
	}
	images := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.logical, handle, &count, images), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.logical, handle, d.inst.Allocator)
		return gfx.Null, nil, err
	}

	rec := swapchainRecord{handle: handle, images: make([]uint64, count)}
	out := make([]gfx.Image, count)
	for i, img := range images {
		rec.images[i] = d.images.add(img)
		out[i] = gfx.Image(rec.images[i])
	}
	core.LogInfo("Swapchain created: %dx%d, %d images.", info.Extent.Width, info.Extent.Height, count)
	return gfx.Swapchain(d.swapchains.add(rec)), out, nil
}

// DestroySwapchain forgets the swapchain images; they are freed with it.
func (d *Device) DestroySwapchain(sc gfx.Swapchain) {
	rec, ok := d.swapchains.remove(uint64(sc))
	if !ok {
		return
	}
	for _, img := range rec.images {
		d.images.remove(img)
	}
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.logical, rec.handle, d.inst.Allocator)
		return nil
	})
}

func (d *Device) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore, fence gfx.Fence) (uint32, gfx.Result) {
	rec, ok := d.swapchains.get(uint64(sc))
	if !ok {
		return 0, gfx.ErrorOutOfDate
	}
	var index uint32
	var result vk.Result
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		result = vk.AcquireNextImage(d.logical, rec.handle, timeoutNs(timeout), d.semaphore(signal), d.fence(fence), &index)
		return nil
	})
	if !IsSuccess(result) && result != vk.ErrorOutOfDate {
		core.LogError("failed to acquire swapchain image: %s", ResultString(result, true))
	}
	return index, toResult(result)
}

// Present queues the image on the present queue once wait is signalled.
func (d *Device) Present(sc gfx.Swapchain, image uint32, wait gfx.Semaphore) gfx.Result {
	rec, ok := d.swapchains.get(uint64(sc))
	if !ok {
		return gfx.ErrorOutOfDate
	}
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{rec.handle},
		PImageIndices:  []uint32{image},
	}
	if wait != gfx.Null {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{d.semaphore(wait)}
	}

	var result vk.Result
	_ = d.locks.SafeQueueCall(d.families.Present, func() error {
		result = vk.QueuePresent(d.queues[gfx.QueuePresent], &presentInfo)
		return nil
	})
	if !IsSuccess(result) && result != vk.ErrorOutOfDate {
		core.LogError("failed to present swapchain image: %s", ResultString(result, true))
	}
	return toResult(result)
}
