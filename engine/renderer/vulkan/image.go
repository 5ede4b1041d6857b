package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.ImageAllocation, error) {
	layers := info.Layers
	if layers == 0 {
		layers = 1
	}
	var flags vk.ImageCreateFlags
	if info.Cube {
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	mode, families := d.sharing(info.Queues)

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           layers,
		Samples:               vk.SampleCount1Bit,
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 vk.ImageUsageFlags(info.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := check(vk.CreateImage(d.logical, &createInfo, d.inst.Allocator, &image), "vkCreateImage "+info.Name); err != nil {
		return gfx.ImageAllocation{}, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &reqs)
	reqs.Deref()

	mem, memHandle, err := d.allocate(reqs, info.Properties)
	if err != nil {
		vk.DestroyImage(d.logical, image, d.inst.Allocator)
		return gfx.ImageAllocation{}, err
	}
	if err := check(vk.BindImageMemory(d.logical, image, mem, 0), "vkBindImageMemory "+info.Name); err != nil {
		d.free(memHandle)
		vk.DestroyImage(d.logical, image, d.inst.Allocator)
		return gfx.ImageAllocation{}, err
	}

	h := d.images.add(image)
	core.LogDebug("image '%s' created: %dx%d, %d layers", info.Name, info.Extent.Width, info.Extent.Height, layers)
	return gfx.ImageAllocation{Image: gfx.Image(h), Memory: memHandle, Size: uint64(reqs.Size)}, nil
}

func (d *Device) DestroyImage(a gfx.ImageAllocation) {
	if img, ok := d.images.remove(uint64(a.Image)); ok {
		vk.DestroyImage(d.logical, img, d.inst.Allocator)
	}
	d.free(a.Memory)
}

func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	layers := info.Layers
	if layers == 0 {
		layers = 1
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.must(uint64(info.Image)),
		ViewType: vk.ImageViewType(info.Type),
		Format:   vk.Format(info.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}

	var view vk.ImageView
	if err := check(vk.CreateImageView(d.logical, &viewInfo, d.inst.Allocator, &view), "vkCreateImageView"); err != nil {
		return gfx.Null, err
	}
	return gfx.ImageView(d.views.add(view)), nil
}

func (d *Device) DestroyImageView(v gfx.ImageView) {
	if view, ok := d.views.remove(uint64(v)); ok {
		vk.DestroyImageView(d.logical, view, d.inst.Allocator)
	}
}

func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	filter := vk.FilterNearest
	if info.Linear {
		filter = vk.FilterLinear
	}
	address := vk.SamplerAddressModeClampToEdge
	if info.Repeat {
		address = vk.SamplerAddressModeRepeat
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if info.Anisotropy && d.features.SamplerAnisotropy == vk.True {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = d.properties.Limits.MaxSamplerAnisotropy
	}

	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.logical, &samplerInfo, d.inst.Allocator, &sampler), "vkCreateSampler"); err != nil {
		return gfx.Null, err
	}
	return gfx.Sampler(d.samplers.add(sampler)), nil
}

func (d *Device) DestroySampler(s gfx.Sampler) {
	if sampler, ok := d.samplers.remove(uint64(s)); ok {
		vk.DestroySampler(d.logical, sampler, d.inst.Allocator)
	}
}
