package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, a := range info.Attachments {
		attachments[i] = d.views.must(uint64(a))
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.must(uint64(info.RenderPass)),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}

	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.logical, &createInfo, d.inst.Allocator, &fb), "vkCreateFramebuffer"); err != nil {
		return gfx.Null, err
	}
	return gfx.Framebuffer(d.framebuffers.add(fb)), nil
}

func (d *Device) DestroyFramebuffer(fb gfx.Framebuffer) {
	if f, ok := d.framebuffers.remove(uint64(fb)); ok {
		vk.DestroyFramebuffer(d.logical, f, d.inst.Allocator)
	}
}
