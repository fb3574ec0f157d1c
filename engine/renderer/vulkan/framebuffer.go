package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanFramebuffer struct {
	device          *VulkanDevice
	Handle          vk.Framebuffer
	AttachmentCount uint32
	Attachments     []vk.ImageView
	Renderpass      *VulkanRenderPass
	Width           uint32
	Height          uint32
}

func (d *VulkanDevice) CreateFramebuffer(pass gpu.RenderPass, views []gpu.ImageView, extent vk.Extent2D) (gpu.Framebuffer, error) {
	renderpass, ok := pass.(*VulkanRenderPass)
	if !ok {
		return nil, errors.Newf("unexpected render pass type %T", pass)
	}
	if uint32(len(views)) != renderpass.AttachmentCount {
		return nil, errors.Newf("render pass %s expects %d attachments, got %d", renderpass.Name, renderpass.AttachmentCount, len(views))
	}

	outFramebuffer := &VulkanFramebuffer{
		device:          d,
		Attachments:     make([]vk.ImageView, len(views)),
		Renderpass:      renderpass,
		AttachmentCount: uint32(len(views)),
		Width:           extent.Width,
		Height:          extent.Height,
	}
	// Take a copy of the attachment handles.
	for i, v := range views {
		view, ok := v.(*VulkanImageView)
		if !ok {
			return nil, errors.Newf("unexpected image view type %T", v)
		}
		outFramebuffer.Attachments[i] = view.Handle
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: outFramebuffer.AttachmentCount,
		PAttachments:    outFramebuffer.Attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	err := d.context.locks.SafeCall(RenderpassManagement, func() error {
		var pFramebuffer vk.Framebuffer
		if res := vk.CreateFramebuffer(d.LogicalDevice, &framebufferCreateInfo, d.context.Allocator, &pFramebuffer); res != vk.Success {
			return resultError(res, "vkCreateFramebuffer")
		}
		outFramebuffer.Handle = pFramebuffer
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "framebuffer for %s", renderpass.Name)
	}
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy() {
	if vfb.Handle == nil {
		return
	}
	vfb.device.context.locks.SafeCall(RenderpassManagement, func() error {
		vk.DestroyFramebuffer(vfb.device.LogicalDevice, vfb.Handle, vfb.device.context.Allocator)
		return nil
	})
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.AttachmentCount = 0
	vfb.Renderpass = nil
}
