package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanRenderPass struct {
	device *VulkanDevice
	Handle vk.RenderPass
	Name   string
	// Number of attachments a framebuffer for this pass must bind.
	AttachmentCount uint32
}

func attachmentReferences(refs []gpu.AttachmentRef) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Index, Layout: r.Layout}
	}
	return out
}

// renderPassCreateInfo translates a descriptor one to one. Attachment
// indices are kept, so framebuffers must list views in descriptor order.
func renderPassCreateInfo(desc *gpu.RenderPassDescriptor) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		subpass := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(s.Colors)),
			PColorAttachments:    attachmentReferences(s.Colors),
			InputAttachmentCount: uint32(len(s.Inputs)),
			PInputAttachments:    attachmentReferences(s.Inputs),
		}
		if s.Depth != nil {
			subpass.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.Depth.Index,
				Layout:     s.Depth.Layout,
			}
		}
		subpasses[i] = subpass
	}

	dependencies := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, d := range desc.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:      d.Src,
			DstSubpass:      d.Dst,
			SrcStageMask:    d.SrcStages,
			DstStageMask:    d.DstStages,
			SrcAccessMask:   d.SrcAccess,
			DstAccessMask:   d.DstAccess,
			DependencyFlags: d.Flags,
		}
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func (d *VulkanDevice) CreateRenderPass(desc *gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	createInfo := renderPassCreateInfo(desc)

	out := &VulkanRenderPass{device: d, Name: desc.Name, AttachmentCount: createInfo.AttachmentCount}
	err := d.context.locks.SafeCall(RenderpassManagement, func() error {
		var handle vk.RenderPass
		if res := vk.CreateRenderPass(d.LogicalDevice, &createInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateRenderPass")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "render pass %s", desc.Name)
	}
	core.LogDebug("Vulkan render pass %s created with %d subpasses.", desc.Name, createInfo.SubpassCount)
	return out, nil
}

func (vr *VulkanRenderPass) Destroy() {
	if vr.Handle == nil {
		return
	}
	vr.device.context.locks.SafeCall(RenderpassManagement, func() error {
		vk.DestroyRenderPass(vr.device.LogicalDevice, vr.Handle, vr.device.context.Allocator)
		return nil
	})
	vr.Handle = nil
}
