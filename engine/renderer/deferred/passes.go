package deferred

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// Attachment slots of the main pass, in framebuffer order.
const (
	AttachmentNormal uint32 = iota
	AttachmentTangent
	AttachmentAlbedo
	AttachmentDepth
	AttachmentResolved
	attachmentCount
)

// PassID names the render passes the renderer owns.
type PassID uint8

const (
	PassMain PassID = iota
	PassPostFx
)

func (p PassID) String() string {
	switch p {
	case PassMain:
		return "main"
	case PassPostFx:
		return "postfx"
	}
	return "unknown"
}

// GBufferAttachmentSpecs lists the off-screen attachments of the main pass.
func GBufferAttachmentSpecs(depthFormat vk.Format) []gpu.AttachmentSpec {
	return []gpu.AttachmentSpec{
		{Name: "normal", Format: NormalFormat, Usage: gpu.UsageColor | gpu.UsageInput},
		{Name: "tangent", Format: TangentFormat, Usage: gpu.UsageColor | gpu.UsageInput},
		{Name: "albedo", Format: AlbedoFormat, Usage: gpu.UsageColor | gpu.UsageInput},
		{Name: "depth", Format: depthFormat, Usage: gpu.UsageDepthStencil | gpu.UsageInput},
		{Name: "resolved", Format: ResolvedFormat, Usage: gpu.UsageColor | gpu.UsageSampled},
	}
}

// MainPassDescriptor builds the two-subpass main pass: subpass 0 fills the
// GBuffer, subpass 1 reads it back as input attachments and shades into the
// resolved attachment.
func MainPassDescriptor(specs []gpu.AttachmentSpec) *gpu.RenderPassDescriptor {
	attachments := make([]gpu.AttachmentDescription, len(specs))
	for i, s := range specs {
		attachments[i] = gpu.AttachmentDescription{
			Format:         s.Format,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    s.Usage.FinalLayout(),
		}
	}

	color := func(i uint32) gpu.AttachmentRef {
		return gpu.AttachmentRef{Index: i, Layout: vk.ImageLayoutColorAttachmentOptimal}
	}
	input := func(i uint32) gpu.AttachmentRef {
		return gpu.AttachmentRef{Index: i, Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	}

	return &gpu.RenderPassDescriptor{
		Name:        PassMain.String(),
		Attachments: attachments,
		Subpasses: []gpu.SubpassDescriptor{
			{
				Colors: []gpu.AttachmentRef{color(AttachmentNormal), color(AttachmentTangent), color(AttachmentAlbedo)},
				Depth:  &gpu.AttachmentRef{Index: AttachmentDepth, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal},
			},
			{
				Inputs: []gpu.AttachmentRef{input(AttachmentNormal), input(AttachmentTangent), input(AttachmentAlbedo), input(AttachmentDepth)},
				Colors: []gpu.AttachmentRef{color(AttachmentResolved)},
			},
		},
		Dependencies: []gpu.Dependency{
			{
				Src:       0,
				Dst:       1,
				SrcStages: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageLateFragmentTestsBit),
				DstStages: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
				SrcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
				DstAccess: vk.AccessFlags(vk.AccessInputAttachmentReadBit),
				Flags:     vk.DependencyFlags(vk.DependencyByRegionBit),
			},
			{
				Src:       1,
				Dst:       vk.SubpassExternal,
				SrcStages: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
				DstStages: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
				SrcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
				DstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
				Flags:     vk.DependencyFlags(vk.DependencyByRegionBit),
			},
		},
	}
}

// PostFxPassDescriptor builds the single-subpass pass that writes the
// presentable image. The previous content is never read.
func PostFxPassDescriptor(surfaceFormat vk.Format) *gpu.RenderPassDescriptor {
	return &gpu.RenderPassDescriptor{
		Name: PassPostFx.String(),
		Attachments: []gpu.AttachmentDescription{{
			Format:         surfaceFormat,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		}},
		Subpasses: []gpu.SubpassDescriptor{{
			Colors: []gpu.AttachmentRef{{Index: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}},
		}},
		Dependencies: []gpu.Dependency{{
			Src:       vk.SubpassExternal,
			Dst:       0,
			SrcStages: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStages: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccess: 0,
			DstAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			Flags:     vk.DependencyFlags(vk.DependencyByRegionBit),
		}},
	}
}

// MainPassClearValues clears the three color layers to opaque black, depth to
// 1 and the resolved target to opaque black.
func MainPassClearValues() []gpu.ClearValue {
	return []gpu.ClearValue{
		gpu.ClearColor(0, 0, 0, 1),
		gpu.ClearColor(0, 0, 0, 1),
		gpu.ClearColor(0, 0, 0, 1),
		gpu.ClearDepth(1, 0),
		gpu.ClearColor(0, 0, 0, 1),
	}
}

func PostFxClearValues() []gpu.ClearValue {
	return []gpu.ClearValue{gpu.ClearColor(0, 0, 0, 1)}
}
