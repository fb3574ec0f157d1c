package gpu

import vk "github.com/goki/vulkan"

// AttachmentUsage is the set of roles an attachment image plays.
type AttachmentUsage uint8

const (
	UsageColor AttachmentUsage = 1 << iota
	UsageDepthStencil
	// UsageInput marks an attachment read by a later subpass of the same pass.
	UsageInput
	// UsageSampled marks an attachment sampled by a later pass.
	UsageSampled
)

func (u AttachmentUsage) Has(flag AttachmentUsage) bool {
	return u&flag != 0
}

// ImageUsage maps the roles onto Vulkan image usage bits.
func (u AttachmentUsage) ImageUsage() vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.Has(UsageColor) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(UsageDepthStencil) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(UsageInput) {
		flags |= vk.ImageUsageInputAttachmentBit
	}
	if u.Has(UsageSampled) {
		flags |= vk.ImageUsageSampledBit
	}
	return vk.ImageUsageFlags(flags)
}

// Aspect is the view aspect. Depth-stencil attachments are viewed through
// the depth aspect only so they can be read as input attachments.
func (u AttachmentUsage) Aspect() vk.ImageAspectFlags {
	if u.Has(UsageDepthStencil) {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// FinalLayout is the layout the image is left in when its pass ends.
func (u AttachmentUsage) FinalLayout() vk.ImageLayout {
	if u.Has(UsageDepthStencil) {
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

// AttachmentLayout is the layout used while the attachment is written.
func (u AttachmentUsage) AttachmentLayout() vk.ImageLayout {
	if u.Has(UsageDepthStencil) {
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutColorAttachmentOptimal
}

// AttachmentSpec names an attachment and fixes its format and roles.
type AttachmentSpec struct {
	Name   string
	Format vk.Format
	Usage  AttachmentUsage
}

// AttachmentDescriptor is the immutable record of a created attachment.
// Two descriptors built from the same spec and extent compare equal.
type AttachmentDescriptor struct {
	Name        string
	Format      vk.Format
	Usage       vk.ImageUsageFlags
	Aspect      vk.ImageAspectFlags
	Extent      vk.Extent2D
	FinalLayout vk.ImageLayout
}

func (s AttachmentSpec) Describe(extent vk.Extent2D) AttachmentDescriptor {
	return AttachmentDescriptor{
		Name:        s.Name,
		Format:      s.Format,
		Usage:       s.Usage.ImageUsage(),
		Aspect:      s.Usage.Aspect(),
		Extent:      extent,
		FinalLayout: s.Usage.FinalLayout(),
	}
}

// AttachmentDescription is how a render pass treats one attachment.
type AttachmentDescription struct {
	Format         vk.Format
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  vk.ImageLayout
	FinalLayout    vk.ImageLayout
}

type AttachmentRef struct {
	Index  uint32
	Layout vk.ImageLayout
}

type SubpassDescriptor struct {
	Colors []AttachmentRef
	Inputs []AttachmentRef
	Depth  *AttachmentRef
}

// Writes reports whether the subpass writes attachment index as color or depth.
func (s SubpassDescriptor) Writes(index uint32) (color, depth bool) {
	for _, c := range s.Colors {
		if c.Index == index {
			color = true
		}
	}
	if s.Depth != nil && s.Depth.Index == index {
		depth = true
	}
	return color, depth
}

// Dependency is an execution and memory dependency between two subpasses.
// vk.SubpassExternal stands for work outside the pass.
type Dependency struct {
	Src       uint32
	Dst       uint32
	SrcStages vk.PipelineStageFlags
	DstStages vk.PipelineStageFlags
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	Flags     vk.DependencyFlags
}

// RenderPassDescriptor is the full, backend independent description of a
// render pass. Build it with pure functions and check it with Validate.
type RenderPassDescriptor struct {
	Name         string
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescriptor
	Dependencies []Dependency
}

// VertexAttribute lives in binding 0.
type VertexAttribute struct {
	Location uint32
	Format   vk.Format
	Offset   uint32
}

// VertexLayout describes the single interleaved vertex binding.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// BlendState is applied to every color attachment of a pipeline.
type BlendState struct {
	Enabled  bool
	SrcColor vk.BlendFactor
	DstColor vk.BlendFactor
	ColorOp  vk.BlendOp
	SrcAlpha vk.BlendFactor
	DstAlpha vk.BlendFactor
	AlphaOp  vk.BlendOp
}

type PushConstantRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

// PipelineConfig is the fixed-function state of a graphics pipeline.
// A nil Vertex means no vertex input: the vertex shader generates positions.
type PipelineConfig struct {
	Name             string
	Subpass          uint32
	Vertex           *VertexLayout
	CullMode         vk.CullModeFlags
	DepthTest        bool
	DepthWrite       bool
	ColorAttachments uint32
	Blend            BlendState
}

type DescriptorBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlags
}

type DescriptorPoolSize struct {
	Type  vk.DescriptorType
	Count uint32
}

// DescriptorWrite points one binding at a resource. Buffer is used for buffer
// descriptors; View, Sampler and Layout for image descriptors.
type DescriptorWrite struct {
	Binding uint32
	Type    vk.DescriptorType
	Buffer  Buffer
	View    ImageView
	Sampler Sampler
	Layout  vk.ImageLayout
}

type SamplerSpec struct {
	Filter      vk.Filter
	AddressMode vk.SamplerAddressMode
	MipmapMode  vk.SamplerMipmapMode
	BorderColor vk.BorderColor
}

// ClearValue clears a color attachment, or a depth-stencil one when
// DepthStencil is set.
type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, DepthStencil: true}
}
