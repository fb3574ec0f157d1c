package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// NOTE: 32 is the max number of ranges we can ever have, since only 128
// bytes with 4-byte alignment are guaranteed.
const maxPushConstantRanges = 32

/**
 * @brief Holds a Vulkan pipeline layout.
 */
type VulkanPipelineLayout struct {
	device *VulkanDevice
	Handle vk.PipelineLayout
}

/**
 * @brief Holds a Vulkan graphics pipeline.
 */
type VulkanPipeline struct {
	device *VulkanDevice
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The layout the pipeline was built against. */
	Layout *VulkanPipelineLayout
	Name   string
}

func (d *VulkanDevice) CreatePipelineLayout(sets []gpu.DescriptorSetLayout, push []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	if len(push) > maxPushConstantRanges {
		return nil, errors.Newf("cannot have more than %d push constant ranges, got %d", maxPushConstantRanges, len(push))
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		layout, ok := s.(*VulkanDescriptorSetLayout)
		if !ok {
			return nil, errors.Newf("unexpected descriptor set layout type %T", s)
		}
		setLayouts[i] = layout.Handle
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if len(push) > 0 {
		ranges := make([]vk.PushConstantRange, len(push))
		for i, r := range push {
			ranges[i] = vk.PushConstantRange{StageFlags: r.Stages, Offset: r.Offset, Size: r.Size}
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	out := &VulkanPipelineLayout{device: d}
	err := d.context.locks.SafeCall(PipelineManagement, func() error {
		var pPipelineLayout vk.PipelineLayout
		if res := vk.CreatePipelineLayout(d.LogicalDevice, &pipelineLayoutCreateInfo, d.context.Allocator, &pPipelineLayout); res != vk.Success {
			return resultError(res, "vkCreatePipelineLayout")
		}
		out.Handle = pPipelineLayout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *VulkanPipelineLayout) Destroy() {
	if l.Handle == nil {
		return
	}
	l.device.context.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipelineLayout(l.device.LogicalDevice, l.Handle, l.device.context.Allocator)
		return nil
	})
	l.Handle = nil
}

// vertexInputState describes binding 0, or no vertex input at all when the
// vertex shader generates its own positions.
func vertexInputState(layout *gpu.VertexLayout) vk.PipelineVertexInputStateCreateInfo {
	info := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if layout == nil {
		return info
	}

	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0, // Binding index
		Stride:    layout.Stride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
	for i, a := range layout.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   a.Format,
			Offset:   a.Offset,
		}
	}
	info.VertexBindingDescriptionCount = 1
	info.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDescription}
	info.VertexAttributeDescriptionCount = uint32(len(attributes))
	info.PVertexAttributeDescriptions = attributes
	return info
}

func colorBlendAttachment(blend gpu.BlendState) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if blend.Enabled {
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = blend.SrcColor
		state.DstColorBlendFactor = blend.DstColor
		state.ColorBlendOp = blend.ColorOp
		state.SrcAlphaBlendFactor = blend.SrcAlpha
		state.DstAlphaBlendFactor = blend.DstAlpha
		state.AlphaBlendOp = blend.AlphaOp
	}
	return state
}

func depthStencilState(cfg *gpu.PipelineConfig) vk.PipelineDepthStencilStateCreateInfo {
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if cfg.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
		depthStencil.DepthBoundsTestEnable = vk.False
	}
	if cfg.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}
	return depthStencil
}

func (d *VulkanDevice) CreateGraphicsPipeline(cfg *gpu.PipelineConfig, stages []gpu.ShaderStage, layout gpu.PipelineLayout, pass gpu.RenderPass) (gpu.Pipeline, error) {
	pipelineLayout, ok := layout.(*VulkanPipelineLayout)
	if !ok {
		return nil, errors.Newf("unexpected pipeline layout type %T", layout)
	}
	renderpass, ok := pass.(*VulkanRenderPass)
	if !ok {
		return nil, errors.Newf("unexpected render pass type %T", pass)
	}
	shaderStages, err := shaderStageCreateInfos(stages)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}

	// Viewport and scissor are set at record time.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cfg.CullMode,
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := depthStencilState(cfg)

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, cfg.ColorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = colorBlendAttachment(cfg.Blend)
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vertexInputState(cfg.Vertex)

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              pipelineLayout.Handle,
		RenderPass:          renderpass.Handle,
		Subpass:             cfg.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	outPipeline := &VulkanPipeline{device: d, Layout: pipelineLayout, Name: cfg.Name}
	err = d.context.locks.SafeCall(PipelineManagement, func() error {
		pPipelines := make([]vk.Pipeline, 1)
		res := vk.CreateGraphicsPipelines(
			d.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			d.context.Allocator,
			pPipelines)
		if res != vk.Success {
			return resultError(res, "vkCreateGraphicsPipelines")
		}
		outPipeline.Handle = pPipelines[0]
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}
	if outPipeline.Handle == nil {
		return nil, errors.Newf("pipeline %s: vulkan pipeline handle is nil", cfg.Name)
	}

	core.LogDebug("Graphics pipeline %s created for subpass %d.", cfg.Name, cfg.Subpass)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy() {
	if pipeline.Handle == nil {
		return
	}
	pipeline.device.context.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(pipeline.device.LogicalDevice, pipeline.Handle, pipeline.device.context.Allocator)
		return nil
	})
	pipeline.Handle = nil
}
