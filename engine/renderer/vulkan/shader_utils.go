package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

/**
 * @brief Represents a compiled SPIR-V module.
 */
type VulkanShaderModule struct {
	device *VulkanDevice
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
}

func (d *VulkanDevice) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	if len(code) == 0 {
		return nil, errors.New("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// Size is in bytes.
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}

	out := &VulkanShaderModule{device: d}
	err := d.context.locks.SafeCall(ShaderManagement, func() error {
		var handle vk.ShaderModule
		if res := vk.CreateShaderModule(d.LogicalDevice, &createInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateShaderModule")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *VulkanShaderModule) Destroy() {
	if m.Handle == nil {
		return
	}
	m.device.context.locks.SafeCall(ShaderManagement, func() error {
		vk.DestroyShaderModule(m.device.LogicalDevice, m.Handle, m.device.context.Allocator)
		return nil
	})
	m.Handle = nil
}

// shaderStageCreateInfos builds the stage array of a graphics pipeline.
func shaderStageCreateInfos(stages []gpu.ShaderStage) ([]vk.PipelineShaderStageCreateInfo, error) {
	out := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		module, ok := s.Module.(*VulkanShaderModule)
		if !ok {
			return nil, errors.Newf("unexpected shader module type %T", s.Module)
		}
		out[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  s.Stage,
			Module: module.Handle,
			PName:  ShaderEntryPoint,
		}
	}
	return out, nil
}
