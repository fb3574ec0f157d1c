package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

/**
 * @brief The layout of one descriptor set.
 */
type VulkanDescriptorSetLayout struct {
	device *VulkanDevice
	Handle vk.DescriptorSetLayout
	/** @brief The bindings the layout was created with. */
	Bindings []gpu.DescriptorBinding
}

/**
 * @brief A descriptor pool. Sets allocated from it are released with it.
 */
type VulkanDescriptorPool struct {
	device  *VulkanDevice
	Handle  vk.DescriptorPool
	MaxSets uint32
	// Number of sets handed out so far.
	allocated uint32
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Layout *VulkanDescriptorSetLayout
}

type VulkanSampler struct {
	device *VulkanDevice
	Handle vk.Sampler
}

func descriptorSetLayoutBindings(bindings []gpu.DescriptorBinding) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: count,
			StageFlags:      b.Stages,
		}
	}
	return out
}

func (d *VulkanDevice) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	layoutBindings := descriptorSetLayoutBindings(bindings)
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	out := &VulkanDescriptorSetLayout{device: d, Bindings: append([]gpu.DescriptorBinding(nil), bindings...)}
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		var handle vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(d.LogicalDevice, &layoutInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateDescriptorSetLayout")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *VulkanDescriptorSetLayout) Destroy() {
	if l.Handle == nil {
		return
	}
	l.device.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorSetLayout(l.device.LogicalDevice, l.Handle, l.device.context.Allocator)
		return nil
	})
	l.Handle = nil
}

func (d *VulkanDevice) CreateDescriptorPool(sizes []gpu.DescriptorPoolSize, maxSets uint32) (gpu.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{Type: s.Type, DescriptorCount: s.Count}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       maxSets,
	}

	out := &VulkanDescriptorPool{device: d, MaxSets: maxSets}
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		var handle vk.DescriptorPool
		if res := vk.CreateDescriptorPool(d.LogicalDevice, &poolInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateDescriptorPool")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy releases the pool and every set allocated from it.
func (p *VulkanDescriptorPool) Destroy() {
	if p.Handle == nil {
		return
	}
	p.device.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(p.device.LogicalDevice, p.Handle, p.device.context.Allocator)
		return nil
	})
	p.Handle = nil
	p.allocated = 0
}

func (d *VulkanDevice) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	descriptorPool, ok := pool.(*VulkanDescriptorPool)
	if !ok {
		return nil, errors.Newf("unexpected descriptor pool type %T", pool)
	}
	setLayout, ok := layout.(*VulkanDescriptorSetLayout)
	if !ok {
		return nil, errors.Newf("unexpected descriptor set layout type %T", layout)
	}
	if descriptorPool.allocated >= descriptorPool.MaxSets {
		return nil, errors.Newf("descriptor pool exhausted after %d sets", descriptorPool.MaxSets)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     descriptorPool.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout.Handle},
	}

	out := &VulkanDescriptorSet{Layout: setLayout}
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		sets := make([]vk.DescriptorSet, 1)
		if res := vk.AllocateDescriptorSets(d.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
			return resultError(res, "vkAllocateDescriptorSets")
		}
		out.Handle = sets[0]
		descriptorPool.allocated++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func descriptorWrite(set vk.DescriptorSet, w gpu.DescriptorWrite) (vk.WriteDescriptorSet, error) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      w.Binding,
		DstArrayElement: 0,
		DescriptorType:  w.Type,
		DescriptorCount: 1,
	}

	switch w.Type {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
		buffer, ok := w.Buffer.(*VulkanBuffer)
		if !ok {
			return write, errors.Newf("binding %d: unexpected buffer type %T", w.Binding, w.Buffer)
		}
		write.PBufferInfo = []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(buffer.Size()),
		}}
	default:
		imageInfo := vk.DescriptorImageInfo{ImageLayout: w.Layout}
		if w.View != nil {
			view, ok := w.View.(*VulkanImageView)
			if !ok {
				return write, errors.Newf("binding %d: unexpected image view type %T", w.Binding, w.View)
			}
			imageInfo.ImageView = view.Handle
		}
		if w.Sampler != nil {
			sampler, ok := w.Sampler.(*VulkanSampler)
			if !ok {
				return write, errors.Newf("binding %d: unexpected sampler type %T", w.Binding, w.Sampler)
			}
			imageInfo.Sampler = sampler.Handle
		}
		write.PImageInfo = []vk.DescriptorImageInfo{imageInfo}
	}
	return write, nil
}

func (d *VulkanDevice) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	descriptorSet, ok := set.(*VulkanDescriptorSet)
	if !ok {
		core.LogError("UpdateDescriptorSet: unexpected descriptor set type %T", set)
		return
	}

	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write, err := descriptorWrite(descriptorSet.Handle, w)
		if err != nil {
			core.LogError("UpdateDescriptorSet: %v", err)
			continue
		}
		descriptorWrites = append(descriptorWrites, write)
	}
	if len(descriptorWrites) == 0 {
		return
	}

	d.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
		return nil
	})
}

func samplerCreateInfo(spec gpu.SamplerSpec) vk.SamplerCreateInfo {
	return vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               spec.Filter,
		MinFilter:               spec.Filter,
		AddressModeU:            spec.AddressMode,
		AddressModeV:            spec.AddressMode,
		AddressModeW:            spec.AddressMode,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             spec.BorderColor,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              spec.MipmapMode,
		MipLodBias:              0.0,
		MinLod:                  0.0,
		MaxLod:                  1.0,
	}
}

func (d *VulkanDevice) CreateSampler(spec gpu.SamplerSpec) (gpu.Sampler, error) {
	createInfo := samplerCreateInfo(spec)

	out := &VulkanSampler{device: d}
	err := d.context.locks.SafeCall(SamplerManagement, func() error {
		var handle vk.Sampler
		if res := vk.CreateSampler(d.LogicalDevice, &createInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateSampler")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *VulkanSampler) Destroy() {
	if s.Handle == nil {
		return
	}
	s.device.context.locks.SafeCall(SamplerManagement, func() error {
		vk.DestroySampler(s.device.LogicalDevice, s.Handle, s.device.context.Allocator)
		return nil
	})
	s.Handle = nil
}
