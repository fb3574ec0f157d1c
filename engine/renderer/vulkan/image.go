package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanImage struct {
	device *VulkanDevice
	Handle vk.Image
	Format vk.Format
	Width  uint32
	Height uint32
}

type VulkanMemory struct {
	device *VulkanDevice
	Handle vk.DeviceMemory
	Size   vk.DeviceSize
}

type VulkanImageView struct {
	device *VulkanDevice
	Handle vk.ImageView
	// Views handed out by the swapchain are destroyed by it.
	owned bool
}

func (d *VulkanDevice) CreateImage(spec gpu.AttachmentSpec, extent vk.Extent2D) (gpu.Image, error) {
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    spec.Format,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1, // TODO: Support configurable depth.
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         spec.Usage.ImageUsage(),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	out := &VulkanImage{device: d, Format: spec.Format, Width: extent.Width, Height: extent.Height}
	err := d.context.locks.SafeCall(ImageManagement, func() error {
		var handle vk.Image
		if res := vk.CreateImage(d.LogicalDevice, &imageCreateInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateImage")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", spec.Name)
	}
	return out, nil
}

func (d *VulkanDevice) AllocateImageMemory(img gpu.Image) (gpu.Memory, error) {
	image, ok := img.(*VulkanImage)
	if !ok {
		return nil, errors.Newf("unexpected image type %T", img)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := d.context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}

	out := &VulkanMemory{device: d, Size: memoryRequirements.Size}
	err = d.context.locks.SafeCall(ImageManagement, func() error {
		var memory vk.DeviceMemory
		if res := vk.AllocateMemory(d.LogicalDevice, &memoryAllocateInfo, d.context.Allocator, &memory); res != vk.Success {
			return resultError(res, "vkAllocateMemory")
		}
		// TODO: configurable memory offset.
		if res := vk.BindImageMemory(d.LogicalDevice, image.Handle, memory, 0); res != vk.Success {
			vk.FreeMemory(d.LogicalDevice, memory, d.context.Allocator)
			return resultError(res, "vkBindImageMemory")
		}
		out.Handle = memory
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *VulkanDevice) CreateImageView(img gpu.Image, spec gpu.AttachmentSpec) (gpu.ImageView, error) {
	image, ok := img.(*VulkanImage)
	if !ok {
		return nil, errors.Newf("unexpected image type %T", img)
	}
	return d.createImageView(image.Handle, spec.Format, spec.Usage.Aspect(), true)
}

func (d *VulkanDevice) createImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, owned bool) (*VulkanImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	out := &VulkanImageView{device: d, owned: owned}
	err := d.context.locks.SafeCall(ImageManagement, func() error {
		var view vk.ImageView
		if res := vk.CreateImageView(d.LogicalDevice, &viewCreateInfo, d.context.Allocator, &view); res != vk.Success {
			return resultError(res, "vkCreateImageView")
		}
		out.Handle = view
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (i *VulkanImage) Destroy() {
	if i.Handle == nil {
		return
	}
	i.device.context.locks.SafeCall(ImageManagement, func() error {
		vk.DestroyImage(i.device.LogicalDevice, i.Handle, i.device.context.Allocator)
		return nil
	})
	i.Handle = nil
	i.Width = 0
	i.Height = 0
}

func (m *VulkanMemory) Destroy() {
	if m.Handle == nil {
		return
	}
	m.device.context.locks.SafeCall(ImageManagement, func() error {
		vk.FreeMemory(m.device.LogicalDevice, m.Handle, m.device.context.Allocator)
		return nil
	})
	m.Handle = nil
}

func (v *VulkanImageView) Destroy() {
	if v.Handle == nil || !v.owned {
		return
	}
	v.destroy()
}

func (v *VulkanImageView) destroy() {
	v.device.context.locks.SafeCall(ImageManagement, func() error {
		vk.DestroyImageView(v.device.LogicalDevice, v.Handle, v.device.context.Allocator)
		return nil
	})
	v.Handle = nil
}
