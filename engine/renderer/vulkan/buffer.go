package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// VulkanBuffer is a host visible, host coherent buffer. Its memory stays
// mapped from creation until Destroy.
type VulkanBuffer struct {
	device *VulkanDevice
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Usage  vk.BufferUsageFlags
	size   uint64
	mapped unsafe.Pointer
}

func (d *VulkanDevice) CreateHostBuffer(size uint64, usage vk.BufferUsageFlags) (gpu.HostBuffer, error) {
	if size == 0 {
		return nil, errors.New("buffer size must be non-zero")
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	out := &VulkanBuffer{device: d, Usage: usage, size: size}
	err := d.context.locks.SafeCall(BufferManagement, func() error {
		var handle vk.Buffer
		if res := vk.CreateBuffer(d.LogicalDevice, &bufferInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateBuffer")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Ask device about its memory requirements.
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, out.Handle, &memReqs)
	memReqs.Deref()

	memoryType, err := d.context.FindMemoryIndex(memReqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		out.Destroy()
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryType,
	}
	err = d.context.locks.SafeCall(BufferManagement, func() error {
		var memory vk.DeviceMemory
		if res := vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.context.Allocator, &memory); res != vk.Success {
			return resultError(res, "vkAllocateMemory")
		}
		out.Memory = memory
		if res := vk.BindBufferMemory(d.LogicalDevice, out.Handle, memory, 0); res != vk.Success {
			return resultError(res, "vkBindBufferMemory")
		}
		var ptr unsafe.Pointer
		if res := vk.MapMemory(d.LogicalDevice, memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
			return resultError(res, "vkMapMemory")
		}
		out.mapped = ptr
		return nil
	})
	if err != nil {
		out.Destroy()
		return nil, err
	}
	return out, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return errors.New("buffer is not mapped")
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	if n := vk.Memcopy(unsafe.Add(b.mapped, offset), data); n != len(data) {
		return errors.Newf("copied %d of %d bytes", n, len(data))
	}
	return nil
}

func (b *VulkanBuffer) Destroy() {
	b.device.context.locks.SafeCall(BufferManagement, func() error {
		if b.mapped != nil {
			vk.UnmapMemory(b.device.LogicalDevice, b.Memory)
			b.mapped = nil
		}
		if b.Handle != nil {
			vk.DestroyBuffer(b.device.LogicalDevice, b.Handle, b.device.context.Allocator)
			b.Handle = nil
		}
		if b.Memory != nil {
			vk.FreeMemory(b.device.LogicalDevice, b.Memory, b.device.context.Allocator)
			b.Memory = nil
		}
		return nil
	})
	b.size = 0
}
