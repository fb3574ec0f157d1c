package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanFence struct {
	device     *VulkanDevice
	Handle     vk.Fence
	IsSignaled bool
}

type VulkanSemaphore struct {
	device *VulkanDevice
	Handle vk.Semaphore
}

func (d *VulkanDevice) CreateFence(signaled bool) (gpu.Fence, error) {
	fence := &VulkanFence{
		device: d,
		// Make sure to signal the fence if required.
		IsSignaled: signaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	err := d.context.locks.SafeCall(SynchronizationManagement, func() error {
		var pFence vk.Fence
		if res := vk.CreateFence(d.LogicalDevice, &fenceCreateInfo, d.context.Allocator, &pFence); res != vk.Success {
			return resultError(res, "vkCreateFence")
		}
		fence.Handle = pFence
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vf.device.context.locks.SafeCall(SynchronizationManagement, func() error {
			vk.DestroyFence(vf.device.LogicalDevice, vf.Handle, vf.device.context.Allocator)
			return nil
		})
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

func (d *VulkanDevice) WaitForFence(f gpu.Fence, timeout uint64) error {
	vf, ok := f.(*VulkanFence)
	if !ok {
		return errors.Newf("unexpected fence type %T", f)
	}
	// If already signaled, do not wait.
	if vf.IsSignaled {
		return nil
	}

	result := vk.WaitForFences(d.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeout)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return errors.Newf("fence wait timed out after %dns", timeout)
	default:
		return unexpectedResult(result, "vkWaitForFences")
	}
}

func (d *VulkanDevice) ResetFence(f gpu.Fence) error {
	vf, ok := f.(*VulkanFence)
	if !ok {
		return errors.Newf("unexpected fence type %T", f)
	}
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(d.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return resultError(res, "vkResetFences")
	}
	vf.IsSignaled = false
	return nil
}

func (d *VulkanDevice) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	out := &VulkanSemaphore{device: d}
	err := d.context.locks.SafeCall(SynchronizationManagement, func() error {
		var handle vk.Semaphore
		if res := vk.CreateSemaphore(d.LogicalDevice, &semaphoreCreateInfo, d.context.Allocator, &handle); res != vk.Success {
			return resultError(res, "vkCreateSemaphore")
		}
		out.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *VulkanSemaphore) Destroy() {
	if s.Handle == nil {
		return
	}
	s.device.context.locks.SafeCall(SynchronizationManagement, func() error {
		vk.DestroySemaphore(s.device.LogicalDevice, s.Handle, s.device.context.Allocator)
		return nil
	})
	s.Handle = nil
}

func semaphoreHandle(s gpu.Semaphore) (vk.Semaphore, error) {
	if s == nil {
		return vk.NullSemaphore, nil
	}
	vs, ok := s.(*VulkanSemaphore)
	if !ok {
		return vk.NullSemaphore, errors.Newf("unexpected semaphore type %T", s)
	}
	return vs.Handle, nil
}

func (d *VulkanDevice) Submit(info gpu.SubmitInfo) error {
	commandBuffers := make([]vk.CommandBuffer, len(info.Commands))
	for i, c := range info.Commands {
		cb, ok := c.(*VulkanCommandBuffer)
		if !ok {
			return errors.Newf("unexpected command buffer type %T", c)
		}
		commandBuffers[i] = cb.Handle
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(commandBuffers)),
		PCommandBuffers:    commandBuffers,
	}
	if info.Wait != nil {
		wait, err := semaphoreHandle(info.Wait)
		if err != nil {
			return err
		}
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{wait}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{info.WaitStage}
	}
	if info.Signal != nil {
		signal, err := semaphoreHandle(info.Signal)
		if err != nil {
			return err
		}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{signal}
	}

	fence := vk.NullFence
	var vf *VulkanFence
	if info.Fence != nil {
		var ok bool
		if vf, ok = info.Fence.(*VulkanFence); !ok {
			return errors.Newf("unexpected fence type %T", info.Fence)
		}
		fence = vf.Handle
	}

	err := d.context.locks.SafeQueueCall(uint32(d.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence); res != vk.Success {
			return resultError(res, "vkQueueSubmit")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if vf != nil {
		vf.IsSignaled = false
	}
	for _, c := range info.Commands {
		c.(*VulkanCommandBuffer).State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}
