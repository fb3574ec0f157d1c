package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	device *VulkanDevice
	pool   vk.CommandPool
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

// AllocateCommandBuffer allocates a primary command buffer from the
// graphics command pool.
func (d *VulkanDevice) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		device: d,
		pool:   d.GraphicsCommandPool,
		State:  COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vCommandBuffer.pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	err := d.context.locks.SafeCall(CommandBufferManagement, func() error {
		buffers := make([]vk.CommandBuffer, 1)
		if res := vk.AllocateCommandBuffers(d.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
			return resultError(res, "vkAllocateCommandBuffers")
		}
		vCommandBuffer.Handle = buffers[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	v.device.context.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(v.device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError(res, "vkResetCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Begin(flags vk.CommandBufferUsageFlags) error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return errors.Newf("command buffer cannot begin from state %d", v.State)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultError(res, "vkBeginCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.New("command buffer ended inside a render pass")
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError(res, "vkEndCommandBuffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) SetViewport(viewport vk.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
}

func (v *VulkanCommandBuffer) SetScissor(scissor vk.Rect2D) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func clearValues(clears []gpu.ClearValue) []vk.ClearValue {
	out := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.DepthStencil {
			out[i].SetDepthStencil(c.Depth, c.Stencil)
			continue
		}
		out[i].SetColor(c.Color[:])
	}
	return out
}

func (v *VulkanCommandBuffer) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, area vk.Rect2D, clears []gpu.ClearValue) {
	renderpass, ok := pass.(*VulkanRenderPass)
	if !ok {
		core.LogError("BeginRenderPass: unexpected render pass type %T", pass)
		return
	}
	framebuffer, ok := fb.(*VulkanFramebuffer)
	if !ok {
		core.LogError("BeginRenderPass: unexpected framebuffer type %T", fb)
		return
	}

	values := clearValues(clears)
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      renderpass.Handle,
		Framebuffer:     framebuffer.Handle,
		RenderArea:      area,
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) NextSubpass() {
	vk.CmdNextSubpass(v.Handle, vk.SubpassContentsInline)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BindPipeline(p gpu.Pipeline) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok {
		core.LogError("BindPipeline: unexpected pipeline type %T", p)
		return
	}
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, first uint32, sets ...gpu.DescriptorSet) {
	pipelineLayout, ok := layout.(*VulkanPipelineLayout)
	if !ok {
		core.LogError("BindDescriptorSets: unexpected pipeline layout type %T", layout)
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := s.(*VulkanDescriptorSet)
		if !ok {
			core.LogError("BindDescriptorSets: unexpected descriptor set type %T", s)
			return
		}
		handles[i] = set.Handle
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, pipelineLayout.Handle, first, uint32(len(handles)), handles, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(layout gpu.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	pipelineLayout, ok := layout.(*VulkanPipelineLayout)
	if !ok {
		core.LogError("PushConstants: unexpected pipeline layout type %T", layout)
		return
	}
	vk.CmdPushConstants(v.Handle, pipelineLayout.Handle, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) BindVertexBuffer(b gpu.Buffer, offset uint64) {
	buffer, ok := b.(*VulkanBuffer)
	if !ok {
		core.LogError("BindVertexBuffer: unexpected buffer type %T", b)
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{buffer.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64) {
	buffer, ok := b.(*VulkanBuffer)
	if !ok {
		core.LogError("BindIndexBuffer: unexpected buffer type %T", b)
		return
	}
	vk.CmdBindIndexBuffer(v.Handle, buffer.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}
