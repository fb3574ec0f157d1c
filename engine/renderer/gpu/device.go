// Package gpu defines the device abstraction the deferred renderer is written
// against. The production implementation lives in engine/renderer/vulkan.
package gpu

import vk "github.com/goki/vulkan"

// Destroyer is the interface that wraps the Destroy method.
// Objects implementing it own device memory that the GC does not
// manage, so Destroy must be called explicitly.
type Destroyer interface {
	Destroy()
}

// Device object handles. Each one is destroyed exactly once by its owner.
type (
	Image               interface{ Destroyer }
	Memory              interface{ Destroyer }
	ImageView           interface{ Destroyer }
	RenderPass          interface{ Destroyer }
	Framebuffer         interface{ Destroyer }
	ShaderModule        interface{ Destroyer }
	PipelineLayout      interface{ Destroyer }
	Pipeline            interface{ Destroyer }
	DescriptorSetLayout interface{ Destroyer }
	DescriptorPool      interface{ Destroyer }
	Sampler             interface{ Destroyer }
	Fence               interface{ Destroyer }
	Semaphore           interface{ Destroyer }
)

// DescriptorSet is released together with the pool it was allocated from.
type DescriptorSet interface{}

// Buffer is a device buffer.
type Buffer interface {
	Destroyer
	Size() uint64
}

// HostBuffer is a buffer whose memory stays mapped for CPU writes.
type HostBuffer interface {
	Buffer
	// Write copies data at offset into the mapped memory.
	Write(offset uint64, data []byte) error
}

// Device creates device objects and submits work.
// Methods are not safe for concurrent use unless noted.
type Device interface {
	// FormatSupported reports whether format has all features in
	// optimal tiling.
	FormatSupported(format vk.Format, features vk.FormatFeatureFlags) bool

	// CreateImage creates a 2D image for an attachment.
	CreateImage(spec AttachmentSpec, extent vk.Extent2D) (Image, error)
	// AllocateImageMemory allocates device-local memory and binds it to img.
	AllocateImageMemory(img Image) (Memory, error)
	// CreateImageView creates a view over the aspect implied by spec.
	CreateImageView(img Image, spec AttachmentSpec) (ImageView, error)

	CreateRenderPass(desc *RenderPassDescriptor) (RenderPass, error)
	CreateFramebuffer(pass RenderPass, views []ImageView, extent vk.Extent2D) (Framebuffer, error)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreatePipelineLayout(sets []DescriptorSetLayout, push []PushConstantRange) (PipelineLayout, error)
	// CreateGraphicsPipeline builds a pipeline for the given subpass of pass.
	// Viewport and scissor are always dynamic.
	CreateGraphicsPipeline(cfg *PipelineConfig, stages []ShaderStage, layout PipelineLayout, pass RenderPass) (Pipeline, error)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (DescriptorPool, error)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	// UpdateDescriptorSet overwrites the given bindings of set.
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)

	CreateSampler(spec SamplerSpec) (Sampler, error)
	CreateHostBuffer(size uint64, usage vk.BufferUsageFlags) (HostBuffer, error)

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	AllocateCommandBuffer() (CommandBuffer, error)

	// WaitForFence blocks until f is signaled or timeout (ns) expires.
	WaitForFence(f Fence, timeout uint64) error
	ResetFence(f Fence) error

	// Submit queues command buffers on the graphics queue.
	Submit(info SubmitInfo) error

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
}

// SubmitInfo describes one graphics queue submission.
type SubmitInfo struct {
	Commands  []CommandBuffer
	Wait      Semaphore
	WaitStage vk.PipelineStageFlags
	Signal    Semaphore
	Fence     Fence
}

// ShaderStage pairs a module with the stage it runs at. The entry point is "main".
type ShaderStage struct {
	Stage  vk.ShaderStageFlagBits
	Module ShaderModule
}

// CommandBuffer records commands for later submission. The call sequence for
// a render pass is BeginRenderPass, state and draw calls, NextSubpass as needed,
// then EndRenderPass.
type CommandBuffer interface {
	Reset() error
	Begin(flags vk.CommandBufferUsageFlags) error
	End() error

	SetViewport(viewport vk.Viewport)
	SetScissor(scissor vk.Rect2D)

	BeginRenderPass(pass RenderPass, fb Framebuffer, area vk.Rect2D, clears []ClearValue)
	NextSubpass()
	EndRenderPass()

	BindPipeline(p Pipeline)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets ...DescriptorSet)
	PushConstants(layout PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	BindVertexBuffer(b Buffer, offset uint64)
	// BindIndexBuffer binds 32-bit indices.
	BindIndexBuffer(b Buffer, offset uint64)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	// Free returns the command buffer to its pool.
	Free()
}

// SurfaceStatus is the outcome of an acquire or present.
type SurfaceStatus uint8

const (
	SurfaceOptimal SurfaceStatus = iota
	// SurfaceSuboptimal still presents correctly but should be rebuilt.
	SurfaceSuboptimal
	// SurfaceOutOfDate can no longer be presented to.
	SurfaceOutOfDate
)

func (s SurfaceStatus) String() string {
	switch s {
	case SurfaceOptimal:
		return "optimal"
	case SurfaceSuboptimal:
		return "suboptimal"
	case SurfaceOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// Surface is the presentable image pool.
type Surface interface {
	Format() vk.Format
	Extent() vk.Extent2D
	// ImageViews returns one view per presentable image, indexed by image index.
	ImageViews() []ImageView

	// Acquire requests the next presentable image, signaling signal once it
	// is ready. A non-nil error is unrecoverable.
	Acquire(signal Semaphore, timeout uint64) (uint32, SurfaceStatus, error)
	// Present queues imageIndex for display after wait is signaled.
	Present(imageIndex uint32, wait Semaphore) (SurfaceStatus, error)
	// WaitIdle drains the presentation queue.
	WaitIdle() error

	// Recreate rebuilds the image pool. desired is used when the platform
	// leaves the extent to the application. A zero surface extent returns
	// core.ErrSwapchainBooting and leaves the current pool in place.
	Recreate(desired vk.Extent2D) error
	Destroy()
}
