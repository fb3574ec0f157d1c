package deferred

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// FrameInputs is everything a frame's command buffer references.
type FrameInputs struct {
	Extent            vk.Extent2D
	MainPass          gpu.RenderPass
	MainFramebuffer   gpu.Framebuffer
	PostFxPass        gpu.RenderPass
	PostFxFramebuffer gpu.Framebuffer

	GBuffer *PipelineObject
	Shading *PipelineObject
	PostFx  *PipelineObject

	GeometrySets []gpu.DescriptorSet
	ShadingSets  []gpu.DescriptorSet
	PostFxSets   []gpu.DescriptorSet

	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	Instances    []renderer.Instance
}

func (in *FrameInputs) validate() error {
	switch {
	case in.MainPass == nil || in.PostFxPass == nil:
		return errors.New("render passes missing")
	case in.MainFramebuffer == nil || in.PostFxFramebuffer == nil:
		return errors.New("framebuffers missing")
	case in.GBuffer == nil || in.Shading == nil || in.PostFx == nil:
		return errors.New("pipelines missing")
	case in.VertexBuffer == nil || in.IndexBuffer == nil:
		return errors.New("geometry buffers missing")
	}
	return nil
}

// fullscreen push block; the full-screen passes only read the instance id.
var fullscreenPush = PushConstants{Model: mgl32.Ident4(), Color: meshColors[0]}

// RecordFrame records the main pass (geometry then lighting subpass) and
// the post-fx pass into cb.
func RecordFrame(cb gpu.CommandBuffer, in *FrameInputs) error {
	if err := in.validate(); err != nil {
		return core.Fatal(errors.Wrap(err, "cannot record frame"))
	}
	if err := cb.Reset(); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to reset command buffer"))
	}
	if err := cb.Begin(vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to begin command buffer"))
	}

	area := vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: in.Extent}
	cb.SetViewport(vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(in.Extent.Width),
		Height:   float32(in.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cb.SetScissor(area)

	stages := pushConstantRange.Stages

	cb.BeginRenderPass(in.MainPass, in.MainFramebuffer, area, MainPassClearValues())
	{
		cb.BindPipeline(in.GBuffer.Pipeline)
		cb.BindDescriptorSets(in.GBuffer.Layout, 0, in.GeometrySets...)
		cb.BindVertexBuffer(in.VertexBuffer, 0)
		cb.BindIndexBuffer(in.IndexBuffer, 0)

		for i, inst := range in.Instances {
			push := InstancePushConstants(i, inst)
			cb.PushConstants(in.GBuffer.Layout, stages, 0, push.Bytes())
			cb.DrawIndexed(inst.IndexCount, 1, inst.IndexOffset, inst.VertexOffset, 0)
		}

		cb.NextSubpass()

		cb.BindPipeline(in.Shading.Pipeline)
		cb.BindDescriptorSets(in.Shading.Layout, 0, in.ShadingSets...)
		cb.PushConstants(in.Shading.Layout, stages, 0, fullscreenPush.Bytes())
		cb.Draw(3, 1, 0, 0)
	}
	cb.EndRenderPass()

	cb.BeginRenderPass(in.PostFxPass, in.PostFxFramebuffer, area, PostFxClearValues())
	{
		cb.BindPipeline(in.PostFx.Pipeline)
		cb.PushConstants(in.PostFx.Layout, stages, 0, fullscreenPush.Bytes())
		cb.BindDescriptorSets(in.PostFx.Layout, 0, in.PostFxSets...)
		cb.Draw(3, 1, 0, 0)
	}
	cb.EndRenderPass()

	if err := cb.End(); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to record command buffer"))
	}
	return nil
}
