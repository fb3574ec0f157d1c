package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/deferred"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recipe(t *testing.T, id deferred.PipelineID) deferred.PipelineRecipe {
	t.Helper()
	for _, r := range deferred.PipelineRecipes() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no recipe %s", id)
	return deferred.PipelineRecipe{}
}

func TestVertexInputStateMesh(t *testing.T) {
	cfg := recipe(t, deferred.PipelineGBuffer).Config
	info := vertexInputState(cfg.Vertex)

	require.Equal(t, uint32(1), info.VertexBindingDescriptionCount)
	assert.Equal(t, uint32(32), info.PVertexBindingDescriptions[0].Stride)
	assert.Equal(t, vk.VertexInputRateVertex, info.PVertexBindingDescriptions[0].InputRate)
	require.Equal(t, uint32(2), info.VertexAttributeDescriptionCount)
	assert.Equal(t, uint32(16), info.PVertexAttributeDescriptions[1].Offset)
	assert.Equal(t, uint32(1), info.PVertexAttributeDescriptions[1].Location)
}

func TestVertexInputStateFullscreen(t *testing.T) {
	info := vertexInputState(recipe(t, deferred.PipelinePostFx).Config.Vertex)
	assert.Zero(t, info.VertexBindingDescriptionCount)
	assert.Zero(t, info.VertexAttributeDescriptionCount)
	assert.Nil(t, info.PVertexBindingDescriptions)
}

func TestColorBlendAttachment(t *testing.T) {
	off := colorBlendAttachment(gpu.BlendState{})
	assert.Equal(t, vk.Bool32(vk.False), off.BlendEnable)
	assert.NotZero(t, off.ColorWriteMask)

	on := colorBlendAttachment(recipe(t, deferred.PipelineShading).Config.Blend)
	assert.Equal(t, vk.Bool32(vk.True), on.BlendEnable)
	assert.Equal(t, vk.BlendFactorSrcAlpha, on.SrcColorBlendFactor)
	assert.Equal(t, vk.BlendFactorOne, on.DstColorBlendFactor)
	assert.Equal(t, vk.BlendOpAdd, on.AlphaBlendOp)
}

func TestDepthStencilState(t *testing.T) {
	geometryCfg := recipe(t, deferred.PipelineGBuffer).Config
	geometry := depthStencilState(&geometryCfg)
	assert.Equal(t, vk.Bool32(vk.True), geometry.DepthTestEnable)
	assert.Equal(t, vk.Bool32(vk.True), geometry.DepthWriteEnable)
	assert.Equal(t, vk.CompareOpLess, geometry.DepthCompareOp)

	shadingCfg := recipe(t, deferred.PipelineShading).Config
	shading := depthStencilState(&shadingCfg)
	assert.Equal(t, vk.Bool32(vk.False), shading.DepthTestEnable)
	assert.Equal(t, vk.Bool32(vk.False), shading.DepthWriteEnable)
}

func TestDescriptorSetLayoutBindings(t *testing.T) {
	bindings := descriptorSetLayoutBindings(deferred.SetBindings(deferred.SetLightingInputs))
	require.Len(t, bindings, 4)
	for i, b := range bindings {
		assert.Equal(t, uint32(i), b.Binding)
		assert.Equal(t, vk.DescriptorTypeInputAttachment, b.DescriptorType)
		assert.Equal(t, uint32(1), b.DescriptorCount)
	}

	// A zero count still declares one descriptor.
	single := descriptorSetLayoutBindings([]gpu.DescriptorBinding{{Binding: 2, Type: vk.DescriptorTypeUniformBuffer}})
	assert.Equal(t, uint32(1), single[0].DescriptorCount)
}

func TestSamplerCreateInfo(t *testing.T) {
	info := samplerCreateInfo(gpu.SamplerSpec{
		Filter:      vk.FilterLinear,
		AddressMode: vk.SamplerAddressModeClampToEdge,
		MipmapMode:  vk.SamplerMipmapModeLinear,
		BorderColor: vk.BorderColorFloatOpaqueBlack,
	})
	assert.Equal(t, vk.FilterLinear, info.MagFilter)
	assert.Equal(t, vk.FilterLinear, info.MinFilter)
	assert.Equal(t, vk.SamplerAddressModeClampToEdge, info.AddressModeW)
	assert.Equal(t, vk.CompareOpAlways, info.CompareOp)
}
