package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/deferred"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPassCreateInfoMainPass(t *testing.T) {
	desc := deferred.MainPassDescriptor(deferred.GBufferAttachmentSpecs(vk.FormatD32SfloatS8Uint))
	require.NoError(t, desc.Validate())

	info := renderPassCreateInfo(desc)
	assert.Equal(t, uint32(5), info.AttachmentCount)
	assert.Len(t, info.PAttachments, 5)
	for _, a := range info.PAttachments {
		assert.Equal(t, vk.SampleCount1Bit, a.Samples)
	}
	assert.Equal(t, vk.FormatD32SfloatS8Uint, info.PAttachments[deferred.AttachmentDepth].Format)

	require.Equal(t, uint32(2), info.SubpassCount)
	geometry := info.PSubpasses[0]
	assert.Equal(t, uint32(3), geometry.ColorAttachmentCount)
	assert.Zero(t, geometry.InputAttachmentCount)
	require.NotNil(t, geometry.PDepthStencilAttachment)
	assert.Equal(t, uint32(deferred.AttachmentDepth), geometry.PDepthStencilAttachment.Attachment)

	shading := info.PSubpasses[1]
	assert.Equal(t, uint32(4), shading.InputAttachmentCount)
	assert.Equal(t, uint32(1), shading.ColorAttachmentCount)
	assert.Equal(t, uint32(deferred.AttachmentResolved), shading.PColorAttachments[0].Attachment)
	assert.Nil(t, shading.PDepthStencilAttachment)

	require.Equal(t, uint32(2), info.DependencyCount)
	assert.Equal(t, uint32(0), info.PDependencies[0].SrcSubpass)
	assert.Equal(t, uint32(1), info.PDependencies[0].DstSubpass)
	assert.Equal(t, uint32(vk.SubpassExternal), info.PDependencies[1].DstSubpass)
}

func TestRenderPassCreateInfoPostFx(t *testing.T) {
	info := renderPassCreateInfo(deferred.PostFxPassDescriptor(vk.FormatB8g8r8a8Unorm))

	require.Len(t, info.PAttachments, 1)
	assert.Equal(t, vk.ImageLayoutPresentSrc, info.PAttachments[0].FinalLayout)
	assert.Equal(t, vk.AttachmentLoadOpDontCare, info.PAttachments[0].LoadOp)
	require.Len(t, info.PSubpasses, 1)
	assert.Nil(t, info.PSubpasses[0].PInputAttachments)
	assert.Equal(t, uint32(vk.SubpassExternal), info.PDependencies[0].SrcSubpass)
}
