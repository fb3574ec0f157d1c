package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", VulkanResultString(vk.Success, false))
	assert.Equal(t, "VK_ERROR_DEVICE_LOST The logical or physical device has been lost", VulkanResultString(vk.ErrorDeviceLost, true))
	assert.Equal(t, "VK_RESULT_UNKNOWN", VulkanResultString(vk.Result(424242), true))
}

func TestVulkanResultIsSuccess(t *testing.T) {
	assert.True(t, VulkanResultIsSuccess(vk.Success))
	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDate))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDeviceMemory))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(vk.Success, "vkCreateFence"))

	err := resultError(vk.ErrorOutOfHostMemory, "vkCreateFence")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vkCreateFence")
	assert.Contains(t, err.Error(), "VK_ERROR_OUT_OF_HOST_MEMORY")
	assert.False(t, errors.Is(err, core.ErrDeviceLost))

	lost := resultError(vk.ErrorDeviceLost, "vkQueueSubmit")
	assert.True(t, errors.Is(lost, core.ErrDeviceLost))
}

func TestUnexpectedResult(t *testing.T) {
	err := unexpectedResult(vk.Timeout, "vkAcquireNextImageKHR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_TIMEOUT")

	assert.True(t, errors.Is(unexpectedResult(vk.ErrorDeviceLost, "vkQueuePresentKHR"), core.ErrDeviceLost))
}

func TestVulkanSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}, out)
	assert.Equal(t, "VK_KHR_surface", in[0])
}
