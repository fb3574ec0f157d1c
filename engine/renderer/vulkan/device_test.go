package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFamilyInfoUniqueFamilies(t *testing.T) {
	shared := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: 0, PresentFamilyIndex: 0, ComputeFamilyIndex: 0, TransferFamilyIndex: 1}
	assert.Equal(t, []uint32{0, 1}, shared.uniqueFamilies())
	assert.True(t, shared.shared())

	split := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: 0, PresentFamilyIndex: 2, ComputeFamilyIndex: -1, TransferFamilyIndex: 2}
	assert.Equal(t, []uint32{0, 2}, split.uniqueFamilies())
	assert.False(t, split.shared())
}

func TestQueueFamilyInfoMissingFamilies(t *testing.T) {
	none := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1, ComputeFamilyIndex: -1, TransferFamilyIndex: -1}
	// Two missing families are not a shared one.
	assert.False(t, none.shared())
	assert.Empty(t, none.uniqueFamilies())

	req := &VulkanPhysicalDeviceRequirements{Graphics: true, Present: true, Transfer: true}
	assert.False(t, none.meets(req))

	partial := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: 0, PresentFamilyIndex: 0, ComputeFamilyIndex: -1, TransferFamilyIndex: -1}
	assert.False(t, partial.meets(req))
	assert.True(t, partial.meets(&VulkanPhysicalDeviceRequirements{Graphics: true, Present: true}))
}
