package vulkan

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// VulkanDevice is the selected physical device, its logical device and
// queues. It is the production gpu.Device.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	// Device extensions enabled on the logical device.
	Extensions []string
}

var _ gpu.Device = (*VulkanDevice)(nil)

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

// Queue family indices, -1 when the family was not found.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func (q VulkanPhysicalDeviceQueueFamilyInfo) meets(req *VulkanPhysicalDeviceRequirements) bool {
	return (!req.Graphics || q.GraphicsFamilyIndex >= 0) &&
		(!req.Present || q.PresentFamilyIndex >= 0) &&
		(!req.Transfer || q.TransferFamilyIndex >= 0)
}

// shared reports whether one family already both draws and presents.
func (q VulkanPhysicalDeviceQueueFamilyInfo) shared() bool {
	return q.GraphicsFamilyIndex >= 0 && q.GraphicsFamilyIndex == q.PresentFamilyIndex
}

// uniqueFamilies lists the families that need a queue, without duplicates.
func (q VulkanPhysicalDeviceQueueFamilyInfo) uniqueFamilies() []uint32 {
	var out []uint32
	for _, idx := range []int32{q.GraphicsFamilyIndex, q.PresentFamilyIndex, q.TransferFamilyIndex} {
		if idx < 0 {
			continue
		}
		seen := false
		for _, o := range out {
			if o == uint32(idx) {
				seen = true
			}
		}
		if !seen {
			out = append(out, uint32(idx))
		}
	}
	return out
}

// DeviceCreate selects a physical device and creates the logical device, its
// queues and the graphics command pool.
func DeviceCreate(context *VulkanContext, preferredDevice int) error {
	context.Device = &VulkanDevice{
		context:            context,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		TransferQueueIndex: -1,
	}
	if err := SelectPhysicalDevice(context, preferredDevice); err != nil {
		return err
	}
	device := context.Device

	core.LogInfo("Creating logical device...")

	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: device.GraphicsQueueIndex,
		PresentFamilyIndex:  device.PresentQueueIndex,
		TransferFamilyIndex: device.TransferQueueIndex,
	}
	// NOTE: Do not create additional queues for shared indices.
	families := queueInfo.uniqueFamilies()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		context.locks.SetQueueFamily(family)
	}

	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return err
	}
	device.Extensions = []string{vk.KhrSwapchainExtensionName}
	for _, ext := range optionalDeviceExtensions {
		if containsString(available, ext) {
			core.LogInfo("Adding optional extension '%s'.", ext)
			device.Extensions = append(device.Extensions, ext)
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(device.Extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(device.Extensions),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical); res != vk.Success {
		return resultError(res, "vkCreateDevice")
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(logical, uint32(device.GraphicsQueueIndex), 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(logical, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	vk.GetDeviceQueue(logical, uint32(device.TransferQueueIndex), 0, &device.TransferQueue)
	core.LogInfo("Queues obtained.")

	// Command buffers are reset individually every frame.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(logical, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		return resultError(res, "vkCreateCommandPool")
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.TransferQueue = nil

	if device.GraphicsCommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = nil
	}

	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
	device.TransferQueueIndex = -1
	context.Device = nil
}

func deviceExtensions(physicalDevice vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return nil, resultError(res, "vkEnumerateDeviceExtensionProperties")
	}
	if count == 0 {
		return nil, nil
	}
	props := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, props); res != vk.Success {
		return nil, resultError(res, "vkEnumerateDeviceExtensionProperties")
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names, nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats); res != vk.Success {
			return resultError(res, "vkGetPhysicalDeviceSurfaceFormatsKHR")
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfacePresentModesKHR")
	}
	supportInfo.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, supportInfo.PresentModes); res != vk.Success {
			return resultError(res, "vkGetPhysicalDeviceSurfacePresentModesKHR")
		}
	}
	return nil
}

// SelectPhysicalDevice picks preferredDevice when it meets the requirements.
// Otherwise the first suitable discrete GPU wins, then any suitable device.
func SelectPhysicalDevice(context *VulkanContext, preferredDevice int) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError(res, "vkEnumeratePhysicalDevices")
	}
	if physicalDeviceCount == 0 {
		return errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError(res, "vkEnumeratePhysicalDevices")
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		DiscreteGPU:          runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	order := make([]int, 0, physicalDeviceCount)
	if preferredDevice >= 0 && preferredDevice < int(physicalDeviceCount) {
		order = append(order, preferredDevice)
	}
	for i := range physicalDevices {
		if i != preferredDevice {
			order = append(order, i)
		}
	}

	for pass := 0; pass < 2; pass++ {
		// The second pass accepts integrated GPUs.
		req := requirements
		if pass == 1 {
			req.DiscreteGPU = false
		}
		for _, i := range order {
			if trySelect(context, physicalDevices[i], &req) {
				core.LogInfo("Physical device %d selected.", i)
				return nil
			}
		}
	}
	return errors.New("no physical devices were found which meet the requirements")
}

func trySelect(context *VulkanContext, physicalDevice vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) bool {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
	properties.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
	features.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
	memory.Deref()

	var queueInfo VulkanPhysicalDeviceQueueFamilyInfo
	var support VulkanSwapchainSupportInfo
	if !PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, requirements, &queueInfo, &support) {
		return false
	}

	name := vk.ToString(properties.DeviceName[:])
	core.LogInfo("Selected device: '%s'.", name)
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}

	device := context.Device
	device.PhysicalDevice = physicalDevice
	device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
	device.PresentQueueIndex = queueInfo.PresentFamilyIndex
	device.TransferQueueIndex = queueInfo.TransferFamilyIndex
	device.SwapchainSupport = support
	device.Properties = properties
	device.Features = features
	device.Memory = memory
	return true
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	*outQueueInfo = VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1, -1}
	name := vk.ToString(properties.DeviceName[:])

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := queueFamilies[i].QueueFlags
		currentTransferScore := 0

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		present := supportsPresent == vk.True

		switch {
		case graphics && present && !outQueueInfo.shared():
			// A family that can both draw and present wins.
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			outQueueInfo.PresentFamilyIndex = int32(i)
		case graphics && outQueueInfo.GraphicsFamilyIndex < 0:
			outQueueInfo.GraphicsFamilyIndex = int32(i)
		case present && outQueueInfo.PresentFamilyIndex < 0:
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
		if graphics {
			currentTransferScore++
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			if outQueueInfo.ComputeFamilyIndex < 0 {
				outQueueInfo.ComputeFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		// Take the transfer index with the lowest score. This increases the
		// likelihood that it is a dedicated transfer queue.
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			outQueueInfo.TransferFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	core.LogDebug("%8d | %7d | %7d | %8d | %s",
		outQueueInfo.GraphicsFamilyIndex,
		outQueueInfo.PresentFamilyIndex,
		outQueueInfo.ComputeFamilyIndex,
		outQueueInfo.TransferFamilyIndex,
		name)

	if !outQueueInfo.meets(requirements) {
		return false
	}

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		core.LogWarn("Swapchain support query failed for '%s': %s", name, err)
		return false
	}
	if len(outSwapchainSupport.Formats) < 1 || len(outSwapchainSupport.PresentModes) < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(device)
		if err != nil {
			return false
		}
		for _, required := range requirements.DeviceExtensionNames {
			if !containsString(available, required) {
				core.LogInfo("Required extension not found: '%s', skipping device.", required)
				return false
			}
		}
	}
	return true
}

func (d *VulkanDevice) FormatSupported(format vk.Format, features vk.FormatFeatureFlags) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, format, &properties)
	properties.Deref()
	return properties.OptimalTilingFeatures&features == features
}

func (d *VulkanDevice) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(d.LogicalDevice), "vkDeviceWaitIdle")
}
