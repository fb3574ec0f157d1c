package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	emath "github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// VulkanSwapchain is the presentable image pool of the window surface.
type VulkanSwapchain struct {
	device *VulkanDevice
	VSync  bool

	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Handle      vk.Swapchain
	ImageExtent vk.Extent2D
	Images      []vk.Image
	Views       []*VulkanImageView
}

var _ gpu.Surface = (*VulkanSwapchain)(nil)

// chooseSurfaceFormat prefers BGRA8 UNORM in the sRGB nonlinear space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, format := range formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode returns FIFO when vsync is on. Otherwise the lowest
// latency mode available wins.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	presentMode := vk.PresentModeFifo
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
		if mode == vk.PresentModeImmediate {
			presentMode = mode
		}
	}
	return presentMode
}

func chooseExtent(capabilities vk.SurfaceCapabilities, desired vk.Extent2D) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	low := capabilities.MinImageExtent
	high := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  emath.Clamp(desired.Width, low.Width, high.Width),
		Height: emath.Clamp(desired.Height, low.Height, high.Height),
	}
}

func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func NewSwapchain(device *VulkanDevice, desired vk.Extent2D, vsync bool) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{device: device, VSync: vsync}
	if err := swapchain.create(desired); err != nil {
		return nil, err
	}
	return swapchain, nil
}

func (vs *VulkanSwapchain) create(desired vk.Extent2D) error {
	device := vs.device
	context := device.context

	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return err
	}
	support := device.SwapchainSupport

	imageFormat, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		return err
	}
	presentMode := choosePresentMode(support.PresentModes, vs.VSync)
	extent := chooseExtent(support.Capabilities, desired)
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Wrapf(core.ErrSwapchainBooting, "surface extent is %dx%d", extent.Width, extent.Height)
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      imageFormat.Format,
		ImageColorSpace:  imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vs.Handle,
	}
	if vs.Handle == nil {
		swapchainCreateInfo.OldSwapchain = vk.NullSwapchain
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	err = context.locks.SafeCall(SwapchainManagement, func() error {
		if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
			return resultError(res, "vkCreateSwapchainKHR")
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The old swapchain is retired once its replacement exists.
	vs.destroy()
	vs.Handle = swapchainHandle
	vs.ImageFormat = imageFormat
	vs.PresentMode = presentMode
	vs.ImageExtent = extent

	// Images
	var imageCount uint32
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &imageCount, nil); res != vk.Success {
		return resultError(res, "vkGetSwapchainImagesKHR")
	}
	vs.Images = make([]vk.Image, imageCount)
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &imageCount, vs.Images); res != vk.Success {
		return resultError(res, "vkGetSwapchainImagesKHR")
	}

	// Views
	vs.Views = make([]*VulkanImageView, 0, imageCount)
	for _, image := range vs.Images {
		view, err := device.createImageView(image, imageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit), false)
		if err != nil {
			return errors.Wrap(err, "swapchain image view")
		}
		vs.Views = append(vs.Views, view)
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.", extent.Width, extent.Height, imageCount, presentMode)
	return nil
}

func (vs *VulkanSwapchain) Format() vk.Format {
	return vs.ImageFormat.Format
}

func (vs *VulkanSwapchain) Extent() vk.Extent2D {
	return vs.ImageExtent
}

func (vs *VulkanSwapchain) ImageViews() []gpu.ImageView {
	views := make([]gpu.ImageView, len(vs.Views))
	for i, v := range vs.Views {
		views[i] = v
	}
	return views
}

func (vs *VulkanSwapchain) Acquire(signal gpu.Semaphore, timeout uint64) (uint32, gpu.SurfaceStatus, error) {
	semaphore, err := semaphoreHandle(signal)
	if err != nil {
		return 0, gpu.SurfaceOptimal, err
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(vs.device.LogicalDevice, vs.Handle, timeout, semaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, gpu.SurfaceOptimal, nil
	case vk.Suboptimal:
		return imageIndex, gpu.SurfaceSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, gpu.SurfaceOutOfDate, nil
	default:
		return 0, gpu.SurfaceOptimal, unexpectedResult(result, "vkAcquireNextImageKHR")
	}
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait gpu.Semaphore) (gpu.SurfaceStatus, error) {
	semaphore, err := semaphoreHandle(wait)
	if err != nil {
		return gpu.SurfaceOptimal, err
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{semaphore}
	}

	var result vk.Result
	vs.device.context.locks.SafeQueueCall(uint32(vs.device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(vs.device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return gpu.SurfaceOptimal, nil
	case vk.Suboptimal:
		return gpu.SurfaceSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gpu.SurfaceOutOfDate, nil
	default:
		return gpu.SurfaceOptimal, unexpectedResult(result, "vkQueuePresentKHR")
	}
}

func (vs *VulkanSwapchain) WaitIdle() error {
	return vs.device.context.locks.SafeQueueCall(uint32(vs.device.PresentQueueIndex), func() error {
		return resultError(vk.QueueWaitIdle(vs.device.PresentQueue), "vkQueueWaitIdle")
	})
}

func (vs *VulkanSwapchain) Recreate(desired vk.Extent2D) error {
	return vs.create(desired)
}

func (vs *VulkanSwapchain) Destroy() {
	vs.destroy()
	vs.ImageExtent = vk.Extent2D{}
}

// destroy releases the views and the handle. Images are owned by the
// swapchain and go with it.
func (vs *VulkanSwapchain) destroy() {
	for _, view := range vs.Views {
		view.destroy()
	}
	vs.Views = nil
	vs.Images = nil

	if vs.Handle == nil {
		return
	}
	handle := vs.Handle
	vs.device.context.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(vs.device.LogicalDevice, handle, vs.device.context.Allocator)
		return nil
	})
	vs.Handle = nil
}
