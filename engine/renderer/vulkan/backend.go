package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// WindowSurface is the platform window as seen by the backend.
type WindowSurface interface {
	// RequiredInstanceExtensions lists the extensions the window system needs.
	RequiredInstanceExtensions() []string
	// CreateSurface creates the presentation surface for instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	// InstanceProcAddr is the loader entry point, or nil for the default one.
	InstanceProcAddr() unsafe.Pointer
}

type Settings struct {
	ApplicationName string
	Validation      bool
	VSync           bool
	// DeviceID is the preferred physical device index, -1 for automatic.
	DeviceID int
}

// Backend owns the instance level Vulkan objects and the logical device.
type Backend struct {
	settings Settings
	window   WindowSurface
	context  *VulkanContext
}

func New(settings Settings, window WindowSurface) *Backend {
	return &Backend{
		settings: settings,
		window:   window,
		context: &VulkanContext{
			// TODO: custom allocator.
			Allocator: nil,
			locks:     NewVulkanLockPool(),
		},
	}
}

func (b *Backend) Initialize() error {
	if procAddr := b.window.InstanceProcAddr(); procAddr != nil {
		vk.SetGetInstanceProcAddr(procAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return core.Fatal(errors.Wrap(err, "no Vulkan loader"))
	}
	if err := vk.Init(); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to initialize vk"))
	}

	if err := b.createInstance(); err != nil {
		return core.Fatal(err)
	}

	// Debugger
	if b.settings.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, b.context.Allocator, &dbg)); err != nil {
			// Validation output is optional; rendering works without it.
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			b.context.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := b.window.CreateSurface(b.context.Instance)
	if err != nil {
		return core.Fatal(errors.Wrap(err, "failed to create platform surface"))
	}
	b.context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(b.context, b.settings.DeviceID); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to create device"))
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return nil
}

func (b *Backend) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.settings.ApplicationName),
		PEngineName:        VulkanSafeString(engineName),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	for _, ext := range b.window.RequiredInstanceExtensions() {
		if !containsString(requiredExtensions, ext) {
			requiredExtensions = append(requiredExtensions, ext)
		}
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if b.settings.Validation {
		if b.validationLayerPresent() {
			layers = append(layers, ValidationLayerName)
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation requested but %s is not installed, continuing without it.", ValidationLayerName)
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); res != vk.Success {
		return resultError(res, "vkCreateInstance")
	}
	b.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "failed to load instance functions")
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (b *Backend) validationLayerPresent() bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == ValidationLayerName {
			return true
		}
	}
	return false
}

// Device returns the logical device. It is nil before Initialize.
func (b *Backend) Device() gpu.Device {
	if b.context.Device == nil {
		return nil
	}
	return b.context.Device
}

// CreateSwapchain creates the presentation surface the renderer draws to.
func (b *Backend) CreateSwapchain(extent vk.Extent2D) (gpu.Surface, error) {
	if b.context.Device == nil {
		return nil, core.ErrNotInitialized
	}
	return NewSwapchain(b.context.Device, extent, b.settings.VSync)
}

// Shutdown destroys the device and instance objects in reverse creation
// order. The swapchain must already be gone.
func (b *Backend) Shutdown() {
	if b.context.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(b.context)
	}

	if b.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
		b.context.Surface = vk.NullSurface
	}

	if b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}

	if b.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
