package vulkan

/** @brief Entry point of every shader stage. */
const ShaderEntryPoint = "main\x00"

/** @brief The Khronos validation layer, enabled by the renderer.validation setting. */
const ValidationLayerName = "VK_LAYER_KHRONOS_validation"

/**
 * @brief Optional device extensions. They are enabled when the device
 * reports them and ignored otherwise.
 */
var optionalDeviceExtensions = []string{
	"VK_KHR_shader_non_semantic_info",
	"VK_KHR_portability_subset",
}

const engineName = "Deferred"
