package deferred

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

const (
	NormalFormat   = vk.FormatR16g16b16a16Sfloat
	TangentFormat  = vk.FormatR16g16b16a16Sfloat
	AlbedoFormat   = vk.FormatR8g8b8a8Unorm
	ResolvedFormat = vk.FormatR8g8b8a8Srgb
)

var depthFormatsByName = map[string]vk.Format{
	"D32_SFLOAT":         vk.FormatD32Sfloat,
	"D32_SFLOAT_S8_UINT": vk.FormatD32SfloatS8Uint,
	"D24_UNORM_S8_UINT":  vk.FormatD24UnormS8Uint,
	"D16_UNORM_S8_UINT":  vk.FormatD16UnormS8Uint,
	"D16_UNORM":          vk.FormatD16Unorm,
}

// DefaultDepthCandidates is the depth preference order, highest precision first.
var DefaultDepthCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
	vk.FormatD16UnormS8Uint,
	vk.FormatD16Unorm,
}

// ParseDepthCandidates maps configured format names to formats, keeping the order.
func ParseDepthCandidates(names []string) ([]vk.Format, error) {
	formats := make([]vk.Format, 0, len(names))
	for _, name := range names {
		f, ok := depthFormatsByName[name]
		if !ok {
			return nil, errors.Newf("unknown depth format %q", name)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// ChooseDepthFormat returns the first candidate usable as an optimally tiled
// depth-stencil attachment.
func ChooseDepthFormat(dev gpu.Device, candidates []vk.Format) (vk.Format, error) {
	feature := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range candidates {
		if dev.FormatSupported(f, feature) {
			return f, nil
		}
	}
	return vk.FormatUndefined, core.Fatal(errors.Wrapf(core.ErrNoSupportedFormat, "tried %d candidates", len(candidates)))
}
