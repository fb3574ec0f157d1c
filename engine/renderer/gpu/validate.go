package gpu

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var ErrInvalidRenderPass = errors.New("invalid render pass descriptor")

// Validate checks that every attachment reference is in range and that every
// input attachment read in a subpass is produced by an earlier subpass and
// covered by a dependency from that subpass.
func (d *RenderPassDescriptor) Validate() error {
	if len(d.Attachments) == 0 {
		return errors.Wrapf(ErrInvalidRenderPass, "%s: no attachments", d.Name)
	}
	if len(d.Subpasses) == 0 {
		return errors.Wrapf(ErrInvalidRenderPass, "%s: no subpasses", d.Name)
	}

	count := uint32(len(d.Attachments))
	for i, sp := range d.Subpasses {
		refs := append(append([]AttachmentRef(nil), sp.Colors...), sp.Inputs...)
		if sp.Depth != nil {
			refs = append(refs, *sp.Depth)
		}
		for _, ref := range refs {
			if ref.Index >= count {
				return errors.Wrapf(ErrInvalidRenderPass, "%s: subpass %d references attachment %d of %d", d.Name, i, ref.Index, count)
			}
		}
	}

	subpasses := uint32(len(d.Subpasses))
	for _, dep := range d.Dependencies {
		if (dep.Src != vk.SubpassExternal && dep.Src >= subpasses) || (dep.Dst != vk.SubpassExternal && dep.Dst >= subpasses) {
			return errors.Wrapf(ErrInvalidRenderPass, "%s: dependency %d->%d out of range", d.Name, dep.Src, dep.Dst)
		}
		if dep.Src != vk.SubpassExternal && dep.Dst != vk.SubpassExternal && dep.Src > dep.Dst {
			return errors.Wrapf(ErrInvalidRenderPass, "%s: dependency %d->%d goes backwards", d.Name, dep.Src, dep.Dst)
		}
	}

	for n, sp := range d.Subpasses {
		for _, in := range sp.Inputs {
			if err := d.checkInput(uint32(n), in.Index); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *RenderPassDescriptor) checkInput(subpass, index uint32) error {
	for m := int(subpass) - 1; m >= 0; m-- {
		color, depth := d.Subpasses[m].Writes(index)
		if !color && !depth {
			continue
		}
		writeAccess := vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		if depth {
			writeAccess = vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		}
		for _, dep := range d.Dependencies {
			if dep.Src != uint32(m) || dep.Dst != subpass {
				continue
			}
			if dep.SrcAccess&writeAccess != 0 &&
				dep.DstAccess&vk.AccessFlags(vk.AccessInputAttachmentReadBit) != 0 &&
				dep.DstStages&vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) != 0 {
				return nil
			}
		}
		return errors.Wrapf(ErrInvalidRenderPass, "%s: no dependency %d->%d covers input attachment %d", d.Name, m, subpass, index)
	}
	return errors.Wrapf(ErrInvalidRenderPass, "%s: subpass %d reads attachment %d that no earlier subpass writes", d.Name, subpass, index)
}
