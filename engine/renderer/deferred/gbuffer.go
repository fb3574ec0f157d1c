package deferred

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// Attachment is one off-screen image with its memory and view.
type Attachment struct {
	ID     core.Identifier
	Spec   gpu.AttachmentSpec
	Extent vk.Extent2D
	Image  gpu.Image
	Memory gpu.Memory
	View   gpu.ImageView
}

func (a *Attachment) destroy() {
	// view, image, memory
	if a.View != nil {
		a.View.Destroy()
		a.View = nil
	}
	if a.Image != nil {
		a.Image.Destroy()
		a.Image = nil
	}
	if a.Memory != nil {
		a.Memory.Destroy()
		a.Memory = nil
	}
	core.LogDebug("attachment %s (%s) destroyed", a.Spec.Name, a.ID.Short())
}

// GBuffer owns the swapchain-sized attachments, the main framebuffer that
// binds them and one post-fx framebuffer per presentable image.
// Everything here is rebuilt when the surface changes.
type GBuffer struct {
	dev         gpu.Device
	extent      vk.Extent2D
	attachments []*Attachment

	framebuffer       gpu.Framebuffer
	postFxFramebuffer []gpu.Framebuffer
}

func NewGBuffer(dev gpu.Device) *GBuffer {
	return &GBuffer{dev: dev}
}

// CreateAttachments creates one attachment per spec, in order. On failure the
// attachments created so far are destroyed.
func (g *GBuffer) CreateAttachments(specs []gpu.AttachmentSpec, extent vk.Extent2D) error {
	if len(g.attachments) != 0 {
		return errors.New("gbuffer attachments already exist")
	}
	for _, spec := range specs {
		a, err := g.createAttachment(spec, extent)
		if err != nil {
			g.DestroyAttachments()
			return core.Fatal(errors.Wrapf(err, "failed to create %s attachment", spec.Name))
		}
		g.attachments = append(g.attachments, a)
	}
	g.extent = extent
	return nil
}

func (g *GBuffer) createAttachment(spec gpu.AttachmentSpec, extent vk.Extent2D) (*Attachment, error) {
	a := &Attachment{ID: core.NewIdentifier(), Spec: spec, Extent: extent}
	var err error
	if a.Image, err = g.dev.CreateImage(spec, extent); err != nil {
		return nil, err
	}
	if a.Memory, err = g.dev.AllocateImageMemory(a.Image); err != nil {
		a.destroy()
		return nil, err
	}
	if a.View, err = g.dev.CreateImageView(a.Image, spec); err != nil {
		a.destroy()
		return nil, err
	}
	core.LogDebug("attachment %s (%s) created %dx%d", spec.Name, a.ID.Short(), extent.Width, extent.Height)
	return a, nil
}

// CreateFramebuffers binds the attachments to the main pass and each
// presentable view to the post-fx pass.
func (g *GBuffer) CreateFramebuffers(mainPass, postFxPass gpu.RenderPass, surfaceViews []gpu.ImageView) error {
	fb, err := g.dev.CreateFramebuffer(mainPass, g.Views(), g.extent)
	if err != nil {
		return core.Fatal(errors.Wrap(err, "failed to create main framebuffer"))
	}
	g.framebuffer = fb

	for i, view := range surfaceViews {
		fb, err := g.dev.CreateFramebuffer(postFxPass, []gpu.ImageView{view}, g.extent)
		if err != nil {
			g.DestroyFramebuffers()
			return core.Fatal(errors.Wrapf(err, "failed to create post-fx framebuffer %d", i))
		}
		g.postFxFramebuffer = append(g.postFxFramebuffer, fb)
	}
	return nil
}

// DestroyFramebuffers must run before the passes they reference are destroyed.
func (g *GBuffer) DestroyFramebuffers() {
	for _, fb := range g.postFxFramebuffer {
		fb.Destroy()
	}
	g.postFxFramebuffer = nil
	if g.framebuffer != nil {
		g.framebuffer.Destroy()
		g.framebuffer = nil
	}
}

// DestroyAttachments releases every attachment. Safe to call twice.
func (g *GBuffer) DestroyAttachments() {
	for _, a := range g.attachments {
		a.destroy()
	}
	g.attachments = nil
}

func (g *GBuffer) Extent() vk.Extent2D {
	return g.extent
}

func (g *GBuffer) Framebuffer() gpu.Framebuffer {
	return g.framebuffer
}

// PostFxFramebuffer returns the framebuffer wrapping presentable image index.
func (g *GBuffer) PostFxFramebuffer(index uint32) gpu.Framebuffer {
	if int(index) >= len(g.postFxFramebuffer) {
		return nil
	}
	return g.postFxFramebuffer[index]
}

func (g *GBuffer) Attachment(slot uint32) *Attachment {
	if int(slot) >= len(g.attachments) {
		return nil
	}
	return g.attachments[slot]
}

// Views returns the attachment views in framebuffer order.
func (g *GBuffer) Views() []gpu.ImageView {
	views := make([]gpu.ImageView, len(g.attachments))
	for i, a := range g.attachments {
		views[i] = a.View
	}
	return views
}

// InputViews are the attachments the lighting subpass reads.
func (g *GBuffer) InputViews() []gpu.ImageView {
	views := g.Views()
	if len(views) < int(AttachmentDepth)+1 {
		return nil
	}
	return views[AttachmentNormal : AttachmentDepth+1]
}

// Descriptors describes the live attachments. Rebuilding at the same extent
// yields an equal slice.
func (g *GBuffer) Descriptors() []gpu.AttachmentDescriptor {
	out := make([]gpu.AttachmentDescriptor, len(g.attachments))
	for i, a := range g.attachments {
		out[i] = a.Spec.Describe(a.Extent)
	}
	return out
}
