package deferred

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// SetID names the descriptor sets the pipelines bind.
type SetID uint8

const (
	// SetGeometry holds the uniform block and the mesh info storage buffer.
	SetGeometry SetID = iota
	SetLightingUniforms
	// SetLightingInputs holds the GBuffer input attachments.
	SetLightingInputs
	// SetPostFx holds the uniform block and the sampled resolved image.
	SetPostFx
	setCount
)

func (s SetID) String() string {
	switch s {
	case SetGeometry:
		return "geometry"
	case SetLightingUniforms:
		return "lighting-uniforms"
	case SetLightingInputs:
		return "lighting-inputs"
	case SetPostFx:
		return "postfx"
	}
	return "unknown"
}

var (
	vertexFragment = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	fragment       = vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
)

// SetBindings returns the layout bindings of a set.
func SetBindings(id SetID) []gpu.DescriptorBinding {
	switch id {
	case SetGeometry:
		return []gpu.DescriptorBinding{
			{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1, Stages: vertexFragment},
			{Binding: 1, Type: vk.DescriptorTypeStorageBuffer, Count: 1, Stages: vertexFragment},
		}
	case SetLightingUniforms:
		return []gpu.DescriptorBinding{
			{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1, Stages: vertexFragment},
		}
	case SetLightingInputs:
		bindings := make([]gpu.DescriptorBinding, 4)
		for i := range bindings {
			bindings[i] = gpu.DescriptorBinding{Binding: uint32(i), Type: vk.DescriptorTypeInputAttachment, Count: 1, Stages: fragment}
		}
		return bindings
	case SetPostFx:
		return []gpu.DescriptorBinding{
			{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1, Stages: fragment},
			{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Count: 1, Stages: fragment},
		}
	}
	return nil
}

// PoolSizes sums the descriptor counts of every set, in first-seen type order.
func PoolSizes() ([]gpu.DescriptorPoolSize, uint32) {
	var sizes []gpu.DescriptorPoolSize
	index := make(map[vk.DescriptorType]int)
	for id := SetID(0); id < setCount; id++ {
		for _, b := range SetBindings(id) {
			i, ok := index[b.Type]
			if !ok {
				i = len(sizes)
				index[b.Type] = i
				sizes = append(sizes, gpu.DescriptorPoolSize{Type: b.Type})
			}
			sizes[i].Count += b.Count
		}
	}
	return sizes, uint32(setCount)
}

// BindingResources are the objects the sets point at.
type BindingResources struct {
	Uniforms gpu.Buffer
	MeshInfo gpu.Buffer
	// Inputs are the normal, tangent, albedo and depth views.
	Inputs   []gpu.ImageView
	Resolved gpu.ImageView
	Sampler  gpu.Sampler
}

// Binder owns the descriptor pool, the set layouts and the sets.
// Layouts live for the renderer's lifetime; sets are allocated once and
// rewritten in place when the attachments change.
type Binder struct {
	dev     gpu.Device
	pool    gpu.DescriptorPool
	layouts map[SetID]gpu.DescriptorSetLayout
	sets    map[SetID]gpu.DescriptorSet
}

func NewBinder(dev gpu.Device) *Binder {
	return &Binder{
		dev:     dev,
		layouts: make(map[SetID]gpu.DescriptorSetLayout),
		sets:    make(map[SetID]gpu.DescriptorSet),
	}
}

// CreateLayouts creates the pool and one layout per set.
func (b *Binder) CreateLayouts() error {
	sizes, maxSets := PoolSizes()
	pool, err := b.dev.CreateDescriptorPool(sizes, maxSets)
	if err != nil {
		return core.Fatal(errors.Wrap(err, "failed to create descriptor pool"))
	}
	b.pool = pool

	for id := SetID(0); id < setCount; id++ {
		layout, err := b.dev.CreateDescriptorSetLayout(SetBindings(id))
		if err != nil {
			b.Destroy()
			return core.Fatal(errors.Wrapf(err, "failed to create %s set layout", id))
		}
		b.layouts[id] = layout
	}
	return nil
}

func (b *Binder) Layout(id SetID) gpu.DescriptorSetLayout {
	return b.layouts[id]
}

func (b *Binder) Set(id SetID) gpu.DescriptorSet {
	return b.sets[id]
}

// Sets returns the sets in the given order, for binding.
func (b *Binder) Sets(ids ...SetID) []gpu.DescriptorSet {
	out := make([]gpu.DescriptorSet, len(ids))
	for i, id := range ids {
		out[i] = b.sets[id]
	}
	return out
}

// Allocated reports whether the sets exist.
func (b *Binder) Allocated() bool {
	return len(b.sets) == int(setCount)
}

// Allocate allocates every set and points it at res.
func (b *Binder) Allocate(res BindingResources) error {
	if b.pool == nil {
		return errors.New("descriptor layouts not created")
	}
	if b.Allocated() {
		return errors.New("descriptor sets already allocated")
	}
	for id := SetID(0); id < setCount; id++ {
		set, err := b.dev.AllocateDescriptorSet(b.pool, b.layouts[id])
		if err != nil {
			return core.Fatal(errors.Wrapf(err, "failed to allocate %s set", id))
		}
		b.sets[id] = set
	}
	b.WriteGeometry(res)
	b.dev.UpdateDescriptorSet(b.sets[SetLightingUniforms], []gpu.DescriptorWrite{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Buffer: res.Uniforms},
	})
	return b.Rewrite(res)
}

// WriteGeometry points the geometry set at the uniform and mesh info buffers.
func (b *Binder) WriteGeometry(res BindingResources) {
	b.dev.UpdateDescriptorSet(b.sets[SetGeometry], []gpu.DescriptorWrite{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Buffer: res.Uniforms},
		{Binding: 1, Type: vk.DescriptorTypeStorageBuffer, Buffer: res.MeshInfo},
	})
}

// Rewrite points the attachment-dependent sets at new views. The sets keep
// their identity.
func (b *Binder) Rewrite(res BindingResources) error {
	if !b.Allocated() {
		return errors.New("descriptor sets not allocated")
	}
	if len(res.Inputs) != 4 {
		return errors.Newf("expected 4 input attachments, got %d", len(res.Inputs))
	}
	inputs := make([]gpu.DescriptorWrite, len(res.Inputs))
	for i, view := range res.Inputs {
		inputs[i] = gpu.DescriptorWrite{
			Binding: uint32(i),
			Type:    vk.DescriptorTypeInputAttachment,
			View:    view,
			Layout:  vk.ImageLayoutShaderReadOnlyOptimal,
		}
	}
	b.dev.UpdateDescriptorSet(b.sets[SetLightingInputs], inputs)
	b.dev.UpdateDescriptorSet(b.sets[SetPostFx], []gpu.DescriptorWrite{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Buffer: res.Uniforms},
		{
			Binding: 1,
			Type:    vk.DescriptorTypeCombinedImageSampler,
			View:    res.Resolved,
			Sampler: res.Sampler,
			Layout:  vk.ImageLayoutShaderReadOnlyOptimal,
		},
	})
	return nil
}

// Destroy releases the layouts and the pool, which frees the sets.
func (b *Binder) Destroy() {
	for id, layout := range b.layouts {
		layout.Destroy()
		delete(b.layouts, id)
	}
	if b.pool != nil {
		b.pool.Destroy()
		b.pool = nil
	}
	b.sets = make(map[SetID]gpu.DescriptorSet)
}
