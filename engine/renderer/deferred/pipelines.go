package deferred

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// ShaderSource loads compiled SPIR-V by shader name (e.g. "gbuffer.vert").
type ShaderSource interface {
	Load(name string) ([]uint32, error)
}

// LayoutSource resolves descriptor set layouts for pipeline layouts.
type LayoutSource interface {
	Layout(id SetID) gpu.DescriptorSetLayout
}

type PipelineID uint8

const (
	PipelineGBuffer PipelineID = iota
	PipelineShading
	PipelinePostFx
)

func (p PipelineID) String() string {
	switch p {
	case PipelineGBuffer:
		return "gbuffer"
	case PipelineShading:
		return "shading"
	case PipelinePostFx:
		return "postfx"
	}
	return "unknown"
}

const (
	ShaderGBufferVert = "gbuffer.vert"
	ShaderGBufferFrag = "gbuffer.frag"
	ShaderShadingVert = "shading.vert"
	ShaderShadingFrag = "shading.frag"
	ShaderQuadVert    = "quad3_vert.vert"
	ShaderPostFxFrag  = "postfx.frag"
)

// ShaderNames lists every shader the renderer loads.
var ShaderNames = []string{
	ShaderGBufferVert, ShaderGBufferFrag,
	ShaderShadingVert, ShaderShadingFrag,
	ShaderQuadVert, ShaderPostFxFrag,
}

type ShaderRef struct {
	Stage vk.ShaderStageFlagBits
	Name  string
}

// PipelineRecipe is everything needed to (re)build one pipeline.
type PipelineRecipe struct {
	ID            PipelineID
	Pass          PassID
	Config        gpu.PipelineConfig
	Shaders       []ShaderRef
	Sets          []SetID
	PushConstants gpu.PushConstantRange
}

// MeshVertexLayout is the packed vertex: position+normal and texcoord+tangent,
// two vec4 each.
var MeshVertexLayout = gpu.VertexLayout{
	Stride: 32,
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},
		{Location: 1, Format: vk.FormatR32g32b32a32Sfloat, Offset: 16},
	},
}

var pushConstantRange = gpu.PushConstantRange{
	Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	Offset: 0,
	Size:   PushConstantsSize,
}

// PipelineRecipes returns the geometry, shading and post-fx recipes in build order.
func PipelineRecipes() []PipelineRecipe {
	layout := MeshVertexLayout
	return []PipelineRecipe{
		{
			ID:   PipelineGBuffer,
			Pass: PassMain,
			Config: gpu.PipelineConfig{
				Name:             PipelineGBuffer.String(),
				Subpass:          0,
				Vertex:           &layout,
				CullMode:         vk.CullModeFlags(vk.CullModeBackBit),
				DepthTest:        true,
				DepthWrite:       true,
				ColorAttachments: 3,
			},
			Shaders: []ShaderRef{
				{Stage: vk.ShaderStageVertexBit, Name: ShaderGBufferVert},
				{Stage: vk.ShaderStageFragmentBit, Name: ShaderGBufferFrag},
			},
			Sets:          []SetID{SetGeometry},
			PushConstants: pushConstantRange,
		},
		{
			ID:   PipelineShading,
			Pass: PassMain,
			Config: gpu.PipelineConfig{
				Name:             PipelineShading.String(),
				Subpass:          1,
				CullMode:         vk.CullModeFlags(vk.CullModeNone),
				ColorAttachments: 1,
				Blend: gpu.BlendState{
					Enabled:  true,
					SrcColor: vk.BlendFactorSrcAlpha,
					DstColor: vk.BlendFactorOne,
					ColorOp:  vk.BlendOpAdd,
					SrcAlpha: vk.BlendFactorOne,
					DstAlpha: vk.BlendFactorZero,
					AlphaOp:  vk.BlendOpAdd,
				},
			},
			Shaders: []ShaderRef{
				{Stage: vk.ShaderStageVertexBit, Name: ShaderShadingVert},
				{Stage: vk.ShaderStageFragmentBit, Name: ShaderShadingFrag},
			},
			Sets:          []SetID{SetLightingUniforms, SetLightingInputs},
			PushConstants: pushConstantRange,
		},
		{
			ID:   PipelinePostFx,
			Pass: PassPostFx,
			Config: gpu.PipelineConfig{
				Name:             PipelinePostFx.String(),
				Subpass:          0,
				CullMode:         vk.CullModeFlags(vk.CullModeNone),
				ColorAttachments: 1,
			},
			Shaders: []ShaderRef{
				{Stage: vk.ShaderStageVertexBit, Name: ShaderQuadVert},
				{Stage: vk.ShaderStageFragmentBit, Name: ShaderPostFxFrag},
			},
			Sets:          []SetID{SetPostFx},
			PushConstants: pushConstantRange,
		},
	}
}

// PipelineObject is a pipeline and the layout created with it. They are
// always destroyed and recreated together.
type PipelineObject struct {
	ID       core.Identifier
	Recipe   PipelineRecipe
	Layout   gpu.PipelineLayout
	Pipeline gpu.Pipeline
}

func (p *PipelineObject) destroy() {
	if p.Pipeline != nil {
		p.Pipeline.Destroy()
		p.Pipeline = nil
	}
	if p.Layout != nil {
		p.Layout.Destroy()
		p.Layout = nil
	}
	core.LogDebug("pipeline %s (%s) destroyed", p.Recipe.ID, p.ID.Short())
}

// Registry owns the render passes and the pipelines built against them.
type Registry struct {
	dev       gpu.Device
	shaders   ShaderSource
	recipes   []PipelineRecipe
	passes    map[PassID]gpu.RenderPass
	pipelines map[PipelineID]*PipelineObject
}

func NewRegistry(dev gpu.Device, shaders ShaderSource) *Registry {
	return &Registry{
		dev:       dev,
		shaders:   shaders,
		recipes:   PipelineRecipes(),
		passes:    make(map[PassID]gpu.RenderPass),
		pipelines: make(map[PipelineID]*PipelineObject),
	}
}

// BuildPasses validates and creates the main and post-fx passes.
func (r *Registry) BuildPasses(depthFormat, surfaceFormat vk.Format) error {
	descs := map[PassID]*gpu.RenderPassDescriptor{
		PassMain:   MainPassDescriptor(GBufferAttachmentSpecs(depthFormat)),
		PassPostFx: PostFxPassDescriptor(surfaceFormat),
	}
	for _, id := range []PassID{PassMain, PassPostFx} {
		desc := descs[id]
		if err := desc.Validate(); err != nil {
			r.DestroyPasses()
			return core.Fatal(err)
		}
		pass, err := r.dev.CreateRenderPass(desc)
		if err != nil {
			r.DestroyPasses()
			return core.Fatal(errors.Wrapf(err, "failed to create %s render pass", id))
		}
		r.passes[id] = pass
		core.LogDebug("render pass %s built", id)
	}
	return nil
}

func (r *Registry) Pass(id PassID) gpu.RenderPass {
	return r.passes[id]
}

func (r *Registry) DestroyPasses() {
	for _, id := range []PassID{PassMain, PassPostFx} {
		if pass, ok := r.passes[id]; ok {
			pass.Destroy()
			delete(r.passes, id)
			core.LogDebug("render pass %s destroyed", id)
		}
	}
}

func (r *Registry) Pipeline(id PipelineID) *PipelineObject {
	return r.pipelines[id]
}

// HasPipelines reports whether the pipelines are currently built.
func (r *Registry) HasPipelines() bool {
	return len(r.pipelines) != 0
}

// loadShaders reads every stage of every recipe. It has no side effects on
// the device.
func (r *Registry) loadShaders() (map[string][]uint32, error) {
	code := make(map[string][]uint32)
	for _, recipe := range r.recipes {
		for _, ref := range recipe.Shaders {
			if _, ok := code[ref.Name]; ok {
				continue
			}
			spv, err := r.shaders.Load(ref.Name)
			if err != nil {
				return nil, core.Fatal(errors.Wrapf(err, "failed to load shader %s for %s", ref.Name, recipe.ID))
			}
			code[ref.Name] = spv
		}
	}
	return code, nil
}

// BuildPipelines creates every pipeline. The passes must exist.
func (r *Registry) BuildPipelines(layouts LayoutSource) error {
	code, err := r.loadShaders()
	if err != nil {
		return err
	}
	return r.buildPipelines(layouts, code)
}

func (r *Registry) buildPipelines(layouts LayoutSource, code map[string][]uint32) error {
	if r.HasPipelines() {
		return errors.New("pipelines already built")
	}
	for _, recipe := range r.recipes {
		p, err := r.buildPipeline(recipe, layouts, code)
		if err != nil {
			r.DestroyPipelines()
			return core.Fatal(errors.Wrapf(err, "failed to build %s pipeline", recipe.ID))
		}
		r.pipelines[recipe.ID] = p
		core.LogDebug("pipeline %s (%s) built", recipe.ID, p.ID.Short())
	}
	return nil
}

func (r *Registry) buildPipeline(recipe PipelineRecipe, layouts LayoutSource, code map[string][]uint32) (*PipelineObject, error) {
	pass := r.passes[recipe.Pass]
	if pass == nil {
		return nil, errors.Newf("render pass %s not built", recipe.Pass)
	}

	setLayouts := make([]gpu.DescriptorSetLayout, len(recipe.Sets))
	for i, id := range recipe.Sets {
		if setLayouts[i] = layouts.Layout(id); setLayouts[i] == nil {
			return nil, errors.Newf("descriptor set layout %s missing", id)
		}
	}

	p := &PipelineObject{ID: core.NewIdentifier(), Recipe: recipe}
	layout, err := r.dev.CreatePipelineLayout(setLayouts, []gpu.PushConstantRange{recipe.PushConstants})
	if err != nil {
		return nil, err
	}
	p.Layout = layout

	stages := make([]gpu.ShaderStage, 0, len(recipe.Shaders))
	// modules are only needed while the pipeline is created
	defer func() {
		for _, s := range stages {
			s.Module.Destroy()
		}
	}()
	for _, ref := range recipe.Shaders {
		module, err := r.dev.CreateShaderModule(code[ref.Name])
		if err != nil {
			p.destroy()
			return nil, errors.Wrapf(err, "shader module %s", ref.Name)
		}
		stages = append(stages, gpu.ShaderStage{Stage: ref.Stage, Module: module})
	}

	cfg := recipe.Config
	pipeline, err := r.dev.CreateGraphicsPipeline(&cfg, stages, layout, pass)
	if err != nil {
		p.destroy()
		return nil, err
	}
	p.Pipeline = pipeline
	return p, nil
}

// DestroyPipelines destroys every pipeline together with its layout.
func (r *Registry) DestroyPipelines() {
	for _, recipe := range r.recipes {
		if p, ok := r.pipelines[recipe.ID]; ok {
			p.destroy()
			delete(r.pipelines, recipe.ID)
		}
	}
}

// Reload rebuilds every pipeline from freshly loaded SPIR-V. The shaders are
// read first so a missing file leaves the current pipelines untouched.
func (r *Registry) Reload(layouts LayoutSource) error {
	code, err := r.loadShaders()
	if err != nil {
		return err
	}
	if err := r.dev.WaitIdle(); err != nil {
		return core.Fatal(errors.Wrap(err, "wait idle before shader reload"))
	}
	r.DestroyPipelines()
	return r.buildPipelines(layouts, code)
}
