package deferred

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRecipes(t *testing.T) {
	recipes := PipelineRecipes()
	require.Len(t, recipes, 3)

	gb := recipes[0]
	assert.Equal(t, PipelineGBuffer, gb.ID)
	assert.Equal(t, PassMain, gb.Pass)
	assert.Equal(t, uint32(0), gb.Config.Subpass)
	require.NotNil(t, gb.Config.Vertex)
	assert.Equal(t, uint32(32), gb.Config.Vertex.Stride)
	assert.Len(t, gb.Config.Vertex.Attributes, 2)
	assert.True(t, gb.Config.DepthTest)
	assert.Equal(t, uint32(3), gb.Config.ColorAttachments)
	assert.Equal(t, []SetID{SetGeometry}, gb.Sets)

	sh := recipes[1]
	assert.Equal(t, uint32(1), sh.Config.Subpass)
	assert.Nil(t, sh.Config.Vertex)
	assert.Equal(t, vk.CullModeFlags(vk.CullModeNone), sh.Config.CullMode)
	assert.True(t, sh.Config.Blend.Enabled)
	assert.Equal(t, vk.BlendFactorSrcAlpha, sh.Config.Blend.SrcColor)
	assert.Equal(t, vk.BlendFactorOne, sh.Config.Blend.DstColor)
	assert.Equal(t, vk.BlendFactorZero, sh.Config.Blend.DstAlpha)
	assert.Equal(t, []SetID{SetLightingUniforms, SetLightingInputs}, sh.Sets)

	pf := recipes[2]
	assert.Equal(t, PassPostFx, pf.Pass)
	assert.Equal(t, ShaderQuadVert, pf.Shaders[0].Name)
	assert.Equal(t, []SetID{SetPostFx}, pf.Sets)

	for _, r := range recipes {
		assert.Equal(t, uint32(PushConstantsSize), r.PushConstants.Size, r.ID.String())
		assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit), r.PushConstants.Stages)
	}
}

type registryFixture struct {
	dev     *fakeDevice
	shaders *fakeShaders
	binder  *Binder
	reg     *Registry
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{dev: newFakeDevice(), shaders: newFakeShaders()}
	f.binder = NewBinder(f.dev)
	require.NoError(t, f.binder.CreateLayouts())
	f.reg = NewRegistry(f.dev, f.shaders)
	require.NoError(t, f.reg.BuildPasses(vk.FormatD32Sfloat, vk.FormatB8g8r8a8Unorm))
	require.NoError(t, f.reg.BuildPipelines(f.binder))
	return f
}

func TestRegistryBuild(t *testing.T) {
	f := newRegistryFixture(t)
	assert.True(t, f.reg.HasPipelines())
	assert.Equal(t, 3, f.dev.live["pipeline"])
	assert.Equal(t, 3, f.dev.live["pipelinelayout"])
	// modules go away once the pipelines exist
	assert.Equal(t, 6, f.dev.created["shader"])
	assert.Equal(t, 0, f.dev.live["shader"])
	for _, name := range ShaderNames {
		assert.Equal(t, 1, f.shaders.loads[name], name)
	}

	for _, p := range f.dev.pipelines {
		switch p.cfg.Name {
		case "postfx":
			assert.Same(t, f.reg.Pass(PassPostFx), p.pass)
		default:
			assert.Same(t, f.reg.Pass(PassMain), p.pass)
		}
	}

	f.reg.DestroyPipelines()
	f.reg.DestroyPasses()
	f.binder.Destroy()
	assert.Empty(t, f.dev.leaks())
}

func TestRegistryBuildTwiceFails(t *testing.T) {
	f := newRegistryFixture(t)
	assert.Error(t, f.reg.BuildPipelines(f.binder))
}

func TestRegistryBuildWithoutPasses(t *testing.T) {
	dev := newFakeDevice()
	binder := NewBinder(dev)
	require.NoError(t, binder.CreateLayouts())
	reg := NewRegistry(dev, newFakeShaders())

	err := reg.BuildPipelines(binder)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.False(t, reg.HasPipelines())
	assert.Equal(t, 0, dev.live["pipelinelayout"])
}

func TestRegistryReloadRecreatesPipelines(t *testing.T) {
	f := newRegistryFixture(t)
	old := f.reg.Pipeline(PipelineShading)
	oldPipeline := old.Pipeline.(*fakePipeline)

	require.NoError(t, f.reg.Reload(f.binder))
	assert.True(t, oldPipeline.destroyed)
	assert.Equal(t, 3, f.dev.live["pipeline"])
	assert.Equal(t, 6, f.dev.created["pipeline"])
	assert.NotEqual(t, old.ID, f.reg.Pipeline(PipelineShading).ID)
	assert.Equal(t, 2, f.shaders.loads[ShaderShadingFrag])

	// the device drained before anything was destroyed
	idle := f.dev.indexOf("device:idle", 0)
	require.NotEqual(t, -1, idle)
	assert.Less(t, idle, f.dev.indexOf("destroy:pipeline", 0))
}

func TestRegistryReloadMissingShaderKeepsPipelines(t *testing.T) {
	f := newRegistryFixture(t)
	before := f.reg.Pipeline(PipelineGBuffer)
	f.shaders.missing[ShaderPostFxFrag] = true

	err := f.reg.Reload(f.binder)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Same(t, before, f.reg.Pipeline(PipelineGBuffer))
	assert.False(t, before.Pipeline.(*fakePipeline).destroyed)
	assert.Equal(t, 0, f.dev.count("destroy:pipeline"))
	assert.Equal(t, 0, f.dev.count("device:idle"))
}
