package deferred

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rendererFixture struct {
	dev     *fakeDevice
	surface *fakeSurface
	shaders *fakeShaders
	overlay *fakeOverlay
	r       *Renderer
}

func newRendererFixture(t *testing.T, withOverlay bool) *rendererFixture {
	t.Helper()
	f := &rendererFixture{
		dev:     newFakeDevice(),
		shaders: newFakeShaders(),
	}
	f.surface = newFakeSurface(f.dev, 800, 600)

	var opts []Option
	if withOverlay {
		// owned by the overlay, not the device
		f.overlay = &fakeOverlay{cb: &fakeCommandBuffer{fakeObj: &fakeObj{dev: f.dev, kind: "overlay"}}}
		opts = append(opts, WithOverlay(f.overlay))
	}
	f.r = New(DefaultSettings(), f.shaders, opts...)
	require.NoError(t, f.r.Initialize(f.dev))
	require.NoError(t, f.r.AttachSurface(f.surface, withOverlay))
	require.NoError(t, f.r.LoadScene(newCubeScene()))
	return f
}

func (f *rendererFixture) draw(t *testing.T, mode renderer.DrawMode) {
	t.Helper()
	require.NoError(t, f.r.DrawFrame(0.016, mode))
}

func (f *rendererFixture) lastCommands() *fakeCommandBuffer {
	info := f.dev.submits[len(f.dev.submits)-1]
	return info.Commands[0].(*fakeCommandBuffer)
}

func TestRendererSlotsCycle(t *testing.T) {
	f := newRendererFixture(t, false)
	for i := 0; i < 4; i++ {
		f.draw(t, renderer.DrawModeSimple)
	}
	require.Len(t, f.dev.submits, 4)
	for i, info := range f.dev.submits {
		slot := f.r.scheduler.Slot(i % 2)
		assert.Same(t, slot.Commands, info.Commands[0], "frame %d", i)
		assert.Same(t, slot.Fence, info.Fence, "frame %d", i)
	}
	assert.Zero(t, f.r.Rebuilds())
	assert.Equal(t, 0, f.r.scheduler.Current())
}

func TestRendererRecordsFrame(t *testing.T) {
	f := newRendererFixture(t, false)
	f.draw(t, renderer.DrawModeSimple)

	assert.Equal(t, []string{
		"begin", "viewport", "scissor",
		"beginpass", "pipeline", "sets", "vertices", "indices",
		"push", "drawindexed", "push", "drawindexed",
		"nextsubpass", "pipeline", "sets", "push", "draw", "endpass",
		"beginpass", "pipeline", "push", "sets", "draw", "endpass",
		"end",
	}, f.lastCommands().names())

	cmds := f.lastCommands().cmds
	assert.Same(t, f.r.registry.Pass(PassMain), cmds[3].refs[0])
	assert.Same(t, f.r.gbuffer.PostFxFramebuffer(0), cmds[18].refs[1])
	assert.Equal(t, PushConstantsSize, cmds[8].args[2])

	// one push per instance, carrying that instance's mesh id
	for i, idx := range []int{8, 10} {
		data := cmds[idx].args[3].([]byte)
		require.Len(t, data, PushConstantsSize)
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(data[80:]), "instance %d", i)
	}
}

func TestRendererUniformWriteAfterFenceWait(t *testing.T) {
	f := newRendererFixture(t, false)
	for i := 0; i < 3; i++ {
		start := len(f.dev.log)
		f.draw(t, renderer.DrawModeSimple)
		wait := f.dev.indexOf("fence:wait", start)
		write := f.dev.indexOf("write:uniform", start)
		submit := f.dev.indexOf("submit", start)
		require.NotEqual(t, -1, write)
		assert.Less(t, wait, write)
		assert.Less(t, write, submit)
	}
}

func TestRendererResizeRebuilds(t *testing.T) {
	f := newRendererFixture(t, false)
	f.draw(t, renderer.DrawModeSimple)

	f.r.OnResize(1024, 768)
	start := len(f.dev.log)
	f.draw(t, renderer.DrawModeSimple)
	// the rebuild consumed the frame
	assert.Len(t, f.dev.submits, 1)
	assert.Equal(t, 1, f.r.Rebuilds())
	assert.Equal(t, 1, f.surface.recreations)

	idle := f.dev.indexOf("device:idle", start)
	require.NotEqual(t, -1, idle)
	assert.Less(t, idle, f.dev.indexOf("destroy:", start))
	assert.Less(t, f.dev.indexOf("destroy:framebuffer", start), f.dev.indexOf("destroy:renderpass", start))
	assert.Less(t, f.dev.indexOf("destroy:renderpass", start), f.dev.indexOf("surface:recreate", start))

	f.draw(t, renderer.DrawModeSimple)
	require.Len(t, f.dev.submits, 2)
	extent := vk.Extent2D{Width: 1024, Height: 768}
	assert.Equal(t, extent, f.r.gbuffer.Extent())
	for _, d := range f.r.gbuffer.Descriptors() {
		assert.Equal(t, extent, d.Extent, d.Name)
	}
	viewport := f.lastCommands().cmds[1].args[0].(vk.Viewport)
	assert.Equal(t, float32(1024), viewport.Width)
	assert.Empty(t, f.lastCommands().destroyedRefs())

	assert.Equal(t, int(attachmentCount), f.dev.live["image"])
	assert.Equal(t, 1+3, f.dev.live["framebuffer"])
	assert.Equal(t, 2, f.dev.live["renderpass"])
	assert.Equal(t, 3, f.dev.live["pipeline"])
	assert.Equal(t, 2, f.dev.live["fence"])
	// descriptor sets are rewritten, never reallocated
	assert.Equal(t, 4, f.dev.created["set"])
	assert.Zero(t, f.dev.doubleDestroys)
}

func TestRendererOutOfDateAtAcquire(t *testing.T) {
	f := newRendererFixture(t, false)
	f.surface.acquireSeq = []gpu.SurfaceStatus{gpu.SurfaceOutOfDate}

	f.draw(t, renderer.DrawModeSimple)
	assert.Empty(t, f.dev.submits)
	assert.Equal(t, 1, f.r.Rebuilds())

	f.draw(t, renderer.DrawModeSimple)
	assert.Len(t, f.dev.submits, 1)
	assert.Equal(t, 1, f.dev.count("present"))
}

func TestRendererMinimizedDefersRebuild(t *testing.T) {
	f := newRendererFixture(t, false)
	f.surface.acquireSeq = []gpu.SurfaceStatus{gpu.SurfaceOutOfDate}
	f.r.OnResize(0, 0)

	for i := 0; i < 3; i++ {
		f.draw(t, renderer.DrawModeSimple)
	}
	assert.Zero(t, f.r.Rebuilds())
	assert.Empty(t, f.dev.submits)
	assert.Zero(t, f.dev.count("acquire"))

	f.r.OnResize(640, 480)
	f.draw(t, renderer.DrawModeSimple)
	assert.Equal(t, 1, f.r.Rebuilds())

	// the scripted out-of-date is consumed by this acquire, triggering one more rebuild
	f.draw(t, renderer.DrawModeSimple)
	assert.Equal(t, 2, f.r.Rebuilds())
	f.draw(t, renderer.DrawModeSimple)
	assert.Len(t, f.dev.submits, 1)
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, f.surface.Extent())
}

func TestRendererZeroSurfaceExtentDefersRebuild(t *testing.T) {
	f := newRendererFixture(t, false)
	f.surface.acquireSeq = []gpu.SurfaceStatus{gpu.SurfaceOutOfDate}
	f.surface.recreateErr = errors.Wrapf(core.ErrSwapchainBooting, "surface extent is %dx%d", 0, 0)

	for i := 0; i < 2; i++ {
		err := f.r.DrawFrame(0.016, renderer.DrawModeSimple)
		require.NoError(t, err, "frame %d", i)
	}
	assert.Zero(t, f.r.Rebuilds())
	assert.Empty(t, f.dev.submits)
	assert.Equal(t, 2, f.dev.count("surface:recreate"))
	assert.Equal(t, 1, f.dev.count("acquire"), "retried rebuild runs before acquire")

	f.surface.recreateErr = nil
	f.draw(t, renderer.DrawModeSimple)
	assert.Equal(t, 1, f.r.Rebuilds())
	f.draw(t, renderer.DrawModeSimple)
	require.Len(t, f.dev.submits, 1)
	assert.Empty(t, f.lastCommands().destroyedRefs())
	assert.Equal(t, 2, f.dev.live["renderpass"])
	assert.Equal(t, 3, f.dev.live["pipeline"])
	assert.Zero(t, f.dev.doubleDestroys)
}

func TestRendererSuboptimalAtPresent(t *testing.T) {
	f := newRendererFixture(t, false)
	f.surface.presentSeq = []gpu.SurfaceStatus{gpu.SurfaceSuboptimal}

	start := len(f.dev.log)
	f.draw(t, renderer.DrawModeSimple)
	assert.Len(t, f.dev.submits, 1)
	assert.Equal(t, 1, f.r.Rebuilds())

	present := f.dev.indexOf("present", start)
	drained := f.dev.indexOf("queue:idle", present)
	recreate := f.dev.indexOf("surface:recreate", start)
	assert.Less(t, present, drained)
	assert.Less(t, drained, recreate)

	f.draw(t, renderer.DrawModeSimple)
	assert.Len(t, f.dev.submits, 2)
	assert.Empty(t, f.lastCommands().destroyedRefs())
}

func TestRendererOutOfDateAtPresentKeepsContent(t *testing.T) {
	f := newRendererFixture(t, false)
	f.draw(t, renderer.DrawModeSimple)
	draws := func() [][]interface{} {
		var out [][]interface{}
		for _, c := range f.lastCommands().cmds {
			if c.name == "drawindexed" || c.name == "draw" {
				out = append(out, c.args)
			}
		}
		return out
	}
	before := draws()
	proj, view := f.r.uniforms.Params.Proj, f.r.uniforms.Params.View

	f.surface.presentSeq = []gpu.SurfaceStatus{gpu.SurfaceOutOfDate}
	f.draw(t, renderer.DrawModeSimple)
	assert.Equal(t, 1, f.r.Rebuilds())
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, f.surface.Extent())

	f.draw(t, renderer.DrawModeSimple)
	require.Len(t, f.dev.submits, 3)
	assert.Equal(t, before, draws())
	assert.Equal(t, proj, f.r.uniforms.Params.Proj)
	assert.Equal(t, view, f.r.uniforms.Params.View)
	assert.Empty(t, f.lastCommands().destroyedRefs())
}

func TestRendererShaderReload(t *testing.T) {
	f := newRendererFixture(t, false)
	f.draw(t, renderer.DrawModeSimple)
	old := f.r.registry.Pipeline(PipelineGBuffer).Pipeline.(*fakePipeline)

	start := len(f.dev.log)
	require.NoError(t, f.r.ProcessInput(renderer.Input{KeysPressed: map[core.KeyCode]bool{core.KEY_B: true}}))
	assert.True(t, old.destroyed)
	idle := f.dev.indexOf("device:idle", start)
	require.NotEqual(t, -1, idle)
	assert.Less(t, idle, f.dev.indexOf("destroy:pipeline", start))
	assert.Equal(t, 3, f.dev.live["pipeline"])

	for i := 0; i < 2; i++ {
		f.draw(t, renderer.DrawModeSimple)
		cb := f.lastCommands()
		assert.Empty(t, cb.destroyedRefs())
		assert.Same(t, f.r.registry.Pipeline(PipelineGBuffer).Pipeline, cb.cmds[4].refs[0])
	}
	assert.Zero(t, f.r.Rebuilds())
}

func TestRendererShaderChangedOnDisk(t *testing.T) {
	f := newRendererFixture(t, false)
	require.NoError(t, f.r.ProcessInput(renderer.Input{ShadersChanged: true}))
	assert.Equal(t, 6, f.dev.created["pipeline"])

	require.NoError(t, f.r.ProcessInput(renderer.Input{}))
	assert.Equal(t, 6, f.dev.created["pipeline"])
}

func TestRendererShaderReloadFailureIsFatal(t *testing.T) {
	f := newRendererFixture(t, false)
	f.shaders.missing[ShaderShadingVert] = true
	err := f.r.ProcessInput(renderer.Input{KeysPressed: map[core.KeyCode]bool{core.KEY_B: true}})
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 3, f.dev.live["pipeline"])
}

func TestRendererOverlay(t *testing.T) {
	f := newRendererFixture(t, true)

	f.draw(t, renderer.DrawModeWithOverlay)
	require.Len(t, f.dev.submits[0].Commands, 2)
	assert.Same(t, f.overlay.cb, f.dev.submits[0].Commands[1])

	f.draw(t, renderer.DrawModeSimple)
	assert.Len(t, f.dev.submits[1].Commands, 1)

	f.r.OnResize(1280, 720)
	f.draw(t, renderer.DrawModeWithOverlay)
	assert.Equal(t, 1, f.overlay.changes)

	require.NoError(t, f.r.Shutdown())
	assert.True(t, f.overlay.destroyed)
}

func TestRendererOverlayRequestedWithoutOverlay(t *testing.T) {
	f := newRendererFixture(t, false)
	f.draw(t, renderer.DrawModeWithOverlay)
	assert.Len(t, f.dev.submits[0].Commands, 1)
}

func TestRendererUpdateCamera(t *testing.T) {
	f := newRendererFixture(t, false)
	before := f.r.uniforms.Params.View
	require.NoError(t, f.r.UpdateCamera([]renderer.CameraParams{{
		FovDegrees: 60,
		Position:   mgl32.Vec3{5, 5, 5},
		Up:         mgl32.Vec3{0, 1, 0},
	}}))
	assert.NotEqual(t, before, f.r.uniforms.Params.View)
	require.NoError(t, f.r.UpdateCamera(nil))
}

func TestRendererLoadSceneTwice(t *testing.T) {
	f := newRendererFixture(t, false)
	require.NoError(t, f.r.LoadScene(newCubeScene()))
	// vertices, indices, mesh info and uniforms
	assert.Equal(t, 4, f.dev.live["buffer"])
	assert.Equal(t, 3, f.dev.created["pipeline"])
	f.draw(t, renderer.DrawModeSimple)
	assert.Empty(t, f.lastCommands().destroyedRefs())
}

type wideScene struct{ *cubeScene }

func (wideScene) Vertices() ([]byte, uint32) { return make([]byte, 48), 48 }

func TestRendererRejectsVertexStride(t *testing.T) {
	dev := newFakeDevice()
	r := New(DefaultSettings(), newFakeShaders())
	require.NoError(t, r.Initialize(dev))
	require.NoError(t, r.AttachSurface(newFakeSurface(dev, 10, 10), false))
	err := r.LoadScene(wideScene{newCubeScene()})
	assert.True(t, core.IsFatal(err))
}

func TestRendererNotInitialized(t *testing.T) {
	r := New(DefaultSettings(), newFakeShaders())
	assert.ErrorIs(t, r.DrawFrame(0, renderer.DrawModeSimple), core.ErrNotInitialized)
	assert.ErrorIs(t, r.AttachSurface(newFakeSurface(newFakeDevice(), 1, 1), false), core.ErrNotInitialized)
	assert.ErrorIs(t, r.LoadScene(newCubeScene()), core.ErrNotInitialized)
	assert.NoError(t, r.Shutdown())

	dev := newFakeDevice()
	require.NoError(t, r.Initialize(dev))
	assert.Error(t, r.Initialize(dev))
	require.NoError(t, r.AttachSurface(newFakeSurface(dev, 10, 10), false))
	assert.ErrorIs(t, r.DrawFrame(0, renderer.DrawModeSimple), core.ErrNotInitialized)
}

func TestRendererSubmitFailureIsFatal(t *testing.T) {
	f := newRendererFixture(t, false)
	f.dev.fail["submit"] = errors.New("device lost")
	err := f.r.DrawFrame(0, renderer.DrawModeSimple)
	assert.True(t, core.IsFatal(err))
}

func TestRendererDepthNegotiation(t *testing.T) {
	dev := newFakeDevice()
	dev.unsupported[vk.FormatD32Sfloat] = true
	dev.unsupported[vk.FormatD32SfloatS8Uint] = true
	r := New(DefaultSettings(), newFakeShaders())
	require.NoError(t, r.Initialize(dev))
	require.NoError(t, r.AttachSurface(newFakeSurface(dev, 10, 10), false))
	assert.Equal(t, vk.FormatD24UnormS8Uint, r.DepthFormat())
	assert.Equal(t, vk.FormatD24UnormS8Uint, r.gbuffer.Attachment(AttachmentDepth).Spec.Format)
}

func TestRendererShutdownReleasesEverything(t *testing.T) {
	f := newRendererFixture(t, true)
	for i := 0; i < 3; i++ {
		f.draw(t, renderer.DrawModeWithOverlay)
	}
	f.r.OnResize(300, 200)
	f.draw(t, renderer.DrawModeWithOverlay)
	require.NoError(t, f.r.ProcessInput(renderer.Input{ShadersChanged: true}))
	f.draw(t, renderer.DrawModeWithOverlay)

	start := len(f.dev.log)
	require.NoError(t, f.r.Shutdown())
	assert.Equal(t, "device:idle", f.dev.log[start])
	assert.Empty(t, f.dev.leaks())
	assert.Zero(t, f.dev.doubleDestroys)
	assert.True(t, f.surface.destroyed)
	assert.Less(t, f.dev.indexOf("destroy:pipeline", start), f.dev.indexOf("destroy:renderpass", start))
	assert.Less(t, f.dev.indexOf("destroy:framebuffer", start), f.dev.indexOf("destroy:renderpass", start))

	require.NoError(t, f.r.Shutdown())
	assert.Zero(t, f.dev.doubleDestroys)
}
