package deferred

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// Settings are the renderer knobs that come from configuration.
type Settings struct {
	FramesInFlight  int
	DepthCandidates []vk.Format
	Light           LightSettings
	EnableSSAO      bool
	PostFxDownscale uint32
	Near            float32
	Far             float32
}

func DefaultSettings() Settings {
	return Settings{
		FramesInFlight:  2,
		DepthCandidates: DefaultDepthCandidates,
		Light:           DefaultLightSettings(),
		PostFxDownscale: 4,
		Near:            0.1,
		Far:             1000,
	}
}

// SettingsFromConfig maps the [renderer], [light] and [camera] sections.
func SettingsFromConfig(cfg *core.Config) (Settings, error) {
	depth, err := ParseDepthCandidates(cfg.Renderer.DepthCandidates)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		FramesInFlight:  cfg.Renderer.FramesInFlight,
		DepthCandidates: depth,
		Light: LightSettings{
			Direction:    mgl32.Vec3(cfg.Light.Direction),
			Position:     mgl32.Vec3(cfg.Light.Position),
			BaseColor:    mgl32.Vec3(cfg.Light.BaseColor),
			Radius:       cfg.Light.Radius,
			Length:       cfg.Light.Length,
			AnimateColor: cfg.Light.AnimateColor,
		},
		EnableSSAO:      cfg.Renderer.EnableSSAO,
		PostFxDownscale: cfg.Renderer.PostFxDownscale,
		Near:            cfg.Camera.Near,
		Far:             cfg.Camera.Far,
	}, nil
}

type Option func(*Renderer)

// WithOverlay installs the GUI overlay used by DrawModeWithOverlay.
func WithOverlay(o renderer.Overlay) Option {
	return func(r *Renderer) {
		r.overlay = o
	}
}

// Renderer is the deferred renderer: a two-subpass main pass (GBuffer fill
// then lighting resolve) followed by a post-fx pass into the presentable image.
type Renderer struct {
	settings Settings
	shaders  ShaderSource
	overlay  renderer.Overlay

	dev            gpu.Device
	surface        gpu.Surface
	overlayEnabled bool

	scheduler *Scheduler
	registry  *Registry
	gbuffer   *GBuffer
	binder    *Binder
	uniforms  *UniformStream
	sampler   gpu.Sampler

	depthFormat vk.Format

	vertexBuffer   gpu.HostBuffer
	indexBuffer    gpu.HostBuffer
	meshInfoBuffer gpu.HostBuffer
	instances      []renderer.Instance
	sceneLoaded    bool

	camera    renderer.CameraParams
	hasCamera bool

	desired        vk.Extent2D
	sizeGeneration uint64
	lastGeneration uint64
	// set while torn-down surface resources still need recreating
	rebuildPending bool
	generation     core.Identifier
	rebuilds       int
}

var _ renderer.Renderer = (*Renderer)(nil)

func New(settings Settings, shaders ShaderSource, opts ...Option) *Renderer {
	r := &Renderer{
		settings:   settings,
		shaders:    shaders,
		generation: core.NewIdentifier(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize creates everything that does not depend on the surface: the
// sampler, the descriptor layouts and the frame slots.
func (r *Renderer) Initialize(dev gpu.Device) error {
	if r.dev != nil {
		return errors.New("renderer already initialized")
	}
	r.dev = dev
	r.registry = NewRegistry(dev, r.shaders)
	r.gbuffer = NewGBuffer(dev)
	r.binder = NewBinder(dev)
	r.scheduler = NewScheduler(dev, r.settings.FramesInFlight)

	sampler, err := dev.CreateSampler(gpu.SamplerSpec{
		Filter:      vk.FilterLinear,
		AddressMode: vk.SamplerAddressModeClampToEdge,
		MipmapMode:  vk.SamplerMipmapModeLinear,
		BorderColor: vk.BorderColorFloatOpaqueBlack,
	})
	if err != nil {
		return core.Fatal(errors.Wrap(err, "failed to create post-fx sampler"))
	}
	r.sampler = sampler

	if err := r.binder.CreateLayouts(); err != nil {
		return err
	}
	if err := r.scheduler.CreateSlots(); err != nil {
		return err
	}
	core.LogInfo("deferred renderer initialized with %d frames in flight", r.settings.FramesInFlight)
	return nil
}

// AttachSurface negotiates the depth format and builds the passes, the
// GBuffer and the framebuffers for the surface.
func (r *Renderer) AttachSurface(surface gpu.Surface, enableOverlay bool) error {
	if r.dev == nil {
		return core.ErrNotInitialized
	}
	if r.surface != nil {
		return errors.New("surface already attached")
	}
	depth, err := ChooseDepthFormat(r.dev, r.settings.DepthCandidates)
	if err != nil {
		return err
	}
	r.depthFormat = depth
	r.surface = surface
	r.scheduler.SetSurface(surface)
	r.desired = surface.Extent()

	if enableOverlay && r.overlay == nil {
		core.LogWarn("overlay requested but none installed, drawing without it")
	}
	r.overlayEnabled = enableOverlay && r.overlay != nil

	if err := r.createSurfaceResources(); err != nil {
		return err
	}
	core.LogInfo("surface attached: %dx%d, depth format %d", r.desired.Width, r.desired.Height, depth)
	return nil
}

func (r *Renderer) createSurfaceResources() error {
	extent := r.surface.Extent()
	if err := r.registry.BuildPasses(r.depthFormat, r.surface.Format()); err != nil {
		return err
	}
	if err := r.gbuffer.CreateAttachments(GBufferAttachmentSpecs(r.depthFormat), extent); err != nil {
		return err
	}
	return r.gbuffer.CreateFramebuffers(r.registry.Pass(PassMain), r.registry.Pass(PassPostFx), r.surface.ImageViews())
}

func (r *Renderer) destroySurfaceResources() {
	r.gbuffer.DestroyFramebuffers()
	r.registry.DestroyPasses()
	r.gbuffer.DestroyAttachments()
}

func (r *Renderer) uploadBuffer(data []byte, usage vk.BufferUsageFlagBits) (gpu.HostBuffer, error) {
	size := uint64(len(data))
	if size < 16 {
		size = 16
	}
	buf, err := r.dev.CreateHostBuffer(size, vk.BufferUsageFlags(usage))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := buf.Write(0, data); err != nil {
			buf.Destroy()
			return nil, err
		}
	}
	return buf, nil
}

func (r *Renderer) destroySceneBuffers() {
	for _, b := range []*gpu.HostBuffer{&r.vertexBuffer, &r.indexBuffer, &r.meshInfoBuffer} {
		if *b != nil {
			(*b).Destroy()
			*b = nil
		}
	}
}

func indexBytes(indices []uint32) []byte {
	out := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[4*i:], idx)
	}
	return out
}

// LoadScene uploads the scene geometry, creates the uniform stream, builds
// the pipelines and takes the scene's first camera. Loading a second scene
// replaces the geometry.
func (r *Renderer) LoadScene(scene renderer.Scene) error {
	if r.dev == nil || r.surface == nil {
		return core.ErrNotInitialized
	}
	if r.sceneLoaded {
		if err := r.dev.WaitIdle(); err != nil {
			return core.Fatal(errors.Wrap(err, "wait idle before scene reload"))
		}
		r.destroySceneBuffers()
	}

	vertices, stride := scene.Vertices()
	if stride != MeshVertexLayout.Stride {
		return core.Fatalf("scene vertex stride %d, pipeline expects %d", stride, MeshVertexLayout.Stride)
	}
	var err error
	if r.vertexBuffer, err = r.uploadBuffer(vertices, vk.BufferUsageVertexBufferBit); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to upload vertices"))
	}
	if r.indexBuffer, err = r.uploadBuffer(indexBytes(scene.Indices()), vk.BufferUsageIndexBufferBit); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to upload indices"))
	}
	if r.meshInfoBuffer, err = r.uploadBuffer(scene.MeshInfo(), vk.BufferUsageStorageBufferBit); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to upload mesh info"))
	}
	r.instances = append([]renderer.Instance(nil), scene.Instances()...)

	if r.uniforms == nil {
		if r.uniforms, err = NewUniformStream(r.dev, r.settings.Light, r.settings.EnableSSAO, r.settings.PostFxDownscale); err != nil {
			return err
		}
	}

	res := r.bindingResources()
	if r.binder.Allocated() {
		r.binder.WriteGeometry(res)
	} else if err := r.binder.Allocate(res); err != nil {
		return err
	}

	if !r.registry.HasPipelines() {
		if err := r.registry.BuildPipelines(r.binder); err != nil {
			return err
		}
	}

	if cams := scene.Cameras(); len(cams) > 0 {
		r.camera = cams[0]
		r.hasCamera = true
	}
	r.applyCamera()
	r.sceneLoaded = true
	core.LogInfo("scene loaded: %d instances, %d bytes of vertices", len(r.instances), len(vertices))
	return nil
}

func (r *Renderer) bindingResources() BindingResources {
	res := BindingResources{
		MeshInfo: r.meshInfoBuffer,
		Inputs:   r.gbuffer.InputViews(),
		Sampler:  r.sampler,
	}
	if r.uniforms != nil {
		res.Uniforms = r.uniforms.Buffer()
	}
	if a := r.gbuffer.Attachment(AttachmentResolved); a != nil {
		res.Resolved = a.View
	}
	return res
}

// UpdateCamera takes the first camera. The projection follows the surface aspect.
func (r *Renderer) UpdateCamera(cameras []renderer.CameraParams) error {
	if len(cameras) == 0 {
		return nil
	}
	r.camera = cameras[0]
	r.hasCamera = true
	r.applyCamera()
	return nil
}

func (r *Renderer) applyCamera() {
	if r.uniforms == nil || r.surface == nil || !r.hasCamera {
		return
	}
	proj, view := CameraMatrices(r.camera, r.surface.Extent(), r.settings.Near, r.settings.Far)
	r.uniforms.SetCamera(proj, view)
}

// ProcessInput reloads the shaders on key B or when the compiled shaders
// changed on disk.
func (r *Renderer) ProcessInput(input renderer.Input) error {
	if !input.Pressed(core.KEY_B) && !input.ShadersChanged {
		return nil
	}
	if r.registry == nil || !r.registry.HasPipelines() {
		return nil
	}
	core.LogInfo("reloading shaders")
	return r.registry.Reload(r.binder)
}

// OnResize records the new window size. The surface-dependent resources are
// rebuilt at the start of the next DrawFrame.
func (r *Renderer) OnResize(width, height uint32) {
	r.desired = vk.Extent2D{Width: width, Height: height}
	r.sizeGeneration++
}

func (r *Renderer) ready() bool {
	return r.dev != nil && r.surface != nil && r.sceneLoaded
}

// DrawFrame renders one frame: wait, acquire, update uniforms, record,
// submit and present. A stale surface triggers a rebuild and the frame is
// skipped. Every returned error is fatal.
func (r *Renderer) DrawFrame(elapsed float32, mode renderer.DrawMode) error {
	if !r.ready() {
		return core.ErrNotInitialized
	}
	if r.rebuildPending || r.sizeGeneration != r.lastGeneration {
		return r.rebuild()
	}

	slot, image, err := r.scheduler.BeginFrame()
	if errors.Is(err, core.ErrRebuildRequired) {
		return r.rebuild()
	}
	if err != nil {
		return err
	}

	if err := r.uniforms.Update(elapsed, r.surface.Extent()); err != nil {
		return err
	}
	if err := RecordFrame(slot.Commands, r.frameInputs(image)); err != nil {
		return err
	}

	commands := []gpu.CommandBuffer{slot.Commands}
	if mode == renderer.DrawModeWithOverlay && r.overlayEnabled {
		oc, err := r.overlay.BuildOverlayCommands(image)
		if err != nil {
			return core.Fatal(errors.Wrap(err, "failed to build overlay commands"))
		}
		commands = append(commands, oc)
	}

	if err := r.scheduler.Submit(slot, commands); err != nil {
		return err
	}
	err = r.scheduler.Present(slot)
	if errors.Is(err, core.ErrRebuildRequired) {
		return r.rebuild()
	}
	return err
}

func (r *Renderer) frameInputs(image uint32) *FrameInputs {
	return &FrameInputs{
		Extent:            r.gbuffer.Extent(),
		MainPass:          r.registry.Pass(PassMain),
		MainFramebuffer:   r.gbuffer.Framebuffer(),
		PostFxPass:        r.registry.Pass(PassPostFx),
		PostFxFramebuffer: r.gbuffer.PostFxFramebuffer(image),
		GBuffer:           r.registry.Pipeline(PipelineGBuffer),
		Shading:           r.registry.Pipeline(PipelineShading),
		PostFx:            r.registry.Pipeline(PipelinePostFx),
		GeometrySets:      r.binder.Sets(SetGeometry),
		ShadingSets:       r.binder.Sets(SetLightingUniforms, SetLightingInputs),
		PostFxSets:        r.binder.Sets(SetPostFx),
		VertexBuffer:      r.vertexBuffer,
		IndexBuffer:       r.indexBuffer,
		Instances:         r.instances,
	}
}

// rebuild recreates everything that depends on the surface. It is deferred
// while the requested or the surface extent is zero (minimized window) and
// retried on the next DrawFrame.
func (r *Renderer) rebuild() error {
	r.rebuildPending = true
	if r.desired.Width == 0 || r.desired.Height == 0 {
		core.LogDebug("rebuild deferred, window has zero extent")
		return nil
	}
	r.generation = core.NewIdentifier()
	core.LogDebug("surface rebuild %s started", r.generation.Short())

	if err := r.dev.WaitIdle(); err != nil {
		return core.Fatal(errors.Wrap(err, "wait idle before rebuild"))
	}

	r.registry.DestroyPipelines()
	r.scheduler.DestroySlots()
	r.destroySurfaceResources()

	if err := r.surface.Recreate(r.desired); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			core.LogDebug("rebuild %s deferred: %v", r.generation.Short(), err)
			return nil
		}
		return core.Fatal(errors.Wrap(err, "failed to recreate swapchain"))
	}
	if err := r.createSurfaceResources(); err != nil {
		return err
	}
	if r.binder.Allocated() {
		if err := r.binder.Rewrite(r.bindingResources()); err != nil {
			return core.Fatal(err)
		}
	}
	if r.sceneLoaded {
		if err := r.registry.BuildPipelines(r.binder); err != nil {
			return err
		}
	}
	if err := r.scheduler.CreateSlots(); err != nil {
		return err
	}
	r.applyCamera()
	if r.overlayEnabled {
		r.overlay.OnSurfaceChanged(r.surface)
	}

	r.lastGeneration = r.sizeGeneration
	r.rebuildPending = false
	r.rebuilds++
	extent := r.surface.Extent()
	core.LogDebug("surface rebuild %s finished at %dx%d", r.generation.Short(), extent.Width, extent.Height)
	return nil
}

// Rebuilds counts completed surface rebuilds.
func (r *Renderer) Rebuilds() int {
	return r.rebuilds
}

// DepthFormat is the negotiated depth format.
func (r *Renderer) DepthFormat() vk.Format {
	return r.depthFormat
}

// Shutdown waits for the device and destroys everything the renderer
// created. The device and surface handles given to it are not destroyed,
// except the surface's swapchain.
func (r *Renderer) Shutdown() error {
	if r.dev == nil {
		return nil
	}
	var result error
	if err := r.dev.WaitIdle(); err != nil {
		result = errors.Wrap(err, "wait idle before shutdown")
	}

	if r.overlay != nil {
		r.overlay.Destroy()
	}
	r.registry.DestroyPipelines()
	r.destroySurfaceResources()
	if r.surface != nil {
		r.surface.Destroy()
		r.surface = nil
	}
	if r.sampler != nil {
		r.sampler.Destroy()
		r.sampler = nil
	}
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	r.destroySceneBuffers()
	r.binder.Destroy()
	r.scheduler.DestroySlots()

	r.dev = nil
	r.sceneLoaded = false
	core.LogInfo("deferred renderer shut down")
	return result
}
