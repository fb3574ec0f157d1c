package engine

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/assets"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/platform"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
	"github.com/spaghettifunk/deferred/engine/renderer/deferred"
	"github.com/spaghettifunk/deferred/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// units per second
	cameraMoveSpeed = float32(10.0)
	// radians per second
	cameraTurnSpeed = float32(1.5)
	// seconds to block on window events while minimized
	suspendedWaitTimeout = 0.1
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	// Written by the signal handler goroutine through the quit event.
	isRunning   atomic.Bool
	isSuspended bool
	platform    *platform.Platform
	backend     *vulkan.Backend
	shaders     *assets.ShaderLibrary
	renderer    renderer.Renderer
	camera      *components.Camera
	drawMode    renderer.DrawMode
	// Set from the shader watcher goroutine, consumed once per frame.
	shadersChanged atomic.Bool
	width          uint32
	height         uint32
	clock          *core.Clock
	metrics        *core.Metrics
	lastTime       float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil {
		return nil, errors.New("game has no application config")
	}
	if g.FnScene == nil {
		return nil, errors.New("game provides no scene")
	}
	if err := g.ApplicationConfig.Config.Validate(); err != nil {
		return nil, err
	}

	p, err := platform.New()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.ApplicationConfig.Config,
		platform:     p,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}

	e.currentStage = EngineStageBooting
	if g.ApplicationConfig.LogLevel != "" {
		if err := core.SetLogLevel(g.ApplicationConfig.LogLevel); err != nil {
			return nil, err
		}
	}
	e.drawMode = renderer.DrawModeSimple
	if e.config.Renderer.Overlay && g.Overlay != nil {
		e.drawMode = renderer.DrawModeWithOverlay
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return errors.Newf("engine cannot be initialized from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	cfg := e.config

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, e, e.onShaderChanged)

	app := e.gameInstance.ApplicationConfig
	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return core.Fatal(err)
	}
	// The framebuffer may differ from the requested window size on HiDPI screens.
	e.width, e.height = e.platform.FramebufferSize()

	shaders, err := assets.NewShaderLibrary(cfg.Shaders.Dir)
	if err != nil {
		return core.Fatal(err)
	}
	e.shaders = shaders
	if cfg.Shaders.HotReload {
		if err := e.shaders.Watch(); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}

	e.backend = vulkan.New(vulkan.Settings{
		ApplicationName: app.Name,
		Validation:      cfg.Renderer.Validation,
		VSync:           cfg.Renderer.VSync,
		DeviceID:        cfg.Renderer.DeviceID,
	}, e.platform)
	if err := e.backend.Initialize(); err != nil {
		return err
	}

	settings, err := deferred.SettingsFromConfig(cfg)
	if err != nil {
		return core.Fatal(err)
	}
	var opts []deferred.Option
	if e.gameInstance.Overlay != nil {
		opts = append(opts, deferred.WithOverlay(e.gameInstance.Overlay))
	}
	e.renderer = deferred.New(settings, e.shaders, opts...)
	if err := e.renderer.Initialize(e.backend.Device()); err != nil {
		return err
	}

	surface, err := e.backend.CreateSwapchain(vk.Extent2D{Width: e.width, Height: e.height})
	if err != nil {
		return core.Fatal(err)
	}
	if err := e.renderer.AttachSurface(surface, e.drawMode == renderer.DrawModeWithOverlay); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	scene, err := e.gameInstance.FnScene()
	if err != nil {
		return err
	}
	if err := e.renderer.LoadScene(scene); err != nil {
		return err
	}
	e.camera = components.NewCamera(e.initialCamera(scene))

	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized at %dx%d, draw mode %s", e.width, e.height, e.drawMode)
	return nil
}

// initialCamera prefers the scene's first camera and falls back to [camera].
func (e *Engine) initialCamera(scene renderer.Scene) renderer.CameraParams {
	if cams := scene.Cameras(); len(cams) > 0 {
		return cams[0]
	}
	c := e.config.Camera
	return renderer.CameraParams{
		FovDegrees: c.FovDegrees,
		Position:   mgl32.Vec3(c.Position),
		LookAt:     mgl32.Vec3(c.LookAt),
		Up:         mgl32.Vec3(c.Up),
	}
}

// Run drives the frame loop until quit is requested. A returned error is
// fatal; the caller still owns Shutdown.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.isRunning.Store(false)
			break
		}

		if e.isSuspended {
			e.platform.WaitEvents(suspendedWaitTimeout)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if err := e.frame(delta, currentTime); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning.Store(false)
			return err
		}

		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		if e.metrics.Update(frameElapsedTime) {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, ms)
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		// As a safety, input is the last thing to be updated before
		// this frame ends.
		core.InputUpdate()

		// Update last time
		e.lastTime = currentTime
	}

	return nil
}

// frame runs one iteration: camera, game update, input, draw.
func (e *Engine) frame(delta, elapsed float64) error {
	e.moveCamera(float32(delta))

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta, e.camera); err != nil {
			return errors.Wrap(err, "game update failed")
		}
	}

	if e.camera != nil && e.camera.TakeChanged() {
		if err := e.renderer.UpdateCamera([]renderer.CameraParams{e.camera.Params()}); err != nil {
			return err
		}
	}

	input := renderer.Input{
		KeysPressed: map[core.KeyCode]bool{
			core.KEY_B: core.InputKeyPressedThisFrame(core.KEY_B),
		},
		ShadersChanged: e.shadersChanged.Swap(false),
	}
	if err := e.renderer.ProcessInput(input); err != nil {
		return err
	}

	return e.renderer.DrawFrame(float32(elapsed), e.drawMode)
}

// moveCamera applies WASD/QE movement and arrow-key rotation.
func (e *Engine) moveCamera(delta float32) {
	if e.camera == nil {
		return
	}
	step := cameraMoveSpeed * delta
	turn := cameraTurnSpeed * delta

	if core.InputIsKeyDown(core.KEY_W) {
		e.camera.MoveForward(step)
	}
	if core.InputIsKeyDown(core.KEY_S) {
		e.camera.MoveBackward(step)
	}
	if core.InputIsKeyDown(core.KEY_A) {
		e.camera.MoveLeft(step)
	}
	if core.InputIsKeyDown(core.KEY_D) {
		e.camera.MoveRight(step)
	}
	if core.InputIsKeyDown(core.KEY_E) {
		e.camera.MoveUp(step)
	}
	if core.InputIsKeyDown(core.KEY_Q) {
		e.camera.MoveDown(step)
	}
	if core.InputIsKeyDown(core.KEY_LEFT) {
		e.camera.Yaw(turn)
	}
	if core.InputIsKeyDown(core.KEY_RIGHT) {
		e.camera.Yaw(-turn)
	}
	if core.InputIsKeyDown(core.KEY_UP) {
		e.camera.Pitch(turn)
	}
	if core.InputIsKeyDown(core.KEY_DOWN) {
		e.camera.Pitch(-turn)
	}
}

// Shutdown releases everything in reverse creation order: renderer, shader
// library, backend, platform. It is safe after a failed Initialize.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var result error
	if e.gameInstance.FnShutdown != nil {
		result = errors.CombineErrors(result, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		result = errors.CombineErrors(result, e.renderer.Shutdown())
		e.renderer = nil
	}
	if e.shaders != nil {
		result = errors.CombineErrors(result, e.shaders.Close())
		e.shaders = nil
	}
	if e.backend != nil {
		e.backend.Shutdown()
		e.backend = nil
	}
	if e.platform != nil {
		result = errors.CombineErrors(result, e.platform.Shutdown())
	}

	core.EventShutdown()
	core.InputReset()
	e.currentStage = EngineStageUninitialized
	core.LogInfo("engine shut down")
	return result
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code != core.EVENT_CODE_KEY_PRESSED {
		return false
	}
	switch data.Key {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		// Block anything else from processing this.
		return true
	case core.KEY_B:
		core.LogDebug("shader reload requested")
	}
	return false
}

func (e *Engine) onShaderChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("shader %s changed on disk", data.Path)
	e.shadersChanged.Store(true)
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code != core.EVENT_CODE_RESIZED {
		return false
	}
	width := data.Width
	height := data.Height

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.renderer != nil {
		e.renderer.OnResize(width, height)
	}
	return false
}
