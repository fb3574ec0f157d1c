package testbed

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
)

const (
	ringCubes = 8
	// radians per second
	orbitSpeed = 0.25
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	// The camera orbits the origin until a movement key is used. O toggles it.
	orbit       bool
	orbitAngle  float64
	orbitRadius float32
	orbitHeight float32

	width  uint32
	height uint32
}

func NewTestGame(cfg *core.Config) (*TestGame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pos := mgl32.Vec3(cfg.Camera.Position)
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
			State: &gameState{
				orbit:       true,
				orbitAngle:  gomath.Atan2(float64(pos.X()), float64(pos.Z())),
				orbitRadius: mgl32.Vec2{pos.X(), pos.Z()}.Len(),
				orbitHeight: pos.Y(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnScene = tg.Scene
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogDebug("testbed initialized")
	return nil
}

// Scene builds the demo scene with the configured camera.
func (g *TestGame) Scene() (renderer.Scene, error) {
	c := g.ApplicationConfig.Config.Camera
	camera := renderer.CameraParams{
		FovDegrees: c.FovDegrees,
		Position:   mgl32.Vec3(c.Position),
		LookAt:     mgl32.Vec3(c.LookAt),
		Up:         mgl32.Vec3(c.Up),
	}
	return NewScene(camera, ringCubes), nil
}

func (g *TestGame) Update(deltaTime float64, camera *components.Camera) error {
	s := g.state()

	if core.InputKeyPressedThisFrame(core.KEY_O) {
		s.orbit = !s.orbit
		core.LogInfo("camera orbit %t", s.orbit)
	}
	for _, k := range []core.KeyCode{core.KEY_W, core.KEY_A, core.KEY_S, core.KEY_D, core.KEY_Q, core.KEY_E} {
		if core.InputIsKeyDown(k) {
			s.orbit = false
			break
		}
	}
	if !s.orbit || camera == nil {
		return nil
	}

	s.orbitAngle = gomath.Mod(s.orbitAngle+orbitSpeed*deltaTime, 2*gomath.Pi)
	camera.Position = mgl32.Vec3{
		s.orbitRadius * float32(gomath.Sin(s.orbitAngle)),
		s.orbitHeight,
		s.orbitRadius * float32(gomath.Cos(s.orbitAngle)),
	}
	camera.LookAt = mgl32.Vec3{}
	camera.IsDirty = true
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width = width
	s.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("testbed shut down")
	return nil
}
