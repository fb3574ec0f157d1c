package engine

import (
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	// Optional GUI layer drawn on top of the presented image.
	Overlay      renderer.Overlay
	FnInitialize Initialize
	FnScene      SceneProvider
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error

// SceneProvider returns the scene handed to the renderer after initialization.
type SceneProvider func() (renderer.Scene, error)

// Update runs once per frame before drawing. The camera may be moved; the
// engine forwards it to the renderer when it changed.
type Update func(deltaTime float64, camera *components.Camera) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
