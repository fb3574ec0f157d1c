package engine

import (
	"github.com/spaghettifunk/deferred/engine/core"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX int32
	// Window starting position y axis, if applicable.
	StartPosY int32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel string
	// Renderer, shader, light and camera settings.
	Config *core.Config
}

// NewApplicationConfig takes the window and log settings from cfg and keeps
// cfg for the renderer.
func NewApplicationConfig(cfg *core.Config) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:   cfg.Window.X,
		StartPosY:   cfg.Window.Y,
		StartWidth:  cfg.Window.Width,
		StartHeight: cfg.Window.Height,
		Name:        cfg.Window.Name,
		LogLevel:    cfg.Log.Level,
		Config:      cfg,
	}
}
