package core

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// DepthFormatNames lists the depth formats the renderer knows how to negotiate,
// in default preference order.
var DepthFormatNames = []string{
	"D32_SFLOAT",
	"D32_SFLOAT_S8_UINT",
	"D24_UNORM_S8_UINT",
	"D16_UNORM_S8_UINT",
	"D16_UNORM",
}

type WindowConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      int32  `toml:"x"`
	Y      int32  `toml:"y"`
}

type RendererConfig struct {
	FramesInFlight  int      `toml:"frames_in_flight"`
	VSync           bool     `toml:"vsync"`
	Validation      bool     `toml:"validation"`
	DeviceID        int      `toml:"device_id"`
	DepthCandidates []string `toml:"depth_candidates"`
	PostFxDownscale uint32   `toml:"postfx_downscale"`
	EnableSSAO      bool     `toml:"enable_ssao"`
	Overlay         bool     `toml:"overlay"`
}

type ShaderConfig struct {
	Dir       string `toml:"dir"`
	HotReload bool   `toml:"hot_reload"`
}

type LightConfig struct {
	Direction    [3]float32 `toml:"direction"`
	Position     [3]float32 `toml:"position"`
	Radius       float32    `toml:"radius"`
	Length       float32    `toml:"length"`
	BaseColor    [3]float32 `toml:"base_color"`
	AnimateColor bool       `toml:"animate_color"`
}

type CameraConfig struct {
	FovDegrees float32    `toml:"fov_degrees"`
	Near       float32    `toml:"near"`
	Far        float32    `toml:"far"`
	Position   [3]float32 `toml:"position"`
	LookAt     [3]float32 `toml:"look_at"`
	Up         [3]float32 `toml:"up"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Light    LightConfig    `toml:"light"`
	Camera   CameraConfig   `toml:"camera"`
	Log      LogConfig      `toml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Name:   "Deferred renderer",
			Width:  1024,
			Height: 1024,
			X:      100,
			Y:      100,
		},
		Renderer: RendererConfig{
			FramesInFlight:  2,
			VSync:           false,
			Validation:      true,
			DepthCandidates: append([]string(nil), DepthFormatNames...),
			PostFxDownscale: 4,
		},
		Shaders: ShaderConfig{
			Dir:       "resources/shaders",
			HotReload: true,
		},
		Light: LightConfig{
			Direction:    [3]float32{0, 0, -1},
			Radius:       50,
			Length:       1000,
			BaseColor:    [3]float32{0.9, 0.92, 1.0},
			AnimateColor: true,
		},
		Camera: CameraConfig{
			FovDegrees: 45,
			Near:       0.1,
			Far:        1000,
			Position:   [3]float32{0, 10, 20},
			LookAt:     [3]float32{0, 0, 0},
			Up:         [3]float32{0, 1, 0},
		},
		Log: LogConfig{Level: "debug"},
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogInfo("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes data into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(err, "invalid toml")
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 {
		return errors.Newf("renderer.frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if len(c.Renderer.DepthCandidates) == 0 {
		return errors.New("renderer.depth_candidates must not be empty")
	}
	for _, name := range c.Renderer.DepthCandidates {
		if !knownDepthFormat(name) {
			return errors.Newf("renderer.depth_candidates: unknown depth format %q", name)
		}
	}
	if c.Renderer.PostFxDownscale == 0 {
		return errors.New("renderer.postfx_downscale must be at least 1")
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return errors.Newf("camera clip planes must satisfy 0 < near < far, got %g/%g", c.Camera.Near, c.Camera.Far)
	}
	return nil
}

func knownDepthFormat(name string) bool {
	for _, n := range DepthFormatNames {
		if n == name {
			return true
		}
	}
	return false
}
