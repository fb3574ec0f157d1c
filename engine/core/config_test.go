package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
	assert.Equal(t, DepthFormatNames, cfg.Renderer.DepthCandidates)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[window]
width = 640
height = 480

[renderer]
frames_in_flight = 3
depth_candidates = ["D24_UNORM_S8_UINT", "D16_UNORM"]

[light]
animate_color = false

[log]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, uint32(480), cfg.Window.Height)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, []string{"D24_UNORM_S8_UINT", "D16_UNORM"}, cfg.Renderer.DepthCandidates)
	assert.False(t, cfg.Light.AnimateColor)
	assert.Equal(t, "warn", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, uint32(4), cfg.Renderer.PostFxDownscale)
	assert.Equal(t, "resources/shaders", cfg.Shaders.Dir)
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"zero frames in flight", "[renderer]\nframes_in_flight = 0\n"},
		{"zero width", "[window]\nwidth = 0\n"},
		{"unknown depth format", "[renderer]\ndepth_candidates = [\"D99_MAGIC\"]\n"},
		{"empty depth candidates", "[renderer]\ndepth_candidates = []\n"},
		{"inverted clip planes", "[camera]\nnear = 10.0\nfar = 1.0\n"},
		{"unknown key", "[renderer]\nframes = 2\n"},
		{"bad toml", "[renderer\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseConfig([]byte(tt.data), DefaultConfig())
			assert.Error(t, err)
		})
	}
}
