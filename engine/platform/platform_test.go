package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyA:         core.KEY_A,
		glfw.KeyB:         core.KEY_B,
		glfw.KeyZ:         core.KEY_Z,
		glfw.KeyF1:        core.KEY_F1,
		glfw.KeyF12:       core.KEY_F12,
		glfw.KeyEscape:    core.KEY_ESCAPE,
		glfw.KeySpace:     core.KEY_SPACE,
		glfw.KeyLeftShift: core.KEY_LSHIFT,
	}
	for key, want := range cases {
		got, ok := translateKey(key)
		assert.True(t, ok, "key %d", key)
		assert.Equal(t, want, got, "key %d", key)
	}

	_, ok := translateKey(glfw.KeyKP5)
	assert.False(t, ok)
}

func TestKeyCallbackFiresEvents(t *testing.T) {
	core.InputReset()
	defer core.InputReset()
	defer core.EventShutdown()

	var pressed []core.KeyCode
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, listener, func(code core.SystemEventCode, sender, l interface{}, data core.EventContext) bool {
		pressed = append(pressed, data.Key)
		return true
	})

	keyCallback(nil, glfw.KeyB, 0, glfw.Press, 0)
	keyCallback(nil, glfw.KeyB, 0, glfw.Repeat, 0)
	assert.Equal(t, []core.KeyCode{core.KEY_B}, pressed)
	assert.True(t, core.InputIsKeyDown(core.KEY_B))

	keyCallback(nil, glfw.KeyB, 0, glfw.Release, 0)
	assert.True(t, core.InputIsKeyUp(core.KEY_B))
}

func TestFramebufferSizeCallbackFiresResize(t *testing.T) {
	defer core.EventShutdown()

	var got core.EventContext
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_RESIZED, listener, func(code core.SystemEventCode, sender, l interface{}, data core.EventContext) bool {
		got = data
		return true
	})

	framebufferSizeCallback(nil, 1280, 0)
	assert.Equal(t, uint32(1280), got.Width)
	assert.Zero(t, got.Height)
}
