package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// DrawMode selects what a frame submission contains.
type DrawMode uint8

const (
	// DrawModeSimple submits only the renderer's own command buffer.
	DrawModeSimple DrawMode = iota
	// DrawModeWithOverlay appends the overlay command buffer to the submission.
	DrawModeWithOverlay
)

func (m DrawMode) String() string {
	if m == DrawModeWithOverlay {
		return "with-overlay"
	}
	return "simple"
}

// Renderer is the capability contract the engine drives every frame.
//
// The call order is Initialize, AttachSurface, LoadScene, then any number of
// UpdateCamera/ProcessInput/DrawFrame calls, then Shutdown. ProcessInput and
// UpdateCamera must not be called while DrawFrame is running.
type Renderer interface {
	Initialize(dev gpu.Device) error
	AttachSurface(surface gpu.Surface, enableOverlay bool) error
	LoadScene(scene Scene) error
	UpdateCamera(cameras []CameraParams) error
	ProcessInput(input Input) error
	// DrawFrame renders one frame. Surface staleness is handled internally;
	// a returned error is fatal.
	DrawFrame(elapsed float32, mode DrawMode) error
	// OnResize records a new window size. The rebuild happens on the next DrawFrame.
	OnResize(width, height uint32)
	Shutdown() error
}

// CameraParams is what a camera provider hands to the renderer.
type CameraParams struct {
	FovDegrees float32
	Position   mgl32.Vec3
	LookAt     mgl32.Vec3
	Up         mgl32.Vec3
}

// Instance is one draw of a mesh.
type Instance struct {
	MeshID       uint32
	Transform    mgl32.Mat4
	IndexOffset  uint32
	IndexCount   uint32
	VertexOffset int32
}

// Scene provides the geometry the renderer uploads and draws. The renderer
// copies the data into buffers it owns; the scene may be released after LoadScene.
type Scene interface {
	// Vertices returns the interleaved vertex data and the vertex stride.
	Vertices() ([]byte, uint32)
	Indices() []uint32
	// MeshInfo is the raw storage-buffer content read by the geometry shaders.
	MeshInfo() []byte
	Instances() []Instance
	Cameras() []CameraParams
}

// Overlay is an external GUI layer drawn on top of the presented image.
type Overlay interface {
	// BuildOverlayCommands records the overlay for the given presentable image.
	BuildOverlayCommands(imageIndex uint32) (gpu.CommandBuffer, error)
	// OnSurfaceChanged is called after every surface rebuild.
	OnSurfaceChanged(surface gpu.Surface)
	Destroy()
}

// Input is the per-frame input snapshot handed to ProcessInput.
type Input struct {
	KeysPressed map[core.KeyCode]bool
	// ShadersChanged is set when compiled shaders changed on disk.
	ShadersChanged bool
}

func (i Input) Pressed(key core.KeyCode) bool {
	return i.KeysPressed[key]
}
