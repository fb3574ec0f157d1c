package deferred

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

const (
	// UniformSize is the std140 size of UniformParams rounded up to 16 bytes.
	UniformSize = 256
	// PushConstantsSize is model, color and instance id.
	PushConstantsSize = 84
)

// UniformParams is the per-frame uniform block shared by every pass.
type UniformParams struct {
	BaseColor             mgl32.Vec3
	Time                  float32
	Proj                  mgl32.Mat4
	View                  mgl32.Mat4
	LightMatrix           mgl32.Mat4
	LightAngle            mgl32.Vec3
	ScreenWidth           float32
	LightPos              mgl32.Vec3
	ScreenHeight          float32
	AnimateLightColor     bool
	EnableSSAO            bool
	PostFxDownscaleFactor uint32
}

type encoder struct {
	buf []byte
	off int
}

func (e *encoder) f32(v float32) {
	binary.LittleEndian.PutUint32(e.buf[e.off:], gomath.Float32bits(v))
	e.off += 4
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[e.off:], v)
	e.off += 4
}

func (e *encoder) vec3(v mgl32.Vec3) {
	for _, c := range v {
		e.f32(c)
	}
}

func (e *encoder) vec4(v mgl32.Vec4) {
	for _, c := range v {
		e.f32(c)
	}
}

// mat4 writes column-major, which is what std140 and mgl32 both use.
func (e *encoder) mat4(m mgl32.Mat4) {
	for _, c := range m {
		e.f32(c)
	}
}

func b32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// MarshalBinary encodes the block with std140 layout.
func (p *UniformParams) MarshalBinary() ([]byte, error) {
	e := &encoder{buf: make([]byte, UniformSize)}
	e.vec3(p.BaseColor)
	e.f32(p.Time)
	e.mat4(p.Proj)
	e.mat4(p.View)
	e.mat4(p.LightMatrix)
	e.vec3(p.LightAngle)
	e.f32(p.ScreenWidth)
	e.vec3(p.LightPos)
	e.f32(p.ScreenHeight)
	e.u32(b32(p.AnimateLightColor))
	e.u32(b32(p.EnableSSAO))
	e.u32(p.PostFxDownscaleFactor)
	return e.buf, nil
}

// PushConstants is pushed before every draw.
type PushConstants struct {
	Model      mgl32.Mat4
	Color      mgl32.Vec4
	InstanceID uint32
}

func (p *PushConstants) Bytes() []byte {
	e := &encoder{buf: make([]byte, PushConstantsSize)}
	e.mat4(p.Model)
	e.vec4(p.Color)
	e.u32(p.InstanceID)
	return e.buf
}

// meshColors is cycled by instance index.
var meshColors = [3]mgl32.Vec4{
	{1, 1, 1, 1},
	{1, 1, 1, 1},
	{1, 1, 1, 1},
}

// InstancePushConstants builds the push block of the i-th instance. The
// index only picks the palette color; the shaders look up the mesh by id.
func InstancePushConstants(i int, inst renderer.Instance) PushConstants {
	return PushConstants{
		Model:      inst.Transform,
		Color:      meshColors[i%len(meshColors)],
		InstanceID: inst.MeshID,
	}
}

// LightSettings drive the light terms of the uniform block.
type LightSettings struct {
	Direction    mgl32.Vec3
	Position     mgl32.Vec3
	BaseColor    mgl32.Vec3
	Radius       float32
	Length       float32
	AnimateColor bool
}

// DefaultLightSettings is a light looking down -z.
func DefaultLightSettings() LightSettings {
	return LightSettings{
		Direction:    mgl32.Vec3{0, 0, -1},
		BaseColor:    mgl32.Vec3{0.9, 0.92, 1.0},
		Radius:       50,
		Length:       1000,
		AnimateColor: true,
	}
}

// CameraMatrices returns the Vulkan projection and the view matrix of a camera.
func CameraMatrices(cam renderer.CameraParams, extent vk.Extent2D, near, far float32) (mgl32.Mat4, mgl32.Mat4) {
	proj := math.Projection(cam.FovDegrees, math.Aspect(extent.Width, extent.Height), near, far)
	view := mgl32.LookAtV(cam.Position, cam.LookAt, cam.Up)
	return proj, view
}

// UniformStream keeps the uniform block and its host-visible buffer in sync.
type UniformStream struct {
	buf    gpu.HostBuffer
	Params UniformParams
	light  LightSettings
}

func NewUniformStream(dev gpu.Device, light LightSettings, enableSSAO bool, downscale uint32) (*UniformStream, error) {
	buf, err := dev.CreateHostBuffer(UniformSize, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		return nil, core.Fatal(errors.Wrap(err, "failed to create uniform buffer"))
	}
	return &UniformStream{
		buf:   buf,
		light: light,
		Params: UniformParams{
			BaseColor:             light.BaseColor,
			Proj:                  mgl32.Ident4(),
			View:                  mgl32.Ident4(),
			LightMatrix:           mgl32.Ident4(),
			LightAngle:            light.Direction,
			LightPos:              light.Position,
			AnimateLightColor:     light.AnimateColor,
			EnableSSAO:            enableSSAO,
			PostFxDownscaleFactor: math.Clamp(downscale, 1, 64),
		},
	}, nil
}

func (s *UniformStream) Buffer() gpu.Buffer {
	return s.buf
}

func (s *UniformStream) SetCamera(proj, view mgl32.Mat4) {
	s.Params.Proj = proj
	s.Params.View = view
}

// Update refreshes the time, light and screen terms and copies the block
// into the buffer. The caller guarantees the GPU is no longer reading it.
func (s *UniformStream) Update(time float32, extent vk.Extent2D) error {
	s.Params.Time = time
	s.Params.LightMatrix = math.LightMatrix(s.light.Direction, s.light.Radius, s.light.Length)
	s.Params.ScreenWidth = float32(extent.Width)
	s.Params.ScreenHeight = float32(extent.Height)

	data, err := s.Params.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.buf.Write(0, data); err != nil {
		return core.Fatal(errors.Wrap(err, "failed to write uniform buffer"))
	}
	return nil
}

func (s *UniformStream) Destroy() {
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
}
