package components

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer"
)

/**
 * @brief A look-at camera. Movement keeps the look-at point at the same
 * offset so the camera strafes instead of orbiting.
 */
type Camera struct {
	FovDegrees float32
	Position   mgl32.Vec3
	LookAt     mgl32.Vec3
	Up         mgl32.Vec3
	/** @brief Set by every mutation, cleared by TakeChanged. */
	IsDirty bool
}

// pitch limit, 89 degrees
const pitchLimit = float32(1.55334306)

func NewCamera(params renderer.CameraParams) *Camera {
	return &Camera{
		FovDegrees: params.FovDegrees,
		Position:   params.Position,
		LookAt:     params.LookAt,
		Up:         params.Up,
		IsDirty:    true,
	}
}

func (c *Camera) Params() renderer.CameraParams {
	return renderer.CameraParams{
		FovDegrees: c.FovDegrees,
		Position:   c.Position,
		LookAt:     c.LookAt,
		Up:         c.Up,
	}
}

// TakeChanged reports whether the camera moved since the last call.
func (c *Camera) TakeChanged() bool {
	changed := c.IsDirty
	c.IsDirty = false
	return changed
}

func (c *Camera) Forward() mgl32.Vec3 {
	dir := c.LookAt.Sub(c.Position)
	if dir.Len() == 0 {
		return mgl32.Vec3{0, 0, -1}
	}
	return dir.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(c.Up).Normalize()
}

func (c *Camera) move(delta mgl32.Vec3) {
	c.Position = c.Position.Add(delta)
	c.LookAt = c.LookAt.Add(delta)
	c.IsDirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward().Mul(amount))
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Forward().Mul(-amount))
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Right().Mul(-amount))
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right().Mul(amount))
}

func (c *Camera) MoveUp(amount float32) {
	c.move(c.Up.Normalize().Mul(amount))
}

func (c *Camera) MoveDown(amount float32) {
	c.move(c.Up.Normalize().Mul(-amount))
}

// Yaw turns the view direction around the up axis.
func (c *Camera) Yaw(amount float32) {
	dist := c.LookAt.Sub(c.Position).Len()
	rot := mgl32.QuatRotate(amount, c.Up.Normalize())
	c.LookAt = c.Position.Add(rot.Rotate(c.Forward()).Mul(dist))
	c.IsDirty = true
}

// Pitch tilts the view direction, clamped short of straight up or down.
func (c *Camera) Pitch(amount float32) {
	fwd := c.Forward()
	up := c.Up.Normalize()
	current := float32(gomath.Asin(float64(math.Clamp(fwd.Dot(up), -1, 1))))
	target := math.Clamp(current+amount, -pitchLimit, pitchLimit)
	dist := c.LookAt.Sub(c.Position).Len()
	rot := mgl32.QuatRotate(target-current, c.Right())
	c.LookAt = c.Position.Add(rot.Rotate(fwd).Mul(dist))
	c.IsDirty = true
}
