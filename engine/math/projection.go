package math

import "github.com/go-gl/mathgl/mgl32"

// VulkanClipFix converts an OpenGL style clip space (y up, z in [-1,1]) into
// the Vulkan one (y down, z in [0,1]). Column-major.
var VulkanClipFix = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Projection builds the camera projection for the Vulkan clip space.
func Projection(fovDegrees, aspect, near, far float32) mgl32.Mat4 {
	return VulkanClipFix.Mul4(mgl32.Perspective(mgl32.DegToRad(fovDegrees), aspect, near, far))
}

// LightMatrix is the orthographic view-projection of a directional light
// looking from the origin along dir. radius bounds the x/y extent and length
// the depth range.
func LightMatrix(dir mgl32.Vec3, radius, length float32) mgl32.Mat4 {
	ortho := mgl32.Ortho(-radius, radius, -radius, radius, -length/2, length/2)
	view := mgl32.LookAtV(mgl32.Vec3{}, dir.Mul(10), mgl32.Vec3{0, 1, 0})
	return ortho.Mul4(view)
}

// Aspect guards against a zero height while the window is minimized.
func Aspect(width, height uint32) float32 {
	if height == 0 {
		return 1
	}
	return float32(width) / float32(height)
}
