package testbed

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
	"github.com/spaghettifunk/deferred/engine/renderer/deferred"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCamera() renderer.CameraParams {
	return renderer.CameraParams{
		FovDegrees: 45,
		Position:   mgl32.Vec3{0, 10, 20},
		Up:         mgl32.Vec3{0, 1, 0},
	}
}

func TestSceneLayoutMatchesPipeline(t *testing.T) {
	s := NewScene(testCamera(), 4)
	vertices, stride := s.Vertices()
	assert.Equal(t, deferred.MeshVertexLayout.Stride, stride)
	assert.Zero(t, len(vertices)%int(stride))

	// cube: 6 faces of 4 vertices, plane: 4
	assert.Equal(t, (24+4)*VertexStride, len(vertices))
	assert.Len(t, s.Indices(), 36+6)
	assert.Len(t, s.MeshInfo(), 2*MeshInfoSize)
	require.Len(t, s.Cameras(), 1)
	assert.Equal(t, testCamera(), s.Cameras()[0])
}

func TestSceneInstancesStayInsideTheirMesh(t *testing.T) {
	s := NewScene(testCamera(), 6)
	vertices, stride := s.Vertices()
	vertexCount := uint32(len(vertices)) / stride
	indices := s.Indices()

	// plane + centre cube + ring
	require.Len(t, s.Instances(), 2+6)
	for i, inst := range s.Instances() {
		require.LessOrEqual(t, int(inst.IndexOffset+inst.IndexCount), len(indices), "instance %d", i)
		for _, idx := range indices[inst.IndexOffset : inst.IndexOffset+inst.IndexCount] {
			assert.Less(t, uint32(inst.VertexOffset)+idx, vertexCount, "instance %d", i)
		}
	}
	assert.Equal(t, MeshPlane, s.Instances()[0].MeshID)
	assert.Equal(t, MeshCube, s.Instances()[1].MeshID)
	assert.InDelta(t, -1, s.Instances()[0].Transform.Col(3).Y(), 1e-6)
}

func TestSceneMeshInfo(t *testing.T) {
	s := NewScene(testCamera(), 0)
	info := s.MeshInfo()
	plane := info[MeshPlane*MeshInfoSize:]
	assert.Equal(t, uint32(24), binary.LittleEndian.Uint32(plane[0:]), "vertex offset")
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(plane[4:]), "vertex count")
	assert.Equal(t, uint32(36), binary.LittleEndian.Uint32(plane[8:]), "index offset")
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(plane[12:]), "index count")
}

func TestVertexEncoding(t *testing.T) {
	b := &meshBuilder{}
	b.vertex(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 1}, mgl32.Vec2{0.5, 0.25}, mgl32.Vec3{-1, 0, 0})
	require.Len(t, b.vertices, VertexStride)

	f := func(off int) float32 { return gomath.Float32frombits(binary.LittleEndian.Uint32(b.vertices[off:])) }
	assert.Equal(t, float32(1), f(0))
	assert.Equal(t, float32(2), f(4))
	assert.Equal(t, float32(3), f(8))
	assert.Equal(t, uint32(0x007f0000), binary.LittleEndian.Uint32(b.vertices[12:]))
	assert.Equal(t, float32(0.5), f(16))
	assert.Equal(t, float32(0.25), f(20))
	assert.Equal(t, uint32(0x00000081), binary.LittleEndian.Uint32(b.vertices[24:]))
}

func TestPackSnorm4x8(t *testing.T) {
	tests := []struct {
		in   mgl32.Vec3
		want uint32
	}{
		{mgl32.Vec3{0, 0, 0}, 0},
		{mgl32.Vec3{1, 0, 0}, 0x7f},
		{mgl32.Vec3{0, -1, 0}, 0x8100},
		{mgl32.Vec3{0, 0, 2}, 0x7f0000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, packSnorm4x8(tt.in), "%v", tt.in)
	}
}

func TestOrbitStopsOnMovement(t *testing.T) {
	core.InputReset()
	t.Cleanup(core.InputReset)

	g, err := NewTestGame(core.DefaultConfig())
	require.NoError(t, err)
	cam := components.NewCamera(testCamera())
	cam.TakeChanged()

	require.NoError(t, g.Update(1, cam))
	assert.True(t, cam.TakeChanged())
	assert.InDelta(t, 20, mgl32.Vec2{cam.Position.X(), cam.Position.Z()}.Len(), 1e-3)
	assert.Equal(t, mgl32.Vec3{}, cam.LookAt)
	core.InputUpdate()

	core.InputProcessKey(core.KEY_W, true)
	before := cam.Position
	require.NoError(t, g.Update(1, cam))
	assert.False(t, cam.TakeChanged())
	assert.Equal(t, before, cam.Position)
}
