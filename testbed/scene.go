package testbed

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer"
)

// VertexStride is two vec4: position+packed normal, texcoord+packed tangent.
const VertexStride = 32

// MeshInfoSize is the storage-buffer record per mesh:
// vertexOffset, vertexCount, indexOffset, indexCount.
const MeshInfoSize = 16

const (
	MeshCube uint32 = iota
	MeshPlane
)

type meshRange struct {
	vertexOffset uint32
	vertexCount  uint32
	indexOffset  uint32
	indexCount   uint32
}

// Scene is a procedural scene: one shared vertex/index buffer holding a
// cube and a ground plane, drawn through a list of instances.
type Scene struct {
	vertices  []byte
	indices   []uint32
	meshes    []meshRange
	instances []renderer.Instance
	cameras   []renderer.CameraParams
}

var _ renderer.Scene = (*Scene)(nil)

// packSnorm4x8 matches GLSL unpackSnorm4x8; w is left zero.
func packSnorm4x8(v mgl32.Vec3) uint32 {
	var out uint32
	for i := 0; i < 3; i++ {
		c := math.Clamp(v[i], -1, 1)
		b := int8(gomath.Round(float64(c * 127)))
		out |= uint32(uint8(b)) << (8 * i)
	}
	return out
}

type meshBuilder struct {
	vertices []byte
	indices  []uint32
	count    uint32
}

func (b *meshBuilder) vertex(pos, normal mgl32.Vec3, uv mgl32.Vec2, tangent mgl32.Vec3) {
	var buf [VertexStride]byte
	le := binary.LittleEndian
	le.PutUint32(buf[0:], gomath.Float32bits(pos[0]))
	le.PutUint32(buf[4:], gomath.Float32bits(pos[1]))
	le.PutUint32(buf[8:], gomath.Float32bits(pos[2]))
	le.PutUint32(buf[12:], packSnorm4x8(normal))
	le.PutUint32(buf[16:], gomath.Float32bits(uv[0]))
	le.PutUint32(buf[20:], gomath.Float32bits(uv[1]))
	le.PutUint32(buf[24:], packSnorm4x8(tangent))
	b.vertices = append(b.vertices, buf[:]...)
	b.count++
}

// quad adds a face with corners in counter-clockwise order seen from the normal.
func (b *meshBuilder) quad(corners [4]mgl32.Vec3, normal, tangent mgl32.Vec3) {
	base := b.count
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	for i, c := range corners {
		b.vertex(c, normal, uvs[i], tangent)
	}
	b.indices = append(b.indices, base, base+1, base+2, base, base+2, base+3)
}

// cube adds an axis aligned cube of the given half extent centred at the origin.
func (b *meshBuilder) cube(h float32) {
	type face struct {
		normal, tangent, bitangent mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
	}
	for _, f := range faces {
		c := f.normal.Mul(h)
		t := f.tangent.Mul(h)
		u := f.bitangent.Mul(h)
		b.quad([4]mgl32.Vec3{
			c.Sub(t).Sub(u),
			c.Add(t).Sub(u),
			c.Add(t).Add(u),
			c.Sub(t).Add(u),
		}, f.normal, f.tangent)
	}
}

// plane adds a square in the XZ plane facing +Y.
func (b *meshBuilder) plane(h float32) {
	b.quad([4]mgl32.Vec3{
		{-h, 0, h},
		{h, 0, h},
		{h, 0, -h},
		{-h, 0, -h},
	}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0})
}

// NewScene builds a ground plane with a ring of cubes around a centre cube.
func NewScene(camera renderer.CameraParams, ringCount int) *Scene {
	b := &meshBuilder{}
	s := &Scene{cameras: []renderer.CameraParams{camera}}

	add := func(build func()) {
		r := meshRange{vertexOffset: b.count, indexOffset: uint32(len(b.indices))}
		build()
		r.vertexCount = b.count - r.vertexOffset
		r.indexCount = uint32(len(b.indices)) - r.indexOffset
		s.meshes = append(s.meshes, r)
	}
	add(func() { b.cube(1) })
	add(func() { b.plane(20) })

	// Indices are local to each mesh; VertexOffset rebases them.
	for _, m := range s.meshes {
		for i := m.indexOffset; i < m.indexOffset+m.indexCount; i++ {
			b.indices[i] -= m.vertexOffset
		}
	}
	s.vertices = b.vertices
	s.indices = b.indices

	s.addInstance(MeshPlane, math.TransformFromPosition(mgl32.Vec3{0, -1, 0}))
	s.addInstance(MeshCube, math.TransformFromPositionRotationScale(
		mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{2, 2, 2}))
	for i := 0; i < ringCount; i++ {
		angle := float32(2 * gomath.Pi * float64(i) / float64(ringCount))
		pos := mgl32.Vec3{
			float32(8 * gomath.Cos(float64(angle))),
			0,
			float32(8 * gomath.Sin(float64(angle))),
		}
		s.addInstance(MeshCube, math.TransformFromPositionRotationScale(
			pos, mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0}), mgl32.Vec3{1, 1, 1}))
	}
	return s
}

func (s *Scene) addInstance(mesh uint32, t *math.Transform) {
	model := t.GetWorld()
	m := s.meshes[mesh]
	s.instances = append(s.instances, renderer.Instance{
		MeshID:       mesh,
		Transform:    model,
		IndexOffset:  m.indexOffset,
		IndexCount:   m.indexCount,
		VertexOffset: int32(m.vertexOffset),
	})
}

func (s *Scene) Vertices() ([]byte, uint32) {
	return s.vertices, VertexStride
}

func (s *Scene) Indices() []uint32 {
	return s.indices
}

func (s *Scene) MeshInfo() []byte {
	out := make([]byte, MeshInfoSize*len(s.meshes))
	for i, m := range s.meshes {
		rec := out[i*MeshInfoSize:]
		binary.LittleEndian.PutUint32(rec[0:], m.vertexOffset)
		binary.LittleEndian.PutUint32(rec[4:], m.vertexCount)
		binary.LittleEndian.PutUint32(rec[8:], m.indexOffset)
		binary.LittleEndian.PutUint32(rec[12:], m.indexCount)
	}
	return out
}

func (s *Scene) Instances() []renderer.Instance {
	return s.instances
}

func (s *Scene) Cameras() []renderer.CameraParams {
	return s.cameras
}
