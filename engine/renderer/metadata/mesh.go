package metadata

import (
	"encoding/binary"

	"github.com/spaghettifunk/armada/engine/math"
)

// MeshType names an application mesh; the renderer keeps one pool per value.
type MeshType string

const (
	MeshTypeTeapot             MeshType = "Teapot"
	MeshTypeSpaceship          MeshType = "Spaceship"
	MeshTypeFrigate            MeshType = "Frigate"
	MeshTypeSphere             MeshType = "Sphere"
	MeshTypeCube               MeshType = "Cube"
	MeshTypeMonkey             MeshType = "Monkey"
	MeshTypeTurretBase         MeshType = "TurretBase"
	MeshTypeTurretBarrel       MeshType = "TurretBarrel"
	MeshTypeBillboardBullet    MeshType = "BillboardBullet"
	MeshTypeBillboardExplosion MeshType = "BillboardExplosion"
	MeshTypeTextQuad           MeshType = "TextQuad"
	MeshTypeSkybox             MeshType = "Skybox"
	MeshTypeUIPanel            MeshType = "UIPanel"
)

const VERTEX_SIZE = 48

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex struct {
	/** @brief The position of the vertex */
	Position math.Vec3
	/** @brief The normal of the vertex. */
	Normal math.Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord math.Vec2
	/** @brief The tangent of the vertex. */
	Tangent math.Vec3
}

func (v Vertex) Encode(dst []byte) {
	NewCursor(dst[:VERTEX_SIZE]).
		Vec3(v.Position).
		Vec3(v.Normal).
		Vec2(v.Texcoord).
		Vec3(v.Tangent).
		Pad(4)
}

/**
 * @brief An indexed triangle mesh as handed to the renderer. The renderer
 * does not keep the host copy after the pool is created.
 */
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) VertexCount() uint32 {
	return uint32(len(m.Vertices))
}

func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, len(m.Vertices)*VERTEX_SIZE)
	for i, v := range m.Vertices {
		v.Encode(out[i*VERTEX_SIZE:])
	}
	return out
}

func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}
