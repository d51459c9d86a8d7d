package assets

import (
	stdmath "math"

	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

type cubeFace struct {
	normal, u, v math.Vec3
}

// u x v == normal for every face, so the quads wind counter-clockwise seen
// from outside.
var cubeFaces = [6]cubeFace{
	{normal: math.Vec3{1, 0, 0}, u: math.Vec3{0, 0, -1}, v: math.Vec3{0, 1, 0}},
	{normal: math.Vec3{-1, 0, 0}, u: math.Vec3{0, 0, 1}, v: math.Vec3{0, 1, 0}},
	{normal: math.Vec3{0, 1, 0}, u: math.Vec3{1, 0, 0}, v: math.Vec3{0, 0, -1}},
	{normal: math.Vec3{0, -1, 0}, u: math.Vec3{1, 0, 0}, v: math.Vec3{0, 0, 1}},
	{normal: math.Vec3{0, 0, 1}, u: math.Vec3{1, 0, 0}, v: math.Vec3{0, 1, 0}},
	{normal: math.Vec3{0, 0, -1}, u: math.Vec3{-1, 0, 0}, v: math.Vec3{0, 1, 0}},
}

// appendQuad adds a rectangle centered on center spanning u and v.
func appendQuad(m *metadata.Mesh, center, u, v, normal math.Vec3, halfU, halfV float32) {
	base := uint32(len(m.Vertices))
	corners := [4]struct{ su, sv, tu, tv float32 }{
		{-1, -1, 0, 1},
		{1, -1, 1, 1},
		{1, 1, 1, 0},
		{-1, 1, 0, 0},
	}
	for _, c := range corners {
		pos := center.Add(u.Mul(c.su * halfU)).Add(v.Mul(c.sv * halfV))
		m.Vertices = append(m.Vertices, metadata.Vertex{
			Position: pos,
			Normal:   normal,
			Texcoord: math.Vec2{c.tu, c.tv},
			Tangent:  u,
		})
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

// Cube is an axis aligned cube of edge size centered on the origin with
// four vertices per face.
func Cube(size float32) *metadata.Mesh {
	m := &metadata.Mesh{Name: string(metadata.MeshTypeCube)}
	h := size / 2
	for _, f := range cubeFaces {
		appendQuad(m, f.normal.Mul(h), f.u, f.v, f.normal, h, h)
	}
	return m
}

// SkyboxCube is a unit-radius cube drawn from the inside; the skybox
// pipeline culls front faces.
func SkyboxCube() *metadata.Mesh {
	m := Cube(2)
	m.Name = string(metadata.MeshTypeSkybox)
	return m
}

// Quad faces +Z, centered on the origin. Billboards and UI panels use it.
func Quad(width, height float32) *metadata.Mesh {
	m := &metadata.Mesh{Name: "Quad"}
	appendQuad(m, math.Vec3{}, math.Vec3{1, 0, 0}, math.Vec3{0, 1, 0}, math.Vec3{0, 0, 1}, width/2, height/2)
	return m
}

// UVSphere builds a sphere of segments slices around Y and rings stacks from
// pole to pole. Pole triangles that would be degenerate are left out.
func UVSphere(radius float32, segments, rings int) *metadata.Mesh {
	segments = max(segments, 3)
	rings = max(rings, 2)
	m := &metadata.Mesh{Name: string(metadata.MeshTypeSphere)}

	for r := 0; r <= rings; r++ {
		theta := stdmath.Pi * float64(r) / float64(rings)
		sinT, cosT := stdmath.Sincos(theta)
		for s := 0; s <= segments; s++ {
			phi := 2 * stdmath.Pi * float64(s) / float64(segments)
			sinP, cosP := stdmath.Sincos(phi)
			n := math.Vec3{float32(sinT * sinP), float32(cosT), float32(sinT * cosP)}
			m.Vertices = append(m.Vertices, metadata.Vertex{
				Position: n.Mul(radius),
				Normal:   n,
				Texcoord: math.Vec2{float32(s) / float32(segments), float32(r) / float32(rings)},
				Tangent:  math.Vec3{float32(cosP), 0, float32(-sinP)},
			})
		}
	}

	stride := uint32(segments + 1)
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r)*stride + uint32(s)
			b := a + stride
			if r != rings-1 {
				m.Indices = append(m.Indices, a, b, b+1)
			}
			if r != 0 {
				m.Indices = append(m.Indices, a, b+1, a+1)
			}
		}
	}
	return m
}
