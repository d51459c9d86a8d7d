package math

import (
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestNormalMatrixUniformScaleIsRotation(t *testing.T) {
	rot := mgl32.QuatRotate(mgl32.DegToRad(37), Vec3{1, 2, 3}.Normalize())
	for _, s := range []float32{0.25, 1, 3.5} {
		model := TRS(Vec3{4, -2, 9}, rot, Vec3{s, s, s})
		n, ok := NormalMatrix(model)
		assert.True(t, ok)
		assert.True(t, NearlyEqualMat4(rot.Mat4(), n, 1e-5), "scale %f: %v", s, n)
	}
}

func TestNormalMatrixNonUniformScale(t *testing.T) {
	model := mgl32.Scale3D(2, 1, 1)
	n, ok := NormalMatrix(model)
	assert.True(t, ok)
	// normals of a surface stretched along X lose their X component
	v := n.Mul4x1(Vec4{1, 1, 0, 0}).Vec3().Normalize()
	assert.Less(t, v.X(), v.Y())
}

func TestNormalMatrixSingularFallsBack(t *testing.T) {
	n, ok := NormalMatrix(mgl32.Scale3D(1, 0, 1))
	assert.False(t, ok)
	assert.Equal(t, Mat4Identity(), n)
}

func TestBillboardFacesCamera(t *testing.T) {
	cases := []struct {
		p, c Vec3
	}{
		{Vec3{0, 0, 0}, Vec3{0, 0, 5}},
		{Vec3{3, -1, 2}, Vec3{-4, 7, 1}},
		{Vec3{0, 0, 0}, Vec3{0, 10, 0}}, // camera straight above
		{Vec3{1, 1, 1}, Vec3{1, -9, 1}},
	}
	for _, tc := range cases {
		model := BillboardModel(tc.p, tc.c, Vec2{0.5, 2})
		want := tc.c.Sub(tc.p).Normalize()

		n, ok := NormalMatrix(model)
		assert.True(t, ok)
		got := n.Mul4x1(Vec4{0, 0, 1, 0}).Vec3().Normalize()
		assert.InDelta(t, 0, got.Sub(want).Len(), 1e-5, "p=%v c=%v", tc.p, tc.c)
		assert.Equal(t, tc.p, model.Col(3).Vec3())
	}
}

func TestVelocityBillboard(t *testing.T) {
	p := Vec3{0, 0, 0}
	c := Vec3{0, 0, 10}
	v := Vec3{3, 0, 0}
	model := VelocityBillboardModel(p, c, v, Vec2{2, 1})

	right := model.Col(0).Vec3()
	assert.InDelta(t, 2, right.Len(), 1e-5)
	assert.InDelta(t, 0, right.Normalize().Sub(Vec3{1, 0, 0}).Len(), 1e-5)
	normal := model.Col(2).Vec3()
	assert.InDelta(t, 0, normal.Sub(Vec3{0, 0, 1}).Len(), 1e-5)

	// zero velocity behaves like a plain billboard
	assert.Equal(t, BillboardModel(p, c, Vec2{2, 1}), VelocityBillboardModel(p, c, Vec3{}, Vec2{2, 1}))
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	near := proj.Mul4x1(Vec4{0, 0, -0.1, 1})
	far := proj.Mul4x1(Vec4{0, 0, -100, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-4)
}

func TestViewDepth(t *testing.T) {
	cam := Vec3{0, 0, 5}
	fwd := Vec3{0, 0, -1}
	assert.InDelta(t, 5, ViewDepth(Vec3{0, 0, 0}, cam, fwd), 1e-6)
	assert.InDelta(t, 10, ViewDepth(Vec3{7, 3, -5}, cam, fwd), 1e-6)
}

func TestAlignUpAndClamp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(uint64(240), 256))
	assert.Equal(t, uint64(256), AlignUp(uint64(256), 256))
	assert.Equal(t, uint32(48), AlignUp(uint32(48), 16))
	assert.Equal(t, uint32(7), AlignUp(uint32(7), 0))
	assert.Equal(t, 3, Clamp(9, 0, 3))
	assert.Equal(t, float32(-1), Clamp(float32(-4), -1, 1))
}

func TestTransformHierarchy(t *testing.T) {
	parent := TransformFromPosition(Vec3{10, 0, 0})
	child := TransformFromPositionRotationScale(Vec3{0, 1, 0}, mgl32.QuatRotate(stdmath.Pi/2, WorldUp), Vec3{2, 2, 2})
	child.Parent = parent
	p := child.GetWorld().Mul4x1(Vec4{0, 0, 0, 1}).Vec3()
	assert.InDelta(t, 0, p.Sub(Vec3{10, 1, 0}).Len(), 1e-5)

	parent.Translate(Vec3{0, 0, 1})
	p = child.GetWorld().Mul4x1(Vec4{0, 0, 0, 1}).Vec3()
	assert.InDelta(t, 0, p.Sub(Vec3{10, 1, 1}).Len(), 1e-5)
}
