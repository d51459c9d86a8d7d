package math

import "github.com/go-gl/mathgl/mgl32"

type (
	Vec2 = mgl32.Vec2
	Vec3 = mgl32.Vec3
	Vec4 = mgl32.Vec4
	Mat3 = mgl32.Mat3
	Mat4 = mgl32.Mat4
	Quat = mgl32.Quat
)

var (
	WorldUp      = Vec3{0, 1, 0}
	WorldForward = Vec3{0, 0, -1}
	WorldRight   = Vec3{1, 0, 0}
)

func Mat4Identity() Mat4 {
	return mgl32.Ident4()
}

func Translation(p Vec3) Mat4 {
	return mgl32.Translate3D(p.X(), p.Y(), p.Z())
}

// TRS composes translation, rotation and scale in that order (scale applied first).
func TRS(position Vec3, rotation Quat, scale Vec3) Mat4 {
	return Translation(position).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// NearlyEqualMat4 compares every element within eps.
func NearlyEqualMat4(a, b Mat4, eps float32) bool {
	for i := range a {
		if Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func Mat4FromCols(c0, c1, c2, c3 Vec4) Mat4 {
	return mgl32.Mat4FromCols(c0, c1, c2, c3)
}
