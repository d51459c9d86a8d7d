package math

import stdmath "math"

const singularEpsilon = 1e-12

// NormalMatrix returns transpose(inverse(upper3x3(model))) embedded in a 4x4, scaled so
// that its determinant has magnitude one. For a uniform scale model T*R*(s*I) this
// yields exactly R. When the upper 3x3 is singular the identity is returned with ok == false.
func NormalMatrix(model Mat4) (Mat4, bool) {
	m3 := model.Mat3()
	det := m3.Det()
	if Abs(det) < singularEpsilon || stdmath.IsNaN(float64(det)) {
		return Mat4Identity(), false
	}
	n := m3.Inv().Transpose()
	scale := float32(stdmath.Cbrt(stdmath.Abs(float64(n.Det()))))
	if scale > 0 {
		n = n.Mul(1 / scale)
	}
	return n.Mat4(), true
}
