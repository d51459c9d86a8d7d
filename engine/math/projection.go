package math

import "github.com/go-gl/mathgl/mgl32"

// vulkanClip maps OpenGL clip space depth [-1,1] to [0,1]. The Y flip is left to the
// viewport, which is created with a negative height.
var vulkanClip = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

func Perspective(fovyRadians, aspect, near, far float32) Mat4 {
	return vulkanClip.Mul4(mgl32.Perspective(fovyRadians, aspect, near, far))
}

func Orthographic(left, right, bottom, top, near, far float32) Mat4 {
	return vulkanClip.Mul4(mgl32.Ortho(left, right, bottom, top, near, far))
}

func LookAt(eye, center, up Vec3) Mat4 {
	return mgl32.LookAtV(eye, center, up)
}

// ViewDepth is the distance of p along the camera forward axis.
func ViewDepth(p, cameraPosition, cameraForward Vec3) float32 {
	return p.Sub(cameraPosition).Dot(cameraForward)
}
