package math

import "github.com/go-gl/mathgl/mgl32"

// Transform is a position/rotation/scale with an optional parent. The local matrix
// is cached until one of the components changes.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
	Parent   *Transform

	local   Mat4
	isDirty bool
}

func TransformCreate() *Transform {
	return TransformFromPositionRotationScale(Vec3{}, mgl32.QuatIdent(), Vec3{1, 1, 1})
}

func TransformFromPosition(position Vec3) *Transform {
	return TransformFromPositionRotationScale(position, mgl32.QuatIdent(), Vec3{1, 1, 1})
}

func TransformFromPositionRotationScale(position Vec3, rotation Quat, scale Vec3) *Transform {
	t := &Transform{}
	t.SetPositionRotationScale(position, rotation, scale)
	return t
}

func (t *Transform) SetPosition(position Vec3) {
	t.Position = position
	t.isDirty = true
}

func (t *Transform) Translate(translation Vec3) {
	t.Position = t.Position.Add(translation)
	t.isDirty = true
}

func (t *Transform) SetRotation(rotation Quat) {
	t.Rotation = rotation
	t.isDirty = true
}

func (t *Transform) Rotate(rotation Quat) {
	t.Rotation = t.Rotation.Mul(rotation).Normalize()
	t.isDirty = true
}

func (t *Transform) SetScale(scale Vec3) {
	t.Scale = scale
	t.isDirty = true
}

func (t *Transform) SetPositionRotationScale(position Vec3, rotation Quat, scale Vec3) {
	t.Position = position
	t.Rotation = rotation
	t.Scale = scale
	t.isDirty = true
}

func (t *Transform) GetLocal() Mat4 {
	if t == nil {
		return Mat4Identity()
	}
	if t.isDirty {
		t.local = TRS(t.Position, t.Rotation, t.Scale)
		t.isDirty = false
	}
	return t.local
}

func (t *Transform) GetWorld() Mat4 {
	if t == nil {
		return Mat4Identity()
	}
	l := t.GetLocal()
	if t.Parent != nil {
		return t.Parent.GetWorld().Mul4(l)
	}
	return l
}
