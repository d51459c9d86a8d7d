package math

const parallelEpsilon = 1e-6

// BillboardModel builds a model matrix for a quad in the XY plane so that its +Z
// normal points from position towards the camera.
//
// Columns are right*size.x, up*size.y, forward, position.
func BillboardModel(position, camera Vec3, size Vec2) Mat4 {
	f, ok := towards(position, camera)
	if !ok {
		return Translation(position)
	}
	right := WorldUp.Cross(f)
	if right.Len() < parallelEpsilon {
		right = Vec3{0, 0, 1}.Cross(f)
	}
	right = right.Normalize()
	up := f.Cross(right)
	return billboardColumns(right, up, f, position, size)
}

// VelocityBillboardModel stretches the quad along the velocity: right follows the
// velocity and up is recomputed against the direction to the camera. A zero velocity,
// or one parallel to the view direction, falls back to BillboardModel.
func VelocityBillboardModel(position, camera, velocity Vec3, size Vec2) Mat4 {
	f, ok := towards(position, camera)
	if !ok || velocity.Len() < parallelEpsilon {
		return BillboardModel(position, camera, size)
	}
	right := velocity.Normalize()
	up := f.Cross(right)
	if up.Len() < parallelEpsilon {
		return BillboardModel(position, camera, size)
	}
	up = up.Normalize()
	normal := right.Cross(up)
	return billboardColumns(right, up, normal, position, size)
}

func towards(position, camera Vec3) (Vec3, bool) {
	d := camera.Sub(position)
	if d.Len() < parallelEpsilon {
		return Vec3{}, false
	}
	return d.Normalize(), true
}

func billboardColumns(right, up, normal, position Vec3, size Vec2) Mat4 {
	r := right.Mul(size.X())
	u := up.Mul(size.Y())
	return Mat4{
		r.X(), r.Y(), r.Z(), 0,
		u.X(), u.Y(), u.Z(), 0,
		normal.X(), normal.Y(), normal.Z(), 0,
		position.X(), position.Y(), position.Z(), 1,
	}
}
