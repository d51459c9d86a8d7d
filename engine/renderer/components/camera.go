package components

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// 89 degrees
const pitchLimit = float32(1.55334306)

/**
 * @brief A perspective camera. Rotation is yaw around world Y followed by
 * pitch around the local X axis; at zero rotation it looks down -Z.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/** @brief Pitch, yaw and roll in radians. Use SetEulerRotation(). */
	EulerRotation math.Vec3
	FovY          float32
	Near          float32
	Far           float32

	isDirty    bool
	viewMatrix math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.Vec3{}
	c.Position = math.Vec3{}
	c.FovY = mgl32.DegToRad(60)
	c.Near = 0.1
	c.Far = 1000
	c.isDirty = true
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0], -pitchLimit, pitchLimit)
	c.isDirty = true
}

// LookAt points the camera at target, dropping roll.
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	yaw := float32(stdmath.Atan2(float64(-dir.X()), float64(-dir.Z())))
	pitch := float32(stdmath.Asin(float64(math.Clamp(dir.Y(), -1, 1))))
	c.SetEulerRotation(math.Vec3{pitch, yaw, 0})
}

func (c *Camera) rotation() math.Mat4 {
	return mgl32.HomogRotate3DY(c.EulerRotation.Y()).
		Mul4(mgl32.HomogRotate3DX(c.EulerRotation.X())).
		Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
}

func (c *Camera) GetView() math.Mat4 {
	if c.isDirty {
		world := math.Translation(c.Position).Mul4(c.rotation())
		c.viewMatrix = world.Inv()
		c.isDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) Forward() math.Vec3 {
	return c.rotation().Mul4x1(math.Vec4{0, 0, -1, 0}).Vec3().Normalize()
}

func (c *Camera) Right() math.Vec3 {
	return c.rotation().Mul4x1(math.Vec4{1, 0, 0, 0}).Vec3().Normalize()
}

func (c *Camera) Up() math.Vec3 {
	return c.rotation().Mul4x1(math.Vec4{0, 1, 0, 0}).Vec3().Normalize()
}

func (c *Camera) Projection(extent metadata.Extent) math.Mat4 {
	return math.Perspective(c.FovY, extent.Aspect(), c.Near, c.Far)
}

// UBO builds the frame's camera block for a swapchain of the given extent.
func (c *Camera) UBO(extent metadata.Extent) *metadata.CameraUBO {
	view := c.GetView()
	proj := c.Projection(extent)
	return &metadata.CameraUBO{
		View:           view,
		Projection:     proj,
		ViewProjection: proj.Mul4(view),
		Position:       c.Position,
		Direction:      c.Forward(),
		ViewportSize:   math.Vec2{float32(extent.Width), float32(extent.Height)},
		Near:           c.Near,
		Far:            c.Far,
	}
}

// FillQueue copies the camera basis the instance renderer sorts with.
func (c *Camera) FillQueue(q *metadata.RenderQueue) {
	q.CameraPosition = c.Position
	q.CameraForward = c.Forward()
	q.CameraRight = c.Right()
	q.CameraUp = c.Up()
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Forward(), -amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Right(), -amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(math.WorldUp, amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(math.WorldUp, -amount) }

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount
	// Clamp to avoid Gimbal lock.
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0], -pitchLimit, pitchLimit)
	c.isDirty = true
}
