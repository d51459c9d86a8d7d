package metadata

import "github.com/spaghettifunk/armada/engine/math"

const (
	CAMERA_UBO_SIZE    = 240
	LIGHTING_UBO_SIZE  = 16 + 16 + MAX_DIRECTIONAL_LIGHTS*32 + MAX_POINT_LIGHTS*32
	MATERIAL_UBO_SIZE  = 48
	PUSH_CONSTANT_SIZE = 128

	MAX_DIRECTIONAL_LIGHTS = 4
	MAX_POINT_LIGHTS       = 16
)

/** @brief Per-frame camera block, std140. */
type CameraUBO struct {
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	Position       math.Vec3
	Direction      math.Vec3
	ViewportSize   math.Vec2
	Near           float32
	Far            float32
}

func (u *CameraUBO) Encode(dst []byte) error {
	if err := checkSize("camera ubo", dst, CAMERA_UBO_SIZE); err != nil {
		return err
	}
	NewCursor(dst).
		Mat4(u.View).
		Mat4(u.Projection).
		Mat4(u.ViewProjection).
		Vec4(u.Position.Vec4(1)).
		Vec4(u.Direction.Vec4(0)).
		Vec2(u.ViewportSize).
		F32(u.Near).
		F32(u.Far)
	return nil
}

type DirectionalLight struct {
	Direction math.Vec3
	Color     math.Vec3
	Intensity float32
}

type PointLight struct {
	Position  math.Vec3
	Color     math.Vec3
	Intensity float32
	Range     float32
}

/**
 * @brief The lights of a scene. Only the first MAX_DIRECTIONAL_LIGHTS and
 * MAX_POINT_LIGHTS entries reach the GPU.
 */
type LightingEnvironment struct {
	Ambient     math.Vec3
	Directional []DirectionalLight
	Point       []PointLight
}

func DefaultLighting() LightingEnvironment {
	return LightingEnvironment{
		Ambient: math.Vec3{0.15, 0.15, 0.18},
		Directional: []DirectionalLight{
			{Direction: math.Vec3{-0.4, -1, -0.6}.Normalize(), Color: math.Vec3{1, 0.97, 0.92}, Intensity: 1.2},
		},
	}
}

// Encode writes the std140 block and reports whether lights were truncated.
func (l *LightingEnvironment) Encode(dst []byte) (truncated bool, err error) {
	if err := checkSize("lighting ubo", dst, LIGHTING_UBO_SIZE); err != nil {
		return false, err
	}
	dirs := l.Directional
	points := l.Point
	if len(dirs) > MAX_DIRECTIONAL_LIGHTS {
		dirs = dirs[:MAX_DIRECTIONAL_LIGHTS]
		truncated = true
	}
	if len(points) > MAX_POINT_LIGHTS {
		points = points[:MAX_POINT_LIGHTS]
		truncated = true
	}

	c := NewCursor(dst).
		U32(uint32(len(dirs))).
		U32(uint32(len(points))).
		Pad(8).
		Vec4(l.Ambient.Vec4(1))
	for i := 0; i < MAX_DIRECTIONAL_LIGHTS; i++ {
		if i < len(dirs) {
			d := dirs[i]
			c.Vec4(d.Direction.Vec4(0)).Vec4(d.Color.Mul(d.Intensity).Vec4(d.Intensity))
		} else {
			c.Pad(32)
		}
	}
	for i := 0; i < MAX_POINT_LIGHTS; i++ {
		if i < len(points) {
			p := points[i]
			c.Vec4(p.Position.Vec4(p.Range)).Vec4(p.Color.Mul(p.Intensity).Vec4(p.Intensity))
		} else {
			c.Pad(32)
		}
	}
	return truncated, nil
}

/** @brief Per-material block bound at set 1 binding 0. */
type MaterialUBO struct {
	BaseColor    math.Vec4
	Emission     math.Vec4
	Metallic     float32
	Roughness    float32
	Alpha        float32
	TextureFlags uint32
}

func (u *MaterialUBO) Encode(dst []byte) error {
	if err := checkSize("material ubo", dst, MATERIAL_UBO_SIZE); err != nil {
		return err
	}
	NewCursor(dst).
		Vec4(u.BaseColor).
		Vec4(u.Emission).
		F32(u.Metallic).
		F32(u.Roughness).
		F32(u.Alpha).
		U32(u.TextureFlags)
	return nil
}

/**
 * @brief The 128 byte push constant block shared by every pipeline: model,
 * the normal matrix as three vec4 columns, and the material color.
 */
type PushConstants struct {
	Model         math.Mat4
	Normal        math.Mat4
	MaterialColor math.Vec4
}

func (p *PushConstants) Bytes() []byte {
	out := make([]byte, PUSH_CONSTANT_SIZE)
	c := NewCursor(out).Mat4(p.Model)
	for col := 0; col < 3; col++ {
		c.Vec4(p.Normal.Col(col))
	}
	c.Vec4(p.MaterialColor)
	return out
}
