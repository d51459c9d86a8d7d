package metadata

import "github.com/spaghettifunk/armada/engine/math"

// MaterialSetID is a dense index of a material descriptor set owned by the renderer.
type MaterialSetID uint32

// FrameSetID is a dense index of a frame descriptor set (camera + lighting).
type FrameSetID uint32

/**
 * @brief A material is one of PBRMaterial, UnlitMaterial, SkyboxMaterial,
 * BillboardMaterial or UIMaterial. Its kind and transparency decide the only
 * pipeline class it can be drawn with.
 */
type Material interface {
	isMaterial()
	MaterialName() string
	PipelineClass() PipelineClass
	Uniform() MaterialUBO
	Textures() [TEXTURE_SLOT_COUNT]TextureHandle
}

// Supports reports whether m can be drawn with class.
func Supports(m Material, class PipelineClass) bool {
	return m.PipelineClass() == class
}

type PBRMaterial struct {
	Name        string
	BaseColor   math.Vec4
	Emission    math.Vec4
	Metallic    float32
	Roughness   float32
	Alpha       float32
	Transparent bool
	Maps        [TEXTURE_SLOT_COUNT]TextureHandle
}

func NewPBRMaterial(name string, baseColor math.Vec3, metallic, roughness float32) *PBRMaterial {
	return &PBRMaterial{
		Name:      name,
		BaseColor: baseColor.Vec4(1),
		Metallic:  metallic,
		Roughness: roughness,
		Alpha:     1,
	}
}

func (*PBRMaterial) isMaterial() {}

func (m *PBRMaterial) MaterialName() string { return m.Name }

func (m *PBRMaterial) PipelineClass() PipelineClass {
	if m.Transparent {
		return PipelineClassTransparentPBR
	}
	return PipelineClassOpaquePBR
}

func (m *PBRMaterial) Uniform() MaterialUBO {
	return MaterialUBO{
		BaseColor:    m.BaseColor,
		Emission:     m.Emission,
		Metallic:     m.Metallic,
		Roughness:    m.Roughness,
		Alpha:        m.Alpha,
		TextureFlags: TextureFlagsOf(m.Maps),
	}
}

func (m *PBRMaterial) Textures() [TEXTURE_SLOT_COUNT]TextureHandle { return m.Maps }

type UnlitMaterial struct {
	Name        string
	Color       math.Vec4
	Transparent bool
	Texture     TextureHandle
}

func (*UnlitMaterial) isMaterial() {}

func (m *UnlitMaterial) MaterialName() string { return m.Name }

func (m *UnlitMaterial) PipelineClass() PipelineClass {
	if m.Transparent {
		return PipelineClassTransparentUnlit
	}
	return PipelineClassUnlit
}

func (m *UnlitMaterial) Uniform() MaterialUBO {
	return MaterialUBO{
		BaseColor:    m.Color,
		Alpha:        m.Color.W(),
		Roughness:    1,
		TextureFlags: TextureFlagsOf(m.Textures()),
	}
}

func (m *UnlitMaterial) Textures() [TEXTURE_SLOT_COUNT]TextureHandle {
	return [TEXTURE_SLOT_COUNT]TextureHandle{TextureSlotBaseColor: m.Texture}
}

type SkyboxMaterial struct {
	Name    string
	Tint    math.Vec4
	Texture TextureHandle
}

func (*SkyboxMaterial) isMaterial() {}

func (m *SkyboxMaterial) MaterialName() string { return m.Name }

func (m *SkyboxMaterial) PipelineClass() PipelineClass { return PipelineClassSkybox }

func (m *SkyboxMaterial) Uniform() MaterialUBO {
	return MaterialUBO{BaseColor: m.Tint, Alpha: 1, TextureFlags: TextureFlagsOf(m.Textures())}
}

func (m *SkyboxMaterial) Textures() [TEXTURE_SLOT_COUNT]TextureHandle {
	return [TEXTURE_SLOT_COUNT]TextureHandle{TextureSlotBaseColor: m.Texture}
}

// BillboardMaterial is always blended; bullets and explosions use the emission strength.
type BillboardMaterial struct {
	Name     string
	Color    math.Vec4
	Emission math.Vec4
	Texture  TextureHandle
}

func (*BillboardMaterial) isMaterial() {}

func (m *BillboardMaterial) MaterialName() string { return m.Name }

func (m *BillboardMaterial) PipelineClass() PipelineClass { return PipelineClassBillboardTextured }

func (m *BillboardMaterial) Uniform() MaterialUBO {
	return MaterialUBO{
		BaseColor:    m.Color,
		Emission:     m.Emission,
		Alpha:        m.Color.W(),
		TextureFlags: TextureFlagsOf(m.Textures()),
	}
}

func (m *BillboardMaterial) Textures() [TEXTURE_SLOT_COUNT]TextureHandle {
	return [TEXTURE_SLOT_COUNT]TextureHandle{TextureSlotBaseColor: m.Texture}
}

type UIMaterial struct {
	Name  string
	Color math.Vec4
	// Text selects the UIText pipeline, which samples Texture as a font atlas.
	Text    bool
	Texture TextureHandle
}

func (*UIMaterial) isMaterial() {}

func (m *UIMaterial) MaterialName() string { return m.Name }

func (m *UIMaterial) PipelineClass() PipelineClass {
	if m.Text {
		return PipelineClassUIText
	}
	return PipelineClassUIPanel
}

func (m *UIMaterial) Uniform() MaterialUBO {
	return MaterialUBO{BaseColor: m.Color, Alpha: m.Color.W(), TextureFlags: TextureFlagsOf(m.Textures())}
}

func (m *UIMaterial) Textures() [TEXTURE_SLOT_COUNT]TextureHandle {
	return [TEXTURE_SLOT_COUNT]TextureHandle{TextureSlotBaseColor: m.Texture}
}
