package metadata

import "fmt"

// TextureHandle is a dense index into the texture cache. Handle 0 is the
// default 1x1 white texture and stands in for every absent slot.
type TextureHandle uint32

const DefaultTexture TextureHandle = 0

/** @brief The material texture slots, bound at set 1 bindings 1 to 6. */
type TextureSlot int

const (
	TextureSlotBaseColor TextureSlot = iota
	TextureSlotNormal
	TextureSlotMetallicRoughness
	TextureSlotAO
	TextureSlotEmission
	TextureSlotOpacity

	TEXTURE_SLOT_COUNT
)

/** @brief Informational role of an uploaded texture. */
type TextureRole int

const (
	TextureRoleBaseColor TextureRole = iota
	TextureRoleNormal
	TextureRoleMetallicRoughness
	TextureRoleAO
	TextureRoleEmission
	TextureRoleOpacity
	TextureRoleFontAtlas
	TextureRoleUI
)

func (r TextureRole) String() string {
	switch r {
	case TextureRoleBaseColor:
		return "base_color"
	case TextureRoleNormal:
		return "normal"
	case TextureRoleMetallicRoughness:
		return "metallic_roughness"
	case TextureRoleAO:
		return "ao"
	case TextureRoleEmission:
		return "emission"
	case TextureRoleOpacity:
		return "opacity"
	case TextureRoleFontAtlas:
		return "font_atlas"
	case TextureRoleUI:
		return "ui"
	}
	return fmt.Sprintf("TextureRole(%d)", int(r))
}

/**
 * @brief Represents a texture uploaded to the GPU.
 */
type Texture struct {
	/** @brief The texture handle. */
	Handle TextureHandle
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief Channel count of the uploaded pixels, always 4 or 1. */
	ChannelCount uint8
	Role         TextureRole
	/** @brief Debug name used in logs. */
	Name string
	/** @brief Backend image, view and sampler. */
	InternalData interface{}
}

// TextureFlagsOf sets bit i for every slot i that holds a non-default texture.
func TextureFlagsOf(textures [TEXTURE_SLOT_COUNT]TextureHandle) uint32 {
	var flags uint32
	for i, t := range textures {
		if t != DefaultTexture {
			flags |= 1 << uint(i)
		}
	}
	return flags
}
