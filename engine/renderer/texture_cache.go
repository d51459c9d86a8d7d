package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// TextureCache owns every uploaded texture. Handles are dense and never reused;
// handle 0 is the default white texture.
type TextureCache struct {
	backend  RendererBackend
	textures []*metadata.Texture
	max      uint32
}

func NewTextureCache(backend RendererBackend, max uint32) (*TextureCache, error) {
	tc := &TextureCache{
		backend:  backend,
		textures: make([]*metadata.Texture, 0, 16),
		max:      max,
	}
	white := []byte{255, 255, 255, 255}
	if _, err := tc.Upload(white, 1, 1, 4, metadata.TextureRoleBaseColor); err != nil {
		return nil, fmt.Errorf("creating default texture: %w", err)
	}
	tc.textures[metadata.DefaultTexture].Name = "default_white"
	return tc, nil
}

// Upload validates and uploads pixels. Three channel data is expanded to four.
func (tc *TextureCache) Upload(pixels []byte, width, height uint32, channels uint8, role metadata.TextureRole) (metadata.TextureHandle, error) {
	if width == 0 || height == 0 {
		return 0, fmt.Errorf("%w: empty %dx%d image", core.ErrUnsupportedFormat, width, height)
	}
	switch channels {
	case 1, 3, 4:
	default:
		return 0, fmt.Errorf("%w: %d channels", core.ErrUnsupportedFormat, channels)
	}
	want := int(width) * int(height) * int(channels)
	if len(pixels) != want {
		return 0, fmt.Errorf("%w: %dx%dx%d needs %d bytes, got %d", core.ErrUnsupportedFormat, width, height, channels, want, len(pixels))
	}
	if uint32(len(tc.textures)) >= tc.max {
		return 0, fmt.Errorf("texture cache full (%d textures)", tc.max)
	}
	if channels == 3 {
		pixels = expandRGB(pixels)
		channels = 4
	}

	t := &metadata.Texture{
		Handle:       metadata.TextureHandle(len(tc.textures)),
		Width:        width,
		Height:       height,
		ChannelCount: channels,
		Role:         role,
		Name:         fmt.Sprintf("%s_%s", role, uuid.NewString()),
	}
	if err := tc.backend.CreateTexture(t, pixels); err != nil {
		err = fmt.Errorf("uploading texture %s: %w", t.Name, err)
		core.LogError(err.Error())
		return 0, err
	}
	tc.textures = append(tc.textures, t)
	core.LogDebug("texture %d uploaded (%dx%d, %d channels, %s)", t.Handle, width, height, channels, role)
	return t.Handle, nil
}

// Get returns the texture for h, or the default texture when h is unknown.
func (tc *TextureCache) Get(h metadata.TextureHandle) *metadata.Texture {
	if int(h) >= len(tc.textures) {
		return tc.textures[metadata.DefaultTexture]
	}
	return tc.textures[h]
}

func (tc *TextureCache) Has(h metadata.TextureHandle) bool {
	return int(h) < len(tc.textures)
}

func (tc *TextureCache) Resolve(handles [metadata.TEXTURE_SLOT_COUNT]metadata.TextureHandle) [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture {
	var out [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture
	for i, h := range handles {
		out[i] = tc.Get(h)
	}
	return out
}

func (tc *TextureCache) Count() int {
	return len(tc.textures)
}

func (tc *TextureCache) Destroy() {
	for i := len(tc.textures) - 1; i >= 0; i-- {
		tc.backend.DestroyTexture(tc.textures[i])
	}
	tc.textures = nil
}

func expandRGB(rgb []byte) []byte {
	out := make([]byte, len(rgb)/3*4)
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		out[j] = rgb[i]
		out[j+1] = rgb[i+1]
		out[j+2] = rgb[i+2]
		out[j+3] = 255
	}
	return out
}
