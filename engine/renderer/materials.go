package renderer

import (
	"fmt"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

type materialSet struct {
	uboIndex uint32
	textures [metadata.TEXTURE_SLOT_COUNT]metadata.TextureHandle
	flags    uint32
	// classBound sets only draw with class; texture sets built on the default
	// material go with any class.
	classBound bool
	class      metadata.PipelineClass
	name       string
}

// MaterialRegistry owns the material descriptor sets. Sets are allocated from
// the shared descriptor pool and never freed individually.
type MaterialRegistry struct {
	backend  RendererBackend
	ubo      *UBOManager
	textures *TextureCache
	sets     []*materialSet
}

func NewMaterialRegistry(backend RendererBackend, ubo *UBOManager, textures *TextureCache, defaultMaterial metadata.Material) (*MaterialRegistry, error) {
	r := &MaterialRegistry{backend: backend, ubo: ubo, textures: textures}
	if ubo.MaterialCount() != 0 {
		return nil, fmt.Errorf("default material must be the first registered material")
	}
	if _, err := r.Create(defaultMaterial); err != nil {
		return nil, fmt.Errorf("registering default material: %w", err)
	}
	return r, nil
}

// Create registers m's uniform block and allocates its descriptor set.
func (r *MaterialRegistry) Create(m metadata.Material) (metadata.MaterialSetID, error) {
	for _, h := range m.Textures() {
		if !r.textures.Has(h) {
			return 0, fmt.Errorf("material %s references unknown texture %d", m.MaterialName(), h)
		}
	}
	idx, err := r.ubo.RegisterMaterial(m.Uniform())
	if err != nil {
		return 0, err
	}
	return r.allocate(&materialSet{
		uboIndex:   idx,
		textures:   m.Textures(),
		flags:      m.Uniform().TextureFlags,
		classBound: true,
		class:      m.PipelineClass(),
		name:       m.MaterialName(),
	})
}

// CreateWithTexture builds a set on the default material's block with tex as
// base color and the white texture in every other slot.
func (r *MaterialRegistry) CreateWithTexture(tex metadata.TextureHandle) (metadata.MaterialSetID, error) {
	if !r.textures.Has(tex) {
		return 0, fmt.Errorf("unknown texture %d", tex)
	}
	var textures [metadata.TEXTURE_SLOT_COUNT]metadata.TextureHandle
	textures[metadata.TextureSlotBaseColor] = tex
	return r.allocate(&materialSet{
		uboIndex: 0,
		textures: textures,
		flags:    metadata.TextureFlagsOf(textures),
		name:     fmt.Sprintf("texture_%d", tex),
	})
}

func (r *MaterialRegistry) allocate(ms *materialSet) (metadata.MaterialSetID, error) {
	id, err := r.backend.AllocateMaterialSet(r.ubo.MaterialRange(ms.uboIndex), r.textures.Resolve(ms.textures))
	if err != nil {
		return 0, fmt.Errorf("allocating material set %s: %w", ms.name, err)
	}
	for int(id) >= len(r.sets) {
		r.sets = append(r.sets, nil)
	}
	r.sets[id] = ms
	core.LogDebug("material set %d (%s) created", id, ms.name)
	return id, nil
}

func (r *MaterialRegistry) get(id metadata.MaterialSetID) (*materialSet, bool) {
	if int(id) >= len(r.sets) || r.sets[id] == nil {
		return nil, false
	}
	return r.sets[id], true
}

// Accepts reports whether set id can be drawn with class.
func (r *MaterialRegistry) Accepts(id metadata.MaterialSetID, class metadata.PipelineClass) bool {
	ms, ok := r.get(id)
	if !ok {
		return false
	}
	return !ms.classBound || ms.class == class
}

// Uniform returns the host copy of the block bound by set id.
func (r *MaterialRegistry) Uniform(id metadata.MaterialSetID) (metadata.MaterialUBO, error) {
	ms, ok := r.get(id)
	if !ok {
		return metadata.MaterialUBO{}, fmt.Errorf("unknown material set %d", id)
	}
	return r.ubo.Material(ms.uboIndex), nil
}

// SetColor changes the base color of the material behind set id for the current frame.
func (r *MaterialRegistry) SetColor(id metadata.MaterialSetID, rgba math.Vec4) error {
	ms, ok := r.get(id)
	if !ok {
		return fmt.Errorf("unknown material set %d", id)
	}
	u := r.ubo.Material(ms.uboIndex)
	u.BaseColor = rgba
	return r.ubo.UpdateMaterial(ms.uboIndex, u)
}

func (r *MaterialRegistry) Count() int {
	n := 0
	for _, s := range r.sets {
		if s != nil {
			n++
		}
	}
	return n
}
