package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const (
	// Set 0: camera and lighting, one set per frame in flight.
	frameSetIndex = 0
	// Set 1: material uniform with a dynamic offset plus the texture slots.
	materialSetIndex = 1

	cameraBinding   = 0
	lightingBinding = 1

	materialBinding     = 0
	firstTextureBinding = 1
)

type poolSize struct {
	descriptorType vk.DescriptorType
	count          uint32
}

// descriptorPoolSizes sizes one pool for every frame set and material set the
// renderer may allocate.
func descriptorPoolSizes(frames, materialSets uint32) (sizes []poolSize, maxSets uint32) {
	sizes = []poolSize{
		{vk.DescriptorTypeUniformBuffer, frames * 2},
		{vk.DescriptorTypeUniformBufferDynamic, materialSets},
		{vk.DescriptorTypeCombinedImageSampler, materialSets * uint32(metadata.TEXTURE_SLOT_COUNT)},
	}
	return sizes, frames + materialSets
}

func frameLayoutBindings() []vk.DescriptorSetLayoutBinding {
	return []vk.DescriptorSetLayoutBinding{
		{
			Binding:         cameraBinding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		},
		{
			Binding:         lightingBinding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		},
	}
}

func materialLayoutBindings() []vk.DescriptorSetLayoutBinding {
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         materialBinding,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}}
	for slot := 0; slot < int(metadata.TEXTURE_SLOT_COUNT); slot++ {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(firstTextureBinding + slot),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	return bindings
}

// DescriptorManager owns the two set layouts, one pool and every set
// allocated from it. Sets live as long as the manager.
type DescriptorManager struct {
	FrameLayout    vk.DescriptorSetLayout
	MaterialLayout vk.DescriptorSetLayout
	Pool           vk.DescriptorPool

	frameSets    []vk.DescriptorSet
	materialSets []vk.DescriptorSet
	capacity     uint32
}

func NewDescriptorManager(ctx *Context, frames, materialSets uint32) (*DescriptorManager, error) {
	m := &DescriptorManager{capacity: materialSets}
	var err error
	if m.FrameLayout, err = createSetLayout(ctx, frameLayoutBindings()); err != nil {
		return nil, err
	}
	if m.MaterialLayout, err = createSetLayout(ctx, materialLayoutBindings()); err != nil {
		m.Destroy(ctx)
		return nil, err
	}

	sizes, maxSets := descriptorPoolSizes(frames, materialSets)
	vkSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		vkSizes[i] = vk.DescriptorPoolSize{Type: s.descriptorType, DescriptorCount: s.count}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(vkSizes)),
		PPoolSizes:    vkSizes,
	}
	if res := vk.CreateDescriptorPool(ctx.Device.LogicalDevice, &poolInfo, ctx.Allocator, &m.Pool); res != vk.Success {
		m.Destroy(ctx)
		return nil, initError("vkCreateDescriptorPool", res)
	}
	core.LogDebug("Descriptor pool created: %d sets (%d frame, %d material)", maxSets, frames, materialSets)
	return m, nil
}

func createSetLayout(ctx *Context, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, initError("vkCreateDescriptorSetLayout", res)
	}
	return layout, nil
}

func (m *DescriptorManager) allocate(ctx *Context, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     m.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(ctx.Device.LogicalDevice, &allocInfo, &set); res != vk.Success {
		return set, resultError("vkAllocateDescriptorSets", res)
	}
	return set, nil
}

func bufferInfo(r metadata.BufferRange) (vk.DescriptorBufferInfo, error) {
	buf, ok := r.Buffer.InternalData.(*Buffer)
	if !ok || buf == nil {
		return vk.DescriptorBufferInfo{}, fmt.Errorf("render buffer %s has no backend buffer", r.Buffer.RenderBufferType)
	}
	return vk.DescriptorBufferInfo{
		Buffer: buf.Handle,
		Offset: vk.DeviceSize(r.Offset),
		Range:  vk.DeviceSize(r.Size),
	}, nil
}

// AllocateFrameSet writes camera and lighting into a new set 0.
func (m *DescriptorManager) AllocateFrameSet(ctx *Context, camera, lighting metadata.BufferRange) (metadata.FrameSetID, error) {
	cam, err := bufferInfo(camera)
	if err != nil {
		return 0, err
	}
	light, err := bufferInfo(lighting)
	if err != nil {
		return 0, err
	}
	set, err := m.allocate(ctx, m.FrameLayout)
	if err != nil {
		return 0, err
	}
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      cameraBinding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     []vk.DescriptorBufferInfo{cam},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      lightingBinding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     []vk.DescriptorBufferInfo{light},
		},
	}
	vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	m.frameSets = append(m.frameSets, set)
	return metadata.FrameSetID(len(m.frameSets) - 1), nil
}

// AllocateMaterialSet writes the material uniform and every texture slot into
// a new set 1. All slots must hold an uploaded texture.
func (m *DescriptorManager) AllocateMaterialSet(ctx *Context, material metadata.BufferRange, textures [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture) (metadata.MaterialSetID, error) {
	if uint32(len(m.materialSets)) >= m.capacity {
		return 0, fmt.Errorf("descriptor pool exhausted: %d material sets allocated", len(m.materialSets))
	}
	mat, err := bufferInfo(material)
	if err != nil {
		return 0, err
	}
	images := make([]vk.DescriptorImageInfo, metadata.TEXTURE_SLOT_COUNT)
	for slot, t := range textures {
		if t == nil {
			return 0, fmt.Errorf("texture slot %d is empty", slot)
		}
		tex, ok := t.InternalData.(*Texture)
		if !ok || tex == nil {
			return 0, fmt.Errorf("texture %s was never uploaded", t.Name)
		}
		images[slot] = vk.DescriptorImageInfo{
			Sampler:     tex.Sampler,
			ImageView:   tex.Image.View,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
	}

	set, err := m.allocate(ctx, m.MaterialLayout)
	if err != nil {
		return 0, err
	}
	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      materialBinding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		PBufferInfo:     []vk.DescriptorBufferInfo{mat},
	}}
	for slot := range images {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(firstTextureBinding + slot),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo:      images[slot : slot+1],
		})
	}
	vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	m.materialSets = append(m.materialSets, set)
	return metadata.MaterialSetID(len(m.materialSets) - 1), nil
}

func (m *DescriptorManager) FrameSet(id metadata.FrameSetID) vk.DescriptorSet {
	return m.frameSets[id]
}

func (m *DescriptorManager) MaterialSet(id metadata.MaterialSetID) vk.DescriptorSet {
	return m.materialSets[id]
}

// Destroy releases the pool, which frees every set, and both layouts.
func (m *DescriptorManager) Destroy(ctx *Context) {
	if m.Pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, m.Pool, ctx.Allocator)
		m.Pool = vk.NullDescriptorPool
	}
	m.frameSets, m.materialSets = nil, nil
	if m.MaterialLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, m.MaterialLayout, ctx.Allocator)
		m.MaterialLayout = vk.NullDescriptorSetLayout
	}
	if m.FrameLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, m.FrameLayout, ctx.Allocator)
		m.FrameLayout = vk.NullDescriptorSetLayout
	}
}
