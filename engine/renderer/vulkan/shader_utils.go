package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/core"
)

// ShaderStage is a compiled module and the stage info that references it.
type ShaderStage struct {
	Handle                vk.ShaderModule
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func newShaderStage(ctx *Context, name string, code []uint32, stage vk.ShaderStageFlagBits) (*ShaderStage, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s has no SPIR-V words", core.ErrShaderIO, name)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	s := &ShaderStage{}
	if res := vk.CreateShaderModule(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &s.Handle); res != vk.Success {
		return nil, initError("vkCreateShaderModule "+name, res)
	}
	s.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.Handle,
		PName:  safeString("main"),
	}
	return s, nil
}

func (s *ShaderStage) Destroy(ctx *Context) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(ctx.Device.LogicalDevice, s.Handle, ctx.Allocator)
		s.Handle = vk.NullShaderModule
	}
}

// loadShaderStages builds the vertex and fragment stages of one pair. The
// modules can be destroyed once the pipeline exists.
func loadShaderStages(ctx *Context, pair assets.ShaderPair) ([]*ShaderStage, error) {
	vert, err := newShaderStage(ctx, pair.Name+".vert", pair.Vertex, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	frag, err := newShaderStage(ctx, pair.Name+".frag", pair.Fragment, vk.ShaderStageFragmentBit)
	if err != nil {
		vert.Destroy(ctx)
		return nil, err
	}
	return []*ShaderStage{vert, frag}, nil
}
