package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const (
	vertexBinding   = 0
	instanceBinding = 1
)

// vertexBindings describes the mesh stream and the per-instance stream.
func vertexBindings() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{
		{Binding: vertexBinding, Stride: metadata.VERTEX_SIZE, InputRate: vk.VertexInputRateVertex},
		{Binding: instanceBinding, Stride: metadata.INSTANCE_RECORD_SIZE, InputRate: vk.VertexInputRateInstance},
	}
}

// vertexAttributes follows the Vertex and InstanceRecord byte layouts.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	vec2 := vk.FormatR32g32Sfloat
	vec3 := vk.FormatR32g32b32Sfloat
	vec4 := vk.FormatR32g32b32a32Sfloat
	return []vk.VertexInputAttributeDescription{
		// per vertex
		{Location: 0, Binding: vertexBinding, Format: vec3, Offset: 0},
		{Location: 1, Binding: vertexBinding, Format: vec3, Offset: 12},
		{Location: 2, Binding: vertexBinding, Format: vec2, Offset: 24},
		{Location: 3, Binding: vertexBinding, Format: vec3, Offset: 32},
		// model matrix columns
		{Location: 4, Binding: instanceBinding, Format: vec4, Offset: 0},
		{Location: 5, Binding: instanceBinding, Format: vec4, Offset: 16},
		{Location: 6, Binding: instanceBinding, Format: vec4, Offset: 32},
		{Location: 7, Binding: instanceBinding, Format: vec4, Offset: 48},
		// normal matrix columns
		{Location: 8, Binding: instanceBinding, Format: vec4, Offset: 64},
		{Location: 9, Binding: instanceBinding, Format: vec4, Offset: 80},
		{Location: 10, Binding: instanceBinding, Format: vec4, Offset: 96},
		{Location: 11, Binding: instanceBinding, Format: vec4, Offset: 112},
		{Location: 12, Binding: instanceBinding, Format: vec4, Offset: 128},
		{Location: 13, Binding: instanceBinding, Format: vk.FormatR32g32b32a32Uint, Offset: 144},
		{Location: 14, Binding: instanceBinding, Format: vk.FormatR32Uint, Offset: 160},
	}
}

// fixedFunctionState is the Vulkan view of a metadata.PipelineState.
type fixedFunctionState struct {
	depthTest    vk.Bool32
	depthWrite   vk.Bool32
	depthCompare vk.CompareOp
	cullMode     vk.CullModeFlags
	topology     vk.PrimitiveTopology
	blend        vk.PipelineColorBlendAttachmentState
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func fixedFunction(s metadata.PipelineState) fixedFunctionState {
	out := fixedFunctionState{
		depthTest:    vkBool(s.DepthTest),
		depthWrite:   vkBool(s.DepthWrite),
		depthCompare: vk.CompareOpLessOrEqual,
		cullMode:     vk.CullModeFlags(vk.CullModeBackBit),
		topology:     vk.PrimitiveTopologyTriangleList,
	}
	if s.DepthCompare == metadata.CompareOpAlways {
		out.depthCompare = vk.CompareOpAlways
	}
	switch s.CullMode {
	case metadata.FaceCullModeNone:
		out.cullMode = vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		out.cullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	}

	out.blend = vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if s.AlphaBlend {
		out.blend.BlendEnable = vk.True
		out.blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		out.blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		out.blend.ColorBlendOp = vk.BlendOpAdd
		out.blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		out.blend.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		out.blend.AlphaBlendOp = vk.BlendOpAdd
	}
	return out
}

// PipelineManager owns the shared layout and one pipeline per class. Every
// class uses set 0 for the frame, set 1 for the material and a 128 byte push
// constant block visible to both stages.
type PipelineManager struct {
	Layout    vk.PipelineLayout
	Pipelines [metadata.PIPELINE_CLASS_COUNT]vk.Pipeline

	shaders assets.ShaderSet
}

func NewPipelineManager(ctx *Context, descriptors *DescriptorManager, shaders assets.ShaderSet) (*PipelineManager, error) {
	for _, class := range metadata.AllPipelineClasses() {
		if _, ok := shaders[class.ShaderName()]; !ok {
			return nil, fmt.Errorf("%w: no shader %q for pipeline %s", core.ErrShaderIO, class.ShaderName(), class)
		}
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         2,
		PSetLayouts:            []vk.DescriptorSetLayout{descriptors.FrameLayout, descriptors.MaterialLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       metadata.PUSH_CONSTANT_SIZE,
		}},
	}
	m := &PipelineManager{shaders: shaders}
	if res := vk.CreatePipelineLayout(ctx.Device.LogicalDevice, &layoutInfo, ctx.Allocator, &m.Layout); res != vk.Success {
		return nil, initError("vkCreatePipelineLayout", res)
	}
	if err := m.Build(ctx, ctx.Renderpass); err != nil {
		m.Destroy(ctx)
		return nil, err
	}
	return m, nil
}

// Build (re)creates every pipeline against rp. Call it again when the render
// pass is replaced.
func (m *PipelineManager) Build(ctx *Context, rp *Renderpass) error {
	m.destroyPipelines(ctx)
	for _, class := range metadata.AllPipelineClasses() {
		p, err := m.create(ctx, rp, class)
		if err != nil {
			m.destroyPipelines(ctx)
			return err
		}
		m.Pipelines[class] = p
	}
	core.LogDebug("Graphics pipelines created: %d classes", len(m.Pipelines))
	return nil
}

func (m *PipelineManager) create(ctx *Context, rp *Renderpass, class metadata.PipelineClass) (vk.Pipeline, error) {
	stages, err := loadShaderStages(ctx, m.shaders[class.ShaderName()])
	if err != nil {
		return vk.NullPipeline, err
	}
	defer func() {
		for _, s := range stages {
			s.Destroy(ctx)
		}
	}()
	stageInfos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		stageInfos[i] = s.ShaderStageCreateInfo
	}

	ff := fixedFunction(class.State())

	bindings := vertexBindings()
	attributes := vertexAttributes()
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               ff.topology,
		PrimitiveRestartEnable: vk.False,
	}
	// viewport and scissor are dynamic
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                ff.cullMode,
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       ff.depthTest,
		DepthWriteEnable:      ff.depthWrite,
		DepthCompareOp:        ff.depthCompare,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{ff.blend},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stageInfos)),
		PStages:             stageInfos,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              m.Layout,
		RenderPass:          rp.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(ctx.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, ctx.Allocator, pipelines); res != vk.Success {
		return vk.NullPipeline, initError("vkCreateGraphicsPipelines "+class.String(), res)
	}
	core.LogTrace("Pipeline %s built from %s", class, class.ShaderName())
	return pipelines[0], nil
}

func (m *PipelineManager) Pipeline(class metadata.PipelineClass) vk.Pipeline {
	return m.Pipelines[class]
}

func (m *PipelineManager) destroyPipelines(ctx *Context) {
	for i, p := range m.Pipelines {
		if p != vk.NullPipeline {
			vk.DestroyPipeline(ctx.Device.LogicalDevice, p, ctx.Allocator)
			m.Pipelines[i] = vk.NullPipeline
		}
	}
}

func (m *PipelineManager) Destroy(ctx *Context) {
	m.destroyPipelines(ctx)
	if m.Layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, m.Layout, ctx.Allocator)
		m.Layout = vk.NullPipelineLayout
	}
}
