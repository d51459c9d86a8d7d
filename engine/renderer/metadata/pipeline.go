package metadata

import "fmt"

/**
 * @brief The closed set of shader and fixed-function combinations. Every class
 * maps to exactly one graphics pipeline.
 */
type PipelineClass uint8

const (
	PipelineClassOpaquePBR PipelineClass = iota
	PipelineClassUnlit
	PipelineClassTransparentPBR
	PipelineClassTransparentUnlit
	PipelineClassSkybox
	PipelineClassBillboardTextured
	PipelineClassUIPanel
	PipelineClassUIText

	PIPELINE_CLASS_COUNT
)

var pipelineClassNames = [PIPELINE_CLASS_COUNT]string{
	"OpaquePBR",
	"Unlit",
	"TransparentPBR",
	"TransparentUnlit",
	"Skybox",
	"BillboardTextured",
	"UIPanel",
	"UIText",
}

var pipelineShaderNames = [PIPELINE_CLASS_COUNT]string{
	"standard_pbr",
	"unlit",
	"transparent_pbr",
	"transparent_unlit",
	"skybox",
	"billboard",
	"ui_simple",
	"ui_text",
}

func AllPipelineClasses() []PipelineClass {
	classes := make([]PipelineClass, 0, PIPELINE_CLASS_COUNT)
	for c := PipelineClass(0); c < PIPELINE_CLASS_COUNT; c++ {
		classes = append(classes, c)
	}
	return classes
}

func (c PipelineClass) Valid() bool {
	return c < PIPELINE_CLASS_COUNT
}

func (c PipelineClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("PipelineClass(%d)", uint8(c))
	}
	return pipelineClassNames[c]
}

// ShaderName is the base name of the class's SPIR-V pair, e.g. "standard_pbr".
func (c PipelineClass) ShaderName() string {
	if !c.Valid() {
		return ""
	}
	return pipelineShaderNames[c]
}

func (c PipelineClass) IsOpaque() bool {
	return c == PipelineClassOpaquePBR || c == PipelineClassUnlit
}

// IsTransparent covers every class that is drawn in the back-to-front stream.
func (c PipelineClass) IsTransparent() bool {
	switch c {
	case PipelineClassTransparentPBR, PipelineClassTransparentUnlit, PipelineClassBillboardTextured:
		return true
	}
	return false
}

func (c PipelineClass) IsUI() bool {
	return c == PipelineClassUIPanel || c == PipelineClassUIText
}

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
)

type CompareOp int

const (
	CompareOpLessOrEqual CompareOp = iota
	CompareOpAlways
)

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
)

/**
 * @brief Fixed-function state of a pipeline class. Backends translate it
 * to their own pipeline descriptions.
 */
type PipelineState struct {
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	/** @brief Blend with srcAlpha, 1-srcAlpha on the color attachment. */
	AlphaBlend bool
	CullMode   FaceCullMode
	Topology   PrimitiveTopology
}

func (c PipelineClass) State() PipelineState {
	s := PipelineState{
		DepthTest:    true,
		DepthCompare: CompareOpLessOrEqual,
		CullMode:     FaceCullModeBack,
		Topology:     PrimitiveTopologyTriangleList,
	}
	switch c {
	case PipelineClassOpaquePBR, PipelineClassUnlit:
		s.DepthWrite = true
	case PipelineClassTransparentPBR, PipelineClassTransparentUnlit:
		s.AlphaBlend = true
	case PipelineClassSkybox:
		s.CullMode = FaceCullModeFront
	case PipelineClassBillboardTextured:
		s.AlphaBlend = true
		s.CullMode = FaceCullModeNone
	case PipelineClassUIPanel, PipelineClassUIText:
		s.DepthTest = false
		s.DepthCompare = CompareOpAlways
		s.AlphaBlend = true
		s.CullMode = FaceCullModeNone
	}
	return s
}
