package renderer

import (
	"bytes"

	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// Recorder writes one frame into a CommandSink and drops binds that would not
// change the bound state. It holds no scene state; the instance renderer
// decides the order of draws.
type Recorder struct {
	sink     CommandSink
	frameSet metadata.FrameSetID

	pipelineBound bool
	pipeline      metadata.PipelineClass

	materialBound  bool
	material       metadata.MaterialSetID
	materialOffset uint32

	vertex         *metadata.RenderBuffer
	instance       *metadata.RenderBuffer
	instanceOffset uint64
	index          *metadata.RenderBuffer
	push           []byte

	pipelineBinds uint32
	draws         uint32
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Begin starts the render pass and sets viewport and scissor from extent.
func (r *Recorder) Begin(sink CommandSink, frameSet metadata.FrameSetID, extent metadata.Extent, clearColor [4]float32) {
	*r = Recorder{sink: sink, frameSet: frameSet, push: r.push[:0]}
	sink.BeginRenderPass(clearColor, 1.0)
	sink.SetViewport(metadata.FlippedViewport(extent))
	sink.SetScissor(metadata.FullRect(extent))
}

// BindPipeline switches pipelines and rebinds the frame set after every switch.
func (r *Recorder) BindPipeline(class metadata.PipelineClass) {
	if r.pipelineBound && r.pipeline == class {
		return
	}
	r.sink.BindPipeline(class)
	r.sink.BindFrameSet(r.frameSet)
	r.pipelineBound = true
	r.pipeline = class
	r.pipelineBinds++
}

func (r *Recorder) BindMaterial(set metadata.MaterialSetID, dynamicOffset uint32) {
	if r.materialBound && r.material == set && r.materialOffset == dynamicOffset {
		return
	}
	r.sink.BindMaterialSet(set, dynamicOffset)
	r.materialBound = true
	r.material = set
	r.materialOffset = dynamicOffset
}

func (r *Recorder) BindMesh(vertex, index, instance *metadata.RenderBuffer, instanceOffset uint64) {
	if r.vertex != vertex || r.instance != instance || r.instanceOffset != instanceOffset {
		r.sink.BindVertexBuffers(vertex, instance, instanceOffset)
		r.vertex, r.instance, r.instanceOffset = vertex, instance, instanceOffset
	}
	if r.index != index {
		r.sink.BindIndexBuffer(index)
		r.index = index
	}
}

func (r *Recorder) PushConstants(pc *metadata.PushConstants) {
	data := pc.Bytes()
	if bytes.Equal(data, r.push) {
		return
	}
	r.sink.PushConstants(data)
	r.push = append(r.push[:0], data...)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstInstance uint32) {
	r.sink.DrawIndexed(indexCount, instanceCount, 0, 0, firstInstance)
	r.draws++
}

func (r *Recorder) End() {
	r.sink.EndRenderPass()
}

func (r *Recorder) PipelineBinds() uint32 {
	return r.pipelineBinds
}

func (r *Recorder) Draws() uint32 {
	return r.draws
}
