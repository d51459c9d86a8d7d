package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

func TestRecorderElidesRedundantBinds(t *testing.T) {
	rec := NewRecorder()
	sink := &fakeSink{}
	extent := metadata.Extent{Width: 800, Height: 600}
	clear := [4]float32{0.1, 0.2, 0.3, 1}
	rec.Begin(sink, 3, extent, clear)

	vertex, index, instance := &metadata.RenderBuffer{}, &metadata.RenderBuffer{}, &metadata.RenderBuffer{}
	pc := &metadata.PushConstants{Model: math.Mat4Identity(), Normal: math.Mat4Identity(), MaterialColor: math.Vec4{1, 1, 1, 1}}
	for i := 0; i < 2; i++ {
		rec.BindPipeline(metadata.PipelineClassOpaquePBR)
		rec.BindMaterial(1, 0)
		rec.BindMesh(vertex, index, instance, 0)
		rec.PushConstants(pc)
		rec.DrawIndexed(3, 1, uint32(i))
	}
	rec.BindMaterial(1, 256)
	rec.BindMesh(vertex, index, instance, 1024)
	rec.BindPipeline(metadata.PipelineClassUnlit)
	rec.End()

	assert.Equal(t, 2, sink.count(opPipeline))
	assert.Equal(t, 2, sink.count(opFrameSet))
	assert.Equal(t, 2, sink.count(opMaterial))
	assert.Equal(t, 2, sink.count(opVertex))
	assert.Equal(t, 1, sink.count(opIndex))
	assert.Equal(t, 1, sink.count(opPush))
	assert.Equal(t, 2, sink.count(opDraw))
	assert.Equal(t, uint32(2), rec.PipelineBinds())
	assert.Equal(t, uint32(2), rec.Draws())

	fs, ok := sink.first(opFrameSet)
	require.True(t, ok)
	assert.Equal(t, metadata.FrameSetID(3), fs.frameSet)

	assert.Equal(t, opBeginPass, sink.commands[0].op)
	assert.Equal(t, clear, sink.commands[0].clear)
	assert.Equal(t, opEndPass, sink.commands[len(sink.commands)-1].op)
}

func TestRecorderViewportIsFlipped(t *testing.T) {
	rec := NewRecorder()
	sink := &fakeSink{}
	rec.Begin(sink, 0, metadata.Extent{Width: 640, Height: 480}, [4]float32{})

	vp, ok := sink.first(opViewport)
	require.True(t, ok)
	assert.Equal(t, float32(480), vp.viewport.Y)
	assert.Equal(t, float32(-480), vp.viewport.Height)
	sc, ok := sink.first(opScissor)
	require.True(t, ok)
	assert.Equal(t, metadata.Rect{Width: 640, Height: 480}, sc.scissor)
}

func TestRecorderBeginResetsState(t *testing.T) {
	rec := NewRecorder()
	first := &fakeSink{}
	rec.Begin(first, 0, metadata.Extent{Width: 1, Height: 1}, [4]float32{})
	rec.BindPipeline(metadata.PipelineClassSkybox)
	rec.End()

	second := &fakeSink{}
	rec.Begin(second, 1, metadata.Extent{Width: 1, Height: 1}, [4]float32{})
	rec.BindPipeline(metadata.PipelineClassSkybox)
	assert.Equal(t, 1, second.count(opPipeline), "a new command buffer starts with nothing bound")
	assert.Equal(t, uint32(1), rec.PipelineBinds())
}
