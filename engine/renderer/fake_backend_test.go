package renderer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const (
	opBeginPass = "begin_pass"
	opViewport  = "viewport"
	opScissor   = "scissor"
	opPipeline  = "pipeline"
	opFrameSet  = "frame_set"
	opMaterial  = "material"
	opVertex    = "vertex"
	opIndex     = "index"
	opPush      = "push"
	opDraw      = "draw"
	opEndPass   = "end_pass"
)

type command struct {
	op             string
	clear          [4]float32
	viewport       metadata.Viewport
	scissor        metadata.Rect
	class          metadata.PipelineClass
	frameSet       metadata.FrameSetID
	materialSet    metadata.MaterialSetID
	dynamicOffset  uint32
	instance       *metadata.RenderBuffer
	instanceOffset uint64
	push           []byte
	indexCount     uint32
	instanceCount  uint32
	firstInstance  uint32
}

// fakeSink records a frame's command buffer.
type fakeSink struct {
	frame    int
	image    uint32
	commands []command
	ended    bool
}

func (s *fakeSink) add(c command) { s.commands = append(s.commands, c) }

func (s *fakeSink) BeginRenderPass(clear [4]float32, depth float32) {
	s.add(command{op: opBeginPass, clear: clear})
}
func (s *fakeSink) SetViewport(v metadata.Viewport) { s.add(command{op: opViewport, viewport: v}) }
func (s *fakeSink) SetScissor(r metadata.Rect)      { s.add(command{op: opScissor, scissor: r}) }
func (s *fakeSink) BindPipeline(c metadata.PipelineClass) {
	s.add(command{op: opPipeline, class: c})
}
func (s *fakeSink) BindFrameSet(set metadata.FrameSetID) {
	s.add(command{op: opFrameSet, frameSet: set})
}
func (s *fakeSink) BindMaterialSet(set metadata.MaterialSetID, off uint32) {
	s.add(command{op: opMaterial, materialSet: set, dynamicOffset: off})
}
func (s *fakeSink) BindVertexBuffers(vertex, instance *metadata.RenderBuffer, off uint64) {
	s.add(command{op: opVertex, instance: instance, instanceOffset: off})
}
func (s *fakeSink) BindIndexBuffer(index *metadata.RenderBuffer) { s.add(command{op: opIndex}) }
func (s *fakeSink) PushConstants(data []byte) {
	s.add(command{op: opPush, push: append([]byte(nil), data...)})
}
func (s *fakeSink) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	s.add(command{op: opDraw, indexCount: indexCount, instanceCount: instanceCount, firstInstance: firstInstance})
}
func (s *fakeSink) EndRenderPass() { s.add(command{op: opEndPass}) }
func (s *fakeSink) End() error {
	s.ended = true
	return nil
}

func (s *fakeSink) count(op string) int {
	n := 0
	for _, c := range s.commands {
		if c.op == op {
			n++
		}
	}
	return n
}

func (s *fakeSink) first(op string) (command, bool) {
	for _, c := range s.commands {
		if c.op == op {
			return c, true
		}
	}
	return command{}, false
}

type drawCall struct {
	class    metadata.PipelineClass
	set      metadata.MaterialSetID
	instance *metadata.RenderBuffer
	offset   uint64
	first    uint32
	count    uint32
}

// draws replays the command list and returns every draw with the state bound at the time.
func (s *fakeSink) draws() []drawCall {
	var out []drawCall
	var cur drawCall
	for _, c := range s.commands {
		switch c.op {
		case opPipeline:
			cur.class = c.class
		case opMaterial:
			cur.set = c.materialSet
		case opVertex:
			cur.instance, cur.offset = c.instance, c.instanceOffset
		case opDraw:
			d := cur
			d.first, d.count = c.firstInstance, c.instanceCount
			out = append(out, d)
		}
	}
	return out
}

// fakeBackend is a host-memory GPU. A fence is unsignaled from Submit until
// the frame is waited on again, which is the latest point a real GPU could
// signal it.
type fakeBackend struct {
	frames    int
	extent    metadata.Extent
	surface   metadata.Extent
	images    uint32
	alignment uint64

	fences    []bool
	nextImage uint32
	current   *fakeSink
	submitted []*fakeSink

	buffers           []*metadata.RenderBuffer
	destroyedBuffers  []*metadata.RenderBuffer
	textures          []*metadata.Texture
	texturePixels     [][]byte
	destroyedTextures []*metadata.Texture
	frameSets         int
	materialSets      []materialBinding
	recreations       []metadata.Extent

	acquireErrs []error
	beginErrs   []error
	presentErrs []error
	presents    int
	calls       []string

	onSubmit func(frame int)
	onSignal func(frame int)
	shutdown bool
}

type materialBinding struct {
	material metadata.BufferRange
	textures [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		frames:    2,
		extent:    metadata.Extent{Width: 1280, Height: 720},
		surface:   metadata.Extent{Width: 1280, Height: 720},
		images:    3,
		alignment: 256,
		fences:    []bool{true, true},
	}
}

func (b *fakeBackend) FramesInFlight() int              { return b.frames }
func (b *fakeBackend) SwapchainExtent() metadata.Extent { return b.extent }
func (b *fakeBackend) SurfaceExtent() metadata.Extent   { return b.surface }
func (b *fakeBackend) ImageCount() uint32               { return b.images }
func (b *fakeBackend) SwapchainFormat() string          { return "B8G8R8A8_SRGB" }
func (b *fakeBackend) UniformAlignment() uint64         { return b.alignment }

func (b *fakeBackend) RecreateSwapchain(extent metadata.Extent) error {
	b.calls = append(b.calls, "recreate")
	b.extent = extent
	b.recreations = append(b.recreations, extent)
	return nil
}

func (b *fakeBackend) signal(frame int) {
	if b.fences[frame] {
		return
	}
	b.fences[frame] = true
	if b.onSignal != nil {
		b.onSignal(frame)
	}
}

func (b *fakeBackend) WaitFrame(frame int) error {
	b.calls = append(b.calls, "wait")
	b.signal(frame)
	return nil
}

func (b *fakeBackend) Acquire(frame int) (uint32, error) {
	b.calls = append(b.calls, "acquire")
	if len(b.acquireErrs) > 0 {
		err := b.acquireErrs[0]
		b.acquireErrs = b.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	image := b.nextImage
	b.nextImage = (b.nextImage + 1) % b.images
	return image, nil
}

func (b *fakeBackend) BeginCommands(frame int, image uint32) (CommandSink, error) {
	b.calls = append(b.calls, "begin")
	if len(b.beginErrs) > 0 {
		err := b.beginErrs[0]
		b.beginErrs = b.beginErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	b.current = &fakeSink{frame: frame, image: image}
	return b.current, nil
}

func (b *fakeBackend) Submit(frame int, image uint32) error {
	b.calls = append(b.calls, "submit")
	b.fences[frame] = false
	b.submitted = append(b.submitted, b.current)
	if b.onSubmit != nil {
		b.onSubmit(frame)
	}
	return nil
}

func (b *fakeBackend) Present(frame int, image uint32) error {
	b.calls = append(b.calls, "present")
	b.presents++
	if len(b.presentErrs) > 0 {
		err := b.presentErrs[0]
		b.presentErrs = b.presentErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) WaitIdle() error {
	for f := range b.fences {
		b.signal(f)
	}
	return nil
}

func (b *fakeBackend) CreateBuffer(t metadata.RenderBufferType, size uint64) (*metadata.RenderBuffer, error) {
	buf := &metadata.RenderBuffer{RenderBufferType: t, TotalSize: size, Mapped: make([]byte, size)}
	b.buffers = append(b.buffers, buf)
	return buf, nil
}

func (b *fakeBackend) DestroyBuffer(buf *metadata.RenderBuffer) {
	b.destroyedBuffers = append(b.destroyedBuffers, buf)
}

func (b *fakeBackend) CreateTexture(t *metadata.Texture, pixels []byte) error {
	t.InternalData = len(b.textures)
	b.textures = append(b.textures, t)
	b.texturePixels = append(b.texturePixels, append([]byte(nil), pixels...))
	return nil
}

func (b *fakeBackend) DestroyTexture(t *metadata.Texture) {
	b.destroyedTextures = append(b.destroyedTextures, t)
}

func (b *fakeBackend) AllocateFrameSet(frame int, camera, lighting metadata.BufferRange) (metadata.FrameSetID, error) {
	id := metadata.FrameSetID(b.frameSets)
	b.frameSets++
	return id, nil
}

func (b *fakeBackend) AllocateMaterialSet(material metadata.BufferRange, textures [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture) (metadata.MaterialSetID, error) {
	id := metadata.MaterialSetID(len(b.materialSets))
	b.materialSets = append(b.materialSets, materialBinding{material: material, textures: textures})
	return id, nil
}

func (b *fakeBackend) Shutdown() error {
	b.shutdown = true
	return nil
}

func (b *fakeBackend) lastSink() *fakeSink {
	if len(b.submitted) == 0 {
		return nil
	}
	return b.submitted[len(b.submitted)-1]
}

func newTestRenderer(t *testing.T) (*Renderer, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	r, err := New(b, config.Default())
	require.NoError(t, err)
	return r, b
}

func triangleMesh() *metadata.Mesh {
	return &metadata.Mesh{
		Name: "triangle",
		Vertices: []metadata.Vertex{
			{Position: math.Vec3{0, 0, 0}, Normal: math.Vec3{0, 0, 1}},
			{Position: math.Vec3{1, 0, 0}, Normal: math.Vec3{0, 0, 1}},
			{Position: math.Vec3{0, 1, 0}, Normal: math.Vec3{0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func cameraQueue(position math.Vec3) *metadata.RenderQueue {
	return &metadata.RenderQueue{
		CameraPosition: position,
		CameraForward:  math.Vec3{0, 0, -1},
		CameraRight:    math.Vec3{1, 0, 0},
		CameraUp:       math.Vec3{0, 1, 0},
	}
}

// entryAt allocates an instance of pool and returns a queue entry placing it at p.
func entryAt(t *testing.T, r *Renderer, meshType metadata.MeshType, class metadata.PipelineClass, p math.Vec3) metadata.RenderEntry {
	t.Helper()
	h, err := r.AllocateFromPool(meshType)
	require.NoError(t, err)
	return metadata.RenderEntry{
		MeshType:      meshType,
		InstanceSlot:  h.Slot,
		Generation:    h.Generation,
		Model:         math.Translation(p),
		PipelineClass: class,
		WorldPosition: p,
	}
}

// drawnPositions reads back the translation of every instance a draw covers.
func drawnPositions(t *testing.T, pool *MeshPool, frame int, d drawCall) []math.Vec3 {
	t.Helper()
	var out []math.Vec3
	for i := uint32(0); i < d.count; i++ {
		rec, err := pool.Readback(frame, d.first+i)
		require.NoError(t, err)
		out = append(out, rec.Model.Col(3).Vec3())
	}
	return out
}
