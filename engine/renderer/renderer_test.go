package renderer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

func TestSingleOpaqueTeapot(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeTeapot, triangleMesh(), []metadata.Material{redPBR()}, 1)
	require.NoError(t, err)
	h, err := r.AllocateFromPool(metadata.MeshTypeTeapot)
	require.NoError(t, err)
	require.Equal(t, uint32(0), h.Slot)

	q := cameraQueue(math.Vec3{0, 0, 3})
	q.Push(metadata.RenderEntry{
		MeshType:      metadata.MeshTypeTeapot,
		InstanceSlot:  h.Slot,
		Generation:    h.Generation,
		Model:         math.Mat4Identity(),
		PipelineClass: metadata.PipelineClassOpaquePBR,
	})
	require.NoError(t, r.DrawFrame(q, func(frame *FrameContext, ubo *UBOManager) error {
		view := math.LookAt(math.Vec3{0, 0, 3}, math.Vec3{}, math.WorldUp)
		proj := math.Perspective(1.0, 16.0/9.0, 0.1, 100)
		if err := ubo.UpdateCamera(&metadata.CameraUBO{View: view, Projection: proj, ViewProjection: proj.Mul4(view), Position: math.Vec3{0, 0, 3}}); err != nil {
			return err
		}
		env := metadata.DefaultLighting()
		return ubo.UpdateLighting(&env)
	}))

	sink := b.lastSink()
	draws := sink.draws()
	require.Len(t, draws, 1)
	assert.Equal(t, drawCall{
		class:    metadata.PipelineClassOpaquePBR,
		set:      pool.DefaultMaterialSet(),
		instance: pool.instanceBuffer,
		offset:   0,
		first:    0,
		count:    1,
	}, draws[0])
	assert.Equal(t, 1, sink.count(opFrameSet))
	assert.Equal(t, 1, sink.count(opMaterial))
	assert.Equal(t, 1, sink.count(opPipeline))

	rec, err := pool.Readback(0, 0)
	require.NoError(t, err)
	assert.Equal(t, math.Vec4{0.8, 0.2, 0.2, 1}, rec.MaterialColor)
	assert.True(t, math.NearlyEqualMat4(math.Mat4Identity(), rec.Normal, 1e-6))

	u, err := r.materials.Uniform(pool.DefaultMaterialSet())
	require.NoError(t, err)
	assert.Equal(t, float32(0.6), u.Roughness)
}

func TestFiveTransparentSpheres(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{
		&metadata.UnlitMaterial{Name: "bubble", Color: math.Vec4{0.3, 0.6, 1, 0.5}, Transparent: true},
	}, 5)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{0, 0, 5})
	for x := -2; x <= 2; x++ {
		q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassTransparentUnlit, math.Vec3{float32(x), 0, 0}))
	}
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	assert.Equal(t, 1, sink.count(opPipeline))
	draws := sink.draws()
	require.Len(t, draws, 5)
	var xs []float32
	for _, d := range draws {
		assert.Equal(t, metadata.PipelineClassTransparentUnlit, d.class)
		for _, p := range drawnPositions(t, pool, sink.frame, d) {
			xs = append(xs, p.X())
		}
	}
	assert.Equal(t, []float32{-2, 2, -1, 1, 0}, xs, "outer spheres first, the center one last")
}

func TestMixedOpaqueAndTransparent(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{
		redPBR(),
		&metadata.PBRMaterial{Name: "glass", BaseColor: math.Vec4{1, 1, 1, 0.4}, Alpha: 0.4, Transparent: true},
	}, 6)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	for _, z := range []float32{-4, -5, -2, -1, -6, -3} {
		class := metadata.PipelineClassOpaquePBR
		if int(-z)%2 == 0 {
			class = metadata.PipelineClassTransparentPBR
		}
		q.Push(entryAt(t, r, metadata.MeshTypeCube, class, math.Vec3{0, 0, z}))
	}
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	var order []float32
	var classes []metadata.PipelineClass
	for _, d := range sink.draws() {
		for _, p := range drawnPositions(t, pool, sink.frame, d) {
			order = append(order, p.Z())
			classes = append(classes, d.class)
		}
	}
	assert.Equal(t, []float32{-1, -3, -5, -6, -4, -2}, order)
	assert.Equal(t, []metadata.PipelineClass{
		metadata.PipelineClassOpaquePBR, metadata.PipelineClassOpaquePBR, metadata.PipelineClassOpaquePBR,
		metadata.PipelineClassTransparentPBR, metadata.PipelineClassTransparentPBR, metadata.PipelineClassTransparentPBR,
	}, classes)
	assert.Len(t, sink.draws(), 4, "opaque cubes share one instanced draw")
}

// Every host-visible region of frame i is compared between its submit and the
// signal of its fence; any difference is a host write the GPU could have seen.
func TestNoHostWritesToFramesInFlight(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 8)
	glow, err := r.CreateMaterial(&metadata.UnlitMaterial{Name: "glow", Color: math.Vec4{1, 1, 1, 1}})
	require.NoError(t, err)

	handles := make([]metadata.RenderEntry, 3)
	for i := range handles {
		handles[i] = entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{})
	}
	handles[2].PipelineClass = metadata.PipelineClassUnlit
	handles[2].MaterialOverride = &glow

	materials := r.ubo.MaterialCount()
	snapshot := func(frame int) [][]byte {
		var out [][]byte
		clone := func(buf []byte, off, size uint64) {
			out = append(out, bytes.Clone(buf[off:off+size]))
		}
		cam, light := r.ubo.CameraRange(frame), r.ubo.LightingRange(frame)
		clone(cam.Buffer.Mapped, cam.Offset, cam.Size)
		clone(light.Buffer.Mapped, light.Offset, light.Size)
		for m := 0; m < materials; m++ {
			clone(r.ubo.materialBuffer.Mapped, r.ubo.MaterialOffset(uint32(m), frame), metadata.MATERIAL_UBO_SIZE)
		}
		fr := pool.FrameRange(frame)
		clone(pool.instanceBuffer.Mapped, fr.Offset, fr.Size)
		return out
	}

	inFlight := map[int][][]byte{}
	signals := 0
	b.onSubmit = func(frame int) { inFlight[frame] = snapshot(frame) }
	b.onSignal = func(frame int) {
		signals++
		assert.Equal(t, inFlight[frame], snapshot(frame), "frame %d changed while in flight", frame)
	}

	var history [][][]byte
	for n := 0; n < 8; n++ {
		step := float32(n)
		q := cameraQueue(math.Vec3{0, 0, 10 + step})
		for i, e := range handles {
			p := math.Vec3{float32(i) - 1, step, -step}
			e.Model = math.Translation(p)
			e.WorldPosition = p
			q.Push(e)
		}
		require.NoError(t, r.DrawFrame(q, func(frame *FrameContext, ubo *UBOManager) error {
			if err := ubo.UpdateCamera(&metadata.CameraUBO{Position: q.CameraPosition, Near: 0.1, Far: 100 + step}); err != nil {
				return err
			}
			env := metadata.DefaultLighting()
			env.Ambient = math.Vec3{step, step, step}
			if err := ubo.UpdateLighting(&env); err != nil {
				return err
			}
			return r.SetMaterialColor(glow, math.Vec4{step / 8, 0, 0, 1})
		}))
		history = append(history, inFlight[n%2])
	}
	require.NoError(t, r.Shutdown())

	assert.Equal(t, 8, signals)
	for n := 2; n < len(history); n++ {
		assert.NotEqual(t, history[n-2], history[n], "frame %d wrote nothing new", n)
	}
}

func TestFrameTokenRevokedAfterSubmit(t *testing.T) {
	r, _ := newTestRenderer(t)
	var captured *FrameContext
	require.NoError(t, r.DrawFrame(cameraQueue(math.Vec3{}), func(frame *FrameContext, _ *UBOManager) error {
		captured = frame
		assert.True(t, frame.IsOpen())
		return nil
	}))
	assert.False(t, captured.IsOpen())
	assert.ErrorIs(t, r.ubo.UpdateCamera(&metadata.CameraUBO{}), core.ErrFrameNotWritable)
	assert.ErrorIs(t, r.SetMaterialColor(0, math.Vec4{1, 1, 1, 1}), core.ErrFrameNotWritable)
}

func TestShutdownReleasesEverything(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 4)
	_, err := r.UploadTexture(make([]byte, 4), 1, 1, 4, metadata.TextureRoleBaseColor)
	require.NoError(t, err)
	instance := pool.instanceBuffer
	require.NoError(t, r.DrawFrame(cameraQueue(math.Vec3{}), nil))

	require.NoError(t, r.Shutdown())
	assert.True(t, b.shutdown)
	assert.ElementsMatch(t, b.buffers, b.destroyedBuffers)
	assert.Same(t, instance, b.destroyedBuffers[0], "pools go first")
	require.Len(t, b.destroyedTextures, 2)
	assert.Equal(t, metadata.DefaultTexture, b.destroyedTextures[1].Handle, "the default texture goes last")
	assert.Equal(t, []bool{true, true}, b.fences)

	require.NoError(t, r.Shutdown())
	assert.Error(t, r.DrawFrame(cameraQueue(math.Vec3{}), nil))
}

func TestFacadeLookups(t *testing.T) {
	r, _ := newTestRenderer(t)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.Session()))

	_, err := r.AllocateFromPool(metadata.MeshTypeFrigate)
	assert.ErrorIs(t, err, core.ErrMissingPool)
	h := metadata.InstanceHandle{MeshType: metadata.MeshTypeFrigate}
	assert.ErrorIs(t, r.ReleasePoolInstance(h), core.ErrMissingPool)
	assert.ErrorIs(t, r.UpdatePoolInstance(h, InstanceParams{}), core.ErrMissingPool)
	assert.ErrorIs(t, r.ClearMaterialOverride(h), core.ErrMissingPool)

	_, err = r.CreateMaterialDescriptorSetWithTexture(12)
	assert.Error(t, err)
	assert.Equal(t, 1, r.materials.Count())
}
