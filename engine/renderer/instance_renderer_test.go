package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// spherePool has a base material for each opaque and transparent class.
func spherePool(t *testing.T, r *Renderer, capacity uint32) *MeshPool {
	t.Helper()
	pool, err := r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{
		metadata.NewPBRMaterial("solid", math.Vec3{0.5, 0.5, 0.5}, 0, 0.5),
		&metadata.UnlitMaterial{Name: "flat", Color: math.Vec4{1, 1, 1, 1}},
		&metadata.PBRMaterial{Name: "glass", BaseColor: math.Vec4{1, 1, 1, 0.3}, Alpha: 0.3, Transparent: true},
		&metadata.UnlitMaterial{Name: "haze", Color: math.Vec4{1, 1, 1, 0.5}, Transparent: true},
	}, capacity)
	require.NoError(t, err)
	return pool
}

func zs(positions []math.Vec3) []float32 {
	out := make([]float32, len(positions))
	for i, p := range positions {
		out[i] = p.Z()
	}
	return out
}

func TestTransparentBackToFront(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 8)
	q := cameraQueue(math.Vec3{})
	for _, z := range []float32{-2, -10, -4, -8, -6} {
		q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassTransparentPBR, math.Vec3{0, 0, z}))
	}
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	draws := sink.draws()
	require.Len(t, draws, 5)
	var order []float32
	for _, d := range draws {
		assert.Equal(t, uint32(1), d.count)
		order = append(order, zs(drawnPositions(t, pool, sink.frame, d))...)
	}
	assert.Equal(t, []float32{-10, -8, -6, -4, -2}, order)
	assert.Equal(t, 1, sink.count(opPipeline))
}

func TestOpaqueFrontToBack(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 8)
	q := cameraQueue(math.Vec3{})
	for _, z := range []float32{-2, -10, -4, -8, -6} {
		q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, z}))
	}
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	draws := sink.draws()
	require.Len(t, draws, 1, "one bucket, one instanced draw")
	assert.Equal(t, uint32(5), draws[0].count)
	assert.Equal(t, uint32(0), draws[0].first)
	assert.Equal(t, []float32{-2, -4, -6, -8, -10}, zs(drawnPositions(t, pool, sink.frame, draws[0])))
}

func TestOpaqueClassesOrderedByDepth(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 8)
	q := cameraQueue(math.Vec3{})
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -9}))
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassUnlit, math.Vec3{0, 0, -1}))
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -5}))
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	var order []float32
	for _, d := range sink.draws() {
		order = append(order, zs(drawnPositions(t, pool, sink.frame, d))...)
	}
	assert.Equal(t, []float32{-1, -5, -9}, order)
}

func TestPipelineBindsPerRun(t *testing.T) {
	r, b := newTestRenderer(t)
	spherePool(t, r, 8)
	q := cameraQueue(math.Vec3{})
	classes := []metadata.PipelineClass{
		metadata.PipelineClassOpaquePBR, metadata.PipelineClassOpaquePBR,
		metadata.PipelineClassUnlit, metadata.PipelineClassUnlit,
		metadata.PipelineClassTransparentPBR, metadata.PipelineClassTransparentUnlit,
	}
	for i, c := range classes {
		q.Push(entryAt(t, r, metadata.MeshTypeSphere, c, math.Vec3{0, 0, -float32(i + 1)}))
	}
	require.NoError(t, r.DrawFrame(q, nil))

	stats := r.Stats()
	assert.Equal(t, uint32(4), stats.PipelineBinds)
	assert.Equal(t, uint32(4), stats.DrawCalls)
	assert.Equal(t, uint32(6), stats.EntriesProcessed)
	assert.Equal(t, uint32(1), stats.PoolsTouched)
	assert.Equal(t, uint64(6*176), stats.BytesUploaded)

	var seen []metadata.PipelineClass
	for _, c := range b.lastSink().commands {
		if c.op == opPipeline {
			seen = append(seen, c.class)
		}
	}
	assert.Equal(t, []metadata.PipelineClass{
		metadata.PipelineClassOpaquePBR,
		metadata.PipelineClassUnlit,
		metadata.PipelineClassTransparentUnlit,
		metadata.PipelineClassTransparentPBR,
	}, seen)
}

func TestDrawOrderAcrossGroups(t *testing.T) {
	r, b := newTestRenderer(t)
	spherePool(t, r, 8)
	_, err := r.CreateMeshPool(metadata.MeshTypeSkybox, triangleMesh(), []metadata.Material{&metadata.SkyboxMaterial{Name: "stars", Tint: math.Vec4{1, 1, 1, 1}}}, 1)
	require.NoError(t, err)
	_, err = r.CreateMeshPool(metadata.MeshTypeUIPanel, triangleMesh(), []metadata.Material{
		&metadata.UIMaterial{Name: "panel", Color: math.Vec4{0, 0, 0, 0.6}},
		&metadata.UIMaterial{Name: "label", Color: math.Vec4{1, 1, 1, 1}, Text: true},
	}, 4)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	q.Push(entryAt(t, r, metadata.MeshTypeUIPanel, metadata.PipelineClassUIText, math.Vec3{}))
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassTransparentUnlit, math.Vec3{0, 0, -3}))
	q.Push(entryAt(t, r, metadata.MeshTypeUIPanel, metadata.PipelineClassUIPanel, math.Vec3{}))
	q.Push(entryAt(t, r, metadata.MeshTypeSkybox, metadata.PipelineClassSkybox, math.Vec3{}))
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassUnlit, math.Vec3{0, 0, -1}))
	q.Push(entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -9}))
	require.NoError(t, r.DrawFrame(q, nil))

	var classes []metadata.PipelineClass
	for _, d := range b.lastSink().draws() {
		classes = append(classes, d.class)
	}
	// the nearer Unlit entry draws before the farther OpaquePBR one
	assert.Equal(t, []metadata.PipelineClass{
		metadata.PipelineClassUnlit,
		metadata.PipelineClassOpaquePBR,
		metadata.PipelineClassSkybox,
		metadata.PipelineClassTransparentUnlit,
		metadata.PipelineClassUIPanel,
		metadata.PipelineClassUIText,
	}, classes)
}

func TestUIOrderedByLayerAndBatched(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeUIPanel, triangleMesh(), []metadata.Material{
		&metadata.UIMaterial{Name: "panel", Color: math.Vec4{0, 0, 0, 0.6}},
	}, 4)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	for i, layer := range []uint8{2, 1, 1} {
		e := entryAt(t, r, metadata.MeshTypeUIPanel, metadata.PipelineClassUIPanel, math.Vec3{float32(i), 0, 0})
		e.Layer = layer
		q.Push(e)
	}
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	draws := sink.draws()
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(3), draws[0].count)
	var xs []float32
	for _, p := range drawnPositions(t, pool, sink.frame, draws[0]) {
		xs = append(xs, p.X())
	}
	assert.Equal(t, []float32{1, 2, 0}, xs)
}

func TestBillboardFacesCamera(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeBillboardBullet, triangleMesh(), []metadata.Material{
		&metadata.BillboardMaterial{Name: "bullet", Color: math.Vec4{1, 0.8, 0.2, 1}, Emission: math.Vec4{1, 0.8, 0.2, 4}},
	}, 4)
	require.NoError(t, err)

	camera := math.Vec3{0, 0, 5}
	q := cameraQueue(camera)
	positions := []math.Vec3{{3, 1, -4}, {0, 0, 0}, {-7, 2, 1}}
	for _, p := range positions {
		e := entryAt(t, r, metadata.MeshTypeBillboardBullet, metadata.PipelineClassBillboardTextured, p)
		e.Model = math.Mat4Identity()
		e.Size = math.Vec2{2, 0.5}
		q.Push(e)
	}
	velocity := math.Vec3{1, 0, 0}
	streak := entryAt(t, r, metadata.MeshTypeBillboardBullet, metadata.PipelineClassBillboardTextured, math.Vec3{0, 1, 0})
	streak.Velocity = &velocity
	q.Push(streak)
	require.NoError(t, r.DrawFrame(q, nil))

	sink := b.lastSink()
	faced := 0
	for _, d := range sink.draws() {
		rec, err := pool.Readback(sink.frame, d.first)
		require.NoError(t, err)
		p := rec.Model.Col(3).Vec3()
		normal := rec.Model.Col(2).Vec3()
		toCamera := camera.Sub(p).Normalize()
		assert.InDelta(t, 0, normal.Sub(toCamera).Len(), 1e-5, "billboard at %v", p)
		if p.ApproxEqual(math.Vec3{0, 1, 0}) {
			right := rec.Model.Col(0).Vec3().Normalize()
			assert.InDelta(t, 0, right.Sub(velocity).Len(), 1e-5)
			continue
		}
		assert.InDelta(t, 2, rec.Model.Col(0).Vec3().Len(), 1e-5)
		assert.InDelta(t, 0.5, rec.Model.Col(1).Vec3().Len(), 1e-5)
		faced++
	}
	assert.Equal(t, 3, faced)
}

func TestInstanceNormalMatrix(t *testing.T) {
	r, b := newTestRenderer(t)
	pool := spherePool(t, r, 2)
	e := entryAt(t, r, metadata.MeshTypeSphere, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -2})
	e.Model = math.TRS(math.Vec3{0, 0, -2}, math.Quat{W: 1}, math.Vec3{3, 1, 1})
	q := cameraQueue(math.Vec3{})
	q.Push(e)
	require.NoError(t, r.DrawFrame(q, nil))

	rec, err := pool.Readback(b.lastSink().frame, 0)
	require.NoError(t, err)
	want, ok := math.NormalMatrix(e.Model)
	require.True(t, ok)
	assert.True(t, math.NearlyEqualMat4(want, rec.Normal, 1e-5))
}

func TestMaterialResolution(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 8)
	require.NoError(t, err)

	tex, err := r.UploadTexture(make([]byte, 16), 2, 2, 4, metadata.TextureRoleBaseColor)
	require.NoError(t, err)
	textured, err := r.CreateMaterialDescriptorSetWithTexture(tex)
	require.NoError(t, err)
	unlit, err := r.CreateMaterial(&metadata.UnlitMaterial{Name: "flat", Color: math.Vec4{1, 1, 1, 1}})
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	plain := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	q.Push(plain)

	overridden := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassTransparentPBR, math.Vec3{0, 0, -2})
	overridden.MaterialOverride = &textured
	q.Push(overridden)

	wrong := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -3})
	wrong.MaterialOverride = &unlit
	q.Push(wrong)

	noBase := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassSkybox, math.Vec3{0, 0, -4})
	q.Push(noBase)

	perSlot := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassUnlit, math.Vec3{0, 0, -5})
	require.NoError(t, r.SetMaterialOverride(perSlot.Handle(), unlit))
	q.Push(perSlot)

	require.NoError(t, r.DrawFrame(q, nil))
	assert.Equal(t, uint32(2), r.Stats().MismatchSkipped)

	sets := map[metadata.PipelineClass]metadata.MaterialSetID{}
	for _, d := range b.lastSink().draws() {
		sets[d.class] = d.set
	}
	assert.Equal(t, map[metadata.PipelineClass]metadata.MaterialSetID{
		metadata.PipelineClassOpaquePBR:      pool.DefaultMaterialSet(),
		metadata.PipelineClassTransparentPBR: textured,
		metadata.PipelineClassUnlit:          unlit,
	}, sets)

	binding := b.materialSets[textured]
	assert.Equal(t, tex, binding.textures[metadata.TextureSlotBaseColor].Handle)
	assert.Equal(t, metadata.DefaultTexture, binding.textures[metadata.TextureSlotNormal].Handle)
	assert.Equal(t, r.ubo.MaterialRange(0), binding.material)

	assert.Error(t, r.SetMaterialOverride(perSlot.Handle(), 999))
}

func TestInstanceParamsOverrideMaterialColor(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 2)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	e := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	blue := math.Vec4{0, 0, 1, 1}
	require.NoError(t, r.UpdatePoolInstance(e.Handle(), InstanceParams{Color: &blue}))
	q.Push(e)
	require.NoError(t, r.DrawFrame(q, nil))

	rec, err := pool.Readback(b.lastSink().frame, 0)
	require.NoError(t, err)
	assert.Equal(t, blue, rec.MaterialColor)
	assert.Equal(t, uint32(1), rec.MaterialIndex, "index 0 is the default material")
}

func TestWrittenRecordReachesDrawnInstance(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 2)
	require.NoError(t, err)

	e := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	green := math.Vec4{0, 1, 0, 1}
	glow := math.Vec4{0.2, 0.2, 0, 1}
	write := func(frame *FrameContext, _ *UBOManager) error {
		return r.WritePoolInstance(e.Handle(), &metadata.InstanceRecord{
			Model:         math.Mat4Identity(),
			MaterialColor: green,
			Emission:      glow,
		}, frame)
	}

	q := cameraQueue(math.Vec3{})
	q.Push(e)
	require.NoError(t, r.DrawFrame(q, write))
	rec, err := pool.Readback(b.lastSink().frame, 0)
	require.NoError(t, err)
	assert.Equal(t, green, rec.MaterialColor)
	assert.Equal(t, glow, rec.Emission)
	assert.Equal(t, e.WorldPosition, rec.Model.Col(3).Vec3(), "model comes from the entry")

	// the slot keeps its appearance on frames without a write
	require.NoError(t, r.DrawFrame(q, nil))
	rec, err = pool.Readback(b.lastSink().frame, 0)
	require.NoError(t, err)
	assert.Equal(t, green, rec.MaterialColor)

	blue := math.Vec4{0, 0, 1, 1}
	require.NoError(t, r.UpdatePoolInstance(e.Handle(), InstanceParams{Color: &blue}))
	require.NoError(t, r.DrawFrame(q, nil))
	rec, err = pool.Readback(b.lastSink().frame, 0)
	require.NoError(t, err)
	assert.Equal(t, blue, rec.MaterialColor)
	assert.Equal(t, glow, rec.Emission)
}

func TestStaleEntriesSkipped(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 4)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	old := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	require.NoError(t, pool.Release(old.Handle()))
	fresh := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -2})
	require.Equal(t, old.InstanceSlot, fresh.InstanceSlot)

	outOfRange := fresh
	outOfRange.InstanceSlot = 40
	q.Push(old)
	q.Push(fresh)
	q.Push(outOfRange)
	require.NoError(t, r.DrawFrame(q, nil))

	assert.Equal(t, uint32(2), r.Stats().StaleSkipped)
	draws := b.lastSink().draws()
	require.Len(t, draws, 1)
	assert.Equal(t, []float32{-2}, zs(drawnPositions(t, pool, b.lastSink().frame, draws[0])))
}

func TestGenerationCheckCanBeDisabled(t *testing.T) {
	b := newFakeBackend()
	cfg := config.Default()
	cfg.Debug.CheckGenerations = false
	r, err := New(b, cfg)
	require.NoError(t, err)
	_, err = r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 4)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	e := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	e.Generation = 77
	q.Push(e)
	require.NoError(t, r.DrawFrame(q, nil))
	assert.Equal(t, uint32(0), r.Stats().StaleSkipped)
	assert.Len(t, b.lastSink().draws(), 1)
}

func TestOverflowDropsExcessEntries(t *testing.T) {
	r, b := newTestRenderer(t)
	_, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 2)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	a := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1})
	c := entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -2})
	again := a
	again.WorldPosition = math.Vec3{0, 0, -3}
	q.Push(a)
	q.Push(c)
	q.Push(again)
	require.NoError(t, r.DrawFrame(q, nil))

	stats := r.Stats()
	assert.Equal(t, uint32(1), stats.OverflowDropped)
	assert.Equal(t, uint64(2*176), stats.BytesUploaded)
	var instances uint32
	for _, d := range b.lastSink().draws() {
		instances += d.count
	}
	assert.Equal(t, uint32(2), instances)
}

func TestMissingPoolRecordsNothing(t *testing.T) {
	r, b := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 2)
	require.NoError(t, err)

	q := cameraQueue(math.Vec3{})
	q.Push(entryAt(t, r, metadata.MeshTypeCube, metadata.PipelineClassOpaquePBR, math.Vec3{0, 0, -1}))
	q.Push(metadata.RenderEntry{MeshType: metadata.MeshTypeFrigate, PipelineClass: metadata.PipelineClassOpaquePBR})

	err = r.DrawFrame(q, nil)
	assert.ErrorIs(t, err, core.ErrMissingPool)
	assert.True(t, core.IsRecoverable(err))

	sink := b.lastSink()
	require.NotNil(t, sink)
	assert.Empty(t, sink.draws())
	assert.Equal(t, []string{opBeginPass, opViewport, opScissor, opEndPass}, ops(sink))
	assert.True(t, sink.ended)
	assert.Equal(t, 1, b.presents)
	fr := pool.FrameRange(sink.frame)
	assert.Equal(t, make([]byte, fr.Size), pool.instanceBuffer.Mapped[fr.Offset:fr.Offset+fr.Size])

	q.Entries = q.Entries[:1]
	require.NoError(t, r.DrawFrame(q, nil))
	assert.Len(t, b.lastSink().draws(), 1)
}

func ops(s *fakeSink) []string {
	out := make([]string, len(s.commands))
	for i, c := range s.commands {
		out[i] = c.op
	}
	return out
}
