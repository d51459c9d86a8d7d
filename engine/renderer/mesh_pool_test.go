package renderer

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

func redPBR() metadata.Material {
	return metadata.NewPBRMaterial("red", math.Vec3{0.8, 0.2, 0.2}, 0, 0.6)
}

// inFrame runs fn inside the update callback of one frame.
func inFrame(t *testing.T, r *Renderer, fn func(frame *FrameContext)) {
	t.Helper()
	require.NoError(t, r.DrawFrame(cameraQueue(math.Vec3{}), func(frame *FrameContext, _ *UBOManager) error {
		fn(frame)
		return nil
	}))
}

func TestPoolCapacity(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 4)
	require.NoError(t, err)

	for want := uint32(0); want < 4; want++ {
		h, err := r.AllocateFromPool(metadata.MeshTypeCube)
		require.NoError(t, err)
		assert.Equal(t, want, h.Slot)
		assert.Equal(t, uint32(1), h.Generation)
	}
	_, err = r.AllocateFromPool(metadata.MeshTypeCube)
	assert.ErrorIs(t, err, core.ErrPoolFull)
	assert.Equal(t, uint32(4), pool.Live())

	require.NoError(t, pool.Release(metadata.InstanceHandle{MeshType: metadata.MeshTypeCube, Slot: 2, Generation: 1}))
	h, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h.Slot, "lowest free slot is reused")
	assert.Equal(t, uint32(2), h.Generation)
}

func TestPoolSpansBitmapWords(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{redPBR()}, 130)
	require.NoError(t, err)
	for i := 0; i < 130; i++ {
		h, err := pool.Allocate()
		require.NoError(t, err)
		assert.Equal(t, uint32(i), h.Slot)
	}
	_, err = pool.Allocate()
	assert.ErrorIs(t, err, core.ErrPoolFull)
}

func TestStaleHandle(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeMonkey, triangleMesh(), []metadata.Material{redPBR()}, 2)
	require.NoError(t, err)

	old, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, r.ReleasePoolInstance(old))

	inFrame(t, r, func(frame *FrameContext) {
		err := pool.Write(old, &metadata.InstanceRecord{Model: math.Mat4Identity()}, frame)
		assert.ErrorIs(t, err, core.ErrStaleHandle)
	})

	fresh, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, old.Slot, fresh.Slot)
	assert.NotEqual(t, old.Generation, fresh.Generation)

	assert.ErrorIs(t, pool.Release(old), core.ErrStaleHandle)
	assert.ErrorIs(t, pool.SetParams(old, InstanceParams{}), core.ErrStaleHandle)
	assert.ErrorIs(t, pool.SetMaterialOverride(old, 0), core.ErrStaleHandle)
	_, err = pool.Record(old)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	assert.NoError(t, pool.Validate(fresh))
}

func TestGenerationSkipsZero(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 1)
	require.NoError(t, err)

	pool.generations[0] = stdmath.MaxUint32
	h, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, pool.Release(h))
	assert.Equal(t, uint32(1), pool.generations[0])
}

func TestInstanceRecordRoundTrip(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeTeapot, triangleMesh(), []metadata.Material{redPBR()}, 3)
	require.NoError(t, err)
	_, err = pool.Allocate()
	require.NoError(t, err)
	h, err := pool.Allocate()
	require.NoError(t, err)

	model := math.TRS(math.Vec3{1, 2, 3}, math.Quat{W: 1}, math.Vec3{2, 1, 0.5})
	normal, ok := math.NormalMatrix(model)
	require.True(t, ok)
	rec := metadata.InstanceRecord{
		Model:         model,
		Normal:        normal,
		MaterialColor: math.Vec4{0.1, 0.2, 0.3, 0.4},
		Emission:      math.Vec4{1, 0.5, 0, 2},
		TextureFlags:  [4]uint32{0b101},
		MaterialIndex: 7,
	}

	var written int
	inFrame(t, r, func(frame *FrameContext) {
		require.NoError(t, pool.Write(h, &rec, frame))
		written = frame.Index()
	})

	got, err := pool.Readback(written, h.Slot)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	stored, err := pool.Record(h)
	require.NoError(t, err)
	assert.Equal(t, rec, stored)

	stride := metadata.InstanceStride()
	off := pool.FrameOffset(written) + uint64(h.Slot)*stride
	assert.Equal(t, uint64(written)*3*stride+stride, off)
	other := pool.FrameRange(1 - written)
	assert.Equal(t, make([]byte, other.Size), pool.instanceBuffer.Mapped[other.Offset:other.Offset+other.Size],
		"only the current frame's section is written")
}

func TestPoolWriteNeedsOpenFrame(t *testing.T) {
	r, _ := newTestRenderer(t)
	pool, err := r.CreateMeshPool(metadata.MeshTypeTeapot, triangleMesh(), []metadata.Material{redPBR()}, 1)
	require.NoError(t, err)
	h, err := pool.Allocate()
	require.NoError(t, err)

	rec := &metadata.InstanceRecord{}
	assert.ErrorIs(t, pool.Write(h, rec, nil), core.ErrFrameNotWritable)
	assert.ErrorIs(t, pool.Write(h, rec, &FrameContext{index: 0}), core.ErrFrameNotWritable)

	var captured *FrameContext
	inFrame(t, r, func(frame *FrameContext) { captured = frame })
	assert.False(t, captured.IsOpen())
	assert.ErrorIs(t, pool.Write(h, rec, captured), core.ErrFrameNotWritable)
}

func TestCreateMeshPoolErrors(t *testing.T) {
	r, b := newTestRenderer(t)
	_, err := r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 4)
	require.NoError(t, err)

	_, err = r.CreateMeshPool(metadata.MeshTypeCube, triangleMesh(), []metadata.Material{redPBR()}, 4)
	assert.ErrorIs(t, err, core.ErrPoolExists)

	_, err = r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), nil, 4)
	assert.Error(t, err)
	_, err = r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{redPBR()}, 0)
	assert.Error(t, err)
	_, err = r.CreateMeshPool(metadata.MeshTypeSphere, &metadata.Mesh{}, []metadata.Material{redPBR()}, 4)
	assert.Error(t, err)

	bad := metadata.NewPBRMaterial("bad", math.Vec3{1, 1, 1}, 0, 1)
	bad.Maps[metadata.TextureSlotNormal] = 99
	_, err = r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{bad}, 4)
	assert.Error(t, err)
	_, ok := r.Pool(metadata.MeshTypeSphere)
	assert.False(t, ok)
	// two uniform buffers plus the cube pool's three
	assert.Equal(t, 5, len(b.buffers)-len(b.destroyedBuffers), "failed pools release their buffers")
}

func TestPoolBuffersAndMaterials(t *testing.T) {
	r, b := newTestRenderer(t)
	unlit := &metadata.UnlitMaterial{Name: "glass", Color: math.Vec4{1, 1, 1, 0.5}, Transparent: true}
	pool, err := r.CreateMeshPool(metadata.MeshTypeSphere, triangleMesh(), []metadata.Material{redPBR(), unlit}, 8)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), pool.VertexCount())
	assert.Equal(t, uint32(3), pool.IndexCount())
	assert.Equal(t, uint64(2*8*176), pool.instanceBuffer.TotalSize)
	assert.Equal(t, triangleMesh().VertexBytes(), pool.vertexBuffer.Mapped)

	set, ok := pool.materialFor(metadata.PipelineClassTransparentUnlit)
	require.True(t, ok)
	assert.NotEqual(t, pool.DefaultMaterialSet(), set)
	_, ok = pool.materialFor(metadata.PipelineClassSkybox)
	assert.False(t, ok)

	binding := b.materialSets[pool.DefaultMaterialSet()]
	assert.Equal(t, r.ubo.MaterialRange(1), binding.material, "index 0 is the default material")
	for _, tex := range binding.textures {
		assert.Equal(t, metadata.DefaultTexture, tex.Handle)
	}
}
