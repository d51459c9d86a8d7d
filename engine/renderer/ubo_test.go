package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

func openFrame(index int) *FrameContext {
	return &FrameContext{index: index, number: 1, open: true}
}

func encodedMaterial(t *testing.T, u metadata.MaterialUBO) []byte {
	t.Helper()
	buf := make([]byte, metadata.MATERIAL_UBO_SIZE)
	require.NoError(t, u.Encode(buf))
	return buf
}

func materialCopy(m *UBOManager, index uint32, frame int) []byte {
	off := m.MaterialOffset(index, frame)
	return m.materialBuffer.Mapped[off : off+metadata.MATERIAL_UBO_SIZE]
}

func TestUBOLayout(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 4)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), m.CameraRange(0).Offset)
	assert.Equal(t, uint64(metadata.CAMERA_UBO_SIZE), m.CameraRange(0).Size)
	assert.Equal(t, uint64(256), m.LightingRange(0).Offset)
	assert.Equal(t, uint64(256+768), m.CameraRange(1).Offset)
	assert.Equal(t, uint64(256+768+256), m.LightingRange(1).Offset)

	assert.Equal(t, uint64(3*256), m.MaterialOffset(1, 1))
	assert.Equal(t, uint64(2*256), m.MaterialRange(1).Offset)
	assert.Equal(t, uint32(256), m.MaterialDynamicOffset(1))
	assert.Equal(t, uint64(4*2*256), m.materialBuffer.TotalSize)

	assert.Equal(t, metadata.FrameSetID(0), m.FrameSet(0))
	assert.Equal(t, metadata.FrameSetID(1), m.FrameSet(1))
}

func TestUBOWritesNeedAnOpenFrame(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 4)
	require.NoError(t, err)

	assert.ErrorIs(t, m.UpdateCamera(&metadata.CameraUBO{}), core.ErrFrameNotWritable)
	assert.ErrorIs(t, m.SetCurrentFrame(nil), core.ErrFrameNotWritable)
	assert.ErrorIs(t, m.SetCurrentFrame(&FrameContext{index: 0}), core.ErrFrameNotWritable)

	ctx := openFrame(0)
	require.NoError(t, m.SetCurrentFrame(ctx))
	require.NoError(t, m.UpdateCamera(&metadata.CameraUBO{}))
	ctx.revoke()
	assert.ErrorIs(t, m.UpdateCamera(&metadata.CameraUBO{}), core.ErrFrameNotWritable)
	env := metadata.DefaultLighting()
	assert.ErrorIs(t, m.UpdateLighting(&env), core.ErrFrameNotWritable)
}

func TestUBOCameraTouchesOnlyCurrentFrame(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 4)
	require.NoError(t, err)
	require.NoError(t, m.SetCurrentFrame(openFrame(1)))

	cam := &metadata.CameraUBO{View: math.Mat4Identity(), Position: math.Vec3{1, 2, 3}}
	require.NoError(t, m.UpdateCamera(cam))

	want := make([]byte, metadata.CAMERA_UBO_SIZE)
	require.NoError(t, cam.Encode(want))
	r1 := m.CameraRange(1)
	assert.Equal(t, want, m.frameBuffer.Mapped[r1.Offset:r1.Offset+r1.Size])
	r0 := m.CameraRange(0)
	assert.Equal(t, make([]byte, metadata.CAMERA_UBO_SIZE), m.frameBuffer.Mapped[r0.Offset:r0.Offset+r0.Size])
}

func TestUBOMaterialUpdatesFollowFrames(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 4)
	require.NoError(t, err)

	red := metadata.MaterialUBO{BaseColor: math.Vec4{1, 0, 0, 1}, Alpha: 1}
	green := metadata.MaterialUBO{BaseColor: math.Vec4{0, 1, 0, 1}, Alpha: 1}

	idx, err := m.RegisterMaterial(red)
	require.NoError(t, err)
	assert.Equal(t, encodedMaterial(t, red), materialCopy(m, idx, 0))
	assert.Equal(t, encodedMaterial(t, red), materialCopy(m, idx, 1))

	require.NoError(t, m.SetCurrentFrame(openFrame(0)))
	require.NoError(t, m.UpdateMaterial(idx, green))
	assert.Equal(t, encodedMaterial(t, green), materialCopy(m, idx, 0))
	assert.Equal(t, encodedMaterial(t, red), materialCopy(m, idx, 1), "frame 1 may still be in flight")

	require.NoError(t, m.SetCurrentFrame(openFrame(1)))
	assert.Equal(t, encodedMaterial(t, green), materialCopy(m, idx, 1))
	assert.Empty(t, m.pending[1])
}

func TestUBOMaterialColorAndRingLimit(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 1)
	require.NoError(t, err)
	require.NoError(t, m.SetCurrentFrame(openFrame(0)))
	assert.Error(t, m.UpdateMaterialColor(math.Vec4{1, 1, 1, 1}), "no default material yet")

	_, err = m.RegisterMaterial(metadata.MaterialUBO{})
	require.NoError(t, err)
	_, err = m.RegisterMaterial(metadata.MaterialUBO{})
	assert.Error(t, err)

	require.NoError(t, m.UpdateMaterialColor(math.Vec4{0, 0, 1, 1}))
	assert.Equal(t, math.Vec4{0, 0, 1, 1}, m.Material(0).BaseColor)
}

func TestUBOLightingTruncates(t *testing.T) {
	m, err := NewUBOManager(newFakeBackend(), 1)
	require.NoError(t, err)
	require.NoError(t, m.SetCurrentFrame(openFrame(0)))

	env := metadata.DefaultLighting()
	for i := 0; i < metadata.MAX_DIRECTIONAL_LIGHTS+2; i++ {
		env.Directional = append(env.Directional, metadata.DirectionalLight{Direction: math.Vec3{0, -1, 0}, Color: math.Vec3{1, 1, 1}, Intensity: 1})
	}
	assert.NoError(t, m.UpdateLighting(&env))
}
