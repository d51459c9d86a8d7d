package renderer

import (
	"fmt"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// UBOManager owns the per-frame camera and lighting blocks and the material
// ring. Every block exists once per frame in flight; a write only ever touches
// the copy of the frame whose FrameContext is current.
//
// Frame buffer layout, per frame f: camera at f*(cam+light), lighting right after.
// Material ring: block (m, f) at (m*F + f) * materialBlock.
type UBOManager struct {
	backend RendererBackend
	frames  int

	frameBuffer   *metadata.RenderBuffer
	cameraBlock   uint64
	lightingBlock uint64
	frameSets     []metadata.FrameSetID

	materialBuffer *metadata.RenderBuffer
	materialBlock  uint64
	maxMaterials   uint32
	materials      []metadata.MaterialUBO
	// pending[f] lists material indices whose frame f copy is stale.
	pending [][]uint32

	current *FrameContext
}

func NewUBOManager(backend RendererBackend, maxMaterials uint32) (*UBOManager, error) {
	frames := backend.FramesInFlight()
	align := backend.UniformAlignment()
	m := &UBOManager{
		backend:       backend,
		frames:        frames,
		cameraBlock:   math.AlignUp(uint64(metadata.CAMERA_UBO_SIZE), align),
		lightingBlock: math.AlignUp(uint64(metadata.LIGHTING_UBO_SIZE), align),
		materialBlock: math.AlignUp(uint64(metadata.MATERIAL_UBO_SIZE), align),
		maxMaterials:  maxMaterials,
		frameSets:     make([]metadata.FrameSetID, frames),
		pending:       make([][]uint32, frames),
	}

	var err error
	m.frameBuffer, err = backend.CreateBuffer(metadata.RENDERBUFFER_TYPE_UNIFORM, uint64(frames)*(m.cameraBlock+m.lightingBlock))
	if err != nil {
		return nil, fmt.Errorf("creating frame uniform buffer: %w", err)
	}
	m.materialBuffer, err = backend.CreateBuffer(metadata.RENDERBUFFER_TYPE_UNIFORM, uint64(maxMaterials)*uint64(frames)*m.materialBlock)
	if err != nil {
		backend.DestroyBuffer(m.frameBuffer)
		return nil, fmt.Errorf("creating material uniform buffer: %w", err)
	}

	for f := 0; f < frames; f++ {
		set, err := backend.AllocateFrameSet(f, m.CameraRange(f), m.LightingRange(f))
		if err != nil {
			m.Destroy()
			return nil, fmt.Errorf("allocating frame set %d: %w", f, err)
		}
		m.frameSets[f] = set
	}
	core.LogDebug("UBO manager ready: %d frames, camera block %d, lighting block %d, material block %d x %d",
		frames, m.cameraBlock, m.lightingBlock, m.materialBlock, maxMaterials)
	return m, nil
}

func (m *UBOManager) CameraRange(frame int) metadata.BufferRange {
	return metadata.BufferRange{
		Buffer:      m.frameBuffer,
		MemoryRange: metadata.MemoryRange{Offset: uint64(frame) * (m.cameraBlock + m.lightingBlock), Size: metadata.CAMERA_UBO_SIZE},
	}
}

func (m *UBOManager) LightingRange(frame int) metadata.BufferRange {
	return metadata.BufferRange{
		Buffer:      m.frameBuffer,
		MemoryRange: metadata.MemoryRange{Offset: uint64(frame)*(m.cameraBlock+m.lightingBlock) + m.cameraBlock, Size: metadata.LIGHTING_UBO_SIZE},
	}
}

// MaterialRange is the descriptor range of material index; the frame copy is
// selected with MaterialDynamicOffset at bind time.
func (m *UBOManager) MaterialRange(index uint32) metadata.BufferRange {
	return metadata.BufferRange{
		Buffer:      m.materialBuffer,
		MemoryRange: metadata.MemoryRange{Offset: uint64(index) * uint64(m.frames) * m.materialBlock, Size: metadata.MATERIAL_UBO_SIZE},
	}
}

func (m *UBOManager) MaterialOffset(index uint32, frame int) uint64 {
	return (uint64(index)*uint64(m.frames) + uint64(frame)) * m.materialBlock
}

func (m *UBOManager) MaterialDynamicOffset(frame int) uint32 {
	return uint32(uint64(frame) * m.materialBlock)
}

func (m *UBOManager) FrameSet(frame int) metadata.FrameSetID {
	return m.frameSets[frame]
}

// SetCurrentFrame makes frame the target of subsequent updates and refreshes
// the material copies that changed while the frame was in flight.
func (m *UBOManager) SetCurrentFrame(frame *FrameContext) error {
	if !frame.IsOpen() {
		return fmt.Errorf("%w: SetCurrentFrame with a closed frame", core.ErrFrameNotWritable)
	}
	m.current = frame
	f := frame.Index()
	for _, idx := range m.pending[f] {
		if err := m.writeMaterial(idx, f); err != nil {
			return err
		}
	}
	m.pending[f] = m.pending[f][:0]
	return nil
}

func (m *UBOManager) currentFrame() (int, error) {
	if m.current == nil {
		return 0, fmt.Errorf("%w: no current frame", core.ErrFrameNotWritable)
	}
	f := m.current.Index()
	return f, m.current.writable(f)
}

func (m *UBOManager) UpdateCamera(camera *metadata.CameraUBO) error {
	f, err := m.currentFrame()
	if err != nil {
		return err
	}
	r := m.CameraRange(f)
	return camera.Encode(m.frameBuffer.Mapped[r.Offset : r.Offset+r.Size])
}

func (m *UBOManager) UpdateLighting(env *metadata.LightingEnvironment) error {
	f, err := m.currentFrame()
	if err != nil {
		return err
	}
	r := m.LightingRange(f)
	truncated, err := env.Encode(m.frameBuffer.Mapped[r.Offset : r.Offset+r.Size])
	if err != nil {
		return err
	}
	if truncated {
		core.LogWarn("lighting truncated to %d directional and %d point lights (got %d and %d)",
			metadata.MAX_DIRECTIONAL_LIGHTS, metadata.MAX_POINT_LIGHTS, len(env.Directional), len(env.Point))
	}
	return nil
}

// UpdateMaterialColor sets the base color of the default material.
func (m *UBOManager) UpdateMaterialColor(rgba math.Vec4) error {
	if len(m.materials) == 0 {
		return fmt.Errorf("no default material registered")
	}
	u := m.materials[0]
	u.BaseColor = rgba
	return m.UpdateMaterial(0, u)
}

// RegisterMaterial appends a material block and writes every frame copy. The
// block has never been bound, so no frame in flight can read it.
func (m *UBOManager) RegisterMaterial(u metadata.MaterialUBO) (uint32, error) {
	if uint32(len(m.materials)) >= m.maxMaterials {
		return 0, fmt.Errorf("material ring full (%d materials)", m.maxMaterials)
	}
	idx := uint32(len(m.materials))
	m.materials = append(m.materials, u)
	for f := 0; f < m.frames; f++ {
		if err := m.writeMaterial(idx, f); err != nil {
			return 0, err
		}
	}
	return idx, nil
}

// UpdateMaterial writes the current frame's copy; the other copies follow when
// their frames become current.
func (m *UBOManager) UpdateMaterial(index uint32, u metadata.MaterialUBO) error {
	if int(index) >= len(m.materials) {
		return fmt.Errorf("unknown material index %d", index)
	}
	f, err := m.currentFrame()
	if err != nil {
		return err
	}
	m.materials[index] = u
	if err := m.writeMaterial(index, f); err != nil {
		return err
	}
	for other := 0; other < m.frames; other++ {
		if other != f {
			m.pending[other] = appendUnique(m.pending[other], index)
		}
	}
	return nil
}

func (m *UBOManager) Material(index uint32) metadata.MaterialUBO {
	return m.materials[index]
}

func (m *UBOManager) MaterialCount() int {
	return len(m.materials)
}

func (m *UBOManager) writeMaterial(index uint32, frame int) error {
	off := m.MaterialOffset(index, frame)
	u := m.materials[index]
	return u.Encode(m.materialBuffer.Mapped[off : off+metadata.MATERIAL_UBO_SIZE])
}

func (m *UBOManager) Destroy() {
	if m.materialBuffer != nil {
		m.backend.DestroyBuffer(m.materialBuffer)
		m.materialBuffer = nil
	}
	if m.frameBuffer != nil {
		m.backend.DestroyBuffer(m.frameBuffer)
		m.frameBuffer = nil
	}
}

func appendUnique(list []uint32, v uint32) []uint32 {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
