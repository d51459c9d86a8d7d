package renderer

import (
	"fmt"
	"math/bits"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// InstanceParams are per-slot overrides of the material color and emission.
// Nil fields fall back to the material's values.
type InstanceParams struct {
	Color    *math.Vec4
	Emission *math.Vec4
}

type poolMaterial struct {
	set   metadata.MaterialSetID
	class metadata.PipelineClass
}

// MeshPool is the resource set of one mesh type: vertex and index buffers, an
// instance buffer split into one section of capacity*stride bytes per frame in
// flight, the pool's materials and the slot allocator.
type MeshPool struct {
	meshType    metadata.MeshType
	vertexCount uint32
	indexCount  uint32

	vertexBuffer   *metadata.RenderBuffer
	indexBuffer    *metadata.RenderBuffer
	instanceBuffer *metadata.RenderBuffer

	capacity uint32
	stride   uint64
	frames   int

	materials []poolMaterial
	overrides map[uint32]metadata.MaterialSetID

	slots       []uint64
	generations []uint32
	params      []InstanceParams
	records     []metadata.InstanceRecord
	written     []bool
	live        uint32
}

func newMeshPool(backend RendererBackend, meshType metadata.MeshType, mesh *metadata.Mesh, capacity uint32) (*MeshPool, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("mesh pool %s: capacity must be positive", meshType)
	}
	if mesh == nil || mesh.VertexCount() == 0 || mesh.IndexCount() == 0 {
		return nil, fmt.Errorf("mesh pool %s: empty mesh", meshType)
	}
	p := &MeshPool{
		meshType:    meshType,
		vertexCount: mesh.VertexCount(),
		indexCount:  mesh.IndexCount(),
		capacity:    capacity,
		stride:      metadata.InstanceStride(),
		frames:      backend.FramesInFlight(),
		overrides:   make(map[uint32]metadata.MaterialSetID),
		slots:       make([]uint64, (capacity+63)/64),
		generations: make([]uint32, capacity),
		params:      make([]InstanceParams, capacity),
		records:     make([]metadata.InstanceRecord, capacity),
		written:     make([]bool, capacity),
	}
	for i := range p.generations {
		p.generations[i] = 1
	}

	var err error
	vertices := mesh.VertexBytes()
	if p.vertexBuffer, err = backend.CreateBuffer(metadata.RENDERBUFFER_TYPE_VERTEX, uint64(len(vertices))); err != nil {
		return nil, fmt.Errorf("mesh pool %s vertex buffer: %w", meshType, err)
	}
	copy(p.vertexBuffer.Mapped, vertices)

	indices := mesh.IndexBytes()
	if p.indexBuffer, err = backend.CreateBuffer(metadata.RENDERBUFFER_TYPE_INDEX, uint64(len(indices))); err != nil {
		p.destroy(backend)
		return nil, fmt.Errorf("mesh pool %s index buffer: %w", meshType, err)
	}
	copy(p.indexBuffer.Mapped, indices)

	if p.instanceBuffer, err = backend.CreateBuffer(metadata.RENDERBUFFER_TYPE_INSTANCE, uint64(p.frames)*p.sectionSize()); err != nil {
		p.destroy(backend)
		return nil, fmt.Errorf("mesh pool %s instance buffer: %w", meshType, err)
	}
	return p, nil
}

func (p *MeshPool) MeshType() metadata.MeshType { return p.meshType }
func (p *MeshPool) Capacity() uint32            { return p.capacity }
func (p *MeshPool) Live() uint32                { return p.live }
func (p *MeshPool) IndexCount() uint32          { return p.indexCount }
func (p *MeshPool) VertexCount() uint32         { return p.vertexCount }

func (p *MeshPool) sectionSize() uint64 {
	return uint64(p.capacity) * p.stride
}

// FrameOffset is the byte offset of frame's section in the instance buffer.
func (p *MeshPool) FrameOffset(frame int) uint64 {
	return uint64(frame) * p.sectionSize()
}

// FrameRange is the instance region that belongs to frame.
func (p *MeshPool) FrameRange(frame int) metadata.MemoryRange {
	return metadata.MemoryRange{Offset: p.FrameOffset(frame), Size: p.sectionSize()}
}

// DefaultMaterialSet is the set written from the first base material.
func (p *MeshPool) DefaultMaterialSet() metadata.MaterialSetID {
	return p.materials[0].set
}

// materialFor returns the pool's base material set of class.
func (p *MeshPool) materialFor(class metadata.PipelineClass) (metadata.MaterialSetID, bool) {
	for _, m := range p.materials {
		if m.class == class {
			return m.set, true
		}
	}
	return 0, false
}

// Allocate claims the lowest free slot.
func (p *MeshPool) Allocate() (metadata.InstanceHandle, error) {
	for w, word := range p.slots {
		if word == ^uint64(0) {
			continue
		}
		slot := uint32(w*64 + bits.TrailingZeros64(^word))
		if slot >= p.capacity {
			break
		}
		p.slots[w] |= 1 << (slot % 64)
		p.live++
		p.params[slot] = InstanceParams{}
		p.records[slot] = metadata.InstanceRecord{}
		p.written[slot] = false
		return metadata.InstanceHandle{MeshType: p.meshType, Slot: slot, Generation: p.generations[slot]}, nil
	}
	return metadata.InstanceHandle{}, fmt.Errorf("%w: %s (capacity %d)", core.ErrPoolFull, p.meshType, p.capacity)
}

func (p *MeshPool) allocated(slot uint32) bool {
	return slot < p.capacity && p.slots[slot/64]&(1<<(slot%64)) != 0
}

// IsLive reports whether slot is allocated with generation gen.
func (p *MeshPool) IsLive(slot, gen uint32) bool {
	return p.allocated(slot) && p.generations[slot] == gen
}

// Validate fails with ErrStaleHandle unless h names a live slot of this pool.
func (p *MeshPool) Validate(h metadata.InstanceHandle) error {
	if h.MeshType != p.meshType || !p.IsLive(h.Slot, h.Generation) {
		return fmt.Errorf("%w: %s", core.ErrStaleHandle, h)
	}
	return nil
}

// Write stores rec at the slot's position of frame's instance section and
// keeps a host copy. When the renderer packs later queues it takes the slot's
// material color and emission from that copy; model and normal always come
// from the queue entry.
func (p *MeshPool) Write(h metadata.InstanceHandle, rec *metadata.InstanceRecord, frame *FrameContext) error {
	if err := p.Validate(h); err != nil {
		return err
	}
	if err := p.writeAt(h.Slot, rec, frame); err != nil {
		return err
	}
	p.records[h.Slot] = *rec
	p.written[h.Slot] = true
	return nil
}

// writeAt stores rec at instance index of the frame's section. The instance
// renderer uses it to pack a frame's entries contiguously.
func (p *MeshPool) writeAt(index uint32, rec *metadata.InstanceRecord, frame *FrameContext) error {
	if frame == nil {
		return fmt.Errorf("%w: no frame", core.ErrFrameNotWritable)
	}
	if err := frame.writable(frame.Index()); err != nil {
		return err
	}
	if index >= p.capacity {
		return fmt.Errorf("%w: %s index %d >= %d", core.ErrOverflowingInstanceUpload, p.meshType, index, p.capacity)
	}
	off := p.FrameOffset(frame.Index()) + uint64(index)*p.stride
	return metadata.EncodeInstanceRecord(p.instanceBuffer.Mapped[off:off+p.stride], rec)
}

// Readback decodes the record at instance index of frame's section from mapped memory.
func (p *MeshPool) Readback(frame int, index uint32) (metadata.InstanceRecord, error) {
	if index >= p.capacity || frame < 0 || frame >= p.frames {
		return metadata.InstanceRecord{}, fmt.Errorf("readback %s frame %d index %d out of range", p.meshType, frame, index)
	}
	off := p.FrameOffset(frame) + uint64(index)*p.stride
	return metadata.DecodeInstanceRecord(p.instanceBuffer.Mapped[off : off+p.stride])
}

// appearance is the last record written for slot, if any.
func (p *MeshPool) appearance(slot uint32) (*metadata.InstanceRecord, bool) {
	if !p.written[slot] {
		return nil, false
	}
	return &p.records[slot], true
}

// Record returns the last record written through Write for h.
func (p *MeshPool) Record(h metadata.InstanceHandle) (metadata.InstanceRecord, error) {
	if err := p.Validate(h); err != nil {
		return metadata.InstanceRecord{}, err
	}
	return p.records[h.Slot], nil
}

func (p *MeshPool) SetParams(h metadata.InstanceHandle, params InstanceParams) error {
	if err := p.Validate(h); err != nil {
		return err
	}
	p.params[h.Slot] = params
	return nil
}

// Release frees the slot and bumps its generation so h and its copies go stale.
func (p *MeshPool) Release(h metadata.InstanceHandle) error {
	if err := p.Validate(h); err != nil {
		return err
	}
	p.slots[h.Slot/64] &^= 1 << (h.Slot % 64)
	p.generations[h.Slot]++
	if p.generations[h.Slot] == 0 {
		p.generations[h.Slot] = 1
	}
	delete(p.overrides, h.Slot)
	p.live--
	return nil
}

func (p *MeshPool) SetMaterialOverride(h metadata.InstanceHandle, set metadata.MaterialSetID) error {
	if err := p.Validate(h); err != nil {
		return err
	}
	p.overrides[h.Slot] = set
	return nil
}

func (p *MeshPool) ClearMaterialOverride(h metadata.InstanceHandle) error {
	if err := p.Validate(h); err != nil {
		return err
	}
	delete(p.overrides, h.Slot)
	return nil
}

func (p *MeshPool) override(slot uint32) (metadata.MaterialSetID, bool) {
	set, ok := p.overrides[slot]
	return set, ok
}

func (p *MeshPool) destroy(backend RendererBackend) {
	for _, b := range []*metadata.RenderBuffer{p.instanceBuffer, p.indexBuffer, p.vertexBuffer} {
		if b != nil {
			backend.DestroyBuffer(b)
		}
	}
	p.instanceBuffer, p.indexBuffer, p.vertexBuffer = nil, nil, nil
}

// PoolRegistry keeps one pool per mesh type in creation order.
type PoolRegistry struct {
	pools map[metadata.MeshType]*MeshPool
	order []*MeshPool
}

func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{pools: make(map[metadata.MeshType]*MeshPool)}
}

func (r *PoolRegistry) Get(t metadata.MeshType) (*MeshPool, bool) {
	p, ok := r.pools[t]
	return p, ok
}

func (r *PoolRegistry) add(p *MeshPool) error {
	if _, ok := r.pools[p.meshType]; ok {
		return fmt.Errorf("%w: %s", core.ErrPoolExists, p.meshType)
	}
	r.pools[p.meshType] = p
	r.order = append(r.order, p)
	return nil
}

func (r *PoolRegistry) Len() int {
	return len(r.order)
}

// destroy tears pools down in reverse creation order.
func (r *PoolRegistry) destroy(backend RendererBackend) {
	for i := len(r.order) - 1; i >= 0; i-- {
		r.order[i].destroy(backend)
	}
	r.order = nil
	r.pools = make(map[metadata.MeshType]*MeshPool)
}
