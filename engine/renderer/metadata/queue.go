package metadata

import "github.com/spaghettifunk/armada/engine/math"

/**
 * @brief One renderable for one frame. The caller guarantees that
 * (MeshType, InstanceSlot) names a live slot; Generation is checked when
 * generation checking is enabled.
 */
type RenderEntry struct {
	MeshType      MeshType
	InstanceSlot  uint32
	Generation    uint32
	Model         math.Mat4
	PipelineClass PipelineClass
	/** @brief Draw with this material set instead of the pool's. */
	MaterialOverride *MaterialSetID
	/** @brief Tie-break for entries at the same depth. */
	Layer         uint8
	WorldPosition math.Vec3
	/** @brief Billboards only: aligns the quad's right axis with the velocity. */
	Velocity *math.Vec3
	/** @brief Billboards only: quad width and height. */
	Size math.Vec2
}

// Handle returns the pool handle the entry refers to.
func (e *RenderEntry) Handle() InstanceHandle {
	return InstanceHandle{MeshType: e.MeshType, Slot: e.InstanceSlot, Generation: e.Generation}
}

/** @brief The per-frame input of the instance renderer. */
type RenderQueue struct {
	Entries        []RenderEntry
	CameraPosition math.Vec3
	CameraForward  math.Vec3
	CameraRight    math.Vec3
	CameraUp       math.Vec3
}

func (q *RenderQueue) Reset() {
	q.Entries = q.Entries[:0]
}

func (q *RenderQueue) Push(e RenderEntry) {
	q.Entries = append(q.Entries, e)
}
