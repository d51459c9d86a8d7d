package renderer

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

var defaultBillboardSize = math.Vec2{1, 1}

type drawItem struct {
	id      int
	entry   *metadata.RenderEntry
	pool    *MeshPool
	class   metadata.PipelineClass
	set     metadata.MaterialSetID
	depth   float32
	dist2   float32
	record  metadata.InstanceRecord
	packed  uint32
	dropped bool
}

type batchKey struct {
	class metadata.PipelineClass
	pool  *MeshPool
	set   metadata.MaterialSetID
}

func (d *drawItem) key() batchKey {
	return batchKey{class: d.class, pool: d.pool, set: d.set}
}

type bucket struct {
	key   batchKey
	items []*drawItem
}

// InstanceRenderer turns a render queue into packed instance uploads and an
// ordered list of draws:
//
//	opaque buckets by nearest entry, each bucket front-to-back
//	skybox
//	blended entries of every class back-to-front, one draw per entry
//	UI panels, then UI text
type InstanceRenderer struct {
	pools            *PoolRegistry
	materials        *MaterialRegistry
	ubo              *UBOManager
	checkGenerations bool

	stats metadata.FrameStats

	items       []drawItem
	opaque      []*drawItem
	skybox      []*drawItem
	transparent []*drawItem
	panels      []*drawItem
	texts       []*drawItem
	buckets     []bucket
	bucketIndex map[batchKey]int
	cursors     map[*MeshPool]uint32
}

func NewInstanceRenderer(pools *PoolRegistry, materials *MaterialRegistry, ubo *UBOManager, checkGenerations bool) *InstanceRenderer {
	return &InstanceRenderer{
		pools:            pools,
		materials:        materials,
		ubo:              ubo,
		checkGenerations: checkGenerations,
		bucketIndex:      make(map[batchKey]int),
		cursors:          make(map[*MeshPool]uint32),
	}
}

func (ir *InstanceRenderer) Stats() metadata.FrameStats {
	return ir.stats
}

// Process validates the queue, uploads instance records for frame and records
// the draws into rec. A queue entry without a pool fails the whole queue with
// core.ErrMissingPool before anything is written or recorded.
func (ir *InstanceRenderer) Process(frame *FrameContext, queue *metadata.RenderQueue, rec *Recorder) error {
	ir.stats = metadata.FrameStats{}
	for i := range queue.Entries {
		if _, ok := ir.pools.Get(queue.Entries[i].MeshType); !ok {
			return fmt.Errorf("%w: %q (entry %d)", core.ErrMissingPool, queue.Entries[i].MeshType, i)
		}
	}
	if err := frame.writable(frame.Index()); err != nil {
		return err
	}

	if err := ir.collect(queue); err != nil {
		return err
	}
	ir.order()
	if err := ir.upload(frame); err != nil {
		return err
	}
	ir.emit(frame, rec)

	ir.stats.DrawCalls = rec.Draws()
	ir.stats.PipelineBinds = rec.PipelineBinds()
	core.LogTrace("frame %d: %s", frame.Number(), ir.stats)
	return nil
}

func (ir *InstanceRenderer) collect(queue *metadata.RenderQueue) error {
	ir.items = ir.items[:0]
	var stale, singular int
	var firstStale metadata.InstanceHandle

	for i := range queue.Entries {
		e := &queue.Entries[i]
		pool, _ := ir.pools.Get(e.MeshType)
		ir.stats.EntriesProcessed++

		if e.InstanceSlot >= pool.Capacity() || (ir.checkGenerations && !pool.IsLive(e.InstanceSlot, e.Generation)) {
			if stale == 0 {
				firstStale = e.Handle()
			}
			stale++
			continue
		}
		set, ok := ir.resolveMaterial(pool, e)
		if !ok {
			ir.stats.MismatchSkipped++
			core.LogWarn("entry %d (%s) skipped: class %s not supported by its material", i, e.Handle(), e.PipelineClass)
			continue
		}

		model := e.Model
		if e.PipelineClass == metadata.PipelineClassBillboardTextured {
			size := e.Size
			if size.X() == 0 && size.Y() == 0 {
				size = defaultBillboardSize
			}
			if e.Velocity != nil {
				model = math.VelocityBillboardModel(e.WorldPosition, queue.CameraPosition, *e.Velocity, size)
			} else {
				model = math.BillboardModel(e.WorldPosition, queue.CameraPosition, size)
			}
		}
		normal, ok := math.NormalMatrix(model)
		if !ok {
			singular++
		}

		u, err := ir.materials.Uniform(set)
		if err != nil {
			return err
		}
		params := pool.params[e.InstanceSlot]
		color, emission := u.BaseColor, u.Emission
		if rec, ok := pool.appearance(e.InstanceSlot); ok {
			color, emission = rec.MaterialColor, rec.Emission
		}
		if params.Color != nil {
			color = *params.Color
		}
		if params.Emission != nil {
			emission = *params.Emission
		}
		ms, _ := ir.materials.get(set)

		ir.items = append(ir.items, drawItem{
			id:    i,
			entry: e,
			pool:  pool,
			class: e.PipelineClass,
			set:   set,
			depth: math.ViewDepth(e.WorldPosition, queue.CameraPosition, queue.CameraForward),
			dist2: e.WorldPosition.Sub(queue.CameraPosition).LenSqr(),
			record: metadata.InstanceRecord{
				Model:         model,
				Normal:        normal,
				MaterialColor: color,
				Emission:      emission,
				TextureFlags:  [4]uint32{ms.flags},
				MaterialIndex: ms.uboIndex,
			},
		})
	}

	if stale > 0 {
		ir.stats.StaleSkipped = uint32(stale)
		core.LogWarn("%d stale render entries skipped (first %s): %s", stale, firstStale, core.ErrStaleHandle)
	}
	if singular > 0 {
		core.LogWarn("%d entries have a singular model matrix, using identity normals", singular)
	}
	return nil
}

func (ir *InstanceRenderer) resolveMaterial(pool *MeshPool, e *metadata.RenderEntry) (metadata.MaterialSetID, bool) {
	if !e.PipelineClass.Valid() {
		return 0, false
	}
	if e.MaterialOverride != nil {
		return *e.MaterialOverride, ir.materials.Accepts(*e.MaterialOverride, e.PipelineClass)
	}
	if set, ok := pool.override(e.InstanceSlot); ok {
		return set, ir.materials.Accepts(set, e.PipelineClass)
	}
	return pool.materialFor(e.PipelineClass)
}

func frontToBack(a, b *drawItem) int {
	return cmp.Or(
		cmp.Compare(a.depth, b.depth),
		cmp.Compare(a.dist2, b.dist2),
		cmp.Compare(a.entry.Layer, b.entry.Layer),
		cmp.Compare(a.id, b.id),
	)
}

func backToFront(a, b *drawItem) int {
	return cmp.Or(
		cmp.Compare(b.depth, a.depth),
		cmp.Compare(b.dist2, a.dist2),
		cmp.Compare(a.entry.Layer, b.entry.Layer),
		cmp.Compare(a.id, b.id),
	)
}

func byLayer(a, b *drawItem) int {
	return cmp.Or(
		cmp.Compare(a.entry.Layer, b.entry.Layer),
		cmp.Compare(a.id, b.id),
	)
}

func (ir *InstanceRenderer) order() {
	ir.opaque = ir.opaque[:0]
	ir.skybox = ir.skybox[:0]
	ir.transparent = ir.transparent[:0]
	ir.panels = ir.panels[:0]
	ir.texts = ir.texts[:0]

	for i := range ir.items {
		it := &ir.items[i]
		switch {
		case it.class.IsOpaque():
			ir.opaque = append(ir.opaque, it)
		case it.class == metadata.PipelineClassSkybox:
			ir.skybox = append(ir.skybox, it)
		case it.class.IsTransparent():
			ir.transparent = append(ir.transparent, it)
		case it.class == metadata.PipelineClassUIPanel:
			ir.panels = append(ir.panels, it)
		case it.class == metadata.PipelineClassUIText:
			ir.texts = append(ir.texts, it)
		}
	}

	ir.buckets = ir.buckets[:0]
	clear(ir.bucketIndex)
	for _, it := range ir.opaque {
		k := it.key()
		idx, ok := ir.bucketIndex[k]
		if !ok {
			idx = len(ir.buckets)
			ir.bucketIndex[k] = idx
			ir.buckets = append(ir.buckets, bucket{key: k})
		}
		ir.buckets[idx].items = append(ir.buckets[idx].items, it)
	}
	for i := range ir.buckets {
		slices.SortStableFunc(ir.buckets[i].items, frontToBack)
	}
	slices.SortStableFunc(ir.buckets, func(a, b bucket) int {
		return frontToBack(a.items[0], b.items[0])
	})

	slices.SortStableFunc(ir.transparent, backToFront)
	slices.SortStableFunc(ir.panels, byLayer)
	slices.SortStableFunc(ir.texts, byLayer)
}

// upload packs every pool's entries in emission order at the start of the
// pool's frame section, so consecutive entries of a batch are consecutive instances.
func (ir *InstanceRenderer) upload(frame *FrameContext) error {
	clear(ir.cursors)
	stride := metadata.InstanceStride()

	put := func(it *drawItem) error {
		cur := ir.cursors[it.pool]
		if cur >= it.pool.Capacity() {
			it.dropped = true
			ir.stats.OverflowDropped++
			return nil
		}
		if err := it.pool.writeAt(cur, &it.record, frame); err != nil {
			return err
		}
		it.packed = cur
		ir.cursors[it.pool] = cur + 1
		ir.stats.BytesUploaded += stride
		return nil
	}

	for _, b := range ir.buckets {
		for _, it := range b.items {
			if err := put(it); err != nil {
				return err
			}
		}
	}
	for _, list := range [][]*drawItem{ir.skybox, ir.transparent, ir.panels, ir.texts} {
		for _, it := range list {
			if err := put(it); err != nil {
				return err
			}
		}
	}

	pools := make(map[*MeshPool]struct{}, len(ir.cursors))
	for i := range ir.items {
		pools[ir.items[i].pool] = struct{}{}
	}
	ir.stats.PoolsTouched = uint32(len(pools))

	if ir.stats.OverflowDropped > 0 {
		core.LogWarn("%s: %d entries dropped", core.ErrOverflowingInstanceUpload, ir.stats.OverflowDropped)
	}
	return nil
}

func (ir *InstanceRenderer) emit(frame *FrameContext, rec *Recorder) {
	for _, b := range ir.buckets {
		ir.emitBatch(frame, rec, b.items)
	}
	ir.emitRuns(frame, rec, ir.skybox)
	for _, it := range ir.transparent {
		ir.emitBatch(frame, rec, []*drawItem{it})
	}
	ir.emitRuns(frame, rec, ir.panels)
	ir.emitRuns(frame, rec, ir.texts)
}

// emitRuns batches consecutive items that share class, pool and material set.
func (ir *InstanceRenderer) emitRuns(frame *FrameContext, rec *Recorder, items []*drawItem) {
	start := 0
	for i := 1; i <= len(items); i++ {
		if i == len(items) || items[i].key() != items[start].key() {
			ir.emitBatch(frame, rec, items[start:i])
			start = i
		}
	}
}

// emitBatch draws items that share class, pool and material set. Contiguous
// packed instances go out as one instanced draw, anything else one draw per run.
func (ir *InstanceRenderer) emitBatch(frame *FrameContext, rec *Recorder, items []*drawItem) {
	first := -1
	for i, it := range items {
		if !it.dropped {
			first = i
			break
		}
	}
	if first < 0 {
		return
	}
	head := items[first]
	pool := head.pool
	rec.BindPipeline(head.class)
	rec.BindMaterial(head.set, ir.ubo.MaterialDynamicOffset(frame.Index()))
	rec.BindMesh(pool.vertexBuffer, pool.indexBuffer, pool.instanceBuffer, pool.FrameOffset(frame.Index()))

	var runStart *drawItem
	var count uint32
	flush := func() {
		if runStart == nil {
			return
		}
		rec.PushConstants(&metadata.PushConstants{
			Model:         runStart.record.Model,
			Normal:        runStart.record.Normal,
			MaterialColor: runStart.record.MaterialColor,
		})
		rec.DrawIndexed(pool.IndexCount(), count, runStart.packed)
		runStart, count = nil, 0
	}
	for _, it := range items[first:] {
		if it.dropped {
			continue
		}
		if runStart != nil && it.packed != runStart.packed+count {
			flush()
		}
		if runStart == nil {
			runStart = it
		}
		count++
	}
	flush()
}
