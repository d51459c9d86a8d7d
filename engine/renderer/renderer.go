package renderer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// Renderer owns every GPU resource created through it and tears them down in
// reverse order of creation. It is driven from a single render thread.
type Renderer struct {
	session uuid.UUID
	backend RendererBackend

	textures  *TextureCache
	ubo       *UBOManager
	materials *MaterialRegistry
	pools     *PoolRegistry
	instances *InstanceRenderer
	scheduler *Scheduler

	shutdown bool
}

// DefaultMaterial is registered first and backs CreateMaterialDescriptorSetWithTexture.
func DefaultMaterial() metadata.Material {
	return metadata.NewPBRMaterial("default", math.Vec3{1, 1, 1}, 0, 0.5)
}

func New(backend RendererBackend, cfg *config.Config) (*Renderer, error) {
	r := &Renderer{
		session: uuid.New(),
		backend: backend,
		pools:   NewPoolRegistry(),
	}

	var err error
	if r.textures, err = NewTextureCache(backend, cfg.Render.MaxTextures); err != nil {
		return nil, err
	}
	if r.ubo, err = NewUBOManager(backend, cfg.Render.MaxMaterialSets); err != nil {
		r.textures.Destroy()
		return nil, err
	}
	if r.materials, err = NewMaterialRegistry(backend, r.ubo, r.textures, DefaultMaterial()); err != nil {
		r.ubo.Destroy()
		r.textures.Destroy()
		return nil, err
	}
	r.instances = NewInstanceRenderer(r.pools, r.materials, r.ubo, cfg.Debug.CheckGenerations)
	r.scheduler = NewScheduler(backend, r.ubo, r.instances, cfg.Render.ClearColor)

	core.LogInfo("renderer %s ready: %d frames in flight, swapchain %dx%d %s",
		r.session, backend.FramesInFlight(), backend.SwapchainExtent().Width, backend.SwapchainExtent().Height, backend.SwapchainFormat())
	return r, nil
}

func (r *Renderer) Session() uuid.UUID {
	return r.session
}

// CreateMeshPool uploads mesh and reserves capacity instances for every frame
// in flight. The first base material becomes the pool's default set; the others
// serve entries drawn with their classes.
func (r *Renderer) CreateMeshPool(meshType metadata.MeshType, mesh *metadata.Mesh, baseMaterials []metadata.Material, capacity uint32) (*MeshPool, error) {
	if _, ok := r.pools.Get(meshType); ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPoolExists, meshType)
	}
	if len(baseMaterials) == 0 {
		return nil, fmt.Errorf("mesh pool %s: at least one base material is required", meshType)
	}
	pool, err := newMeshPool(r.backend, meshType, mesh, capacity)
	if err != nil {
		return nil, err
	}
	for _, m := range baseMaterials {
		set, err := r.materials.Create(m)
		if err != nil {
			pool.destroy(r.backend)
			return nil, fmt.Errorf("mesh pool %s: %w", meshType, err)
		}
		pool.materials = append(pool.materials, poolMaterial{set: set, class: m.PipelineClass()})
	}
	if err := r.pools.add(pool); err != nil {
		pool.destroy(r.backend)
		return nil, err
	}
	core.LogDebug("mesh pool %s created: %d vertices, %d indices, capacity %d, %d materials",
		meshType, pool.VertexCount(), pool.IndexCount(), capacity, len(baseMaterials))
	return pool, nil
}

func (r *Renderer) Pool(meshType metadata.MeshType) (*MeshPool, bool) {
	return r.pools.Get(meshType)
}

func (r *Renderer) pool(meshType metadata.MeshType) (*MeshPool, error) {
	p, ok := r.pools.Get(meshType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingPool, meshType)
	}
	return p, nil
}

func (r *Renderer) AllocateFromPool(meshType metadata.MeshType) (metadata.InstanceHandle, error) {
	p, err := r.pool(meshType)
	if err != nil {
		return metadata.InstanceHandle{}, err
	}
	return p.Allocate()
}

// UpdatePoolInstance sets the per-instance color and emission used from the next frame on.
func (r *Renderer) UpdatePoolInstance(h metadata.InstanceHandle, params InstanceParams) error {
	p, err := r.pool(h.MeshType)
	if err != nil {
		return err
	}
	return p.SetParams(h, params)
}

// WritePoolInstance writes rec for h into frame's instance section. The
// record's color and emission stay with the slot for later frames; colors set
// with UpdatePoolInstance take precedence.
func (r *Renderer) WritePoolInstance(h metadata.InstanceHandle, rec *metadata.InstanceRecord, frame *FrameContext) error {
	p, err := r.pool(h.MeshType)
	if err != nil {
		return err
	}
	return p.Write(h, rec, frame)
}

func (r *Renderer) ReleasePoolInstance(h metadata.InstanceHandle) error {
	p, err := r.pool(h.MeshType)
	if err != nil {
		return err
	}
	return p.Release(h)
}

func (r *Renderer) SetMaterialOverride(h metadata.InstanceHandle, set metadata.MaterialSetID) error {
	p, err := r.pool(h.MeshType)
	if err != nil {
		return err
	}
	if _, ok := r.materials.get(set); !ok {
		return fmt.Errorf("unknown material set %d", set)
	}
	return p.SetMaterialOverride(h, set)
}

func (r *Renderer) ClearMaterialOverride(h metadata.InstanceHandle) error {
	p, err := r.pool(h.MeshType)
	if err != nil {
		return err
	}
	return p.ClearMaterialOverride(h)
}

func (r *Renderer) UploadTexture(pixels []byte, width, height uint32, channels uint8, role metadata.TextureRole) (metadata.TextureHandle, error) {
	return r.textures.Upload(pixels, width, height, channels, role)
}

func (r *Renderer) CreateMaterialDescriptorSetWithTexture(baseColor metadata.TextureHandle) (metadata.MaterialSetID, error) {
	return r.materials.CreateWithTexture(baseColor)
}

func (r *Renderer) CreateMaterial(m metadata.Material) (metadata.MaterialSetID, error) {
	return r.materials.Create(m)
}

// SetMaterialColor changes a material's base color starting with the frame being recorded.
func (r *Renderer) SetMaterialColor(set metadata.MaterialSetID, rgba math.Vec4) error {
	return r.materials.SetColor(set, rgba)
}

// DrawFrame renders one frame of queue. update runs once the frame's previous
// submission has completed and may write the frame's uniform blocks.
func (r *Renderer) DrawFrame(queue *metadata.RenderQueue, update UpdateFunc) error {
	if r.shutdown {
		return fmt.Errorf("renderer %s is shut down", r.session)
	}
	return r.scheduler.DrawFrame(queue, update)
}

func (r *Renderer) OnResize(width, height uint32) {
	r.scheduler.OnResize(width, height)
}

func (r *Renderer) SetClearColor(c [4]float32) {
	r.scheduler.SetClearColor(c)
}

func (r *Renderer) SwapchainExtent() metadata.Extent {
	return r.backend.SwapchainExtent()
}

func (r *Renderer) State() SchedulerState {
	return r.scheduler.State()
}

// Stats are the counters of the last processed queue.
func (r *Renderer) Stats() metadata.FrameStats {
	return r.instances.Stats()
}

// Shutdown waits for the device to go idle and releases everything in reverse
// creation order before shutting the backend down.
func (r *Renderer) Shutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true
	if err := r.backend.WaitIdle(); err != nil {
		core.LogError("wait idle before shutdown: %s", err)
	}

	names := maps.Keys(r.pools.pools)
	slices.Sort(names)
	var sb strings.Builder
	for _, n := range names {
		p := r.pools.pools[n]
		fmt.Fprintf(&sb, " %s=%d/%d", n, p.Live(), p.Capacity())
	}
	core.LogDebug("releasing pools:%s", sb.String())

	r.pools.destroy(r.backend)
	r.ubo.Destroy()
	r.textures.Destroy()
	if err := r.backend.Shutdown(); err != nil {
		return fmt.Errorf("renderer %s: %w", r.session, err)
	}
	core.LogInfo("renderer %s shut down", r.session)
	return nil
}
