package testbed

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/armada/engine/containers"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const (
	bulletSpeed    = 40.0
	bulletLifetime = 1.5
	fireInterval   = 0.4
)

var bulletSize = math.Vec2{0.6, 0.6}

// instancePool is the part of the renderer the fleet allocates through.
type instancePool interface {
	AllocateFromPool(meshType metadata.MeshType) (metadata.InstanceHandle, error)
	ReleasePoolInstance(h metadata.InstanceHandle) error
}

type ship struct {
	hull     metadata.InstanceHandle
	turret   metadata.InstanceHandle
	body     *math.Transform
	mount    *math.Transform
	phase    float32
	radius   float32
	cooldown float64
}

type bullet struct {
	handle   metadata.InstanceHandle
	position math.Vec3
	velocity math.Vec3
	age      float64
}

// fleet flies its ships on circular orbits around the origin. Every ship fires
// billboard bullets along its heading; bullets return their slot when they
// expire. All bullets live equally long, so the oldest is always at the front.
type fleet struct {
	pool    instancePool
	ships   []*ship
	bullets *containers.RingQueue[*bullet]
	time    float64
}

func newFleet(pool instancePool, maxBullets int) *fleet {
	return &fleet{pool: pool, bullets: containers.NewRingQueue[*bullet](maxBullets)}
}

func (f *fleet) addShip(radius, phase float32) error {
	hull, err := f.pool.AllocateFromPool(metadata.MeshTypeFrigate)
	if err != nil {
		return err
	}
	turret, err := f.pool.AllocateFromPool(metadata.MeshTypeTurretBase)
	if err != nil {
		_ = f.pool.ReleasePoolInstance(hull)
		return err
	}
	body := math.TransformCreate()
	mount := math.TransformFromPositionRotationScale(math.Vec3{0, 0.6, 0.4}, mgl32.QuatIdent(), math.Vec3{0.5, 0.5, 0.5})
	mount.Parent = body
	s := &ship{
		hull:     hull,
		turret:   turret,
		body:     body,
		mount:    mount,
		phase:    phase,
		radius:   radius,
		cooldown: float64(phase) / (2 * stdmath.Pi) * fireInterval,
	}
	f.ships = append(f.ships, s)
	f.place(s)
	return nil
}

// orbit angle of s at the fleet's current time
func (f *fleet) angle(s *ship) float32 {
	// outer ships fly slower
	return s.phase + float32(f.time)*(6/s.radius)
}

func (f *fleet) place(s *ship) {
	a := f.angle(s)
	pos := math.Vec3{s.radius * float32(stdmath.Cos(float64(a))), 2 * float32(stdmath.Sin(float64(a)*2)), s.radius * float32(stdmath.Sin(float64(a)))}
	// tangent of the orbit; the hull's local -Z is its nose
	heading := math.Vec3{-float32(stdmath.Sin(float64(a))), 0, float32(stdmath.Cos(float64(a)))}
	yaw := float32(stdmath.Atan2(float64(-heading.X()), float64(-heading.Z())))
	s.body.SetPositionRotationScale(pos, mgl32.QuatRotate(yaw, math.WorldUp), math.Vec3{1, 0.5, 2.5})
	s.mount.Rotate(mgl32.QuatRotate(0.02, math.WorldUp))
}

func (s *ship) heading() math.Vec3 {
	return s.body.Rotation.Rotate(math.WorldForward)
}

func (f *fleet) update(delta float64) {
	f.time += delta
	for !f.bullets.IsEmpty() {
		b, _ := f.bullets.Peek()
		if b.age+delta < bulletLifetime {
			break
		}
		_, _ = f.bullets.Dequeue()
		if err := f.pool.ReleasePoolInstance(b.handle); err != nil {
			core.LogWarn("bullet release: %s", err)
		}
	}
	for _, s := range f.ships {
		f.place(s)
		s.cooldown -= delta
		if s.cooldown <= 0 {
			s.cooldown += fireInterval
			f.fire(s)
		}
	}

	for i := 0; i < f.bullets.Len(); i++ {
		b := f.bullets.At(i)
		b.age += delta
		b.position = b.position.Add(b.velocity.Mul(float32(delta)))
	}
}

func (f *fleet) fire(s *ship) {
	if f.bullets.IsFull() {
		return
	}
	h, err := f.pool.AllocateFromPool(metadata.MeshTypeBillboardBullet)
	if err != nil {
		// pool full, skip this shot
		core.LogTrace("bullet not fired: %s", err)
		return
	}
	dir := s.heading()
	_ = f.bullets.Enqueue(&bullet{
		handle:   h,
		position: s.body.Position.Add(dir.Mul(2.6)),
		velocity: dir.Mul(bulletSpeed),
	})
}

// fill appends one entry per hull, turret and live bullet.
func (f *fleet) fill(q *metadata.RenderQueue, override *metadata.MaterialSetID) {
	for i, s := range f.ships {
		hull := s.body.GetWorld()
		e := metadata.RenderEntry{
			MeshType:      s.hull.MeshType,
			InstanceSlot:  s.hull.Slot,
			Generation:    s.hull.Generation,
			Model:         hull,
			PipelineClass: metadata.PipelineClassOpaquePBR,
			WorldPosition: s.body.Position,
		}
		if i == 0 {
			e.MaterialOverride = override
		}
		q.Push(e)

		turret := s.mount.GetWorld()
		q.Push(metadata.RenderEntry{
			MeshType:      s.turret.MeshType,
			InstanceSlot:  s.turret.Slot,
			Generation:    s.turret.Generation,
			Model:         turret,
			PipelineClass: metadata.PipelineClassOpaquePBR,
			WorldPosition: turret.Col(3).Vec3(),
		})
	}
	for i := 0; i < f.bullets.Len(); i++ {
		b := f.bullets.At(i)
		velocity := b.velocity
		q.Push(metadata.RenderEntry{
			MeshType:      b.handle.MeshType,
			InstanceSlot:  b.handle.Slot,
			Generation:    b.handle.Generation,
			PipelineClass: metadata.PipelineClassBillboardTextured,
			WorldPosition: b.position,
			Velocity:      &velocity,
			Size:          bulletSize,
		})
	}
}
