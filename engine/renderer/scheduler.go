package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

type SchedulerState int

const (
	SchedulerStateIdle SchedulerState = iota
	SchedulerStateAcquired
	SchedulerStateRecording
	SchedulerStateSubmitted
	SchedulerStatePresented
	SchedulerStateSwapchainInvalid
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerStateIdle:
		return "Idle"
	case SchedulerStateAcquired:
		return "Acquired"
	case SchedulerStateRecording:
		return "Recording"
	case SchedulerStateSubmitted:
		return "Submitted"
	case SchedulerStatePresented:
		return "Presented"
	case SchedulerStateSwapchainInvalid:
		return "SwapchainInvalid"
	}
	return fmt.Sprintf("SchedulerState(%d)", int(s))
}

// UpdateFunc fills the frame's uniform blocks. It runs after the frame's fence
// has signaled and before the render queue is processed.
type UpdateFunc func(frame *FrameContext, ubo *UBOManager) error

// Scheduler runs one frame at a time:
// wait -> acquire -> update -> record -> submit -> present -> advance.
type Scheduler struct {
	backend   RendererBackend
	ubo       *UBOManager
	instances *InstanceRenderer
	recorder  *Recorder

	frames     int
	current    int
	number     uint64
	state      SchedulerState
	clearColor [4]float32

	needsRecreate bool
	pendingExtent *metadata.Extent
}

func NewScheduler(backend RendererBackend, ubo *UBOManager, instances *InstanceRenderer, clearColor [4]float32) *Scheduler {
	return &Scheduler{
		backend:    backend,
		ubo:        ubo,
		instances:  instances,
		recorder:   NewRecorder(),
		frames:     backend.FramesInFlight(),
		clearColor: clearColor,
	}
}

func (s *Scheduler) State() SchedulerState {
	return s.state
}

func (s *Scheduler) CurrentFrame() int {
	return s.current
}

func (s *Scheduler) NeedsRecreate() bool {
	return s.needsRecreate
}

func (s *Scheduler) SetClearColor(c [4]float32) {
	s.clearColor = c
}

// routineTransition reports whether from -> to is part of every frame. Those
// are logged at trace level, the rest at debug.
func routineTransition(from, to SchedulerState) bool {
	return from != SchedulerStateSwapchainInvalid && to != SchedulerStateSwapchainInvalid
}

func (s *Scheduler) setState(state SchedulerState) {
	if s.state != state {
		if routineTransition(s.state, state) {
			core.LogTrace("scheduler %s -> %s", s.state, state)
		} else {
			core.LogDebug("scheduler %s -> %s", s.state, state)
		}
	}
	s.state = state
}

// abandonAcquired gives up on an acquired image before anything was submitted.
// The frame's acquire semaphore stays signaled with nobody waiting on it, so
// the swapchain and its semaphores are rebuilt before the next acquire.
func (s *Scheduler) abandonAcquired(frame int, err error) error {
	s.needsRecreate = true
	s.setState(SchedulerStateSwapchainInvalid)
	core.LogError("frame %d abandoned after acquire: %s", frame, err)
	return err
}

// OnResize schedules a swapchain recreation at the start of the next frame.
func (s *Scheduler) OnResize(width, height uint32) {
	s.needsRecreate = true
	s.pendingExtent = &metadata.Extent{Width: width, Height: height}
	core.LogDebug("resize to %dx%d scheduled", width, height)
}

func (s *Scheduler) recreate() (bool, error) {
	extent := s.backend.SurfaceExtent()
	if s.pendingExtent != nil {
		extent = *s.pendingExtent
	}
	if extent.IsZero() {
		core.LogTrace("surface is minimized, frame skipped")
		return false, nil
	}
	if err := s.backend.RecreateSwapchain(extent); err != nil {
		err = fmt.Errorf("recreating swapchain at %dx%d: %w", extent.Width, extent.Height, err)
		core.LogError(err.Error())
		return false, err
	}
	s.needsRecreate = false
	s.pendingExtent = nil
	s.setState(SchedulerStateIdle)
	core.LogDebug("swapchain recreated at %dx%d", extent.Width, extent.Height)
	return true, nil
}

// DrawFrame renders queue into the next swapchain image.
//
// It returns core.ErrSwapchainOutOfDate when acquire found the swapchain stale
// (the next call recreates it), and core.ErrMissingPool when the queue named an
// unknown mesh type; in that case a cleared frame is still presented.
func (s *Scheduler) DrawFrame(queue *metadata.RenderQueue, update UpdateFunc) error {
	if s.needsRecreate {
		ok, err := s.recreate()
		if err != nil || !ok {
			return err
		}
	}

	frame := s.current
	if err := s.backend.WaitFrame(frame); err != nil {
		err = fmt.Errorf("waiting for frame %d: %w", frame, err)
		core.LogError(err.Error())
		return err
	}
	s.setState(SchedulerStateIdle)

	image, err := s.backend.Acquire(frame)
	switch {
	case errors.Is(err, core.ErrSwapchainOutOfDate):
		s.needsRecreate = true
		s.setState(SchedulerStateSwapchainInvalid)
		core.LogDebug("acquire on frame %d: swapchain out of date", frame)
		return err
	case errors.Is(err, core.ErrSwapchainSuboptimal):
		s.needsRecreate = true
	case err != nil:
		err = fmt.Errorf("acquiring image for frame %d: %w", frame, err)
		core.LogError(err.Error())
		return err
	}
	s.setState(SchedulerStateAcquired)

	s.number++
	ctx := &FrameContext{index: frame, number: s.number, open: true}
	if err := s.ubo.SetCurrentFrame(ctx); err != nil {
		ctx.revoke()
		return s.abandonAcquired(frame, err)
	}

	sink, err := s.backend.BeginCommands(frame, image)
	if err != nil {
		ctx.revoke()
		return s.abandonAcquired(frame, fmt.Errorf("beginning command buffer for frame %d: %w", frame, err))
	}
	s.setState(SchedulerStateRecording)
	s.recorder.Begin(sink, s.ubo.FrameSet(frame), s.backend.SwapchainExtent(), s.clearColor)

	var frameErr error
	if update != nil {
		frameErr = update(ctx, s.ubo)
	}
	if frameErr == nil {
		frameErr = s.instances.Process(ctx, queue, s.recorder)
	}
	if frameErr != nil {
		if core.IsFatal(frameErr) {
			core.LogError(frameErr.Error())
			return frameErr
		}
		// the pass stays open with whatever was recorded before the failure,
		// which for a missing pool is nothing: a cleared frame
		core.LogError("frame %d aborted: %s", s.number, frameErr)
	}
	s.recorder.End()
	if err := sink.End(); err != nil {
		err = fmt.Errorf("ending command buffer for frame %d: %w", frame, err)
		core.LogError(err.Error())
		return err
	}

	err = s.backend.Submit(frame, image)
	ctx.revoke()
	if err != nil {
		err = fmt.Errorf("submitting frame %d: %w", frame, err)
		core.LogError(err.Error())
		return err
	}
	s.setState(SchedulerStateSubmitted)

	err = s.backend.Present(frame, image)
	switch {
	case errors.Is(err, core.ErrSwapchainOutOfDate), errors.Is(err, core.ErrSwapchainSuboptimal):
		s.needsRecreate = true
		core.LogDebug("present on frame %d: %s, recreating next frame", frame, err)
	case err != nil:
		err = fmt.Errorf("presenting frame %d: %w", frame, err)
		core.LogError(err.Error())
		return err
	}
	s.setState(SchedulerStatePresented)

	s.current = (s.current + 1) % s.frames
	s.setState(SchedulerStateIdle)
	return frameErr
}
