package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
)

const waitForever = ^uint64(0)

type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(ctx *Context, signaled bool) (*Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if res := vk.CreateFence(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, initError("vkCreateFence", res)
	}
	return &Fence{Handle: handle, IsSignaled: signaled}, nil
}

func (f *Fence) Destroy(ctx *Context) {
	if f.Handle != vk.NullFence {
		vk.DestroyFence(ctx.Device.LogicalDevice, f.Handle, ctx.Allocator)
		f.Handle = vk.NullFence
	}
	f.IsSignaled = false
}

// Wait blocks until the fence is signaled. A timeout is reported as an error
// and leaves the fence unsignaled.
func (f *Fence) Wait(ctx *Context, timeoutNs uint64) error {
	if f.IsSignaled {
		return nil
	}
	res := vk.WaitForFences(ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs)
	switch res {
	case vk.Success:
		f.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vkWaitForFences timed out")
		return fmt.Errorf("vkWaitForFences timed out after %dns", timeoutNs)
	}
	return resultError("vkWaitForFences", res)
}

func (f *Fence) Reset(ctx *Context) error {
	if !f.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(ctx.Device.LogicalDevice, 1, []vk.Fence{f.Handle}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	f.IsSignaled = false
	return nil
}

// imageTracker remembers which frame slot last submitted work for each
// swapchain image.
type imageTracker struct {
	owners []int
}

func newImageTracker(images uint32) imageTracker {
	t := imageTracker{}
	t.resize(images)
	return t
}

func (t *imageTracker) resize(images uint32) {
	t.owners = make([]int, images)
	for i := range t.owners {
		t.owners[i] = -1
	}
}

// claim hands image to frame and returns the other frame whose work on the
// image must finish first, or -1.
func (t *imageTracker) claim(image uint32, frame int) int {
	prev := t.owners[image]
	t.owners[image] = frame
	if prev == frame {
		return -1
	}
	return prev
}

// SyncSet holds the per-frame fences and acquire semaphores plus one
// render-finished semaphore per swapchain image.
type SyncSet struct {
	InFlight       []*Fence
	ImageAvailable []vk.Semaphore
	RenderFinished []vk.Semaphore

	images       imageTracker
	pendingReset []bool
}

func NewSyncSet(ctx *Context, frames int, images uint32) (*SyncSet, error) {
	s := &SyncSet{
		images:       newImageTracker(images),
		pendingReset: make([]bool, frames),
	}
	for i := 0; i < frames; i++ {
		fence, err := NewFence(ctx, true)
		if err != nil {
			s.Destroy(ctx)
			return nil, err
		}
		s.InFlight = append(s.InFlight, fence)
		sem, err := newSemaphore(ctx)
		if err != nil {
			s.Destroy(ctx)
			return nil, err
		}
		s.ImageAvailable = append(s.ImageAvailable, sem)
	}
	if err := s.createRenderFinished(ctx, images); err != nil {
		s.Destroy(ctx)
		return nil, err
	}
	return s, nil
}

func newSemaphore(ctx *Context) (vk.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &sem); res != vk.Success {
		return vk.NullSemaphore, initError("vkCreateSemaphore", res)
	}
	return sem, nil
}

func (s *SyncSet) createRenderFinished(ctx *Context, images uint32) error {
	for i := uint32(0); i < images; i++ {
		sem, err := newSemaphore(ctx)
		if err != nil {
			return err
		}
		s.RenderFinished = append(s.RenderFinished, sem)
	}
	return nil
}

func (s *SyncSet) destroyRenderFinished(ctx *Context) {
	for _, sem := range s.RenderFinished {
		vk.DestroySemaphore(ctx.Device.LogicalDevice, sem, ctx.Allocator)
	}
	s.RenderFinished = nil
}

// ResizeImages follows a swapchain recreation. The device must be idle.
func (s *SyncSet) ResizeImages(ctx *Context, images uint32) error {
	s.destroyRenderFinished(ctx)
	s.images.resize(images)
	return s.createRenderFinished(ctx, images)
}

// ResetImageAvailable replaces every acquire semaphore, dropping any signal
// left by an acquire whose frame was never submitted. The device must be idle.
func (s *SyncSet) ResetImageAvailable(ctx *Context) error {
	for i, sem := range s.ImageAvailable {
		vk.DestroySemaphore(ctx.Device.LogicalDevice, sem, ctx.Allocator)
		s.ImageAvailable[i] = vk.NullSemaphore
		fresh, err := newSemaphore(ctx)
		if err != nil {
			return err
		}
		s.ImageAvailable[i] = fresh
	}
	return nil
}

// WaitFrame blocks on frame's fence. The reset happens in BeforeSubmit so an
// acquire failure never leaves the fence unsignaled.
func (s *SyncSet) WaitFrame(ctx *Context, frame int) error {
	if err := s.InFlight[frame].Wait(ctx, waitForever); err != nil {
		return err
	}
	s.pendingReset[frame] = true
	return nil
}

// BeforeSubmit waits on any other frame still using image, claims it for frame
// and resets frame's fence.
func (s *SyncSet) BeforeSubmit(ctx *Context, frame int, image uint32) error {
	if other := s.images.claim(image, frame); other >= 0 {
		if err := s.InFlight[other].Wait(ctx, waitForever); err != nil {
			return err
		}
	}
	if s.pendingReset[frame] {
		if err := s.InFlight[frame].Reset(ctx); err != nil {
			return err
		}
		s.pendingReset[frame] = false
	}
	return nil
}

// AfterSubmit marks the fence as owned by the GPU again.
func (s *SyncSet) AfterSubmit(frame int) {
	s.InFlight[frame].IsSignaled = false
}

// SignalAll records that a device idle wait signaled every fence.
func (s *SyncSet) SignalAll() {
	for _, f := range s.InFlight {
		if f.Handle != vk.NullFence {
			f.IsSignaled = true
		}
	}
}

func (s *SyncSet) Destroy(ctx *Context) {
	s.destroyRenderFinished(ctx)
	for _, sem := range s.ImageAvailable {
		if sem != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, sem, ctx.Allocator)
		}
	}
	s.ImageAvailable = nil
	for _, f := range s.InFlight {
		f.Destroy(ctx)
	}
	s.InFlight = nil
}
