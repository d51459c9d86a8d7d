package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type CommandBufferState int

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateInRenderPass
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
	CommandBufferStateNotAllocated
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferStateReady:
		return "ready"
	case CommandBufferStateRecording:
		return "recording"
	case CommandBufferStateInRenderPass:
		return "in_render_pass"
	case CommandBufferStateRecordingEnded:
		return "recording_ended"
	case CommandBufferStateSubmitted:
		return "submitted"
	case CommandBufferStateNotAllocated:
		return "not_allocated"
	}
	return fmt.Sprintf("CommandBufferState(%d)", int(s))
}

type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

// NewCommandBuffer allocates one buffer from pool.
func NewCommandBuffer(ctx *Context, pool vk.CommandPool, primary bool) (*CommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !primary {
		level = vk.CommandBufferLevelSecondary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, resultError("vkAllocateCommandBuffers", res)
	}
	return &CommandBuffer{Handle: handles[0], State: CommandBufferStateReady}, nil
}

func (cb *CommandBuffer) Free(ctx *Context, pool vk.CommandPool) {
	if cb.Handle != nil {
		vk.FreeCommandBuffers(ctx.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{cb.Handle})
		cb.Handle = nil
	}
	cb.State = CommandBufferStateNotAllocated
}

func (cb *CommandBuffer) Begin(singleUse, renderpassContinue, simultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if renderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if simultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	if res := vk.BeginCommandBuffer(cb.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	cb.State = CommandBufferStateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	cb.State = CommandBufferStateRecordingEnded
	return nil
}

// Reset returns the buffer to the initial state. The pool must have been
// created with the reset bit.
func (cb *CommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(cb.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	cb.State = CommandBufferStateReady
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = CommandBufferStateSubmitted
}

// BeginSingleUse allocates a primary buffer and starts one-time recording.
func BeginSingleUse(ctx *Context, pool vk.CommandPool) (*CommandBuffer, error) {
	cb, err := NewCommandBuffer(ctx, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(ctx, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse submits the buffer, waits for queue to drain and frees it.
func (cb *CommandBuffer) EndSingleUse(ctx *Context, pool vk.CommandPool, queue vk.Queue) error {
	defer cb.Free(ctx, pool)
	if err := cb.End(); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	if res := vk.QueueWaitIdle(queue); res != vk.Success {
		return resultError("vkQueueWaitIdle", res)
	}
	return nil
}
