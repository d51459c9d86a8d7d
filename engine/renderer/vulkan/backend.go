package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

var _ renderer.RendererBackend = (*Backend)(nil)

// Backend is the Vulkan implementation of renderer.RendererBackend.
type Backend struct {
	ctx         *Context
	provider    SurfaceProvider
	frames      int
	commands    []*CommandBuffer
	sync        *SyncSet
	descriptors *DescriptorManager
	pipelines   *PipelineManager
	shutdown    bool
}

// New initializes Vulkan against the provider's surface and builds one
// pipeline per class from shaders. Every error it returns is fatal.
func New(provider SurfaceProvider, cfg *config.Config, shaders assets.ShaderSet) (*Backend, error) {
	frames := cfg.Render.FramesInFlight
	if frames <= 0 {
		return nil, fmt.Errorf("%w: frames in flight must be positive, got %d", core.ErrInit, frames)
	}

	ctx, err := NewContext(provider, cfg)
	if err != nil {
		return nil, err
	}
	b := &Backend{ctx: ctx, provider: provider, frames: frames}

	for i := 0; i < frames; i++ {
		cmd, err := NewCommandBuffer(ctx, ctx.Device.GraphicsCommandPool, true)
		if err != nil {
			b.Shutdown()
			return nil, fmt.Errorf("%w: %w", core.ErrInit, err)
		}
		b.commands = append(b.commands, cmd)
	}
	if b.sync, err = NewSyncSet(ctx, frames, ctx.ImageCount()); err != nil {
		b.Shutdown()
		return nil, err
	}
	materialSets := cfg.Render.MaxMaterialSets + cfg.Render.ReservedUISets
	if b.descriptors, err = NewDescriptorManager(ctx, uint32(frames), materialSets); err != nil {
		b.Shutdown()
		return nil, err
	}
	if b.pipelines, err = NewPipelineManager(ctx, b.descriptors, shaders); err != nil {
		b.Shutdown()
		return nil, err
	}
	core.LogInfo("Vulkan backend ready: %d frames in flight, %d material sets", frames, materialSets)
	return b, nil
}

func (b *Backend) FramesInFlight() int {
	return b.frames
}

func (b *Backend) SwapchainExtent() metadata.Extent {
	if b.ctx.Swapchain == nil {
		return metadata.Extent{}
	}
	return b.ctx.SwapchainExtent()
}

func (b *Backend) SurfaceExtent() metadata.Extent {
	w, h := b.provider.FramebufferSize()
	return metadata.Extent{Width: w, Height: h}
}

func (b *Backend) ImageCount() uint32 {
	if b.ctx.Swapchain == nil {
		return 0
	}
	return b.ctx.ImageCount()
}

func (b *Backend) SwapchainFormat() string {
	if b.ctx.Swapchain == nil {
		return formatName(vk.FormatUndefined)
	}
	return formatName(b.ctx.SwapchainFormat())
}

func (b *Backend) UniformAlignment() uint64 {
	align := uint64(b.ctx.Limits().MinUniformBufferOffsetAlignment)
	if align == 0 {
		return 1
	}
	return align
}

// RecreateSwapchain also rebuilds the pipelines when the render pass had to
// change and resizes the per-image semaphores.
func (b *Backend) RecreateSwapchain(extent metadata.Extent) error {
	rp := b.ctx.Renderpass
	if err := b.ctx.RecreateSwapchain(extent); err != nil {
		return err
	}
	if b.ctx.Renderpass != rp {
		if err := b.pipelines.Build(b.ctx, b.ctx.Renderpass); err != nil {
			return err
		}
	}
	b.sync.SignalAll()
	if err := b.sync.ResetImageAvailable(b.ctx); err != nil {
		return err
	}
	return b.sync.ResizeImages(b.ctx, b.ctx.ImageCount())
}

func (b *Backend) checkFrame(frame int) error {
	if frame < 0 || frame >= b.frames {
		return fmt.Errorf("frame %d out of range [0,%d)", frame, b.frames)
	}
	return nil
}

func (b *Backend) WaitFrame(frame int) error {
	if err := b.checkFrame(frame); err != nil {
		return err
	}
	return b.sync.WaitFrame(b.ctx, frame)
}

func (b *Backend) Acquire(frame int) (uint32, error) {
	if err := b.checkFrame(frame); err != nil {
		return 0, err
	}
	if b.ctx.Swapchain == nil {
		return 0, fmt.Errorf("acquire: %w", core.ErrSwapchainOutOfDate)
	}
	return b.ctx.Swapchain.Acquire(b.ctx, waitForever, b.sync.ImageAvailable[frame])
}

func (b *Backend) BeginCommands(frame int, image uint32) (renderer.CommandSink, error) {
	if err := b.checkFrame(frame); err != nil {
		return nil, err
	}
	if image >= uint32(len(b.ctx.Swapchain.Framebuffers)) {
		return nil, fmt.Errorf("image %d out of range [0,%d)", image, len(b.ctx.Swapchain.Framebuffers))
	}
	cmd := b.commands[frame]
	if err := cmd.Reset(); err != nil {
		return nil, err
	}
	if err := cmd.Begin(false, false, false); err != nil {
		return nil, err
	}
	return &frameCommands{
		ctx:         b.ctx,
		cmd:         cmd,
		framebuffer: b.ctx.Swapchain.Framebuffers[image],
		pipelines:   b.pipelines,
		descriptors: b.descriptors,
	}, nil
}

// Submit waits on the frame's acquire semaphore at color output and signals
// the image's render-finished semaphore and the frame's fence.
func (b *Backend) Submit(frame int, image uint32) error {
	if err := b.checkFrame(frame); err != nil {
		return err
	}
	if err := b.sync.BeforeSubmit(b.ctx, frame, image); err != nil {
		return err
	}
	cmd := b.commands[frame]
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{b.sync.ImageAvailable[frame]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{b.sync.RenderFinished[image]},
	}
	if res := vk.QueueSubmit(b.ctx.GraphicsQueue(), 1, []vk.SubmitInfo{submitInfo}, b.sync.InFlight[frame].Handle); res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	b.sync.AfterSubmit(frame)
	cmd.UpdateSubmitted()
	return nil
}

func (b *Backend) Present(frame int, image uint32) error {
	if err := b.checkFrame(frame); err != nil {
		return err
	}
	return b.ctx.Swapchain.Present(b.ctx.PresentQueue(), b.sync.RenderFinished[image], image)
}

func (b *Backend) WaitIdle() error {
	if b.ctx.Device == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(b.ctx.LogicalDevice()); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	if b.sync != nil {
		b.sync.SignalAll()
	}
	return nil
}

func (b *Backend) CreateBuffer(bufferType metadata.RenderBufferType, size uint64) (*metadata.RenderBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("create %s buffer: zero size", bufferType)
	}
	usage, err := bufferUsage(bufferType)
	if err != nil {
		return nil, err
	}
	buf, err := b.ctx.CreateBuffer(size, usage, hostVisible)
	if err != nil {
		return nil, fmt.Errorf("create %s buffer of %d bytes: %w", bufferType, size, err)
	}
	return &metadata.RenderBuffer{
		RenderBufferType: bufferType,
		TotalSize:        size,
		Mapped:           buf.Mapped,
		InternalData:     buf,
	}, nil
}

func (b *Backend) DestroyBuffer(buffer *metadata.RenderBuffer) {
	if buffer == nil {
		return
	}
	if buf, ok := buffer.InternalData.(*Buffer); ok {
		b.ctx.DestroyBuffer(buf)
	}
	buffer.InternalData = nil
	buffer.Mapped = nil
}

func (b *Backend) CreateTexture(texture *metadata.Texture, pixels []byte) error {
	tex, err := b.ctx.UploadTexture(texture.Width, texture.Height, texture.ChannelCount, texture.Role, pixels)
	if err != nil {
		return fmt.Errorf("upload texture %s: %w", texture.Name, err)
	}
	texture.InternalData = tex
	core.LogTrace("Texture %s uploaded: %dx%d %d channels", texture.Name, texture.Width, texture.Height, texture.ChannelCount)
	return nil
}

func (b *Backend) DestroyTexture(texture *metadata.Texture) {
	if texture == nil {
		return
	}
	if tex, ok := texture.InternalData.(*Texture); ok {
		b.ctx.DestroyTexture(tex)
	}
	texture.InternalData = nil
}

func (b *Backend) AllocateFrameSet(frame int, camera, lighting metadata.BufferRange) (metadata.FrameSetID, error) {
	if err := b.checkFrame(frame); err != nil {
		return 0, err
	}
	return b.descriptors.AllocateFrameSet(b.ctx, camera, lighting)
}

func (b *Backend) AllocateMaterialSet(material metadata.BufferRange, textures [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture) (metadata.MaterialSetID, error) {
	return b.descriptors.AllocateMaterialSet(b.ctx, material, textures)
}

// Shutdown waits for the device and releases everything in reverse order.
// Calling it twice is a no-op.
func (b *Backend) Shutdown() error {
	if b.shutdown {
		return nil
	}
	b.shutdown = true
	err := b.WaitIdle()
	if b.pipelines != nil {
		b.pipelines.Destroy(b.ctx)
		b.pipelines = nil
	}
	if b.descriptors != nil {
		b.descriptors.Destroy(b.ctx)
		b.descriptors = nil
	}
	if b.sync != nil {
		b.sync.Destroy(b.ctx)
		b.sync = nil
	}
	for _, cmd := range b.commands {
		cmd.Free(b.ctx, b.ctx.Device.GraphicsCommandPool)
	}
	b.commands = nil
	b.ctx.Destroy()
	core.LogInfo("Vulkan backend shut down")
	return err
}
