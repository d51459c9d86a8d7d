package renderer

import "github.com/spaghettifunk/armada/engine/renderer/metadata"

// RendererBackend is the GPU side of the renderer. The Vulkan implementation
// lives in engine/renderer/vulkan; tests use a recording fake.
//
// All methods are called from the render thread.
type RendererBackend interface {
	FramesInFlight() int
	SwapchainExtent() metadata.Extent
	// SurfaceExtent is the current framebuffer size reported by the surface.
	SurfaceExtent() metadata.Extent
	ImageCount() uint32
	SwapchainFormat() string
	// UniformAlignment is the minimum uniform buffer offset alignment.
	UniformAlignment() uint64
	RecreateSwapchain(extent metadata.Extent) error

	// WaitFrame blocks until the fence of frame is signaled and reclaims the
	// command buffer recorded for it. The fence is reset right before the next
	// Submit for that frame.
	WaitFrame(frame int) error
	// Acquire returns core.ErrSwapchainOutOfDate when the swapchain has to be recreated.
	Acquire(frame int) (imageIndex uint32, err error)
	BeginCommands(frame int, imageIndex uint32) (CommandSink, error)
	Submit(frame int, imageIndex uint32) error
	// Present returns core.ErrSwapchainOutOfDate or core.ErrSwapchainSuboptimal
	// after a successful present that asks for a recreation.
	Present(frame int, imageIndex uint32) error
	WaitIdle() error

	CreateBuffer(bufferType metadata.RenderBufferType, size uint64) (*metadata.RenderBuffer, error)
	DestroyBuffer(buffer *metadata.RenderBuffer)
	// CreateTexture uploads 1 or 4 channel pixels into a sampled image and
	// stores the backend objects in texture.InternalData.
	CreateTexture(texture *metadata.Texture, pixels []byte) error
	DestroyTexture(texture *metadata.Texture)

	AllocateFrameSet(frame int, camera, lighting metadata.BufferRange) (metadata.FrameSetID, error)
	// AllocateMaterialSet binds material at binding 0 with a dynamic offset and
	// textures at bindings 1 to 6.
	AllocateMaterialSet(material metadata.BufferRange, textures [metadata.TEXTURE_SLOT_COUNT]*metadata.Texture) (metadata.MaterialSetID, error)

	Shutdown() error
}

// CommandSink receives the commands of one frame's primary command buffer.
type CommandSink interface {
	BeginRenderPass(clearColor [4]float32, depth float32)
	SetViewport(viewport metadata.Viewport)
	SetScissor(scissor metadata.Rect)
	BindPipeline(class metadata.PipelineClass)
	BindFrameSet(set metadata.FrameSetID)
	BindMaterialSet(set metadata.MaterialSetID, dynamicOffset uint32)
	// BindVertexBuffers binds the mesh at binding 0 and the instance buffer at binding 1.
	BindVertexBuffers(vertex, instance *metadata.RenderBuffer, instanceOffset uint64)
	BindIndexBuffer(index *metadata.RenderBuffer)
	PushConstants(data []byte)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	EndRenderPass()
	End() error
}
