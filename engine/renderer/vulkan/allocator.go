package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const hostVisible = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// Buffer is a dedicated allocation. Host-visible buffers stay mapped for
// their whole lifetime.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	Mapped []byte
}

// memoryTypeFlags flattens the device memory types for findMemoryIndex.
func memoryTypeFlags(props vk.PhysicalDeviceMemoryProperties) []vk.MemoryPropertyFlags {
	out := make([]vk.MemoryPropertyFlags, props.MemoryTypeCount)
	for i := range out {
		t := props.MemoryTypes[i]
		t.Deref()
		out[i] = t.PropertyFlags
	}
	return out
}

// findMemoryIndex returns the first memory type allowed by filter that has
// every flag in want.
func findMemoryIndex(types []vk.MemoryPropertyFlags, filter uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	for i, flags := range types {
		if filter&(1<<uint(i)) != 0 && flags&want == want {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: filter %#b flags %#x", core.ErrNoSuitableMemoryType, filter, uint32(want))
}

// bufferUsage maps a render buffer type to its Vulkan usage.
func bufferUsage(t metadata.RenderBufferType) (vk.BufferUsageFlags, error) {
	switch t {
	case metadata.RENDERBUFFER_TYPE_VERTEX, metadata.RENDERBUFFER_TYPE_INSTANCE:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit), nil
	case metadata.RENDERBUFFER_TYPE_INDEX:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit), nil
	case metadata.RENDERBUFFER_TYPE_UNIFORM:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), nil
	case metadata.RENDERBUFFER_TYPE_STAGING:
		return vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), nil
	}
	return 0, fmt.Errorf("unsupported render buffer type %s", t)
}

func (ctx *Context) allocateMemory(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index, err := findMemoryIndex(memoryTypeFlags(ctx.Device.Memory), reqs.MemoryTypeBits, props)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &allocInfo, ctx.Allocator, &memory); res != vk.Success {
		return vk.NullDeviceMemory, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}

// CreateBuffer allocates a buffer with its own memory. Host-visible memory
// is mapped once and exposed as Mapped.
func (ctx *Context) CreateBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	b := &Buffer{Size: size, Usage: usage}
	if res := vk.CreateBuffer(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &b.Handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device.LogicalDevice, b.Handle, &reqs)
	reqs.Deref()

	memory, err := ctx.allocateMemory(reqs, props)
	if err != nil {
		ctx.DestroyBuffer(b)
		return nil, err
	}
	b.Memory = memory
	if res := vk.BindBufferMemory(ctx.Device.LogicalDevice, b.Handle, b.Memory, 0); res != vk.Success {
		ctx.DestroyBuffer(b)
		return nil, resultError("vkBindBufferMemory", res)
	}

	if props&hostVisible == hostVisible {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(ctx.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
			ctx.DestroyBuffer(b)
			return nil, resultError("vkMapMemory", res)
		}
		b.Mapped = unsafe.Slice((*byte)(ptr), size)
	}
	core.LogTrace("Buffer created: %d bytes usage=%#x", size, uint32(usage))
	return b, nil
}

func (ctx *Context) DestroyBuffer(b *Buffer) {
	if b == nil {
		return
	}
	if b.Mapped != nil {
		vk.UnmapMemory(ctx.Device.LogicalDevice, b.Memory)
		b.Mapped = nil
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(ctx.Device.LogicalDevice, b.Handle, ctx.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, b.Memory, ctx.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

// CopyBuffer records a copy on a single-use command buffer and waits for it.
func (ctx *Context) CopyBuffer(src, dst *Buffer, size uint64) error {
	cmd, err := BeginSingleUse(ctx, ctx.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	vk.CmdCopyBuffer(cmd.Handle, src.Handle, dst.Handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	return cmd.EndSingleUse(ctx, ctx.Device.GraphicsCommandPool, ctx.Device.GraphicsQueue)
}
