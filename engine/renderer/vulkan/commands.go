package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// frameCommands records one frame into its primary command buffer. Bind
// failures are kept and reported by End so the renderer can drop the frame.
type frameCommands struct {
	ctx         *Context
	cmd         *CommandBuffer
	framebuffer *Framebuffer
	pipelines   *PipelineManager
	descriptors *DescriptorManager
	err         error
}

func (f *frameCommands) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *frameCommands) BeginRenderPass(clearColor [4]float32, depth float32) {
	f.ctx.Renderpass.Begin(f.cmd, f.framebuffer, clearColor, depth)
}

func (f *frameCommands) SetViewport(v metadata.Viewport) {
	vk.CmdSetViewport(f.cmd.Handle, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (f *frameCommands) SetScissor(r metadata.Rect) {
	vk.CmdSetScissor(f.cmd.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (f *frameCommands) BindPipeline(class metadata.PipelineClass) {
	if !class.Valid() {
		f.fail(fmt.Errorf("bind pipeline: invalid class %d", class))
		return
	}
	vk.CmdBindPipeline(f.cmd.Handle, vk.PipelineBindPointGraphics, f.pipelines.Pipeline(class))
}

func (f *frameCommands) BindFrameSet(id metadata.FrameSetID) {
	sets := []vk.DescriptorSet{f.descriptors.FrameSet(id)}
	vk.CmdBindDescriptorSets(f.cmd.Handle, vk.PipelineBindPointGraphics, f.pipelines.Layout,
		frameSetIndex, 1, sets, 0, nil)
}

func (f *frameCommands) BindMaterialSet(id metadata.MaterialSetID, dynamicOffset uint32) {
	sets := []vk.DescriptorSet{f.descriptors.MaterialSet(id)}
	vk.CmdBindDescriptorSets(f.cmd.Handle, vk.PipelineBindPointGraphics, f.pipelines.Layout,
		materialSetIndex, 1, sets, 1, []uint32{dynamicOffset})
}

func backendBuffer(b *metadata.RenderBuffer) (*Buffer, error) {
	if b == nil {
		return nil, fmt.Errorf("nil render buffer")
	}
	buf, ok := b.InternalData.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("render buffer %s has no backend buffer", b.RenderBufferType)
	}
	return buf, nil
}

func (f *frameCommands) BindVertexBuffers(vertex, instance *metadata.RenderBuffer, instanceOffset uint64) {
	vb, err := backendBuffer(vertex)
	if err != nil {
		f.fail(err)
		return
	}
	ib, err := backendBuffer(instance)
	if err != nil {
		f.fail(err)
		return
	}
	vk.CmdBindVertexBuffers(f.cmd.Handle, vertexBinding, 2,
		[]vk.Buffer{vb.Handle, ib.Handle},
		[]vk.DeviceSize{0, vk.DeviceSize(instanceOffset)})
}

func (f *frameCommands) BindIndexBuffer(index *metadata.RenderBuffer) {
	b, err := backendBuffer(index)
	if err != nil {
		f.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(f.cmd.Handle, b.Handle, 0, vk.IndexTypeUint32)
}

func (f *frameCommands) PushConstants(data []byte) {
	if len(data) == 0 || len(data) > metadata.PUSH_CONSTANT_SIZE || len(data)%4 != 0 {
		f.fail(fmt.Errorf("push constants: bad size %d", len(data)))
		return
	}
	vk.CmdPushConstants(f.cmd.Handle, f.pipelines.Layout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (f *frameCommands) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(f.cmd.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (f *frameCommands) EndRenderPass() {
	f.ctx.Renderpass.End(f.cmd)
}

func (f *frameCommands) End() error {
	if f.cmd.State == CommandBufferStateInRenderPass {
		f.ctx.Renderpass.End(f.cmd)
	}
	if err := f.cmd.End(); err != nil {
		return err
	}
	return f.err
}
