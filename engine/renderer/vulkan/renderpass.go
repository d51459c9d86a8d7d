package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// Renderpass is the single forward pass: one color attachment that ends in
// present layout and one depth attachment that is discarded.
type Renderpass struct {
	Handle      vk.RenderPass
	ColorFormat vk.Format
	DepthFormat vk.Format
}

func NewRenderpass(ctx *Context, colorFormat, depthFormat vk.Format) (*Renderpass, error) {
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthRef,
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: 0,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, initError("vkCreateRenderPass", res)
	}
	core.LogDebug("Render pass created: color=%s depth=%s", formatName(colorFormat), formatName(depthFormat))
	return &Renderpass{Handle: handle, ColorFormat: colorFormat, DepthFormat: depthFormat}, nil
}

func (rp *Renderpass) Destroy(ctx *Context) {
	if rp.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(ctx.Device.LogicalDevice, rp.Handle, ctx.Allocator)
		rp.Handle = vk.NullRenderPass
	}
}

// Begin starts the pass over the whole framebuffer with the given clears.
func (rp *Renderpass) Begin(cmd *CommandBuffer, fb *Framebuffer, clearColor [4]float32, depth float32) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(clearColor[:])
	clearValues[1].SetDepthStencil(depth, 0)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: fb.Extent.Width, Height: fb.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd.Handle, &beginInfo, vk.SubpassContentsInline)
	cmd.State = CommandBufferStateInRenderPass
}

func (rp *Renderpass) End(cmd *CommandBuffer) {
	vk.CmdEndRenderPass(cmd.Handle)
	cmd.State = CommandBufferStateRecording
}

type Framebuffer struct {
	Handle     vk.Framebuffer
	Extent     metadata.Extent
	Renderpass *Renderpass
}

func NewFramebuffer(ctx *Context, rp *Renderpass, extent metadata.Extent, attachments []vk.ImageView) (*Framebuffer, error) {
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	return &Framebuffer{Handle: handle, Extent: extent, Renderpass: rp}, nil
}

func (fb *Framebuffer) Destroy(ctx *Context) {
	if fb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(ctx.Device.LogicalDevice, fb.Handle, ctx.Allocator)
		fb.Handle = vk.NullFramebuffer
	}
	fb.Renderpass = nil
}
