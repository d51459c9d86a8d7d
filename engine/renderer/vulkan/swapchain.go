package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

const undefinedExtent = ^uint32(0)

// Swapchain holds the presentable images, one depth attachment and one
// framebuffer per image.
type Swapchain struct {
	// Generation changes on every recreation and tags its log lines.
	Generation  uuid.UUID
	ImageFormat vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      metadata.Extent
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachments []*Image
	Framebuffers     []*Framebuffer
}

// chooseSurfaceFormat keeps previous when the surface still offers it, then
// prefers 8-bit BGRA sRGB, then BGRA unorm, then whatever comes first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat, previous vk.Format) vk.SurfaceFormat {
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	}
	if previous != vk.FormatUndefined {
		for _, f := range formats {
			if f.Format == previous {
				return f
			}
		}
	}
	for _, want := range []vk.Format{vk.FormatB8g8r8a8Srgb, vk.FormatB8g8r8a8Unorm} {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	return formats[0]
}

// choosePresentMode honors "fifo" and otherwise takes mailbox when offered.
// FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, preference string) vk.PresentMode {
	if preference == config.PresentModeFIFO {
		return vk.PresentModeFifo
	}
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent takes the surface's current extent when it defines one and
// clamps want into the allowed range otherwise.
func chooseExtent(caps vk.SurfaceCapabilities, want metadata.Extent) metadata.Extent {
	if caps.CurrentExtent.Width != undefinedExtent {
		return metadata.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	}
	return metadata.Extent{
		Width:  math.Clamp(want.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(want.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image more than the minimum. A max of zero
// means unbounded.
func chooseImageCount(min, max uint32) uint32 {
	count := min + 1
	if max > 0 && count > max {
		count = max
	}
	return count
}

func chooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// NewSwapchain creates a swapchain for ctx.Surface at want. When old is given
// its handle is passed on as the old swapchain and its format is kept if
// possible; old is not destroyed here.
func NewSwapchain(ctx *Context, want metadata.Extent, old *Swapchain) (*Swapchain, error) {
	support := ctx.Device.SwapchainSupport
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, core.ErrSurfaceIncompatible
	}

	previous := vk.FormatUndefined
	oldHandle := vk.NullSwapchain
	if old != nil {
		previous = old.ImageFormat.Format
		oldHandle = old.Handle
	}

	sc := &Swapchain{
		Generation:  uuid.New(),
		ImageFormat: chooseSurfaceFormat(support.Formats, previous),
		PresentMode: choosePresentMode(support.PresentModes, ctx.presentMode),
		Extent:      chooseExtent(support.Capabilities, want),
	}
	caps := support.Capabilities
	imageCount := chooseImageCount(caps.MinImageCount, caps.MaxImageCount)

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      vk.Extent2D{Width: sc.Extent.Width, Height: sc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   chooseCompositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:      sc.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, resultError("vkCreateSwapchainKHR", res)
	}
	sc.Handle = handle

	if res := vk.GetSwapchainImages(ctx.Device.LogicalDevice, sc.Handle, &sc.ImageCount, nil); res != vk.Success {
		sc.Destroy(ctx)
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}
	sc.Images = make([]vk.Image, sc.ImageCount)
	if res := vk.GetSwapchainImages(ctx.Device.LogicalDevice, sc.Handle, &sc.ImageCount, sc.Images); res != vk.Success {
		sc.Destroy(ctx)
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}

	sc.Views = make([]vk.ImageView, 0, sc.ImageCount)
	sc.DepthAttachments = make([]*Image, 0, sc.ImageCount)
	for i := range sc.Images {
		view, err := createImageView(ctx, sc.Images[i], sc.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			sc.Destroy(ctx)
			return nil, err
		}
		sc.Views = append(sc.Views, view)

		depth, err := NewImage(ctx, ImageDesc{
			Width:  sc.Extent.Width,
			Height: sc.Extent.Height,
			Format: ctx.Device.DepthFormat,
			Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
			Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
		})
		if err != nil {
			sc.Destroy(ctx)
			return nil, err
		}
		sc.DepthAttachments = append(sc.DepthAttachments, depth)
	}

	core.LogDebug("Swapchain %s created: %dx%d images=%d format=%s present=%s",
		sc.Generation, sc.Extent.Width, sc.Extent.Height, sc.ImageCount,
		formatName(sc.ImageFormat.Format), presentModeName(sc.PresentMode))
	return sc, nil
}

func (sc *Swapchain) createFramebuffers(ctx *Context, rp *Renderpass) error {
	sc.Framebuffers = make([]*Framebuffer, 0, len(sc.Views))
	for i := range sc.Views {
		fb, err := NewFramebuffer(ctx, rp, sc.Extent, []vk.ImageView{sc.Views[i], sc.DepthAttachments[i].View})
		if err != nil {
			return err
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}
	return nil
}

// destroyAttachments releases framebuffers, depth images and views but keeps
// the handle so it can be passed as the old swapchain.
func (sc *Swapchain) destroyAttachments(ctx *Context) {
	for _, fb := range sc.Framebuffers {
		fb.Destroy(ctx)
	}
	sc.Framebuffers = nil
	for _, depth := range sc.DepthAttachments {
		depth.Destroy(ctx)
	}
	sc.DepthAttachments = nil
	// Images belong to the swapchain; only the views are ours.
	for _, view := range sc.Views {
		vk.DestroyImageView(ctx.Device.LogicalDevice, view, ctx.Allocator)
	}
	sc.Views = nil
}

func (sc *Swapchain) destroyHandle(ctx *Context) {
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(ctx.Device.LogicalDevice, sc.Handle, ctx.Allocator)
		sc.Handle = vk.NullSwapchain
	}
	sc.Images = nil
}

func (sc *Swapchain) Destroy(ctx *Context) {
	sc.destroyAttachments(ctx)
	sc.destroyHandle(ctx)
	core.LogDebug("Swapchain %s destroyed.", sc.Generation)
}

// Acquire returns the next image index. A suboptimal acquire still yields a
// usable index alongside core.ErrSwapchainSuboptimal.
func (sc *Swapchain) Acquire(ctx *Context, timeoutNs uint64, imageAvailable vk.Semaphore) (uint32, error) {
	var index uint32
	res := vk.AcquireNextImage(ctx.Device.LogicalDevice, sc.Handle, timeoutNs, imageAvailable, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		return index, resultError("vkAcquireNextImageKHR", res)
	}
	return 0, resultError("vkAcquireNextImageKHR", res)
}

// Present queues image for presentation once renderFinished is signaled.
func (sc *Swapchain) Present(queue vk.Queue, renderFinished vk.Semaphore, image uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{image},
	}
	return resultError("vkQueuePresentKHR", vk.QueuePresent(queue, &presentInfo))
}

var formatNames = map[vk.Format]string{
	vk.FormatUndefined:       "UNDEFINED",
	vk.FormatB8g8r8a8Srgb:    "B8G8R8A8_SRGB",
	vk.FormatB8g8r8a8Unorm:   "B8G8R8A8_UNORM",
	vk.FormatR8g8b8a8Srgb:    "R8G8B8A8_SRGB",
	vk.FormatR8g8b8a8Unorm:   "R8G8B8A8_UNORM",
	vk.FormatR8Unorm:         "R8_UNORM",
	vk.FormatD32Sfloat:       "D32_SFLOAT",
	vk.FormatD32SfloatS8Uint: "D32_SFLOAT_S8_UINT",
	vk.FormatD24UnormS8Uint:  "D24_UNORM_S8_UINT",
}

func formatName(f vk.Format) string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("VkFormat(%d)", int32(f))
}

func presentModeName(m vk.PresentMode) string {
	switch m {
	case vk.PresentModeFifo:
		return "fifo"
	case vk.PresentModeMailbox:
		return "mailbox"
	case vk.PresentModeImmediate:
		return "immediate"
	case vk.PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("VkPresentMode(%d)", int32(m))
}
