package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
}

type ImageDesc struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	Aspect        vk.ImageAspectFlags
}

// NewImage creates a device-local, optimally tiled 2D image and its view.
func NewImage(ctx *Context, desc ImageDesc) (*Image, error) {
	img := &Image{Format: desc.Format, Width: desc.Width, Height: desc.Height}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        desc.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         desc.Usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &img.Handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, img.Handle, &reqs)
	reqs.Deref()
	memory, err := ctx.allocateMemory(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy(ctx)
		return nil, err
	}
	img.Memory = memory
	if res := vk.BindImageMemory(ctx.Device.LogicalDevice, img.Handle, img.Memory, 0); res != vk.Success {
		img.Destroy(ctx)
		return nil, resultError("vkBindImageMemory", res)
	}

	view, err := createImageView(ctx, img.Handle, desc.Format, desc.Aspect)
	if err != nil {
		img.Destroy(ctx)
		return nil, err
	}
	img.View = view
	return img, nil
}

func createImageView(ctx *Context, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(ctx.Device.LogicalDevice, &viewInfo, ctx.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (img *Image) Destroy(ctx *Context) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(ctx.Device.LogicalDevice, img.View, ctx.Allocator)
		img.View = vk.NullImageView
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, img.Memory, ctx.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(ctx.Device.LogicalDevice, img.Handle, ctx.Allocator)
		img.Handle = vk.NullImage
	}
}

// barrierMasks describes one supported layout transition.
type barrierMasks struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

// layoutTransition returns the access and stage masks for the transitions a
// texture upload needs.
func layoutTransition(from, to vk.ImageLayout) (barrierMasks, error) {
	switch {
	case from == vk.ImageLayoutUndefined && to == vk.ImageLayoutTransferDstOptimal:
		return barrierMasks{
			srcAccess: 0,
			dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}, nil
	case from == vk.ImageLayoutTransferDstOptimal && to == vk.ImageLayoutShaderReadOnlyOptimal:
		return barrierMasks{
			srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}, nil
	}
	return barrierMasks{}, fmt.Errorf("unsupported layout transition %d -> %d", from, to)
}

func (img *Image) transition(cmd *CommandBuffer, from, to vk.ImageLayout) error {
	masks, err := layoutTransition(from, to)
	if err != nil {
		return err
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SrcAccessMask:       masks.srcAccess,
		DstAccessMask:       masks.dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(cmd.Handle, masks.srcStage, masks.dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}

func (img *Image) copyFromBuffer(cmd *CommandBuffer, src *Buffer) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cmd.Handle, src.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// textureFormat picks R8 for single channel data, sRGB for color roles and
// unorm for data roles such as normals.
func textureFormat(channels uint8, role metadata.TextureRole) (vk.Format, error) {
	switch channels {
	case 1:
		return vk.FormatR8Unorm, nil
	case 4:
	default:
		return vk.FormatUndefined, fmt.Errorf("%w: %d channels", core.ErrUnsupportedFormat, channels)
	}
	switch role {
	case metadata.TextureRoleBaseColor, metadata.TextureRoleEmission, metadata.TextureRoleUI:
		return vk.FormatR8g8b8a8Srgb, nil
	}
	return vk.FormatR8g8b8a8Unorm, nil
}

// Texture is the backend side of a metadata.Texture.
type Texture struct {
	Image   *Image
	Sampler vk.Sampler
}

func (ctx *Context) newSampler() (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if ctx.Device.Features.SamplerAnisotropy == vk.True {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = 16
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &sampler); res != vk.Success {
		return vk.NullSampler, resultError("vkCreateSampler", res)
	}
	return sampler, nil
}

// UploadTexture copies pixels through a staging buffer into a new sampled
// image and blocks until the copy is done.
func (ctx *Context) UploadTexture(width, height uint32, channels uint8, role metadata.TextureRole, pixels []byte) (*Texture, error) {
	format, err := textureFormat(channels, role)
	if err != nil {
		return nil, err
	}
	size := uint64(width) * uint64(height) * uint64(channels)
	if uint64(len(pixels)) != size {
		return nil, fmt.Errorf("texture %dx%dx%d needs %d bytes, got %d", width, height, channels, size, len(pixels))
	}

	staging, err := ctx.CreateBuffer(size, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisible)
	if err != nil {
		return nil, err
	}
	defer ctx.DestroyBuffer(staging)
	copy(staging.Mapped, pixels)

	img, err := NewImage(ctx, ImageDesc{
		Width:  width,
		Height: height,
		Format: format,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	})
	if err != nil {
		return nil, err
	}

	cmd, err := BeginSingleUse(ctx, ctx.Device.GraphicsCommandPool)
	if err != nil {
		img.Destroy(ctx)
		return nil, err
	}
	if err := img.transition(cmd, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		cmd.Free(ctx, ctx.Device.GraphicsCommandPool)
		img.Destroy(ctx)
		return nil, err
	}
	img.copyFromBuffer(cmd, staging)
	if err := img.transition(cmd, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		cmd.Free(ctx, ctx.Device.GraphicsCommandPool)
		img.Destroy(ctx)
		return nil, err
	}
	if err := cmd.EndSingleUse(ctx, ctx.Device.GraphicsCommandPool, ctx.Device.GraphicsQueue); err != nil {
		img.Destroy(ctx)
		return nil, err
	}

	sampler, err := ctx.newSampler()
	if err != nil {
		img.Destroy(ctx)
		return nil, err
	}
	return &Texture{Image: img, Sampler: sampler}, nil
}

func (ctx *Context) DestroyTexture(t *Texture) {
	if t == nil {
		return
	}
	if t.Sampler != vk.NullSampler {
		vk.DestroySampler(ctx.Device.LogicalDevice, t.Sampler, ctx.Allocator)
		t.Sampler = vk.NullSampler
	}
	if t.Image != nil {
		t.Image.Destroy(ctx)
		t.Image = nil
	}
}
