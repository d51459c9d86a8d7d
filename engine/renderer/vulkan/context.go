package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// SurfaceProvider hands the window system over to the backend. The platform
// layer implements it on top of glfw.
type SurfaceProvider interface {
	// InstanceProcAddr is the loader entry point used to bootstrap the binding.
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	// FramebufferSize is the drawable size in pixels; zero while minimized.
	FramebufferSize() (width, height uint32)
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Context owns the instance, surface, device, swapchain and main render pass.
type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugReport vk.DebugReportCallback

	Device     *Device
	Swapchain  *Swapchain
	Renderpass *Renderpass

	provider    SurfaceProvider
	presentMode string
	validation  bool
}

// NewContext brings up everything a frame needs short of descriptors and
// pipelines. Any failure is fatal.
func NewContext(provider SurfaceProvider, cfg *config.Config) (*Context, error) {
	ctx := &Context{
		provider:    provider,
		presentMode: cfg.Render.PresentMode,
		validation:  cfg.Render.Validation,
	}

	procAddr := provider.InstanceProcAddr()
	if procAddr == nil {
		return nil, fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrInit)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: loading vulkan: %w", core.ErrInit, err)
	}

	if err := ctx.createInstance(cfg.App.Name); err != nil {
		return nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := provider.CreateSurface(ctx.Instance)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: creating surface: %w", core.ErrInit, err)
	}
	ctx.Surface = surface

	device, err := NewDevice(ctx)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Device = device

	width, height := provider.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = cfg.App.Width, cfg.App.Height
	}
	sc, err := NewSwapchain(ctx, metadata.Extent{Width: width, Height: height}, nil)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Swapchain = sc

	rp, err := NewRenderpass(ctx, sc.ImageFormat.Format, device.DepthFormat)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	ctx.Renderpass = rp

	if err := sc.createFramebuffers(ctx, rp); err != nil {
		ctx.Destroy()
		return nil, err
	}

	core.LogInfo("Vulkan context created: device=%s swapchain=%dx%d images=%d format=%s",
		device.Name, sc.Extent.Width, sc.Extent.Height, sc.ImageCount, formatName(sc.ImageFormat.Format))
	return ctx, nil
}

func (ctx *Context) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Armada"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, ctx.provider.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if ctx.validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		available, err := instanceLayers()
		if err != nil {
			return err
		}
		if _, ok := hasAll(available, []string{validationLayer}); ok {
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layer %s enabled.", validationLayer)
		} else {
			core.LogWarn("Validation requested but %s is not installed.", validationLayer)
		}
	}
	for _, e := range extensions {
		core.LogDebug("Instance extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &instance); res != vk.Success {
		return initError("vkCreateInstance", res)
	}
	ctx.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInit, err)
	}
	core.LogInfo("Vulkan instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReportCallback,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(instance, &debugCreateInfo, ctx.Allocator, &dbg); res != vk.Success {
			core.LogWarn("vkCreateDebugReportCallback failed with %s", ResultString(res))
		} else {
			ctx.debugReport = dbg
			core.LogDebug("Vulkan debug report created.")
		}
	}
	return nil
}

func instanceLayers() ([]string, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, initError("vkEnumerateInstanceLayerProperties", res)
	}
	props := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, props); res != vk.Success {
		return nil, initError("vkEnumerateInstanceLayerProperties", res)
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].LayerName[:]))
	}
	return names, nil
}

// RecreateSwapchain rebuilds the swapchain, its depth attachments and
// framebuffers at extent, clamped to what the surface allows. The device is
// idle when this returns.
func (ctx *Context) RecreateSwapchain(extent metadata.Extent) error {
	if res := vk.DeviceWaitIdle(ctx.Device.LogicalDevice); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	if err := ctx.Device.querySwapchainSupport(ctx.Surface); err != nil {
		return err
	}

	old := ctx.Swapchain
	old.destroyAttachments(ctx)
	sc, err := NewSwapchain(ctx, extent, old)
	old.destroyHandle(ctx)
	if err != nil {
		ctx.Swapchain = nil
		return err
	}
	ctx.Swapchain = sc

	if sc.ImageFormat.Format != old.ImageFormat.Format {
		core.LogWarn("Surface format changed from %s to %s, rebuilding the render pass.",
			formatName(old.ImageFormat.Format), formatName(sc.ImageFormat.Format))
		ctx.Renderpass.Destroy(ctx)
		rp, err := NewRenderpass(ctx, sc.ImageFormat.Format, ctx.Device.DepthFormat)
		if err != nil {
			return err
		}
		ctx.Renderpass = rp
	}
	return sc.createFramebuffers(ctx, ctx.Renderpass)
}

func (ctx *Context) SwapchainFormat() vk.Format {
	return ctx.Swapchain.ImageFormat.Format
}

func (ctx *Context) SwapchainExtent() metadata.Extent {
	return ctx.Swapchain.Extent
}

func (ctx *Context) ImageCount() uint32 {
	return ctx.Swapchain.ImageCount
}

func (ctx *Context) ImageViews() []vk.ImageView {
	return ctx.Swapchain.Views
}

func (ctx *Context) GraphicsQueue() vk.Queue {
	return ctx.Device.GraphicsQueue
}

func (ctx *Context) PresentQueue() vk.Queue {
	return ctx.Device.PresentQueue
}

func (ctx *Context) LogicalDevice() vk.Device {
	return ctx.Device.LogicalDevice
}

// Limits returns the device limits the renderer depends on.
func (ctx *Context) Limits() vk.PhysicalDeviceLimits {
	return ctx.Device.Properties.Limits
}

// Destroy releases everything in reverse creation order. It tolerates a
// partially built context.
func (ctx *Context) Destroy() {
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
	}
	if ctx.Swapchain != nil {
		ctx.Swapchain.Destroy(ctx)
		ctx.Swapchain = nil
	}
	if ctx.Renderpass != nil {
		ctx.Renderpass.Destroy(ctx)
		ctx.Renderpass = nil
	}
	if ctx.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		ctx.Device.Destroy(ctx)
		ctx.Device = nil
	}
	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugReport, ctx.Allocator)
		ctx.debugReport = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
