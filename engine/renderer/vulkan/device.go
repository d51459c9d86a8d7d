package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/armada/engine/core"
)

const portabilitySubset = "VK_KHR_portability_subset"

type SwapchainSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// Device is the selected physical device, its logical device and the single
// queue family used for both graphics and present.
type Device struct {
	Name           string
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	SwapchainSupport SwapchainSupport
	QueueFamilyIndex uint32
	GraphicsQueue    vk.Queue
	PresentQueue     vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type queueFamily struct {
	graphics bool
	present  bool
}

// deviceCandidate is what selection needs to know about a physical device.
type deviceCandidate struct {
	name         string
	families     []queueFamily
	extensions   []string
	formats      int
	presentModes int
}

// evaluate returns the queue family to use or the reason the device is unfit.
func (c *deviceCandidate) evaluate() (uint32, error) {
	if missing, ok := hasAll(c.extensions, []string{vk.KhrSwapchainExtensionName}); !ok {
		return 0, fmt.Errorf("%w: %s lacks %s", core.ErrNoDevice, c.name, trimNul(missing))
	}
	family := -1
	for i, f := range c.families {
		if f.graphics && f.present {
			family = i
			break
		}
	}
	if family < 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrNoSuitableQueue, c.name)
	}
	if c.formats == 0 || c.presentModes == 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrSurfaceIncompatible, c.name)
	}
	return uint32(family), nil
}

// rejectionRank orders failures by how far the device got through selection.
func rejectionRank(err error) int {
	switch {
	case errors.Is(err, core.ErrSurfaceIncompatible):
		return 3
	case errors.Is(err, core.ErrNoSuitableQueue):
		return 2
	}
	return 1
}

// pickDevice returns the first device that qualifies, in enumeration order.
// When none qualifies the error of the device that got furthest is returned.
func pickDevice(candidates []deviceCandidate) (index int, family uint32, err error) {
	if len(candidates) == 0 {
		return -1, 0, fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrNoDevice)
	}
	var rejection error
	for i := range candidates {
		f, cerr := candidates[i].evaluate()
		if cerr != nil {
			core.LogInfo("Skipping device: %v", cerr)
			if rejection == nil || rejectionRank(cerr) > rejectionRank(rejection) {
				rejection = cerr
			}
			continue
		}
		return i, f, nil
	}
	return -1, 0, rejection
}

// NewDevice selects a physical device for ctx.Surface and creates the logical
// device, its queue and the graphics command pool.
func NewDevice(ctx *Context) (*Device, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); res != vk.Success {
		return nil, initError("vkEnumeratePhysicalDevices", res)
	}
	physical := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, physical); res != vk.Success {
			return nil, initError("vkEnumeratePhysicalDevices", res)
		}
	}

	candidates := make([]deviceCandidate, len(physical))
	supports := make([]SwapchainSupport, len(physical))
	for i, pd := range physical {
		c, support, err := describeDevice(pd, ctx.Surface)
		if err != nil {
			return nil, err
		}
		candidates[i], supports[i] = c, support
	}

	index, family, err := pickDevice(candidates)
	if err != nil {
		core.LogError("No physical devices were found which meet the requirements: %v", err)
		return nil, err
	}

	d := &Device{
		Name:             candidates[index].name,
		PhysicalDevice:   physical[index],
		QueueFamilyIndex: family,
		SwapchainSupport: supports[index],
	}
	vk.GetPhysicalDeviceProperties(d.PhysicalDevice, &d.Properties)
	d.Properties.Deref()
	d.Properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(d.PhysicalDevice, &d.Features)
	d.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.Memory)
	d.Memory.Deref()
	d.logSelection()

	if !d.detectDepthFormat() {
		return nil, fmt.Errorf("%w: no depth attachment format", core.ErrNoDevice)
	}

	if err := d.createLogical(candidates[index].extensions, ctx.Allocator); err != nil {
		return nil, err
	}
	return d, nil
}

func describeDevice(pd vk.PhysicalDevice, surface vk.Surface) (deviceCandidate, SwapchainSupport, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	c := deviceCandidate{name: vk.ToString(props.DeviceName[:])}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)
	for i := range families {
		families[i].Deref()
		var present vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &present); res != vk.Success {
			return c, SwapchainSupport{}, initError("vkGetPhysicalDeviceSurfaceSupport", res)
		}
		c.families = append(c.families, queueFamily{
			graphics: vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0,
			present:  present == vk.True,
		})
	}

	extensions, err := deviceExtensions(pd)
	if err != nil {
		return c, SwapchainSupport{}, err
	}
	c.extensions = extensions

	var support SwapchainSupport
	if err := querySwapchainSupport(pd, surface, &support); err != nil {
		return c, SwapchainSupport{}, err
	}
	c.formats = len(support.Formats)
	c.presentModes = len(support.PresentModes)
	return c, support, nil
}

func deviceExtensions(pd vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return nil, initError("vkEnumerateDeviceExtensionProperties", res)
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); res != vk.Success {
			return nil, initError("vkEnumerateDeviceExtensionProperties", res)
		}
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names, nil
}

func (d *Device) logSelection() {
	core.LogInfo("Selected device: '%s'.", d.Name)
	switch d.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	driver, api := vk.Version(d.Properties.DriverVersion), vk.Version(d.Properties.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())
	for j := uint32(0); j < d.Memory.MemoryHeapCount; j++ {
		heap := d.Memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
}

func (d *Device) createLogical(available []string, allocator *vk.AllocationCallbacks) error {
	core.LogInfo("Creating logical device...")

	extensions := []string{vk.KhrSwapchainExtensionName}
	if _, ok := hasAll(available, []string{portabilitySubset}); ok {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	features := vk.PhysicalDeviceFeatures{}
	if d.Features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.QueueFamilyIndex,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logical vk.Device
	if res := vk.CreateDevice(d.PhysicalDevice, &createInfo, allocator, &logical); res != vk.Success {
		return initError("vkCreateDevice", res)
	}
	d.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(d.LogicalDevice, d.QueueFamilyIndex, 0, &queue)
	d.GraphicsQueue = queue
	d.PresentQueue = queue
	core.LogInfo("Queues obtained.")

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.QueueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolInfo, allocator, &pool); res != vk.Success {
		return initError("vkCreateCommandPool", res)
	}
	d.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (d *Device) querySwapchainSupport(surface vk.Surface) error {
	return querySwapchainSupport(d.PhysicalDevice, surface, &d.SwapchainSupport)
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface, out *SwapchainSupport) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &out.Capabilities); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	out.Capabilities.Deref()
	out.Capabilities.CurrentExtent.Deref()
	out.Capabilities.MinImageExtent.Deref()
	out.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfaceFormats", res)
	}
	out.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, out.Formats); res != vk.Success {
			return resultError("vkGetPhysicalDeviceSurfaceFormats", res)
		}
		for i := range out.Formats {
			out.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil); res != vk.Success {
		return resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
	}
	out.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, out.PresentModes); res != vk.Success {
			return resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
		}
	}
	return nil
}

var depthCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

func (d *Device) detectDepthFormat() bool {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range depthCandidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, format, &props)
		props.Deref()
		if props.OptimalTilingFeatures&flags == flags {
			d.DepthFormat = format
			return true
		}
	}
	return false
}

func (d *Device) Destroy(ctx *Context) {
	d.GraphicsQueue = nil
	d.PresentQueue = nil

	if d.GraphicsCommandPool != vk.NullCommandPool {
		core.LogDebug("Destroying command pools...")
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, ctx.Allocator)
		d.GraphicsCommandPool = vk.NullCommandPool
	}
	if d.LogicalDevice != nil {
		core.LogDebug("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
		d.LogicalDevice = nil
	}
	d.PhysicalDevice = nil
	d.SwapchainSupport = SwapchainSupport{}
}
