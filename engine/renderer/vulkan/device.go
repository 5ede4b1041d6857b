package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gfx"
)

const portabilitySubset = "VK_KHR_portability_subset"

type memoryRecord struct {
	handle      vk.DeviceMemory
	hostVisible bool
}

type commandPoolRecord struct {
	handle vk.CommandPool
	family uint32
}

type setRecord struct {
	handle vk.DescriptorSet
	pool   uint64
}

type swapchainRecord struct {
	handle vk.Swapchain
	images []uint64
}

// Device implements gfx.Device on top of a logical Vulkan device. Every object it creates is
// kept in a registry keyed by the handle returned to the caller.
type Device struct {
	inst       *Instance
	surface    vk.Surface
	physical   vk.PhysicalDevice
	logical    vk.Device
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	families   gfx.QueueFamilies
	queues     [3]vk.Queue
	locks      *LockPool

	fences       registry[vk.Fence]
	semaphores   registry[vk.Semaphore]
	buffers      registry[vk.Buffer]
	memories     registry[memoryRecord]
	images       registry[vk.Image]
	views        registry[vk.ImageView]
	samplers     registry[vk.Sampler]
	commandPools registry[commandPoolRecord]
	setLayouts   registry[vk.DescriptorSetLayout]
	descPools    registry[vk.DescriptorPool]
	sets         registry[setRecord]
	renderPasses registry[vk.RenderPass]
	framebuffers registry[vk.Framebuffer]
	pipelines    registry[vk.Pipeline]
	layouts      registry[vk.PipelineLayout]
	swapchains   registry[swapchainRecord]
	surfaces     registry[vk.Surface]
}

var (
	_ gfx.Device        = (*Device)(nil)
	_ gfx.CommandBuffer = (*CommandBuffer)(nil)
)

type physicalDeviceRequirements struct {
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

// queueFamilyInfo is what a queue family offers, as far as queue selection is concerned.
type queueFamilyInfo struct {
	Graphics bool
	Compute  bool
	Transfer bool
	Present  bool
}

// pickQueueFamilies chooses the graphics, present and transfer families. Present prefers the
// graphics family. Transfer prefers the family doing the least other work, which is most
// likely a dedicated transfer queue.
func pickQueueFamilies(families []queueFamilyInfo) (gfx.QueueFamilies, bool) {
	var out gfx.QueueFamilies
	graphics, present, transfer := -1, -1, -1
	minTransferScore := 255

	for i, f := range families {
		score := 0
		if f.Graphics {
			if graphics < 0 {
				graphics = i
			}
			score++
		}
		if f.Compute {
			score++
		}
		if f.Transfer && score < minTransferScore {
			minTransferScore = score
			transfer = i
		}
		if f.Present && (present < 0 || i == graphics) {
			present = i
		}
	}
	// Graphics queues can always transfer even when the bit is not advertised.
	if transfer < 0 {
		transfer = graphics
	}
	if graphics < 0 || present < 0 {
		return out, false
	}
	out.Graphics = uint32(graphics)
	out.Present = uint32(present)
	out.Transfer = uint32(transfer)
	return out, true
}

func newDevice(inst *Instance, surface vk.Surface, cfg Config) (*Device, error) {
	d := &Device{inst: inst, surface: surface, locks: NewLockPool()}
	if err := d.selectPhysicalDevice(cfg); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) selectPhysicalDevice(cfg Config) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.inst.Handle, &count, nil); res != vk.Success || count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.inst.Handle, &count, physicalDevices); res != vk.Success {
		err := fmt.Errorf("failed to enumerate physical devices: %s", ResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	requirements := physicalDeviceRequirements{
		SamplerAnisotropy:    true,
		DiscreteGPU:          cfg.PreferDiscrete && runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// A discrete GPU is a preference, not a requirement: retry without it.
	passes := []bool{requirements.DiscreteGPU}
	if requirements.DiscreteGPU {
		passes = append(passes, false)
	}
	for _, discrete := range passes {
		requirements.DiscreteGPU = discrete
		for _, pd := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(pd, &properties)
			properties.Deref()
			properties.Limits.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(pd, &features)
			features.Deref()

			families, ok := d.meetsRequirements(pd, &properties, &features, &requirements)
			if !ok {
				continue
			}

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
			memory.Deref()

			d.physical = pd
			d.properties = properties
			d.features = features
			d.memory = memory
			d.families = families
			logDevice(&properties, &memory)
			return nil
		}
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrNoSuitableDevice)
	core.LogError(err.Error())
	return err
}

func logDevice(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
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
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		gib := float32(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
}

func (d *Device) meetsRequirements(pd vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *physicalDeviceRequirements) (gfx.QueueFamilies, bool) {
	name := cString(properties.DeviceName[:])
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("'%s' is not a discrete GPU, and one is required. Skipping.", name)
		return gfx.QueueFamilies{}, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	props := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, props)

	infos := make([]queueFamilyInfo, familyCount)
	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	for i := range props {
		props[i].Deref()
		flags := vk.QueueFlagBits(props[i].QueueFlags)
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &supportsPresent); res != vk.Success {
			return gfx.QueueFamilies{}, false
		}
		infos[i] = queueFamilyInfo{
			Graphics: flags&vk.QueueGraphicsBit != 0,
			Compute:  flags&vk.QueueComputeBit != 0,
			Transfer: flags&vk.QueueTransferBit != 0,
			Present:  supportsPresent == vk.True,
		}
		core.LogDebug("%8t | %7t | %7t | %8t | %s", infos[i].Graphics, infos[i].Present, infos[i].Compute, infos[i].Transfer, name)
	}

	families, ok := pickQueueFamilies(infos)
	if !ok {
		core.LogDebug("'%s' lacks a graphics or present queue, skipping.", name)
		return families, false
	}
	core.LogDebug("Graphics Family Index: %d", families.Graphics)
	core.LogDebug("Present Family Index:  %d", families.Present)
	core.LogDebug("Transfer Family Index: %d", families.Transfer)

	support, err := querySurfaceSupport(pd, d.surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogDebug("Required swapchain support not present, skipping device.")
		return families, false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(pd)
		if err != nil {
			return families, false
		}
		for _, ext := range requirements.DeviceExtensionNames {
			if _, found := available[ext]; !found {
				core.LogDebug("Required extension not found: '%s', skipping device.", ext)
				return families, false
			}
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogDebug("Device does not support samplerAnisotropy, skipping.")
		return families, false
	}
	return families, true
}

func deviceExtensions(pd vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		err := fmt.Errorf("error in EnumerateDeviceExtensionProperties: %s", ResultString(res, false))
		core.LogError(err.Error())
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); res != vk.Success {
			err := fmt.Errorf("error in EnumerateDeviceExtensionProperties: %s", ResultString(res, false))
			core.LogError(err.Error())
			return nil, err
		}
	}
	out := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	// Shared families get a single queue.
	indices := d.families.Unique(gfx.QueueGraphics, gfx.QueuePresent, gfx.QueueTransfer)
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, idx := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		d.locks.SetQueueFamily(idx)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: d.features.SamplerAnisotropy,
		FillModeNonSolid:  d.features.FillModeNonSolid,
		WideLines:         d.features.WideLines,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(d.physical)
	if err != nil {
		return err
	}
	if _, ok := available[portabilitySubset]; ok {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: safeStrings(extensionNames),
	}

	var logical vk.Device
	if res := vk.CreateDevice(d.physical, &deviceCreateInfo, d.inst.Allocator, &logical); res != vk.Success {
		err := fmt.Errorf("failed to create logical device: %s", ResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	d.logical = logical
	core.LogInfo("Logical device created.")

	for _, q := range []gfx.QueueType{gfx.QueueGraphics, gfx.QueuePresent, gfx.QueueTransfer} {
		var queue vk.Queue
		vk.GetDeviceQueue(d.logical, d.families.Index(q), 0, &queue)
		d.queues[q] = queue
	}
	core.LogInfo("Queues obtained.")
	return nil
}

func (d *Device) QueueFamilies() gfx.QueueFamilies {
	return d.families
}

// WaitIdle waits for every queue, holding all queue locks so nothing is submitted meanwhile.
func (d *Device) WaitIdle() error {
	return d.locks.SafeAllQueues(func() error {
		if res := vk.DeviceWaitIdle(d.logical); res != vk.Success {
			err := fmt.Errorf("vkDeviceWaitIdle failed: '%s': %w", ResultString(res, true), resultErr(res))
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

// SupportedDepthFormat returns the first candidate usable as a depth attachment.
func (d *Device) SupportedDepthFormat(candidates []gfx.Format) (gfx.Format, bool) {
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, c := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, vk.Format(c), &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags ||
			vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&flags == flags {
			return c, true
		}
	}
	return gfx.FormatUndefined, false
}

// Live reports how many objects of every kind are still registered.
func (d *Device) Live() int {
	return d.fences.len() + d.semaphores.len() + d.buffers.len() + d.memories.len() +
		d.images.len() + d.views.len() + d.samplers.len() + d.commandPools.len() +
		d.setLayouts.len() + d.descPools.len() + d.renderPasses.len() +
		d.framebuffers.len() + d.pipelines.len() + d.layouts.len() + d.swapchains.len()
}

// Destroy releases anything the render core leaked, then the device, surface and instance.
func (d *Device) Destroy() {
	if d == nil || d.logical == nil {
		return
	}
	_ = d.WaitIdle()
	if n := d.Live(); n > 0 {
		core.LogWarn("destroying device with %d live objects", n)
	}
	dev, alloc := d.logical, d.inst.Allocator
	for _, fb := range d.framebuffers.drain() {
		vk.DestroyFramebuffer(dev, fb, alloc)
	}
	for _, p := range d.pipelines.drain() {
		vk.DestroyPipeline(dev, p, alloc)
	}
	for _, l := range d.layouts.drain() {
		vk.DestroyPipelineLayout(dev, l, alloc)
	}
	for _, rp := range d.renderPasses.drain() {
		vk.DestroyRenderPass(dev, rp, alloc)
	}
	d.sets.drain()
	for _, p := range d.descPools.drain() {
		vk.DestroyDescriptorPool(dev, p, alloc)
	}
	for _, l := range d.setLayouts.drain() {
		vk.DestroyDescriptorSetLayout(dev, l, alloc)
	}
	for _, p := range d.commandPools.drain() {
		vk.DestroyCommandPool(dev, p.handle, alloc)
	}
	for _, v := range d.views.drain() {
		vk.DestroyImageView(dev, v, alloc)
	}
	for _, s := range d.swapchains.drain() {
		for _, img := range s.images {
			d.images.remove(img)
		}
		vk.DestroySwapchain(dev, s.handle, alloc)
	}
	for _, s := range d.samplers.drain() {
		vk.DestroySampler(dev, s, alloc)
	}
	for _, img := range d.images.drain() {
		vk.DestroyImage(dev, img, alloc)
	}
	for _, b := range d.buffers.drain() {
		vk.DestroyBuffer(dev, b, alloc)
	}
	for _, m := range d.memories.drain() {
		vk.FreeMemory(dev, m.handle, alloc)
	}
	for _, s := range d.semaphores.drain() {
		vk.DestroySemaphore(dev, s, alloc)
	}
	for _, f := range d.fences.drain() {
		vk.DestroyFence(dev, f, alloc)
	}

	core.LogDebug("Destroying logical device...")
	vk.DestroyDevice(d.logical, alloc)
	d.logical = nil
	d.physical = nil

	core.LogDebug("Destroying Vulkan surface...")
	for _, s := range d.surfaces.drain() {
		d.inst.DestroySurface(s)
	}
	d.inst.Destroy()
}
