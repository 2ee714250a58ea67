// Package vulkan implements the renderer backend on top of the Vulkan API.
// Devices are created without a surface; everything the renderer records
// is translated one to one into vkCmd* calls and queue operations.
package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var (
	_ renderer.Backend           = (*Backend)(nil)
	_ renderer.RenderPassFactory = (*Backend)(nil)
	_ renderer.ResourceFactory   = (*Backend)(nil)
)

type Options struct {
	ApplicationName string
	// Validation enables VK_LAYER_KHRONOS_validation and routes its reports to the log.
	Validation bool
	// DiscreteGPU skips every device that is not a discrete GPU.
	DiscreteGPU bool
	// SparseBinding requires a queue family and device features for sparse binding.
	SparseBinding bool
}

type queueEntry struct {
	handle vk.Queue
	family uint32
}

type commandBufferEntry struct {
	handle vk.CommandBuffer
	pool   metadata.Handle
	level  metadata.CommandBufferLevel
}

type Backend struct {
	context *VulkanContext
	// glfw initialised the loader and must be terminated with the backend
	glfw bool

	families   []metadata.QueueFamilyProperties
	nextHandle atomic.Uint64

	mu        sync.Mutex
	queueKeys map[[2]uint32]metadata.Handle

	queues         *handleTable[queueEntry]
	pools          *handleTable[vk.CommandPool]
	commandBuffers *handleTable[commandBufferEntry]
	fences         *handleTable[vk.Fence]
	semaphores     *handleTable[vk.Semaphore]
	events         *handleTable[vk.Event]

	buffers          *handleTable[bufferEntry]
	images           *handleTable[imageEntry]
	imageViews       *handleTable[vk.ImageView]
	memories         *handleTable[vk.DeviceMemory]
	renderPasses     *handleTable[renderPassEntry]
	framebuffers     *handleTable[vk.Framebuffer]
	setLayouts       *handleTable[vk.DescriptorSetLayout]
	descriptorSets   *handleTable[vk.DescriptorSet]
	pipelineLayouts  *handleTable[vk.PipelineLayout]
	pipelines        *handleTable[vk.Pipeline]
	swapchains       *handleTable[vk.Swapchain]
	descriptorPool   vk.DescriptorPool
	descriptorPoolMu sync.Mutex

	destroyed atomic.Bool
}

func newBackend() *Backend {
	return &Backend{
		context:         &VulkanContext{Allocator: nil},
		queueKeys:       make(map[[2]uint32]metadata.Handle),
		queues:          newHandleTable[queueEntry](metadata.OBJECT_TYPE_QUEUE),
		pools:           newHandleTable[vk.CommandPool](metadata.OBJECT_TYPE_COMMAND_POOL),
		commandBuffers:  newHandleTable[commandBufferEntry](metadata.OBJECT_TYPE_COMMAND_BUFFER),
		fences:          newHandleTable[vk.Fence](metadata.OBJECT_TYPE_FENCE),
		semaphores:      newHandleTable[vk.Semaphore](metadata.OBJECT_TYPE_SEMAPHORE),
		events:          newHandleTable[vk.Event](metadata.OBJECT_TYPE_EVENT),
		buffers:         newHandleTable[bufferEntry](metadata.OBJECT_TYPE_BUFFER),
		images:          newHandleTable[imageEntry](metadata.OBJECT_TYPE_IMAGE),
		imageViews:      newHandleTable[vk.ImageView](metadata.OBJECT_TYPE_IMAGE_VIEW),
		memories:        newHandleTable[vk.DeviceMemory](metadata.OBJECT_TYPE_DEVICE_MEMORY),
		renderPasses:    newHandleTable[renderPassEntry](metadata.OBJECT_TYPE_RENDER_PASS),
		framebuffers:    newHandleTable[vk.Framebuffer](metadata.OBJECT_TYPE_FRAMEBUFFER),
		setLayouts:      newHandleTable[vk.DescriptorSetLayout](metadata.OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT),
		descriptorSets:  newHandleTable[vk.DescriptorSet](metadata.OBJECT_TYPE_DESCRIPTOR_SET),
		pipelineLayouts: newHandleTable[vk.PipelineLayout](metadata.OBJECT_TYPE_PIPELINE_LAYOUT),
		pipelines:       newHandleTable[vk.Pipeline](metadata.OBJECT_TYPE_PIPELINE),
		swapchains:      newHandleTable[vk.Swapchain](metadata.OBJECT_TYPE_SWAPCHAIN),
	}
}

func New(opts Options) (*Backend, error) {
	b := newBackend()
	usedGLFW, err := loadVulkan()
	if err != nil {
		err = fmt.Errorf("failed to initialize vk: %s: %w", err, core.ErrInitialization)
		core.LogError("%s", err)
		return nil, err
	}
	b.glfw = usedGLFW

	if err := b.createInstance(opts); err != nil {
		b.Destroy()
		return nil, err
	}

	requirements := &VulkanPhysicalDeviceRequirements{
		Transfer:      true,
		SparseBinding: opts.SparseBinding,
		DiscreteGPU:   opts.DiscreteGPU,
	}
	if err := DeviceCreate(b.context, requirements); err != nil {
		b.Destroy()
		return nil, err
	}

	for _, f := range b.context.Device.QueueFamilies {
		flags := queueFlags(f.QueueFlags)
		if !b.context.Device.SparseBinding {
			flags &^= metadata.QUEUE_SPARSE_BINDING
		}
		// presentation support needs a surface, which headless devices do not have
		b.families = append(b.families, metadata.QueueFamilyProperties{
			Flags:      flags,
			QueueCount: f.QueueCount,
		})
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return b, nil
}

// loadVulkan points the bindings at the Vulkan loader. glfw finds it on
// desktops; hosts without a display fall back to the system library.
func loadVulkan() (bool, error) {
	if err := glfw.Init(); err == nil {
		if procAddr := glfw.GetVulkanGetInstanceProcAddress(); procAddr != nil {
			vk.SetGetInstanceProcAddr(procAddr)
			return true, vk.Init()
		}
		glfw.Terminate()
	} else {
		core.LogDebug("glfw unavailable, loading the system Vulkan library: %s", err)
	}
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return false, err
	}
	return false, vk.Init()
}

func (b *Backend) createInstance(opts Options) error {
	appName := opts.ApplicationName
	if appName == "" {
		appName = "anima-gpu"
	}
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	requiredValidationLayerNames := []string{}
	validation := opts.Validation
	if validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		if hasInstanceLayer("VK_LAYER_KHRONOS_validation") {
			requiredValidationLayerNames = append(requiredValidationLayerNames, "VK_LAYER_KHRONOS_validation")
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
			core.LogInfo("All required validation layers are present.")
		} else {
			core.LogWarn("Required validation layer is missing: VK_LAYER_KHRONOS_validation, continuing without it")
			validation = false
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`: %w", VulkanResultString(res, true), metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	b.context.Instance = instance
	core.LogInfo("Vulkan Instance created.")

	if validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		b.context.debugReport = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return false
	}
	for i := range availableLayers {
		availableLayers[i].Deref()
		end := FindFirstZeroInByteArray(availableLayers[i].LayerName[:])
		if name == vk.ToString(availableLayers[i].LayerName[:end+1]) {
			return true
		}
	}
	return false
}

func (b *Backend) newHandle() metadata.Handle {
	return metadata.Handle(b.nextHandle.Add(1))
}

func (b *Backend) device() vk.Device {
	return b.context.Device.LogicalDevice
}

func (b *Backend) Name() string {
	if b.context.Device == nil {
		return "vulkan"
	}
	return "vulkan:" + vk.ToString(b.context.Device.Properties.DeviceName[:])
}

func (b *Backend) QueueFamilies() []metadata.QueueFamilyProperties {
	return b.families
}

func (b *Backend) GetQueue(family, index uint32) (metadata.Handle, error) {
	if int(family) >= len(b.families) || index >= b.families[family].QueueCount {
		return metadata.NullHandle, fmt.Errorf("queue %d:%d: %w", family, index, core.ErrQueueNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := [2]uint32{family, index}
	if h, ok := b.queueKeys[key]; ok {
		return h, nil
	}
	var queue vk.Queue
	vk.GetDeviceQueue(b.device(), family, index, &queue)
	h := b.newHandle()
	b.queues.put(h, queueEntry{handle: queue, family: family})
	b.queueKeys[key] = h
	return h, nil
}

func (b *Backend) QueueWaitIdle(queue metadata.Handle) error {
	q, err := b.queues.get(queue)
	if err != nil {
		return err
	}
	return metadata.Result(vk.QueueWaitIdle(q.handle)).Err()
}

func (b *Backend) DeviceWaitIdle() error {
	return metadata.Result(vk.DeviceWaitIdle(b.device())).Err()
}

// ImportPipeline hands ownership of a pipeline built outside the renderer to
// the backend. The handle can be adopted with Device.AdoptGraphicsPipeline or
// Device.AdoptComputePipeline.
func (b *Backend) ImportPipeline(p vk.Pipeline) metadata.Handle {
	h := b.newHandle()
	b.pipelines.put(h, p)
	return h
}

func (b *Backend) DestroyObject(kind metadata.ObjectType, h metadata.Handle) {
	if b.destroyed.Load() || h.IsNull() {
		return
	}
	dev := b.device()
	switch kind {
	case metadata.OBJECT_TYPE_BUFFER:
		if e, ok := b.buffers.take(h); ok {
			e.destroy(dev, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_IMAGE:
		if e, ok := b.images.take(h); ok {
			e.destroy(dev, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_IMAGE_VIEW:
		if v, ok := b.imageViews.take(h); ok {
			vk.DestroyImageView(dev, v, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_DEVICE_MEMORY:
		if m, ok := b.memories.take(h); ok {
			vk.FreeMemory(dev, m, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_RENDER_PASS:
		if rp, ok := b.renderPasses.take(h); ok {
			vk.DestroyRenderPass(dev, rp.handle, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_FRAMEBUFFER:
		if fb, ok := b.framebuffers.take(h); ok {
			vk.DestroyFramebuffer(dev, fb, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_DESCRIPTOR_SET_LAYOUT:
		if l, ok := b.setLayouts.take(h); ok {
			vk.DestroyDescriptorSetLayout(dev, l, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_DESCRIPTOR_SET:
		if s, ok := b.descriptorSets.take(h); ok {
			b.descriptorPoolMu.Lock()
			vk.FreeDescriptorSets(dev, b.descriptorPool, 1, []vk.DescriptorSet{s})
			b.descriptorPoolMu.Unlock()
		}
	case metadata.OBJECT_TYPE_PIPELINE_LAYOUT:
		if l, ok := b.pipelineLayouts.take(h); ok {
			vk.DestroyPipelineLayout(dev, l, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_PIPELINE:
		if p, ok := b.pipelines.take(h); ok {
			vk.DestroyPipeline(dev, p, b.context.Allocator)
		}
	case metadata.OBJECT_TYPE_SWAPCHAIN:
		if s, ok := b.swapchains.take(h); ok {
			vk.DestroySwapchain(dev, s, b.context.Allocator)
		}
	default:
		core.LogDebug("vulkan backend does not own %s %s", kind, h)
	}
}

// Destroy releases every object still registered, in the opposite order of creation.
func (b *Backend) Destroy() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}

	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		dev := b.device()
		alloc := b.context.Allocator
		vk.DeviceWaitIdle(dev)

		for _, s := range b.swapchains.drain() {
			vk.DestroySwapchain(dev, s, alloc)
		}
		for _, p := range b.pipelines.drain() {
			vk.DestroyPipeline(dev, p, alloc)
		}
		for _, l := range b.pipelineLayouts.drain() {
			vk.DestroyPipelineLayout(dev, l, alloc)
		}
		// sets go with their pool
		b.descriptorSets.drain()
		if b.descriptorPool != nil {
			vk.DestroyDescriptorPool(dev, b.descriptorPool, alloc)
			b.descriptorPool = nil
		}
		for _, l := range b.setLayouts.drain() {
			vk.DestroyDescriptorSetLayout(dev, l, alloc)
		}
		for _, fb := range b.framebuffers.drain() {
			vk.DestroyFramebuffer(dev, fb, alloc)
		}
		for _, rp := range b.renderPasses.drain() {
			vk.DestroyRenderPass(dev, rp.handle, alloc)
		}
		for _, v := range b.imageViews.drain() {
			vk.DestroyImageView(dev, v, alloc)
		}
		for _, e := range b.images.drain() {
			e.destroy(dev, alloc)
		}
		for _, e := range b.buffers.drain() {
			e.destroy(dev, alloc)
		}
		for _, m := range b.memories.drain() {
			vk.FreeMemory(dev, m, alloc)
		}
		for _, e := range b.events.drain() {
			vk.DestroyEvent(dev, e, alloc)
		}
		for _, s := range b.semaphores.drain() {
			vk.DestroySemaphore(dev, s, alloc)
		}
		for _, f := range b.fences.drain() {
			vk.DestroyFence(dev, f, alloc)
		}
		// command buffers are freed with their pools
		b.commandBuffers.drain()
		for _, p := range b.pools.drain() {
			vk.DestroyCommandPool(dev, p, alloc)
		}
		b.queues.drain()
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(b.context)

	if b.context.Instance != nil {
		if b.context.debugReport != vk.NullDebugReportCallback {
			core.LogDebug("Destroying Vulkan debugger...")
			vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugReport, b.context.Allocator)
			b.context.debugReport = vk.NullDebugReportCallback
		}
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}

	if b.glfw {
		glfw.Terminate()
		b.glfw = false
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
