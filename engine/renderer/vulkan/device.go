package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	QueueFamilies []vk.QueueFamilyProperties

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	// Sparse binding was enabled on the logical device.
	SparseBinding bool
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Compute              bool
	Transfer             bool
	SparseBinding        bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

func DeviceCreate(context *VulkanContext, requirements *VulkanPhysicalDeviceRequirements) error {
	if err := SelectPhysicalDevice(context, requirements); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// Every queue of every family is created so the renderer can ask for any
	// (family, index) pair later.
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(context.Device.QueueFamilies))
	for i, family := range context.Device.QueueFamilies {
		priorities := make([]float32, family.QueueCount)
		for j := range priorities {
			priorities[j] = 1.0
		}
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(i),
			QueueCount:       family.QueueCount,
			PQueuePriorities: priorities,
		}
	}

	// Request device features.
	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if context.Device.Features.SparseBinding == vk.True {
		deviceFeatures.SparseBinding = vk.True
		deviceFeatures.SparseResidencyBuffer = context.Device.Features.SparseResidencyBuffer
		deviceFeatures.SparseResidencyImage2D = context.Device.Features.SparseResidencyImage2D
		context.Device.SparseBinding = true
	}

	extensionNames := []string{}
	if hasDeviceExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}
	extensionNames = append(extensionNames, requirements.DeviceExtensionNames...)

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var logical vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical); res != vk.Success {
		err := fmt.Errorf("failed to create logical device: %s: %w", VulkanResultString(res, false), metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	context.Device.LogicalDevice = logical

	core.LogInfo("Logical device created.")
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}

	// Destroy logical device
	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	core.LogInfo("Releasing physical device resources...")
	context.Device.PhysicalDevice = nil
	context.Device.QueueFamilies = nil
}

func SelectPhysicalDevice(context *VulkanContext, requirements *VulkanPhysicalDeviceRequirements) error {
	var physicalDeviceCount uint32 = 0
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %w", metadata.Result(res).Err())
	}

	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrInitialization)
		core.LogError("%s", err)
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %w", metadata.Result(res).Err())
	}

	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	for i := 0; i < int(physicalDeviceCount); i++ {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()

		features := vk.PhysicalDeviceFeatures{}
		vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
		features.Deref()

		memory := vk.PhysicalDeviceMemoryProperties{}
		vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
		memory.Deref()

		families, ok := PhysicalDeviceMeetsRequirements(physicalDevices[i], &properties, &features, requirements)
		if !ok {
			continue
		}

		name := vk.ToString(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", name)
		// GPU type, etc.
		switch properties.DeviceType {
		default:
			fallthrough
		case vk.PhysicalDeviceTypeOther:
			core.LogInfo("GPU type is Unknown.")
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Descrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		}

		core.LogInfo(
			"GPU Driver version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.DriverVersion)),
			vk.Version.Minor(vk.Version(properties.DriverVersion)),
			vk.Version.Patch(vk.Version(properties.DriverVersion)),
		)

		// Vulkan API version.
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)

		// Memory information
		for j := 0; j < int(memory.MemoryHeapCount); j++ {
			memory.MemoryHeaps[j].Deref()
			memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
			if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
			} else {
				core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
			}
		}

		context.Device = &VulkanDevice{
			PhysicalDevice: physicalDevices[i],
			QueueFamilies:  families,
			Properties:     properties,
			Features:       features,
			Memory:         memory,
		}
		core.LogInfo("Physical device selected.")
		return nil
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrInitialization)
	core.LogError("%s", err)
	return err
}

// PhysicalDeviceMeetsRequirements returns the device's queue families when
// it satisfies requirements.
func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements) ([]vk.QueueFamilyProperties, bool) {
	// Discrete GPU?
	if requirements.DiscreteGPU {
		if properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
			return nil, false
		}
	}

	var queueFamilyCount uint32 = 0
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	var supported metadata.QueueFlags
	// Look at each queue and see what queues it supports
	core.LogInfo("Graphics | Compute | Transfer | Sparse | Count")
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := queueFlags(queueFamilies[i].QueueFlags)
		supported |= flags
		core.LogInfo("   %5t |   %5t |    %5t |  %5t | %d",
			metadata.HasFlags(flags, metadata.QUEUE_GRAPHICS),
			metadata.HasFlags(flags, metadata.QUEUE_COMPUTE),
			metadata.HasFlags(flags, metadata.QUEUE_TRANSFER),
			metadata.HasFlags(flags, metadata.QUEUE_SPARSE_BINDING),
			queueFamilies[i].QueueCount)
	}

	var want metadata.QueueFlags
	if requirements.Graphics {
		want |= metadata.QUEUE_GRAPHICS
	}
	if requirements.Compute {
		want |= metadata.QUEUE_COMPUTE
	}
	if requirements.Transfer {
		// graphics and compute queues support transfers implicitly
		if !metadata.HasAnyFlag(supported, metadata.QUEUE_GRAPHICS|metadata.QUEUE_COMPUTE|metadata.QUEUE_TRANSFER) {
			core.LogInfo("Device has no transfer capable queue, skipping.")
			return nil, false
		}
	}
	if requirements.SparseBinding {
		want |= metadata.QUEUE_SPARSE_BINDING
	}
	if !metadata.HasFlags(supported, want) {
		core.LogInfo("Device does not meet queue requirements, skipping.")
		return nil, false
	}
	core.LogInfo("Device meets queue requirements.")

	// Device extensions.
	for _, name := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return nil, false
		}
	}

	if requirements.SparseBinding && features.SparseBinding == vk.False {
		core.LogInfo("Device does not support sparseBinding, skipping.")
		return nil, false
	}
	// Device meets all requirements.
	return queueFamilies, true
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var availableExtensionCount uint32 = 0
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, nil); res != vk.Success {
		return false
	}
	if availableExtensionCount == 0 {
		return false
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false
	}
	for i := range availableExtensions {
		availableExtensions[i].Deref()
		end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
		if vk.ToString(availableExtensions[i].ExtensionName[:end+1]) == name {
			return true
		}
	}
	return false
}

// queueFlags keeps the bits the renderer understands.
func queueFlags(flags vk.QueueFlags) metadata.QueueFlags {
	return metadata.QueueFlags(flags) & (metadata.QUEUE_GRAPHICS | metadata.QUEUE_COMPUTE | metadata.QUEUE_TRANSFER | metadata.QUEUE_SPARSE_BINDING)
}
