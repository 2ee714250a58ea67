package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanContext holds the instance level state shared by everything a
// Backend creates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugReport vk.DebugReportCallback

	Device *VulkanDevice
}

// FindMemoryIndex picks a memory type of the selected device allowed by
// typeFilter that has every bit of propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	return findMemoryType(vc.Device.Memory.MemoryTypes[:vc.Device.Memory.MemoryTypeCount], typeFilter, propertyFlags)
}

func findMemoryType(types []vk.MemoryType, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i := range types {
		types[i].Deref()
		if typeFilter&(1<<uint(i)) != 0 && types[i].PropertyFlags&propertyFlags == propertyFlags {
			return uint32(i), true
		}
	}
	return 0, false
}
