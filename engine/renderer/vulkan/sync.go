package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) CreateFence(signaled bool) (metadata.Handle, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(b.device(), &fenceCreateInfo, b.context.Allocator, &fence); res != vk.Success {
		err := fmt.Errorf("failed to create fence: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.fences.put(h, fence)
	return h, nil
}

func (b *Backend) DestroyFence(fence metadata.Handle) {
	if f, ok := b.fences.take(fence); ok {
		vk.DestroyFence(b.device(), f, b.context.Allocator)
	}
}

func (b *Backend) GetFenceStatus(fence metadata.Handle) (metadata.Result, error) {
	f, err := b.fences.get(fence)
	if err != nil {
		return metadata.RESULT_ERROR_UNKNOWN, err
	}
	res := metadata.Result(vk.GetFenceStatus(b.device(), f))
	return res, res.Err()
}

func (b *Backend) WaitForFences(fences []metadata.Handle, waitAll bool, timeoutNs uint64) (bool, error) {
	native, err := b.fences.resolve(fences)
	if err != nil {
		return false, err
	}
	if len(native) == 0 {
		return true, nil
	}
	all := vk.Bool32(vk.False)
	if waitAll {
		all = vk.True
	}
	result := vk.WaitForFences(b.device(), uint32(len(native)), native, all, timeoutNs)
	switch result {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result, true))
	}
	return false, metadata.Result(result).Err()
}

func (b *Backend) ResetFences(fences []metadata.Handle) error {
	native, err := b.fences.resolve(fences)
	if err != nil {
		return err
	}
	if len(native) == 0 {
		return nil
	}
	if res := vk.ResetFences(b.device(), uint32(len(native)), native); res != vk.Success {
		err := fmt.Errorf("failed to reset fences: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (b *Backend) CreateSemaphore() (metadata.Handle, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(b.device(), &semaphoreCreateInfo, b.context.Allocator, &semaphore); res != vk.Success {
		err := fmt.Errorf("failed to create semaphore: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.semaphores.put(h, semaphore)
	return h, nil
}

func (b *Backend) DestroySemaphore(semaphore metadata.Handle) {
	if s, ok := b.semaphores.take(semaphore); ok {
		vk.DestroySemaphore(b.device(), s, b.context.Allocator)
	}
}

func (b *Backend) CreateEvent() (metadata.Handle, error) {
	eventCreateInfo := vk.EventCreateInfo{
		SType: vk.StructureTypeEventCreateInfo,
	}
	var event vk.Event
	if res := vk.CreateEvent(b.device(), &eventCreateInfo, b.context.Allocator, &event); res != vk.Success {
		err := fmt.Errorf("failed to create event: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.events.put(h, event)
	return h, nil
}

func (b *Backend) DestroyEvent(event metadata.Handle) {
	if e, ok := b.events.take(event); ok {
		vk.DestroyEvent(b.device(), e, b.context.Allocator)
	}
}

func (b *Backend) SetEvent(event metadata.Handle) error {
	e, err := b.events.get(event)
	if err != nil {
		return err
	}
	return metadata.Result(vk.SetEvent(b.device(), e)).Err()
}

func (b *Backend) ResetEvent(event metadata.Handle) error {
	e, err := b.events.get(event)
	if err != nil {
		return err
	}
	return metadata.Result(vk.ResetEvent(b.device(), e)).Err()
}

// GetEventStatus reports RESULT_EVENT_SET or RESULT_EVENT_RESET as seen by the device.
func (b *Backend) GetEventStatus(event metadata.Handle) (metadata.Result, error) {
	e, err := b.events.get(event)
	if err != nil {
		return metadata.RESULT_ERROR_UNKNOWN, err
	}
	res := metadata.Result(vk.GetEventStatus(b.device(), e))
	return res, res.Err()
}
