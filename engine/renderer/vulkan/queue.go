package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) QueueSubmit(queue metadata.Handle, batch *metadata.SubmitBatch, fence metadata.Handle) error {
	q, err := b.queues.get(queue)
	if err != nil {
		return err
	}
	f, err := b.fences.optional(fence)
	if err != nil {
		return err
	}
	submits, err := b.submitInfos(batch)
	if err != nil {
		return err
	}
	if res := vk.QueueSubmit(q.handle, uint32(len(submits)), submits, f); res != vk.Success {
		err := fmt.Errorf("failed to submit %d groups to queue %s: %w", len(submits), queue, metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	return nil
}

// submitInfos unflattens batch into one vk.SubmitInfo per group.
func (b *Backend) submitInfos(batch *metadata.SubmitBatch) ([]vk.SubmitInfo, error) {
	if batch == nil {
		return nil, nil
	}
	submits := make([]vk.SubmitInfo, len(batch.Groups))
	for i := range batch.Groups {
		waits, err := b.semaphores.resolve(batch.GroupWaitSemaphores(i))
		if err != nil {
			return nil, err
		}
		signals, err := b.semaphores.resolve(batch.GroupSignalSemaphores(i))
		if err != nil {
			return nil, err
		}
		buffers := batch.GroupCommandBuffers(i)
		commandBuffers := make([]vk.CommandBuffer, len(buffers))
		for j, h := range buffers {
			e, err := b.commandBuffers.get(h)
			if err != nil {
				return nil, err
			}
			commandBuffers[j] = e.handle
		}
		stages := batch.GroupWaitStages(i)
		waitStages := make([]vk.PipelineStageFlags, len(stages))
		for j, s := range stages {
			waitStages[j] = vk.PipelineStageFlags(s)
		}
		submits[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    waitStages,
			CommandBufferCount:   uint32(len(commandBuffers)),
			PCommandBuffers:      commandBuffers,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	return submits, nil
}

func (b *Backend) QueueBindSparse(queue metadata.Handle, batch *metadata.SparseBatch, fence metadata.Handle) error {
	q, err := b.queues.get(queue)
	if err != nil {
		return err
	}
	f, err := b.fences.optional(fence)
	if err != nil {
		return err
	}
	infos, err := b.bindSparseInfos(batch)
	if err != nil {
		return err
	}
	if res := vk.QueueBindSparse(q.handle, uint32(len(infos)), infos, f); res != vk.Success {
		err := fmt.Errorf("failed to bind sparse memory on queue %s: %w", queue, metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	return nil
}

// bindSparseInfos unflattens batch into one vk.BindSparseInfo per group.
func (b *Backend) bindSparseInfos(batch *metadata.SparseBatch) ([]vk.BindSparseInfo, error) {
	if batch == nil {
		return nil, nil
	}
	infos := make([]vk.BindSparseInfo, len(batch.Groups))
	for i := range batch.Groups {
		waits, err := b.semaphores.resolve(batch.GroupWaitSemaphores(i))
		if err != nil {
			return nil, err
		}
		signals, err := b.semaphores.resolve(batch.GroupSignalSemaphores(i))
		if err != nil {
			return nil, err
		}

		var bufferBinds []vk.SparseBufferMemoryBindInfo
		for _, r := range batch.GroupBufferBinds(i) {
			buf, err := b.buffers.get(r.Resource)
			if err != nil {
				return nil, err
			}
			binds, err := b.sparseMemoryBinds(batch.Binds(r))
			if err != nil {
				return nil, err
			}
			bufferBinds = append(bufferBinds, vk.SparseBufferMemoryBindInfo{
				Buffer:    buf.handle,
				BindCount: uint32(len(binds)),
				PBinds:    binds,
			})
		}

		var opaqueBinds []vk.SparseImageOpaqueMemoryBindInfo
		for _, r := range batch.GroupImageOpaqueBinds(i) {
			img, err := b.images.get(r.Resource)
			if err != nil {
				return nil, err
			}
			binds, err := b.sparseMemoryBinds(batch.Binds(r))
			if err != nil {
				return nil, err
			}
			opaqueBinds = append(opaqueBinds, vk.SparseImageOpaqueMemoryBindInfo{
				Image:     img.handle,
				BindCount: uint32(len(binds)),
				PBinds:    binds,
			})
		}

		var imageBinds []vk.SparseImageMemoryBindInfo
		for _, r := range batch.GroupImageBinds(i) {
			img, err := b.images.get(r.Resource)
			if err != nil {
				return nil, err
			}
			binds, err := b.sparseImageMemoryBinds(batch.ImageRegionBinds(r))
			if err != nil {
				return nil, err
			}
			imageBinds = append(imageBinds, vk.SparseImageMemoryBindInfo{
				Image:     img.handle,
				BindCount: uint32(len(binds)),
				PBinds:    binds,
			})
		}

		infos[i] = vk.BindSparseInfo{
			SType:                vk.StructureTypeBindSparseInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			BufferBindCount:      uint32(len(bufferBinds)),
			PBufferBinds:         bufferBinds,
			ImageOpaqueBindCount: uint32(len(opaqueBinds)),
			PImageOpaqueBinds:    opaqueBinds,
			ImageBindCount:       uint32(len(imageBinds)),
			PImageBinds:          imageBinds,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	return infos, nil
}

// A null memory handle unbinds the range.
func (b *Backend) sparseMemoryBinds(in []metadata.SparseMemoryBind) ([]vk.SparseMemoryBind, error) {
	out := make([]vk.SparseMemoryBind, len(in))
	for i, bind := range in {
		mem, err := b.memories.optional(bind.Memory)
		if err != nil {
			return nil, err
		}
		out[i] = vk.SparseMemoryBind{
			ResourceOffset: vk.DeviceSize(bind.ResourceOffset),
			Size:           vk.DeviceSize(bind.Size),
			Memory:         mem,
			MemoryOffset:   vk.DeviceSize(bind.MemoryOffset),
			Flags:          vk.SparseMemoryBindFlags(bind.Flags),
		}
	}
	return out, nil
}

func (b *Backend) sparseImageMemoryBinds(in []metadata.SparseImageMemoryBind) ([]vk.SparseImageMemoryBind, error) {
	out := make([]vk.SparseImageMemoryBind, len(in))
	for i, bind := range in {
		mem, err := b.memories.optional(bind.Memory)
		if err != nil {
			return nil, err
		}
		out[i] = vk.SparseImageMemoryBind{
			Subresource: vk.ImageSubresource{
				AspectMask: vk.ImageAspectFlags(bind.Subresource.AspectMask),
				MipLevel:   bind.Subresource.MipLevel,
				ArrayLayer: bind.Subresource.ArrayLayer,
			},
			Offset:       offset3D(bind.Offset),
			Extent:       extent3D(bind.Extent),
			Memory:       mem,
			MemoryOffset: vk.DeviceSize(bind.MemoryOffset),
			Flags:        vk.SparseMemoryBindFlags(bind.Flags),
		}
	}
	return out, nil
}

func (b *Backend) QueuePresent(queue metadata.Handle, batch *metadata.PresentBatch, results []metadata.Result) error {
	q, err := b.queues.get(queue)
	if err != nil {
		return err
	}
	waits, err := b.semaphores.resolve(batch.WaitSemaphores)
	if err != nil {
		return err
	}
	swapchains, err := b.swapchains.resolve(batch.Swapchains)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      batch.ImageIndices,
		PResults:           make([]vk.Result, len(swapchains)),
	}
	res := vk.QueuePresent(q.handle, &presentInfo)
	presentInfo.Deref()
	for i := range results {
		if i < len(presentInfo.PResults) {
			results[i] = metadata.Result(presentInfo.PResults[i])
		}
	}
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		core.LogDebug("present on queue %s: %s", queue, VulkanResultString(res, false))
	default:
		core.LogError("present on queue %s failed: %s", queue, VulkanResultString(res, true))
	}
	return metadata.Result(res).Err()
}
