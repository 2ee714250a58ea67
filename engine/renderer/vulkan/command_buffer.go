package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) CreateCommandPool(family uint32, flags metadata.CommandPoolCreateFlags) (metadata.Handle, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(b.device(), &poolCreateInfo, b.context.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create command pool for family %d: %w", family, metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.pools.put(h, pool)
	core.LogDebug("Command pool %s created for family %d.", h, family)
	return h, nil
}

func (b *Backend) ResetCommandPool(pool metadata.Handle, flags metadata.CommandPoolResetFlags) error {
	p, err := b.pools.get(pool)
	if err != nil {
		return err
	}
	return metadata.Result(vk.ResetCommandPool(b.device(), p, vk.CommandPoolResetFlags(flags))).Err()
}

// DestroyCommandPool also forgets every command buffer allocated from the pool.
func (b *Backend) DestroyCommandPool(pool metadata.Handle) {
	p, ok := b.pools.take(pool)
	if !ok {
		return
	}
	b.commandBuffers.removeIf(func(e commandBufferEntry) bool { return e.pool == pool })
	vk.DestroyCommandPool(b.device(), p, b.context.Allocator)
}

func (b *Backend) AllocateCommandBuffers(pool metadata.Handle, level metadata.CommandBufferLevel, count uint32) ([]metadata.Handle, error) {
	p, err := b.pools.get(pool)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vk.CommandBufferLevel(level),
		CommandBufferCount: count,
	}
	buffers := make([]vk.CommandBuffer, count)
	if res := vk.AllocateCommandBuffers(b.device(), &allocateInfo, buffers); res != vk.Success {
		err := fmt.Errorf("failed to allocate %d %s command buffers: %w", count, level, metadata.Result(res).Err())
		core.LogError("%s", err)
		return nil, err
	}
	handles := make([]metadata.Handle, count)
	for i, cb := range buffers {
		handles[i] = b.newHandle()
		b.commandBuffers.put(handles[i], commandBufferEntry{handle: cb, pool: pool, level: level})
	}
	return handles, nil
}

func (b *Backend) FreeCommandBuffers(pool metadata.Handle, buffers []metadata.Handle) {
	p, err := b.pools.get(pool)
	if err != nil {
		return
	}
	native := make([]vk.CommandBuffer, 0, len(buffers))
	for _, h := range buffers {
		if e, ok := b.commandBuffers.take(h); ok {
			native = append(native, e.handle)
		}
	}
	if len(native) > 0 {
		vk.FreeCommandBuffers(b.device(), p, uint32(len(native)), native)
	}
}

func (b *Backend) BeginCommandBuffer(cb metadata.Handle, info metadata.CommandBufferBeginInfo) error {
	e, err := b.commandBuffers.get(cb)
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(info.Flags),
	}
	if e.level == metadata.COMMAND_BUFFER_LEVEL_SECONDARY {
		inheritance, err := b.inheritanceInfo(info.Inheritance)
		if err != nil {
			return err
		}
		beginInfo.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{inheritance}
	}
	if res := vk.BeginCommandBuffer(e.handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer %s: %w", cb, metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	return nil
}

// inheritanceInfo is required for every secondary buffer; one that does not
// continue a render pass inherits nothing.
func (b *Backend) inheritanceInfo(in *metadata.InheritanceInfo) (vk.CommandBufferInheritanceInfo, error) {
	info := vk.CommandBufferInheritanceInfo{
		SType: vk.StructureTypeCommandBufferInheritanceInfo,
	}
	if in == nil {
		return info, nil
	}
	rp, err := b.renderPasses.optional(in.RenderPass)
	if err != nil {
		return info, err
	}
	fb, err := b.framebuffers.optional(in.Framebuffer)
	if err != nil {
		return info, err
	}
	info.RenderPass = rp.handle
	info.Subpass = in.Subpass
	info.Framebuffer = fb
	return info, nil
}

func (b *Backend) EndCommandBuffer(cb metadata.Handle) error {
	e, err := b.commandBuffers.get(cb)
	if err != nil {
		return err
	}
	if res := vk.EndCommandBuffer(e.handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer %s: %w", cb, metadata.Result(res).Err())
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (b *Backend) ResetCommandBuffer(cb metadata.Handle, flags metadata.CommandBufferResetFlags) error {
	e, err := b.commandBuffers.get(cb)
	if err != nil {
		return err
	}
	return metadata.Result(vk.ResetCommandBuffer(e.handle, vk.CommandBufferResetFlags(flags))).Err()
}

// Record translates cmd into its vkCmd* call. The renderer validated the
// command before handing it over, so a failure here means a handle the
// backend never saw and is only logged.
func (b *Backend) Record(cb metadata.Handle, cmd metadata.Command) {
	e, err := b.commandBuffers.get(cb)
	if err != nil {
		core.LogError("record %s: %s", cmd.Op(), err)
		return
	}
	if err := b.encode(e.handle, cmd); err != nil {
		core.LogError("record %s into %s: %s", cmd.Op(), cb, err)
	}
}
