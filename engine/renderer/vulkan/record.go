package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) encode(cb vk.CommandBuffer, cmd metadata.Command) error {
	switch c := cmd.(type) {
	case metadata.CmdBindPipeline:
		p, err := b.pipelines.get(c.Pipeline)
		if err != nil {
			return err
		}
		vk.CmdBindPipeline(cb, vk.PipelineBindPoint(c.BindPoint), p)

	case metadata.CmdBindDescriptorSets:
		layout, err := b.pipelineLayouts.get(c.Layout)
		if err != nil {
			return err
		}
		sets, err := b.descriptorSets.resolve(c.Sets)
		if err != nil {
			return err
		}
		vk.CmdBindDescriptorSets(cb, vk.PipelineBindPoint(c.BindPoint), layout, c.FirstSet,
			uint32(len(sets)), sets, uint32(len(c.DynamicOffsets)), c.DynamicOffsets)

	case metadata.CmdBindVertexBuffers:
		entries, err := b.buffers.resolve(c.Buffers)
		if err != nil {
			return err
		}
		buffers := make([]vk.Buffer, len(entries))
		offsets := make([]vk.DeviceSize, len(entries))
		for i, e := range entries {
			buffers[i] = e.handle
			if i < len(c.Offsets) {
				offsets[i] = vk.DeviceSize(c.Offsets[i])
			}
		}
		vk.CmdBindVertexBuffers(cb, c.FirstBinding, uint32(len(buffers)), buffers, offsets)

	case metadata.CmdBindIndexBuffer:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		vk.CmdBindIndexBuffer(cb, buf.handle, vk.DeviceSize(c.Offset), vk.IndexType(c.IndexType))

	case metadata.CmdPushConstants:
		layout, err := b.pipelineLayouts.get(c.Layout)
		if err != nil {
			return err
		}
		if len(c.Data) == 0 {
			return nil
		}
		vk.CmdPushConstants(cb, layout, vk.ShaderStageFlags(c.StageFlags), c.Offset, uint32(len(c.Data)), unsafe.Pointer(&c.Data[0]))

	case metadata.CmdDraw:
		vk.CmdDraw(cb, c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)

	case metadata.CmdDrawIndexed:
		vk.CmdDrawIndexed(cb, c.IndexCount, c.InstanceCount, c.FirstIndex, c.VertexOffset, c.FirstInstance)

	case metadata.CmdDrawIndirect:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		if c.Indexed {
			vk.CmdDrawIndexedIndirect(cb, buf.handle, vk.DeviceSize(c.Offset), c.DrawCount, c.Stride)
		} else {
			vk.CmdDrawIndirect(cb, buf.handle, vk.DeviceSize(c.Offset), c.DrawCount, c.Stride)
		}

	case metadata.CmdDispatch:
		vk.CmdDispatch(cb, c.GroupCountX, c.GroupCountY, c.GroupCountZ)

	case metadata.CmdDispatchIndirect:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		vk.CmdDispatchIndirect(cb, buf.handle, vk.DeviceSize(c.Offset))

	case metadata.CmdCopyBuffer:
		src, err := b.buffers.get(c.Src)
		if err != nil {
			return err
		}
		dst, err := b.buffers.get(c.Dst)
		if err != nil {
			return err
		}
		regions := bufferCopies(c.Regions)
		vk.CmdCopyBuffer(cb, src.handle, dst.handle, uint32(len(regions)), regions)

	case metadata.CmdCopyImage:
		src, err := b.images.get(c.Src)
		if err != nil {
			return err
		}
		dst, err := b.images.get(c.Dst)
		if err != nil {
			return err
		}
		regions := imageCopies(c.Regions)
		vk.CmdCopyImage(cb, src.handle, vk.ImageLayout(c.SrcLayout), dst.handle, vk.ImageLayout(c.DstLayout), uint32(len(regions)), regions)

	case metadata.CmdCopyBufferToImage:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		img, err := b.images.get(c.Image)
		if err != nil {
			return err
		}
		regions := bufferImageCopies(c.Regions)
		vk.CmdCopyBufferToImage(cb, buf.handle, img.handle, vk.ImageLayout(c.ImageLayout), uint32(len(regions)), regions)

	case metadata.CmdCopyImageToBuffer:
		img, err := b.images.get(c.Image)
		if err != nil {
			return err
		}
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		regions := bufferImageCopies(c.Regions)
		vk.CmdCopyImageToBuffer(cb, img.handle, vk.ImageLayout(c.ImageLayout), buf.handle, uint32(len(regions)), regions)

	case metadata.CmdBlitImage:
		src, err := b.images.get(c.Src)
		if err != nil {
			return err
		}
		dst, err := b.images.get(c.Dst)
		if err != nil {
			return err
		}
		regions := imageBlits(c.Regions)
		vk.CmdBlitImage(cb, src.handle, vk.ImageLayout(c.SrcLayout), dst.handle, vk.ImageLayout(c.DstLayout), uint32(len(regions)), regions, vk.Filter(c.Filter))

	case metadata.CmdFillBuffer:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		vk.CmdFillBuffer(cb, buf.handle, vk.DeviceSize(c.Offset), vk.DeviceSize(c.Size), c.Data)

	case metadata.CmdUpdateBuffer:
		buf, err := b.buffers.get(c.Buffer)
		if err != nil {
			return err
		}
		if len(c.Data) == 0 {
			return nil
		}
		vk.CmdUpdateBuffer(cb, buf.handle, vk.DeviceSize(c.Offset), vk.DeviceSize(len(c.Data)), unsafe.Pointer(&c.Data[0]))

	case metadata.CmdClearColorImage:
		img, err := b.images.get(c.Image)
		if err != nil {
			return err
		}
		color := clearColor(c.Color)
		ranges := subresourceRanges(c.Ranges)
		vk.CmdClearColorImage(cb, img.handle, vk.ImageLayout(c.Layout), &color, uint32(len(ranges)), ranges)

	case metadata.CmdClearDepthStencilImage:
		img, err := b.images.get(c.Image)
		if err != nil {
			return err
		}
		value := vk.ClearDepthStencilValue{Depth: c.Value.Depth, Stencil: c.Value.Stencil}
		ranges := subresourceRanges(c.Ranges)
		vk.CmdClearDepthStencilImage(cb, img.handle, vk.ImageLayout(c.Layout), &value, uint32(len(ranges)), ranges)

	case metadata.CmdClearAttachments:
		attachments := clearAttachments(c.Attachments)
		rects := clearRects(c.Rects)
		vk.CmdClearAttachments(cb, uint32(len(attachments)), attachments, uint32(len(rects)), rects)

	case metadata.CmdSetViewport:
		vps := viewports(c.Viewports)
		vk.CmdSetViewport(cb, c.FirstViewport, uint32(len(vps)), vps)

	case metadata.CmdSetScissor:
		scissors := rects2D(c.Scissors)
		vk.CmdSetScissor(cb, c.FirstScissor, uint32(len(scissors)), scissors)

	case metadata.CmdSetLineWidth:
		vk.CmdSetLineWidth(cb, c.Width)

	case metadata.CmdSetDepthBias:
		vk.CmdSetDepthBias(cb, c.ConstantFactor, c.Clamp, c.SlopeFactor)

	case metadata.CmdSetBlendConstants:
		constants := c.Constants
		vk.CmdSetBlendConstants(cb, &constants)

	case metadata.CmdSetDepthBounds:
		vk.CmdSetDepthBounds(cb, c.Min, c.Max)

	case metadata.CmdSetStencilCompareMask:
		vk.CmdSetStencilCompareMask(cb, vk.StencilFaceFlags(c.FaceMask), c.Mask)

	case metadata.CmdSetStencilWriteMask:
		vk.CmdSetStencilWriteMask(cb, vk.StencilFaceFlags(c.FaceMask), c.Mask)

	case metadata.CmdSetStencilReference:
		vk.CmdSetStencilReference(cb, vk.StencilFaceFlags(c.FaceMask), c.Reference)

	case metadata.CmdPipelineBarrier:
		nb, err := b.barriers(c.Barriers)
		if err != nil {
			return err
		}
		vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(c.SrcStage), vk.PipelineStageFlags(c.DstStage), vk.DependencyFlags(c.Dependency),
			uint32(len(nb.memory)), nb.memory,
			uint32(len(nb.buffer)), nb.buffer,
			uint32(len(nb.image)), nb.image)

	case metadata.CmdSetEvent:
		ev, err := b.events.get(c.Event)
		if err != nil {
			return err
		}
		vk.CmdSetEvent(cb, ev, vk.PipelineStageFlags(c.Stage))

	case metadata.CmdResetEvent:
		ev, err := b.events.get(c.Event)
		if err != nil {
			return err
		}
		vk.CmdResetEvent(cb, ev, vk.PipelineStageFlags(c.Stage))

	case metadata.CmdWaitEvents:
		events, err := b.events.resolve(c.Events)
		if err != nil {
			return err
		}
		nb, err := b.barriers(c.Barriers)
		if err != nil {
			return err
		}
		vk.CmdWaitEvents(cb, uint32(len(events)), events, vk.PipelineStageFlags(c.SrcStage), vk.PipelineStageFlags(c.DstStage),
			uint32(len(nb.memory)), nb.memory,
			uint32(len(nb.buffer)), nb.buffer,
			uint32(len(nb.image)), nb.image)

	case metadata.CmdBeginRenderPass:
		rp, err := b.renderPasses.get(c.RenderPass)
		if err != nil {
			return err
		}
		fb, err := b.framebuffers.get(c.Framebuffer)
		if err != nil {
			return err
		}
		clearValues := rp.clearValues(c.ClearValues)
		beginInfo := vk.RenderPassBeginInfo{
			SType:           vk.StructureTypeRenderPassBeginInfo,
			RenderPass:      rp.handle,
			Framebuffer:     fb,
			RenderArea:      rect2D(c.RenderArea),
			ClearValueCount: uint32(len(clearValues)),
			PClearValues:    clearValues,
		}
		vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContents(c.Contents))

	case metadata.CmdNextSubpass:
		vk.CmdNextSubpass(cb, vk.SubpassContents(c.Contents))

	case metadata.CmdEndRenderPass:
		vk.CmdEndRenderPass(cb)

	case metadata.CmdExecuteCommands:
		secondaries := make([]vk.CommandBuffer, len(c.CommandBuffers))
		for i, h := range c.CommandBuffers {
			e, err := b.commandBuffers.get(h)
			if err != nil {
				return err
			}
			secondaries[i] = e.handle
		}
		if len(secondaries) > 0 {
			vk.CmdExecuteCommands(cb, uint32(len(secondaries)), secondaries)
		}

	default:
		return fmt.Errorf("%s: %w", cmd.Op(), core.ErrUnsupported)
	}
	return nil
}
