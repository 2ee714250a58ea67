package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type BufferMemoryBarrier struct {
	SrcAccessMask       metadata.AccessFlags
	DstAccessMask       metadata.AccessFlags
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Buffer              *Buffer
	Offset              uint64
	Size                uint64
}

type ImageMemoryBarrier struct {
	SrcAccessMask       metadata.AccessFlags
	DstAccessMask       metadata.AccessFlags
	OldLayout           metadata.ImageLayout
	NewLayout           metadata.ImageLayout
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Image               *Image
	SubresourceRange    metadata.ImageSubresourceRange
}

// MemoryBarrierSet groups the global, buffer and image barriers of one
// PipelineBarrier or WaitForEvents call.
type MemoryBarrierSet struct {
	Memory  []metadata.MemoryBarrier
	Buffers []BufferMemoryBarrier
	Images  []ImageMemoryBarrier
}

func (s *MemoryBarrierSet) AddMemoryBarrier(b metadata.MemoryBarrier) *MemoryBarrierSet {
	s.Memory = append(s.Memory, b)
	return s
}

func (s *MemoryBarrierSet) AddBufferBarrier(b BufferMemoryBarrier) *MemoryBarrierSet {
	s.Buffers = append(s.Buffers, b)
	return s
}

func (s *MemoryBarrierSet) AddImageBarrier(b ImageMemoryBarrier) *MemoryBarrierSet {
	s.Images = append(s.Images, b)
	return s
}

func (s *MemoryBarrierSet) native() (metadata.Barriers, []Resource, error) {
	out := metadata.Barriers{Memory: s.Memory}
	var refs []Resource
	for _, b := range s.Buffers {
		if b.Buffer == nil {
			return out, nil, core.ErrNilResource
		}
		out.Buffer = append(out.Buffer, metadata.BufferMemoryBarrier{
			SrcAccessMask:       b.SrcAccessMask,
			DstAccessMask:       b.DstAccessMask,
			SrcQueueFamilyIndex: b.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: b.DstQueueFamilyIndex,
			Buffer:              b.Buffer.handle,
			Offset:              b.Offset,
			Size:                b.Size,
		})
		refs = append(refs, b.Buffer)
	}
	for _, b := range s.Images {
		if b.Image == nil {
			return out, nil, core.ErrNilResource
		}
		out.Image = append(out.Image, metadata.ImageMemoryBarrier{
			SrcAccessMask:       b.SrcAccessMask,
			DstAccessMask:       b.DstAccessMask,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: b.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: b.DstQueueFamilyIndex,
			Image:               b.Image.handle,
			SubresourceRange:    b.SubresourceRange,
		})
		refs = append(refs, b.Image)
	}
	return out, refs, nil
}

// record encodes cmd if the buffer is recording. check, when set, runs
// under the buffer lock after the state check; refs are retained only once
// the command is accepted.
func (cb *commandBuffer) record(cmd metadata.Command, check func() error, refs ...Resource) error {
	dev, err := cb.Device()
	if err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	op := cmd.Op().String()
	if cb.state != COMMAND_BUFFER_STATE_RECORDING {
		return cb.protocolError(op, core.ErrNotRecording)
	}
	for _, r := range refs {
		if isNilResource(r) {
			return cb.protocolError(op, core.ErrNilResource)
		}
	}
	if check != nil {
		if err := check(); err != nil {
			return cb.protocolError(op, err)
		}
	}
	cb.refs.Add(refs...)
	dev.backend.Record(cb.handle, cmd)
	return nil
}

// invalidCall reports a call rejected before its command could be built.
func (cb *commandBuffer) invalidCall(op metadata.Opcode, err error) error {
	cb.mu.Lock()
	recording := cb.state == COMMAND_BUFFER_STATE_RECORDING
	cb.mu.Unlock()
	if !recording {
		err = core.ErrNotRecording
	}
	return cb.protocolError(op.String(), err)
}

// BindPipeline binds p at its bind point. Binding the pipeline that is
// already bound there encodes nothing.
func (cb *commandBuffer) BindPipeline(p *Pipeline) error {
	if p == nil {
		return cb.invalidCall(metadata.OP_BIND_PIPELINE, core.ErrNilResource)
	}
	dev, err := cb.Device()
	if err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != COMMAND_BUFFER_STATE_RECORDING {
		return cb.protocolError(metadata.OP_BIND_PIPELINE.String(), core.ErrNotRecording)
	}
	if !cb.bindings.Bind(p) {
		dev.metrics.PipelineBindsElided.Add(1)
		return nil
	}
	cb.refs.Add(p)
	dev.backend.Record(cb.handle, metadata.CmdBindPipeline{BindPoint: p.BindPoint(), Pipeline: p.handle})
	dev.metrics.PipelineBindsEncoded.Add(1)
	return nil
}

func (cb *commandBuffer) BindDescriptorSets(bindPoint metadata.PipelineBindPoint, layout *PipelineLayout, firstSet uint32, sets []*DescriptorSet, dynamicOffsets ...uint32) error {
	if layout == nil {
		return cb.invalidCall(metadata.OP_BIND_DESCRIPTOR_SETS, core.ErrNilResource)
	}
	cmd := metadata.CmdBindDescriptorSets{
		BindPoint:      bindPoint,
		Layout:         layout.handle,
		FirstSet:       firstSet,
		DynamicOffsets: dynamicOffsets,
	}
	refs := []Resource{layout}
	for _, s := range sets {
		if s == nil {
			return cb.invalidCall(metadata.OP_BIND_DESCRIPTOR_SETS, core.ErrNilResource)
		}
		cmd.Sets = append(cmd.Sets, s.handle)
		refs = append(refs, s)
	}
	return cb.record(cmd, func() error {
		return cb.observer.descriptorSetsBound(layout, firstSet, sets)
	}, refs...)
}

func (cb *commandBuffer) BindVertexBuffers(firstBinding uint32, buffers []*Buffer, offsets []uint64) error {
	if len(buffers) != len(offsets) {
		return cb.invalidCall(metadata.OP_BIND_VERTEX_BUFFERS,
			fmt.Errorf("%d buffers, %d offsets: %w", len(buffers), len(offsets), core.ErrInvalidArgument))
	}
	cmd := metadata.CmdBindVertexBuffers{FirstBinding: firstBinding, Offsets: offsets}
	refs := make([]Resource, 0, len(buffers))
	for _, b := range buffers {
		if b == nil {
			return cb.invalidCall(metadata.OP_BIND_VERTEX_BUFFERS, core.ErrNilResource)
		}
		cmd.Buffers = append(cmd.Buffers, b.handle)
		refs = append(refs, b)
	}
	return cb.record(cmd, nil, refs...)
}

func (cb *commandBuffer) BindVertexBuffer(binding uint32, buffer *Buffer, offset uint64) error {
	return cb.BindVertexBuffers(binding, []*Buffer{buffer}, []uint64{offset})
}

func (cb *commandBuffer) BindIndexBuffer(buffer *Buffer, offset uint64, indexType metadata.IndexType) error {
	if buffer == nil {
		return cb.invalidCall(metadata.OP_BIND_INDEX_BUFFER, core.ErrNilResource)
	}
	return cb.record(metadata.CmdBindIndexBuffer{Buffer: buffer.handle, Offset: offset, IndexType: indexType}, nil, buffer)
}

func (cb *commandBuffer) PushConstants(layout *PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) error {
	if layout == nil {
		return cb.invalidCall(metadata.OP_PUSH_CONSTANTS, core.ErrNilResource)
	}
	return cb.record(metadata.CmdPushConstants{
		Layout:     layout.handle,
		StageFlags: stages,
		Offset:     offset,
		Data:       append([]byte(nil), data...),
	}, func() error {
		return metadata.CheckPushConstants(layout.pushRanges, stages, offset, uint32(len(data)))
	}, layout)
}

func (cb *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	return cb.record(metadata.CmdDraw{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	}, nil)
}

func (cb *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	return cb.record(metadata.CmdDrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	}, nil)
}

func (cb *commandBuffer) DrawIndirect(buffer *Buffer, offset uint64, drawCount, stride uint32) error {
	return cb.drawIndirect(buffer, offset, drawCount, stride, false)
}

func (cb *commandBuffer) DrawIndexedIndirect(buffer *Buffer, offset uint64, drawCount, stride uint32) error {
	return cb.drawIndirect(buffer, offset, drawCount, stride, true)
}

func (cb *commandBuffer) drawIndirect(buffer *Buffer, offset uint64, drawCount, stride uint32, indexed bool) error {
	cmd := metadata.CmdDrawIndirect{Offset: offset, DrawCount: drawCount, Stride: stride, Indexed: indexed}
	if buffer == nil {
		return cb.invalidCall(cmd.Op(), core.ErrNilResource)
	}
	cmd.Buffer = buffer.handle
	return cb.record(cmd, nil, buffer)
}

func (cb *commandBuffer) Dispatch(groupCountX, groupCountY, groupCountZ uint32) error {
	return cb.record(metadata.CmdDispatch{
		GroupCountX: groupCountX,
		GroupCountY: groupCountY,
		GroupCountZ: groupCountZ,
	}, nil)
}

func (cb *commandBuffer) DispatchIndirect(buffer *Buffer, offset uint64) error {
	if buffer == nil {
		return cb.invalidCall(metadata.OP_DISPATCH_INDIRECT, core.ErrNilResource)
	}
	return cb.record(metadata.CmdDispatchIndirect{Buffer: buffer.handle, Offset: offset}, nil, buffer)
}

func (cb *commandBuffer) CopyBuffer(src, dst *Buffer, regions ...metadata.BufferCopy) error {
	if src == nil || dst == nil {
		return cb.invalidCall(metadata.OP_COPY_BUFFER, core.ErrNilResource)
	}
	return cb.record(metadata.CmdCopyBuffer{Src: src.handle, Dst: dst.handle, Regions: regions}, nil, src, dst)
}

func (cb *commandBuffer) CopyImage(src *Image, srcLayout metadata.ImageLayout, dst *Image, dstLayout metadata.ImageLayout, regions ...metadata.ImageCopy) error {
	if src == nil || dst == nil {
		return cb.invalidCall(metadata.OP_COPY_IMAGE, core.ErrNilResource)
	}
	return cb.record(metadata.CmdCopyImage{
		Src:       src.handle,
		SrcLayout: srcLayout,
		Dst:       dst.handle,
		DstLayout: dstLayout,
		Regions:   regions,
	}, nil, src, dst)
}

func (cb *commandBuffer) CopyBufferToImage(src *Buffer, dst *Image, dstLayout metadata.ImageLayout, regions ...metadata.BufferImageCopy) error {
	if src == nil || dst == nil {
		return cb.invalidCall(metadata.OP_COPY_BUFFER_TO_IMAGE, core.ErrNilResource)
	}
	return cb.record(metadata.CmdCopyBufferToImage{
		Buffer:      src.handle,
		Image:       dst.handle,
		ImageLayout: dstLayout,
		Regions:     regions,
	}, nil, src, dst)
}

func (cb *commandBuffer) CopyImageToBuffer(src *Image, srcLayout metadata.ImageLayout, dst *Buffer, regions ...metadata.BufferImageCopy) error {
	if src == nil || dst == nil {
		return cb.invalidCall(metadata.OP_COPY_IMAGE_TO_BUFFER, core.ErrNilResource)
	}
	return cb.record(metadata.CmdCopyImageToBuffer{
		Image:       src.handle,
		ImageLayout: srcLayout,
		Buffer:      dst.handle,
		Regions:     regions,
	}, nil, src, dst)
}

func (cb *commandBuffer) BlitImage(src *Image, srcLayout metadata.ImageLayout, dst *Image, dstLayout metadata.ImageLayout, filter metadata.Filter, regions ...metadata.ImageBlit) error {
	if src == nil || dst == nil {
		return cb.invalidCall(metadata.OP_BLIT_IMAGE, core.ErrNilResource)
	}
	return cb.record(metadata.CmdBlitImage{
		Src:       src.handle,
		SrcLayout: srcLayout,
		Dst:       dst.handle,
		DstLayout: dstLayout,
		Regions:   regions,
		Filter:    filter,
	}, nil, src, dst)
}

func (cb *commandBuffer) FillBuffer(dst *Buffer, offset, size uint64, data uint32) error {
	if dst == nil {
		return cb.invalidCall(metadata.OP_FILL_BUFFER, core.ErrNilResource)
	}
	return cb.record(metadata.CmdFillBuffer{Buffer: dst.handle, Offset: offset, Size: size, Data: data}, nil, dst)
}

func (cb *commandBuffer) UpdateBuffer(dst *Buffer, offset uint64, data []byte) error {
	if dst == nil {
		return cb.invalidCall(metadata.OP_UPDATE_BUFFER, core.ErrNilResource)
	}
	return cb.record(metadata.CmdUpdateBuffer{
		Buffer: dst.handle,
		Offset: offset,
		Data:   append([]byte(nil), data...),
	}, func() error {
		return metadata.CheckUpdateBuffer(dst.Size(), offset, uint64(len(data)))
	}, dst)
}

func (cb *commandBuffer) ClearColorImage(image *Image, layout metadata.ImageLayout, color [4]float32, ranges ...metadata.ImageSubresourceRange) error {
	if image == nil {
		return cb.invalidCall(metadata.OP_CLEAR_COLOR_IMAGE, core.ErrNilResource)
	}
	return cb.record(metadata.CmdClearColorImage{Image: image.handle, Layout: layout, Color: color, Ranges: ranges}, nil, image)
}

func (cb *commandBuffer) ClearDepthStencilImage(image *Image, layout metadata.ImageLayout, value metadata.ClearDepthStencilValue, ranges ...metadata.ImageSubresourceRange) error {
	if image == nil {
		return cb.invalidCall(metadata.OP_CLEAR_DEPTH_STENCIL_IMAGE, core.ErrNilResource)
	}
	return cb.record(metadata.CmdClearDepthStencilImage{Image: image.handle, Layout: layout, Value: value, Ranges: ranges}, nil, image)
}

func (cb *commandBuffer) ClearAttachments(attachments []metadata.ClearAttachment, rects []metadata.ClearRect) error {
	return cb.record(metadata.CmdClearAttachments{Attachments: attachments, Rects: rects}, nil)
}

func (cb *commandBuffer) SetViewport(first uint32, viewports ...metadata.Viewport) error {
	return cb.record(metadata.CmdSetViewport{FirstViewport: first, Viewports: viewports}, nil)
}

func (cb *commandBuffer) SetScissor(first uint32, scissors ...metadata.Rect2D) error {
	return cb.record(metadata.CmdSetScissor{FirstScissor: first, Scissors: scissors}, nil)
}

func (cb *commandBuffer) SetLineWidth(width float32) error {
	return cb.record(metadata.CmdSetLineWidth{Width: width}, nil)
}

func (cb *commandBuffer) SetDepthBias(constantFactor, clamp, slopeFactor float32) error {
	return cb.record(metadata.CmdSetDepthBias{ConstantFactor: constantFactor, Clamp: clamp, SlopeFactor: slopeFactor}, nil)
}

func (cb *commandBuffer) SetBlendConstants(constants [4]float32) error {
	return cb.record(metadata.CmdSetBlendConstants{Constants: constants}, nil)
}

func (cb *commandBuffer) SetDepthBounds(min, max float32) error {
	return cb.record(metadata.CmdSetDepthBounds{Min: min, Max: max}, nil)
}

func (cb *commandBuffer) SetStencilCompareMask(faces metadata.StencilFaceFlags, mask uint32) error {
	return cb.record(metadata.CmdSetStencilCompareMask{FaceMask: faces, Mask: mask}, nil)
}

func (cb *commandBuffer) SetStencilWriteMask(faces metadata.StencilFaceFlags, mask uint32) error {
	return cb.record(metadata.CmdSetStencilWriteMask{FaceMask: faces, Mask: mask}, nil)
}

func (cb *commandBuffer) SetStencilReference(faces metadata.StencilFaceFlags, reference uint32) error {
	return cb.record(metadata.CmdSetStencilReference{FaceMask: faces, Reference: reference}, nil)
}

func (cb *commandBuffer) PipelineBarrier(srcStage, dstStage metadata.PipelineStageFlags, dependency metadata.DependencyFlags, barriers MemoryBarrierSet) error {
	native, refs, err := barriers.native()
	if err != nil {
		return cb.invalidCall(metadata.OP_PIPELINE_BARRIER, err)
	}
	return cb.record(metadata.CmdPipelineBarrier{
		SrcStage:   srcStage,
		DstStage:   dstStage,
		Dependency: dependency,
		Barriers:   native,
	}, func() error {
		for _, b := range barriers.Images {
			cb.observer.imageTransitioned(b.Image, b.NewLayout)
		}
		return nil
	}, refs...)
}

// SetEvent records a device side set of e once stage has completed.
func (cb *commandBuffer) SetEvent(e *Event, stage metadata.PipelineStageFlags) error {
	if e == nil {
		return cb.invalidCall(metadata.OP_SET_EVENT, core.ErrNilResource)
	}
	return cb.record(metadata.CmdSetEvent{Event: e.handle, Stage: stage}, nil, e)
}

func (cb *commandBuffer) ResetEvent(e *Event, stage metadata.PipelineStageFlags) error {
	if e == nil {
		return cb.invalidCall(metadata.OP_RESET_EVENT, core.ErrNilResource)
	}
	return cb.record(metadata.CmdResetEvent{Event: e.handle, Stage: stage}, nil, e)
}

func (cb *commandBuffer) WaitForEvent(e *Event, srcStage, dstStage metadata.PipelineStageFlags, barriers MemoryBarrierSet) error {
	return cb.WaitForEvents([]*Event{e}, srcStage, dstStage, barriers)
}

// WaitForEvents makes dstStage of later commands wait until every event is set.
func (cb *commandBuffer) WaitForEvents(events []*Event, srcStage, dstStage metadata.PipelineStageFlags, barriers MemoryBarrierSet) error {
	native, refs, err := barriers.native()
	if err != nil {
		return cb.invalidCall(metadata.OP_WAIT_EVENTS, err)
	}
	cmd := metadata.CmdWaitEvents{SrcStage: srcStage, DstStage: dstStage, Barriers: native}
	for _, e := range events {
		if e == nil {
			return cb.invalidCall(metadata.OP_WAIT_EVENTS, core.ErrNilResource)
		}
		cmd.Events = append(cmd.Events, e.handle)
		refs = append(refs, e)
	}
	return cb.record(cmd, func() error {
		for _, b := range barriers.Images {
			cb.observer.imageTransitioned(b.Image, b.NewLayout)
		}
		return nil
	}, refs...)
}

// BeginRenderPass starts rp on fb. A nil rp means the render pass fb was created for.
func (cb *CommandBuffer) BeginRenderPass(fb *Framebuffer, rp *RenderPass, renderArea metadata.Rect2D, contents metadata.SubpassContents, clearValues ...metadata.ClearValue) error {
	if fb == nil {
		return cb.invalidCall(metadata.OP_BEGIN_RENDER_PASS, core.ErrNilResource)
	}
	if rp == nil {
		rp = fb.renderPass
	}
	if !rp.CompatibleWith(fb.renderPass) {
		return cb.invalidCall(metadata.OP_BEGIN_RENDER_PASS, core.ErrIncompatibleRenderPass)
	}
	return cb.record(metadata.CmdBeginRenderPass{
		RenderPass:  rp.handle,
		Framebuffer: fb.handle,
		RenderArea:  renderArea,
		ClearValues: append([]metadata.ClearValue(nil), clearValues...),
		Contents:    contents,
	}, func() error {
		return cb.tracker.begin(fb, rp)
	}, rp, fb)
}

func (cb *CommandBuffer) NextSubpass(contents metadata.SubpassContents) error {
	return cb.record(metadata.CmdNextSubpass{Contents: contents}, cb.tracker.next)
}

func (cb *CommandBuffer) EndRenderPass() error {
	return cb.record(metadata.CmdEndRenderPass{}, cb.tracker.end)
}

// RenderPassState returns the render pass, framebuffer and subpass being recorded.
func (cb *CommandBuffer) RenderPassState() (*RenderPass, *Framebuffer, uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tracker.RenderPass(), cb.tracker.Framebuffer(), cb.tracker.Subpass()
}

// ExecuteCommands runs secondaries in recording order. Inside a render pass
// each secondary must continue a compatible render pass at the current
// subpass; outside one none may. Pipeline bindings are undefined afterwards.
func (cb *CommandBuffer) ExecuteCommands(secondaries ...*SecondaryCommandBuffer) error {
	cmd := metadata.CmdExecuteCommands{}
	refs := make([]Resource, 0, len(secondaries))
	for _, s := range secondaries {
		if s == nil {
			return cb.invalidCall(metadata.OP_EXECUTE_COMMANDS, core.ErrNilResource)
		}
		cmd.CommandBuffers = append(cmd.CommandBuffers, s.handle)
		refs = append(refs, s)
	}
	return cb.record(cmd, func() error {
		pinned := make([]executedSecondary, len(secondaries))
		for i, s := range secondaries {
			pinned[i] = executedSecondary{buffer: s, recording: s.recording.Load()}
			if err := s.checkExecutable(&cb.tracker); err != nil {
				return err
			}
		}
		cb.bindings.Reset()
		cb.executed = append(cb.executed, pinned...)
		return nil
	}, refs...)
}

func isNilResource(r Resource) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *Buffer:
		return v == nil
	case *Image:
		return v == nil
	case *ImageView:
		return v == nil
	case *DeviceMemory:
		return v == nil
	case *DescriptorSetLayout:
		return v == nil
	case *DescriptorSet:
		return v == nil
	case *PipelineLayout:
		return v == nil
	case *Pipeline:
		return v == nil
	case *RenderPass:
		return v == nil
	case *Framebuffer:
		return v == nil
	case *Swapchain:
		return v == nil
	case *Event:
		return v == nil
	case *SecondaryCommandBuffer:
		return v == nil
	}
	return false
}
