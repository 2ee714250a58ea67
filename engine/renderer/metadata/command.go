package metadata

// Opcode identifies a recorded command.
type Opcode uint16

const (
	OP_UNKNOWN Opcode = iota
	OP_BIND_PIPELINE
	OP_BIND_DESCRIPTOR_SETS
	OP_BIND_VERTEX_BUFFERS
	OP_BIND_INDEX_BUFFER
	OP_PUSH_CONSTANTS
	OP_DRAW
	OP_DRAW_INDEXED
	OP_DRAW_INDIRECT
	OP_DRAW_INDEXED_INDIRECT
	OP_DISPATCH
	OP_DISPATCH_INDIRECT
	OP_COPY_BUFFER
	OP_COPY_IMAGE
	OP_COPY_BUFFER_TO_IMAGE
	OP_COPY_IMAGE_TO_BUFFER
	OP_BLIT_IMAGE
	OP_FILL_BUFFER
	OP_UPDATE_BUFFER
	OP_CLEAR_COLOR_IMAGE
	OP_CLEAR_DEPTH_STENCIL_IMAGE
	OP_CLEAR_ATTACHMENTS
	OP_SET_VIEWPORT
	OP_SET_SCISSOR
	OP_SET_LINE_WIDTH
	OP_SET_DEPTH_BIAS
	OP_SET_BLEND_CONSTANTS
	OP_SET_DEPTH_BOUNDS
	OP_SET_STENCIL_COMPARE_MASK
	OP_SET_STENCIL_WRITE_MASK
	OP_SET_STENCIL_REFERENCE
	OP_PIPELINE_BARRIER
	OP_SET_EVENT
	OP_RESET_EVENT
	OP_WAIT_EVENTS
	OP_BEGIN_RENDER_PASS
	OP_NEXT_SUBPASS
	OP_END_RENDER_PASS
	OP_EXECUTE_COMMANDS
)

var opcodeNames = [...]string{
	OP_UNKNOWN:                   "unknown",
	OP_BIND_PIPELINE:             "bind_pipeline",
	OP_BIND_DESCRIPTOR_SETS:      "bind_descriptor_sets",
	OP_BIND_VERTEX_BUFFERS:       "bind_vertex_buffers",
	OP_BIND_INDEX_BUFFER:         "bind_index_buffer",
	OP_PUSH_CONSTANTS:            "push_constants",
	OP_DRAW:                      "draw",
	OP_DRAW_INDEXED:              "draw_indexed",
	OP_DRAW_INDIRECT:             "draw_indirect",
	OP_DRAW_INDEXED_INDIRECT:     "draw_indexed_indirect",
	OP_DISPATCH:                  "dispatch",
	OP_DISPATCH_INDIRECT:         "dispatch_indirect",
	OP_COPY_BUFFER:               "copy_buffer",
	OP_COPY_IMAGE:                "copy_image",
	OP_COPY_BUFFER_TO_IMAGE:      "copy_buffer_to_image",
	OP_COPY_IMAGE_TO_BUFFER:      "copy_image_to_buffer",
	OP_BLIT_IMAGE:                "blit_image",
	OP_FILL_BUFFER:               "fill_buffer",
	OP_UPDATE_BUFFER:             "update_buffer",
	OP_CLEAR_COLOR_IMAGE:         "clear_color_image",
	OP_CLEAR_DEPTH_STENCIL_IMAGE: "clear_depth_stencil_image",
	OP_CLEAR_ATTACHMENTS:         "clear_attachments",
	OP_SET_VIEWPORT:              "set_viewport",
	OP_SET_SCISSOR:               "set_scissor",
	OP_SET_LINE_WIDTH:            "set_line_width",
	OP_SET_DEPTH_BIAS:            "set_depth_bias",
	OP_SET_BLEND_CONSTANTS:       "set_blend_constants",
	OP_SET_DEPTH_BOUNDS:          "set_depth_bounds",
	OP_SET_STENCIL_COMPARE_MASK:  "set_stencil_compare_mask",
	OP_SET_STENCIL_WRITE_MASK:    "set_stencil_write_mask",
	OP_SET_STENCIL_REFERENCE:     "set_stencil_reference",
	OP_PIPELINE_BARRIER:          "pipeline_barrier",
	OP_SET_EVENT:                 "set_event",
	OP_RESET_EVENT:               "reset_event",
	OP_WAIT_EVENTS:               "wait_events",
	OP_BEGIN_RENDER_PASS:         "begin_render_pass",
	OP_NEXT_SUBPASS:              "next_subpass",
	OP_END_RENDER_PASS:           "end_render_pass",
	OP_EXECUTE_COMMANDS:          "execute_commands",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return opcodeNames[OP_UNKNOWN]
}

// Command is one encoded recording call, expressed with backend handles.
type Command interface {
	Op() Opcode
}

type CmdBindPipeline struct {
	BindPoint PipelineBindPoint
	Pipeline  Handle
}

type CmdBindDescriptorSets struct {
	BindPoint      PipelineBindPoint
	Layout         Handle
	FirstSet       uint32
	Sets           []Handle
	DynamicOffsets []uint32
}

type CmdBindVertexBuffers struct {
	FirstBinding uint32
	Buffers      []Handle
	Offsets      []uint64
}

type CmdBindIndexBuffer struct {
	Buffer    Handle
	Offset    uint64
	IndexType IndexType
}

type CmdPushConstants struct {
	Layout     Handle
	StageFlags ShaderStageFlags
	Offset     uint32
	Data       []byte
}

type CmdDraw struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

type CmdDrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

type CmdDrawIndirect struct {
	Buffer    Handle
	Offset    uint64
	DrawCount uint32
	Stride    uint32
	Indexed   bool
}

type CmdDispatch struct {
	GroupCountX, GroupCountY, GroupCountZ uint32
}

type CmdDispatchIndirect struct {
	Buffer Handle
	Offset uint64
}

type CmdCopyBuffer struct {
	Src, Dst Handle
	Regions  []BufferCopy
}

type CmdCopyImage struct {
	Src       Handle
	SrcLayout ImageLayout
	Dst       Handle
	DstLayout ImageLayout
	Regions   []ImageCopy
}

type CmdCopyBufferToImage struct {
	Buffer      Handle
	Image       Handle
	ImageLayout ImageLayout
	Regions     []BufferImageCopy
}

type CmdCopyImageToBuffer struct {
	Image       Handle
	ImageLayout ImageLayout
	Buffer      Handle
	Regions     []BufferImageCopy
}

type CmdBlitImage struct {
	Src       Handle
	SrcLayout ImageLayout
	Dst       Handle
	DstLayout ImageLayout
	Regions   []ImageBlit
	Filter    Filter
}

type CmdFillBuffer struct {
	Buffer Handle
	Offset uint64
	Size   uint64
	Data   uint32
}

type CmdUpdateBuffer struct {
	Buffer Handle
	Offset uint64
	Data   []byte
}

type CmdClearColorImage struct {
	Image  Handle
	Layout ImageLayout
	Color  [4]float32
	Ranges []ImageSubresourceRange
}

type CmdClearDepthStencilImage struct {
	Image  Handle
	Layout ImageLayout
	Value  ClearDepthStencilValue
	Ranges []ImageSubresourceRange
}

type CmdClearAttachments struct {
	Attachments []ClearAttachment
	Rects       []ClearRect
}

type CmdSetViewport struct {
	FirstViewport uint32
	Viewports     []Viewport
}

type CmdSetScissor struct {
	FirstScissor uint32
	Scissors     []Rect2D
}

type CmdSetLineWidth struct {
	Width float32
}

type CmdSetDepthBias struct {
	ConstantFactor float32
	Clamp          float32
	SlopeFactor    float32
}

type CmdSetBlendConstants struct {
	Constants [4]float32
}

type CmdSetDepthBounds struct {
	Min, Max float32
}

type CmdSetStencilCompareMask struct {
	FaceMask StencilFaceFlags
	Mask     uint32
}

type CmdSetStencilWriteMask struct {
	FaceMask StencilFaceFlags
	Mask     uint32
}

type CmdSetStencilReference struct {
	FaceMask  StencilFaceFlags
	Reference uint32
}

type CmdPipelineBarrier struct {
	SrcStage   PipelineStageFlags
	DstStage   PipelineStageFlags
	Dependency DependencyFlags
	Barriers   Barriers
}

type CmdSetEvent struct {
	Event Handle
	Stage PipelineStageFlags
}

type CmdResetEvent struct {
	Event Handle
	Stage PipelineStageFlags
}

type CmdWaitEvents struct {
	Events   []Handle
	SrcStage PipelineStageFlags
	DstStage PipelineStageFlags
	Barriers Barriers
}

type CmdBeginRenderPass struct {
	RenderPass  Handle
	Framebuffer Handle
	RenderArea  Rect2D
	ClearValues []ClearValue
	Contents    SubpassContents
}

type CmdNextSubpass struct {
	Contents SubpassContents
}

type CmdEndRenderPass struct{}

type CmdExecuteCommands struct {
	CommandBuffers []Handle
}

func (CmdBindPipeline) Op() Opcode { return OP_BIND_PIPELINE }
func (CmdBindDescriptorSets) Op() Opcode { return OP_BIND_DESCRIPTOR_SETS }
func (CmdBindVertexBuffers) Op() Opcode { return OP_BIND_VERTEX_BUFFERS }
func (CmdBindIndexBuffer) Op() Opcode { return OP_BIND_INDEX_BUFFER }
func (CmdPushConstants) Op() Opcode { return OP_PUSH_CONSTANTS }
func (CmdDraw) Op() Opcode { return OP_DRAW }
func (CmdDrawIndexed) Op() Opcode { return OP_DRAW_INDEXED }
func (CmdDispatch) Op() Opcode { return OP_DISPATCH }
func (CmdDispatchIndirect) Op() Opcode { return OP_DISPATCH_INDIRECT }
func (CmdCopyBuffer) Op() Opcode { return OP_COPY_BUFFER }
func (CmdCopyImage) Op() Opcode { return OP_COPY_IMAGE }
func (CmdCopyBufferToImage) Op() Opcode { return OP_COPY_BUFFER_TO_IMAGE }
func (CmdCopyImageToBuffer) Op() Opcode { return OP_COPY_IMAGE_TO_BUFFER }
func (CmdBlitImage) Op() Opcode { return OP_BLIT_IMAGE }
func (CmdFillBuffer) Op() Opcode { return OP_FILL_BUFFER }
func (CmdUpdateBuffer) Op() Opcode { return OP_UPDATE_BUFFER }
func (CmdClearColorImage) Op() Opcode { return OP_CLEAR_COLOR_IMAGE }
func (CmdClearDepthStencilImage) Op() Opcode { return OP_CLEAR_DEPTH_STENCIL_IMAGE }
func (CmdClearAttachments) Op() Opcode { return OP_CLEAR_ATTACHMENTS }
func (CmdSetViewport) Op() Opcode { return OP_SET_VIEWPORT }
func (CmdSetScissor) Op() Opcode { return OP_SET_SCISSOR }
func (CmdSetLineWidth) Op() Opcode { return OP_SET_LINE_WIDTH }
func (CmdSetDepthBias) Op() Opcode { return OP_SET_DEPTH_BIAS }
func (CmdSetBlendConstants) Op() Opcode { return OP_SET_BLEND_CONSTANTS }
func (CmdSetDepthBounds) Op() Opcode { return OP_SET_DEPTH_BOUNDS }
func (CmdSetStencilCompareMask) Op() Opcode { return OP_SET_STENCIL_COMPARE_MASK }
func (CmdSetStencilWriteMask) Op() Opcode { return OP_SET_STENCIL_WRITE_MASK }
func (CmdSetStencilReference) Op() Opcode { return OP_SET_STENCIL_REFERENCE }
func (CmdPipelineBarrier) Op() Opcode { return OP_PIPELINE_BARRIER }
func (CmdSetEvent) Op() Opcode { return OP_SET_EVENT }
func (CmdResetEvent) Op() Opcode { return OP_RESET_EVENT }
func (CmdWaitEvents) Op() Opcode { return OP_WAIT_EVENTS }
func (CmdBeginRenderPass) Op() Opcode { return OP_BEGIN_RENDER_PASS }
func (CmdNextSubpass) Op() Opcode { return OP_NEXT_SUBPASS }
func (CmdEndRenderPass) Op() Opcode { return OP_END_RENDER_PASS }
func (CmdExecuteCommands) Op() Opcode { return OP_EXECUTE_COMMANDS }

func (c CmdDrawIndirect) Op() Opcode {
	if c.Indexed {
		return OP_DRAW_INDEXED_INDIRECT
	}
	return OP_DRAW_INDIRECT
}

/** @brief Render pass a secondary command buffer continues. */
type InheritanceInfo struct {
	RenderPass  Handle
	Subpass     uint32
	Framebuffer Handle
}

type CommandBufferBeginInfo struct {
	Flags       CommandBufferUsageFlags
	Inheritance *InheritanceInfo
}
