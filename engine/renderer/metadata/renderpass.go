package metadata

type AttachmentDescription struct {
	Format         Format
	LoadOp         AttachmentLoadOp
	StoreOp        AttachmentStoreOp
	StencilLoadOp  AttachmentLoadOp
	StencilStoreOp AttachmentStoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

/** @brief One subpass. A nil DepthStencilAttachment means no depth. */
type SubpassDescription struct {
	BindPoint              PipelineBindPoint
	InputAttachments       []AttachmentReference
	ColorAttachments       []AttachmentReference
	ResolveAttachments     []AttachmentReference
	DepthStencilAttachment *AttachmentReference
	PreserveAttachments    []uint32
}

type SubpassDependency struct {
	SrcSubpass      uint32
	DstSubpass      uint32
	SrcStageMask    PipelineStageFlags
	DstStageMask    PipelineStageFlags
	SrcAccessMask   AccessFlags
	DstAccessMask   AccessFlags
	DependencyFlags DependencyFlags
}

type RenderPassDescription struct {
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

// References returns every attachment reference a subpass uses, in
// input, color, resolve, depth order. Unused (SUBPASS_EXTERNAL) slots are skipped.
func (s SubpassDescription) References() []AttachmentReference {
	refs := make([]AttachmentReference, 0, len(s.InputAttachments)+len(s.ColorAttachments)+len(s.ResolveAttachments)+1)
	for _, group := range [][]AttachmentReference{s.InputAttachments, s.ColorAttachments, s.ResolveAttachments} {
		for _, r := range group {
			if r.Attachment != SUBPASS_EXTERNAL {
				refs = append(refs, r)
			}
		}
	}
	if s.DepthStencilAttachment != nil && s.DepthStencilAttachment.Attachment != SUBPASS_EXTERNAL {
		refs = append(refs, *s.DepthStencilAttachment)
	}
	return refs
}

type FramebufferDescription struct {
	RenderPass  Handle
	Attachments []Handle
	Width       uint32
	Height      uint32
	Layers      uint32
}
