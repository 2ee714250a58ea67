package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type renderPassEntry struct {
	handle vk.RenderPass
	// depth marks the attachments whose clear value is a depth/stencil value.
	depth []bool
}

// clearValues converts one clear value per attachment, picking the union
// member from the attachment's format.
func (rp renderPassEntry) clearValues(in []metadata.ClearValue) []vk.ClearValue {
	out := make([]vk.ClearValue, len(in))
	for i, v := range in {
		out[i] = clearValue(v, i < len(rp.depth) && rp.depth[i])
	}
	return out
}

func attachmentReferences(refs []metadata.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{
			Attachment: r.Attachment,
			Layout:     vk.ImageLayout(r.Layout),
		}
	}
	return out
}

func renderPassCreateInfo(desc *metadata.RenderPassDescription) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOp(a.StencilLoadOp),
			StencilStoreOp: vk.AttachmentStoreOp(a.StencilStoreOp),
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		subpass := vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPoint(s.BindPoint),
			InputAttachmentCount:    uint32(len(s.InputAttachments)),
			PInputAttachments:       attachmentReferences(s.InputAttachments),
			ColorAttachmentCount:    uint32(len(s.ColorAttachments)),
			PColorAttachments:       attachmentReferences(s.ColorAttachments),
			PreserveAttachmentCount: uint32(len(s.PreserveAttachments)),
			PPreserveAttachments:    s.PreserveAttachments,
		}
		// Resolve attachments, when present, pair one to one with color attachments.
		if len(s.ResolveAttachments) > 0 {
			subpass.PResolveAttachments = attachmentReferences(s.ResolveAttachments)
		}
		if s.DepthStencilAttachment != nil {
			subpass.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.DepthStencilAttachment.Attachment,
				Layout:     vk.ImageLayout(s.DepthStencilAttachment.Layout),
			}
		}
		subpasses[i] = subpass
	}

	dependencies := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, d := range desc.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:      d.SrcSubpass,
			DstSubpass:      d.DstSubpass,
			SrcStageMask:    vk.PipelineStageFlags(d.SrcStageMask),
			DstStageMask:    vk.PipelineStageFlags(d.DstStageMask),
			SrcAccessMask:   vk.AccessFlags(d.SrcAccessMask),
			DstAccessMask:   vk.AccessFlags(d.DstAccessMask),
			DependencyFlags: vk.DependencyFlags(d.DependencyFlags),
		}
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func (b *Backend) CreateRenderPass(desc *metadata.RenderPassDescription) (metadata.Handle, error) {
	if desc == nil || len(desc.Subpasses) == 0 {
		return metadata.NullHandle, fmt.Errorf("render pass needs at least one subpass: %w", core.ErrInvalidArgument)
	}
	createInfo := renderPassCreateInfo(desc)

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(b.device(), &createInfo, b.context.Allocator, &renderPass); res != vk.Success {
		err := fmt.Errorf("failed to create render pass: %s: %w", VulkanResultString(res, true), metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}

	entry := renderPassEntry{handle: renderPass, depth: make([]bool, len(desc.Attachments))}
	for i, a := range desc.Attachments {
		entry.depth[i] = isDepthFormat(a.Format)
	}
	h := b.newHandle()
	b.renderPasses.put(h, entry)
	return h, nil
}

func (b *Backend) CreateFramebuffer(desc *metadata.FramebufferDescription) (metadata.Handle, error) {
	rp, err := b.renderPasses.get(desc.RenderPass)
	if err != nil {
		return metadata.NullHandle, err
	}
	views, err := b.imageViews.resolve(desc.Attachments)
	if err != nil {
		return metadata.NullHandle, err
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          layers,
	}

	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(b.device(), &framebufferCreateInfo, b.context.Allocator, &framebuffer); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer: %w", metadata.Result(res).Err())
		core.LogError("%s", err)
		return metadata.NullHandle, err
	}
	h := b.newHandle()
	b.framebuffers.put(h, framebuffer)
	return h, nil
}
