package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// RenderPassTracker follows the render pass, framebuffer and subpass a
// primary command buffer is recording into.
type RenderPassTracker struct {
	renderPass  *RenderPass
	framebuffer *Framebuffer
	subpass     uint32
	observer    recordingObserver
}

func newRenderPassTracker(observer recordingObserver) RenderPassTracker {
	return RenderPassTracker{observer: observer}
}

func (t *RenderPassTracker) Active() bool {
	return t.renderPass != nil
}

func (t *RenderPassTracker) RenderPass() *RenderPass {
	return t.renderPass
}

func (t *RenderPassTracker) Framebuffer() *Framebuffer {
	return t.framebuffer
}

func (t *RenderPassTracker) Subpass() uint32 {
	return t.subpass
}

func (t *RenderPassTracker) begin(fb *Framebuffer, rp *RenderPass) error {
	if t.Active() {
		return core.ErrRenderPassActive
	}
	t.renderPass = rp
	t.framebuffer = fb
	t.subpass = 0
	t.observer.subpassStarted(fb, rp, 0)
	return nil
}

func (t *RenderPassTracker) next() error {
	if !t.Active() {
		return core.ErrNoActiveRenderPass
	}
	if t.subpass+1 >= t.renderPass.SubpassCount() {
		return fmt.Errorf("subpass %d of %d: %w", t.subpass+1, t.renderPass.SubpassCount(), core.ErrSubpassOutOfRange)
	}
	t.subpass++
	t.observer.subpassStarted(t.framebuffer, t.renderPass, t.subpass)
	return nil
}

func (t *RenderPassTracker) end() error {
	if !t.Active() {
		return core.ErrNoActiveRenderPass
	}
	if t.subpass+1 != t.renderPass.SubpassCount() {
		return fmt.Errorf("render pass ended in subpass %d of %d: %w",
			t.subpass, t.renderPass.SubpassCount(), core.ErrSubpassOutOfRange)
	}
	t.observer.renderPassEnded(t.framebuffer, t.renderPass)
	t.Reset()
	return nil
}

func (t *RenderPassTracker) Reset() {
	t.renderPass = nil
	t.framebuffer = nil
	t.subpass = 0
}

// recordingObserver sees render pass progression and descriptor binds.
// Devices created without validation use nopObserver.
type recordingObserver interface {
	subpassStarted(fb *Framebuffer, rp *RenderPass, subpass uint32)
	renderPassEnded(fb *Framebuffer, rp *RenderPass)
	descriptorSetsBound(layout *PipelineLayout, firstSet uint32, sets []*DescriptorSet) error
	imageTransitioned(image *Image, layout metadata.ImageLayout)
}

func newRecordingObserver(validation bool) recordingObserver {
	if validation {
		return validatingObserver{}
	}
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) subpassStarted(*Framebuffer, *RenderPass, uint32) {}
func (nopObserver) renderPassEnded(*Framebuffer, *RenderPass) {}
func (nopObserver) descriptorSetsBound(*PipelineLayout, uint32, []*DescriptorSet) error {
	return nil
}
func (nopObserver) imageTransitioned(*Image, metadata.ImageLayout) {}

// validatingObserver propagates attachment layouts from the render pass
// description to the framebuffer images and checks descriptor sets against
// the pipeline layout.
type validatingObserver struct{}

func (validatingObserver) subpassStarted(fb *Framebuffer, rp *RenderPass, subpass uint32) {
	for _, ref := range rp.desc.Subpasses[subpass].References() {
		setAttachmentLayout(fb, ref.Attachment, ref.Layout)
	}
}

func (validatingObserver) renderPassEnded(fb *Framebuffer, rp *RenderPass) {
	for i, a := range rp.desc.Attachments {
		setAttachmentLayout(fb, uint32(i), a.FinalLayout)
	}
}

func (validatingObserver) descriptorSetsBound(layout *PipelineLayout, firstSet uint32, sets []*DescriptorSet) error {
	return layout.compatible(firstSet, sets)
}

func (validatingObserver) imageTransitioned(image *Image, layout metadata.ImageLayout) {
	image.setLayout(layout)
}

func setAttachmentLayout(fb *Framebuffer, attachment uint32, layout metadata.ImageLayout) {
	if fb == nil || int(attachment) >= fb.AttachmentCount() {
		return
	}
	if view := fb.Attachment(int(attachment)); view != nil && view.image != nil {
		view.image.setLayout(layout)
	}
}
