package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// SecondaryCommandBuffer is executed from a primary command buffer with
// ExecuteCommands. When begun with RENDER_PASS_CONTINUE it records into the
// render pass and subpass it inherits.
type SecondaryCommandBuffer struct {
	commandBuffer

	inheritRenderPass  *RenderPass
	inheritFramebuffer *Framebuffer
	inheritSubpass     uint32
}

func (cb *SecondaryCommandBuffer) base() *commandBuffer {
	return &cb.commandBuffer
}

// Begin starts recording outside of any render pass.
func (cb *SecondaryCommandBuffer) Begin(flags metadata.CommandBufferUsageFlags) error {
	if metadata.HasFlags(flags, metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE) {
		return cb.protocolError("begin", core.ErrInheritanceRequired)
	}
	return cb.beginInheriting(nil, nil, 0, flags)
}

// BeginWithRenderPass starts recording for execution inside subpass of any
// render pass compatible with rp. RENDER_PASS_CONTINUE is implied.
func (cb *SecondaryCommandBuffer) BeginWithRenderPass(rp *RenderPass, subpass uint32, flags metadata.CommandBufferUsageFlags) error {
	if rp == nil {
		return cb.protocolError("begin", core.ErrInheritanceRequired)
	}
	return cb.beginInheriting(rp, nil, subpass, flags|metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE)
}

// BeginWithFramebuffer is BeginWithRenderPass that also names the framebuffer
// the buffer will be executed against.
func (cb *SecondaryCommandBuffer) BeginWithFramebuffer(fb *Framebuffer, subpass uint32, flags metadata.CommandBufferUsageFlags) error {
	if fb == nil {
		return cb.protocolError("begin", core.ErrInheritanceRequired)
	}
	return cb.beginInheriting(fb.renderPass, fb, subpass, flags|metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE)
}

func (cb *SecondaryCommandBuffer) beginInheriting(rp *RenderPass, fb *Framebuffer, subpass uint32, flags metadata.CommandBufferUsageFlags) error {
	info := metadata.CommandBufferBeginInfo{Flags: flags}
	if rp != nil {
		if subpass >= rp.SubpassCount() {
			return cb.protocolError("begin", fmt.Errorf("subpass %d: %w", subpass, core.ErrSubpassOutOfRange))
		}
		info.Inheritance = &metadata.InheritanceInfo{RenderPass: rp.handle, Subpass: subpass}
		if fb != nil {
			info.Inheritance.Framebuffer = fb.handle
		}
	}
	if err := cb.begin(info); err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.inheritRenderPass = rp
	cb.inheritFramebuffer = fb
	cb.inheritSubpass = subpass
	if rp != nil {
		// the buffer must not outlive what it was recorded against
		cb.refs.Add(rp)
		if fb != nil {
			cb.refs.Add(fb)
		}
	}
	return nil
}

func (cb *SecondaryCommandBuffer) End() error {
	return cb.end()
}

// Inheritance returns the render pass, framebuffer and subpass the buffer
// continues; rp is nil when it was begun outside a render pass.
func (cb *SecondaryCommandBuffer) Inheritance() (rp *RenderPass, fb *Framebuffer, subpass uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.inheritRenderPass, cb.inheritFramebuffer, cb.inheritSubpass
}

// checkExecutable verifies the buffer can be executed at the point the
// primary's tracker describes.
func (cb *SecondaryCommandBuffer) checkExecutable(t *RenderPassTracker) error {
	if err := cb.checkSubmittable(0); err != nil {
		return fmt.Errorf("%s: %w", cb.DebugName(), err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	continues := metadata.HasFlags(cb.usage, metadata.COMMAND_BUFFER_USAGE_RENDER_PASS_CONTINUE)
	if !t.Active() {
		if continues {
			return fmt.Errorf("%s continues a render pass outside one: %w", cb.DebugName(), core.ErrIncompatibleRenderPass)
		}
		return nil
	}
	if !continues {
		return fmt.Errorf("%s executed inside a render pass: %w", cb.DebugName(), core.ErrIncompatibleRenderPass)
	}
	if !cb.inheritRenderPass.CompatibleWith(t.RenderPass()) {
		return fmt.Errorf("%s: %w", cb.DebugName(), core.ErrIncompatibleRenderPass)
	}
	if cb.inheritSubpass != t.Subpass() {
		return fmt.Errorf("%s recorded for subpass %d, current subpass is %d: %w",
			cb.DebugName(), cb.inheritSubpass, t.Subpass(), core.ErrIncompatibleRenderPass)
	}
	if cb.inheritFramebuffer != nil && cb.inheritFramebuffer != t.Framebuffer() {
		return fmt.Errorf("%s recorded for another framebuffer: %w", cb.DebugName(), core.ErrIncompatibleRenderPass)
	}
	return nil
}
