package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type commandPool struct {
	family  uint32
	flags   metadata.CommandPoolCreateFlags
	buffers map[metadata.Handle]struct{}
}

type commandBuffer struct {
	pool        metadata.Handle
	level       metadata.CommandBufferLevel
	recording   bool
	info        metadata.CommandBufferBeginInfo
	commands    []metadata.Command
	submissions int
}

func (b *Backend) CreateCommandPool(family uint32, flags metadata.CommandPoolCreateFlags) (metadata.Handle, error) {
	if int(family) >= len(b.families) {
		return metadata.NullHandle, fmt.Errorf("family %d: %w", family, core.ErrQueueNotFound)
	}
	if b.IsLost() {
		return metadata.NullHandle, errDeviceLost()
	}
	h := b.newHandle()
	b.mu.Lock()
	b.pools[h] = &commandPool{family: family, flags: flags, buffers: make(map[metadata.Handle]struct{})}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) ResetCommandPool(pool metadata.Handle, flags metadata.CommandPoolResetFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[pool]
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_COMMAND_POOL, pool)
	}
	for h := range p.buffers {
		if cb := b.buffers[h]; cb != nil {
			cb.reset()
		}
	}
	return nil
}

func (b *Backend) DestroyCommandPool(pool metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[pool]
	if !ok {
		return
	}
	for h := range p.buffers {
		delete(b.buffers, h)
	}
	delete(b.pools, pool)
}

func (b *Backend) AllocateCommandBuffers(pool metadata.Handle, level metadata.CommandBufferLevel, count uint32) ([]metadata.Handle, error) {
	if b.IsLost() {
		return nil, errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[pool]
	if !ok {
		return nil, invalidHandle(metadata.OBJECT_TYPE_COMMAND_POOL, pool)
	}
	out := make([]metadata.Handle, count)
	for i := range out {
		h := b.newHandle()
		b.buffers[h] = &commandBuffer{pool: pool, level: level}
		p.buffers[h] = struct{}{}
		out[i] = h
	}
	return out, nil
}

func (b *Backend) FreeCommandBuffers(pool metadata.Handle, buffers []metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pools[pool]
	for _, h := range buffers {
		delete(b.buffers, h)
		if p != nil {
			delete(p.buffers, h)
		}
	}
}

func (b *Backend) BeginCommandBuffer(cb metadata.Handle, info metadata.CommandBufferBeginInfo) error {
	if b.IsLost() {
		return errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.buffers[cb]
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_COMMAND_BUFFER, cb)
	}
	c.reset()
	c.info = info
	c.recording = true
	return nil
}

func (b *Backend) EndCommandBuffer(cb metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.buffers[cb]
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_COMMAND_BUFFER, cb)
	}
	c.recording = false
	return nil
}

func (b *Backend) ResetCommandBuffer(cb metadata.Handle, flags metadata.CommandBufferResetFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.buffers[cb]
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_COMMAND_BUFFER, cb)
	}
	c.reset()
	return nil
}

// Record appends cmd to a recording buffer. Commands for unknown or
// non-recording buffers are dropped.
func (b *Backend) Record(cb metadata.Handle, cmd metadata.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.buffers[cb]; ok && c.recording {
		c.commands = append(c.commands, cmd)
	}
}

// Commands returns a copy of what was recorded into cb since its last begin.
func (b *Backend) Commands(cb metadata.Handle) []metadata.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.buffers[cb]; ok {
		return append([]metadata.Command(nil), c.commands...)
	}
	return nil
}

// CountOps counts the recorded commands of cb with opcode op.
func (b *Backend) CountOps(cb metadata.Handle, op metadata.Opcode) int {
	n := 0
	for _, cmd := range b.Commands(cb) {
		if cmd.Op() == op {
			n++
		}
	}
	return n
}

func (c *commandBuffer) reset() {
	for i := range c.commands {
		c.commands[i] = nil
	}
	c.commands = c.commands[:0]
	c.recording = false
	c.info = metadata.CommandBufferBeginInfo{}
}

// snapshot copies the recorded stream so that re-recording does not race
// with execution.
func (c *commandBuffer) snapshot() []metadata.Command {
	return append([]metadata.Command(nil), c.commands...)
}
