package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// PooledCommandBuffer is either kind of command buffer a pool hands out.
type PooledCommandBuffer interface {
	Handle() metadata.Handle
	State() CommandBufferState
	base() *commandBuffer
}

// CommandPool allocates command buffers for one queue family. Allocation is
// not synchronized unless the device serializes queues.
type CommandPool struct {
	deviceLink
	id     core.ObjectID
	handle metadata.Handle
	family uint32
	flags  metadata.CommandPoolCreateFlags

	mu        sync.Mutex
	buffers   map[*commandBuffer]struct{}
	destroyed bool
}

func (p *CommandPool) Handle() metadata.Handle {
	return p.handle
}

func (p *CommandPool) ID() core.ObjectID {
	return p.id
}

func (p *CommandPool) QueueFamily() uint32 {
	return p.family
}

func (p *CommandPool) Flags() metadata.CommandPoolCreateFlags {
	return p.flags
}

// Len is the number of live command buffers allocated from the pool.
func (p *CommandPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}

func (p *CommandPool) AllocateCommandBuffer() (*CommandBuffer, error) {
	cbs, err := p.AllocateCommandBuffers(1)
	if err != nil {
		return nil, err
	}
	return cbs[0], nil
}

func (p *CommandPool) AllocateCommandBuffers(count uint32) ([]*CommandBuffer, error) {
	dev, handles, err := p.allocate(metadata.COMMAND_BUFFER_LEVEL_PRIMARY, count)
	if err != nil {
		return nil, err
	}
	out := make([]*CommandBuffer, len(handles))
	for i, h := range handles {
		cb := &CommandBuffer{}
		cb.init(dev, p, h, metadata.COMMAND_BUFFER_LEVEL_PRIMARY)
		p.track(&cb.commandBuffer)
		out[i] = cb
	}
	return out, nil
}

func (p *CommandPool) AllocateSecondaryCommandBuffer() (*SecondaryCommandBuffer, error) {
	cbs, err := p.AllocateSecondaryCommandBuffers(1)
	if err != nil {
		return nil, err
	}
	return cbs[0], nil
}

func (p *CommandPool) AllocateSecondaryCommandBuffers(count uint32) ([]*SecondaryCommandBuffer, error) {
	dev, handles, err := p.allocate(metadata.COMMAND_BUFFER_LEVEL_SECONDARY, count)
	if err != nil {
		return nil, err
	}
	out := make([]*SecondaryCommandBuffer, len(handles))
	for i, h := range handles {
		cb := &SecondaryCommandBuffer{}
		cb.init(dev, p, h, metadata.COMMAND_BUFFER_LEVEL_SECONDARY)
		p.track(&cb.commandBuffer)
		out[i] = cb
	}
	return out, nil
}

func (p *CommandPool) allocate(level metadata.CommandBufferLevel, count uint32) (*Device, []metadata.Handle, error) {
	dev, err := p.Device()
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("allocate 0 command buffers: %w", core.ErrInvalidArgument)
	}
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil, nil, fmt.Errorf("command pool: %w", core.ErrObjectDestroyed)
	}

	var handles []metadata.Handle
	err = dev.serialize(CommandPoolManagement, func() error {
		var err error
		handles, err = dev.backend.AllocateCommandBuffers(p.handle, level, count)
		return err
	})
	if err != nil {
		return nil, nil, dev.fail(fmt.Sprintf("allocate %d %s command buffers", count, level), err)
	}
	return dev, handles, nil
}

func (p *CommandPool) track(cb *commandBuffer) {
	p.mu.Lock()
	p.buffers[cb] = struct{}{}
	p.mu.Unlock()
}

// Free drops the pool's reference to each buffer. A buffer still referenced
// by a primary's ExecuteCommands is returned to the driver once that
// primary is reset.
func (p *CommandPool) Free(buffers ...PooledCommandBuffer) {
	for _, b := range buffers {
		if b != nil {
			b.base().Free()
		}
	}
}

// release returns cb to the driver; it runs when the buffer's last
// reference is dropped.
func (p *CommandPool) release(cb *commandBuffer) {
	p.mu.Lock()
	_, owned := p.buffers[cb]
	delete(p.buffers, cb)
	destroyed := p.destroyed
	p.mu.Unlock()

	cb.mu.Lock()
	cb.resetLocked()
	cb.freed = true
	cb.mu.Unlock()

	if !owned || destroyed {
		return
	}
	dev, err := p.Device()
	if err != nil {
		return
	}
	_ = dev.serialize(CommandPoolManagement, func() error {
		dev.backend.FreeCommandBuffers(p.handle, []metadata.Handle{cb.handle})
		return nil
	})
}

// Reset returns every buffer of the pool to the initial state.
func (p *CommandPool) Reset(flags metadata.CommandPoolResetFlags) error {
	dev, err := p.Device()
	if err != nil {
		return err
	}
	err = dev.serialize(CommandPoolManagement, func() error {
		return dev.backend.ResetCommandPool(p.handle, flags)
	})
	if err != nil {
		return dev.fail("reset command pool", err)
	}

	p.mu.Lock()
	buffers := make([]*commandBuffer, 0, len(p.buffers))
	for cb := range p.buffers {
		buffers = append(buffers, cb)
	}
	p.mu.Unlock()

	for _, cb := range buffers {
		cb.mu.Lock()
		cb.resetLocked()
		cb.mu.Unlock()
	}
	return nil
}

// Destroy frees every buffer allocated from the pool, then the pool.
// Buffers still pending on the device must not be destroyed.
func (p *CommandPool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	buffers := p.buffers
	p.buffers = make(map[*commandBuffer]struct{})
	p.mu.Unlock()

	for cb := range buffers {
		cb.mu.Lock()
		cb.resetLocked()
		cb.freed = true
		cb.mu.Unlock()
	}
	if dev, err := p.Device(); err == nil {
		dev.backend.DestroyCommandPool(p.handle)
	}
}
