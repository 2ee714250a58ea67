package renderer

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Queue accepts batched submissions for one queue family. Submit, Present
// and BindSparse must be externally serialized unless the device was
// created with Options.SerializeQueues.
type Queue struct {
	deviceLink
	id      core.ObjectID
	handle  metadata.Handle
	family  uint32
	index   uint32
	flags   metadata.QueueFlags
	present bool

	// idleEpoch advances each time the queue is observed idle.
	idleEpoch atomic.Uint64
}

// SubmitInfo is one submission group. WaitDstStageMask holds one stage mask
// per wait semaphore.
type SubmitInfo struct {
	CommandBuffers   []*CommandBuffer
	WaitSemaphores   []*Semaphore
	WaitDstStageMask []metadata.PipelineStageFlags
	SignalSemaphores []*Semaphore
}

type PresentInfo struct {
	WaitSemaphores []*Semaphore
	Swapchains     []*Swapchain
	ImageIndices   []uint32
}

func (q *Queue) Handle() metadata.Handle {
	return q.handle
}

func (q *Queue) ID() core.ObjectID {
	return q.id
}

func (q *Queue) Family() uint32 {
	return q.family
}

func (q *Queue) Index() uint32 {
	return q.index
}

func (q *Queue) Flags() metadata.QueueFlags {
	return q.flags
}

func (q *Queue) SupportsPresent() bool {
	return q.present
}

func (q *Queue) DebugName() string {
	return core.DebugName(fmt.Sprintf("queue%d.%d", q.family, q.index), q.id)
}

// Submit flattens infos into one backend submission. fence, if not nil, is
// signaled once every group has completed.
func (q *Queue) Submit(infos []SubmitInfo, fence *Fence) error {
	dev, err := q.Device()
	if err != nil {
		return err
	}
	if err := q.validateSubmit(dev, infos, fence); err != nil {
		err = fmt.Errorf("%s submit: %w", q.DebugName(), err)
		core.LogError("%s", err)
		return err
	}

	batch := flattenSubmits(infos)
	fh := metadata.NullHandle
	var gen uint64
	if fence != nil {
		fh = fence.handle
		gen = fence.generation.Load()
	}
	epoch := q.idleEpoch.Load()

	err = dev.serializeQueue(q.family, func() error {
		return dev.backend.QueueSubmit(q.handle, batch, fh)
	})
	if err != nil {
		return dev.fail("submit to queue", err)
	}

	dev.metrics.Submissions.Add(1)
	dev.metrics.CommandBuffersSubmitted.Add(uint64(len(batch.CommandBuffers)))
	s := submission{queue: q, epoch: epoch, fence: fence, fenceGen: gen}
	for _, info := range infos {
		for _, cb := range info.CommandBuffers {
			cb.markSubmitted(s)
		}
	}
	return nil
}

func (q *Queue) validateSubmit(dev *Device, infos []SubmitInfo, fence *Fence) error {
	seen := make(map[*CommandBuffer]int)
	for i, info := range infos {
		if len(info.WaitDstStageMask) != len(info.WaitSemaphores) {
			return fmt.Errorf("group %d has %d waits and %d stage masks: %w",
				i, len(info.WaitSemaphores), len(info.WaitDstStageMask), core.ErrStageMaskMismatch)
		}
		for _, cb := range info.CommandBuffers {
			if cb == nil {
				return fmt.Errorf("group %d: %w", i, core.ErrNilResource)
			}
			if cb.pool.family != q.family {
				return fmt.Errorf("%s from family %d on family %d: %w",
					cb.DebugName(), cb.pool.family, q.family, core.ErrWrongQueueFamily)
			}
			if err := cb.checkSubmittable(seen[cb]); err != nil {
				return fmt.Errorf("%s: %w", cb.DebugName(), err)
			}
			seen[cb]++
		}
		for _, s := range info.WaitSemaphores {
			if s == nil {
				return fmt.Errorf("group %d wait semaphore: %w", i, core.ErrNilResource)
			}
		}
		for _, s := range info.SignalSemaphores {
			if s == nil {
				return fmt.Errorf("group %d signal semaphore: %w", i, core.ErrNilResource)
			}
		}
	}
	if fence != nil && dev.validation {
		signaled, err := fence.IsSignaled()
		if err != nil {
			return err
		}
		if signaled {
			return fmt.Errorf("%s: %w", fence.DebugName(), core.ErrFenceSignaled)
		}
	}
	return nil
}

// flattenSubmits lays every group's command buffers out in one array and
// every group's signal then wait semaphores in another, recording per group
// where its slice starts and how long it is.
func flattenSubmits(infos []SubmitInfo) *metadata.SubmitBatch {
	var numCmds, numSems int
	for _, info := range infos {
		numCmds += len(info.CommandBuffers)
		numSems += len(info.WaitSemaphores) + len(info.SignalSemaphores)
	}

	batch := &metadata.SubmitBatch{
		CommandBuffers: make([]metadata.Handle, 0, numCmds),
		Semaphores:     make([]metadata.Handle, 0, numSems),
		WaitStages:     make([]metadata.PipelineStageFlags, 0, numSems),
		Groups:         make([]metadata.SubmitGroup, len(infos)),
	}
	for i, info := range infos {
		g := &batch.Groups[i]

		g.CommandBufferOffset = uint32(len(batch.CommandBuffers))
		g.CommandBufferCount = uint32(len(info.CommandBuffers))
		for _, cb := range info.CommandBuffers {
			batch.CommandBuffers = append(batch.CommandBuffers, cb.handle)
		}

		g.SignalSemaphoreOffset = uint32(len(batch.Semaphores))
		g.SignalSemaphoreCount = uint32(len(info.SignalSemaphores))
		for _, s := range info.SignalSemaphores {
			batch.Semaphores = append(batch.Semaphores, s.handle)
		}

		g.WaitSemaphoreOffset = uint32(len(batch.Semaphores))
		g.WaitSemaphoreCount = uint32(len(info.WaitSemaphores))
		for _, s := range info.WaitSemaphores {
			batch.Semaphores = append(batch.Semaphores, s.handle)
		}

		g.WaitStageOffset = uint32(len(batch.WaitStages))
		batch.WaitStages = append(batch.WaitStages, info.WaitDstStageMask...)
	}
	return batch
}

// Present queues one image per swapchain. Every swapchain gets a result;
// a failing swapchain does not stop the others. The returned error is the
// first failure, if any.
func (q *Queue) Present(info PresentInfo) ([]metadata.Result, error) {
	dev, err := q.Device()
	if err != nil {
		return nil, err
	}
	if !q.present {
		return nil, fmt.Errorf("%s present: %w", q.DebugName(), core.ErrUnsupported)
	}
	if len(info.Swapchains) != len(info.ImageIndices) {
		return nil, fmt.Errorf("present %d swapchains with %d image indices: %w",
			len(info.Swapchains), len(info.ImageIndices), core.ErrInvalidArgument)
	}

	batch := &metadata.PresentBatch{
		WaitSemaphores: make([]metadata.Handle, 0, len(info.WaitSemaphores)),
		Swapchains:     make([]metadata.Handle, 0, len(info.Swapchains)),
		ImageIndices:   append([]uint32(nil), info.ImageIndices...),
	}
	for _, s := range info.WaitSemaphores {
		if s == nil {
			return nil, fmt.Errorf("present wait semaphore: %w", core.ErrNilResource)
		}
		batch.WaitSemaphores = append(batch.WaitSemaphores, s.handle)
	}
	for i, sc := range info.Swapchains {
		if sc == nil {
			return nil, fmt.Errorf("present swapchain %d: %w", i, core.ErrNilResource)
		}
		if info.ImageIndices[i] >= sc.ImageCount() {
			return nil, fmt.Errorf("present image %d of %d: %w", info.ImageIndices[i], sc.ImageCount(), core.ErrInvalidArgument)
		}
		batch.Swapchains = append(batch.Swapchains, sc.handle)
	}

	results := make([]metadata.Result, len(info.Swapchains))
	err = dev.serializeQueue(q.family, func() error {
		return dev.backend.QueuePresent(q.handle, batch, results)
	})

	dev.metrics.Presents.Add(1)
	for i, res := range results {
		if !res.IsSuccess() {
			dev.metrics.PresentFailures.Add(1)
			core.LogWarn("present to swapchain %d failed: %s", i, res)
		}
	}
	if err != nil {
		return results, dev.fail("present", err)
	}
	return results, nil
}

// WaitIdle blocks until all work submitted to the queue has completed.
func (q *Queue) WaitIdle() error {
	dev, err := q.Device()
	if err != nil {
		return err
	}
	err = dev.serializeQueue(q.family, func() error {
		return dev.backend.QueueWaitIdle(q.handle)
	})
	if err != nil {
		return dev.fail("wait for queue idle", err)
	}
	q.idleEpoch.Add(1)
	return nil
}
