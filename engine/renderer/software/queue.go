package software

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type queue struct {
	handle    metadata.Handle
	family    uint32
	index     uint32
	pending   *containers.RingQueue[*work]
	submitted uint64
	completed uint64
}

type workKind uint8

const (
	workSubmit workKind = iota
	workSparse
	workPresent
)

type step struct {
	cb  metadata.Handle
	cmd metadata.Command
}

type workGroup struct {
	waits   []metadata.Handle
	signals []metadata.Handle
	// submit: one stream per command buffer, secondaries expanded in place
	buffers []metadata.Handle
	streams [][]step
	// sparse: the group index into the batch
	sparseGroup int
}

type work struct {
	kind    workKind
	groups  []workGroup
	fence   metadata.Handle
	sparse  *metadata.SparseBatch
	present *metadata.PresentBatch
	results []metadata.Result
	done    chan struct{}
}

// SubmitRecord is a submission as the device received it.
type SubmitRecord struct {
	Queue metadata.Handle
	Batch metadata.SubmitBatch
	Fence metadata.Handle
}

// Execution is one command buffer run by a queue, in execution order.
type Execution struct {
	Queue         metadata.Handle
	CommandBuffer metadata.Handle
	Ops           []metadata.Opcode
}

func (b *Backend) QueueSubmit(qh metadata.Handle, batch *metadata.SubmitBatch, fence metadata.Handle) error {
	if b.IsLost() {
		return errDeviceLost()
	}

	b.mu.Lock()
	q, ok := b.queuesByHandle[qh]
	if !ok {
		b.mu.Unlock()
		return invalidHandle(metadata.OBJECT_TYPE_QUEUE, qh)
	}
	w := &work{kind: workSubmit, fence: fence, groups: make([]workGroup, len(batch.Groups))}
	for i := range batch.Groups {
		g := &w.groups[i]
		g.waits = append([]metadata.Handle(nil), batch.GroupWaitSemaphores(i)...)
		g.signals = append([]metadata.Handle(nil), batch.GroupSignalSemaphores(i)...)
		for _, h := range batch.GroupCommandBuffers(i) {
			steps, err := b.expand(q, h, metadata.COMMAND_BUFFER_LEVEL_PRIMARY)
			if err != nil {
				b.mu.Unlock()
				return err
			}
			g.buffers = append(g.buffers, h)
			g.streams = append(g.streams, steps)
		}
	}
	if err := b.checkSync(fence, w.groups); err != nil {
		b.mu.Unlock()
		return err
	}
	b.submissions = append(b.submissions, SubmitRecord{Queue: qh, Batch: cloneSubmit(batch), Fence: fence})
	b.mu.Unlock()

	core.LogDebug("queue %d.%d: submit %d group(s)", q.family, q.index, len(w.groups))
	return b.enqueue(q, w)
}

// expand snapshots the stream of h, inlining executed secondaries. The
// caller holds b.mu.
func (b *Backend) expand(q *queue, h metadata.Handle, level metadata.CommandBufferLevel) ([]step, error) {
	c, ok := b.buffers[h]
	if !ok {
		return nil, invalidHandle(metadata.OBJECT_TYPE_COMMAND_BUFFER, h)
	}
	if c.level != level {
		return nil, fmt.Errorf("%s command buffer %s: %w", c.level, h, core.ErrWrongCommandLevel)
	}
	if c.recording {
		return nil, fmt.Errorf("command buffer %s: %w", h, core.ErrNotExecutable)
	}
	if p, ok := b.pools[c.pool]; ok && p.family != q.family {
		return nil, fmt.Errorf("command buffer %s: %w", h, core.ErrWrongQueueFamily)
	}

	var steps []step
	for _, cmd := range c.snapshot() {
		steps = append(steps, step{cb: h, cmd: cmd})
		exec, ok := cmd.(metadata.CmdExecuteCommands)
		if !ok || level != metadata.COMMAND_BUFFER_LEVEL_PRIMARY {
			continue
		}
		for _, sh := range exec.CommandBuffers {
			sub, err := b.expand(q, sh, metadata.COMMAND_BUFFER_LEVEL_SECONDARY)
			if err != nil {
				return nil, err
			}
			steps = append(steps, sub...)
		}
	}
	c.submissions++
	return steps, nil
}

// checkSync verifies every semaphore and the fence exist. The caller holds b.mu.
func (b *Backend) checkSync(fence metadata.Handle, groups []workGroup) error {
	if !fence.IsNull() {
		if _, ok := b.fences[fence]; !ok {
			return invalidHandle(metadata.OBJECT_TYPE_FENCE, fence)
		}
	}
	for _, g := range groups {
		for _, list := range [][]metadata.Handle{g.waits, g.signals} {
			for _, h := range list {
				if _, ok := b.semaphores[h]; !ok {
					return invalidHandle(metadata.OBJECT_TYPE_SEMAPHORE, h)
				}
			}
		}
	}
	return nil
}

func (b *Backend) QueueBindSparse(qh metadata.Handle, batch *metadata.SparseBatch, fence metadata.Handle) error {
	if b.IsLost() {
		return errDeviceLost()
	}

	b.mu.Lock()
	q, ok := b.queuesByHandle[qh]
	if !ok {
		b.mu.Unlock()
		return invalidHandle(metadata.OBJECT_TYPE_QUEUE, qh)
	}
	if !metadata.HasFlags(b.families[q.family].Flags, metadata.QUEUE_SPARSE_BINDING) {
		b.mu.Unlock()
		return fmt.Errorf("queue family %d: %w", q.family, core.ErrUnsupported)
	}
	w := &work{kind: workSparse, fence: fence, sparse: cloneSparse(batch), groups: make([]workGroup, len(batch.Groups))}
	for i := range batch.Groups {
		w.groups[i] = workGroup{
			waits:       append([]metadata.Handle(nil), batch.GroupWaitSemaphores(i)...),
			signals:     append([]metadata.Handle(nil), batch.GroupSignalSemaphores(i)...),
			sparseGroup: i,
		}
	}
	if err := b.checkSync(fence, w.groups); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	core.LogDebug("queue %d.%d: bind sparse, %d memory binds, %d image binds",
		q.family, q.index, len(batch.MemoryBinds), len(batch.ImageMemoryBinds))
	return b.enqueue(q, w)
}

// QueuePresent is executed in queue order after earlier submissions and
// returns once every swapchain has a result.
func (b *Backend) QueuePresent(qh metadata.Handle, batch *metadata.PresentBatch, results []metadata.Result) error {
	if b.IsLost() {
		for i := range results {
			results[i] = metadata.RESULT_ERROR_DEVICE_LOST
		}
		return errDeviceLost()
	}

	b.mu.Lock()
	q, ok := b.queuesByHandle[qh]
	if !ok {
		b.mu.Unlock()
		return invalidHandle(metadata.OBJECT_TYPE_QUEUE, qh)
	}
	if !b.families[q.family].Present {
		b.mu.Unlock()
		return fmt.Errorf("queue family %d cannot present: %w", q.family, core.ErrUnsupported)
	}
	w := &work{
		kind:    workPresent,
		present: batch,
		results: make([]metadata.Result, len(batch.Swapchains)),
		groups:  []workGroup{{waits: append([]metadata.Handle(nil), batch.WaitSemaphores...)}},
		done:    make(chan struct{}),
	}
	if err := b.checkSync(metadata.NullHandle, w.groups); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	if err := b.enqueue(q, w); err != nil {
		return err
	}
	select {
	case <-w.done:
	case <-b.lost:
		for i := range results {
			results[i] = metadata.RESULT_ERROR_DEVICE_LOST
		}
		return errDeviceLost()
	case <-b.quit:
		return core.ErrDeviceDestroyed
	}

	var first error
	for i, res := range w.results {
		if i < len(results) {
			results[i] = res
		}
		if err := res.Err(); err != nil && first == nil {
			first = fmt.Errorf("swapchain %d: %w", i, err)
		}
	}
	return first
}

func (b *Backend) QueueWaitIdle(qh metadata.Handle) error {
	b.mu.Lock()
	q, ok := b.queuesByHandle[qh]
	b.mu.Unlock()
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_QUEUE, qh)
	}
	_, err := b.waitFor(func() bool { return q.completed == q.submitted }, time.Time{})
	return err
}

func (b *Backend) enqueue(q *queue, w *work) error {
	for {
		if _, err := b.waitFor(func() bool { return !q.pending.IsFull() }, time.Time{}); err != nil {
			return err
		}
		b.mu.Lock()
		if err := q.pending.Enqueue(w); err == nil {
			q.submitted++
			b.broadcast()
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
	}
}

// run is the executor of one queue. It stops when the device is lost or destroyed.
func (b *Backend) run(q *queue) {
	defer b.wg.Done()
	for {
		var w *work
		_, err := b.waitFor(func() bool {
			if q.pending.IsEmpty() {
				return false
			}
			w, _ = q.pending.Dequeue()
			return true
		}, time.Time{})
		if err != nil {
			return
		}

		b.execute(q, w)

		b.mu.Lock()
		q.completed++
		b.broadcast()
		b.mu.Unlock()
	}
}

func (b *Backend) execute(q *queue, w *work) {
	for _, g := range w.groups {
		if err := b.consume(g.waits); err != nil {
			return
		}
		switch w.kind {
		case workSubmit:
			for i, stream := range g.streams {
				if err := b.runStream(q, g.buffers[i], stream); err != nil {
					return
				}
			}
		case workSparse:
			b.applySparse(w.sparse, g.sparseGroup)
		case workPresent:
			b.presentImages(w)
		}
		b.signal(g.signals)
	}
	if w.kind == workSubmit || w.kind == workSparse {
		b.signalFence(w.fence)
	}
	if w.done != nil {
		close(w.done)
	}
}

// consume blocks until every semaphore is signaled, then unsignals them.
func (b *Backend) consume(waits []metadata.Handle) error {
	if len(waits) == 0 {
		return nil
	}
	_, err := b.waitFor(func() bool {
		for _, h := range waits {
			if s, ok := b.semaphores[h]; ok && !s.signaled {
				return false
			}
		}
		for _, h := range waits {
			if s, ok := b.semaphores[h]; ok {
				s.signaled = false
				s.waits++
			}
		}
		return true
	}, time.Time{})
	return err
}

func (b *Backend) signal(signals []metadata.Handle) {
	if len(signals) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range signals {
		if s, ok := b.semaphores[h]; ok {
			s.signaled = true
			s.signals++
		}
	}
	b.broadcast()
}

func (b *Backend) signalFence(h metadata.Handle) {
	if h.IsNull() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.fences[h]; ok {
		f.signaled = true
	}
	b.broadcast()
}

func (b *Backend) runStream(q *queue, cb metadata.Handle, stream []step) error {
	exec := Execution{Queue: q.handle, CommandBuffer: cb, Ops: make([]metadata.Opcode, 0, len(stream))}
	for _, s := range stream {
		switch cmd := s.cmd.(type) {
		case metadata.CmdSetEvent:
			b.setEventFromDevice(cmd.Event, true)
		case metadata.CmdResetEvent:
			b.setEventFromDevice(cmd.Event, false)
		case metadata.CmdWaitEvents:
			if _, err := b.waitFor(func() bool {
				for _, h := range cmd.Events {
					if e, ok := b.events[h]; ok && !e.set {
						return false
					}
				}
				return true
			}, time.Time{}); err != nil {
				return err
			}
		}
		exec.Ops = append(exec.Ops, s.cmd.Op())
	}
	b.mu.Lock()
	b.executions = append(b.executions, exec)
	b.mu.Unlock()
	return nil
}

func (b *Backend) setEventFromDevice(h metadata.Handle, set bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.events[h]; ok {
		e.set = set
		b.broadcast()
	}
}

func (b *Backend) presentImages(w *work) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range w.present.Swapchains {
		sc, ok := b.swapchains[h]
		if !ok {
			w.results[i] = metadata.RESULT_ERROR_SURFACE_LOST
			continue
		}
		idx := w.present.ImageIndices[i]
		switch {
		case !sc.result.IsSuccess():
			w.results[i] = sc.result
		case int(idx) >= len(sc.images):
			w.results[i] = metadata.RESULT_ERROR_VALIDATION_FAILED
		default:
			sc.presented = append(sc.presented, idx)
			w.results[i] = sc.result
		}
	}
}

// Submissions returns every submission received so far.
func (b *Backend) Submissions() []SubmitRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SubmitRecord(nil), b.submissions...)
}

// Executions returns the command buffers executed so far, in execution order.
func (b *Backend) Executions() []Execution {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Execution(nil), b.executions...)
}

func cloneSubmit(batch *metadata.SubmitBatch) metadata.SubmitBatch {
	return metadata.SubmitBatch{
		CommandBuffers: append([]metadata.Handle(nil), batch.CommandBuffers...),
		Semaphores:     append([]metadata.Handle(nil), batch.Semaphores...),
		WaitStages:     append([]metadata.PipelineStageFlags(nil), batch.WaitStages...),
		Groups:         append([]metadata.SubmitGroup(nil), batch.Groups...),
	}
}

func cloneSparse(batch *metadata.SparseBatch) *metadata.SparseBatch {
	return &metadata.SparseBatch{
		MemoryBinds:      append([]metadata.SparseMemoryBind(nil), batch.MemoryBinds...),
		ImageMemoryBinds: append([]metadata.SparseImageMemoryBind(nil), batch.ImageMemoryBinds...),
		BufferBinds:      append([]metadata.SparseResourceBinds(nil), batch.BufferBinds...),
		ImageOpaqueBinds: append([]metadata.SparseResourceBinds(nil), batch.ImageOpaqueBinds...),
		ImageBinds:       append([]metadata.SparseResourceBinds(nil), batch.ImageBinds...),
		Semaphores:       append([]metadata.Handle(nil), batch.Semaphores...),
		Groups:           append([]metadata.SparseBindGroup(nil), batch.Groups...),
	}
}
