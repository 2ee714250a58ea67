package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_INITIAL CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_EXECUTABLE
	COMMAND_BUFFER_STATE_PENDING
	COMMAND_BUFFER_STATE_INVALID
)

func (s CommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_INITIAL:
		return "initial"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_EXECUTABLE:
		return "executable"
	case COMMAND_BUFFER_STATE_PENDING:
		return "pending"
	case COMMAND_BUFFER_STATE_INVALID:
		return "invalid"
	}
	return "unknown"
}

// submission is what a command buffer remembers about one queue submission
// in order to tell when the device is done with it.
type submission struct {
	queue    *Queue
	epoch    uint64
	fence    *Fence
	fenceGen uint64
}

// complete reports whether the submission has been observed finished: its
// fence signaled or was reset since, or its queue was idled since.
func (s submission) complete() bool {
	if s.queue != nil && s.queue.idleEpoch.Load() > s.epoch {
		return true
	}
	if s.fence == nil {
		return false
	}
	if s.fence.generation.Load() != s.fenceGen {
		return true
	}
	signaled, err := s.fence.IsSignaled()
	return err != nil || signaled
}

// commandBuffer is the state machine shared by primary and secondary
// command buffers. Pending is not stored: it is derived from the
// outstanding submissions whenever the state is read.
type commandBuffer struct {
	deviceLink
	refCounted
	id     core.ObjectID
	pool   *CommandPool
	handle metadata.Handle
	level  metadata.CommandBufferLevel

	mu          sync.Mutex
	state       CommandBufferState
	usage       metadata.CommandBufferUsageFlags
	submitCount uint32
	submissions []submission
	freed       bool

	refs     ReferenceTracker
	retired  []ReferenceTracker
	bindings PipelineBindingCache
	tracker  RenderPassTracker
	observer recordingObserver

	// secondaries executed by a primary; they share its submissions
	executed []executedSecondary

	// bumped whenever the recorded contents are discarded
	recording atomic.Uint64
}

// executedSecondary pins the recording of a secondary a primary executed.
// Once the secondary is begun or reset again the primary is invalid.
type executedSecondary struct {
	buffer    *SecondaryCommandBuffer
	recording uint64
}

func (cb *commandBuffer) init(d *Device, pool *CommandPool, h metadata.Handle, level metadata.CommandBufferLevel) {
	cb.deviceLink = linkTo(d)
	cb.id = core.NewObjectID()
	cb.pool = pool
	cb.handle = h
	cb.level = level
	cb.state = COMMAND_BUFFER_STATE_INITIAL
	cb.observer = newRecordingObserver(d.validation)
	cb.tracker = newRenderPassTracker(cb.observer)
	cb.initRefs(func() { pool.release(cb) })
}

func (cb *commandBuffer) Handle() metadata.Handle {
	return cb.handle
}

func (cb *commandBuffer) ID() core.ObjectID {
	return cb.id
}

func (cb *commandBuffer) ObjectType() metadata.ObjectType {
	return metadata.OBJECT_TYPE_COMMAND_BUFFER
}

func (cb *commandBuffer) DebugName() string {
	return core.DebugName(cb.level.String()+"_command_buffer", cb.id)
}

func (cb *commandBuffer) Level() metadata.CommandBufferLevel {
	return cb.level
}

func (cb *commandBuffer) Pool() *CommandPool {
	return cb.pool
}

func (cb *commandBuffer) UsageFlags() metadata.CommandBufferUsageFlags {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.usage
}

func (cb *commandBuffer) State() CommandBufferState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func (cb *commandBuffer) IsRecording() bool {
	return cb.State() == COMMAND_BUFFER_STATE_RECORDING
}

// References is the number of resource references held by the buffer.
func (cb *commandBuffer) References() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refs.Len()
}

// Holds reports whether r was recorded into the buffer since the last reset.
func (cb *commandBuffer) Holds(r Resource) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refs.Contains(r)
}

// BoundPipeline returns the pipeline cached for bindPoint, if any.
func (cb *commandBuffer) BoundPipeline(bindPoint metadata.PipelineBindPoint) *Pipeline {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.bindings.Bound(bindPoint)
}

func (cb *commandBuffer) currentState() CommandBufferState {
	if cb.state != COMMAND_BUFFER_STATE_EXECUTABLE {
		return cb.state
	}
	if cb.staleSecondary() {
		cb.state = COMMAND_BUFFER_STATE_INVALID
		return cb.state
	}
	if cb.pending() {
		return COMMAND_BUFFER_STATE_PENDING
	}
	return cb.state
}

// staleSecondary reports whether a secondary executed by the buffer was
// re-recorded or reset after it was executed.
func (cb *commandBuffer) staleSecondary() bool {
	for _, e := range cb.executed {
		if e.buffer.recording.Load() != e.recording {
			return true
		}
	}
	return false
}

// pending drops submissions observed complete and reports whether any remain.
// A one time submit buffer turns invalid once its submission completes.
func (cb *commandBuffer) pending() bool {
	if len(cb.submissions) == 0 {
		return false
	}
	live := cb.submissions[:0]
	for _, s := range cb.submissions {
		if !s.complete() {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(cb.submissions); i++ {
		cb.submissions[i] = submission{}
	}
	cb.submissions = live
	if len(live) > 0 {
		return true
	}
	for i := range cb.retired {
		cb.retired[i].Reset()
	}
	cb.retired = cb.retired[:0]
	if metadata.HasFlags(cb.usage, metadata.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT) {
		cb.state = COMMAND_BUFFER_STATE_INVALID
	}
	return false
}

func (cb *commandBuffer) begin(info metadata.CommandBufferBeginInfo) error {
	dev, err := cb.Device()
	if err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.freed {
		return cb.protocolError("begin", core.ErrObjectDestroyed)
	}
	switch cb.currentState() {
	case COMMAND_BUFFER_STATE_RECORDING:
		return cb.protocolError("begin", core.ErrAlreadyRecording)
	case COMMAND_BUFFER_STATE_PENDING:
		if !metadata.HasFlags(cb.usage, metadata.COMMAND_BUFFER_USAGE_SIMULTANEOUS_USE) {
			return cb.protocolError("begin", core.ErrCommandBufferPending)
		}
		// the outstanding submissions still read what the buffer referenced
		cb.retired = append(cb.retired, cb.refs)
		cb.refs = ReferenceTracker{}
	}

	if err := dev.backend.BeginCommandBuffer(cb.handle, info); err != nil {
		cb.recording.Add(1)
		cb.state = COMMAND_BUFFER_STATE_INVALID
		return dev.fail("begin command buffer", err)
	}
	cb.clear()
	cb.usage = info.Flags
	cb.submitCount = 0
	cb.state = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *commandBuffer) end() error {
	dev, err := cb.Device()
	if err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != COMMAND_BUFFER_STATE_RECORDING {
		return cb.protocolError("end", core.ErrNotRecording)
	}
	if cb.tracker.Active() {
		return cb.protocolError("end", core.ErrRenderPassActive)
	}
	if err := dev.backend.EndCommandBuffer(cb.handle); err != nil {
		cb.state = COMMAND_BUFFER_STATE_INVALID
		return dev.fail("end command buffer", err)
	}
	cb.state = COMMAND_BUFFER_STATE_EXECUTABLE
	return nil
}

// Reset returns the buffer to the initial state, dropping every reference
// and the pipeline binding cache.
func (cb *commandBuffer) Reset(flags metadata.CommandBufferResetFlags) error {
	dev, err := cb.Device()
	if err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.freed {
		return cb.protocolError("reset", core.ErrObjectDestroyed)
	}
	if err := dev.backend.ResetCommandBuffer(cb.handle, flags); err != nil {
		cb.recording.Add(1)
		cb.state = COMMAND_BUFFER_STATE_INVALID
		return dev.fail("reset command buffer", err)
	}
	cb.resetLocked()
	return nil
}

// resetLocked is the host side of a reset; the caller holds cb.mu.
func (cb *commandBuffer) resetLocked() {
	cb.clear()
	for i := range cb.retired {
		cb.retired[i].Reset()
	}
	cb.retired = cb.retired[:0]
	cb.submissions = cb.submissions[:0]
	cb.usage = 0
	cb.submitCount = 0
	cb.state = COMMAND_BUFFER_STATE_INITIAL
}

func (cb *commandBuffer) clear() {
	cb.refs.Reset()
	cb.bindings.Reset()
	cb.tracker.Reset()
	for i := range cb.executed {
		cb.executed[i] = executedSecondary{}
	}
	cb.executed = cb.executed[:0]
	cb.recording.Add(1)
}

// Free gives the buffer back to its pool once nothing references it.
func (cb *commandBuffer) Free() {
	cb.Destroy()
}

// checkSubmittable is called by queues before a submission; seen counts
// occurrences of the buffer earlier in the same batch.
func (cb *commandBuffer) checkSubmittable(seen int) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.freed {
		return core.ErrObjectDestroyed
	}
	simultaneous := metadata.HasFlags(cb.usage, metadata.COMMAND_BUFFER_USAGE_SIMULTANEOUS_USE)
	oneTime := metadata.HasFlags(cb.usage, metadata.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT)
	switch cb.currentState() {
	case COMMAND_BUFFER_STATE_EXECUTABLE:
	case COMMAND_BUFFER_STATE_PENDING:
		if oneTime {
			return core.ErrOneTimeSubmitConsumed
		}
		if !simultaneous {
			return core.ErrCommandBufferPending
		}
	case COMMAND_BUFFER_STATE_INVALID:
		if oneTime && cb.submitCount > 0 {
			return core.ErrOneTimeSubmitConsumed
		}
		return core.ErrNotExecutable
	default:
		return fmt.Errorf("%s buffer: %w", cb.currentState(), core.ErrNotExecutable)
	}
	if seen > 0 {
		if oneTime {
			return core.ErrOneTimeSubmitConsumed
		}
		if !simultaneous {
			return core.ErrCommandBufferPending
		}
	}
	return nil
}

func (cb *commandBuffer) markSubmitted(s submission) {
	cb.mu.Lock()
	cb.submissions = append(cb.submissions, s)
	cb.submitCount++
	executed := append([]executedSecondary(nil), cb.executed...)
	cb.mu.Unlock()

	for _, e := range executed {
		e.buffer.markSubmitted(s)
	}
}

// protocolError logs and wraps a misuse of the recording protocol.
func (cb *commandBuffer) protocolError(op string, err error) error {
	err = fmt.Errorf("%s %s: %w", cb.DebugName(), op, err)
	core.LogError("%s", err)
	return err
}

// CommandBuffer is a primary command buffer: it can be submitted to a
// queue, begin render passes and execute secondary command buffers.
type CommandBuffer struct {
	commandBuffer
}

func (cb *CommandBuffer) base() *commandBuffer {
	return &cb.commandBuffer
}

// Begin starts recording. A buffer that is executable or invalid is reset
// implicitly.
func (cb *CommandBuffer) Begin(flags metadata.CommandBufferUsageFlags) error {
	return cb.begin(metadata.CommandBufferBeginInfo{Flags: flags})
}

func (cb *CommandBuffer) End() error {
	return cb.end()
}
