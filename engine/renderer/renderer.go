package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Frame is the per-slot state of a frame in flight.
type Frame struct {
	Slot           int
	Number         uint64
	ImageIndex     uint32
	CommandBuffer  *CommandBuffer
	Fence          *Fence
	RenderComplete *Semaphore
}

// FrameLoop cycles a fixed number of frames in flight over one queue. Each
// slot owns a fence that guards reuse of its command buffer and semaphore.
type FrameLoop struct {
	device       *Device
	queue        *Queue
	pool         *CommandPool
	swapchain    *Swapchain
	frames       []*Frame
	frameNumber  uint64
	fenceTimeout time.Duration
}

// NewFrameLoop creates framesInFlight slots. swapchain may be nil, in which
// case frames are submitted but never presented.
func NewFrameLoop(d *Device, q *Queue, swapchain *Swapchain, framesInFlight int, fenceTimeout time.Duration) (*FrameLoop, error) {
	if framesInFlight <= 0 {
		return nil, fmt.Errorf("%d frames in flight: %w", framesInFlight, core.ErrInvalidArgument)
	}
	pool, err := d.CreateCommandPool(q.Family(), metadata.COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER)
	if err != nil {
		return nil, err
	}
	cbs, err := pool.AllocateCommandBuffers(uint32(framesInFlight))
	if err != nil {
		pool.Destroy()
		return nil, err
	}

	l := &FrameLoop{
		device:       d,
		queue:        q,
		pool:         pool,
		swapchain:    swapchain,
		fenceTimeout: fenceTimeout,
	}
	for i := 0; i < framesInFlight; i++ {
		// signaled so the first wait on each slot returns at once
		fence, err := d.CreateFence(true)
		if err != nil {
			l.Shutdown()
			return nil, err
		}
		sem, err := d.CreateSemaphore()
		if err != nil {
			fence.Destroy()
			l.Shutdown()
			return nil, err
		}
		l.frames = append(l.frames, &Frame{Slot: i, CommandBuffer: cbs[i], Fence: fence, RenderComplete: sem})
	}
	core.LogInfo("frame loop created with %d frames in flight", framesInFlight)
	return l, nil
}

func (l *FrameLoop) FramesInFlight() int {
	return len(l.frames)
}

func (l *FrameLoop) FrameNumber() uint64 {
	return l.frameNumber
}

// BeginFrame waits for the next slot to retire and starts recording its
// command buffer.
func (l *FrameLoop) BeginFrame() (*Frame, error) {
	f := l.frames[l.frameNumber%uint64(len(l.frames))]

	ok, err := f.Fence.Wait(l.fenceTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("frame %d slot %d: %w", l.frameNumber, f.Slot, core.ErrFrameTimeout)
	}
	if err := f.Fence.Reset(); err != nil {
		return nil, err
	}

	f.Number = l.frameNumber
	if l.swapchain != nil {
		f.ImageIndex = uint32(l.frameNumber % uint64(l.swapchain.ImageCount()))
	}
	if err := f.CommandBuffer.Begin(metadata.COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT); err != nil {
		return nil, err
	}
	return f, nil
}

// EndFrame submits the frame and presents it when the loop has a swapchain.
// A frame that cannot be ended or submitted is abandoned.
func (l *FrameLoop) EndFrame(f *Frame) error {
	if err := l.submit(f); err != nil {
		l.abandon(f)
		return err
	}
	l.frameNumber++

	if l.swapchain == nil {
		return nil
	}
	_, err := l.queue.Present(PresentInfo{
		WaitSemaphores: []*Semaphore{f.RenderComplete},
		Swapchains:     []*Swapchain{l.swapchain},
		ImageIndices:   []uint32{f.ImageIndex},
	})
	return err
}

func (l *FrameLoop) submit(f *Frame) error {
	if err := f.CommandBuffer.End(); err != nil {
		return err
	}
	info := SubmitInfo{CommandBuffers: []*CommandBuffer{f.CommandBuffer}}
	if l.swapchain != nil {
		info.SignalSemaphores = []*Semaphore{f.RenderComplete}
	}
	return l.queue.Submit([]SubmitInfo{info}, f.Fence)
}

// abandon discards what was recorded for f. The slot's fence was reset by
// BeginFrame, so an empty submission signals it again.
func (l *FrameLoop) abandon(f *Frame) {
	if err := f.CommandBuffer.Reset(0); err != nil {
		core.LogWarn("frame %d reset: %s", f.Number, err)
	}
	if err := l.queue.Submit(nil, f.Fence); err != nil {
		core.LogWarn("frame %d slot %d fence not signaled: %s", f.Number, f.Slot, err)
	}
}

// DrawFrame runs one BeginFrame, record, EndFrame cycle.
func (l *FrameLoop) DrawFrame(record func(f *Frame) error) error {
	f, err := l.BeginFrame()
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	if err := record(f); err != nil {
		core.LogError("recording frame %d failed: %s", f.Number, err)
		l.abandon(f)
		return err
	}
	if err := l.EndFrame(f); err != nil {
		core.LogError("frame %d failed: %s", f.Number, err)
		return err
	}
	return nil
}

// Shutdown waits for the device to go idle and releases every slot.
func (l *FrameLoop) Shutdown() {
	if err := l.device.WaitIdle(); err != nil {
		core.LogWarn("frame loop shutdown: %s", err)
	}
	for _, f := range l.frames {
		f.Fence.Destroy()
		f.RenderComplete.Destroy()
	}
	l.frames = nil
	l.pool.Destroy()
}
