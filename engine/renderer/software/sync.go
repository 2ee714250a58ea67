package software

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type fence struct {
	signaled bool
}

type semaphore struct {
	signaled bool
	// signals and waits count device operations, for inspection
	signals, waits int
}

type event struct {
	set bool
}

func (b *Backend) CreateFence(signaled bool) (metadata.Handle, error) {
	if b.IsLost() {
		return metadata.NullHandle, errDeviceLost()
	}
	h := b.newHandle()
	b.mu.Lock()
	b.fences[h] = &fence{signaled: signaled}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroyFence(h metadata.Handle) {
	b.mu.Lock()
	delete(b.fences, h)
	b.mu.Unlock()
}

func (b *Backend) GetFenceStatus(h metadata.Handle) (metadata.Result, error) {
	if b.IsLost() {
		return metadata.RESULT_ERROR_DEVICE_LOST, errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.fences[h]
	if !ok {
		return metadata.RESULT_ERROR_UNKNOWN, invalidHandle(metadata.OBJECT_TYPE_FENCE, h)
	}
	if f.signaled {
		return metadata.RESULT_SUCCESS, nil
	}
	return metadata.RESULT_NOT_READY, nil
}

func (b *Backend) WaitForFences(handles []metadata.Handle, waitAll bool, timeoutNs uint64) (bool, error) {
	b.mu.Lock()
	fences := make([]*fence, len(handles))
	for i, h := range handles {
		f, ok := b.fences[h]
		if !ok {
			b.mu.Unlock()
			return false, invalidHandle(metadata.OBJECT_TYPE_FENCE, h)
		}
		fences[i] = f
	}
	b.mu.Unlock()

	cond := func() bool {
		for _, f := range fences {
			if f.signaled && !waitAll {
				return true
			}
			if !f.signaled && waitAll {
				return false
			}
		}
		return waitAll
	}
	if timeoutNs == 0 {
		if b.IsLost() {
			return false, errDeviceLost()
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		return cond(), nil
	}
	return b.waitFor(cond, deadlineFor(timeoutNs))
}

func (b *Backend) ResetFences(handles []metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range handles {
		f, ok := b.fences[h]
		if !ok {
			return invalidHandle(metadata.OBJECT_TYPE_FENCE, h)
		}
		f.signaled = false
	}
	return nil
}

func (b *Backend) CreateSemaphore() (metadata.Handle, error) {
	if b.IsLost() {
		return metadata.NullHandle, errDeviceLost()
	}
	h := b.newHandle()
	b.mu.Lock()
	b.semaphores[h] = &semaphore{}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroySemaphore(h metadata.Handle) {
	b.mu.Lock()
	delete(b.semaphores, h)
	b.mu.Unlock()
}

// SemaphoreStats reports how many times the device signaled and consumed h.
func (b *Backend) SemaphoreStats(h metadata.Handle) (signals, waits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.semaphores[h]; ok {
		return s.signals, s.waits
	}
	return 0, 0
}

func (b *Backend) CreateEvent() (metadata.Handle, error) {
	if b.IsLost() {
		return metadata.NullHandle, errDeviceLost()
	}
	h := b.newHandle()
	b.mu.Lock()
	b.events[h] = &event{}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroyEvent(h metadata.Handle) {
	b.mu.Lock()
	delete(b.events, h)
	b.mu.Unlock()
}

func (b *Backend) SetEvent(h metadata.Handle) error {
	return b.setEvent(h, true)
}

func (b *Backend) ResetEvent(h metadata.Handle) error {
	return b.setEvent(h, false)
}

func (b *Backend) setEvent(h metadata.Handle, set bool) error {
	if b.IsLost() {
		return errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.events[h]
	if !ok {
		return invalidHandle(metadata.OBJECT_TYPE_EVENT, h)
	}
	e.set = set
	b.broadcast()
	return nil
}

func (b *Backend) GetEventStatus(h metadata.Handle) (metadata.Result, error) {
	if b.IsLost() {
		return metadata.RESULT_ERROR_DEVICE_LOST, errDeviceLost()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.events[h]
	if !ok {
		return metadata.RESULT_ERROR_UNKNOWN, invalidHandle(metadata.OBJECT_TYPE_EVENT, h)
	}
	if e.set {
		return metadata.RESULT_EVENT_SET, nil
	}
	return metadata.RESULT_EVENT_RESET, nil
}
