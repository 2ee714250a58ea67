package renderer

import (
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Semaphore orders submissions on the device. It has no host visible state:
// each signal must be consumed by exactly one wait before it is signaled again.
type Semaphore struct {
	deviceLink
	id        core.ObjectID
	handle    metadata.Handle
	destroyed atomic.Bool
}

func (s *Semaphore) Handle() metadata.Handle {
	return s.handle
}

func (s *Semaphore) ID() core.ObjectID {
	return s.id
}

func (s *Semaphore) DebugName() string {
	return core.DebugName("semaphore", s.id)
}

func (s *Semaphore) IsDestroyed() bool {
	return s.destroyed.Load()
}

func (s *Semaphore) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	if dev, err := s.Device(); err == nil {
		dev.backend.DestroySemaphore(s.handle)
	}
}
