package renderer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Fence is signaled by the device when a submission naming it completes and
// unsignaled only by a host reset.
type Fence struct {
	deviceLink
	id     core.ObjectID
	handle metadata.Handle

	// generation counts host resets; submissions remember the value they saw
	generation atomic.Uint64
	destroyed  atomic.Bool
}

func (f *Fence) Handle() metadata.Handle {
	return f.handle
}

func (f *Fence) ID() core.ObjectID {
	return f.id
}

func (f *Fence) DebugName() string {
	return core.DebugName("fence", f.id)
}

// Wait blocks until the fence is signaled or timeout elapses. It returns
// false on timeout; an error means the wait itself failed.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	dev, err := f.device()
	if err != nil {
		return false, err
	}
	return dev.WaitForFences([]*Fence{f}, true, timeout)
}

// IsSignaled polls the fence without blocking.
func (f *Fence) IsSignaled() (bool, error) {
	dev, err := f.device()
	if err != nil {
		return false, err
	}
	res, err := dev.backend.GetFenceStatus(f.handle)
	if err != nil {
		return false, dev.fail("get fence status", err)
	}
	switch res {
	case metadata.RESULT_SUCCESS:
		return true, nil
	case metadata.RESULT_NOT_READY:
		return false, nil
	}
	return false, dev.fail("get fence status", resultError(res))
}

// Reset unsignals the fence. The fence must not be pending on the device.
func (f *Fence) Reset() error {
	dev, err := f.device()
	if err != nil {
		return err
	}
	return dev.ResetFences(f)
}

func (f *Fence) Destroy() {
	if !f.destroyed.CompareAndSwap(false, true) {
		return
	}
	if dev, err := f.Device(); err == nil {
		dev.backend.DestroyFence(f.handle)
	}
}

func (f *Fence) device() (*Device, error) {
	if f.destroyed.Load() {
		return nil, fmt.Errorf("%s: %w", f.DebugName(), core.ErrObjectDestroyed)
	}
	return f.Device()
}
