// Package software is a headless device that executes submissions on the
// host. Each queue runs its work on its own goroutine in submission order,
// honouring semaphores, events and fences, so the renderer package can be
// exercised without a GPU.
package software

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const DefaultMaxPendingSubmissions = 64

type Options struct {
	QueueFamilies []metadata.QueueFamilyProperties
	// MaxPendingSubmissions bounds each queue's backlog; submitting to a full
	// queue blocks until the executor catches up.
	MaxPendingSubmissions int
}

// DefaultQueueFamilies is one universal family with present and sparse
// support plus one async compute family.
func DefaultQueueFamilies() []metadata.QueueFamilyProperties {
	return []metadata.QueueFamilyProperties{
		{
			Flags:      metadata.QUEUE_GRAPHICS | metadata.QUEUE_COMPUTE | metadata.QUEUE_TRANSFER | metadata.QUEUE_SPARSE_BINDING,
			QueueCount: 2,
			Present:    true,
		},
		{
			Flags:      metadata.QUEUE_COMPUTE | metadata.QUEUE_TRANSFER,
			QueueCount: 1,
		},
	}
}

type queueKey struct {
	family, index uint32
}

type Backend struct {
	families   []metadata.QueueFamilyProperties
	maxPending int

	nextHandle atomic.Uint64

	mu sync.Mutex
	// changed is closed and replaced whenever any device state a waiter
	// may be blocked on changes
	changed chan struct{}

	queues         map[queueKey]*queue
	queuesByHandle map[metadata.Handle]*queue
	pools          map[metadata.Handle]*commandPool
	buffers        map[metadata.Handle]*commandBuffer
	fences         map[metadata.Handle]*fence
	semaphores     map[metadata.Handle]*semaphore
	events         map[metadata.Handle]*event
	swapchains     map[metadata.Handle]*swapchain
	objects        map[metadata.Handle]metadata.ObjectType
	sparse         map[metadata.Handle]map[uint64]metadata.SparseMemoryBind
	regions        map[metadata.Handle]map[regionKey]metadata.SparseImageMemoryBind

	submissions []SubmitRecord
	executions  []Execution

	lost      chan struct{}
	lostOnce  sync.Once
	quit      chan struct{}
	quitOnce  sync.Once
	wg        sync.WaitGroup
	destroyed atomic.Bool
}

func New(opts Options) *Backend {
	families := opts.QueueFamilies
	if len(families) == 0 {
		families = DefaultQueueFamilies()
	}
	maxPending := opts.MaxPendingSubmissions
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingSubmissions
	}

	b := &Backend{
		families:       append([]metadata.QueueFamilyProperties(nil), families...),
		maxPending:     maxPending,
		changed:        make(chan struct{}),
		queues:         make(map[queueKey]*queue),
		queuesByHandle: make(map[metadata.Handle]*queue),
		pools:          make(map[metadata.Handle]*commandPool),
		buffers:        make(map[metadata.Handle]*commandBuffer),
		fences:         make(map[metadata.Handle]*fence),
		semaphores:     make(map[metadata.Handle]*semaphore),
		events:         make(map[metadata.Handle]*event),
		swapchains:     make(map[metadata.Handle]*swapchain),
		objects:        make(map[metadata.Handle]metadata.ObjectType),
		sparse:         make(map[metadata.Handle]map[uint64]metadata.SparseMemoryBind),
		regions:        make(map[metadata.Handle]map[regionKey]metadata.SparseImageMemoryBind),
		lost:           make(chan struct{}),
		quit:           make(chan struct{}),
	}
	for family, props := range b.families {
		for index := uint32(0); index < props.QueueCount; index++ {
			q := &queue{
				handle:  b.newHandle(),
				family:  uint32(family),
				index:   index,
				pending: containers.NewRingQueue[*work](maxPending),
			}
			b.queues[queueKey{uint32(family), index}] = q
			b.queuesByHandle[q.handle] = q
			b.wg.Add(1)
			go b.run(q)
		}
	}
	core.LogDebug("software device started with %d queue families", len(b.families))
	return b
}

func (b *Backend) Name() string {
	return "software"
}

func (b *Backend) QueueFamilies() []metadata.QueueFamilyProperties {
	return append([]metadata.QueueFamilyProperties(nil), b.families...)
}

func (b *Backend) GetQueue(family, index uint32) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueKey{family, index}]
	if !ok {
		return metadata.NullHandle, fmt.Errorf("queue %d/%d: %w", family, index, core.ErrQueueNotFound)
	}
	return q.handle, nil
}

// LoseDevice simulates a device loss: pending and future work fails with
// RESULT_ERROR_DEVICE_LOST and blocked waiters are released.
func (b *Backend) LoseDevice() {
	b.lostOnce.Do(func() {
		core.LogWarn("software device lost")
		close(b.lost)
		b.mu.Lock()
		b.broadcast()
		b.mu.Unlock()
	})
}

func (b *Backend) IsLost() bool {
	select {
	case <-b.lost:
		return true
	default:
		return false
	}
}

func (b *Backend) DeviceWaitIdle() error {
	b.mu.Lock()
	queues := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		if err := b.QueueWaitIdle(q.handle); err != nil {
			return err
		}
	}
	return nil
}

// Destroy stops every queue executor. Work still queued is dropped.
func (b *Backend) Destroy() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}
	b.quitOnce.Do(func() { close(b.quit) })
	b.mu.Lock()
	b.broadcast()
	b.mu.Unlock()
	b.wg.Wait()
	core.LogDebug("software device destroyed")
}

func (b *Backend) newHandle() metadata.Handle {
	return metadata.Handle(b.nextHandle.Add(1))
}

// broadcast wakes every waiter; the caller holds b.mu.
func (b *Backend) broadcast() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// waitFor blocks until cond, evaluated with b.mu held, reports true. A zero
// deadline waits forever. It returns false when the deadline passes first.
func (b *Backend) waitFor(cond func() bool, deadline time.Time) (bool, error) {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}
	for {
		b.mu.Lock()
		if b.IsLost() {
			b.mu.Unlock()
			return false, errDeviceLost()
		}
		if cond() {
			b.mu.Unlock()
			return true, nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-b.lost:
		case <-b.quit:
			return false, core.ErrDeviceDestroyed
		case <-timeout:
			b.mu.Lock()
			ok := cond()
			b.mu.Unlock()
			return ok, nil
		}
	}
}

func deadlineFor(timeoutNs uint64) time.Time {
	if timeoutNs > math.MaxInt64 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(timeoutNs))
}

func errDeviceLost() error {
	return metadata.RESULT_ERROR_DEVICE_LOST.Err()
}

func invalidHandle(kind metadata.ObjectType, h metadata.Handle) error {
	return fmt.Errorf("%s %s: %w", kind, h, core.ErrInvalidHandle)
}
