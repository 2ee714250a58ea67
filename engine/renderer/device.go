package renderer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// TimeoutInfinite makes a wait block until the condition is met.
const TimeoutInfinite = time.Duration(math.MaxInt64)

type Options struct {
	// Name shows up in logs.
	Name string
	// Validation enables attachment layout tracking during render passes.
	Validation bool
	// SerializeQueues makes queue operations and command buffer allocation
	// safe to call from several goroutines.
	SerializeQueues bool
}

type queueKey struct {
	family, index uint32
}

// Device is the root factory. It owns the backend and hands out weak
// back-references to every object it creates.
type Device struct {
	id      core.ObjectID
	name    string
	backend Backend

	resources ResourceFactory
	passes    RenderPassFactory

	validation bool
	locks      *LockPool

	metrics *core.Metrics
	events  *core.EventBus

	mu     sync.Mutex
	queues map[queueKey]*Queue

	destroyed atomic.Bool
	lost      atomic.Bool
	lostOnce  sync.Once
}

func NewDevice(backend Backend, opts Options) (*Device, error) {
	if backend == nil {
		err := fmt.Errorf("failed to create device: %w", core.ErrInvalidArgument)
		core.LogError("%s", err)
		return nil, err
	}

	d := &Device{
		id:         core.NewObjectID(),
		name:       opts.Name,
		backend:    backend,
		validation: opts.Validation,
		metrics:    core.NewMetrics(),
		events:     core.NewEventBus(),
		queues:     make(map[queueKey]*Queue),
	}
	if d.name == "" {
		d.name = core.DebugName("device", d.id)
	}
	if rf, ok := backend.(ResourceFactory); ok {
		d.resources = rf
	}
	if pf, ok := backend.(RenderPassFactory); ok {
		d.passes = pf
	}
	if opts.SerializeQueues {
		d.locks = NewLockPool()
	}

	core.LogWith("device", d.name, "backend", backend.Name()).Info("device created",
		"validation", d.validation,
		"serialize_queues", opts.SerializeQueues,
		"families", len(backend.QueueFamilies()))
	return d, nil
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Backend() Backend {
	return d.backend
}

func (d *Device) Validation() bool {
	return d.validation
}

func (d *Device) Metrics() core.MetricsSnapshot {
	return d.metrics.Snapshot()
}

// Events is the device event bus. EVENT_CODE_DEVICE_LOST is fired on it.
func (d *Device) Events() *core.EventBus {
	return d.events
}

func (d *Device) IsLost() bool {
	return d.lost.Load()
}

// SupportsResourceCreation reports whether Create* calls for buffers, images,
// layouts, pipelines and swapchains are available on this backend.
func (d *Device) SupportsResourceCreation() bool {
	return d.resources != nil
}

func (d *Device) QueueFamilies() []metadata.QueueFamilyProperties {
	return d.backend.QueueFamilies()
}

// FindQueueFamily returns the first family that supports all of flags.
func (d *Device) FindQueueFamily(flags metadata.QueueFlags) (uint32, bool) {
	for i, f := range d.backend.QueueFamilies() {
		if metadata.HasFlags(f.Flags, flags) {
			return uint32(i), true
		}
	}
	return 0, false
}

// Queue returns the queue at (family, index). Repeated calls return the same object.
func (d *Device) Queue(family, index uint32) (*Queue, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	families := d.backend.QueueFamilies()
	if int(family) >= len(families) || index >= families[family].QueueCount {
		return nil, fmt.Errorf("queue %d/%d: %w", family, index, core.ErrQueueNotFound)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := queueKey{family: family, index: index}
	if q, ok := d.queues[key]; ok {
		return q, nil
	}
	h, err := d.backend.GetQueue(family, index)
	if err != nil {
		return nil, d.fail("get queue", err)
	}
	q := &Queue{
		deviceLink: linkTo(d),
		id:         core.NewObjectID(),
		handle:     h,
		family:     family,
		index:      index,
		flags:      families[family].Flags,
		present:    families[family].Present,
	}
	d.queues[key] = q
	return q, nil
}

func (d *Device) CreateCommandPool(family uint32, flags metadata.CommandPoolCreateFlags) (*CommandPool, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	if int(family) >= len(d.backend.QueueFamilies()) {
		return nil, fmt.Errorf("command pool for family %d: %w", family, core.ErrQueueNotFound)
	}
	h, err := d.backend.CreateCommandPool(family, flags)
	if err != nil {
		return nil, d.fail("create command pool", err)
	}
	return &CommandPool{
		deviceLink: linkTo(d),
		id:         core.NewObjectID(),
		handle:     h,
		family:     family,
		flags:      flags,
		buffers:    make(map[*commandBuffer]struct{}),
	}, nil
}

func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	h, err := d.backend.CreateFence(signaled)
	if err != nil {
		return nil, d.fail("create fence", err)
	}
	return &Fence{
		deviceLink: linkTo(d),
		id:         core.NewObjectID(),
		handle:     h,
	}, nil
}

func (d *Device) CreateSemaphore() (*Semaphore, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	h, err := d.backend.CreateSemaphore()
	if err != nil {
		return nil, d.fail("create semaphore", err)
	}
	return &Semaphore{
		deviceLink: linkTo(d),
		id:         core.NewObjectID(),
		handle:     h,
	}, nil
}

func (d *Device) CreateEvent() (*Event, error) {
	if d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	h, err := d.backend.CreateEvent()
	if err != nil {
		return nil, d.fail("create event", err)
	}
	e := &Event{}
	e.init(d, metadata.OBJECT_TYPE_EVENT, h, nil)
	return e, nil
}

// WaitForFences blocks until one (or, with waitAll, every) fence is signaled
// or the timeout elapses. A timeout returns false and no error.
func (d *Device) WaitForFences(fences []*Fence, waitAll bool, timeout time.Duration) (bool, error) {
	if d.destroyed.Load() {
		return false, core.ErrDeviceDestroyed
	}
	if len(fences) == 0 {
		return true, nil
	}
	handles := make([]metadata.Handle, len(fences))
	for i, f := range fences {
		if f == nil {
			return false, fmt.Errorf("wait for fences: %w", core.ErrNilResource)
		}
		handles[i] = f.handle
	}

	clock := core.NewClock()
	clock.Start()
	signaled, err := d.backend.WaitForFences(handles, waitAll, timeoutNanoseconds(timeout))
	clock.Stop()
	d.metrics.RecordFenceWait(clock.Elapsed(), err == nil && !signaled)
	if err != nil {
		return false, d.fail("wait for fences", err)
	}
	if !signaled {
		core.LogWarn("wait for %d fence(s) timed out after %s", len(fences), timeout)
	}
	return signaled, nil
}

func (d *Device) ResetFences(fences ...*Fence) error {
	if d.destroyed.Load() {
		return core.ErrDeviceDestroyed
	}
	handles := make([]metadata.Handle, 0, len(fences))
	for _, f := range fences {
		if f == nil {
			return fmt.Errorf("reset fences: %w", core.ErrNilResource)
		}
		handles = append(handles, f.handle)
	}
	if err := d.backend.ResetFences(handles); err != nil {
		return d.fail("reset fences", err)
	}
	for _, f := range fences {
		f.generation.Add(1)
	}
	return nil
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	if d.destroyed.Load() {
		return core.ErrDeviceDestroyed
	}
	if err := d.backend.DeviceWaitIdle(); err != nil {
		return d.fail("wait for device idle", err)
	}
	d.mu.Lock()
	for _, q := range d.queues {
		q.idleEpoch.Add(1)
	}
	d.mu.Unlock()
	return nil
}

// Destroy tears the backend down. Objects created from the device report
// core.ErrDeviceDestroyed afterwards.
func (d *Device) Destroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}
	core.LogInfo("Destroying device %s...", d.name)
	d.backend.Destroy()
	d.events.Shutdown()
}

// fail wraps a backend error, logs it and raises the device lost event
// the first time the device reports a loss.
func (d *Device) fail(op string, err error) error {
	if errors.Is(err, core.ErrDeviceLost) {
		d.lostOnce.Do(func() {
			d.lost.Store(true)
			core.LogError("device %s lost during %s", d.name, op)
			d.events.Fire(core.EVENT_CODE_DEVICE_LOST, d, core.EventContext{Err: err})
		})
	}
	err = fmt.Errorf("failed to %s: %w", op, err)
	core.LogError("%s", err)
	return err
}

func (d *Device) destroyNative(kind metadata.ObjectType, h metadata.Handle) {
	switch kind {
	case metadata.OBJECT_TYPE_EVENT:
		d.backend.DestroyEvent(h)
	default:
		d.backend.DestroyObject(kind, h)
	}
}

func (d *Device) serialize(group LockGroup, fn func() error) error {
	if d.locks == nil {
		return fn()
	}
	return d.locks.SafeCall(group, fn)
}

func (d *Device) serializeQueue(family uint32, fn func() error) error {
	if d.locks == nil {
		return fn()
	}
	return d.locks.SafeQueueCall(family, fn)
}

func timeoutNanoseconds(timeout time.Duration) uint64 {
	if timeout == TimeoutInfinite {
		return math.MaxUint64
	}
	if timeout < 0 {
		return 0
	}
	return uint64(timeout.Nanoseconds())
}

// resultError is res as an error, treating unexpected success codes as unknown failures.
func resultError(res metadata.Result) error {
	if err := res.Err(); err != nil {
		return err
	}
	return fmt.Errorf("unexpected %s: %w", res, core.ErrUnknown)
}
