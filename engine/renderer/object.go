package renderer

import (
	"sync/atomic"
	"weak"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Resource is anything a command buffer can keep alive while it may be executing.
type Resource interface {
	Retain()
	Release()
	ObjectType() metadata.ObjectType
}

// deviceLink is the back-reference every object keeps to its device.
// It never keeps the device alive; Device() checks liveness before use.
type deviceLink struct {
	device weak.Pointer[Device]
}

func linkTo(d *Device) deviceLink {
	return deviceLink{device: weak.Make(d)}
}

func (l deviceLink) Device() (*Device, error) {
	d := l.device.Value()
	if d == nil || d.destroyed.Load() {
		return nil, core.ErrDeviceDestroyed
	}
	return d, nil
}

// refCounted starts with the creator's reference. Destroy drops that
// reference once; the release callback runs when the count reaches zero.
type refCounted struct {
	refs     atomic.Int32
	dropped  atomic.Bool
	released atomic.Bool
	release  func()
}

func (r *refCounted) initRefs(release func()) {
	r.refs.Store(1)
	r.release = release
}

func (r *refCounted) Retain() {
	r.refs.Add(1)
}

func (r *refCounted) Release() {
	if r.refs.Add(-1) == 0 && r.released.CompareAndSwap(false, true) && r.release != nil {
		r.release()
	}
}

// Destroy gives up the creator's reference. Native destruction is deferred
// until no command buffer references the object any more.
func (r *refCounted) Destroy() {
	if r.dropped.CompareAndSwap(false, true) {
		r.Release()
	}
}

func (r *refCounted) IsDestroyed() bool {
	return r.dropped.Load()
}

func (r *refCounted) RefCount() int32 {
	return r.refs.Load()
}

// resource is the common part of every reference counted device object.
type resource struct {
	deviceLink
	refCounted
	id     core.ObjectID
	kind   metadata.ObjectType
	handle metadata.Handle
}

func (r *resource) init(d *Device, kind metadata.ObjectType, h metadata.Handle, onRelease func()) {
	r.deviceLink = linkTo(d)
	r.id = core.NewObjectID()
	r.kind = kind
	r.handle = h
	r.initRefs(func() {
		if onRelease != nil {
			onRelease()
		}
		if dev, err := r.Device(); err == nil {
			dev.destroyNative(r.kind, r.handle)
		}
	})
}

func (r *resource) Handle() metadata.Handle {
	return r.handle
}

func (r *resource) ID() core.ObjectID {
	return r.id
}

func (r *resource) ObjectType() metadata.ObjectType {
	return r.kind
}

func (r *resource) DebugName() string {
	return core.DebugName(r.kind.String(), r.id)
}
