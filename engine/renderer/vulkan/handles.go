package vulkan

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// handleTable maps the opaque handles given to the renderer onto native
// Vulkan objects. Native handles are pointers on most platforms and cannot
// be carried in a metadata.Handle directly.
type handleTable[T any] struct {
	kind    metadata.ObjectType
	mu      sync.RWMutex
	entries map[metadata.Handle]T
}

func newHandleTable[T any](kind metadata.ObjectType) *handleTable[T] {
	return &handleTable[T]{
		kind:    kind,
		entries: make(map[metadata.Handle]T),
	}
}

func (t *handleTable[T]) put(h metadata.Handle, v T) {
	t.mu.Lock()
	t.entries[h] = v
	t.mu.Unlock()
}

func (t *handleTable[T]) get(h metadata.Handle) (T, error) {
	t.mu.RLock()
	v, ok := t.entries[h]
	t.mu.RUnlock()
	if !ok {
		return v, fmt.Errorf("%s %s: %w", t.kind, h, core.ErrInvalidHandle)
	}
	return v, nil
}

// take removes h and returns what it mapped to.
func (t *handleTable[T]) take(h metadata.Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	return v, ok
}

// resolve looks up every handle in hs. A null handle resolves to the zero value.
func (t *handleTable[T]) resolve(hs []metadata.Handle) ([]T, error) {
	if len(hs) == 0 {
		return nil, nil
	}
	out := make([]T, len(hs))
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, h := range hs {
		if h.IsNull() {
			continue
		}
		v, ok := t.entries[h]
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", t.kind, h, core.ErrInvalidHandle)
		}
		out[i] = v
	}
	return out, nil
}

// optional resolves h, mapping the null handle to the zero value.
func (t *handleTable[T]) optional(h metadata.Handle) (T, error) {
	if h.IsNull() {
		var zero T
		return zero, nil
	}
	return t.get(h)
}

func (t *handleTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// drain empties the table and returns what it held.
func (t *handleTable[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.entries))
	for h, v := range t.entries {
		out = append(out, v)
		delete(t.entries, h)
	}
	return out
}

// removeIf deletes every entry matching fn and returns the removed values.
func (t *handleTable[T]) removeIf(fn func(T) bool) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	for h, v := range t.entries {
		if fn(v) {
			out = append(out, v)
			delete(t.entries, h)
		}
	}
	return out
}
