package renderer

// ReferenceTracker holds a strong reference to every resource a command
// buffer recorded, in recording order and with duplicates, until Reset.
type ReferenceTracker struct {
	refs []Resource
}

func (t *ReferenceTracker) Add(resources ...Resource) {
	for _, r := range resources {
		r.Retain()
		t.refs = append(t.refs, r)
	}
}

func (t *ReferenceTracker) Len() int {
	return len(t.refs)
}

func (t *ReferenceTracker) Contains(r Resource) bool {
	for _, ref := range t.refs {
		if ref == r {
			return true
		}
	}
	return false
}

// Reset drops every held reference.
func (t *ReferenceTracker) Reset() {
	for i, r := range t.refs {
		r.Release()
		t.refs[i] = nil
	}
	t.refs = t.refs[:0]
}
