package notmuch

import (
	"iter"
	"runtime"
)

// Tags is a forward-only cursor over tag names.
type Tags struct {
	derived
}

func newTags(ptr handle, r *root, owner *refcell) *Tags {
	t := &Tags{}
	t.init(ptr, r, retain(t, owner))
	return t
}

// Valid reports whether the cursor points at a tag.
func (t *Tags) Valid() bool {
	defer runtime.KeepAlive(t)
	return t.check("tags valid") == nil && native.tagsValid(t.ptr)
}

// Get returns the current tag, or "" when the cursor is exhausted.
func (t *Tags) Get() string {
	defer runtime.KeepAlive(t)
	if !t.Valid() {
		return ""
	}
	return native.tagsGet(t.ptr)
}

// MoveToNext advances the cursor.
func (t *Tags) MoveToNext() {
	defer runtime.KeepAlive(t)
	if t.Valid() {
		native.tagsMoveToNext(t.ptr)
	}
}

// All yields the remaining tags, advancing the cursor.
func (t *Tags) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for ; t.Valid(); t.MoveToNext() {
			if !yield(t.Get()) {
				return
			}
		}
	}
}

// Destroy releases t.
func (t *Tags) Destroy() {
	t.release()
}
