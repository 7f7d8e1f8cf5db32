package notmuch

import (
	"iter"
	"runtime"
)

// Filenames is a forward-only cursor over file or directory names.
type Filenames struct {
	derived
}

func newFilenames(ptr handle, r *root, owner *refcell) *Filenames {
	f := &Filenames{}
	f.init(ptr, r, retain(f, owner))
	return f
}

// Valid reports whether the cursor points at a name.
func (f *Filenames) Valid() bool {
	defer runtime.KeepAlive(f)
	return f.check("filenames valid") == nil && native.filenamesValid(f.ptr)
}

// Get returns the current name, or "" when the cursor is exhausted.
func (f *Filenames) Get() string {
	defer runtime.KeepAlive(f)
	if !f.Valid() {
		return ""
	}
	return native.filenamesGet(f.ptr)
}

// MoveToNext advances the cursor.
func (f *Filenames) MoveToNext() {
	defer runtime.KeepAlive(f)
	if f.Valid() {
		native.filenamesMoveToNext(f.ptr)
	}
}

// All yields the remaining names, advancing the cursor.
func (f *Filenames) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for ; f.Valid(); f.MoveToNext() {
			if !yield(f.Get()) {
				return
			}
		}
	}
}

// Destroy releases f.
func (f *Filenames) Destroy() {
	f.release()
}
