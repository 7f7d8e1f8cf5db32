package notmuch

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// handle is an opaque pointer to an engine-side object.
type handle = unsafe.Pointer

// refcell owns exactly one engine allocation. The destroy routine runs once,
// on the goroutine that drops the last share.
type refcell struct {
	kind    string
	ptr     handle
	refs    atomic.Int64
	destroy func(handle)
}

// newRefcell wraps ptr and returns the cell together with its first share.
func newRefcell(kind string, ptr handle, destroy func(handle)) (*refcell, *share) {
	c := &refcell{kind: kind, ptr: ptr, destroy: destroy}
	c.refs.Store(1)
	return c, &share{cell: c}
}

func (c *refcell) acquire() {
	if c.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("notmuch: %s handle acquired after release", c.kind))
	}
}

func (c *refcell) release() {
	n := c.refs.Add(-1)
	switch {
	case n == 0:
		c.destroy(c.ptr)
	case n < 0:
		panic(fmt.Sprintf("notmuch: %s handle released more times than acquired", c.kind))
	}
}

// live reports how many shares of c are outstanding.
func (c *refcell) live() int64 {
	return c.refs.Load()
}

// share is one counted reference to a refcell. Dropping a share twice is a
// no-op; only the first drop releases the cell.
type share struct {
	cell     *refcell
	dropped  atomic.Bool
	cleanup  runtime.Cleanup
	attached bool
}

// newShare takes a new reference on c that is not tied to any Go value.
func newShare(c *refcell) *share {
	c.acquire()
	return &share{cell: c}
}

// retain takes a new reference on c for owner. If owner becomes unreachable
// without being released, the runtime drops the reference.
func retain[T any](owner *T, c *refcell) *share {
	s := newShare(c)
	attach(owner, s)
	return s
}

// attach ties an existing share to owner's lifetime. Methods that hand a
// pointer read from owner to the engine must keep owner reachable with
// runtime.KeepAlive until the engine call returns, or the cleanup may destroy
// the engine object mid-call.
func attach[T any](owner *T, s *share) {
	s.cleanup = runtime.AddCleanup(owner, func(s *share) { s.drop() }, s)
	s.attached = true
}

func (s *share) drop() bool {
	if s == nil || !s.dropped.CompareAndSwap(false, true) {
		return false
	}
	if s.attached {
		s.cleanup.Stop()
	}
	s.cell.release()
	return true
}

func (s *share) alive() bool {
	return s != nil && !s.dropped.Load()
}

// derived pairs an engine sub-resource with a share of the cell that owns its
// memory. The share keeps that cell, and through it the database, alive for as
// long as the derived value is.
type derived struct {
	ptr    handle
	root   *root
	parent *share
}

func (d *derived) init(ptr handle, r *root, parent *share) {
	d.ptr = ptr
	d.root = r
	d.parent = parent
}

// owner returns the cell that children of d must retain.
func (d *derived) owner() *refcell {
	return d.parent.cell
}

// check returns an error if d can no longer be used.
func (d *derived) check(op string) error {
	if !d.parent.alive() {
		return statusError(op, StatusNullPointer, "handle already destroyed")
	}
	return d.root.check(op)
}

func (d *derived) release() {
	d.parent.drop()
}
