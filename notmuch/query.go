package notmuch

import (
	"runtime"
	"time"
)

// Sort orders query results.
type Sort int

const (
	// SortOldestFirst orders by date, oldest first.
	SortOldestFirst Sort = iota
	// SortNewestFirst orders by date, newest first. It is the default.
	SortNewestFirst
	// SortMessageID orders by Message-ID.
	SortMessageID
	// SortUnsorted returns results in engine order.
	SortUnsorted
)

var sortNames = [...]string{"oldest-first", "newest-first", "message-id", "unsorted"}

// String returns the sort name as accepted by ParseSort.
func (s Sort) String() string {
	if s >= 0 && int(s) < len(sortNames) {
		return sortNames[s]
	}
	return "unknown"
}

// ParseSort parses a sort name produced by Sort.String.
func ParseSort(name string) (Sort, bool) {
	for i, n := range sortNames {
		if n == name {
			return Sort(i), true
		}
	}
	return SortNewestFirst, false
}

// Query is a search over a database. Results returned by SearchMessages and
// SearchThreads keep the query, and through it the database, alive until they
// are destroyed.
type Query struct {
	derived
}

func newQuery(ptr handle, r *root) *Query {
	dbShare := newShare(r.cell)
	_, first := newRefcell("query", ptr, func(p handle) {
		native.queryDestroy(p)
		dbShare.drop()
	})
	q := &Query{}
	q.init(ptr, r, first)
	attach(q, first)
	return q
}

// String returns the query string q was created with.
func (q *Query) String() string {
	defer runtime.KeepAlive(q)
	if q.check("query string") != nil {
		return ""
	}
	return native.queryString(q.ptr)
}

// Sort returns the current result order.
func (q *Query) Sort() Sort {
	defer runtime.KeepAlive(q)
	if q.check("query get sort") != nil {
		return SortNewestFirst
	}
	return native.queryGetSort(q.ptr)
}

// SetSort sets the result order used by later searches.
func (q *Query) SetSort(sort Sort) error {
	defer runtime.KeepAlive(q)
	if err := q.check("query set sort"); err != nil {
		return err
	}
	native.querySetSort(q.ptr, sort)
	return nil
}

// SearchMessages runs the query and returns the matching messages.
func (q *Query) SearchMessages() (*Messages, error) {
	defer runtime.KeepAlive(q)
	const op = "search messages"
	if err := q.check(op); err != nil {
		return nil, err
	}
	start := time.Now()
	ptr, st := native.querySearchMessages(q.ptr)
	err := q.root.statusError(op, st)
	q.root.inst.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return newMessages(ptr, q.root, q.owner()), nil
}

// SearchThreads runs the query and returns the threads containing at least
// one matching message.
func (q *Query) SearchThreads() (*Threads, error) {
	defer runtime.KeepAlive(q)
	const op = "search threads"
	if err := q.check(op); err != nil {
		return nil, err
	}
	start := time.Now()
	ptr, st := native.querySearchThreads(q.ptr)
	err := q.root.statusError(op, st)
	q.root.inst.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return newThreads(ptr, q.root, q.owner()), nil
}

// CountMessages returns the number of matching messages.
func (q *Query) CountMessages() (uint, error) {
	defer runtime.KeepAlive(q)
	const op = "count messages"
	if err := q.check(op); err != nil {
		return 0, err
	}
	start := time.Now()
	n, st := native.queryCountMessages(q.ptr)
	err := q.root.statusError(op, st)
	q.root.inst.record(op, start, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CountThreads returns the number of threads with at least one matching
// message.
func (q *Query) CountThreads() (uint, error) {
	defer runtime.KeepAlive(q)
	const op = "count threads"
	if err := q.check(op); err != nil {
		return 0, err
	}
	start := time.Now()
	n, st := native.queryCountThreads(q.ptr)
	err := q.root.statusError(op, st)
	q.root.inst.record(op, start, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Destroy releases q. The engine query is freed once every result obtained
// from it has been destroyed too.
func (q *Query) Destroy() {
	q.release()
}
