package notmuch

import (
	"iter"
	"runtime"
	"strings"
	"time"
)

// Threads is a forward-only cursor over thread search results.
type Threads struct {
	derived
}

func newThreads(ptr handle, r *root, owner *refcell) *Threads {
	t := &Threads{}
	t.init(ptr, r, retain(t, owner))
	return t
}

// Valid reports whether the cursor points at a thread.
func (t *Threads) Valid() bool {
	defer runtime.KeepAlive(t)
	return t.check("threads valid") == nil && native.threadsValid(t.ptr)
}

// Get returns the current thread, or nil when the cursor is exhausted.
func (t *Threads) Get() *Thread {
	defer runtime.KeepAlive(t)
	if !t.Valid() {
		return nil
	}
	ptr := native.threadsGet(t.ptr)
	if ptr == nil {
		return nil
	}
	th := &Thread{}
	th.init(ptr, t.root, retain(th, t.owner()))
	return th
}

// MoveToNext advances the cursor.
func (t *Threads) MoveToNext() {
	defer runtime.KeepAlive(t)
	if t.Valid() {
		native.threadsMoveToNext(t.ptr)
	}
}

// All yields the remaining threads, advancing the cursor.
func (t *Threads) All() iter.Seq[*Thread] {
	return func(yield func(*Thread) bool) {
		for ; t.Valid(); t.MoveToNext() {
			th := t.Get()
			if th == nil {
				continue
			}
			if !yield(th) {
				return
			}
		}
	}
}

// Destroy releases t.
func (t *Threads) Destroy() {
	t.release()
}

// Thread is a conversation of messages linked by reply headers.
type Thread struct {
	derived
}

// ID returns the thread id.
func (t *Thread) ID() string {
	defer runtime.KeepAlive(t)
	if t.check("thread id") != nil {
		return ""
	}
	return native.threadID(t.ptr)
}

// Subject returns the subject of the thread's first message in the query's
// sort order.
func (t *Thread) Subject() string {
	defer runtime.KeepAlive(t)
	if t.check("thread subject") != nil {
		return ""
	}
	return native.threadSubject(t.ptr)
}

// Authors returns the comma separated authors of the thread. Authors of
// matched messages come first, separated from the rest by '|'.
func (t *Thread) Authors() string {
	defer runtime.KeepAlive(t)
	if t.check("thread authors") != nil {
		return ""
	}
	return native.threadAuthors(t.ptr)
}

// AuthorList splits Authors into individual names.
func (t *Thread) AuthorList() []string {
	authors := t.Authors()
	if authors == "" {
		return nil
	}
	var out []string
	for _, a := range strings.FieldsFunc(authors, func(r rune) bool { return r == ',' || r == '|' }) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// TotalMessages returns the number of messages in the thread.
func (t *Thread) TotalMessages() int {
	defer runtime.KeepAlive(t)
	if t.check("thread total messages") != nil {
		return 0
	}
	return native.threadTotalMessages(t.ptr)
}

// MatchedMessages returns the number of messages in the thread that matched
// the query.
func (t *Thread) MatchedMessages() int {
	defer runtime.KeepAlive(t)
	if t.check("thread matched messages") != nil {
		return 0
	}
	return native.threadMatchedMessages(t.ptr)
}

// OldestDate returns the date of the thread's oldest message.
func (t *Thread) OldestDate() time.Time {
	defer runtime.KeepAlive(t)
	if t.check("thread oldest date") != nil {
		return time.Time{}
	}
	return time.Unix(native.threadOldestDate(t.ptr), 0)
}

// NewestDate returns the date of the thread's newest message.
func (t *Thread) NewestDate() time.Time {
	defer runtime.KeepAlive(t)
	if t.check("thread newest date") != nil {
		return time.Time{}
	}
	return time.Unix(native.threadNewestDate(t.ptr), 0)
}

// Tags lists the union of the tags of the thread's messages.
func (t *Thread) Tags() (*Tags, error) {
	defer runtime.KeepAlive(t)
	const op = "thread tags"
	if err := t.check(op); err != nil {
		return nil, err
	}
	ptr := native.threadTags(t.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "")
	}
	return newTags(ptr, t.root, t.owner()), nil
}

// Messages lists every message of the thread, oldest first.
func (t *Thread) Messages() (*Messages, error) {
	defer runtime.KeepAlive(t)
	const op = "thread messages"
	if err := t.check(op); err != nil {
		return nil, err
	}
	ptr := native.threadMessages(t.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "")
	}
	return newMessages(ptr, t.root, t.owner()), nil
}

// Destroy releases t.
func (t *Thread) Destroy() {
	t.release()
}
