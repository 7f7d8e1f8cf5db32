package notmuch

import (
	"iter"
	"runtime"
	"time"
)

// Messages is a forward-only cursor over search results.
type Messages struct {
	derived
}

func newMessages(ptr handle, r *root, owner *refcell) *Messages {
	m := &Messages{}
	m.init(ptr, r, retain(m, owner))
	return m
}

// Valid reports whether the cursor points at a message.
func (m *Messages) Valid() bool {
	defer runtime.KeepAlive(m)
	return m.check("messages valid") == nil && native.messagesValid(m.ptr)
}

// Get returns the current message, or nil when the cursor is exhausted.
func (m *Messages) Get() *Message {
	defer runtime.KeepAlive(m)
	if !m.Valid() {
		return nil
	}
	ptr := native.messagesGet(m.ptr)
	if ptr == nil {
		return nil
	}
	return newMessage(ptr, m.root, m.owner())
}

// MoveToNext advances the cursor.
func (m *Messages) MoveToNext() {
	defer runtime.KeepAlive(m)
	if m.Valid() {
		native.messagesMoveToNext(m.ptr)
	}
}

// All yields the remaining messages, advancing the cursor. Each yielded
// message stays usable after the loop ends until it is destroyed.
func (m *Messages) All() iter.Seq[*Message] {
	return func(yield func(*Message) bool) {
		for ; m.Valid(); m.MoveToNext() {
			msg := m.Get()
			if msg == nil {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// CollectTags consumes the cursor and returns the union of the remaining
// messages' tags.
func (m *Messages) CollectTags() (*Tags, error) {
	defer runtime.KeepAlive(m)
	const op = "messages collect tags"
	if err := m.check(op); err != nil {
		return nil, err
	}
	ptr := native.messagesCollectTags(m.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "")
	}
	return newTags(ptr, m.root, m.owner()), nil
}

// Destroy releases m.
func (m *Messages) Destroy() {
	m.release()
}

// Message is one indexed message, possibly stored in several files.
type Message struct {
	derived
}

func newMessage(ptr handle, r *root, owner *refcell) *Message {
	m := &Message{}
	m.init(ptr, r, retain(m, owner))
	return m
}

// ID returns the Message-ID without angle brackets.
func (m *Message) ID() string {
	defer runtime.KeepAlive(m)
	if m.check("message id") != nil {
		return ""
	}
	return native.messageID(m.ptr)
}

// ThreadID returns the id of the thread the message belongs to.
func (m *Message) ThreadID() string {
	defer runtime.KeepAlive(m)
	if m.check("message thread id") != nil {
		return ""
	}
	return native.messageThreadID(m.ptr)
}

// Filename returns the absolute path of one file holding the message.
func (m *Message) Filename() string {
	defer runtime.KeepAlive(m)
	if m.check("message filename") != nil {
		return ""
	}
	return native.messageFilename(m.ptr)
}

// Filenames lists every file holding the message.
func (m *Message) Filenames() (*Filenames, error) {
	defer runtime.KeepAlive(m)
	const op = "message filenames"
	if err := m.check(op); err != nil {
		return nil, err
	}
	ptr := native.messageFilenames(m.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "")
	}
	return newFilenames(ptr, m.root, m.owner()), nil
}

// Header returns the decoded value of the named header, or "" if the message
// has no such header.
func (m *Message) Header(name string) string {
	defer runtime.KeepAlive(m)
	if m.check("message header") != nil || checkPath("message header", name) != nil {
		return ""
	}
	return native.messageHeader(m.ptr, name)
}

// Date returns the message's Date header as a time.
func (m *Message) Date() time.Time {
	defer runtime.KeepAlive(m)
	if m.check("message date") != nil {
		return time.Time{}
	}
	return time.Unix(native.messageDate(m.ptr), 0)
}

// Tags lists the message's tags in sorted order.
func (m *Message) Tags() (*Tags, error) {
	defer runtime.KeepAlive(m)
	const op = "message tags"
	if err := m.check(op); err != nil {
		return nil, err
	}
	ptr := native.messageTags(m.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "")
	}
	return newTags(ptr, m.root, m.owner()), nil
}

// TagList returns the message's tags as a slice.
func (m *Message) TagList() ([]string, error) {
	tags, err := m.Tags()
	if err != nil {
		return nil, err
	}
	defer tags.Destroy()
	var out []string
	for tag := range tags.All() {
		out = append(out, tag)
	}
	return out, nil
}

// AddTag adds tag to the message. Tags longer than TagMax bytes are rejected
// with StatusTagTooLong.
func (m *Message) AddTag(tag string) error {
	defer runtime.KeepAlive(m)
	const op = "message add tag"
	if err := m.check(op); err != nil {
		return err
	}
	if err := checkPath(op, tag); err != nil {
		return err
	}
	return m.root.statusError(op, native.messageAddTag(m.ptr, tag))
}

// RemoveTag removes tag from the message. Removing a tag the message does not
// carry is not an error.
func (m *Message) RemoveTag(tag string) error {
	defer runtime.KeepAlive(m)
	const op = "message remove tag"
	if err := m.check(op); err != nil {
		return err
	}
	if err := checkPath(op, tag); err != nil {
		return err
	}
	return m.root.statusError(op, native.messageRemoveTag(m.ptr, tag))
}

// RemoveAllTags removes every tag from the message.
func (m *Message) RemoveAllTags() error {
	defer runtime.KeepAlive(m)
	const op = "message remove all tags"
	if err := m.check(op); err != nil {
		return err
	}
	return m.root.statusError(op, native.messageRemoveAllTags(m.ptr))
}

// Destroy releases m.
func (m *Message) Destroy() {
	m.release()
}
