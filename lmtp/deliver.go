package lmtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/mailidx/notmuch"
)

// DefaultTags are applied to every delivered message unless Config.Tags is set.
var DefaultTags = []string{"inbox", "unread"}

// Config controls where and how messages are delivered.
type Config struct {
	// Folder is the maildir, relative to the mail root, receiving new mail.
	// The mail root itself is used when empty.
	Folder string
	// Tags replaces DefaultTags when not nil.
	Tags []string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Delivery describes one delivered message.
type Delivery struct {
	MessageID string
	Path      string
	// Duplicate is set when a message with the same Message-ID was already
	// indexed; the new file is recorded as another copy of it.
	Duplicate bool
	Tags      []string
}

// Deliverer writes messages into a maildir and indexes them.
type Deliverer struct {
	db     *notmuch.Database
	dir    string
	tags   []string
	logger *slog.Logger

	// mu serializes writes to the index.
	mu sync.Mutex
}

// NewDeliverer returns a Deliverer writing through its own clone of db. The
// database must be open for writing.
func NewDeliverer(db *notmuch.Database, cfg Config) (*Deliverer, error) {
	if db.Mode() != notmuch.ModeReadWrite {
		return nil, fmt.Errorf("lmtp: database %s is not open for writing", db.Path())
	}
	tags := cfg.Tags
	if tags == nil {
		tags = DefaultTags
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(db.Path(), filepath.FromSlash(cfg.Folder))
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("lmtp: creating maildir %s failed: %w", dir, err)
		}
	}

	return &Deliverer{
		db:     db.Clone(),
		dir:    dir,
		tags:   append([]string(nil), tags...),
		logger: logger.With("component", "lmtp"),
	}, nil
}

// Close releases the Deliverer's database handle.
func (d *Deliverer) Close() {
	d.db.Release()
}

// Deliver stores the message read from r and indexes it with the configured
// tags plus extraTags.
func (d *Deliverer) Deliver(r io.Reader, extraTags ...string) (Delivery, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Delivery{}, fmt.Errorf("lmtp: reading message failed: %w", err)
	}
	return d.DeliverBytes(raw, extraTags...)
}

// DeliverBytes is Deliver for a message already in memory.
func (d *Deliverer) DeliverBytes(raw []byte, extraTags ...string) (Delivery, error) {
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	path, err := d.writeMaildir(raw)
	if err != nil {
		return Delivery{}, err
	}

	tags := mergeTags(d.tags, extraTags)

	d.mu.Lock()
	defer d.mu.Unlock()

	msg, err := d.db.IndexFile(path)
	duplicate := errors.Is(err, notmuch.StatusDuplicateMessageID)
	if err != nil && !duplicate {
		os.Remove(path)
		return Delivery{}, fmt.Errorf("lmtp: indexing %s failed: %w", path, err)
	}
	defer msg.Destroy()

	for _, tag := range tags {
		if err := msg.AddTag(tag); err != nil {
			err = fmt.Errorf("lmtp: tagging %s failed: %w", msg.ID(), err)
			// The sender retries after a temporary failure, so leave nothing
			// behind that would turn the retry into a duplicate.
			if rmErr := d.db.RemoveMessage(path); rmErr != nil && !errors.Is(rmErr, notmuch.StatusDuplicateMessageID) {
				err = errors.Join(err, fmt.Errorf("lmtp: unindexing %s failed: %w", path, rmErr))
			}
			os.Remove(path)
			return Delivery{}, err
		}
	}

	delivery := Delivery{
		MessageID: msg.ID(),
		Path:      path,
		Duplicate: duplicate,
		Tags:      tags,
	}
	d.logger.Info("delivered message", "message_id", delivery.MessageID, "path", path, "duplicate", duplicate)
	return delivery, nil
}

// writeMaildir stores raw under tmp/ and moves it into new/.
func (d *Deliverer) writeMaildir(raw []byte) (string, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	host = strings.NewReplacer("/", "\\057", ":", "\\072").Replace(host)
	name := fmt.Sprintf("%d.%s.%s", time.Now().Unix(), uuid.NewString(), host)

	tmp := filepath.Join(d.dir, "tmp", name)
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return "", fmt.Errorf("lmtp: writing %s failed: %w", tmp, err)
	}
	final := filepath.Join(d.dir, "new", name)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("lmtp: moving %s into new/ failed: %w", tmp, err)
	}
	return final, nil
}

func mergeTags(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, tag := range extra {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		seen := false
		for _, existing := range out {
			if existing == tag {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, tag)
		}
	}
	return out
}

// DetailTag returns the recipient detail of an address such as
// "user+detail@host", or "" when there is none.
func DetailTag(address string) string {
	address = strings.Trim(strings.TrimSpace(address), "<>")
	local, _, ok := strings.Cut(address, "@")
	if !ok {
		local = address
	}
	_, detail, ok := strings.Cut(local, "+")
	if !ok {
		return ""
	}
	return strings.ToLower(detail)
}
