package imapsync

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/nalgeon/be"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/spachava753/mailidx/notmuch"
)

const flaggedMail = "From: Alice Example <alice@example.com>\r\n" +
	"To: Bob Example <bob@example.com>\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Message-ID: <numbers@example.com>\r\n" +
	"Date: Tue, 03 Jan 2006 15:04:05 -0700\r\n" +
	"\r\n" +
	"See attached.\r\n"

// newServer starts an in-memory IMAP server. Its INBOX holds the backend's
// seen sample message plus flaggedMail, flagged and unseen.
func newServer(t *testing.T) string {
	t.Helper()
	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	l, err := net.Listen("tcp", "127.0.0.1:0")
	be.Err(t, err, nil)
	go s.Serve(l)
	t.Cleanup(func() { s.Close() })

	c, err := client.Dial(l.Addr().String())
	be.Err(t, err, nil)
	defer c.Logout()
	be.Err(t, c.Login("username", "password"), nil)
	date := time.Date(2006, 1, 3, 15, 4, 5, 0, time.UTC)
	be.Err(t, c.Append("INBOX", []string{imap.FlaggedFlag}, date, bytes.NewBufferString(flaggedMail)), nil)
	return l.Addr().String()
}

func newDatabase(t *testing.T) *notmuch.Database {
	t.Helper()
	db, err := notmuch.Create(t.TempDir())
	be.Err(t, err, nil)
	t.Cleanup(func() { db.Close() })
	return db
}

func tagsOf(t *testing.T, db *notmuch.Database, id string) []string {
	t.Helper()
	msg, err := db.FindMessage(id)
	be.Err(t, err, nil)
	be.True(t, msg != nil)
	defer msg.Destroy()
	tags, err := msg.TagList()
	be.Err(t, err, nil)
	return tags
}

func TestSync(t *testing.T) {
	addr := newServer(t)
	db := newDatabase(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	cfg := Config{
		Addr:           addr,
		Username:       "username",
		Password:       "password",
		Tags:           []string{"imported"},
		MailboxTags:    true,
		TracerProvider: tp,
	}
	res, err := Sync(context.Background(), db, cfg)
	be.Err(t, err, nil)
	be.Equal(t, res, Result{Mailboxes: 1, Fetched: 2})

	be.Equal(t, tagsOf(t, db, "0000000@localhost/"), []string{"imported", "inbox"})
	be.Equal(t, tagsOf(t, db, "numbers@example.com"), []string{"flagged", "imported", "inbox", "unread"})

	files, err := filepath.Glob(filepath.Join(db.Path(), "imap", "INBOX", "cur", "*"))
	be.Err(t, err, nil)
	be.Equal(t, len(files), 2)
	seen, err := filepath.Glob(filepath.Join(db.Path(), "imap", "INBOX", "cur", "*:2,S"))
	be.Err(t, err, nil)
	be.Equal(t, len(seen), 1)
	flagged, err := filepath.Glob(filepath.Join(db.Path(), "imap", "INBOX", "cur", "*:2,F"))
	be.Err(t, err, nil)
	be.Equal(t, len(flagged), 1)

	names := map[string]bool{}
	for _, span := range sr.Ended() {
		names[span.Name()] = true
	}
	be.True(t, names["imapsync.Sync"])
	be.True(t, names["imapsync.mailbox"])

	// A second run downloads nothing and re-applies server flags.
	msg, err := db.FindMessage("numbers@example.com")
	be.Err(t, err, nil)
	be.Err(t, msg.RemoveTag("flagged"), nil)
	msg.Destroy()

	res, err = Sync(context.Background(), db, cfg)
	be.Err(t, err, nil)
	be.Equal(t, res, Result{Mailboxes: 1, Updated: 2})
	be.Equal(t, tagsOf(t, db, "numbers@example.com"), []string{"flagged", "imported", "inbox", "unread"})
}

func TestSyncBadCredentials(t *testing.T) {
	addr := newServer(t)
	db := newDatabase(t)

	_, err := Sync(context.Background(), db, Config{Addr: addr, Username: "username", Password: "nope"})
	be.Err(t, err, "IMAP login failed")
}

func TestSyncUnknownMailbox(t *testing.T) {
	addr := newServer(t)
	db := newDatabase(t)

	res, err := Sync(context.Background(), db, Config{
		Addr:      addr,
		Username:  "username",
		Password:  "password",
		Mailboxes: []string{"INBOX", "Archive"},
	})
	be.Err(t, err, "selecting Archive failed")
	be.Equal(t, res.Mailboxes, 1)
}

func TestSyncCancelled(t *testing.T) {
	addr := newServer(t)
	db := newDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Sync(ctx, db, Config{Addr: addr, Username: "username", Password: "password"})
	be.Err(t, err, context.Canceled)
}

func TestSyncReadOnlyDatabase(t *testing.T) {
	root := t.TempDir()
	db, err := notmuch.Create(root)
	be.Err(t, err, nil)
	be.Err(t, db.Close(), nil)
	db, err = notmuch.Open(root, notmuch.ModeReadOnly)
	be.Err(t, err, nil)
	defer db.Close()

	_, err = Sync(context.Background(), db, Config{Addr: "127.0.0.1:1"})
	be.Err(t, err, "not open for writing")
}
