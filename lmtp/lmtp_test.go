package lmtp

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/nalgeon/be"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/spachava753/mailidx/notmuch"
)

const lunchMail = "From: Alice Example <alice@example.com>\r\n" +
	"To: Bob Example <bob@example.com>\r\n" +
	"Subject: Lunch plans\r\n" +
	"Message-ID: <lunch@example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"\r\n" +
	"Noon at the usual place?\r\n"

func newDeliverer(t *testing.T, cfg Config) (*notmuch.Database, *Deliverer) {
	t.Helper()
	db, err := notmuch.Create(t.TempDir())
	be.Err(t, err, nil)
	t.Cleanup(func() { db.Close() })

	d, err := NewDeliverer(db, cfg)
	be.Err(t, err, nil)
	t.Cleanup(d.Close)
	return db, d
}

func messageTags(t *testing.T, db *notmuch.Database, id string) []string {
	t.Helper()
	msg, err := db.FindMessage(id)
	be.Err(t, err, nil)
	be.True(t, msg != nil)
	defer msg.Destroy()
	tags, err := msg.TagList()
	be.Err(t, err, nil)
	return tags
}

func TestDeliver(t *testing.T) {
	db, d := newDeliverer(t, Config{Folder: "INBOX"})

	delivery, err := d.Deliver(strings.NewReader(lunchMail))
	be.Err(t, err, nil)
	be.Equal(t, delivery.MessageID, "lunch@example.com")
	be.True(t, !delivery.Duplicate)
	be.Equal(t, filepath.Dir(delivery.Path), filepath.Join(db.Path(), "INBOX", "new"))

	raw, err := os.ReadFile(delivery.Path)
	be.Err(t, err, nil)
	be.True(t, !strings.Contains(string(raw), "\r\n"))

	tmp, err := os.ReadDir(filepath.Join(db.Path(), "INBOX", "tmp"))
	be.Err(t, err, nil)
	be.Equal(t, len(tmp), 0)

	be.Equal(t, messageTags(t, db, "<lunch@example.com>"), []string{"inbox", "unread"})
}

func TestDeliverTags(t *testing.T) {
	db, d := newDeliverer(t, Config{Tags: []string{"new"}})

	delivery, err := d.Deliver(strings.NewReader(lunchMail), "lists", " ", "new", "lists")
	be.Err(t, err, nil)
	be.Equal(t, delivery.Tags, []string{"new", "lists"})
	be.Equal(t, messageTags(t, db, delivery.MessageID), []string{"lists", "new"})
}

func TestDeliverDuplicate(t *testing.T) {
	db, d := newDeliverer(t, Config{})

	first, err := d.Deliver(strings.NewReader(lunchMail))
	be.Err(t, err, nil)
	second, err := d.Deliver(strings.NewReader(lunchMail), "copy")
	be.Err(t, err, nil)

	be.True(t, second.Duplicate)
	be.Equal(t, second.MessageID, first.MessageID)
	be.True(t, second.Path != first.Path)

	msg, err := db.FindMessage(first.MessageID)
	be.Err(t, err, nil)
	defer msg.Destroy()
	names, err := msg.Filenames()
	be.Err(t, err, nil)
	defer names.Destroy()
	count := 0
	for range names.All() {
		count++
	}
	be.Equal(t, count, 2)
	be.Equal(t, messageTags(t, db, first.MessageID), []string{"copy", "inbox", "unread"})
}

func TestDeliverTagFailureRollsBack(t *testing.T) {
	db, d := newDeliverer(t, Config{Folder: "INBOX"})

	_, err := d.Deliver(strings.NewReader(lunchMail), strings.Repeat("x", notmuch.TagMax+1))
	be.Err(t, err, notmuch.StatusTagTooLong)

	msg, err := db.FindMessage("lunch@example.com")
	be.Err(t, err, nil)
	be.True(t, msg == nil)
	delivered, err := os.ReadDir(filepath.Join(db.Path(), "INBOX", "new"))
	be.Err(t, err, nil)
	be.Equal(t, len(delivered), 0)

	retry, err := d.Deliver(strings.NewReader(lunchMail))
	be.Err(t, err, nil)
	be.True(t, !retry.Duplicate)
}

func TestNewDelivererReadOnly(t *testing.T) {
	root := t.TempDir()
	db, err := notmuch.Create(root)
	be.Err(t, err, nil)
	be.Err(t, db.Close(), nil)

	db, err = notmuch.Open(root, notmuch.ModeReadOnly)
	be.Err(t, err, nil)
	defer db.Close()

	_, err = NewDeliverer(db, Config{})
	be.Err(t, err, "not open for writing")
}

func TestDetailTag(t *testing.T) {
	tests := map[string]string{
		"alice@example.com":          "",
		"alice+lists@example.com":    "lists",
		"<alice+Work@example.com>":   "work",
		"alice+a+b@example.com":      "a+b",
		"alice+":                     "",
		"postmaster":                 "",
		" bob+receipts@example.org ": "receipts",
	}
	for address, want := range tests {
		be.Equal(t, DetailTag(address), want)
	}
}

func TestSessionRequiresAuth(t *testing.T) {
	_, d := newDeliverer(t, Config{})
	b := &backend{deliverer: d, username: "user", password: "secret", logger: d.logger}
	s := &session{be: b, logger: d.logger}

	be.Err(t, s.Mail("alice@example.com", nil), errAuthRequired)
	be.Err(t, s.Rcpt("bob@example.com", nil), errAuthRequired)
	be.Equal(t, s.AuthMechanisms(), []string{sasl.Plain})

	_, err := s.Auth("LOGIN")
	be.Err(t, err, errUnknownMechanism)

	server, err := s.Auth(sasl.Plain)
	be.Err(t, err, nil)
	_, _, err = server.Next([]byte("\x00user\x00wrong"))
	be.Err(t, err, errAuthFailed)
	be.True(t, !s.authed)

	server, err = s.Auth(sasl.Plain)
	be.Err(t, err, nil)
	_, _, err = server.Next([]byte("\x00user\x00secret"))
	be.Err(t, err, nil)
	be.True(t, s.authed)
	be.Err(t, s.Mail("alice@example.com", nil), nil)
}

func TestSessionWithoutAuthConfigured(t *testing.T) {
	_, d := newDeliverer(t, Config{})
	b := &backend{deliverer: d, logger: d.logger}
	sess, err := b.NewSession(nil)
	be.Err(t, err, nil)
	s := sess.(*session)

	be.Equal(t, len(s.AuthMechanisms()), 0)
	be.Err(t, s.Mail("alice@example.com", nil), nil)
	be.Err(t, s.Rcpt("bob@example.com", nil), nil)
	s.Reset()
	be.Equal(t, len(s.rcpt), 0)
}

func TestSessionWithoutRecipients(t *testing.T) {
	_, d := newDeliverer(t, Config{})
	s := &session{be: &backend{deliverer: d, logger: d.logger}, authed: true, logger: d.logger}

	err := s.Data(strings.NewReader(lunchMail))
	var smtpErr *smtp.SMTPError
	be.True(t, errors.As(err, &smtpErr))
	be.Equal(t, smtpErr.Code, 554)
}

func TestServerDelivers(t *testing.T) {
	db, d := newDeliverer(t, Config{})
	srv, err := NewServer(d, ServerConfig{
		Domain:            "mx.example.com",
		Username:          "user",
		Password:          "secret",
		AllowInsecureAuth: true,
		MeterProvider:     noop.NewMeterProvider(),
	})
	be.Err(t, err, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	be.Err(t, err, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	be.Err(t, err, nil)
	c := smtp.NewClientLMTP(conn)
	be.Err(t, c.Hello("client.example.com"), nil)
	be.Err(t, c.Auth(sasl.NewPlainClient("", "user", "secret")), nil)
	be.Err(t, c.Mail("alice@example.com", nil), nil)
	be.Err(t, c.Rcpt("bob+lunch@example.com", nil), nil)
	be.Err(t, c.Rcpt("carol@example.com", nil), nil)
	w, err := c.Data()
	be.Err(t, err, nil)
	_, err = w.Write([]byte(lunchMail))
	be.Err(t, err, nil)
	be.Err(t, w.Close(), nil)
	be.Err(t, c.Quit(), nil)

	be.Equal(t, messageTags(t, db, "lunch@example.com"), []string{"inbox", "lunch", "unread"})

	be.Err(t, srv.Close(), nil)
	be.Err(t, <-done, nil)
}

func TestServerRejectsBadCredentials(t *testing.T) {
	_, d := newDeliverer(t, Config{})
	srv, err := NewServer(d, ServerConfig{
		Username:          "user",
		Password:          "secret",
		AllowInsecureAuth: true,
		MeterProvider:     noop.NewMeterProvider(),
	})
	be.Err(t, err, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	be.Err(t, err, nil)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	conn, err := net.Dial("tcp", l.Addr().String())
	be.Err(t, err, nil)
	c := smtp.NewClientLMTP(conn)
	defer c.Close()
	be.Err(t, c.Hello("client.example.com"), nil)

	err = c.Auth(sasl.NewPlainClient("", "user", "nope"))
	be.True(t, err != nil)

	err = c.Mail("alice@example.com", nil)
	var smtpErr *smtp.SMTPError
	be.True(t, errors.As(err, &smtpErr))
	be.Equal(t, smtpErr.Code, 530)
}
