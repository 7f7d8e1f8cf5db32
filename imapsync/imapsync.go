package imapsync

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spachava753/mailidx/notmuch"
)

const (
	instrumentationName = "github.com/spachava753/mailidx/imapsync"

	defaultFolder    = "imap"
	defaultBatchSize = 100
)

// Config describes the account to import from.
type Config struct {
	// Addr is the server's host:port.
	Addr string
	// TLS dials with implicit TLS. Plain connections are only meant for
	// local servers and tests.
	TLS bool
	// ServerName overrides the TLS server name derived from Addr.
	ServerName string
	Username   string
	Password   string

	// Mailboxes to import. Defaults to INBOX.
	Mailboxes []string
	// Folder is the directory under the mail root holding one maildir per
	// mailbox. Defaults to "imap".
	Folder string
	// Tags are added to newly imported messages.
	Tags []string
	// MailboxTags adds the lower-cased mailbox name as a tag.
	MailboxTags bool
	// BatchSize bounds the number of messages per UID FETCH.
	BatchSize int

	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Result counts what a sync did.
type Result struct {
	Mailboxes int
	// Fetched messages were downloaded and written to the maildir.
	Fetched int
	// Duplicates were downloaded but turned out to be copies of messages
	// already in the index.
	Duplicates int
	// Updated messages were already indexed and had their tags synced.
	Updated int
}

type syncer struct {
	db     *notmuch.Database
	cfg    Config
	c      *client.Client
	logger *slog.Logger
	tracer trace.Tracer
	result Result
}

// Sync imports the configured mailboxes into db, which must be open for
// writing. Cancelling ctx closes the connection and aborts the sync.
func Sync(ctx context.Context, db *notmuch.Database, cfg Config) (Result, error) {
	if db.Mode() != notmuch.ModeReadWrite {
		return Result{}, fmt.Errorf("imapsync: database %s is not open for writing", db.Path())
	}
	if len(cfg.Mailboxes) == 0 {
		cfg.Mailboxes = []string{"INBOX"}
	}
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	s := &syncer{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "imapsync", "addr", cfg.Addr),
		tracer: tp.Tracer(instrumentationName),
	}

	ctx, span := s.tracer.Start(ctx, "imapsync.Sync", trace.WithAttributes(
		attribute.String("imap.addr", cfg.Addr),
		attribute.Int("imap.mailboxes", len(cfg.Mailboxes)),
	))
	defer span.End()

	err := s.run(ctx)
	span.SetAttributes(
		attribute.Int("imap.fetched", s.result.Fetched),
		attribute.Int("imap.updated", s.result.Updated),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return s.result, err
}

func (s *syncer) run(ctx context.Context) error {
	c, err := connect(s.cfg)
	if err != nil {
		return err
	}
	s.c = c

	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer func() {
		if stop() {
			c.Logout()
		}
	}()

	for _, mailbox := range s.cfg.Mailboxes {
		if err := s.syncMailbox(ctx, mailbox); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		s.result.Mailboxes++
	}
	s.logger.Info("imap sync finished",
		"mailboxes", s.result.Mailboxes,
		"fetched", s.result.Fetched,
		"duplicates", s.result.Duplicates,
		"updated", s.result.Updated,
	)
	return nil
}

func connect(cfg Config) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if cfg.TLS {
		serverName := cfg.ServerName
		if serverName == "" {
			serverName, _, _ = strings.Cut(cfg.Addr, ":")
		}
		c, err = client.DialTLS(cfg.Addr, &tls.Config{ServerName: serverName})
	} else {
		c, err = client.Dial(cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imapsync: IMAP dial failed: %w", err)
	}

	if ok, _ := c.SupportAuth(sasl.Plain); ok {
		err = c.Authenticate(sasl.NewPlainClient("", cfg.Username, cfg.Password))
	} else {
		err = c.Login(cfg.Username, cfg.Password)
	}
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("imapsync: IMAP login failed: %w", err)
	}
	return c, nil
}

func (s *syncer) syncMailbox(ctx context.Context, mailbox string) error {
	ctx, span := s.tracer.Start(ctx, "imapsync.mailbox", trace.WithAttributes(
		attribute.String("imap.mailbox", mailbox),
	))
	defer span.End()

	status, err := s.c.Select(mailbox, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("imapsync: selecting %s failed: %w", mailbox, err)
	}

	dir, err := s.maildir(mailbox)
	if err != nil {
		return err
	}

	uids, err := s.c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return fmt.Errorf("imapsync: searching %s failed: %w", mailbox, err)
	}
	span.SetAttributes(attribute.Int("imap.messages", len(uids)))
	s.logger.Debug("selected mailbox", "mailbox", mailbox, "messages", len(uids), "uidvalidity", status.UidValidity)

	known, fresh, err := s.partition(uids)
	if err != nil {
		return err
	}
	for _, m := range known {
		if err := s.syncFlags(m.id, m.flags); err != nil {
			return err
		}
	}

	for start := 0; start < len(fresh); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.cfg.BatchSize, len(fresh))
		if err := s.fetchBodies(mailbox, dir, status.UidValidity, fresh[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// maildir returns, and creates, the maildir for mailbox.
func (s *syncer) maildir(mailbox string) (string, error) {
	name := strings.NewReplacer("/", ".", string(filepath.Separator), ".").Replace(mailbox)
	dir := filepath.Join(s.db.Path(), filepath.FromSlash(s.cfg.Folder), name)
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return "", fmt.Errorf("imapsync: creating maildir %s failed: %w", dir, err)
		}
	}
	return dir, nil
}

type knownMessage struct {
	id    string
	flags []string
}

// partition fetches envelopes and flags for uids and splits them into messages
// the index already has and UIDs whose bodies must be downloaded.
func (s *syncer) partition(uids []uint32) ([]knownMessage, []uint32, error) {
	if len(uids) == 0 {
		return nil, nil, nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchEnvelope}, messages)
	}()

	var (
		known []knownMessage
		fresh []uint32
		err   error
	)
	for msg := range messages {
		if err != nil {
			continue
		}
		id := ""
		if msg.Envelope != nil {
			id = msg.Envelope.MessageId
		}
		var found bool
		found, err = s.indexed(id)
		if found {
			known = append(known, knownMessage{id: id, flags: msg.Flags})
		} else {
			fresh = append(fresh, msg.Uid)
		}
	}
	if fetchErr := <-done; fetchErr != nil {
		return nil, nil, fmt.Errorf("imapsync: fetching envelopes failed: %w", fetchErr)
	}
	return known, fresh, err
}

func (s *syncer) indexed(messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, nil
	}
	msg, err := s.db.FindMessage(strings.TrimSpace(messageID))
	if err != nil {
		return false, fmt.Errorf("imapsync: looking up %s failed: %w", messageID, err)
	}
	if msg == nil {
		return false, nil
	}
	msg.Destroy()
	return true, nil
}

func (s *syncer) syncFlags(messageID string, flags []string) error {
	msg, err := s.db.FindMessage(strings.TrimSpace(messageID))
	if err != nil || msg == nil {
		return err
	}
	defer msg.Destroy()
	if err := msg.SyncTagsFromFlags(flags); err != nil {
		return fmt.Errorf("imapsync: syncing tags of %s failed: %w", msg.ID(), err)
	}
	s.result.Updated++
	return nil
}

func (s *syncer) fetchBodies(mailbox, dir string, uidValidity uint32, uids []uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqSet, items, messages)
	}()

	var err error
	for msg := range messages {
		if err != nil {
			continue
		}
		literal := msg.GetBody(section)
		if literal == nil {
			s.logger.Warn("server returned no body", "mailbox", mailbox, "uid", msg.Uid)
			continue
		}
		var raw []byte
		raw, err = io.ReadAll(literal)
		if err != nil {
			err = fmt.Errorf("imapsync: reading body of uid %d failed: %w", msg.Uid, err)
			continue
		}
		err = s.store(mailbox, dir, uidValidity, msg, raw)
	}
	if fetchErr := <-done; fetchErr != nil {
		return fmt.Errorf("imapsync: fetching messages failed: %w", fetchErr)
	}
	return err
}

// store writes one message into dir/cur and indexes it.
func (s *syncer) store(mailbox, dir string, uidValidity uint32, msg *imap.Message, raw []byte) error {
	name := fmt.Sprintf("%d.U%dV%d.mailidx:2,%s",
		msg.InternalDate.Unix(), msg.Uid, uidValidity, notmuch.MaildirInfo(msg.Flags))
	tmp := filepath.Join(dir, "tmp", name)
	path := filepath.Join(dir, "cur", name)
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("imapsync: writing %s failed: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("imapsync: moving %s into cur/ failed: %w", tmp, err)
	}

	m, err := s.db.IndexFile(path)
	if errors.Is(err, notmuch.StatusDuplicateMessageID) {
		s.result.Duplicates++
		s.logger.Debug("imported copy of indexed message", "mailbox", mailbox, "uid", msg.Uid, "message_id", m.ID())
		m.Destroy()
		return nil
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("imapsync: indexing uid %d of %s failed: %w", msg.Uid, mailbox, err)
	}
	defer m.Destroy()

	tags := append([]string(nil), s.cfg.Tags...)
	if s.cfg.MailboxTags {
		tags = append(tags, strings.ToLower(mailbox))
	}
	for _, tag := range tags {
		if err := m.AddTag(tag); err != nil {
			return fmt.Errorf("imapsync: tagging %s failed: %w", m.ID(), err)
		}
	}
	if err := m.SyncTagsFromFlags(msg.Flags); err != nil {
		return fmt.Errorf("imapsync: syncing tags of %s failed: %w", m.ID(), err)
	}
	s.result.Fetched++
	return nil
}
