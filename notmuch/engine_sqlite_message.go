//go:build !notmuch || !cgo

package notmuch

import (
	"bytes"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// maxIndexedBody bounds how much of a message body is kept for free text
// search.
const maxIndexedBody = 256 << 10

var (
	errNotEmail     = errors.New("file is not an email message")
	messageIDRegexp = regexp.MustCompile(`<([^<>\s]+)>`)
	wordDecoder     = &mime.WordDecoder{}
)

type sqliteMessage struct {
	db        *sqliteDB
	id        int64
	messageID string
	threadID  string
	date      int64
	subject   string
	author    string
	headers   string
}

func sqliteMessageOf(h handle) *sqliteMessage {
	return (*sqliteMessage)(h)
}

const sqliteMessageColumns = `m.id, m.message_id, m.thread_id, m.date, m.subject, m.author, m.headers`

func (d *sqliteDB) loadMessages(q sqliteQuerier, query string, args ...any) ([]*sqliteMessage, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*sqliteMessage
	for rows.Next() {
		m := &sqliteMessage{db: d}
		if err := rows.Scan(&m.id, &m.messageID, &m.threadID, &m.date, &m.subject, &m.author, &m.headers); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *sqliteDB) loadMessage(q sqliteQuerier, id int64) (*sqliteMessage, error) {
	msgs, err := d.loadMessages(q, `SELECT `+sqliteMessageColumns+` FROM messages m WHERE m.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, sql.ErrNoRows
	}
	return msgs[0], nil
}

// parsedMail is what gets indexed from one message file.
type parsedMail struct {
	messageID  string
	subject    string
	author     string
	recipients string
	date       int64
	refs       []string
	headers    string
	body       string
}

func parseMailFile(raw []byte) (*parsedMail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotEmail, err)
	}
	h := msg.Header
	if h.Get("From") == "" && h.Get("Subject") == "" && h.Get("To") == "" && h.Get("Date") == "" && h.Get("Message-Id") == "" {
		return nil, errNotEmail
	}

	p := &parsedMail{
		headers: headerBlock(raw),
		subject: decodeHeader(h.Get("Subject")),
		author:  decodeHeader(h.Get("From")),
	}
	var recipients []string
	for _, key := range []string{"To", "Cc"} {
		if v := decodeHeader(h.Get(key)); v != "" {
			recipients = append(recipients, v)
		}
	}
	p.recipients = strings.Join(recipients, ", ")

	if ids := messageIDs(h.Get("Message-Id")); len(ids) > 0 {
		p.messageID = ids[0]
	} else if id := strings.TrimSpace(h.Get("Message-Id")); id != "" && !strings.ContainsAny(id, " \t") {
		p.messageID = id
	} else {
		sum := sha1.Sum(raw)
		p.messageID = "notmuch-sha1-" + hex.EncodeToString(sum[:])
	}
	if t, err := mail.ParseDate(h.Get("Date")); err == nil {
		p.date = t.Unix()
	}
	for _, id := range append(messageIDs(h.Get("References")), messageIDs(h.Get("In-Reply-To"))...) {
		if id != p.messageID && !slices.Contains(p.refs, id) {
			p.refs = append(p.refs, id)
		}
	}

	body, err := io.ReadAll(io.LimitReader(msg.Body, maxIndexedBody))
	if err == nil {
		p.body = string(body)
	}
	return p, nil
}

func headerBlock(raw []byte) string {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[:i])
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}

func messageIDs(value string) []string {
	var ids []string
	for _, m := range messageIDRegexp.FindAllStringSubmatch(value, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// refsColumn stores references so that a LIKE on "<id>" finds children.
func refsColumn(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	return "<" + strings.Join(refs, "> <") + ">"
}

// resolveThread picks the thread for a new message from its parents and from
// already indexed replies to it, merging threads the message connects.
func (d *sqliteDB) resolveThread(q sqliteQuerier, p *parsedMail) (string, error) {
	var threads []string
	for _, ref := range p.refs {
		var tid string
		err := q.QueryRow(`SELECT thread_id FROM messages WHERE message_id = ?`, ref).Scan(&tid)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", err
		}
		if !slices.Contains(threads, tid) {
			threads = append(threads, tid)
		}
	}
	children, err := collectStrings(q,
		`SELECT DISTINCT thread_id FROM messages WHERE refs LIKE ? ESCAPE '\'`,
		"%<"+escapeLike(p.messageID)+">%")
	if err != nil {
		return "", err
	}
	for _, tid := range children {
		if !slices.Contains(threads, tid) {
			threads = append(threads, tid)
		}
	}

	if len(threads) == 0 {
		next, err := metaInt(q, "next_thread")
		if err != nil {
			return "", err
		}
		if _, err := q.Exec(`UPDATE meta SET value = value + 1 WHERE key = 'next_thread'`); err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", next), nil
	}
	for _, other := range threads[1:] {
		if _, err := q.Exec(`UPDATE messages SET thread_id = ? WHERE thread_id = ?`, threads[0], other); err != nil {
			return "", err
		}
	}
	return threads[0], nil
}

func (sqliteEngine) databaseIndexFile(h handle, filename string) (handle, Status) {
	d := sqliteDBOf(h)
	if st := d.writable(); st != StatusSuccess {
		return nil, st
	}
	abs := filename
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(d.root, filename)
	}
	rel, st := d.relPath(abs)
	if st != StatusSuccess {
		return nil, st
	}
	if rel == "" {
		d.setErr("cannot index the mail root itself")
		return nil, StatusPathError
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		d.setErr("reading %s: %v", abs, err)
		return nil, StatusFileError
	}
	p, err := parseMailFile(raw)
	if err != nil {
		d.setErr("%s: %v", abs, err)
		return nil, StatusFileNotEmail
	}
	dir, name := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")

	tx, err := d.sql.Begin()
	if err != nil {
		return nil, d.fail("index file", err)
	}
	defer tx.Rollback()

	dirID, err := ensureDirectory(tx, dir)
	if err != nil {
		return nil, d.fail("index file", err)
	}

	var existing int64
	err = tx.QueryRow(`SELECT id FROM messages WHERE message_id = ?`, p.messageID).Scan(&existing)
	switch {
	case err == nil:
		if _, err := tx.Exec(`INSERT OR IGNORE INTO files (message, directory, name) VALUES (?, ?, ?)`, existing, dirID, name); err != nil {
			return nil, d.fail("index file", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, d.fail("index file", err)
		}
		m, err := d.loadMessage(d.sql, existing)
		if err != nil {
			return nil, d.fail("index file", err)
		}
		return handle(m), StatusDuplicateMessageID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, d.fail("index file", err)
	}

	threadID, err := d.resolveThread(tx, p)
	if err != nil {
		return nil, d.fail("index file", err)
	}
	rev, err := bumpRevision(tx)
	if err != nil {
		return nil, d.fail("index file", err)
	}
	res, err := tx.Exec(`INSERT INTO messages
		(message_id, thread_id, date, subject, author, recipients, refs, headers, body, lastmod)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.messageID, threadID, p.date, p.subject, p.author, p.recipients, refsColumn(p.refs), p.headers, p.body, rev)
	if err != nil {
		return nil, d.fail("index file", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, d.fail("index file", err)
	}
	if _, err := tx.Exec(`INSERT INTO files (message, directory, name) VALUES (?, ?, ?)`, id, dirID, name); err != nil {
		return nil, d.fail("index file", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, d.fail("index file", err)
	}
	m, err := d.loadMessage(d.sql, id)
	if err != nil {
		return nil, d.fail("index file", err)
	}
	return handle(m), StatusSuccess
}

func (sqliteEngine) databaseRemoveMessage(h handle, filename string) Status {
	d := sqliteDBOf(h)
	if st := d.writable(); st != StatusSuccess {
		return st
	}
	rel, st := d.relPath(filename)
	if st != StatusSuccess {
		return st
	}
	dir, name := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")

	tx, err := d.sql.Begin()
	if err != nil {
		return d.fail("remove message", err)
	}
	defer tx.Rollback()

	var fileID, msgID int64
	err = tx.QueryRow(`SELECT f.id, f.message FROM files f JOIN directories d ON d.id = f.directory
		WHERE d.path = ? AND f.name = ?`, dir, name).Scan(&fileID, &msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusSuccess
	}
	if err != nil {
		return d.fail("remove message", err)
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return d.fail("remove message", err)
	}
	var remaining int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM files WHERE message = ?`, msgID).Scan(&remaining); err != nil {
		return d.fail("remove message", err)
	}
	status := StatusDuplicateMessageID
	if remaining == 0 {
		status = StatusSuccess
		for _, stmt := range []string{`DELETE FROM tags WHERE message = ?`, `DELETE FROM messages WHERE id = ?`} {
			if _, err := tx.Exec(stmt, msgID); err != nil {
				return d.fail("remove message", err)
			}
		}
	}
	if _, err := bumpRevision(tx); err != nil {
		return d.fail("remove message", err)
	}
	if err := tx.Commit(); err != nil {
		return d.fail("remove message", err)
	}
	return status
}

func (sqliteEngine) databaseFindMessage(h handle, messageID string) (handle, Status) {
	d := sqliteDBOf(h)
	msgs, err := d.loadMessages(d.sql, `SELECT `+sqliteMessageColumns+` FROM messages m WHERE m.message_id = ?`, messageID)
	if err != nil {
		return nil, d.fail("find message", err)
	}
	if len(msgs) == 0 {
		return nil, StatusSuccess
	}
	return handle(msgs[0]), StatusSuccess
}

type sqliteMessages struct {
	msgs []*sqliteMessage
	i    int
}

func sqliteMessagesOf(h handle) *sqliteMessages {
	return (*sqliteMessages)(h)
}

func (sqliteEngine) messagesValid(h handle) bool {
	m := sqliteMessagesOf(h)
	return m.i < len(m.msgs)
}

func (sqliteEngine) messagesGet(h handle) handle {
	m := sqliteMessagesOf(h)
	if m.i >= len(m.msgs) {
		return nil
	}
	return handle(m.msgs[m.i])
}

func (sqliteEngine) messagesMoveToNext(h handle) {
	m := sqliteMessagesOf(h)
	if m.i < len(m.msgs) {
		m.i++
	}
}

func (sqliteEngine) messagesCollectTags(h handle) handle {
	m := sqliteMessagesOf(h)
	seen := map[string]bool{}
	var tags []string
	for ; m.i < len(m.msgs); m.i++ {
		msg := m.msgs[m.i]
		msgTags, err := msg.tags()
		if err != nil {
			msg.db.fail("messages collect tags", err)
			return nil
		}
		for _, tag := range msgTags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	slices.Sort(tags)
	return handle(&sqliteStrings{items: tags})
}

func (m *sqliteMessage) tags() ([]string, error) {
	return collectStrings(m.db.sql, `SELECT tag FROM tags WHERE message = ? ORDER BY tag`, m.id)
}

func (m *sqliteMessage) filenames() ([]string, error) {
	rows, err := m.db.sql.Query(`SELECT d.path, f.name FROM files f JOIN directories d ON d.id = f.directory
		WHERE f.message = ? ORDER BY f.id`, m.id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dir, name string
		if err := rows.Scan(&dir, &name); err != nil {
			return nil, err
		}
		out = append(out, filepath.Join(m.db.root, filepath.FromSlash(dir), name))
	}
	return out, rows.Err()
}

func (sqliteEngine) messageID(h handle) string { return sqliteMessageOf(h).messageID }
func (sqliteEngine) messageThreadID(h handle) string { return sqliteMessageOf(h).threadID }
func (sqliteEngine) messageDate(h handle) int64 { return sqliteMessageOf(h).date }

func (sqliteEngine) messageFilename(h handle) string {
	m := sqliteMessageOf(h)
	names, err := m.filenames()
	if err != nil {
		m.db.fail("message filename", err)
		return ""
	}
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (sqliteEngine) messageFilenames(h handle) handle {
	m := sqliteMessageOf(h)
	names, err := m.filenames()
	if err != nil {
		m.db.fail("message filenames", err)
		return nil
	}
	return handle(&sqliteStrings{items: names})
}

func (sqliteEngine) messageHeader(h handle, name string) string {
	m := sqliteMessageOf(h)
	parsed, err := mail.ReadMessage(strings.NewReader(m.headers + "\n\n"))
	if err != nil {
		return ""
	}
	return decodeHeader(parsed.Header.Get(name))
}

func (sqliteEngine) messageTags(h handle) handle {
	m := sqliteMessageOf(h)
	tags, err := m.tags()
	if err != nil {
		m.db.fail("message tags", err)
		return nil
	}
	return handle(&sqliteStrings{items: tags})
}

// changeTags runs stmt for the message and bumps its lastmod when a row
// changed.
func (m *sqliteMessage) changeTags(op string, stmt string, args ...any) Status {
	if st := m.db.writable(); st != StatusSuccess {
		return st
	}
	tx, err := m.db.sql.Begin()
	if err != nil {
		return m.db.fail(op, err)
	}
	defer tx.Rollback()
	res, err := tx.Exec(stmt, args...)
	if err != nil {
		return m.db.fail(op, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		rev, err := bumpRevision(tx)
		if err != nil {
			return m.db.fail(op, err)
		}
		if _, err := tx.Exec(`UPDATE messages SET lastmod = ? WHERE id = ?`, rev, m.id); err != nil {
			return m.db.fail(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return m.db.fail(op, err)
	}
	return StatusSuccess
}

func validTag(db *sqliteDB, tag string) Status {
	if tag == "" {
		db.setErr("tag must not be empty")
		return StatusIllegalArgument
	}
	if len(tag) > TagMax {
		db.setErr("tag %.20q... exceeds %d bytes", tag, TagMax)
		return StatusTagTooLong
	}
	return StatusSuccess
}

func (sqliteEngine) messageAddTag(h handle, tag string) Status {
	m := sqliteMessageOf(h)
	if st := validTag(m.db, tag); st != StatusSuccess {
		return st
	}
	return m.changeTags("message add tag", `INSERT OR IGNORE INTO tags (message, tag) VALUES (?, ?)`, m.id, tag)
}

func (sqliteEngine) messageRemoveTag(h handle, tag string) Status {
	m := sqliteMessageOf(h)
	if st := validTag(m.db, tag); st != StatusSuccess {
		return st
	}
	return m.changeTags("message remove tag", `DELETE FROM tags WHERE message = ? AND tag = ?`, m.id, tag)
}

func (sqliteEngine) messageRemoveAllTags(h handle) Status {
	m := sqliteMessageOf(h)
	return m.changeTags("message remove all tags", `DELETE FROM tags WHERE message = ?`, m.id)
}
