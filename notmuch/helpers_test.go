//go:build !notmuch || !cgo

package notmuch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nalgeon/be"
)

// countingEngine records engine destroy calls.
type countingEngine struct {
	engine

	mu        sync.Mutex
	destroyed map[string]int
}

func (c *countingEngine) databaseDestroy(db handle) {
	c.count("database")
	c.engine.databaseDestroy(db)
}

func (c *countingEngine) queryDestroy(q handle) {
	c.count("query")
	c.engine.queryDestroy(q)
}

func (c *countingEngine) count(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed[kind]++
}

func (c *countingEngine) destroys(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed[kind]
}

func useCountingEngine(t *testing.T) *countingEngine {
	t.Helper()
	prev := native
	c := &countingEngine{engine: prev, destroyed: map[string]int{}}
	native = c
	t.Cleanup(func() { native = prev })
	return c
}

func writeMail(t *testing.T, root, rel string, headers ...string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	be.Err(t, os.MkdirAll(filepath.Dir(path), 0o755), nil)
	content := strings.Join(headers, "\n") + "\n\nThis is the body of " + rel + ".\n"
	be.Err(t, os.WriteFile(path, []byte(content), 0o644), nil)
	return path
}

type fixture struct {
	root string
	db   *Database
}

// newFixture creates a database with a small corpus:
//
//	lunch@example.com        INBOX/cur, tags inbox unread
//	lunch-reply@example.com  INBOX/cur, reply to lunch, tags inbox
//	report@example.com       Archive/cur, tags flagged work
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	db, err := Create(root)
	be.Err(t, err, nil)
	t.Cleanup(db.Release)

	writeMail(t, root, "INBOX/cur/1:2,",
		"From: Alice Example <alice@example.com>",
		"To: Bob Example <bob@example.com>",
		"Subject: Lunch plans",
		"Message-ID: <lunch@example.com>",
		"Date: Mon, 02 Jan 2006 15:04:05 -0700",
	)
	writeMail(t, root, "INBOX/cur/2:2,S",
		"From: Bob Example <bob@example.com>",
		"To: Alice Example <alice@example.com>",
		"Subject: Re: Lunch plans",
		"Message-ID: <lunch-reply@example.com>",
		"In-Reply-To: <lunch@example.com>",
		"Date: Tue, 03 Jan 2006 15:04:05 -0700",
	)
	writeMail(t, root, "Archive/cur/3:2,FS",
		"From: Carol <carol@example.com>",
		"To: Team <team@example.com>",
		"Subject: =?UTF-8?Q?Quarterly_r=C3=A9port?=",
		"Message-ID: <report@example.com>",
		"Date: Wed, 04 Jan 2006 15:04:05 -0700",
	)

	tags := map[string][]string{
		"INBOX/cur/1:2,":     {"inbox", "unread"},
		"INBOX/cur/2:2,S":    {"inbox"},
		"Archive/cur/3:2,FS": {"flagged", "work"},
	}
	for _, rel := range []string{"INBOX/cur/1:2,", "INBOX/cur/2:2,S", "Archive/cur/3:2,FS"} {
		msg, err := db.IndexFile(rel)
		be.Err(t, err, nil)
		for _, tag := range tags[rel] {
			be.Err(t, msg.AddTag(tag), nil)
		}
		msg.Destroy()
	}
	return &fixture{root: root, db: db}
}

func (f *fixture) messageIDs(t *testing.T, query string) []string {
	t.Helper()
	q, err := f.db.CreateQuery(query)
	be.Err(t, err, nil)
	defer q.Destroy()
	be.Err(t, q.SetSort(SortOldestFirst), nil)
	msgs, err := q.SearchMessages()
	be.Err(t, err, nil)
	defer msgs.Destroy()
	ids := []string{}
	for msg := range msgs.All() {
		ids = append(ids, msg.ID())
		msg.Destroy()
	}
	return ids
}

// downgrade rewrites the on-disk schema to version 1.
func downgrade(t *testing.T, root string) {
	t.Helper()
	db, err := openSQLite(sqlitePath(root), "rw")
	be.Err(t, err, nil)
	defer db.Close()
	for _, stmt := range []string{
		`UPDATE meta SET value = 1 WHERE key = 'version'`,
		`UPDATE messages SET lastmod = 0`,
		`DROP INDEX tags_tag`,
	} {
		_, err := db.Exec(stmt)
		be.Err(t, err, nil)
	}
}
