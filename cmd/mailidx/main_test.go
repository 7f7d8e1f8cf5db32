//go:build !notmuch || !cgo

package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-smtp"
	"github.com/nalgeon/be"
)

const (
	lunchMail = "From: Alice Example <alice@example.com>\n" +
		"To: Bob Example <bob@example.com>\n" +
		"Subject: Lunch plans\n" +
		"Message-ID: <lunch@example.com>\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\n" +
		"\n" +
		"Noon at the usual place?\n"
	replyMail = "From: Bob Example <bob@example.com>\n" +
		"To: Alice Example <alice@example.com>\n" +
		"Subject: Re: Lunch plans\n" +
		"Message-ID: <lunch-reply@example.com>\n" +
		"In-Reply-To: <lunch@example.com>\n" +
		"Date: Tue, 03 Jan 2006 15:04:05 -0700\n" +
		"\n" +
		"Sounds good.\n"
)

// run executes mailidx with args and returns what it wrote to stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	be.Err(t, err, nil)
	return out
}

func newRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	out := mustRun(t, "-d", root, "create")
	be.Equal(t, out, "created index at "+root+"\n")
	return root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	be.Err(t, os.MkdirAll(filepath.Dir(path), 0o755), nil)
	be.Err(t, os.WriteFile(path, []byte(content), 0o644), nil)
	return path
}

func TestInfo(t *testing.T) {
	root := newRoot(t)
	out := mustRun(t, "-d", root, "info")
	be.True(t, strings.Contains(out, "path:     "+root+"\n"))
	be.True(t, strings.Contains(out, "version:  3\n"))
	be.True(t, strings.Contains(out, "revision: "))
}

func TestDatabaseFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv(databaseEnv, root)
	mustRun(t, "create")
	out := mustRun(t, "info")
	be.True(t, strings.Contains(out, root))

	t.Setenv(databaseEnv, "")
	_, err := run(t, "", "info")
	be.Err(t, err, errNoDatabase)
}

func TestIndexSearchAndTag(t *testing.T) {
	root := newRoot(t)
	writeFile(t, root, "INBOX/cur/1:2,", lunchMail)
	writeFile(t, root, "INBOX/cur/2:2,S", replyMail)
	writeFile(t, root, "Archive/cur/3:2,S", lunchMail)

	out := mustRun(t, "-d", root, "index", "-t", "inbox", "INBOX/cur/1:2,", "INBOX/cur/2:2,S")
	be.Equal(t, out, "id:lunch@example.com INBOX/cur/1:2,\nid:lunch-reply@example.com INBOX/cur/2:2,S\n")
	out = mustRun(t, "-d", root, "index", "Archive/cur/3:2,S")
	be.Equal(t, out, "id:lunch@example.com Archive/cur/3:2,S (duplicate)\n")

	be.Equal(t, mustRun(t, "-d", root, "count", "tag:inbox"), "2\n")
	be.Equal(t, mustRun(t, "-d", root, "count", "--output", "threads", "tag:inbox"), "1\n")

	out = mustRun(t, "-d", root, "search", "--output", "messages", "--sort", "oldest-first", "tag:inbox")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	be.Equal(t, len(lines), 2)
	be.True(t, strings.HasPrefix(lines[0], "id:lunch@example.com "))
	be.True(t, strings.HasSuffix(lines[0], "; Lunch plans (inbox)"))
	be.True(t, strings.HasPrefix(lines[1], "id:lunch-reply@example.com "))

	out = mustRun(t, "-d", root, "search", "tag:inbox")
	be.True(t, strings.Contains(out, "[2/2]"))
	be.True(t, strings.Contains(out, "Lunch plans (inbox)"))

	out = mustRun(t, "-d", root, "search", "--output", "files", "id:lunch@example.com")
	be.Equal(t, len(strings.Split(strings.TrimSpace(out), "\n")), 2)

	out = mustRun(t, "-d", root, "search", "--output", "messages", "--limit", "1", "tag:inbox")
	be.Equal(t, len(strings.Split(strings.TrimSpace(out), "\n")), 1)

	out = mustRun(t, "-d", root, "tag", "--", "+lunch", "-inbox", "from:alice")
	be.Equal(t, out, "tagged 1 messages\n")
	be.Equal(t, mustRun(t, "-d", root, "tags"), "inbox\nlunch\n")

	out = mustRun(t, "-d", root, "index", "--remove", "Archive/cur/3:2,S")
	be.Equal(t, out, "removed Archive/cur/3:2,S (other copies remain)\n")
	be.Equal(t, mustRun(t, "-d", root, "count", "id:lunch@example.com"), "1\n")
}

func TestSearchErrors(t *testing.T) {
	root := newRoot(t)

	_, err := run(t, "", "-d", root, "search", "--sort", "sideways", "*")
	be.Err(t, err, "unknown sort order")
	_, err = run(t, "", "-d", root, "search", "--output", "authors", "*")
	be.Err(t, err, "unknown output")
	_, err = run(t, "", "-d", root, "search", `subject:"unbalanced`)
	be.True(t, err != nil)
	_, err = run(t, "", "-d", root, "tag", "+work")
	be.Err(t, err, "no query given")
}

func TestParseTagOps(t *testing.T) {
	ops, query, err := parseTagOps([]string{"+work", "-inbox", "from:boss", "-tag:spam"})
	be.Err(t, err, nil)
	be.Equal(t, ops, []tagOp{{tag: "work", add: true}, {tag: "inbox"}})
	be.Equal(t, query, "from:boss -tag:spam")

	_, _, err = parseTagOps([]string{"from:boss"})
	be.Err(t, err, "no tag operations")
	_, _, err = parseTagOps([]string{"+", "from:boss"})
	be.Err(t, err, "no tag operations")
}

func TestDeliver(t *testing.T) {
	root := newRoot(t)

	out, err := run(t, lunchMail, "-d", root, "deliver", "--folder", "INBOX", "+lists")
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(out, "id:lunch@example.com "+filepath.Join(root, "INBOX", "new")))
	be.Equal(t, mustRun(t, "-d", root, "tags"), "inbox\nlists\nunread\n")

	_, err = run(t, lunchMail, "-d", root, "deliver", "lists")
	be.Err(t, err, "unexpected argument")
}

func TestCompactAndUpgrade(t *testing.T) {
	root := newRoot(t)
	writeFile(t, root, "INBOX/cur/1:2,", lunchMail)
	mustRun(t, "-d", root, "index", "INBOX/cur/1:2,")

	backup := filepath.Join(t.TempDir(), "index.bak")
	out := mustRun(t, "-d", root, "compact", "--backup", backup)
	be.True(t, strings.HasSuffix(out, "Done.\n"))
	_, err := os.Stat(backup)
	be.Err(t, err, nil)

	be.Equal(t, mustRun(t, "-d", root, "upgrade"), "index is up to date\n")
	be.Equal(t, mustRun(t, "-d", root, "count", "*"), "1\n")
}

func TestServe(t *testing.T) {
	root := newRoot(t)
	sock := filepath.Join(t.TempDir(), "lmtp.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out, &errOut)
	cmd.SetArgs([]string{"-d", root, "serve", "--network", "unix", "--listen", sock})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var conn net.Conn
	var err error
	for range 100 {
		if conn, err = net.Dial("unix", sock); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	be.Err(t, err, nil)

	c := smtp.NewClientLMTP(conn)
	be.Err(t, c.Hello("client.example.com"), nil)
	be.Err(t, c.Mail("alice@example.com", nil), nil)
	be.Err(t, c.Rcpt("bob+lunch@example.com", nil), nil)
	w, err := c.Data()
	be.Err(t, err, nil)
	_, err = w.Write([]byte(lunchMail))
	be.Err(t, err, nil)
	be.Err(t, w.Close(), nil)
	be.Err(t, c.Quit(), nil)

	cancel()
	be.Err(t, <-done, nil)
	be.Equal(t, mustRun(t, "-d", root, "tags"), "inbox\nlunch\nunread\n")
}

func TestImportIMAP(t *testing.T) {
	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	l, err := net.Listen("tcp", "127.0.0.1:0")
	be.Err(t, err, nil)
	go s.Serve(l)
	t.Cleanup(func() { s.Close() })

	root := newRoot(t)
	args := []string{"-d", root, "import-imap", "--addr", l.Addr().String(), "--user", "username", "-t", "imported"}

	t.Setenv(imapPasswordEnv, "")
	_, err = run(t, "", args...)
	be.Err(t, err, imapPasswordEnv)

	t.Setenv(imapPasswordEnv, "password")
	be.Equal(t, mustRun(t, args...), "1 mailboxes: 1 fetched, 0 duplicates, 0 updated\n")
	be.Equal(t, mustRun(t, args...), "1 mailboxes: 0 fetched, 0 duplicates, 1 updated\n")
	be.Equal(t, mustRun(t, "-d", root, "tags"), "imported\ninbox\n")
}
