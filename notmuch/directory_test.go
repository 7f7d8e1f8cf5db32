//go:build !notmuch || !cgo

package notmuch

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func collectNames(t *testing.T, list func() (*Filenames, error)) []string {
	t.Helper()
	f, err := list()
	be.Err(t, err, nil)
	defer f.Destroy()
	names := []string{}
	for name := range f.All() {
		names = append(names, name)
	}
	return names
}

func TestDirectory(t *testing.T) {
	f := newFixture(t)

	rootDir, err := f.db.Directory("")
	be.Err(t, err, nil)
	defer rootDir.Destroy()
	be.Equal(t, collectNames(t, rootDir.ChildDirectories), []string{"Archive", "INBOX"})
	be.Equal(t, collectNames(t, rootDir.ChildFiles), []string{})

	inbox, err := f.db.Directory(filepath.Join(f.root, "INBOX", "cur"))
	be.Err(t, err, nil)
	defer inbox.Destroy()
	be.Equal(t, collectNames(t, inbox.ChildFiles), []string{"1:2,", "2:2,S"})
	be.Equal(t, collectNames(t, inbox.ChildDirectories), []string{})

	mtime, err := inbox.Mtime()
	be.Err(t, err, nil)
	be.True(t, mtime.IsZero())

	stamp := time.Unix(1136239445, 0)
	be.Err(t, inbox.SetMtime(stamp), nil)
	mtime, err = inbox.Mtime()
	be.Err(t, err, nil)
	be.True(t, mtime.Equal(stamp))
}

func TestDirectoryLookupMisses(t *testing.T) {
	f := newFixture(t)

	dir, err := f.db.Directory("never/indexed")
	be.Err(t, err, nil)
	be.True(t, dir == nil)

	_, err = f.db.Directory(filepath.Join(t.TempDir(), "elsewhere"))
	be.Err(t, err, StatusPathError)
	_, err = f.db.Directory("../outside")
	be.Err(t, err, StatusPathError)
}

func TestDirectoryDelete(t *testing.T) {
	f := newFixture(t)

	dir, err := f.db.Directory("Archive/cur")
	be.Err(t, err, nil)
	be.Err(t, dir.Delete(), nil)
	_, err = dir.Mtime()
	be.Err(t, err, StatusNullPointer)

	dir, err = f.db.Directory("Archive/cur")
	be.Err(t, err, nil)
	be.True(t, dir == nil)
}

func TestDirectoryListingFailure(t *testing.T) {
	f := newFixture(t)

	inbox, err := f.db.Directory("INBOX/cur")
	be.Err(t, err, nil)
	defer inbox.Destroy()

	raw, err := openSQLite(sqlitePath(f.root), "rw")
	be.Err(t, err, nil)
	_, err = raw.Exec(`DROP TABLE files`)
	be.Err(t, err, nil)
	_, err = raw.Exec(`DROP TABLE directories`)
	be.Err(t, err, nil)
	be.Err(t, raw.Close(), nil)

	_, err = inbox.ChildFiles()
	be.Err(t, err, StatusXapianException)
	_, err = inbox.ChildDirectories()
	be.Err(t, err, StatusXapianException)
	be.True(t, strings.Contains(f.db.StatusString(), "no such table"))
}
