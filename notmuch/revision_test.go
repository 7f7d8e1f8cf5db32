//go:build !notmuch_norevision && (!notmuch || !cgo)

package notmuch

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestRevisionAdvancesOnWrites(t *testing.T) {
	f := newFixture(t)

	before, err := f.db.Revision()
	be.Err(t, err, nil)
	be.True(t, before.UUID != "")
	be.True(t, before.Revision > 0)

	msg, err := f.db.FindMessage("report@example.com")
	be.Err(t, err, nil)
	defer msg.Destroy()
	be.Err(t, msg.AddTag("reviewed"), nil)

	after, err := f.db.Revision()
	be.Err(t, err, nil)
	be.Equal(t, after.UUID, before.UUID)
	be.True(t, after.Revision > before.Revision)

	be.Err(t, msg.AddTag("reviewed"), nil)
	again, err := f.db.Revision()
	be.Err(t, err, nil)
	be.Equal(t, again.Revision, after.Revision)
}

func TestRevisionUnsupportedByEngine(t *testing.T) {
	useCountingEngine(t)
	db, err := Create(t.TempDir())
	be.Err(t, err, nil)
	defer db.Close()

	_, err = db.Revision()
	be.Err(t, err, StatusUnsupportedOperation)
}

func TestRevisionLookupFailure(t *testing.T) {
	f := newFixture(t)

	raw, err := openSQLite(sqlitePath(f.root), "rw")
	be.Err(t, err, nil)
	_, err = raw.Exec(`DROP TABLE meta`)
	be.Err(t, err, nil)
	be.Err(t, raw.Close(), nil)

	_, err = f.db.Revision()
	be.Err(t, err, StatusXapianException)
	be.True(t, strings.Contains(f.db.StatusString(), "no such table"))
}
