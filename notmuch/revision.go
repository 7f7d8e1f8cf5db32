//go:build !notmuch_norevision

package notmuch

import "runtime"

// Revision identifies a point in a database's modification history. Revision
// numbers are only comparable between values with the same UUID.
type Revision struct {
	Revision uint64
	UUID     string
}

// Revision returns the database's current revision. It fails with
// StatusUnsupportedOperation when the linked engine does not track revisions.
func (db *Database) Revision() (Revision, error) {
	defer runtime.KeepAlive(db)
	const op = "get revision"
	if err := db.check(op); err != nil {
		return Revision{}, err
	}
	re, ok := native.(revisionEngine)
	if !ok {
		return Revision{}, statusError(op, StatusUnsupportedOperation, native.name()+" engine does not track revisions")
	}
	rev, uuid, st := re.databaseGetRevision(db.root.ptr())
	if err := db.root.statusError(op, st); err != nil {
		return Revision{}, err
	}
	return Revision{Revision: rev, UUID: uuid}, nil
}
