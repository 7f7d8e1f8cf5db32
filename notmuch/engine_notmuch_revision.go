//go:build notmuch && cgo && !notmuch_norevision

package notmuch

// #include <notmuch.h>
import "C"

func (notmuchEngine) databaseGetRevision(db handle) (uint64, string, Status) {
	var uuid *C.char
	rev := C.notmuch_database_get_revision(cdb(db), &uuid)
	if uuid == nil {
		return 0, "", StatusXapianException
	}
	return uint64(rev), gostring(uuid), StatusSuccess
}
