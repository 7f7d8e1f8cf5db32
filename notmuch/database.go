package notmuch

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// DatabaseMode selects how a database is opened.
type DatabaseMode int

const (
	// ModeReadOnly opens the database for reading only.
	ModeReadOnly DatabaseMode = iota
	// ModeReadWrite opens the database for reading and writing.
	ModeReadWrite
)

// String returns the mode name.
func (m DatabaseMode) String() string {
	switch m {
	case ModeReadOnly:
		return "read-only"
	case ModeReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Version is the on-disk schema version of a database. Versions are only
// meaningful when compared with each other.
type Version uint

// root is the state shared by every clone of one opened database.
type root struct {
	cell   *refcell
	path   string
	mode   DatabaseMode
	logger *slog.Logger
	inst   *instruments

	closed atomic.Bool
	busy   atomic.Bool
	// exclusive is only ever acquired with TryLock.
	exclusive sync.Mutex
}

func (r *root) ptr() handle {
	return r.cell.ptr
}

func (r *root) check(op string) error {
	if r.closed.Load() {
		return statusError(op, StatusClosedDatabase, "")
	}
	if r.busy.Load() {
		return syncError(op, "database %s is busy with an exclusive operation", r.path)
	}
	return nil
}

// lockExclusive marks the database busy for the duration of an operation
// that must not overlap with any other use of the handle.
func (r *root) lockExclusive(op string) (func(), error) {
	if !r.exclusive.TryLock() {
		return nil, syncError(op, "database %s is already locked by another exclusive operation", r.path)
	}
	r.busy.Store(true)
	return func() {
		r.busy.Store(false)
		r.exclusive.Unlock()
	}, nil
}

func (r *root) statusError(op string, st Status) error {
	if st == StatusSuccess {
		return nil
	}
	return statusError(op, st, native.databaseStatusString(r.ptr()))
}

func (r *root) destroy(ptr handle) {
	r.logger.Debug("dropping database handle")
	native.databaseDestroy(ptr)
	r.inst.destroyed()
}

// Database is a shared handle to an opened index.
//
// A Database may be cloned; all clones refer to the same engine database,
// which is destroyed when the last clone, and every Directory, Query, Tags,
// Messages, Threads and Filenames value obtained from any of them, has been
// released. Release each value when done with it so the database's file locks
// are dropped promptly.
//
// A Database may be handed to other goroutines, but calls that mutate the
// index must be serialized by the caller.
type Database struct {
	root  *root
	share *share
}

// Create creates a new, empty database rooted at path and opens it for
// reading and writing. It fails with StatusDatabaseExists if a database is
// already present.
func Create(path string, opts ...Option) (*Database, error) {
	return openRoot("create", path, ModeReadWrite, opts, func(abs string) (handle, Status, string) {
		return native.databaseCreate(abs)
	})
}

// Open opens the existing database rooted at path.
func Open(path string, mode DatabaseMode, opts ...Option) (*Database, error) {
	return openRoot("open", path, mode, opts, func(abs string) (handle, Status, string) {
		return native.databaseOpen(abs, mode)
	})
}

func openRoot(op string, path string, mode DatabaseMode, opts []Option, call func(abs string) (handle, Status, string)) (*Database, error) {
	o := newOptions(opts...)
	if err := checkPath(op, path); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ioError(op, err)
	}

	inst, err := newInstruments(o.meterProvider)
	if err != nil {
		o.logger.Warn("notmuch metrics disabled", "error", err)
		inst = nil
	}

	start := time.Now()
	ptr, st, msg := call(abs)
	if err := statusError(op, st, msg); err != nil {
		inst.record(op, start, err)
		return nil, err
	}
	if ptr == nil {
		err := statusError(op, StatusNullPointer, msg)
		inst.record(op, start, err)
		return nil, err
	}
	inst.record(op, start, nil)

	r := &root{
		path:   native.databaseGetPath(ptr),
		mode:   mode,
		logger: o.logger.With("component", "notmuch", "path", abs),
		inst:   inst,
	}
	if r.path == "" {
		r.path = abs
	}
	cell, first := newRefcell("database", ptr, r.destroy)
	r.cell = cell

	db := &Database{root: r, share: first}
	attach(db, first)
	inst.opened()
	r.logger.Debug("opened database", "op", op, "mode", mode.String(), "backend", native.name())
	return db, nil
}

func (db *Database) check(op string) error {
	if db == nil || !db.share.alive() {
		return statusError(op, StatusNullPointer, "database handle already released")
	}
	return db.root.check(op)
}

// Clone returns a new handle sharing db's engine database. Clone panics if db
// has already been released.
func (db *Database) Clone() *Database {
	defer runtime.KeepAlive(db)
	if !db.share.alive() {
		panic("notmuch: Clone called on a released Database")
	}
	c := &Database{root: db.root}
	c.share = retain(c, db.root.cell)
	return c
}

// Release drops this handle's reference. When it is the last reference, the
// engine database is destroyed before Release returns. Releasing the same
// handle twice has no effect.
func (db *Database) Release() {
	if db != nil {
		db.share.drop()
	}
}

// Close flushes and closes the engine database, then releases this handle.
//
// Other clones and derived values stay allocated until they are released,
// but every further operation on them fails with StatusClosedDatabase. A Close
// that fails with a KindSync error leaves the handle untouched.
func (db *Database) Close() error {
	defer runtime.KeepAlive(db)
	const op = "close"
	if db == nil || !db.share.alive() {
		return statusError(op, StatusNullPointer, "database handle already released")
	}
	if db.root.closed.Load() {
		db.Release()
		return nil
	}

	unlock, err := db.root.lockExclusive(op)
	if err != nil {
		return err
	}
	defer db.Release()
	defer unlock()

	start := time.Now()
	err = db.root.statusError(op, native.databaseClose(db.root.ptr()))
	db.root.inst.record(op, start, err)
	if err != nil {
		return err
	}
	db.root.closed.Store(true)
	db.root.logger.Debug("closed database", "shares", db.root.cell.live())
	return nil
}

// Compact rewrites the database rooted at path to reclaim space. If
// backupPath is not empty, the previous database is kept there; backupPath
// must not exist yet.
//
// status, if not nil, receives progress messages. It is called synchronously
// on the calling goroutine, before Compact returns, and must not use any
// handle to the database being compacted.
func Compact(path string, backupPath string, status func(message string), opts ...Option) error {
	const op = "compact"
	o := newOptions(opts...)
	if err := checkPath(op, path); err != nil {
		return err
	}
	if err := checkPath(op, backupPath); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ioError(op, err)
	}
	if backupPath != "" {
		if backupPath, err = filepath.Abs(backupPath); err != nil {
			return ioError(op, err)
		}
	}

	var cb any
	if status != nil {
		cb = status
	}

	inst, instErr := newInstruments(o.meterProvider)
	if instErr != nil {
		inst = nil
	}
	start := time.Now()
	st := bridge(cb, func(closure uintptr) Status {
		return native.databaseCompact(abs, backupPath, closure)
	})
	err = statusError(op, st, "")
	inst.record(op, start, err)
	if err == nil {
		o.logger.Debug("compacted database", "component", "notmuch", "path", abs, "backup", backupPath, "duration", time.Since(start))
	}
	return err
}

// Path returns the absolute path of the mail root the database indexes.
func (db *Database) Path() string {
	return db.root.path
}

// Mode returns the mode the database was opened with.
func (db *Database) Mode() DatabaseMode {
	return db.root.mode
}

// Version returns the on-disk schema version.
func (db *Database) Version() (Version, error) {
	defer runtime.KeepAlive(db)
	if err := db.check("get version"); err != nil {
		return 0, err
	}
	return Version(native.databaseGetVersion(db.root.ptr())), nil
}

// NeedsUpgrade reports whether the database must be upgraded before it can be
// written to. It is always false for read-only handles.
func (db *Database) NeedsUpgrade() (bool, error) {
	defer runtime.KeepAlive(db)
	if err := db.check("needs upgrade"); err != nil {
		return false, err
	}
	return native.databaseNeedsUpgrade(db.root.ptr()), nil
}

// Upgrade brings the on-disk schema up to the engine's current version.
//
// The database must be open for writing and no other goroutine or process may
// use it until Upgrade returns. progress, if not nil, is called zero or more
// times with values in [0, 1]. It runs synchronously inside the engine call
// and must not use db or any value derived from it; such calls fail with a
// KindSync error.
func (db *Database) Upgrade(progress func(progress float64)) error {
	defer runtime.KeepAlive(db)
	const op = "upgrade"
	if err := db.check(op); err != nil {
		return err
	}
	unlock, err := db.root.lockExclusive(op)
	if err != nil {
		return err
	}
	defer unlock()

	var cb any
	if progress != nil {
		cb = progress
	}
	ptr := db.root.ptr()
	start := time.Now()
	st := bridge(cb, func(closure uintptr) Status {
		return native.databaseUpgrade(ptr, closure)
	})
	err = db.root.statusError(op, st)
	db.root.inst.record(op, start, err)
	return err
}

// StatusString returns the last detailed status message reported by the
// engine for this database, if any.
func (db *Database) StatusString() string {
	defer runtime.KeepAlive(db)
	if db.check("status string") != nil {
		return ""
	}
	return native.databaseStatusString(db.root.ptr())
}

// Directory looks up a directory in the index. path is relative to the mail
// root, or absolute with the mail root as prefix. Directory returns nil and no
// error when the directory is not indexed.
func (db *Database) Directory(path string) (*Directory, error) {
	defer runtime.KeepAlive(db)
	const op = "get directory"
	if err := db.check(op); err != nil {
		return nil, err
	}
	if err := checkPath(op, path); err != nil {
		return nil, err
	}
	ptr, st := native.databaseGetDirectory(db.root.ptr(), path)
	if err := db.root.statusError(op, st); err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, nil
	}
	return newDirectory(ptr, db.root, db.root.cell), nil
}

// CreateQuery creates a query over the database. The query string is parsed
// when the query is run, so syntax errors surface from SearchMessages,
// SearchThreads and the Count methods.
func (db *Database) CreateQuery(query string) (*Query, error) {
	defer runtime.KeepAlive(db)
	const op = "create query"
	if err := db.check(op); err != nil {
		return nil, err
	}
	if err := checkPath(op, query); err != nil {
		return nil, err
	}
	ptr := native.queryCreate(db.root.ptr(), query)
	if ptr == nil {
		return nil, statusError(op, StatusOutOfMemory, "engine returned no query")
	}
	return newQuery(ptr, db.root), nil
}

// AllTags returns every tag used by any message in the database.
func (db *Database) AllTags() (*Tags, error) {
	defer runtime.KeepAlive(db)
	const op = "get all tags"
	if err := db.check(op); err != nil {
		return nil, err
	}
	ptr := native.databaseGetAllTags(db.root.ptr())
	if ptr == nil {
		return nil, statusError(op, StatusXapianException, native.databaseStatusString(db.root.ptr()))
	}
	return newTags(ptr, db.root, db.root.cell), nil
}

// IndexFile adds the message stored in filename to the index. filename is
// relative to the mail root or absolute under it.
//
// When a message with the same Message-ID is already indexed, filename is
// recorded as another copy of it and IndexFile returns the existing message
// together with an error matching StatusDuplicateMessageID.
func (db *Database) IndexFile(filename string) (*Message, error) {
	defer runtime.KeepAlive(db)
	const op = "index file"
	if err := db.check(op); err != nil {
		return nil, err
	}
	if err := checkPath(op, filename); err != nil {
		return nil, err
	}
	start := time.Now()
	ptr, st := native.databaseIndexFile(db.root.ptr(), filename)
	err := db.root.statusError(op, st)
	db.root.inst.record(op, start, err)
	if err != nil && st != StatusDuplicateMessageID {
		return nil, err
	}
	if ptr == nil {
		return nil, statusError(op, StatusNullPointer, "engine returned no message")
	}
	return newMessage(ptr, db.root, db.root.cell), err
}

// RemoveMessage removes filename from the index. When other copies of the
// same message remain indexed, the message is kept and the returned error
// matches StatusDuplicateMessageID.
func (db *Database) RemoveMessage(filename string) error {
	defer runtime.KeepAlive(db)
	const op = "remove message"
	if err := db.check(op); err != nil {
		return err
	}
	if err := checkPath(op, filename); err != nil {
		return err
	}
	start := time.Now()
	err := db.root.statusError(op, native.databaseRemoveMessage(db.root.ptr(), filename))
	db.root.inst.record(op, start, err)
	return err
}

// FindMessage looks up a message by Message-ID, with or without angle
// brackets. It returns nil and no error when no such message is indexed.
func (db *Database) FindMessage(messageID string) (*Message, error) {
	defer runtime.KeepAlive(db)
	const op = "find message"
	if err := db.check(op); err != nil {
		return nil, err
	}
	if err := checkPath(op, messageID); err != nil {
		return nil, err
	}
	ptr, st := native.databaseFindMessage(db.root.ptr(), trimMessageID(messageID))
	if err := db.root.statusError(op, st); err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, nil
	}
	return newMessage(ptr, db.root, db.root.cell), nil
}

func trimMessageID(id string) string {
	if len(id) >= 2 && id[0] == '<' && id[len(id)-1] == '>' {
		return id[1 : len(id)-1]
	}
	return id
}
