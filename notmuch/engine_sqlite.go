//go:build !notmuch || !cgo

package notmuch

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteDirName  = ".notmuch"
	sqliteFileName = "index.db"
	// sqliteVersion is the schema version written by databaseCreate.
	sqliteVersion = 3
)

var sqliteSchema = []string{
	`CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value NOT NULL
	)`,
	`CREATE TABLE directories (
		id INTEGER PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		mtime INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE messages (
		id INTEGER PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL,
		date INTEGER NOT NULL DEFAULT 0,
		subject TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		recipients TEXT NOT NULL DEFAULT '',
		refs TEXT NOT NULL DEFAULT '',
		headers TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		lastmod INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE files (
		id INTEGER PRIMARY KEY,
		message INTEGER NOT NULL,
		directory INTEGER NOT NULL,
		name TEXT NOT NULL,
		UNIQUE (directory, name)
	)`,
	`CREATE TABLE tags (
		message INTEGER NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (message, tag)
	)`,
}

// sqliteIndexes were introduced with schema version 3.
var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS messages_thread ON messages (thread_id)`,
	`CREATE INDEX IF NOT EXISTS messages_date ON messages (date)`,
	`CREATE INDEX IF NOT EXISTS files_message ON files (message)`,
	`CREATE INDEX IF NOT EXISTS tags_tag ON tags (tag)`,
}

func newEngine() engine {
	return sqliteEngine{}
}

// sqliteEngine keeps the index in a SQLite database under .notmuch/ in the
// mail root. It needs no system library and backs every build without the
// "notmuch" tag.
type sqliteEngine struct{}

func (sqliteEngine) name() string { return "sqlite" }

type sqliteQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type sqliteDB struct {
	sql     *sql.DB
	root    string
	mode    DatabaseMode
	version int
	closed  bool

	mu      sync.Mutex
	lastErr string
}

func sqliteDBOf(h handle) *sqliteDB {
	return (*sqliteDB)(h)
}

func sqlitePath(root string) string {
	return filepath.Join(root, sqliteDirName, sqliteFileName)
}

// sqliteDSN returns the URI filename for path. The path is percent-encoded so
// that '?', '#' and '%' in a mail root are not read as URI syntax.
func sqliteDSN(path string, mode string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: url.Values{"mode": {mode}, "_busy_timeout": {"5000"}}.Encode(),
	}
	return u.String()
}

func openSQLite(path string, mode string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database failed: %w", err)
	}
	return db, nil
}

func (d *sqliteDB) setErr(format string, args ...any) {
	d.mu.Lock()
	d.lastErr = fmt.Sprintf(format, args...)
	d.mu.Unlock()
}

// fail records err as the database status string.
func (d *sqliteDB) fail(op string, err error) Status {
	d.setErr("%s: %v", op, err)
	return StatusXapianException
}

func (d *sqliteDB) writable() Status {
	if d.closed {
		return StatusClosedDatabase
	}
	if d.mode != ModeReadWrite {
		d.setErr("cannot write to a read-only database")
		return StatusReadOnlyDatabase
	}
	return StatusSuccess
}

func metaInt(q sqliteQuerier, key string) (int64, error) {
	var v int64
	err := q.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	return v, err
}

func metaString(q sqliteQuerier, key string) (string, error) {
	var v string
	err := q.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	return v, err
}

// bumpRevision increments and returns the database revision.
func bumpRevision(q sqliteQuerier) (int64, error) {
	if _, err := q.Exec(`UPDATE meta SET value = value + 1 WHERE key = 'revision'`); err != nil {
		return 0, err
	}
	return metaInt(q, "revision")
}

func initSQLiteSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range append(append([]string{}, sqliteSchema...), sqliteIndexes...) {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	meta := []struct {
		key   string
		value any
	}{
		{"version", sqliteVersion},
		{"uuid", uuid.NewString()},
		{"revision", 0},
		{"next_thread", 1},
	}
	for _, m := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, m.key, m.value); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO directories (path) VALUES ('')`); err != nil {
		return err
	}
	return tx.Commit()
}

func (sqliteEngine) databaseCreate(path string) (handle, Status, string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, StatusFileError, fmt.Sprintf("cannot create database at %s: %v", path, err)
	}
	if !info.IsDir() {
		return nil, StatusPathError, fmt.Sprintf("cannot create database at %s: not a directory", path)
	}
	dbPath := sqlitePath(path)
	if _, err := os.Stat(dbPath); err == nil {
		return nil, StatusDatabaseExists, "a database already exists at " + dbPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, StatusFileError, err.Error()
	}
	db, err := openSQLite(dbPath, "rwc")
	if err != nil {
		return nil, StatusFileError, err.Error()
	}
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, StatusXapianException, fmt.Sprintf("initializing schema: %v", err)
	}
	d := &sqliteDB{sql: db, root: path, mode: ModeReadWrite, version: sqliteVersion}
	return handle(d), StatusSuccess, ""
}

func (sqliteEngine) databaseOpen(path string, mode DatabaseMode) (handle, Status, string) {
	dbPath := sqlitePath(path)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, StatusNoDatabase, "no database found at " + dbPath
		}
		return nil, StatusFileError, err.Error()
	}
	sqlMode := "ro"
	if mode == ModeReadWrite {
		sqlMode = "rw"
	}
	db, err := openSQLite(dbPath, sqlMode)
	if err != nil {
		return nil, StatusFileError, err.Error()
	}
	version, err := metaInt(db, "version")
	if err != nil {
		db.Close()
		return nil, StatusXapianException, fmt.Sprintf("reading schema version: %v", err)
	}
	if version > sqliteVersion {
		db.Close()
		return nil, StatusFileError, fmt.Sprintf("database version %d is newer than the supported version %d", version, sqliteVersion)
	}
	d := &sqliteDB{sql: db, root: path, mode: mode, version: int(version)}
	return handle(d), StatusSuccess, ""
}

func (sqliteEngine) databaseClose(h handle) Status {
	d := sqliteDBOf(h)
	if d.closed {
		return StatusSuccess
	}
	d.closed = true
	if err := d.sql.Close(); err != nil {
		return d.fail("close", err)
	}
	return StatusSuccess
}

func (sqliteEngine) databaseDestroy(h handle) {
	d := sqliteDBOf(h)
	if !d.closed {
		d.closed = true
		d.sql.Close()
	}
}

func (sqliteEngine) databaseStatusString(h handle) string {
	d := sqliteDBOf(h)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (sqliteEngine) databaseGetPath(h handle) string {
	return sqliteDBOf(h).root
}

func (sqliteEngine) databaseGetVersion(h handle) uint {
	return uint(sqliteDBOf(h).version)
}

func (sqliteEngine) databaseNeedsUpgrade(h handle) bool {
	d := sqliteDBOf(h)
	return !d.closed && d.mode == ModeReadWrite && d.version < sqliteVersion
}

func (sqliteEngine) databaseGetRevision(h handle) (uint64, string, Status) {
	d := sqliteDBOf(h)
	if d.closed {
		return 0, "", StatusClosedDatabase
	}
	rev, err := metaInt(d.sql, "revision")
	if err != nil {
		return 0, "", d.fail("get revision", err)
	}
	id, err := metaString(d.sql, "uuid")
	if err != nil {
		return 0, "", d.fail("get revision", err)
	}
	return uint64(rev), id, StatusSuccess
}

func (sqliteEngine) databaseCompact(path, backupPath string, closure uintptr) Status {
	report := func(format string, args ...any) {
		compactStatusTrampoline(closure, fmt.Sprintf(format, args...))
	}

	dbPath := sqlitePath(path)
	if _, err := os.Stat(dbPath); err != nil {
		report("Cannot open database: %v", err)
		if errors.Is(err, fs.ErrNotExist) {
			return StatusNoDatabase
		}
		return StatusFileError
	}
	if backupPath != "" {
		if _, err := os.Lstat(backupPath); err == nil {
			report("Path already exists: %s", backupPath)
			return StatusFileError
		}
	}

	db, err := openSQLite(dbPath, "rw")
	if err != nil {
		report("Cannot open database: %v", err)
		return StatusFileError
	}
	for _, table := range []string{"messages", "files", "tags", "directories"} {
		var n int64
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			db.Close()
			report("Reading %s failed: %v", table, err)
			return StatusXapianException
		}
		report("compacting table %s: %d rows", table, n)
	}

	tmp := dbPath + ".compact"
	os.Remove(tmp)
	if _, err := db.Exec(`VACUUM INTO ?`, tmp); err != nil {
		db.Close()
		os.Remove(tmp)
		report("Compaction failed: %v", err)
		return StatusXapianException
	}
	if err := db.Close(); err != nil {
		os.Remove(tmp)
		report("Closing database failed: %v", err)
		return StatusXapianException
	}

	if backupPath != "" {
		if err := os.Rename(dbPath, backupPath); err != nil {
			os.Remove(tmp)
			report("Moving old database to %s failed: %v", backupPath, err)
			return StatusFileError
		}
		report("Old database moved to %s", backupPath)
	}
	if err := os.Rename(tmp, dbPath); err != nil {
		report("Installing compacted database failed: %v", err)
		return StatusFileError
	}
	report("Done.")
	return StatusSuccess
}

func (sqliteEngine) databaseUpgrade(h handle, closure uintptr) Status {
	d := sqliteDBOf(h)
	if st := d.writable(); st != StatusSuccess {
		return st
	}
	if d.version >= sqliteVersion {
		return StatusSuccess
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return d.fail("upgrade", err)
	}
	defer tx.Rollback()

	if d.version < 2 {
		ids, err := collectIDs(tx, `SELECT id FROM messages WHERE lastmod = 0 ORDER BY id`)
		if err != nil {
			return d.fail("upgrade", err)
		}
		rev, err := metaInt(tx, "revision")
		if err != nil {
			return d.fail("upgrade", err)
		}
		for i, id := range ids {
			if _, err := tx.Exec(`UPDATE messages SET lastmod = ? WHERE id = ?`, rev, id); err != nil {
				return d.fail("upgrade", err)
			}
			upgradeProgressTrampoline(closure, 0.9*float64(i+1)/float64(len(ids)))
		}
	}
	if d.version < 3 {
		for _, stmt := range sqliteIndexes {
			if _, err := tx.Exec(stmt); err != nil {
				return d.fail("upgrade", err)
			}
		}
	}
	if _, err := tx.Exec(`UPDATE meta SET value = ? WHERE key = 'version'`, sqliteVersion); err != nil {
		return d.fail("upgrade", err)
	}
	if err := tx.Commit(); err != nil {
		return d.fail("upgrade", err)
	}
	d.version = sqliteVersion
	upgradeProgressTrampoline(closure, 1)
	return StatusSuccess
}

func collectIDs(q sqliteQuerier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectStrings(q sqliteQuerier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// relPath converts path into a slash separated path relative to the mail
// root. The root itself is "".
func (d *sqliteDB) relPath(path string) (string, Status) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			d.setErr("path %s is outside the mail root %s", path, d.root)
			return "", StatusPathError
		}
		path = rel
	}
	path = filepath.ToSlash(filepath.Clean(path))
	if path == "." {
		path = ""
	}
	if path == ".." || strings.HasPrefix(path, "../") {
		d.setErr("path %s is outside the mail root %s", path, d.root)
		return "", StatusPathError
	}
	return path, StatusSuccess
}

// ensureDirectory records rel and each of its ancestors, returning rel's id.
func ensureDirectory(q sqliteQuerier, rel string) (int64, error) {
	parts := []string{""}
	if rel != "" {
		segs := strings.Split(rel, "/")
		for i := range segs {
			parts = append(parts, strings.Join(segs[:i+1], "/"))
		}
	}
	for _, p := range parts {
		if _, err := q.Exec(`INSERT OR IGNORE INTO directories (path) VALUES (?)`, p); err != nil {
			return 0, err
		}
	}
	var id int64
	err := q.QueryRow(`SELECT id FROM directories WHERE path = ?`, rel).Scan(&id)
	return id, err
}

type sqliteDirectory struct {
	db   *sqliteDB
	id   int64
	path string
}

func sqliteDirectoryOf(h handle) *sqliteDirectory {
	return (*sqliteDirectory)(h)
}

func (sqliteEngine) databaseGetDirectory(h handle, path string) (handle, Status) {
	d := sqliteDBOf(h)
	rel, st := d.relPath(path)
	if st != StatusSuccess {
		return nil, st
	}
	var id int64
	err := d.sql.QueryRow(`SELECT id FROM directories WHERE path = ?`, rel).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, StatusSuccess
	}
	if err != nil {
		return nil, d.fail("get directory", err)
	}
	return handle(&sqliteDirectory{db: d, id: id, path: rel}), StatusSuccess
}

func (sqliteEngine) directoryGetMtime(h handle) int64 {
	dir := sqliteDirectoryOf(h)
	var mtime int64
	if err := dir.db.sql.QueryRow(`SELECT mtime FROM directories WHERE id = ?`, dir.id).Scan(&mtime); err != nil {
		dir.db.fail("directory get mtime", err)
		return 0
	}
	return mtime
}

func (sqliteEngine) directorySetMtime(h handle, mtime int64) Status {
	dir := sqliteDirectoryOf(h)
	if st := dir.db.writable(); st != StatusSuccess {
		return st
	}
	if _, err := dir.db.sql.Exec(`UPDATE directories SET mtime = ? WHERE id = ?`, mtime, dir.id); err != nil {
		return dir.db.fail("directory set mtime", err)
	}
	return StatusSuccess
}

func (sqliteEngine) directoryChildFiles(h handle) handle {
	dir := sqliteDirectoryOf(h)
	names, err := collectStrings(dir.db.sql, `SELECT name FROM files WHERE directory = ? ORDER BY name`, dir.id)
	if err != nil {
		dir.db.fail("directory child files", err)
		return nil
	}
	return handle(&sqliteStrings{items: names})
}

func (sqliteEngine) directoryChildDirectories(h handle) handle {
	dir := sqliteDirectoryOf(h)
	prefix := ""
	if dir.path != "" {
		prefix = dir.path + "/"
	}
	paths, err := collectStrings(dir.db.sql,
		`SELECT path FROM directories WHERE path != ? AND path LIKE ? ESCAPE '\' ORDER BY path`,
		dir.path, escapeLike(prefix)+"%")
	if err != nil {
		dir.db.fail("directory child directories", err)
		return nil
	}
	var names []string
	for _, p := range paths {
		name := strings.TrimPrefix(p, prefix)
		if name != "" && !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}
	return handle(&sqliteStrings{items: names})
}

func (sqliteEngine) directoryDelete(h handle) Status {
	dir := sqliteDirectoryOf(h)
	if st := dir.db.writable(); st != StatusSuccess {
		return st
	}
	if _, err := dir.db.sql.Exec(`DELETE FROM directories WHERE id = ?`, dir.id); err != nil {
		return dir.db.fail("directory delete", err)
	}
	return StatusSuccess
}

// sqliteStrings backs both tag and filename cursors.
type sqliteStrings struct {
	items []string
	i     int
}

func sqliteStringsOf(h handle) *sqliteStrings {
	return (*sqliteStrings)(h)
}

func (s *sqliteStrings) valid() bool { return s.i < len(s.items) }

func (s *sqliteStrings) get() string {
	if !s.valid() {
		return ""
	}
	return s.items[s.i]
}

func (s *sqliteStrings) next() {
	if s.valid() {
		s.i++
	}
}

func (sqliteEngine) tagsValid(h handle) bool { return sqliteStringsOf(h).valid() }
func (sqliteEngine) tagsGet(h handle) string { return sqliteStringsOf(h).get() }
func (sqliteEngine) tagsMoveToNext(h handle) { sqliteStringsOf(h).next() }
func (sqliteEngine) filenamesValid(h handle) bool { return sqliteStringsOf(h).valid() }
func (sqliteEngine) filenamesGet(h handle) string { return sqliteStringsOf(h).get() }
func (sqliteEngine) filenamesMoveToNext(h handle) { sqliteStringsOf(h).next() }

func (sqliteEngine) databaseGetAllTags(h handle) handle {
	d := sqliteDBOf(h)
	tags, err := collectStrings(d.sql, `SELECT DISTINCT tag FROM tags ORDER BY tag`)
	if err != nil {
		d.fail("get all tags", err)
		return nil
	}
	return handle(&sqliteStrings{items: tags})
}
