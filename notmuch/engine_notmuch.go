//go:build notmuch && cgo

package notmuch

/*
#cgo LDFLAGS: -lnotmuch
#include <stdlib.h>
#include <stdint.h>
#include <notmuch.h>

extern void nmgoCompactStatus(char *message, void *closure);
extern void nmgoUpgradeProgress(void *closure, double progress);

static notmuch_status_t nmgo_compact(const char *path, const char *backup, uintptr_t closure) {
	if (closure == 0)
		return notmuch_database_compact(path, backup, NULL, NULL);
	return notmuch_database_compact(path, backup,
		(notmuch_compact_status_cb_t) nmgoCompactStatus, (void *) closure);
}

static notmuch_status_t nmgo_upgrade(notmuch_database_t *db, uintptr_t closure) {
	if (closure == 0)
		return notmuch_database_upgrade(db, NULL, NULL);
	return notmuch_database_upgrade(db, nmgoUpgradeProgress, (void *) closure);
}
*/
import "C"

import "unsafe"

func newEngine() engine {
	return notmuchEngine{}
}

// notmuchEngine calls libnotmuch directly.
type notmuchEngine struct{}

func (notmuchEngine) name() string { return "libnotmuch" }

func cstring(s string) (*C.char, func()) {
	cs := C.CString(s)
	return cs, func() { C.free(unsafe.Pointer(cs)) }
}

func gostring(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func cdb(h handle) *C.notmuch_database_t { return (*C.notmuch_database_t)(h) }
func cquery(h handle) *C.notmuch_query_t { return (*C.notmuch_query_t)(h) }
func cmessages(h handle) *C.notmuch_messages_t { return (*C.notmuch_messages_t)(h) }
func cmessage(h handle) *C.notmuch_message_t { return (*C.notmuch_message_t)(h) }
func cthreads(h handle) *C.notmuch_threads_t { return (*C.notmuch_threads_t)(h) }
func cthread(h handle) *C.notmuch_thread_t { return (*C.notmuch_thread_t)(h) }
func ctags(h handle) *C.notmuch_tags_t { return (*C.notmuch_tags_t)(h) }
func cdir(h handle) *C.notmuch_directory_t { return (*C.notmuch_directory_t)(h) }
func cfilenames(h handle) *C.notmuch_filenames_t { return (*C.notmuch_filenames_t)(h) }

// takeMessage converts and frees a message allocated by a _verbose call.
func takeMessage(msg *C.char) string {
	if msg == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(msg))
	return C.GoString(msg)
}

func (notmuchEngine) databaseCreate(path string) (handle, Status, string) {
	cpath, free := cstring(path)
	defer free()
	var db *C.notmuch_database_t
	var msg *C.char
	st := Status(C.notmuch_database_create_verbose(cpath, &db, &msg))
	return handle(db), st, takeMessage(msg)
}

func (notmuchEngine) databaseOpen(path string, mode DatabaseMode) (handle, Status, string) {
	cpath, free := cstring(path)
	defer free()
	var db *C.notmuch_database_t
	var msg *C.char
	st := Status(C.notmuch_database_open_verbose(cpath, C.notmuch_database_mode_t(mode), &db, &msg))
	return handle(db), st, takeMessage(msg)
}

func (notmuchEngine) databaseClose(db handle) Status {
	return Status(C.notmuch_database_close(cdb(db)))
}

func (notmuchEngine) databaseDestroy(db handle) {
	C.notmuch_database_destroy(cdb(db))
}

func (notmuchEngine) databaseCompact(path, backupPath string, closure uintptr) Status {
	cpath, free := cstring(path)
	defer free()
	var cbackup *C.char
	if backupPath != "" {
		var freeBackup func()
		cbackup, freeBackup = cstring(backupPath)
		defer freeBackup()
	}
	return Status(C.nmgo_compact(cpath, cbackup, C.uintptr_t(closure)))
}

func (notmuchEngine) databaseUpgrade(db handle, closure uintptr) Status {
	return Status(C.nmgo_upgrade(cdb(db), C.uintptr_t(closure)))
}

func (notmuchEngine) databaseStatusString(db handle) string {
	return gostring(C.notmuch_database_status_string(cdb(db)))
}

func (notmuchEngine) databaseGetPath(db handle) string {
	return gostring(C.notmuch_database_get_path(cdb(db)))
}

func (notmuchEngine) databaseGetVersion(db handle) uint {
	return uint(C.notmuch_database_get_version(cdb(db)))
}

func (notmuchEngine) databaseNeedsUpgrade(db handle) bool {
	return C.notmuch_database_needs_upgrade(cdb(db)) != 0
}

func (notmuchEngine) databaseGetDirectory(db handle, path string) (handle, Status) {
	cpath, free := cstring(path)
	defer free()
	var dir *C.notmuch_directory_t
	st := Status(C.notmuch_database_get_directory(cdb(db), cpath, &dir))
	return handle(dir), st
}

func (notmuchEngine) databaseGetAllTags(db handle) handle {
	return handle(C.notmuch_database_get_all_tags(cdb(db)))
}

func (notmuchEngine) databaseIndexFile(db handle, filename string) (handle, Status) {
	cname, free := cstring(filename)
	defer free()
	var msg *C.notmuch_message_t
	st := Status(C.notmuch_database_index_file(cdb(db), cname, nil, &msg))
	return handle(msg), st
}

func (notmuchEngine) databaseRemoveMessage(db handle, filename string) Status {
	cname, free := cstring(filename)
	defer free()
	return Status(C.notmuch_database_remove_message(cdb(db), cname))
}

func (notmuchEngine) databaseFindMessage(db handle, messageID string) (handle, Status) {
	cid, free := cstring(messageID)
	defer free()
	var msg *C.notmuch_message_t
	st := Status(C.notmuch_database_find_message(cdb(db), cid, &msg))
	return handle(msg), st
}

func (notmuchEngine) queryCreate(db handle, query string) handle {
	cq, free := cstring(query)
	defer free()
	return handle(C.notmuch_query_create(cdb(db), cq))
}

func (notmuchEngine) queryString(q handle) string {
	return gostring(C.notmuch_query_get_query_string(cquery(q)))
}

func (notmuchEngine) querySetSort(q handle, sort Sort) {
	C.notmuch_query_set_sort(cquery(q), C.notmuch_sort_t(sort))
}

func (notmuchEngine) queryGetSort(q handle) Sort {
	return Sort(C.notmuch_query_get_sort(cquery(q)))
}

func (notmuchEngine) querySearchMessages(q handle) (handle, Status) {
	var msgs *C.notmuch_messages_t
	st := Status(C.notmuch_query_search_messages(cquery(q), &msgs))
	return handle(msgs), st
}

func (notmuchEngine) querySearchThreads(q handle) (handle, Status) {
	var threads *C.notmuch_threads_t
	st := Status(C.notmuch_query_search_threads(cquery(q), &threads))
	return handle(threads), st
}

func (notmuchEngine) queryCountMessages(q handle) (uint, Status) {
	var n C.uint
	st := Status(C.notmuch_query_count_messages(cquery(q), &n))
	return uint(n), st
}

func (notmuchEngine) queryCountThreads(q handle) (uint, Status) {
	var n C.uint
	st := Status(C.notmuch_query_count_threads(cquery(q), &n))
	return uint(n), st
}

func (notmuchEngine) queryDestroy(q handle) {
	C.notmuch_query_destroy(cquery(q))
}

func (notmuchEngine) messagesValid(m handle) bool {
	return C.notmuch_messages_valid(cmessages(m)) != 0
}

func (notmuchEngine) messagesGet(m handle) handle {
	return handle(C.notmuch_messages_get(cmessages(m)))
}

func (notmuchEngine) messagesMoveToNext(m handle) {
	C.notmuch_messages_move_to_next(cmessages(m))
}

func (notmuchEngine) messagesCollectTags(m handle) handle {
	return handle(C.notmuch_messages_collect_tags(cmessages(m)))
}

func (notmuchEngine) messageID(m handle) string {
	return gostring(C.notmuch_message_get_message_id(cmessage(m)))
}

func (notmuchEngine) messageThreadID(m handle) string {
	return gostring(C.notmuch_message_get_thread_id(cmessage(m)))
}

func (notmuchEngine) messageFilename(m handle) string {
	return gostring(C.notmuch_message_get_filename(cmessage(m)))
}

func (notmuchEngine) messageFilenames(m handle) handle {
	return handle(C.notmuch_message_get_filenames(cmessage(m)))
}

func (notmuchEngine) messageHeader(m handle, name string) string {
	cname, free := cstring(name)
	defer free()
	return gostring(C.notmuch_message_get_header(cmessage(m), cname))
}

func (notmuchEngine) messageDate(m handle) int64 {
	return int64(C.notmuch_message_get_date(cmessage(m)))
}

func (notmuchEngine) messageTags(m handle) handle {
	return handle(C.notmuch_message_get_tags(cmessage(m)))
}

func (notmuchEngine) messageAddTag(m handle, tag string) Status {
	ctag, free := cstring(tag)
	defer free()
	return Status(C.notmuch_message_add_tag(cmessage(m), ctag))
}

func (notmuchEngine) messageRemoveTag(m handle, tag string) Status {
	ctag, free := cstring(tag)
	defer free()
	return Status(C.notmuch_message_remove_tag(cmessage(m), ctag))
}

func (notmuchEngine) messageRemoveAllTags(m handle) Status {
	return Status(C.notmuch_message_remove_all_tags(cmessage(m)))
}

func (notmuchEngine) threadsValid(t handle) bool {
	return C.notmuch_threads_valid(cthreads(t)) != 0
}

func (notmuchEngine) threadsGet(t handle) handle {
	return handle(C.notmuch_threads_get(cthreads(t)))
}

func (notmuchEngine) threadsMoveToNext(t handle) {
	C.notmuch_threads_move_to_next(cthreads(t))
}

func (notmuchEngine) threadID(t handle) string {
	return gostring(C.notmuch_thread_get_thread_id(cthread(t)))
}

func (notmuchEngine) threadSubject(t handle) string {
	return gostring(C.notmuch_thread_get_subject(cthread(t)))
}

func (notmuchEngine) threadAuthors(t handle) string {
	return gostring(C.notmuch_thread_get_authors(cthread(t)))
}

func (notmuchEngine) threadTotalMessages(t handle) int {
	return int(C.notmuch_thread_get_total_messages(cthread(t)))
}

func (notmuchEngine) threadMatchedMessages(t handle) int {
	return int(C.notmuch_thread_get_matched_messages(cthread(t)))
}

func (notmuchEngine) threadOldestDate(t handle) int64 {
	return int64(C.notmuch_thread_get_oldest_date(cthread(t)))
}

func (notmuchEngine) threadNewestDate(t handle) int64 {
	return int64(C.notmuch_thread_get_newest_date(cthread(t)))
}

func (notmuchEngine) threadTags(t handle) handle {
	return handle(C.notmuch_thread_get_tags(cthread(t)))
}

func (notmuchEngine) threadMessages(t handle) handle {
	return handle(C.notmuch_thread_get_messages(cthread(t)))
}

func (notmuchEngine) tagsValid(t handle) bool {
	return C.notmuch_tags_valid(ctags(t)) != 0
}

func (notmuchEngine) tagsGet(t handle) string {
	return gostring(C.notmuch_tags_get(ctags(t)))
}

func (notmuchEngine) tagsMoveToNext(t handle) {
	C.notmuch_tags_move_to_next(ctags(t))
}

func (notmuchEngine) directoryGetMtime(d handle) int64 {
	return int64(C.notmuch_directory_get_mtime(cdir(d)))
}

func (notmuchEngine) directorySetMtime(d handle, mtime int64) Status {
	return Status(C.notmuch_directory_set_mtime(cdir(d), C.time_t(mtime)))
}

func (notmuchEngine) directoryChildFiles(d handle) handle {
	return handle(C.notmuch_directory_get_child_files(cdir(d)))
}

func (notmuchEngine) directoryChildDirectories(d handle) handle {
	return handle(C.notmuch_directory_get_child_directories(cdir(d)))
}

func (notmuchEngine) directoryDelete(d handle) Status {
	return Status(C.notmuch_directory_delete(cdir(d)))
}

func (notmuchEngine) filenamesValid(f handle) bool {
	return C.notmuch_filenames_valid(cfilenames(f)) != 0
}

func (notmuchEngine) filenamesGet(f handle) string {
	return gostring(C.notmuch_filenames_get(cfilenames(f)))
}

func (notmuchEngine) filenamesMoveToNext(f handle) {
	C.notmuch_filenames_move_to_next(cfilenames(f))
}
