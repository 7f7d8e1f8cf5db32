package notmuch

// engine is the native ABI boundary. Each method mirrors one libnotmuch entry
// point; handles are only valid while the database they came from has not been
// destroyed.
//
// Two implementations exist: notmuchEngine links libnotmuch through cgo when
// built with the "notmuch" tag, and sqliteEngine is used otherwise.
type engine interface {
	name() string

	databaseCreate(path string) (handle, Status, string)
	databaseOpen(path string, mode DatabaseMode) (handle, Status, string)
	databaseClose(db handle) Status
	databaseDestroy(db handle)
	databaseCompact(path, backupPath string, closure uintptr) Status
	databaseUpgrade(db handle, closure uintptr) Status
	databaseStatusString(db handle) string
	databaseGetPath(db handle) string
	databaseGetVersion(db handle) uint
	databaseNeedsUpgrade(db handle) bool
	databaseGetDirectory(db handle, path string) (handle, Status)
	databaseGetAllTags(db handle) handle
	databaseIndexFile(db handle, filename string) (handle, Status)
	databaseRemoveMessage(db handle, filename string) Status
	databaseFindMessage(db handle, messageID string) (handle, Status)

	queryCreate(db handle, query string) handle
	queryString(q handle) string
	querySetSort(q handle, sort Sort)
	queryGetSort(q handle) Sort
	querySearchMessages(q handle) (handle, Status)
	querySearchThreads(q handle) (handle, Status)
	queryCountMessages(q handle) (uint, Status)
	queryCountThreads(q handle) (uint, Status)
	queryDestroy(q handle)

	messagesValid(m handle) bool
	messagesGet(m handle) handle
	messagesMoveToNext(m handle)
	messagesCollectTags(m handle) handle

	messageID(m handle) string
	messageThreadID(m handle) string
	messageFilename(m handle) string
	messageFilenames(m handle) handle
	messageHeader(m handle, name string) string
	messageDate(m handle) int64
	messageTags(m handle) handle
	messageAddTag(m handle, tag string) Status
	messageRemoveTag(m handle, tag string) Status
	messageRemoveAllTags(m handle) Status

	threadsValid(t handle) bool
	threadsGet(t handle) handle
	threadsMoveToNext(t handle)

	threadID(t handle) string
	threadSubject(t handle) string
	threadAuthors(t handle) string
	threadTotalMessages(t handle) int
	threadMatchedMessages(t handle) int
	threadOldestDate(t handle) int64
	threadNewestDate(t handle) int64
	threadTags(t handle) handle
	threadMessages(t handle) handle

	tagsValid(t handle) bool
	tagsGet(t handle) string
	tagsMoveToNext(t handle)

	directoryGetMtime(d handle) int64
	directorySetMtime(d handle, mtime int64) Status
	directoryChildFiles(d handle) handle
	directoryChildDirectories(d handle) handle
	directoryDelete(d handle) Status

	filenamesValid(f handle) bool
	filenamesGet(f handle) string
	filenamesMoveToNext(f handle)
}

// revisionEngine is implemented by engines that can report the database
// revision.
type revisionEngine interface {
	databaseGetRevision(db handle) (uint64, string, Status)
}

// native is the engine every operation in this package calls into.
var native engine = newEngine()

// Backend returns the name of the engine compiled into this build.
func Backend() string {
	return native.name()
}
