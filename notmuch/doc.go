// Package notmuch provides memory-safe handles over a notmuch style mail
// index: open or create a database, run queries, walk messages, threads, tags
// and directories, and tag messages.
//
// # Ownership Model
//
// Every engine allocation is owned by a reference counted cell. A Database and
// its clones share one cell for the engine database. A Query owns its own cell
// and holds a share of the database. Messages, Threads and Tags obtained from a
// query hold a share of the query; Directory, Filenames and the Tags returned
// by AllTags hold a share of the database. An engine object is therefore never
// destroyed while anything derived from it is reachable, and it is destroyed
// exactly once, when the last share is released.
//
// Release values explicitly with Release or Destroy. A runtime cleanup drops a
// share whose owner became unreachable, but the engine keeps file locks until
// the database cell is destroyed, so relying on the garbage collector keeps the
// index locked for an unpredictable time.
//
// # Errors
//
// All operations return *Error. Engine failures carry a Status and match it
// with errors.Is:
//
//	if errors.Is(err, notmuch.StatusDuplicateMessageID) {
//		// the file was recorded as another copy of an indexed message
//	}
//
// # Callbacks
//
// Compact and Upgrade accept Go funcs for progress reporting. They run
// synchronously inside the engine call on the calling goroutine. A panic in a
// callback is recovered before it reaches engine frames and re-raised once the
// engine call returns. While Upgrade runs, every other operation on the same
// database fails fast with a KindSync error.
//
// # Engines
//
// Builds with the "notmuch" tag and cgo enabled link libnotmuch. Other builds
// use an embedded SQLite engine that stores the index in .notmuch/index.db
// under the mail root and understands a subset of the notmuch query language:
// tag:, is:, id:, mid:, thread:, folder:, path:, from:, to: and subject:
// prefixes, bare words, quoted phrases, "or", "not" and "-" negation.
// The "notmuch_norevision" tag removes Database.Revision for libnotmuch
// versions that predate revision tracking.
//
// # Example
//
//	db, err := notmuch.Open(root, notmuch.ModeReadOnly)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	q, err := db.CreateQuery("tag:unread from:alice")
//	if err != nil {
//		return err
//	}
//	defer q.Destroy()
//
//	msgs, err := q.SearchMessages()
//	if err != nil {
//		return err
//	}
//	defer msgs.Destroy()
//	for msg := range msgs.All() {
//		fmt.Println(msg.ID(), msg.Header("Subject"))
//		msg.Destroy()
//	}
package notmuch
