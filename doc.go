// Package mailidx is the root of a mail indexing toolkit built around a
// notmuch style index.
//
// This root package is documentation-only. Import the subpackages:
//   - github.com/spachava753/mailidx/notmuch
//     Memory-safe handles over the index: databases, queries, messages,
//     threads, tags and directories.
//   - github.com/spachava753/mailidx/lmtp
//     Maildir delivery and an LMTP server that indexes mail as it arrives.
//   - github.com/spachava753/mailidx/imapsync
//     Import of IMAP mailboxes into maildirs with flag to tag mapping.
//
// The mailidx command in cmd/mailidx wraps all three.
//
// Discovery workflow:
//   - Run: go doc github.com/spachava753/mailidx
//   - Then drill in with:
//     go doc github.com/spachava753/mailidx/notmuch
//     go doc github.com/spachava753/mailidx/lmtp
//     go doc github.com/spachava753/mailidx/imapsync
package mailidx
