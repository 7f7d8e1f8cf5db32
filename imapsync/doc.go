// Package imapsync imports mail from an IMAP server into a maildir under the
// index's mail root.
//
// Each selected mailbox is stored in its own maildir. Messages already present
// in the index, matched by Message-ID, are not downloaded again; their tags are
// brought in line with the server's flags instead. Mailboxes are opened read
// only, so a sync never changes state on the server.
package imapsync
