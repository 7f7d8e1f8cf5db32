// Package lmtp delivers incoming mail into a maildir under the index's mail
// root and indexes each message as it arrives.
//
// A Deliverer can be used directly, for example from an MDA pipeline, or
// behind a Server that speaks LMTP (RFC 2033) so that an MTA such as Postfix
// can hand messages over a local socket.
//
// Recipient detail is turned into tags: a message for "alice+lists@example.com"
// is tagged "lists" in addition to the configured delivery tags.
package lmtp
