// Command mailidx manages a mail index: it creates and maintains the
// database, searches and tags messages, delivers mail over LMTP and imports
// mailboxes from IMAP servers.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
