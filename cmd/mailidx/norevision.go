//go:build notmuch_norevision

package main

import "github.com/spachava753/mailidx/notmuch"

func revisionString(*notmuch.Database) (string, error) {
	return "unsupported", nil
}
