//go:build !notmuch_norevision

package main

import (
	"errors"
	"fmt"

	"github.com/spachava753/mailidx/notmuch"
)

func revisionString(db *notmuch.Database) (string, error) {
	rev, err := db.Revision()
	if errors.Is(err, notmuch.StatusUnsupportedOperation) {
		return "unsupported", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", rev.UUID, rev.Revision), nil
}
