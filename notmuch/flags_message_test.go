//go:build !notmuch || !cgo

package notmuch

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/nalgeon/be"
)

func TestMessageSyncTagsFromFlags(t *testing.T) {
	f := newFixture(t)
	msg, err := f.db.FindMessage("lunch@example.com")
	be.Err(t, err, nil)
	defer msg.Destroy()

	flags, err := msg.Flags()
	be.Err(t, err, nil)
	be.Equal(t, flags, []string{})

	be.Err(t, msg.SyncTagsFromFlags([]string{imap.SeenFlag, imap.AnsweredFlag}), nil)
	tags, err := msg.TagList()
	be.Err(t, err, nil)
	be.Equal(t, tags, []string{"inbox", TagReplied})

	flags, err = msg.Flags()
	be.Err(t, err, nil)
	be.Equal(t, flags, []string{imap.AnsweredFlag, imap.SeenFlag})
}
