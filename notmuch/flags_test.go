package notmuch

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/nalgeon/be"
)

func TestTagsFromFlags(t *testing.T) {
	add, remove := TagsFromFlags([]string{imap.SeenFlag, `\flagged`, "$Forwarded"})
	be.Equal(t, add, []string{TagFlagged})
	be.Equal(t, remove, []string{TagDraft, TagReplied, TagDeleted, TagUnread})

	add, remove = TagsFromFlags(nil)
	be.Equal(t, add, []string{TagUnread})
	be.Equal(t, remove, []string{TagDraft, TagFlagged, TagReplied, TagDeleted})
}

func TestFlagsFromTags(t *testing.T) {
	be.Equal(t, FlagsFromTags([]string{"inbox", TagUnread}), []string{})
	be.Equal(t, FlagsFromTags([]string{TagReplied, TagFlagged}), []string{imap.FlaggedFlag, imap.AnsweredFlag, imap.SeenFlag})
}

func TestMaildirInfo(t *testing.T) {
	be.Equal(t, MaildirInfo([]string{imap.SeenFlag, imap.AnsweredFlag, imap.DraftFlag, imap.SeenFlag}), "DRS")
	be.Equal(t, MaildirInfo([]string{imap.RecentFlag}), "")
	be.Equal(t, FlagsFromMaildir("FSS"), []string{imap.FlaggedFlag, imap.SeenFlag})
	be.Equal(t, FlagsFromMaildir("xT"), []string{imap.DeletedFlag})

	flags := FlagsFromMaildir("DFRST")
	be.Equal(t, MaildirInfo(flags), "DFRST")
}
