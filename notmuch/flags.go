package notmuch

import (
	"slices"
	"strings"

	"github.com/emersion/go-imap"
)

// Tags that mirror IMAP system flags.
const (
	TagUnread  = "unread"
	TagFlagged = "flagged"
	TagReplied = "replied"
	TagDraft   = "draft"
	TagDeleted = "deleted"
)

// flagTags maps IMAP flags to the tag set while the flag is present. \Seen is
// handled separately because it maps to the absence of TagUnread.
var flagTags = []struct {
	flag string
	tag  string
	info byte
}{
	{imap.DraftFlag, TagDraft, 'D'},
	{imap.FlaggedFlag, TagFlagged, 'F'},
	{imap.AnsweredFlag, TagReplied, 'R'},
	{imap.DeletedFlag, TagDeleted, 'T'},
}

// TagsFromFlags returns the tags to add and remove so that a message's tags
// reflect flags. Flags without a tag equivalent are ignored.
func TagsFromFlags(flags []string) (add, remove []string) {
	has := func(flag string) bool {
		return slices.ContainsFunc(flags, func(f string) bool { return strings.EqualFold(f, flag) })
	}
	for _, ft := range flagTags {
		if has(ft.flag) {
			add = append(add, ft.tag)
		} else {
			remove = append(remove, ft.tag)
		}
	}
	if has(imap.SeenFlag) {
		remove = append(remove, TagUnread)
	} else {
		add = append(add, TagUnread)
	}
	return add, remove
}

// FlagsFromTags returns the IMAP flags implied by tags.
func FlagsFromTags(tags []string) []string {
	flags := []string{}
	for _, ft := range flagTags {
		if slices.Contains(tags, ft.tag) {
			flags = append(flags, ft.flag)
		}
	}
	if !slices.Contains(tags, TagUnread) {
		flags = append(flags, imap.SeenFlag)
	}
	return flags
}

// MaildirInfo returns the maildir "2," info suffix letters for flags, in the
// alphabetical order maildir requires.
func MaildirInfo(flags []string) string {
	var letters []byte
	for _, f := range flags {
		switch {
		case strings.EqualFold(f, imap.SeenFlag):
			letters = append(letters, 'S')
		default:
			for _, ft := range flagTags {
				if strings.EqualFold(f, ft.flag) {
					letters = append(letters, ft.info)
				}
			}
		}
	}
	slices.Sort(letters)
	return string(slices.Compact(letters))
}

// FlagsFromMaildir parses maildir info letters back into IMAP flags. Unknown
// letters are ignored.
func FlagsFromMaildir(info string) []string {
	flags := []string{}
	for i := 0; i < len(info); i++ {
		if info[i] == 'S' {
			if !slices.Contains(flags, imap.SeenFlag) {
				flags = append(flags, imap.SeenFlag)
			}
			continue
		}
		for _, ft := range flagTags {
			if info[i] == ft.info && !slices.Contains(flags, ft.flag) {
				flags = append(flags, ft.flag)
			}
		}
	}
	return flags
}

// Flags returns the IMAP flags implied by the message's tags.
func (m *Message) Flags() ([]string, error) {
	tags, err := m.TagList()
	if err != nil {
		return nil, err
	}
	return FlagsFromTags(tags), nil
}

// SyncTagsFromFlags updates the message's tags to reflect flags.
func (m *Message) SyncTagsFromFlags(flags []string) error {
	add, remove := TagsFromFlags(flags)
	for _, tag := range remove {
		if err := m.RemoveTag(tag); err != nil {
			return err
		}
	}
	for _, tag := range add {
		if err := m.AddTag(tag); err != nil {
			return err
		}
	}
	return nil
}
