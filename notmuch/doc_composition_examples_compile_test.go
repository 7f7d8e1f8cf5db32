package notmuch_test

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spachava753/mailidx/notmuch"
)

func composeIndexNewMail(root string, tags []string) (int, error) {
	db, err := notmuch.Open(root, notmuch.ModeReadWrite)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	added := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".notmuch" {
				return filepath.SkipDir
			}
			return nil
		}
		msg, err := db.IndexFile(path)
		switch {
		case errors.Is(err, notmuch.StatusFileNotEmail), errors.Is(err, notmuch.StatusDuplicateMessageID):
			if msg != nil {
				msg.Destroy()
			}
			return nil
		case err != nil:
			return err
		}
		defer msg.Destroy()
		for _, tag := range tags {
			if err := msg.AddTag(tag); err != nil {
				return err
			}
		}
		added++
		return nil
	})
	return added, err
}

func composeArchiveOldThreads(db *notmuch.Database, before time.Time) (int, error) {
	q, err := db.CreateQuery("tag:inbox")
	if err != nil {
		return 0, err
	}
	defer q.Destroy()

	threads, err := q.SearchThreads()
	if err != nil {
		return 0, err
	}
	defer threads.Destroy()

	archived := 0
	for th := range threads.All() {
		if th.NewestDate().Before(before) {
			msgs, err := th.Messages()
			if err != nil {
				th.Destroy()
				return archived, err
			}
			for msg := range msgs.All() {
				err = msg.RemoveTag("inbox")
				msg.Destroy()
				if err != nil {
					break
				}
			}
			msgs.Destroy()
			if err != nil {
				th.Destroy()
				return archived, err
			}
			archived++
		}
		th.Destroy()
	}
	return archived, nil
}

func composeTagSummary(db *notmuch.Database) (string, error) {
	tags, err := db.AllTags()
	if err != nil {
		return "", err
	}
	defer tags.Destroy()

	var lines []string
	for tag := range tags.All() {
		q, err := db.CreateQuery("tag:" + tag)
		if err != nil {
			return "", err
		}
		n, err := q.CountMessages()
		q.Destroy()
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s\t%d", tag, n))
	}
	return strings.Join(lines, "\n"), nil
}

func composeCompactWithBackup(root string) ([]string, error) {
	var progress []string
	backup := filepath.Join(filepath.Dir(root), filepath.Base(root)+".bak")
	err := notmuch.Compact(root, backup, func(message string) {
		progress = append(progress, message)
	})
	return progress, err
}
