package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spachava753/mailidx/notmuch"
)

func (a *app) tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every tag in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := a.open(notmuch.ModeReadOnly)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			tags, err := db.AllTags()
			if err != nil {
				return err
			}
			defer tags.Destroy()
			for tag := range tags.All() {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}
}

type searchOptions struct {
	output string
	sort   string
	limit  int
}

func (a *app) searchCmd() *cobra.Command {
	opts := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search the index",
		Example: `  mailidx search tag:unread from:alice
  mailidx search --output threads subject:"quarterly report"
  mailidx search --output files folder:INBOX`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			sort, ok := notmuch.ParseSort(opts.sort)
			if !ok {
				return fmt.Errorf("mailidx: unknown sort order %q", opts.sort)
			}

			db, err := a.open(notmuch.ModeReadOnly)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			q, err := db.CreateQuery(strings.Join(args, " "))
			if err != nil {
				return err
			}
			defer q.Destroy()
			if err := q.SetSort(sort); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch opts.output {
			case "messages":
				return printMessages(out, q, opts.limit, false)
			case "files":
				return printMessages(out, q, opts.limit, true)
			case "threads":
				return printThreads(out, q, opts.limit)
			default:
				return fmt.Errorf("mailidx: unknown output %q", opts.output)
			}
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "threads", "what to print: threads, messages or files")
	cmd.Flags().StringVar(&opts.sort, "sort", notmuch.SortNewestFirst.String(), "result order: newest-first, oldest-first, message-id or unsorted")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "print at most this many results (0 means no limit)")
	return cmd
}

func printMessages(out io.Writer, q *notmuch.Query, limit int, files bool) error {
	msgs, err := q.SearchMessages()
	if err != nil {
		return err
	}
	defer msgs.Destroy()

	n := 0
	for msg := range msgs.All() {
		if limit > 0 && n == limit {
			msg.Destroy()
			break
		}
		n++
		err := printMessage(out, msg, files)
		msg.Destroy()
		if err != nil {
			return err
		}
	}
	return nil
}

func printMessage(out io.Writer, msg *notmuch.Message, files bool) error {
	if files {
		names, err := msg.Filenames()
		if err != nil {
			return err
		}
		defer names.Destroy()
		for name := range names.All() {
			fmt.Fprintln(out, name)
		}
		return nil
	}
	tags, err := msg.TagList()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "id:%s  %s  %s; %s (%s)\n",
		msg.ID(), formatDate(msg.Date()), msg.Header("From"), msg.Header("Subject"), strings.Join(tags, " "))
	return nil
}

func printThreads(out io.Writer, q *notmuch.Query, limit int) error {
	threads, err := q.SearchThreads()
	if err != nil {
		return err
	}
	defer threads.Destroy()

	n := 0
	for thread := range threads.All() {
		if limit > 0 && n == limit {
			thread.Destroy()
			break
		}
		n++
		err := printThread(out, thread)
		thread.Destroy()
		if err != nil {
			return err
		}
	}
	return nil
}

func printThread(out io.Writer, thread *notmuch.Thread) error {
	tags, err := thread.Tags()
	if err != nil {
		return err
	}
	defer tags.Destroy()
	var list []string
	for tag := range tags.All() {
		list = append(list, tag)
	}
	fmt.Fprintf(out, "thread:%s  %s [%d/%d] %s; %s (%s)\n",
		thread.ID(), formatDate(thread.NewestDate()), thread.MatchedMessages(), thread.TotalMessages(),
		thread.Authors(), thread.Subject(), strings.Join(list, " "))
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.DateOnly)
}

func (a *app) countCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "count QUERY...",
		Short: "Count messages or threads matching a query",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := a.open(notmuch.ModeReadOnly)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			q, err := db.CreateQuery(strings.Join(args, " "))
			if err != nil {
				return err
			}
			defer q.Destroy()

			var count uint
			switch output {
			case "messages":
				count, err = q.CountMessages()
			case "threads":
				count, err = q.CountThreads()
			default:
				return fmt.Errorf("mailidx: unknown output %q", output)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "messages", "what to count: messages or threads")
	return cmd
}

// tagOp is one +tag or -tag operation.
type tagOp struct {
	tag string
	add bool
}

// parseTagOps splits args into leading tag operations and the query after them.
func parseTagOps(args []string) ([]tagOp, string, error) {
	var ops []tagOp
	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if len(arg) < 2 || (arg[0] != '+' && arg[0] != '-') {
			break
		}
		ops = append(ops, tagOp{tag: arg[1:], add: arg[0] == '+'})
	}
	if len(ops) == 0 {
		return nil, "", fmt.Errorf("mailidx: no tag operations given")
	}
	if i == len(args) {
		return nil, "", fmt.Errorf("mailidx: no query given")
	}
	return ops, strings.Join(args[i:], " "), nil
}

func (a *app) tagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag [--] +TAG|-TAG... QUERY...",
		Short: "Add or remove tags on matching messages",
		Long: `Tag applies tag operations to every message matching the query.

Removals start with '-', so place them after "--" to keep them from being
read as flags. The first argument that is not an operation starts the query.`,
		Example: `  mailidx tag -- +work -inbox from:boss@example.com`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ops, query, err := parseTagOps(args)
			if err != nil {
				return err
			}

			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			q, err := db.CreateQuery(query)
			if err != nil {
				return err
			}
			defer q.Destroy()
			msgs, err := q.SearchMessages()
			if err != nil {
				return err
			}
			defer msgs.Destroy()

			changed := 0
			for msg := range msgs.All() {
				err := applyTagOps(msg, ops)
				msg.Destroy()
				if err != nil {
					return err
				}
				changed++
			}
			a.logger.Debug("tagged messages", "query", query, "messages", changed)
			fmt.Fprintf(cmd.OutOrStdout(), "tagged %d messages\n", changed)
			return nil
		},
	}
}

func applyTagOps(msg *notmuch.Message, ops []tagOp) error {
	for _, op := range ops {
		var err error
		if op.add {
			err = msg.AddTag(op.tag)
		} else {
			err = msg.RemoveTag(op.tag)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
