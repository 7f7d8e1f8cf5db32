package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/mailidx/notmuch"
)

func (a *app) indexCmd() *cobra.Command {
	var (
		tags   []string
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "index FILE...",
		Short: "Add message files to the index, or remove them",
		Long: `Index adds message files under the mail root to the index and applies
the given tags to them. A file holding a message that is already indexed is
recorded as another copy of it.

With --remove the files are removed from the index instead. A message stays
indexed while other copies of it remain.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			out := cmd.OutOrStdout()
			for _, file := range args {
				if remove {
					err := db.RemoveMessage(file)
					switch {
					case errors.Is(err, notmuch.StatusDuplicateMessageID):
						fmt.Fprintf(out, "removed %s (other copies remain)\n", file)
					case err != nil:
						return err
					default:
						fmt.Fprintf(out, "removed %s\n", file)
					}
					continue
				}

				msg, err := db.IndexFile(file)
				duplicate := errors.Is(err, notmuch.StatusDuplicateMessageID)
				if err != nil && !duplicate {
					return err
				}
				err = applyTagOps(msg, addOps(tags))
				id := msg.ID()
				msg.Destroy()
				if err != nil {
					return err
				}
				if duplicate {
					fmt.Fprintf(out, "id:%s %s (duplicate)\n", id, file)
				} else {
					fmt.Fprintf(out, "id:%s %s\n", id, file)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to add to indexed messages (repeatable)")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the files from the index")
	return cmd
}

func addOps(tags []string) []tagOp {
	ops := make([]tagOp, 0, len(tags))
	for _, tag := range tags {
		ops = append(ops, tagOp{tag: tag, add: true})
	}
	return ops
}
