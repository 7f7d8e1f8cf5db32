package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/mailidx/notmuch"
)

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create an index at the mail root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.root()
			if err != nil {
				return err
			}
			db, err := notmuch.Create(path, notmuch.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := db.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index at %s\n", db.Path())
			return nil
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the index path, version and revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := a.open(notmuch.ModeReadOnly)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			version, err := db.Version()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:     %s\n", db.Path())
			fmt.Fprintf(out, "version:  %d\n", version)
			revision, err := revisionString(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "revision: %s\n", revision)
			return nil
		},
	}
}

func (a *app) compactCmd() *cobra.Command {
	var backup string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the index to reclaim space",
		Long: `Compact rewrites the index. No other process may have the index open.

With --backup the previous index is kept at the given path, which must not
exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.root()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return notmuch.Compact(path, backup, func(message string) {
				fmt.Fprintln(out, message)
			}, notmuch.WithLogger(a.logger))
		},
	}
	cmd.Flags().StringVar(&backup, "backup", "", "keep the previous index at this path")
	return cmd
}

func (a *app) upgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the index to the current format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			out := cmd.OutOrStdout()
			needs, err := db.NeedsUpgrade()
			if err != nil {
				return err
			}
			if !needs {
				fmt.Fprintln(out, "index is up to date")
				return nil
			}

			last := -1
			err = db.Upgrade(func(progress float64) {
				if pct := int(progress * 100); pct != last {
					last = pct
					fmt.Fprintf(out, "upgrading: %d%%\n", pct)
				}
			})
			if err != nil {
				return err
			}
			version, err := db.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "upgraded index to version %d\n", version)
			return nil
		},
	}
}
