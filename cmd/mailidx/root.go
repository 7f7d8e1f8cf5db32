package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/spachava753/mailidx/notmuch"
)

const (
	databaseEnv     = "NOTMUCH_DATABASE"
	imapPasswordEnv = "MAILIDX_IMAP_PASSWORD"
	lmtpPasswordEnv = "MAILIDX_LMTP_PASSWORD"
)

var errNoDatabase = errors.New("mailidx: no database path, use --database or " + databaseEnv)

// app carries the state shared by all subcommands.
type app struct {
	database string
	verbose  bool
	logger   *slog.Logger
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mailidx",
		Short: "Index, search and tag a maildir collection",
		Long: `mailidx keeps a searchable index of the mail stored under a mail root.

Messages are indexed from maildir files, delivered over LMTP or imported
from IMAP servers, then searched and tagged with notmuch style queries.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if a.database == "" {
				a.database = os.Getenv(databaseEnv)
			}
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.database, "database", "d", "", "mail root holding the index (default $"+databaseEnv+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.createCmd(),
		a.infoCmd(),
		a.compactCmd(),
		a.upgradeCmd(),
		a.tagsCmd(),
		a.searchCmd(),
		a.countCmd(),
		a.indexCmd(),
		a.tagCmd(),
		a.deliverCmd(),
		a.serveCmd(),
		a.importIMAPCmd(),
	)
	return root
}

func (a *app) root() (string, error) {
	if a.database == "" {
		return "", errNoDatabase
	}
	return a.database, nil
}

// open opens the index in mode. Callers close the returned database.
func (a *app) open(mode notmuch.DatabaseMode) (*notmuch.Database, error) {
	path, err := a.root()
	if err != nil {
		return nil, err
	}
	return notmuch.Open(path, mode, notmuch.WithLogger(a.logger))
}

// closeDatabase closes db and reports a close failure unless err is already set.
func closeDatabase(db *notmuch.Database, err *error) {
	if cerr := db.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
