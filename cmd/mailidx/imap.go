package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spachava753/mailidx/imapsync"
	"github.com/spachava753/mailidx/notmuch"
)

func (a *app) importIMAPCmd() *cobra.Command {
	cfg := imapsync.Config{}
	cmd := &cobra.Command{
		Use:   "import-imap",
		Short: "Import mailboxes from an IMAP server",
		Long: `Import-imap downloads messages that are not indexed yet from the given
mailboxes into maildirs under the mail root and indexes them. Tags of
messages that are already indexed follow the server's flags.

The password is read from $` + imapPasswordEnv + `.`,
		Example: `  MAILIDX_IMAP_PASSWORD=... mailidx import-imap --addr imap.example.com:993 --tls --user alice --mailbox INBOX --mailbox Archive`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg.Password = os.Getenv(imapPasswordEnv)
			if cfg.Password == "" {
				return fmt.Errorf("mailidx: set %s to the IMAP password", imapPasswordEnv)
			}
			cfg.Logger = a.logger

			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			res, err := imapsync.Sync(cmd.Context(), db, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d mailboxes: %d fetched, %d duplicates, %d updated\n",
				res.Mailboxes, res.Fetched, res.Duplicates, res.Updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", "", "IMAP server host:port")
	cmd.Flags().BoolVar(&cfg.TLS, "tls", false, "connect with implicit TLS")
	cmd.Flags().StringVar(&cfg.Username, "user", "", "IMAP user name")
	cmd.Flags().StringSliceVarP(&cfg.Mailboxes, "mailbox", "m", nil, "mailbox to import (repeatable, default INBOX)")
	cmd.Flags().StringVar(&cfg.Folder, "folder", "", "directory under the mail root for imported maildirs (default imap)")
	cmd.Flags().StringSliceVarP(&cfg.Tags, "tag", "t", nil, "tag to add to imported messages (repeatable)")
	cmd.Flags().BoolVar(&cfg.MailboxTags, "mailbox-tags", true, "tag messages with their mailbox name")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 0, "messages per fetch (default 100)")
	_ = cmd.MarkFlagRequired("addr")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
