package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/mailidx/lmtp"
	"github.com/spachava753/mailidx/notmuch"
)

type deliveryFlags struct {
	folder string
	tags   []string
}

func (f *deliveryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.folder, "folder", "", "maildir under the mail root receiving new mail")
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "tags for delivered messages (default inbox,unread)")
}

func (f *deliveryFlags) config(a *app) lmtp.Config {
	return lmtp.Config{Folder: f.folder, Tags: f.tags, Logger: a.logger}
}

func (a *app) deliverCmd() *cobra.Command {
	flags := &deliveryFlags{}
	cmd := &cobra.Command{
		Use:   "deliver [+TAG...]",
		Short: "Deliver one message read from standard input",
		Long: `Deliver stores the message read from standard input in the maildir
and indexes it. Arguments of the form +TAG add tags to this message only.`,
		Example: `  procmail: | mailidx deliver --folder INBOX +lists`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var extra []string
			for _, arg := range args {
				if len(arg) < 2 || arg[0] != '+' {
					return fmt.Errorf("mailidx: unexpected argument %q", arg)
				}
				extra = append(extra, arg[1:])
			}

			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			d, err := lmtp.NewDeliverer(db, flags.config(a))
			if err != nil {
				return err
			}
			defer d.Close()

			delivery, err := d.Deliver(cmd.InOrStdin(), extra...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:%s %s\n", delivery.MessageID, delivery.Path)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	flags := &deliveryFlags{}
	cfg := lmtp.ServerConfig{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept deliveries over LMTP",
		Long: `Serve runs an LMTP server delivering every accepted message into the
maildir and the index. It runs until interrupted.

Recipient detail becomes a tag: mail for user+lists@example.com is tagged
"lists".`,
		Example: `  mailidx serve --network unix --listen /run/mailidx/lmtp.sock`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if cfg.Password == "" {
				cfg.Password = os.Getenv(lmtpPasswordEnv)
			}
			if cfg.Username != "" && cfg.Password == "" {
				return fmt.Errorf("mailidx: --user needs a password, set --password or MAILIDX_LMTP_PASSWORD")
			}

			db, err := a.open(notmuch.ModeReadWrite)
			if err != nil {
				return err
			}
			defer closeDatabase(db, &err)

			d, err := lmtp.NewDeliverer(db, flags.config(a))
			if err != nil {
				return err
			}
			defer d.Close()

			srv, err := lmtp.NewServer(d, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(srv.ListenAndServe)
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down lmtp server")
				return srv.Close()
			})
			return g.Wait()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&cfg.Addr, "listen", "127.0.0.1:2424", "address or socket path to listen on")
	cmd.Flags().StringVar(&cfg.Network, "network", "tcp", "listener network: tcp or unix")
	cmd.Flags().StringVar(&cfg.Domain, "domain", "localhost", "domain announced in the greeting")
	cmd.Flags().StringVar(&cfg.Username, "user", "", "require AUTH PLAIN with this user")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "password for --user (default $"+lmtpPasswordEnv+")")
	cmd.Flags().BoolVar(&cfg.AllowInsecureAuth, "allow-insecure-auth", true, "allow AUTH without TLS")
	cmd.Flags().Int64Var(&cfg.MaxMessageBytes, "max-message-bytes", 32<<20, "largest accepted message")
	cmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", 5*time.Minute, "per command read timeout")
	return cmd
}
