package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/inbox"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

var (
	inboxView     string
	inboxQuery    string
	inboxSort     string
	inboxInterval time.Duration
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Work the admin support inbox",
}

// inbox returns an inbox that prints its notifications to stderr.
func (a *app) inbox(cmd *cobra.Command) *inbox.Inbox {
	return inbox.New(inbox.Options{
		API:       a.client,
		Tokens:    a.identity,
		Navigator: navigatorFor(cmd),
		Notifier: inbox.NotifierFunc(func(level inbox.Level, msg string) {
			if level == inbox.LevelError {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", msg)
				return
			}
			fmt.Fprintln(cmd.ErrOrStderr(), msg)
		}),
		Log: a.log,
	})
}

func filter() inbox.Filter { return inbox.Filter{View: inboxView, Query: inboxQuery} }

// loaded returns an inbox with the current message set.
func loaded(cmd *cobra.Command, a *app) (*inbox.Inbox, error) {
	if !a.session.IsAdmin() {
		return nil, fmt.Errorf("the inbox is for admins")
	}
	b := a.inbox(cmd)
	if _, err := b.Load(ctx(cmd), inbox.Filter{View: "all"}, "newest"); err != nil {
		return nil, err
	}
	return b, nil
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		b, err := loaded(cmd, a)
		if err != nil {
			return err
		}
		printMessages(cmd, inbox.Apply(b.Messages(), filter(), inboxSort))
		return nil
	}),
}

var inboxOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Show a message, marking it open if unread",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		b, err := loaded(cmd, a)
		if err != nil {
			return err
		}
		m, err := b.Open(ctx(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	}),
}

var inboxStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a message's status",
	Args:  cobra.ExactArgs(2),
	ValidArgs: []string{
		model.MessageUnread, model.MessageOpen, model.MessagePending,
		model.MessageResolved, model.MessageArchived, model.MessageTrash,
	},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		b, err := loaded(cmd, a)
		if err != nil {
			return err
		}
		return b.SetStatus(ctx(cmd), args[0], args[1])
	}),
}

var inboxStarCmd = &cobra.Command{
	Use:   "star <id>",
	Short: "Toggle a message's star",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		b, err := loaded(cmd, a)
		if err != nil {
			return err
		}
		return b.ToggleStar(ctx(cmd), args[0])
	}),
}

// bulkCmd builds a command that applies op to every id given.
func bulkCmd(use, short string, op func(*inbox.Inbox, context.Context, []string) inbox.BulkResult) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			b, err := loaded(cmd, a)
			if err != nil {
				return err
			}
			res := op(b, ctx(cmd), args)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d messages failed: %v", len(res.Failed), len(args), res.Failed)
			}
			return nil
		}),
	}
}

var inboxCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show message counts per view",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		b, err := loaded(cmd, a)
		if err != nil {
			return err
		}
		return printJSON(cmd, b.Counts())
	}),
}

var inboxWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the inbox periodically until interrupted",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.session.IsAdmin() {
			return fmt.Errorf("the inbox is for admins")
		}
		c, stop := signal.NotifyContext(ctx(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a.inbox(cmd).AutoRefresh(c, inboxInterval, filter(), inboxSort, func(msgs []model.SupportMessage, err error) {
			if err != nil {
				return
			}
			cmd.Printf("%s  %d messages\n", time.Now().Format(time.Kitchen), len(msgs))
			printMessages(cmd, msgs)
		})
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{inboxListCmd, inboxWatchCmd} {
		c.Flags().StringVar(&inboxView, "filter", "inbox", "View: inbox, all, starred, archived or status-<status>")
		c.Flags().StringVar(&inboxQuery, "q", "", "Search name, email, subject and message")
		c.Flags().StringVar(&inboxSort, "sort", "newest", "Sort order: newest or oldest")
	}
	inboxWatchCmd.Flags().DurationVar(&inboxInterval, "interval", inbox.DefaultRefresh, "Reload interval")

	inboxCmd.AddCommand(inboxListCmd, inboxOpenCmd, inboxStatusCmd, inboxStarCmd, inboxCountsCmd, inboxWatchCmd,
		bulkCmd("archive", "Archive messages", (*inbox.Inbox).ArchiveMany),
		bulkCmd("read", "Mark messages as read", (*inbox.Inbox).MarkReadMany),
		bulkCmd("delete", "Move messages to trash", (*inbox.Inbox).DeleteMany),
	)
	rootCmd.AddCommand(inboxCmd)
}

func printMessages(cmd *cobra.Command, msgs []model.SupportMessage) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAR\tSTATUS\tFROM\tSUBJECT\tRECEIVED")
	for _, m := range msgs {
		star := ""
		if m.Starred {
			star = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, star, m.Status, m.Email, m.Subject, m.CreatedAt.Local().Format(time.DateTime))
	}
	_ = w.Flush()
}
