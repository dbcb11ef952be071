package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/classifier"
	"github.com/at-ishikawa/learnsync/internal/datasync"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/hybrid"
)

func newSyncCommand() *cobra.Command {
	syncCommand := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and run synchronization with the remote store",
	}
	syncCommand.AddCommand(
		newSyncStatusCommand(),
		newSyncNowCommand(),
		newSyncQuickCommand(),
		newSyncFullCommand(),
		newSyncPlanCommand(),
		newSyncWatchCommand(),
	)
	return syncCommand
}

func newSyncStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state and the number of pending writes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			status, err := a.storage.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch status.State {
			case hybrid.StateSynced:
				_, _ = successColor.Fprintf(out, "%s as %s\n", status.State, status.UserID)
			case hybrid.StatePending:
				_, _ = warningColor.Fprintf(out, "%s as %s: %d writes waiting\n", status.State, status.UserID, status.Pending)
			default:
				_, _ = warningColor.Fprintf(out, "%s: data stays on this device\n", status.State)
			}
			if status.UserID != "" {
				migrated, err := a.storage.Migrated(status.UserID)
				if err != nil {
					return err
				}
				if !migrated {
					_, _ = warningColor.Fprintln(out, "local data has not been fully migrated yet")
				}
			}
			return nil
		}),
	}
}

func newSyncNowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Replay the pending writes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			result, err := a.storage.Drain(cmd.Context())
			if result != nil {
				printDrainResult(cmd.OutOrStdout(), result)
			}
			return err
		}),
	}
}

func newSyncQuickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quick",
		Short: "Push the critical data: the active session and cards due for review",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			result, err := a.storage.QuickSync(cmd.Context())
			if result != nil {
				printSyncResult(cmd.OutOrStdout(), result)
			}
			return err
		}),
	}
}

func newSyncFullCommand() *cobra.Command {
	var includeOptional bool
	cmd := &cobra.Command{
		Use:   "full",
		Short: "Push the critical and important data",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if !cmd.Flags().Changed("optional") {
				prefs, err := a.storage.GetUserPreferences(cmd.Context())
				if err != nil {
					return err
				}
				includeOptional = prefs != nil && prefs.SyncIncludeOptional
			}
			result, err := a.storage.FullSync(cmd.Context(), includeOptional)
			if result != nil {
				printSyncResult(cmd.OutOrStdout(), result)
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&includeOptional, "optional", false, "Also push completed sessions and unscheduled cards")
	return cmd
}

func newSyncPlanCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how the local data is prioritized",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			plan, err := a.storage.Plan(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = headerColor.Fprintln(w, "PRIORITY\tITEMS\tBYTES")
			buckets := []struct {
				priority classifier.Priority
				items    []classifier.DataItem
			}{
				{classifier.PriorityCritical, plan.Critical},
				{classifier.PriorityImportant, plan.Important},
				{classifier.PriorityOptional, plan.Optional},
			}
			for _, b := range buckets {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", b.priority, len(b.items), plan.Bytes(b.priority))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "estimated: quick %s, full %s, everything %s\n",
				plan.Estimate(classifier.ScopeQuick), plan.Estimate(classifier.ScopeFull), plan.EstimatedDuration)

			if verbose {
				w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = headerColor.Fprintln(w, "PRIORITY\tTYPE\tID\tREASON")
				for _, b := range buckets {
					for _, item := range b.items {
						_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Priority, item.Type, item.ID, item.Reason)
					}
				}
				return w.Flush()
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every item")
	return cmd
}

func newSyncWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the sync events a running daemon publishes to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pub, err := events.NewRedisPublisher(cmd.Context(), cfg.Events.Redis.Addr, cfg.Events.Redis.Channel, nil)
			if err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()

			out := cmd.OutOrStdout()
			return pub.Listen(cmd.Context(), func(e events.Event) {
				printEvent(out, e)
			})
		},
	}
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login <user id>",
		Short: "Sign in, migrate the local data and replay pending writes",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			changed, err := a.auth.Login(args[0])
			if err != nil {
				return err
			}
			if changed {
				if err := a.rememberUser(args[0]); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			_, _ = successColor.Fprintf(out, "signed in as %s\n", args[0])
			result, err := a.storage.HandleLogin(cmd.Context(), out)
			if err != nil {
				return err
			}
			if result.Migration != nil {
				printMigrationResult(out, result.Migration)
			}
			if result.Drain != nil {
				printDrainResult(out, result.Drain)
			}
			return nil
		}),
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Return to anonymous mode; pending writes stay queued for this account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.forgetUser(); err != nil {
				return err
			}
			a.auth.Logout()
			_, _ = successColor.Fprintln(cmd.OutOrStdout(), "signed out")
			if a.cfg.Auth.UserID != "" {
				_, _ = warningColor.Fprintln(cmd.OutOrStdout(), "auth.user_id is set in the configuration and still applies")
			}
			return nil
		}),
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy every local session, card and setting to the remote store",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			userID, ok := a.auth.CurrentUserID()
			if !ok {
				return hybrid.ErrAnonymous
			}
			out := cmd.OutOrStdout()
			result, err := datasync.NewMigrator(a.local, a.remote, out, a.cfg.Sync.RemoteTimeout).Migrate(cmd.Context(), userID)
			if result != nil {
				printMigrationResult(out, result)
			}
			return err
		}),
	}
}

func printMigrationResult(w io.Writer, result *datasync.MigrationResult) {
	if result.Failed == 0 {
		_, _ = successColor.Fprintf(w, "migrated %d items\n", result.Migrated)
		return
	}
	_, _ = warningColor.Fprintf(w, "migrated %d items, %d failed; the migration runs again on the next login\n",
		result.Migrated, result.Failed)
}

func printDrainResult(w io.Writer, result *hybrid.DrainResult) {
	if result.Skipped {
		_, _ = warningColor.Fprintln(w, "another sync is running")
		return
	}
	c := successColor
	if result.Failed > 0 || result.Dropped > 0 {
		c = warningColor
	}
	_, _ = c.Fprintf(w, "synced %d, failed %d, dropped %d, blocked %d, remaining %d\n",
		result.Synced, result.Failed, result.Dropped, result.Blocked, result.Remaining)
	if result.Held > 0 {
		_, _ = warningColor.Fprintf(w, "%d queued writes belong to other accounts and were left in the queue\n", result.Held)
	}
	for _, msg := range result.Errors {
		_, _ = failureColor.Fprintf(w, "  %s\n", msg)
	}
}

func printSyncResult(w io.Writer, result *hybrid.SyncResult) {
	c := successColor
	if result.Queued > 0 {
		c = warningColor
	}
	_, _ = c.Fprintf(w, "%s sync: %d of %d sent, %d queued (estimated %s)\n",
		result.Scope, result.Mirrored, result.Total, result.Queued, result.Estimated)
	for _, msg := range result.Errors {
		_, _ = failureColor.Fprintf(w, "  %s\n", msg)
	}
}

func printEvent(w io.Writer, e events.Event) {
	switch e.Kind {
	case events.KindSyncProgress:
		_, _ = fmt.Fprintf(w, "%s %s %d/%d\n", formatMillis(e.At), e.Kind, e.Current, e.Total)
	case events.KindSyncStarted:
		_, _ = fmt.Fprintf(w, "%s %s %d items\n", formatMillis(e.At), e.Kind, e.Total)
	default:
		_, _ = fmt.Fprintf(w, "%s %s synced=%d failed=%d\n", formatMillis(e.At), e.Kind, e.Synced, e.Failed)
	}
}
