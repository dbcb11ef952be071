package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/hybrid"
	"github.com/at-ishikawa/learnsync/internal/learning"
)

func newSessionCommand() *cobra.Command {
	sessionCommand := &cobra.Command{
		Use:   "session",
		Short: "Manage learning sessions",
	}
	sessionCommand.AddCommand(
		newSessionCreateCommand(),
		newSessionListCommand(),
		newSessionShowCommand(),
		newSessionDeleteCommand(),
		newSessionActivateCommand(),
		newSessionMessageCommand(),
		newSessionStatusCommand(),
		newSessionProgressCommand(),
	)
	return sessionCommand
}

func newSessionCreateCommand() *cobra.Command {
	var title, documentPath string
	level := newLevelFlag()
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session, optionally from a document",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			in := hybrid.NewSession{Title: title, Level: learning.Level(level.String())}
			if documentPath != "" {
				content, err := os.ReadFile(documentPath)
				if err != nil {
					return fmt.Errorf("read document: %w", err)
				}
				in.DocumentText = string(content)
				in.DocumentType = strings.TrimPrefix(filepath.Ext(documentPath), ".")
				if in.Title == "" {
					in.Title = strings.TrimSuffix(filepath.Base(documentPath), filepath.Ext(documentPath))
				}
			}

			session, err := a.storage.CreateSession(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "created session %s\n", session.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "Session title")
	cmd.Flags().Var(level, "level", "Learner level: beginner or expert")
	cmd.Flags().StringVar(&documentPath, "document", "", "Path of the document to learn from")
	return cmd
}

func newSessionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			sessions, err := a.storage.GetAllSessions(cmd.Context())
			if err != nil {
				return err
			}
			active, err := a.storage.ActiveSessionID()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = headerColor.Fprintln(w, "\tID\tSTATUS\tCARDS\tCREATED\tTITLE")
			for _, s := range sessions {
				marker := ""
				if s.ID == active {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					marker, s.ID, s.Status, len(s.CardIDs), formatMillis(s.CreatedAt), truncate(s.Title, 50))
			}
			return w.Flush()
		}),
	}
}

func newSessionShowCommand() *cobra.Command {
	var withDocument bool
	cmd := &cobra.Command{
		Use:   "show <session id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			session, err := a.storage.GetSessionByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if session == nil {
				return fmt.Errorf("session %s: %w", args[0], hybrid.ErrNotFound)
			}
			if !withDocument {
				session.DocumentText = ""
			}
			return printYAML(cmd.OutOrStdout(), session)
		}),
	}
	cmd.Flags().BoolVar(&withDocument, "document", false, "Include the document text")
	return cmd
}

func newSessionDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session id>...",
		Short: "Delete sessions and their cards",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if err := a.storage.DeleteSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = successColor.Fprintf(out, "deleted session %s\n", args[0])
				return nil
			}

			result, err := a.storage.BatchDeleteSessions(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, id := range result.Deleted {
				_, _ = successColor.Fprintf(out, "deleted session %s\n", id)
			}
			for _, failure := range result.Failed {
				_, _ = failureColor.Fprintf(out, "failed to delete session %s: %s\n", failure.ID, failure.Err)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d of %d sessions could not be deleted", len(result.Failed), len(args))
			}
			return nil
		}),
	}
}

func newSessionActivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <session id>",
		Short: "Mark the session you are working on",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.storage.SetActiveSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "active session is %s\n", args[0])
			return nil
		}),
	}
}

func newSessionMessageCommand() *cobra.Command {
	role := newRoleFlag()
	cmd := &cobra.Command{
		Use:   "message <session id> <content>",
		Short: "Append a chat message to a session",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			msg, err := a.storage.AppendMessage(cmd.Context(), args[0], learning.ChatMessage{
				Role:    learning.Role(role.String()),
				Content: args[1],
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "appended message %s\n", msg.ID)
			return nil
		}),
	}
	cmd.Flags().Var(role, "role", "Message author: user, assistant or system")
	return cmd
}

func newSessionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session id> <draft|active|paused|completed>",
		Short: "Change the status of a session",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			session, err := a.storage.UpdateSessionStatus(cmd.Context(), args[0], learning.SessionStatus(args[1]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s is %s\n", session.ID, session.Status)
			return nil
		}),
	}
}

func newSessionProgressCommand() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "progress <session id> <chapter id> [section id]",
		Short: "Mark an outline chapter or section as completed",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			sectionID := ""
			if len(args) == 3 {
				sectionID = args[2]
			}
			if _, err := a.storage.UpdateOutlineProgress(cmd.Context(), args[0], args[1], sectionID, !undo); err != nil {
				return err
			}
			state := "completed"
			if undo {
				state = "not completed"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "marked %s as %s\n", strings.Join(args[1:], "/"), state)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark as not completed")
	return cmd
}
