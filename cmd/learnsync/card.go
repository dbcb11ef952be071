package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/hybrid"
	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/statistics"
)

func newCardCommand() *cobra.Command {
	cardCommand := &cobra.Command{
		Use:   "card",
		Short: "Manage review cards",
	}
	cardCommand.AddCommand(
		newCardAddCommand(),
		newCardListCommand(),
		newCardDueCommand(),
		newCardReviewCommand(),
		newCardDeleteCommand(),
		newCardStatsCommand(),
	)
	return cardCommand
}

func newCardAddCommand() *cobra.Command {
	var in hybrid.NewCard
	var messageID string
	cmd := &cobra.Command{
		Use:   "add <session id>",
		Short: "Add a card to a session, or bookmark one of its messages",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var card *learning.Card
			var err error
			if messageID != "" {
				card, err = a.storage.BookmarkMessage(cmd.Context(), args[0], messageID, in)
			} else {
				card, err = a.storage.AddLearningCard(cmd.Context(), args[0], in)
			}
			if err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "created card %s, first review %s\n",
				card.ID, formatMillis(card.NextReviewAt))
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Title, "title", "", "Card title")
	flags.StringVar(&in.Content, "content", "", "Card content")
	flags.StringVar(&in.Note, "note", "", "Personal note")
	flags.StringSliceVar(&in.Tags, "tag", nil, "Tag, repeatable")
	flags.IntVar(&in.Difficulty, "difficulty", 0, "Difficulty from 1 to 5")
	flags.StringVar(&in.ChapterID, "chapter", "", "Outline chapter the card belongs to")
	flags.StringVar(&messageID, "message", "", "Bookmark this message instead of writing the content")
	return cmd
}

func newCardListCommand() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cards",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var cards []learning.Card
			var err error
			if sessionID != "" {
				cards, err = a.storage.GetCardsBySession(cmd.Context(), sessionID)
			} else {
				cards, err = a.storage.GetAllCards(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printCards(cmd, cards)
		}),
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only list the cards of this session")
	return cmd
}

func newCardDueCommand() *cobra.Command {
	var within time.Duration
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the cards due for review",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			cards, err := a.storage.GetDueCards(cmd.Context(), time.Now().Add(within))
			if err != nil {
				return err
			}
			if len(cards) == 0 {
				_, _ = successColor.Fprintln(cmd.OutOrStdout(), "nothing to review")
				return nil
			}
			return printCards(cmd, cards)
		}),
	}
	cmd.Flags().DurationVar(&within, "within", 0, "Also list cards due within this duration")
	return cmd
}

func newCardReviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "review <card id> <quality 0-5>",
		Short: "Record a review and schedule the next one",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			quality, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quality %q: %w", args[1], err)
			}
			card, err := a.storage.ReviewCard(cmd.Context(), args[0], quality)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "next review of %s: %s (interval %d days)\n",
				card.ID, formatMillis(card.NextReviewAt), card.IntervalDays)
			return nil
		}),
	}
}

func newCardDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card id>",
		Short: "Delete a card",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.storage.DeleteCard(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "deleted card %s\n", args[0])
			return nil
		}),
	}
}

func printCards(cmd *cobra.Command, cards []learning.Card) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = headerColor.Fprintln(w, "ID\tSESSION\tNEXT REVIEW\tREVIEWS\tTAGS\tTITLE")
	for _, c := range cards {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.SessionID, formatMillis(c.NextReviewAt), c.ReviewCount, strings.Join(c.Tags, ","), truncate(c.Title, 50))
	}
	return w.Flush()
}

func newCardStatsCommand() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show monthly card and review statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if month != 0 && year == 0 {
				return fmt.Errorf("--month requires --year")
			}
			cards, err := a.storage.GetAllCards(cmd.Context())
			if err != nil {
				return err
			}
			result := statistics.CalculateStatistics(cards, time.Now(), year, month)

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = headerColor.Fprintln(w, "PERIOD\tNEW\tREVIEWED\tSESSIONS")
			for _, p := range result.Periods {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", p.Period, p.NewCards, p.ReviewedCards, p.Sessions)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			agg := result.Aggregate
			_, _ = fmt.Fprintf(out, "cards %d, reviews %d, due %d, unscheduled %d, mature %d, average easiness %.2f\n",
				agg.Cards, agg.Reviews, agg.Due, agg.Unscheduled, agg.Mature, agg.AverageEasiness)
			return nil
		}),
	}
	cmd.Flags().IntVar(&year, "year", 0, "Only count this year")
	cmd.Flags().IntVar(&month, "month", 0, "Only count this month of --year")
	return cmd
}
