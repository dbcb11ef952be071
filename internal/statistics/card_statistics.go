// Package statistics summarizes cards per month and across the whole collection.
package statistics

import (
	"fmt"
	"sort"
	"time"

	"github.com/at-ishikawa/learnsync/internal/learning"
)

// MatureIntervalDays is the review interval from which a card counts as mature.
const MatureIntervalDays = 21

// PeriodStatistics holds statistics for one month
type PeriodStatistics struct {
	Period        string // "2025-01"
	NewCards      int    // Cards created in the month
	ReviewedCards int    // Cards whose last review fell in the month
	Sessions      int    // Sessions that received new cards
}

// AggregateStatistics holds totals over the filtered cards
type AggregateStatistics struct {
	Cards           int
	Reviews         int // Sum of review counts
	Due             int // Due at the reference time
	Unscheduled     int
	Mature          int
	AverageEasiness float64 // Over reviewed cards only
}

// StatisticsResult holds both per-period and aggregate statistics
type StatisticsResult struct {
	Periods   []PeriodStatistics
	Aggregate AggregateStatistics
}

type periodData struct {
	newCards      int
	reviewedCards int
	sessions      map[string]struct{}
}

// CalculateStatistics summarizes cards created or reviewed in the given year and month
// (0 means no filter). Due counts are taken at now.
func CalculateStatistics(cards []learning.Card, now time.Time, year, month int) StatisticsResult {
	stats := make(map[string]*periodData)
	var agg AggregateStatistics
	var easinessSum float64
	var reviewed int

	for i := range cards {
		card := &cards[i]
		created := time.UnixMilli(card.CreatedAt).UTC()
		createdMatches := card.CreatedAt > 0 && matchesFilter(created.Year(), int(created.Month()), year, month)
		reviewedMatches := false
		if card.LastReviewedAt > 0 {
			last := time.UnixMilli(card.LastReviewedAt).UTC()
			reviewedMatches = matchesFilter(last.Year(), int(last.Month()), year, month)
			if reviewedMatches {
				data := ensurePeriodExists(stats, periodOf(last))
				data.reviewedCards++
			}
		}
		if createdMatches {
			data := ensurePeriodExists(stats, periodOf(created))
			data.newCards++
			data.sessions[card.SessionID] = struct{}{}
		}
		if !createdMatches && !reviewedMatches && year != 0 {
			continue
		}

		agg.Cards++
		agg.Reviews += card.ReviewCount
		switch {
		case card.NextReviewAt == 0:
			agg.Unscheduled++
		case card.IsDue(now):
			agg.Due++
		}
		if card.IntervalDays >= MatureIntervalDays {
			agg.Mature++
		}
		if card.ReviewCount > 0 {
			easinessSum += card.EasinessFactor
			reviewed++
		}
	}
	if reviewed > 0 {
		agg.AverageEasiness = easinessSum / float64(reviewed)
	}

	return buildResult(stats, agg)
}

func periodOf(t time.Time) string {
	return fmt.Sprintf("%d-%02d", t.Year(), int(t.Month()))
}

func ensurePeriodExists(stats map[string]*periodData, period string) *periodData {
	if stats[period] == nil {
		stats[period] = &periodData{sessions: make(map[string]struct{})}
	}
	return stats[period]
}

func matchesFilter(logYear, logMonth, filterYear, filterMonth int) bool {
	if filterYear == 0 {
		return true
	}
	if logYear != filterYear {
		return false
	}
	if filterMonth == 0 {
		return true
	}
	return logMonth == filterMonth
}

func buildResult(stats map[string]*periodData, agg AggregateStatistics) StatisticsResult {
	periods := make([]PeriodStatistics, 0, len(stats))
	for period, data := range stats {
		periods = append(periods, PeriodStatistics{
			Period:        period,
			NewCards:      data.newCards,
			ReviewedCards: data.reviewedCards,
			Sessions:      len(data.sessions),
		})
	}

	// Sort by period descending (newest first)
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Period > periods[j].Period
	})

	return StatisticsResult{Periods: periods, Aggregate: agg}
}
