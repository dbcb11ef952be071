package learning

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultEasinessFactor = 2.5
	MinEasinessFactor     = 1.3
)

// Review records a spaced-repetition review of the card with an SM-2 quality grade (0-5)
// and schedules the next review.
func Review(card *Card, quality int, now time.Time) error {
	if quality < 0 || quality > 5 {
		return fmt.Errorf("review card %s: quality %d out of range 0-5", card.ID, quality)
	}

	previousStreak := card.CorrectStreak
	card.EasinessFactor = updateEasinessFactor(card.EasinessFactor, quality, previousStreak)
	if quality >= 3 {
		card.CorrectStreak++
	} else {
		card.CorrectStreak = 0
	}
	card.IntervalDays = nextInterval(card.IntervalDays, card.EasinessFactor, quality, card.CorrectStreak, previousStreak)

	card.ReviewCount++
	card.LastReviewedAt = Millis(now)
	card.NextReviewAt = Millis(now.Add(time.Duration(card.IntervalDays) * 24 * time.Hour))
	card.UpdatedAt = Millis(now)
	return nil
}

// updateEasinessFactor applies the SM-2 delta, scaling down the penalty of a
// wrong answer on a card with a long correct streak.
func updateEasinessFactor(ef float64, quality int, previousCorrectStreak int) float64 {
	if ef == 0 {
		ef = DefaultEasinessFactor
	}

	q := float64(quality)
	delta := 0.1 - (5-q)*(0.08+(5-q)*0.02)

	if quality < 3 && previousCorrectStreak > 2 {
		var scaleFactor float64
		switch {
		case previousCorrectStreak >= 10:
			scaleFactor = 0.37
		case previousCorrectStreak >= 6:
			scaleFactor = 0.56
		default:
			scaleFactor = 0.74
		}
		delta = delta * scaleFactor
	}

	return math.Max(ef+delta, MinEasinessFactor)
}

func nextInterval(lastInterval int, ef float64, quality int, correctStreak int, previousCorrectStreak int) int {
	if quality < 3 {
		return lapseInterval(lastInterval, previousCorrectStreak)
	}

	switch correctStreak {
	case 1:
		return 1
	case 2:
		return 6
	default:
		if lastInterval == 0 {
			lastInterval = 6
		}
		return int(math.Ceil(float64(lastInterval) * ef))
	}
}

// lapseInterval shrinks the interval proportionally to the progress made so far.
func lapseInterval(lastInterval int, previousCorrectStreak int) int {
	if previousCorrectStreak <= 2 {
		return 1
	}

	multiplier := 0.5
	switch {
	case previousCorrectStreak >= 10:
		multiplier = 0.7
	case previousCorrectStreak >= 6:
		multiplier = 0.6
	}

	newInterval := int(math.Ceil(float64(lastInterval) * multiplier))
	if newInterval < 1 {
		return 1
	}
	return newInterval
}
