// Package streak computes consecutive-day participation state. All functions
// are pure; persistence and locking are the caller's concern.
package streak

import (
	"sort"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// DayOf truncates t to local midnight. All day comparisons in this package
// happen at this granularity.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Advance returns the streak state after recording an attempt completed at
// completedAt, evaluated against the wall clock now. It never mutates prior.
//
// Rules, in order:
//   - first attempt ever: current = longest = 1
//   - repeat attempt today: current unchanged
//   - last attempt was yesterday: current + 1
//   - last attempt before yesterday: current restarts at 1
//   - last attempt in the future (clock anomaly): current unchanged
//   - attempt not dated today (backdated): current unchanged
//
// LastQuizDate is always updated, and the history entry for today is
// created or updated regardless of which rule applied.
func Advance(prior domain.StreakState, completedAt, now time.Time) domain.StreakState {
	today := DayOf(now)
	yesterday := today.AddDate(0, 0, -1)
	attemptDay := DayOf(completedAt)

	next := prior
	if prior.LastQuizDate == nil {
		next.CurrentStreak = 1
		next.LongestStreak = 1
	} else if attemptDay.Equal(today) {
		lastDay := DayOf(*prior.LastQuizDate)
		switch {
		case lastDay.Equal(today):
			// already counted today
		case lastDay.Equal(yesterday):
			next.CurrentStreak = prior.CurrentStreak + 1
		case lastDay.Before(yesterday):
			next.CurrentStreak = 1
		default:
			// lastDay after today: keep the streak rather than guess
		}
	}
	// backdated attempts never touch the live streak

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	completed := completedAt
	next.LastQuizDate = &completed
	next.History = updateHistory(prior.History, today, next.CurrentStreak)
	return next
}

// Reconcile applies the lazy reset: a gap of two or more days since the last
// attempt zeroes the current streak. It is invoked on both read and write
// paths. The second return value reports whether the state changed and needs
// persisting.
func Reconcile(state domain.StreakState, now time.Time) (domain.StreakState, bool) {
	if state.LastQuizDate == nil {
		return state, false
	}
	yesterday := DayOf(now).AddDate(0, 0, -1)
	if DayOf(*state.LastQuizDate).Before(yesterday) && state.CurrentStreak != 0 {
		state.CurrentStreak = 0
		return state, true
	}
	return state, false
}

// updateHistory copies the prior history and either bumps today's entry or
// appends a fresh one. One entry per calendar day.
func updateHistory(prior []domain.StreakHistoryEntry, today time.Time, streakCount int) []domain.StreakHistoryEntry {
	history := make([]domain.StreakHistoryEntry, len(prior))
	copy(history, prior)
	for i := range history {
		if DayOf(history[i].Date).Equal(today) {
			history[i].StreakCount = streakCount
			history[i].QuizzesCompleted++
			return history
		}
	}
	return append(history, domain.StreakHistoryEntry{
		Date:             today,
		StreakCount:      streakCount,
		QuizzesCompleted: 1,
	})
}

// SortedHistory returns the history newest-first, as the streak endpoint
// serves it. The input is not modified.
func SortedHistory(entries []domain.StreakHistoryEntry) []domain.StreakHistoryEntry {
	sorted := make([]domain.StreakHistoryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}
