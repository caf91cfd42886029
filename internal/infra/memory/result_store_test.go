package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyhub-quiz-service/internal/domain"
)

func TestResultStoreSaveAttemptIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	store.AddUser(domain.User{ID: "u1", Name: "Alice"})

	completed := time.Now()
	record := domain.AttemptRecord{
		Subject:        "os",
		Score:          1,
		TotalQuestions: 1,
		CompletedAt:    completed,
		Questions:      []string{"q"},
		UserAnswers:    []string{"a"},
		CorrectAnswers: []string{"a"},
	}
	state := domain.StreakState{CurrentStreak: 1, LongestStreak: 1, LastQuizDate: &completed}

	if err := store.SaveAttempt(ctx, "u1", record, state); err != nil {
		t.Fatalf("save attempt: %v", err)
	}

	user, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.Attempts) != 1 || user.Streak.CurrentStreak != 1 {
		t.Fatalf("expected attempt and streak visible together, got %d attempts streak %d",
			len(user.Attempts), user.Streak.CurrentStreak)
	}
}

func TestResultStoreUnknownUser(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	if _, err := store.GetStreak(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := store.UpdateStreak(ctx, "ghost", domain.StreakState{}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResultStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	last := time.Now()
	store.AddUser(domain.User{ID: "u1", Streak: domain.StreakState{
		CurrentStreak: 2,
		LastQuizDate:  &last,
		History:       []domain.StreakHistoryEntry{{Date: last, StreakCount: 2, QuizzesCompleted: 1}},
	}})

	state, _ := store.GetStreak(ctx, "u1")
	state.History[0].QuizzesCompleted = 99
	*state.LastQuizDate = last.AddDate(0, 0, -5)

	fresh, _ := store.GetStreak(ctx, "u1")
	if fresh.History[0].QuizzesCompleted != 1 {
		t.Fatalf("stored history mutated through returned slice")
	}
	if !fresh.LastQuizDate.Equal(last) {
		t.Fatalf("stored lastQuizDate mutated through returned pointer")
	}
}
