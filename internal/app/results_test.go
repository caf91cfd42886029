package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"studyhub-quiz-service/internal/domain"
)

type stubResultStore struct {
	mu       sync.Mutex
	streaks  map[string]domain.StreakState
	attempts map[string][]domain.AttemptRecord
	updates  int
}

func newStubResultStore(users ...string) *stubResultStore {
	s := &stubResultStore{
		streaks:  make(map[string]domain.StreakState),
		attempts: make(map[string][]domain.AttemptRecord),
	}
	for _, u := range users {
		s.streaks[u] = domain.StreakState{}
	}
	return s
}

func (s *stubResultStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.streaks[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return domain.User{ID: userID, Streak: state, Attempts: s.attempts[userID]}, nil
}

func (s *stubResultStore) GetStreak(_ context.Context, userID string) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.streaks[userID]
	if !ok {
		return domain.StreakState{}, domain.ErrUserNotFound
	}
	return state, nil
}

func (s *stubResultStore) SaveAttempt(_ context.Context, userID string, record domain.AttemptRecord, state domain.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streaks[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.attempts[userID] = append(s.attempts[userID], record)
	s.streaks[userID] = state
	return nil
}

func (s *stubResultStore) UpdateStreak(_ context.Context, userID string, state domain.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streaks[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.streaks[userID] = state
	s.updates++
	return nil
}

func validRecord(completedAt time.Time) domain.AttemptRecord {
	return domain.AttemptRecord{
		Subject:        "math",
		Score:          1,
		TotalQuestions: 2,
		CompletedAt:    completedAt,
		Questions:      []string{"a", "b"},
		UserAnswers:    []string{"x", domain.Unanswered},
		CorrectAnswers: []string{"x", "y"},
	}
}

func TestSaveResultRejectsInvalidRecord(t *testing.T) {
	store := newStubResultStore("u1")
	svc := NewResultService(store)

	record := validRecord(time.Now())
	record.Score = 5
	if _, err := svc.SaveResult(context.Background(), "u1", record); err != domain.ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if len(store.attempts["u1"]) != 0 {
		t.Fatalf("expected no attempts stored")
	}
}

func TestConcurrentSavesCountEveryAttempt(t *testing.T) {
	store := newStubResultStore("u1")
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	svc := NewResultServiceWithClock(store, func() time.Time { return now })

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SaveResult(context.Background(), "u1", validRecord(now)); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(store.attempts["u1"]); got != n {
		t.Fatalf("expected %d attempts, got %d", n, got)
	}
	state := store.streaks["u1"]
	if state.CurrentStreak != 1 {
		t.Fatalf("expected streak 1 after same-day saves, got %d", state.CurrentStreak)
	}
	if len(state.History) != 1 {
		t.Fatalf("expected one history day, got %d", len(state.History))
	}
	if state.History[0].QuizzesCompleted != n {
		t.Fatalf("expected %d quizzes on the day, got %d", n, state.History[0].QuizzesCompleted)
	}
}

func TestStreakReadAppliesAndPersistsLazyReset(t *testing.T) {
	store := newStubResultStore("u1")
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	stale := now.AddDate(0, 0, -3)
	store.streaks["u1"] = domain.StreakState{CurrentStreak: 6, LongestStreak: 6, LastQuizDate: &stale}

	svc := NewResultServiceWithClock(store, func() time.Time { return now })

	state, err := svc.Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if state.CurrentStreak != 0 {
		t.Fatalf("expected reset streak, got %d", state.CurrentStreak)
	}
	if state.LongestStreak != 6 {
		t.Fatalf("longest streak must survive the reset, got %d", state.LongestStreak)
	}
	if store.updates != 1 {
		t.Fatalf("expected the reset to be persisted once, got %d updates", store.updates)
	}

	// a second read sees the persisted reset and writes nothing
	if _, err := svc.Streak(context.Background(), "u1"); err != nil {
		t.Fatalf("second streak read: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("expected no further updates, got %d", store.updates)
	}
}

func TestProfileAppliesLazyReset(t *testing.T) {
	store := newStubResultStore("u1")
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	stale := now.AddDate(0, 0, -2)
	store.streaks["u1"] = domain.StreakState{CurrentStreak: 3, LongestStreak: 4, LastQuizDate: &stale}

	svc := NewResultServiceWithClock(store, func() time.Time { return now })

	user, err := svc.Profile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.Streak.CurrentStreak != 0 {
		t.Fatalf("expected reset streak on profile, got %d", user.Streak.CurrentStreak)
	}
	if store.updates != 1 {
		t.Fatalf("expected persisted reset, got %d updates", store.updates)
	}
}

func TestSaveResultUnknownUser(t *testing.T) {
	store := newStubResultStore()
	svc := NewResultService(store)
	if _, err := svc.SaveResult(context.Background(), "ghost", validRecord(time.Now())); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserLocksAreShedWhenIdle(t *testing.T) {
	store := newStubResultStore("u1", "u2")
	svc := NewResultService(store)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, user := range []string{"u1", "u2"} {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				if _, err := svc.SaveResult(context.Background(), user, validRecord(time.Now())); err != nil {
					t.Errorf("save for %s: %v", user, err)
				}
			}(user)
		}
	}
	wg.Wait()

	svc.mu.Lock()
	held := len(svc.locks)
	svc.mu.Unlock()
	if held != 0 {
		t.Fatalf("expected no retained user locks after the work drained, got %d", held)
	}
}
