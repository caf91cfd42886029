package memory

import (
	"context"
	"sync"

	"studyhub-quiz-service/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultStore. SaveAttempt
// appends the attempt and replaces the streak under one lock, which gives the
// all-or-nothing visibility the finish path requires.
type ResultStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewResultStore() *ResultStore {
	return &ResultStore{users: make(map[string]*domain.User)}
}

// AddUser seeds a user record (tests/demos).
func (s *ResultStore) AddUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.users[user.ID] = &u
}

func (s *ResultStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *ResultStore) GetStreak(_ context.Context, userID string) (domain.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.StreakState{}, domain.ErrUserNotFound
	}
	return cloneStreak(user.Streak), nil
}

func (s *ResultStore) SaveAttempt(_ context.Context, userID string, record domain.AttemptRecord, state domain.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Attempts = append(user.Attempts, record)
	user.Streak = cloneStreak(state)
	return nil
}

func (s *ResultStore) UpdateStreak(_ context.Context, userID string, state domain.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Streak = cloneStreak(state)
	return nil
}

func cloneUser(user *domain.User) domain.User {
	out := *user
	out.Streak = cloneStreak(user.Streak)
	out.Attempts = make([]domain.AttemptRecord, len(user.Attempts))
	copy(out.Attempts, user.Attempts)
	return out
}

func cloneStreak(state domain.StreakState) domain.StreakState {
	out := state
	if state.LastQuizDate != nil {
		last := *state.LastQuizDate
		out.LastQuizDate = &last
	}
	out.History = make([]domain.StreakHistoryEntry, len(state.History))
	copy(out.History, state.History)
	return out
}
