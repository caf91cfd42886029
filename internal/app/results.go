package app

import (
	"context"
	"sync"
	"time"

	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/streak"
)

// ResultStore is the persistence contract for attempt outcomes. SaveAttempt
// must apply the attempt record and the streak state atomically: a subsequent
// read sees both or neither.
type ResultStore interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetStreak(ctx context.Context, userID string) (domain.StreakState, error)
	SaveAttempt(ctx context.Context, userID string, record domain.AttemptRecord, state domain.StreakState) error
	UpdateStreak(ctx context.Context, userID string, state domain.StreakState) error
}

// ResultService owns the finish path: it computes the streak update from a
// freshly read prior state and writes both under a per-user serialization
// point, so concurrent finishes for one user never compute from stale state.
// The read paths apply the lazy reset and persist it when it fires.
type ResultService struct {
	store ResultStore
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is one keyed serialization entry, reference counted so the map
// sheds users with no in-flight operation instead of growing forever.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewResultService(store ResultStore) *ResultService {
	return NewResultServiceWithClock(store, time.Now)
}

// NewResultServiceWithClock is test-only for deterministic day arithmetic.
func NewResultServiceWithClock(store ResultStore, clock func() time.Time) *ResultService {
	return &ResultService{
		store: store,
		clock: clock,
		locks: make(map[string]*userLock),
	}
}

func (s *ResultService) lockUser(userID string) *userLock {
	s.mu.Lock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &userLock{}
		s.locks[userID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *ResultService) unlockUser(userID string, lock *userLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, userID)
	}
	s.mu.Unlock()
}

// SaveResult appends the attempt record and advances the streak. Returns the
// updated streak state for the response payload.
func (s *ResultService) SaveResult(ctx context.Context, userID string, record domain.AttemptRecord) (domain.StreakState, error) {
	if !record.Valid() {
		return domain.StreakState{}, domain.ErrInvalidRecord
	}

	lock := s.lockUser(userID)
	defer s.unlockUser(userID, lock)

	prior, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return domain.StreakState{}, err
	}

	now := s.clock()
	prior, _ = streak.Reconcile(prior, now)
	next := streak.Advance(prior, record.CompletedAt, now)

	if err := s.store.SaveAttempt(ctx, userID, record, next); err != nil {
		return domain.StreakState{}, err
	}
	return next, nil
}

// Streak returns the user's streak state, applying the lazy reset as a side
// effect: missing a full day zeroes the current streak even before the next
// attempt, and the reset is persisted.
func (s *ResultService) Streak(ctx context.Context, userID string) (domain.StreakState, error) {
	lock := s.lockUser(userID)
	defer s.unlockUser(userID, lock)

	state, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return domain.StreakState{}, err
	}
	state, changed := streak.Reconcile(state, s.clock())
	if changed {
		if err := s.store.UpdateStreak(ctx, userID, state); err != nil {
			return domain.StreakState{}, err
		}
	}
	return state, nil
}

// Profile returns the user's profile with attempt history, applying the same
// lazy streak reset as the streak endpoint.
func (s *ResultService) Profile(ctx context.Context, userID string) (domain.User, error) {
	lock := s.lockUser(userID)
	defer s.unlockUser(userID, lock)

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	state, changed := streak.Reconcile(user.Streak, s.clock())
	if changed {
		if err := s.store.UpdateStreak(ctx, userID, state); err != nil {
			return domain.User{}, err
		}
		user.Streak = state
	}
	return user, nil
}
