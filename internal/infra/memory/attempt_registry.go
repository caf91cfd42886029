package memory

import (
	"sync"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// AttemptRegistry is an in-memory implementation of app.AttemptRegistry:
// at most one live proctored attempt per user.
type AttemptRegistry struct {
	mu       sync.Mutex
	attempts map[string]*app.Attempt
}

func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{attempts: make(map[string]*app.Attempt)}
}

func (r *AttemptRegistry) Register(userID string, attempt *app.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.attempts[userID]; ok && !live.Phase().Terminal() {
		return domain.ErrAttemptInProgress
	}
	r.attempts[userID] = attempt
	return nil
}

func (r *AttemptRegistry) Get(userID string) (*app.Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[userID]
	return attempt, ok
}

func (r *AttemptRegistry) Remove(userID string, attempt *app.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.attempts[userID]; ok && current == attempt {
		delete(r.attempts, userID)
	}
}
