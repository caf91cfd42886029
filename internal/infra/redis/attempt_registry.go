package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// AttemptRegistry is a Redis-aware implementation of app.AttemptRegistry.
// Notes:
//   - Live attempts are in-process objects, so a local map still holds them;
//     Redis carries the liveness marker with a TTL bounded by the attempt
//     budget, which lets a sibling instance refuse a second session for the
//     same user.
//   - The marker expiring on its own covers crashed instances that never
//     removed their attempts.
type AttemptRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.Mutex
	attempts map[string]*app.Attempt
}

func NewAttemptRegistry(client *redis.Client, ttl time.Duration) *AttemptRegistry {
	return &AttemptRegistry{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (r *AttemptRegistry) Register(userID string, attempt *app.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.attempts[userID]; ok && !live.Phase().Terminal() {
		return domain.ErrAttemptInProgress
	}

	ok, err := r.client.SetNX(context.Background(), r.key(userID), attempt.ID, r.ttl).Result()
	if err == nil && !ok {
		// marker held by another instance
		if owner, _ := r.client.Get(context.Background(), r.key(userID)).Result(); owner != attempt.ID {
			return domain.ErrAttemptInProgress
		}
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
	current, ok := r.attempts[userID]
	if !ok || current != attempt {
		return
	}
	delete(r.attempts, userID)
	_ = r.client.Del(context.Background(), r.key(userID)).Err()
}

func (r *AttemptRegistry) key(userID string) string {
	return "quiz:attempt:" + userID
}
