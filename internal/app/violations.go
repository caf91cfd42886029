package app

import (
	"sync"

	"studyhub-quiz-service/internal/domain"
)

// ViolationTracker counts discrete integrity violations and signals the
// session exactly once when the count reaches the limit. The tracker is inert
// until armed and becomes inert again once disarmed.
type ViolationTracker struct {
	limit   int
	onLimit func()

	mu    sync.Mutex
	armed bool
	fired bool
	count int
}

func NewViolationTracker(limit int, onLimit func()) *ViolationTracker {
	if limit <= 0 {
		limit = 3
	}
	return &ViolationTracker{limit: limit, onLimit: onLimit}
}

// Arm enables counting. Called on entry to the active phase.
func (t *ViolationTracker) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
}

// Disarm makes the tracker inert. Called on every exit from the active phase.
func (t *ViolationTracker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
}

// Record counts one violation event. Rapid repeats each count. The returned
// bool reports whether the event was counted; events while disarmed are not.
// The limit callback runs outside the tracker lock and at most once ever,
// regardless of overshoot.
func (t *ViolationTracker) Record(kind domain.ViolationKind) (int, bool) {
	if !domain.KnownViolation(kind) {
		return t.Count(), false
	}

	t.mu.Lock()
	if !t.armed {
		count := t.count
		t.mu.Unlock()
		return count, false
	}
	t.count++
	count := t.count
	fire := count >= t.limit && !t.fired
	if fire {
		t.fired = true
	}
	t.mu.Unlock()

	if fire && t.onLimit != nil {
		t.onLimit()
	}
	return count, true
}

// Count returns the running violation count.
func (t *ViolationTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Limit returns the forced-finish threshold.
func (t *ViolationTracker) Limit() int {
	return t.limit
}
