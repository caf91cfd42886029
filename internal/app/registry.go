package app

// AttemptRegistry tracks the live attempt per user so a second proctored
// session cannot start while one is active (in-memory, Redis-marked, etc).
type AttemptRegistry interface {
	// Register claims the user's attempt slot. Returns
	// domain.ErrAttemptInProgress when an attempt is already live.
	Register(userID string, attempt *Attempt) error
	Get(userID string) (*Attempt, bool)
	// Remove releases the slot, but only if it still holds this attempt.
	Remove(userID string, attempt *Attempt)
}
