package memory

import (
	"errors"
	"testing"
	"time"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

func TestAttemptRegistryAllowsOneLiveAttempt(t *testing.T) {
	registry := NewAttemptRegistry()
	first := newIdleAttempt()

	if err := registry.Register("u1", first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("u1", newIdleAttempt()); !errors.Is(err, domain.ErrAttemptInProgress) {
		t.Fatalf("expected ErrAttemptInProgress, got %v", err)
	}
	if got, ok := registry.Get("u1"); !ok || got != first {
		t.Fatalf("expected first attempt registered")
	}

	registry.Remove("u1", first)
	if _, ok := registry.Get("u1"); ok {
		t.Fatalf("expected slot released")
	}
}

func TestAttemptRegistryReplacesTerminalAttempt(t *testing.T) {
	registry := NewAttemptRegistry()
	stale := newIdleAttempt()
	stale.Close()
	if err := registry.Register("u1", stale); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := registry.Register("u1", newIdleAttempt()); err != nil {
		t.Fatalf("expected terminal attempt to be replaceable, got %v", err)
	}
}

func TestAttemptRegistryRemoveIgnoresStalePointer(t *testing.T) {
	registry := NewAttemptRegistry()
	current := newIdleAttempt()
	if err := registry.Register("u1", current); err != nil {
		t.Fatalf("register: %v", err)
	}

	registry.Remove("u1", newIdleAttempt())
	if _, ok := registry.Get("u1"); !ok {
		t.Fatalf("remove with a stale pointer must not evict the live attempt")
	}
}

func newIdleAttempt() *app.Attempt {
	return app.NewAttempt("u1", "os", []domain.Question{
		{Subject: "os", Text: "q", Options: []string{"a", "b"}, Answer: "a"},
	}, app.AttemptConfig{Budget: time.Hour, TickInterval: time.Hour}, app.AttemptEvents{})
}
