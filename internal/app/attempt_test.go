package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

type stubFeed struct {
	mu       sync.Mutex
	frame    app.Frame
	released int
}

func (f *stubFeed) Frame(_ context.Context) (app.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, nil
}

func (f *stubFeed) Push(frame app.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
}

func (f *stubFeed) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *stubFeed) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func twoQuestions() []domain.Question {
	return []domain.Question{
		{Subject: "os", Text: "What does CPU stand for?", Options: []string{"Central Processing Unit", "Core Program Utility"}, Answer: "Central Processing Unit"},
		{Subject: "os", Text: "Which scheduler picks the next runnable process?", Options: []string{"Long-term", "Short-term"}, Answer: "Short-term"},
	}
}

type finishRecorder struct {
	mu      sync.Mutex
	calls   int
	record  domain.AttemptRecord
	reason  domain.FinishReason
	signal  chan struct{}
}

func newFinishRecorder() *finishRecorder {
	return &finishRecorder{signal: make(chan struct{}, 4)}
}

func (r *finishRecorder) onFinished(record domain.AttemptRecord, reason domain.FinishReason) {
	r.mu.Lock()
	r.calls++
	r.record = record
	r.reason = reason
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *finishRecorder) snapshot() (int, domain.AttemptRecord, domain.FinishReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.record, r.reason
}

func (r *finishRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.signal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for finish")
	}
}

func newActiveAttempt(t *testing.T, questions []domain.Question, rec *finishRecorder) (*app.Attempt, *stubFeed) {
	t.Helper()
	a := app.NewAttempt("u1", "os", questions, app.AttemptConfig{
		Budget:       time.Hour,
		TickInterval: time.Hour, // keep the clock out of state-machine tests
	}, app.AttemptEvents{OnFinished: rec.onFinished})

	feed := &stubFeed{}
	if err := a.GrantPermission(feed); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
	return a, feed
}

func TestAdvanceRequiresSelection(t *testing.T) {
	rec := newFinishRecorder()
	a, _ := newActiveAttempt(t, twoQuestions(), rec)
	defer a.Close()

	if err := a.Advance(); !errors.Is(err, domain.ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, idx, ok := a.CurrentQuestion(); !ok || idx != 0 {
		t.Fatalf("expected to remain on question 0, got idx=%d ok=%v", idx, ok)
	}
}

func TestSelectRejectsUnknownOption(t *testing.T) {
	rec := newFinishRecorder()
	a, _ := newActiveAttempt(t, twoQuestions(), rec)
	defer a.Close()

	if err := a.Select("not an option"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestFullPassScoresAndFinishes(t *testing.T) {
	rec := newFinishRecorder()
	a, feed := newActiveAttempt(t, twoQuestions(), rec)

	if err := a.Select("Central Processing Unit"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := a.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := a.Select("Long-term"); err != nil { // wrong on purpose
		t.Fatalf("select: %v", err)
	}
	if err := a.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	rec.wait(t)

	calls, record, reason := rec.snapshot()
	if calls != 1 {
		t.Fatalf("expected one finish callback, got %d", calls)
	}
	if reason != domain.FinishRequested {
		t.Fatalf("expected requested finish, got %s", reason)
	}
	if record.Score != 1 || record.TotalQuestions != 2 {
		t.Fatalf("expected score 1/2, got %d/%d", record.Score, record.TotalQuestions)
	}
	if !record.Valid() {
		t.Fatalf("record violates invariants: %+v", record)
	}
	if record.UserAnswers[0] != "Central Processing Unit" || record.UserAnswers[1] != "Long-term" {
		t.Fatalf("unexpected answer log: %+v", record.UserAnswers)
	}
	if feed.releaseCount() != 1 {
		t.Fatalf("expected camera released exactly once, got %d", feed.releaseCount())
	}
	if a.Phase() != domain.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", a.Phase())
	}
}

func TestFinishScoresPendingSelection(t *testing.T) {
	rec := newFinishRecorder()
	a, _ := newActiveAttempt(t, twoQuestions(), rec)

	if err := a.Select("Central Processing Unit"); err != nil {
		t.Fatalf("select: %v", err)
	}
	a.Finish()
	rec.wait(t)

	_, record, _ := rec.snapshot()
	if record.Score != 1 {
		t.Fatalf("expected pending selection scored, got score %d", record.Score)
	}
	if record.UserAnswers[0] != "Central Processing Unit" || record.UserAnswers[1] != domain.Unanswered {
		t.Fatalf("unexpected answer log: %+v", record.UserAnswers)
	}
	if !record.Valid() {
		t.Fatalf("record violates invariants: %+v", record)
	}
}

func TestFinishWithoutSelectionRecordsUnanswered(t *testing.T) {
	rec := newFinishRecorder()
	a, _ := newActiveAttempt(t, twoQuestions(), rec)

	a.Finish()
	rec.wait(t)

	_, record, _ := rec.snapshot()
	if record.Score != 0 {
		t.Fatalf("expected score 0, got %d", record.Score)
	}
	for i, ans := range record.UserAnswers {
		if ans != domain.Unanswered {
			t.Fatalf("expected slot %d unanswered, got %q", i, ans)
		}
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	rec := newFinishRecorder()
	a, feed := newActiveAttempt(t, twoQuestions(), rec)

	a.Finish()
	rec.wait(t)
	a.Finish()
	a.Close()

	calls, _, _ := rec.snapshot()
	if calls != 1 {
		t.Fatalf("expected exactly one record, got %d finish callbacks", calls)
	}
	if feed.releaseCount() != 1 {
		t.Fatalf("expected single release, got %d", feed.releaseCount())
	}
}

func TestViolationThresholdForcesFinishOnce(t *testing.T) {
	rec := newFinishRecorder()
	a, _ := newActiveAttempt(t, twoQuestions(), rec)

	if n := a.RecordViolation(domain.ViolationTabHidden); n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
	if n := a.RecordViolation(domain.ViolationCopy); n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
	if calls, _, _ := rec.snapshot(); calls != 0 {
		t.Fatalf("finish fired before threshold")
	}

	a.RecordViolation(domain.ViolationPaste)
	rec.wait(t)

	calls, _, reason := rec.snapshot()
	if calls != 1 || reason != domain.FinishViolations {
		t.Fatalf("expected one violation-forced finish, got calls=%d reason=%s", calls, reason)
	}

	// events after termination are dropped by the inert tracker
	if n := a.RecordViolation(domain.ViolationCut); n != 3 {
		t.Fatalf("expected count frozen at 3, got %d", n)
	}
}

func TestTimerExpiryForcesFinishOnce(t *testing.T) {
	rec := newFinishRecorder()
	a := app.NewAttempt("u1", "os", twoQuestions(), app.AttemptConfig{
		Budget:       2 * time.Second,
		TickInterval: 5 * time.Millisecond,
	}, app.AttemptEvents{OnFinished: rec.onFinished})
	feed := &stubFeed{}
	if err := a.GrantPermission(feed); err != nil {
		t.Fatalf("grant: %v", err)
	}

	rec.wait(t)
	calls, record, reason := rec.snapshot()
	if calls != 1 || reason != domain.FinishTimeExpired {
		t.Fatalf("expected one timer-forced finish, got calls=%d reason=%s", calls, reason)
	}
	if a.Remaining() != 0 {
		t.Fatalf("expected clock at zero, got %d", a.Remaining())
	}
	if !record.Valid() {
		t.Fatalf("record violates invariants: %+v", record)
	}

	time.Sleep(20 * time.Millisecond)
	if a.Remaining() != 0 {
		t.Fatalf("clock kept decrementing after finish")
	}
}

func TestPermissionDeniedIsTerminal(t *testing.T) {
	rec := newFinishRecorder()
	a := app.NewAttempt("u1", "os", twoQuestions(), app.AttemptConfig{
		Budget: time.Hour, TickInterval: time.Hour,
	}, app.AttemptEvents{OnFinished: rec.onFinished})

	a.DenyPermission()
	if a.Phase() != domain.PhasePermissionDenied {
		t.Fatalf("expected permission-denied phase, got %s", a.Phase())
	}
	if err := a.Select("Central Processing Unit"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := a.GrantPermission(&stubFeed{}); err == nil {
		t.Fatalf("expected grant after denial to fail")
	}
	if calls, _, _ := rec.snapshot(); calls != 0 {
		t.Fatalf("denied attempt must not emit a record")
	}
}

func TestCloseReleasesFeedWithoutRecord(t *testing.T) {
	rec := newFinishRecorder()
	a, feed := newActiveAttempt(t, twoQuestions(), rec)

	a.Close()
	if feed.releaseCount() != 1 {
		t.Fatalf("expected feed released on teardown, got %d", feed.releaseCount())
	}
	if calls, _, _ := rec.snapshot(); calls != 0 {
		t.Fatalf("teardown must not emit a record")
	}
	if a.Phase() != domain.PhaseFinished {
		t.Fatalf("expected terminal phase after teardown, got %s", a.Phase())
	}
	if a.Reason() != domain.FinishTeardown {
		t.Fatalf("expected teardown reason, got %s", a.Reason())
	}
}

func TestViolationsBeforePermissionAreDropped(t *testing.T) {
	rec := newFinishRecorder()
	a := app.NewAttempt("u1", "os", twoQuestions(), app.AttemptConfig{
		Budget: time.Hour, TickInterval: time.Hour,
	}, app.AttemptEvents{OnFinished: rec.onFinished})

	if n := a.RecordViolation(domain.ViolationCopy); n != 0 {
		t.Fatalf("expected tracker inert before activation, got count %d", n)
	}
}

func TestCloseRacingGrantStopsTheClock(t *testing.T) {
	for i := 0; i < 25; i++ {
		feed := &stubFeed{}
		a := app.NewAttempt("u1", "os", twoQuestions(), app.AttemptConfig{
			Budget: time.Hour, TickInterval: time.Millisecond,
		}, app.AttemptEvents{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.GrantPermission(feed)
		}()
		go func() {
			defer wg.Done()
			a.Close()
		}()
		wg.Wait()

		before := a.Remaining()
		time.Sleep(15 * time.Millisecond)
		if after := a.Remaining(); after != before {
			t.Fatalf("iteration %d: clock still running after close, remaining %d -> %d", i, before, after)
		}
	}
}
