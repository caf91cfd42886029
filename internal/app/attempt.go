package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyhub-quiz-service/internal/domain"
)

// CameraFeed is the live monitoring feed attached when the test-taker grants
// permission. Release stops the underlying tracks and must happen on every
// exit path, not only the happy one.
type CameraFeed interface {
	FrameSource
	Release()
}

// FrameSink is implemented by feeds that accept frames pushed from the
// transport layer.
type FrameSink interface {
	Push(Frame)
}

type frameSourceFunc func(ctx context.Context) (Frame, error)

func (f frameSourceFunc) Frame(ctx context.Context) (Frame, error) { return f(ctx) }

// AttemptConfig carries the proctoring knobs for one attempt.
type AttemptConfig struct {
	Budget           time.Duration // total time budget, default 20m
	TickInterval     time.Duration // test seam, default 1s
	ViolationLimit   int           // default 3
	FacePollInterval time.Duration // default 1.2s
	Detector         FaceDetector
	Clock            func() time.Time
}

// AttemptEvents are the outbound notification hooks for one attempt. All
// fields are optional. OnFinished receives the single attempt record this
// session will ever produce; it runs once, off the session lock, before the
// session reaches its terminal phase.
type AttemptEvents struct {
	OnTick      func(remaining int)
	OnFace      func(domain.FaceReport)
	OnViolation func(count, limit int)
	OnFinished  func(record domain.AttemptRecord, reason domain.FinishReason)
}

// Attempt is the proctored quiz session state machine. It owns question
// progression, the current selection, the score accumulator and the answer
// log, and consumes timer-expiry and violation-threshold signals to force
// termination. Transitions are serialized by the session mutex; the timer,
// tracker and monitor post their signals through exported methods and never
// process overlapping transitions.
type Attempt struct {
	ID      string
	UserID  string
	Subject string

	questions []domain.Question
	events    AttemptEvents
	clock     func() time.Time

	timer      *Countdown
	violations *ViolationTracker
	monitor    *FaceMonitor

	mu       sync.Mutex
	phase    domain.Phase
	index    int
	selected string
	score    int
	answers  []string
	feed     CameraFeed
	record   *domain.AttemptRecord
	reason   domain.FinishReason
}

// NewAttempt builds a session in the permission-pending phase. Nothing ticks
// or counts until GrantPermission succeeds.
func NewAttempt(userID, subject string, questions []domain.Question, cfg AttemptConfig, events AttemptEvents) *Attempt {
	if cfg.Budget <= 0 {
		cfg.Budget = 20 * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	a := &Attempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Subject:   subject,
		questions: questions,
		events:    events,
		clock:     cfg.Clock,
		phase:     domain.PhasePermissionPending,
		answers:   make([]string, 0, len(questions)),
	}
	a.timer = NewCountdownWithInterval(cfg.Budget, cfg.TickInterval, events.OnTick, func() {
		a.forceFinish(domain.FinishTimeExpired)
	})
	a.violations = NewViolationTracker(cfg.ViolationLimit, func() {
		a.forceFinish(domain.FinishViolations)
	})
	a.cfgMonitor(cfg)
	return a
}

func (a *Attempt) cfgMonitor(cfg AttemptConfig) {
	if cfg.Detector == nil {
		return
	}
	a.monitor = NewFaceMonitor(frameSourceFunc(a.latestFrame), cfg.Detector, cfg.FacePollInterval, a.events.OnFace)
}

// GrantPermission attaches the live feed and moves the session into the
// answering phase: the timer starts, the tracker arms and the monitor begins
// polling. Only valid from permission-pending. The sensors start under the
// same lock hold as the phase transition, so a concurrent Close cannot slip
// between the two and leave a ticker running against a torn-down session.
func (a *Attempt) GrantPermission(feed CameraFeed) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != domain.PhasePermissionPending {
		return domain.ErrNotAnswering
	}
	if len(a.questions) == 0 {
		return domain.ErrQuizNotFound
	}
	a.feed = feed
	a.phase = domain.PhaseAnswering

	a.timer.Start()
	a.violations.Arm()
	if a.monitor != nil {
		a.monitor.Start(context.Background())
	}
	return nil
}

// DenyPermission records a failed camera acquisition. Terminal: the attempt
// can only be retried from scratch with a fresh session.
func (a *Attempt) DenyPermission() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != domain.PhasePermissionPending {
		return
	}
	a.phase = domain.PhasePermissionDenied
}

// Select marks an option for the current question. It does not advance.
func (a *Attempt) Select(option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != domain.PhaseAnswering {
		return a.phaseError()
	}
	q := a.questions[a.index]
	for _, opt := range q.Options {
		if opt == option {
			a.selected = option
			return nil
		}
	}
	return domain.ErrUnknownOption
}

// Advance scores the current selection and moves to the next question, or
// into finishing after the last one. A selection is required; forced
// termination is the only way past a question without one.
func (a *Attempt) Advance() error {
	a.mu.Lock()
	if a.phase != domain.PhaseAnswering {
		err := a.phaseError()
		a.mu.Unlock()
		return err
	}
	if a.selected == domain.Unanswered {
		a.mu.Unlock()
		return domain.ErrNoSelection
	}

	a.scoreCurrentLocked()
	a.index++
	if a.index < len(a.questions) {
		a.mu.Unlock()
		return nil
	}
	a.finishLockedNoEmit(domain.FinishRequested)
	record := *a.record
	a.mu.Unlock()
	a.emitFinished(record, domain.FinishRequested)
	return nil
}

// Finish ends the attempt on explicit request. A pending selection for the
// current question is scored exactly as on the advance path.
func (a *Attempt) Finish() {
	a.forceFinish(domain.FinishRequested)
}

// RecordViolation counts one integrity violation event. Outside the answering
// phase the tracker is inert and the event is dropped. The returned count is
// the running total shown to the test-taker.
func (a *Attempt) RecordViolation(kind domain.ViolationKind) int {
	a.mu.Lock()
	active := a.phase == domain.PhaseAnswering
	a.mu.Unlock()
	if !active {
		return a.violations.Count()
	}

	count, counted := a.violations.Record(kind)
	if counted && a.events.OnViolation != nil {
		a.events.OnViolation(count, a.violations.Limit())
	}
	return count
}

// PushFrame feeds the latest captured frame to the face monitor.
func (a *Attempt) PushFrame(frame Frame) {
	a.mu.Lock()
	feed, active := a.feed, a.phase == domain.PhaseAnswering
	a.mu.Unlock()
	if !active || feed == nil {
		return
	}
	if sink, ok := feed.(FrameSink); ok {
		sink.Push(frame)
	}
}

// Close tears the session down from any state: monitors stop, the feed is
// released, and the phase becomes terminal. A session torn down mid-answer
// does not emit a record; the attempt simply never completed.
func (a *Attempt) Close() {
	a.mu.Lock()
	if a.phase.Terminal() || a.phase == domain.PhaseFinishing {
		a.mu.Unlock()
		return
	}
	a.phase = domain.PhaseFinished
	a.reason = domain.FinishTeardown
	feed := a.feed
	a.feed = nil
	a.mu.Unlock()

	a.shutdownSensors(feed)
}

// forceFinish is the shared termination path for explicit finish, timer
// expiry and the violation threshold. Idempotent: a second trigger while
// finishing or finished is a no-op, so at most one record is ever emitted.
func (a *Attempt) forceFinish(reason domain.FinishReason) {
	a.mu.Lock()
	if a.phase != domain.PhaseAnswering {
		a.mu.Unlock()
		return
	}
	a.finishLockedNoEmit(reason)
	record := *a.record
	a.mu.Unlock()

	a.emitFinished(record, reason)
}

// finishLockedNoEmit completes the answering→finishing transition under the
// session lock. The finished callback runs afterwards, off the lock, via
// emitFinished.
func (a *Attempt) finishLockedNoEmit(reason domain.FinishReason) {
	// score a pending selection exactly as the advance path would
	if a.index < len(a.questions) && a.selected != domain.Unanswered {
		a.scoreCurrentLocked()
		a.index++
	}
	// slots never reached are recorded as unanswered
	for len(a.answers) < len(a.questions) {
		a.answers = append(a.answers, domain.Unanswered)
	}

	a.phase = domain.PhaseFinishing
	a.reason = reason
	a.record = a.buildRecordLocked()
}

func (a *Attempt) emitFinished(record domain.AttemptRecord, reason domain.FinishReason) {
	a.mu.Lock()
	feed := a.feed
	a.feed = nil
	a.mu.Unlock()

	a.shutdownSensors(feed)

	if a.events.OnFinished != nil {
		a.events.OnFinished(record, reason)
	}

	a.mu.Lock()
	a.phase = domain.PhaseFinished
	a.mu.Unlock()
}

func (a *Attempt) shutdownSensors(feed CameraFeed) {
	a.timer.Stop()
	a.violations.Disarm()
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if feed != nil {
		feed.Release()
	}
}

// scoreCurrentLocked appends the selection to the answer log and credits the
// score by exactly one when it matches. Once scored, a slot is immutable.
func (a *Attempt) scoreCurrentLocked() {
	selection := a.selected
	a.answers = append(a.answers, selection)
	if selection != domain.Unanswered && selection == a.questions[a.index].Answer {
		a.score++
	}
	a.selected = domain.Unanswered
}

func (a *Attempt) buildRecordLocked() *domain.AttemptRecord {
	questions := make([]string, len(a.questions))
	correct := make([]string, len(a.questions))
	for i, q := range a.questions {
		questions[i] = q.Text
		correct[i] = q.Answer
	}
	given := make([]string, len(a.answers))
	copy(given, a.answers)

	return &domain.AttemptRecord{
		Subject:        a.Subject,
		Score:          a.score,
		TotalQuestions: len(a.questions),
		CompletedAt:    a.clock(),
		Questions:      questions,
		UserAnswers:    given,
		CorrectAnswers: correct,
	}
}

func (a *Attempt) phaseError() error {
	switch a.phase {
	case domain.PhasePermissionPending:
		return domain.ErrPermissionPending
	case domain.PhasePermissionDenied:
		return domain.ErrPermissionDenied
	default:
		return domain.ErrNotAnswering
	}
}

// latestFrame adapts the attached feed for the face monitor.
func (a *Attempt) latestFrame(ctx context.Context) (Frame, error) {
	a.mu.Lock()
	feed := a.feed
	a.mu.Unlock()
	if feed == nil {
		return nil, nil
	}
	return feed.Frame(ctx)
}

// Phase returns the current lifecycle phase.
func (a *Attempt) Phase() domain.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// CurrentQuestion returns the question awaiting an answer, if any.
func (a *Attempt) CurrentQuestion() (domain.Question, int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != domain.PhaseAnswering || a.index >= len(a.questions) {
		return domain.Question{}, 0, false
	}
	return a.questions[a.index], a.index, true
}

// Total returns the number of questions in the attempt.
func (a *Attempt) Total() int {
	return len(a.questions)
}

// Score returns the accumulated score so far.
func (a *Attempt) Score() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

// Remaining returns the seconds left on the attempt clock.
func (a *Attempt) Remaining() int {
	return a.timer.Remaining()
}

// Violations returns the running violation count.
func (a *Attempt) Violations() int {
	return a.violations.Count()
}

// FaceReport returns the latest advisory classification.
func (a *Attempt) FaceReport() domain.FaceReport {
	if a.monitor == nil {
		return domain.FaceReport{Status: domain.FacePending}
	}
	return a.monitor.Latest()
}

// Record returns the attempt record once the session has finished producing one.
func (a *Attempt) Record() (domain.AttemptRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.record == nil {
		return domain.AttemptRecord{}, false
	}
	return *a.record, true
}

// Reason returns why the attempt terminated.
func (a *Attempt) Reason() domain.FinishReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}
