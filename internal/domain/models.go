package domain

import "time"

// Question models an MCQ question with exactly one correct answer string.
// Questions are immutable once loaded for an attempt.
type Question struct {
	Subject string   `json:"subject"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Unanswered marks a question slot the test-taker never answered.
// Option texts are never empty, so the empty string is safe as a sentinel.
const Unanswered = ""

// AttemptRecord is the durable outcome of one completed attempt.
// The three answer logs always have length TotalQuestions.
type AttemptRecord struct {
	Subject        string    `json:"subject"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
	Questions      []string  `json:"questions"`
	UserAnswers    []string  `json:"userAnswers"`
	CorrectAnswers []string  `json:"correctAnswers"`
}

// Valid reports whether the record satisfies the score and answer-log invariants.
func (r AttemptRecord) Valid() bool {
	if r.TotalQuestions <= 0 || r.Score < 0 || r.Score > r.TotalQuestions {
		return false
	}
	return len(r.Questions) == r.TotalQuestions &&
		len(r.UserAnswers) == r.TotalQuestions &&
		len(r.CorrectAnswers) == r.TotalQuestions
}

// StreakHistoryEntry is one calendar day with at least one completed attempt.
type StreakHistoryEntry struct {
	Date             time.Time `json:"date"`
	StreakCount      int       `json:"streakCount"`
	QuizzesCompleted int       `json:"quizzesCompleted"`
}

// StreakState tracks consecutive-day participation for one user.
// LastQuizDate is nil until the first attempt ever completes.
type StreakState struct {
	CurrentStreak int                  `json:"currentStreak"`
	LongestStreak int                  `json:"longestStreak"`
	LastQuizDate  *time.Time           `json:"lastQuizDate"`
	History       []StreakHistoryEntry `json:"streakHistory"`
}

// User is the profile surface exposed on the read endpoints.
type User struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	JoinedAt time.Time       `json:"joined"`
	Streak   StreakState     `json:"streak"`
	Attempts []AttemptRecord `json:"quizHistory"`
}

// Phase is the lifecycle state of an attempt session.
type Phase int

const (
	PhasePermissionPending Phase = iota
	PhasePermissionDenied
	PhaseAnswering
	PhaseFinishing
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhasePermissionPending:
		return "permission-pending"
	case PhasePermissionDenied:
		return "permission-denied"
	case PhaseAnswering:
		return "answering"
	case PhaseFinishing:
		return "finishing"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhasePermissionDenied || p == PhaseFinished
}

// FinishReason explains why an attempt left the answering phase.
type FinishReason string

const (
	FinishRequested   FinishReason = "requested"
	FinishTimeExpired FinishReason = "time-expired"
	FinishViolations  FinishReason = "violation-limit"
	FinishTeardown    FinishReason = "teardown"
)

// ViolationKind identifies a discrete integrity violation event.
type ViolationKind string

const (
	ViolationTabHidden  ViolationKind = "tab-hidden"
	ViolationWindowBlur ViolationKind = "window-blur"
	ViolationCopy       ViolationKind = "copy"
	ViolationCut        ViolationKind = "cut"
	ViolationPaste      ViolationKind = "paste"
)

// KnownViolation reports whether k is one of the tracked event kinds.
func KnownViolation(k ViolationKind) bool {
	switch k {
	case ViolationTabHidden, ViolationWindowBlur, ViolationCopy, ViolationCut, ViolationPaste:
		return true
	}
	return false
}

// FaceStatus classifies the most recent monitored frame.
type FaceStatus string

const (
	FacePending  FaceStatus = "pending"
	FaceNominal  FaceStatus = "ok"
	FaceNone     FaceStatus = "none"
	FaceMultiple FaceStatus = "multiple"
	FaceError    FaceStatus = "error"
)

// FaceReport is the advisory channel shown to the test-taker.
// It never counts toward the violation threshold.
type FaceReport struct {
	Status   FaceStatus `json:"status"`
	Advisory string     `json:"advisory,omitempty"`
	At       time.Time  `json:"at"`
}
