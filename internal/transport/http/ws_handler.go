package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// writeTimeout bounds each websocket write so a half-open client cannot
// stall the writer goroutine indefinitely.
const writeTimeout = 10 * time.Second

// ProctorSettings carries the per-attempt proctoring knobs from config.
type ProctorSettings struct {
	Budget           time.Duration
	TickInterval     time.Duration
	ViolationLimit   int
	FacePollInterval time.Duration
}

// AttemptWSHandler runs proctored attempt sessions over websockets. One
// connection owns one attempt: question progression, the countdown, violation
// events and camera frames all flow over the same socket.
type AttemptWSHandler struct {
	quiz     *app.QuizService
	results  *app.ResultService
	registry app.AttemptRegistry
	auth     *Auth
	detector app.FaceDetector
	settings ProctorSettings
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewAttemptWSHandler(quiz *app.QuizService, results *app.ResultService, registry app.AttemptRegistry, auth *Auth, detector app.FaceDetector, settings ProctorSettings, log *zap.Logger) *AttemptWSHandler {
	return &AttemptWSHandler{
		quiz:     quiz,
		results:  results,
		registry: registry,
		auth:     auth,
		detector: detector,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type readyPayload struct {
	Subject        string `json:"subject"`
	TotalQuestions int    `json:"totalQuestions"`
	BudgetSeconds  int    `json:"budgetSeconds"`
	ViolationLimit int    `json:"violationLimit"`
}

type cameraPayload struct {
	Granted bool `json:"granted"`
}

type selectPayload struct {
	Option string `json:"option"`
}

type violationPayload struct {
	Kind string `json:"kind"`
}

type questionPayload struct {
	Index            int      `json:"index"`
	Total            int      `json:"total"`
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	SecondsRemaining int      `json:"secondsRemaining"`
}

type tickPayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

type violationWarning struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

type resultPayload struct {
	Subject         string         `json:"subject"`
	Score           int            `json:"score"`
	TotalQuestions  int            `json:"totalQuestions"`
	Reason          string         `json:"reason"`
	TimeUsedSeconds int            `json:"timeUsedSeconds"`
	Saved           bool           `json:"saved"`
	Streak          *streakSummary `json:"streak,omitempty"`
	Message         string         `json:"message,omitempty"`
}

// wsFeed is the camera feed backed by frames the client pushes over the
// socket. Release tells the client to stop its tracks.
type wsFeed struct {
	mu       sync.Mutex
	latest   app.Frame
	released func()
}

func (f *wsFeed) Push(frame app.Frame) {
	f.mu.Lock()
	f.latest = frame
	f.mu.Unlock()
}

func (f *wsFeed) Frame(_ context.Context) (app.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *wsFeed) Release() {
	if f.released != nil {
		f.released()
	}
}

// wsSession serializes outbound writes through a single writer goroutine.
type wsSession struct {
	sendCh       chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
}

func newWSSession() *wsSession {
	return &wsSession{
		sendCh:       make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
}

// send queues a message, giving up once the session or its writer is gone.
// Sensor goroutines must never block on a dead socket: the countdown keeps
// ticking and expiring no matter what the client is doing.
func (s *wsSession) send(msg outboundMessage[any]) {
	select {
	case s.sendCh <- msg:
	case <-s.closeSignals:
	case <-s.writerDone:
	}
}

// trySend drops the message when the writer is behind. Ticks and advisories
// are superseded by the next one, so losing one is harmless.
func (s *wsSession) trySend(msg outboundMessage[any]) {
	select {
	case s.sendCh <- msg:
	default:
	}
}

// ServeWS upgrades the request and runs the attempt session until the
// connection drops or the attempt finishes and the client disconnects.
func (h *AttemptWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	token := r.URL.Query().Get("token")
	if subject == "" || token == "" {
		http.Error(w, "missing subject or token", http.StatusBadRequest)
		return
	}
	userID, err := h.auth.UserIDFromToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	questions, err := h.quiz.QuestionsForSubject(r.Context(), subject)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "no quiz questions found for " + subject}})
		return
	}

	sess := newWSSession()
	feed := &wsFeed{released: func() {
		sess.trySend(outboundMessage[any]{Type: "cameraReleased", Payload: struct{}{}})
	}}

	attempt := h.newAttempt(userID, subject, questions, sess)
	if err := h.registry.Register(userID, attempt); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "an attempt is already in progress"}})
		return
	}
	defer h.registry.Remove(userID, attempt)

	go func() {
		defer close(sess.writerDone)
		for {
			select {
			case msg := <-sess.sendCh:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write error", zap.Error(err))
					return
				}
			case <-sess.closeSignals:
				return
			}
		}
	}()

	sess.send(outboundMessage[any]{Type: "ready", Payload: readyPayload{
		Subject:        subject,
		TotalQuestions: len(questions),
		BudgetSeconds:  attempt.Remaining(),
		ViolationLimit: h.settings.ViolationLimit,
	}})

	h.readLoop(conn, attempt, feed, sess)

	// signal the session down before teardown so the camera-release
	// notification inside Close can never block on a dead writer
	close(sess.closeSignals)
	attempt.Close()
	<-sess.writerDone
}

func (h *AttemptWSHandler) newAttempt(userID, subject string, questions []domain.Question, sess *wsSession) *app.Attempt {
	var attempt *app.Attempt
	events := app.AttemptEvents{
		OnTick: func(remaining int) {
			sess.trySend(outboundMessage[any]{Type: "tick", Payload: tickPayload{SecondsRemaining: remaining}})
		},
		OnFace: func(report domain.FaceReport) {
			sess.trySend(outboundMessage[any]{Type: "face", Payload: report})
		},
		OnViolation: func(count, limit int) {
			sess.send(outboundMessage[any]{Type: "violationWarning", Payload: violationWarning{Count: count, Limit: limit}})
		},
		OnFinished: func(record domain.AttemptRecord, reason domain.FinishReason) {
			// attempt is assigned before GrantPermission can run, and
			// OnFinished only fires after it
			h.finishAttempt(userID, attempt, record, reason, sess)
		},
	}
	attempt = app.NewAttempt(userID, subject, questions, app.AttemptConfig{
		Budget:           h.settings.Budget,
		TickInterval:     h.settings.TickInterval,
		ViolationLimit:   h.settings.ViolationLimit,
		FacePollInterval: h.settings.FacePollInterval,
		Detector:         h.detector,
	}, events)
	return attempt
}

// finishAttempt persists the record and reports the outcome. Persistence
// failures are reported but never hide the score the attempt produced.
func (h *AttemptWSHandler) finishAttempt(userID string, attempt *app.Attempt, record domain.AttemptRecord, reason domain.FinishReason, sess *wsSession) {
	budget := h.settings.Budget
	if budget <= 0 {
		budget = 20 * time.Minute
	}
	timeUsed := int(budget/time.Second) - attempt.Remaining()
	if timeUsed < 0 {
		timeUsed = 0
	}

	payload := resultPayload{
		Subject:         record.Subject,
		Score:           record.Score,
		TotalQuestions:  record.TotalQuestions,
		Reason:          string(reason),
		TimeUsedSeconds: timeUsed,
	}

	// Background context: the record must not be lost because the socket is
	// on its way down.
	state, err := h.results.SaveResult(context.Background(), userID, record)
	if err != nil {
		h.log.Error("save attempt result", zap.String("user", userID), zap.Error(err))
		payload.Message = "failed to save quiz result"
	} else {
		payload.Saved = true
		payload.Streak = &streakSummary{Current: state.CurrentStreak, Longest: state.LongestStreak}
	}

	sess.send(outboundMessage[any]{Type: "result", Payload: payload})
}

func (h *AttemptWSHandler) readLoop(conn *websocket.Conn, attempt *app.Attempt, feed *wsFeed, sess *wsSession) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			attempt.PushFrame(app.Frame(data))
			continue
		}

		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid message"}})
			continue
		}

		switch inbound.Type {
		case "camera":
			var payload cameraPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid camera payload"}})
				continue
			}
			if !payload.Granted {
				attempt.DenyPermission()
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "camera permission is required to take the quiz"}})
				continue
			}
			if err := attempt.GrantPermission(feed); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			h.sendCurrentQuestion(attempt, sess)
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
				continue
			}
			if err := attempt.Select(payload.Option); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "advance":
			if err := attempt.Advance(); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			h.sendCurrentQuestion(attempt, sess)
		case "finish":
			attempt.Finish()
		case "violation":
			var payload violationPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid violation payload"}})
				continue
			}
			attempt.RecordViolation(domain.ViolationKind(payload.Kind))
		default:
			sess.send(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

func (h *AttemptWSHandler) sendCurrentQuestion(attempt *app.Attempt, sess *wsSession) {
	q, index, ok := attempt.CurrentQuestion()
	if !ok {
		return
	}
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	sess.send(outboundMessage[any]{Type: "question", Payload: questionPayload{
		Index:            index,
		Total:            attempt.Total(),
		Question:         q.Text,
		Options:          options,
		SecondsRemaining: attempt.Remaining(),
	}})
}
