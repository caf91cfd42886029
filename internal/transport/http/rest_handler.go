package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/streak"
)

// RestHandler serves the question bank and the result/streak/profile endpoints.
type RestHandler struct {
	quiz    *app.QuizService
	results *app.ResultService
	auth    *Auth
	log     *zap.Logger
}

func NewRestHandler(quiz *app.QuizService, results *app.ResultService, auth *Auth, log *zap.Logger) *RestHandler {
	return &RestHandler{quiz: quiz, results: results, auth: auth, log: log}
}

// Register mounts the routes on the mux. The question endpoint is public;
// everything touching per-user state sits behind the bearer middleware.
func (h *RestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /quiz/{subject}", h.handleQuestions)
	mux.Handle("POST /quiz/save-result", h.auth.Middleware(http.HandlerFunc(h.handleSaveResult)))
	mux.Handle("GET /auth/streak", h.auth.Middleware(http.HandlerFunc(h.handleStreak)))
	mux.Handle("GET /auth/profile", h.auth.Middleware(http.HandlerFunc(h.handleProfile)))
}

func (h *RestHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RestHandler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	questions, err := h.quiz.QuestionsForSubject(r.Context(), subject)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"message": fmt.Sprintf("No quiz questions found for %s", subject),
			})
			return
		}
		h.log.Error("load questions", zap.String("subject", subject), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

type saveResultRequest struct {
	Subject        string   `json:"subject"`
	Score          int      `json:"score"`
	TotalQuestions int      `json:"totalQuestions"`
	Questions      []string `json:"questions"`
	UserAnswers    []string `json:"userAnswers"`
	CorrectAnswers []string `json:"correctAnswers"`
}

type streakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

func (h *RestHandler) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	var req saveResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	record := domain.AttemptRecord{
		Subject:        req.Subject,
		Score:          req.Score,
		TotalQuestions: req.TotalQuestions,
		CompletedAt:    time.Now(),
		Questions:      req.Questions,
		UserAnswers:    req.UserAnswers,
		CorrectAnswers: req.CorrectAnswers,
	}

	state, err := h.results.SaveResult(r.Context(), userID, record)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRecord):
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid quiz result"})
		case errors.Is(err, domain.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
		default:
			h.log.Error("save result", zap.String("user", userID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "failed to save quiz result"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Quiz result saved successfully",
		"streak":  streakSummary{Current: state.CurrentStreak, Longest: state.LongestStreak},
	})
}

type streakResponse struct {
	CurrentStreak int                         `json:"currentStreak"`
	LongestStreak int                         `json:"longestStreak"`
	LastQuizDate  *time.Time                  `json:"lastQuizDate"`
	StreakHistory []domain.StreakHistoryEntry `json:"streakHistory"`
}

func (h *RestHandler) handleStreak(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	state, err := h.results.Streak(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
			return
		}
		h.log.Error("load streak", zap.String("user", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, streakResponse{
		CurrentStreak: state.CurrentStreak,
		LongestStreak: state.LongestStreak,
		LastQuizDate:  state.LastQuizDate,
		StreakHistory: streak.SortedHistory(state.History),
	})
}

func (h *RestHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	user, err := h.results.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
			return
		}
		h.log.Error("load profile", zap.String("user", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	user.Streak.History = streak.SortedHistory(user.Streak.History)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
