package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studyhub-quiz-service/internal/domain"
)

// ResultStore persists attempt records and streak state. SaveAttempt runs in
// one transaction with the user row locked, so the attempt insert and streak
// update become visible together and concurrent finishes for the same user
// serialize at the row lock.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	var history []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at, current_streak, longest_streak, last_quiz_date, streak_history
		 FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.JoinedAt,
			&user.Streak.CurrentStreak, &user.Streak.LongestStreak,
			&user.Streak.LastQuizDate, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := unmarshalHistory(history, &user.Streak.History); err != nil {
		return domain.User{}, err
	}

	attempts, err := s.attempts(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.Attempts = attempts
	return user, nil
}

func (s *ResultStore) GetStreak(ctx context.Context, userID string) (domain.StreakState, error) {
	var state domain.StreakState
	var history []byte
	err := s.pool.QueryRow(ctx,
		`SELECT current_streak, longest_streak, last_quiz_date, streak_history FROM users WHERE id = $1`,
		userID).
		Scan(&state.CurrentStreak, &state.LongestStreak, &state.LastQuizDate, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StreakState{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.StreakState{}, fmt.Errorf("load streak: %w", err)
	}
	if err := unmarshalHistory(history, &state.History); err != nil {
		return domain.StreakState{}, err
	}
	return state, nil
}

func (s *ResultStore) SaveAttempt(ctx context.Context, userID string, record domain.AttemptRecord, state domain.StreakState) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save attempt: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user row: %w", err)
	}

	questions, userAnswers, correctAnswers, err := marshalAnswerLogs(record)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO attempts (user_id, subject, score, total_questions, completed_at, questions, user_answers, correct_answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, record.Subject, record.Score, record.TotalQuestions, record.CompletedAt,
		questions, userAnswers, correctAnswers); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	if err := updateStreakTx(ctx, tx, userID, state); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save attempt: %w", err)
	}
	return nil
}

func (s *ResultStore) UpdateStreak(ctx context.Context, userID string, state domain.StreakState) error {
	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("marshal streak history: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET current_streak=$2, longest_streak=$3, last_quiz_date=$4, streak_history=$5 WHERE id=$1`,
		userID, state.CurrentStreak, state.LongestStreak, state.LastQuizDate, history)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *ResultStore) attempts(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject, score, total_questions, completed_at, questions, user_answers, correct_answers
		 FROM attempts WHERE user_id = $1 ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.AttemptRecord
	for rows.Next() {
		var record domain.AttemptRecord
		var completedAt time.Time
		var questions, userAnswers, correctAnswers []byte
		if err := rows.Scan(&record.Subject, &record.Score, &record.TotalQuestions,
			&completedAt, &questions, &userAnswers, &correctAnswers); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CompletedAt = completedAt
		if err := json.Unmarshal(questions, &record.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal attempt questions: %w", err)
		}
		if err := json.Unmarshal(userAnswers, &record.UserAnswers); err != nil {
			return nil, fmt.Errorf("unmarshal attempt answers: %w", err)
		}
		if err := json.Unmarshal(correctAnswers, &record.CorrectAnswers); err != nil {
			return nil, fmt.Errorf("unmarshal attempt correct answers: %w", err)
		}
		attempts = append(attempts, record)
	}
	return attempts, rows.Err()
}

func updateStreakTx(ctx context.Context, tx pgx.Tx, userID string, state domain.StreakState) error {
	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("marshal streak history: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET current_streak=$2, longest_streak=$3, last_quiz_date=$4, streak_history=$5 WHERE id=$1`,
		userID, state.CurrentStreak, state.LongestStreak, state.LastQuizDate, history); err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return nil
}

func marshalAnswerLogs(record domain.AttemptRecord) ([]byte, []byte, []byte, error) {
	questions, err := json.Marshal(record.Questions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal questions: %w", err)
	}
	userAnswers, err := json.Marshal(record.UserAnswers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal user answers: %w", err)
	}
	correctAnswers, err := json.Marshal(record.CorrectAnswers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal correct answers: %w", err)
	}
	return questions, userAnswers, correctAnswers, nil
}

func unmarshalHistory(raw []byte, into *[]domain.StreakHistoryEntry) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("unmarshal streak history: %w", err)
	}
	return nil
}
