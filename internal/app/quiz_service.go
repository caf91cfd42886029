package app

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// QuestionRepository loads the question bank for a subject
// (from cache/backing store). Subject matching is case-insensitive.
type QuestionRepository interface {
	QuestionsBySubject(ctx context.Context, subject string) ([]domain.Question, error)
}

// QuizService serves randomized question batches for attempts.
type QuizService struct {
	questions    QuestionRepository
	maxQuestions int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizService(questions QuestionRepository, maxQuestions int) *QuizService {
	if maxQuestions <= 0 {
		maxQuestions = 20
	}
	return &QuizService{
		questions:    questions,
		maxQuestions: maxQuestions,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// QuestionsForSubject returns a shuffled batch for the subject, capped at the
// configured maximum. Shuffled twice so repeat attempts see fresh orderings.
func (s *QuizService) QuestionsForSubject(ctx context.Context, subject string) ([]domain.Question, error) {
	questions, err := s.questions.QuestionsBySubject(ctx, strings.ToLower(subject))
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}

	batch := make([]domain.Question, len(questions))
	copy(batch, questions)

	s.mu.Lock()
	s.rnd.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	s.rnd.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	s.mu.Unlock()

	if len(batch) > s.maxQuestions {
		batch = batch[:s.maxQuestions]
	}
	return batch, nil
}
