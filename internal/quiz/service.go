package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/processing"
)

// ErrNotReady is returned when submitting to a quiz that has not finished generating.
var ErrNotReady = errors.New("quiz is not ready")

// Store is the row access the quiz service needs.
type Store interface {
	GetQuiz(ctx context.Context, userID, id string) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, userID string) ([]domain.QuizSummary, error)
	QuizForDocument(ctx context.Context, userID, documentID string) (*domain.QuizSummary, error)
	InsertQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error
	ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.QuizAttempt, error)
	GetDocument(ctx context.Context, userID, id string) (*domain.Document, error)
}

// Generator asks the pipeline for a new quiz.
type Generator interface {
	GenerateQuiz(ctx context.Context, req processing.GenerateQuizRequest) (*processing.GenerateQuizResponse, error)
}

// SubmitResult is a graded, persisted attempt.
type SubmitResult struct {
	ScoreResult
	AttemptID  string    `json:"attemptId"`
	Percentage int       `json:"percentage"`
	Grade      Grade     `json:"grade"`
	SubmitAt   time.Time `json:"completedAt"`
}

// AttemptView is a past attempt with its percentage.
type AttemptView struct {
	domain.QuizAttempt
	Percentage int `json:"percentage"`
}

// Service serves quizzes and records attempts.
type Service struct {
	store     Store
	generator Generator
	cache     cache.Cache
	log       *logger.Logger
	now       func() time.Time
}

// NewService wires the quiz service.
func NewService(store Store, generator Generator, c cache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:     store,
		generator: generator,
		cache:     c,
		log:       log.With("service", "QuizService"),
		now:       time.Now,
	}
}

// ListForUser returns the user's quizzes, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.QuizSummary, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Resource: cache.ResourceQuizzes, ScopeID: userID}, func(ctx context.Context) ([]domain.QuizSummary, error) {
		list, err := s.store.ListQuizzes(ctx, userID)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []domain.QuizSummary{}
		}
		return list, nil
	})
}

// ForDocument returns the newest quiz generated from a document, or nil.
func (s *Service) ForDocument(ctx context.Context, userID, documentID string) (*domain.QuizSummary, error) {
	return s.store.QuizForDocument(ctx, userID, documentID)
}

// Get returns a quiz with ordered questions and options.
func (s *Service) Get(ctx context.Context, userID, quizID string) (*domain.Quiz, error) {
	q, err := s.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("quiz %s: %w", quizID, domain.ErrNotFound)
	}
	return q, nil
}

// Submit grades answers and records the attempt. An answer for a question
// outside the quiz fails with ErrQuestionNotFound, a repeated question with
// ErrDuplicateAnswer, and nothing is stored.
func (s *Service) Submit(ctx context.Context, userID, quizID string, answers []domain.Answer) (*SubmitResult, error) {
	q, err := s.Get(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if q.GenerationStatus != domain.GenerationCompleted {
		return nil, fmt.Errorf("quiz %s is %s: %w", quizID, q.GenerationStatus, ErrNotReady)
	}

	result, err := Score(q, answers)
	if err != nil {
		return nil, err
	}

	attempt := &domain.QuizAttempt{
		UserID:         userID,
		QuizID:         quizID,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		Answers:        answers,
		CompletedAt:    s.now(),
	}
	if err := s.store.InsertQuizAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	pct := Percentage(result.Score, result.TotalQuestions)
	s.log.Info("Quiz submitted", "quiz_id", quizID, "user_id", userID, "score", result.Score, "total", result.TotalQuestions)
	return &SubmitResult{
		ScoreResult: result,
		AttemptID:   attempt.ID,
		Percentage:  pct,
		Grade:       GradeFor(pct),
		SubmitAt:    attempt.CompletedAt,
	}, nil
}

// Attempts returns the user's attempts at a quiz, newest first.
func (s *Service) Attempts(ctx context.Context, userID, quizID string) ([]AttemptView, error) {
	if _, err := s.Get(ctx, userID, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.store.ListQuizAttempts(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	out := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptView{QuizAttempt: a, Percentage: Percentage(a.Score, a.TotalQuestions)})
	}
	return out, nil
}

// TriggerGeneration asks the pipeline to build a quiz from one of the
// user's documents. Zero questionsPerConcept means the default.
func (s *Service) TriggerGeneration(ctx context.Context, userID, documentID string, questionsPerConcept int) (*processing.GenerateQuizResponse, error) {
	doc, err := s.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	resp, err := s.generator.GenerateQuiz(ctx, processing.GenerateQuizRequest{
		DocumentID:          documentID,
		QuestionsPerConcept: questionsPerConcept,
		IncludeHints:        true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, cache.UserKeys(userID, cache.ResourceQuizzes, cache.ResourceDashboard)...); err != nil {
		s.log.Warn("Cache invalidation failed", "user_id", userID, "error", err)
	}
	return resp, nil
}
