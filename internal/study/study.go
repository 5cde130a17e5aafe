// Package study serves per-document progress and concept study sessions.
package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/mastery"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/storage"
)

// SessionTTL is how long an idle study session is kept.
const SessionTTL = 2 * time.Hour

var (
	// ErrNoQuestions is returned when a concept has no questions to study yet.
	ErrNoQuestions = errors.New("no questions available for this concept")
	// ErrAlreadyAnswered is returned when a session question is answered twice.
	ErrAlreadyAnswered = errors.New("question already answered in this session")
)

// Store is the row access the study service needs.
type Store interface {
	GetDocument(ctx context.Context, userID, id string) (*domain.Document, error)
	ListTopics(ctx context.Context, documentID string) ([]domain.Topic, error)
	MasteryForDocument(ctx context.Context, userID, documentID string) (map[string]domain.ConceptMastery, error)
	QuestionCounts(ctx context.Context, userID, documentID string) (map[string]int, error)
	GetConcept(ctx context.Context, userID, conceptID string) (*storage.ConceptRow, error)
	QuestionsForConcept(ctx context.Context, userID, conceptID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, userID, questionID string) (*domain.Question, error)
	GetMastery(ctx context.Context, userID, conceptID string) (*domain.ConceptMastery, error)
	SaveMastery(ctx context.Context, m domain.ConceptMastery) error
	InsertQuestionAttempt(ctx context.Context, a *domain.QuestionAttempt) error
}

// Service runs study sessions and reports document progress.
type Service struct {
	store   Store
	tracker *mastery.Tracker
	cache   cache.Cache
	log     *logger.Logger
	now     func() time.Time

	sessions *keyedMutex
	concepts *keyedMutex
}

// NewService wires the study service. A nil tracker uses the default review policy.
func NewService(store Store, tracker *mastery.Tracker, c cache.Cache, log *logger.Logger) *Service {
	if tracker == nil {
		tracker = mastery.NewTracker(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:   store,
		tracker: tracker,
		cache:   c,
		log:     log.With("service", "StudyService"),
		now:     time.Now,

		sessions: newKeyedMutex(),
		concepts: newKeyedMutex(),
	}
}

// ConceptProgress is one concept's standing for the user.
type ConceptProgress struct {
	ConceptID          string               `json:"conceptId"`
	ConceptName        string               `json:"conceptName"`
	ConceptExplanation string               `json:"conceptExplanation"`
	Status             domain.MasteryStatus `json:"status"`
	CorrectCount       int                  `json:"correctCount"`
	NextReviewAt       *time.Time           `json:"nextReviewAt,omitempty"`
	DueForReview       bool                 `json:"dueForReview"`
	QuestionCount      int                  `json:"questionCount"`
}

// TopicProgress groups concept progress under a topic.
type TopicProgress struct {
	TopicID          string            `json:"topicId"`
	TopicName        string            `json:"topicName"`
	Concepts         []ConceptProgress `json:"concepts"`
	TotalConcepts    int               `json:"totalConcepts"`
	MasteredConcepts int               `json:"masteredConcepts"`
	OverallProgress  int               `json:"overallProgress"`
}

// DocumentProgress is a document's outline annotated with the user's mastery.
type DocumentProgress struct {
	DocumentID           string          `json:"documentId"`
	DocumentTitle        string          `json:"documentTitle"`
	Topics               []TopicProgress `json:"topics"`
	TotalConcepts        int             `json:"totalConcepts"`
	MasteredConcepts     int             `json:"masteredConcepts"`
	ConceptsDueForReview int             `json:"conceptsDueForReview"`
	OverallProgress      int             `json:"overallProgress"`
}

// DocumentProgress returns the user's progress through a document's concepts.
func (s *Service) DocumentProgress(ctx context.Context, userID, documentID string) (*DocumentProgress, error) {
	doc, err := s.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	topics, err := s.store.ListTopics(ctx, documentID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.MasteryForDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.QuestionCounts(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &DocumentProgress{
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		Topics:        make([]TopicProgress, 0, len(topics)),
	}
	for _, t := range topics {
		tp := TopicProgress{TopicID: t.ID, TopicName: t.Name, Concepts: make([]ConceptProgress, 0, len(t.Concepts))}
		for _, c := range t.Concepts {
			m, ok := records[c.ID]
			if !ok {
				m = mastery.New(userID, c.ID)
			}
			cp := ConceptProgress{
				ConceptID:          c.ID,
				ConceptName:        c.Name,
				ConceptExplanation: c.Explanation,
				Status:             m.Status,
				CorrectCount:       m.CorrectCount,
				NextReviewAt:       m.NextReviewAt,
				DueForReview:       m.DueForReview(now),
				QuestionCount:      counts[c.ID],
			}
			tp.Concepts = append(tp.Concepts, cp)
			tp.TotalConcepts++
			if cp.Status == domain.MasteryMastered {
				tp.MasteredConcepts++
			}
			if cp.DueForReview {
				out.ConceptsDueForReview++
			}
		}
		tp.OverallProgress = quiz.Percentage(tp.MasteredConcepts, tp.TotalConcepts)
		out.TotalConcepts += tp.TotalConcepts
		out.MasteredConcepts += tp.MasteredConcepts
		out.Topics = append(out.Topics, tp)
	}
	out.OverallProgress = quiz.Percentage(out.MasteredConcepts, out.TotalConcepts)
	return out, nil
}

// NextConcept picks what to study next within a document: the first
// in-progress concept in outline order, then the first not started one, then
// the mastered concept whose review is most overdue. It returns "" when
// nothing needs study.
func (s *Service) NextConcept(ctx context.Context, userID, documentID string) (string, error) {
	progress, err := s.DocumentProgress(ctx, userID, documentID)
	if err != nil {
		return "", err
	}

	var (
		notStarted string
		review     *ConceptProgress
	)
	for _, t := range progress.Topics {
		for i := range t.Concepts {
			c := &t.Concepts[i]
			switch {
			case c.Status == domain.MasteryInProgress:
				return c.ConceptID, nil
			case c.Status == domain.MasteryNotStarted:
				if notStarted == "" {
					notStarted = c.ConceptID
				}
			case c.DueForReview:
				if review == nil || c.NextReviewAt.Before(*review.NextReviewAt) {
					review = c
				}
			}
		}
	}
	if notStarted != "" {
		return notStarted, nil
	}
	if review != nil {
		return review.ConceptID, nil
	}
	return "", nil
}

// Session is an in-flight study session for one concept.
type Session struct {
	ID                 string                `json:"sessionId"`
	UserID             string                `json:"userId"`
	ConceptID          string                `json:"conceptId"`
	ConceptName        string                `json:"conceptName"`
	ConceptExplanation string                `json:"conceptExplanation"`
	DocumentID         string                `json:"documentId"`
	Questions          []quiz.QuestionView   `json:"questions"`
	Mastery            domain.ConceptMastery `json:"mastery"`
	Goal               int                   `json:"goal"`
	CorrectInSession   int                   `json:"correctInSession"`
	Answered           []string              `json:"answered"`
	StartedAt          time.Time             `json:"startedAt"`
}

func (s *Session) hasQuestion(id string) bool {
	for _, q := range s.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) answered(id string) bool {
	for _, a := range s.Answered {
		if a == id {
			return true
		}
	}
	return false
}

// StartSession opens a session over every question linked to the concept.
// A not started concept becomes in progress.
func (s *Service) StartSession(ctx context.Context, userID, conceptID string) (*Session, error) {
	concept, err := s.store.GetConcept(ctx, userID, conceptID)
	if err != nil {
		return nil, err
	}
	if concept == nil {
		return nil, fmt.Errorf("concept %s: %w", conceptID, domain.ErrNotFound)
	}
	questions, err := s.store.QuestionsForConcept(ctx, userID, conceptID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("concept %s: %w", conceptID, ErrNoQuestions)
	}

	m, err := s.currentMastery(ctx, userID, conceptID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if m.Status == domain.MasteryNotStarted {
		m = s.tracker.Start(m, now)
		if err := s.store.SaveMastery(ctx, m); err != nil {
			return nil, err
		}
		s.invalidate(ctx, userID)
	}

	sess := &Session{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ConceptID:          concept.ID,
		ConceptName:        concept.Name,
		ConceptExplanation: concept.Explanation,
		DocumentID:         concept.DocumentID,
		Questions:          quiz.NewQuestionViews(questions),
		Mastery:            m,
		Goal:               mastery.Remaining(m),
		Answered:           []string{},
		StartedAt:          now,
	}
	if err := s.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info("Study session started", "session_id", sess.ID, "user_id", userID, "concept_id", conceptID, "questions", len(questions), "goal", sess.Goal)
	return sess, nil
}

// AttemptInput is one answer given during a session.
type AttemptInput struct {
	QuestionID     string `json:"questionId" validate:"required"`
	SelectedOption int    `json:"selectedOption" validate:"gte=0"`
	TimeSpentMs    int64  `json:"timeSpentMs" validate:"gte=0"`
}

// AttemptOutcome is the graded answer and its effect on mastery.
type AttemptOutcome struct {
	IsCorrect        bool                  `json:"isCorrect"`
	CorrectIndex     int                   `json:"correctIndex"`
	Explanation      string                `json:"explanation"`
	Mastery          domain.ConceptMastery `json:"mastery"`
	Transition       mastery.Transition    `json:"transition"`
	CorrectInSession int                   `json:"correctInSession"`
	Goal             int                   `json:"goal"`
	SessionComplete  bool                  `json:"sessionComplete"`
}

// RecordAttempt grades an answer against the stored question, appends the
// attempt and updates the concept's mastery. The session completes when the
// concept is mastered, every question has been answered, or the session
// goal is reached. Answers to one session are applied one at a time, and so
// are mastery updates to one concept.
func (s *Service) RecordAttempt(ctx context.Context, userID, sessionID string, in AttemptInput) (*AttemptOutcome, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.hasQuestion(in.QuestionID) {
		return nil, fmt.Errorf("question %s in session %s: %w", in.QuestionID, sessionID, quiz.ErrQuestionNotFound)
	}
	if sess.answered(in.QuestionID) {
		return nil, fmt.Errorf("question %s: %w", in.QuestionID, ErrAlreadyAnswered)
	}
	q, err := s.store.GetQuestion(ctx, userID, in.QuestionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("question %s: %w", in.QuestionID, quiz.ErrQuestionNotFound)
	}

	now := s.now()
	correctIndex := q.CorrectIndex()
	isCorrect := in.SelectedOption == correctIndex
	attempt := &domain.QuestionAttempt{
		UserID:         userID,
		QuestionID:     q.ID,
		ConceptID:      sess.ConceptID,
		SessionID:      sess.ID,
		SelectedOption: in.SelectedOption,
		IsCorrect:      isCorrect,
		TimeSpentMs:    in.TimeSpentMs,
		CreatedAt:      now,
	}
	if err := s.store.InsertQuestionAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	m, tr, err := s.applyAnswer(ctx, userID, sess.ConceptID, isCorrect, now)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)

	sess.Answered = append(sess.Answered, q.ID)
	sess.Mastery = m
	if isCorrect {
		sess.CorrectInSession++
	}
	complete := m.Status == domain.MasteryMastered ||
		len(sess.Answered) >= len(sess.Questions) ||
		sess.CorrectInSession >= sess.Goal

	if complete {
		if err := s.cache.Invalidate(ctx, sessionKey(sess.ID)); err != nil {
			s.log.Warn("Failed to drop finished session", "session_id", sess.ID, "error", err)
		}
		s.log.Info("Study session complete", "session_id", sess.ID, "user_id", userID, "concept_id", sess.ConceptID, "status", m.Status)
	} else if err := s.saveSession(ctx, sess); err != nil {
		return nil, err
	}

	return &AttemptOutcome{
		IsCorrect:        isCorrect,
		CorrectIndex:     correctIndex,
		Explanation:      explanationFor(q, in.SelectedOption, correctIndex),
		Mastery:          m,
		Transition:       tr,
		CorrectInSession: sess.CorrectInSession,
		Goal:             sess.Goal,
		SessionComplete:  complete,
	}, nil
}

// EndSession discards a session the user walked away from. Recorded attempts
// and mastery are kept.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, sessionKey(sess.ID)); err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	s.log.Info("Study session ended", "session_id", sess.ID, "user_id", userID, "answered", len(sess.Answered))
	return nil
}

// applyAnswer moves the concept's mastery by one answer.
func (s *Service) applyAnswer(ctx context.Context, userID, conceptID string, correct bool, now time.Time) (domain.ConceptMastery, mastery.Transition, error) {
	unlock := s.concepts.Lock(userID + "/" + conceptID)
	defer unlock()

	m, err := s.currentMastery(ctx, userID, conceptID)
	if err != nil {
		return domain.ConceptMastery{}, mastery.Transition{}, err
	}
	m, tr := s.tracker.Apply(m, correct, now)
	if err := s.store.SaveMastery(ctx, m); err != nil {
		return domain.ConceptMastery{}, mastery.Transition{}, err
	}
	return m, tr, nil
}

func (s *Service) currentMastery(ctx context.Context, userID, conceptID string) (domain.ConceptMastery, error) {
	m, err := s.store.GetMastery(ctx, userID, conceptID)
	if err != nil {
		return domain.ConceptMastery{}, err
	}
	if m == nil {
		return mastery.New(userID, conceptID), nil
	}
	return *m, nil
}

func (s *Service) saveSession(ctx context.Context, sess *Session) error {
	if err := cache.Store(ctx, s.cache, sessionKey(sess.ID), sess, SessionTTL); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Service) loadSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	sess, ok, err := cache.Load[Session](ctx, s.cache, sessionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if !ok || sess.UserID != userID {
		return nil, fmt.Errorf("study session %s: %w", sessionID, domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, cache.UserKeys(userID, cache.ResourceDashboard)...); err != nil {
		s.log.Warn("Cache invalidation failed", "user_id", userID, "error", err)
	}
}

func sessionKey(id string) cache.Key {
	return cache.Key{Resource: cache.ResourceStudySession, ScopeID: id}
}

// explanationFor returns the explanation of the chosen option, falling back
// to the correct option's.
func explanationFor(q *domain.Question, selected, correct int) string {
	if o, ok := q.Option(selected); ok && o.Explanation != "" {
		return o.Explanation
	}
	if o, ok := q.Option(correct); ok {
		return o.Explanation
	}
	return ""
}
