// Package dashboard assembles the per-user overview: materials, due reviews and
// the next thing to study.
package dashboard

import (
	"context"
	"time"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/storage"
)

// MaxReviews caps the reviews listed on the dashboard.
const MaxReviews = 10

// MaterialSummary is one document as shown on the dashboard.
type MaterialSummary struct {
	ID                   string                  `json:"id"`
	Title                string                  `json:"title"`
	FileType             string                  `json:"fileType"`
	Status               domain.ProcessingStatus `json:"status"`
	CreatedAt            time.Time               `json:"createdAt"`
	UpdatedAt            time.Time               `json:"updatedAt"`
	TotalConcepts        int                     `json:"totalConcepts"`
	MasteredConcepts     int                     `json:"masteredConcepts"`
	ProgressPercent      int                     `json:"progressPercent"`
	ConceptsDueForReview int                     `json:"conceptsDueForReview"`
	HasQuiz              bool                    `json:"hasQuiz"`
	ErrorMessage         string                  `json:"errorMessage,omitempty"`
	IsStuck              bool                    `json:"isStuck"`
}

// Data is everything the dashboard renders.
type Data struct {
	Materials             []MaterialSummary   `json:"materials"`
	ReviewsDue            []domain.ReviewItem `json:"reviewsDue"`
	TotalMaterials        int                 `json:"totalMaterials"`
	TotalConceptsMastered int                 `json:"totalConceptsMastered"`
	TotalConcepts         int                 `json:"totalConcepts"`
	OverallProgress       int                 `json:"overallProgress"`
	NextStudyItem         *NextStudyItem      `json:"nextStudyItem"`
}

// Store is the row access the dashboard reads.
type Store interface {
	ListDocuments(ctx context.Context, userID string) ([]domain.Document, error)
	CountConcepts(ctx context.Context, userID string) (map[string]storage.ConceptCounts, error)
	ListReviewSchedule(ctx context.Context, userID string) ([]domain.ReviewItem, error)
	ListInProgress(ctx context.Context, userID string) ([]storage.InProgressConcept, error)
	ListQuizzes(ctx context.Context, userID string) ([]domain.QuizSummary, error)
}

// Service assembles dashboards.
type Service struct {
	store Store
	cache cache.Cache
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store Store, c cache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, cache: c, log: log.With("service", "DashboardService"), now: time.Now}
}

// snapshot is the user's dashboard rows. It holds nothing that depends on the
// current time, so it stays valid until the user's data changes.
type snapshot struct {
	Documents  []domain.Document                `json:"documents"`
	Counts     map[string]storage.ConceptCounts `json:"counts"`
	Schedule   []domain.ReviewItem              `json:"schedule"`
	InProgress []storage.InProgressConcept      `json:"inProgress"`
	Quizzes    []domain.QuizSummary             `json:"quizzes"`
}

// Dashboard returns the user's dashboard. The rows are cached until the
// user's data changes; stuck documents and due reviews are worked out
// against the current time on every call.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Data, error) {
	snap, err := cache.Fetch(ctx, s.cache, cache.Key{Resource: cache.ResourceDashboard, ScopeID: userID}, func(ctx context.Context) (*snapshot, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	data := assemble(snap, s.now())
	s.log.Debug("Dashboard built", "user_id", userID, "materials", data.TotalMaterials, "reviews", len(data.ReviewsDue))
	return data, nil
}

func (s *Service) load(ctx context.Context, userID string) (*snapshot, error) {
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountConcepts(ctx, userID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.store.ListReviewSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	inProgress, err := s.store.ListInProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.store.ListQuizzes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &snapshot{Documents: docs, Counts: counts, Schedule: schedule, InProgress: inProgress, Quizzes: quizzes}, nil
}

func assemble(snap *snapshot, now time.Time) *Data {
	ready := make(map[string]bool)
	for _, q := range snap.Quizzes {
		if q.DocumentID != "" && q.GenerationStatus == domain.GenerationCompleted {
			ready[q.DocumentID] = true
		}
	}

	// The schedule is sorted by due time, so the due reviews are a prefix.
	dueByDoc := make(map[string]int)
	reviews := []domain.ReviewItem{}
	for _, r := range snap.Schedule {
		if r.DueAt.After(now) {
			break
		}
		dueByDoc[r.DocumentID]++
		if len(reviews) < MaxReviews {
			reviews = append(reviews, r)
		}
	}

	data := &Data{
		Materials:  make([]MaterialSummary, 0, len(snap.Documents)),
		ReviewsDue: reviews,
	}
	for _, d := range snap.Documents {
		c := snap.Counts[d.ID]
		data.Materials = append(data.Materials, MaterialSummary{
			ID:                   d.ID,
			Title:                d.Title,
			FileType:             d.FileType,
			Status:               d.Status,
			CreatedAt:            d.CreatedAt,
			UpdatedAt:            d.UpdatedAt,
			TotalConcepts:        c.Total,
			MasteredConcepts:     c.Mastered,
			ProgressPercent:      quiz.Percentage(c.Mastered, c.Total),
			ConceptsDueForReview: dueByDoc[d.ID],
			HasQuiz:              ready[d.ID],
			ErrorMessage:         d.ErrorMessage,
			IsStuck:              d.IsStuck(now),
		})
		data.TotalConcepts += c.Total
		data.TotalConceptsMastered += c.Mastered
	}
	data.TotalMaterials = len(data.Materials)
	data.OverallProgress = quiz.Percentage(data.TotalConceptsMastered, data.TotalConcepts)

	refs := make([]ConceptRef, 0, len(snap.InProgress))
	for _, ip := range snap.InProgress {
		refs = append(refs, ConceptRef{
			ConceptID:     ip.ConceptID,
			ConceptName:   ip.ConceptName,
			DocumentID:    ip.DocumentID,
			DocumentTitle: ip.DocumentTitle,
		})
	}
	data.NextStudyItem = SelectNext(Candidates{
		InProgress: refs,
		Materials:  data.Materials,
		Reviews:    reviews,
	})
	return data
}
