package dashboard

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/storage"
)

type dashFixture struct {
	svc    *Service
	db     *storage.DB
	cache  *cache.Memory
	userID string
}

func newDashFixture(t *testing.T) *dashFixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "dash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	u := &domain.User{Email: "d@example.com", PasswordHash: "x"}
	require.NoError(t, db.InsertUser(context.Background(), u))

	mem := cache.NewMemory(0)
	svc := NewService(db, mem, nil)
	svc.now = func() time.Time { return base }
	return &dashFixture{svc: svc, db: db, cache: mem, userID: u.ID}
}

func (f *dashFixture) document(t *testing.T, title string, status domain.ProcessingStatus, updated time.Time, concepts ...string) (*domain.Document, []domain.Concept) {
	t.Helper()
	ctx := context.Background()
	d := &domain.Document{UserID: f.userID, Title: title, FilePath: title, FileType: "application/pdf", Status: status, CreatedAt: updated, UpdatedAt: updated}
	require.NoError(t, f.db.InsertDocument(ctx, d))
	if len(concepts) == 0 {
		return d, nil
	}
	topic := domain.Topic{Name: title}
	for _, c := range concepts {
		topic.Concepts = append(topic.Concepts, domain.Concept{Name: c})
	}
	topics := []domain.Topic{topic}
	require.NoError(t, f.db.ReplaceOutline(ctx, d.ID, topics))
	return d, topics[0].Concepts
}

func TestDashboardSummarisesMaterials(t *testing.T) {
	ctx := context.Background()
	f := newDashFixture(t)

	stuck, _ := f.document(t, "stuck.pdf", domain.StatusProcessing, base.Add(-11*time.Minute))
	busy, _ := f.document(t, "busy.pdf", domain.StatusPending, base.Add(-9*time.Minute))
	done, concepts := f.document(t, "done.pdf", domain.StatusCompleted, base.Add(-time.Hour), "A", "B", "C")

	due := base.Add(-time.Hour)
	require.NoError(t, f.db.SaveMastery(ctx, domain.ConceptMastery{
		UserID: f.userID, ConceptID: concepts[0].ID, Status: domain.MasteryMastered, CorrectCount: 3, NextReviewAt: &due, UpdatedAt: base,
	}))
	require.NoError(t, f.db.InsertQuiz(ctx, &domain.Quiz{UserID: f.userID, DocumentID: done.ID, Title: "Q", GenerationStatus: domain.GenerationCompleted}))

	data, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 3, data.TotalMaterials)
	assert.Equal(t, 3, data.TotalConcepts)
	assert.Equal(t, 1, data.TotalConceptsMastered)
	assert.Equal(t, 33, data.OverallProgress)

	byID := make(map[string]MaterialSummary)
	for _, m := range data.Materials {
		byID[m.ID] = m
	}
	assert.True(t, byID[stuck.ID].IsStuck)
	assert.False(t, byID[busy.ID].IsStuck)
	assert.True(t, byID[done.ID].HasQuiz)
	assert.Equal(t, 33, byID[done.ID].ProgressPercent)
	assert.Equal(t, 1, byID[done.ID].ConceptsDueForReview)

	require.Len(t, data.ReviewsDue, 1)
	assert.Equal(t, "A", data.ReviewsDue[0].ConceptName)

	require.NotNil(t, data.NextStudyItem)
	assert.Equal(t, ReasonNew, data.NextStudyItem.Reason)
	assert.Equal(t, done.ID, data.NextStudyItem.DocumentID)
}

func TestDashboardContinuesInProgressConcept(t *testing.T) {
	ctx := context.Background()
	f := newDashFixture(t)
	d, concepts := f.document(t, "go.pdf", domain.StatusCompleted, base.Add(-time.Hour), "Goroutines", "Channels")
	require.NoError(t, f.db.SaveMastery(ctx, domain.ConceptMastery{
		UserID: f.userID, ConceptID: concepts[1].ID, Status: domain.MasteryInProgress, CorrectCount: 1, UpdatedAt: base,
	}))

	data, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	require.NotNil(t, data.NextStudyItem)
	assert.Equal(t, ReasonContinue, data.NextStudyItem.Reason)
	assert.Equal(t, "Channels", data.NextStudyItem.ConceptName)
	assert.Equal(t, d.ID, data.NextStudyItem.DocumentID)
}

func TestDashboardEmpty(t *testing.T) {
	f := newDashFixture(t)
	data, err := f.svc.Dashboard(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, data.Materials)
	assert.Empty(t, data.ReviewsDue)
	assert.Nil(t, data.NextStudyItem)
	assert.Equal(t, 0, data.OverallProgress)
}

func TestDashboardIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newDashFixture(t)

	first, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.TotalMaterials)

	f.document(t, "new.pdf", domain.StatusPending, base)
	cached, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, cached.TotalMaterials)

	require.NoError(t, f.cache.Invalidate(ctx, cache.UserKeys(f.userID, cache.ResourceDashboard)...))
	fresh, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalMaterials)
}

func TestCachedDashboardFollowsTheClock(t *testing.T) {
	ctx := context.Background()
	f := newDashFixture(t)

	pending, _ := f.document(t, "pending.pdf", domain.StatusPending, base.Add(-5*time.Minute))
	_, concepts := f.document(t, "done.pdf", domain.StatusCompleted, base.Add(-time.Hour), "A", "B")
	reviewAt := base.Add(30 * time.Minute)
	require.NoError(t, f.db.SaveMastery(ctx, domain.ConceptMastery{
		UserID: f.userID, ConceptID: concepts[0].ID, Status: domain.MasteryMastered, CorrectCount: 3, NextReviewAt: &reviewAt, UpdatedAt: base,
	}))

	tests := []struct {
		name      string
		at        time.Time
		stuck     bool
		reviewDue bool
	}{
		{name: "fresh", at: base, stuck: false, reviewDue: false},
		{name: "past the stuck threshold", at: base.Add(6 * time.Minute), stuck: true, reviewDue: false},
		{name: "review due", at: base.Add(time.Hour), stuck: true, reviewDue: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.svc.now = func() time.Time { return tt.at }
			data, err := f.svc.Dashboard(ctx, f.userID)
			require.NoError(t, err)

			for _, m := range data.Materials {
				if m.ID == pending.ID {
					assert.Equal(t, tt.stuck, m.IsStuck)
				}
			}
			if tt.reviewDue {
				require.Len(t, data.ReviewsDue, 1)
				assert.Equal(t, "A", data.ReviewsDue[0].ConceptName)
			} else {
				assert.Empty(t, data.ReviewsDue)
			}
		})
	}
}

func TestDashboardCapsReviews(t *testing.T) {
	ctx := context.Background()
	f := newDashFixture(t)

	names := make([]string, MaxReviews+2)
	for i := range names {
		names[i] = fmt.Sprintf("C%02d", i)
	}
	d, concepts := f.document(t, "many.pdf", domain.StatusCompleted, base.Add(-time.Hour), names...)
	for i, c := range concepts {
		due := base.Add(-time.Duration(len(concepts)-i) * time.Minute)
		require.NoError(t, f.db.SaveMastery(ctx, domain.ConceptMastery{
			UserID: f.userID, ConceptID: c.ID, Status: domain.MasteryMastered, CorrectCount: 3, NextReviewAt: &due, UpdatedAt: base,
		}))
	}

	data, err := f.svc.Dashboard(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, data.ReviewsDue, MaxReviews)
	assert.Equal(t, "C00", data.ReviewsDue[0].ConceptName, "oldest review first")
	require.Len(t, data.Materials, 1)
	assert.Equal(t, d.ID, data.Materials[0].ID)
	assert.Equal(t, MaxReviews+2, data.Materials[0].ConceptsDueForReview)
}
