package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studyloop/internal/domain"
)

var base = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func overdue(conceptID string, ago time.Duration) domain.ReviewItem {
	return domain.ReviewItem{
		ConceptID:     conceptID,
		ConceptName:   "concept " + conceptID,
		DocumentID:    "doc-r",
		DocumentTitle: "Reviewed",
		DueAt:         base.Add(-ago),
	}
}

func TestSelectNextPrefersInProgress(t *testing.T) {
	got := SelectNext(Candidates{
		InProgress: []ConceptRef{{ConceptID: "c1", ConceptName: "Closures", DocumentID: "doc-1", DocumentTitle: "JS"}},
		Materials: []MaterialSummary{
			{ID: "doc-2", Title: "Go", Status: domain.StatusCompleted, TotalConcepts: 4, MasteredConcepts: 1},
		},
		Reviews: []domain.ReviewItem{overdue("c9", time.Hour)},
	})

	require.NotNil(t, got)
	assert.Equal(t, ReasonContinue, got.Reason)
	assert.Equal(t, "c1", got.ConceptID)
	assert.Equal(t, "doc-1", got.DocumentID)
}

func TestSelectNextNewMaterial(t *testing.T) {
	got := SelectNext(Candidates{
		Materials: []MaterialSummary{
			{ID: "doc-0", Status: domain.StatusProcessing, TotalConcepts: 0},
			{ID: "doc-1", Status: domain.StatusCompleted, TotalConcepts: 0},
			{ID: "doc-2", Status: domain.StatusCompleted, TotalConcepts: 3, MasteredConcepts: 3},
			{ID: "doc-3", Title: "First match", Status: domain.StatusCompleted, TotalConcepts: 3, MasteredConcepts: 2},
			{ID: "doc-4", Status: domain.StatusCompleted, TotalConcepts: 5},
		},
		Reviews: []domain.ReviewItem{overdue("c9", time.Hour)},
	})

	require.NotNil(t, got)
	assert.Equal(t, ReasonNew, got.Reason)
	assert.Equal(t, "doc-3", got.DocumentID)
	assert.Empty(t, got.ConceptID)
}

func TestSelectNextReviewWhenAllMastered(t *testing.T) {
	got := SelectNext(Candidates{
		Materials: []MaterialSummary{
			{ID: "doc-1", Status: domain.StatusCompleted, TotalConcepts: 2, MasteredConcepts: 2},
		},
		Reviews: []domain.ReviewItem{overdue("c7", time.Hour)},
	})

	require.NotNil(t, got)
	assert.Equal(t, ReasonReview, got.Reason)
	assert.Equal(t, "c7", got.ConceptID)
}

func TestSelectNextEarliestReview(t *testing.T) {
	got := SelectNext(Candidates{
		Reviews: []domain.ReviewItem{
			overdue("later", time.Hour),
			overdue("earliest", 3*time.Hour),
			overdue("tie", 3*time.Hour),
		},
	})

	require.NotNil(t, got)
	assert.Equal(t, "earliest", got.ConceptID, "ties keep input order")
}

func TestSelectNextNothing(t *testing.T) {
	assert.Nil(t, SelectNext(Candidates{}))
	assert.Nil(t, SelectNext(Candidates{
		Materials: []MaterialSummary{{ID: "d", Status: domain.StatusCompleted, TotalConcepts: 1, MasteredConcepts: 1}},
	}))
}
