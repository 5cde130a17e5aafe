package dashboard

import (
	"github.com/conorfennell/studyloop/internal/domain"
)

// Reason explains why an item was picked as the next thing to study.
type Reason string

const (
	ReasonContinue Reason = "continue"
	ReasonNew      Reason = "new"
	ReasonReview   Reason = "review"
)

// NextStudyItem is the single suggestion surfaced on the dashboard.
// ConceptID and ConceptName are empty for ReasonNew.
type NextStudyItem struct {
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	ConceptID     string `json:"conceptId,omitempty"`
	ConceptName   string `json:"conceptName,omitempty"`
	Reason        Reason `json:"reason"`
}

// ConceptRef is an in-progress concept joined with its document.
type ConceptRef struct {
	ConceptID     string
	ConceptName   string
	DocumentID    string
	DocumentTitle string
}

// Candidates is everything the selector looks at, in display order.
type Candidates struct {
	InProgress []ConceptRef
	Materials  []MaterialSummary
	Reviews    []domain.ReviewItem
}

// SelectNext picks the next study item by fixed priority: an in-progress
// concept, then the first completed material with unmastered concepts, then
// the earliest due review. Ties keep input order. Returns nil when there is
// nothing to study.
func SelectNext(c Candidates) *NextStudyItem {
	if len(c.InProgress) > 0 {
		ref := c.InProgress[0]
		return &NextStudyItem{
			DocumentID:    ref.DocumentID,
			DocumentTitle: ref.DocumentTitle,
			ConceptID:     ref.ConceptID,
			ConceptName:   ref.ConceptName,
			Reason:        ReasonContinue,
		}
	}

	for _, m := range c.Materials {
		if m.Status == domain.StatusCompleted && m.TotalConcepts > 0 && m.MasteredConcepts < m.TotalConcepts {
			return &NextStudyItem{
				DocumentID:    m.ID,
				DocumentTitle: m.Title,
				Reason:        ReasonNew,
			}
		}
	}

	if len(c.Reviews) == 0 {
		return nil
	}
	earliest := c.Reviews[0]
	for _, r := range c.Reviews[1:] {
		if r.DueAt.Before(earliest.DueAt) {
			earliest = r
		}
	}
	return &NextStudyItem{
		DocumentID:    earliest.DocumentID,
		DocumentTitle: earliest.DocumentTitle,
		ConceptID:     earliest.ConceptID,
		ConceptName:   earliest.ConceptName,
		Reason:        ReasonReview,
	}
}
