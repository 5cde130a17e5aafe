package domain

import (
	"errors"
	"time"
)

// MasteryStatus is a user's progress on a concept.
type MasteryStatus string

const (
	MasteryNotStarted MasteryStatus = "not_started"
	MasteryInProgress MasteryStatus = "in_progress"
	MasteryMastered   MasteryStatus = "mastered"
)

// ConceptMastery is the per-user, per-concept mastery record.
type ConceptMastery struct {
	UserID         string        `json:"userId"`
	ConceptID      string        `json:"conceptId"`
	Status         MasteryStatus `json:"status"`
	CorrectCount   int           `json:"correctCount"`
	ReviewCount    int           `json:"reviewCount"`
	NextReviewAt   *time.Time    `json:"nextReviewAt,omitempty"`
	LastReviewedAt *time.Time    `json:"lastReviewedAt,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// ErrMasteredWithoutReview is returned by Validate for a mastered record with no review date.
var ErrMasteredWithoutReview = errors.New("mastered concept has no next review date")

// Validate checks the record's invariants.
func (m ConceptMastery) Validate() error {
	if m.Status == MasteryMastered && m.NextReviewAt == nil {
		return ErrMasteredWithoutReview
	}
	return nil
}

// DueForReview reports whether a mastered concept's review date has elapsed.
func (m ConceptMastery) DueForReview(now time.Time) bool {
	return m.Status == MasteryMastered && m.NextReviewAt != nil && !m.NextReviewAt.After(now)
}

// ReviewItem is a mastered concept whose review is due, joined with display names.
type ReviewItem struct {
	ConceptID     string    `json:"conceptId"`
	ConceptName   string    `json:"conceptName"`
	DocumentID    string    `json:"documentId"`
	DocumentTitle string    `json:"documentTitle"`
	DueAt         time.Time `json:"dueAt"`
	ReviewCount   int       `json:"reviewCount"`
}
