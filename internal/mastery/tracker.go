// Package mastery implements per-concept mastery transitions and review scheduling.
package mastery

import (
	"time"

	"github.com/conorfennell/studyloop/internal/domain"
)

// CorrectToMaster is the streak of correct answers that masters a concept.
const CorrectToMaster = 3

// Transition describes what one graded answer did to a mastery record.
type Transition struct {
	From         domain.MasteryStatus `json:"from"`
	To           domain.MasteryStatus `json:"to"`
	JustMastered bool                 `json:"justMastered"`
}

// Tracker applies graded answers to mastery records.
//
// An incorrect answer resets the streak to zero. A mastered concept stays
// mastered on an incorrect answer but its review is pulled forward to the
// policy's first interval.
type Tracker struct {
	policy    ReviewPolicy
	threshold int
}

// NewTracker returns a tracker using policy for review dates. A nil policy
// means DefaultPolicy.
func NewTracker(policy ReviewPolicy) *Tracker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Tracker{policy: policy, threshold: CorrectToMaster}
}

// New returns the zero record for a user and concept.
func New(userID, conceptID string) domain.ConceptMastery {
	return domain.ConceptMastery{
		UserID:    userID,
		ConceptID: conceptID,
		Status:    domain.MasteryNotStarted,
	}
}

// Start marks a not started concept as in progress. Other states are returned unchanged.
func (t *Tracker) Start(m domain.ConceptMastery, now time.Time) domain.ConceptMastery {
	if m.Status == "" || m.Status == domain.MasteryNotStarted {
		m.Status = domain.MasteryInProgress
		m.UpdatedAt = now
	}
	return m
}

// Apply records one graded answer.
func (t *Tracker) Apply(m domain.ConceptMastery, correct bool, now time.Time) (domain.ConceptMastery, Transition) {
	tr := Transition{From: m.Status}
	if m.Status == "" {
		tr.From = domain.MasteryNotStarted
	}
	m = t.Start(m, now)
	m.UpdatedAt = now

	switch {
	case m.Status == domain.MasteryMastered && correct:
		m.CorrectCount++
		m.ReviewCount++
		m.LastReviewedAt = timePtr(now)
		m.NextReviewAt = timePtr(now.Add(t.policy.Interval(m.ReviewCount)))
	case m.Status == domain.MasteryMastered:
		m.CorrectCount = 0
		m.LastReviewedAt = timePtr(now)
		m.NextReviewAt = timePtr(now.Add(t.policy.Interval(0)))
	case correct:
		m.CorrectCount++
		if m.CorrectCount >= t.threshold {
			m.Status = domain.MasteryMastered
			m.NextReviewAt = timePtr(now.Add(t.policy.Interval(m.ReviewCount)))
			tr.JustMastered = true
		}
	default:
		m.CorrectCount = 0
	}

	tr.To = m.Status
	return m, tr
}

// Remaining is how many more correct answers a session needs to reach
// mastery, never less than one.
func Remaining(m domain.ConceptMastery) int {
	left := CorrectToMaster - m.CorrectCount
	if left < 1 {
		return 1
	}
	return left
}

func timePtr(t time.Time) *time.Time {
	return &t
}
