package domain

import (
	"testing"
	"time"
)

func TestDocumentIsStuck(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		doc      Document
		expected bool
	}{
		{
			name:     "processing for 11 minutes",
			doc:      Document{Status: StatusProcessing, UpdatedAt: now.Add(-11 * time.Minute)},
			expected: true,
		},
		{
			name:     "processing for 9 minutes",
			doc:      Document{Status: StatusProcessing, UpdatedAt: now.Add(-9 * time.Minute)},
			expected: false,
		},
		{
			name:     "pending for an hour",
			doc:      Document{Status: StatusPending, UpdatedAt: now.Add(-time.Hour)},
			expected: true,
		},
		{
			name:     "completed long ago",
			doc:      Document{Status: StatusCompleted, UpdatedAt: now.Add(-48 * time.Hour)},
			expected: false,
		},
		{
			name:     "failed long ago",
			doc:      Document{Status: StatusFailed, UpdatedAt: now.Add(-48 * time.Hour)},
			expected: false,
		},
		{
			name:     "falls back to created at",
			doc:      Document{Status: StatusPending, CreatedAt: now.Add(-20 * time.Minute)},
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.doc.IsStuck(now); got != tc.expected {
				t.Errorf("Expected IsStuck to be %v, but got %v", tc.expected, got)
			}
		})
	}
}

func TestConceptMasteryValidate(t *testing.T) {
	due := time.Now()

	if err := (ConceptMastery{Status: MasteryMastered}).Validate(); err != ErrMasteredWithoutReview {
		t.Errorf("Expected ErrMasteredWithoutReview, got %v", err)
	}
	if err := (ConceptMastery{Status: MasteryMastered, NextReviewAt: &due}).Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := (ConceptMastery{Status: MasteryInProgress}).Validate(); err != nil {
		t.Errorf("Expected no error for in-progress record, got %v", err)
	}
}

func TestQuestionCorrectIndex(t *testing.T) {
	q := Question{Options: []Option{
		{Index: 0, Text: "a"},
		{Index: 1, Text: "b"},
		{Index: 2, Text: "c", IsCorrect: true},
	}}
	if got := q.CorrectIndex(); got != 2 {
		t.Errorf("Expected correct index 2, got %d", got)
	}
	if _, ok := q.Option(5); ok {
		t.Error("Expected option 5 to be missing")
	}
}
