package domain

import "time"

// ProcessingStatus is the pipeline state of an uploaded document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// StuckThreshold is how long a document may sit in pending or processing
// before it is considered stuck.
const StuckThreshold = 10 * time.Minute

// Document is a file a user uploaded for processing.
type Document struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Title        string           `json:"title"`
	FilePath     string           `json:"filePath"`
	FileType     string           `json:"fileType"`
	FileSize     int64            `json:"fileSize"`
	ContentHash  string           `json:"contentHash,omitempty"`
	Status       ProcessingStatus `json:"status"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// IsStuck reports whether the document has been pending or processing for
// longer than StuckThreshold as of now.
func (d Document) IsStuck(now time.Time) bool {
	if d.Status != StatusPending && d.Status != StatusProcessing {
		return false
	}
	last := d.UpdatedAt
	if last.IsZero() {
		last = d.CreatedAt
	}
	return now.Sub(last) > StuckThreshold
}

// Topic groups the concepts extracted from one document.
type Topic struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name"`
	Concepts   []Concept `json:"concepts,omitempty"`
}

// Concept is the smallest unit of knowledge tracked for mastery.
type Concept struct {
	ID              string `json:"id"`
	TopicID         string `json:"topicId"`
	Name            string `json:"name"`
	Explanation     string `json:"explanation"`
	SourceText      string `json:"sourceText,omitempty"`
	ComplexityLevel string `json:"complexityLevel,omitempty"`
}

// StorageStats summarises a user's stored files.
type StorageStats struct {
	UsedSpace int64 `json:"usedSpace"`
	FileCount int   `json:"fileCount"`
}
