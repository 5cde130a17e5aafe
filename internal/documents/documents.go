// Package documents manages uploaded study material: batch upload,
// listing, retrying the processing trigger, deletion and storage stats.
package documents

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/objectstore"
)

const (
	MaxFiles    = 5
	MaxFileSize = 10 * 1024 * 1024
)

// AllowedExtensions are the file types the processing pipeline accepts.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".ppt":  true,
	".pptx": true,
	".txt":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Allowed reports whether name has an accepted extension.
func Allowed(name string) bool {
	return AllowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ValidationError rejects a whole batch before anything is uploaded.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Store is the row access the service needs.
type Store interface {
	InsertDocument(ctx context.Context, d *domain.Document) error
	GetDocument(ctx context.Context, userID, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]domain.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status domain.ProcessingStatus, errorMessage string) (bool, error)
	DeleteDocument(ctx context.Context, userID, id string) (bool, error)
	StorageStats(ctx context.Context, userID string) (domain.StorageStats, error)
}

// Processor starts pipeline processing for a stored document.
type Processor interface {
	TriggerProcessing(ctx context.Context, documentID string) error
}

// Service implements document management for one deployment.
type Service struct {
	store     Store
	objects   objectstore.Store
	processor Processor
	cache     cache.Cache
	log       *logger.Logger
	now       func() time.Time
}

// NewService wires the document service.
func NewService(store Store, objects objectstore.Store, processor Processor, c cache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:     store,
		objects:   objects,
		processor: processor,
		cache:     c,
		log:       log.With("service", "DocumentService"),
		now:       time.Now,
	}
}

// WithProcessor returns a copy of the service that triggers processing through p.
func (s *Service) WithProcessor(p Processor) *Service {
	cp := *s
	cp.processor = p
	return &cp
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Document, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Resource: cache.ResourceDocuments, ScopeID: userID}, func(ctx context.Context) ([]domain.Document, error) {
		docs, err := s.store.ListDocuments(ctx, userID)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []domain.Document{}
		}
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		})
		return docs, nil
	})
}

// Get returns one of the user's documents.
func (s *Service) Get(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return doc, nil
}

// RetryProcessing resets a document to pending and triggers processing again.
// If the trigger fails the document is marked failed and the error returned.
func (s *Service) RetryProcessing(ctx context.Context, userID, documentID string) error {
	if _, err := s.Get(ctx, userID, documentID); err != nil {
		return err
	}
	defer s.invalidate(ctx, userID)

	if _, err := s.store.UpdateDocumentStatus(ctx, documentID, domain.StatusPending, ""); err != nil {
		return fmt.Errorf("failed to reset document status: %w", err)
	}
	if err := s.processor.TriggerProcessing(ctx, documentID); err != nil {
		s.markTriggerFailed(ctx, documentID, err)
		return err
	}
	return nil
}

// Delete removes the stored file and the document row. A storage failure is
// logged and does not stop the row deletion.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, doc.FilePath); err != nil {
		s.log.Warn("Failed to delete file from storage", "document_id", documentID, "path", doc.FilePath, "error", err)
	}
	deleted, err := s.store.DeleteDocument(ctx, userID, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	if !deleted {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	s.invalidate(ctx, userID, cache.ResourceQuizzes)
	return nil
}

// Stats returns the user's used bytes and file count.
func (s *Service) Stats(ctx context.Context, userID string) (domain.StorageStats, error) {
	return s.store.StorageStats(ctx, userID)
}

func (s *Service) markTriggerFailed(ctx context.Context, documentID string, cause error) string {
	msg := "Failed to start processing: " + cause.Error()
	if _, err := s.store.UpdateDocumentStatus(ctx, documentID, domain.StatusFailed, msg); err != nil {
		s.log.Error("Failed to mark document failed", "document_id", documentID, "error", err)
	}
	s.log.Warn("Processing trigger failed", "document_id", documentID, "error", cause)
	return msg
}

func (s *Service) invalidate(ctx context.Context, userID string, extra ...string) {
	resources := append([]string{cache.ResourceDocuments, cache.ResourceDashboard}, extra...)
	if err := s.cache.Invalidate(ctx, cache.UserKeys(userID, resources...)...); err != nil {
		s.log.Warn("Cache invalidation failed", "user_id", userID, "error", err)
	}
}
