package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/studyloop/internal/contenthash"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/objectstore"
)

// File is one upload in a batch.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadStatus is the outcome of one file in a batch.
type UploadStatus struct {
	FileName string           `json:"fileName"`
	Progress int              `json:"progress"`
	Complete bool             `json:"complete"`
	Error    string           `json:"error,omitempty"`
	Document *domain.Document `json:"document,omitempty"`
}

// ProgressFunc receives progress for the file at index. It is called from
// the per-file goroutines.
type ProgressFunc func(index, progress int)

// Validate checks a batch without touching storage.
func Validate(files []File) error {
	if len(files) == 0 {
		return &ValidationError{Message: "No files selected."}
	}
	if len(files) > MaxFiles {
		return &ValidationError{Message: fmt.Sprintf("You can only upload up to %d files at a time.", MaxFiles)}
	}
	var tooLarge, unsupported []string
	for _, f := range files {
		if f.Size > MaxFileSize {
			tooLarge = append(tooLarge, f.Name)
		}
		if !Allowed(f.Name) {
			unsupported = append(unsupported, f.Name)
		}
	}
	if len(tooLarge) > 0 {
		return &ValidationError{Message: fmt.Sprintf("Some files are too large. Maximum size is 10MB. (%s)", strings.Join(tooLarge, ", "))}
	}
	if len(unsupported) > 0 {
		return &ValidationError{Message: fmt.Sprintf("Unsupported file type. Allowed: PDF, Word, PowerPoint, text and images. (%s)", strings.Join(unsupported, ", "))}
	}
	return nil
}

// UploadBatch validates the batch, then uploads every file concurrently.
// Each file succeeds or fails on its own; the returned error is only ever a
// *ValidationError, in which case nothing was uploaded.
func (s *Service) UploadBatch(ctx context.Context, userID string, files []File, onProgress ProgressFunc) ([]UploadStatus, error) {
	if err := Validate(files); err != nil {
		return nil, err
	}

	statuses := make([]UploadStatus, len(files))
	var g errgroup.Group
	for i, f := range files {
		statuses[i].FileName = f.Name
		g.Go(func() error {
			report := func(p int) {
				statuses[i].Progress = p
				if onProgress != nil {
					onProgress(i, p)
				}
			}
			doc, err := s.uploadOne(ctx, userID, f, report)
			if err != nil {
				statuses[i].Error = err.Error()
				s.log.Warn("Upload failed", "file", f.Name, "error", err)
				return nil
			}
			statuses[i].Document = doc
			statuses[i].Complete = true
			return nil
		})
	}
	_ = g.Wait()

	s.invalidate(ctx, userID)
	return statuses, nil
}

func (s *Service) uploadOne(ctx context.Context, userID string, f File, report func(int)) (*domain.Document, error) {
	data, err := io.ReadAll(io.LimitReader(f.Content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%s is larger than 10MB", f.Name)
	}
	report(10)

	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := objectstore.Key(userID, s.now(), f.Name)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
	}
	report(50)

	doc := &domain.Document{
		UserID:      userID,
		Title:       f.Name,
		FilePath:    key,
		FileType:    contentType,
		FileSize:    int64(len(data)),
		ContentHash: contenthash.ForFile(f.Name, data),
		Status:      domain.StatusPending,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		if rmErr := s.objects.Remove(ctx, key); rmErr != nil {
			s.log.Warn("Failed to clean up stored file", "path", key, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save metadata for %s: %w", f.Name, err)
	}
	report(80)

	if err := s.processor.TriggerProcessing(ctx, doc.ID); err != nil {
		doc.Status = domain.StatusFailed
		doc.ErrorMessage = s.markTriggerFailed(ctx, doc.ID, err)
	}
	report(100)
	return doc, nil
}
