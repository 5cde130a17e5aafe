package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/realtime"
)

const documentColumns = `id, user_id, title, file_path, file_type, file_size, content_hash, status, error_message, created_at, updated_at`

// InsertDocument stores a new document row.
func (db *DB) InsertDocument(ctx context.Context, d *domain.Document) error {
	d.ID = newID(d.ID)
	now := db.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	if d.Status == "" {
		d.Status = domain.StatusPending
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.UserID, d.Title, d.FilePath, d.FileType, d.FileSize,
		nullString(d.ContentHash), string(d.Status), nullString(d.ErrorMessage),
		toMillis(d.CreatedAt), toMillis(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", d.Title, err)
	}
	db.notify(ctx, realtime.TableDocuments, realtime.OpInsert, documentEventColumns(d.ID, d.UserID))
	return nil
}

// GetDocument returns the user's document, or nil when it does not exist or
// belongs to someone else.
func (db *DB) GetDocument(ctx context.Context, userID, id string) (*domain.Document, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanDocument(row)
}

// FindDocument looks a document up by id alone. Used by pipeline callbacks.
func (db *DB) FindDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns the user's documents, newest first.
func (db *DB) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for user %s: %w", userID, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document rows: %w", err)
	}
	return docs, nil
}

// UpdateDocumentStatus sets the status and error message and bumps updated_at.
// It returns false when no row has that id.
func (db *DB) UpdateDocumentStatus(ctx context.Context, id string, status domain.ProcessingStatus, errorMessage string) (bool, error) {
	var userID string
	err := db.conn.QueryRowContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?
		RETURNING user_id
	`, string(status), nullString(errorMessage), toMillis(db.now()), id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update status for document %s: %w", id, err)
	}
	db.notify(ctx, realtime.TableDocuments, realtime.OpUpdate, documentEventColumns(id, userID))
	return true, nil
}

// DeleteDocument removes the user's document and, by cascade, its topics,
// concepts and quizzes. It returns false when nothing was deleted.
func (db *DB) DeleteDocument(ctx context.Context, userID, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM documents WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}
	db.notify(ctx, realtime.TableDocuments, realtime.OpDelete, documentEventColumns(id, userID))
	return true, nil
}

// DocumentHashExists reports whether the user already uploaded content with this hash.
func (db *DB) DocumentHashExists(ctx context.Context, userID, hash string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE user_id = ? AND content_hash = ?
	`, userID, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return n > 0, nil
}

// StorageStats sums the size and count of the user's documents.
func (db *DB) StorageStats(ctx context.Context, userID string) (domain.StorageStats, error) {
	var stats domain.StorageStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(file_size), 0), COUNT(*) FROM documents WHERE user_id = ?
	`, userID).Scan(&stats.UsedSpace, &stats.FileCount)
	if err != nil {
		return stats, fmt.Errorf("failed to compute storage stats for user %s: %w", userID, err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		d                domain.Document
		hash, errMsg     sql.NullString
		status           string
		created, updated int64
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.FilePath, &d.FileType, &d.FileSize,
		&hash, &status, &errMsg, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan document row: %w", err)
	}
	d.ContentHash = hash.String
	d.Status = domain.ProcessingStatus(status)
	d.ErrorMessage = errMsg.String
	d.CreatedAt = fromMillis(created)
	d.UpdatedAt = fromMillis(updated)
	return &d, nil
}

func documentEventColumns(id, userID string) map[string]string {
	return map[string]string{"id": id, "user_id": userID}
}
