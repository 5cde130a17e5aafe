package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/realtime"
)

// GetMastery returns the user's record for a concept, or nil when none exists.
func (db *DB) GetMastery(ctx context.Context, userID, conceptID string) (*domain.ConceptMastery, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT user_id, concept_id, status, correct_count, review_count, next_review_at, last_reviewed_at, updated_at
		FROM concept_mastery WHERE user_id = ? AND concept_id = ?
	`, userID, conceptID)
	m, err := scanMastery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find mastery for concept %s: %w", conceptID, err)
	}
	return m, nil
}

// SaveMastery inserts or replaces the record for (user, concept).
func (db *DB) SaveMastery(ctx context.Context, m domain.ConceptMastery) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to save mastery for concept %s: %w", m.ConceptID, err)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO concept_mastery (user_id, concept_id, status, correct_count, review_count, next_review_at, last_reviewed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, concept_id) DO UPDATE SET
			status = excluded.status,
			correct_count = excluded.correct_count,
			review_count = excluded.review_count,
			next_review_at = excluded.next_review_at,
			last_reviewed_at = excluded.last_reviewed_at,
			updated_at = excluded.updated_at
	`,
		m.UserID, m.ConceptID, string(m.Status), m.CorrectCount, m.ReviewCount,
		nullMillis(m.NextReviewAt), nullMillis(m.LastReviewedAt), toMillis(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save mastery for concept %s: %w", m.ConceptID, err)
	}
	db.notify(ctx, realtime.TableConceptMastery, realtime.OpUpdate, map[string]string{
		"user_id":    m.UserID,
		"concept_id": m.ConceptID,
	})
	return nil
}

// MasteryForDocument returns the user's records for the concepts of one
// document, keyed by concept id.
func (db *DB) MasteryForDocument(ctx context.Context, userID, documentID string) (map[string]domain.ConceptMastery, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT m.user_id, m.concept_id, m.status, m.correct_count, m.review_count, m.next_review_at, m.last_reviewed_at, m.updated_at
		FROM concept_mastery m
		JOIN concepts c ON c.id = m.concept_id
		JOIN topics t ON t.id = c.topic_id
		WHERE m.user_id = ? AND t.document_id = ?
	`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mastery for document %s: %w", documentID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.ConceptMastery)
	for rows.Next() {
		m, err := scanMastery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mastery row: %w", err)
		}
		out[m.ConceptID] = *m
	}
	return out, rows.Err()
}

// InProgressConcept is an in-progress concept with display names.
type InProgressConcept struct {
	ConceptID     string
	ConceptName   string
	DocumentID    string
	DocumentTitle string
	UpdatedAt     time.Time
}

// ListInProgress returns the user's in-progress concepts, most recently
// touched first.
func (db *DB) ListInProgress(ctx context.Context, userID string) ([]InProgressConcept, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.name, d.id, d.title, m.updated_at
		FROM concept_mastery m
		JOIN concepts c ON c.id = m.concept_id
		JOIN topics t ON t.id = c.topic_id
		JOIN documents d ON d.id = t.document_id
		WHERE m.user_id = ? AND m.status = ?
		ORDER BY m.updated_at DESC, c.id
	`, userID, string(domain.MasteryInProgress))
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress concepts: %w", err)
	}
	defer rows.Close()

	var out []InProgressConcept
	for rows.Next() {
		var (
			ip      InProgressConcept
			updated int64
		)
		if err := rows.Scan(&ip.ConceptID, &ip.ConceptName, &ip.DocumentID, &ip.DocumentTitle, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan in-progress row: %w", err)
		}
		ip.UpdatedAt = fromMillis(updated)
		out = append(out, ip)
	}
	return out, rows.Err()
}

// ListReviewSchedule returns every mastered concept of the user with its
// next review time, soonest first.
func (db *DB) ListReviewSchedule(ctx context.Context, userID string) ([]domain.ReviewItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.name, d.id, d.title, m.next_review_at, m.review_count
		FROM concept_mastery m
		JOIN concepts c ON c.id = m.concept_id
		JOIN topics t ON t.id = c.topic_id
		JOIN documents d ON d.id = t.document_id
		WHERE m.user_id = ? AND m.status = ? AND m.next_review_at IS NOT NULL
		ORDER BY m.next_review_at ASC, c.id
	`, userID, string(domain.MasteryMastered))
	if err != nil {
		return nil, fmt.Errorf("failed to list review schedule: %w", err)
	}
	defer rows.Close()

	var out []domain.ReviewItem
	for rows.Next() {
		var (
			r   domain.ReviewItem
			due int64
		)
		if err := rows.Scan(&r.ConceptID, &r.ConceptName, &r.DocumentID, &r.DocumentTitle, &due, &r.ReviewCount); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.DueAt = fromMillis(due)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConceptCounts are per-document concept totals for one user.
type ConceptCounts struct {
	Total    int
	Mastered int
}

// CountConcepts returns concept totals per document for the user's
// documents. Documents without concepts are absent.
func (db *DB) CountConcepts(ctx context.Context, userID string) (map[string]ConceptCounts, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT d.id,
			COUNT(c.id),
			COALESCE(SUM(CASE WHEN m.status = 'mastered' THEN 1 ELSE 0 END), 0)
		FROM documents d
		JOIN topics t ON t.document_id = d.id
		JOIN concepts c ON c.topic_id = t.id
		LEFT JOIN concept_mastery m ON m.concept_id = c.id AND m.user_id = d.user_id
		WHERE d.user_id = ?
		GROUP BY d.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count concepts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ConceptCounts)
	for rows.Next() {
		var (
			id string
			c  ConceptCounts
		)
		if err := rows.Scan(&id, &c.Total, &c.Mastered); err != nil {
			return nil, fmt.Errorf("failed to scan concept count row: %w", err)
		}
		out[id] = c
	}
	return out, rows.Err()
}

func scanMastery(row rowScanner) (*domain.ConceptMastery, error) {
	var (
		m          domain.ConceptMastery
		status     string
		next, last sql.NullInt64
		updated    int64
	)
	if err := row.Scan(&m.UserID, &m.ConceptID, &status, &m.CorrectCount, &m.ReviewCount, &next, &last, &updated); err != nil {
		return nil, err
	}
	m.Status = domain.MasteryStatus(status)
	m.NextReviewAt = timeFromNull(next)
	m.LastReviewedAt = timeFromNull(last)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}
