package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/studyloop/internal/domain"
)

// ReplaceOutline replaces the topics and concepts of a document with the
// given ones, in order. Missing ids are generated and written back.
func (db *DB) ReplaceOutline(ctx context.Context, documentID string, topics []domain.Topic) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("failed to clear outline for document %s: %w", documentID, err)
		}
		for i := range topics {
			t := &topics[i]
			t.ID = newID(t.ID)
			t.DocumentID = documentID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO topics (id, document_id, name, position) VALUES (?, ?, ?, ?)
			`, t.ID, documentID, t.Name, i); err != nil {
				return fmt.Errorf("failed to insert topic %s: %w", t.Name, err)
			}
			for j := range t.Concepts {
				c := &t.Concepts[j]
				c.ID = newID(c.ID)
				c.TopicID = t.ID
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO concepts (id, topic_id, name, explanation, source_text, complexity_level, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, c.ID, t.ID, c.Name, c.Explanation, nullString(c.SourceText), nullString(c.ComplexityLevel), j); err != nil {
					return fmt.Errorf("failed to insert concept %s: %w", c.Name, err)
				}
			}
		}
		return nil
	})
}

// ListTopics returns a document's topics with their concepts, in outline order.
func (db *DB) ListTopics(ctx context.Context, documentID string) ([]domain.Topic, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.id, t.name, c.id, c.name, c.explanation, c.source_text, c.complexity_level
		FROM topics t
		LEFT JOIN concepts c ON c.topic_id = t.id
		WHERE t.document_id = ?
		ORDER BY t.position, t.id, c.position, c.id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var (
			topicID, topicName           string
			conceptID, name, explanation sql.NullString
			sourceText, complexity       sql.NullString
		)
		if err := rows.Scan(&topicID, &topicName, &conceptID, &name, &explanation, &sourceText, &complexity); err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		if len(topics) == 0 || topics[len(topics)-1].ID != topicID {
			topics = append(topics, domain.Topic{ID: topicID, DocumentID: documentID, Name: topicName})
		}
		if conceptID.Valid {
			t := &topics[len(topics)-1]
			t.Concepts = append(t.Concepts, domain.Concept{
				ID:              conceptID.String,
				TopicID:         topicID,
				Name:            name.String,
				Explanation:     explanation.String,
				SourceText:      sourceText.String,
				ComplexityLevel: complexity.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topic rows: %w", err)
	}
	return topics, nil
}

// ConceptRow is a concept joined with the document it was extracted from.
type ConceptRow struct {
	domain.Concept
	DocumentID    string
	DocumentTitle string
}

// GetConcept returns a concept from one of the user's documents, or nil.
func (db *DB) GetConcept(ctx context.Context, userID, conceptID string) (*ConceptRow, error) {
	var (
		c                      ConceptRow
		sourceText, complexity sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT c.id, c.topic_id, c.name, c.explanation, c.source_text, c.complexity_level, d.id, d.title
		FROM concepts c
		JOIN topics t ON t.id = c.topic_id
		JOIN documents d ON d.id = t.document_id
		WHERE c.id = ? AND d.user_id = ?
	`, conceptID, userID).Scan(&c.ID, &c.TopicID, &c.Name, &c.Explanation, &sourceText, &complexity, &c.DocumentID, &c.DocumentTitle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find concept %s: %w", conceptID, err)
	}
	c.SourceText = sourceText.String
	c.ComplexityLevel = complexity.String
	return &c, nil
}
