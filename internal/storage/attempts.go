package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/studyloop/internal/domain"
)

// InsertQuizAttempt appends a quiz submission.
func (db *DB) InsertQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error {
	a.ID = newID(a.ID)
	if a.CompletedAt.IsZero() {
		a.CompletedAt = db.now()
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO quiz_attempts (id, user_id, quiz_id, score, total_questions, answers, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.QuizID, a.Score, a.TotalQuestions, string(answers), toMillis(a.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attempt for quiz %s: %w", a.QuizID, err)
	}
	return nil
}

// ListQuizAttempts returns the user's attempts at a quiz, newest first.
func (db *DB) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.QuizAttempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, quiz_id, score, total_questions, answers, completed_at
		FROM quiz_attempts WHERE user_id = ? AND quiz_id = ?
		ORDER BY completed_at DESC, id
	`, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for quiz %s: %w", quizID, err)
	}
	defer rows.Close()

	var out []domain.QuizAttempt
	for rows.Next() {
		var (
			a         domain.QuizAttempt
			answers   string
			completed int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.Score, &a.TotalQuestions, &answers, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers of attempt %s: %w", a.ID, err)
		}
		a.CompletedAt = fromMillis(completed)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertQuestionAttempt appends one graded study answer.
func (db *DB) InsertQuestionAttempt(ctx context.Context, a *domain.QuestionAttempt) error {
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO question_attempts (id, user_id, question_id, concept_id, session_id, selected_option, is_correct, time_spent_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.QuestionID, nullString(a.ConceptID), nullString(a.SessionID),
		a.SelectedOption, boolInt(a.IsCorrect), a.TimeSpentMs, toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attempt for question %s: %w", a.QuestionID, err)
	}
	return nil
}

// CountQuestionAttempts returns how many answers the user gave in a session.
func (db *DB) CountQuestionAttempts(ctx context.Context, userID, sessionID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM question_attempts WHERE user_id = ? AND session_id = ?
	`, userID, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts for session %s: %w", sessionID, err)
	}
	return n, nil
}
