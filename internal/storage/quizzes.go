package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/realtime"
)

// InsertQuiz stores a quiz with its questions and options in one transaction.
func (db *DB) InsertQuiz(ctx context.Context, q *domain.Quiz) error {
	q.ID = newID(q.ID)
	now := db.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = q.CreatedAt
	if q.GenerationStatus == "" {
		q.GenerationStatus = domain.GenerationPending
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quizzes (id, user_id, document_id, title, description, generation_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, q.ID, q.UserID, nullString(q.DocumentID), q.Title, q.Description, string(q.GenerationStatus),
			toMillis(q.CreatedAt), toMillis(q.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to insert quiz %s: %w", q.Title, err)
		}
		for i := range q.Questions {
			if err := insertQuestion(ctx, tx, q.ID, &q.Questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.notify(ctx, realtime.TableQuizzes, realtime.OpInsert, quizEventColumns(q.ID, q.UserID, q.DocumentID))
	return nil
}

func insertQuestion(ctx context.Context, tx *sql.Tx, quizID string, qu *domain.Question) error {
	qu.ID = newID(qu.ID)
	qu.QuizID = quizID
	if qu.Difficulty == "" {
		qu.Difficulty = domain.DifficultyMedium
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO questions (id, quiz_id, concept_id, question_text, hint, difficulty_level, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, qu.ID, quizID, nullString(qu.ConceptID), qu.Text, nullString(qu.Hint), string(qu.Difficulty), qu.OrderIndex); err != nil {
		return fmt.Errorf("failed to insert question %d: %w", qu.OrderIndex, err)
	}
	for j := range qu.Options {
		o := &qu.Options[j]
		o.ID = newID(o.ID)
		o.QuestionID = qu.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_options (id, question_id, option_text, option_index, is_correct, explanation)
			VALUES (?, ?, ?, ?, ?, ?)
		`, o.ID, qu.ID, o.Text, o.Index, boolInt(o.IsCorrect), o.Explanation); err != nil {
			return fmt.Errorf("failed to insert option %d of question %s: %w", o.Index, qu.ID, err)
		}
	}
	return nil
}

// UpdateQuizStatus sets a quiz's generation status. It returns false when
// no quiz has that id.
func (db *DB) UpdateQuizStatus(ctx context.Context, id string, status domain.GenerationStatus) (bool, error) {
	var (
		userID string
		docID  sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		UPDATE quizzes SET generation_status = ?, updated_at = ? WHERE id = ?
		RETURNING user_id, document_id
	`, string(status), toMillis(db.now()), id).Scan(&userID, &docID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update status for quiz %s: %w", id, err)
	}
	db.notify(ctx, realtime.TableQuizzes, realtime.OpUpdate, quizEventColumns(id, userID, docID.String))
	return true, nil
}

// GetQuiz returns the user's quiz with questions ordered by order index and
// options by option index, or nil.
func (db *DB) GetQuiz(ctx context.Context, userID, id string) (*domain.Quiz, error) {
	var (
		q                domain.Quiz
		docID            sql.NullString
		status           string
		created, updated int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, document_id, title, description, generation_status, created_at, updated_at
		FROM quizzes WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&q.ID, &q.UserID, &docID, &q.Title, &q.Description, &status, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find quiz %s: %w", id, err)
	}
	q.DocumentID = docID.String
	q.GenerationStatus = domain.GenerationStatus(status)
	q.CreatedAt = fromMillis(created)
	q.UpdatedAt = fromMillis(updated)

	q.Questions, err = db.queryQuestions(ctx, `q.quiz_id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuizzes returns the user's quizzes, newest first, with the source
// document title and question count.
func (db *DB) ListQuizzes(ctx context.Context, userID string) ([]domain.QuizSummary, error) {
	return db.querySummaries(ctx, `z.user_id = ?`, -1, userID)
}

// QuizForDocument returns the newest quiz generated from a document, or nil.
func (db *DB) QuizForDocument(ctx context.Context, userID, documentID string) (*domain.QuizSummary, error) {
	list, err := db.querySummaries(ctx, `z.user_id = ? AND z.document_id = ?`, 1, userID, documentID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (db *DB) querySummaries(ctx context.Context, where string, limit int, args ...any) ([]domain.QuizSummary, error) {
	args = append(args, limit)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT z.id, z.title, z.description, z.document_id, d.title, z.generation_status, z.created_at,
			(SELECT COUNT(*) FROM questions q WHERE q.quiz_id = z.id)
		FROM quizzes z
		LEFT JOIN documents d ON d.id = z.document_id
		WHERE `+where+`
		ORDER BY z.created_at DESC, z.id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizSummary
	for rows.Next() {
		var (
			s              domain.QuizSummary
			docID, docName sql.NullString
			status         string
			created        int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &docID, &docName, &status, &created, &s.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan quiz row: %w", err)
		}
		s.DocumentID = docID.String
		s.DocumentTitle = docName.String
		s.GenerationStatus = domain.GenerationStatus(status)
		s.CreatedAt = fromMillis(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// QuestionsForConcept returns every question linked to a concept across the
// user's quizzes, ordered by quiz creation then order index.
func (db *DB) QuestionsForConcept(ctx context.Context, userID, conceptID string) ([]domain.Question, error) {
	return db.queryQuestions(ctx, `q.concept_id = ? AND z.user_id = ?`, conceptID, userID)
}

// QuestionCounts returns how many of the user's questions cover each concept
// of a document, keyed by concept id. Concepts without questions are absent.
func (db *DB) QuestionCounts(ctx context.Context, userID, documentID string) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT q.concept_id, COUNT(*)
		FROM questions q
		JOIN quizzes z ON z.id = q.quiz_id
		JOIN concepts c ON c.id = q.concept_id
		JOIN topics t ON t.id = c.topic_id
		WHERE z.user_id = ? AND t.document_id = ?
		GROUP BY q.concept_id
	`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions for document %s: %w", documentID, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			conceptID string
			n         int
		)
		if err := rows.Scan(&conceptID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan question count: %w", err)
		}
		out[conceptID] = n
	}
	return out, rows.Err()
}

// GetQuestion returns one of the user's questions with its options, or nil.
func (db *DB) GetQuestion(ctx context.Context, userID, questionID string) (*domain.Question, error) {
	list, err := db.queryQuestions(ctx, `q.id = ? AND z.user_id = ?`, questionID, userID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (db *DB) queryQuestions(ctx context.Context, where string, args ...any) ([]domain.Question, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT q.id, q.quiz_id, q.concept_id, q.question_text, q.hint, q.difficulty_level, q.order_index,
			o.id, o.option_text, o.option_index, o.is_correct, o.explanation
		FROM questions q
		JOIN quizzes z ON z.id = q.quiz_id
		LEFT JOIN question_options o ON o.question_id = q.id
		WHERE `+where+`
		ORDER BY z.created_at, q.order_index, q.id, o.option_index
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	index := make(map[string]int)
	for rows.Next() {
		var (
			qu                          domain.Question
			conceptID, hint             sql.NullString
			difficulty                  string
			optID, optText, explanation sql.NullString
			optIndex, isCorrect         sql.NullInt64
		)
		if err := rows.Scan(&qu.ID, &qu.QuizID, &conceptID, &qu.Text, &hint, &difficulty, &qu.OrderIndex,
			&optID, &optText, &optIndex, &isCorrect, &explanation); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		i, seen := index[qu.ID]
		if !seen {
			qu.ConceptID = conceptID.String
			qu.Hint = hint.String
			qu.Difficulty = domain.Difficulty(difficulty)
			out = append(out, qu)
			i = len(out) - 1
			index[qu.ID] = i
		}
		if optID.Valid {
			out[i].Options = append(out[i].Options, domain.Option{
				ID:          optID.String,
				QuestionID:  qu.ID,
				Text:        optText.String,
				Index:       int(optIndex.Int64),
				IsCorrect:   isCorrect.Int64 == 1,
				Explanation: explanation.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read question rows: %w", err)
	}
	for i := range out {
		sort.SliceStable(out[i].Options, func(a, b int) bool {
			return out[i].Options[a].Index < out[i].Options[b].Index
		})
	}
	return out, nil
}

func quizEventColumns(id, userID, documentID string) map[string]string {
	cols := map[string]string{"id": id, "user_id": userID}
	if documentID != "" {
		cols["document_id"] = documentID
	}
	return cols
}
