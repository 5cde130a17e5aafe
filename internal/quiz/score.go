package quiz

import (
	"errors"
	"fmt"
	"math"

	"github.com/conorfennell/studyloop/internal/domain"
)

// ErrQuestionNotFound means an answer references a question the quiz does
// not contain. It is a data integrity fault and is never skipped.
var ErrQuestionNotFound = errors.New("referenced question not found")

// ErrDuplicateAnswer means a question is answered more than once in one
// submission.
var ErrDuplicateAnswer = errors.New("question answered more than once")

// QuestionResult is the graded outcome of one answer.
type QuestionResult struct {
	QuestionID          string `json:"questionId"`
	QuestionText        string `json:"questionText"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
	CorrectOptionIndex  int    `json:"correctOptionIndex"`
	IsCorrect           bool   `json:"isCorrect"`
	Explanation         string `json:"explanation"`
	Hint                string `json:"hint,omitempty"`
}

// ScoreResult is the outcome of grading a full answer set.
type ScoreResult struct {
	Score           int              `json:"score"`
	TotalQuestions  int              `json:"totalQuestions"`
	QuestionResults []QuestionResult `json:"questionResults"`
}

// Score grades answers against the quiz's correct option indices. Each
// question may be answered at most once, so the score never exceeds the total.
func Score(q *domain.Quiz, answers []domain.Answer) (ScoreResult, error) {
	byID := make(map[string]domain.Question, len(q.Questions))
	for _, question := range q.Questions {
		byID[question.ID] = question
	}
	seen := make(map[string]struct{}, len(answers))

	result := ScoreResult{
		TotalQuestions:  len(q.Questions),
		QuestionResults: make([]QuestionResult, 0, len(answers)),
	}
	for _, a := range answers {
		question, ok := byID[a.QuestionID]
		if !ok {
			return ScoreResult{}, fmt.Errorf("question %s: %w", a.QuestionID, ErrQuestionNotFound)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return ScoreResult{}, fmt.Errorf("question %s: %w", a.QuestionID, ErrDuplicateAnswer)
		}
		seen[a.QuestionID] = struct{}{}
		correct := question.CorrectIndex()
		isCorrect := a.SelectedOption == correct

		// The selected option's explanation; when correct that is the correct option.
		var explanation string
		if opt, ok := question.Option(a.SelectedOption); ok {
			explanation = opt.Explanation
		}

		if isCorrect {
			result.Score++
		}
		result.QuestionResults = append(result.QuestionResults, QuestionResult{
			QuestionID:          question.ID,
			QuestionText:        question.Text,
			SelectedOptionIndex: a.SelectedOption,
			CorrectOptionIndex:  correct,
			IsCorrect:           isCorrect,
			Explanation:         explanation,
			Hint:                question.Hint,
		})
	}
	return result, nil
}

// Percentage returns round(100*score/total), or 0 for an empty quiz.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}
