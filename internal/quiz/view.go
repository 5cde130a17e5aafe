package quiz

import (
	"time"

	"github.com/conorfennell/studyloop/internal/domain"
)

// OptionView is an answer choice as shown to someone taking the quiz.
// Correctness and explanations are only revealed after grading.
type OptionView struct {
	ID    string `json:"id"`
	Text  string `json:"optionText"`
	Index int    `json:"optionIndex"`
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID         string            `json:"id"`
	QuizID     string            `json:"quizId"`
	Text       string            `json:"question"`
	ConceptID  string            `json:"conceptId,omitempty"`
	Hint       string            `json:"hint,omitempty"`
	Difficulty domain.Difficulty `json:"difficultyLevel"`
	OrderIndex int               `json:"orderIndex"`
	Options    []OptionView      `json:"options"`
}

// View is a quiz ready to be taken.
type View struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	Description      string                  `json:"description"`
	DocumentID       string                  `json:"documentId,omitempty"`
	GenerationStatus domain.GenerationStatus `json:"generationStatus"`
	Questions        []QuestionView          `json:"questions"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// NewView strips the answer key from q.
func NewView(q *domain.Quiz) View {
	return View{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		DocumentID:       q.DocumentID,
		GenerationStatus: q.GenerationStatus,
		Questions:        NewQuestionViews(q.Questions),
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

// NewQuestionViews strips the answer key from each question.
func NewQuestionViews(questions []domain.Question) []QuestionView {
	out := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		v := QuestionView{
			ID:         q.ID,
			QuizID:     q.QuizID,
			Text:       q.Text,
			ConceptID:  q.ConceptID,
			Hint:       q.Hint,
			Difficulty: q.Difficulty,
			OrderIndex: q.OrderIndex,
			Options:    make([]OptionView, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			v.Options = append(v.Options, OptionView{ID: o.ID, Text: o.Text, Index: o.Index})
		}
		out = append(out, v)
	}
	return out
}
