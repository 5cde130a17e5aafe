package domain

import "time"

// GenerationStatus is the lifecycle of a quiz being produced by the pipeline.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationGenerating GenerationStatus = "generating"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Difficulty tags a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Quiz is an ordered set of multiple choice questions, optionally tied to a document.
type Quiz struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	DocumentID       string           `json:"documentId,omitempty"`
	UserID           string           `json:"userId,omitempty"`
	GenerationStatus GenerationStatus `json:"generationStatus"`
	Questions        []Question       `json:"questions"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Question is one multiple choice question. Exactly one option is correct.
type Question struct {
	ID         string     `json:"id"`
	QuizID     string     `json:"quizId"`
	Text       string     `json:"question"`
	ConceptID  string     `json:"conceptId,omitempty"`
	Hint       string     `json:"hint,omitempty"`
	Difficulty Difficulty `json:"difficultyLevel"`
	OrderIndex int        `json:"orderIndex"`
	Options    []Option   `json:"options"`
}

// CorrectIndex returns the index of the correct option, or 0 when none is marked.
func (q Question) CorrectIndex() int {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.Index
		}
	}
	return 0
}

// Option returns the option with the given index.
func (q Question) Option(index int) (Option, bool) {
	for _, o := range q.Options {
		if o.Index == index {
			return o, true
		}
	}
	return Option{}, false
}

// Option is one answer choice of a question.
type Option struct {
	ID          string `json:"id"`
	QuestionID  string `json:"-"`
	Text        string `json:"optionText"`
	Index       int    `json:"optionIndex"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// QuizSummary is the list view of a quiz.
type QuizSummary struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	DocumentID       string           `json:"documentId,omitempty"`
	DocumentTitle    string           `json:"documentTitle,omitempty"`
	GenerationStatus GenerationStatus `json:"generationStatus"`
	QuestionCount    int              `json:"questionCount"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Answer is a submitted choice for one question.
type Answer struct {
	QuestionID     string `json:"questionId" validate:"required"`
	SelectedOption int    `json:"selectedOption" validate:"gte=0"`
}

// QuizAttempt is the immutable record of one quiz submission.
type QuizAttempt struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	QuizID         string    `json:"quizId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Answers        []Answer  `json:"answers,omitempty"`
	CompletedAt    time.Time `json:"completedAt"`
}

// QuestionAttempt is the immutable record of one graded answer in a study session.
type QuestionAttempt struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	QuestionID     string    `json:"questionId"`
	ConceptID      string    `json:"conceptId"`
	SessionID      string    `json:"sessionId"`
	SelectedOption int       `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	TimeSpentMs    int64     `json:"timeSpentMs"`
	CreatedAt      time.Time `json:"createdAt"`
}
