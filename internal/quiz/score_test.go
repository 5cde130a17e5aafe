package quiz

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studyloop/internal/domain"
)

func option(index int, correct bool) domain.Option {
	return domain.Option{
		Index:       index,
		Text:        fmt.Sprintf("option %d", index),
		IsCorrect:   correct,
		Explanation: fmt.Sprintf("because %d", index),
	}
}

// quizWithCorrect builds a quiz whose i-th question has correct option correct[i] out of four.
func quizWithCorrect(correct ...int) *domain.Quiz {
	q := &domain.Quiz{ID: "quiz-1"}
	for i, c := range correct {
		question := domain.Question{
			ID:         fmt.Sprintf("q%d", i),
			Text:       fmt.Sprintf("Question %d", i),
			OrderIndex: i,
			Hint:       "think",
		}
		for o := 0; o < 4; o++ {
			question.Options = append(question.Options, option(o, o == c))
		}
		q.Questions = append(q.Questions, question)
	}
	return q
}

func TestScore(t *testing.T) {
	q := quizWithCorrect(1, 0, 3)

	result, err := Score(q, []domain.Answer{
		{QuestionID: "q0", SelectedOption: 1},
		{QuestionID: "q1", SelectedOption: 2},
		{QuestionID: "q2", SelectedOption: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 3, result.TotalQuestions)
	require.Len(t, result.QuestionResults, 3)

	first := result.QuestionResults[0]
	assert.True(t, first.IsCorrect)
	assert.Equal(t, "because 1", first.Explanation)
	assert.Equal(t, "Question 0", first.QuestionText)
	assert.Equal(t, "think", first.Hint)

	second := result.QuestionResults[1]
	assert.False(t, second.IsCorrect)
	assert.Equal(t, 2, second.SelectedOptionIndex)
	assert.Equal(t, 0, second.CorrectOptionIndex)
	assert.Equal(t, "because 2", second.Explanation, "explanation of the selected option")
}

func TestScoreUnknownQuestion(t *testing.T) {
	q := quizWithCorrect(0)

	_, err := Score(q, []domain.Answer{
		{QuestionID: "q0", SelectedOption: 0},
		{QuestionID: "ghost", SelectedOption: 0},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuestionNotFound))
	assert.Contains(t, err.Error(), "ghost")
}

func TestScoreRejectsRepeatedQuestions(t *testing.T) {
	q := quizWithCorrect(1, 2)

	tests := []struct {
		name    string
		answers []domain.Answer
	}{
		{
			name: "same question answered correctly three times",
			answers: []domain.Answer{
				{QuestionID: "q0", SelectedOption: 1},
				{QuestionID: "q0", SelectedOption: 1},
				{QuestionID: "q0", SelectedOption: 1},
			},
		},
		{
			name: "repeat after another question",
			answers: []domain.Answer{
				{QuestionID: "q0", SelectedOption: 0},
				{QuestionID: "q1", SelectedOption: 2},
				{QuestionID: "q0", SelectedOption: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Score(q, tt.answers)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateAnswer)
			assert.Contains(t, err.Error(), "q0")
			assert.Zero(t, result.Score)
		})
	}
}

func TestScoreMatchesCount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		n := 1 + rng.Intn(12)
		correct := make([]int, n)
		for i := range correct {
			correct[i] = rng.Intn(4)
		}
		q := quizWithCorrect(correct...)

		answers := make([]domain.Answer, n)
		want := 0
		for i := range answers {
			sel := rng.Intn(4)
			if sel == correct[i] {
				want++
			}
			answers[i] = domain.Answer{QuestionID: fmt.Sprintf("q%d", i), SelectedOption: sel}
		}

		result, err := Score(q, answers)
		require.NoError(t, err)
		assert.Equal(t, want, result.Score)
	}
}

func TestPercentage(t *testing.T) {
	testCases := []struct {
		score, total, expected int
	}{
		{0, 5, 0},
		{5, 5, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{0, 0, 0},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d of %d", tc.score, tc.total), func(t *testing.T) {
			assert.Equal(t, tc.expected, Percentage(tc.score, tc.total))
		})
	}
}

func TestGradeFor(t *testing.T) {
	testCases := []struct {
		percentage int
		tier       string
	}{
		{100, "outstanding"},
		{90, "outstanding"},
		{89, "great"},
		{70, "great"},
		{69, "good"},
		{50, "good"},
		{49, "practice"},
		{0, "practice"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.tier, GradeFor(tc.percentage).Tier, "percentage %d", tc.percentage)
	}
}
