package quiz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewHidesAnswerKey(t *testing.T) {
	q := quizWithCorrect(2, 0)
	v := NewView(q)

	require.Len(t, v.Questions, 2)
	for i, question := range v.Questions {
		t.Run(question.ID, func(t *testing.T) {
			assert.Equal(t, q.Questions[i].Text, question.Text)
			assert.Equal(t, "think", question.Hint)
			require.Len(t, question.Options, 4)
			for j, o := range question.Options {
				assert.Equal(t, j, o.Index)
				assert.Equal(t, q.Questions[i].Options[j].Text, o.Text)
			}
		})
	}

	body, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "isCorrect")
	assert.NotContains(t, string(body), "because")
}
