package processing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, sleeps *recordedSleeps) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:    srv.URL + "/api/v1",
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Sleep:      sleeps.sleep,
	})
}

func TestTriggerProcessingRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	sleeps := &recordedSleeps{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents/process/doc-1", r.URL.Path)
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, sleeps)

	err := client.TriggerProcessing(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps.delays)
}

func TestTriggerProcessingRetriesTimeouts(t *testing.T) {
	tests := []struct {
		name      string
		slowCalls int32
		wantErr   bool
		wantCalls int32
		wantSleep []time.Duration
	}{
		{
			name:      "first attempt times out",
			slowCalls: 1,
			wantCalls: 2,
			wantSleep: []time.Duration{time.Second},
		},
		{
			name:      "every attempt times out",
			slowCalls: 100,
			wantErr:   true,
			wantCalls: 4,
			wantSleep: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			sleeps := &recordedSleeps{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.slowCalls {
					select {
					case <-r.Context().Done():
					case <-time.After(2 * time.Second):
					}
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			t.Cleanup(srv.Close)
			client := New(Options{
				BaseURL:    srv.URL,
				Timeout:    50 * time.Millisecond,
				MaxRetries: 3,
				BaseDelay:  time.Second,
				MaxDelay:   10 * time.Second,
				Sleep:      sleeps.sleep,
			})

			err := client.TriggerProcessing(context.Background(), "doc-1")

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnavailable)
				assert.ErrorIs(t, err, ErrTimeout)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, tt.wantSleep, sleeps.delays)
		})
	}
}

func TestTriggerProcessingRejectsClientErrors(t *testing.T) {
	var calls atomic.Int32
	sleeps := &recordedSleeps{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "document not found", http.StatusNotFound)
	}, sleeps)

	err := client.TriggerProcessing(context.Background(), "missing")

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.Status)
	assert.Equal(t, "Server rejected request: document not found", rejected.Error())
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, sleeps.delays)
}

func TestTriggerProcessingGivesUp(t *testing.T) {
	var calls atomic.Int32
	sleeps := &recordedSleeps{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "still booting", http.StatusBadGateway)
	}, sleeps)

	err := client.TriggerProcessing(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "still booting")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 4, calls.Load())
	assert.Len(t, sleeps.delays, 3)
}

func TestTriggerProcessingDelayCap(t *testing.T) {
	sleeps := &recordedSleeps{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := New(Options{
		BaseURL:    srv.URL,
		MaxRetries: 6,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Sleep:      sleeps.sleep,
	})

	require.Error(t, client.TriggerProcessing(context.Background(), "doc-1"))
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, sleeps.delays)
}

func TestTriggerProcessingStopsWhenSleepIsCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := New(Options{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		Sleep: func(context.Context, time.Duration) error {
			return context.Canceled
		},
	})

	err := client.TriggerProcessing(context.Background(), "doc-1")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateQuiz(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/quizzes/generate", r.URL.Path)
		var req GenerateQuizRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "doc-9", req.DocumentID)
		assert.Equal(t, DefaultQuestionsPerConcept, req.QuestionsPerConcept)
		assert.True(t, req.IncludeHints)
		_ = json.NewEncoder(w).Encode(GenerateQuizResponse{QuizID: "quiz-1", Status: "pending", Message: "queued"})
	}))
	t.Cleanup(srv.Close)

	client := New(Options{BaseURL: srv.URL + "/api/v1"})
	resp, err := client.GenerateQuiz(context.Background(), GenerateQuizRequest{DocumentID: "doc-9", IncludeHints: true})

	require.NoError(t, err)
	assert.Equal(t, "quiz-1", resp.QuizID)
	assert.Equal(t, "pending", resp.Status)
}

func TestGenerateQuizFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Options{BaseURL: srv.URL}).GenerateQuiz(context.Background(), GenerateQuizRequest{DocumentID: "d"})
	require.Error(t, err)
}

func TestWakeUp(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	client := New(Options{BaseURL: srv.URL + "/api/v1"})

	assert.True(t, client.WakeUp(context.Background()))
	assert.Equal(t, "/", path)

	srv.Close()
	assert.False(t, client.WakeUp(context.Background()))
}
