// Package processing is the HTTP client for the external document
// processing API.
package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/studyloop/internal/logger"
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultWakeUpTimeout = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 10 * time.Second

	// DefaultQuestionsPerConcept is used when a generate request asks for zero.
	DefaultQuestionsPerConcept = 3
)

// Options configures a Client. Zero values fall back to the defaults above,
// except MaxRetries where zero means a single attempt and a negative value
// selects DefaultMaxRetries.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger

	// Sleep waits between retries. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to the processing API. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	http       *http.Client
	log        *logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a client for the API rooted at opts.BaseURL, e.g.
// http://localhost:8000/api/v1.
func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		http:       opts.HTTPClient,
		log:        opts.Logger,
		sleep:      opts.Sleep,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = DefaultMaxDelay
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c
}

// GenerateQuizRequest asks the pipeline to build a quiz for a document.
type GenerateQuizRequest struct {
	DocumentID          string `json:"document_id"`
	QuestionsPerConcept int    `json:"questions_per_concept"`
	IncludeHints        bool   `json:"include_hints"`
}

// GenerateQuizResponse is the pipeline's acknowledgement.
type GenerateQuizResponse struct {
	QuizID  string `json:"quiz_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GenerateQuiz triggers quiz generation. It makes a single attempt.
func (c *Client) GenerateQuiz(ctx context.Context, req GenerateQuizRequest) (*GenerateQuizResponse, error) {
	if req.QuestionsPerConcept <= 0 {
		req.QuestionsPerConcept = DefaultQuestionsPerConcept
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/quizzes/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger quiz generation: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to trigger quiz generation: %w: status %d: %s", ErrUnavailable, resp.StatusCode, readMessage(resp))
	}

	var out GenerateQuizResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode generate response: %w", err)
	}
	return &out, nil
}

// RootURL is the base URL with the /api/v1 suffix removed.
func (c *Client) RootURL() string {
	return strings.TrimSuffix(c.baseURL, "/api/v1")
}

// WakeUp pings the API root so a cold-started host is ready before the
// first real request. It reports whether the host answered 2xx; failures
// are logged and never returned.
func (c *Client) WakeUp(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultWakeUpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RootURL()+"/", nil)
	if err != nil {
		c.log.Warn("Wake-up ping could not be built", "error", err)
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Wake-up ping failed, processing API may be cold starting", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func readMessage(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(bytes.TrimSpace(b)) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	return strings.TrimSpace(string(b))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
