package processing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v5"
)

// RejectedError is a 4xx answer from the processing API. It is never retried.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return "Server rejected request: " + e.Message
}

var (
	// ErrTimeout marks an attempt that ran past the per-request timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrUnavailable wraps failures after the retry budget is spent and
	// failed quiz generation requests.
	ErrUnavailable = errors.New("processing API unavailable")
)

// TriggerProcessing asks the pipeline to process a stored document.
//
// 5xx answers, network errors and timeouts are retried up to maxRetries
// times, waiting base*2^attempt capped at maxDelay between attempts. A 4xx
// answer fails immediately with *RejectedError.
func (c *Client) TriggerProcessing(ctx context.Context, documentID string) error {
	endpoint := c.baseURL + "/documents/process/" + url.PathEscape(documentID)
	delays := c.newBackOff()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := c.triggerOnce(ctx, endpoint)
		if err == nil {
			return nil
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("failed to trigger processing for %s: %w", documentID, ctx.Err())
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		delay := delays.NextBackOff()
		c.log.Warn("Processing trigger failed, retrying",
			"document_id", documentID,
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("failed to trigger processing for %s: %w", documentID, err)
		}
	}
	return fmt.Errorf("failed to trigger processing for %s after %d attempts: %w: %w", documentID, c.maxRetries+1, ErrUnavailable, lastErr)
}

func (c *Client) triggerOnce(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &RejectedError{Message: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return &RejectedError{Status: resp.StatusCode, Message: readMessage(resp)}
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readMessage(resp))
	}
}

// newBackOff yields base, 2*base, 4*base ... capped at maxDelay, without jitter.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.MaxInterval = c.maxDelay
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
