package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/resumewright/resumewright/internal/settings"
)

// Client talks to a conversion-engine service over HTTP. The /convert
// endpoint streams newline-delimited JSON progress events and finishes with
// a result or error event; /metadata and /health are plain JSON.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration

	mu     sync.Mutex
	status Status
}

// NewClient creates a Client for the engine service at baseURL. maxRetries
// bounds how many times a transient conversion failure is retried.
func NewClient(baseURL string, maxRetries int) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // conversions are bounded by the caller's context
		},
		maxRetries: maxRetries,
		retryBase:  time.Second,
		retryCap:   30 * time.Second,
	}
}

// Probe health-checks the engine backend and records the outcome. Call once
// at startup; a failed probe leaves the service up (conversions will report
// the engine error) rather than aborting boot.
func (c *Client) Probe(ctx context.Context) {
	start := time.Now()

	var probeErr error
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		probeErr = err
	} else {
		resp, err := c.client.Do(req)
		if err != nil {
			probeErr = err
		} else {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				probeErr = fmt.Errorf("engine health returned status %d", resp.StatusCode)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Status{
		Initialized: probeErr == nil,
		InitTime:    time.Since(start).Milliseconds(),
	}
	if probeErr != nil {
		c.status.Error = probeErr.Error()
	}
}

// Status returns the result of the startup probe.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ExtractMetadata asks the engine for document metadata.
func (c *Client) ExtractMetadata(ctx context.Context, content string) (*Metadata, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("encode metadata request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/metadata", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("engine metadata returned status %d: %s", resp.StatusCode, detail)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	return &meta, nil
}

// transientError marks failures worth retrying: network errors and 5xx
// responses, as opposed to the engine rejecting the document.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Convert runs a conversion, retrying transient failures with exponential
// backoff and invoking onRetry before each retry.
func (c *Client) Convert(ctx context.Context, content string, cfg settings.ConversionConfig,
	onProgress ProgressFunc, onRetry RetryFunc) ([]byte, error) {

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		pdf, err := c.convertOnce(ctx, content, cfg, onProgress)
		if err == nil {
			return pdf, nil
		}
		lastErr = err

		var transient *transientError
		if !errors.As(err, &transient) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("conversion failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) convertOnce(ctx context.Context, content string, cfg settings.ConversionConfig,
	onProgress ProgressFunc) ([]byte, error) {

	body, err := json.Marshal(map[string]any{"content": content, "config": cfg})
	if err != nil {
		return nil, fmt.Errorf("encode convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create convert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{fmt.Errorf("engine request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("engine returned status %d: %s", resp.StatusCode, detail)
		if resp.StatusCode >= 500 {
			return nil, &transientError{err}
		}
		return nil, err
	}

	return readEventStream(ctx, resp.Body, onProgress)
}

// event is one line of the engine's streamed response.
type event struct {
	Type       string `json:"type"` // "progress", "result", "error"
	Stage      string `json:"stage,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
	PDF        string `json:"pdf,omitempty"` // base64, on result
	Message    string `json:"message,omitempty"`
}

// readEventStream consumes the newline-delimited JSON stream, forwarding
// progress events and returning the decoded PDF from the result event.
func readEventStream(ctx context.Context, r io.Reader, onProgress ProgressFunc) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "progress":
			if onProgress != nil {
				onProgress(ev.Stage, ev.Percentage)
			}
		case "result":
			pdf, err := base64.StdEncoding.DecodeString(ev.PDF)
			if err != nil {
				return nil, fmt.Errorf("decode pdf payload: %w", err)
			}
			return pdf, nil
		case "error":
			return nil, errors.New(ev.Message)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{fmt.Errorf("engine stream interrupted: %w", err)}
	}
	return nil, &transientError{errors.New("engine stream ended without a result")}
}

// sleepBackoff waits base*2^(attempt-1) capped at the configured ceiling,
// or until ctx is cancelled.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	d := c.retryBase * (1 << (attempt - 1))
	if d > c.retryCap {
		d = c.retryCap
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
