// Package batch implements the pull/push delivery model: a standalone
// worker process fetches one job at a time from a remote dispatcher,
// executes it, and pushes the outcome back. The loop is strictly
// sequential; a batch worker represents one unit of compute capacity.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/executor"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/tooldef"
)

// DoneSchemaPrefix marks the dispatcher's termination sentinel: a job whose
// $schema starts with it means there is no more work.
const DoneSchemaPrefix = "urn:ivcap:schema.service.batch.done"

const (
	maxFetchAttempts = 4
	maxPushAttempts  = 4
	initialBackoff   = time.Second
)

// ErrDispatcherUnreachable is returned when fetching the next job fails
// past the retry ceiling. This is dispatcher unavailability, not a job
// failure; the process should exit with a distinct status so an operator
// is paged.
var ErrDispatcherUnreachable = errors.New("batch: dispatcher unreachable")

// Config configures a batch loop.
type Config struct {
	// BaseURL is the dispatcher's base URL, normally from IVCAP_BASE_URL.
	// Empty means the loop only logs a warning and does nothing.
	BaseURL string

	// AuthToken, when set, is sent on pushed results and forwarded to
	// workers that make outbound calls.
	AuthToken string

	// RouteContext is handed to every worker invocation, as on the
	// synchronous path.
	RouteContext any

	// Client is the HTTP client for dispatcher calls. Defaults to a
	// client with a 30s timeout.
	Client *http.Client
}

// Loop runs one tool against a remote dispatcher.
type Loop struct {
	tool      *tooldef.Tool
	baseURL   string
	authToken string
	routeCtx  any
	client    *http.Client
	joblog    *logging.Logger

	// sleep is replaced in tests to observe the backoff schedule.
	sleep func(time.Duration)
}

// New creates a batch loop for tool.
func New(tool *tooldef.Tool, cfg Config) *Loop {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loop{
		tool:      tool,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		routeCtx:  cfg.RouteContext,
		client:    client,
		joblog:    logging.Default(),
		sleep:     time.Sleep,
	}
}

// jobEnvelope is the dispatcher's job wire shape.
type jobEnvelope struct {
	ID          string          `json:"id"`
	ContentType string          `json:"in-content-type"`
	Content     json.RawMessage `json:"in-content"`
	Schema      string          `json:"$schema"`

	// authorization comes from the fetch response header, not the body.
	authorization string
}

// Run fetches, executes, and delivers jobs until the dispatcher signals
// completion (nil), the context is cancelled, or the dispatcher becomes
// unreachable (ErrDispatcherUnreachable).
func (l *Loop) Run(ctx context.Context) error {
	if l.baseURL == "" {
		logging.Op().Warn("no dispatcher url configured - batch loop has nothing to do",
			"tool", l.tool.Name)
		return nil
	}

	logging.Op().Info("batch loop started", "tool", l.tool.Name, "dispatcher", l.baseURL)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := l.fetchNext(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(job.Schema, DoneSchemaPrefix) {
			logging.Op().Info("no more jobs - we are done", "tool", l.tool.Name)
			return nil
		}

		out := l.process(ctx, job)
		l.pushResult(ctx, job, out)
	}
}

// fetchNext requests the next job, retrying transient failures with
// exponential backoff up to the attempt ceiling.
func (l *Loop) fetchNext(ctx context.Context) (*jobEnvelope, error) {
	url := l.baseURL + "/next_job"
	wait := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		metrics.RecordFetchAttempt()
		job, err := l.fetchOnce(ctx, url)
		if err == nil {
			return job, nil
		}
		lastErr = err
		if attempt < maxFetchAttempts {
			logging.Op().Info("fetch attempt failed - will retry",
				"attempt", attempt, "wait", wait, "error", err)
			l.sleep(wait)
			wait *= 2
		}
	}
	logging.Op().Error("cannot contact dispatcher - bailing out",
		"attempts", maxFetchAttempts, "error", lastErr)
	return nil, fmt.Errorf("%w: %v", ErrDispatcherUnreachable, lastErr)
}

func (l *Loop) fetchOnce(ctx context.Context, url string) (*jobEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("dispatcher returned %s", resp.Status)
	}

	var job jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job envelope: %w", err)
	}
	job.authorization = resp.Header.Get("Authorization")
	return &job, nil
}

// process decodes and executes one job. Every failure mode ends as an
// outcome for this job, never as a loop failure.
func (l *Loop) process(ctx context.Context, job *jobEnvelope) envelope.Outcome {
	start := time.Now()

	out := l.invoke(ctx, job)

	durMs := time.Since(start).Milliseconds()
	status := "success"
	entry := &logging.JobLog{
		JobID:      job.ID,
		Tool:       l.tool.Name,
		Mode:       "batch",
		DurationMs: durMs,
		Success:    !out.IsError(),
		InputSize:  len(job.Content),
		OutputSize: len(out.Body()),
	}
	if out.IsError() {
		status = "error"
		entry.Error = out.Err.Error
		entry.ErrorType = out.Err.Type
	}
	metrics.RecordBatchJob(status)
	l.joblog.Log(entry)
	return out
}

func (l *Loop) invoke(ctx context.Context, job *jobEnvelope) envelope.Outcome {
	if !strings.HasPrefix(job.ContentType, "application/json") {
		return envelope.Normalize(nil,
			fmt.Errorf("cannot handle content-type '%s'", job.ContentType))
	}
	in, err := l.tool.DecodeInput(job.Content)
	if err != nil {
		return envelope.Normalize(nil, err)
	}

	auth := job.authorization
	if auth == "" {
		auth = l.authToken
	}
	runCtx := executor.WithJobContext(ctx, &executor.JobContext{
		JobID:         job.ID,
		Authorization: auth,
		Context:       l.routeCtx,
	})

	return envelope.Run(func() (any, error) {
		return l.tool.Worker(runCtx, in)
	})
}

// pushResult delivers the outcome with the same retry policy as fetch.
// Exhausting the attempts abandons this result but not the loop.
func (l *Loop) pushResult(ctx context.Context, job *jobEnvelope, out envelope.Outcome) {
	url := fmt.Sprintf("%s/results/%s", l.baseURL, job.ID)
	body := out.Body()

	wait := initialBackoff
	for attempt := 1; attempt <= maxPushAttempts; attempt++ {
		metrics.RecordPushAttempt()
		err := l.pushOnce(ctx, url, job, out, body)
		if err == nil {
			return
		}
		logging.Op().Info("push attempt failed - will retry",
			"job_id", job.ID, "attempt", attempt, "wait", wait, "error", err)
		if attempt < maxPushAttempts {
			l.sleep(wait)
			wait *= 2
		}
	}
	metrics.RecordPushAbandoned()
	logging.Op().Warn("giving up pushing result", "job_id", job.ID, "attempts", maxPushAttempts)
}

func (l *Loop) pushOnce(ctx context.Context, url string, job *jobEnvelope, out envelope.Outcome, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", out.ContentType())
	req.Header.Set("Is-Error", fmt.Sprintf("%t", out.IsError()))
	if auth := job.authorization; auth != "" {
		req.Header.Set("Authorization", auth)
	} else if l.authToken != "" {
		req.Header.Set("Authorization", l.authToken)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatcher returned %s", resp.Status)
	}
	return nil
}
