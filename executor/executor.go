// Package executor drives one worker invocation per job identifier against
// a job cache. Callers either wait a bounded time for the outcome or poll
// for it later; the worker always runs to completion and its outcome is
// cached either way.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/jobcache"
)

// Worker is the unit of work exposed as a tool. The input is the decoded
// request value; per-invocation metadata travels in ctx (see JobContextFrom).
// Whatever it returns, including a panic, is normalized into an outcome.
type Worker func(ctx context.Context, in any) (any, error)

// ErrPending is returned by Lookup while the worker is still running.
var ErrPending = errors.New("executor: job still pending")

// ErrNotFound is returned by Lookup for unknown or evicted jobs.
var ErrNotFound = jobcache.ErrNotFound

// Executor owns the job cache for one tool route and runs its worker.
type Executor struct {
	name   string
	worker Worker
	cache  *jobcache.Cache
	opts   options
	sem    *semaphore.Weighted
	joblog *logging.Logger
	mode   string
}

// New creates an executor for one tool route.
func New(name string, worker Worker, opt ...Option) *Executor {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	e := &Executor{
		name:   name,
		worker: worker,
		opts:   opts,
		cache: jobcache.New(jobcache.Options{
			Retention:  opts.retention,
			MaxEntries: opts.maxEntries,
			Mirror:     opts.mirror,
		}),
		joblog: logging.Default(),
		mode:   "sync",
	}
	if opts.maxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.maxConcurrent))
	}
	return e
}

// Name returns the tool route name.
func (e *Executor) Name() string { return e.name }

// MaxWait is the bounded wait applied before deferring a caller.
func (e *Executor) MaxWait() time.Duration { return e.opts.maxWait }

// RefreshInterval is the poll interval advertised to deferred callers.
func (e *Executor) RefreshInterval() time.Duration { return e.opts.refreshInterval }

// Handle identifies a submitted job and supports a bounded wait on it.
type Handle struct {
	JobID string
	e     *Executor
}

// Submit registers a cache slot for jobID and starts exactly one worker
// invocation asynchronously. The worker is detached from the caller's
// cancellation: a client that goes away does not stop the job, since a
// later poll may still collect the outcome.
func (e *Executor) Submit(ctx context.Context, in any, jobID string) (*Handle, error) {
	if err := e.cache.Create(jobID); err != nil {
		return nil, fmt.Errorf("register job %s: %w", jobID, err)
	}

	jc := &JobContext{
		JobID:         jobID,
		Authorization: AuthorizationFrom(ctx),
		Context:       e.opts.routeContext,
	}
	runCtx := WithJobContext(context.WithoutCancel(ctx), jc)

	go e.run(runCtx, in, jobID)
	return &Handle{JobID: jobID, e: e}, nil
}

func (e *Executor) run(ctx context.Context, in any, jobID string) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			// Only reachable if the run context is cancelled at shutdown.
			e.cache.Complete(jobID, envelope.Normalize(nil, fmt.Errorf("executor shutting down: %w", err)))
			return
		}
		defer e.sem.Release(1)
	}

	metrics.IncInflight(e.name)
	start := time.Now()

	out := envelope.Run(func() (any, error) {
		return e.worker(ctx, in)
	})

	durMs := time.Since(start).Milliseconds()
	metrics.DecInflight(e.name)

	e.cache.Complete(jobID, out)
	metrics.SetCacheEntries(e.name, e.cache.Len())

	status := "success"
	entry := &logging.JobLog{
		JobID:      jobID,
		Tool:       e.name,
		Mode:       e.mode,
		DurationMs: durMs,
		Success:    !out.IsError(),
		OutputSize: len(out.Body()),
	}
	if out.IsError() {
		status = "error"
		entry.Error = out.Err.Error
		entry.ErrorType = out.Err.Type
	}
	metrics.RecordJob(e.name, status, durMs)
	e.joblog.Log(entry)
}

// Await blocks until the job's outcome is ready or timeout elapses. The
// second return is false on timeout. Timing out never aborts the worker.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) (envelope.Outcome, bool) {
	done, ok := h.e.cache.Wait(h.JobID)
	if !ok {
		// Slot evicted before the wait began; treat as a timeout so the
		// caller falls back to the poll path.
		return envelope.Outcome{}, false
	}

	if timeout <= 0 {
		select {
		case <-done:
		default:
			return envelope.Outcome{}, false
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			return envelope.Outcome{}, false
		case <-ctx.Done():
			return envelope.Outcome{}, false
		}
	}

	out, _, err := h.e.cache.Get(ctx, h.JobID)
	if err != nil {
		return envelope.Outcome{}, false
	}
	return out, true
}

// Lookup returns the outcome for jobID without blocking. It returns
// ErrPending while the worker runs and ErrNotFound for unknown or evicted
// jobs.
func (e *Executor) Lookup(ctx context.Context, jobID string) (envelope.Outcome, error) {
	out, status, err := e.cache.Get(ctx, jobID)
	if err != nil {
		return envelope.Outcome{}, err
	}
	if status == jobcache.StatusPending {
		return envelope.Outcome{}, ErrPending
	}
	return out, nil
}

// Close releases the executor's cache resources. In-flight workers still
// run to completion.
func (e *Executor) Close() {
	e.cache.Close()
}
