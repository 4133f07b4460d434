package executor

import (
	"time"

	"github.com/oriys/pulsar/internal/cache"
)

type options struct {
	maxWait         time.Duration
	refreshInterval time.Duration
	retention       time.Duration
	maxEntries      int
	maxConcurrent   int
	routeContext    any
	mirror          cache.Cache
}

func defaultOptions() options {
	return options{
		maxWait:         5 * time.Second,
		refreshInterval: 3 * time.Second,
		retention:       time.Hour,
	}
}

// Option customizes an Executor.
type Option func(*options)

// WithMaxWait sets how long a submit request waits for the outcome before
// the caller is deferred to the poll path.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithRefreshInterval sets the poll interval advertised in the Retry-Later
// header of deferred responses.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refreshInterval = d }
}

// WithRetention sets how long ready outcomes stay collectable.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// WithMaxEntries caps the number of tracked job slots.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithMaxConcurrent bounds concurrently running workers. Zero means
// unlimited.
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

// WithContext attaches a route-level execution context handed to every
// invocation through JobContextFrom. The executor does not own or inspect
// it; typical uses are a shared client or a progress sink.
func WithContext(v any) Option {
	return func(o *options) { o.routeContext = v }
}

// WithMirror stores ready outcomes in a byte cache backend, letting poll
// requests be served by another replica.
func WithMirror(c cache.Cache) Option {
	return func(o *options) { o.mirror = c }
}
