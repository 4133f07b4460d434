// Package jobcache holds the per-route store of job slots. A slot is
// created pending when a job is submitted, transitions to ready exactly once
// when its outcome is stored, and is evicted after a retention window.
// Waiters are woken through a per-slot channel so a bounded wait and the
// worker's completion signal race without double delivery.
package jobcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/logging"
)

var (
	// ErrNotFound is returned for a job that never existed or whose slot
	// has been evicted.
	ErrNotFound = errors.New("jobcache: job not found")

	// ErrDuplicateJob is returned when a slot already exists for the ID.
	// Identifiers are minted unique, so hitting this is a defect.
	ErrDuplicateJob = errors.New("jobcache: duplicate job id")
)

// Status describes the state of a job slot.
type Status int

const (
	StatusPending Status = iota
	StatusReady
)

const (
	defaultRetention  = time.Hour
	defaultMaxEntries = 10000
	sweepInterval     = time.Minute
)

type slot struct {
	createdAt time.Time
	done      chan struct{}
	outcome   *envelope.Outcome // set before done is closed, immutable after
}

// Options configures a Cache.
type Options struct {
	// Retention is how long a slot is kept after creation. Zero means the
	// default of one hour.
	Retention time.Duration

	// MaxEntries caps the number of tracked slots. When the cap is hit,
	// the oldest ready slots are evicted early. Pending slots are never
	// evicted. Zero means the default of 10000.
	MaxEntries int

	// Mirror optionally stores ready outcomes in a byte cache backend so
	// a poll can be served by a replica that did not run the job.
	Mirror cache.Cache
}

// Cache maps job IDs to slots for one route.
type Cache struct {
	mu         sync.RWMutex
	slots      map[string]*slot
	retention  time.Duration
	maxEntries int
	mirror     cache.Cache
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// New creates a job cache and starts its eviction sweep.
func New(opts Options) *Cache {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	c := &Cache{
		slots:      make(map[string]*slot),
		retention:  opts.Retention,
		maxEntries: opts.MaxEntries,
		mirror:     opts.Mirror,
		stopCh:     make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Create inserts a pending slot for id.
func (c *Cache) Create(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[id]; ok {
		return ErrDuplicateJob
	}
	if len(c.slots) >= c.maxEntries {
		c.evictOldestReadyLocked()
	}
	c.slots[id] = &slot{
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	return nil
}

// Complete stores the outcome for id and wakes all waiters. Completing an
// unknown or already-ready slot is a defect in the caller; it is logged and
// otherwise ignored so duplicate completion signals stay harmless.
func (c *Cache) Complete(id string, out envelope.Outcome) {
	c.mu.Lock()
	s, ok := c.slots[id]
	if !ok {
		c.mu.Unlock()
		logging.Op().Error("completion signal for unknown job", "job_id", id)
		return
	}
	if s.outcome != nil {
		c.mu.Unlock()
		logging.Op().Error("duplicate completion signal", "job_id", id)
		return
	}
	s.outcome = &out
	close(s.done)
	c.mu.Unlock()

	if c.mirror != nil {
		data, err := out.Encode()
		if err != nil {
			logging.Op().Error("encode outcome for mirror", "job_id", id, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.mirror.Set(ctx, id, data, c.retention); err != nil {
			logging.Op().Warn("mirror outcome failed", "job_id", id, "error", err)
		}
	}
}

// Get returns the slot state for id without blocking.
func (c *Cache) Get(ctx context.Context, id string) (envelope.Outcome, Status, error) {
	c.mu.RLock()
	s, ok := c.slots[id]
	if ok && s.outcome != nil {
		out := *s.outcome
		c.mu.RUnlock()
		return out, StatusReady, nil
	}
	c.mu.RUnlock()

	if ok {
		return envelope.Outcome{}, StatusPending, nil
	}

	if c.mirror != nil {
		data, err := c.mirror.Get(ctx, id)
		if err == nil {
			out, derr := envelope.Decode(data)
			if derr == nil {
				return out, StatusReady, nil
			}
			logging.Op().Error("corrupt mirrored outcome", "job_id", id, "error", derr)
		} else if !errors.Is(err, cache.ErrNotFound) {
			logging.Op().Warn("mirror lookup failed", "job_id", id, "error", err)
		}
	}
	return envelope.Outcome{}, 0, ErrNotFound
}

// Wait returns the channel closed when the slot for id becomes ready. The
// second return is false if the job is unknown.
func (c *Cache) Wait(id string) (<-chan struct{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[id]
	if !ok {
		return nil, false
	}
	return s.done, true
}

// Len returns the number of tracked slots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Close stops the eviction sweep.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) sweepLoop() {
	interval := sweepInterval
	if c.retention/2 < interval {
		interval = c.retention / 2
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.slots {
		// A worker may legitimately outlive the retention window; its
		// pending slot stays until the outcome lands.
		if s.outcome != nil && now.Sub(s.createdAt) > c.retention {
			delete(c.slots, id)
		}
	}
}

// evictOldestReadyLocked frees room by dropping the oldest ready slots.
func (c *Cache) evictOldestReadyLocked() {
	type aged struct {
		id        string
		createdAt time.Time
	}
	ready := make([]aged, 0, len(c.slots))
	for id, s := range c.slots {
		if s.outcome != nil {
			ready = append(ready, aged{id, s.createdAt})
		}
	}
	if len(ready) == 0 {
		logging.Op().Warn("job cache at capacity with no evictable slots", "entries", len(c.slots))
		return
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].createdAt.Before(ready[j].createdAt) })
	// Free 10% of capacity so inserts do not pay the sort on every call.
	n := c.maxEntries / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(ready); i++ {
		delete(c.slots, ready[i].id)
	}
}
