// Package session implements the process-local table of active signing
// ceremonies: capacity-bounded, TTL-expiring, swept on a timer. It is the
// single synchronization point the coordinator relies on — per spec.md
// §4.2/§5, the map itself serializes cross-request access while mutation of
// an individual entry is single-threaded once a handler holds it.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Default bounds from spec.md §3/§4.2.
const (
	MaxConcurrentSessions = 1000
	TTL                   = 120 * time.Second
	CleanupInterval       = 10 * time.Second
)

// ErrSaturated is returned by TryInsert when the table is at capacity.
var ErrSaturated = errors.New("too many concurrent signing sessions")

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when a session's TTL has elapsed; the entry is
// removed and wiped as a side effect of the lookup that discovers this.
var ErrExpired = errors.New("session expired")

// Entry is the minimal contract the table needs from session state: a
// creation timestamp for TTL checks and a Wipe hook for secret hygiene on
// every terminal transition (complete, expire, fail, shutdown).
type Entry interface {
	CreatedAt() time.Time
	Wipe()
}

// Table is a capacity-bounded, TTL-expiring map of session id to Entry.
type Table struct {
	mu       sync.Mutex
	entries  map[string]Entry
	maxSize  int
	ttl      time.Duration
	sweep    time.Duration
	active   prometheus.Gauge
	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Table at construction.
type Option func(*Table)

// WithMaxSize overrides MaxConcurrentSessions, mainly for tests.
func WithMaxSize(n int) Option {
	return func(t *Table) { t.maxSize = n }
}

// WithTTL overrides the default TTL, mainly for tests.
func WithTTL(d time.Duration) Option {
	return func(t *Table) { t.ttl = d }
}

// WithSweepInterval overrides CleanupInterval, mainly for tests.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Table) { t.sweep = d }
}

// WithActiveGauge registers a prometheus gauge kept in sync with the table's
// current size, so operators can watch the cap from outside the process.
func WithActiveGauge(g prometheus.Gauge) Option {
	return func(t *Table) { t.active = g }
}

// New constructs an empty Table and starts its background sweep goroutine.
// Call Shutdown to stop the sweep and destroy every remaining entry.
func New(opts ...Option) *Table {
	t := &Table{
		entries: make(map[string]Entry),
		maxSize: MaxConcurrentSessions,
		ttl:     TTL,
		sweep:   CleanupInterval,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.sweepLoop()
	return t
}

// TryInsert allocates a fresh session id and stores state under it, failing
// with ErrSaturated once the table is at capacity (spec.md §3 invariant:
// |sessions| <= MAX_CONCURRENT_SESSIONS).
func (t *Table) TryInsert(state Entry) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.maxSize {
		return "", ErrSaturated
	}

	id := uuid.NewString()
	t.entries[id] = state
	t.setGauge()
	return id, nil
}

// GetOrExpire returns the live entry for id, or ErrNotFound/ErrExpired.
// An expired entry is wiped and removed before returning ErrExpired.
func (t *Table) GetOrExpire(id string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	if time.Since(e.CreatedAt()) > t.ttl {
		delete(t.entries, id)
		t.setGauge()
		e.Wipe()
		return nil, ErrExpired
	}

	return e, nil
}

// Destroy wipes and removes the entry for id. Safe to call on an id that is
// already gone.
func (t *Table) Destroy(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		t.setGauge()
	}
	t.mu.Unlock()

	if ok {
		e.Wipe()
	}
}

// Len reports the current number of live (not necessarily unexpired)
// entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Shutdown stops the sweep loop and destroys every remaining entry,
// matching spec.md §4.2's "on process shutdown all entries are destroyed."
func (t *Table) Shutdown() {
	t.stopOnce.Do(func() { close(t.stop) })

	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]Entry)
	t.setGauge()
	t.mu.Unlock()

	for _, e := range entries {
		e.Wipe()
	}
}

func (t *Table) sweepLoop() {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweepExpired()
		}
	}
}

func (t *Table) sweepExpired() {
	t.mu.Lock()
	var expired []Entry
	for id, e := range t.entries {
		if time.Since(e.CreatedAt()) > t.ttl {
			expired = append(expired, e)
			delete(t.entries, id)
		}
	}
	if len(expired) > 0 {
		t.setGauge()
	}
	t.mu.Unlock()

	for _, e := range expired {
		e.Wipe()
	}
}

// setGauge must be called with t.mu held.
func (t *Table) setGauge() {
	if t.active != nil {
		t.active.Set(float64(len(t.entries)))
	}
}
