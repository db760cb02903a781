// Package querycache keeps the last fetched snapshot per query key and
// refetches it after every successful mutation.
//
// A snapshot is never patched locally: after a mutation succeeds the key
// is invalidated and refetched, so readers only ever observe state the
// server returned. Each fetch gets a per-key sequence number and a
// response is applied only when it is newer than the last applied one,
// so a slow, older fetch can never overwrite a newer snapshot.
package querycache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is reported by reads on a closed cache.
var ErrClosed = errors.New("querycache: cache closed")

// QueryFunc loads the full snapshot for a key.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Status is the state of a key as seen by a reader.
type Status int

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is what Read reports for a key.
type Result[T any] struct {
	Status Status
	// Data is the last applied snapshot. It is only meaningful when
	// HasData is true; while loading it may be stale.
	Data    T
	HasData bool
	Err     error
	// Fetching is true while any fetch for the key is outstanding.
	Fetching  bool
	UpdatedAt time.Time
}

type entry[T any] struct {
	fetch QueryFunc[T]

	data      T
	hasData   bool
	err       error
	updatedAt time.Time

	// issued is the sequence of the newest fetch started, applied the
	// newest one whose response was stored. required is the sequence a
	// response must reach for the entry to count as fresh again; it is
	// raised by Invalidate.
	issued   uint64
	applied  uint64
	required uint64
	done     chan struct{}

	stats *monitor
}

func (e *entry[T]) fetching() bool {
	return e.issued > e.applied
}

func (e *entry[T]) fresh() bool {
	return e.applied >= e.required
}

// Option configures a Cache.
type Option func(*settings)

type settings struct {
	log    *slog.Logger
	window int
	now    func() time.Time
}

// WithLogger sets the logger used for fetch tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStatsWindow sets how many recent fetches the latency average covers.
func WithStatsWindow(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithClock overrides the clock used for UpdatedAt and latency (useful in tests).
func WithClock(fn func() time.Time) Option {
	return func(s *settings) {
		if fn != nil {
			s.now = fn
		}
	}
}

// Cache holds one snapshot of type T per query key.
type Cache[T any] struct {
	settings

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	entries map[string]*entry[T]
	pending int
	subs    map[int]chan string
	nextSub int
}

// New creates an empty cache. Fetches run under a context derived from
// ctx and are cancelled by Close.
func New[T any](ctx context.Context, opts ...Option) *Cache[T] {
	s := settings{
		log:    slog.Default(),
		window: 10,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Cache[T]{
		settings: s,
		ctx:      cctx,
		cancel:   cancel,
		entries:  make(map[string]*entry[T]),
		subs:     make(map[int]chan string),
	}
}

// Read reports the state of key without blocking. If the snapshot is
// missing or invalidated and no fetch is outstanding, a fetch is started
// with fetch (or the function registered by an earlier Read) and the
// result is StatusLoading. An entry whose latest fetch failed reports
// StatusError until it is refetched.
func (c *Cache[T]) Read(key string, fetch QueryFunc[T]) Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result[T]{Status: StatusError, Err: ErrClosed}
	}
	e := c.entryLocked(key, fetch)

	switch {
	case e.fresh() && e.err != nil:
		return c.resultLocked(e, StatusError)
	case e.fresh() && e.hasData:
		return c.resultLocked(e, StatusSuccess)
	}

	if !e.fetching() && e.fetch != nil {
		c.startFetchLocked(key, e)
	}
	return c.resultLocked(e, StatusLoading)
}

// Await blocks until key is no longer loading and returns its result.
func (c *Cache[T]) Await(ctx context.Context, key string, fetch QueryFunc[T]) (Result[T], error) {
	for {
		res := c.Read(key, fetch)
		if res.Status != StatusLoading {
			return res, nil
		}

		c.mu.Lock()
		var done chan struct{}
		if e, ok := c.entries[key]; ok {
			done = e.done
		}
		c.mu.Unlock()
		if done == nil {
			return res, errors.New("querycache: no query function registered for " + key)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-done:
		}
	}
}

// Invalidate marks key stale and immediately starts a refetch. The
// returned channel is closed once that refetch has settled. Keys without
// a registered query function simply lose their snapshot.
func (c *Cache[T]) Invalidate(key string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if c.closed || !ok || e.fetch == nil {
		if ok {
			delete(c.entries, key)
		}
		done := make(chan struct{})
		close(done)
		return done
	}

	c.log.Debug("invalidating query", slog.String("key", key))
	done := c.startFetchLocked(key, e)
	e.required = e.issued
	c.notifyLocked(key)
	return done
}

// Refetch starts a new fetch for key without marking the current snapshot
// stale. It is the retry path after a failed fetch.
func (c *Cache[T]) Refetch(key string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if c.closed || !ok || e.fetch == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	done := c.startFetchLocked(key, e)
	if e.err != nil {
		// a failed entry stays loading until the retry settles
		e.required = e.issued
	}
	return done
}

// Pending returns the number of mutations currently in flight.
func (c *Cache[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Subscribe returns a channel that receives the key of every entry whose
// visible state changed, and a function that cancels the subscription.
// Notifications are dropped rather than blocking when the reader lags.
func (c *Cache[T]) Subscribe() (<-chan string, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan string, 16)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Stats returns the fetch statistics of key.
func (c *Cache[T]) Stats(key string) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Stats{}
	}
	return e.stats.snapshot()
}

// Close discards every snapshot, cancels outstanding fetches and waits
// for them to return.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.entries = make(map[string]*entry[T])
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Mutate runs op. On success every key is invalidated and Mutate waits
// for the resulting refetches to settle before returning, so the next
// Read observes the mutation. A failed refetch is recorded on the entry,
// not returned. On failure the snapshots are left untouched and op's
// error is returned.
func Mutate[T, R any](ctx context.Context, c *Cache[T], op func(context.Context) (R, error), keys ...string) (R, error) {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
	}()

	res, err := op(ctx)
	if err != nil {
		return res, err
	}

	waits := make([]<-chan struct{}, 0, len(keys))
	for _, key := range keys {
		waits = append(waits, c.Invalidate(key))
	}
	for _, done := range waits {
		select {
		case <-ctx.Done():
			// the mutation itself succeeded; the refetch keeps running
			return res, nil
		case <-done:
		}
	}
	return res, nil
}

func (c *Cache[T]) entryLocked(key string, fetch QueryFunc[T]) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{stats: newMonitor(c.window)}
		c.entries[key] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	return e
}

func (c *Cache[T]) resultLocked(e *entry[T], status Status) Result[T] {
	res := Result[T]{
		Status:    status,
		Data:      e.data,
		HasData:   e.hasData,
		Fetching:  e.fetching(),
		UpdatedAt: e.updatedAt,
	}
	if status == StatusError {
		res.Err = e.err
	}
	return res
}

func (c *Cache[T]) startFetchLocked(key string, e *entry[T]) chan struct{} {
	e.issued++
	seq := e.issued
	done := make(chan struct{})
	e.done = done
	fetch := e.fetch

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)

		start := c.now()
		data, err := fetch(c.ctx)
		c.settle(key, e, seq, data, err, c.now().Sub(start))
	}()
	return done
}

func (c *Cache[T]) settle(key string, e *entry[T], seq uint64, data T, err error, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.entries[key] != e {
		return
	}
	if seq <= e.applied {
		e.stats.dropped()
		c.log.Debug("dropping stale fetch response",
			slog.String("key", key),
			slog.Uint64("seq", seq),
			slog.Uint64("applied", e.applied))
		return
	}

	e.applied = seq
	e.stats.fetched(elapsed, err)
	if err != nil {
		e.err = err
		c.log.Warn("fetch failed",
			slog.String("key", key),
			slog.Uint64("seq", seq),
			slog.String("error", err.Error()))
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.updatedAt = c.now()
		c.log.Debug("snapshot replaced",
			slog.String("key", key),
			slog.Uint64("seq", seq),
			slog.Duration("elapsed", elapsed))
	}
	c.notifyLocked(key)
}

func (c *Cache[T]) notifyLocked(key string) {
	for _, ch := range c.subs {
		select {
		case ch <- key:
		default:
		}
	}
}
