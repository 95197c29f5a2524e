package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/Cocoseas/lambosync/rpc"
	"github.com/Cocoseas/lambosync/telemetry"
)

// StoreConfig configures the query result cache
type StoreConfig struct {
	// RetentionSize bounds how many evicted values are kept for stale reads
	RetentionSize int
	// Retention is how long an entry without consumers survives before
	// eviction. Zero evicts immediately on last release.
	Retention time.Duration
}

// Retained is an evicted entry's last value, served stale while a fresh
// fetch is in flight
type Retained struct {
	Value     any
	EvictedAt time.Time
}

// Store is a key-value store of query results keyed by endpoint and
// arguments. Entries are ref-counted by consumers; eviction tears down the
// entry's lifecycle hooks exactly once.
type Store struct {
	caller   rpc.Caller
	entries  *xsync.MapOf[uint64, *Entry]
	retained *lru.Cache[uint64, Retained]

	retention time.Duration
}

// NewStore creates a query result cache backed by the given RPC caller
func NewStore(caller rpc.Caller, config StoreConfig) (*Store, error) {
	if caller == nil {
		return nil, fmt.Errorf("rpc caller is required")
	}
	if config.RetentionSize <= 0 {
		config.RetentionSize = 256
	}

	retained, err := lru.New[uint64, Retained](config.RetentionSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention cache: %w", err)
	}

	return &Store{
		caller:    caller,
		entries:   xsync.NewMapOf[uint64, *Entry](),
		retained:  retained,
		retention: config.Retention,
	}, nil
}

// Register binds an endpoint to the store. Binders run once per new entry,
// before its first fetch starts, so lifecycle hooks never miss the load.
func (s *Store) Register(ep Endpoint, binders ...func(*Entry)) (*Query, error) {
	if ep.Name == "" || ep.Command == "" || ep.Service == "" {
		return nil, fmt.Errorf("endpoint name, service and command are required")
	}
	if ep.Decode == nil {
		return nil, fmt.Errorf("endpoint %s requires a decode function", ep.Name)
	}
	return &Query{store: s, ep: ep, binders: binders}, nil
}

// Entry returns the live entry for a key, if any
func (s *Store) Entry(key uint64) (*Entry, bool) {
	return s.entries.Load(key)
}

// Entries snapshots all live entries
func (s *Store) Entries() []*Entry {
	out := make([]*Entry, 0, s.entries.Size())
	s.entries.Range(func(_ uint64, e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Stale returns the retained value of an evicted entry, if still held
func (s *Store) Stale(key uint64) (Retained, bool) {
	return s.retained.Get(key)
}

// evict closes the entry, removes it from the live map, and retains its
// last value. The close aborts if the entry was re-acquired after the idle
// check that scheduled this eviction, or was already closed.
func (s *Store) evict(e *Entry) {
	value := e.Value()
	if !e.close() {
		return
	}
	s.entries.Delete(e.key)
	if value != nil {
		s.retained.Add(e.key, Retained{Value: value, EvictedAt: time.Now()})
	}
	telemetry.CacheEntriesActive.Dec()
	telemetry.CacheEvictionsTotal.Inc()
	log.Debug().
		Str("endpoint", e.endpoint).
		Uint64("key", e.key).
		Msg("Evicted cache entry")
}

// armRetention schedules eviction once the entry has sat without consumers
// for the retention window. Re-acquiring the entry disarms it.
func (s *Store) armRetention(e *Entry) {
	if s.retention <= 0 {
		if e.refs.Load() == 0 {
			s.evict(e)
		}
		return
	}

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	if e.evictTimer != nil {
		e.evictTimer.Stop()
	}
	e.evictTimer = time.AfterFunc(s.retention, func() {
		if e.refs.Load() == 0 {
			s.evict(e)
		}
	})
	e.mu.Unlock()
}

// acquire registers a consumer and disarms any pending eviction. It runs
// under the entry mutex so it cannot interleave with close: either the ref
// lands before close checks refs and the eviction aborts, or close wins and
// acquire reports the entry dead. Returns false if the entry is Closed.
func (s *Store) acquire(e *Entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return false
	}
	e.refs.Add(1)
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	return true
}

// dropClosed removes a dead entry from the live map so a later Initiate can
// install a fresh one under the same key
func (s *Store) dropClosed(key uint64, e *Entry) {
	s.entries.Compute(key, func(old *Entry, loaded bool) (*Entry, bool) {
		if loaded && old == e {
			return nil, true
		}
		return old, !loaded
	})
}

// fetch performs the endpoint call and installs the result. Concurrent
// fetches for the same entry coalesce into one.
func (s *Store) fetch(ctx context.Context, ep Endpoint, e *Entry) {
	if !e.fetching.CompareAndSwap(false, true) {
		return
	}
	defer e.fetching.Store(false)

	start := time.Now()
	resp, err := s.caller.Call(ctx, ep.Command, ep.Service, e.args)
	telemetry.FetchDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.FetchesTotal.With("failed").Inc()
		e.setError(err)
		log.Warn().Err(err).
			Str("endpoint", ep.Name).
			Uint64("key", e.key).
			Msg("Query fetch failed")
		return
	}

	value, err := ep.Decode(resp, e.args)
	if err != nil {
		telemetry.FetchesTotal.With("decode_failed").Inc()
		e.setError(err)
		log.Warn().Err(err).
			Str("endpoint", ep.Name).
			Uint64("key", e.key).
			Msg("Failed to decode query response")
		return
	}

	telemetry.FetchesTotal.With("success").Inc()
	e.setLoaded(value)
}

// Query is an endpoint bound to a store
type Query struct {
	store   *Store
	ep      Endpoint
	binders []func(*Entry)
}

// Name returns the endpoint name
func (q *Query) Name() string { return q.ep.Name }

// Key returns the cache key for the given arguments
func (q *Query) Key(args map[string]any) uint64 {
	return entryKey(q.ep.Name, args)
}

// Initiate starts (or joins) the query for the given arguments.
//
// With Subscribe the caller becomes a consumer and must Release the entry.
// With ForceRefetch a fresh fetch runs even if a value is already cached.
// Without Subscribe the entry is created if missing but only survives the
// retention window, which makes fire-and-forget refreshes possible.
func (q *Query) Initiate(ctx context.Context, args map[string]any, opts InitiateOptions) (*Entry, error) {
	key := q.Key(args)

	for {
		created := false
		e, _ := q.store.entries.LoadOrCompute(key, func() *Entry {
			created = true
			return newEntry(key, q.ep.Name, args)
		})

		if !created && e.State() == StateClosed {
			// Lost a race with eviction; drop the dead entry and retry
			q.store.dropClosed(key, e)
			continue
		}

		if opts.Subscribe && !q.store.acquire(e) {
			// Evicted between the state check and acquire
			q.store.dropClosed(key, e)
			continue
		}

		if created {
			telemetry.CacheEntriesActive.Inc()
			for _, bind := range q.binders {
				bind(e)
			}
			if !opts.Subscribe {
				q.store.armRetention(e)
			}
			// Fetch is detached from the initiating caller's lifetime:
			// the entry belongs to all consumers, not to this caller.
			go q.store.fetch(context.WithoutCancel(ctx), q.ep, e)
		} else if opts.ForceRefetch {
			go q.store.fetch(context.WithoutCancel(ctx), q.ep, e)
		}

		return e, nil
	}
}

// Release drops one consumer reference. The last release arms eviction.
func (q *Query) Release(e *Entry) {
	if e == nil {
		return
	}
	if e.refs.Add(-1) <= 0 {
		q.store.armRetention(e)
	}
}
