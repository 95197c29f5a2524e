package cache

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// EntryState is the lifecycle state of a cached query result
type EntryState int32

const (
	// StatePending - entry exists but the first fetch has not completed
	StatePending EntryState = iota
	// StateActive - entry holds a loaded value
	StateActive
	// StateClosed - entry was evicted and must not be mutated
	StateClosed
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry is one cached query result, keyed by endpoint and arguments.
// Its lifecycle is Pending -> Active (first load) -> Closed (eviction).
// Load and evict hooks fire exactly once each; evict fires even if the
// entry never loaded.
type Entry struct {
	key      uint64
	endpoint string
	args     map[string]any

	mu    sync.Mutex
	state EntryState
	value any
	err   error

	onLoad  []func(*Entry)
	onEvict []func(*Entry)

	refs       atomic.Int32
	fetching   atomic.Bool
	evictTimer *time.Timer

	loaded  chan struct{}
	removed chan struct{}
}

func newEntry(key uint64, endpoint string, args map[string]any) *Entry {
	return &Entry{
		key:      key,
		endpoint: endpoint,
		args:     args,
		loaded:   make(chan struct{}),
		removed:  make(chan struct{}),
	}
}

// Key returns the entry's cache key
func (e *Entry) Key() uint64 { return e.key }

// Endpoint returns the name of the endpoint that produced this entry
func (e *Entry) Endpoint() string { return e.endpoint }

// Args returns the original query arguments. Callers must not mutate the map.
func (e *Entry) Args() map[string]any { return e.args }

// State returns the current lifecycle state
func (e *Entry) State() EntryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Value returns the cached value, or nil if the entry never loaded
func (e *Entry) Value() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Err returns the most recent fetch error, if any
func (e *Entry) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Loaded is closed once the entry's first fetch completes
func (e *Entry) Loaded() <-chan struct{} { return e.loaded }

// Removed is closed when the entry is evicted
func (e *Entry) Removed() <-chan struct{} { return e.removed }

// OnLoad registers a hook invoked when the entry transitions to Active.
// If the entry is already Active the hook runs immediately.
func (e *Entry) OnLoad(fn func(*Entry)) {
	e.mu.Lock()
	switch e.state {
	case StateActive:
		e.mu.Unlock()
		fn(e)
		return
	case StateClosed:
		e.mu.Unlock()
		return
	default:
		e.onLoad = append(e.onLoad, fn)
		e.mu.Unlock()
	}
}

// OnEvict registers a hook invoked when the entry is evicted.
// If the entry is already Closed the hook runs immediately.
func (e *Entry) OnEvict(fn func(*Entry)) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		fn(e)
		return
	}
	e.onEvict = append(e.onEvict, fn)
	e.mu.Unlock()
}

// Update applies a mutation recipe to the cached value. The recipe runs on a
// draft copy that is swapped in under the entry lock, so pointers handed out
// by Value before the update keep showing a consistent earlier snapshot.
// Recipes for the same entry are serialized; each push event maps to a single
// recipe invocation. Updates against an unloaded or evicted entry are dropped.
func (e *Entry) Update(recipe func(draft any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive || e.value == nil {
		return
	}
	draft := copyValue(e.value)
	recipe(draft)
	e.value = draft
}

// copyValue clones the struct behind a cached value pointer. Non-pointer
// values pass through; decode functions are required to return pointers.
func copyValue(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return v
	}
	clone := reflect.New(rv.Elem().Type())
	clone.Elem().Set(rv.Elem())
	return clone.Interface()
}

// setLoaded installs the first value and fires load hooks.
// Subsequent loads (refreshes) only replace the value.
func (e *Entry) setLoaded(value any) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	first := e.state == StatePending
	e.state = StateActive
	e.value = value
	e.err = nil
	var hooks []func(*Entry)
	if first {
		hooks = e.onLoad
		e.onLoad = nil
	}
	e.mu.Unlock()

	if first {
		close(e.loaded)
		for _, fn := range hooks {
			fn(e)
		}
	}
}

// setError records a fetch failure. An entry that already holds a value
// keeps serving it stale.
func (e *Entry) setError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	e.err = err
}

// close transitions to Closed and fires evict hooks exactly once.
// Returns false if the entry was already closed, or if a consumer acquired
// the entry after the idle check that scheduled this eviction.
func (e *Entry) close() bool {
	e.mu.Lock()
	if e.state == StateClosed || e.refs.Load() > 0 {
		e.mu.Unlock()
		return false
	}
	e.state = StateClosed
	hooks := e.onEvict
	e.onEvict = nil
	e.onLoad = nil
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	e.mu.Unlock()

	close(e.removed)
	for _, fn := range hooks {
		fn(e)
	}
	return true
}
