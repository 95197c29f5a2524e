package invalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/Cocoseas/lambosync/cache"
	"github.com/Cocoseas/lambosync/rpc"
	"github.com/Cocoseas/lambosync/telemetry"
)

// DefaultSubscribeTimeout bounds how long activation waits for the
// transport to acknowledge one subscription
const DefaultSubscribeTimeout = 5 * time.Second

// ManagerConfig configures a subscription manager
type ManagerConfig struct {
	SubscribeTimeout time.Duration
	// Dedupe drops redelivered pushes when set. One filter may be shared
	// across managers.
	Dedupe *DedupeFilter
}

// Manager opens one RPC subscription per descriptor when a cache entry
// loads, applies each push according to its descriptor, and closes every
// established subscription exactly once when the entry is evicted.
//
// One Manager serves many entries; per-entry state lives in a binding.
type Manager struct {
	caller      rpc.Caller
	descriptors []Descriptor
	timeout     time.Duration
	dedupe      *DedupeFilter
}

// NewManager validates the descriptor set and builds a manager
func NewManager(caller rpc.Caller, descriptors []Descriptor, config ManagerConfig) (*Manager, error) {
	if caller == nil {
		return nil, fmt.Errorf("rpc caller is required")
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("at least one descriptor is required")
	}
	for i := range descriptors {
		if err := descriptors[i].validate(); err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
	}
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = DefaultSubscribeTimeout
	}

	return &Manager{
		caller:      caller,
		descriptors: descriptors,
		timeout:     config.SubscribeTimeout,
		dedupe:      config.Dedupe,
	}, nil
}

// Binder returns the hook a cache query registers for new entries. The
// binding activates when the entry loads and tears down when it is evicted.
func (m *Manager) Binder() func(*cache.Entry) {
	return func(e *cache.Entry) {
		e.OnLoad(m.activate)
	}
}

// binding is one activated descriptor set, owned by one cache entry
type binding struct {
	entry *cache.Entry
	acks  []*future.Future[rpc.Unsubscribe]
}

// activate opens all subscriptions concurrently. Each subscribe call's
// acknowledgment lands in a future; teardown awaits those futures, so a
// subscription established after eviction is still closed.
func (m *Manager) activate(e *cache.Entry) {
	b := &binding{
		entry: e,
		acks:  make([]*future.Future[rpc.Unsubscribe], len(m.descriptors)),
	}

	for i := range m.descriptors {
		d := &m.descriptors[i]
		sub := subscriptionID(e.Key(), i)
		p := future.NewPromise[rpc.Unsubscribe]()
		b.acks[i] = p.Future()

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()

			unsub, err := m.caller.Subscribe(ctx, d.Command, d.Service, func(push rpc.Push) {
				m.apply(e, d, sub, push)
			})
			if err != nil {
				// Not retried here: the entry simply goes stale for this
				// descriptor. Transport failures are the caller's domain.
				telemetry.SubscribeFailuresTotal.Inc()
				log.Warn().Err(err).
					Str("command", d.Command).
					Str("service", d.Service).
					Uint64("key", e.Key()).
					Msg("Failed to open push subscription")
				p.Set(nil, err)
				return
			}
			telemetry.SubscriptionsActive.Inc()
			p.Set(unsub, nil)
		}()
	}

	e.OnEvict(func(*cache.Entry) {
		go b.teardown()
	})

	log.Debug().
		Int("descriptors", len(m.descriptors)).
		Str("endpoint", e.Endpoint()).
		Uint64("key", e.Key()).
		Msg("Activated push subscriptions")
}

// apply routes one push event through its descriptor. Predicates run before
// dedupe so discarded events never consume filter capacity; only events that
// would apply have their seq recorded.
func (m *Manager) apply(e *cache.Entry, d *Descriptor, sub uint64, push rpc.Push) {
	if !d.applies(push, e.Args()) {
		telemetry.PushesTotal.With("skipped").Inc()
		return
	}

	if m.dedupe != nil && !m.dedupe.FirstSeen(sub, push) {
		telemetry.PushesTotal.With("deduped").Inc()
		return
	}

	if d.mutate != nil {
		e.Update(func(draft any) {
			d.mutate(draft, push, e.Args())
		})
		telemetry.PushesTotal.With("mutated").Inc()
		return
	}

	// Fire-and-forget refresh of the dependent query. Subscribe stays false
	// so this entry's consumers are not attached to the dependent result.
	args := e.Args()
	if d.refetchArgs != nil {
		args = d.refetchArgs(push, args)
	}
	if _, err := d.refetch().Initiate(context.Background(), args, cache.InitiateOptions{
		Subscribe:    false,
		ForceRefetch: true,
	}); err != nil {
		log.Warn().Err(err).
			Str("command", d.Command).
			Str("state", push.State).
			Msg("Dependent query refetch failed to start")
		return
	}
	telemetry.PushesTotal.With("refetched").Inc()
}

// teardown closes every subscription that was or will be established.
// Future.Get blocks until the subscribe goroutine resolves the promise, so
// acknowledgments arriving after eviction are closed too, exactly once.
func (b *binding) teardown() {
	for _, ack := range b.acks {
		unsub, err := ack.Get()
		if err != nil || unsub == nil {
			continue
		}
		unsub()
		telemetry.SubscriptionsActive.Dec()
	}
	log.Debug().
		Uint64("key", b.entry.Key()).
		Msg("Closed push subscriptions")
}
