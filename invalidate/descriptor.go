// Package invalidate keeps cached query results consistent with push
// notifications from the daemon. A descriptor set declares, for one cache
// entry, which subscriptions to open and what each push does: mutate the
// cached value in place, or force a dependent query to refetch.
package invalidate

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/Cocoseas/lambosync/cache"
	"github.com/Cocoseas/lambosync/rpc"
)

// Predicate decides whether a push event applies to an entry.
// A push is discarded unless every predicate on its descriptor returns true.
type Predicate func(push rpc.Push, args map[string]any) bool

// MutateFunc applies a push to a mutable draft of the cached value
type MutateFunc func(draft any, push rpc.Push, args map[string]any)

// Initiator is a dependent query that can be re-triggered with forced
// refresh semantics. Satisfied by *cache.Query.
type Initiator interface {
	Initiate(ctx context.Context, args map[string]any, opts cache.InitiateOptions) (*cache.Entry, error)
}

// InitiatorFactory resolves the dependent query at push time, which lets
// descriptor sets reference queries registered after them
type InitiatorFactory func() Initiator

// ArgsFunc derives the dependent query's arguments from a push and the
// owning entry's arguments
type ArgsFunc func(push rpc.Push, args map[string]any) map[string]any

// Descriptor declares one subscription to open for a cache entry. It is a
// tagged variant: built by Mutate it carries a draft mutation, built by
// Refetch it carries a dependent query trigger. There is no third shape.
type Descriptor struct {
	Command string
	Service string

	when        []Predicate
	mutate      MutateFunc
	refetch     InitiatorFactory
	refetchArgs ArgsFunc
}

// Option tunes a descriptor at construction
type Option func(*Descriptor)

// When gates the descriptor on a predicate. Multiple predicates AND together.
func When(p Predicate) Option {
	return func(d *Descriptor) {
		d.when = append(d.when, p)
	}
}

// WhenState gates the descriptor on the push's state name matching any of
// the given glob patterns
func WhenState(patterns ...string) Option {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		globs = append(globs, glob.MustCompile(pattern))
	}
	return When(func(push rpc.Push, _ map[string]any) bool {
		for _, g := range globs {
			if g.Match(push.State) {
				return true
			}
		}
		return false
	})
}

// WhenWallet gates the descriptor on the push's wallet ID matching the
// entry's wallet_id argument. Pushes without a wallet scope never match.
func WhenWallet() Option {
	return When(func(push rpc.Push, args map[string]any) bool {
		if push.WalletID == 0 {
			return false
		}
		return walletIDArg(args) == push.WalletID
	})
}

// WithArgs overrides the arguments a Refetch descriptor initiates the
// dependent query with. Default is the owning entry's own arguments.
func WithArgs(fn ArgsFunc) Option {
	return func(d *Descriptor) {
		d.refetchArgs = fn
	}
}

// Mutate builds a descriptor whose pushes mutate the cached value in place
func Mutate(command, service string, fn MutateFunc, opts ...Option) Descriptor {
	d := Descriptor{Command: command, Service: service, mutate: fn}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Refetch builds a descriptor whose pushes force a fresh fetch of a
// dependent query, bypassing its cached value
func Refetch(command, service string, factory InitiatorFactory, opts ...Option) Descriptor {
	d := Descriptor{Command: command, Service: service, refetch: factory}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// applies reports whether the push passes every predicate
func (d *Descriptor) applies(push rpc.Push, args map[string]any) bool {
	for _, p := range d.when {
		if !p(push, args) {
			return false
		}
	}
	return true
}

// validate checks the exactly-one-of invariant the constructors establish
func (d *Descriptor) validate() error {
	if d.Command == "" || d.Service == "" {
		return fmt.Errorf("descriptor requires command and service")
	}
	if d.mutate == nil && d.refetch == nil {
		return fmt.Errorf("descriptor %s.%s has no action", d.Service, d.Command)
	}
	if d.mutate != nil && d.refetch != nil {
		return fmt.Errorf("descriptor %s.%s has both mutate and refetch actions", d.Service, d.Command)
	}
	if d.refetchArgs != nil && d.refetch == nil {
		return fmt.Errorf("descriptor %s.%s sets refetch args without a refetch action", d.Service, d.Command)
	}
	return nil
}

// walletIDArg extracts a wallet id from query arguments. TOML and msgpack
// decode numbers to different Go types, so accept the common ones.
func walletIDArg(args map[string]any) uint32 {
	switch v := args["wallet_id"].(type) {
	case uint32:
		return v
	case int:
		return uint32(v)
	case int64:
		return uint32(v)
	case uint64:
		return uint32(v)
	case float64:
		return uint32(v)
	default:
		return 0
	}
}
