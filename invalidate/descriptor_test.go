package invalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cocoseas/lambosync/rpc"
)

func TestWhenStateMatchesGlobPatterns(t *testing.T) {
	d := Mutate("state_changed", "svc", func(any, rpc.Push, map[string]any) {},
		WhenState("coin_*", "tx_update"))

	assert.True(t, d.applies(rpc.Push{State: "coin_added"}, nil))
	assert.True(t, d.applies(rpc.Push{State: "coin_removed"}, nil))
	assert.True(t, d.applies(rpc.Push{State: "tx_update"}, nil))
	assert.False(t, d.applies(rpc.Push{State: "sync_changed"}, nil))
	assert.False(t, d.applies(rpc.Push{State: ""}, nil))
}

func TestWhenPredicatesANDTogether(t *testing.T) {
	d := Mutate("state_changed", "svc", func(any, rpc.Push, map[string]any) {},
		WhenState("coin_added"),
		When(func(push rpc.Push, _ map[string]any) bool { return push.Seq > 10 }))

	assert.True(t, d.applies(rpc.Push{State: "coin_added", Seq: 11}, nil))
	assert.False(t, d.applies(rpc.Push{State: "coin_added", Seq: 5}, nil))
	assert.False(t, d.applies(rpc.Push{State: "coin_removed", Seq: 11}, nil))
}

func TestWhenWalletMatchesArgTypes(t *testing.T) {
	d := Mutate("state_changed", "svc", func(any, rpc.Push, map[string]any) {},
		WhenWallet())

	for _, args := range []map[string]any{
		{"wallet_id": uint32(3)},
		{"wallet_id": int(3)},
		{"wallet_id": int64(3)},
		{"wallet_id": uint64(3)},
		{"wallet_id": float64(3)},
	} {
		assert.True(t, d.applies(rpc.Push{WalletID: 3}, args))
		assert.False(t, d.applies(rpc.Push{WalletID: 4}, args))
	}

	// Unscoped pushes never match a wallet-scoped descriptor
	assert.False(t, d.applies(rpc.Push{WalletID: 0}, map[string]any{"wallet_id": uint32(0)}))
	// Entries without a wallet argument never match
	assert.False(t, d.applies(rpc.Push{WalletID: 3}, nil))
}

func TestDescriptorValidate(t *testing.T) {
	valid := Mutate("state_changed", "svc", func(any, rpc.Push, map[string]any) {})
	assert.NoError(t, valid.validate())

	noCommand := Mutate("", "svc", func(any, rpc.Push, map[string]any) {})
	assert.Error(t, noCommand.validate())

	noAction := Descriptor{Command: "state_changed", Service: "svc"}
	assert.Error(t, noAction.validate())

	argsWithoutRefetch := Mutate("state_changed", "svc", func(any, rpc.Push, map[string]any) {},
		WithArgs(func(_ rpc.Push, args map[string]any) map[string]any { return args }))
	assert.Error(t, argsWithoutRefetch.validate())
}

func TestDedupeFilterSequencing(t *testing.T) {
	f := NewDedupeFilter(1024)
	subA := subscriptionID(1, 0)
	subB := subscriptionID(2, 0)

	p := rpc.Push{Command: "state_changed", Service: "svc", Seq: 42}
	assert.True(t, f.FirstSeen(subA, p))
	assert.False(t, f.FirstSeen(subA, p), "redelivery must be dropped")

	// The same event delivered to a different subscription is that
	// subscription's first sighting
	assert.True(t, f.FirstSeen(subB, p))
	assert.False(t, f.FirstSeen(subB, p))

	// Same seq on a different service is a different push
	other := p
	other.Service = "other_svc"
	assert.True(t, f.FirstSeen(subA, other))

	// Unsequenced pushes always pass
	unseq := rpc.Push{Command: "state_changed", Service: "svc"}
	assert.True(t, f.FirstSeen(subA, unseq))
	assert.True(t, f.FirstSeen(subA, unseq))
}

func TestDedupeFilterDegradesWhenFull(t *testing.T) {
	// Deliberately undersized: once the filter stops accepting inserts, new
	// pushes must keep passing rather than being misreported as redeliveries
	f := NewDedupeFilter(1)
	sub := subscriptionID(1, 0)

	for seq := uint64(1); seq <= 200; seq++ {
		p := rpc.Push{Command: "state_changed", Service: "svc", Seq: seq}
		assert.True(t, f.FirstSeen(sub, p), "seq %d", seq)
	}
}
