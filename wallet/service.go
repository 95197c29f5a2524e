// Package wallet wires the wallet daemon's queries into the cache and
// declares how the daemon's state_changed pushes keep each cached result
// current: balances mutate in place, transaction and wallet lists refetch.
package wallet

import (
	"fmt"
	"time"

	"github.com/Cocoseas/lambosync/cache"
	"github.com/Cocoseas/lambosync/invalidate"
	"github.com/Cocoseas/lambosync/rpc"
)

// Config configures the wallet query set
type Config struct {
	Service          string // Daemon service name the wallet answers on
	SubscribeTimeout time.Duration
	Dedupe           *invalidate.DedupeFilter
}

// Set holds the registered wallet queries
type Set struct {
	Balance      *cache.Query
	Transactions *cache.Query
	SyncStatus   *cache.Query
	Wallets      *cache.Query
}

// Register builds all wallet queries against the store, each bound to its
// push subscription rules
func Register(store *cache.Store, caller rpc.Caller, config Config) (*Set, error) {
	if config.Service == "" {
		return nil, fmt.Errorf("wallet service name is required")
	}

	s := &Set{}
	svc := config.Service
	mgrConfig := invalidate.ManagerConfig{
		SubscribeTimeout: config.SubscribeTimeout,
		Dedupe:           config.Dedupe,
	}

	// Balance: coin movement for the entry's wallet mutates the cached
	// value directly, no round trip to the daemon.
	balanceMgr, err := invalidate.NewManager(caller, []invalidate.Descriptor{
		invalidate.Mutate("state_changed", svc, applyBalancePush,
			invalidate.WhenState("coin_added", "coin_removed", "pending_transaction"),
			invalidate.WhenWallet()),
	}, mgrConfig)
	if err != nil {
		return nil, fmt.Errorf("balance manager: %w", err)
	}
	s.Balance, err = store.Register(cache.Endpoint{
		Name:    "get_wallet_balance",
		Service: svc,
		Command: "get_wallet_balance",
		Decode:  decodeBalance,
	}, balanceMgr.Binder())
	if err != nil {
		return nil, err
	}

	// Transactions: a transaction state change invalidates the whole list;
	// ordering and confirmation fields are daemon-owned, so refetch.
	txMgr, err := invalidate.NewManager(caller, []invalidate.Descriptor{
		invalidate.Refetch("state_changed", svc,
			func() invalidate.Initiator { return s.Transactions },
			invalidate.WhenState("tx_update", "pending_transaction"),
			invalidate.WhenWallet()),
	}, mgrConfig)
	if err != nil {
		return nil, fmt.Errorf("transactions manager: %w", err)
	}
	s.Transactions, err = store.Register(cache.Endpoint{
		Name:    "get_transactions",
		Service: svc,
		Command: "get_transactions",
		Decode:  decodeTransactions,
	}, txMgr.Binder())
	if err != nil {
		return nil, err
	}

	// Sync status: peak and sync flags arrive in the push itself
	syncMgr, err := invalidate.NewManager(caller, []invalidate.Descriptor{
		invalidate.Mutate("state_changed", svc, applySyncPush,
			invalidate.WhenState("sync_changed", "new_block")),
	}, mgrConfig)
	if err != nil {
		return nil, fmt.Errorf("sync manager: %w", err)
	}
	s.SyncStatus, err = store.Register(cache.Endpoint{
		Name:    "get_sync_status",
		Service: svc,
		Command: "get_sync_status",
		Decode:  decodeSyncState,
	}, syncMgr.Binder())
	if err != nil {
		return nil, err
	}

	// Wallet list: creation is rare and the daemon assigns IDs, refetch
	walletsMgr, err := invalidate.NewManager(caller, []invalidate.Descriptor{
		invalidate.Refetch("state_changed", svc,
			func() invalidate.Initiator { return s.Wallets },
			invalidate.WhenState("wallet_created")),
	}, mgrConfig)
	if err != nil {
		return nil, fmt.Errorf("wallets manager: %w", err)
	}
	s.Wallets, err = store.Register(cache.Endpoint{
		Name:    "get_wallets",
		Service: svc,
		Command: "get_wallets",
		Decode:  decodeWalletList,
	}, walletsMgr.Binder())
	if err != nil {
		return nil, err
	}

	return s, nil
}

func decodeBalance(resp rpc.Response, args map[string]any) (any, error) {
	var b Balance
	if err := decodeField(resp, "wallet_balance", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeTransactions(resp rpc.Response, args map[string]any) (any, error) {
	var t Transactions
	if err := decodeField(resp, "transactions", &t.Records); err != nil {
		return nil, err
	}
	if id, ok := pushUint(args, "wallet_id"); ok {
		t.WalletID = uint32(id)
	}
	return &t, nil
}

func decodeSyncState(resp rpc.Response, _ map[string]any) (any, error) {
	sync := &SyncState{}
	if v, ok := pushBool(resp.Data, "synced"); ok {
		sync.Synced = v
	}
	if v, ok := pushBool(resp.Data, "syncing"); ok {
		sync.Syncing = v
	}
	if v, ok := pushUint(resp.Data, "peak_height"); ok {
		sync.PeakHeight = uint32(v)
	}
	return sync, nil
}

func decodeWalletList(resp rpc.Response, _ map[string]any) (any, error) {
	var l WalletList
	if err := decodeField(resp, "wallets", &l.Wallets); err != nil {
		return nil, err
	}
	return &l, nil
}

// applyBalancePush folds a coin movement push into the cached balance
func applyBalancePush(draft any, push rpc.Push, _ map[string]any) {
	b, ok := draft.(*Balance)
	if !ok {
		return
	}
	if v, ok := pushUint(push.Data, "confirmed_wallet_balance"); ok {
		b.ConfirmedBalance = v
	}
	if v, ok := pushUint(push.Data, "unconfirmed_wallet_balance"); ok {
		b.UnconfirmedBalance = v
	}
	if v, ok := pushUint(push.Data, "spendable_balance"); ok {
		b.SpendableBalance = v
	}
	if v, ok := pushUint(push.Data, "pending_change"); ok {
		b.PendingChange = v
	}
	if v, ok := pushUint(push.Data, "unspent_coin_count"); ok {
		b.UnspentCoinCount = uint32(v)
	}
	if v, ok := pushUint(push.Data, "pending_coin_removal_count"); ok {
		b.PendingCoinRemovalCount = uint32(v)
	}
}

// applySyncPush folds a sync status push into the cached sync state
func applySyncPush(draft any, push rpc.Push, _ map[string]any) {
	s, ok := draft.(*SyncState)
	if !ok {
		return
	}
	if v, ok := pushBool(push.Data, "synced"); ok {
		s.Synced = v
	}
	if v, ok := pushBool(push.Data, "syncing"); ok {
		s.Syncing = v
	}
	if v, ok := pushUint(push.Data, "peak_height"); ok {
		s.PeakHeight = uint32(v)
	}
}
