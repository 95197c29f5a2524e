package wallet

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Cocoseas/lambosync/rpc"
)

// Balance is one wallet's balance breakdown, in mojos
type Balance struct {
	WalletID                uint32 `msgpack:"wallet_id" json:"wallet_id"`
	ConfirmedBalance        uint64 `msgpack:"confirmed_wallet_balance" json:"confirmed_wallet_balance"`
	UnconfirmedBalance      uint64 `msgpack:"unconfirmed_wallet_balance" json:"unconfirmed_wallet_balance"`
	SpendableBalance        uint64 `msgpack:"spendable_balance" json:"spendable_balance"`
	PendingChange           uint64 `msgpack:"pending_change" json:"pending_change"`
	MaxSendAmount           uint64 `msgpack:"max_send_amount" json:"max_send_amount"`
	UnspentCoinCount        uint32 `msgpack:"unspent_coin_count" json:"unspent_coin_count"`
	PendingCoinRemovalCount uint32 `msgpack:"pending_coin_removal_count" json:"pending_coin_removal_count"`
}

// TransactionRecord is one wallet transaction as reported by the daemon
type TransactionRecord struct {
	Name              string `msgpack:"name" json:"name"`
	WalletID          uint32 `msgpack:"wallet_id" json:"wallet_id"`
	Amount            uint64 `msgpack:"amount" json:"amount"`
	FeeAmount         uint64 `msgpack:"fee_amount" json:"fee_amount"`
	Confirmed         bool   `msgpack:"confirmed" json:"confirmed"`
	ConfirmedAtHeight uint32 `msgpack:"confirmed_at_height" json:"confirmed_at_height"`
	CreatedAtTime     int64  `msgpack:"created_at_time" json:"created_at_time"`
	ToAddress         string `msgpack:"to_address" json:"to_address"`
}

// Transactions is the cached transaction list for one wallet
type Transactions struct {
	WalletID uint32              `msgpack:"wallet_id" json:"wallet_id"`
	Records  []TransactionRecord `msgpack:"transactions" json:"transactions"`
}

// SyncState is the daemon's blockchain sync status
type SyncState struct {
	Synced     bool   `msgpack:"synced" json:"synced"`
	Syncing    bool   `msgpack:"syncing" json:"syncing"`
	PeakHeight uint32 `msgpack:"peak_height" json:"peak_height"`
}

// WalletInfo describes one wallet known to the daemon
type WalletInfo struct {
	ID   uint32 `msgpack:"id" json:"id"`
	Name string `msgpack:"name" json:"name"`
	Type uint8  `msgpack:"type" json:"type"`
}

// WalletList is the cached set of wallets
type WalletList struct {
	Wallets []WalletInfo `msgpack:"wallets" json:"wallets"`
}

// decodeField re-marshals one field of a response's data map into a typed
// destination. Daemon responses arrive as generic maps off the wire.
func decodeField(resp rpc.Response, field string, dst any) error {
	raw, ok := resp.Data[field]
	if !ok {
		return fmt.Errorf("response missing field %q", field)
	}
	buf, err := msgpack.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to re-encode field %q: %w", field, err)
	}
	if err := msgpack.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("failed to decode field %q: %w", field, err)
	}
	return nil
}

// pushUint reads a numeric push data field. Wire decoding may produce any
// integer width, so normalize here.
func pushUint(data map[string]any, field string) (uint64, bool) {
	switch v := data[field].(type) {
	case uint64:
		return v, true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int8:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case int16:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case float64:
		return uint64(v), true
	default:
		return 0, false
	}
}

// pushBool reads a boolean push data field
func pushBool(data map[string]any, field string) (bool, bool) {
	v, ok := data[field].(bool)
	return v, ok
}
