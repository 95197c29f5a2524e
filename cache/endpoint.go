package cache

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/Cocoseas/lambosync/rpc"
)

// DecodeFunc builds the typed cached value from a daemon response.
// The returned value must be a pointer so draft mutations can reach it.
type DecodeFunc func(resp rpc.Response, args map[string]any) (any, error)

// Endpoint defines one query against a daemon service
type Endpoint struct {
	Name    string // Cache-facing endpoint name (unique per store)
	Service string // Daemon service the command is sent to
	Command string // Remote command
	Decode  DecodeFunc
}

// InitiateOptions controls how a query is initiated
type InitiateOptions struct {
	// Subscribe registers the caller as a consumer of the entry; the entry
	// stays alive until every consumer releases it.
	Subscribe bool
	// ForceRefetch fetches fresh data even when a cached value exists
	ForceRefetch bool
}

// entryKey hashes endpoint name plus canonicalized arguments.
// Map iteration order is not stable, so keys are sorted first.
func entryKey(endpoint string, args map[string]any) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(endpoint)

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("\x01")
		_, _ = h.WriteString(fmt.Sprintf("%v", args[k]))
	}
	return h.Sum64()
}
