package invalidate

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	cuckoo "github.com/linvon/cuckoo-filter"
	"github.com/rs/zerolog/log"

	"github.com/Cocoseas/lambosync/rpc"
	"github.com/Cocoseas/lambosync/telemetry"
)

const (
	cuckooBucketSize      = 4
	cuckooFingerprintSize = 32
)

// DedupeFilter drops push events the daemon redelivers after a transport
// reconnect. A push is identified by (subscription, service, command, seq):
// the same daemon event fans out to every subscription on its subject, and
// each of those deliveries is a first sighting for its own subscription.
// Unsequenced pushes (seq 0) always pass.
//
// A cuckoo filter gives a tiny false-positive rate, which here means a
// genuinely new push is very rarely dropped; the next refetch or push for
// the entry repairs that.
type DedupeFilter struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

// NewDedupeFilter creates a filter sized for roughly capacity distinct pushes
func NewDedupeFilter(capacity int) *DedupeFilter {
	numBuckets := uint(capacity / cuckooBucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &DedupeFilter{
		filter: cuckoo.NewFilter(cuckooBucketSize, cuckooFingerprintSize,
			numBuckets, cuckoo.TableTypePacked),
	}
}

// subscriptionID identifies one physical subscription in dedupe state
func subscriptionID(entryKey uint64, descriptor int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], entryKey)
	binary.LittleEndian.PutUint64(buf[8:], uint64(descriptor))
	return xxhash.Sum64(buf[:])
}

// FirstSeen records the push for one subscription and reports whether that
// subscription saw it for the first time. Redeliveries return false.
func (f *DedupeFilter) FirstSeen(sub uint64, push rpc.Push) bool {
	if push.Seq == 0 {
		return true
	}

	h := xxhash.New()
	_, _ = h.WriteString(push.Service)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(push.Command)

	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[:8], sub)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sum64())
	binary.LittleEndian.PutUint64(buf[16:], push.Seq)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filter.Contain(buf[:]) {
		return false
	}
	if !f.filter.Add(buf[:]) {
		// Filter is saturated; the push passes but its seq is not recorded,
		// so dedupe degrades to pass-through until capacity frees up.
		telemetry.DedupeInsertFailuresTotal.Inc()
		log.Debug().
			Str("service", push.Service).
			Uint64("seq", push.Seq).
			Msg("Dedupe filter full, push not recorded")
	}
	return true
}
