package transfer

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	cuckoo "github.com/linvon/cuckoo-filter"
)

const (
	dedupBucketSize      = 4
	dedupFingerprintSize = 32 // 32-bit fingerprint keeps the FP rate negligible for one run
	dedupNumBuckets      = 65536
)

// Deduper tracks payloads already delivered in this run so copy operations
// can skip repeats. Membership is approximate (cuckoo filter over the
// XXH64 payload hash); a false positive skips a genuine message, which is
// acceptable for the opt-in dedup mode.
type Deduper struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

// NewDeduper creates an empty dedup window
func NewDeduper() *Deduper {
	return &Deduper{
		filter: cuckoo.NewFilter(dedupBucketSize, dedupFingerprintSize,
			dedupNumBuckets, cuckoo.TableTypePacked),
	}
}

// Seen reports whether an equal payload was already observed, and records
// this one.
func (d *Deduper) Seen(payload []byte) bool {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, xxhash.Sum64(payload))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.Contain(buf) {
		return true
	}
	d.filter.Add(buf)
	return false
}
