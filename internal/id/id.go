// Package id generates time-sortable row identifiers (ULIDs) for persisted
// signals.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Monotonic entropy keeps IDs minted in the same millisecond increasing.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// At returns a ULID stamped with ts, so rows written for replayed ticks sort
// by event time rather than insertion time.
func At(ts time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(ts.UTC()), mono)
	if err != nil {
		// Monotonic entropy overflow within one millisecond; fall back to a
		// fresh non-monotonic id.
		return ulid.MustNew(ulid.Timestamp(ts.UTC()), cryptoRand.Reader).String()
	}
	return id.String()
}
