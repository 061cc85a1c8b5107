// Package bloom implements an approximate-membership filter used as a
// write-path accelerator by the event store.
//
// The filter guarantees zero false negatives: Test returns false only for
// items that were never added, so a false answer lets the store skip its
// exact existence lookup on the common case of a brand-new event id. A true
// answer means "maybe present" and the store's exact lookup remains the
// source of truth. There is no delete operation; the filter only grows.
package bloom

import (
	"hash/fnv"
	"math"
	"sync"
)

// Filter is a bloom filter sized from an expected item count and a target
// false-positive probability. Safe for concurrent use.
type Filter struct {
	mu   sync.RWMutex
	bits []uint64
	m    uint64 // bit-array length
	k    int    // hash-function count
}

// New creates a Filter for an expected n items at false-positive
// probability p. Out-of-range arguments are clamped to usable values.
//
//	m = ceil(-n*ln(p) / ln(2)^2)
//	k = round((m/n) * ln(2)), minimum 1
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / float64(n) * ln2))
	if k < 1 {
		k = 1
	}

	return &Filter{
		bits: make([]uint64, (m+63)/64),
		m:    m,
		k:    k,
	}
}

// Add records an item in the filter.
func (f *Filter) Add(item []byte) {
	h1, h2 := digests(item)

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// Test reports whether the item might have been added. A false result is
// definitive; a true result means "maybe".
func (f *Filter) Test(item []byte) bool {
	h1, h2 := digests(item)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Bits returns the bit-array length. Exposed for sizing tests.
func (f *Filter) Bits() uint64 { return f.m }

// Hashes returns the hash-function count. Exposed for sizing tests.
func (f *Filter) Hashes() int { return f.k }

// digests derives two independent 64-bit digests of item; the k positions
// are double-hashed combinations h1 + i*h2. h2 is forced odd so successive
// positions never collapse onto one slot.
func digests(item []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(item)
	h1 := h.Sum64()

	h.Write([]byte{0xff})
	h2 := h.Sum64() | 1

	return h1, h2
}
