package store

import (
	"hash/fnv"
	"sync"
)

// keyStripes is the number of lock stripes for replacement-key
// serialization. Collisions between unrelated keys only cost contention,
// never correctness.
const keyStripes = 64

// keyedMutex serializes writers per replacement key. Two submits racing
// for the same (pubkey, kind, d-tag) key must apply the replace rule
// against a consistent current row; submits for different keys proceed in
// parallel (modulo stripe collisions).
type keyedMutex struct {
	stripes [keyStripes]sync.Mutex
}

func (km *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &km.stripes[h.Sum32()%keyStripes]
	mu.Lock()
	return mu
}
