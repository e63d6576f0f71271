package ledger

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 256

// lockTable serializes work per slot without a global lock. Slots that hash
// to the same shard share a mutex, which only costs parallelism.
type lockTable struct {
	shards [lockShards]sync.Mutex
}

func (t *lockTable) lock(slotID string) func() {
	m := &t.shards[xxhash.Sum64String(slotID)%lockShards]
	m.Lock()
	return m.Unlock
}
