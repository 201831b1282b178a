package vbucket

import (
	"context"
	"sync"

	"github.com/scwright027/kv-engine/pkg/item"
)

// Flusher makes dirty items in a vBucket clean. The real storage engine's flusher writes to disk; this module only
// needs the contract "the pager only evicts clean items" to be exercisable in tests.
type Flusher interface {
	// Flush marks dirty items in vbid clean, returning whether more work remains and how many items were flushed.
	Flush(ctx context.Context, vbid uint16) (moreWork bool, count int, err error)
}

// EagerFlusher is an in-memory Flusher that immediately marks every dirty item in a registered vBucket clean. It is
// meant for tests and for ephemeral buckets, which have no persistence layer to wait on.
type EagerFlusher struct {
	mux      sync.Mutex
	vbuckets map[uint16]*VBucket
}

// NewEagerFlusher constructs an empty Flusher; vBuckets must be registered before they can be flushed.
func NewEagerFlusher() *EagerFlusher {
	return &EagerFlusher{vbuckets: make(map[uint16]*VBucket)}
}

// Register makes vb flushable by this Flusher.
func (f *EagerFlusher) Register(vb *VBucket) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.vbuckets[vb.ID] = vb
}

// Flush marks every dirty item in vbid clean in a single pass.
func (f *EagerFlusher) Flush(ctx context.Context, vbid uint16) (bool, int, error) {
	f.mux.Lock()
	vb, ok := f.vbuckets[vbid]
	f.mux.Unlock()
	if !ok {
		return false, 0, ErrVBucketNotFound
	}
	count := 0
	err := vb.HashTable.Visit(ctx, func(it *item.Item, _ func()) bool {
		if it.IsDirty() {
			it.MarkClean()
			count++
		}
		return false
	})
	return false, count, err
}
