// Package checkpoint models the external CheckpointManager collaborator: the source of truth that can pin items in
// memory (via reference counts) so the pager must not evict them. The real DCP/checkpoint subsystem is out of
// scope; this package gives the pager enough of a contract to test against.
//
// IsPinned's bloom-filter fast path is grounded on pkg/storage/sstable.go, which keeps an optional bloom.BloomFilter
// per SSTable so a negative lookup can skip an expensive disk read. Here the "expensive" operation is a lock-guarded
// map lookup under potential contention from many concurrent visitor goroutines; the bloom filter lets an unpinned
// item (the overwhelmingly common case) skip the refcount map lookup. The filter test itself runs under the read lock.
package checkpoint

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Manager tracks which (vbid, key) pairs are currently pinned by an outstanding checkpoint reference.
type Manager interface {
	// Pin increments the pin refcount for (vbid, key).
	Pin(vbid uint16, key []byte)
	// Unpin decrements the pin refcount for (vbid, key); it is a no-op once the count reaches zero.
	Unpin(vbid uint16, key []byte)
	// IsPinned returns true if (vbid, key) has a refcount > 1 and so must not be evicted (spec.md §4.2: "not
	// currently pinned by a checkpoint with refcount > 1").
	IsPinned(vbid uint16, key []byte) bool
	// CreateNewCheckpoint releases all checkpoint-held references for vbid, making its items evictable again.
	CreateNewCheckpoint(vbid uint16)
}

type pinKey struct {
	vbid uint16
	key  string
}

// RefCountManager is the in-memory Manager implementation.
type RefCountManager struct {
	mux     sync.RWMutex
	refs    map[pinKey]int
	filters map[uint16]*bloom.BloomFilter
}

// NewRefCountManager constructs an empty RefCountManager.
func NewRefCountManager() *RefCountManager {
	return &RefCountManager{
		refs:    make(map[pinKey]int),
		filters: make(map[uint16]*bloom.BloomFilter),
	}
}

const (
	filterExpectedItems    = 4096
	filterFalsePositiveRate = 0.01
)

func (m *RefCountManager) filterFor(vbid uint16) *bloom.BloomFilter {
	f, ok := m.filters[vbid]
	if !ok {
		f = bloom.NewWithEstimates(filterExpectedItems, filterFalsePositiveRate)
		m.filters[vbid] = f
	}
	return f
}

// Pin increments the refcount for (vbid, key) and records key in vbid's bloom filter.
func (m *RefCountManager) Pin(vbid uint16, key []byte) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.refs[pinKey{vbid, string(key)}]++
	m.filterFor(vbid).Add(key)
}

// Unpin decrements the refcount for (vbid, key), removing the entry once it reaches zero. The bloom filter is left
// as-is (it only ever over-reports, never under-reports, so a stale positive merely costs an extra map lookup).
func (m *RefCountManager) Unpin(vbid uint16, key []byte) {
	m.mux.Lock()
	defer m.mux.Unlock()
	k := pinKey{vbid, string(key)}
	if n, ok := m.refs[k]; ok {
		if n <= 1 {
			delete(m.refs, k)
		} else {
			m.refs[k] = n - 1
		}
	}
}

// IsPinned reports whether (vbid, key) currently has a refcount > 1.
func (m *RefCountManager) IsPinned(vbid uint16, key []byte) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()

	f, ok := m.filters[vbid]
	if !ok || !f.Test(key) {
		return false // definitely not pinned: this key has not been pinned in this vBucket since its filter was reset.
	}
	return m.refs[pinKey{vbid, string(key)}] > 1
}

// CreateNewCheckpoint drops every pin held for vbid and resets its bloom filter, releasing all checkpoint-held
// references per spec.md §9's design note.
func (m *RefCountManager) CreateNewCheckpoint(vbid uint16) {
	m.mux.Lock()
	defer m.mux.Unlock()
	for k := range m.refs {
		if k.vbid == vbid {
			delete(m.refs, k)
		}
	}
	delete(m.filters, vbid)
}

var _ Manager = (*RefCountManager)(nil)
