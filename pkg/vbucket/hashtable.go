// Package vbucket implements the in-memory hash-table container, vBucket, and Bucket types the pager subsystem
// walks and mutates. The real storage engine's hash table (locking discipline, on-disk paging) is an external
// collaborator per the spec; HashTable here is a small, partitioned, in-memory stand-in good enough to exercise the
// pager end to end.
//
// The partitioning scheme is the same idea as pkg/cache/shard.go's ShardedCache: keys are routed to one of N
// partitions by hash so that a visitor only ever holds one partition's lock at a time (spec.md §5).
package vbucket

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/scwright027/kv-engine/pkg/item"
)

// partitionCount controls how finely a HashTable's keyspace is sharded across locks. It need not track GOMAXPROCS
// precisely: it only needs to be "enough" for the visitor's single-partition-at-a-time contract to be meaningful.
const partitionCount = 16

type partition struct {
	mux   sync.RWMutex
	items map[string]*item.Item
}

// HashTable is a partitioned, in-memory hash table of items belonging to one vBucket.
type HashTable struct {
	parts [partitionCount]*partition
}

// NewHashTable constructs an empty HashTable.
func NewHashTable() *HashTable {
	ht := &HashTable{}
	for i := range ht.parts {
		ht.parts[i] = &partition{items: make(map[string]*item.Item)}
	}
	return ht
}

func (ht *HashTable) partitionFor(key []byte) *partition {
	return ht.parts[xxhash.Sum64(key)%partitionCount]
}

// Get returns the item for key, or (nil, false) if absent.
func (ht *HashTable) Get(key []byte) (*item.Item, bool) {
	p := ht.partitionFor(key)
	p.mux.RLock()
	defer p.mux.RUnlock()
	it, ok := p.items[string(key)]
	return it, ok
}

// Set inserts or replaces an item, keyed by its own Key field.
func (ht *HashTable) Set(it *item.Item) {
	p := ht.partitionFor(it.Key)
	p.mux.Lock()
	defer p.mux.Unlock()
	p.items[string(it.Key)] = it
}

// Remove deletes the entry for key entirely (used to destroy an item with no remaining references). Callers
// invoked from inside a Visit walk must use the remove closure Visit hands them instead: calling Remove there would
// re-lock the partition Visit already holds and deadlock.
func (ht *HashTable) Remove(key []byte) {
	p := ht.partitionFor(key)
	p.mux.Lock()
	defer p.mux.Unlock()
	delete(p.items, string(key))
}

// Len returns the total number of entries across all partitions, including deleted tombstones still retained for
// their system-xattr segment.
func (ht *HashTable) Len() int {
	n := 0
	for _, p := range ht.parts {
		p.mux.RLock()
		n += len(p.items)
		p.mux.RUnlock()
	}
	return n
}

// LiveCount returns the number of non-deleted items, i.e. what a client would see as num_items: expired/evicted-to-
// deletion tombstones are not live items even though this HashTable may still hold their metadata.
func (ht *HashTable) LiveCount() int {
	n := 0
	for _, p := range ht.parts {
		p.mux.RLock()
		for _, it := range p.items {
			if !it.IsDeleted() {
				n++
			}
		}
		p.mux.RUnlock()
	}
	return n
}

// NonResidentCount returns the number of live items whose value has been ejected from memory.
func (ht *HashTable) NonResidentCount() int {
	n := 0
	for _, p := range ht.parts {
		p.mux.RLock()
		for _, it := range p.items {
			if !it.IsDeleted() && !it.IsResident() {
				n++
			}
		}
		p.mux.RUnlock()
	}
	return n
}

// Visit walks every entry, deleted tombstones included, one partition at a time, invoking visit for each. It checks ctx between partitions
// so a caller can bound how long a single visit runs (spec.md §5 suspension points); visit returning true stops the
// walk early. visit is additionally handed a remove closure that deletes the current item from its partition
// in place, under the lock visitPartition already holds: it must be used instead of HashTable.Remove, which would
// re-enter the same (non-reentrant) partition lock from the same goroutine and deadlock.
func (ht *HashTable) Visit(ctx context.Context, visit func(it *item.Item, remove func()) (stop bool)) error {
	for _, p := range ht.parts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if stopped := ht.visitPartition(p, visit); stopped {
			return nil
		}
	}
	return nil
}

func (ht *HashTable) visitPartition(p *partition, visit func(it *item.Item, remove func()) (stop bool)) bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	// Snapshot keys so visit may delete entries without corrupting the map iteration.
	keys := make([]string, 0, len(p.items))
	for k := range p.items {
		keys = append(keys, k)
	}
	for _, k := range keys {
		it, ok := p.items[k]
		if !ok {
			continue
		}
		k := k
		remove := func() { delete(p.items, k) }
		if visit(it, remove) {
			return true
		}
	}
	return false
}

// EjectValue drops it's value blob in place, returning bytes freed. Fails if the item is dirty or non-resident
// already; callers (the visitor) are expected to have already checked eligibility.
func (ht *HashTable) EjectValue(it *item.Item) (int, error) {
	if it.IsDirty() {
		return 0, ErrItemDirty
	}
	if !it.IsResident() {
		return 0, ErrItemNotResident
	}
	return it.EjectValue(), nil
}

// DeleteItem removes the user payload of it, keeping only a system-xattr tombstone when preserveSystemXattrs is
// set. The item remains reachable by key (callers decide whether to additionally Remove it from the table, e.g.
// ephemeral-bucket eviction which frees metadata too).
func (ht *HashTable) DeleteItem(it *item.Item, preserveSystemXattrs bool) error {
	it.Delete(preserveSystemXattrs)
	return nil
}
