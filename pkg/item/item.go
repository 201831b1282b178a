// Package item defines the in-memory representation of a key-value engine item: its value, metadata, and the
// residency/expiry/frequency bookkeeping the pager subsystem mutates as it evicts or expires entries.
//
// Kiwi's port package packs a value, a tombstone bit, and an optional expiry into a single byte blob (see
// pkg/port/packing.go in the retrieval pack). Item generalises that idea: instead of one packed byte slice, it keeps
// typed fields so the pager can flip residency/deletion bits without re-encoding the value on every visit.
package item

import (
	"maps"
	"time"
)

// DataType is a bitset describing the encoding of Item.Value (JSON, raw, snappy-compressed, ...).
type DataType uint8

const (
	DataTypeRaw DataType = 1 << iota
	DataTypeJSON
	DataTypeSnappy
	DataTypeXattr
)

// Is returns true if any of the given data type bits are set.
func (d DataType) Is(bits DataType) bool { return d&bits != 0 }

// MaxFreq is the saturating maximum of the frequency counter (hifi_mfu).
const MaxFreq uint8 = 255

// MaxAge is the saturating maximum of the 2-bit LRU age counter.
const MaxAge uint8 = 3

// SystemXattrPrefix marks an xattr key as "system owned": it survives Delete, unlike user xattrs.
const SystemXattrPrefix = "_"

// Item is one (vbid, key) entry in a vBucket's hash table.
type Item struct {
	VBID uint16
	Key  []byte

	Value    []byte // nil when non-resident (value ejected) or deleted.
	DataType DataType
	Flags    uint32

	Exptime time.Time // zero means no TTL.
	CAS     uint64
	RevSeq  uint64

	Xattrs map[string][]byte // both system (prefixed) and user xattrs while the item is alive.

	Freq uint8 // 8-bit frequency counter (hifi_mfu).
	Age  uint8 // 2-bit LRU age counter (0..MaxAge), 2-bit_lru policy.

	resident bool
	dirty    bool
	deleted  bool
}

// New constructs a resident, dirty (not yet flushed) item with the initial frequency count.
func New(vbid uint16, key, value []byte, initialFreq uint8) *Item {
	return &Item{
		VBID:     vbid,
		Key:      key,
		Value:    value,
		resident: true,
		dirty:    true,
		Freq:     initialFreq,
	}
}

// IsResident returns true if the value blob is currently held in memory.
func (it *Item) IsResident() bool { return it.resident }

// IsDirty returns true if the item has not yet been flushed to persistent storage.
func (it *Item) IsDirty() bool { return it.dirty }

// IsDeleted returns true if the item's body has been removed, leaving at most a system-xattr tombstone.
func (it *Item) IsDeleted() bool { return it.deleted }

// HasExpired reports whether the item's TTL has elapsed as of now.
func (it *Item) HasExpired(now time.Time) bool {
	return !it.Exptime.IsZero() && !it.Exptime.After(now)
}

// MarkClean clears the dirty bit; called by a Flusher once the value has been persisted.
func (it *Item) MarkClean() { it.dirty = false }

// EjectValue drops the value blob, keeping metadata resident (persistent-bucket eviction). The caller must already
// have verified the item is clean and unpinned; EjectValue itself has no side effect on those invariants.
func (it *Item) EjectValue() int {
	freed := len(it.Value)
	it.Value = nil
	it.resident = false
	return freed
}

// Delete removes the user-visible payload, pruning user xattrs and the body but, if preserveSystemXattrs is set,
// retaining only the system-xattr subset as a tombstone (spec: deleted items may retain system xattrs only).
func (it *Item) Delete(preserveSystemXattrs bool) {
	it.Value = nil
	it.resident = false
	it.deleted = true
	it.dirty = true
	if !preserveSystemXattrs || it.Xattrs == nil {
		it.Xattrs = nil
		return
	}
	kept := make(map[string][]byte, len(it.Xattrs))
	for k, v := range it.Xattrs {
		if len(k) > 0 && k[:1] == SystemXattrPrefix {
			kept[k] = v
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	it.Xattrs = kept
}

// CloneXattrs returns a defensive copy of the item's xattr map, or nil if it has none.
func (it *Item) CloneXattrs() map[string][]byte {
	if it.Xattrs == nil {
		return nil
	}
	return maps.Clone(it.Xattrs)
}

// DecayFreq decrements the frequency counter by one, saturating at zero. Callers must only invoke this on items that
// are eligible for eviction consideration; ineligible items must not be touched (spec: NotEvictable items keep their
// counter intact).
func (it *Item) DecayFreq() {
	if it.Freq > 0 {
		it.Freq--
	}
}

// Size approximates the in-memory footprint of the item, used by the memory watcher's byte accounting.
func (it *Item) Size() int {
	n := len(it.Key) + len(it.Value) + 32 // fixed overhead for metadata fields.
	for k, v := range it.Xattrs {
		n += len(k) + len(v)
	}
	return n
}
