package vbucket

import (
	"context"
	"testing"

	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashTable_SetGetRemove verifies the basic map contract across partitions.
func TestHashTable_SetGetRemove(t *testing.T) {
	ht := NewHashTable()
	it := item.New(0, []byte("k1"), []byte("v1"), 128)
	ht.Set(it)

	got, found := ht.Get([]byte("k1"))
	require.True(t, found)
	assert.Equal(t, it, got)

	ht.Remove([]byte("k1"))
	_, found = ht.Get([]byte("k1"))
	assert.False(t, found)
}

// TestHashTable_LiveCountExcludesDeleted verifies that Len counts tombstones but LiveCount does not.
func TestHashTable_LiveCountExcludesDeleted(t *testing.T) {
	ht := NewHashTable()
	live := item.New(0, []byte("live"), []byte("v"), 128)
	gone := item.New(0, []byte("gone"), []byte("v"), 128)
	ht.Set(live)
	ht.Set(gone)

	require.NoError(t, ht.DeleteItem(gone, true))

	assert.Equal(t, 2, ht.Len())
	assert.Equal(t, 1, ht.LiveCount())
}

// TestHashTable_NonResidentCount verifies NonResidentCount only counts live, ejected-value items.
func TestHashTable_NonResidentCount(t *testing.T) {
	ht := NewHashTable()
	resident := item.New(0, []byte("resident"), []byte("v"), 128)
	resident.MarkClean()
	nonResident := item.New(0, []byte("non-resident"), []byte("v"), 128)
	nonResident.MarkClean()
	deleted := item.New(0, []byte("deleted"), []byte("v"), 128)
	deleted.MarkClean()

	ht.Set(resident)
	ht.Set(nonResident)
	ht.Set(deleted)

	_, err := ht.EjectValue(nonResident)
	require.NoError(t, err)
	require.NoError(t, ht.DeleteItem(deleted, true))
	_, _ = ht.EjectValue(deleted) // already non-resident via Delete; should not double count.

	assert.Equal(t, 1, ht.NonResidentCount())
}

// TestHashTable_EjectValue_RejectsDirtyOrNonResident verifies the guard rails on EjectValue.
func TestHashTable_EjectValue_RejectsDirtyOrNonResident(t *testing.T) {
	ht := NewHashTable()
	dirty := item.New(0, []byte("dirty"), []byte("v"), 128) // New() leaves items dirty.
	ht.Set(dirty)

	_, err := ht.EjectValue(dirty)
	assert.ErrorIs(t, err, ErrItemDirty)

	dirty.MarkClean()
	_, err = ht.EjectValue(dirty)
	assert.NoError(t, err)

	_, err = ht.EjectValue(dirty)
	assert.ErrorIs(t, err, ErrItemNotResident)
}

// TestHashTable_Visit_StopsEarly verifies a true return from visit halts the walk.
func TestHashTable_Visit_StopsEarly(t *testing.T) {
	ht := NewHashTable()
	for i := range 64 {
		ht.Set(item.New(0, []byte{byte(i)}, []byte("v"), 128))
	}

	visited := 0
	err := ht.Visit(context.Background(), func(*item.Item, func()) bool {
		visited++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visited)
}

// TestHashTable_Visit_AllowsConcurrentDelete verifies deleting the current item mid-visit via the remove closure
// does not deadlock, panic, or skip siblings in the same partition (keys are snapshotted before the callback runs).
func TestHashTable_Visit_AllowsConcurrentDelete(t *testing.T) {
	ht := NewHashTable()
	keys := make([][]byte, 0, 32)
	for i := range 32 {
		k := []byte{byte(i)}
		keys = append(keys, k)
		ht.Set(item.New(0, k, []byte("v"), 128))
	}

	visited := 0
	err := ht.Visit(context.Background(), func(it *item.Item, remove func()) bool {
		visited++
		remove()
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 32, visited)
	assert.Equal(t, 0, ht.Len())
}
