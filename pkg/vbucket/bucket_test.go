package vbucket

import (
	"testing"

	"github.com/scwright027/kv-engine/pkg/checkpoint"
	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, typ Type) *Bucket {
	t.Helper()
	flusher := NewEagerFlusher()
	b := New(t.Name(), typ, 1<<20, 1<<19, 1<<19+1<<18, flusher)
	return b
}

// TestBucket_NumItems_ExcludesTombstones verifies NumItems sums LiveCount, not raw Len, across every vBucket.
func TestBucket_NumItems_ExcludesTombstones(t *testing.T) {
	b := newTestBucket(t, TypePersistentValueOnly)
	cm := checkpoint.NewRefCountManager()
	vb0 := NewVBucket(0, StateActive, cm)
	vb1 := NewVBucket(1, StateReplica, cm)
	b.AddVBucket(vb0)
	b.AddVBucket(vb1)

	vb0.HashTable.Set(item.New(0, []byte("a"), []byte("v"), 128))
	gone := item.New(0, []byte("b"), []byte("v"), 128)
	vb0.HashTable.Set(gone)
	require.NoError(t, vb0.HashTable.DeleteItem(gone, true))
	vb1.HashTable.Set(item.New(1, []byte("c"), []byte("v"), 128))

	assert.Equal(t, 2, b.NumItems())
}

// TestBucket_VBucketsInState_OrderedAndFiltered verifies ascending vbid order, state filtering, and dead exclusion.
func TestBucket_VBucketsInState_OrderedAndFiltered(t *testing.T) {
	b := newTestBucket(t, TypePersistentValueOnly)
	cm := checkpoint.NewRefCountManager()
	for id, st := range map[uint16]State{3: StateActive, 1: StateReplica, 2: StateActive, 4: StateDead} {
		b.AddVBucket(NewVBucket(id, st, cm))
	}

	active := b.VBucketsInState(StateActive)
	require.Len(t, active, 2)
	assert.Equal(t, uint16(2), active[0].ID)
	assert.Equal(t, uint16(3), active[1].ID)

	both := b.VBucketsInState(StateActive, StateReplica)
	require.Len(t, both, 3)
	assert.Equal(t, uint16(1), both[0].ID)

	dead := b.VBucketsInState(StateDead)
	assert.Empty(t, dead, "dead vBuckets are never returned even when explicitly requested")
}

// TestBucket_PublishStats_DoesNotPanic verifies PublishStats walks every vBucket without requiring any item state.
func TestBucket_PublishStats_DoesNotPanic(t *testing.T) {
	b := newTestBucket(t, TypeEphemeralAutoDelete)
	cm := checkpoint.NewRefCountManager()
	vb := NewVBucket(0, StateActive, cm)
	b.AddVBucket(vb)
	vb.HashTable.Set(item.New(0, []byte("k"), []byte("v"), 128))

	assert.NotPanics(t, b.PublishStats)
}

// TestType_String verifies every Type has a distinct, non-"unknown" label.
func TestType_String(t *testing.T) {
	seen := map[string]bool{}
	for _, typ := range []Type{
		TypePersistentValueOnly, TypePersistentFullEviction, TypeEphemeralAutoDelete, TypeEphemeralFailNewData,
	} {
		s := typ.String()
		assert.NotEqual(t, "unknown", s)
		assert.False(t, seen[s], "duplicate label %q", s)
		seen[s] = true
	}
}

// TestType_IsPersistentIsEphemeral verifies the two predicate helpers partition the four types correctly.
func TestType_IsPersistentIsEphemeral(t *testing.T) {
	assert.True(t, TypePersistentValueOnly.IsPersistent())
	assert.True(t, TypePersistentFullEviction.IsPersistent())
	assert.False(t, TypeEphemeralAutoDelete.IsPersistent())

	assert.True(t, TypeEphemeralAutoDelete.IsEphemeral())
	assert.True(t, TypeEphemeralFailNewData.IsEphemeral())
	assert.False(t, TypePersistentValueOnly.IsEphemeral())
}
