package vbucket

import (
	"context"
	"testing"

	"github.com/scwright027/kv-engine/pkg/checkpoint"
	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEagerFlusher_MarksDirtyItemsClean verifies Flush cleans every dirty item in the registered vBucket and counts
// them, leaving already-clean items untouched.
func TestEagerFlusher_MarksDirtyItemsClean(t *testing.T) {
	f := NewEagerFlusher()
	vb := NewVBucket(0, StateActive, checkpoint.NewRefCountManager())
	f.Register(vb)

	dirty := item.New(0, []byte("dirty"), []byte("v"), 128) // New() leaves items dirty.
	clean := item.New(0, []byte("clean"), []byte("v"), 128)
	clean.MarkClean()
	vb.HashTable.Set(dirty)
	vb.HashTable.Set(clean)

	more, count, err := f.Flush(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 1, count)
	assert.False(t, dirty.IsDirty())
}

// TestEagerFlusher_UnregisteredVBucket verifies Flush reports ErrVBucketNotFound for an unknown vbid.
func TestEagerFlusher_UnregisteredVBucket(t *testing.T) {
	f := NewEagerFlusher()
	_, _, err := f.Flush(context.Background(), 42)
	assert.ErrorIs(t, err, ErrVBucketNotFound)
}
