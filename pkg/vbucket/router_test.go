package vbucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRouter_Deterministic verifies the same key always routes to the same vbid.
func TestRouter_Deterministic(t *testing.T) {
	r := NewRouter(16)
	key := []byte("stable-key")
	want := r.VBucketFor(key)
	for i := 0; i < 100; i++ {
		assert.Equal(t, want, r.VBucketFor(key))
	}
}

// TestRouter_StaysInRange verifies VBucketFor never returns an out-of-range vbid.
func TestRouter_StaysInRange(t *testing.T) {
	r := NewRouter(8)
	for i := 0; i < 256; i++ {
		vbid := r.VBucketFor([]byte{byte(i)})
		assert.Less(t, vbid, uint16(8))
	}
}

// TestRouter_ZeroVBucketsFallsBackToOne verifies NewRouter guards against a zero shard count.
func TestRouter_ZeroVBucketsFallsBackToOne(t *testing.T) {
	r := NewRouter(0)
	assert.Equal(t, uint16(0), r.VBucketFor([]byte("anything")))
}
