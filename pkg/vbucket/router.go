// Router maps a key to a vbid. Grounded on pkg/cache/shard.go's ShardedCache: that type hashes a generic key with
// xxhash and reduces modulo the shard count; Router does the same, specialised to []byte keys and vbid routing
// (the job a real client-facing proxy or `vbucket_map` typically does ahead of this engine).
package vbucket

import "github.com/cespare/xxhash/v2"

// Router picks a vbid for a given key out of numVBuckets.
type Router struct {
	numVBuckets uint16
}

// NewRouter constructs a Router over numVBuckets vBuckets (must be > 0).
func NewRouter(numVBuckets uint16) *Router {
	if numVBuckets == 0 {
		numVBuckets = 1
	}
	return &Router{numVBuckets: numVBuckets}
}

// VBucketFor returns the vbid that owns key.
func (r *Router) VBucketFor(key []byte) uint16 {
	return uint16(xxhash.Sum64(key) % uint64(r.numVBuckets))
}
