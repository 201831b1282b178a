package vbucket

import "github.com/scwright027/kv-engine/pkg/checkpoint"

// VBucket is a partition of the keyspace: a hash table of items plus lifecycle state.
type VBucket struct {
	ID         uint16
	State      State
	HashTable  *HashTable
	Checkpoint checkpoint.Manager
}

// NewVBucket constructs an empty vBucket in the given state.
func NewVBucket(id uint16, state State, cm checkpoint.Manager) *VBucket {
	return &VBucket{ID: id, State: state, HashTable: NewHashTable(), Checkpoint: cm}
}
