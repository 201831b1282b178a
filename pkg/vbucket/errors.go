package vbucket

import "errors"

var (
	// ErrItemDirty is returned by EjectValue when the item has not yet been flushed to persistent storage.
	ErrItemDirty = errors.New("vbucket: item is dirty")
	// ErrItemNotResident is returned by EjectValue when the item's value is already non-resident.
	ErrItemNotResident = errors.New("vbucket: item is not resident")
	// ErrVBucketNotFound is returned when a vbid has no corresponding vBucket in a Bucket.
	ErrVBucketNotFound = errors.New("vbucket: not found")
)
