package pager

import "errors"

var (
	// ErrQuotaExceeded is returned by MemoryWatcher.Reserve when an allocation would cross max_size.
	ErrQuotaExceeded = errors.New("pager: quota exceeded")
	// ErrVBucketGone is the cancellation outcome of a Visitor whose vBucket disappeared mid-visit: Visitor.Run
	// returns it, and ItemPager and ExpiryPager discard it, so it never reaches their callers.
	ErrVBucketGone = errors.New("pager: vbucket gone")
	// ErrPagerExhausted means a full pass across all phases did not bring memory below the low watermark.
	ErrPagerExhausted = errors.New("pager: exhausted all phases above low watermark")
)
