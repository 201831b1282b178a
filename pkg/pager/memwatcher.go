// MemoryWatcher tracks a running estimate of resident bytes used against a bucket's quota, rejecting allocations
// that would cross it and waking the configured pager on watermark crossings (spec.md §4.5).
package pager

import (
	"sync"
	"sync/atomic"
)

// Waker is the subset of ItemPager/ExpiryPager's interface MemoryWatcher needs: something it can nudge into
// running without caring which concrete pager is behind it (ephemeral-fail-new-data wires an ExpiryPager here
// instead of an ItemPager, since it has no item pager at all).
type Waker interface {
	Wake()
}

// MemoryWatcher observes allocation and release calls against maxSize/highWat. The byte counter takes no lock: it
// is a single atomic.Int64 (only the configured pager is guarded by a mutex), matching spec.md §5's "stats counters are atomic" and "memory-used counters
// are eventually consistent; decisions are based on a snapshot read."
type MemoryWatcher struct {
	used    atomic.Int64
	maxSize int64
	highWat int64

	mux   sync.RWMutex
	pager Waker
}

// NewMemoryWatcher constructs a MemoryWatcher against the given quota and high watermark, waking pager whenever an
// allocation crosses highWat (or is rejected for crossing maxSize). pager may be nil and set later via SetWaker,
// which is useful when the pager itself needs a constructed MemoryWatcher first (a common wiring-order chicken-
// and-egg at startup).
func NewMemoryWatcher(maxSize, highWat int64, pager Waker) *MemoryWatcher {
	return &MemoryWatcher{maxSize: maxSize, highWat: highWat, pager: pager}
}

// SetWaker (re)configures which pager is woken on watermark crossings.
func (mw *MemoryWatcher) SetWaker(pager Waker) {
	mw.mux.Lock()
	defer mw.mux.Unlock()
	mw.pager = pager
}

// Used returns the current byte estimate. It is part of the MemoryAccountant that Visitor and ItemPager take.
func (mw *MemoryWatcher) Used() int64 { return mw.used.Load() }

// Reserve accounts for n additional bytes. It fails with ErrQuotaExceeded (and wakes the pager) without changing
// the counter if the reservation would cross maxSize; otherwise it commits the reservation and, if the result
// crosses highWat, wakes the pager regardless (spec.md §4.5: "When used > mem_high_wat it wakes the pager
// regardless of allocation outcome").
func (mw *MemoryWatcher) Reserve(n int64) error {
	for {
		cur := mw.used.Load()
		next := cur + n
		if next > mw.maxSize {
			mw.wake()
			return ErrQuotaExceeded
		}
		if mw.used.CompareAndSwap(cur, next) {
			if next > mw.highWat {
				mw.wake()
			}
			return nil
		}
	}
}

// Release gives back n bytes previously reserved, e.g. after a value is ejected or an item deleted.
func (mw *MemoryWatcher) Release(n int64) {
	if n <= 0 {
		return
	}
	mw.used.Add(-n)
}

func (mw *MemoryWatcher) wake() {
	mw.mux.RLock()
	p := mw.pager
	mw.mux.RUnlock()
	if p != nil {
		p.Wake()
	}
}

var _ Waker = (*ItemPager)(nil)
var _ Waker = (*ExpiryPager)(nil)
var _ MemoryAccountant = (*MemoryWatcher)(nil)
