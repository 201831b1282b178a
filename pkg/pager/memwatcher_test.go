package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWaker struct{ woken int }

func (w *fakeWaker) Wake() { w.woken++ }

// TestMemoryWatcher_ReserveRelease verifies basic accounting round-trips.
func TestMemoryWatcher_ReserveRelease(t *testing.T) {
	mw := NewMemoryWatcher(1000, 900, nil)
	require.NoError(t, mw.Reserve(500))
	assert.Equal(t, int64(500), mw.Used())

	mw.Release(200)
	assert.Equal(t, int64(300), mw.Used())
}

// TestMemoryWatcher_ReserveRejectsOverQuota verifies Reserve refuses an allocation that would cross max_size and
// leaves the counter unchanged, while still waking the pager.
func TestMemoryWatcher_ReserveRejectsOverQuota(t *testing.T) {
	w := &fakeWaker{}
	mw := NewMemoryWatcher(1000, 900, w)
	require.NoError(t, mw.Reserve(950))
	assert.Equal(t, 1, w.woken, "crossing high_wat must wake the pager")

	err := mw.Reserve(100)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(950), mw.Used(), "a rejected reservation must not change the counter")
	assert.Equal(t, 2, w.woken, "a rejected allocation must still wake the pager")
}

// TestMemoryWatcher_WakesOnHighWatermarkCrossing verifies the pager is woken exactly when used crosses high_wat, not
// before.
func TestMemoryWatcher_WakesOnHighWatermarkCrossing(t *testing.T) {
	w := &fakeWaker{}
	mw := NewMemoryWatcher(1000, 500, w)

	require.NoError(t, mw.Reserve(400))
	assert.Equal(t, 0, w.woken, "staying under high_wat must not wake the pager")

	require.NoError(t, mw.Reserve(200))
	assert.Equal(t, 1, w.woken, "crossing high_wat must wake the pager")
}

// TestMemoryWatcher_ReleaseIgnoresNonPositive verifies Release is a no-op for zero/negative n.
func TestMemoryWatcher_ReleaseIgnoresNonPositive(t *testing.T) {
	mw := NewMemoryWatcher(1000, 900, nil)
	require.NoError(t, mw.Reserve(100))
	mw.Release(0)
	mw.Release(-5)
	assert.Equal(t, int64(100), mw.Used())
}

// TestMemoryWatcher_SetWaker verifies late-bound wakers take effect for subsequent watermark crossings.
func TestMemoryWatcher_SetWaker(t *testing.T) {
	mw := NewMemoryWatcher(1000, 100, nil)
	require.NoError(t, mw.Reserve(200), "no waker configured yet must not panic")

	w := &fakeWaker{}
	mw.SetWaker(w)
	require.NoError(t, mw.Reserve(1))
	assert.Equal(t, 1, w.woken)
}

// TestMemoryWatcher_NilWakerIsSafeWithoutQuotaBreach verifies a nil waker never panics when a reservation never
// crosses high_wat.
func TestMemoryWatcher_NilWakerIsSafeWithoutQuotaBreach(t *testing.T) {
	mw := NewMemoryWatcher(1000, 900, nil)
	assert.NotPanics(t, func() {
		require.NoError(t, mw.Reserve(10))
	})
}
