// ExpiryPager periodically sweeps every vBucket for TTL-expired items. It is grounded directly on
// pkg/cache/hcc.go's reaper goroutine: a ticker-driven loop, context-cancelled, re-entrant enable/disable that
// re-schedules under the current period on re-enable. Unlike the reaper (which clears one time bucket per tick),
// every tick here dispatches a full expiry-mode Visitor pass per vBucket.
package pager

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/scwright027/kv-engine/pkg/scheduler"
	"github.com/scwright027/kv-engine/pkg/vbucket"
)

// expiryTaskName is the "paging expired items" task of the spec's task-naming convention.
const expiryTaskName = "paging expired items"

// ExpiryPager is the "paging expired items" task of spec.md §6. For ephemeral-fail-new-data buckets it is the only
// memory-reclamation mechanism (spec.md §4.4): there is no ItemPager to fall back on.
type ExpiryPager struct {
	bucket  *vbucket.Bucket
	flusher vbucket.Flusher
	clock   Clock
	period  time.Duration
	jitter  time.Duration

	mux     sync.Mutex
	enabled bool
	cancel  context.CancelFunc
	wake    chan struct{}

	pool *scheduler.Pool[func()]
}

// NewExpiryPager constructs a disabled ExpiryPager; call Enable to start its ticker loop.
func NewExpiryPager(ctx context.Context, bucket *vbucket.Bucket, flusher vbucket.Flusher, clock Clock,
	period, jitter time.Duration) *ExpiryPager {
	if clock == nil {
		clock = RealClock
	}
	ep := &ExpiryPager{
		bucket:  bucket,
		flusher: flusher,
		clock:   clock,
		period:  period,
		jitter:  jitter,
		wake:    make(chan struct{}, 1),
	}
	ep.pool = scheduler.New(ctx, func(_ context.Context, task func()) { task() },
		scheduler.WithWorkers[func()](runtime.NumCPU()))
	return ep
}

// Enable starts the ticker loop if not already running. Re-enabling after Disable re-schedules with the current
// period, matching hcc.go's reaper semantics of "no missed-tick catch-up beyond what the ticker itself coalesces."
func (ep *ExpiryPager) Enable(ctx context.Context) {
	ep.mux.Lock()
	defer ep.mux.Unlock()
	if ep.enabled {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ep.cancel = cancel
	ep.enabled = true
	slog.Debug("Scheduler task starting.", "task", expiryTaskName, "period", ep.period, "jitter", ep.jitter)
	go ep.loop(loopCtx)
}

// Disable stops the ticker loop. Safe to call when already disabled.
func (ep *ExpiryPager) Disable() {
	ep.mux.Lock()
	defer ep.mux.Unlock()
	if !ep.enabled {
		return
	}
	ep.cancel()
	ep.enabled = false
}

// Wake triggers an immediate sweep without waiting for the next tick, coalescing with any pending wake.
func (ep *ExpiryPager) Wake() {
	select {
	case ep.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops accepting child tasks and waits for in-flight ones to finish.
func (ep *ExpiryPager) Shutdown() {
	ep.pool.Shutdown()
}

func (ep *ExpiryPager) loop(ctx context.Context) {
	ticker := time.NewTicker(ep.nextInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ep.wake:
			ep.Sweep(ctx)
		case <-ticker.C:
			ep.Sweep(ctx)
			ticker.Reset(ep.nextInterval())
		}
	}
}

func (ep *ExpiryPager) nextInterval() time.Duration {
	if ep.jitter <= 0 {
		return ep.period
	}
	return ep.period + rand.N(ep.jitter)
}

// Sweep dispatches one expiry-mode Visitor per online vBucket and waits for all of them to finish. It is exported
// so tests can trigger a synchronous sweep directly; the memory watcher goes through Wake instead.
func (ep *ExpiryPager) Sweep(ctx context.Context) {
	targets := ep.bucket.VBucketsInState(vbucket.StateActive, vbucket.StatePending, vbucket.StateReplica)
	available := NewAvailableFlag()

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, vb := range targets {
		vb := vb
		ep.pool.Submit(func() {
			defer wg.Done()
			ep.runVisitor(ctx, vb, available)
		})
	}
	wg.Wait()
}

func (ep *ExpiryPager) runVisitor(ctx context.Context, vb *vbucket.VBucket, available *bool) {
	childTask := expiryPagerChildTaskName(vb.ID)
	slog.Debug("Scheduler task starting.", "task", expiryTaskName, "child_task", childTask)
	cfg := Config{
		Phase:     PhasePagingUnreferenced, // expiry considers every non-dead state; phase only gates eligibility.
		PagerType: ExpiryPagerType,
	}
	v := New(cfg, ep.bucket.Type, vb, ep.flusher, ep.clock, nil, available)
	_ = v.Run(ctx, 0)

	ep.bucket.Stats.SetVBucketCounts(vb.ID, vb.State, vb.HashTable.LiveCount(), vb.HashTable.NonResidentCount())
	ep.bucket.Stats.IncExpired(vbucket.ExpiredPager, v.Expired)
	slog.Debug("Scheduler task finished.", "child_task", childTask, "visited", v.Visited, "expired", v.Expired)
}

// expiryPagerChildTaskName is the "expired item remover on vb %d" task label spec.md §6 calls for.
func expiryPagerChildTaskName(vbid uint16) string {
	return "expired item remover on vb " + strconv.FormatUint(uint64(vbid), 10)
}
