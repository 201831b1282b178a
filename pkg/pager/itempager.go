// ItemPager orchestrates eviction across vBuckets when memory crosses the high watermark, decomposing a run into a
// parent pass plus one child Visitor task per vBucket (spec.md §4.3, §5).
package pager

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/scwright027/kv-engine/pkg/scheduler"
	"github.com/scwright027/kv-engine/pkg/vbucket"
)

// taskName is the "paging out items" task of the spec's task-naming convention.
const taskName = "paging out items"

// ItemPager is the scheduler task triggered by a high-watermark crossing. It has no persistent phase state across
// runs by design: every run recomputes its starting phase from the currently configured policy, which is exactly
// what guarantees "state from the previous algorithm must not leak" on a policy change (spec.md §4.3).
type ItemPager struct {
	bucket  *vbucket.Bucket
	flusher vbucket.Flusher
	clock   Clock
	mem     MemoryAccountant

	evictionRatio  float64
	agePercentile  int
	freqPercentile int

	mux    sync.Mutex
	policy Policy

	wake chan struct{}
	pool *scheduler.Pool[func()]
}

// NewItemPager constructs an ItemPager for bucket, reading and releasing bytes through mem (typically a
// *MemoryWatcher).
func NewItemPager(ctx context.Context, bucket *vbucket.Bucket, flusher vbucket.Flusher, clock Clock,
	mem MemoryAccountant, policy Policy, evictionRatio float64, agePercentile, freqPercentile int) *ItemPager {
	if clock == nil {
		clock = RealClock
	}
	ip := &ItemPager{
		bucket:         bucket,
		flusher:        flusher,
		clock:          clock,
		mem:            mem,
		evictionRatio:  evictionRatio,
		agePercentile:  agePercentile,
		freqPercentile: freqPercentile,
		policy:         policy,
		wake:           make(chan struct{}, 1),
	}
	ip.pool = scheduler.New(ctx, func(_ context.Context, task func()) { task() },
		scheduler.WithWorkers[func()](runtime.NumCPU()))
	return ip
}

// SetPolicy updates the configured eviction algorithm. The next Run recomputes its starting phase accordingly; no
// explicit re-init step is needed since Run never carries phase state between invocations.
func (ip *ItemPager) SetPolicy(p Policy) {
	ip.mux.Lock()
	defer ip.mux.Unlock()
	ip.policy = p
}

// CurrentPolicy returns the currently configured eviction policy.
func (ip *ItemPager) CurrentPolicy() Policy {
	ip.mux.Lock()
	defer ip.mux.Unlock()
	return ip.policy
}

// NextRunPhase reports the phase the next Run will start from, given the currently configured policy and bucket
// type. Exposed so policy-change tests (spec.md §8 scenario PolicyChange) can assert the re-initialised phase
// without needing a full run.
func (ip *ItemPager) NextRunPhase() Phase {
	ip.mux.Lock()
	defer ip.mux.Unlock()
	return InitialPhase(ip.bucket.Type, ip.policy)
}

// Wake schedules a run, coalescing with any run already pending (spec.md §4.5 "idempotent wake").
func (ip *ItemPager) Wake() {
	select {
	case ip.wake <- struct{}{}:
	default:
	}
}

// Start runs the IDLE state in the background: it blocks on Wake until ctx is cancelled, invoking Run on every
// wake. This is the "paging out items" task of spec.md §6.
func (ip *ItemPager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ip.wake:
				_ = ip.Run(ctx)
			}
		}
	}()
}

// Shutdown stops accepting new child tasks and waits for in-flight ones to finish.
func (ip *ItemPager) Shutdown() {
	ip.pool.Shutdown()
}

// Run executes SCHEDULING/DISPATCH/AWAITING/RE_EVALUATE until bytes used falls below the bucket's low watermark, or
// returns ErrPagerExhausted once every phase for this bucket type/policy has been tried.
func (ip *ItemPager) Run(ctx context.Context) error {
	policy := ip.CurrentPolicy()
	phase := InitialPhase(ip.bucket.Type, policy)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if ip.mem.Used() < ip.bucket.LowWat {
			return nil
		}

		ip.dispatch(ctx, phase, policy)

		if ip.mem.Used() < ip.bucket.LowWat {
			return nil
		}
		next, ok := NextPhase(ip.bucket.Type, policy, phase)
		if !ok {
			return ErrPagerExhausted
		}
		phase = next
	}
}

// dispatch enqueues one child Visitor task per online vBucket matching phase, and waits for every child to finish
// before returning (spec.md §5: "the parent observes their completion before advancing phase").
func (ip *ItemPager) dispatch(ctx context.Context, phase Phase, policy Policy) {
	targets := ip.vbucketsForPhase(phase)
	available := NewAvailableFlag()

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, vb := range targets {
		vb := vb
		ip.pool.Submit(func() {
			defer wg.Done()
			ip.runVisitor(ctx, vb, phase, policy, available)
		})
	}
	wg.Wait()
}

func (ip *ItemPager) runVisitor(ctx context.Context, vb *vbucket.VBucket, phase Phase, policy Policy, available *bool) {
	childTask := itemPagerChildTaskName(vb.ID)
	slog.Debug("Scheduler task starting.", "task", taskName, "child_task", childTask, "phase", phase, "policy", policy)
	cfg := Config{
		Phase:          phase,
		Policy:         policy,
		PagerType:      ItemPagerType,
		EvictionRatio:  ip.evictionRatio,
		AgePercentile:  ip.agePercentile,
		FreqPercentile: ip.freqPercentile,
	}
	v := New(cfg, ip.bucket.Type, vb, ip.flusher, ip.clock, ip.mem, available)
	_ = v.Run(ctx, ip.bucket.LowWat)

	ip.bucket.Stats.SetVBucketCounts(vb.ID, vb.State, vb.HashTable.LiveCount(), vb.HashTable.NonResidentCount())
	ip.bucket.Stats.IncValueEjections(v.Ejected)
	ip.bucket.Stats.IncExpired(vbucket.ExpiredPager, v.Expired)
	slog.Debug("Scheduler task finished.", "child_task", childTask, "visited", v.Visited, "ejected", v.Ejected,
		"expired", v.Expired)
}

// itemPagerChildTaskName is the "item pager on vb %d" task label spec.md §6 calls for.
func itemPagerChildTaskName(vbid uint16) string {
	return "item pager on vb " + strconv.FormatUint(uint64(vbid), 10)
}

func (ip *ItemPager) vbucketsForPhase(phase Phase) []*vbucket.VBucket {
	all := ip.bucket.VBucketsInState(vbucket.StateActive, vbucket.StatePending, vbucket.StateReplica)
	out := make([]*vbucket.VBucket, 0, len(all))
	for _, vb := range all {
		if phase.Matches(vb.State) {
			out = append(out, vb)
		}
	}
	return out
}
