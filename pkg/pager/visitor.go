// Visitor implements the PagingVisitor: a stateful, per-vBucket scan that selects and acts on evictable or expired
// items, learning an eviction threshold from an ItemEviction histogram of the population it scans.
package pager

import (
	"context"

	"github.com/scwright027/kv-engine/pkg/histogram"
	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/scwright027/kv-engine/pkg/vbucket"
)

// LowWatermarkSlack is the fixed headroom a Visitor reclaims past the low watermark before stopping (spec.md §9,
// Open Question (b): "a fixed 2% headroom is reasonable").
const LowWatermarkSlack = 0.02

// histogramSampleCap bounds how many items the hifi_mfu learning pass inspects before computing thresholds, so a
// huge vBucket doesn't force a full extra scan just to learn a threshold (spec.md §4.2: "a bounded sample (or the
// full vBucket if small)").
const histogramSampleCap = 4096

// Config bundles the parameters a Visitor needs for one pass, mirroring the "immutable snapshot passed at task
// spawn" design in spec.md §9 — the ItemPager computes this once per dispatch and hands a copy to each child.
type Config struct {
	Phase          Phase
	Policy         Policy
	PagerType      Type
	EvictionRatio  float64 // fraction of memory above low watermark this pass must reclaim, in [0,1].
	AgePercentile  int     // item_eviction_age_percentage.
	FreqPercentile int     // item_eviction_freq_counter_age_threshold.
}

// MemoryAccountant is the subset of MemoryWatcher a Visitor needs: a live byte estimate to decide whether it has
// reclaimed enough, and a way to give back bytes it frees by ejecting or deleting a value.
type MemoryAccountant interface {
	Used() int64
	Release(n int64)
}

// Visitor walks one vBucket's hash table, evicting or expiring items per Config.
type Visitor struct {
	cfg        Config
	bucketType vbucket.Type
	vb         *vbucket.VBucket
	flusher    vbucket.Flusher
	clock      Clock
	mem        MemoryAccountant
	available  *boolFlag

	hist *histogram.ItemEviction

	Visited       int
	Ejected       int
	Expired       int
	FreqThreshold uint8
	AgeThreshold  uint8
}

// boolFlag is the "shared available flag" of spec.md §5: a vBucket deletion sets it false at any point, and every
// yield point checks it before continuing.
type boolFlag struct{ v *bool }

func (f boolFlag) Get() bool {
	if f.v == nil {
		return true
	}
	return *f.v
}

// NewAvailableFlag returns a flag initialised to available=true, and the flag itself so a caller can flip it false
// on vBucket deletion.
func NewAvailableFlag() *bool {
	v := true
	return &v
}

// New constructs a Visitor for one vBucket visit. mem may be nil (e.g. an expiry-only sweep that doesn't care
// about a byte target), in which case the ItemPager early-stop check and byte-release accounting are both skipped.
func New(cfg Config, bucketType vbucket.Type, vb *vbucket.VBucket, flusher vbucket.Flusher, clock Clock,
	mem MemoryAccountant, available *bool) *Visitor {
	if clock == nil {
		clock = RealClock
	}
	return &Visitor{
		cfg:        cfg,
		bucketType: bucketType,
		vb:         vb,
		flusher:    flusher,
		clock:      clock,
		mem:        mem,
		available:  &boolFlag{v: available},
		hist:       histogram.New(),
	}
}

// Run executes the visit against lowWatermark, the byte threshold below which an ITEM_PAGER run may stop early.
func (v *Visitor) Run(ctx context.Context, lowWatermark int64) error {
	if !v.available.Get() {
		return ErrVBucketGone
	}

	if v.cfg.PagerType == ItemPagerType && v.cfg.Policy == HifiMFU {
		if err := v.learnThresholds(ctx); err != nil {
			return err
		}
	}

	target := int64(float64(lowWatermark) * (1 - v.cfg.EvictionRatio*LowWatermarkSlack))

	err := v.vb.HashTable.Visit(ctx, func(it *item.Item, remove func()) bool {
		if !v.available.Get() {
			return true
		}
		v.Visited++
		v.considerItem(it, remove)
		if v.cfg.PagerType == ItemPagerType && v.mem != nil && v.mem.Used() < target {
			return true
		}
		return false
	})
	if !v.available.Get() {
		return ErrVBucketGone
	}
	return err
}

// learnThresholds runs the hifi_mfu learning pass: it samples up to histogramSampleCap eligible items' (freq, age)
// into the histogram, then computes the thresholds that the eviction pass in Run will apply.
func (v *Visitor) learnThresholds(ctx context.Context) error {
	sampled := 0
	err := v.vb.HashTable.Visit(ctx, func(it *item.Item, _ func()) bool {
		if !v.available.Get() || sampled >= histogramSampleCap {
			return true
		}
		if v.isEligible(it) {
			v.hist.Add(it.Freq, it.Age)
			sampled++
		}
		return false
	})
	v.FreqThreshold, v.AgeThreshold = v.hist.Thresholds(v.cfg.FreqPercentile, v.cfg.AgePercentile)
	return err
}

// isEligible implements spec.md §4.2 step 1: residency (expiry is checked regardless of residency), dirty/pinned
// state, and the phase/state filter, including the "replicas only eligible in REPLICA_ONLY phase, and only on
// persistent buckets" rule.
func (v *Visitor) isEligible(it *item.Item) bool {
	if v.bucketType.IsPersistent() && it.IsDirty() {
		return false
	}
	if v.vb.Checkpoint != nil && v.vb.Checkpoint.IsPinned(v.vb.ID, it.Key) {
		return false
	}
	if v.vb.State == vbucket.StateReplica {
		if v.bucketType.IsEphemeral() {
			return false // ephemeral replicas are never paged.
		}
		if v.cfg.Phase != PhaseReplicaOnly {
			return false
		}
	}
	if !v.cfg.Phase.Matches(v.vb.State) {
		return false
	}
	if v.cfg.PagerType == ExpiryPagerType {
		return true // expiry considers non-resident items too.
	}
	return it.IsResident()
}

// considerItem applies the expiry check first, under either policy (spec.md §9 Open Question (a)): an ITEM_PAGER
// run expires only eligible items, an EXPIRY_PAGER run expires every expired item it visits. Then, for ITEM_PAGER
// runs, it applies the eviction check. Already-deleted tombstones are skipped. remove deletes it from its partition
// in place; it must be used instead of HashTable.Remove since it runs under the partition lock HashTable.Visit
// already holds.
func (v *Visitor) considerItem(it *item.Item, remove func()) {
	if it.IsDeleted() {
		return
	}
	now := v.clock.Now()
	eligible := v.isEligible(it)

	if it.HasExpired(now) && (eligible || v.cfg.PagerType == ExpiryPagerType) {
		v.expireItem(it, remove)
		return
	}
	if v.cfg.PagerType != ItemPagerType || !eligible {
		return
	}

	switch v.cfg.Policy {
	case LRU2Bit:
		v.considerLRU2Bit(it, remove)
	case HifiMFU:
		v.considerHifiMFU(it, remove)
	}
}

func (v *Visitor) expireItem(it *item.Item, remove func()) {
	before := it.Size()
	_ = v.vb.HashTable.DeleteItem(it, true /* preserveSystemXattrs */)
	v.releaseFreed(before - it.Size())
	v.destroyIfEphemeral(it, remove)
	v.Expired++
}

func (v *Visitor) considerLRU2Bit(it *item.Item, remove func()) {
	if it.Age >= item.MaxAge {
		v.evict(it, remove)
		return
	}
	it.Age++
}

func (v *Visitor) considerHifiMFU(it *item.Item, remove func()) {
	if it.Freq <= v.FreqThreshold && (it.Age >= v.AgeThreshold || it.Freq < histogram.InitialFreqCount) {
		v.evict(it, remove)
		return
	}
	it.DecayFreq()
}

// evict applies spec.md §4.2 step 4: eject the value on persistent buckets (keeping metadata), delete outright on
// ephemeral-auto-delete, or do nothing on ephemeral-fail-new-data (which relies only on expiry).
func (v *Visitor) evict(it *item.Item, remove func()) {
	switch {
	case v.bucketType.IsPersistent():
		if freed, err := v.vb.HashTable.EjectValue(it); err == nil {
			v.releaseFreed(freed)
			v.Ejected++
		}
	case v.bucketType == vbucket.TypeEphemeralAutoDelete:
		before := it.Size()
		_ = v.vb.HashTable.DeleteItem(it, false)
		v.releaseFreed(before - it.Size())
		remove()
		v.Ejected++
	default: // ephemeral-fail-new-data: no eviction, rely only on expiry.
	}
}

// releaseFreed gives freed bytes back to the memory accountant, if one is configured.
func (v *Visitor) releaseFreed(freed int) {
	if v.mem != nil && freed > 0 {
		v.mem.Release(int64(freed))
	}
}

// destroyIfEphemeral removes the item's metadata entirely on ephemeral buckets, which have no notion of a
// metadata-only tombstone kept for CAS/replication purposes.
func (v *Visitor) destroyIfEphemeral(it *item.Item, remove func()) {
	if v.bucketType.IsEphemeral() {
		remove()
	}
}
