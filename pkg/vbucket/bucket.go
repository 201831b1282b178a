package vbucket

import (
	"slices"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/scwright027/kv-engine/pkg/utils"
)

// Type is one of the four bucket flavours the spec distinguishes.
type Type uint8

const (
	// TypePersistentValueOnly evicts values but keeps metadata; relies on a Flusher and disk residency.
	TypePersistentValueOnly Type = iota
	// TypePersistentFullEviction behaves like TypePersistentValueOnly for this module's purposes: both eject
	// values rather than delete metadata. Full eviction additionally drops metadata for non-resident keys on the
	// real storage engine's disk index, which is outside this module's scope (see DESIGN.md).
	TypePersistentFullEviction
	// TypeEphemeralAutoDelete deletes items outright on eviction; replicas are never paged.
	TypeEphemeralAutoDelete
	// TypeEphemeralFailNewData never evicts; the ExpiryPager is the only reclamation mechanism.
	TypeEphemeralFailNewData
)

// IsPersistent returns true for the two persistent bucket flavours.
func (t Type) IsPersistent() bool {
	return t == TypePersistentValueOnly || t == TypePersistentFullEviction
}

// IsEphemeral returns true for the two ephemeral bucket flavours.
func (t Type) IsEphemeral() bool {
	return t == TypeEphemeralAutoDelete || t == TypeEphemeralFailNewData
}

func (t Type) String() string {
	switch t {
	case TypePersistentValueOnly:
		return "persistent_value_only"
	case TypePersistentFullEviction:
		return "persistent_full_eviction"
	case TypeEphemeralAutoDelete:
		return "ephemeral_auto_delete"
	case TypeEphemeralFailNewData:
		return "ephemeral_fail_new_data"
	default:
		return "unknown"
	}
}

// Stats holds a bucket's aggregate Prometheus-backed counters and gauges. Every Bucket gets its own metric vector
// entry keyed by bucket name, matching the labelled-counter style pkg/utils/invariant.go and
// pkg/storage/block_cache.go use elsewhere in the pack.
type Stats struct {
	name string

	bytesUsed      *prometheus.GaugeVec
	memLowWat      *prometheus.GaugeVec
	memHighWat     *prometheus.GaugeVec
	numItems       *prometheus.GaugeVec
	numNonResident *prometheus.GaugeVec
	valueEjections *prometheus.CounterVec
	expired        *prometheus.CounterVec // labelled by source: pager, access, compactor.
}

var (
	metricsOnce sync.Once

	bytesUsedMetric      *prometheus.GaugeVec
	memLowWatMetric      *prometheus.GaugeVec
	memHighWatMetric     *prometheus.GaugeVec
	numItemsMetric       *prometheus.GaugeVec
	numNonResidentMetric *prometheus.GaugeVec
	valueEjectionsMetric *prometheus.CounterVec
	expiredMetric        *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		bytesUsedMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucket_bytes_used", Help: "Estimated resident bytes used by a bucket.",
		}, []string{"bucket"})
		memLowWatMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucket_mem_low_watermark_bytes", Help: "Configured low watermark.",
		}, []string{"bucket"})
		memHighWatMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucket_mem_high_watermark_bytes", Help: "Configured high watermark.",
		}, []string{"bucket"})
		numItemsMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucket_vbucket_num_items", Help: "Number of items in a vBucket.",
		}, []string{"bucket", "vbid", "state"})
		numNonResidentMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bucket_vbucket_num_non_resident", Help: "Number of non-resident items in a vBucket.",
		}, []string{"bucket", "vbid", "state"})
		valueEjectionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bucket_value_ejections_total", Help: "Total number of value ejections performed by the pager.",
		}, []string{"bucket"})
		expiredMetric = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bucket_expired_total", Help: "Total number of items removed due to TTL expiry, by source.",
		}, []string{"bucket", "source"})
	})
}

// NewStats returns a Stats view scoped to bucket name.
func NewStats(name string) *Stats {
	initMetrics()
	return &Stats{
		name:           name,
		bytesUsed:      bytesUsedMetric,
		memLowWat:      memLowWatMetric,
		memHighWat:     memHighWatMetric,
		numItems:       numItemsMetric,
		numNonResident: numNonResidentMetric,
		valueEjections: valueEjectionsMetric,
		expired:        expiredMetric,
	}
}

// SetBytesUsed publishes the current resident-byte estimate.
func (s *Stats) SetBytesUsed(n int64) { s.bytesUsed.WithLabelValues(s.name).Set(float64(n)) }

// SetWatermarks publishes the configured low/high watermarks.
func (s *Stats) SetWatermarks(low, high int64) {
	s.memLowWat.WithLabelValues(s.name).Set(float64(low))
	s.memHighWat.WithLabelValues(s.name).Set(float64(high))
}

// SetVBucketCounts publishes per-vBucket item/non-resident counts.
func (s *Stats) SetVBucketCounts(vbid uint16, state State, numItems, numNonResident int) {
	labels := []string{s.name, vbidLabel(vbid), state.String()}
	s.numItems.WithLabelValues(labels...).Set(float64(numItems))
	s.numNonResident.WithLabelValues(labels...).Set(float64(numNonResident))
}

// IncValueEjections increments the value-ejection counter by delta.
func (s *Stats) IncValueEjections(delta int) {
	if delta <= 0 {
		return
	}
	s.valueEjections.WithLabelValues(s.name).Add(float64(delta))
}

// ExpirySource identifies why an item was removed for TTL.
type ExpirySource string

const (
	ExpiredPager     ExpirySource = "pager"
	ExpiredAccess    ExpirySource = "access"
	ExpiredCompactor ExpirySource = "compactor"
)

// IncExpired increments the expiry counter for source by delta.
func (s *Stats) IncExpired(source ExpirySource, delta int) {
	if delta <= 0 {
		return
	}
	s.expired.WithLabelValues(s.name, string(source)).Add(float64(delta))
}

func vbidLabel(vbid uint16) string {
	return strconv.FormatUint(uint64(vbid), 10)
}

// Bucket owns a set of vBuckets, its type, watermarks, and aggregate stats.
type Bucket struct {
	Name    string
	Type    Type
	MaxSize int64
	LowWat  int64
	HighWat int64
	Stats   *Stats
	Flusher Flusher

	mux      sync.RWMutex
	vbuckets map[uint16]*VBucket
}

// New constructs a Bucket. Watermarks must satisfy lowWat < highWat < maxSize; callers are expected to validate
// configuration before calling New (this module does not second-guess operator-chosen quota sizes, per spec.md's
// non-goals).
func New(name string, typ Type, maxSize, lowWat, highWat int64, flusher Flusher) *Bucket {
	b := &Bucket{
		Name:     name,
		Type:     typ,
		MaxSize:  maxSize,
		LowWat:   lowWat,
		HighWat:  highWat,
		Stats:    NewStats(name),
		Flusher:  flusher,
		vbuckets: make(map[uint16]*VBucket),
	}
	b.Stats.SetWatermarks(lowWat, highWat)
	return b
}

// AddVBucket registers vb with the bucket.
func (b *Bucket) AddVBucket(vb *VBucket) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.vbuckets[vb.ID] = vb
}

// VBucket returns the vBucket for vbid, or nil if not present.
func (b *Bucket) VBucket(vbid uint16) *VBucket {
	b.mux.RLock()
	defer b.mux.RUnlock()
	return b.vbuckets[vbid]
}

// VBucketsInState returns, in ascending vbid order, every online vBucket whose state is one of the given states.
func (b *Bucket) VBucketsInState(states ...State) []*VBucket {
	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	b.mux.RLock()
	defer b.mux.RUnlock()

	ids := make([]uint16, 0, len(b.vbuckets))
	for id, vb := range b.vbuckets {
		if vb.State != StateDead && want[vb.State] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]*VBucket, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.vbuckets[id])
	}
	return out
}

// NumItems sums live item counts (excluding tombstoned deletions) across every registered vBucket.
func (b *Bucket) NumItems() int {
	b.mux.RLock()
	defer b.mux.RUnlock()
	n := 0
	for _, vb := range b.vbuckets {
		n += vb.HashTable.LiveCount()
	}
	return n
}

// PublishStats recomputes and publishes each vBucket's num_items/num_non_resident gauges.
func (b *Bucket) PublishStats() {
	b.mux.RLock()
	defer b.mux.RUnlock()
	for id, vb := range b.vbuckets {
		b.Stats.SetVBucketCounts(id, vb.State, vb.HashTable.LiveCount(), vb.HashTable.NonResidentCount())
	}
}

// RaiseConfigInvariant is a thin wrapper so vbucket-level bugs surface through the shared invariant machinery
// without every call site importing pkg/utils directly.
func RaiseConfigInvariant(kind, msg string, args ...any) {
	utils.RaiseInvariant("vbucket", kind, msg, args...)
}
