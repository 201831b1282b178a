// Package histogram implements the ItemEviction histogram: a fixed-range frequency/age summariser that the
// PagingVisitor uses to learn a defensible eviction threshold from the population it has scanned so far.
//
// There is no direct teacher analogue for a bounded-range counting histogram; this is modelled on the bucketed
// counting style used throughout the pack (e.g. pkg/cache/hcc.go buckets entries by expiry time to batch-clear them)
// generalised to fixed integer ranges instead of time buckets.
package histogram

import "github.com/scwright027/kv-engine/pkg/item"

// InitialFreqCount is the frequency value assigned to every freshly inserted item: high enough that a single
// unreferenced decrement cycle cannot immediately evict a new item, but below the saturating maximum.
const InitialFreqCount uint8 = 128

// ItemEviction summarises the (frequency, age) distribution of a scanned population.
//
// It is not safe for concurrent use; a PagingVisitor owns one exclusively (spec.md §5: "the histogram inside a
// PagingVisitor is owned exclusively by that task").
type ItemEviction struct {
	freq [int(item.MaxFreq) + 1]int
	age  [int(item.MaxAge) + 1]int

	freqCount int
	ageCount  int
}

// New returns an empty ItemEviction histogram.
func New() *ItemEviction {
	return &ItemEviction{}
}

// Add inserts one (freq, age) observation. O(1).
func (h *ItemEviction) Add(freq, age uint8) {
	h.freq[freq]++
	h.freqCount++
	h.age[age]++
	h.ageCount++
}

// Reset clears all counts.
func (h *ItemEviction) Reset() {
	*h = ItemEviction{}
}

// Thresholds returns the largest frequency value at or below freqPercentile of the scanned population, and
// likewise the largest age value at or below agePercentile. Percentiles are clamped to [0,100]. An empty histogram
// returns the minimum representable value for both (0, 0).
//
// The frequency threshold is guaranteed to be strictly less than item.MaxFreq whenever any entry below the maximum
// was observed — returning the saturating maximum would mark every untouched item evictable.
func (h *ItemEviction) Thresholds(freqPercentile, agePercentile int) (freqThreshold, ageThreshold uint8) {
	return percentileValue(h.freq[:], h.freqCount, freqPercentile), percentileValue(h.age[:], h.ageCount, agePercentile)
}

// percentileValue walks counts from the low end, returning the smallest index whose cumulative mass reaches
// percentile% of total. If total is zero, returns 0 (the minimum representable value).
func percentileValue(counts []int, total, percentile int) uint8 {
	if total == 0 {
		return 0
	}
	if percentile < 0 {
		percentile = 0
	}
	if percentile > 100 {
		percentile = 100
	}

	// target is the cumulative count we must reach before stopping; using a strict floor (rather than rounding up)
	// keeps the threshold from drifting to the top bucket when the population isn't uniform at the max.
	target := (total * percentile) / 100

	topIndex := len(counts) - 1
	massBelowTop := total - counts[topIndex]

	cumulative := 0
	result := 0
	for v, c := range counts {
		if c == 0 {
			continue
		}
		cumulative += c
		// Never settle on the saturating max while any mass sits below it: that would mark untouched items
		// evictable. Only a population uniformly at the max may return it.
		if v == topIndex && massBelowTop > 0 {
			break
		}
		result = v
		if cumulative >= target {
			break
		}
	}
	return uint8(result)
}
