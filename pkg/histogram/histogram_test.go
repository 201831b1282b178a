package histogram

import (
	"testing"

	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/stretchr/testify/assert"
)

func TestItemEviction_EmptyReturnsMinimum(t *testing.T) {
	h := New()
	freqT, ageT := h.Thresholds(50, 50)
	assert.Equal(t, uint8(0), freqT)
	assert.Equal(t, uint8(0), ageT)
}

func TestItemEviction_NeverReturnsMaxWhenPopulationBelowMax(t *testing.T) {
	h := New()
	for i := 0; i < 100; i++ {
		h.Add(10, 1)
	}
	h.Add(item.MaxFreq, 1) // one hot item at saturation.

	freqT, _ := h.Thresholds(100, 100)
	assert.Less(t, freqT, item.MaxFreq, "threshold must not saturate while lower-frequency items exist")
}

func TestItemEviction_UniformAtMaxReturnsMax(t *testing.T) {
	h := New()
	for i := 0; i < 10; i++ {
		h.Add(item.MaxFreq, item.MaxAge)
	}
	freqT, ageT := h.Thresholds(100, 100)
	assert.Equal(t, item.MaxFreq, freqT)
	assert.Equal(t, item.MaxAge, ageT)
}

func TestItemEviction_ThresholdTracksPercentile(t *testing.T) {
	h := New()
	for i := 0; i < 10; i++ {
		h.Add(0, 0)
	}
	for i := 0; i < 10; i++ {
		h.Add(100, 2)
	}
	freqT, ageT := h.Thresholds(40, 40)
	assert.Equal(t, uint8(0), freqT, "40th percentile should land on the low bucket")
	assert.Equal(t, uint8(0), ageT)

	freqT, ageT = h.Thresholds(60, 60)
	assert.Equal(t, uint8(100), freqT, "60th percentile should cross into the high bucket")
	assert.Equal(t, uint8(2), ageT)
}

func TestItemEviction_Reset(t *testing.T) {
	h := New()
	h.Add(50, 1)
	h.Reset()
	freqT, ageT := h.Thresholds(100, 100)
	assert.Equal(t, uint8(0), freqT)
	assert.Equal(t, uint8(0), ageT)
}
