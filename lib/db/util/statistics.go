package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// defaultBoundaries are the upper bounds (inclusive) of the histogram buckets.
// Values stored by the application are small JSON documents, so the resolution is
// highest between a few bytes and a few hundred kilobytes.
var defaultBoundaries = []int{
	16, 64, 256, 1024, 4096, // up to 4KB
	16384, 65536, 262144, // up to 256KB
	1048576, 16777216, // up to 16MB
}

// SizeHistogram tracks the distribution of value sizes without keeping the samples.
// The last bucket collects every sample larger than the last boundary.
//
// Thread-safe: all methods are safe for concurrent use.
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewSizeHistogram creates an empty histogram with the default boundaries.
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{
		boundaries: defaultBoundaries,
		buckets:    make([]int64, len(defaultBoundaries)+1),
	}
}

// AddSample records one size.
func (h *SizeHistogram) AddSample(size int) {
	idx := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if size <= boundary {
			idx = i
			break
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
}

// GetCount returns the number of recorded samples.
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the exact mean of all samples.
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median from the bucket counts.
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate estimates the given percentile (0-100).
// The estimate is the midpoint of the bucket containing the percentile,
// half the first boundary for the first bucket and twice the last boundary for the overflow bucket.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if target == 0 {
		target = 1
	}

	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return h.boundaries[0] / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	return int(h.sum / h.count)
}
