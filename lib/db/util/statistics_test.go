package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeHistogram(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		h := NewSizeHistogram()
		assert.Equal(t, int64(0), h.GetCount())
		assert.Equal(t, 0, h.AverageSize())
		assert.Equal(t, 0, h.MedianEstimate())
		assert.Equal(t, 0, h.GetPercentileEstimate(99))
	})

	t.Run("Estimates", func(t *testing.T) {
		h := NewSizeHistogram()
		for i := 0; i < 90; i++ {
			h.AddSample(10) // first bucket
		}
		for i := 0; i < 10; i++ {
			h.AddSample(100_000) // 65536 < x <= 262144
		}

		assert.Equal(t, int64(100), h.GetCount())
		assert.Equal(t, (90*10+10*100_000)/100, h.AverageSize())
		assert.Equal(t, 8, h.MedianEstimate())
		assert.Equal(t, (65536+262144)/2, h.GetPercentileEstimate(99))
	})

	t.Run("Overflow", func(t *testing.T) {
		h := NewSizeHistogram()
		h.AddSample(1 << 30)
		assert.Equal(t, 16777216*2, h.GetPercentileEstimate(100))
	})

	t.Run("InvalidPercentile", func(t *testing.T) {
		h := NewSizeHistogram()
		h.AddSample(1)
		assert.Equal(t, 0, h.GetPercentileEstimate(-1))
		assert.Equal(t, 0, h.GetPercentileEstimate(101))
	})

	t.Run("Concurrent", func(t *testing.T) {
		h := NewSizeHistogram()
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					h.AddSample(i)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(8000), h.GetCount())
	})
}
