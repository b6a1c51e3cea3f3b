package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceHistory_BoundAndEvictionOrder(t *testing.T) {
	h, err := NewPriceHistory(5)
	require.NoError(t, err)

	start := time.Unix(1_700_000_000, 0)
	for i := 1; i <= 12; i++ {
		h.Record(Price(i), start.Add(time.Duration(i)*time.Second))
		require.LessOrEqual(t, h.Len(), 5)
	}

	samples := h.Samples()
	require.Len(t, samples, 5)
	for i, s := range samples {
		assert.Equal(t, Price(8+i), s.Price, "oldest-first order broken at %d", i)
	}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, Price(12), latest.Price)
}

func TestPriceHistory_TimestampsNonDecreasing(t *testing.T) {
	h, err := NewPriceHistory(4)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	h.Record(100, now)
	clamped := h.Record(101, now.Add(-time.Hour))
	assert.Equal(t, now, clamped.Timestamp)

	samples := h.Samples()
	for i := 1; i < len(samples); i++ {
		assert.False(t, samples[i].Timestamp.Before(samples[i-1].Timestamp))
	}
}

func TestPriceHistory_Resize(t *testing.T) {
	h, err := NewPriceHistory(6)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	for i := 1; i <= 6; i++ {
		h.Record(Price(i), now)
	}

	t.Run("shrink keeps newest", func(t *testing.T) {
		require.NoError(t, h.Resize(3))
		assert.Equal(t, 3, h.Cap())
		prices := []Price{}
		for _, s := range h.Samples() {
			prices = append(prices, s.Price)
		}
		assert.Equal(t, []Price{4, 5, 6}, prices)
	})

	t.Run("grow keeps everything", func(t *testing.T) {
		require.NoError(t, h.Resize(10))
		assert.Equal(t, 3, h.Len())
		h.Record(7, now)
		assert.Equal(t, 4, h.Len())
	})

	t.Run("too small rejected", func(t *testing.T) {
		assert.ErrorIs(t, h.Resize(1), ErrInvalidConfig)
		assert.Equal(t, 10, h.Cap())
	})
}

func TestNewPriceHistory_Invalid(t *testing.T) {
	_, err := NewPriceHistory(1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
