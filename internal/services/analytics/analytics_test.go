package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

func series(t *testing.T, prices ...string) []domain.PriceSample {
	t.Helper()
	start := time.Unix(1_700_000_000, 0)
	out := make([]domain.PriceSample, len(prices))
	for i, s := range prices {
		p, err := domain.ParsePrice(s)
		require.NoError(t, err)
		out[i] = domain.PriceSample{Price: p, Timestamp: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestAnalyzer_Flat(t *testing.T) {
	a := NewAnalyzer(5, 3)
	r, err := a.Analyze(series(t, "2000", "2000", "2000", "2000", "2000", "2000"))
	require.NoError(t, err)

	assert.Equal(t, 6, r.Samples)
	assert.True(t, r.EMA.Equal(decimal.NewFromInt(2000)), "ema %s", r.EMA)
	assert.True(t, r.ATR.IsZero(), "atr %s", r.ATR)
	assert.Equal(t, TrendFlat, r.Trend)
}

func TestAnalyzer_Trend(t *testing.T) {
	a := NewAnalyzer(3, 3)

	up, err := a.Analyze(series(t, "100", "110", "120", "130", "140", "150"))
	require.NoError(t, err)
	assert.Equal(t, TrendUp, up.Trend)
	assert.True(t, up.ATR.IsPositive())
	assert.True(t, up.LastPrice.Equal(decimal.NewFromInt(150)))

	down, err := a.Analyze(series(t, "150", "140", "130", "120", "110", "100"))
	require.NoError(t, err)
	assert.Equal(t, TrendDown, down.Trend)
}

func TestAnalyzer_ShortWindow(t *testing.T) {
	a := NewAnalyzer(20, 14)

	_, err := a.Analyze(series(t, "1", "2"))
	assert.ErrorIs(t, err, ErrNotEnoughData)

	r, err := a.Analyze(series(t, "2000", "2100", "2050"))
	require.NoError(t, err)
	assert.Equal(t, 3, r.EMAPeriod)
	assert.Equal(t, 2, r.ATRPeriod)
}
