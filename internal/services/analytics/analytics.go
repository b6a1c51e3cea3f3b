// Package analytics derives informational market statistics from the vault's
// retained price window. Nothing here feeds deposit limits or allocation.
package analytics

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// MinSamples is the smallest window Analyze works with.
const MinSamples = 3

var ErrNotEnoughData = errors.New("not enough price samples")

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Report summarizes the price window.
type Report struct {
	Samples   int             `json:"samples"`
	LastPrice decimal.Decimal `json:"last_price"`
	EMA       decimal.Decimal `json:"ema"`
	EMAPeriod int             `json:"ema_period"`
	ATR       decimal.Decimal `json:"atr"`
	ATRPeriod int             `json:"atr_period"`
	Trend     Trend           `json:"trend"`
}

type Analyzer struct {
	emaPeriod int
	atrPeriod int
}

// NewAnalyzer uses the given periods, shortened when the window is smaller.
func NewAnalyzer(emaPeriod, atrPeriod int) *Analyzer {
	return &Analyzer{emaPeriod: max(emaPeriod, 2), atrPeriod: max(atrPeriod, 2)}
}

func (a *Analyzer) Analyze(samples []domain.PriceSample) (Report, error) {
	if len(samples) < MinSamples {
		return Report{}, errors.Wrapf(ErrNotEnoughData, "need %d, got %d", MinSamples, len(samples))
	}

	closes := make([]float64, len(samples))
	for i, s := range samples {
		closes[i] = s.Price.Decimal().InexactFloat64()
	}

	emaPeriod := min(a.emaPeriod, len(closes))
	atrPeriod := min(a.atrPeriod, len(closes)-1)

	ema := last(trend.NewEmaWithPeriod[float64](emaPeriod).Compute(helper.SliceToChan(closes)))

	// samples carry a single price, so high and low collapse onto the close
	atr := last(volatility.NewAtrWithPeriod[float64](atrPeriod).Compute(
		helper.SliceToChan(closes),
		helper.SliceToChan(closes),
		helper.SliceToChan(closes),
	))

	r := Report{
		Samples:   len(samples),
		LastPrice: samples[len(samples)-1].Price.Decimal(),
		EMA:       toDecimal(ema),
		EMAPeriod: emaPeriod,
		ATR:       toDecimal(atr),
		ATRPeriod: atrPeriod,
	}
	switch cmp := r.LastPrice.Cmp(r.EMA); {
	case cmp > 0:
		r.Trend = TrendUp
	case cmp < 0:
		r.Trend = TrendDown
	default:
		r.Trend = TrendFlat
	}
	return r, nil
}

func last(c <-chan float64) float64 {
	v := math.NaN()
	for x := range c {
		v = x
	}
	return v
}

func toDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(domain.PriceDecimals)
}
