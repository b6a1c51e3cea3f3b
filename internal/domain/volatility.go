package domain

import (
	"math"
	"time"

	"github.com/holiman/uint256"
)

// VolatilityIndex returns the largest single-step price move in the window, in basis points
// of the earlier price. Fewer than two samples yield zero.
func VolatilityIndex(samples []PriceSample) Bps {
	var peak uint64
	bps := uint256.NewInt(BpsDenominator)

	for i := 0; i+1 < len(samples); i++ {
		prev, next := samples[i].Price, samples[i+1].Price
		if prev <= 0 || next <= 0 {
			continue
		}

		var diff uint64
		if next >= prev {
			diff = uint64(next - prev)
		} else {
			diff = uint64(prev - next)
		}

		swing, _ := new(uint256.Int).MulDivOverflow(uint256.NewInt(diff), bps, uint256.NewInt(uint64(prev)))
		if !swing.IsUint64() {
			return Bps(math.MaxUint32)
		}
		if v := swing.Uint64(); v > peak {
			peak = v
		}
	}

	if peak > math.MaxUint32 {
		return Bps(math.MaxUint32)
	}
	return Bps(peak)
}

// VolatilityState holds the last committed volatility metric and its refresh gate.
type VolatilityState struct {
	CurrentBps     Bps
	LastUpdate     time.Time
	UpdateCooldown time.Duration
}

// CanUpdate reports whether the cooldown since the last refresh has elapsed.
func (s VolatilityState) CanUpdate(now time.Time) bool {
	if s.LastUpdate.IsZero() {
		return true
	}
	return now.Sub(s.LastUpdate) >= s.UpdateCooldown
}

// NextUpdate is the earliest time a refresh is accepted.
func (s VolatilityState) NextUpdate() time.Time {
	if s.LastUpdate.IsZero() {
		return time.Time{}
	}
	return s.LastUpdate.Add(s.UpdateCooldown)
}
