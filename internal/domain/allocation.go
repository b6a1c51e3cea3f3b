package domain

import "github.com/pkg/errors"

// Allocation is the conservative/moderate/aggressive split in basis points.
type Allocation struct {
	ConservativeBps Bps `json:"conservative_bps"`
	ModerateBps     Bps `json:"moderate_bps"`
	AggressiveBps   Bps `json:"aggressive_bps"`
}

// Total returns the sum of the three shares.
func (a Allocation) Total() uint32 {
	return uint32(a.ConservativeBps) + uint32(a.ModerateBps) + uint32(a.AggressiveBps)
}

// Band names a volatility range.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Fixed splits per band; each sums to BpsDenominator.
var bandAllocations = map[Band]Allocation{
	BandLow:    {ConservativeBps: 2000, ModerateBps: 3000, AggressiveBps: 5000},
	BandMedium: {ConservativeBps: 4000, ModerateBps: 3500, AggressiveBps: 2500},
	BandHigh:   {ConservativeBps: 7000, ModerateBps: 2000, AggressiveBps: 1000},
}

// DefaultAllocation is the split in force before the first rebalance.
func DefaultAllocation() Allocation {
	return bandAllocations[BandLow]
}

// AllocationBands holds the volatility boundaries between bands.
// Volatility below LowUpperBps is low, at or above HighLowerBps is high, medium otherwise.
type AllocationBands struct {
	LowUpperBps  Bps `json:"low_upper_bps"`
	HighLowerBps Bps `json:"high_lower_bps"`
}

// DefaultAllocationBands returns the 500/1000 bps boundaries.
func DefaultAllocationBands() AllocationBands {
	return AllocationBands{LowUpperBps: 500, HighLowerBps: 1000}
}

// Validate requires non-overlapping, non-empty bands.
func (b AllocationBands) Validate() error {
	if b.LowUpperBps == 0 {
		return errors.Wrap(ErrInvalidConfig, "low band upper bound must be positive")
	}
	if b.HighLowerBps <= b.LowUpperBps {
		return errors.Wrapf(ErrInvalidConfig, "high band lower bound %d must exceed low band upper bound %d",
			b.HighLowerBps, b.LowUpperBps)
	}
	return nil
}

// Band classifies a volatility value.
func (b AllocationBands) Band(volatility Bps) Band {
	switch {
	case volatility < b.LowUpperBps:
		return BandLow
	case volatility >= b.HighLowerBps:
		return BandHigh
	default:
		return BandMedium
	}
}

// Allocate maps a volatility value to its band's split.
func (b AllocationBands) Allocate(volatility Bps) Allocation {
	return bandAllocations[b.Band(volatility)]
}
