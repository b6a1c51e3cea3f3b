package domain

import "time"

// MinRebalanceSamples is the least number of recorded prices a rebalance needs.
const MinRebalanceSamples = 3

const (
	ReasonEligible            = "eligible"
	ReasonIntervalNotElapsed  = "interval_not_elapsed"
	ReasonVolatilityBelow     = "volatility_below_threshold"
	ReasonInsufficientHistory = "insufficient_price_history"
)

// RebalanceState is the scheduler's gate and counters.
type RebalanceState struct {
	ThresholdBps  Bps
	MinInterval   time.Duration
	LastRebalance time.Time
	Count         uint64
}

// EligibilityDecision is the outcome of a rebalance eligibility check.
type EligibilityDecision struct {
	Eligible bool
	Reason   string
}

// Eligibility evaluates the three rebalance gates in order: interval, volatility, history.
func (s RebalanceState) Eligibility(now time.Time, volatility Bps, priceCount int) EligibilityDecision {
	if !s.LastRebalance.IsZero() && now.Sub(s.LastRebalance) < s.MinInterval {
		return EligibilityDecision{Eligible: false, Reason: ReasonIntervalNotElapsed}
	}
	if volatility < s.ThresholdBps {
		return EligibilityDecision{Eligible: false, Reason: ReasonVolatilityBelow}
	}
	if priceCount < MinRebalanceSamples {
		return EligibilityDecision{Eligible: false, Reason: ReasonInsufficientHistory}
	}
	return EligibilityDecision{Eligible: true, Reason: ReasonEligible}
}

// NextEligibleTime is the earliest time the interval gate opens.
func (s RebalanceState) NextEligibleTime() time.Time {
	if s.LastRebalance.IsZero() {
		return time.Time{}
	}
	return s.LastRebalance.Add(s.MinInterval)
}

// TimeSinceLast returns the time elapsed since the last rebalance, or since the epoch if none.
func (s RebalanceState) TimeSinceLast(now time.Time) time.Duration {
	if s.LastRebalance.IsZero() {
		return time.Duration(UnixSeconds(now)) * time.Second
	}
	if now.Before(s.LastRebalance) {
		return 0
	}
	return now.Sub(s.LastRebalance)
}
