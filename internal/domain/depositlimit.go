package domain

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// DepositLimitConfig parameterises the per-account deposit ceiling.
type DepositLimitConfig struct {
	BaseLimit         uint256.Int
	PriceThreshold    Price
	HighMultiplierBps Bps
	LowMultiplierBps  Bps
}

// Validate checks the configuration can be evaluated for every positive price.
func (c DepositLimitConfig) Validate() error {
	if c.PriceThreshold <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "price threshold must be positive, got %s", c.PriceThreshold)
	}
	if c.BaseLimit.Gt(&MaxAmount) {
		return errors.Wrap(ErrInvalidConfig, "base limit exceeds 128 bits")
	}
	return nil
}

// CurrentLimit returns the deposit ceiling at the given price.
//
// At or above the threshold the base limit grows by highMultiplier * relative excess;
// below it the limit shrinks by lowMultiplier * relative shortfall, floored at zero.
// The result is non-decreasing in price.
func (c DepositLimitConfig) CurrentLimit(price Price) uint256.Int {
	base := c.BaseLimit
	threshold := uint256.NewInt(uint64(c.PriceThreshold))
	denom := new(uint256.Int).Mul(threshold, uint256.NewInt(BpsDenominator))

	if price >= c.PriceThreshold {
		delta := uint256.NewInt(uint64(price - c.PriceThreshold))
		num := new(uint256.Int).Mul(&base, uint256.NewInt(uint64(c.HighMultiplierBps)))
		num.Mul(num, delta)
		increase := num.Div(num, denom)

		limit, overflow := new(uint256.Int).AddOverflow(&base, increase)
		if overflow || limit.Gt(&MaxAmount) {
			return MaxAmount
		}
		return *limit
	}

	var shortfall uint256.Int
	if price > 0 {
		shortfall.SetUint64(uint64(c.PriceThreshold - price))
	} else {
		shortfall.Set(threshold)
	}
	num := new(uint256.Int).Mul(&base, uint256.NewInt(uint64(c.LowMultiplierBps)))
	num.Mul(num, &shortfall)
	decrease := num.Div(num, denom)

	if decrease.Gt(&base) {
		return uint256.Int{}
	}
	return *new(uint256.Int).Sub(&base, decrease)
}

// Available returns how much more the account may deposit under limit.
func Available(limit, deposited *uint256.Int) uint256.Int {
	if deposited.Gt(limit) {
		return uint256.Int{}
	}
	return *new(uint256.Int).Sub(limit, deposited)
}
