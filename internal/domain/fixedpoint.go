package domain

import (
	"math"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// PriceDecimals is the number of implied decimals carried by Price.
	PriceDecimals = 8
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10000
)

// Bps is a basis-point quantity, 1/100 of a percent.
type Bps uint32

// Price is a fixed-point price with PriceDecimals implied decimals.
type Price int64

// PriceFromDecimal converts a decimal price into fixed point, truncating extra precision.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	scaled := d.Shift(PriceDecimals).Truncate(0)
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, errors.Errorf("price %s does not fit into fixed point", d.String())
	}
	return Price(scaled.IntPart()), nil
}

// ParsePrice parses a human readable price such as "2000.5".
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse price %q", s)
	}
	return PriceFromDecimal(d)
}

// Decimal returns the price as a decimal value.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -PriceDecimals)
}

func (p Price) String() string {
	return p.Decimal().StringFixed(PriceDecimals)
}

// Quote is a price observation as delivered by the oracle.
type Quote struct {
	Price     Price
	UpdatedAt time.Time
}

// MaxAmount is the largest amount the ledger accepts (2^128 - 1).
var MaxAmount = func() uint256.Int {
	var v uint256.Int
	v.Lsh(uint256.NewInt(1), 128)
	v.Sub(&v, uint256.NewInt(1))
	return v
}()

// ValidateAmount rejects zero and values wider than 128 bits.
func ValidateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errors.Wrap(ErrInvalidAmount, "amount must be positive")
	}
	if amount.Gt(&MaxAmount) {
		return errors.Wrapf(ErrInvalidAmount, "amount %s exceeds 128 bits", amount.Dec())
	}
	return nil
}

// ParseAmount parses a base-10 integer amount in the token's smallest unit.
func ParseAmount(s string) (uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, errors.Wrapf(ErrInvalidAmount, "parse amount %q: %v", s, err)
	}
	return *v, nil
}

// UnixSeconds renders t as unsigned unix seconds, zero for the zero time.
func UnixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
