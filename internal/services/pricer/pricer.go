// Package pricer provides spot price sources for the vault oracle.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// Pricer returns the latest spot price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}
