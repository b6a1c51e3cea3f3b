package pricer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// StaticPricer serves a manually set price. Used for local runs and tests.
type StaticPricer struct {
	mu    sync.RWMutex
	price decimal.Decimal
	err   error
}

func NewStaticPricer(price decimal.Decimal) *StaticPricer {
	return &StaticPricer{price: price}
}

// Set replaces the served price and clears any injected failure.
func (p *StaticPricer) Set(price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	p.err = nil
}

// Fail makes subsequent calls return err until the next Set.
func (p *StaticPricer) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *StaticPricer) GetPrice(ctx context.Context, _ domain.Pair) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return decimal.Zero, p.err
	}
	if p.price.IsZero() {
		return decimal.Zero, errors.New("static price is not set")
	}
	return p.price, nil
}
