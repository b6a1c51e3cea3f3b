// Package oracle turns a spot price source into the vault's fixed-point quote feed.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/services/pricer"
	"github.com/vadiminshakov/riskvault/pkg/retrier"
)

var errNonPositivePrice = errors.New("non-positive price")

// Adapter fetches prices with retries and serves the last good quote while it is fresh.
type Adapter struct {
	pricer       pricer.Pricer
	pair         domain.Pair
	retrier      *retrier.Retrier
	maxStaleness time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu   sync.Mutex
	last domain.Quote
}

type Option func(*Adapter)

func WithRetrier(r *retrier.Retrier) Option {
	return func(a *Adapter) { a.retrier = r }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func NewAdapter(p pricer.Pricer, pair domain.Pair, maxStaleness time.Duration, logger *zap.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		pricer:       p,
		pair:         pair,
		maxStaleness: maxStaleness,
		now:          time.Now,
		logger:       logger.With(zap.String("pair", pair.String())),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retrier == nil {
		a.retrier = retrier.New(
			retrier.WithRetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				a.logger.Debug("price fetch failed, retrying",
					zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			}),
		)
	}
	return a
}

// LatestPrice returns a fresh quote. When the source fails, the cached quote is
// served if it is within maxStaleness, otherwise ErrOracleUnavailable.
func (a *Adapter) LatestPrice(ctx context.Context) (domain.Quote, error) {
	price, fetchErr := retrier.DoWithData(a.retrier, ctx, a.fetch)
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if fetchErr == nil {
		a.last = domain.Quote{Price: price, UpdatedAt: now}
		return a.last, nil
	}

	if a.freshLocked(now) {
		a.logger.Warn("price source failed, serving cached quote",
			zap.Stringer("price", a.last.Price),
			zap.Time("updated_at", a.last.UpdatedAt),
			zap.Error(fetchErr))
		return a.last, nil
	}

	return domain.Quote{}, errors.Wrapf(domain.ErrOracleUnavailable, "%s: %v", a.pair, fetchErr)
}

func (a *Adapter) fetch(ctx context.Context) (domain.Price, error) {
	d, err := a.pricer.GetPrice(ctx, a.pair)
	if err != nil {
		return 0, err
	}
	p, err := domain.PriceFromDecimal(d)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return 0, errors.Wrapf(errNonPositivePrice, "got %s", d.String())
	}
	return p, nil
}

// Fresh reports whether the cached quote is usable at now.
func (a *Adapter) Fresh(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freshLocked(now)
}

func (a *Adapter) freshLocked(now time.Time) bool {
	if a.last.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(a.last.UpdatedAt) <= a.maxStaleness
}

// Last returns the most recent successful quote.
func (a *Adapter) Last() (domain.Quote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, !a.last.UpdatedAt.IsZero()
}
