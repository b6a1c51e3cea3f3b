// Package keeper is the in-process automation that polls the vault on a cron
// schedule: it refreshes the volatility index and performs the rebalance upkeep.
package keeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

// Upkeep is the automation-facing surface of the vault.
type Upkeep interface {
	Eligibility() domain.EligibilityDecision
	Execute(ctx context.Context) (domain.Allocation, error)
	RefreshVolatility(ctx context.Context) (vault.VolatilityInfo, error)
}

// Keeper runs upkeep jobs. Jobs never overlap with themselves.
type Keeper struct {
	cron    *cron.Cron
	upkeep  Upkeep
	logger  *zap.Logger
	ctx     context.Context
	timeout time.Duration
}

func New(ctx context.Context, upkeep Upkeep, logger *zap.Logger, jobTimeout time.Duration) *Keeper {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Keeper{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		upkeep:  upkeep,
		logger:  logger,
		ctx:     ctx,
		timeout: jobTimeout,
	}
}

// Register schedules both jobs. Specs use the six-field cron format with seconds;
// an empty spec disables that job.
func (k *Keeper) Register(refreshSpec, upkeepSpec string) error {
	if refreshSpec != "" {
		if _, err := k.cron.AddFunc(refreshSpec, func() { _ = k.RefreshVolatility() }); err != nil {
			return errors.Wrapf(err, "register volatility refresh %q", refreshSpec)
		}
	}
	if upkeepSpec != "" {
		if _, err := k.cron.AddFunc(upkeepSpec, func() { _, _ = k.PerformUpkeep() }); err != nil {
			return errors.Wrapf(err, "register upkeep %q", upkeepSpec)
		}
	}
	return nil
}

func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started", zap.Int("jobs", len(k.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.logger.Info("keeper stopped")
}

// RefreshVolatility runs one refresh. Cooldown rejections are expected and not errors.
func (k *Keeper) RefreshVolatility() error {
	ctx, cancel := context.WithTimeout(k.ctx, k.timeout)
	defer cancel()

	info, err := k.upkeep.RefreshVolatility(ctx)
	switch {
	case err == nil:
		k.logger.Debug("volatility refreshed",
			zap.Uint32("volatility_bps", uint32(info.CurrentVolatilityBps)),
			zap.Int("price_count", info.PriceCount))
		return nil
	case errors.Is(err, domain.ErrCooldownActive):
		k.logger.Debug("volatility refresh skipped", zap.Error(err))
		return nil
	case errors.Is(err, domain.ErrOracleUnavailable):
		k.logger.Warn("volatility refresh failed, oracle unavailable", zap.Error(err))
		return err
	default:
		k.logger.Error("volatility refresh failed", zap.Error(err))
		return err
	}
}

// PerformUpkeep checks eligibility and executes the rebalance when it is due.
// It reports whether a rebalance was committed.
func (k *Keeper) PerformUpkeep() (bool, error) {
	decision := k.upkeep.Eligibility()
	if !decision.Eligible {
		k.logger.Debug("upkeep not needed", zap.String("reason", decision.Reason))
		return false, nil
	}

	ctx, cancel := context.WithTimeout(k.ctx, k.timeout)
	defer cancel()

	alloc, err := k.upkeep.Execute(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRebalanceNotEligible) {
			// another trigger won the race
			k.logger.Info("upkeep lost race", zap.Error(err))
			return false, nil
		}
		k.logger.Error("upkeep failed", zap.Error(err))
		return false, err
	}

	k.logger.Info("upkeep performed",
		zap.Uint32("conservative_bps", uint32(alloc.ConservativeBps)),
		zap.Uint32("moderate_bps", uint32(alloc.ModerateBps)),
		zap.Uint32("aggressive_bps", uint32(alloc.AggressiveBps)))
	return true, nil
}
