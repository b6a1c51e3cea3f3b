// Package vault implements the risk-managed vault ledger: deposits bounded by a
// price-driven limit, a volatility index over recent prices, and a pull-based
// rebalance of the risk allocation.
//
// All mutable state lives in Vault behind a single RWMutex. External reads
// (oracle, clock) are taken before the lock; token transfers run under the lock
// before any ledger mutation, so a failed call leaves the vault untouched.
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// Oracle supplies the reference price.
type Oracle interface {
	LatestPrice(ctx context.Context) (domain.Quote, error)
}

// Token is the fungible unit held in custody.
type Token interface {
	TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account common.Address) (uint256.Int, error)
}

// EventSink receives events after the mutation that produced them commits.
type EventSink interface {
	Publish(e domain.Event) error
}

// StateStore persists the full vault state after every committed mutation.
type StateStore interface {
	Save(st State) error
}

// Metrics observes rejected operations.
type Metrics interface {
	ObserveRejected(op string, err error)
}

const (
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpRefreshVolatility = "refresh_volatility"
	OpExecute           = "execute"
	OpManualTrigger     = "manual_trigger"
	OpConfigure         = "configure"
)

// Config is the initial vault configuration.
type Config struct {
	Owner                 common.Address
	Address               common.Address
	DepositLimit          domain.DepositLimitConfig
	RebalanceThresholdBps domain.Bps
	MinInterval           time.Duration
	MaxHistoryLength      int
	UpdateCooldown        time.Duration
	Bands                 domain.AllocationBands
}

// DefaultAddress derives the custody address used when none is configured.
func DefaultAddress(owner common.Address) common.Address {
	return crypto.CreateAddress(owner, 0)
}

func (c Config) Validate() error {
	if c.Owner == (common.Address{}) {
		return errors.Wrap(domain.ErrInvalidConfig, "owner is required")
	}
	if err := c.DepositLimit.Validate(); err != nil {
		return err
	}
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if c.MaxHistoryLength < domain.MinHistoryLength {
		return errors.Wrapf(domain.ErrInvalidConfig, "max history length must be at least %d", domain.MinHistoryLength)
	}
	if c.MinInterval < 0 || c.UpdateCooldown < 0 {
		return errors.Wrap(domain.ErrInvalidConfig, "intervals must not be negative")
	}
	return nil
}

// Vault is the single owned aggregate of all ledger state.
type Vault struct {
	mu sync.RWMutex

	owner      common.Address
	address    common.Address
	limits     domain.DepositLimitConfig
	bands      domain.AllocationBands
	accounting *domain.Accounting
	history    *domain.PriceHistory
	volatility domain.VolatilityState
	allocation domain.Allocation
	rebalance  domain.RebalanceState

	oracle  Oracle
	token   Token
	sink    EventSink
	store   StateStore
	metrics Metrics
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Vault)

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(v *Vault) { v.sink = sink }
}

func WithStateStore(store StateStore) Option {
	return func(v *Vault) { v.store = store }
}

func WithMetrics(m Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// New creates an empty vault.
func New(cfg Config, oracle Oracle, token Token, logger *zap.Logger, opts ...Option) (*Vault, error) {
	if cfg.Address == (common.Address{}) {
		cfg.Address = DefaultAddress(cfg.Owner)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	history, err := domain.NewPriceHistory(cfg.MaxHistoryLength)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		owner:      cfg.Owner,
		address:    cfg.Address,
		limits:     cfg.DepositLimit,
		bands:      cfg.Bands,
		accounting: domain.NewAccounting(),
		history:    history,
		volatility: domain.VolatilityState{UpdateCooldown: cfg.UpdateCooldown},
		allocation: domain.DefaultAllocation(),
		rebalance: domain.RebalanceState{
			ThresholdBps: cfg.RebalanceThresholdBps,
			MinInterval:  cfg.MinInterval,
		},
	}
	v.init(oracle, token, logger, opts)
	return v, nil
}

func (v *Vault) init(oracle Oracle, token Token, logger *zap.Logger, opts []Option) {
	v.oracle = oracle
	v.token = token
	v.now = time.Now
	v.logger = logger
	for _, opt := range opts {
		opt(v)
	}
}

// Owner returns the address allowed to call administrative operations.
func (v *Vault) Owner() common.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.owner
}

// Address is the custody account holding deposited tokens.
func (v *Vault) Address() common.Address {
	return v.address
}

// Deposit pulls amount from caller into custody and credits the caller's account.
// The caller must have approved the vault address on the token beforehand.
func (v *Vault) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Account, error) {
	acc, err := v.deposit(ctx, caller, amount)
	if err != nil {
		v.rejected(OpDeposit, err)
	}
	return acc, err
}

func (v *Vault) deposit(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Account, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Account{}, err
	}

	quote, err := v.oracle.LatestPrice(ctx)
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "deposit")
	}
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	limit := v.limits.CurrentLimit(quote.Price)
	if err := v.accounting.CheckDeposit(caller, amount, &limit); err != nil {
		return domain.Account{}, err
	}

	if err := v.token.TransferFrom(ctx, v.address, caller, v.address, amount); err != nil {
		return domain.Account{}, errors.Wrapf(domain.ErrTransferFailed, "pull deposit: %v", err)
	}

	acc, err := v.accounting.Deposit(caller, amount, &limit, now)
	if err != nil {
		// unreachable after CheckDeposit under the same lock
		return domain.Account{}, err
	}
	sample := v.history.Record(quote.Price, now)
	total := v.accounting.Total()

	v.logger.Info("deposit accepted",
		zap.String("account", caller.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("total", total.Dec()),
		zap.Stringer("price", quote.Price))

	v.commitLocked(domain.NewDepositedEvent(now, caller, amount, &total, sample.Price))
	return acc, nil
}

// Withdraw returns amount from custody to caller. An oracle outage does not block
// a withdrawal; the price sample is skipped instead.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Account, error) {
	acc, err := v.withdraw(ctx, caller, amount)
	if err != nil {
		v.rejected(OpWithdraw, err)
	}
	return acc, err
}

func (v *Vault) withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Account, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Account{}, err
	}

	quote, quoteErr := v.oracle.LatestPrice(ctx)
	if quoteErr != nil {
		v.logger.Warn("withdraw without price sample", zap.String("account", caller.Hex()), zap.Error(quoteErr))
	}
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.accounting.CheckWithdraw(caller, amount); err != nil {
		return domain.Account{}, err
	}

	if err := v.token.Transfer(ctx, v.address, caller, amount); err != nil {
		return domain.Account{}, errors.Wrapf(domain.ErrTransferFailed, "release withdrawal: %v", err)
	}

	acc, err := v.accounting.Withdraw(caller, amount)
	if err != nil {
		return domain.Account{}, err
	}

	var price domain.Price
	if quoteErr == nil {
		price = v.history.Record(quote.Price, now).Price
	}
	total := v.accounting.Total()

	v.logger.Info("withdrawal accepted",
		zap.String("account", caller.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("total", total.Dec()))

	v.commitLocked(domain.NewWithdrawnEvent(now, caller, amount, &total, price))
	return acc, nil
}

// RefreshVolatility records a fresh price and recomputes the volatility index.
// It fails with a *domain.CooldownError until the update cooldown has elapsed.
func (v *Vault) RefreshVolatility(ctx context.Context) (VolatilityInfo, error) {
	info, err := v.refreshVolatility(ctx)
	if err != nil {
		v.rejected(OpRefreshVolatility, err)
	}
	return info, err
}

func (v *Vault) refreshVolatility(ctx context.Context) (VolatilityInfo, error) {
	now := v.now()

	// cheap pre-check so cooled-down callers do not hit the oracle
	v.mu.RLock()
	state := v.volatility
	v.mu.RUnlock()
	if !state.CanUpdate(now) {
		return VolatilityInfo{}, &domain.CooldownError{NextUpdate: state.NextUpdate()}
	}

	quote, err := v.oracle.LatestPrice(ctx)
	if err != nil {
		return VolatilityInfo{}, errors.Wrap(err, "refresh volatility")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.volatility.CanUpdate(now) {
		return VolatilityInfo{}, &domain.CooldownError{NextUpdate: v.volatility.NextUpdate()}
	}

	sample := v.history.Record(quote.Price, now)
	v.volatility.CurrentBps = domain.VolatilityIndex(v.history.Samples())
	v.volatility.LastUpdate = now

	v.logger.Info("volatility refreshed",
		zap.Uint32("volatility_bps", uint32(v.volatility.CurrentBps)),
		zap.Int("price_count", v.history.Len()),
		zap.Stringer("price", sample.Price))

	v.commitLocked(domain.NewVolatilityUpdatedEvent(now, v.volatility.CurrentBps, v.history.Len(), sample.Price))
	return v.volatilityInfoLocked(now), nil
}

// CheckEligible reports whether Execute would succeed right now.
func (v *Vault) CheckEligible(_ context.Context) bool {
	return v.Eligibility().Eligible
}

// Eligibility returns the eligibility decision together with its reason.
func (v *Vault) Eligibility() domain.EligibilityDecision {
	now := v.now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.rebalance.Eligibility(now, v.volatility.CurrentBps, v.history.Len())
}

// Execute re-validates eligibility under the write lock and commits a new allocation.
// A second call right after a successful one fails with ErrRebalanceNotEligible.
func (v *Vault) Execute(_ context.Context) (domain.Allocation, error) {
	alloc, err := v.execute(nil)
	if err != nil {
		v.rejected(OpExecute, err)
	}
	return alloc, err
}

// ManualTrigger is Execute restricted to the owner.
func (v *Vault) ManualTrigger(_ context.Context, caller common.Address) (domain.Allocation, error) {
	alloc, err := v.execute(&caller)
	if err != nil {
		v.rejected(OpManualTrigger, err)
	}
	return alloc, err
}

// execute runs the rebalance; a non-nil caller must be the owner.
func (v *Vault) execute(caller *common.Address) (domain.Allocation, error) {
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	trigger := "keeper"
	if caller != nil {
		if err := v.authorizeLocked(*caller); err != nil {
			return domain.Allocation{}, err
		}
		trigger = "owner"
	}

	decision := v.rebalance.Eligibility(now, v.volatility.CurrentBps, v.history.Len())
	if !decision.Eligible {
		return domain.Allocation{}, &domain.NotEligibleError{Reason: decision.Reason}
	}

	previous := v.allocation
	v.allocation = v.bands.Allocate(v.volatility.CurrentBps)
	v.rebalance.LastRebalance = now
	v.rebalance.Count++

	v.logger.Info("rebalance executed",
		zap.String("trigger", trigger),
		zap.Uint64("count", v.rebalance.Count),
		zap.Uint32("volatility_bps", uint32(v.volatility.CurrentBps)),
		zap.Any("from", previous),
		zap.Any("to", v.allocation))

	v.commitLocked(domain.NewRebalanceTriggeredEvent(now, v.allocation, v.rebalance.Count, v.volatility.CurrentBps))
	return v.allocation, nil
}

// commitLocked persists the state and publishes the event. Failures are logged:
// the in-memory mutation has already happened and the next commit retries the save.
func (v *Vault) commitLocked(e domain.Event) {
	if v.store != nil {
		if err := v.store.Save(v.stateLocked()); err != nil {
			v.logger.Error("persist vault state", zap.String("event", string(e.Type)), zap.Error(err))
		}
	}
	if v.sink != nil {
		if err := v.sink.Publish(e); err != nil {
			v.logger.Error("publish vault event", zap.String("event", string(e.Type)), zap.Error(err))
		}
	}
}

func (v *Vault) rejected(op string, err error) {
	v.logger.Debug("operation rejected", zap.String("op", op), zap.String("code", domain.Code(err)), zap.Error(err))
	if v.metrics != nil {
		v.metrics.ObserveRejected(op, err)
	}
}

func (v *Vault) authorizeLocked(caller common.Address) error {
	if caller != v.owner {
		return errors.Wrapf(domain.ErrUnauthorized, "%s is not the vault owner", caller.Hex())
	}
	return nil
}
