package vault

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

const stateVersion = 1

// AccountState is the persisted form of domain.Account.
type AccountState struct {
	Owner       common.Address `json:"owner"`
	Deposited   string         `json:"deposited"`
	LastDeposit time.Time      `json:"last_deposit"`
}

// State is a complete, self-consistent snapshot of the vault.
type State struct {
	Version int            `json:"version"`
	Owner   common.Address `json:"owner"`
	Address common.Address `json:"address"`

	BaseLimit         string       `json:"base_limit"`
	PriceThreshold    domain.Price `json:"price_threshold"`
	HighMultiplierBps domain.Bps   `json:"high_multiplier_bps"`
	LowMultiplierBps  domain.Bps   `json:"low_multiplier_bps"`

	Bands      domain.AllocationBands `json:"bands"`
	Allocation domain.Allocation      `json:"allocation"`

	Accounts []AccountState `json:"accounts"`

	MaxHistoryLength int                  `json:"max_history_length"`
	History          []domain.PriceSample `json:"history"`

	VolatilityBps  domain.Bps    `json:"volatility_bps"`
	LastVolUpdate  time.Time     `json:"last_volatility_update"`
	UpdateCooldown time.Duration `json:"update_cooldown"`

	RebalanceThresholdBps domain.Bps    `json:"rebalance_threshold_bps"`
	MinInterval           time.Duration `json:"min_interval"`
	LastRebalance         time.Time     `json:"last_rebalance"`
	RebalanceCount        uint64        `json:"rebalance_count"`
}

// Snapshot returns the current state.
func (v *Vault) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stateLocked()
}

func (v *Vault) stateLocked() State {
	accounts := v.accounting.Accounts()
	stored := make([]AccountState, 0, len(accounts))
	for _, acc := range accounts {
		stored = append(stored, AccountState{
			Owner:       acc.Owner,
			Deposited:   acc.Deposited.Dec(),
			LastDeposit: acc.LastDeposit,
		})
	}

	return State{
		Version:               stateVersion,
		Owner:                 v.owner,
		Address:               v.address,
		BaseLimit:             v.limits.BaseLimit.Dec(),
		PriceThreshold:        v.limits.PriceThreshold,
		HighMultiplierBps:     v.limits.HighMultiplierBps,
		LowMultiplierBps:      v.limits.LowMultiplierBps,
		Bands:                 v.bands,
		Allocation:            v.allocation,
		Accounts:              stored,
		MaxHistoryLength:      v.history.Cap(),
		History:               v.history.Samples(),
		VolatilityBps:         v.volatility.CurrentBps,
		LastVolUpdate:         v.volatility.LastUpdate,
		UpdateCooldown:        v.volatility.UpdateCooldown,
		RebalanceThresholdBps: v.rebalance.ThresholdBps,
		MinInterval:           v.rebalance.MinInterval,
		LastRebalance:         v.rebalance.LastRebalance,
		RebalanceCount:        v.rebalance.Count,
	}
}

// Restore rebuilds a vault from a snapshot, rejecting snapshots that break
// the ledger invariants.
func Restore(st State, oracle Oracle, token Token, logger *zap.Logger, opts ...Option) (*Vault, error) {
	if st.Version != stateVersion {
		return nil, errors.Errorf("unsupported vault state version %d", st.Version)
	}

	baseLimit, err := uint256.FromDecimal(st.BaseLimit)
	if err != nil {
		return nil, errors.Wrap(err, "decode base limit")
	}

	cfg := Config{
		Owner:   st.Owner,
		Address: st.Address,
		DepositLimit: domain.DepositLimitConfig{
			BaseLimit:         *baseLimit,
			PriceThreshold:    st.PriceThreshold,
			HighMultiplierBps: st.HighMultiplierBps,
			LowMultiplierBps:  st.LowMultiplierBps,
		},
		RebalanceThresholdBps: st.RebalanceThresholdBps,
		MinInterval:           st.MinInterval,
		MaxHistoryLength:      st.MaxHistoryLength,
		UpdateCooldown:        st.UpdateCooldown,
		Bands:                 st.Bands,
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "restored configuration")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.Wrap(domain.ErrInvalidConfig, "restored state has no custody address")
	}
	if st.Allocation.Total() != domain.BpsDenominator {
		return nil, errors.Wrapf(domain.ErrInvalidConfig, "restored allocation sums to %d", st.Allocation.Total())
	}
	if len(st.History) > st.MaxHistoryLength {
		return nil, errors.Wrapf(domain.ErrInvalidConfig, "restored history has %d samples, capacity %d",
			len(st.History), st.MaxHistoryLength)
	}

	accounts := make([]domain.Account, 0, len(st.Accounts))
	for _, a := range st.Accounts {
		deposited, err := uint256.FromDecimal(a.Deposited)
		if err != nil {
			return nil, errors.Wrapf(err, "decode balance of %s", a.Owner.Hex())
		}
		accounts = append(accounts, domain.Account{Owner: a.Owner, Deposited: *deposited, LastDeposit: a.LastDeposit})
	}
	accounting, err := domain.RestoreAccounting(accounts)
	if err != nil {
		return nil, err
	}

	history, err := domain.NewPriceHistory(st.MaxHistoryLength)
	if err != nil {
		return nil, err
	}
	for _, s := range st.History {
		history.Record(s.Price, s.Timestamp)
	}

	v := &Vault{
		owner:      cfg.Owner,
		address:    cfg.Address,
		limits:     cfg.DepositLimit,
		bands:      cfg.Bands,
		accounting: accounting,
		history:    history,
		volatility: domain.VolatilityState{
			CurrentBps:     st.VolatilityBps,
			LastUpdate:     st.LastVolUpdate,
			UpdateCooldown: st.UpdateCooldown,
		},
		allocation: st.Allocation,
		rebalance: domain.RebalanceState{
			ThresholdBps:  st.RebalanceThresholdBps,
			MinInterval:   st.MinInterval,
			LastRebalance: st.LastRebalance,
			Count:         st.RebalanceCount,
		},
	}
	v.init(oracle, token, logger, opts)
	return v, nil
}
