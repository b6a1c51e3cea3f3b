package vault

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// The read shapes below are decoded positionally by external UIs: keep field order.
// Times are unix seconds, amounts are base-10 strings.

type VolatilityInfo struct {
	CurrentVolatilityBps domain.Bps `json:"current_volatility_bps"`
	PriceCount           int        `json:"price_count"`
	LastUpdate           uint64     `json:"last_update"`
	CanUpdate            bool       `json:"can_update"`
}

type RebalanceInfo struct {
	ThresholdBps           domain.Bps `json:"threshold_bps"`
	LastRebalanceTime      uint64     `json:"last_rebalance_time"`
	RebalanceCount         uint64     `json:"rebalance_count"`
	TimeSinceLastRebalance uint64     `json:"time_since_last_rebalance"`
	NextEligibleTime       uint64     `json:"next_eligible_time"`
}

type AllocationInfo struct {
	ConservativeBps domain.Bps `json:"conservative_bps"`
	ModerateBps     domain.Bps `json:"moderate_bps"`
	AggressiveBps   domain.Bps `json:"aggressive_bps"`
	TotalBps        uint32     `json:"total_bps"`
}

type UserInfo struct {
	DepositedAmount string `json:"deposited_amount"`
	LastDepositTime uint64 `json:"last_deposit_time"`
	AvailableLimit  string `json:"available_limit"`
}

type VaultStatus struct {
	TotalDeposits       string       `json:"total_deposits"`
	CurrentPrice        domain.Price `json:"current_price"`
	CurrentDepositLimit string       `json:"current_deposit_limit"`
	LedgerBalance       string       `json:"ledger_balance"`
}

// ConfigInfo is the owner-tunable configuration currently in force.
type ConfigInfo struct {
	Owner                 common.Address         `json:"owner"`
	Address               common.Address         `json:"address"`
	BaseLimit             string                 `json:"base_limit"`
	PriceThreshold        domain.Price           `json:"price_threshold"`
	HighMultiplierBps     domain.Bps             `json:"high_multiplier_bps"`
	LowMultiplierBps      domain.Bps             `json:"low_multiplier_bps"`
	RebalanceThresholdBps domain.Bps             `json:"rebalance_threshold_bps"`
	MinIntervalSeconds    uint64                 `json:"min_interval_seconds"`
	MaxHistoryLength      int                    `json:"max_history_length"`
	UpdateCooldownSeconds uint64                 `json:"update_cooldown_seconds"`
	Bands                 domain.AllocationBands `json:"bands"`
}

func (v *Vault) VolatilityInfo() VolatilityInfo {
	now := v.now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.volatilityInfoLocked(now)
}

func (v *Vault) volatilityInfoLocked(now time.Time) VolatilityInfo {
	return VolatilityInfo{
		CurrentVolatilityBps: v.volatility.CurrentBps,
		PriceCount:           v.history.Len(),
		LastUpdate:           domain.UnixSeconds(v.volatility.LastUpdate),
		CanUpdate:            v.volatility.CanUpdate(now),
	}
}

func (v *Vault) RebalanceInfo() RebalanceInfo {
	now := v.now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	return RebalanceInfo{
		ThresholdBps:           v.rebalance.ThresholdBps,
		LastRebalanceTime:      domain.UnixSeconds(v.rebalance.LastRebalance),
		RebalanceCount:         v.rebalance.Count,
		TimeSinceLastRebalance: uint64(v.rebalance.TimeSinceLast(now) / time.Second),
		NextEligibleTime:       domain.UnixSeconds(v.rebalance.NextEligibleTime()),
	}
}

func (v *Vault) AllocationInfo() AllocationInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return AllocationInfo{
		ConservativeBps: v.allocation.ConservativeBps,
		ModerateBps:     v.allocation.ModerateBps,
		AggressiveBps:   v.allocation.AggressiveBps,
		TotalBps:        v.allocation.Total(),
	}
}

// UserInfo reports the account position and the headroom under the live limit.
func (v *Vault) UserInfo(ctx context.Context, account common.Address) (UserInfo, error) {
	quote, err := v.oracle.LatestPrice(ctx)
	if err != nil {
		return UserInfo{}, errors.Wrap(err, "user info")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	acc, _ := v.accounting.Account(account)
	limit := v.limits.CurrentLimit(quote.Price)
	available := domain.Available(&limit, &acc.Deposited)

	return UserInfo{
		DepositedAmount: acc.Deposited.Dec(),
		LastDepositTime: domain.UnixSeconds(acc.LastDeposit),
		AvailableLimit:  available.Dec(),
	}, nil
}

// Status is the aggregate snapshot. LedgerBalance is the custody balance on the token.
func (v *Vault) Status(ctx context.Context) (VaultStatus, error) {
	quote, err := v.oracle.LatestPrice(ctx)
	if err != nil {
		return VaultStatus{}, errors.Wrap(err, "vault status")
	}
	balance, err := v.token.BalanceOf(ctx, v.address)
	if err != nil {
		return VaultStatus{}, errors.Wrap(err, "read custody balance")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	total := v.accounting.Total()
	limit := v.limits.CurrentLimit(quote.Price)

	return VaultStatus{
		TotalDeposits:       total.Dec(),
		CurrentPrice:        quote.Price,
		CurrentDepositLimit: limit.Dec(),
		LedgerBalance:       balance.Dec(),
	}, nil
}

func (v *Vault) ConfigInfo() ConfigInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return ConfigInfo{
		Owner:                 v.owner,
		Address:               v.address,
		BaseLimit:             v.limits.BaseLimit.Dec(),
		PriceThreshold:        v.limits.PriceThreshold,
		HighMultiplierBps:     v.limits.HighMultiplierBps,
		LowMultiplierBps:      v.limits.LowMultiplierBps,
		RebalanceThresholdBps: v.rebalance.ThresholdBps,
		MinIntervalSeconds:    uint64(v.rebalance.MinInterval / time.Second),
		MaxHistoryLength:      v.history.Cap(),
		UpdateCooldownSeconds: uint64(v.volatility.UpdateCooldown / time.Second),
		Bands:                 v.bands,
	}
}

// PriceHistory returns the retained samples, oldest first.
func (v *Vault) PriceHistory() []domain.PriceSample {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.history.Samples()
}

// Accounts returns every account ever created, ordered by address.
func (v *Vault) Accounts() []domain.Account {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.accounting.Accounts()
}
