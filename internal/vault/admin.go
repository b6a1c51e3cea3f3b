package vault

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// Config field names used in ConfigUpdated events.
const (
	FieldBaseLimit          = "base_limit"
	FieldPriceThreshold     = "price_threshold"
	FieldMultipliers        = "multipliers"
	FieldRebalanceThreshold = "rebalance_threshold_bps"
	FieldMinInterval        = "min_interval"
	FieldMaxHistoryLength   = "max_history_length"
	FieldUpdateCooldown     = "update_cooldown"
	FieldAllocationBands    = "allocation_bands"
	FieldOwner              = "owner"
)

// configure applies an owner-only change under the write lock. apply must leave
// the vault untouched when it returns an error.
func (v *Vault) configure(caller common.Address, field, value string, apply func() error) error {
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.authorizeLocked(caller)
	if err == nil {
		err = apply()
	}
	if err != nil {
		v.rejected(OpConfigure, err)
		return errors.Wrapf(err, "set %s", field)
	}

	v.logger.Info("vault configuration updated", zap.String("field", field), zap.String("value", value))
	v.commitLocked(domain.NewConfigUpdatedEvent(now, field, value))
	return nil
}

func (v *Vault) SetBaseLimit(caller common.Address, limit *uint256.Int) error {
	var value string
	if limit != nil {
		value = limit.Dec()
	}
	return v.configure(caller, FieldBaseLimit, value, func() error {
		if limit == nil {
			return errors.Wrap(domain.ErrInvalidConfig, "base limit is required")
		}
		next := v.limits
		next.BaseLimit = *limit
		if err := next.Validate(); err != nil {
			return err
		}
		v.limits = next
		return nil
	})
}

func (v *Vault) SetPriceThreshold(caller common.Address, threshold domain.Price) error {
	return v.configure(caller, FieldPriceThreshold, threshold.String(), func() error {
		next := v.limits
		next.PriceThreshold = threshold
		if err := next.Validate(); err != nil {
			return err
		}
		v.limits = next
		return nil
	})
}

func (v *Vault) SetMultipliers(caller common.Address, high, low domain.Bps) error {
	return v.configure(caller, FieldMultipliers, fmt.Sprintf("%d/%d", high, low), func() error {
		v.limits.HighMultiplierBps = high
		v.limits.LowMultiplierBps = low
		return nil
	})
}

func (v *Vault) SetRebalanceThreshold(caller common.Address, threshold domain.Bps) error {
	return v.configure(caller, FieldRebalanceThreshold, fmt.Sprint(threshold), func() error {
		v.rebalance.ThresholdBps = threshold
		return nil
	})
}

func (v *Vault) SetMinInterval(caller common.Address, interval time.Duration) error {
	return v.configure(caller, FieldMinInterval, interval.String(), func() error {
		if interval < 0 {
			return errors.Wrap(domain.ErrInvalidConfig, "min interval must not be negative")
		}
		v.rebalance.MinInterval = interval
		return nil
	})
}

// SetMaxHistoryLength resizes the price window, keeping the newest samples.
func (v *Vault) SetMaxHistoryLength(caller common.Address, length int) error {
	return v.configure(caller, FieldMaxHistoryLength, fmt.Sprint(length), func() error {
		return v.history.Resize(length)
	})
}

func (v *Vault) SetUpdateCooldown(caller common.Address, cooldown time.Duration) error {
	return v.configure(caller, FieldUpdateCooldown, cooldown.String(), func() error {
		if cooldown < 0 {
			return errors.Wrap(domain.ErrInvalidConfig, "update cooldown must not be negative")
		}
		v.volatility.UpdateCooldown = cooldown
		return nil
	})
}

// SetAllocationBands moves the band boundaries. The committed allocation only
// changes on the next rebalance.
func (v *Vault) SetAllocationBands(caller common.Address, bands domain.AllocationBands) error {
	value := fmt.Sprintf("%d/%d", bands.LowUpperBps, bands.HighLowerBps)
	return v.configure(caller, FieldAllocationBands, value, func() error {
		if err := bands.Validate(); err != nil {
			return err
		}
		v.bands = bands
		return nil
	})
}

func (v *Vault) TransferOwnership(caller, newOwner common.Address) error {
	return v.configure(caller, FieldOwner, newOwner.Hex(), func() error {
		if newOwner == (common.Address{}) {
			return errors.Wrap(domain.ErrInvalidConfig, "new owner must not be the zero address")
		}
		v.owner = newOwner
		return nil
	})
}
