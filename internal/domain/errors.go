package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrDepositLimitExceeded = errors.New("deposit limit exceeded")
	ErrCooldownActive       = errors.New("volatility update cooldown active")
	ErrRebalanceNotEligible = errors.New("rebalance not eligible")
	ErrOracleUnavailable    = errors.New("price oracle unavailable")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrTransferFailed       = errors.New("token transfer failed")
)

// CooldownError is returned when a volatility refresh comes before the cooldown elapsed.
type CooldownError struct {
	NextUpdate time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: next update at %s", ErrCooldownActive, e.NextUpdate.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// NotEligibleError carries the reason code of a failed eligibility check.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRebalanceNotEligible, e.Reason)
}

func (e *NotEligibleError) Unwrap() error { return ErrRebalanceNotEligible }

// Code maps an error to a stable snake_case reason used by the API and metrics labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrDepositLimitExceeded):
		return "deposit_limit_exceeded"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrRebalanceNotEligible):
		return "rebalance_not_eligible"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
