package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{nil, "ok"},
		{errors.Wrap(ErrInvalidAmount, "amount must be positive"), "invalid_amount"},
		{errors.Wrapf(ErrDepositLimitExceeded, "limit %d", 1), "deposit_limit_exceeded"},
		{&CooldownError{NextUpdate: time.Unix(1, 0)}, "cooldown_active"},
		{errors.Wrap(&NotEligibleError{Reason: ReasonVolatilityBelow}, "execute"), "rebalance_not_eligible"},
		{ErrOracleUnavailable, "oracle_unavailable"},
		{ErrTransferFailed, "transfer_failed"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err))
	}
}

func TestTypedErrorsCarryHints(t *testing.T) {
	next := time.Unix(1_700_003_600, 0)
	var err error = errors.Wrap(&CooldownError{NextUpdate: next}, "refresh volatility")

	var cooldown *CooldownError
	assert.True(t, errors.As(err, &cooldown))
	assert.Equal(t, next, cooldown.NextUpdate)
	assert.ErrorIs(t, err, ErrCooldownActive)

	err = &NotEligibleError{Reason: ReasonInsufficientHistory}
	assert.ErrorIs(t, err, ErrRebalanceNotEligible)
	assert.Contains(t, err.Error(), ReasonInsufficientHistory)
}
