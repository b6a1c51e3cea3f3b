package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

func TestCollector_Publish(t *testing.T) {
	c := NewCollector(zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	require.NoError(t, c.Publish(domain.NewDepositedEvent(now, alice, uint256.NewInt(100), uint256.NewInt(100), 200000000000)))
	require.NoError(t, c.Publish(domain.NewWithdrawnEvent(now, alice, uint256.NewInt(30), uint256.NewInt(70), 0)))
	require.NoError(t, c.Publish(domain.NewVolatilityUpdatedEvent(now, 1200, 4, 210000000000)))
	high := domain.Allocation{ConservativeBps: 7000, ModerateBps: 2000, AggressiveBps: 1000}
	require.NoError(t, c.Publish(domain.NewRebalanceTriggeredEvent(now, high, 1, 1200)))
	require.NoError(t, c.Publish(domain.NewConfigUpdatedEvent(now, "base_limit", "5")))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.deposits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.withdrawals))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rebalances))
	assert.Equal(t, 70.0, testutil.ToFloat64(c.totalDeposits))
	assert.Equal(t, 2100.0, testutil.ToFloat64(c.price), "withdrawal without sample keeps the last price")
	assert.Equal(t, 1200.0, testutil.ToFloat64(c.volatility))
	assert.Equal(t, 7000.0, testutil.ToFloat64(c.allocation.WithLabelValues("conservative")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.configChanges.WithLabelValues("base_limit")))
}

func TestCollector_ObserveRejected(t *testing.T) {
	c := NewCollector(zap.NewNop())

	c.ObserveRejected("deposit", errors.Wrap(domain.ErrDepositLimitExceeded, "limit"))
	c.ObserveRejected("deposit", domain.ErrDepositLimitExceeded)
	c.ObserveRejected("refresh_volatility", &domain.CooldownError{})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.rejected.WithLabelValues("deposit", "deposit_limit_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected.WithLabelValues("refresh_volatility", "cooldown_active")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(zap.NewNop())
	c.SetState("42", 300, domain.DefaultAllocation())
	c.ObserveRequest("/vault/status", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "riskvault_total_deposits 42")
	assert.Contains(t, string(body), `riskvault_allocation_bps{tier="aggressive"} 5000`)
	assert.Contains(t, string(body), "riskvault_http_request_duration_seconds_count")
}
