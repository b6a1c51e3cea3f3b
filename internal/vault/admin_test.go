package vault

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

func TestAdmin_RequiresOwner(t *testing.T) {
	h := newHarness(t, defaultConfig())
	before := h.vault.ConfigInfo()

	setters := map[string]func() error{
		"base limit":      func() error { return h.vault.SetBaseLimit(alice, uint256.NewInt(5)) },
		"price threshold": func() error { return h.vault.SetPriceThreshold(alice, 1) },
		"multipliers":     func() error { return h.vault.SetMultipliers(alice, 1, 1) },
		"rebalance":       func() error { return h.vault.SetRebalanceThreshold(alice, 1) },
		"min interval":    func() error { return h.vault.SetMinInterval(alice, time.Second) },
		"history length":  func() error { return h.vault.SetMaxHistoryLength(alice, 5) },
		"cooldown":        func() error { return h.vault.SetUpdateCooldown(alice, time.Second) },
		"bands":           func() error { return h.vault.SetAllocationBands(alice, domain.AllocationBands{LowUpperBps: 1, HighLowerBps: 2}) },
		"ownership":       func() error { return h.vault.TransferOwnership(alice, alice) },
	}

	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, set(), domain.ErrUnauthorized)
		})
	}

	assert.Equal(t, before, h.vault.ConfigInfo())
	assert.Empty(t, h.sink.Events())
}

func TestAdmin_Setters(t *testing.T) {
	h := newHarness(t, defaultConfig())

	require.NoError(t, h.vault.SetBaseLimit(owner, uint256.NewInt(2000)))
	require.NoError(t, h.vault.SetPriceThreshold(owner, 250000000000))
	require.NoError(t, h.vault.SetMultipliers(owner, 2000, 8000))
	require.NoError(t, h.vault.SetRebalanceThreshold(owner, 300))
	require.NoError(t, h.vault.SetMinInterval(owner, 2*time.Hour))
	require.NoError(t, h.vault.SetMaxHistoryLength(owner, 10))
	require.NoError(t, h.vault.SetUpdateCooldown(owner, time.Minute))
	require.NoError(t, h.vault.SetAllocationBands(owner, domain.AllocationBands{LowUpperBps: 300, HighLowerBps: 900}))

	cfg := h.vault.ConfigInfo()
	assert.Equal(t, "2000", cfg.BaseLimit)
	assert.Equal(t, domain.Price(250000000000), cfg.PriceThreshold)
	assert.Equal(t, domain.Bps(2000), cfg.HighMultiplierBps)
	assert.Equal(t, domain.Bps(8000), cfg.LowMultiplierBps)
	assert.Equal(t, domain.Bps(300), cfg.RebalanceThresholdBps)
	assert.Equal(t, uint64(7200), cfg.MinIntervalSeconds)
	assert.Equal(t, 10, cfg.MaxHistoryLength)
	assert.Equal(t, uint64(60), cfg.UpdateCooldownSeconds)
	assert.Equal(t, domain.AllocationBands{LowUpperBps: 300, HighLowerBps: 900}, cfg.Bands)

	events := h.sink.Events()
	require.Len(t, events, 8)
	assert.Equal(t, domain.EventConfigUpdated, events[0].Type)
	assert.Equal(t, FieldBaseLimit, events[0].Field)
	assert.Equal(t, "2000", events[0].Value)
	assert.Equal(t, "2500.00000000", events[1].Value)
	assert.Equal(t, "2000/8000", events[2].Value)
	assert.Equal(t, 8, h.store.saves)

	// the new threshold is in force: 2000 is below 2500
	user, err := h.vault.UserInfo(context.Background(), alice)
	require.NoError(t, err)
	// 2000 - 2000*8000*500/2500/10000 = 1680
	assert.Equal(t, "1680", user.AvailableLimit)
}

func TestAdmin_NilBaseLimitFromNonOwner(t *testing.T) {
	h := newHarness(t, defaultConfig())

	assert.ErrorIs(t, h.vault.SetBaseLimit(alice, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.vault.SetBaseLimit(owner, nil), domain.ErrInvalidConfig)

	h.rejects.mu.Lock()
	defer h.rejects.mu.Unlock()
	assert.Equal(t, []string{OpConfigure + ":unauthorized", OpConfigure + ":invalid_config"}, h.rejects.codes)
}

func TestAdmin_InvalidValuesLeaveConfigUntouched(t *testing.T) {
	h := newHarness(t, defaultConfig())
	before := h.vault.ConfigInfo()

	tooWide := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	assert.ErrorIs(t, h.vault.SetBaseLimit(owner, tooWide), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetBaseLimit(owner, nil), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetPriceThreshold(owner, 0), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetMinInterval(owner, -time.Second), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetUpdateCooldown(owner, -time.Second), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetMaxHistoryLength(owner, 1), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.SetAllocationBands(owner, domain.AllocationBands{LowUpperBps: 900, HighLowerBps: 300}), domain.ErrInvalidConfig)
	assert.ErrorIs(t, h.vault.TransferOwnership(owner, [20]byte{}), domain.ErrInvalidConfig)

	assert.Equal(t, before, h.vault.ConfigInfo())
	assert.Empty(t, h.sink.Events())
}

func TestAdmin_ShrinkHistoryKeepsNewest(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.UpdateCooldown = 0
	h := newHarness(t, cfg)

	for _, p := range []string{"1000", "1100", "1200", "1300", "1400"} {
		h.oracle.Set(p)
		_, err := h.vault.RefreshVolatility(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, h.vault.SetMaxHistoryLength(owner, 2))
	samples := h.vault.PriceHistory()
	require.Len(t, samples, 2)
	assert.Equal(t, domain.Price(130000000000), samples[0].Price)
	assert.Equal(t, domain.Price(140000000000), samples[1].Price)
}

func TestAdmin_TransferOwnership(t *testing.T) {
	h := newHarness(t, defaultConfig())

	require.NoError(t, h.vault.TransferOwnership(owner, bob))
	assert.Equal(t, bob, h.vault.Owner())

	assert.ErrorIs(t, h.vault.SetRebalanceThreshold(owner, 1), domain.ErrUnauthorized)
	assert.NoError(t, h.vault.SetRebalanceThreshold(bob, 1))
}
