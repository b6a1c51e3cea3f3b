package keeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

type fakeUpkeep struct {
	mu         sync.Mutex
	decision   domain.EligibilityDecision
	executeErr error
	refreshErr error
	executes   int
	refreshes  int
}

func (f *fakeUpkeep) Eligibility() domain.EligibilityDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decision
}

func (f *fakeUpkeep) Execute(context.Context) (domain.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes++
	if f.executeErr != nil {
		return domain.Allocation{}, f.executeErr
	}
	return domain.DefaultAllocation(), nil
}

func (f *fakeUpkeep) RefreshVolatility(context.Context) (vault.VolatilityInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return vault.VolatilityInfo{PriceCount: f.refreshes}, f.refreshErr
}

func (f *fakeUpkeep) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executes, f.refreshes
}

func TestKeeper_PerformUpkeep(t *testing.T) {
	t.Run("skips when not eligible", func(t *testing.T) {
		up := &fakeUpkeep{decision: domain.EligibilityDecision{Reason: domain.ReasonVolatilityBelow}}
		k := New(context.Background(), up, zap.NewNop(), time.Second)

		done, err := k.PerformUpkeep()
		require.NoError(t, err)
		assert.False(t, done)
		executes, _ := up.counts()
		assert.Zero(t, executes)
	})

	t.Run("executes when eligible", func(t *testing.T) {
		up := &fakeUpkeep{decision: domain.EligibilityDecision{Eligible: true, Reason: domain.ReasonEligible}}
		k := New(context.Background(), up, zap.NewNop(), time.Second)

		done, err := k.PerformUpkeep()
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("lost race is not an error", func(t *testing.T) {
		up := &fakeUpkeep{
			decision:   domain.EligibilityDecision{Eligible: true},
			executeErr: &domain.NotEligibleError{Reason: domain.ReasonIntervalNotElapsed},
		}
		k := New(context.Background(), up, zap.NewNop(), time.Second)

		done, err := k.PerformUpkeep()
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("other failures surface", func(t *testing.T) {
		up := &fakeUpkeep{
			decision:   domain.EligibilityDecision{Eligible: true},
			executeErr: errors.New("disk gone"),
		}
		k := New(context.Background(), up, zap.NewNop(), time.Second)

		_, err := k.PerformUpkeep()
		assert.Error(t, err)
	})
}

func TestKeeper_RefreshVolatility(t *testing.T) {
	up := &fakeUpkeep{}
	k := New(context.Background(), up, zap.NewNop(), time.Second)
	assert.NoError(t, k.RefreshVolatility())

	up.refreshErr = &domain.CooldownError{NextUpdate: time.Now().Add(time.Minute)}
	assert.NoError(t, k.RefreshVolatility(), "cooldown is expected")

	up.refreshErr = errors.Wrap(domain.ErrOracleUnavailable, "stale")
	assert.ErrorIs(t, k.RefreshVolatility(), domain.ErrOracleUnavailable)
}

func TestKeeper_Schedule(t *testing.T) {
	up := &fakeUpkeep{decision: domain.EligibilityDecision{Eligible: true}}
	k := New(context.Background(), up, zap.NewNop(), time.Second)

	require.NoError(t, k.Register("* * * * * *", "* * * * * *"))
	k.Start()

	assert.Eventually(t, func() bool {
		executes, refreshes := up.counts()
		return executes > 0 && refreshes > 0
	}, 3*time.Second, 50*time.Millisecond)

	k.Stop()
}

func TestKeeper_RegisterInvalidSpec(t *testing.T) {
	k := New(context.Background(), &fakeUpkeep{}, zap.NewNop(), time.Second)
	assert.Error(t, k.Register("not a spec", ""))
	assert.Error(t, k.Register("", "* * *"))
	assert.NoError(t, k.Register("", ""))
}
