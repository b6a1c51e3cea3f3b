package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/token"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeOracle struct {
	mu    sync.Mutex
	price domain.Price
	err   error
	calls int
	clock *fakeClock
}

func (o *fakeOracle) LatestPrice(_ context.Context) (domain.Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return domain.Quote{}, o.err
	}
	return domain.Quote{Price: o.price, UpdatedAt: o.clock.Now()}, nil
}

func (o *fakeOracle) Set(price string) {
	p, err := domain.ParsePrice(price)
	if err != nil {
		panic(err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = p
	o.err = nil
}

func (o *fakeOracle) Fail() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = errors.Wrap(domain.ErrOracleUnavailable, "feed stale")
}

func (o *fakeOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type memSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *memSink) Publish(e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

type memStore struct {
	mu    sync.Mutex
	last  *State
	saves int
}

func (s *memStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &st
	s.saves++
	return nil
}

type rejections struct {
	mu    sync.Mutex
	codes []string
}

func (r *rejections) ObserveRejected(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, op+":"+domain.Code(err))
}

type harness struct {
	vault   *Vault
	clock   *fakeClock
	oracle  *fakeOracle
	token   *token.Memory
	sink    *memSink
	store   *memStore
	rejects *rejections
}

func defaultConfig() Config {
	return Config{
		Owner: owner,
		DepositLimit: domain.DepositLimitConfig{
			BaseLimit:         *uint256.NewInt(1000),
			PriceThreshold:    200000000000, // 2000.00000000
			HighMultiplierBps: 5000,
			LowMultiplierBps:  5000,
		},
		RebalanceThresholdBps: 100,
		MinInterval:           time.Hour,
		MaxHistoryLength:      20,
		UpdateCooldown:        5 * time.Minute,
		Bands:                 domain.DefaultAllocationBands(),
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		clock:   &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()},
		token:   token.NewMemory("rvUSD"),
		sink:    &memSink{},
		store:   &memStore{},
		rejects: &rejections{},
	}
	h.oracle = &fakeOracle{clock: h.clock}
	h.oracle.Set("2000")

	v, err := New(cfg, h.oracle, h.token, zap.NewNop(),
		WithClock(h.clock.Now),
		WithEventSink(h.sink),
		WithStateStore(h.store),
		WithMetrics(h.rejects),
	)
	require.NoError(t, err)
	h.vault = v

	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, h.token.Mint(who, uint256.NewInt(1_000_000)))
		require.NoError(t, h.token.Approve(who, v.Address(), uint256.NewInt(1_000_000)))
	}
	return h
}

func (h *harness) balance(t *testing.T, who common.Address) uint64 {
	t.Helper()
	b, err := h.token.BalanceOf(context.Background(), who)
	require.NoError(t, err)
	return b.Uint64()
}

func (h *harness) deposited(who common.Address) uint64 {
	for _, acc := range h.vault.Accounts() {
		if acc.Owner == who {
			return acc.Deposited.Uint64()
		}
	}
	return 0
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }
