package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/oracle"
	"github.com/vadiminshakov/riskvault/internal/services/pricer"
	"github.com/vadiminshakov/riskvault/internal/storage/journal"
	"github.com/vadiminshakov/riskvault/internal/token"
	"github.com/vadiminshakov/riskvault/internal/vault"
	"github.com/vadiminshakov/riskvault/pkg/retrier"
)

const ownerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	handler http.Handler
	vault   *vault.Vault
	ledger  *token.Memory
	pricer  *pricer.StaticPricer
	clock   *clock
	owner   *identity.Signer
	alice   *identity.Signer
}

type harnessOptions struct {
	vaultOpts  []vault.Option
	serverOpts []Option
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	owner, err := identity.LoadKey(ownerKey)
	require.NoError(t, err)
	alice, err := identity.GenerateKey()
	require.NoError(t, err)

	clk := &clock{t: time.Unix(1_700_000_000, 0).UTC()}
	logger := zap.NewNop()

	p := pricer.NewStaticPricer(decimal.NewFromInt(2000))
	adapter := oracle.NewAdapter(p, domain.Pair{From: "ETH", To: "USDT"}, 0, logger,
		oracle.WithRetrier(retrier.New(retrier.WithMaxRetries(0))),
		oracle.WithClock(clk.Now))

	threshold, err := domain.ParsePrice("2000")
	require.NoError(t, err)
	ledger := token.NewMemory("USDX")

	v, err := vault.New(vault.Config{
		Owner: owner.Address(),
		DepositLimit: domain.DepositLimitConfig{
			BaseLimit:         *uint256.NewInt(1000),
			PriceThreshold:    threshold,
			HighMultiplierBps: 5000,
			LowMultiplierBps:  5000,
		},
		RebalanceThresholdBps: 100,
		MinInterval:           time.Hour,
		MaxHistoryLength:      20,
		UpdateCooldown:        5 * time.Minute,
		Bands:                 domain.DefaultAllocationBands(),
	}, adapter, ledger, logger, append([]vault.Option{vault.WithClock(clk.Now)}, opts.vaultOpts...)...)
	require.NoError(t, err)

	serverOpts := append([]Option{
		WithLedger(ledger),
		WithClock(clk.Now),
	}, opts.serverOpts...)
	srv := NewServer("127.0.0.1:0", v, logger, serverOpts...)

	return &harness{
		handler: srv.Handler(),
		vault:   v,
		ledger:  ledger,
		pricer:  p,
		clock:   clk,
		owner:   owner,
		alice:   alice,
	}
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (h *harness) post(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

// signed posts payload signed by signer; action and a one minute deadline are filled in.
func (h *harness) signed(t *testing.T, path string, signer *identity.Signer, action string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	payload["action"] = action
	if _, ok := payload["vault"]; !ok {
		payload["vault"] = h.vault.Address().Hex()
	}
	if _, ok := payload["deadline"]; !ok {
		payload["deadline"] = h.clock.Now().Add(time.Minute).Unix()
	}
	body, sig, err := SignBody(signer, payload)
	require.NoError(t, err)
	return h.send(path, body, sig)
}

func (h *harness) send(path string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// fund mints amount to signer and approves the vault for it.
func (h *harness) fund(t *testing.T, signer *identity.Signer, amount string) {
	t.Helper()
	rec := h.signed(t, "/token/mint", h.owner, ActionMint, map[string]any{
		"account": signer.Address().Hex(), "amount": amount,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.signed(t, "/token/approve", signer, ActionApprove, map[string]any{"amount": amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type memJournal struct {
	mu      sync.Mutex
	records []journal.Record
}

func (j *memJournal) append(e domain.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, journal.Record{Index: uint64(len(j.records) + 1), Event: e})
}

func (j *memJournal) EventsAfter(index uint64) ([]journal.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Record
	for _, r := range j.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}
