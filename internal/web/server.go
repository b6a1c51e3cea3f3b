// Package web serves the vault's JSON API, the signed operation endpoints,
// the live event stream and a small HTML dashboard.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/services/analytics"
	"github.com/vadiminshakov/riskvault/internal/storage/journal"
	"github.com/vadiminshakov/riskvault/internal/storage/recorder"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

const (
	defaultPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type eventLog interface {
	EventsAfter(index uint64) ([]journal.Record, error)
}

type subscriber interface {
	Subscribe() chan domain.Event
	Unsubscribe(ch chan domain.Event)
}

type history interface {
	AccountHistory(ctx context.Context, account common.Address, limit int) ([]recorder.LedgerRecord, error)
	RecentRebalances(ctx context.Context, limit int) ([]recorder.RebalanceRecord, error)
}

// Ledger is the token surface exposed to API users.
type Ledger interface {
	Symbol() string
	Mint(to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
	Allowance(owner, spender common.Address) uint256.Int
	BalanceOf(ctx context.Context, account common.Address) (uint256.Int, error)
}

type requestMetrics interface {
	ObserveRequest(route string, code int, d time.Duration)
	Handler() http.Handler
}

// Server exposes the vault over HTTP.
type Server struct {
	addr         string
	vault        *vault.Vault
	ledger       Ledger
	journal      eventLog
	live         subscriber
	history      history
	metrics      requestMetrics
	analyzer     *analytics.Analyzer
	guard        *identity.ReplayGuard
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Server)

func WithLedger(l Ledger) Option { return func(s *Server) { s.ledger = l } }

// WithJournal enables /events/stream, replayed from the event log.
func WithJournal(j eventLog) Option { return func(s *Server) { s.journal = j } }

// WithBroadcaster wakes stream handlers on new events instead of waiting for the next poll.
func WithBroadcaster(b subscriber) Option { return func(s *Server) { s.live = b } }

func WithHistory(h history) Option { return func(s *Server) { s.history = h } }

func WithMetrics(m requestMetrics) Option { return func(s *Server) { s.metrics = m } }

func WithAnalyzer(a *analytics.Analyzer) Option { return func(s *Server) { s.analyzer = a } }

func WithReplayGuard(g *identity.ReplayGuard) Option { return func(s *Server) { s.guard = g } }

func WithPollInterval(d time.Duration) Option { return func(s *Server) { s.pollInterval = d } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer creates a new web server instance.
func NewServer(addr string, v *vault.Vault, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		vault:        v,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = identity.NewReplayGuard(identity.DefaultSignatureTTL, s.now)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /vault/status", s.handleStatus)
	mux.HandleFunc("GET /vault/volatility", s.handleVolatility)
	mux.HandleFunc("GET /vault/rebalance", s.handleRebalance)
	mux.HandleFunc("GET /vault/allocation", s.handleAllocation)
	mux.HandleFunc("GET /vault/config", s.handleConfig)
	mux.HandleFunc("GET /vault/prices", s.handlePrices)
	mux.HandleFunc("GET /vault/accounts", s.handleAccounts)
	mux.HandleFunc("GET /vault/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /accounts/{address}", s.handleUserInfo)
	mux.HandleFunc("GET /accounts/{address}/history", s.handleAccountHistory)
	mux.HandleFunc("GET /rebalances", s.handleRebalances)
	mux.HandleFunc("GET /upkeep/check", s.handleCheckUpkeep)
	mux.HandleFunc("GET /token", s.handleTokenInfo)
	mux.HandleFunc("GET /token/balance/{address}", s.handleTokenBalance)
	mux.HandleFunc("GET /token/allowance/{owner}/{spender}", s.handleTokenAllowance)
	mux.HandleFunc("GET /events/stream", s.handleEventStream)

	mux.HandleFunc("POST /vault/deposit", s.handleDeposit)
	mux.HandleFunc("POST /vault/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /vault/volatility/refresh", s.handleRefresh)
	mux.HandleFunc("POST /upkeep/perform", s.handlePerformUpkeep)
	mux.HandleFunc("POST /vault/rebalance/manual", s.handleManualTrigger)
	mux.HandleFunc("POST /admin/{field}", s.handleAdmin)
	mux.HandleFunc("POST /token/approve", s.handleApprove)
	mux.HandleFunc("POST /token/mint", s.handleMint)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
		return s.instrument(mux)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http api listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
