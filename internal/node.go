package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/riskvault/config"
	"github.com/vadiminshakov/riskvault/internal/events"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/keeper"
	"github.com/vadiminshakov/riskvault/internal/metrics"
	"github.com/vadiminshakov/riskvault/internal/oracle"
	"github.com/vadiminshakov/riskvault/internal/services/analytics"
	"github.com/vadiminshakov/riskvault/internal/storage/journal"
	"github.com/vadiminshakov/riskvault/internal/storage/recorder"
	"github.com/vadiminshakov/riskvault/internal/storage/statefile"
	"github.com/vadiminshakov/riskvault/internal/token"
	"github.com/vadiminshakov/riskvault/internal/vault"
	"github.com/vadiminshakov/riskvault/internal/web"
)

const liveBuffer = 64

// Node is a running vault with its automation and HTTP API.
type Node struct {
	Config config.Config
	Vault  *vault.Vault

	ledger   *persistentLedger
	prices   *priceProvider
	journal  *journal.WALStore
	recorder *recorder.SQLiteRecorder
	metrics  *metrics.Collector
	keeper   *keeper.Keeper
	server   *web.Server
	logger   *zap.Logger
}

// NewNode wires storage, the oracle, the vault, the keeper and the API from conf.
// State found in the data dir takes precedence over the yaml vault settings.
func NewNode(ctx context.Context, conf config.Config, logger *zap.Logger) (_ *Node, err error) {
	n := &Node{Config: conf, logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if n.prices, err = newPriceProvider(ctx, conf, logger); err != nil {
		return nil, errors.Wrap(err, "failed to create pricer")
	}
	feed := oracle.NewAdapter(n.prices.pricer, conf.Pair, conf.MaxStaleness, logger)

	store, err := statefile.New[snapshot](conf.StatePath())
	if err != nil {
		return nil, err
	}
	saved, err := store.Load()
	if err != nil {
		return nil, err
	}

	if n.journal, err = journal.NewWALStore(conf.JournalDir()); err != nil {
		return nil, errors.Wrap(err, "failed to open event journal")
	}
	if n.recorder, err = recorder.NewSQLiteRecorder(conf.RecorderPath(), logger); err != nil {
		return nil, errors.Wrap(err, "failed to open history recorder")
	}
	n.metrics = metrics.NewCollector(logger)
	live := events.NewBroadcaster(liveBuffer)

	var tok *token.Memory
	if saved != nil {
		if tok, err = token.Restore(saved.Token); err != nil {
			return nil, errors.Wrap(err, "failed to restore token")
		}
	} else {
		tok = token.NewMemory(conf.TokenSymbol)
	}
	guard := identity.NewReplayGuard(identity.DefaultSignatureTTL, time.Now)
	if saved != nil {
		guard.Restore(saved.Replay)
	}
	p := newPersister(store, tok, guard)
	n.ledger = &persistentLedger{Memory: tok, persister: p}

	opts := []vault.Option{
		vault.WithEventSink(events.NewFanout(logger, n.journal, n.recorder, n.metrics, live)),
		vault.WithStateStore(p),
		vault.WithMetrics(n.metrics),
	}
	if saved != nil {
		n.Vault, err = vault.Restore(saved.Vault, feed, tok, logger, opts...)
		if err == nil && saved.Vault.Owner != conf.Vault.Owner {
			logger.Warn("stored owner differs from config, keeping stored owner",
				zap.String("stored", saved.Vault.Owner.Hex()), zap.String("config", conf.Vault.Owner.Hex()))
		}
	} else {
		n.Vault, err = vault.New(conf.Vault, feed, tok, logger, opts...)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vault")
	}
	if err := p.Save(n.Vault.Snapshot()); err != nil {
		return nil, errors.Wrap(err, "failed to persist initial state")
	}
	n.syncMetrics()

	n.keeper = keeper.New(ctx, n.Vault, logger, conf.JobTimeout)
	if err := n.keeper.Register(conf.RefreshSchedule, conf.UpkeepSchedule); err != nil {
		return nil, err
	}

	n.server = web.NewServer(conf.HTTPAddr, n.Vault, logger,
		web.WithLedger(n.ledger),
		web.WithReplayGuard(guard),
		web.WithJournal(n.journal),
		web.WithBroadcaster(live),
		web.WithHistory(n.recorder),
		web.WithMetrics(n.metrics),
		web.WithAnalyzer(analytics.NewAnalyzer(conf.EMAPeriod, conf.ATRPeriod)),
	)

	logger.Info("vault ready",
		zap.String("owner", n.Vault.Owner().Hex()),
		zap.String("address", n.Vault.Address().Hex()),
		zap.String("platform", conf.Platform),
		zap.String("pair", conf.Pair.String()),
		zap.Bool("restored", saved != nil))
	return n, nil
}

// syncMetrics seeds the state gauges, which are otherwise driven by events.
func (n *Node) syncMetrics() {
	st := n.Vault.Snapshot()
	var total uint256.Int
	for _, acc := range n.Vault.Accounts() {
		total.Add(&total, &acc.Deposited)
	}
	n.metrics.SetState(total.Dec(), st.VolatilityBps, st.Allocation)
}

// Handler exposes the API routes without starting a listener.
func (n *Node) Handler() http.Handler {
	return n.server.Handler()
}

// Run starts the keeper and serves HTTP until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.keeper.Start()
		<-ctx.Done()
		n.logger.Info("Context done, stopping keeper.")
		n.keeper.Stop()
		return nil
	})
	g.Go(func() error {
		if len(n.Config.TLSDomains) > 0 {
			return n.server.StartWithAutoTLS(ctx, n.Config.TLSDomains, n.Config.TLSCacheDir)
		}
		return n.server.Start(ctx)
	})
	return g.Wait()
}

// Close releases storage and price source connections.
func (n *Node) Close() {
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.logger.Error("failed to close journal", zap.Error(err))
		}
	}
	if n.recorder != nil {
		if err := n.recorder.Close(); err != nil {
			n.logger.Error("failed to close recorder", zap.Error(err))
		}
	}
	if n.prices != nil {
		if err := n.prices.close(); err != nil {
			n.logger.Error("failed to close price source", zap.Error(err))
		}
	}
}
