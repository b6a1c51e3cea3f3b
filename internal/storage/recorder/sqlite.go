package recorder

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

const defaultQueryLimit = 100

// SQLiteRecorder stores vault events in a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database at dbPath and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// readers (the API) run alongside the writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id       TEXT NOT NULL UNIQUE,
			timestamp      INTEGER NOT NULL,
			type           TEXT NOT NULL,
			account        TEXT NOT NULL,
			amount         TEXT NOT NULL,
			total_deposits TEXT NOT NULL,
			price          INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_events(account, timestamp)`,

		`CREATE TABLE IF NOT EXISTS volatility_updates (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id       TEXT NOT NULL UNIQUE,
			timestamp      INTEGER NOT NULL,
			volatility_bps INTEGER NOT NULL,
			price_count    INTEGER NOT NULL,
			price          INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_volatility_ts ON volatility_updates(timestamp)`,

		`CREATE TABLE IF NOT EXISTS rebalances (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id         TEXT NOT NULL UNIQUE,
			timestamp        INTEGER NOT NULL,
			conservative_bps INTEGER NOT NULL,
			moderate_bps     INTEGER NOT NULL,
			aggressive_bps   INTEGER NOT NULL,
			rebalance_count  INTEGER NOT NULL,
			volatility_bps   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rebalances_ts ON rebalances(timestamp)`,

		`CREATE TABLE IF NOT EXISTS config_changes (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id  TEXT NOT NULL UNIQUE,
			timestamp INTEGER NOT NULL,
			field     TEXT NOT NULL,
			value     TEXT NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return errors.Wrapf(err, "exec %q", s[:40])
		}
	}
	return nil
}

// Publish stores the event in the table matching its type. Replays of an
// already stored event are ignored.
func (r *SQLiteRecorder) Publish(e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := e.Timestamp.Unix()
	var err error
	switch e.Type {
	case domain.EventDeposited, domain.EventWithdrawn:
		_, err = r.db.Exec(`INSERT OR IGNORE INTO ledger_events
			(event_id, timestamp, type, account, amount, total_deposits, price)
			VALUES (?,?,?,?,?,?,?)`,
			e.ID, ts, string(e.Type), e.Account, e.Amount, e.TotalDeposits, int64(e.Price))
	case domain.EventVolatilityUpdated:
		_, err = r.db.Exec(`INSERT OR IGNORE INTO volatility_updates
			(event_id, timestamp, volatility_bps, price_count, price)
			VALUES (?,?,?,?,?)`,
			e.ID, ts, uint32(e.VolatilityBps), e.PriceCount, int64(e.Price))
	case domain.EventRebalanceTriggered:
		if e.Allocation == nil {
			return errors.Errorf("rebalance event %s has no allocation", e.ID)
		}
		_, err = r.db.Exec(`INSERT OR IGNORE INTO rebalances
			(event_id, timestamp, conservative_bps, moderate_bps, aggressive_bps, rebalance_count, volatility_bps)
			VALUES (?,?,?,?,?,?,?)`,
			e.ID, ts, uint32(e.Allocation.ConservativeBps), uint32(e.Allocation.ModerateBps),
			uint32(e.Allocation.AggressiveBps), int64(e.RebalanceCount), uint32(e.VolatilityBps))
	case domain.EventConfigUpdated:
		_, err = r.db.Exec(`INSERT OR IGNORE INTO config_changes
			(event_id, timestamp, field, value) VALUES (?,?,?,?)`,
			e.ID, ts, e.Field, e.Value)
	default:
		r.logger.Warn("unknown event type, not recorded", zap.String("type", string(e.Type)))
		return nil
	}

	return errors.Wrapf(err, "record %s event", e.Type)
}

// AccountHistory returns the newest ledger entries of account, newest first.
func (r *SQLiteRecorder) AccountHistory(ctx context.Context, account common.Address, limit int) ([]LedgerRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := r.db.QueryContext(ctx, `SELECT event_id, timestamp, type, account, amount, total_deposits, price
		FROM ledger_events WHERE account = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		account.Hex(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query account history")
	}
	defer rows.Close()

	var out []LedgerRecord
	for rows.Next() {
		var (
			rec   LedgerRecord
			ts    int64
			typ   string
			price sql.NullInt64
		)
		if err := rows.Scan(&rec.EventID, &ts, &typ, &rec.Account, &rec.Amount, &rec.TotalDeposits, &price); err != nil {
			return nil, errors.Wrap(err, "scan ledger event")
		}
		rec.Timestamp = time.Unix(ts, 0).UTC()
		rec.Type = domain.EventType(typ)
		rec.Price = domain.Price(price.Int64)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate ledger events")
}

// RecentRebalances returns the newest rebalances, newest first.
func (r *SQLiteRecorder) RecentRebalances(ctx context.Context, limit int) ([]RebalanceRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := r.db.QueryContext(ctx, `SELECT event_id, timestamp, conservative_bps, moderate_bps, aggressive_bps,
			rebalance_count, volatility_bps
		FROM rebalances ORDER BY rebalance_count DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query rebalances")
	}
	defer rows.Close()

	var out []RebalanceRecord
	for rows.Next() {
		var (
			rec                          RebalanceRecord
			ts                           int64
			conservative, moderate, aggr uint32
			count                        int64
			vol                          uint32
		)
		if err := rows.Scan(&rec.EventID, &ts, &conservative, &moderate, &aggr, &count, &vol); err != nil {
			return nil, errors.Wrap(err, "scan rebalance")
		}
		rec.Timestamp = time.Unix(ts, 0).UTC()
		rec.Allocation = domain.Allocation{
			ConservativeBps: domain.Bps(conservative),
			ModerateBps:     domain.Bps(moderate),
			AggressiveBps:   domain.Bps(aggr),
		}
		rec.RebalanceCount = uint64(count)
		rec.VolatilityBps = domain.Bps(vol)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate rebalances")
}

func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
