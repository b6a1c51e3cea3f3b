// Package recorder keeps a queryable history of vault events for analysis and the API.
package recorder

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// LedgerRecord is a stored deposit or withdrawal.
type LedgerRecord struct {
	EventID       string           `json:"event_id"`
	Timestamp     time.Time        `json:"ts"`
	Type          domain.EventType `json:"type"`
	Account       string           `json:"account"`
	Amount        string           `json:"amount"`
	TotalDeposits string           `json:"total_deposits"`
	Price         domain.Price     `json:"price"`
}

// RebalanceRecord is a stored rebalance execution.
type RebalanceRecord struct {
	EventID        string            `json:"event_id"`
	Timestamp      time.Time         `json:"ts"`
	Allocation     domain.Allocation `json:"allocation"`
	RebalanceCount uint64            `json:"rebalance_count"`
	VolatilityBps  domain.Bps        `json:"volatility_bps"`
}

// Recorder persists vault events and answers history queries.
type Recorder interface {
	Publish(e domain.Event) error
	AccountHistory(ctx context.Context, account common.Address, limit int) ([]LedgerRecord, error)
	RecentRebalances(ctx context.Context, limit int) ([]RebalanceRecord, error)
	Close() error
}
