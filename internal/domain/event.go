package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventType names a vault event.
type EventType string

const (
	EventDeposited          EventType = "deposited"
	EventWithdrawn          EventType = "withdrawn"
	EventVolatilityUpdated  EventType = "volatility_updated"
	EventRebalanceTriggered EventType = "rebalance_triggered"
	EventConfigUpdated      EventType = "config_updated"
)

// Event is emitted after a vault mutation commits.
// Amounts are base-10 strings so JSON consumers keep full precision.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	Timestamp      time.Time   `json:"ts"`
	Account        string      `json:"account,omitempty"`
	Amount         string      `json:"amount,omitempty"`
	TotalDeposits  string      `json:"total_deposits,omitempty"`
	Price          Price       `json:"price,omitempty"`
	VolatilityBps  Bps         `json:"volatility_bps,omitempty"`
	PriceCount     int         `json:"price_count,omitempty"`
	Allocation     *Allocation `json:"allocation,omitempty"`
	RebalanceCount uint64      `json:"rebalance_count,omitempty"`
	Field          string      `json:"field,omitempty"`
	Value          string      `json:"value,omitempty"`
}

func newEvent(t EventType, now time.Time) Event {
	return Event{ID: uuid.New().String(), Type: t, Timestamp: now}
}

// NewDepositedEvent describes a committed deposit. price is the sample recorded with it.
func NewDepositedEvent(now time.Time, account common.Address, amount, total *uint256.Int, price Price) Event {
	e := newEvent(EventDeposited, now)
	e.Account = account.Hex()
	e.Amount = amount.Dec()
	e.TotalDeposits = total.Dec()
	e.Price = price
	return e
}

// NewWithdrawnEvent describes a committed withdrawal. price is zero when no sample was recorded.
func NewWithdrawnEvent(now time.Time, account common.Address, amount, total *uint256.Int, price Price) Event {
	e := newEvent(EventWithdrawn, now)
	e.Account = account.Hex()
	e.Amount = amount.Dec()
	e.TotalDeposits = total.Dec()
	e.Price = price
	return e
}

// NewVolatilityUpdatedEvent describes a committed volatility refresh.
func NewVolatilityUpdatedEvent(now time.Time, volatility Bps, priceCount int, price Price) Event {
	e := newEvent(EventVolatilityUpdated, now)
	e.VolatilityBps = volatility
	e.PriceCount = priceCount
	e.Price = price
	return e
}

// NewRebalanceTriggeredEvent describes a committed rebalance.
func NewRebalanceTriggeredEvent(now time.Time, allocation Allocation, count uint64, volatility Bps) Event {
	e := newEvent(EventRebalanceTriggered, now)
	e.Allocation = &allocation
	e.RebalanceCount = count
	e.VolatilityBps = volatility
	return e
}

// NewConfigUpdatedEvent describes an owner configuration change.
func NewConfigUpdatedEvent(now time.Time, field, value string) Event {
	e := newEvent(EventConfigUpdated, now)
	e.Field = field
	e.Value = value
	return e
}
