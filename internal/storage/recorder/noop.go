package recorder

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// NoopRecorder is used when no history database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Publish(_ domain.Event) error { return nil }
func (n *NoopRecorder) Close() error                 { return nil }

func (n *NoopRecorder) AccountHistory(_ context.Context, _ common.Address, _ int) ([]LedgerRecord, error) {
	return nil, nil
}

func (n *NoopRecorder) RecentRebalances(_ context.Context, _ int) ([]RebalanceRecord, error) {
	return nil, nil
}
