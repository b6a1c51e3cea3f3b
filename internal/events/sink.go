// Package events distributes committed vault events to persistence, metrics and live subscribers.
package events

import (
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// Sink consumes committed vault events.
type Sink interface {
	Publish(e domain.Event) error
}

// Fanout publishes every event to all sinks in order. A failing sink is logged
// and does not stop delivery to the rest.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	nonNil := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &Fanout{sinks: nonNil, logger: logger}
}

func (f *Fanout) Publish(e domain.Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(e); err != nil {
			f.logger.Error("event sink failed",
				zap.String("event_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err))
		}
	}
	return nil
}
