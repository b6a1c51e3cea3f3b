package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

type collectSink struct {
	got []domain.Event
	err error
}

func (c *collectSink) Publish(e domain.Event) error {
	c.got = append(c.got, e)
	return c.err
}

func TestFanout_DeliversPastFailingSink(t *testing.T) {
	failing := &collectSink{err: errors.New("disk full")}
	ok := &collectSink{}
	f := NewFanout(zap.NewNop(), failing, nil, ok)

	e := domain.NewConfigUpdatedEvent(time.Unix(1_700_000_000, 0), "base_limit", "2000")
	require.NoError(t, f.Publish(e))

	assert.Len(t, failing.got, 1)
	require.Len(t, ok.got, 1)
	assert.Equal(t, e.ID, ok.got[0].ID)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()

	first := domain.NewConfigUpdatedEvent(time.Unix(1, 0), "min_interval", "1h0m0s")
	second := domain.NewConfigUpdatedEvent(time.Unix(2, 0), "min_interval", "2h0m0s")
	require.NoError(t, b.Publish(first))
	require.NoError(t, b.Publish(second)) // dropped, buffer is full

	got := <-ch
	assert.Equal(t, first.ID, got.ID)

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	b.Unsubscribe(ch)
}
