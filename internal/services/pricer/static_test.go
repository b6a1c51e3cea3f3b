package pricer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

func TestStaticPricer(t *testing.T) {
	pair := domain.Pair{From: "ETH", To: "USD"}
	p := NewStaticPricer(decimal.NewFromInt(2000))

	price, err := p.GetPrice(context.Background(), pair)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2000)))

	feedDown := errors.New("feed down")
	p.Fail(feedDown)
	_, err = p.GetPrice(context.Background(), pair)
	assert.ErrorIs(t, err, feedDown)

	p.Set(decimal.RequireFromString("2500.25"))
	price, err = p.GetPrice(context.Background(), pair)
	require.NoError(t, err)
	assert.Equal(t, "2500.25", price.String())
}

func TestStaticPricer_Unset(t *testing.T) {
	p := NewStaticPricer(decimal.Zero)
	_, err := p.GetPrice(context.Background(), domain.Pair{From: "ETH", To: "USD"})
	assert.Error(t, err)
}

func TestStaticPricer_CanceledContext(t *testing.T) {
	p := NewStaticPricer(decimal.NewFromInt(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.GetPrice(ctx, domain.Pair{From: "ETH", To: "USD"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "latest:ETHUSDT:binance", latestKey("ETHUSDT", "binance"))
}
