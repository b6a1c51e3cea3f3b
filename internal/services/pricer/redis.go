package pricer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

// marketTick is the record an upstream aggregator keeps under latest:{symbol}:{exchange}.
type marketTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// RedisPricer reads prices published to redis by a market data aggregator.
type RedisPricer struct {
	client   *redis.Client
	exchange string
}

func NewRedisPricer(client *redis.Client, exchange string) *RedisPricer {
	return &RedisPricer{client: client, exchange: exchange}
}

func latestKey(symbol, exchange string) string {
	return fmt.Sprintf("latest:%s:%s", symbol, exchange)
}

func (p *RedisPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	key := latestKey(pair.Symbol(), p.exchange)

	raw, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, errors.Errorf("no price data found for %s on %s", pair.Symbol(), p.exchange)
		}
		return decimal.Zero, errors.Wrapf(err, "get %s", key)
	}

	var tick marketTick
	if err := json.Unmarshal(raw, &tick); err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode %s", key)
	}

	return tick.Price, nil
}
