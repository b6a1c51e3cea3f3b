package internal

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/config"
	"github.com/vadiminshakov/riskvault/internal/clients"
	"github.com/vadiminshakov/riskvault/internal/services/pricer"
)

// priceProvider owns a price source and whatever connection backs it.
type priceProvider struct {
	pricer pricer.Pricer
	close  func() error
}

// newPriceProvider is the single point of dispatch to platform-specific price sources.
// Exchange credentials are optional; only public market data is read.
func newPriceProvider(ctx context.Context, conf config.Config, logger *zap.Logger) (*priceProvider, error) {
	noop := func() error { return nil }

	switch conf.Platform {
	case config.PlatformBinance:
		client := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		return &priceProvider{pricer: pricer.NewBinancePricer(client), close: noop}, nil
	case config.PlatformBybit:
		client := clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
		return &priceProvider{pricer: pricer.NewBybitPricer(client), close: noop}, nil
	case config.PlatformHyperliquid:
		client, err := clients.NewHyperliquidClient(os.Getenv("HYPERLIQUID_PRIVATE_KEY"), conf.HyperliquidURL)
		if err != nil {
			return nil, err
		}
		return &priceProvider{pricer: pricer.NewHyperliquidPricer(client.Info()), close: noop}, nil
	case config.PlatformRedis:
		client, err := clients.NewRedisClient(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return nil, err
		}
		logger.Info("reading prices from redis",
			zap.String("addr", conf.Redis.Addr), zap.String("exchange", conf.Redis.Exchange))
		return &priceProvider{pricer: pricer.NewRedisPricer(client, conf.Redis.Exchange), close: client.Close}, nil
	case config.PlatformStatic:
		return &priceProvider{pricer: pricer.NewStaticPricer(conf.StaticPrice), close: noop}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", conf.Platform)
	}
}
