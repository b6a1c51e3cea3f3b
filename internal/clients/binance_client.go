package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient builds a Binance REST client. Empty credentials are fine
// for the public ticker endpoints the vault reads.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
