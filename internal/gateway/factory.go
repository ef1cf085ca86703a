// Package gateway selects the exchange.Gateway implementation to submit
// live orders through, keyed by a plain market-type string rather than the
// teacher's database-backed connection record (user/API-key storage is out
// of scope here — see DESIGN.md).
package gateway

import (
	"fmt"

	"go.uber.org/zap"

	exfutusdt "tradingcore/pkg/exchanges/binance/futures_usdt"
	exspot "tradingcore/pkg/exchanges/binance/spot"
	exchange "tradingcore/pkg/exchanges/common"
)

// MarketType names which Binance Gateway implementation to build.
type MarketType string

const (
	MarketSpot        MarketType = "spot"
	MarketUSDTFutures MarketType = "usdt_futures"
)

// Credentials holds the API key pair a Gateway is built against.
type Credentials struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// New builds the Gateway for the given market type and credentials. log may
// be nil; when set, it is passed down to the client's rate-limit/time-sync
// bookkeeping so gateway-level warnings land on the same zap pipeline as the
// rest of the process instead of stdlib log.
func New(market MarketType, creds Credentials, log *zap.Logger) (exchange.Gateway, error) {
	switch market {
	case MarketSpot, "":
		return exspot.New(exspot.Config{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Testnet:   creds.Testnet,
			Log:       log,
		}), nil

	case MarketUSDTFutures:
		return exfutusdt.NewClient(exfutusdt.Config{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Testnet:   creds.Testnet,
			Log:       log,
		}), nil

	default:
		return nil, fmt.Errorf("gateway: unsupported market type: %s", market)
	}
}
