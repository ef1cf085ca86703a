package ingest

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tradingcore/internal/columnar"
	market "tradingcore/pkg/market/binance"
)

// BinanceClient adapts the teacher's REST Kline client
// (pkg/market/binance) into the ExchangeClient contract, normalizing
// "BASE/QUOTE" pairs into Binance's concatenated symbol form.
type BinanceClient struct {
	rest *market.Client
}

func NewBinanceClient(testnet bool) *BinanceClient {
	return &BinanceClient{rest: market.NewClient("", "", testnet)}
}

func (b *BinanceClient) Exchange() string { return "binance" }

func (b *BinanceClient) FetchCandles(ctx context.Context, pair, timeframe string, start int64, limit int) ([]columnar.Candle, error) {
	symbol := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(pair, "/", ""), "-", ""))
	klines, err := b.rest.GetKlines(symbol, timeframe, limit, start, 0)
	if err != nil {
		return nil, err
	}

	out := make([]columnar.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, columnar.Candle{
			Timestamp: k.OpenTime,
			Open:      decimal.NewFromFloat(k.Open),
			High:      decimal.NewFromFloat(k.High),
			Low:       decimal.NewFromFloat(k.Low),
			Close:     decimal.NewFromFloat(k.Close),
			Volume:    decimal.NewFromFloat(k.Volume),
		})
	}
	return out, nil
}
