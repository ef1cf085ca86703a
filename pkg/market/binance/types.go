package market

// Kline represents a single candlestick with all official Binance fields,
// as returned by the REST /api/v3/klines endpoint.
type Kline struct {
	Symbol              string
	OpenTime            int64
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	CloseTime           int64
	QuoteVolume         float64
	NumberOfTrades      int
	TakerBuyBaseVolume  float64
	TakerBuyQuoteVolume float64
}
