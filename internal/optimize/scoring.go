package optimize

import "tradingcore/internal/backtest"

// Metric names one of the five scoring functions of spec §4.11.
type Metric string

const (
	MetricSharpeRatio  Metric = "sharpeRatio"
	MetricTotalReturn  Metric = "totalReturn"
	MetricProfitFactor Metric = "profitFactor"
	MetricWinRate      Metric = "winRate"
	MetricCalmarRatio  Metric = "calmarRatio"
	MetricComposite    Metric = "composite"
)

// compositeWeights are the fixed weights of spec §4.11's composite metric.
const (
	weightSharpe      = 0.3
	weightTotalReturn = 0.25
	weightProfit      = 0.2
	weightWinRate     = 0.15
	weightMaxDD       = -0.1
)

// score evaluates metric against a backtest summary, per spec §4.11.
func score(metric Metric, s backtest.Summary) float64 {
	switch metric {
	case MetricSharpeRatio:
		return s.SharpeRatio
	case MetricTotalReturn:
		return s.TotalReturnPct
	case MetricProfitFactor:
		return s.ProfitFactor
	case MetricWinRate:
		return s.WinRate
	case MetricCalmarRatio:
		return calmarRatio(s)
	default:
		return composite(s)
	}
}

func calmarRatio(s backtest.Summary) float64 {
	if s.MaxDrawdownPct == 0 {
		return s.TotalReturnPct
	}
	return s.TotalReturnPct / s.MaxDrawdownPct
}

func composite(s backtest.Summary) float64 {
	return weightSharpe*s.SharpeRatio +
		weightTotalReturn*s.TotalReturnPct +
		weightProfit*s.ProfitFactor +
		weightWinRate*s.WinRate +
		weightMaxDD*s.MaxDrawdownPct
}
