// Package optimize implements the walk-forward optimizer of spec §4.11:
// fixed train-window/advancing test-window splits, a Cartesian parameter
// grid search scored by one of five metrics, and an aggregate overfit/
// consistency/trade-frequency assessment across splits. Built directly on
// top of internal/backtest and internal/strategy.Build (no direct teacher
// or pack analog implements walk-forward splitting specifically).
package optimize

import (
	"context"
	"math"

	"go.uber.org/zap"

	"tradingcore/internal/backtest"
	"tradingcore/internal/strategy"
)

// Config is the optimizer configuration of spec §4.11.
type Config struct {
	TrainRatio float64
	NSplits    int
	Metric     Metric
	MinTrades  int
}

func DefaultConfig() Config {
	return Config{TrainRatio: 0.7, NSplits: 3, Metric: MetricComposite, MinTrades: 10}
}

// ComboResult is one parameter combination's train-window outcome.
type ComboResult struct {
	Params  map[string]any
	Summary backtest.Summary
	Score   float64
}

// SplitResult is one walk-forward split's outcome, per spec §4.11.
type SplitResult struct {
	BestParams map[string]any
	TrainScore float64
	TestScore  float64
	TestResult backtest.Summary
	HasTest    bool
	AllResults []ComboResult
}

// Aggregate summarizes scores across splits, per spec §4.11.
type Aggregate struct {
	MeanTrain   float64
	StdTrain    float64
	MeanTest    float64
	StdTest     float64
	MinTest     float64
	MaxTest     float64
	Consistency float64

	Overfit           bool
	LowConsistency    bool
	LowTradeFrequency bool
}

// Result is optimize's full return shape.
type Result struct {
	Splits    []SplitResult
	Aggregate Aggregate
}

// split is one walk-forward window, per spec §4.11's formula:
// splitSize = floor(n/nSplits), trainSize = floor(splitSize*trainRatio),
// testSize = splitSize-trainSize, startIdx = i*testSize,
// trainEnd = startIdx+trainSize, testEnd = trainEnd+testSize.
type split struct {
	train []strategy.Candle
	test  []strategy.Candle
}

func computeSplits(candles []strategy.Candle, cfg Config) []split {
	n := len(candles)
	if cfg.NSplits <= 0 || n == 0 {
		return nil
	}
	splitSize := n / cfg.NSplits
	if splitSize == 0 {
		return nil
	}
	trainSize := int(float64(splitSize) * cfg.TrainRatio)
	testSize := splitSize - trainSize

	var splits []split
	for i := 0; i < cfg.NSplits; i++ {
		startIdx := i * testSize
		trainEnd := startIdx + trainSize
		testEnd := trainEnd + testSize
		if trainEnd > n {
			trainEnd = n
		}
		if testEnd > n {
			testEnd = n
		}
		if startIdx >= trainEnd {
			continue
		}
		s := split{train: candles[startIdx:trainEnd]}
		if trainEnd < testEnd {
			s.test = candles[trainEnd:testEnd]
		}
		splits = append(splits, s)
	}
	return splits
}

// Optimize runs the walk-forward grid search of spec §4.11 for a single
// strategyType/pair over candles.
func Optimize(ctx context.Context, strategyType, pair string, candles []strategy.Candle, grid ParamGrid, cfg Config, backtestCfg backtest.Config, log *zap.Logger) (Result, error) {
	combos := Enumerate(grid)
	splits := computeSplits(candles, cfg)
	relaxMinTrades := len(candles) < 100 || len(combos) == 1

	var results []SplitResult
	for _, sp := range splits {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		var all []ComboResult
		for _, params := range combos {
			strat, err := buildStrategy(strategyType, params)
			if err != nil {
				if log != nil {
					log.Warn("optimize: failed to build strategy", zap.Error(err))
				}
				continue
			}
			engine := backtest.NewEngine(backtestCfg, pair, log)
			summary, err := engine.Run(ctx, strat, sp.train)
			if err != nil {
				return Result{}, err
			}

			minTrades := cfg.MinTrades
			if relaxMinTrades {
				minTrades = 1
			}
			if summary.TotalTrades < minTrades {
				continue
			}
			all = append(all, ComboResult{Params: params, Summary: summary, Score: score(cfg.Metric, summary)})
		}

		if len(all) == 0 {
			results = append(results, SplitResult{AllResults: all})
			continue
		}

		best := all[0]
		for _, c := range all[1:] {
			if c.Score > best.Score {
				best = c
			}
		}

		sr := SplitResult{BestParams: best.Params, TrainScore: best.Score, AllResults: all}
		if len(sp.test) > 0 {
			testStrat, err := buildStrategy(strategyType, best.Params)
			if err != nil {
				return Result{}, err
			}
			testEngine := backtest.NewEngine(backtestCfg, pair, log)
			testSummary, err := testEngine.Run(ctx, testStrat, sp.test)
			if err != nil {
				return Result{}, err
			}
			sr.TestResult = testSummary
			sr.TestScore = score(cfg.Metric, testSummary)
			sr.HasTest = true
		}
		results = append(results, sr)
	}

	return Result{Splits: results, Aggregate: aggregate(results, cfg)}, nil
}

func buildStrategy(strategyType string, params map[string]any) (strategy.Strategy, error) {
	return strategy.Build(strategy.Config{Type: strategyType, Parameters: params})
}

// aggregate computes the mean/std/consistency stats and overfit/consistency/
// trade-frequency recommendations of spec §4.11.
func aggregate(results []SplitResult, cfg Config) Aggregate {
	var trainScores, testScores []float64
	var testTrades []int
	for _, r := range results {
		if r.BestParams == nil {
			continue
		}
		trainScores = append(trainScores, r.TrainScore)
		if r.HasTest {
			testScores = append(testScores, r.TestScore)
			testTrades = append(testTrades, r.TestResult.TotalTrades)
		}
	}

	agg := Aggregate{}
	agg.MeanTrain, agg.StdTrain = meanStd(trainScores)
	agg.MeanTest, agg.StdTest = meanStd(testScores)
	agg.MinTest, agg.MaxTest = minMax(testScores)

	if agg.MeanTest > 0 {
		agg.Consistency = math.Max(0, 1-agg.StdTest/agg.MeanTest)
	}

	agg.Overfit = agg.MeanTrain > 1.5*agg.MeanTest
	agg.LowConsistency = agg.Consistency < 0.5
	agg.LowTradeFrequency = avgInt(testTrades) < float64(cfg.MinTrades)

	return agg
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	std = math.Sqrt(variance)
	return mean, std
}

func minMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func avgInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
