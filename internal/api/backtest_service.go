package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradingcore/internal/backtest"
	"tradingcore/internal/columnar"
	"tradingcore/internal/optimize"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/store"
)

// backtestService implements BacktestService against internal/backtest,
// internal/optimize and the columnar candle store, grounded on the
// teacher's controllers.go runBacktest/runOptimize/listBacktests/
// getBacktest handlers with the gin request/response binding removed.
type backtestService struct {
	store    *store.Store
	columnar *columnar.Store
	log      *zap.Logger
}

// NewBacktestService wires a BacktestService over the given stores.
func NewBacktestService(st *store.Store, col *columnar.Store, log *zap.Logger) BacktestService {
	return &backtestService{store: st, columnar: col, log: log}
}

func (s *backtestService) loadCandles(pair, timeframe string, from, to time.Time) ([]strategy.Candle, error) {
	rows, err := s.columnar.ReadRange(pair, timeframe, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	out := make([]strategy.Candle, len(rows))
	for i, c := range rows {
		o, _ := c.Open.Float64()
		h, _ := c.High.Float64()
		l, _ := c.Low.Float64()
		cl, _ := c.Close.Float64()
		v, _ := c.Volume.Float64()
		out[i] = strategy.Candle{Timestamp: c.Timestamp, Open: o, High: h, Low: l, Close: cl, Volume: v}
	}
	return out, nil
}

func (s *backtestService) RunBacktest(ctx context.Context, req RunBacktestRequest) (store.BacktestRecord, error) {
	candles, err := s.loadCandles(req.Pair, req.Timeframe, req.From, req.To)
	if err != nil {
		return store.BacktestRecord{}, err
	}

	strat, err := strategy.Build(strategy.Config{Type: req.StrategyType, Parameters: req.StrategyParams})
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("build strategy: %w", err)
	}

	cfg := backtest.DefaultConfig()
	if req.InitialBalance > 0 {
		cfg.InitialBalance = decimal.NewFromFloat(req.InitialBalance)
	}
	if req.MakerFee > 0 {
		cfg.MakerFee = decimal.NewFromFloat(req.MakerFee)
	}
	if req.TakerFee > 0 {
		cfg.TakerFee = decimal.NewFromFloat(req.TakerFee)
	}
	if req.SlippageModel != "" {
		cfg.SlippageModel = backtest.SlippageModel(req.SlippageModel)
	}
	if req.SlippageBps > 0 {
		cfg.SlippageBps = req.SlippageBps
	}

	engine := backtest.NewEngine(cfg, req.Pair, s.log)
	summary, err := engine.Run(ctx, strat, candles)
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("run backtest: %w", err)
	}

	return s.persist(ctx, store.BacktestRun, req.UserID, req.Exchange, req.Pair, req.Timeframe, req.StrategyType, req.StrategyParams, cfg, summary)
}

func (s *backtestService) RunOptimize(ctx context.Context, req RunOptimizeRequest) (store.BacktestRecord, error) {
	candles, err := s.loadCandles(req.Pair, req.Timeframe, req.From, req.To)
	if err != nil {
		return store.BacktestRecord{}, err
	}

	cfg := optimize.DefaultConfig()
	if req.TrainRatio > 0 {
		cfg.TrainRatio = req.TrainRatio
	}
	if req.NSplits > 0 {
		cfg.NSplits = req.NSplits
	}
	if req.Metric != "" {
		cfg.Metric = optimize.Metric(req.Metric)
	}
	if req.MinTrades > 0 {
		cfg.MinTrades = req.MinTrades
	}

	backtestCfg := backtest.DefaultConfig()
	if req.InitialBalance > 0 {
		backtestCfg.InitialBalance = decimal.NewFromFloat(req.InitialBalance)
	}
	if req.MakerFee > 0 {
		backtestCfg.MakerFee = decimal.NewFromFloat(req.MakerFee)
	}
	if req.TakerFee > 0 {
		backtestCfg.TakerFee = decimal.NewFromFloat(req.TakerFee)
	}
	if req.SlippageModel != "" {
		backtestCfg.SlippageModel = backtest.SlippageModel(req.SlippageModel)
	}
	if req.SlippageBps > 0 {
		backtestCfg.SlippageBps = req.SlippageBps
	}

	result, err := optimize.Optimize(ctx, req.StrategyType, req.Pair, candles, optimize.ParamGrid(req.ParamGrid), cfg, backtestCfg, s.log)
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("run optimize: %w", err)
	}

	return s.persist(ctx, store.BacktestOptimize, req.UserID, req.Exchange, req.Pair, req.Timeframe, req.StrategyType, req.ParamGrid, backtestCfg, result)
}

func (s *backtestService) persist(ctx context.Context, typ store.BacktestRecordType, userID, exchange, pair, timeframe, strategyType string, params, cfg, result any) (store.BacktestRecord, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("marshal params: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("marshal config: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return store.BacktestRecord{}, fmt.Errorf("marshal result: %w", err)
	}

	rec := store.BacktestRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Type:           typ,
		Exchange:       exchange,
		Pair:           pair,
		Timeframe:      timeframe,
		StrategyType:   strategyType,
		StrategyParams: paramsJSON,
		BacktestConfig: cfgJSON,
		Result:         resultJSON,
		CreatedAt:      time.Now(),
	}
	if err := s.store.InsertBacktestRecord(ctx, rec); err != nil {
		return store.BacktestRecord{}, fmt.Errorf("persist backtest record: %w", err)
	}
	return rec, nil
}

func (s *backtestService) ListBacktests(ctx context.Context, filter store.ListBacktestFilter) ([]store.BacktestRecord, error) {
	return s.store.ListBacktestRecords(ctx, filter)
}

func (s *backtestService) GetBacktest(ctx context.Context, id string) (store.BacktestRecord, error) {
	rec, err := s.store.GetBacktestRecord(ctx, id)
	if err != nil {
		return store.BacktestRecord{}, err
	}
	return *rec, nil
}
