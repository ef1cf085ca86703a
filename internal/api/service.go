// Package api implements the HTTP-shape service layer of spec §6: the
// operation set a thin transport layer would expose (backtest run/
// optimize/list/get, historical-data ingest/prefetch/status/gaps/repair/
// read), with no router/auth/websocket wiring of its own — the spec is
// explicit that transport is out of scope. Grounded on the teacher's
// internal/api/controllers.go for the operation set and filter shapes
// (ListBacktests' {type, strategyType, from, to, page, limit} filter,
// the ingest/gaps/repair verbs), stripped of its gin.Context/JWT plumbing
// down to plain Go interfaces and structs a future transport package can
// wrap however it likes.
package api

import (
	"context"
	"time"

	"tradingcore/pkg/store"
)

// BacktestService is the backtest/optimize HTTP surface of spec §6.
type BacktestService interface {
	// RunBacktest executes a single strategy backtest over stored
	// candle history and persists the result as a BacktestRun record.
	RunBacktest(ctx context.Context, req RunBacktestRequest) (store.BacktestRecord, error)

	// RunOptimize executes a walk-forward parameter search and persists
	// the result as a BacktestOptimize record.
	RunOptimize(ctx context.Context, req RunOptimizeRequest) (store.BacktestRecord, error)

	// ListBacktests returns a user's backtest/optimize history, filtered
	// and paginated per spec §6.
	ListBacktests(ctx context.Context, filter store.ListBacktestFilter) ([]store.BacktestRecord, error)

	// GetBacktest fetches a single backtest/optimize record by id.
	GetBacktest(ctx context.Context, id string) (store.BacktestRecord, error)
}

// HistoricalDataService is the ingestion/query HTTP surface of spec §6.
type HistoricalDataService interface {
	// Ingest starts a chunked backfill for each (pair,timeframe) pair.
	// When req.Async is false the call blocks until every job finishes
	// or the context is cancelled; when true it returns the created job
	// ids immediately and the backfills continue in the background.
	Ingest(ctx context.Context, req IngestRequest) ([]string, error)

	// Prefetch starts an asynchronous Ingest for every pair/timeframe
	// combination, from the Unix epoch through now; it does not start from
	// a pair's last stored candle.
	Prefetch(ctx context.Context, pairs, timeframes []string) ([]string, error)

	// Status reports an ingestion job's current lifecycle state.
	Status(ctx context.Context, jobID string) (store.IngestionJob, error)

	// Gaps reports detected-but-unrepaired gaps for (pair,timeframe).
	Gaps(ctx context.Context, pair, timeframe string) ([]store.DataGap, error)

	// Repair backfills every open gap for (pair,timeframe).
	Repair(ctx context.Context, pair, timeframe string) error

	// Read returns stored candles for (pair,timeframe) in [from,to],
	// capped at limit rows (0 = no cap).
	Read(ctx context.Context, pair, timeframe string, from, to time.Time, limit int) ([]CandleDTO, error)
}

// CandleDTO is the wire-shaped candle row returned by Read, independent
// of internal/columnar.Candle's decimal-fixed-point internal storage.
type CandleDTO struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// RunBacktestRequest is the body of the backtest "run" operation.
type RunBacktestRequest struct {
	UserID         string
	Pair           string
	Timeframe      string
	Exchange       string
	StrategyType   string
	StrategyParams map[string]any
	From, To       time.Time
	InitialBalance float64
	MakerFee       float64
	TakerFee       float64
	SlippageModel  string
	SlippageBps    float64
}

// RunOptimizeRequest is the body of the backtest "optimize" operation.
type RunOptimizeRequest struct {
	UserID         string
	Pair           string
	Timeframe      string
	Exchange       string
	StrategyType   string
	ParamGrid      map[string][]any
	From, To       time.Time
	TrainRatio     float64
	NSplits        int
	Metric         string
	MinTrades      int
	InitialBalance float64
	MakerFee       float64
	TakerFee       float64
	SlippageModel  string
	SlippageBps    float64
}

// IngestRequest is the body of the historical-data "ingest" operation,
// per spec §6: `ingest{pairs[],timeframes[],startDate,endDate,async}`.
type IngestRequest struct {
	Pairs      []string
	Timeframes []string
	StartDate  time.Time
	EndDate    time.Time
	Async      bool
}
