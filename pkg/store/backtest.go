package store

import (
	"context"
	"time"
)

// BacktestRecordType distinguishes a single run from a walk-forward optimize
// job, per spec §3.
type BacktestRecordType string

const (
	BacktestRun      BacktestRecordType = "RUN"
	BacktestOptimize BacktestRecordType = "OPTIMIZE"
)

// BacktestRecord mirrors spec §3's BacktestResult entity. StrategyParams,
// BacktestConfig and Result are stored as opaque JSON blobs so this package
// does not need to know the shape of internal/backtest's types.
type BacktestRecord struct {
	ID             string
	UserID         string
	Type           BacktestRecordType
	Exchange       string
	Pair           string
	Timeframe      string
	StrategyType   string
	StrategyParams []byte // JSON
	BacktestConfig []byte // JSON
	Result         []byte // JSON
	CreatedAt      time.Time
}

func (s *Store) InsertBacktestRecord(ctx context.Context, r BacktestRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO backtest_result (id, user_id, type, exchange, pair, timeframe, strategy_type, strategy_params, backtest_config, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.Type, r.Exchange, r.Pair, r.Timeframe, r.StrategyType, r.StrategyParams, r.BacktestConfig, r.Result, r.CreatedAt)
	return err
}

func (s *Store) GetBacktestRecord(ctx context.Context, id string) (*BacktestRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, type, exchange, pair, timeframe, strategy_type, strategy_params, backtest_config, result, created_at
		FROM backtest_result WHERE id = ?
	`, id)
	var r BacktestRecord
	if err := row.Scan(&r.ID, &r.UserID, &r.Type, &r.Exchange, &r.Pair, &r.Timeframe, &r.StrategyType, &r.StrategyParams, &r.BacktestConfig, &r.Result, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListBacktestFilter supports the list/history operation's filters, per
// spec §6 ({type, strategyType, from, to, page, limit}).
type ListBacktestFilter struct {
	UserID       string
	Type         BacktestRecordType // empty = any
	StrategyType string             // empty = any
	From, To     time.Time          // zero = unbounded
	Page, Limit  int
}

func (s *Store) ListBacktestRecords(ctx context.Context, f ListBacktestFilter) ([]BacktestRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `SELECT id, user_id, type, exchange, pair, timeframe, strategy_type, strategy_params, backtest_config, result, created_at
		FROM backtest_result WHERE user_id = ?`
	args := []any{f.UserID}

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.StrategyType != "" {
		query += ` AND strategy_type = ?`
		args = append(args, f.StrategyType)
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.To)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BacktestRecord
	for rows.Next() {
		var r BacktestRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Exchange, &r.Pair, &r.Timeframe, &r.StrategyType, &r.StrategyParams, &r.BacktestConfig, &r.Result, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
