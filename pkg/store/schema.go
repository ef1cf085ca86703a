package store

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS ingestion_job (
    id TEXT PRIMARY KEY,
    pair TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    exchange TEXT NOT NULL,
    status TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 1,
    candles_fetched INTEGER NOT NULL DEFAULT 0,
    candles_stored INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    started_at DATETIME,
    completed_at DATETIME,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS data_source (
    pair TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    exchange TEXT NOT NULL,
    earliest_date DATETIME,
    latest_date DATETIME,
    total_candles INTEGER NOT NULL DEFAULT 0,
    file_path TEXT NOT NULL,
    file_size INTEGER NOT NULL DEFAULT 0,
    is_complete INTEGER NOT NULL DEFAULT 0,
    last_updated DATETIME,
    PRIMARY KEY (pair, timeframe, exchange)
);

CREATE TABLE IF NOT EXISTS data_gap (
    id TEXT PRIMARY KEY,
    pair TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    gap_start DATETIME NOT NULL,
    gap_end DATETIME NOT NULL,
    reason TEXT,
    is_repaired INTEGER NOT NULL DEFAULT 0,
    detected_at DATETIME NOT NULL,
    repaired_at DATETIME
);

CREATE TABLE IF NOT EXISTS backtest_result (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    exchange TEXT NOT NULL,
    pair TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    strategy_type TEXT NOT NULL,
    strategy_params TEXT NOT NULL,
    backtest_config TEXT NOT NULL,
    result TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_state (
    user_id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    data TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// applySchema bootstraps the schema; kept lightweight for fast startup, as
// in the teacher's db.ApplyMigrations.
func (s *Store) applySchema() error {
	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
