// Package store is the relational metadata store the trading core uses for
// durable records the in-memory components cannot afford to lose on
// restart: ingestion jobs, data sources, data gaps and backtest results
// (spec §3/§6), plus local persistence of orders and positions for
// single-process dev/test runs; trades have no table of their own. Adapted from the teacher's pkg/db package.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQL handle so call sites can swap the driver or inject a
// mock in tests without touching schema/query code.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite prefers a single writer
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{DB: db}
	if err := s.applySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
