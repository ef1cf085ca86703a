package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestionJobStatus enumerates the job lifecycle of spec §3.
type IngestionJobStatus string

const (
	JobPending   IngestionJobStatus = "PENDING"
	JobRunning   IngestionJobStatus = "RUNNING"
	JobCompleted IngestionJobStatus = "COMPLETED"
	JobFailed    IngestionJobStatus = "FAILED"
	JobCancelled IngestionJobStatus = "CANCELLED"
)

// IngestionJob mirrors spec §3's IngestionJob entity.
type IngestionJob struct {
	ID             string
	Pair           string
	Timeframe      string
	Exchange       string
	Status         IngestionJobStatus
	Priority       int
	CandlesFetched int
	CandlesStored  int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

func (s *Store) InsertIngestionJob(ctx context.Context, j IngestionJob) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingestion_job (id, pair, timeframe, exchange, status, priority, candles_fetched, candles_stored, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Pair, j.Timeframe, j.Exchange, j.Status, j.Priority, j.CandlesFetched, j.CandlesStored, j.CreatedAt)
	return err
}

func (s *Store) UpdateIngestionJob(ctx context.Context, j IngestionJob) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE ingestion_job
		SET status = ?, candles_fetched = ?, candles_stored = ?, started_at = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, j.Status, j.CandlesFetched, j.CandlesStored, j.StartedAt, j.CompletedAt, j.ErrorMessage, j.ID)
	return err
}

func (s *Store) GetIngestionJob(ctx context.Context, id string) (*IngestionJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, pair, timeframe, exchange, status, priority, candles_fetched, candles_stored, created_at, started_at, completed_at, error_message
		FROM ingestion_job WHERE id = ?
	`, id)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*IngestionJob, error) {
	var j IngestionJob
	var started, completed sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&j.ID, &j.Pair, &j.Timeframe, &j.Exchange, &j.Status, &j.Priority,
		&j.CandlesFetched, &j.CandlesStored, &j.CreatedAt, &started, &completed, &errMsg); err != nil {
		return nil, err
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	j.ErrorMessage = errMsg.String
	return &j, nil
}

// DataSource mirrors spec §3's DataSource entity, uniq by (pair,timeframe,exchange).
type DataSource struct {
	Pair         string
	Timeframe    string
	Exchange     string
	EarliestDate time.Time
	LatestDate   time.Time
	TotalCandles int
	FilePath     string
	FileSize     int64
	IsComplete   bool
	LastUpdated  time.Time
}

// UpsertDataSource performs an idempotent upsert keyed by (pair,timeframe,exchange),
// per spec §5.
func (s *Store) UpsertDataSource(ctx context.Context, d DataSource) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO data_source (pair, timeframe, exchange, earliest_date, latest_date, total_candles, file_path, file_size, is_complete, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair, timeframe, exchange) DO UPDATE SET
			earliest_date = excluded.earliest_date,
			latest_date = excluded.latest_date,
			total_candles = excluded.total_candles,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			is_complete = excluded.is_complete,
			last_updated = excluded.last_updated
	`, d.Pair, d.Timeframe, d.Exchange, d.EarliestDate, d.LatestDate, d.TotalCandles, d.FilePath, d.FileSize, boolToInt(d.IsComplete), d.LastUpdated)
	return err
}

func (s *Store) GetDataSource(ctx context.Context, pair, timeframe, exchange string) (*DataSource, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT pair, timeframe, exchange, earliest_date, latest_date, total_candles, file_path, file_size, is_complete, last_updated
		FROM data_source WHERE pair = ? AND timeframe = ? AND exchange = ?
	`, pair, timeframe, exchange)

	var d DataSource
	var complete int
	if err := row.Scan(&d.Pair, &d.Timeframe, &d.Exchange, &d.EarliestDate, &d.LatestDate, &d.TotalCandles, &d.FilePath, &d.FileSize, &complete, &d.LastUpdated); err != nil {
		return nil, err
	}
	d.IsComplete = complete == 1
	return &d, nil
}

// DataGap mirrors spec §3's DataGap entity.
type DataGap struct {
	ID         string
	Pair       string
	Timeframe  string
	GapStart   time.Time
	GapEnd     time.Time
	Reason     string
	IsRepaired bool
	DetectedAt time.Time
	RepairedAt *time.Time
}

func (s *Store) InsertDataGap(ctx context.Context, g DataGap) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO data_gap (id, pair, timeframe, gap_start, gap_end, reason, is_repaired, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.Pair, g.Timeframe, g.GapStart, g.GapEnd, g.Reason, boolToInt(g.IsRepaired), g.DetectedAt)
	return err
}

func (s *Store) MarkGapRepaired(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE data_gap SET is_repaired = 1, repaired_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *Store) ListOpenGaps(ctx context.Context, pair, timeframe string) ([]DataGap, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, pair, timeframe, gap_start, gap_end, reason, is_repaired, detected_at, repaired_at
		FROM data_gap WHERE pair = ? AND timeframe = ? AND is_repaired = 0
		ORDER BY gap_start ASC
	`, pair, timeframe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DataGap
	for rows.Next() {
		var g DataGap
		var repaired sql.NullTime
		var isRepaired int
		if err := rows.Scan(&g.ID, &g.Pair, &g.Timeframe, &g.GapStart, &g.GapEnd, &g.Reason, &isRepaired, &g.DetectedAt, &repaired); err != nil {
			return nil, err
		}
		g.IsRepaired = isRepaired == 1
		if repaired.Valid {
			g.RepairedAt = &repaired.Time
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
