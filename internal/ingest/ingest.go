// Package ingest implements the Historical Data Ingestor of spec §4.3:
// chunked backfills against an exchange client, candle validation, gap
// detection/repair, persisted as IngestionJob/DataGap/DataSource rows in
// pkg/store and candle bodies in internal/columnar. Grounded on the
// teacher's internal/market/feed.go polling/retry style and
// pkg/market/binance/rest.go's REST client, generalized into a venue-
// pluggable backfill loop the spec requires.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradingcore/internal/columnar"
	"tradingcore/pkg/store"
	"tradingcore/pkg/timeframe"
)

// ExchangeClient fetches historical candles from a venue's REST API,
// normalizing them into columnar.Candle. Exchange symbol normalization is
// pluggable per venue implementation, per spec §4.3.
type ExchangeClient interface {
	FetchCandles(ctx context.Context, pair, timeframe string, start int64, limit int) ([]columnar.Candle, error)
	Exchange() string
}

// Config holds the ingestor's tunable operational parameters, per spec
// §4.3.
type Config struct {
	ChunkSize   int
	RateLimit   time.Duration // sleep between chunks
	MaxRetries  int
	RetryDelay  time.Duration // multiplied by attempt number
}

func DefaultConfig() Config {
	return Config{ChunkSize: 1000, RateLimit: 250 * time.Millisecond, MaxRetries: 5, RetryDelay: time.Second}
}

// Ingestor runs chunked backfills and gap detection/repair.
type Ingestor struct {
	store    *store.Store
	columnar *columnar.Store
	client   ExchangeClient
	cfg      Config
	log      *zap.Logger
	limiter  *rate.Limiter
}

func New(st *store.Store, col *columnar.Store, client ExchangeClient, cfg Config, log *zap.Logger) *Ingestor {
	return &Ingestor{
		store:    st,
		columnar: col,
		client:   client,
		cfg:      cfg,
		log:      log,
		limiter:  rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
	}
}

// NewJobID generates an id a caller can hand to Ingest ahead of time, so
// an async caller can return it to the requester before the backfill
// completes.
func (ig *Ingestor) NewJobID() string { return uuid.NewString() }

// Ingest runs a chunked backfill for [startDate,endDate] under jobID, per
// spec §4.3's algorithm: create the job row (PENDING->RUNNING), loop
// fetch/validate/append/advance/persist, polling the job row for
// cancellation each iteration, sleeping RateLimit between chunks,
// retrying up to MaxRetries with exponential backoff RetryDelay*attempt,
// terminating when current>=endDate or a chunk returns no new candles.
func (ig *Ingestor) Ingest(ctx context.Context, jobID, canonicalPair, tf string, startDate, endDate time.Time, priority int) error {
	tfMillis, err := timeframe.ParseMillis(tf)
	if err != nil {
		return err
	}

	job := store.IngestionJob{
		ID:        jobID,
		Pair:      canonicalPair,
		Timeframe: tf,
		Exchange:  ig.client.Exchange(),
		Status:    store.JobPending,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
	if err := ig.store.InsertIngestionJob(ctx, job); err != nil {
		return fmt.Errorf("ingest: create job: %w", err)
	}

	started := time.Now()
	job.Status = store.JobRunning
	job.StartedAt = &started
	if err := ig.store.UpdateIngestionJob(ctx, job); err != nil {
		return fmt.Errorf("ingest: mark running: %w", err)
	}

	current := startDate.UnixMilli()
	end := endDate.UnixMilli()

	for current < end {
		if cancelled, err := ig.isCancelled(ctx, job.ID); err != nil {
			return err
		} else if cancelled {
			job.Status = store.JobCancelled
			return ig.store.UpdateIngestionJob(ctx, job)
		}

		candles, err := ig.fetchWithRetry(ctx, canonicalPair, tf, current)
		if err != nil {
			job.Status = store.JobFailed
			job.ErrorMessage = err.Error()
			_ = ig.store.UpdateIngestionJob(ctx, job)
			return fmt.Errorf("ingest: fetch chunk: %w", err)
		}
		if len(candles) == 0 {
			break
		}

		valid := make([]columnar.Candle, 0, len(candles))
		for _, c := range candles {
			if validateCandle(c) {
				valid = append(valid, c)
			}
		}
		if len(valid) == 0 {
			break
		}

		if err := ig.columnar.AppendCandles(canonicalPair, tf, valid); err != nil {
			job.Status = store.JobFailed
			job.ErrorMessage = err.Error()
			_ = ig.store.UpdateIngestionJob(ctx, job)
			return fmt.Errorf("ingest: append candles: %w", err)
		}

		lastTS := valid[len(valid)-1].Timestamp
		job.CandlesFetched += len(candles)
		job.CandlesStored += len(valid)
		if err := ig.store.UpdateIngestionJob(ctx, job); err != nil {
			return fmt.Errorf("ingest: persist progress: %w", err)
		}

		if lastTS+tfMillis <= current {
			break // no forward progress; avoid an infinite loop
		}
		current = lastTS + tfMillis

		if err := ig.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	completed := time.Now()
	job.Status = store.JobCompleted
	job.CompletedAt = &completed
	if err := ig.store.UpdateIngestionJob(ctx, job); err != nil {
		return fmt.Errorf("ingest: mark completed: %w", err)
	}

	return ig.refreshDataSource(ctx, canonicalPair, tf)
}

func (ig *Ingestor) fetchWithRetry(ctx context.Context, canonicalPair, tf string, from int64) ([]columnar.Candle, error) {
	var lastErr error
	for attempt := 1; attempt <= ig.cfg.MaxRetries; attempt++ {
		candles, err := ig.client.FetchCandles(ctx, canonicalPair, tf, from, ig.cfg.ChunkSize)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if ig.log != nil {
			ig.log.Warn("ingest fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ig.cfg.RetryDelay * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("ingest: exhausted %d retries: %w", ig.cfg.MaxRetries, lastErr)
}

func (ig *Ingestor) isCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := ig.store.GetIngestionJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == store.JobCancelled, nil
}

func (ig *Ingestor) refreshDataSource(ctx context.Context, canonicalPair, tf string) error {
	rng, err := ig.columnar.GetAvailableRange(canonicalPair, tf)
	if err != nil {
		return err
	}
	if rng == nil {
		return nil
	}
	return ig.store.UpsertDataSource(ctx, store.DataSource{
		Pair:         canonicalPair,
		Timeframe:    tf,
		Exchange:     ig.client.Exchange(),
		EarliestDate: time.UnixMilli(rng.Earliest),
		LatestDate:   time.UnixMilli(rng.Latest),
		TotalCandles: rng.TotalCandles,
		IsComplete:   true,
		LastUpdated:  time.Now(),
	})
}

// validateCandle rejects records per spec §4.3: timestamp missing/NaN
// (non-positive here, since NaN cannot occur in an int64), high<low,
// open<=0, close<=0, volume<0. The full OHLC band invariant of
// Candle.Valid (open/close inside [low, high]) is not applied here.
func validateCandle(c columnar.Candle) bool {
	if c.Timestamp <= 0 {
		return false
	}
	if !c.Open.IsPositive() || !c.Close.IsPositive() {
		return false
	}
	if c.High.LessThan(c.Low) {
		return false
	}
	if c.Volume.IsNegative() {
		return false
	}
	return true
}
