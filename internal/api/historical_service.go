package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradingcore/internal/columnar"
	"tradingcore/internal/ingest"
	"tradingcore/pkg/store"
)

// historicalDataService implements HistoricalDataService over a single
// exchange's Ingestor, grounded on the teacher's controllers.go
// ingest/prefetch/gaps/repair handlers with the gin request/response
// binding removed. async Ingest calls run on background goroutines since
// spec §4.3's jobs are independent of any one HTTP request's lifetime.
type historicalDataService struct {
	ingestor *ingest.Ingestor
	store    *store.Store
	columnar *columnar.Store
	log      *zap.Logger

	wg sync.WaitGroup
}

// NewHistoricalDataService wires a HistoricalDataService over ig, reusing
// the same store/columnar handles ig was constructed with (Status/Read
// need direct read access Ingestor doesn't expose).
func NewHistoricalDataService(ig *ingest.Ingestor, st *store.Store, col *columnar.Store, log *zap.Logger) HistoricalDataService {
	return &historicalDataService{ingestor: ig, store: st, columnar: col, log: log}
}

func (s *historicalDataService) Ingest(ctx context.Context, req IngestRequest) ([]string, error) {
	if len(req.Pairs) == 0 || len(req.Timeframes) == 0 {
		return nil, fmt.Errorf("ingest: pairs and timeframes are required")
	}

	ids := make([]string, 0, len(req.Pairs)*len(req.Timeframes))
	for _, pair := range req.Pairs {
		for _, tf := range req.Timeframes {
			jobID := s.ingestor.NewJobID()
			ids = append(ids, jobID)

			if !req.Async {
				if err := s.ingestor.Ingest(ctx, jobID, pair, tf, req.StartDate, req.EndDate, 1); err != nil {
					return ids, fmt.Errorf("ingest %s/%s: %w", pair, tf, err)
				}
				continue
			}

			s.wg.Add(1)
			go func(pair, tf, jobID string) {
				defer s.wg.Done()
				bg := context.Background()
				if err := s.ingestor.Ingest(bg, jobID, pair, tf, req.StartDate, req.EndDate, 1); err != nil && s.log != nil {
					s.log.Error("async ingest failed", zap.String("jobId", jobID), zap.String("pair", pair), zap.String("timeframe", tf), zap.Error(err))
				}
			}(pair, tf, jobID)
		}
	}
	return ids, nil
}

func (s *historicalDataService) Prefetch(ctx context.Context, pairs, timeframes []string) ([]string, error) {
	return s.Ingest(ctx, IngestRequest{
		Pairs:      pairs,
		Timeframes: timeframes,
		StartDate:  time.Unix(0, 0),
		EndDate:    time.Now(),
		Async:      true,
	})
}

func (s *historicalDataService) Status(ctx context.Context, jobID string) (store.IngestionJob, error) {
	job, err := s.store.GetIngestionJob(ctx, jobID)
	if err != nil {
		return store.IngestionJob{}, err
	}
	return *job, nil
}

func (s *historicalDataService) Gaps(ctx context.Context, pair, timeframe string) ([]store.DataGap, error) {
	return s.ingestor.DetectGaps(ctx, pair, timeframe)
}

func (s *historicalDataService) Repair(ctx context.Context, pair, timeframe string) error {
	return s.ingestor.RepairGaps(ctx, pair, timeframe)
}

func (s *historicalDataService) Read(ctx context.Context, pair, timeframe string, from, to time.Time, limit int) ([]CandleDTO, error) {
	rows, err := s.columnar.ReadRange(pair, timeframe, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]CandleDTO, len(rows))
	for i, c := range rows {
		o, _ := c.Open.Float64()
		h, _ := c.High.Float64()
		l, _ := c.Low.Float64()
		cl, _ := c.Close.Float64()
		v, _ := c.Volume.Float64()
		out[i] = CandleDTO{Timestamp: c.Timestamp, Open: o, High: h, Low: l, Close: cl, Volume: v}
	}
	return out, nil
}
