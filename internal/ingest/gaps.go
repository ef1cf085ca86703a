package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradingcore/pkg/store"
	"tradingcore/pkg/timeframe"
)

// epoch2020 is the default gap-scan floor for a pair with no DataSource
// yet, per spec §4.3.
var epoch2020 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// DetectGaps reads the existing candle range for (pair,timeframe) and
// walks it looking for any neighbor pair with Δt > 1.5*tf, per spec §4.3.
// If no DataSource row exists yet, the entire [2020-01-01, now] range is
// reported as a single gap. Detected gaps are persisted.
func (ig *Ingestor) DetectGaps(ctx context.Context, canonicalPair, tf string) ([]store.DataGap, error) {
	tfMillis, err := timeframe.ParseMillis(tf)
	if err != nil {
		return nil, err
	}

	_, err = ig.store.GetDataSource(ctx, canonicalPair, tf, ig.client.Exchange())
	noSource := err != nil

	if noSource {
		gap := store.DataGap{
			ID:         uuid.NewString(),
			Pair:       canonicalPair,
			Timeframe:  tf,
			GapStart:   epoch2020,
			GapEnd:     time.Now(),
			Reason:     "no data source on record",
			DetectedAt: time.Now(),
		}
		if err := ig.store.InsertDataGap(ctx, gap); err != nil {
			return nil, err
		}
		return []store.DataGap{gap}, nil
	}

	rng, err := ig.columnar.GetAvailableRange(canonicalPair, tf)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, nil
	}

	candles, err := ig.columnar.ReadRange(canonicalPair, tf, rng.Earliest, rng.Latest)
	if err != nil {
		return nil, err
	}

	var gaps []store.DataGap
	threshold := int64(1.5 * float64(tfMillis))
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp - candles[i-1].Timestamp
		if delta <= threshold {
			continue
		}
		gap := store.DataGap{
			ID:         uuid.NewString(),
			Pair:       canonicalPair,
			Timeframe:  tf,
			GapStart:   time.UnixMilli(candles[i-1].Timestamp),
			GapEnd:     time.UnixMilli(candles[i].Timestamp),
			Reason:     fmt.Sprintf("delta %dms exceeds 1.5x timeframe", delta),
			DetectedAt: time.Now(),
		}
		if err := ig.store.InsertDataGap(ctx, gap); err != nil {
			return nil, err
		}
		gaps = append(gaps, gap)
	}
	return gaps, nil
}

// RepairGaps ingests every open gap for (pair,timeframe) at priority=2, per
// spec §4.3, marking each repaired once its backfill completes.
func (ig *Ingestor) RepairGaps(ctx context.Context, canonicalPair, tf string) error {
	gaps, err := ig.store.ListOpenGaps(ctx, canonicalPair, tf)
	if err != nil {
		return err
	}

	for _, gap := range gaps {
		if err := ig.Ingest(ctx, ig.NewJobID(), gap.Pair, gap.Timeframe, gap.GapStart, gap.GapEnd, 2); err != nil {
			return fmt.Errorf("ingest: repair gap %s: %w", gap.ID, err)
		}
		if err := ig.store.MarkGapRepaired(ctx, gap.ID, time.Now()); err != nil {
			return err
		}
	}
	return nil
}
