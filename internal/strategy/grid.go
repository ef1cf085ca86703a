package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// GridConfig holds the tunable parameters of the grid strategy, per spec
// §4.5.
type GridConfig struct {
	Levels              int     // N, must be even
	GridSpacingPct       float64 // spacing between adjacent levels
	CenterPrice          float64
	OrderSize            float64
	RebalanceThreshold   float64 // fraction of gridRange that triggers a recenter
	RebalanceMinInterval time.Duration
}

func DefaultGridConfig(center float64) GridConfig {
	return GridConfig{
		Levels:               10,
		GridSpacingPct:       0.01,
		CenterPrice:          center,
		OrderSize:            0.01,
		RebalanceThreshold:   0.5,
		RebalanceMinInterval: 5 * time.Minute,
	}
}

type gridSide string

const (
	gridSideBuy  gridSide = "buy"
	gridSideSell gridSide = "sell"
)

type gridLevel struct {
	price  decimal.Decimal
	side   gridSide
	filled bool
}

// Grid implements the Grid strategy of spec §4.5, adapted from the
// teacher's GridStrategy (upper/lower bound debounce) into a full N-level
// symmetric ladder with rebalancing.
type Grid struct {
	mu            sync.Mutex
	id            string
	cfg           GridConfig
	levels        []gridLevel
	lastRebalance time.Time
}

func NewGrid(id string, cfg GridConfig) *Grid {
	g := &Grid{id: id, cfg: cfg}
	g.buildLevels(cfg.CenterPrice)
	return g
}

func (g *Grid) ID() string   { return g.id }
func (g *Grid) Type() string { return "grid" }

func (g *Grid) GetConfig() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]any{
		"levels":               g.cfg.Levels,
		"gridSpacingPct":       g.cfg.GridSpacingPct,
		"centerPrice":          g.cfg.CenterPrice,
		"orderSize":            g.cfg.OrderSize,
		"rebalanceThreshold":   g.cfg.RebalanceThreshold,
		"rebalanceMinInterval": g.cfg.RebalanceMinInterval.String(),
	}
}

func (g *Grid) UpdateParams(params map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := params["gridSpacingPct"].(float64); ok {
		g.cfg.GridSpacingPct = v
	}
	if v, ok := params["orderSize"].(float64); ok {
		g.cfg.OrderSize = v
	}
	if v, ok := params["rebalanceThreshold"].(float64); ok {
		g.cfg.RebalanceThreshold = v
	}
	if v, ok := params["centerPrice"].(float64); ok {
		g.buildLevels(v)
	}
	return nil
}

// buildLevels initializes N levels symmetrically around center, N/2 buys
// below and N/2 sells above, spaced gridSpacingPct apart.
func (g *Grid) buildLevels(center float64) {
	g.cfg.CenterPrice = center
	half := g.cfg.Levels / 2
	levels := make([]gridLevel, 0, g.cfg.Levels)
	for i := 1; i <= half; i++ {
		offset := 1 - float64(i)*g.cfg.GridSpacingPct
		levels = append(levels, gridLevel{price: decimal.NewFromFloat(center * offset), side: gridSideBuy})
	}
	for i := 1; i <= half; i++ {
		offset := 1 + float64(i)*g.cfg.GridSpacingPct
		levels = append(levels, gridLevel{price: decimal.NewFromFloat(center * offset), side: gridSideSell})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].price.LessThan(levels[j].price) })
	g.levels = levels
	g.lastRebalance = time.Now()
}

func (g *Grid) gridRange() decimal.Decimal {
	if len(g.levels) == 0 {
		return decimal.Zero
	}
	return g.levels[len(g.levels)-1].price.Sub(g.levels[0].price)
}

// GenerateSignal implements spec §4.5's grid rules: on a price crossing a
// pending level, mark it filled and open an opposite-side order at the
// next adjacent level. Rebalance the center when price reaches
// rebalanceThreshold*gridRange from it, no more than once per
// RebalanceMinInterval.
func (g *Grid) GenerateSignal(ctx MarketContext) (Signal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	hold := Signal{StrategyID: g.id, Pair: ctx.Pair, Action: ActionHold, Timestamp: ctx.Timestamp}
	price := decimal.NewFromFloat(ctx.Price)

	rng := g.gridRange()
	if !rng.IsZero() {
		dist := price.Sub(decimal.NewFromFloat(g.cfg.CenterPrice)).Abs()
		threshold := rng.Mul(decimal.NewFromFloat(g.cfg.RebalanceThreshold))
		if dist.GreaterThanOrEqual(threshold) && time.Since(g.lastRebalance) >= g.cfg.RebalanceMinInterval {
			g.buildLevels(ctx.Price)
			return Signal{StrategyID: g.id, Pair: ctx.Pair, Action: ActionHold, Timestamp: ctx.Timestamp,
				Reason: fmt.Sprintf("grid recentered at %.4f", ctx.Price)}, nil
		}
	}

	for i := range g.levels {
		lvl := &g.levels[i]
		if lvl.filled {
			continue
		}
		crossed := (lvl.side == gridSideBuy && price.LessThanOrEqual(lvl.price)) ||
			(lvl.side == gridSideSell && price.GreaterThanOrEqual(lvl.price))
		if !crossed {
			continue
		}
		lvl.filled = true
		g.openAdjacent(i)

		action := ActionBuy
		if lvl.side == gridSideSell {
			action = ActionSell
		}
		return Signal{
			StrategyID: g.id,
			Pair:       ctx.Pair,
			Action:     action,
			Amount:     decimal.NewFromFloat(g.cfg.OrderSize),
			Price:      lvl.price,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("grid level %s crossed at %.4f", lvl.side, ctx.Price),
			Timestamp:  ctx.Timestamp,
		}, nil
	}
	return hold, nil
}

// openAdjacent re-opens the next level away from the filled one (above a
// filled buy, below a filled sell) as a pending level of the opposite
// side, so the ladder keeps trading both directions.
func (g *Grid) openAdjacent(filledIdx int) {
	filled := g.levels[filledIdx]
	var adjIdx = -1
	if filled.side == gridSideBuy && filledIdx+1 < len(g.levels) {
		adjIdx = filledIdx + 1
	} else if filled.side == gridSideSell && filledIdx-1 >= 0 {
		adjIdx = filledIdx - 1
	}
	if adjIdx >= 0 {
		g.levels[adjIdx].filled = false
		if filled.side == gridSideBuy {
			g.levels[adjIdx].side = gridSideSell
		} else {
			g.levels[adjIdx].side = gridSideBuy
		}
	}
}
