// Command tradingcore wires every component of the trading core into one
// process: the event bus, the relational/columnar stores, the historical
// ingestor, the market-data aggregator and its venue clients, the
// strategy scheduler, the risk/order/position managers, the trading
// coordinator that joins them over the bus, and the plain backtest/
// historical-data services a thin transport layer can front later.
// Grounded on the teacher's root main.go for the overall shape (load
// config, build zap/db/bus, construct each component, start goroutines,
// block on SIGINT/SIGTERM, shut down in reverse order) — rewired end to
// end for the spec's risk/order/position/coordinator/backtest/optimize
// stack rather than the teacher's single-engine/balance-manager design.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tradingcore/internal/api"
	"tradingcore/internal/columnar"
	"tradingcore/internal/coordinator"
	"tradingcore/internal/events"
	"tradingcore/internal/gateway"
	"tradingcore/internal/ingest"
	"tradingcore/internal/market"
	"tradingcore/internal/order"
	"tradingcore/internal/position"
	"tradingcore/internal/risk"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/cache"
	"tradingcore/pkg/config"
	exchange "tradingcore/pkg/exchanges/common"
	"tradingcore/pkg/logging"
	"tradingcore/pkg/store"
	venuebinance "tradingcore/pkg/venue/binance"
	venuekraken "tradingcore/pkg/venue/kraken"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tradingcore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.DevMode)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	col := columnar.New(cfg.DataDir)
	bus := events.NewBus()

	// Trading stack: risk -> order -> position, wired together only
	// through the coordinator, not through direct references.
	riskMgr := risk.NewManager(risk.Config{
		MaxDailyLoss:           cfg.Risk.MaxDailyLoss,
		MaxDailyTrades:         cfg.Risk.MaxDailyTrades,
		MaxDailyVolume:         cfg.Risk.MaxDailyVolume,
		MaxPositionSize:        cfg.Risk.MaxPositionSize,
		MaxTotalExposure:       cfg.Risk.MaxTotalExposure,
		MaxConcentration:       cfg.Risk.MaxConcentration,
		TradeCooldown:          cfg.Risk.TradeCooldown,
		MaxDrawdownPct:         cfg.Risk.MaxDrawdownPct,
		MaxConsecutiveLosses:   cfg.Risk.MaxConsecutiveLosses,
		MaxSlippagePct:         cfg.Risk.MaxSlippagePct,
		MaxPriceDeviationPct:   cfg.Risk.MaxPriceDeviationPct,
		CircuitBreakerDuration: cfg.Risk.CircuitBreakerDuration,
	}, st, bus, logging.Named(log, "risk"))

	var gw exchange.Gateway
	if os.Getenv("BINANCE_API_KEY") != "" {
		marketType := os.Getenv("BINANCE_MARKET_TYPE")
		if marketType == "" {
			marketType = string(gateway.MarketSpot)
		}
		gw, err = gateway.New(gateway.MarketType(marketType), gateway.Credentials{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			APISecret: os.Getenv("BINANCE_API_SECRET"),
			Testnet:   os.Getenv("BINANCE_TESTNET") == "true",
		}, logging.Named(log, "gateway"))
		if err != nil {
			return fmt.Errorf("build exchange gateway: %w", err)
		}
	}
	orderCache := buildOrderCache(cfg, log)
	orderMgr := order.NewManager(st, bus, gw, orderCache, logging.Named(log, "order"))
	positionMgr := position.NewManager(st)
	go orderMgr.Start(ctx)

	agg := buildAggregator(cfg, bus, log)
	sched := buildScheduler(agg, bus, log)

	coord := coordinator.New(bus, riskMgr, orderMgr, positionMgr, sched, agg, logging.Named(log, "coordinator"))
	coord.Start()

	if err := agg.Start(ctx); err != nil {
		return fmt.Errorf("start market aggregator: %w", err)
	}

	sched.Start(ctx)

	// The backtest/historical-data services have no HTTP-shape front end
	// of their own; they're plain Go interfaces a future transport layer
	// calls into directly. Constructed here so they share this process's
	// store/columnar/ingestor handles rather than opening their own.
	ingestor := buildIngestor(cfg, st, col, log)
	_ = api.NewBacktestService(st, col, logging.Named(log, "backtest"))
	_ = api.NewHistoricalDataService(ingestor, st, col, logging.Named(log, "historical"))

	log.Info("tradingcore started", zap.String("exchange", cfg.Exchange), zap.Strings("pairs", cfg.Pairs))

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// buildOrderCache picks the order manager's backing cache.Cache: a Redis
// client when cfg.RedisAddr is set, so order state survives a process
// restart and is shared across replicas, or an in-process cache.Memory
// otherwise.
func buildOrderCache(cfg *config.Config, log *zap.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Info("order cache backed by redis", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedis(rdb)
}

// buildScheduler constructs the strategy scheduler wired to the
// aggregator-backed market cache, loading any strategies.yaml found in the
// current working directory.
func buildScheduler(agg *market.Aggregator, bus *events.Bus, log *zap.Logger) *strategy.Scheduler {
	sched := strategy.NewScheduler(agg, bus, logging.Named(log, "strategy"))

	if _, err := os.Stat("strategies.yaml"); err == nil {
		if err := strategy.LoadAndRegister("strategies.yaml", sched); err != nil {
			log.Warn("failed to load strategies.yaml", zap.Error(err))
		}
	}
	return sched
}

// buildAggregator wires one venue.Client per configured exchange and
// subscribes to every configured pair's ticker/trade channels.
func buildAggregator(cfg *config.Config, bus *events.Bus, log *zap.Logger) *market.Aggregator {
	agg := market.NewAggregator(bus, logging.Named(log, "market"))

	switch cfg.Exchange {
	case "binance":
		client := venuebinance.NewClient(false)
		agg.AddVenue(client)
	case "kraken":
		client := venuekraken.NewClient()
		agg.AddVenue(client)
	default:
		log.Warn("no venue client wired for exchange", zap.String("exchange", cfg.Exchange))
		return agg
	}

	for _, pair := range cfg.Pairs {
		// agg.Subscribe takes the canonical pair straight through to the
		// venue client, which normalizes to its own wire symbol internally
		// (see each venue package's NormalizePair/Subscribe) and maps
		// incoming events back to this same canonical form.
		agg.Subscribe("ticker", pair)
		agg.Subscribe("trade", pair)
	}
	return agg
}

// buildIngestor wires the historical-data backfill pipeline. It always uses
// Binance's REST kline client, whatever cfg.Exchange names.
func buildIngestor(cfg *config.Config, st *store.Store, col *columnar.Store, log *zap.Logger) *ingest.Ingestor {
	client := ingest.NewBinanceClient(false)
	icfg := ingest.Config{
		ChunkSize:  cfg.Ingestor.ChunkSize,
		RateLimit:  cfg.Ingestor.RateLimit,
		MaxRetries: cfg.Ingestor.MaxRetries,
		RetryDelay: cfg.Ingestor.RetryDelay,
	}
	return ingest.New(st, col, client, icfg, logging.Named(log, "ingest"))
}
