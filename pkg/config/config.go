// Package config loads environment-driven settings for the trading core,
// grounded on the teacher's pkg/config package (godotenv + getEnv/
// getEnvFloat/getEnvInt helpers), re-keyed to the configuration surface
// spec §6 recognizes: risk thresholds, backtest defaults, optimizer
// defaults, ingestor tunables and per-venue aggregator policy.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the core's components
// need at startup.
type Config struct {
	Port     string
	DBPath   string
	DataDir  string // columnar candle store base directory
	DevMode  bool   // console logging vs JSON
	Language string

	Exchange string
	Pairs    []string

	// RedisAddr backs the order/ticker TTL cache (cache.Redis) when set;
	// empty means an in-process cache.Memory.
	RedisAddr string

	Risk      RiskConfig
	Backtest  BacktestConfig
	Optimizer OptimizerConfig
	Ingestor  IngestorConfig
	Venue     VenueConfig
}

// RiskConfig mirrors spec §6's risk defaults.
type RiskConfig struct {
	MaxPositionSize        float64
	MaxTotalExposure       float64
	MaxConcentration       float64
	MaxDailyLoss           float64
	MaxDailyTrades         int
	MaxDailyVolume         float64
	MaxDrawdownPct         float64
	MaxConsecutiveLosses   int
	CircuitBreakerDuration time.Duration
	TradeCooldown          time.Duration
	MaxSlippagePct         float64
	MaxPriceDeviationPct   float64
}

// BacktestConfig mirrors spec §6's backtest defaults.
type BacktestConfig struct {
	InitialBalance float64
	MakerFee       float64
	TakerFee       float64
	SlippageModel  string
	SlippageBps    float64
}

// OptimizerConfig mirrors spec §6's optimizer defaults.
type OptimizerConfig struct {
	TrainRatio float64
	NSplits    int
	Metric     string
	MinTrades  int
}

// IngestorConfig mirrors spec §6's ingestor defaults.
type IngestorConfig struct {
	Exchange     string
	RateLimit    time.Duration
	ChunkSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// VenueConfig mirrors spec §6's per-venue aggregator defaults.
type VenueConfig struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Heartbeat            time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error so the app still starts without .env

	return &Config{
		Port:     getEnv("PORT", "8080"),
		DBPath:   getEnv("DB_PATH", "./data/tradingcore.db"),
		DataDir:  getEnv("DATA_DIR", "./data/candles"),
		DevMode:  getEnv("DEV_MODE", "false") == "true",
		Language: getEnv("LANGUAGE", "en"),
		Exchange: getEnv("EXCHANGE", "binance"),
		Pairs:    splitAndTrim(getEnv("PAIRS", "BTC/USDT,ETH/USDT")),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		Risk: RiskConfig{
			MaxPositionSize:        getEnvFloat("RISK_MAX_POSITION_SIZE", 0.2),
			MaxTotalExposure:       getEnvFloat("RISK_MAX_TOTAL_EXPOSURE", 0.8),
			MaxConcentration:       getEnvFloat("RISK_MAX_CONCENTRATION", 0.4),
			MaxDailyLoss:           getEnvFloat("RISK_MAX_DAILY_LOSS", 0.05),
			MaxDailyTrades:         getEnvInt("RISK_MAX_DAILY_TRADES", 100),
			MaxDailyVolume:         getEnvFloat("RISK_MAX_DAILY_VOLUME", 100000),
			MaxDrawdownPct:         getEnvFloat("RISK_MAX_DRAWDOWN_PCT", 10),
			MaxConsecutiveLosses:   getEnvInt("RISK_MAX_CONSECUTIVE_LOSSES", 5),
			CircuitBreakerDuration: time.Duration(getEnvInt("RISK_CIRCUIT_BREAKER_DURATION_MS", 3600000)) * time.Millisecond,
			TradeCooldown:          time.Duration(getEnvInt("RISK_TRADE_COOLDOWN_MS", 1000)) * time.Millisecond,
			MaxSlippagePct:         getEnvFloat("RISK_MAX_SLIPPAGE_PCT", 2),
			MaxPriceDeviationPct:   getEnvFloat("RISK_MAX_PRICE_DEVIATION_PCT", 5),
		},

		Backtest: BacktestConfig{
			InitialBalance: getEnvFloat("BACKTEST_INITIAL_BALANCE", 10000),
			MakerFee:       getEnvFloat("BACKTEST_MAKER_FEE", 0.001),
			TakerFee:       getEnvFloat("BACKTEST_TAKER_FEE", 0.002),
			SlippageModel:  getEnv("BACKTEST_SLIPPAGE_MODEL", "none"),
			SlippageBps:    getEnvFloat("BACKTEST_SLIPPAGE_BPS", 5),
		},

		Optimizer: OptimizerConfig{
			TrainRatio: getEnvFloat("OPTIMIZER_TRAIN_RATIO", 0.7),
			NSplits:    getEnvInt("OPTIMIZER_N_SPLITS", 3),
			Metric:     getEnv("OPTIMIZER_METRIC", "composite"),
			MinTrades:  getEnvInt("OPTIMIZER_MIN_TRADES", 10),
		},

		Ingestor: IngestorConfig{
			Exchange:   getEnv("EXCHANGE", "binance"),
			RateLimit:  time.Duration(getEnvInt("INGESTOR_RATE_LIMIT_MS", 100)) * time.Millisecond,
			ChunkSize:  getEnvInt("INGESTOR_CHUNK_SIZE", 1000),
			MaxRetries: getEnvInt("INGESTOR_MAX_RETRIES", 3),
			RetryDelay: time.Duration(getEnvInt("INGESTOR_RETRY_DELAY_MS", 5000)) * time.Millisecond,
		},

		Venue: VenueConfig{
			MaxReconnectAttempts: getEnvInt("VENUE_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       time.Duration(getEnvInt("VENUE_RECONNECT_DELAY_MS", 1000)) * time.Millisecond,
			Heartbeat:            time.Duration(getEnvInt("VENUE_HEARTBEAT_MS", 30000)) * time.Millisecond,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
