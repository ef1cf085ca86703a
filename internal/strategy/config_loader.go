package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents a strategy configuration entry in YAML, per spec §6's
// strategy parameter file support.
type Config struct {
	ID             string         `yaml:"id"`
	Type           string         `yaml:"type"`
	UserID         string         `yaml:"userId"`
	Pair           string         `yaml:"pair"`
	MaxDailyTrades int            `yaml:"maxDailyTrades"`
	IsActive       bool           `yaml:"isActive"`
	Parameters     map[string]any `yaml:"parameters"`
}

// ConfigFile is the top-level YAML document loaded by LoadConfig.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy definitions from a YAML file, matching the
// teacher's strategy/config_loader.go pattern.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Strategies, nil
}

// Build constructs a Strategy instance from a Config entry using the
// built-in factories, and errors on an unrecognized type.
func Build(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case "mean_reversion":
		mrCfg := DefaultMeanReversionConfig()
		applyFloat(cfg.Parameters, "balanceFraction", &mrCfg.BalanceFraction)
		applyFloat(cfg.Parameters, "stopLossPct", &mrCfg.StopLossPct)
		applyFloat(cfg.Parameters, "rsiOverbought", &mrCfg.RSIOverbought)
		applyFloat(cfg.Parameters, "rsiOversold", &mrCfg.RSIOversold)
		return NewMeanReversion(cfg.ID, mrCfg), nil
	case "momentum":
		momCfg := DefaultMomentumConfig()
		applyFloat(cfg.Parameters, "macdThreshold", &momCfg.MACDThreshold)
		applyFloat(cfg.Parameters, "minTrendStrength", &momCfg.MinTrendStrength)
		applyFloat(cfg.Parameters, "trailingStopPct", &momCfg.TrailingStopPct)
		applyFloat(cfg.Parameters, "balanceFraction", &momCfg.BalanceFraction)
		return NewMomentum(cfg.ID, momCfg), nil
	case "grid":
		var center float64
		applyFloat(cfg.Parameters, "centerPrice", &center)
		gridCfg := DefaultGridConfig(center)
		applyFloat(cfg.Parameters, "gridSpacingPct", &gridCfg.GridSpacingPct)
		applyFloat(cfg.Parameters, "orderSize", &gridCfg.OrderSize)
		applyFloat(cfg.Parameters, "rebalanceThreshold", &gridCfg.RebalanceThreshold)
		return NewGrid(cfg.ID, gridCfg), nil
	default:
		return nil, fmt.Errorf("strategy: unknown type %q", cfg.Type)
	}
}

func applyFloat(params map[string]any, key string, dst *float64) {
	if v, ok := params[key].(float64); ok {
		*dst = v
	}
}

// LoadAndRegister loads strategy configs from path, builds them, and
// registers each with sched, activating ones marked isActive.
func LoadAndRegister(path string, sched *Scheduler) error {
	configs, err := LoadConfig(path)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		strat, err := Build(cfg)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", cfg.ID, err)
		}
		sched.Register(strat, cfg.UserID, cfg.Pair, cfg.MaxDailyTrades)
		if cfg.IsActive {
			if err := sched.Activate(cfg.ID); err != nil {
				return fmt.Errorf("strategy %s: %w", cfg.ID, err)
			}
		}
	}
	return nil
}
