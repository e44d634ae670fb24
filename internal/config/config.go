// Package config defines all run configuration for the backtester. Config
// is loaded from a YAML file with overrides available via BT_* environment
// variables.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"uhfbacktest/internal/matching/fees"
)

// InstrumentConfig names one (symbol, venue) pair to replay. Symbol and
// Venue are combined into a btevent.Instrument key at construction; venue
// also selects the fee-schedule row.
type InstrumentConfig struct {
	Symbol    string `mapstructure:"symbol"`
	Venue     string `mapstructure:"venue"`
	LatencyMs int64  `mapstructure:"latency_ms"`
}

// DataConfig points at the on-disk market data and selects the row format.
// Format must be one of "csv", "csv.gz", or "parquet".
type DataConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// FeeOverride replaces or adds one venue's maker/taker rates, letting a run
// diverge from the default fee table (e.g. to model a historical fee-tier
// change).
type FeeOverride struct {
	Venue string  `mapstructure:"venue"`
	Maker float64 `mapstructure:"maker"`
	Taker float64 `mapstructure:"taker"`
}

// StoreConfig sets where a finished run's fill log and equity series are
// archived. Empty Path disables archival, which is the default — the
// backtest itself persists nothing.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the scheduler/matching/cursor structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the top-level run configuration. Maps directly onto the YAML
// file structure.
type Config struct {
	Instruments  []InstrumentConfig `mapstructure:"instruments"`
	Data         DataConfig         `mapstructure:"data"`
	FeeOverrides []FeeOverride      `mapstructure:"fee_overrides"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Load reads config from a YAML file with BT_* environment overrides
// (dotted keys become underscored, e.g. data.dir -> BT_DATA_DIR).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the instrument list and data directory up front:
// duplicate instrument keys and missing required fields are caught here
// rather than deferred to the cursor.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments: at least one instrument is required")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instruments[%d].symbol is required", i)
		}
		if inst.Venue == "" {
			return fmt.Errorf("instruments[%d].venue is required", i)
		}
		key := inst.Symbol + "_" + inst.Venue
		if _, dup := seen[key]; dup {
			return fmt.Errorf("instruments[%d]: duplicate instrument %s", i, key)
		}
		seen[key] = struct{}{}
		if inst.LatencyMs < 0 {
			return fmt.Errorf("instruments[%d].latency_ms must be >= 0", i)
		}
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	switch c.Data.Format {
	case "csv", "csv.gz", "parquet":
	default:
		return fmt.Errorf("data.format must be one of csv, csv.gz, parquet (got %q)", c.Data.Format)
	}
	for i, fo := range c.FeeOverrides {
		if fo.Venue == "" {
			return fmt.Errorf("fee_overrides[%d].venue is required", i)
		}
	}
	return nil
}

// FeeSchedule builds the fee schedule the matching engine should use: the
// default venue table with any configured overrides applied on top.
func (c *Config) FeeSchedule() fees.Schedule {
	schedule := fees.Default()
	for _, fo := range c.FeeOverrides {
		schedule[fo.Venue] = fees.Rates{
			Maker: decimal.NewFromFloat(fo.Maker),
			Taker: decimal.NewFromFloat(fo.Taker),
		}
	}
	return schedule
}
