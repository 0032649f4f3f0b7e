package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	m "capm/data/models"
	api "capm/service/api"
	av "capm/service/api/alpha_vantage"
	"capm/service/core"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Analysis     AnalysisConfig     `yaml:"analysis"`
	AlphaVantage AlphaVantageConfig `yaml:"alpha_vantage"`
	Database     DatabaseConfig     `yaml:"database"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AnalysisConfig struct {
	MarketSymbol     string `yaml:"market_symbol"`
	TreasuryMaturity string `yaml:"treasury_maturity"` // 3month, 2year, 5year, 7year, 10year, 30year
	LookbackYears    int    `yaml:"lookback_years"`
	Interval         string `yaml:"interval"` // monthly, weekly, daily
	Window           int    `yaml:"window"`   // default rolling window in periods
	Workers          int    `yaml:"workers"`
}

type AlphaVantageConfig struct {
	Host              string        `yaml:"host"`
	ApiKey            string        `yaml:"-"` // env only
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
}

type DatabaseConfig struct {
	Url          string        `yaml:"url"` // empty disables the price cache
	RefreshAfter time.Duration `yaml:"refresh_after"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: core.DefaultAddr,
		},
		Analysis: AnalysisConfig{
			MarketSymbol:     "SPY",
			TreasuryMaturity: "30year",
			LookbackYears:    20,
			Interval:         "monthly",
			Window:           core.DefaultRollingWindow,
			Workers:          core.DefaultWorkers,
		},
		AlphaVantage: AlphaVantageConfig{
			Host:              av.HostDefault,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 5,
			Burst:             1,
			BreakerFailures:   5,
			BreakerTimeout:    time.Minute,
		},
		Database: DatabaseConfig{
			RefreshAfter: core.DefaultRefreshAfter,
		},
		Catalog: CatalogConfig{
			Path: "data/sp500_components.html",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional yaml file at path, then the environment (.env included)
func Load(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
	}

	// a missing .env is normal outside of local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) mergeFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	return nil
}

func applyEnvOverrides(config *Config) {
	if apiKey := os.Getenv("ALPHAVANTAGE_API_KEY"); apiKey != "" {
		config.AlphaVantage.ApiKey = apiKey
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.Url = url
	}
	if addr := os.Getenv("CAPM_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if level := os.Getenv("CAPM_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if market := os.Getenv("CAPM_MARKET_SYMBOL"); market != "" {
		config.Analysis.MarketSymbol = market
	}
	if workers := os.Getenv("CAPM_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Analysis.Workers = w
		}
	}
}

func (c *Config) Validate() error {
	if _, err := m.ParseInterval(c.Analysis.Interval); err != nil {
		return fmt.Errorf("invalid analysis.interval: %w", err)
	}
	if c.Analysis.LookbackYears < 1 {
		return fmt.Errorf("analysis.lookback_years must be positive, got %d", c.Analysis.LookbackYears)
	}
	if c.Analysis.MarketSymbol == "" {
		return fmt.Errorf("analysis.market_symbol is required")
	}
	if err := core.ValidateWindow(c.Analysis.Window); err != nil {
		return fmt.Errorf("invalid analysis.window: %w", err)
	}
	return nil
}

// AnalysisSettings converts the analysis section for the core
func (c *Config) AnalysisSettings() core.AnalysisSettings {
	interval, _ := m.ParseInterval(c.Analysis.Interval)
	return core.AnalysisSettings{
		MarketSymbol:     c.Analysis.MarketSymbol,
		TreasuryMaturity: c.Analysis.TreasuryMaturity,
		Lookback:         time.Duration(c.Analysis.LookbackYears) * 365 * 24 * time.Hour,
		Interval:         interval,
		Window:           c.Analysis.Window,
		Workers:          c.Analysis.Workers,
	}
}

func (c *Config) ClientSettings() api.ClientSettings {
	return api.ClientSettings{
		Timeout:           c.AlphaVantage.Timeout,
		RequestsPerMinute: c.AlphaVantage.RequestsPerMinute,
		Burst:             c.AlphaVantage.Burst,
		BreakerFailures:   c.AlphaVantage.BreakerFailures,
		BreakerTimeout:    c.AlphaVantage.BreakerTimeout,
	}
}
