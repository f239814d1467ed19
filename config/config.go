// Package config loads and validates the application configuration from a
// YAML or JSON file, with complete defaults so the binary runs with no file
// at all.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Market    MarketConfig    `json:"market" yaml:"market"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Snapshot  SnapshotConfig  `json:"snapshot" yaml:"snapshot"`
	Trading   TradingConfig   `json:"trading" yaml:"trading"`
}

// AccountConfig seeds the single account on first run.
type AccountConfig struct {
	SeedCash float64 `json:"seed_cash" yaml:"seed_cash"`
}

// MarketConfig selects the price producer. Exactly one producer runs.
type MarketConfig struct {
	Provider string `json:"provider" yaml:"provider"` // "sim" or "poll"
}

// TickerConfig holds one ticker's simulation parameters.
type TickerConfig struct {
	Ticker  string  `json:"ticker" yaml:"ticker"`
	Seed    float64 `json:"seed" yaml:"seed"`
	Drift   float64 `json:"drift" yaml:"drift"`
	Vol     float64 `json:"vol" yaml:"vol"`
	Cluster string  `json:"cluster,omitempty" yaml:"cluster,omitempty"`
}

// SimulatorConfig drives the GBM simulator. Durations are strings like
// "500ms", parsed by Validate.
type SimulatorConfig struct {
	Interval         string             `json:"interval" yaml:"interval"`
	Tickers          []TickerConfig     `json:"tickers" yaml:"tickers"`
	Clusters         map[string]float64 `json:"clusters" yaml:"clusters"` // intra-cluster correlation per cluster
	CrossCorrelation float64            `json:"cross_correlation" yaml:"cross_correlation"`
	EventProbability float64            `json:"event_probability" yaml:"event_probability"`
	EventMinPct      float64            `json:"event_min_pct" yaml:"event_min_pct"`
	EventMaxPct      float64            `json:"event_max_pct" yaml:"event_max_pct"`
	Floor            float64            `json:"floor" yaml:"floor"`
}

// FeedConfig drives the polled feed producer. The API key may also come from
// the POLYGON_API_KEY environment variable.
type FeedConfig struct {
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Interval       string `json:"interval,omitempty" yaml:"interval,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// StreamInterval throttles websocket snapshot frames.
	StreamInterval string `json:"stream_interval" yaml:"stream_interval"`
}

type SnapshotConfig struct {
	Interval string `json:"interval" yaml:"interval"`
}

// TradingConfig tunes trade execution policy.
type TradingConfig struct {
	SellPolicy string `json:"sell_policy" yaml:"sell_policy"` // "market" or "cost"
}

// Default returns a configuration that runs out of the box: the simulator
// over the standard ten-ticker basket, SQLite beside the binary, and the
// sell-at-market policy.
func Default() *Config {
	return &Config{
		Account: AccountConfig{SeedCash: 10000},
		Market:  MarketConfig{Provider: "sim"},
		Simulator: SimulatorConfig{
			Interval: "500ms",
			Tickers: []TickerConfig{
				{Ticker: "AAPL", Seed: 190.0, Drift: 0.08, Vol: 0.25, Cluster: "tech"},
				{Ticker: "GOOGL", Seed: 175.0, Drift: 0.10, Vol: 0.28, Cluster: "tech"},
				{Ticker: "MSFT", Seed: 420.0, Drift: 0.09, Vol: 0.24, Cluster: "tech"},
				{Ticker: "AMZN", Seed: 185.0, Drift: 0.12, Vol: 0.30, Cluster: "tech"},
				{Ticker: "TSLA", Seed: 250.0, Drift: 0.05, Vol: 0.50, Cluster: "tech"},
				{Ticker: "NVDA", Seed: 880.0, Drift: 0.15, Vol: 0.40, Cluster: "tech"},
				{Ticker: "META", Seed: 500.0, Drift: 0.10, Vol: 0.32, Cluster: "tech"},
				{Ticker: "NFLX", Seed: 630.0, Drift: 0.11, Vol: 0.35, Cluster: "tech"},
				{Ticker: "JPM", Seed: 195.0, Drift: 0.06, Vol: 0.20, Cluster: "finance"},
				{Ticker: "V", Seed: 280.0, Drift: 0.07, Vol: 0.18, Cluster: "finance"},
			},
			Clusters:         map[string]float64{"tech": 0.6, "finance": 0.5},
			CrossCorrelation: 0.2,
			EventProbability: 0.005,
			EventMinPct:      0.02,
			EventMaxPct:      0.05,
			Floor:            0.01,
		},
		Feed: FeedConfig{
			Interval:       "15s",
			RequestTimeout: "10s",
		},
		Database: DatabaseConfig{Path: "./papertrade.db"},
		Server:   ServerConfig{Addr: ":8080", StreamInterval: "500ms"},
		Snapshot: SnapshotConfig{Interval: "30s"},
		Trading:  TradingConfig{SellPolicy: "market"},
	}
}

// LoadFromFile reads a config file, trying YAML first and falling back to
// JSON. Missing sections keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and rejects anything the components
// would refuse at construction time anyway, with a clearer message.
func (c *Config) Validate() error {
	if c.Account.SeedCash <= 0 {
		return fmt.Errorf("account.seed_cash must be positive")
	}

	switch c.Market.Provider {
	case "sim", "poll":
	default:
		return fmt.Errorf("market.provider must be %q or %q, got %q", "sim", "poll", c.Market.Provider)
	}

	if _, err := c.TickInterval(); err != nil {
		return fmt.Errorf("simulator.interval: %w", err)
	}
	if len(c.Simulator.Tickers) == 0 {
		return fmt.Errorf("simulator.tickers must not be empty")
	}
	for _, t := range c.Simulator.Tickers {
		if t.Ticker == "" {
			return fmt.Errorf("simulator ticker entry is missing its symbol")
		}
		if t.Seed <= 0 {
			return fmt.Errorf("simulator ticker %s: seed must be positive", t.Ticker)
		}
		if t.Vol <= 0 {
			return fmt.Errorf("simulator ticker %s: vol must be positive", t.Ticker)
		}
	}
	if c.Simulator.Floor <= 0 {
		return fmt.Errorf("simulator.floor must be positive")
	}
	if c.Simulator.EventMinPct < 0 || c.Simulator.EventMaxPct < c.Simulator.EventMinPct {
		return fmt.Errorf("simulator event percent range is invalid")
	}

	if c.Market.Provider == "poll" && c.FeedAPIKey() == "" {
		return fmt.Errorf("feed.api_key (or POLYGON_API_KEY) is required with market.provider=poll")
	}
	if _, err := c.PollInterval(); err != nil {
		return fmt.Errorf("feed.interval: %w", err)
	}
	if _, err := c.PollRequestTimeout(); err != nil {
		return fmt.Errorf("feed.request_timeout: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := c.StreamInterval(); err != nil {
		return fmt.Errorf("server.stream_interval: %w", err)
	}
	if _, err := c.SnapshotInterval(); err != nil {
		return fmt.Errorf("snapshot.interval: %w", err)
	}

	switch c.Trading.SellPolicy {
	case "market", "cost":
	default:
		return fmt.Errorf("trading.sell_policy must be %q or %q, got %q", "market", "cost", c.Trading.SellPolicy)
	}

	return nil
}

// FeedAPIKey returns the configured key, falling back to POLYGON_API_KEY.
func (c *Config) FeedAPIKey() string {
	if c.Feed.APIKey != "" {
		return c.Feed.APIKey
	}
	return os.Getenv("POLYGON_API_KEY")
}

// DefaultTickers is the watchlist seeded on first run: every simulator
// ticker, in config order.
func (c *Config) DefaultTickers() []string {
	out := make([]string, 0, len(c.Simulator.Tickers))
	for _, t := range c.Simulator.Tickers {
		out = append(out, t.Ticker)
	}
	return out
}

func (c *Config) TickInterval() (time.Duration, error)       { return parsePositive(c.Simulator.Interval) }
func (c *Config) PollInterval() (time.Duration, error)       { return parsePositive(c.Feed.Interval) }
func (c *Config) PollRequestTimeout() (time.Duration, error) { return parsePositive(c.Feed.RequestTimeout) }
func (c *Config) StreamInterval() (time.Duration, error)     { return parsePositive(c.Server.StreamInterval) }
func (c *Config) SnapshotInterval() (time.Duration, error)   { return parsePositive(c.Snapshot.Interval) }

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
