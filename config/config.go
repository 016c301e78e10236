// Package config loads the chart client configuration from YAML with
// environment overrides on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/indicator"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

// DefaultPath is where the client looks for its config when no flag is
// given.
const DefaultPath = "configs/config.yml"

type ServerConfig struct {
	BaseURL      string `yaml:"base_url"`
	HeartbeatSec int    `yaml:"heartbeat_sec"`
}

type ChartConfig struct {
	Exchange    string `yaml:"exchange"`
	Token       string `yaml:"token"`
	Interval    string `yaml:"interval"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	VisibleBars int    `yaml:"visible_bars"`
}

type IndicatorConfig struct {
	Kind   string `yaml:"kind"`
	Period int    `yaml:"period"`
}

type LiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Chart        ChartConfig     `yaml:"chart"`
	Indicator    IndicatorConfig `yaml:"indicator"`
	Live         LiveConfig      `yaml:"live"`
	LogLevel     string          `yaml:"log_level"`
	LogFile      string          `yaml:"log_file"`
	SettingsFile string          `yaml:"settings_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:      "http://localhost:8000",
			HeartbeatSec: 60,
		},
		Chart: ChartConfig{
			Exchange:    "NASDAQ",
			Token:       "AAPL",
			Interval:    "1m",
			VisibleBars: 100,
		},
		Indicator: IndicatorConfig{Period: 20},
		LogLevel:  "info",
		LogFile:   "termchart.log",
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(config); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	config.applyEnv()
	return config, nil
}

// applyEnv lets CHART_* variables override file values, so a .env file or
// the shell can repoint a shared config.
func (c *Config) applyEnv() {
	c.Server.BaseURL = envOverride(c.Server.BaseURL, "CHART_SERVER_URL")
	c.Chart.Exchange = envOverride(c.Chart.Exchange, "CHART_EXCHANGE")
	c.Chart.Token = envOverride(c.Chart.Token, "CHART_TOKEN")
	c.Chart.Interval = envOverride(c.Chart.Interval, "CHART_INTERVAL")
	c.LogLevel = envOverride(c.LogLevel, "CHART_LOG_LEVEL")
}

// envOverride returns the value of key when set, otherwise cur.
func envOverride(cur, key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return cur
}

// Validate checks everything that would otherwise fail deep inside a
// request: URL shape, timeframe, overlay settings, window order.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server.base_url %q must be http(s)://host[:port]", c.Server.BaseURL)
	}
	if c.Chart.Exchange == "" || c.Chart.Token == "" {
		return fmt.Errorf("config: chart.exchange and chart.token are required")
	}
	if _, err := candle.ParseInterval(c.Chart.Interval); err != nil {
		return fmt.Errorf("config: chart.interval: %w", err)
	}
	if c.Chart.VisibleBars <= 0 {
		return fmt.Errorf("config: chart.visible_bars must be positive")
	}
	if _, err := indicator.ParseKind(c.Indicator.Kind); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Indicator.Period <= 0 {
		return fmt.Errorf("config: indicator.period must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if _, _, err := c.Window(time.Now()); err != nil {
		return err
	}
	return nil
}

// HeartbeatInterval returns the session heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Server.HeartbeatSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.Server.HeartbeatSec) * time.Second
}

// Window returns the configured [start, end] fetch range. End defaults
// to now, start to one day before end; both are normalized to whole
// seconds UTC.
func (c *Config) Window(now time.Time) (start, end time.Time, err error) {
	end = now.UTC().Truncate(time.Second)
	if c.Chart.End != "" {
		end, err = candle.ParseTime(c.Chart.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("config: chart.end: %w", err)
		}
	}
	start = end.AddDate(0, 0, -1)
	if c.Chart.Start != "" {
		start, err = candle.ParseTime(c.Chart.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("config: chart.start: %w", err)
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("config: chart.start %s is not before chart.end %s",
			candle.FormatTime(start), candle.FormatTime(end))
	}
	return start, end, nil
}

// Query assembles the backend query for the configured chart.
func (c *Config) Query(now time.Time) (backend.Query, error) {
	iv, err := candle.ParseInterval(c.Chart.Interval)
	if err != nil {
		return backend.Query{}, fmt.Errorf("config: chart.interval: %w", err)
	}
	start, end, err := c.Window(now)
	if err != nil {
		return backend.Query{}, err
	}
	return backend.Query{
		Exchange: c.Chart.Exchange,
		Token:    c.Chart.Token,
		Interval: iv,
		Start:    start,
		End:      end,
	}, nil
}
