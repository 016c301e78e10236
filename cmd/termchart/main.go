package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/config"
	"github.com/chaitanyamurarka/trading-platform-v3.1/loader"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
	"github.com/chaitanyamurarka/trading-platform-v3.1/session"
	"github.com/chaitanyamurarka/trading-platform-v3.1/settings"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath, "config file path")
	exportPath := flag.String("export", "", "download the configured range to a CSV file instead of opening the chart")
	exchange := flag.String("exchange", "", "override chart.exchange")
	token := flag.String("token", "", "override chart.token")
	interval := flag.String("interval", "", "override chart.interval")
	start := flag.String("start", "", "override chart.start (2024-03-01 or 2024-03-01T09:30)")
	end := flag.String("end", "", "override chart.end")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	applyFlags(cfg, *exchange, *token, *interval, *start, *end)
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}

	closeLogs, err := setupLogging(cfg, *exportPath != "")
	if err != nil {
		fatalf("open log file: %v", err)
	}
	defer closeLogs()

	client := backend.New(cfg.Server.BaseURL)

	if *exportPath != "" {
		if err := runExport(client, cfg, *exportPath); err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		return
	}
	if err := runChart(client, cfg); err != nil {
		log.Fatal().Err(err).Msg("chart failed")
	}
}

// fatalf reports a startup problem before logging is configured.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "termchart: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig tolerates a missing file only at the default path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if os.IsNotExist(err) && path == config.DefaultPath {
		return config.Default(), nil
	}
	return cfg, err
}

func applyFlags(cfg *config.Config, exchange, token, interval, start, end string) {
	if exchange != "" {
		cfg.Chart.Exchange = exchange
	}
	if token != "" {
		cfg.Chart.Token = token
	}
	if interval != "" {
		cfg.Chart.Interval = interval
	}
	if start != "" {
		cfg.Chart.Start = start
	}
	if end != "" {
		cfg.Chart.End = end
	}
}

// setupLogging routes logs to stderr in export mode and to the log file
// while the TUI owns the terminal.
func setupLogging(cfg *config.Config, console bool) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}

// runExport downloads the whole configured range, chunk by chunk, and
// writes it as CSV.
func runExport(client *backend.Client, cfg *config.Config, path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := session.New(client, cfg.HeartbeatInterval(), nil)
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Stop()

	q, err := cfg.Query(time.Now())
	if err != nil {
		return err
	}
	bars, err := client.FetchFullRange(ctx, mgr.Token(), q)
	if err != nil {
		return err
	}
	if err := writeCSV(path, bars); err != nil {
		return err
	}
	log.Info().Int("bars", len(bars)).Str("file", path).Msg("export complete")
	return nil
}

// writeCSV emits one row per bar with an RFC3339 timestamp.
func writeCSV(path string, bars []candle.Candle) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			time.Unix(b.Time, 0).UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// runChart wires the session, loader, and live stream into the TUI and
// blocks until the user quits.
func runChart(client *backend.Client, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prefsPath := cfg.SettingsFile
	if prefsPath == "" {
		prefsPath = settings.DefaultPath()
	}
	prefs, err := settings.Load(prefsPath)
	if err != nil {
		log.Warn().Err(err).Msg("settings unreadable, using defaults")
		prefs = &settings.Settings{Theme: settings.ThemeDark}
	}

	q, err := cfg.Query(time.Now())
	if err != nil {
		return err
	}

	events := make(chan tea.Msg, 64)
	mgr := session.New(client, cfg.HeartbeatInterval(), func(err error) {
		select {
		case events <- sessionLostMsg{err}:
		default:
		}
	})
	defer mgr.Stop()

	ld := loader.New(client, mgr.Token, q)

	p := tea.NewProgram(
		newModel(ctx, cfg, prefs, prefsPath, mgr, ld, q, events),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
