package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alejandrodnm/kreambot/config"
	"github.com/alejandrodnm/kreambot/internal/adapters/fixture"
	"github.com/alejandrodnm/kreambot/internal/adapters/kream"
	"github.com/alejandrodnm/kreambot/internal/adapters/notify"
	"github.com/alejandrodnm/kreambot/internal/adapters/storage"
	"github.com/alejandrodnm/kreambot/internal/application/bidder"
	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/alejandrodnm/kreambot/internal/ports"
)

func main() {
	os.Exit(run())
}

// run devuelve el exit code; main solo llama a os.Exit.
func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	product := flag.String("product", "", "watch a single product id (replaces configured targets)")
	size := flag.String("size", "", "size for -product")
	target := flag.Int64("target", 0, "target price in won (overrides config)")
	maxPrice := flag.Int64("max", 0, "max price in won (overrides config)")
	duration := flag.Duration("duration", 0, "stop each session after this long (e.g. 2h)")
	monitorOnly := flag.Bool("monitor-only", false, "never send bids, only record them as skipped")
	dryRun := flag.Bool("dry-run", false, "replay local fixtures instead of calling the marketplace")
	fixturePath := flag.String("fixture", "testdata/fixtures/prices.json", "price fixture for -dry-run")
	rejectFirst := flag.Int("reject-first", 0, "with -dry-run, reject the first N bids")
	verbose := flag.Bool("verbose", false, "set log level to debug and print every price")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.String("report", "", "print stats and bid attempts of a stored session and exit")
	listSessions := flag.Bool("sessions", false, "list stored sessions and exit")
	export := flag.Bool("export", false, "write bid attempts and price history CSVs on exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	applyFlagOverrides(cfg, *product, *size, *target, *maxPrice, *duration, *monitorOnly)
	closeLog, err := setupLogger(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to open log file", "err", err, "path", cfg.Log.File)
		return 1
	}
	defer closeLog()

	if *report != "" || *listSessions {
		return runQuery(*report, *listSessions, cfg)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}

	slog.Info("kreambot starting",
		"config", *configPath,
		"interval", cfg.CheckInterval(),
		"targets", len(cfg.Bidding.Targets),
		"auto_bid", cfg.AutoBid(),
		"dry_run", *dryRun,
	)

	var (
		source ports.PriceSource
		sink   ports.BidSink
	)
	if *dryRun {
		src, err := fixture.Load(*fixturePath)
		if err != nil {
			slog.Error("failed to load fixture", "err", err, "path", *fixturePath)
			return 1
		}
		source, sink = src, fixture.NewSink(*rejectFirst)
	} else {
		client := kream.NewClient(kream.Config{
			BaseURL:           cfg.API.BaseURL,
			Timeout:           cfg.APITimeout(),
			RequestsPerSecond: cfg.API.RequestsPerSecond,
			Token:             cfg.API.Token,
		})
		source, sink = client, client
	}

	var hist ports.HistoryStorage
	if !*dryRun {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			return 1
		}
		defer store.Close()
		hist = store
	}

	notifier := notify.NewConsole(*verbose)
	loop := bidder.New(source, sink, hist, notifier, bidder.WithFlushEvery(cfg.Storage.FlushEvery))

	sessions, err := newSessions(loop, cfg)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, runErr := loop.RunSessions(ctx, sessions)
	if runErr != nil {
		slog.Error("bidding finished with errors", "err", runErr)
	}

	notifier.PrintSummary(summaries(results))

	if *export {
		if err := writeExports(cfg.Storage.ExportDir, sessions, time.Now()); err != nil {
			slog.Error("export failed", "err", err, "dir", cfg.Storage.ExportDir)
			runErr = err
		}
	}

	if runErr != nil || anyFault(results) {
		return 1
	}
	slog.Info("kreambot stopped cleanly")
	return 0
}

// applyFlagOverrides aplica los flags de línea de comandos sobre la config.
func applyFlagOverrides(cfg *config.Config, product, size string, target, maxPrice int64, duration time.Duration, monitorOnly bool) {
	if product != "" {
		cfg.Bidding.Targets = []config.Target{{ProductID: product, Size: size, TargetPrice: target, MaxPrice: maxPrice}}
	} else {
		if target != 0 {
			cfg.Bidding.TargetPrice = target
		}
		if maxPrice != 0 {
			cfg.Bidding.MaxPrice = maxPrice
		}
	}
	if duration > 0 {
		cfg.Crawler.MaxDuration = int(duration / time.Second)
	}
	if monitorOnly {
		off := false
		cfg.Bidding.AutoBid = &off
	}
}

func newSessions(loop *bidder.Loop, cfg *config.Config) ([]*bidder.Session, error) {
	targets, err := cfg.Sessions()
	if err != nil {
		return nil, err
	}
	sessions := make([]*bidder.Session, 0, len(targets))
	for _, t := range targets {
		sess, err := loop.NewSession(t.ProductID, t.Size, t.Bidding)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func summaries(results []bidder.Result) []notify.Summary {
	out := make([]notify.Summary, 0, len(results))
	for _, r := range results {
		if r.SessionID == "" {
			continue
		}
		out = append(out, notify.Summary{
			Session:  r.Record,
			Stats:    r.Stats,
			HasStats: r.HasStats,
			Attempts: r.Attempts,
		})
	}
	return out
}

func anyFault(results []bidder.Result) bool {
	for _, r := range results {
		if r.Termination == domain.TerminationFault {
			return true
		}
	}
	return false
}

// setupLogger instala el logger por defecto. Con cfg.File, cada registro se
// escribe también en ese fichero (modo append). Devuelve la función que lo cierra.
func setupLogger(cfg config.LogConfig, stdout io.Writer) (func() error, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := stdout
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("setupLogger: create dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("setupLogger: open %s: %w", cfg.File, err)
		}
		out = io.MultiWriter(stdout, f)
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}
