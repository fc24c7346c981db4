package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/kreambot/config"
	"github.com/alejandrodnm/kreambot/internal/adapters/fixture"
	"github.com/alejandrodnm/kreambot/internal/adapters/storage"
	"github.com/alejandrodnm/kreambot/internal/application/bidder"
	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlagOverrides_SingleProduct(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Bidding.Targets = []config.Target{{ProductID: "a", Size: "1"}, {ProductID: "b", Size: "2"}}

	applyFlagOverrides(cfg, "12345", "270", 90000, 120000, 90*time.Minute, true)

	require.Len(t, cfg.Bidding.Targets, 1)
	assert.Equal(t, config.Target{ProductID: "12345", Size: "270", TargetPrice: 90000, MaxPrice: 120000}, cfg.Bidding.Targets[0])
	assert.Equal(t, 90*time.Minute, cfg.MaxDuration())
	assert.False(t, cfg.AutoBid())
}

func TestApplyFlagOverrides_GlobalPrices(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	applyFlagOverrides(cfg, "", "", 80000, 0, 0, false)

	assert.Equal(t, int64(80000), cfg.Bidding.TargetPrice)
	assert.Equal(t, int64(config.DefaultMaxPrice), cfg.Bidding.MaxPrice)
	assert.True(t, cfg.AutoBid())
}

// runDry drives one fixture-backed session end to end against SQLite.
func runDry(t *testing.T, store *storage.SQLiteStorage) (*bidder.Session, bidder.Result) {
	t.Helper()
	src, err := fixture.Load("../../testdata/fixtures/prices.json")
	require.NoError(t, err)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.CheckInterval = 1
	applyFlagOverrides(cfg, "12345", "270", 100000, 150000, 0, false)

	loop := bidder.New(src, fixture.NewSink(1), store, nil, bidder.WithClock(instantClock{}))
	sessions, err := newSessions(loop, cfg)
	require.NoError(t, err)

	results, err := loop.RunSessions(context.Background(), sessions)
	require.NoError(t, err)
	return sessions[0], results[0]
}

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestDryRun_ReportAndExport(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	sess, res := runDry(t, store)

	// 99,000원 is rejected once, then accepted on the next poll
	assert.Equal(t, domain.TerminationSucceeded, res.Termination)
	require.Len(t, res.Attempts, 2)
	assert.False(t, anyFault([]bidder.Result{res}))
	assert.Len(t, summaries([]bidder.Result{res, {}}), 1)

	summary, err := loadSummary(context.Background(), store, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationSucceeded, summary.Session.Termination)
	assert.Equal(t, res.Snapshots, summary.Session.Snapshots)
	assert.True(t, summary.HasStats)
	assert.Equal(t, res.Stats.Count, summary.Stats.Count)
	assert.Len(t, summary.Attempts, 2)

	dir := filepath.Join(t.TempDir(), "data")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, writeExports(dir, []*bidder.Session{sess}, now))

	bids, err := os.ReadFile(filepath.Join(dir, "bid_history_12345_270_20260301_120000.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(bids), "timestamp,product_id,size,price,status")
	assert.Equal(t, 3, strings.Count(string(bids), "\n"))

	prices, err := os.ReadFile(filepath.Join(dir, "price_history_12345_270_20260301_120000.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(prices), "buy_now_price")
}

func TestSetupLogger_AlsoWritesFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "kreambot.log")
	var stdout bytes.Buffer
	closeLog, err := setupLogger(config.LogConfig{Level: "info", Format: "text", File: path}, &stdout)
	require.NoError(t, err)

	slog.Info("price above ceiling", "product", "12345")
	slog.Debug("hidden at info")
	require.NoError(t, closeLog())

	logged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "price above ceiling")
	assert.NotContains(t, string(logged), "hidden at info")
	assert.Equal(t, stdout.String(), string(logged))
}

func TestSetupLogger_StdoutOnly(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var stdout bytes.Buffer
	closeLog, err := setupLogger(config.LogConfig{Level: "debug", Format: "json"}, &stdout)
	require.NoError(t, err)
	defer closeLog()

	slog.Debug("no valid ask")
	assert.Contains(t, stdout.String(), `"msg":"no valid ask"`)
}

func TestRun_FaultReturnsExitCodeAfterPersisting(t *testing.T) {
	prevLog := slog.Default()
	prevFlags, prevArgs := flag.CommandLine, os.Args
	defer func() {
		slog.SetDefault(prevLog)
		flag.CommandLine, os.Args = prevFlags, prevArgs
	}()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	dsn := filepath.Join(dir, "kreambot.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
bidding:
  targets: [{product_id: "99999", size: "270"}]
crawler: {check_interval: 1, max_failures: 1}
api: {base_url: "`+srv.URL+`", requests_per_second: 100}
storage: {dsn: "`+dsn+`"}
`), 0o644))

	flag.CommandLine = flag.NewFlagSet("bidder", flag.ContinueOnError)
	os.Args = []string{"bidder", "-config", cfgPath}

	assert.Equal(t, 1, run())

	store, err := storage.NewSQLiteStorage(dsn)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.TerminationFault, records[0].Termination)
}

func TestAnyFault(t *testing.T) {
	assert.True(t, anyFault([]bidder.Result{
		{Termination: domain.TerminationSucceeded},
		{Termination: domain.TerminationFault},
	}))
	assert.False(t, anyFault(nil))
}
