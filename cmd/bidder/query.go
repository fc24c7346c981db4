package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/kreambot/config"
	"github.com/alejandrodnm/kreambot/internal/adapters/notify"
	"github.com/alejandrodnm/kreambot/internal/adapters/storage"
	"github.com/alejandrodnm/kreambot/internal/application/history"
	"github.com/alejandrodnm/kreambot/internal/ports"
)

const sessionListLimit = 20

// runQuery atiende -report y -sessions contra la base de datos. Devuelve el
// exit code.
func runQuery(sessionID string, list bool, cfg *config.Config) int {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	notifier := notify.NewConsole(false)

	if list {
		records, err := store.ListSessions(ctx, sessionListLimit)
		if err != nil {
			slog.Error("failed to list sessions", "err", err)
			return 1
		}
		notifier.PrintSessions(records)
	}

	if sessionID != "" {
		summary, err := loadSummary(ctx, store, sessionID)
		if errors.Is(err, storage.ErrSessionNotFound) {
			slog.Error("unknown session", "session", sessionID)
			return 1
		}
		if err != nil {
			slog.Error("failed to load session", "err", err)
			return 1
		}
		notifier.PrintSummary([]notify.Summary{summary})
	}
	return 0
}

func loadSummary(ctx context.Context, r ports.HistoryReader, id string) (notify.Summary, error) {
	rec, err := r.GetSession(ctx, id)
	if err != nil {
		return notify.Summary{}, err
	}
	snaps, err := r.GetSnapshots(ctx, id)
	if err != nil {
		return notify.Summary{}, fmt.Errorf("load snapshots: %w", err)
	}
	attempts, err := r.GetAttempts(ctx, id)
	if err != nil {
		return notify.Summary{}, fmt.Errorf("load attempts: %w", err)
	}

	stats, ok := history.ComputeStats(snaps)
	return notify.Summary{Session: rec, Stats: stats, HasStats: ok, Attempts: attempts}, nil
}
