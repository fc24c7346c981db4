package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alejandrodnm/kreambot/internal/application/bidder"
)

// writeExports guarda, por sesión, el historial de pujas y el de precios
// como bid_history_<product>_<size>_<ts>.csv y price_history_<product>_<size>_<ts>.csv.
func writeExports(dir string, sessions []*bidder.Session, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create %s: %w", dir, err)
	}

	ts := now.Format("20060102_150405")
	for _, sess := range sessions {
		suffix := fmt.Sprintf("%s_%s_%s.csv", sess.ProductID, sess.Size, ts)

		bids := filepath.Join(dir, "bid_history_"+suffix)
		if err := writeFile(bids, sess.History.Export); err != nil {
			return err
		}
		prices := filepath.Join(dir, "price_history_"+suffix)
		if err := writeFile(prices, sess.History.ExportSnapshots); err != nil {
			return err
		}
		slog.Info("history exported", "session", sess.ID, "bids", bids, "prices", prices)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}
