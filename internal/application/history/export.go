package history

// export.go: exportación CSV del histórico de una sesión.
//
// Intentos:  timestamp,product_id,size,price,status
// Snapshots: timestamp,size,buy_now_price,highest_bid,lowest_ask
//
// Timestamps en RFC3339 UTC, precios enteros en wones, UTF-8 sin BOM.
// ImportAttempts acepta un BOM inicial (Excel lo añade al guardar).

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

var (
	AttemptHeader  = []string{"timestamp", "product_id", "size", "price", "status"}
	SnapshotHeader = []string{"timestamp", "size", "buy_now_price", "highest_bid", "lowest_ask"}
)

const utf8BOM = "\ufeff"

// Export escribe en CSV todos los intentos de puja de la sesión.
func (s *Store) Export(w io.Writer) error {
	return WriteAttempts(w, s.Attempts())
}

// ExportSnapshots escribe en CSV el histórico de precios de la sesión.
func (s *Store) ExportSnapshots(w io.Writer) error {
	return WriteSnapshots(w, s.Snapshots())
}

// WriteAttempts escribe los intentos en CSV con AttemptHeader.
func WriteAttempts(w io.Writer, attempts []domain.BidAttempt) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AttemptHeader); err != nil {
		return fmt.Errorf("history.WriteAttempts: header: %w", err)
	}
	for _, a := range attempts {
		row := []string{
			a.Timestamp.UTC().Format(time.RFC3339),
			a.ProductID,
			a.Size,
			strconv.FormatInt(a.Price, 10),
			string(a.Outcome),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("history.WriteAttempts: row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("history.WriteAttempts: flush: %w", err)
	}
	return nil
}

// WriteSnapshots escribe los snapshots en CSV con SnapshotHeader.
func WriteSnapshots(w io.Writer, snaps []domain.PriceSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SnapshotHeader); err != nil {
		return fmt.Errorf("history.WriteSnapshots: header: %w", err)
	}
	for _, s := range snaps {
		row := []string{
			s.Timestamp.UTC().Format(time.RFC3339),
			s.Size,
			strconv.FormatInt(s.BuyNowPrice, 10),
			strconv.FormatInt(s.HighestBid, 10),
			strconv.FormatInt(s.LowestAsk, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("history.WriteSnapshots: row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("history.WriteSnapshots: flush: %w", err)
	}
	return nil
}

// ImportAttempts lee un CSV generado por WriteAttempts.
// El id y el motivo de fallo no se exportan, así que vuelven vacíos.
func ImportAttempts(r io.Reader) ([]domain.BidAttempt, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(AttemptHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("history.ImportAttempts: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("history.ImportAttempts: header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	for i, name := range AttemptHeader {
		if header[i] != name {
			return nil, fmt.Errorf("history.ImportAttempts: column %d is %q, want %q", i, header[i], name)
		}
	}

	var attempts []domain.BidAttempt
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("history.ImportAttempts: line %d: %w", line, err)
		}

		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("history.ImportAttempts: line %d: timestamp: %w", line, err)
		}
		price, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("history.ImportAttempts: line %d: invalid price %q", line, rec[3])
		}
		outcome, ok := domain.ParseBidOutcome(rec[4])
		if !ok {
			return nil, fmt.Errorf("history.ImportAttempts: line %d: unknown status %q", line, rec[4])
		}

		attempts = append(attempts, domain.BidAttempt{
			Timestamp: ts,
			ProductID: rec[1],
			Size:      rec[2],
			Price:     price,
			Outcome:   outcome,
		})
	}
	return attempts, nil
}
