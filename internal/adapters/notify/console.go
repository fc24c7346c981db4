package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier. Varias sesiones pueden escribir a la vez.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	seen    map[string]bool
}

// NewConsole crea un notificador que escribe a stdout. Sin verbose solo
// imprime la primera observación y los cambios de precio.
func NewConsole(verbose bool) *Console {
	return NewConsoleWriter(os.Stdout, verbose)
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose, seen: make(map[string]bool)}
}

// NotifyPrice imprime una línea por snapshot.
func (c *Console) NotifyPrice(_ context.Context, productID string, snap domain.PriceSnapshot, change *domain.PriceChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := productID + "/" + snap.Size
	first := !c.seen[target]
	c.seen[target] = true
	if !c.verbose && !first && change == nil {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s buy-now %s | bid %s | ask %s",
		clock(snap.Timestamp), target,
		priceLabel(snap.BuyNowPrice), priceLabel(snap.HighestBid), priceLabel(snap.LowestAsk))
	if change != nil {
		switch change.Direction {
		case domain.PriceDrop:
			fmt.Fprintf(&sb, " | ▼ %s", domain.FormatPrice(change.Magnitude))
		case domain.PriceRise:
			fmt.Fprintf(&sb, " | ▲ %s", domain.FormatPrice(change.Magnitude))
		}
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// NotifyBid imprime el intento de puja en cuanto se registra.
func (c *Console) NotifyBid(_ context.Context, a domain.BidAttempt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("[%s] %s/%s BID %s %s", clock(a.Timestamp), a.ProductID, a.Size,
		strings.ToUpper(string(a.Outcome)), domain.FormatPrice(a.Price))
	if a.Reason != "" && a.Outcome != domain.BidSucceeded {
		line += " (" + a.Reason + ")"
	}
	fmt.Fprintln(c.out, line)
	return nil
}

// Summary bundles everything PrintSummary needs for one session.
type Summary struct {
	Session  domain.SessionRecord
	Stats    domain.PriceStats
	HasStats bool
	Attempts []domain.BidAttempt
}

// PrintSummary imprime el resultado de cada sesión: motivo de terminación,
// estadísticas de precio y la tabla de intentos de puja.
func (c *Console) PrintSummary(summaries []Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(summaries) == 0 {
		fmt.Fprintln(c.out, "\n  No sessions to report.")
		return
	}

	for _, s := range summaries {
		rec := s.Session
		fmt.Fprintf(c.out, "\n=== SESSION %s ===\n", rec.ID)
		fmt.Fprintf(c.out, "  Product:     %s (size %s)\n", rec.ProductID, rec.Size)
		fmt.Fprintf(c.out, "  Target/Max:  %s / %s\n", domain.FormatPrice(rec.TargetPrice), domain.FormatPrice(rec.MaxPrice))
		fmt.Fprintf(c.out, "  Started:     %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if rec.EndedAt != nil {
			fmt.Fprintf(c.out, "  Duration:    %s\n", rec.EndedAt.Sub(rec.StartedAt).Round(time.Second))
		}
		fmt.Fprintf(c.out, "  Termination: %s\n", terminationLabel(rec.Termination))
		fmt.Fprintf(c.out, "  Snapshots:   %d\n", rec.Snapshots)

		if s.HasStats {
			st := s.Stats
			fmt.Fprintf(c.out, "\n  --- BUY-NOW PRICE STATS ---\n")
			fmt.Fprintf(c.out, "  Count:   %d\n", st.Count)
			fmt.Fprintf(c.out, "  Mean:    %s\n", domain.FormatPrice(int64(st.Mean+0.5)))
			fmt.Fprintf(c.out, "  Min:     %s\n", domain.FormatPrice(st.Min))
			fmt.Fprintf(c.out, "  Max:     %s\n", domain.FormatPrice(st.Max))
			fmt.Fprintf(c.out, "  Std dev: %s\n", domain.FormatPrice(int64(st.StdDev+0.5)))
		} else {
			fmt.Fprintf(c.out, "\n  No price data collected.\n")
		}

		if len(s.Attempts) == 0 {
			fmt.Fprintf(c.out, "\n  No bid attempts.\n")
			continue
		}

		fmt.Fprintln(c.out)
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Time", "Price", "Status", "Reason")
		for i, a := range s.Attempts {
			table.Append(
				fmt.Sprintf("%d", i+1),
				a.Timestamp.Local().Format("15:04:05"),
				domain.FormatPrice(a.Price),
				string(a.Outcome),
				truncate(a.Reason, 40),
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out)
}

// PrintSessions imprime la lista de sesiones guardadas.
func (c *Console) PrintSessions(records []domain.SessionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(records) == 0 {
		fmt.Fprintln(c.out, "\n  No stored sessions.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Product", "Size", "Target", "Max", "Started", "Result", "Snaps", "Bids")
	for _, r := range records {
		table.Append(
			r.ID,
			r.ProductID,
			r.Size,
			domain.FormatPrice(r.TargetPrice),
			domain.FormatPrice(r.MaxPrice),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			terminationLabel(r.Termination),
			fmt.Sprintf("%d", r.Snapshots),
			fmt.Sprintf("%d", r.Attempts),
		)
	}
	table.Render()
}

// --- helpers ---

func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04:05")
}

func priceLabel(p int64) string {
	if p == 0 {
		return "-"
	}
	return domain.FormatPrice(p)
}

func terminationLabel(t domain.Termination) string {
	if t == domain.TerminationNone {
		return "running"
	}
	return string(t)
}

// truncate corta por ancho de columna, sin partir runas (los motivos de
// rechazo suelen venir en coreano).
func truncate(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "...")
}
