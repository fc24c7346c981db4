package storage

// sqlite.go: histórico durable de sesiones de puja.
//
// Estrategia:
//   - `sessions`: una fila por sesión (UPSERT al arrancar y al terminar).
//   - `price_snapshots`: append-only, en el orden de observación.
//   - `bid_attempts`: append-only, clave = id del intento, re-flush idempotente.
//   - Prune automático al arrancar: sesiones terminadas hace más de 90 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    product_id   TEXT    NOT NULL,
    size         TEXT    NOT NULL,
    target_price INTEGER NOT NULL,
    max_price    INTEGER NOT NULL,
    started_at   TEXT    NOT NULL,
    ended_at     TEXT,
    termination  TEXT    NOT NULL DEFAULT '',
    snapshots    INTEGER NOT NULL DEFAULT 0,
    attempts     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS price_snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT    NOT NULL,
    observed_at   TEXT    NOT NULL,
    size          TEXT    NOT NULL,
    buy_now_price INTEGER NOT NULL DEFAULT 0,
    highest_bid   INTEGER NOT NULL DEFAULT 0,
    lowest_ask    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bid_attempts (
    id           TEXT PRIMARY KEY,
    session_id   TEXT    NOT NULL,
    attempted_at TEXT    NOT NULL,
    product_id   TEXT    NOT NULL,
    size         TEXT    NOT NULL,
    price        INTEGER NOT NULL,
    status       TEXT    NOT NULL,
    reason       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON price_snapshots(session_id, id);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON bid_attempts(session_id, attempted_at);
`

const retentionSessions = 90 * 24 * time.Hour

// ErrSessionNotFound se devuelve cuando el id no existe en la tabla sessions.
var ErrSessionNotFound = errors.New("session not found")

// SQLiteStorage implementa ports.HistoryStorage y ports.HistoryReader usando
// SQLite (pure Go, sin CGo). Es seguro compartirlo entre sesiones concurrentes.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia sesiones antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background(), time.Now())
	return s, nil
}

// SaveSession hace upsert del registro de la sesión.
func (s *SQLiteStorage) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	var endedAt *string
	if rec.EndedAt != nil {
		v := formatTime(*rec.EndedAt)
		endedAt = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, product_id, size, target_price, max_price, started_at,
			 ended_at, termination, snapshots, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at    = excluded.ended_at,
			termination = excluded.termination,
			snapshots   = excluded.snapshots,
			attempts    = excluded.attempts
	`,
		rec.ID, rec.ProductID, rec.Size, rec.TargetPrice, rec.MaxPrice,
		formatTime(rec.StartedAt), endedAt, string(rec.Termination),
		rec.Snapshots, rec.Attempts,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSession: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// SaveSnapshots inserta los snapshots en una sola transacción.
func (s *SQLiteStorage) SaveSnapshots(ctx context.Context, sessionID string, snaps []domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshots
			(session_id, observed_at, size, buy_now_price, highest_bid, lowest_ask)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx,
			sessionID, formatTime(snap.Timestamp), snap.Size,
			snap.BuyNowPrice, snap.HighestBid, snap.LowestAsk,
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshots: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshots: commit: %w", err)
	}
	return nil
}

// SaveAttempts inserta los intentos de puja. Un id ya guardado se ignora,
// así que repetir un flush no duplica filas.
func (s *SQLiteStorage) SaveAttempts(ctx context.Context, sessionID string, attempts []domain.BidAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempts: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO bid_attempts
			(id, session_id, attempted_at, product_id, size, price, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempts: prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		if _, err := stmt.ExecContext(ctx,
			a.ID, sessionID, formatTime(a.Timestamp), a.ProductID, a.Size,
			a.Price, string(a.Outcome), a.Reason,
		); err != nil {
			return fmt.Errorf("storage.SaveAttempts: insert %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAttempts: commit: %w", err)
	}
	return nil
}

const sessionColumns = `id, product_id, size, target_price, max_price, started_at,
	ended_at, termination, snapshots, attempts`

// GetSession devuelve una sesión por id, o ErrSessionNotFound.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, fmt.Errorf("storage.GetSession: %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("storage.GetSession: %w", err)
	}
	return rec, nil
}

// ListSessions devuelve las sesiones más recientes primero. limit <= 0 = todas.
func (s *SQLiteStorage) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSessions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListSessions: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSnapshots devuelve los snapshots de la sesión en orden de observación.
func (s *SQLiteStorage) GetSnapshots(ctx context.Context, sessionID string) ([]domain.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT observed_at, size, buy_now_price, highest_bid, lowest_ask
		FROM price_snapshots
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSnapshots: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceSnapshot
	for rows.Next() {
		var snap domain.PriceSnapshot
		var observed string
		if err := rows.Scan(&observed, &snap.Size, &snap.BuyNowPrice, &snap.HighestBid, &snap.LowestAsk); err != nil {
			return nil, fmt.Errorf("storage.GetSnapshots: scan row: %w", err)
		}
		if snap.Timestamp, err = parseTime(observed); err != nil {
			return nil, fmt.Errorf("storage.GetSnapshots: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetAttempts devuelve los intentos de puja de la sesión en orden cronológico.
func (s *SQLiteStorage) GetAttempts(ctx context.Context, sessionID string) ([]domain.BidAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempted_at, product_id, size, price, status, reason
		FROM bid_attempts
		WHERE session_id = ?
		ORDER BY attempted_at, rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetAttempts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BidAttempt
	for rows.Next() {
		var a domain.BidAttempt
		var attempted, status string
		if err := rows.Scan(&a.ID, &attempted, &a.ProductID, &a.Size, &a.Price, &status, &a.Reason); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: scan row: %w", err)
		}
		if a.Timestamp, err = parseTime(attempted); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: %w", err)
		}
		outcome, ok := domain.ParseBidOutcome(status)
		if !ok {
			return nil, fmt.Errorf("storage.GetAttempts: unknown status %q", status)
		}
		a.Outcome = outcome
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var started, termination string
	var ended sql.NullString
	if err := row.Scan(
		&rec.ID, &rec.ProductID, &rec.Size, &rec.TargetPrice, &rec.MaxPrice,
		&started, &ended, &termination, &rec.Snapshots, &rec.Attempts,
	); err != nil {
		return domain.SessionRecord{}, err
	}

	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return domain.SessionRecord{}, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return domain.SessionRecord{}, err
		}
		rec.EndedAt = &t
	}
	rec.Termination = domain.Termination(termination)
	return rec, nil
}

// pruneOld elimina sesiones terminadas antes de la retención y sus filas.
func (s *SQLiteStorage) pruneOld(ctx context.Context, now time.Time) {
	cutoff := formatTime(now.Add(-retentionSessions))
	old := `SELECT id FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`
	s.db.ExecContext(ctx, `DELETE FROM price_snapshots WHERE session_id IN (`+old+`)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM bid_attempts WHERE session_id IN (`+old+`)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff)
}

// Los timestamps se guardan como TEXT en UTC con ancho fijo, así el orden
// lexicográfico coincide con el cronológico.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
