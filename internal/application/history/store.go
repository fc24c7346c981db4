package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/alejandrodnm/kreambot/internal/ports"
)

// DefaultFlushEvery: snapshots acumulados entre flushes periódicos.
// Un crash entre flushes pierde como mucho DefaultFlushEvery-1 snapshots.
const DefaultFlushEvery = 10

// Store es el histórico append-only de una sesión de puja.
// Guarda las entradas en memoria en orden de observación y las escribe al
// storage cada flushEvery snapshots y en cada Flush.
type Store struct {
	sessionID  string
	storage    ports.HistoryStorage // nil = solo memoria
	flushEvery int
	logger     *slog.Logger

	mu        sync.Mutex
	snapshots []domain.PriceSnapshot
	attempts  []domain.BidAttempt

	// marcas de agua: lo anterior a estos índices ya está persistido
	flushedSnaps    int
	flushedAttempts int
}

// New crea el histórico de una sesión. storage puede ser nil.
func New(sessionID string, storage ports.HistoryStorage, flushEvery int, logger *slog.Logger) *Store {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessionID:  sessionID,
		storage:    storage,
		flushEvery: flushEvery,
		logger:     logger,
	}
}

// AppendSnapshot registra una observación y devuelve la anterior, si la hay.
// Cada flushEvery snapshots persiste lo pendiente; un flush periódico fallido
// se loguea y se reintenta en el siguiente.
func (s *Store) AppendSnapshot(ctx context.Context, snap domain.PriceSnapshot) (prev domain.PriceSnapshot, hasPrev bool) {
	s.mu.Lock()
	if n := len(s.snapshots); n > 0 {
		prev, hasPrev = s.snapshots[n-1], true
	}
	s.snapshots = append(s.snapshots, snap)
	due := len(s.snapshots)%s.flushEvery == 0
	s.mu.Unlock()

	if due {
		if err := s.Flush(ctx); err != nil {
			s.logger.Warn("periodic history flush failed", "session", s.sessionID, "err", err)
		}
	}
	return prev, hasPrev
}

// AppendAttempt registra un intento de puja.
func (s *Store) AppendAttempt(attempt domain.BidAttempt) {
	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()
}

// Flush persiste todo lo que aún no se escribió. Snapshots e intentos tienen
// marcas de agua independientes: si SaveAttempts falla tras un SaveSnapshots
// correcto, los snapshots quedan marcados y el siguiente Flush solo reintenta
// los intentos.
func (s *Store) Flush(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := s.snapshots[s.flushedSnaps:]
	attempts := s.attempts[s.flushedAttempts:]
	if len(snaps) == 0 && len(attempts) == 0 {
		return nil
	}

	if len(snaps) > 0 {
		if err := s.storage.SaveSnapshots(ctx, s.sessionID, snaps); err != nil {
			return fmt.Errorf("history.Flush: snapshots: %w", err)
		}
		s.flushedSnaps += len(snaps)
	}
	if len(attempts) > 0 {
		if err := s.storage.SaveAttempts(ctx, s.sessionID, attempts); err != nil {
			return fmt.Errorf("history.Flush: attempts: %w", err)
		}
		s.flushedAttempts += len(attempts)
	}

	s.logger.Debug("history flushed",
		"session", s.sessionID,
		"snapshots", len(snaps),
		"attempts", len(attempts),
	)
	return nil
}

// Pending devuelve cuántos snapshots e intentos faltan por persistir.
func (s *Store) Pending() (snapshots, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots) - s.flushedSnaps, len(s.attempts) - s.flushedAttempts
}

// Snapshots devuelve una copia de las observaciones, en orden.
func (s *Store) Snapshots() []domain.PriceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PriceSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Attempts devuelve una copia de los intentos de puja, en orden.
func (s *Store) Attempts() []domain.BidAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BidAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Len devuelve cuántos snapshots e intentos hay registrados.
func (s *Store) Len() (snapshots, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.attempts)
}

// Statistics resume los precios buy-now. ok es false si no hubo observaciones.
func (s *Store) Statistics() (domain.PriceStats, bool) {
	return ComputeStats(s.Snapshots())
}
