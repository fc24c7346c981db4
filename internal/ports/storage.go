package ports

import (
	"context"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// HistoryStorage persiste el histórico de las sesiones.
// Las implementaciones deben admitir uso concurrente desde varias sesiones.
type HistoryStorage interface {
	// SaveSession hace upsert del registro de sesión (al arrancar y al terminar).
	SaveSession(ctx context.Context, rec domain.SessionRecord) error

	// SaveSnapshots añade observaciones de una sesión.
	SaveSnapshots(ctx context.Context, sessionID string, snaps []domain.PriceSnapshot) error

	// SaveAttempts añade intentos de puja de una sesión.
	SaveAttempts(ctx context.Context, sessionID string, attempts []domain.BidAttempt) error
}

// HistoryReader lee sesiones archivadas para informes y exportaciones.
type HistoryReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	GetSnapshots(ctx context.Context, sessionID string) ([]domain.PriceSnapshot, error)
	GetAttempts(ctx context.Context, sessionID string) ([]domain.BidAttempt, error)
}
