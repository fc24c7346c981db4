package ports

import (
	"context"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// Notifier muestra al operador el progreso de la sesión.
type Notifier interface {
	// NotifyPrice muestra un snapshot nuevo. change es nil si el buy-now no se
	// movió o es la primera observación.
	NotifyPrice(ctx context.Context, productID string, snap domain.PriceSnapshot, change *domain.PriceChange) error

	// NotifyBid muestra un intento de puja en cuanto se registra.
	NotifyBid(ctx context.Context, attempt domain.BidAttempt) error
}
