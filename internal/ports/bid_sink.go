package ports

import "context"

// BidSink envía pujas al marketplace.
type BidSink interface {
	// PlaceBid envía una puja. nil = aceptada; cualquier error es un intento
	// fallido (domain.ErrBidRejected si el marketplace la rechazó).
	// El marketplace no deduplica reintentos.
	PlaceBid(ctx context.Context, productID, size string, price int64) error
}
