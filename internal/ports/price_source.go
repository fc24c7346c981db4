package ports

import (
	"context"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// PriceSource consulta los precios actuales de un producto en una talla.
type PriceSource interface {
	// FetchPrice devuelve un snapshot nuevo. Los fallos son *domain.TransientSourceError,
	// con SourceTimeout distinto de SourceNoData.
	FetchPrice(ctx context.Context, productID, size string) (domain.PriceSnapshot, error)
}
