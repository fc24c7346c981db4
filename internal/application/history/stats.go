package history

import (
	"github.com/montanaflynn/stats"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// ComputeStats calcula count, media, mínimo, máximo y desviación estándar
// muestral de los precios buy-now. ok es false con un slice vacío.
func ComputeStats(snaps []domain.PriceSnapshot) (domain.PriceStats, bool) {
	if len(snaps) == 0 {
		return domain.PriceStats{}, false
	}

	data := make(stats.Float64Data, len(snaps))
	minPrice, maxPrice := snaps[0].BuyNowPrice, snaps[0].BuyNowPrice
	for i, s := range snaps {
		data[i] = float64(s.BuyNowPrice)
		minPrice = min(minPrice, s.BuyNowPrice)
		maxPrice = max(maxPrice, s.BuyNowPrice)
	}

	mean, _ := data.Mean()
	out := domain.PriceStats{
		Count: len(snaps),
		Mean:  mean,
		Min:   minPrice,
		Max:   maxPrice,
	}
	// con menos de 2 puntos la desviación muestral no está definida
	if len(snaps) > 1 {
		out.StdDev, _ = stats.StandardDeviationSample(data)
	}
	return out, true
}
