package domain

import "time"

// PriceSnapshot es una observación del mercado para un producto/talla.
// Precios enteros en wones. Cero = "sin precio listado".
type PriceSnapshot struct {
	Timestamp   time.Time
	BuyNowPrice int64 // precio de compra inmediata
	HighestBid  int64 // mejor oferta de compra
	LowestAsk   int64 // mejor oferta de venta
	Size        string
}

// HasAsk indica si algún vendedor ofrece el artículo ahora mismo.
func (s PriceSnapshot) HasAsk() bool {
	return s.LowestAsk > 0
}

// ChangeDirection es el signo de un movimiento del buy-now.
type ChangeDirection string

const (
	PriceDrop ChangeDirection = "drop"
	PriceRise ChangeDirection = "rise"
)

// PriceChange describe el movimiento del buy-now entre dos snapshots seguidos.
type PriceChange struct {
	Direction ChangeDirection
	Magnitude int64
	Previous  int64
	Current   int64
}

// ComparePrices devuelve el cambio de buy-now de prev a cur.
// ok es false si el precio no se movió.
func ComparePrices(prev, cur PriceSnapshot) (PriceChange, bool) {
	switch {
	case cur.BuyNowPrice < prev.BuyNowPrice:
		return PriceChange{
			Direction: PriceDrop,
			Magnitude: prev.BuyNowPrice - cur.BuyNowPrice,
			Previous:  prev.BuyNowPrice,
			Current:   cur.BuyNowPrice,
		}, true
	case cur.BuyNowPrice > prev.BuyNowPrice:
		return PriceChange{
			Direction: PriceRise,
			Magnitude: cur.BuyNowPrice - prev.BuyNowPrice,
			Previous:  prev.BuyNowPrice,
			Current:   cur.BuyNowPrice,
		}, true
	default:
		return PriceChange{}, false
	}
}

// PriceStats agrega los precios buy-now de los snapshots de una sesión.
type PriceStats struct {
	Count  int
	Mean   float64
	Min    int64
	Max    int64
	StdDev float64 // desviación estándar muestral, 0 con menos de 2 snapshots
}
