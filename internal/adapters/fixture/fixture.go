// Package fixture reproduce precios grabados y simula el envío de pujas para
// ejecutar el bidder de punta a punta sin el marketplace (-dry-run).
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// File es el formato en disco de un fixture.
type File struct {
	Series []Series `json:"series"`
}

// Series es la secuencia de precios grabada de un producto/talla.
type Series struct {
	ProductID string  `json:"product_id"`
	Size      string  `json:"size"`
	Prices    []Price `json:"prices"`
}

// Price es una observación grabada.
type Price struct {
	BuyNowPrice int64 `json:"buy_now_price"`
	HighestBid  int64 `json:"highest_bid"`
	LowestAsk   int64 `json:"lowest_ask"`
}

type key struct{ productID, size string }

// Source es un ports.PriceSource que reproduce las series en orden. Agotada
// una serie, se repite su último precio. El timestamp lo pone el llamador.
type Source struct {
	mu     sync.Mutex
	series map[key][]Price
	pos    map[key]int
}

// Load lee un fichero de fixture.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture.Load: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture.Load: parse %s: %w", path, err)
	}
	return NewSource(f.Series...)
}

// NewSource construye un Source a partir de series en memoria.
func NewSource(series ...Series) (*Source, error) {
	s := &Source{series: make(map[key][]Price), pos: make(map[key]int)}
	for _, sr := range series {
		if sr.ProductID == "" || sr.Size == "" {
			return nil, fmt.Errorf("fixture.NewSource: series needs product_id and size")
		}
		for i, p := range sr.Prices {
			if p.BuyNowPrice < 0 || p.HighestBid < 0 || p.LowestAsk < 0 {
				return nil, fmt.Errorf("fixture.NewSource: %s/%s price %d is negative", sr.ProductID, sr.Size, i)
			}
		}
		s.series[key{sr.ProductID, sr.Size}] = sr.Prices
	}
	return s, nil
}

func (s *Source) FetchPrice(ctx context.Context, productID, size string) (domain.PriceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{productID, size}
	prices := s.series[k]
	if len(prices) == 0 {
		return domain.PriceSnapshot{}, domain.NewSourceError(domain.SourceNoData, productID, size, nil)
	}
	i := min(s.pos[k], len(prices)-1)
	s.pos[k]++

	p := prices[i]
	return domain.PriceSnapshot{
		BuyNowPrice: p.BuyNowPrice,
		HighestBid:  p.HighestBid,
		LowestAsk:   p.LowestAsk,
		Size:        size,
	}, nil
}

// PlacedBid es una puja aceptada por Sink.
type PlacedBid struct {
	ProductID string
	Size      string
	Price     int64
	PlacedAt  time.Time
}

// Sink es un ports.BidSink que rechaza las primeras rejectFirst pujas y
// acepta el resto.
type Sink struct {
	rejectFirst int

	mu     sync.Mutex
	seen   int
	placed []PlacedBid
}

func NewSink(rejectFirst int) *Sink {
	return &Sink{rejectFirst: rejectFirst}
}

func (s *Sink) PlaceBid(ctx context.Context, productID, size string, price int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if s.seen <= s.rejectFirst {
		return fmt.Errorf("fixture.PlaceBid: %w: rejection %d of %d", domain.ErrBidRejected, s.seen, s.rejectFirst)
	}
	s.placed = append(s.placed, PlacedBid{ProductID: productID, Size: size, Price: price, PlacedAt: time.Now()})
	return nil
}

// Placed devuelve las pujas aceptadas.
func (s *Sink) Placed() []PlacedBid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlacedBid(nil), s.placed...)
}
