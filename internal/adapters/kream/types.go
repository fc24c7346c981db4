package kream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// Price acepta tanto números JSON como strings con formato ("189,000원").
type Price int64

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := domain.ParsePrice(s)
		if err != nil {
			return err
		}
		*p = Price(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f >= math.MaxInt64 || f <= math.MinInt64 {
			return fmt.Errorf("price %s: %w", n, err)
		}
		v = int64(f)
	}
	if v < 0 {
		return fmt.Errorf("price %d is negative", v)
	}
	*p = Price(v)
	return nil
}

// priceResponse es la respuesta de GET /api/products/{id}/prices.
type priceResponse struct {
	ProductID   string    `json:"product_id"`
	Size        string    `json:"size"`
	BuyNowPrice Price     `json:"buy_now_price"`
	HighestBid  Price     `json:"highest_bid"`
	LowestAsk   Price     `json:"lowest_ask"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r priceResponse) toSnapshot(size string) domain.PriceSnapshot {
	if r.Size != "" {
		size = r.Size
	}
	return domain.PriceSnapshot{
		Timestamp:   r.Timestamp,
		BuyNowPrice: int64(r.BuyNowPrice),
		HighestBid:  int64(r.HighestBid),
		LowestAsk:   int64(r.LowestAsk),
		Size:        size,
	}
}

// bidRequest es el body de POST /api/products/{id}/bids.
type bidRequest struct {
	Size  string `json:"size"`
	Price int64  `json:"price"`
}

// bidResponse es la respuesta de una puja. Status "accepted" o "rejected".
type bidResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
