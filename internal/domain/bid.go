package domain

import "time"

// BidOutcome es el resultado de un intento de puja.
type BidOutcome string

const (
	BidSucceeded BidOutcome = "succeeded"
	BidFailed    BidOutcome = "failed"
	BidSkipped   BidOutcome = "skipped" // modo monitor: el precio calificaba pero no se envió puja
)

// ParseBidOutcome convierte la representación persistida/exportada en un BidOutcome.
func ParseBidOutcome(s string) (BidOutcome, bool) {
	switch BidOutcome(s) {
	case BidSucceeded, BidFailed, BidSkipped:
		return BidOutcome(s), true
	}
	return "", false
}

// BidAttempt registra una decisión de pujar, sea cual sea el resultado.
type BidAttempt struct {
	ID        string // UUID
	Timestamp time.Time
	ProductID string
	Size      string
	Price     int64
	Outcome   BidOutcome
	Reason    string // causa del fallo, vacío si salió bien
}
