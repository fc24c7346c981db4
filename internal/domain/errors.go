package domain

import (
	"errors"
	"fmt"
)

// ErrBidRejected lo devuelve un BidSink cuando el marketplace rechaza la puja.
var ErrBidRejected = errors.New("bid rejected")

// SourceErrorKind clasifica por qué falló una consulta de precio.
type SourceErrorKind string

const (
	SourceTimeout     SourceErrorKind = "timeout"
	SourceUnreachable SourceErrorKind = "unreachable"
	SourceMalformed   SourceErrorKind = "malformed"
	SourceNoData      SourceErrorKind = "no_data"
)

// TransientSourceError es un fallo de PriceSource. El loop de puja siempre
// reintenta; por sí solo nunca termina una sesión.
type TransientSourceError struct {
	Kind      SourceErrorKind
	ProductID string
	Size      string
	Err       error
}

func (e *TransientSourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("price source %s (product %s, size %s)", e.Kind, e.ProductID, e.Size)
	}
	return fmt.Sprintf("price source %s (product %s, size %s): %v", e.Kind, e.ProductID, e.Size, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// NewSourceError construye un TransientSourceError.
func NewSourceError(kind SourceErrorKind, productID, size string, err error) *TransientSourceError {
	return &TransientSourceError{Kind: kind, ProductID: productID, Size: size, Err: err}
}

// IsTransient indica si err es (o envuelve) un TransientSourceError.
func IsTransient(err error) bool {
	var te *TransientSourceError
	return errors.As(err, &te)
}

// ConfigurationError es fatal: una sesión con config inválida nunca arranca.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError indica si err es (o envuelve) un ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
