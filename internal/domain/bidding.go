package domain

import (
	"fmt"
	"time"
)

const (
	DefaultPollInterval      = 60 * time.Second
	DefaultBackoffMultiplier = 1.0

	// MaxBackoffMultiplier acota backoff_multiplier en la config.
	MaxBackoffMultiplier = 10.0
	// MaxRetryInterval es el techo absoluto de la espera tras fallos, también
	// cuando el backoff no tiene tope configurado.
	MaxRetryInterval = 24 * time.Hour
)

// Backoff controla cómo crece la espera tras fallos consecutivos de la fuente
// de precios. Un multiplicador de 1 mantiene el intervalo normal.
type Backoff struct {
	Multiplier  float64
	MaxInterval time.Duration // 0 = sin tope (se aplica MaxRetryInterval)
}

// BiddingConfig agrupa umbrales y tiempos de una sesión de puja.
// Se construye con NewBiddingConfig; el zero value no es válido.
type BiddingConfig struct {
	TargetPrice       int64
	MaxPrice          int64
	PollInterval      time.Duration
	MaxDuration       time.Duration // 0 = hasta pujar o cancelar
	AutoBid           bool
	Backoff           Backoff
	MaxSourceFailures int // fallos consecutivos antes de rendirse, 0 = nunca
}

// BiddingOption ajusta campos opcionales de BiddingConfig.
type BiddingOption func(*BiddingConfig)

// WithMaxDuration limita la duración de la sesión.
func WithMaxDuration(d time.Duration) BiddingOption {
	return func(c *BiddingConfig) { c.MaxDuration = d }
}

// WithAutoBid activa o desactiva el envío de pujas. Desactivado = solo monitor.
func WithAutoBid(enabled bool) BiddingOption {
	return func(c *BiddingConfig) { c.AutoBid = enabled }
}

// WithBackoff fija el backoff ante fallos de la fuente de precios.
func WithBackoff(b Backoff) BiddingOption {
	return func(c *BiddingConfig) { c.Backoff = b }
}

// WithMaxSourceFailures limita los fallos consecutivos de la fuente.
func WithMaxSourceFailures(n int) BiddingOption {
	return func(c *BiddingConfig) { c.MaxSourceFailures = n }
}

// NewBiddingConfig valida los umbrales y devuelve una config lista.
// Devuelve *ConfigurationError si target > max, si un precio es negativo
// o si el intervalo no es positivo.
func NewBiddingConfig(targetPrice, maxPrice int64, pollInterval time.Duration, opts ...BiddingOption) (BiddingConfig, error) {
	cfg := BiddingConfig{
		TargetPrice:  targetPrice,
		MaxPrice:     maxPrice,
		PollInterval: pollInterval,
		AutoBid:      true,
		Backoff:      Backoff{Multiplier: DefaultBackoffMultiplier},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return BiddingConfig{}, err
	}
	return cfg, nil
}

func (c BiddingConfig) Validate() error {
	if c.TargetPrice < 0 {
		return &ConfigurationError{Field: "target_price", Reason: "must be >= 0"}
	}
	if c.MaxPrice < c.TargetPrice {
		return &ConfigurationError{
			Field:  "target_price",
			Reason: fmt.Sprintf("(%d) cannot exceed max_price (%d)", c.TargetPrice, c.MaxPrice),
		}
	}
	if c.PollInterval <= 0 {
		return &ConfigurationError{Field: "poll_interval", Reason: "must be > 0"}
	}
	if c.MaxDuration < 0 {
		return &ConfigurationError{Field: "max_duration", Reason: "must be >= 0"}
	}
	if c.Backoff.Multiplier < 1 || c.Backoff.Multiplier > MaxBackoffMultiplier {
		return &ConfigurationError{
			Field:  "backoff_multiplier",
			Reason: fmt.Sprintf("must be between 1 and %g", MaxBackoffMultiplier),
		}
	}
	if c.Backoff.MaxInterval < 0 {
		return &ConfigurationError{Field: "max_backoff", Reason: "must be >= 0"}
	}
	if c.Backoff.MaxInterval > 0 && c.Backoff.MaxInterval < c.PollInterval {
		return &ConfigurationError{Field: "max_backoff", Reason: "cannot be shorter than poll_interval"}
	}
	if c.MaxSourceFailures < 0 {
		return &ConfigurationError{Field: "max_failures", Reason: "must be >= 0"}
	}
	return nil
}

// RetryInterval devuelve la espera tras n fallos consecutivos de la fuente.
// n <= 0 da el intervalo normal. La espera nunca supera el tope configurado
// ni MaxRetryInterval, salvo que el propio intervalo sea mayor.
func (c BiddingConfig) RetryInterval(failures int) time.Duration {
	limit := MaxRetryInterval
	if c.Backoff.MaxInterval > 0 && c.Backoff.MaxInterval < limit {
		limit = c.Backoff.MaxInterval
	}
	if c.PollInterval > limit {
		return c.PollInterval
	}

	wait := c.PollInterval
	for i := 1; i < failures && wait < limit; i++ {
		// en float64 para no desbordar int64 antes de comparar con el tope
		next := float64(wait) * c.Backoff.Multiplier
		if next >= float64(limit) {
			return limit
		}
		wait = time.Duration(next)
	}
	return wait
}

// Decision es el resultado de evaluar un snapshot contra los umbrales.
type Decision int

const (
	DecisionHold         Decision = iota // seguir mirando
	DecisionBid                          // ask en o por debajo del objetivo
	DecisionAboveCeiling                 // ask por encima del máximo
	DecisionNoAsk                        // nadie vende
)

func (d Decision) String() string {
	switch d {
	case DecisionBid:
		return "bid"
	case DecisionAboveCeiling:
		return "above_ceiling"
	case DecisionNoAsk:
		return "no_ask"
	default:
		return "hold"
	}
}

// Evaluate aplica la política de puja al snapshot.
// Sin ask (0) nunca se puja.
func (c BiddingConfig) Evaluate(snap PriceSnapshot) Decision {
	switch {
	case !snap.HasAsk():
		return DecisionNoAsk
	case snap.LowestAsk <= c.TargetPrice:
		return DecisionBid
	case snap.LowestAsk > c.MaxPrice:
		return DecisionAboveCeiling
	default:
		return DecisionHold
	}
}
