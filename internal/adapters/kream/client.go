package kream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBase       = "https://kream.co.kr"
	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 1.0

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config configura el Client. Los campos vacíos toman valores por defecto.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Token             string
	RetryWait         time.Duration
	Logger            *slog.Logger
}

// Client es el HTTP client del marketplace con rate limiting y retries.
// Un único Client se comparte entre todas las sesiones: el limiter es global.
type Client struct {
	http      *http.Client
	base      string
	token     string
	limiter   *rate.Limiter
	retryWait time.Duration
	logger    *slog.Logger
}

// NewClient crea un Client. Si BaseURL está vacío usa el de producción.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRatePerSec
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		base:      cfg.BaseURL,
		token:     cfg.Token,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retryWait: cfg.RetryWait,
		logger:    cfg.Logger,
	}
}

// statusError es una respuesta HTTP que no se reintenta (o agotó los reintentos).
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("http status %d", e.code)
	}
	return fmt.Sprintf("http status %d: %s", e.code, e.body)
}

// get hace un GET con rate limiting y retries; devuelve el body crudo.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.doWithRetry(ctx, true, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.http.Do(req)
	})
}

// post hace un POST JSON. Un POST solo se reintenta ante 429: un 5xx o un
// error de red pueden haber colocado la puja igualmente.
func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, false, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		return c.http.Do(req)
	})
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doWithRetry ejecuta fn con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, idempotent bool, fn func() (*http.Response, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if !idempotent || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.logger.Warn("rate limited by API", "attempt", attempt+1)
			lastErr = &statusError{code: resp.StatusCode}
			continue
		case resp.StatusCode >= 500:
			lastErr = &statusError{code: resp.StatusCode, body: string(body)}
			if !idempotent {
				return nil, lastErr
			}
			continue
		case resp.StatusCode >= 400:
			return nil, &statusError{code: resp.StatusCode, body: string(body)}
		}

		if readErr != nil {
			if !idempotent {
				return nil, fmt.Errorf("read body: %w", readErr)
			}
			lastErr = fmt.Errorf("read body: %w", readErr)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr)
}

// sleep espera con backoff exponencial. Devuelve el error del contexto si se cancela.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}
