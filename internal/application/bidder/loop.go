package bidder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/kreambot/internal/application/history"
	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/alejandrodnm/kreambot/internal/ports"
)

// finalFlushTimeout limita el flush al terminar la sesión, cuando el
// contexto de ejecución puede estar ya cancelado.
const finalFlushTimeout = 10 * time.Second

// Loop lleva cada sesión por poll → evaluate → bid → wait hasta una condición
// terminal. No guarda estado por sesión y puede ejecutar varias a la vez;
// cada sesión vive en una sola goroutine.
type Loop struct {
	source     ports.PriceSource
	sink       ports.BidSink
	storage    ports.HistoryStorage
	notifier   ports.Notifier
	clock      Clock
	logger     *slog.Logger
	flushEvery int
	newID      func() string
}

// Option configura un Loop.
type Option func(*Loop)

// WithClock sustituye el reloj real (tests).
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger fija el logger. Por defecto slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithFlushEvery fija cuántos snapshots se acumulan entre flushes del histórico.
func WithFlushEvery(n int) Option {
	return func(l *Loop) { l.flushEvery = n }
}

// New crea un Loop. storage y notifier pueden ser nil.
func New(source ports.PriceSource, sink ports.BidSink, storage ports.HistoryStorage, notifier ports.Notifier, opts ...Option) *Loop {
	l := &Loop{
		source:     source,
		sink:       sink,
		storage:    storage,
		notifier:   notifier,
		clock:      systemClock{},
		logger:     slog.Default(),
		flushEvery: history.DefaultFlushEvery,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// NewSession valida el objetivo y la config y devuelve una sesión idle.
// Los errores son *domain.ConfigurationError; no se consulta nada antes de Run.
func (l *Loop) NewSession(productID, size string, cfg domain.BiddingConfig) (*Session, error) {
	if productID == "" {
		return nil, &domain.ConfigurationError{Field: "product_id", Reason: "is required"}
	}
	if size == "" {
		return nil, &domain.ConfigurationError{Field: "size", Reason: "is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := l.newID()
	return &Session{
		ID:        id,
		ProductID: productID,
		Size:      size,
		Config:    cfg,
		History:   history.New(id, l.storage, l.flushEvery, l.logger),
	}, nil
}

// Run ejecuta la sesión hasta que la puja sale, se agota la duración máxima,
// se alcanza el tope de fallos de la fuente o se cancela ctx. Cancelar es una
// terminación normal, no un error. El error devuelto solo indica un flush
// final fallido; el Result es válido en cualquier caso.
func (l *Loop) Run(ctx context.Context, sess *Session) (Result, error) {
	if !sess.start(l.clock.Now()) {
		return Result{}, fmt.Errorf("bidder.Run: session %s already started", sess.ID)
	}

	log := l.logger.With("session", sess.ID, "product", sess.ProductID, "size", sess.Size)
	log.Info("bidding session started",
		"target_price", domain.FormatPrice(sess.Config.TargetPrice),
		"max_price", domain.FormatPrice(sess.Config.MaxPrice),
		"interval", sess.Config.PollInterval,
		"max_duration", sess.Config.MaxDuration,
		"auto_bid", sess.Config.AutoBid,
	)
	l.saveSession(ctx, log, sess)

	var (
		snap     domain.PriceSnapshot
		failures int
		wait     = sess.Config.PollInterval
	)

	state := StatePolling
	for state != StateTerminated {
		sess.setState(state)

		switch state {
		case StatePolling:
			if ctx.Err() != nil {
				sess.terminate(domain.TerminationCancelled, l.clock.Now())
				state = StateTerminated
				continue
			}

			s, err := l.source.FetchPrice(ctx, sess.ProductID, sess.Size)
			if err != nil {
				if ctx.Err() != nil {
					// fetch interrumpido: la cancelación la reporta el paso de espera
					state = StateWaiting
					continue
				}
				failures++
				l.logSourceFailure(log, sess, err, failures)
				if limit := sess.Config.MaxSourceFailures; limit > 0 && failures >= limit {
					log.Error("price source failure limit reached", "failures", failures)
					sess.terminate(domain.TerminationFault, l.clock.Now())
					state = StateTerminated
					continue
				}
				wait = sess.Config.RetryInterval(failures)
				state = StateWaiting
				continue
			}

			failures = 0
			wait = sess.Config.PollInterval
			snap = l.normalize(s, sess)
			l.record(ctx, log, sess, snap)
			state = StateEvaluating

		case StateEvaluating:
			state = l.evaluate(log, sess, snap)

		case StateBidding:
			state = l.bid(ctx, log, sess, snap.LowestAsk)

		case StateWaiting:
			state = l.wait(ctx, log, sess, wait)
		}
	}

	return l.finish(ctx, log, sess)
}

// RunSessions ejecuta varias sesiones en paralelo y devuelve sus resultados en
// el mismo orden. Solo comparten storage y adapters; si una falla, las demás
// siguen.
func (l *Loop) RunSessions(ctx context.Context, sessions []*Session) ([]Result, error) {
	results := make([]Result, len(sessions))
	var g errgroup.Group
	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			res, err := l.Run(ctx, sess)
			results[i] = res
			if err != nil {
				return fmt.Errorf("session %s: %w", sess.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// normalize rellena campos que la fuente puede dejar vacíos.
func (l *Loop) normalize(s domain.PriceSnapshot, sess *Session) domain.PriceSnapshot {
	if s.Timestamp.IsZero() {
		s.Timestamp = l.clock.Now()
	}
	if s.Size == "" {
		s.Size = sess.Size
	}
	return s
}

// record añade el snapshot al histórico y notifica el movimiento del buy-now.
func (l *Loop) record(ctx context.Context, log *slog.Logger, sess *Session, snap domain.PriceSnapshot) {
	prev, hasPrev := sess.History.AppendSnapshot(ctx, snap)

	log.Debug("price observed",
		"buy_now", snap.BuyNowPrice,
		"highest_bid", snap.HighestBid,
		"lowest_ask", snap.LowestAsk,
	)

	var change *domain.PriceChange
	if hasPrev {
		if c, ok := domain.ComparePrices(prev, snap); ok {
			change = &c
			switch c.Direction {
			case domain.PriceDrop:
				log.Info("price drop", "amount", domain.FormatPrice(c.Magnitude), "buy_now", domain.FormatPrice(c.Current))
			case domain.PriceRise:
				log.Info("price rise", "amount", domain.FormatPrice(c.Magnitude), "buy_now", domain.FormatPrice(c.Current))
			}
		}
	}

	if l.notifier != nil {
		if err := l.notifier.NotifyPrice(ctx, sess.ProductID, snap, change); err != nil {
			log.Warn("notifier error", "err", err)
		}
	}
}

// evaluate aplica la política de puja al último snapshot.
func (l *Loop) evaluate(log *slog.Logger, sess *Session, snap domain.PriceSnapshot) State {
	switch sess.Config.Evaluate(snap) {
	case domain.DecisionBid:
		log.Info("target price reached",
			"lowest_ask", domain.FormatPrice(snap.LowestAsk),
			"target_price", domain.FormatPrice(sess.Config.TargetPrice),
		)
		return StateBidding
	case domain.DecisionAboveCeiling:
		log.Info("price above ceiling",
			"lowest_ask", domain.FormatPrice(snap.LowestAsk),
			"max_price", domain.FormatPrice(sess.Config.MaxPrice),
		)
	case domain.DecisionNoAsk:
		log.Debug("no valid ask")
	}
	return StateWaiting
}

// bid envía (o, en modo monitor, omite) una puja a price y la registra.
func (l *Loop) bid(ctx context.Context, log *slog.Logger, sess *Session, price int64) State {
	attempt := domain.BidAttempt{
		ID:        l.newID(),
		Timestamp: l.clock.Now(),
		ProductID: sess.ProductID,
		Size:      sess.Size,
		Price:     price,
	}

	if !sess.Config.AutoBid {
		attempt.Outcome = domain.BidSkipped
		attempt.Reason = "auto bid disabled"
		l.recordAttempt(ctx, log, sess, attempt)
		log.Info("bid skipped (monitor only)", "price", domain.FormatPrice(price))
		return StateWaiting
	}

	err := l.sink.PlaceBid(ctx, sess.ProductID, sess.Size, price)
	if err == nil {
		attempt.Outcome = domain.BidSucceeded
		l.recordAttempt(ctx, log, sess, attempt)
		sess.setWinning(attempt)
		log.Info("bid placed", "price", domain.FormatPrice(price), "attempt", attempt.ID)
		sess.terminate(domain.TerminationSucceeded, l.clock.Now())
		return StateTerminated
	}

	attempt.Outcome = domain.BidFailed
	attempt.Reason = err.Error()
	l.recordAttempt(ctx, log, sess, attempt)
	log.Warn("bid failed",
		"price", domain.FormatPrice(price),
		"rejected", errors.Is(err, domain.ErrBidRejected),
		"err", err,
	)
	return StateWaiting
}

func (l *Loop) recordAttempt(ctx context.Context, log *slog.Logger, sess *Session, attempt domain.BidAttempt) {
	sess.History.AppendAttempt(attempt)
	if l.notifier != nil {
		if err := l.notifier.NotifyBid(ctx, attempt); err != nil {
			log.Warn("notifier error", "err", err)
		}
	}
}

// wait es el único punto de suspensión del loop.
func (l *Loop) wait(ctx context.Context, log *slog.Logger, sess *Session, d time.Duration) State {
	if ctx.Err() != nil {
		sess.terminate(domain.TerminationCancelled, l.clock.Now())
		return StateTerminated
	}
	if sess.expired(l.clock.Now()) {
		log.Info("max duration reached", "max_duration", sess.Config.MaxDuration)
		sess.terminate(domain.TerminationExhausted, l.clock.Now())
		return StateTerminated
	}

	log.Debug("waiting for next poll", "in", d)
	select {
	case <-ctx.Done():
		sess.terminate(domain.TerminationCancelled, l.clock.Now())
		return StateTerminated
	case <-l.clock.After(d):
		return StatePolling
	}
}

// finish hace flush del histórico y archiva la sesión, con un contexto
// desligado de la cancelación para que una sesión parada también se guarde.
func (l *Loop) finish(ctx context.Context, log *slog.Logger, sess *Session) (Result, error) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()

	flushErr := sess.History.Flush(flushCtx)
	if flushErr != nil {
		log.Error("final history flush failed", "err", flushErr)
		flushErr = fmt.Errorf("bidder.Run: final flush: %w", flushErr)
	}
	l.saveSession(flushCtx, log, sess)

	res := sess.result()
	log.Info("bidding session terminated",
		"reason", res.Termination,
		"snapshots", res.Snapshots,
		"attempts", len(res.Attempts),
		"duration", res.Duration.Round(time.Second),
	)
	return res, flushErr
}

func (l *Loop) saveSession(ctx context.Context, log *slog.Logger, sess *Session) {
	if l.storage == nil {
		return
	}
	if err := l.storage.SaveSession(ctx, sess.Record()); err != nil {
		log.Warn("storage error", "err", err)
	}
}

// logSourceFailure reporta un fetch fallido. Un error sin tipo cuenta como
// fuente inaccesible; ningún fallo de la fuente es fatal.
func (l *Loop) logSourceFailure(log *slog.Logger, sess *Session, err error, failures int) {
	var te *domain.TransientSourceError
	if !errors.As(err, &te) {
		te = domain.NewSourceError(domain.SourceUnreachable, sess.ProductID, sess.Size, err)
	}
	log.Warn("price fetch failed",
		"kind", te.Kind,
		"consecutive", failures,
		"retry_in", sess.Config.RetryInterval(failures),
		"err", err,
	)
}
