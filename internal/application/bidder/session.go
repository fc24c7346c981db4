package bidder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/kreambot/internal/application/history"
	"github.com/alejandrodnm/kreambot/internal/domain"
)

// State es un paso de la máquina de estados de la puja.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateEvaluating
	StateBidding
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateEvaluating:
		return "evaluating"
	case StateBidding:
		return "bidding"
	case StateWaiting:
		return "waiting_next_poll"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session es un producto/talla vigilado. Pertenece al Loop que la ejecuta;
// otras goroutines solo la leen a través de los accessors.
type Session struct {
	ID        string
	ProductID string
	Size      string
	Config    domain.BiddingConfig
	History   *history.Store

	state atomic.Int32

	mu          sync.Mutex
	startedAt   time.Time
	endedAt     time.Time
	termination domain.Termination
	winning     *domain.BidAttempt
}

// State devuelve el paso actual de la sesión.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Record devuelve la vista archivada de la sesión.
func (s *Session) Record() domain.SessionRecord {
	snaps, attempts := s.History.Len()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := domain.SessionRecord{
		ID:          s.ID,
		ProductID:   s.ProductID,
		Size:        s.Size,
		TargetPrice: s.Config.TargetPrice,
		MaxPrice:    s.Config.MaxPrice,
		StartedAt:   s.startedAt,
		Termination: s.termination,
		Snapshots:   snaps,
		Attempts:    attempts,
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		rec.EndedAt = &ended
	}
	return rec
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) start(now time.Time) bool {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		return false
	}
	s.mu.Lock()
	s.startedAt = now
	s.mu.Unlock()
	return true
}

func (s *Session) terminate(reason domain.Termination, now time.Time) {
	s.mu.Lock()
	s.termination = reason
	s.endedAt = now
	s.mu.Unlock()
	s.setState(StateTerminated)
}

func (s *Session) setWinning(a domain.BidAttempt) {
	s.mu.Lock()
	s.winning = &a
	s.mu.Unlock()
}

// expired indica si en now ya pasó la duración máxima.
func (s *Session) expired(now time.Time) bool {
	if s.Config.MaxDuration <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.startedAt) >= s.Config.MaxDuration
}

// Result resume una sesión terminada.
type Result struct {
	SessionID   string
	ProductID   string
	Size        string
	Termination domain.Termination
	Snapshots   int
	Attempts    []domain.BidAttempt
	Winning     *domain.BidAttempt
	Stats       domain.PriceStats
	HasStats    bool
	Duration    time.Duration
	Record      domain.SessionRecord
}

func (s *Session) result() Result {
	stats, ok := s.History.Statistics()
	snaps, _ := s.History.Len()
	rec := s.Record()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		SessionID:   s.ID,
		ProductID:   s.ProductID,
		Size:        s.Size,
		Termination: s.termination,
		Snapshots:   snaps,
		Attempts:    s.History.Attempts(),
		Winning:     s.winning,
		Stats:       stats,
		HasStats:    ok,
		Duration:    s.endedAt.Sub(s.startedAt),
		Record:      rec,
	}
}
