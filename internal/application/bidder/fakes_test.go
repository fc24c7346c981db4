package bidder_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// fakeClock advances its time by d on every After and fires immediately,
// unless onWait returns true, in which case the channel never fires.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	onWait func(n int) bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	n := len(c.waits)
	hook := c.onWait
	c.mu.Unlock()

	if hook != nil && hook(n) {
		return make(chan time.Time)
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// step is one scripted PriceSource response.
type step struct {
	snap domain.PriceSnapshot
	err  error
}

func ask(lowestAsk int64) step {
	return step{snap: domain.PriceSnapshot{BuyNowPrice: lowestAsk, HighestBid: lowestAsk / 2, LowestAsk: lowestAsk}}
}

func buyNow(price int64) step {
	return step{snap: domain.PriceSnapshot{BuyNowPrice: price, LowestAsk: 500000}}
}

func fail(err error) step {
	return step{err: err}
}

// scriptedSource replays steps per product; the last step repeats forever.
type scriptedSource struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
}

func newSource(productID string, steps ...step) *scriptedSource {
	s := &scriptedSource{scripts: make(map[string][]step), calls: make(map[string]int)}
	s.scripts[productID] = steps
	return s
}

func (s *scriptedSource) add(productID string, steps ...step) *scriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[productID] = steps
	return s
}

func (s *scriptedSource) FetchPrice(_ context.Context, productID, size string) (domain.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.scripts[productID]
	i := min(s.calls[productID], len(steps)-1)
	s.calls[productID]++
	st := steps[i]
	if st.err != nil {
		return domain.PriceSnapshot{}, st.err
	}
	snap := st.snap
	snap.Size = size
	return snap, nil
}

func (s *scriptedSource) Calls(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[productID]
}

type bidCall struct {
	productID string
	size      string
	price     int64
}

// recordingSink returns results in order; the last one repeats.
type recordingSink struct {
	mu      sync.Mutex
	results []error
	calls   []bidCall
}

func (s *recordingSink) PlaceBid(_ context.Context, productID, size string, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, bidCall{productID, size, price})
	if len(s.results) == 0 {
		return nil
	}
	i := min(len(s.calls)-1, len(s.results)-1)
	return s.results[i]
}

func (s *recordingSink) Calls() []bidCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bidCall(nil), s.calls...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	prices   []domain.PriceSnapshot
	changes  []*domain.PriceChange
	attempts []domain.BidAttempt
}

func (n *recordingNotifier) NotifyPrice(_ context.Context, _ string, snap domain.PriceSnapshot, change *domain.PriceChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prices = append(n.prices, snap)
	n.changes = append(n.changes, change)
	return nil
}

func (n *recordingNotifier) NotifyBid(_ context.Context, attempt domain.BidAttempt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts = append(n.attempts, attempt)
	return nil
}

// memStorage is an in-memory ports.HistoryStorage.
type memStorage struct {
	mu        sync.Mutex
	sessions  map[string]domain.SessionRecord
	snapshots map[string][]domain.PriceSnapshot
	attempts  map[string][]domain.BidAttempt
}

func newMemStorage() *memStorage {
	return &memStorage{
		sessions:  make(map[string]domain.SessionRecord),
		snapshots: make(map[string][]domain.PriceSnapshot),
		attempts:  make(map[string][]domain.BidAttempt),
	}
}

func (m *memStorage) SaveSession(_ context.Context, rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *memStorage) SaveSnapshots(_ context.Context, id string, snaps []domain.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = append(m.snapshots[id], snaps...)
	return nil
}

func (m *memStorage) SaveAttempts(_ context.Context, id string, attempts []domain.BidAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id] = append(m.attempts[id], attempts...)
	return nil
}

func (m *memStorage) Session(id string) domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStorage) Snapshots(id string) []domain.PriceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[id]
}

func (m *memStorage) Attempts(id string) []domain.BidAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
