package kream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/kreambot/internal/adapters/kream"
	"github.com/alejandrodnm/kreambot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *kream.Client {
	return kream.NewClient(kream.Config{
		BaseURL:           srv.URL,
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		RetryWait:         time.Millisecond,
		Token:             "secret",
	})
}

func sourceKind(t *testing.T, err error) domain.SourceErrorKind {
	t.Helper()
	var te *domain.TransientSourceError
	require.True(t, errors.As(err, &te), "expected TransientSourceError, got %v", err)
	return te.Kind
}

func TestFetchPrice_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products/12345/prices", r.URL.Path)
		assert.Equal(t, "270", r.URL.Query().Get("size"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"product_id": "12345",
			"size": "270",
			"buy_now_price": 189000,
			"highest_bid": "184,000원",
			"lowest_ask": "189,000원",
			"timestamp": "2026-03-01T12:00:00Z"
		}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	require.NoError(t, err)

	assert.Equal(t, int64(189000), snap.BuyNowPrice)
	assert.Equal(t, int64(184000), snap.HighestBid)
	assert.Equal(t, int64(189000), snap.LowestAsk)
	assert.Equal(t, "270", snap.Size)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.Timestamp.UTC())
}

func TestFetchPrice_MissingFieldsAreZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"buy_now_price": 150000, "lowest_ask": null, "highest_bid": "-"}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), snap.BuyNowPrice)
	assert.Zero(t, snap.LowestAsk)
	assert.Zero(t, snap.HighestBid)
	assert.Equal(t, "270", snap.Size, "falls back to the requested size")
	assert.True(t, snap.Timestamp.IsZero())
}

func TestFetchPrice_NotFoundIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	require.Error(t, err)
	assert.Equal(t, domain.SourceNoData, sourceKind(t, err))
}

func TestFetchPrice_EmptyBodyIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	assert.Equal(t, domain.SourceNoData, sourceKind(t, err))
}

func TestFetchPrice_BadJSONIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>login</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	assert.Equal(t, domain.SourceMalformed, sourceKind(t, err))
}

func TestFetchPrice_NegativePriceIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lowest_ask": -5}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	assert.Equal(t, domain.SourceMalformed, sourceKind(t, err))
}

func TestFetchPrice_OverflowingPriceIsMalformed(t *testing.T) {
	for _, body := range []string{
		`{"lowest_ask": "99,999,999,999,999,999,999원"}`,
		`{"lowest_ask": 1e30}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
		assert.Equal(t, domain.SourceMalformed, sourceKind(t, err), body)
		srv.Close()
	}
}

func TestFetchPrice_TimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := kream.NewClient(kream.Config{
		BaseURL:           srv.URL,
		Timeout:           20 * time.Millisecond,
		RequestsPerSecond: 1000,
		RetryWait:         time.Millisecond,
	})
	_, err := client.FetchPrice(context.Background(), "12345", "270")
	assert.Equal(t, domain.SourceTimeout, sourceKind(t, err))
}

func TestFetchPrice_ServerErrorRetriesThenUnreachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	assert.Equal(t, domain.SourceUnreachable, sourceKind(t, err))
	assert.Equal(t, int32(4), calls.Load())
}

func TestFetchPrice_RecoversAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"lowest_ask": 90000}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchPrice(context.Background(), "12345", "270")
	require.NoError(t, err)
	assert.Equal(t, int64(90000), snap.LowestAsk)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPrice_CancelledContextIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv).FetchPrice(ctx, "12345", "270")
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlaceBid_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/products/12345/bids", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "270", body["size"])
		assert.EqualValues(t, 90000, body["price"])

		w.Write([]byte(`{"id": "bid-1", "status": "accepted"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).PlaceBid(context.Background(), "12345", "270", 90000)
	assert.NoError(t, err)
}

func TestPlaceBid_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "rejected", "message": "price below minimum"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).PlaceBid(context.Background(), "12345", "270", 90000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBidRejected)
	assert.Contains(t, err.Error(), "price below minimum")
}

func TestPlaceBid_ClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`duplicate bid`))
	}))
	defer srv.Close()

	err := newTestClient(srv).PlaceBid(context.Background(), "12345", "270", 90000)
	assert.ErrorIs(t, err, domain.ErrBidRejected)
}

func TestPlaceBid_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv).PlaceBid(context.Background(), "12345", "270", 90000)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrBidRejected)
	assert.Equal(t, int32(1), calls.Load())
}
