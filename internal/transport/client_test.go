package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/config"
	"orderbridge/internal/errs"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient("source", config.Credentials{AppKey: "k", AppSecret: "s", BaseURL: srv.URL},
		config.Retry{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, 2*time.Second, 0)
	c.HTTP = srv.Client()
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestDoSuccessDecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("X-Signature"))
		require.NotEmpty(t, r.Header.Get("X-Timestamp"))
		require.Equal(t, "k", r.Header.Get("X-App-Key"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"value":"ok"}}`))
	}))
	defer srv.Close()

	var out struct {
		Value string `json:"value"`
	}
	err := testClient(t, srv).Do(context.Background(), Call{Op: "ping", Stage: model.StageFetch, Method: http.MethodGet, Path: "/ping"}, &out)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Value)
}

func TestDoRetriesTransient500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	before := testutil.ToFloat64(metrics.AdapterRetries.WithLabelValues("source", "flaky"))
	err := c.Do(context.Background(), Call{Op: "flaky", Stage: model.StageFetch, Method: http.MethodGet, Path: "/x"}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
	// exactly one silently-absorbed retry, visible only in metrics
	after := testutil.ToFloat64(metrics.AdapterRetries.WithLabelValues("source", "flaky"))
	require.Equal(t, 1.0, after-before)
}

func TestDoAuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testClient(t, srv).Do(context.Background(), Call{Op: "auth", Stage: model.StageFetch, Method: http.MethodGet, Path: "/x"}, nil)
	require.Error(t, err)
	require.Equal(t, errs.KindAuthentication, errs.KindOf(err))
	require.EqualValues(t, 1, calls.Load())
}

func TestDoRateLimitRetriedThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := testClient(t, srv).Do(context.Background(), Call{Op: "rl", Stage: model.StageCreateOrder, Method: http.MethodPost, Path: "/x"}, nil)
	require.Error(t, err)
	require.Equal(t, errs.KindRateLimit, errs.KindOf(err))
	require.EqualValues(t, 3, calls.Load())
}

func TestDoEnvelopeRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":36004001,"message":"order cannot be fulfilled"}`))
	}))
	defer srv.Close()

	err := testClient(t, srv).Do(context.Background(), Call{Op: "create", Stage: model.StageCreateOrder, Method: http.MethodPost, Path: "/x"}, nil)
	require.Error(t, err)
	require.Equal(t, errs.KindProviderRejected, errs.KindOf(err))
	require.EqualValues(t, 1, calls.Load(), "rejection is terminal, not retried")
}

func TestBackoffCapped(t *testing.T) {
	c := &Client{Retry: config.Retry{BaseDelay: time.Second, MaxDelay: 4 * time.Second}}
	require.Equal(t, time.Second, c.backoff(0))
	require.Equal(t, 2*time.Second, c.backoff(1))
	require.Equal(t, 4*time.Second, c.backoff(5))
}
