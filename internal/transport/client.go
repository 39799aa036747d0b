// Package transport is the signed HTTP client both adapters share: it signs
// every request, classifies failures, and absorbs retryable ones with
// exponential backoff before they ever reach the router.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"orderbridge/internal/config"
	"orderbridge/internal/errs"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/signing"
)

type Client struct {
	HTTP     *http.Client
	Platform string // metric label: "source" or "provider"
	BaseURL  string
	Signer   *signing.Signer
	Retry    config.Retry

	// limiter smooths outbound request rate; nil disables smoothing.
	limiter *rate.Limiter
	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(platform string, creds config.Credentials, retry config.Retry, timeout time.Duration, smoothingQPS float64) *Client {
	c := &Client{
		HTTP:     &http.Client{Timeout: timeout},
		Platform: platform,
		BaseURL:  creds.BaseURL,
		Signer:   signing.New(creds.AppKey, creds.AppSecret),
		Retry:    retry,
		sleep:    sleepCtx,
	}
	if smoothingQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(smoothingQPS), 1)
	}
	return c
}

// Call describes one logical API call. Stage classifies any resulting error.
type Call struct {
	Op     string
	Stage  model.Stage
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// envelope is the platform response wrapper. Code zero means success; the
// payload lives under data.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Do performs the call, retrying classified-retryable failures up to the
// configured attempt count. On success the envelope's data is unmarshaled
// into out (which may be nil).
func (c *Client) Do(ctx context.Context, call Call, out any) error {
	var body []byte
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return errs.Wrap(err, call.Stage, errs.KindUnknown, "encode request body")
		}
		body = b
	}

	start := time.Now()
	defer func() {
		metrics.AdapterDuration.WithLabelValues(c.Platform, call.Op).Observe(time.Since(start).Seconds())
	}()

	attempts := c.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.AdapterRetries.WithLabelValues(c.Platform, call.Op).Inc()
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return errs.Wrap(err, call.Stage, errs.KindNetwork, "backoff interrupted")
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errs.Wrap(err, call.Stage, errs.KindNetwork, "rate wait interrupted")
			}
		}
		err := c.once(ctx, call, body, out)
		if err == nil {
			metrics.AdapterRequests.WithLabelValues(c.Platform, call.Op, "success").Inc()
			return nil
		}
		last = err
		if !errs.Retryable(err) {
			break
		}
	}
	metrics.AdapterRequests.WithLabelValues(c.Platform, call.Op, "error").Inc()
	return last
}

func (c *Client) once(ctx context.Context, call Call, body []byte, out any) error {
	u := c.BaseURL + call.Path
	if len(call.Query) > 0 {
		u += "?" + call.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, u, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, call.Stage, errs.KindUnknown, "build request")
	}
	sig, ts := c.Signer.Sign(call.Path, call.Query, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Key", c.Signer.AppKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.Wrap(err, call.Stage, errs.KindNetwork, call.Op)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errs.Wrap(err, call.Stage, errs.KindNetwork, "read response")
	}

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return errs.New(call.Stage, kind, fmt.Sprintf("%s: HTTP %d: %s", call.Op, resp.StatusCode, trim(data)))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errs.Wrap(err, call.Stage, errs.KindUnknown, "decode response envelope")
	}
	if env.Code != 0 {
		return errs.New(call.Stage, errs.KindProviderRejected, fmt.Sprintf("%s: platform code %d: %s", call.Op, env.Code, env.Message))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errs.Wrap(err, call.Stage, errs.KindUnknown, "decode response data")
		}
	}
	return nil
}

// classifyStatus maps non-2xx statuses to error kinds. 5xx and 429 are the
// retryable ones; auth failures and other 4xx surface immediately.
func classifyStatus(status int) (errs.Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusTooManyRequests:
		return errs.KindRateLimit, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.KindAuthentication, true
	case status >= 500:
		return errs.KindNetwork, true
	default:
		return errs.KindProviderRejected, true
	}
}

func (c *Client) backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 16 {
		retry = 16
	}
	d := c.Retry.BaseDelay * time.Duration(1<<retry)
	if c.Retry.MaxDelay > 0 && d > c.Retry.MaxDelay {
		d = c.Retry.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func trim(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
