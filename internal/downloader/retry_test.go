package downloader

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = retryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

// scriptedTransport answers each call with the next status in the script,
// repeating the last one.
func scriptedTransport(calls *int32, statuses ...int) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		n := int(atomic.AddInt32(calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		return &http.Response{StatusCode: statuses[n-1], Body: http.NoBody, Header: http.Header{}}, nil
	}
}

func TestRetryTransportStatuses(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCode  int
		wantCalls int32
	}{
		{name: "success", statuses: []int{200}, retries: 3, wantCode: 200, wantCalls: 1},
		{name: "5xx then success", statuses: []int{502, 502, 200}, retries: 3, wantCode: 200, wantCalls: 3},
		{name: "429 then success", statuses: []int{429, 200}, retries: 3, wantCode: 200, wantCalls: 2},
		{name: "403 not retried", statuses: []int{403}, retries: 3, wantCode: 403, wantCalls: 1},
		{name: "400 not retried", statuses: []int{400}, retries: 3, wantCode: 400, wantCalls: 1},
		{name: "exhausted", statuses: []int{503}, retries: 2, wantCode: 503, wantCalls: 3},
		{name: "retries disabled", statuses: []int{500, 200}, retries: 0, wantCode: 500, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			config := fastRetry
			config.MaxRetries = tt.retries
			transport := newRetryTransport(scriptedTransport(&calls, tt.statuses...), config)

			req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
			resp, err := transport.RoundTrip(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestRetryTransportStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return &http.Response{StatusCode: 502, Body: http.NoBody}, nil
	}), fastRetry)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryTransportRetriesOnTimeout(t *testing.T) {
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &net.OpError{Op: "dial", Err: &timeoutError{}}
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}), fastRetry)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryTransportReplaysBody(t *testing.T) {
	var calls int32
	transport := newRetryTransport(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(req.Body)
		if string(body) != "payload" {
			t.Errorf("attempt %d: unexpected body %q", n, body)
		}
		if n == 1 {
			return &http.Response{StatusCode: 500, Body: http.NoBody}, nil
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}), fastRetry)

	req, _ := http.NewRequest(http.MethodPost, "https://example.com", strings.NewReader("payload"))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("payload")), nil
	}
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBackoffDelay(t *testing.T) {
	rt := newRetryTransport(nil, retryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
	})

	d1 := rt.backoffDelay(1)
	assert.GreaterOrEqual(t, d1, 75*time.Millisecond)
	assert.LessOrEqual(t, d1, 125*time.Millisecond)

	d2 := rt.backoffDelay(2)
	assert.GreaterOrEqual(t, d2, 150*time.Millisecond)
	assert.LessOrEqual(t, d2, 250*time.Millisecond)

	// capped at MaxDelay before jitter
	d5 := rt.backoffDelay(5)
	assert.LessOrEqual(t, d5, 375*time.Millisecond)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rt := newRetryTransport(nil, retryConfig{MaxDelay: 5 * time.Second})
	rt.now = func() time.Time { return now }

	response := func(code int, value string) *http.Response {
		h := http.Header{}
		if value != "" {
			h.Set("Retry-After", value)
		}
		return &http.Response{StatusCode: code, Header: h}
	}

	tests := []struct {
		name   string
		resp   *http.Response
		want   time.Duration
		wantOK bool
	}{
		{name: "no response", resp: nil},
		{name: "seconds", resp: response(429, "2"), want: 2 * time.Second, wantOK: true},
		{name: "capped", resp: response(503, "120"), want: 5 * time.Second, wantOK: true},
		{name: "http date", resp: response(429, now.Add(3*time.Second).Format(http.TimeFormat)), want: 3 * time.Second, wantOK: true},
		{name: "past date", resp: response(429, now.Add(-time.Minute).Format(http.TimeFormat)), want: 0, wantOK: true},
		{name: "garbage", resp: response(429, "soon")},
		{name: "missing header", resp: response(429, "")},
		{name: "ignored on 500", resp: response(500, "2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rt.retryAfter(tt.resp)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, isRetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404} {
		assert.False(t, isRetryableStatus(code), "status %d", code)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// timeoutError satisfies net.Error with Timeout() = true.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true } //nolint:staticcheck
