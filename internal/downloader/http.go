package downloader

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
}

// consistentTransport fills in browser-like headers the video host expects.
type consistentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *consistentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	defaults := [][2]string{
		{"User-Agent", t.userAgent},
		{"Accept-Language", "en-US,en;q=0.9"},
		{"Accept", "*/*"},
	}
	cloned := false
	for _, h := range defaults {
		if req.Header.Get(h[0]) != "" {
			continue
		}
		if !cloned {
			req = req.Clone(req.Context())
			cloned = true
		}
		req.Header.Set(h[0], h[1])
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient builds the client used for metadata and stream requests.
// timeout bounds each request, not a whole download; zero means no limit.
func newHTTPClient(base http.RoundTripper, timeout time.Duration, retry retryConfig) *http.Client {
	if base == nil {
		base = newTransport()
	}
	jar, _ := cookiejar.New(nil)
	var transport http.RoundTripper = &consistentTransport{
		base:      base,
		userAgent: defaultUserAgent,
	}
	transport = newRetryTransport(transport, retry)
	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: transport,
	}
}
