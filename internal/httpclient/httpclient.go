package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	DefaultUserAgent       = "RemotePlaylists/1.0"
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
}

// Default returns the shared tuned HTTP client for playlist and manifest fetches.
func Default() *http.Client {
	return defaultClient
}

// New builds the client the host hands to the core: timeout, optional per-host
// rate limit (rps <= 0 disables it) and a default User-Agent.
func New(timeout time.Duration, rps float64, burst int, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var rt http.RoundTripper = newTransport()
	if rps > 0 {
		rt = RateLimited(rt, rps, burst)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: rt, ua: userAgent},
	}
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r2 := req.Clone(req.Context())
	r2.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r2)
}
