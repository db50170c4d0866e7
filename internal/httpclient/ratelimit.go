package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out one token-bucket limiter per upstream host so a burst of
// browse/resolve calls against the same playlist or media-selector host is
// smoothed without throttling unrelated hosts.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// For returns the limiter for host (scheme+host, e.g. "https://example.com").
func (h *HostLimiter) For(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	return l
}

type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *HostLimiter
}

// RateLimited wraps base so every request first waits for its host's token.
// The wait honors the request context: a canceled request returns the context
// error without touching the network.
func RateLimited(base http.RoundTripper, rps float64, burst int) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &rateLimitedTransport{base: base, limiter: NewHostLimiter(rps, burst)}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Scheme + "://" + req.URL.Host
	if err := t.limiter.For(host).Wait(req.Context()); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The limiter refuses up front when the wait would outlive the deadline.
		if _, ok := req.Context().Deadline(); ok {
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	return t.base.RoundTrip(req)
}
