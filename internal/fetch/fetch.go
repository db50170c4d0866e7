// Package fetch performs the single upstream GET behind every playlist and
// manifest request. Bodies are decompressed and capped, and failures map onto
// UpstreamError. It never retries.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/alanedwardes/remote-playlists/internal/httpclient"
	"github.com/alanedwardes/remote-playlists/internal/metrics"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

// DefaultMaxBodyBytes caps decoded response bodies when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 16 << 20

// maxLoggedBody bounds how much of an error response body is logged.
const maxLoggedBody = 512

var (
	// ErrUpstream matches every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrBodyTooLarge is wrapped in an UpstreamError when a body exceeds the cap.
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrMalformedResponse is returned when a fetched body cannot be decoded
	// into the structure the caller expects.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// UpstreamError is a non-2xx response or a transport failure on a fetch.
// StatusCode is 0 for transport failures.
type UpstreamError struct {
	URL        string // redacted
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Options tune one Get call.
type Options struct {
	// Kind labels metrics and logs ("playlist", "manifest").
	Kind string
	// Accept is sent as the Accept header when non-empty.
	Accept string
	// MaxBodyBytes caps the decoded body; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Result is the decoded body of a 2xx response.
type Result struct {
	Body        []byte
	ContentType string
}

// Get fetches url with client (httpclient.Default() when nil).
// Cancellation of ctx is returned as the context error (errors.Is(err,
// context.Canceled) holds) rather than as an UpstreamError.
func Get(ctx context.Context, client *http.Client, url string, opts Options) (*Result, error) {
	if client == nil {
		client = httpclient.Default()
	}
	if opts.Kind == "" {
		opts.Kind = "http"
	}
	max := opts.MaxBodyBytes
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	redacted := safeurl.Redact(url)
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.ObserveFetch(opts.Kind, metrics.OutcomeUpstream, started, 0)
		return nil, &UpstreamError{URL: redacted, Err: fmt.Errorf("build request: %w", err)}
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	// Setting Accept-Encoding ourselves disables the transport's implicit gzip,
	// so decodeBody handles both encodings.
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := client.Do(req)
	if err != nil {
		return nil, failure(ctx, opts.Kind, started, &UpstreamError{URL: redacted, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		log.Printf("%s fetch failed: %s: HTTP %d: %s", opts.Kind, redacted, resp.StatusCode, strings.TrimSpace(string(snippet)))
		metrics.ObserveFetch(opts.Kind, metrics.OutcomeUpstream, started, 0)
		return nil, &UpstreamError{URL: redacted, StatusCode: resp.StatusCode}
	}

	r, err := decodeBody(resp)
	if err != nil {
		return nil, failure(ctx, opts.Kind, started, &UpstreamError{URL: redacted, Err: err})
	}
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, failure(ctx, opts.Kind, started, &UpstreamError{URL: redacted, Err: fmt.Errorf("read body: %w", err)})
	}
	if int64(len(body)) > max {
		log.Printf("%s fetch: %s: body exceeds %d bytes", opts.Kind, redacted, max)
		metrics.ObserveFetch(opts.Kind, metrics.OutcomeTooLarge, started, 0)
		return nil, &UpstreamError{URL: redacted, Err: ErrBodyTooLarge}
	}
	metrics.ObserveFetch(opts.Kind, metrics.OutcomeOK, started, len(body))
	return &Result{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// failure returns the context error when ctx is done, else upstream.
func failure(ctx context.Context, kind string, started time.Time, upstream *UpstreamError) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.ObserveFetch(kind, metrics.OutcomeCanceled, started, 0)
		return fmt.Errorf("%s fetch %s: %w", kind, upstream.URL, ctxErr)
	}
	log.Printf("%s fetch failed: %v", kind, upstream)
	metrics.ObserveFetch(kind, metrics.OutcomeUpstream, started, 0)
	return upstream
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
