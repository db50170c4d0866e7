// Package health runs one-shot checks against the configured upstreams and a
// running host.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/indexer"
)

// Resolver is satisfied by *mediaselector.Resolver and *source.Builder adapters.
type Resolver interface {
	Resolve(ctx context.Context, streamID string) (catalog.ResolvedStream, error)
}

// CheckPlaylist fetches and parses playlistURL and returns the number of
// usable entries. A playlist that parses to nothing is reported as an error.
func CheckPlaylist(ctx context.Context, client *http.Client, playlistURL string, maxBodyBytes int64) (int, error) {
	if playlistURL == "" {
		return 0, fmt.Errorf("no playlist URL configured")
	}
	entries, err := indexer.FetchPlaylist(ctx, client, playlistURL, maxBodyBytes)
	if err != nil {
		return 0, fmt.Errorf("playlist unreachable: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("playlist has no playable entries")
	}
	return len(entries), nil
}

// CheckMediaSelector resolves streamID and returns the selected stream.
func CheckMediaSelector(ctx context.Context, r Resolver, streamID string) (catalog.ResolvedStream, error) {
	if streamID == "" {
		return catalog.ResolvedStream{}, fmt.Errorf("no stream id to probe")
	}
	s, err := r.Resolve(ctx, streamID)
	if err != nil {
		return catalog.ResolvedStream{}, fmt.Errorf("media selector %s: %w", streamID, err)
	}
	return s, nil
}

// CheckEndpoints hits healthz and channels at baseURL and returns the first error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/healthz", "/channels"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
