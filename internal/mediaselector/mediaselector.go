// Package mediaselector negotiates a live stream from a media-selection
// manifest: fetch the JSON manifest for a stream id, take the single video
// media entry, and pick the first connection that is HTTPS and DASH.
//
// Selection is an exact two-stage filter, not a ranking. There is no fallback
// to other protocols or transfer formats even when the manifest offers them.
package mediaselector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/fetch"
)

// DefaultBaseURL is the media-selector mediaset endpoint for IPTV streams.
const DefaultBaseURL = "https://open.live.bbc.co.uk/mediaselector/6/select/version/2.0/mediaset/iptv-all"

const (
	kindVideo          = "video"
	protocolHTTPS      = "https"
	transferFormatDASH = "dash"
)

var (
	// ErrNoVideoTrack: the manifest has zero or more than one "video" media entry.
	ErrNoVideoTrack = errors.New("manifest has no unique video media entry")
	// ErrNoAcceptableConnection: no connection is both https and dash.
	ErrNoAcceptableConnection = errors.New("manifest has no https dash connection")
)

// Manifest is the decoded media-selection document.
type Manifest struct {
	Media []Media `json:"media"`
}

// Media is one encoded variant set (video, captions, ...).
type Media struct {
	Kind       string       `json:"kind"`
	Type       string       `json:"type"` // MIME type of the stream, e.g. application/dash+xml
	Connection []Connection `json:"connection"`
}

// Connection is one deliverable URL for a media entry.
type Connection struct {
	Protocol       string `json:"protocol"`
	TransferFormat string `json:"transferFormat"`
	Href           string `json:"href"`
}

// Resolver fetches manifests from BaseURL. The zero value uses DefaultBaseURL
// and httpclient.Default(); it holds no per-request state and is safe for
// concurrent use.
type Resolver struct {
	BaseURL      string
	Client       *http.Client
	MaxBodyBytes int64 // 0 = fetch.DefaultMaxBodyBytes
}

// ManifestURL returns <BaseURL>/vpid/<streamID>/format/json.
func (r *Resolver) ManifestURL(streamID string) string {
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + "/vpid/" + url.PathEscape(streamID) + "/format/json"
}

// Resolve fetches the manifest for streamID and selects one stream.
func (r *Resolver) Resolve(ctx context.Context, streamID string) (catalog.ResolvedStream, error) {
	if streamID == "" {
		return catalog.ResolvedStream{}, fmt.Errorf("mediaselector: empty stream id")
	}
	m, err := r.Fetch(ctx, streamID)
	if err != nil {
		return catalog.ResolvedStream{}, err
	}
	s, err := Select(m)
	if err != nil {
		return catalog.ResolvedStream{}, fmt.Errorf("mediaselector %s: %w", streamID, err)
	}
	return s, nil
}

// Fetch retrieves and decodes the manifest for streamID.
func (r *Resolver) Fetch(ctx context.Context, streamID string) (Manifest, error) {
	res, err := fetch.Get(ctx, r.Client, r.ManifestURL(streamID), fetch.Options{
		Kind:         "manifest",
		Accept:       "application/json",
		MaxBodyBytes: r.MaxBodyBytes,
	})
	if err != nil {
		return Manifest{}, err
	}
	return Decode(res.Body)
}

// Decode parses a manifest body. Anything that is not a JSON object with a
// "media" array is ErrMalformedResponse. Fields outside the selection
// contract are ignored whatever their type.
func Decode(body []byte) (Manifest, error) {
	var doc struct {
		Media *[]Media `json:"media"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", fetch.ErrMalformedResponse, err)
	}
	if doc.Media == nil {
		return Manifest{}, fmt.Errorf("%w: no media list", fetch.ErrMalformedResponse)
	}
	return Manifest{Media: *doc.Media}, nil
}

// Select applies the filter-and-select protocol to m.
func Select(m Manifest) (catalog.ResolvedStream, error) {
	var video *Media
	for i := range m.Media {
		if m.Media[i].Kind != kindVideo {
			continue
		}
		if video != nil {
			return catalog.ResolvedStream{}, fmt.Errorf("%w: found more than one", ErrNoVideoTrack)
		}
		video = &m.Media[i]
	}
	if video == nil {
		return catalog.ResolvedStream{}, ErrNoVideoTrack
	}
	for _, c := range video.Connection {
		if c.Protocol == protocolHTTPS && c.TransferFormat == transferFormatDASH && c.Href != "" {
			return catalog.ResolvedStream{URL: c.Href, MIMEType: video.Type}, nil
		}
	}
	return catalog.ResolvedStream{}, ErrNoAcceptableConnection
}
