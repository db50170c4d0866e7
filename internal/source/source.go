// Package source turns a source descriptor into a browsable catalog and
// resolves catalog identifiers into playable streams.
//
// A Descriptor is one of StaticList, RemotePlaylist or PerEntryConfig. All
// three go through the same Builder; the variant decides what an entry's
// Identifier means and how it resolves.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/indexer"
	"github.com/alanedwardes/remote-playlists/internal/mediaselector"
	"github.com/alanedwardes/remote-playlists/internal/metrics"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

// ErrUnknownIdentifier is returned by Resolve for an identifier the active
// source does not know (including disabled config entries).
var ErrUnknownIdentifier = errors.New("unknown channel identifier")

// Descriptor is the tagged union of catalog sources.
type Descriptor interface {
	// Name labels logs and metrics ("static", "playlist", "entries").
	Name() string
	isDescriptor()
}

// StaticList is a curated, declarative channel table whose identifiers are
// media-selector stream ids.
type StaticList struct {
	Channels []catalog.ChannelEntry
}

// RemotePlaylist is an M3U playlist fetched at browse time. Entry identifiers
// are the playlist's raw playback URLs; MIMEType applies to all of them (empty
// means guess from each URL).
type RemotePlaylist struct {
	URL      string
	MIMEType string
}

// PerEntryConfig projects host configuration records into entries. Each
// record already carries its playback URL and MIME type.
type PerEntryConfig struct {
	Records []catalog.ConfigEntry
}

func (StaticList) Name() string     { return "static" }
func (RemotePlaylist) Name() string { return "playlist" }
func (PerEntryConfig) Name() string { return "entries" }

func nameOf(d Descriptor) string {
	if d == nil {
		return "none"
	}
	return d.Name()
}

func (StaticList) isDescriptor()     {}
func (RemotePlaylist) isDescriptor() {}
func (PerEntryConfig) isDescriptor() {}

// StreamResolver negotiates a stream id into a playable stream.
// *mediaselector.Resolver implements it.
type StreamResolver interface {
	Resolve(ctx context.Context, streamID string) (catalog.ResolvedStream, error)
}

// Builder builds catalogs and resolves identifiers. It holds only read-only
// collaborators and is safe for concurrent use.
type Builder struct {
	// Client is used for playlist fetches; nil means httpclient.Default().
	Client *http.Client
	// Resolver handles StaticList identifiers; nil means a mediaselector.Resolver
	// with default base URL sharing Client.
	Resolver StreamResolver
	// MaxBodyBytes caps playlist bodies; 0 means fetch.DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Parser is used for remote playlists; its OnDrop hook sees malformed records.
	Parser indexer.Parser
}

// Build returns the ordered entries for d. A failed remote fetch returns a nil
// slice and the error, never a partial list.
func (b *Builder) Build(ctx context.Context, d Descriptor) ([]catalog.ChannelEntry, error) {
	entries, err := b.build(ctx, d)
	metrics.CatalogBuildTotal.WithLabelValues(nameOf(d), string(Classify(err))).Inc()
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *Builder) build(ctx context.Context, d Descriptor) ([]catalog.ChannelEntry, error) {
	switch d := d.(type) {
	case StaticList:
		out := make([]catalog.ChannelEntry, 0, len(d.Channels))
		for _, c := range d.Channels {
			if !c.Valid() {
				continue
			}
			out = append(out, catalog.ChannelEntry{Identifier: c.Identifier, Name: c.Name})
		}
		return out, nil
	case RemotePlaylist:
		if err := safeurl.Check(d.URL); err != nil {
			return nil, fmt.Errorf("playlist source: %w", err)
		}
		return b.Parser.Fetch(ctx, b.Client, d.URL, b.MaxBodyBytes)
	case PerEntryConfig:
		out := make([]catalog.ChannelEntry, 0, len(d.Records))
		for _, r := range d.Records {
			if r.Disabled {
				continue
			}
			e := catalog.ChannelEntry{
				Identifier: r.ID,
				Name:       r.Title,
				LogoURL:    r.IconURL,
				MIMEType:   mimeTypeFor(r.MIMEType, r.URL),
			}
			if !e.Valid() {
				log.Printf("Config entry %q skipped: missing id or title", r.ID)
				continue
			}
			out = append(out, e)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("source: no descriptor")
	default:
		return nil, fmt.Errorf("source: unsupported descriptor %T", d)
	}
}

// Browse wraps Build in the catalog root the host renders.
func (b *Builder) Browse(ctx context.Context, d Descriptor, title, iconURL string) (*catalog.Catalog, error) {
	entries, err := b.Build(ctx, d)
	if err != nil {
		return nil, err
	}
	c := catalog.New(title)
	c.IconURL = iconURL
	if entries != nil {
		c.Entries = entries
	}
	return c, nil
}

// Resolve turns identifier (taken from a catalog entry of d) into a stream.
func (b *Builder) Resolve(ctx context.Context, d Descriptor, identifier string) (catalog.ResolvedStream, error) {
	s, err := b.resolve(ctx, d, identifier)
	metrics.ResolveTotal.WithLabelValues(nameOf(d), string(Classify(err))).Inc()
	if err != nil {
		return catalog.ResolvedStream{}, err
	}
	return s, nil
}

func (b *Builder) resolve(ctx context.Context, d Descriptor, identifier string) (catalog.ResolvedStream, error) {
	if identifier == "" {
		return catalog.ResolvedStream{}, ErrUnknownIdentifier
	}
	switch d := d.(type) {
	case StaticList:
		return b.streamResolver().Resolve(ctx, identifier)
	case RemotePlaylist:
		// The identifier is the playback URL itself.
		if !safeurl.IsStreamURL(identifier) {
			return catalog.ResolvedStream{}, fmt.Errorf("%w: not a stream URL", ErrUnknownIdentifier)
		}
		return catalog.ResolvedStream{URL: identifier, MIMEType: mimeTypeFor(d.MIMEType, identifier)}, nil
	case PerEntryConfig:
		for _, r := range d.Records {
			if r.ID != identifier || r.Disabled {
				continue
			}
			if !safeurl.IsHTTPOrHTTPS(r.URL) {
				return catalog.ResolvedStream{}, fmt.Errorf("%w: entry %s has no usable URL", ErrUnknownIdentifier, r.ID)
			}
			return catalog.ResolvedStream{URL: r.URL, MIMEType: mimeTypeFor(r.MIMEType, r.URL)}, nil
		}
		return catalog.ResolvedStream{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, identifier)
	case nil:
		return catalog.ResolvedStream{}, fmt.Errorf("source: no descriptor")
	default:
		return catalog.ResolvedStream{}, fmt.Errorf("source: unsupported descriptor %T", d)
	}
}

func (b *Builder) streamResolver() StreamResolver {
	if b.Resolver != nil {
		return b.Resolver
	}
	return &mediaselector.Resolver{Client: b.Client, MaxBodyBytes: b.MaxBodyBytes}
}
