package main

import (
	"context"
	"fmt"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/config"
	"github.com/alanedwardes/remote-playlists/internal/host"
	"github.com/alanedwardes/remote-playlists/internal/httpclient"
	"github.com/alanedwardes/remote-playlists/internal/indexer"
	"github.com/alanedwardes/remote-playlists/internal/mediaselector"
	"github.com/alanedwardes/remote-playlists/internal/source"
)

// newBuilder wires the shared upstream client into the playlist fetcher and
// the media-selector resolver.
func newBuilder(cfg *config.Config, onDrop func(line int, err error)) *source.Builder {
	client := httpclient.New(cfg.HTTPTimeout, cfg.UpstreamRPS, cfg.UpstreamBurst, cfg.UserAgent)
	return &source.Builder{
		Client:       client,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Parser:       indexer.Parser{OnDrop: onDrop},
		Resolver: &mediaselector.Resolver{
			BaseURL:      cfg.MediaSelectorURL,
			Client:       client,
			MaxBodyBytes: cfg.MaxBodyBytes,
		},
	}
}

// referenceChannels returns the override table when configured, else the bundled one.
func referenceChannels(cfg *config.Config) ([]catalog.ChannelEntry, error) {
	if cfg.ReferenceFile != "" {
		return catalog.LoadReferenceChannels(cfg.ReferenceFile)
	}
	return catalog.ReferenceChannels()
}

// descriptorFunc returns the per-request source for cfg.Source. store is only
// consulted for the entries source and may be nil otherwise.
func descriptorFunc(cfg *config.Config, store host.EntryStore) (host.DescriptorFunc, error) {
	switch cfg.Source {
	case config.SourceStatic:
		chans, err := referenceChannels(cfg)
		if err != nil {
			return nil, err
		}
		d := source.StaticList{Channels: chans}
		return func(context.Context) (source.Descriptor, error) { return d, nil }, nil
	case config.SourcePlaylist:
		d := source.RemotePlaylist{URL: cfg.PlaylistURL, MIMEType: cfg.MIMEType}
		return func(context.Context) (source.Descriptor, error) { return d, nil }, nil
	case config.SourceEntries:
		if store == nil {
			return nil, fmt.Errorf("entries source needs a config entry store")
		}
		return func(ctx context.Context) (source.Descriptor, error) {
			recs, err := store.List(ctx)
			if err != nil {
				return nil, err
			}
			return source.PerEntryConfig{Records: recs}, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}
