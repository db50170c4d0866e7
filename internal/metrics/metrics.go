// Package metrics holds the Prometheus collectors for playlist fetches,
// playlist parsing and stream resolution. Collectors register on the default
// registry; the host exposes them with promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeUpstream = "upstream_error"
	OutcomeCanceled = "canceled"
	OutcomeTooLarge = "too_large"
)

// Upstream fetch metrics
var (
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_playlists_fetch_total",
			Help: "Upstream HTTP fetches by kind (playlist, manifest) and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_playlists_fetch_duration_seconds",
			Help:    "Upstream HTTP fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	FetchBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_playlists_fetch_bytes_total",
			Help: "Decoded response bytes read from upstream",
		},
		[]string{"kind"},
	)
)

// Playlist parser metrics
var (
	PlaylistEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remote_playlists_playlist_entries_total",
			Help: "Channel entries emitted by the playlist parser",
		},
	)

	PlaylistDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_playlists_playlist_dropped_total",
			Help: "Malformed playlist records dropped by the parser, by reason",
		},
		[]string{"reason"},
	)
)

// Resolution metrics
var (
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_playlists_resolve_total",
			Help: "Stream resolutions by source variant and outcome",
		},
		[]string{"source", "outcome"},
	)

	CatalogBuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_playlists_catalog_build_total",
			Help: "Catalog builds by source variant and outcome",
		},
		[]string{"source", "outcome"},
	)
)

// ObserveFetch records one upstream fetch.
func ObserveFetch(kind, outcome string, started time.Time, bytes int) {
	FetchTotal.WithLabelValues(kind, outcome).Inc()
	FetchDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	if bytes > 0 {
		FetchBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}
