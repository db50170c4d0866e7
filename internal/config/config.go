package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alanedwardes/remote-playlists/internal/fetch"
	"github.com/alanedwardes/remote-playlists/internal/httpclient"
	"github.com/alanedwardes/remote-playlists/internal/mediaselector"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

// Source kinds accepted by REMOTE_PLAYLISTS_SOURCE.
const (
	SourceStatic   = "static"
	SourcePlaylist = "playlist"
	SourceEntries  = "entries"
)

// Config holds catalog source, upstream HTTP and host settings.
type Config struct {
	// Catalog
	Source        string // static | playlist | entries
	PlaylistURL   string // M3U URL when Source is playlist
	Title         string // browse root title
	IconURL       string // browse root icon
	MIMEType      string // MIME type for all playlist entries; "" = guess per URL
	ReferenceFile string // optional JSON override for the bundled static channel table
	DBPath        string // sqlite file for per-entry config records

	// Upstream
	MediaSelectorURL string
	HTTPTimeout      time.Duration
	MaxBodyBytes     int64
	UpstreamRPS      float64 // per-host requests/second; 0 = unlimited
	UpstreamBurst    int
	UserAgent        string

	// Host
	Addr string // listen address for serve
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		Source:           strings.ToLower(strings.TrimSpace(getEnv("REMOTE_PLAYLISTS_SOURCE", SourceStatic))),
		PlaylistURL:      strings.TrimSpace(os.Getenv("REMOTE_PLAYLISTS_PLAYLIST_URL")),
		Title:            getEnv("REMOTE_PLAYLISTS_TITLE", "BBC Channels"),
		IconURL:          os.Getenv("REMOTE_PLAYLISTS_ICON_URL"),
		MIMEType:         os.Getenv("REMOTE_PLAYLISTS_MIME_TYPE"),
		ReferenceFile:    os.Getenv("REMOTE_PLAYLISTS_REFERENCE_FILE"),
		DBPath:           getEnv("REMOTE_PLAYLISTS_DB", "./entries.db"),
		MediaSelectorURL: getEnv("REMOTE_PLAYLISTS_MEDIASELECTOR_URL", mediaselector.DefaultBaseURL),
		HTTPTimeout:      getEnvDuration("REMOTE_PLAYLISTS_HTTP_TIMEOUT", httpclient.DefaultTimeout),
		MaxBodyBytes:     getEnvInt64("REMOTE_PLAYLISTS_MAX_BODY_BYTES", fetch.DefaultMaxBodyBytes),
		UpstreamRPS:      getEnvFloat("REMOTE_PLAYLISTS_UPSTREAM_RPS", 5),
		UpstreamBurst:    getEnvInt("REMOTE_PLAYLISTS_UPSTREAM_BURST", 10),
		UserAgent:        getEnv("REMOTE_PLAYLISTS_USER_AGENT", httpclient.DefaultUserAgent),
		Addr:             getEnv("REMOTE_PLAYLISTS_ADDR", ":8080"),
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = httpclient.DefaultTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = fetch.DefaultMaxBodyBytes
	}
	if c.UpstreamRPS < 0 {
		c.UpstreamRPS = 0
	}
	if c.UpstreamBurst <= 0 {
		c.UpstreamBurst = 1
	}
	return c
}

// Validate reports the first setting that makes the config unusable.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceStatic, SourceEntries:
	case SourcePlaylist:
		if c.PlaylistURL == "" {
			return fmt.Errorf("REMOTE_PLAYLISTS_PLAYLIST_URL is required when source is %q", SourcePlaylist)
		}
		if err := safeurl.Check(c.PlaylistURL); err != nil {
			return fmt.Errorf("REMOTE_PLAYLISTS_PLAYLIST_URL: %w", err)
		}
	default:
		return fmt.Errorf("REMOTE_PLAYLISTS_SOURCE must be %s, %s or %s; got %q", SourceStatic, SourcePlaylist, SourceEntries, c.Source)
	}
	if c.IconURL != "" && !safeurl.IsHTTPOrHTTPS(c.IconURL) {
		return fmt.Errorf("REMOTE_PLAYLISTS_ICON_URL must be http or https")
	}
	if err := safeurl.Check(c.MediaSelectorURL); err != nil {
		return fmt.Errorf("REMOTE_PLAYLISTS_MEDIASELECTOR_URL: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
