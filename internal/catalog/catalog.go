package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChannelEntry is one browsable/playable channel.
// Identifier is opaque to callers: a raw playback URL (remote playlist), a
// media-selector stream id (reference list) or a config entry id (per-entry).
type ChannelEntry struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	GroupTitle string `json:"group_title,omitempty"` // M3U group-title attribute (e.g. "News")
	LogoURL    string `json:"logo_url,omitempty"`    // M3U tvg-logo attribute
	MIMEType   string `json:"mime_type,omitempty"`   // only known up front for per-entry config
}

// Valid reports whether e can be emitted: Identifier and Name must be non-empty.
func (e ChannelEntry) Valid() bool {
	return e.Identifier != "" && e.Name != ""
}

// ResolvedStream is the final playable URL and its MIME type.
type ResolvedStream struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

// ConfigEntry is one host-supplied configuration record for the per-entry source.
// URL is the direct playback URL; no fetch happens at catalog-build time.
type ConfigEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	IconURL  string `json:"icon_url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Catalog is the browse root: a title and icon plus the ordered entries of
// whichever source is active.
type Catalog struct {
	Title   string         `json:"title"`
	IconURL string         `json:"icon_url,omitempty"`
	Entries []ChannelEntry `json:"entries"`
}

// New returns an empty catalog with the given title.
func New(title string) *Catalog {
	return &Catalog{Title: title, Entries: []ChannelEntry{}}
}

// Save writes the catalog to path as JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file (atomic on most Unix filesystems).
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".catalog-*.json.tmp")
	if err != nil {
		return fmt.Errorf("catalog save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("catalog save: write: %w", writeErr)
		}
		return fmt.Errorf("catalog save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: rename: %w", err)
	}
	return nil
}

// Load reads a catalog previously written by Save.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
