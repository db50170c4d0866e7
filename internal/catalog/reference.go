package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// referenceJSON is the curated live-TV channel table: media-selector stream
// ids and their display names, in display order.
//
//go:embed reference_channels.json
var referenceJSON []byte

type referenceChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReferenceChannels returns the bundled reference channel table.
func ReferenceChannels() ([]ChannelEntry, error) {
	return parseReference(referenceJSON)
}

// LoadReferenceChannels reads a reference table from path in the same format
// as the bundled one ([{"id": "...", "name": "..."}]).
func LoadReferenceChannels(path string) ([]ChannelEntry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return parseReference(data)
}

func parseReference(data []byte) ([]ChannelEntry, error) {
	var rows []referenceChannel
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("reference channels: %w", err)
	}
	out := make([]ChannelEntry, 0, len(rows))
	for i, r := range rows {
		e := ChannelEntry{Identifier: r.ID, Name: r.Name}
		if !e.Valid() {
			return nil, fmt.Errorf("reference channels: row %d: id and name are required", i)
		}
		out = append(out, e)
	}
	return out, nil
}
