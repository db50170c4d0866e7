package indexer

import (
	"errors"
	"regexp"
	"strings"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/metrics"
)

const (
	headerPrefix = "#EXTM3U"
	extinfPrefix = "#EXTINF:"
	extgrpPrefix = "#EXTGRP:"
)

// Malformed-record reasons reported to Parser.OnDrop. They are never returned
// from Parse: a bad record is dropped and parsing continues.
var (
	ErrOrphanLocation = errors.New("location line without preceding #EXTINF")
	ErrUnconsumedInfo = errors.New("#EXTINF without location line")
	ErrMissingName    = errors.New("entry has neither tvg-name nor display name")
)

// lineBreaks folds CRLF and bare CR (classic Mac) line endings into LF.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// attrRE matches key="value" (and bare key=value) pairs on an #EXTINF line.
var attrRE = regexp.MustCompile(`([A-Za-z0-9_-]+)=(?:"([^"]*)"|([^\s",]+))`)

// Parser converts extended-M3U text into channel entries.
// The zero value is ready to use.
type Parser struct {
	// OnDrop is called for every malformed record that was discarded.
	// line is 1-based. If nil, drops are silent.
	OnDrop func(line int, err error)
}

// ParsePlaylist parses text with a zero Parser.
func ParsePlaylist(text string) []catalog.ChannelEntry {
	var p Parser
	return p.Parse(text)
}

// Parse converts text into entries in source order. It never fails; empty
// input yields an empty result.
func (p *Parser) Parse(text string) []catalog.ChannelEntry {
	var out []catalog.ChannelEntry
	for _, r := range scanRecords(text) {
		if r.err != nil {
			metrics.PlaylistDroppedTotal.WithLabelValues(dropReason(r.err)).Inc()
			if p.OnDrop != nil {
				p.OnDrop(r.line, r.err)
			}
			continue
		}
		out = append(out, r.entry)
	}
	metrics.PlaylistEntriesTotal.Add(float64(len(out)))
	return out
}

// record is the outcome of one info/location pair (or one dangling line).
type record struct {
	line  int
	entry catalog.ChannelEntry
	err   error
}

// extinf is a buffered #EXTINF line waiting for its location line.
type extinf struct {
	line  int
	attrs map[string]string
	title string
	group string // from #EXTGRP, used when group-title is absent
}

// scanRecords is the single left-to-right pass. It yields one record per
// emitted or discarded entry.
func scanRecords(text string) []record {
	text = strings.TrimPrefix(text, "\ufeff")
	text = lineBreaks.Replace(text)
	var records []record
	var pending *extinf
	for i, raw := range strings.Split(text, "\n") {
		lineNum := i + 1
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case hasPrefixFold(line, headerPrefix):
		case hasPrefixFold(line, extinfPrefix):
			if pending != nil {
				records = append(records, record{line: pending.line, err: ErrUnconsumedInfo})
			}
			pending = parseExtinf(line[len(extinfPrefix):], lineNum)
		case hasPrefixFold(line, extgrpPrefix):
			if pending != nil {
				pending.group = strings.TrimSpace(line[len(extgrpPrefix):])
			}
		case strings.HasPrefix(line, "#"):
			// #EXTVLCOPT, #KODIPROP and friends: player hints, not entries.
		default:
			if pending == nil {
				records = append(records, record{line: lineNum, err: ErrOrphanLocation})
				continue
			}
			records = append(records, pending.toRecord(line))
			pending = nil
		}
	}
	if pending != nil {
		records = append(records, record{line: pending.line, err: ErrUnconsumedInfo})
	}
	return records
}

func (x *extinf) toRecord(location string) record {
	name := x.attrs["tvg-name"]
	if name == "" {
		name = x.title
	}
	group := x.attrs["group-title"]
	if group == "" {
		group = x.group
	}
	e := catalog.ChannelEntry{
		Identifier: location,
		Name:       name,
		GroupTitle: group,
		LogoURL:    x.attrs["tvg-logo"],
	}
	if !e.Valid() {
		return record{line: x.line, err: ErrMissingName}
	}
	return record{line: x.line, entry: e}
}

// parseExtinf splits `-1 key="v" ...,Display Name` into attributes and the
// display name after the final comma outside quoted values.
func parseExtinf(rest string, line int) *extinf {
	attrPart, title := rest, ""
	if i := titleComma(rest); i >= 0 {
		attrPart, title = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	attrs := make(map[string]string)
	for _, m := range attrRE.FindAllStringSubmatch(attrPart, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		// Later duplicates overwrite earlier ones.
		attrs[strings.ToLower(m[1])] = strings.TrimSpace(val)
	}
	return &extinf{line: line, attrs: attrs, title: title}
}

// titleComma returns the index of the last comma not inside a quoted
// attribute value, or -1. Only a quote directly after '=' opens a value, so a
// stray quote in the display name is plain text.
func titleComma(s string) int {
	idx := -1
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if inQuotes {
				inQuotes = false
			} else if i > 0 && s[i-1] == '=' {
				inQuotes = true
			}
		case ',':
			if !inQuotes {
				idx = i
			}
		}
	}
	return idx
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrOrphanLocation):
		return "orphan_location"
	case errors.Is(err, ErrUnconsumedInfo):
		return "unconsumed_info"
	case errors.Is(err, ErrMissingName):
		return "missing_name"
	}
	return "other"
}
