package source

import (
	"net/url"
	"path"
	"strings"
)

// DefaultMIMEType is used for direct URLs whose extension says nothing.
const DefaultMIMEType = "video/mp2t"

var mimeByExt = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".m3u":  "audio/x-mpegurl",
	".mpd":  "application/dash+xml",
	".ts":   "video/mp2t",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// mimeTypeFor returns configured when set, else a guess from rawURL's path extension.
func mimeTypeFor(configured, rawURL string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return GuessMIMEType(rawURL)
}

// GuessMIMEType maps a stream URL's path extension to a MIME type, falling
// back to DefaultMIMEType.
func GuessMIMEType(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if t, ok := mimeByExt[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return DefaultMIMEType
}
