package safeurl

import (
	"fmt"
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid absolute URL with scheme http or https and a host.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return (s == "http" || s == "https") && parsed.Host != ""
}

// localSchemes never name a network stream.
var localSchemes = map[string]bool{"file": true, "data": true, "javascript": true}

// IsStreamURL reports whether u is an absolute URL a player could open over
// the network: http(s), rtmp, rtsp, udp, rtp and the like. Local schemes are rejected.
func IsStreamURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return false
	}
	if localSchemes[strings.ToLower(parsed.Scheme)] {
		return false
	}
	return parsed.Host != ""
}

// Check is IsHTTPOrHTTPS as an error, for config and request validation.
func Check(u string) error {
	if u == "" {
		return fmt.Errorf("empty URL")
	}
	if !IsHTTPOrHTTPS(u) {
		return fmt.Errorf("URL must be http or https: %q", Redact(u))
	}
	return nil
}

// Redact strips userinfo and query values from u for logging. Provider
// playlist URLs often carry credentials in either place.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid url>"
	}
	if parsed.User != nil {
		parsed.User = url.User("xxx")
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for k := range q {
			q.Set(k, "xxx")
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
