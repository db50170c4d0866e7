package indexer

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ulikunitz/xz"
	"golang.org/x/net/html/charset"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/fetch"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

const playlistAccept = "audio/x-mpegurl, audio/mpegurl, application/vnd.apple.mpegurl, text/plain;q=0.9, */*;q=0.5"

// FetchPlaylist fetches the playlist at url and parses it with a zero Parser.
// If client is nil, httpclient.Default() is used. maxBodyBytes <= 0 uses fetch.DefaultMaxBodyBytes.
func FetchPlaylist(ctx context.Context, client *http.Client, url string, maxBodyBytes int64) ([]catalog.ChannelEntry, error) {
	var p Parser
	return p.Fetch(ctx, client, url, maxBodyBytes)
}

// Fetch performs one GET of url and parses the body. A failed fetch returns
// no entries at all, never a partial list.
func (p *Parser) Fetch(ctx context.Context, client *http.Client, url string, maxBodyBytes int64) ([]catalog.ChannelEntry, error) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = fetch.DefaultMaxBodyBytes
	}
	res, err := fetch.Get(ctx, client, url, fetch.Options{
		Kind:         "playlist",
		Accept:       playlistAccept,
		MaxBodyBytes: maxBodyBytes,
	})
	if err != nil {
		return nil, err
	}
	text, err := decodePlaylist(res.Body, res.ContentType, maxBodyBytes)
	if errors.Is(err, fetch.ErrBodyTooLarge) {
		return nil, &fetch.UpstreamError{URL: safeurl.Redact(url), Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("playlist %s: %w", safeurl.Redact(url), err)
	}

	dropped := 0
	parser := Parser{OnDrop: func(line int, err error) {
		dropped++
		if p.OnDrop != nil {
			p.OnDrop(line, err)
		}
	}}
	entries := parser.Parse(text)
	log.Printf("Playlist %s: %d entries (%d malformed records dropped)", safeurl.Redact(url), len(entries), dropped)
	return entries, nil
}

// decodePlaylist undoes file-level compression (gzip, bzip2, xz by magic
// bytes; some providers serve .m3u.gz as-is) and converts legacy charsets to
// UTF-8 using the Content-Type charset parameter or content sniffing.
func decodePlaylist(body []byte, contentType string, maxBytes int64) (string, error) {
	br := bufio.NewReader(bytes.NewReader(body))
	header, _ := br.Peek(6)

	var r io.Reader = br
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("%w: gzip: %v", fetch.ErrMalformedResponse, err)
		}
		defer gz.Close()
		r = gz
	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		r = bzip2.NewReader(br)
	case len(header) >= 6 && bytes.Equal(header, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		xr, err := xz.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("%w: xz: %v", fetch.ErrMalformedResponse, err)
		}
		r = xr
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: decompress: %v", fetch.ErrMalformedResponse, err)
	}
	if int64(len(raw)) > maxBytes {
		return "", fetch.ErrBodyTooLarge
	}

	cr, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", fmt.Errorf("%w: charset: %v", fetch.ErrMalformedResponse, err)
	}
	text, err := io.ReadAll(cr)
	if err != nil {
		return "", fmt.Errorf("%w: charset: %v", fetch.ErrMalformedResponse, err)
	}
	return string(text), nil
}
