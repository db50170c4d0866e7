package host

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/entries"
	"github.com/alanedwardes/remote-playlists/internal/mediaselector"
	"github.com/alanedwardes/remote-playlists/internal/source"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, id string) (catalog.ResolvedStream, error) {
	if id == "bbc_alba" {
		return catalog.ResolvedStream{}, mediaselector.ErrNoAcceptableConnection
	}
	return catalog.ResolvedStream{URL: "https://cdn.example/" + id + ".mpd", MIMEType: "application/dash+xml"}, nil
}

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := &Server{
		Title:   "BBC Channels",
		Builder: &source.Builder{Resolver: stubResolver{}},
		Descriptor: func(context.Context) (source.Descriptor, error) {
			return source.StaticList{Channels: []catalog.ChannelEntry{
				{Identifier: "bbc_one_hd", Name: "BBC One"},
				{Identifier: "bbc_two_hd", Name: "BBC Two"},
			}}, nil
		},
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func entriesServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := entries.Open(filepath.Join(t.TempDir(), "entries.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	s := &Server{
		Title:   "Radio",
		Builder: &source.Builder{},
		Entries: store,
		Descriptor: func(ctx context.Context) (source.Descriptor, error) {
			recs, err := store.List(ctx)
			if err != nil {
				return nil, err
			}
			return source.PerEntryConfig{Records: recs}, nil
		},
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, target string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d, want %d: %s", target, resp.StatusCode, wantStatus, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
}

func do(t *testing.T, method, target, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChannels_static(t *testing.T) {
	srv := staticServer(t)
	var c catalog.Catalog
	getJSON(t, srv.URL+"/channels", http.StatusOK, &c)
	if c.Title != "BBC Channels" || len(c.Entries) != 2 || c.Entries[1].Name != "BBC Two" {
		t.Errorf("catalog = %+v", c)
	}
}

func TestResolve_json(t *testing.T) {
	srv := staticServer(t)
	var s catalog.ResolvedStream
	getJSON(t, srv.URL+"/resolve/bbc_one_hd", http.StatusOK, &s)
	if s.URL != "https://cdn.example/bbc_one_hd.mpd" || s.MIMEType != "application/dash+xml" {
		t.Errorf("stream = %+v", s)
	}
}

func TestResolve_queryForm(t *testing.T) {
	srv := staticServer(t)
	var s catalog.ResolvedStream
	getJSON(t, srv.URL+"/resolve?id=bbc_two_hd", http.StatusOK, &s)
	if s.URL != "https://cdn.example/bbc_two_hd.mpd" {
		t.Errorf("stream = %+v", s)
	}
}

func TestResolve_redirect(t *testing.T) {
	srv := staticServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(srv.URL + "/resolve/bbc_one_hd?redirect=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://cdn.example/bbc_one_hd.mpd" {
		t.Errorf("Location = %q", loc)
	}
}

func TestResolve_noPlayableStream(t *testing.T) {
	srv := staticServer(t)
	var body map[string]string
	getJSON(t, srv.URL+"/resolve/bbc_alba", http.StatusNotFound, &body)
	if body["outcome"] != string(source.OutcomeNoPlayableStream) {
		t.Errorf("body = %v", body)
	}
}

func TestChannels_upstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()
	s := &Server{
		Builder: &source.Builder{Client: upstream.Client()},
		Descriptor: func(context.Context) (source.Descriptor, error) {
			return source.RemotePlaylist{URL: upstream.URL}, nil
		},
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	var body map[string]string
	getJSON(t, srv.URL+"/channels", http.StatusBadGateway, &body)
	if body["outcome"] != string(source.OutcomeUnavailable) {
		t.Errorf("body = %v", body)
	}
}

func TestEntries_lifecycle(t *testing.T) {
	srv := entriesServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/entries", `{"title":"Jazz","url":"https://jazz.example/live.mp3"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	var added catalog.ConfigEntry
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		t.Fatal(err)
	}
	if added.ID == "" {
		t.Fatal("no id assigned")
	}

	var c catalog.Catalog
	getJSON(t, srv.URL+"/channels", http.StatusOK, &c)
	if len(c.Entries) != 1 || c.Entries[0].Identifier != added.ID || c.Entries[0].MIMEType != "audio/mpeg" {
		t.Fatalf("catalog = %+v", c)
	}
	var s catalog.ResolvedStream
	getJSON(t, srv.URL+"/resolve/"+added.ID, http.StatusOK, &s)
	if s.URL != "https://jazz.example/live.mp3" {
		t.Errorf("stream = %+v", s)
	}

	if resp := do(t, http.MethodPost, srv.URL+"/entries/"+added.ID+"/disable", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("disable status = %d", resp.StatusCode)
	}
	getJSON(t, srv.URL+"/channels", http.StatusOK, &c)
	if len(c.Entries) != 0 {
		t.Errorf("disabled entry still listed: %+v", c.Entries)
	}
	getJSON(t, srv.URL+"/resolve/"+added.ID, http.StatusNotFound, nil)

	var list []catalog.ConfigEntry
	getJSON(t, srv.URL+"/entries", http.StatusOK, &list)
	if len(list) != 1 || !list[0].Disabled {
		t.Errorf("entries = %+v", list)
	}

	if resp := do(t, http.MethodPost, srv.URL+"/entries/"+added.ID+"/enable", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("enable status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/entries/"+added.ID, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/entries/"+added.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}

func TestEntries_rejectsBadInput(t *testing.T) {
	srv := entriesServer(t)
	for _, body := range []string{
		`not json`,
		`{"title":"x","url":"https://a","bogus":1}`,
		`{"title":"","url":"https://a.example/"}`,
		`{"title":"x","url":"file:///etc/passwd"}`,
	} {
		if resp := do(t, http.MethodPost, srv.URL+"/entries", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestEntries_routesAbsentWithoutStore(t *testing.T) {
	srv := staticServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/entries", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := staticServer(t)
	var h map[string]string
	getJSON(t, srv.URL+"/healthz", http.StatusOK, &h)
	if h["status"] != "ok" || h["source"] != "static" {
		t.Errorf("healthz = %v", h)
	}

	getJSON(t, srv.URL+"/channels", http.StatusOK, nil)
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "remote_playlists_catalog_build_total") {
		t.Errorf("metrics missing catalog build counter:\n%s", body)
	}
}

func TestResolve_redirectOnlyForListedPlaylistURLs(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:-1,Demo\nhttp://example.test/stream.m3u8\n"))
	}))
	defer upstream.Close()
	s := &Server{
		Builder: &source.Builder{Client: upstream.Client()},
		Descriptor: func(context.Context) (source.Descriptor, error) {
			return source.RemotePlaylist{URL: upstream.URL}, nil
		},
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/resolve?id=" + url.QueryEscape("http://example.test/stream.m3u8") + "&redirect=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "http://example.test/stream.m3u8" {
		t.Errorf("listed: status = %d Location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.Get(srv.URL + "/resolve?id=" + url.QueryEscape("https://attacker.example/phish") + "&redirect=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unlisted: status = %d, want 404", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		t.Errorf("unlisted: Location = %q", loc)
	}
}
