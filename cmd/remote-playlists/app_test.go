package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/config"
	"github.com/alanedwardes/remote-playlists/internal/entries"
	"github.com/alanedwardes/remote-playlists/internal/host"
	"github.com/alanedwardes/remote-playlists/internal/source"
)

func TestDescriptorFunc_static(t *testing.T) {
	os.Clearenv()
	cfg := config.Load()
	fn, err := descriptorFunc(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	d, err := fn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sl, ok := d.(source.StaticList)
	if !ok {
		t.Fatalf("descriptor = %T", d)
	}
	if len(sl.Channels) != 30 || sl.Channels[0].Identifier != "bbc_one_hd" {
		t.Errorf("reference table: %d channels, first %+v", len(sl.Channels), sl.Channels[0])
	}
}

func TestDescriptorFunc_staticOverride(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "ref.json")
	if err := os.WriteFile(path, []byte(`[{"id":"x","name":"X"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("REMOTE_PLAYLISTS_REFERENCE_FILE", path)
	fn, err := descriptorFunc(config.Load(), nil)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := fn(context.Background())
	if sl := d.(source.StaticList); len(sl.Channels) != 1 || sl.Channels[0].Name != "X" {
		t.Errorf("channels = %+v", sl.Channels)
	}
}

func TestDescriptorFunc_playlist(t *testing.T) {
	os.Clearenv()
	os.Setenv("REMOTE_PLAYLISTS_SOURCE", "playlist")
	os.Setenv("REMOTE_PLAYLISTS_PLAYLIST_URL", "http://iptv.example/a.m3u")
	os.Setenv("REMOTE_PLAYLISTS_MIME_TYPE", "video/mp2t")
	fn, err := descriptorFunc(config.Load(), nil)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := fn(context.Background())
	want := source.RemotePlaylist{URL: "http://iptv.example/a.m3u", MIMEType: "video/mp2t"}
	if d != want {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestDescriptorFunc_entriesReadsStoreEachCall(t *testing.T) {
	os.Clearenv()
	os.Setenv("REMOTE_PLAYLISTS_SOURCE", "entries")
	cfg := config.Load()
	if _, err := descriptorFunc(cfg, nil); err == nil {
		t.Fatal("expected error without a store")
	}
	store, err := entries.Open(filepath.Join(t.TempDir(), "e.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	fn, err := descriptorFunc(cfg, store)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	d, _ := fn(ctx)
	if n := len(d.(source.PerEntryConfig).Records); n != 0 {
		t.Fatalf("records = %d", n)
	}
	if _, err := store.Add(ctx, catalog.ConfigEntry{Title: "A", URL: "https://a.example/s.mp3"}); err != nil {
		t.Fatal(err)
	}
	d, _ = fn(ctx)
	if n := len(d.(source.PerEntryConfig).Records); n != 1 {
		t.Errorf("records after add = %d", n)
	}
}

func TestRunEntries(t *testing.T) {
	os.Clearenv()
	db := filepath.Join(t.TempDir(), "e.db")
	os.Setenv("REMOTE_PLAYLISTS_DB", db)
	cfg := config.Load()
	ctx := context.Background()

	newFlags := func() (*flag.FlagSet, entriesFlags) {
		fs := flag.NewFlagSet("entries", flag.ContinueOnError)
		return fs, entriesFlags{
			title: fs.String("title", "", ""),
			url:   fs.String("url", "", ""),
			icon:  fs.String("icon", "", ""),
			mime:  fs.String("mime", "", ""),
		}
	}
	fs, f := newFlags()
	if err := runEntries(ctx, cfg, fs, []string{"add", "-title", "Jazz", "-url", "https://jazz.example/live.mp3"}, f); err != nil {
		t.Fatal(err)
	}

	store, err := entries.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	list, err := store.List(ctx)
	store.Close()
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	id := list[0].ID

	fs, f = newFlags()
	if err := runEntries(ctx, cfg, fs, []string{"disable", id}, f); err != nil {
		t.Fatal(err)
	}
	fs, f = newFlags()
	if err := runEntries(ctx, cfg, fs, []string{"rm", id}, f); err != nil {
		t.Fatal(err)
	}
	fs, f = newFlags()
	if err := runEntries(ctx, cfg, fs, []string{"rm", id}, f); err == nil {
		t.Error("expected not-found error on second rm")
	}
	fs, f = newFlags()
	if err := runEntries(ctx, cfg, fs, []string{"frobnicate"}, f); err == nil {
		t.Error("expected error for unknown verb")
	}
}

func TestRunCheck_playlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:-1,One\nhttp://a/1\n"))
	}))
	defer srv.Close()
	os.Clearenv()
	os.Setenv("REMOTE_PLAYLISTS_SOURCE", "playlist")
	os.Setenv("REMOTE_PLAYLISTS_PLAYLIST_URL", srv.URL)
	os.Setenv("REMOTE_PLAYLISTS_UPSTREAM_RPS", "0")
	cfg := config.Load()
	if err := runCheck(context.Background(), cfg, newBuilder(cfg, nil), "", ""); err != nil {
		t.Fatal(err)
	}
}

func TestRunCheck_static(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.Write([]byte(`{"media":[{"kind":"video","type":"application/dash+xml","connection":[{"protocol":"https","transferFormat":"dash","href":"https://cdn/x.mpd"}]}]}`))
	}))
	defer srv.Close()
	os.Clearenv()
	os.Setenv("REMOTE_PLAYLISTS_MEDIASELECTOR_URL", srv.URL+"/mediaset/iptv-all")
	cfg := config.Load()
	if err := runCheck(context.Background(), cfg, newBuilder(cfg, nil), "", ""); err != nil {
		t.Fatal(err)
	}
	if got != "/mediaset/iptv-all/vpid/bbc_one_hd/format/json" {
		t.Errorf("probed path %q", got)
	}
}

func TestRunCheck_probesRunningHost(t *testing.T) {
	os.Clearenv()
	os.Setenv("REMOTE_PLAYLISTS_SOURCE", "entries")
	os.Setenv("REMOTE_PLAYLISTS_DB", filepath.Join(t.TempDir(), "e.db"))
	cfg := config.Load()

	store, err := entries.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	descriptor, err := descriptorFunc(cfg, store)
	if err != nil {
		t.Fatal(err)
	}
	h := &host.Server{Title: "Radio", Builder: newBuilder(cfg, nil), Descriptor: descriptor, Entries: store}
	running := httptest.NewServer(h.Handler())
	defer running.Close()

	if err := runCheck(context.Background(), cfg, newBuilder(cfg, nil), "", running.URL+"/"); err != nil {
		t.Fatalf("runCheck with live host: %v", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	if err := runCheck(context.Background(), cfg, newBuilder(cfg, nil), "", down.URL); err == nil {
		t.Error("expected error for unreachable host")
	}
	if err := runCheck(context.Background(), cfg, newBuilder(cfg, nil), "", "file:///tmp/x"); err == nil {
		t.Error("expected error for non-http host URL")
	}
}
