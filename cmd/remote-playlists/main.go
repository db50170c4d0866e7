package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/config"
	"github.com/alanedwardes/remote-playlists/internal/entries"
	"github.com/alanedwardes/remote-playlists/internal/health"
	"github.com/alanedwardes/remote-playlists/internal/host"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
	"github.com/alanedwardes/remote-playlists/internal/source"
)

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[remote-playlists] ")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listJSON := listCmd.Bool("json", false, "Print the catalog as JSON")
	listVerbose := listCmd.Bool("v", false, "Log every malformed playlist record")
	listOut := listCmd.String("o", "", "Also save the catalog snapshot to this JSON file")
	listIn := listCmd.String("i", "", "Print a saved catalog snapshot instead of building one")

	resolveCmd := flag.NewFlagSet("resolve", flag.ExitOnError)
	resolveJSON := resolveCmd.Bool("json", false, "Print the resolved stream as JSON")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: REMOTE_PLAYLISTS_ADDR)")

	entriesCmd := flag.NewFlagSet("entries", flag.ExitOnError)
	entriesTitle := entriesCmd.String("title", "", "add: entry title")
	entriesURL := entriesCmd.String("url", "", "add: playback URL")
	entriesIcon := entriesCmd.String("icon", "", "add: icon URL")
	entriesMIME := entriesCmd.String("mime", "", "add: MIME type (default: guessed from URL)")

	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkID := checkCmd.String("id", "", "Stream id to probe for the static source (default: first reference channel)")
	checkTimeout := checkCmd.Duration("timeout", 30*time.Second, "Overall timeout")
	checkHost := checkCmd.String("host", "", "Also probe a running host at this base URL (e.g. http://localhost:8080)")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <list|resolve|serve|entries|check> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  list     Build and print the catalog of the configured source\n")
		fmt.Fprintf(os.Stderr, "  resolve  Resolve one catalog identifier: resolve [-json] <id>\n")
		fmt.Fprintf(os.Stderr, "  serve    Run the HTTP host (channels, resolve, entries, healthz, metrics)\n")
		fmt.Fprintf(os.Stderr, "  entries  Manage config entries: entries <add|list|disable|enable|rm> [flags] [id]\n")
		fmt.Fprintf(os.Stderr, "  check    Health-check the configured playlist or media selector\n")
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Printf("Config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "list":
		_ = listCmd.Parse(os.Args[2:])
		var onDrop func(int, error)
		if *listVerbose {
			onDrop = func(line int, err error) { log.Printf("playlist line %d: %v", line, err) }
		}
		var c *catalog.Catalog
		if *listIn != "" {
			loaded, err := catalog.Load(*listIn)
			if err != nil {
				log.Printf("Load catalog %s: %v", *listIn, err)
				os.Exit(1)
			}
			c = loaded
		} else {
			b := newBuilder(cfg, onDrop)
			store := openStoreIfNeeded(cfg)
			if store != nil {
				defer store.Close()
			}
			built, err := browse(ctx, cfg, b, store)
			if err != nil {
				log.Printf("List failed (%s): %v", source.Classify(err), err)
				os.Exit(1)
			}
			c = built
		}
		if *listOut != "" {
			if err := c.Save(*listOut); err != nil {
				log.Printf("Save catalog failed: %v", err)
				os.Exit(1)
			}
			log.Printf("Saved catalog to %s", *listOut)
		}
		if *listJSON {
			printJSON(c)
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "NAME\tGROUP\tIDENTIFIER\n")
		for _, e := range c.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.GroupTitle, safeurl.Redact(e.Identifier))
		}
		tw.Flush()
		log.Printf("%s: %d entries", c.Title, len(c.Entries))

	case "resolve":
		_ = resolveCmd.Parse(os.Args[2:])
		if resolveCmd.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "Usage: %s resolve [-json] <id>\n", os.Args[0])
			os.Exit(1)
		}
		b := newBuilder(cfg, nil)
		store := openStoreIfNeeded(cfg)
		if store != nil {
			defer store.Close()
		}
		descriptor, err := descriptorFunc(cfg, storeOrNil(store))
		if err != nil {
			log.Printf("Source: %v", err)
			os.Exit(1)
		}
		d, err := descriptor(ctx)
		if err != nil {
			log.Printf("Source: %v", err)
			os.Exit(1)
		}
		s, err := b.Resolve(ctx, d, resolveCmd.Arg(0))
		if err != nil {
			log.Printf("Resolve failed (%s): %v", source.Classify(err), err)
			os.Exit(1)
		}
		if *resolveJSON {
			printJSON(s)
			return
		}
		fmt.Printf("%s\t%s\n", s.URL, s.MIMEType)

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		addr := cfg.Addr
		if *serveAddr != "" {
			addr = *serveAddr
		}
		b := newBuilder(cfg, nil)
		store, err := entries.Open(cfg.DBPath)
		if err != nil {
			log.Printf("Entries DB %s: %v", cfg.DBPath, err)
			os.Exit(1)
		}
		defer store.Close()
		descriptor, err := descriptorFunc(cfg, store)
		if err != nil {
			log.Printf("Source: %v", err)
			os.Exit(1)
		}
		srv := &host.Server{
			Addr:       addr,
			Title:      cfg.Title,
			IconURL:    cfg.IconURL,
			Builder:    b,
			Descriptor: descriptor,
			Entries:    store,
		}
		log.Printf("Serving %s source %q (upstream %.1f rps/host, body cap %d bytes)", cfg.Source, cfg.Title, cfg.UpstreamRPS, cfg.MaxBodyBytes)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Serve failed: %v", err)
			os.Exit(1)
		}

	case "entries":
		if err := runEntries(ctx, cfg, entriesCmd, os.Args[2:], entriesFlags{
			title: entriesTitle, url: entriesURL, icon: entriesIcon, mime: entriesMIME,
		}); err != nil {
			log.Printf("Entries: %v", err)
			os.Exit(1)
		}

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		cctx, cancel := context.WithTimeout(ctx, *checkTimeout)
		defer cancel()
		b := newBuilder(cfg, nil)
		if err := runCheck(cctx, cfg, b, *checkID, *checkHost); err != nil {
			log.Printf("Check failed: %v", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func browse(ctx context.Context, cfg *config.Config, b *source.Builder, store *entries.Store) (*catalog.Catalog, error) {
	descriptor, err := descriptorFunc(cfg, storeOrNil(store))
	if err != nil {
		return nil, err
	}
	d, err := descriptor(ctx)
	if err != nil {
		return nil, err
	}
	return b.Browse(ctx, d, cfg.Title, cfg.IconURL)
}

// storeOrNil keeps a nil *entries.Store from becoming a non-nil interface.
func storeOrNil(s *entries.Store) host.EntryStore {
	if s == nil {
		return nil
	}
	return s
}

func openStoreIfNeeded(cfg *config.Config) *entries.Store {
	if cfg.Source != config.SourceEntries {
		return nil
	}
	store, err := entries.Open(cfg.DBPath)
	if err != nil {
		log.Printf("Entries DB %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	return store
}

type entriesFlags struct {
	title, url, icon, mime *string
}

func runEntries(ctx context.Context, cfg *config.Config, fs *flag.FlagSet, args []string, f entriesFlags) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: entries <add|list|disable|enable|rm> [flags] [id]")
	}
	verb := args[0]
	_ = fs.Parse(args[1:])
	store, err := entries.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch verb {
	case "add":
		e, err := store.Add(ctx, catalog.ConfigEntry{Title: *f.title, URL: *f.url, IconURL: *f.icon, MIMEType: *f.mime})
		if err != nil {
			return err
		}
		fmt.Println(e.ID)
	case "list":
		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\tTITLE\tENABLED\tURL\n")
		for _, e := range list {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.ID, e.Title, !e.Disabled, safeurl.Redact(e.URL))
		}
		return tw.Flush()
	case "disable", "enable", "rm":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: entries %s <id>", verb)
		}
		id := fs.Arg(0)
		if verb == "rm" {
			return store.Delete(ctx, id)
		}
		return store.SetDisabled(ctx, id, verb == "disable")
	default:
		return fmt.Errorf("unknown entries command %q", verb)
	}
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config, b *source.Builder, streamID, hostURL string) error {
	if err := checkUpstream(ctx, cfg, b, streamID); err != nil {
		return err
	}
	if hostURL == "" {
		return nil
	}
	if err := safeurl.Check(hostURL); err != nil {
		return fmt.Errorf("-host: %w", err)
	}
	if err := health.CheckEndpoints(ctx, strings.TrimSuffix(hostURL, "/")); err != nil {
		return fmt.Errorf("host %s: %w", hostURL, err)
	}
	log.Printf("Host OK: %s", hostURL)
	return nil
}

func checkUpstream(ctx context.Context, cfg *config.Config, b *source.Builder, streamID string) error {
	switch cfg.Source {
	case config.SourcePlaylist:
		n, err := health.CheckPlaylist(ctx, b.Client, cfg.PlaylistURL, cfg.MaxBodyBytes)
		if err != nil {
			return err
		}
		log.Printf("Playlist OK: %d entries at %s", n, safeurl.Redact(cfg.PlaylistURL))
	case config.SourceStatic:
		if streamID == "" {
			chans, err := referenceChannels(cfg)
			if err != nil {
				return err
			}
			if len(chans) == 0 {
				return fmt.Errorf("reference table is empty")
			}
			streamID = chans[0].Identifier
		}
		s, err := health.CheckMediaSelector(ctx, b.Resolver, streamID)
		if err != nil {
			return err
		}
		log.Printf("Media selector OK: %s -> %s (%s)", streamID, safeurl.Redact(s.URL), s.MIMEType)
	case config.SourceEntries:
		store, err := entries.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		log.Printf("Entries OK: %d records in %s", len(list), cfg.DBPath)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode: %v", err)
		os.Exit(1)
	}
}
