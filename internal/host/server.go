// Package host is the reference HTTP host: it exposes the active catalog,
// resolves identifiers and manages per-entry configuration records.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanedwardes/remote-playlists/internal/catalog"
	"github.com/alanedwardes/remote-playlists/internal/entries"
	"github.com/alanedwardes/remote-playlists/internal/safeurl"
	"github.com/alanedwardes/remote-playlists/internal/source"
)

const maxRequestBody = 64 << 10

// EntryStore is the subset of *entries.Store the host needs.
type EntryStore interface {
	List(ctx context.Context) ([]catalog.ConfigEntry, error)
	Add(ctx context.Context, e catalog.ConfigEntry) (catalog.ConfigEntry, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	Delete(ctx context.Context, id string) error
}

// DescriptorFunc returns the active source. It runs per request so that
// per-entry records edited through the API show up immediately.
type DescriptorFunc func(ctx context.Context) (source.Descriptor, error)

type Server struct {
	Addr       string
	Title      string
	IconURL    string
	Builder    *source.Builder
	Descriptor DescriptorFunc
	Entries    EntryStore // nil disables the /entries routes
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.serveHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/channels", s.serveChannels).Methods("GET")
	r.HandleFunc("/resolve", s.serveResolve).Methods("GET").Queries("id", "{id}")
	r.HandleFunc("/resolve/{id}", s.serveResolve).Methods("GET")
	if s.Entries != nil {
		r.HandleFunc("/entries", s.listEntries).Methods("GET")
		r.HandleFunc("/entries", s.addEntry).Methods("POST")
		r.HandleFunc("/entries/{id}/disable", s.setDisabled(true)).Methods("POST")
		r.HandleFunc("/entries/{id}/enable", s.setDisabled(false)).Methods("POST")
		r.HandleFunc("/entries/{id}", s.deleteEntry).Methods("DELETE")
	}
	return logRequests(r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	name := "none"
	if d, err := s.Descriptor(r.Context()); err == nil && d != nil {
		name = d.Name()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "source": name})
}

func (s *Server) serveChannels(w http.ResponseWriter, r *http.Request) {
	d, err := s.Descriptor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.Builder.Browse(r.Context(), d, s.Title, s.IconURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) serveResolve(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		id = mux.Vars(r)["id"]
	}
	d, err := s.Descriptor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	stream, err := s.Builder.Resolve(r.Context(), d, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		if err := s.requireListed(r.Context(), d, id); err != nil {
			writeError(w, err)
			return
		}
		http.Redirect(w, r, stream.URL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// requireListed rejects playlist identifiers that the current playlist does
// not contain. Other sources resolve only ids they already know.
func (s *Server) requireListed(ctx context.Context, d source.Descriptor, id string) error {
	if _, ok := d.(source.RemotePlaylist); !ok {
		return nil
	}
	list, err := s.Builder.Build(ctx, d)
	if err != nil {
		return err
	}
	for _, e := range list {
		if e.Identifier == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not in the playlist", source.ErrUnknownIdentifier, safeurl.Redact(id))
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	list, err := s.Entries.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	var in catalog.ConfigEntry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	in.ID = ""
	e, err := s.Entries.Add(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Config entry added: %s %q", e.ID, e.Title)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) setDisabled(disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.Entries.SetDisabled(r.Context(), id, disabled); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Entries.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Config entry deleted: %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps core and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entries.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entries.ErrInvalidEntry):
		return http.StatusBadRequest
	}
	switch source.Classify(err) {
	case source.OutcomeUnavailable:
		return http.StatusBadGateway
	case source.OutcomeNoPlayableStream:
		return http.StatusNotFound
	case source.OutcomeCanceled:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Printf("http error %d: %v", status, err)
	}
	writeJSON(w, status, map[string]string{
		"error":   err.Error(),
		"outcome": string(source.Classify(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
