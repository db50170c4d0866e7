package host

import (
	"log"
	"net/http"
	"time"

	"github.com/alanedwardes/remote-playlists/internal/safeurl"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// logRequests logs one line per request. Query strings are redacted since
// resolve requests may carry provider URLs with credentials.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, safeurl.Redact(r.URL.RequestURI()), status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr,
		)
	})
}
