package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/log"
)

// Logging writes one access log line per request. 5xx responses log at
// warn, everything else at info.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		logger := log.FromContext(r.Context(), "http")
		var evt *zerolog.Event
		if status >= http.StatusInternalServerError {
			evt = logger.Warn()
		} else {
			evt = logger.Info()
		}
		evt.Str(log.FieldEvent, "http.request").
			Str(log.FieldMethod, r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, status).
			Int("bytes", ww.BytesWritten()).
			Int64(log.FieldDurationMS, time.Since(start).Milliseconds()).
			Str(log.FieldRemoteAddr, r.RemoteAddr).
			Msg("request handled")
	})
}
