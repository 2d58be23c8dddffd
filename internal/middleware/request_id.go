package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rathix/devproxy/internal/log"
)

// HeaderRequestID carries the correlation ID in both directions. The proxy
// forwards it to the backend unchanged.
const HeaderRequestID = "X-Request-ID"

// RequestID adds a unique ID to every request, reusing one sent by the client.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.New().String()
			r.Header.Set(HeaderRequestID, reqID)
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
