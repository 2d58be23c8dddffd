package server

import (
	"net"
	"net/http"
	"strings"
)

// ForwardedHeaders trusts X-Forwarded-For and X-Forwarded-Proto set by a
// reverse proxy in front of devproxy. The client address becomes the leftmost
// X-Forwarded-For entry, so access logs, rate limiting and the headers
// forwarded upstream see the browser rather than the proxy. Only enable it
// when such a proxy exists; otherwise clients can spoof their address.
func ForwardedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			port := "0"
			if _, p, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				port = p
			}
			r.RemoteAddr = net.JoinHostPort(ip, port)
			// Consumed here. The proxy handler derives a fresh one from RemoteAddr.
			r.Header.Del("X-Forwarded-For")
		}
		if proto := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); proto == "http" || proto == "https" {
			r.URL.Scheme = proto
		}
		next.ServeHTTP(w, r)
	})
}

func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	ip := net.ParseIP(strings.TrimSpace(first))
	if ip == nil {
		return ""
	}
	return ip.String()
}
