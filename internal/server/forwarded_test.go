package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForwardedHeaders(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		proto      string
		wantAddr   string
		wantScheme string
		wantXFF    string
	}{
		{
			name:       "no headers",
			remoteAddr: "192.168.1.20:51000",
			wantAddr:   "192.168.1.20:51000",
		},
		{
			name:       "single client",
			remoteAddr: "127.0.0.1:40000",
			xff:        "192.168.1.42",
			proto:      "https",
			wantAddr:   "192.168.1.42:40000",
			wantScheme: "https",
		},
		{
			name:       "chain keeps leftmost",
			remoteAddr: "127.0.0.1:40000",
			xff:        "10.0.0.7, 172.16.0.1",
			wantAddr:   "10.0.0.7:40000",
		},
		{
			name:       "ipv6 client",
			remoteAddr: "127.0.0.1:40000",
			xff:        "fd00::12",
			wantAddr:   "[fd00::12]:40000",
		},
		{
			name:       "garbage ignored",
			remoteAddr: "127.0.0.1:40000",
			xff:        "not-an-ip",
			proto:      "gopher",
			wantAddr:   "127.0.0.1:40000",
			wantXFF:    "not-an-ip",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotAddr, gotScheme, gotXFF string
			h := ForwardedHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAddr = r.RemoteAddr
				gotScheme = r.URL.Scheme
				gotXFF = r.Header.Get("X-Forwarded-For")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/calculate", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if gotAddr != tc.wantAddr {
				t.Errorf("RemoteAddr = %q, want %q", gotAddr, tc.wantAddr)
			}
			if gotScheme != tc.wantScheme {
				t.Errorf("Scheme = %q, want %q", gotScheme, tc.wantScheme)
			}
			if gotXFF != tc.wantXFF {
				t.Errorf("X-Forwarded-For = %q, want %q", gotXFF, tc.wantXFF)
			}
		})
	}
}
