package server

import (
	"net/http"
	"strings"
)

// NormalizeBasePath ensures the base path starts and ends with '/'.
func NormalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath = basePath + "/"
	}
	return basePath
}

// BasePathHandler strips a base path from incoming requests so the server can
// be reached both directly and from behind a reverse proxy that mounts it
// under a sub-path. Requests outside the base path are forwarded unchanged.
type BasePathHandler struct {
	basePath string
	inner    http.Handler
}

// NewBasePathHandler wraps inner. A base path of "/" returns inner as-is.
func NewBasePathHandler(basePath string, inner http.Handler) http.Handler {
	bp := NormalizeBasePath(basePath)
	if bp == "/" {
		return inner
	}
	return &BasePathHandler{
		basePath: bp,
		inner:    inner,
	}
}

// BasePath returns the normalized base path, with trailing slash.
func (h *BasePathHandler) BasePath() string {
	return h.basePath
}

func (h *BasePathHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stripped, ok := stripBasePath(r.URL.Path, h.basePath)
	if !ok {
		// Direct access.
		h.inner.ServeHTTP(w, r)
		return
	}

	r2 := r.Clone(r.Context())
	r2.URL.Path = stripped
	r2.URL.RawPath = ""
	if r.URL.RawPath != "" {
		if raw, ok := stripBasePath(r.URL.RawPath, h.basePath); ok {
			r2.URL.RawPath = raw
		}
	}
	h.inner.ServeHTTP(w, r2)
}

// stripBasePath removes basePath (with trailing slash) from p. The bare base
// path without its trailing slash maps to "/".
func stripBasePath(p, basePath string) (string, bool) {
	if strings.HasPrefix(p, basePath) {
		return "/" + strings.TrimPrefix(p, basePath), true
	}
	if p+"/" == basePath {
		return "/", true
	}
	return p, false
}
