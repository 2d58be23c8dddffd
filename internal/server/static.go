package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// SPAHandler serves static files from a filesystem and falls back to
// index.html for any extensionless path that doesn't match a file, so
// client-side routes survive a reload. Missing files with an extension
// return 404.
type SPAHandler struct {
	fileServer http.Handler
	filesystem fs.FS
}

// NewSPAHandler serves fsys, which must hold index.html at its root.
func NewSPAHandler(fsys fs.FS) *SPAHandler {
	return &SPAHandler{
		fileServer: http.FileServer(http.FS(fsys)),
		filesystem: fsys,
	}
}

// NewDirHandler serves the built frontend in dir.
func NewDirHandler(dir string) (*SPAHandler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir: %s is not a directory", dir)
	}
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, fmt.Errorf("static dir: %s has no index.html: %w", dir, err)
	}
	return NewSPAHandler(fsys), nil
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if urlPath == "" || urlPath == "/" || urlPath == "/index.html" {
		h.serveIndex(w, r)
		return
	}

	filePath := strings.TrimPrefix(urlPath, "/")
	if info, err := fs.Stat(h.filesystem, filePath); err == nil && !info.IsDir() {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	// r.URL.Path is already decoded, so %2Ecss counts as an extension.
	if path.Ext(urlPath) != "" {
		http.NotFound(w, r)
		return
	}

	h.serveIndex(w, r)
}

// serveIndex writes index.html without letting the browser cache it, so a
// rebuilt bundle is picked up on the next load.
func (h *SPAHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	r2.URL.RawPath = ""
	h.fileServer.ServeHTTP(w, r2)
}
