// Package devproxy holds assets compiled into the devproxy binary.
package devproxy

import (
	"embed"
	"io/fs"
)

// WebFS contains the page served when no frontend is configured.
//
//go:embed web/placeholder
var WebFS embed.FS

// Placeholder returns the placeholder page rooted at its index.html.
func Placeholder() fs.FS {
	sub, err := fs.Sub(WebFS, "web/placeholder")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}
