package devproxy

import (
	"io/fs"
	"strings"
	"testing"
)

func TestWebFSContainsPlaceholder(t *testing.T) {
	_, err := fs.Stat(WebFS, "web/placeholder/index.html")
	if err != nil {
		t.Fatalf("expected web/placeholder/index.html in embedded FS, got error: %v", err)
	}
}

func TestPlaceholderRootedAtIndex(t *testing.T) {
	data, err := fs.ReadFile(Placeholder(), "index.html")
	if err != nil {
		t.Fatalf("expected index.html in placeholder FS, got error: %v", err)
	}
	// The page loads its runtime config relative to the base path.
	if !strings.Contains(string(data), `src="__devproxy/env.js"`) {
		t.Error("placeholder page must load __devproxy/env.js")
	}
}
