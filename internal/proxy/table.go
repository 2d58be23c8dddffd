package proxy

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/rathix/devproxy/internal/config"
)

// Table is an ordered set of proxy handlers, longest prefix first.
type Table struct {
	handlers []*Handler
}

// NewTable compiles rules into handlers. Rules are expected to have passed
// config validation; any rule that fails to compile aborts the build.
func NewTable(rules []config.ProxyRule, opts Options) (*Table, error) {
	t := &Table{handlers: make([]*Handler, 0, len(rules))}
	seen := make(map[string]string, len(rules))
	for _, cr := range rules {
		rule, err := Compile(cr)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("rule %q: %w", cr.Name, err)
		}
		if other, dup := seen[rule.Prefix]; dup {
			t.Close()
			return nil, fmt.Errorf("rule %q: %w: prefix %q already used by %q", rule.Name, config.ErrInvalidRule, rule.Prefix, other)
		}
		seen[rule.Prefix] = rule.Name
		t.handlers = append(t.handlers, NewHandler(rule, opts))
	}
	sort.SliceStable(t.handlers, func(i, j int) bool {
		return len(t.handlers[i].rule.Prefix) > len(t.handlers[j].rule.Prefix)
	})
	return t, nil
}

// Rules lists the compiled rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.rule
	}
	return out
}

// Match returns the handler for the longest prefix matching path.
func (t *Table) Match(path string) (*Handler, bool) {
	for _, h := range t.handlers {
		if h.rule.Matches(path) {
			return h, true
		}
	}
	return nil, false
}

// HasRoot reports whether a rule claims every path.
func (t *Table) HasRoot() bool {
	for _, h := range t.handlers {
		if h.rule.Prefix == "/" {
			return true
		}
	}
	return false
}

// ServeHTTP dispatches to the matching handler, or answers 404.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.WithFallback(nil).ServeHTTP(w, r)
}

// WithFallback returns a handler that dispatches to the matching rule and
// sends every other path to fallback. A nil fallback answers 404.
func (t *Table) WithFallback(fallback http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := t.Match(r.URL.Path); ok {
			h.ServeHTTP(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})
}

// Mount registers a single catch-all on r. Prefixes are never turned into
// router patterns; matching is done by Match alone. Routes registered on r
// with a more specific pattern still take precedence.
func (t *Table) Mount(r chi.Router, fallback http.Handler) {
	r.Handle("/*", t.WithFallback(fallback))
}

// Close releases idle upstream connections of every handler.
func (t *Table) Close() {
	for _, h := range t.handlers {
		h.Close()
	}
}
