// Package proxy forwards requests whose path starts with a rule's prefix to
// that rule's target origin, optionally stripping the prefix first.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rathix/devproxy/internal/config"
)

// Rule is a validated proxy rule ready to serve traffic.
type Rule struct {
	Name         string
	Prefix       string
	Target       *url.URL
	Rewrite      bool
	ChangeOrigin bool
	Timeout      time.Duration
}

// Compile normalizes a config rule and parses its target.
func Compile(r config.ProxyRule) (Rule, error) {
	nr, err := config.NormalizeRule(r)
	if err != nil {
		return Rule{}, err
	}
	target, err := url.Parse(nr.Target)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: target %q: %v", config.ErrInvalidRule, nr.Target, err)
	}
	var timeout time.Duration
	if nr.Timeout != "" {
		// NormalizeRule already rejected unparsable values.
		timeout, _ = time.ParseDuration(nr.Timeout)
	}
	return Rule{
		Name:         nr.Name,
		Prefix:       nr.Prefix,
		Target:       target,
		Rewrite:      nr.Rewrite,
		ChangeOrigin: nr.ChangeOrigin,
		Timeout:      timeout,
	}, nil
}

// Matches reports whether path falls under the rule's prefix. This is
// stricter than a plain string prefix test: matching stops at segment
// boundaries, so "/api" matches "/api" and "/api/x" but "/apiary" is left to
// the frontend.
func (r Rule) Matches(path string) bool {
	return matchPrefix(path, r.Prefix)
}

func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// RewritePath returns the path sent upstream. Without strip the path is
// forwarded unchanged. With strip the leading prefix is removed and the
// result always starts with '/', so "/api/foo" becomes "/foo" and "/api"
// becomes "/".
func RewritePath(path, prefix string, strip bool) string {
	if !strip || prefix == "/" || !matchPrefix(path, prefix) {
		return path
	}
	rest := path[len(prefix):]
	if rest == "" {
		return "/"
	}
	return rest
}

// joinPath prefixes p with the target's base path, if any.
func joinPath(base, p string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return p
	}
	return base + p
}
