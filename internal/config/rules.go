package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultPrefix is the path prefix a rule matches when none is given.
const DefaultPrefix = "/api"

var (
	// ErrInvalidRule marks a proxy rule that failed validation.
	ErrInvalidRule = errors.New("invalid proxy rule")

	// ErrUnknownProfile is returned when a requested profile is neither
	// built in nor declared in the config file.
	ErrUnknownProfile = errors.New("unknown profile")
)

// NormalizePrefix ensures prefix starts with '/' and has no trailing '/'.
// An empty prefix becomes DefaultPrefix.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/"
	}
	return prefix
}

// NormalizeTarget turns a bare host:port into an http origin and checks that
// the result is an absolute http(s) URL with a host.
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("required field missing")
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", target)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// NormalizeRule returns a copy of r with prefix, target and name normalized.
func NormalizeRule(r ProxyRule) (ProxyRule, error) {
	r.Prefix = NormalizePrefix(r.Prefix)
	if strings.ContainsAny(r.Prefix, "*{}") {
		return ProxyRule{}, fmt.Errorf("%w: prefix %q: must be a literal path, not a pattern", ErrInvalidRule, r.Prefix)
	}

	target, err := NormalizeTarget(r.Target)
	if err != nil {
		return ProxyRule{}, fmt.Errorf("%w: target: %v", ErrInvalidRule, err)
	}
	r.Target = target

	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return ProxyRule{}, fmt.Errorf("%w: timeout %q: %v", ErrInvalidRule, r.Timeout, err)
		}
		if d <= 0 {
			return ProxyRule{}, fmt.Errorf("%w: timeout must be positive, got %q", ErrInvalidRule, r.Timeout)
		}
	}

	if r.HealthPath != "" && !strings.HasPrefix(r.HealthPath, "/") {
		r.HealthPath = "/" + r.HealthPath
	}

	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = strings.TrimPrefix(r.Prefix, "/")
		if r.Name == "" {
			r.Name = "root"
		}
	}
	return r, nil
}

// normalizeRules validates every rule, dropping invalid ones and duplicates
// by prefix. field names the config key used in error messages.
func normalizeRules(field string, rules []ProxyRule) ([]ProxyRule, []error) {
	var errs []error
	valid := make([]ProxyRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		nr, err := NormalizeRule(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", field, i, err))
			continue
		}
		if _, dup := seen[nr.Prefix]; dup {
			errs = append(errs, fmt.Errorf("%s[%d]: %w: duplicate prefix %q", field, i, ErrInvalidRule, nr.Prefix))
			continue
		}
		seen[nr.Prefix] = struct{}{}
		valid = append(valid, nr)
	}
	return valid, errs
}
