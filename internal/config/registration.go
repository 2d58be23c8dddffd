package config

import (
	"strings"

	"github.com/rathix/devproxy/internal/state"
)

// StateUpdater is the interface for modifying upstream state.
// Defined at the consumer per Go convention.
type StateUpdater interface {
	AddOrUpdate(u state.Upstream)
	Remove(name string)
	Update(name string, fn func(*state.Upstream))
	Get(name string) (state.Upstream, bool)
}

// RegisterUpstreams adds one upstream per rule to the store.
func RegisterUpstreams(store StateUpdater, rules []ProxyRule) {
	for _, r := range rules {
		store.AddOrUpdate(ruleToUpstream(r))
	}
}

// ReconcileOnReload diffs old vs new rules and applies additions, removals, and updates.
// Probe results are kept for upstreams whose target did not change.
func ReconcileOnReload(store StateUpdater, oldRules, newRules []ProxyRule) (added, removed, updated int) {
	oldByName := make(map[string]ProxyRule, len(oldRules))
	for _, r := range oldRules {
		oldByName[r.Name] = r
	}
	newByName := make(map[string]ProxyRule, len(newRules))
	for _, r := range newRules {
		newByName[r.Name] = r
	}

	for name, r := range newByName {
		if _, exists := oldByName[name]; !exists {
			store.AddOrUpdate(ruleToUpstream(r))
			added++
		}
	}

	for name := range oldByName {
		if _, exists := newByName[name]; !exists {
			store.Remove(name)
			removed++
		}
	}

	for name, newRule := range newByName {
		oldRule, exists := oldByName[name]
		if !exists || oldRule == newRule {
			continue
		}
		targetChanged := oldRule.Target != newRule.Target || oldRule.HealthPath != newRule.HealthPath
		store.Update(name, func(u *state.Upstream) {
			u.Prefix = newRule.Prefix
			u.Target = newRule.Target
			u.Rewrite = newRule.Rewrite
			u.HealthURL = HealthURL(newRule)
			if targetChanged {
				u.Status = state.StatusUnknown
				u.HTTPCode = nil
				u.ResponseTimeMs = nil
				u.ErrorSnippet = nil
			}
		})
		updated++
	}

	return added, removed, updated
}

// HealthURL is the URL probed to decide whether a rule's target is reachable.
func HealthURL(r ProxyRule) string {
	target := strings.TrimRight(r.Target, "/")
	if r.HealthPath == "" {
		return target + "/"
	}
	return target + r.HealthPath
}

func ruleToUpstream(r ProxyRule) state.Upstream {
	return state.Upstream{
		Name:      r.Name,
		Prefix:    r.Prefix,
		Target:    r.Target,
		Rewrite:   r.Rewrite,
		HealthURL: HealthURL(r),
		Status:    state.StatusUnknown,
	}
}
