package config

import (
	"fmt"
	"sort"
)

// DefaultProfile is selected when neither the config file nor the command
// line names one.
const DefaultProfile = "lan"

// builtinProfiles are the two proxy setups the frontend has been developed
// against: a backend on another machine on the LAN that serves routes without
// the /api prefix, and a backend on the same machine that serves them with it.
var builtinProfiles = map[string][]ProxyRule{
	"lan": {{
		Name:         "api",
		Prefix:       "/api",
		Target:       "http://192.168.1.8:5000",
		Rewrite:      true,
		ChangeOrigin: true,
	}},
	"local": {{
		Name:         "api",
		Prefix:       "/api",
		Target:       "http://localhost:5000",
		Rewrite:      false,
		ChangeOrigin: true,
	}},
}

// BuiltinProfile returns a copy of the named built-in profile.
func BuiltinProfile(name string) ([]ProxyRule, bool) {
	rules, ok := builtinProfiles[name]
	if !ok {
		return nil, false
	}
	return append([]ProxyRule(nil), rules...), true
}

// ProfileNames lists built-in and file-declared profiles, sorted.
func ProfileNames(cfg *Config) []string {
	seen := make(map[string]struct{}, len(builtinProfiles))
	for name := range builtinProfiles {
		seen[name] = struct{}{}
	}
	if cfg != nil {
		for name := range cfg.Profiles {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveRules picks the active rule set. Explicit rules in the config file
// win; otherwise the named profile is used, with file profiles shadowing
// built-ins of the same name. An empty profile means cfg.Profile, then
// DefaultProfile. Returned rules are normalized.
func ResolveRules(cfg *Config, profile string) ([]ProxyRule, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.Rules) > 0 {
		rules, errs := normalizeRules("rules", cfg.Rules)
		if len(rules) == 0 && len(errs) > 0 {
			return nil, errs[0]
		}
		return rules, nil
	}

	if profile == "" {
		profile = cfg.Profile
	}
	if profile == "" {
		profile = DefaultProfile
	}

	rules, ok := cfg.Profiles[profile]
	if !ok {
		rules, ok = BuiltinProfile(profile)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProfile, profile, ProfileNames(cfg))
	}

	normalized, errs := normalizeRules("profiles."+profile, rules)
	if len(normalized) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return normalized, nil
}
