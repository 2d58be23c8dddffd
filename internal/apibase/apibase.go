// Package apibase resolves the base URL the client application prefixes to
// every API call.
package apibase

import "os"

const (
	// EnvVar is the externally supplied override.
	EnvVar = "VITE_API_URL"

	// Default is used when the override is absent or empty. It matches the
	// prefix the dev proxy forwards, so relative calls go through the proxy.
	Default = "/api"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Resolve returns the override when it is set to a non-empty value and
// Default otherwise. The override is returned as-is.
func Resolve(lookup LookupFunc) string {
	if lookup == nil {
		return Default
	}
	if v, ok := lookup(EnvVar); ok && v != "" {
		return v
	}
	return Default
}

// FromEnv resolves the base URL from the process environment.
func FromEnv() string {
	return Resolve(os.LookupEnv)
}

// FromMap resolves the base URL from an explicit set of variables.
func FromMap(vars map[string]string) string {
	return Resolve(MapLookup(vars))
}

// MapLookup adapts a variable map, such as the env section of a config file,
// to a LookupFunc.
func MapLookup(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// Chain returns a LookupFunc that consults each lookup in order and reports
// the first non-empty value. It lets the process environment shadow values
// declared in a config file.
func Chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}
