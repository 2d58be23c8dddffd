package apibase

import (
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unset", map[string]string{}, "/api"},
		{"empty", map[string]string{EnvVar: ""}, "/api"},
		{"origin override", map[string]string{EnvVar: "https://api.example.com"}, "https://api.example.com"},
		{"path override", map[string]string{EnvVar: "/backend"}, "/backend"},
		{"trailing slash kept", map[string]string{EnvVar: "http://192.168.1.8:5000/"}, "http://192.168.1.8:5000/"},
		{"whitespace kept", map[string]string{EnvVar: " /api "}, " /api "},
		{"other vars ignored", map[string]string{"API_URL": "http://x"}, "/api"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromMap(tc.vars); got != tc.want {
				t.Errorf("FromMap(%v) = %q, want %q", tc.vars, got, tc.want)
			}
		})
	}
}

func TestResolveNilLookup(t *testing.T) {
	if got := Resolve(nil); got != Default {
		t.Errorf("Resolve(nil) = %q, want %q", got, Default)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	if got := FromEnv(); got != "/api" {
		t.Errorf("empty env: got %q, want /api", got)
	}

	t.Setenv(EnvVar, "https://prod.example.com/api")
	if got := FromEnv(); got != "https://prod.example.com/api" {
		t.Errorf("set env: got %q, want override", got)
	}
}

func TestChainPrefersFirstNonEmpty(t *testing.T) {
	process := func(key string) (string, bool) { return "", true }
	file := func(key string) (string, bool) {
		if key == EnvVar {
			return "http://192.168.1.8:5000", true
		}
		return "", false
	}

	if got := Resolve(Chain(process, file)); got != "http://192.168.1.8:5000" {
		t.Errorf("empty process value should fall through to file: got %q", got)
	}

	process = func(key string) (string, bool) { return "/override", true }
	if got := Resolve(Chain(process, file)); got != "/override" {
		t.Errorf("process value should win: got %q", got)
	}

	if got := Resolve(Chain(nil, nil)); got != Default {
		t.Errorf("no values: got %q, want %q", got, Default)
	}
}
