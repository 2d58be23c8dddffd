package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/middleware"
	"github.com/rathix/devproxy/internal/state"
)

var placeholderFS = fstest.MapFS{
	"index.html": {Data: []byte("<html>devproxy placeholder</html>")},
}

// backendEcho answers with the request URI it received, like the Flask
// backend's routes would.
func backendEcho(t *testing.T) *httptest.Server {
	t.Helper()
	return startLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend-Host", r.Host)
		io.WriteString(w, "backend:"+r.URL.RequestURI())
	}))
}

func buildRoutes(t *testing.T, d Deps) *Routes {
	t.Helper()
	if d.Placeholder == nil {
		d.Placeholder = placeholderFS
	}
	rt, err := NewRoutes(d)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_RewritingRuleStripsPrefix(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "api", Prefix: "/api", Target: backend.URL, Rewrite: true, ChangeOrigin: true},
	}})

	rec := get(t, rt, "/api/recette?id=3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backend:/recette?id=3", rec.Body.String())
	assert.Equal(t, strings.TrimPrefix(backend.URL, "http://"), rec.Header().Get("X-Backend-Host"))
}

func TestRoutes_PreservingRuleKeepsPrefix(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "api", Prefix: "/api", Target: backend.URL, Rewrite: false},
	}})

	rec := get(t, rt, "/api/calculate")
	assert.Equal(t, "backend:/api/calculate", rec.Body.String())

	rec = get(t, rt, "/api")
	assert.Equal(t, "backend:/api", rec.Body.String())
}

func TestRoutes_UnmatchedPathsReachFrontend(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "api", Prefix: "/api", Target: backend.URL, Rewrite: true},
	}})
	assert.Equal(t, FrontendPlaceholder, rt.FrontendMode())

	for _, p := range []string{"/", "/recette/12", "/apiary"} {
		rec := get(t, rt, p)
		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.Contains(t, rec.Body.String(), "devproxy placeholder", p)
	}
}

func TestRoutes_EnvEndpoints(t *testing.T) {
	rt := buildRoutes(t, Deps{APIBaseURL: func() string { return "http://192.168.1.8:5000" }})

	rec := get(t, rt, EnvJSPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, `window.__APP_CONFIG__ = {"apiBaseUrl":"http://192.168.1.8:5000"};`+"\n", rec.Body.String())

	rec = get(t, rt, EnvJSONPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	var env RuntimeEnv
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "http://192.168.1.8:5000", env.APIBaseURL)
}

func TestRoutes_EnvJSEscapesScriptBreakout(t *testing.T) {
	rt := buildRoutes(t, Deps{APIBaseURL: func() string { return "</script><script>alert(1)" }})

	rec := get(t, rt, EnvJSPath)
	assert.NotContains(t, rec.Body.String(), "</script>")
}

func TestRoutes_HealthzAndMetrics(t *testing.T) {
	rt := buildRoutes(t, Deps{})

	rec := get(t, rt, HealthzPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, rt, MetricsPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devproxy_active_rules")
}

func TestRoutes_Upstreams(t *testing.T) {
	store := state.NewStore()
	store.SetProfile("lan")
	store.SetConfigErrors([]string{"rules[2]: invalid proxy rule"})
	store.AddOrUpdate(state.Upstream{Name: "api", Prefix: "/api", Target: "http://192.168.1.8:5000", Rewrite: true, Status: state.StatusUnknown})

	rt := buildRoutes(t, Deps{State: store})
	rec := get(t, rt, UpstreamsPath)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UpstreamsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "lan", resp.Profile)
	require.Len(t, resp.Upstreams, 1)
	assert.Equal(t, "http://192.168.1.8:5000", resp.Upstreams[0].Target)
	assert.Equal(t, []string{"rules[2]: invalid proxy rule"}, resp.ConfigErrors)
	assert.Nil(t, resp.LastReload)

	store.MarkReloaded("local")
	rec = get(t, rt, UpstreamsPath)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local", resp.Profile)
	assert.NotNil(t, resp.LastReload)
}

func TestRoutes_UpstreamsEmptyErrorsIsArray(t *testing.T) {
	rt := buildRoutes(t, Deps{State: state.NewStore()})
	rec := get(t, rt, UpstreamsPath)
	assert.Contains(t, rec.Body.String(), `"configErrors":[]`)
}

func TestRoutes_EventsRoute(t *testing.T) {
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "event: state\n\n")
	})
	rt := buildRoutes(t, Deps{Events: events})

	rec := get(t, rt, EventsPath)
	assert.Equal(t, "event: state\n\n", rec.Body.String())

	rt = buildRoutes(t, Deps{})
	rec = get(t, rt, EventsPath)
	assert.NotEqual(t, "event: state\n\n", rec.Body.String())
}

func TestRoutes_ReservedPrefixRejected(t *testing.T) {
	for _, prefix := range []string{"/__devproxy", "/__devproxy/env.js", "/healthz", "metrics"} {
		_, err := NewRoutes(Deps{Rules: []config.ProxyRule{
			{Name: "bad", Prefix: prefix, Target: "localhost:5000"},
		}})
		assert.True(t, errors.Is(err, ErrReservedPrefix), "prefix %q: %v", prefix, err)
	}

	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "ok", Prefix: "/metrics-api", Target: "localhost:5000"},
	}})
	assert.Len(t, rt.Rules(), 1)
}

func TestRoutes_InvalidRuleRejected(t *testing.T) {
	_, err := NewRoutes(Deps{Rules: []config.ProxyRule{{Name: "api", Target: "ftp://x"}}})
	assert.ErrorIs(t, err, config.ErrInvalidRule)
}

func TestRoutes_PatternPrefixRejected(t *testing.T) {
	for _, prefix := range []string{"/api/*", "/{v}"} {
		t.Run(prefix, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = NewRoutes(Deps{Rules: []config.ProxyRule{{Prefix: prefix, Target: "http://127.0.0.1:1"}}})
			})
			assert.ErrorIs(t, err, config.ErrInvalidRule)
		})
	}
}

func TestRoutes_EmptyPathReachesFrontend(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{{Prefix: "/api", Target: backend.URL}}})

	// Absolute-form request lines can leave the path empty.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = ""
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devproxy placeholder")
}

func TestRoutes_RootRuleDisablesFrontend(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "all", Prefix: "/", Target: backend.URL},
	}})
	assert.Equal(t, FrontendNone, rt.FrontendMode())

	assert.Equal(t, "backend:/recette", get(t, rt, "/recette").Body.String())
	assert.Equal(t, "backend:/", get(t, rt, "/").Body.String())
	// Built-ins still win over the catch-all rule.
	assert.JSONEq(t, `{"status":"ok"}`, get(t, rt, HealthzPath).Body.String())
}

func TestRoutes_LongestPrefixWins(t *testing.T) {
	apiBackend := backendEcho(t)
	authBackend := startLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "auth:"+r.URL.Path)
	}))
	rt := buildRoutes(t, Deps{Rules: []config.ProxyRule{
		{Name: "api", Prefix: "/api", Target: apiBackend.URL, Rewrite: true},
		{Name: "auth", Prefix: "/api/auth", Target: authBackend.URL, Rewrite: true},
	}})

	assert.Equal(t, "auth:/login", get(t, rt, "/api/auth/login").Body.String())
	assert.Equal(t, "backend:/authz", get(t, rt, "/api/authz").Body.String())
}

func TestRoutes_BasePath(t *testing.T) {
	backend := backendEcho(t)
	rt := buildRoutes(t, Deps{
		Rules:  []config.ProxyRule{{Name: "api", Prefix: "/api", Target: backend.URL, Rewrite: true}},
		Server: config.ServerConfig{BasePath: "/app"},
	})

	assert.Equal(t, "backend:/calculate", get(t, rt, "/app/api/calculate").Body.String())
	assert.Equal(t, "backend:/calculate", get(t, rt, "/api/calculate").Body.String())
	assert.Contains(t, get(t, rt, "/app/").Body.String(), "placeholder")
}

func TestRoutes_StaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>built app</html>"), 0o644))

	rt := buildRoutes(t, Deps{Server: config.ServerConfig{StaticDir: dir}})
	assert.Equal(t, FrontendStatic, rt.FrontendMode())
	assert.Contains(t, get(t, rt, "/recette").Body.String(), "built app")

	_, err := NewRoutes(Deps{Server: config.ServerConfig{StaticDir: filepath.Join(dir, "missing")}})
	assert.Error(t, err)
}

func TestRoutes_FrontendURL(t *testing.T) {
	vite := startLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "vite:"+r.URL.Path)
	}))
	rt := buildRoutes(t, Deps{Server: config.ServerConfig{FrontendURL: vite.URL}})
	assert.Equal(t, FrontendProxy, rt.FrontendMode())
	assert.Equal(t, "vite:/src/App.vue", get(t, rt, "/src/App.vue").Body.String())
}

func TestRoutes_NoFrontend(t *testing.T) {
	rt, err := NewRoutes(Deps{})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, FrontendNone, rt.FrontendMode())
	assert.Equal(t, http.StatusNotFound, get(t, rt, "/recette").Code)
}

func TestRoutes_MiddlewareStackApplied(t *testing.T) {
	rt := buildRoutes(t, Deps{Stack: middleware.StackConfig{AllowedOrigins: []string{"http://localhost:5173"}}})

	req := httptest.NewRequest(http.MethodGet, HealthzPath, nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_TrustProxy(t *testing.T) {
	var gotXFF string
	backend := startLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXFF = r.Header.Get("X-Forwarded-For")
	}))

	for _, trust := range []bool{false, true} {
		rt := buildRoutes(t, Deps{
			Rules:  []config.ProxyRule{{Name: "api", Prefix: "/api", Target: backend.URL}},
			Server: config.ServerConfig{TrustProxy: trust},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = "127.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", "192.168.1.42")
		rt.ServeHTTP(httptest.NewRecorder(), req)

		if trust {
			assert.Equal(t, "192.168.1.42", gotXFF)
		} else {
			// Client-supplied X-Forwarded-For is not trusted.
			assert.Equal(t, "127.0.0.1", gotXFF)
		}
	}
}
