// Package server assembles the devproxy HTTP surface: built-in endpoints,
// proxy rules and the frontend fallback, behind a hot-swappable handler.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/log"
	"github.com/rathix/devproxy/internal/metrics"
	"github.com/rathix/devproxy/internal/middleware"
	"github.com/rathix/devproxy/internal/proxy"
)

// Built-in routes. Proxy rules may not claim these prefixes.
const (
	InternalPrefix = "/__devproxy"
	EnvJSPath      = InternalPrefix + "/env.js"
	EnvJSONPath    = InternalPrefix + "/env.json"
	UpstreamsPath  = InternalPrefix + "/upstreams"
	EventsPath     = InternalPrefix + "/events"
	HealthzPath    = "/healthz"
	MetricsPath    = "/metrics"
)

// ReservedPrefixes lists the paths owned by devproxy itself.
var ReservedPrefixes = []string{InternalPrefix, HealthzPath, MetricsPath}

// ErrReservedPrefix is returned when a proxy rule would shadow a built-in route.
var ErrReservedPrefix = errors.New("prefix is reserved")

// Deps are the inputs of one router build. A new router is built for every
// config reload.
type Deps struct {
	Rules  []config.ProxyRule
	Server config.ServerConfig
	Stack  middleware.StackConfig
	Proxy  proxy.Options

	// State backs the upstreams endpoint. Nil disables it.
	State StatusSource
	// Events serves the SSE stream. Nil disables it.
	Events http.Handler
	// APIBaseURL is exposed through env.js and env.json.
	APIBaseURL func() string
	// Placeholder is served when neither a static dir nor a frontend URL is set.
	Placeholder fs.FS

	Logger zerolog.Logger
}

// Routes is a built router together with the upstream connections it owns.
type Routes struct {
	handler  http.Handler
	table    *proxy.Table
	frontend *proxy.Handler
	mode     string
}

// Frontend modes reported by Routes.FrontendMode.
const (
	FrontendStatic      = "static"
	FrontendProxy       = "proxy"
	FrontendPlaceholder = "placeholder"
	FrontendNone        = "none"
)

// NewRoutes builds the router for d.
func NewRoutes(d Deps) (*Routes, error) {
	if err := checkReserved(d.Rules); err != nil {
		return nil, err
	}
	if d.APIBaseURL == nil {
		d.APIBaseURL = func() string { return "" }
	}

	table, err := proxy.NewTable(d.Rules, d.Proxy)
	if err != nil {
		return nil, err
	}
	rt := &Routes{table: table}

	r := middleware.NewRouter(d.Stack)

	r.Get(EnvJSPath, EnvJSHandler(d.APIBaseURL))
	r.Get(EnvJSONPath, EnvJSONHandler(d.APIBaseURL))
	r.Get(HealthzPath, HealthzHandler)
	r.Method(http.MethodGet, MetricsPath, metrics.Handler())
	if d.State != nil {
		r.Get(UpstreamsPath, UpstreamsHandler(d.State))
	}
	if d.Events != nil {
		r.Method(http.MethodGet, EventsPath, d.Events)
	}

	var frontend http.Handler
	if table.HasRoot() {
		rt.mode = FrontendNone
	} else {
		frontend, err = rt.buildFrontend(d)
		if err != nil {
			table.Close()
			return nil, err
		}
	}
	table.Mount(r, frontend)

	metrics.ActiveRules.Set(float64(len(table.Rules())))
	for _, rule := range table.Rules() {
		d.Logger.Debug().
			Str(log.FieldRule, rule.Name).
			Str(log.FieldPrefix, rule.Prefix).
			Str(log.FieldTarget, rule.Target.String()).
			Bool("rewrite", rule.Rewrite).
			Msg("proxy rule mounted")
	}

	var h http.Handler = r
	if d.Server.TrustProxy {
		h = ForwardedHeaders(r)
	}
	rt.handler = NewBasePathHandler(d.Server.BasePath, h)
	return rt, nil
}

func (rt *Routes) buildFrontend(d Deps) (http.Handler, error) {
	switch {
	case d.Server.StaticDir != "":
		h, err := NewDirHandler(d.Server.StaticDir)
		if err != nil {
			return nil, err
		}
		rt.mode = FrontendStatic
		return h, nil
	case d.Server.FrontendURL != "":
		h, err := NewFrontendProxy(d.Server.FrontendURL, d.Proxy)
		if err != nil {
			return nil, err
		}
		rt.frontend = h
		rt.mode = FrontendProxy
		return h, nil
	case d.Placeholder != nil:
		rt.mode = FrontendPlaceholder
		return NewSPAHandler(d.Placeholder), nil
	default:
		rt.mode = FrontendNone
		return nil, nil
	}
}

func (rt *Routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Rules lists the mounted proxy rules in match order.
func (rt *Routes) Rules() []proxy.Rule {
	return rt.table.Rules()
}

// FrontendMode reports what serves paths no rule claims.
func (rt *Routes) FrontendMode() string {
	return rt.mode
}

// Close releases idle upstream connections. In-flight requests are unaffected.
func (rt *Routes) Close() {
	rt.table.Close()
	if rt.frontend != nil {
		rt.frontend.Close()
	}
}

func checkReserved(rules []config.ProxyRule) error {
	for _, r := range rules {
		prefix := config.NormalizePrefix(r.Prefix)
		for _, reserved := range ReservedPrefixes {
			if prefix == reserved || strings.HasPrefix(prefix, reserved+"/") {
				return fmt.Errorf("rule %q: %w: %s", r.Name, ErrReservedPrefix, prefix)
			}
		}
	}
	return nil
}
