package main

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	devproxy "github.com/rathix/devproxy"
	"github.com/rathix/devproxy/internal/apibase"
	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/health"
	"github.com/rathix/devproxy/internal/history"
	"github.com/rathix/devproxy/internal/log"
	"github.com/rathix/devproxy/internal/metrics"
	"github.com/rathix/devproxy/internal/middleware"
	"github.com/rathix/devproxy/internal/server"
	"github.com/rathix/devproxy/internal/sse"
	"github.com/rathix/devproxy/internal/state"
	"github.com/rathix/devproxy/internal/telemetry"
)

const serveLongDesc string = `Start the development server.

Requests under /api are forwarded to the backend selected by the active
profile. Everything else is served by the frontend: a built SPA directory,
an external frontend dev server, or a placeholder page.

Examples:
  devproxy serve
  devproxy serve --profile local
  devproxy serve --target 192.168.1.8:5000 --rewrite=false
  devproxy serve --config devproxy.yaml --static-dir dist`

const serveShortDesc string = "Start the development server (default command)"

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	bindServeFlags(cmd, o)
	return cmd
}

func runServe(ctx context.Context, o *options) error {
	cfg, cfgErrs, err := loadConfigFile(o.ConfigFile)
	if err != nil {
		return err
	}
	s, err := resolveSettings(o, cfg)
	if err != nil {
		return err
	}

	logger := log.Configure(log.Config{Level: o.LogLevel, Format: o.LogFormat})
	logger.Info().Str("version", Version).Msg("starting devproxy")
	for _, e := range cfgErrs {
		logger.Warn().Err(e).Str(log.FieldConfigFile, o.ConfigFile).Msg("config validation warning")
	}

	rules, profile, err := selectRules(o, cfg)
	if err != nil {
		return err
	}

	store := state.NewStore()
	store.SetProfile(profile)
	store.SetConfigErrors(errorStrings(cfgErrs))
	config.RegisterUpstreams(store, rules)

	tp, err := telemetry.NewProvider(ctx, s.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	var recorder history.Recorder = history.NoopWriter{}
	var pruner *history.Pruner
	if s.HistoryFile != "" {
		historyLogger := log.WithComponent("history")
		restored, err := history.Restore(s.HistoryFile, store, historyLogger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read history")
		} else if restored > 0 {
			logger.Info().Int("upstreams", restored).Msg("restored upstream status from history")
		}
		writer, err := history.NewFileWriter(s.HistoryFile, historyLogger)
		if err != nil {
			return err
		}
		defer writer.Close()
		recorder = writer
		pruner = history.NewPruner(s.HistoryFile, s.RetentionDays, writer, historyLogger)
	}

	a := &app{
		opts:     o,
		settings: s,
		rules:    rules,
		store:    store,
		logger:   logger,
	}
	a.apiBase.Set(cfg)
	a.broker = sse.NewBroker(store, log.WithComponent("sse"), sse.Options{
		AppVersion:          Version,
		HealthCheckInterval: s.HealthInterval,
		APIBaseURL:          a.apiBase.URL,
	})

	routes, err := a.build(rules, s)
	if err != nil {
		return err
	}
	a.srv = server.New(s.Addr(), routes, log.WithComponent("server"))
	defer a.closeRoutes()

	logger.Info().
		Str("addr", s.Addr()).
		Str(log.FieldProfile, profile).
		Int("rules", len(rules)).
		Str(log.FieldBaseURL, a.apiBase.URL()).
		Str("frontend", routes.FrontendMode()).
		Msg("devproxy configured")
	for _, r := range rules {
		logger.Info().
			Str(log.FieldRule, r.Name).
			Str(log.FieldPrefix, r.Prefix).
			Str(log.FieldTarget, r.Target).
			Bool("rewrite", r.Rewrite).
			Msg("proxy rule")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.srv.Run(gctx) })
	g.Go(func() error { return a.broker.Run(gctx) })

	if s.HealthDisabled {
		logger.Info().Msg("upstream health checks disabled")
	} else {
		checker := health.NewChecker(store, health.NewClient(s.ProbeTimeout), s.HealthInterval, recorder, log.WithComponent("health"))
		g.Go(func() error { return checker.Run(gctx) })
	}
	if pruner != nil {
		g.Go(func() error { return pruner.Run(gctx) })
	}
	if o.ConfigFile != "" {
		watcher := config.NewWatcher(o.ConfigFile, a.reload, log.WithComponent("config"))
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Warn().Err(err).Msg("config watcher stopped, hot reload disabled")
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info().Msg("devproxy stopped")
	return err
}

// app holds what a config reload rebuilds or updates.
type app struct {
	opts   *options
	store  *state.Store
	broker *sse.Broker
	srv    *server.Server
	logger zerolog.Logger

	apiBase apiBaseSource

	mu       sync.Mutex
	settings settings
	rules    []config.ProxyRule
}

func (a *app) build(rules []config.ProxyRule, s settings) (*server.Routes, error) {
	tracing := ""
	if s.Telemetry.Enabled() {
		tracing = s.Telemetry.ServiceName
	}
	return server.NewRoutes(server.Deps{
		Rules:  rules,
		Server: s.Server,
		Stack: middleware.StackConfig{
			AllowedOrigins:    s.Server.CORSOrigins,
			EnableMetrics:     true,
			TracingService:    tracing,
			EnableLogging:     true,
			RateLimitRequests: s.Server.RateLimit.Requests,
			RateLimitWindow:   s.RateLimitWindow,
		},
		State:       a.store,
		Events:      a.broker,
		APIBaseURL:  a.apiBase.URL,
		Placeholder: devproxy.Placeholder(),
		Logger:      log.WithComponent("server"),
	})
}

// reload applies a changed config file. Any failure keeps the routes that
// are already serving.
func (a *app) reload(cfg *config.Config, errs []error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.SetConfigErrors(errorStrings(errs))
	for _, e := range errs {
		if cfg == nil {
			a.logger.Error().Err(e).Msg("config reload parse failed, keeping last-known-good config")
		} else {
			a.logger.Warn().Err(e).Msg("config reload validation warning")
		}
	}
	if cfg == nil {
		metrics.RecordReload(false)
		return
	}

	rules, profile, err := selectRules(a.opts, cfg)
	if err != nil {
		a.reloadFailed(err)
		return
	}
	next, err := resolveSettings(a.opts, cfg)
	if err != nil {
		a.reloadFailed(err)
		return
	}
	if next.Addr() != a.settings.Addr() {
		a.logger.Warn().
			Str("addr", a.settings.Addr()).
			Str("configured", next.Addr()).
			Msg("listen address changed, restart devproxy to apply")
		next.Server.Host, next.Server.Port = a.settings.Server.Host, a.settings.Server.Port
	}
	routes, err := a.build(rules, next)
	if err != nil {
		a.reloadFailed(err)
		return
	}

	a.apiBase.Set(cfg)
	if old, ok := a.srv.Swap(routes).(*server.Routes); ok {
		old.Close()
	}
	added, removed, updated := config.ReconcileOnReload(a.store, a.rules, rules)
	for _, name := range removedNames(a.rules, rules) {
		metrics.ForgetUpstream(name)
	}
	a.rules = rules
	a.settings = next
	a.store.MarkReloaded(profile)
	metrics.RecordReload(true)

	a.logger.Info().
		Str(log.FieldProfile, profile).
		Int("added", added).
		Int("removed", removed).
		Int("updated", updated).
		Str(log.FieldBaseURL, a.apiBase.URL()).
		Msg("config reloaded")
}

func (a *app) reloadFailed(err error) {
	metrics.RecordReload(false)
	a.logger.Error().Err(err).Msg("config reload rejected, keeping last-known-good config")
}

func (a *app) closeRoutes() {
	if routes, ok := a.srv.Handler().(*server.Routes); ok {
		routes.Close()
	}
}

// apiBaseSource resolves the API base URL from the process environment,
// falling back to the env section of the current config file.
type apiBaseSource struct {
	fileEnv atomic.Pointer[map[string]string]
}

func (b *apiBaseSource) Set(cfg *config.Config) {
	var env map[string]string
	if cfg != nil {
		env = cfg.Env
	}
	b.fileEnv.Store(&env)
}

func (b *apiBaseSource) URL() string {
	var fileEnv map[string]string
	if p := b.fileEnv.Load(); p != nil {
		fileEnv = *p
	}
	return apibase.Resolve(apibase.Chain(os.LookupEnv, apibase.MapLookup(fileEnv)))
}

func removedNames(oldRules, newRules []config.ProxyRule) []string {
	keep := make(map[string]struct{}, len(newRules))
	for _, r := range newRules {
		keep[r.Name] = struct{}{}
	}
	var names []string
	for _, r := range oldRules {
		if _, ok := keep[r.Name]; !ok {
			names = append(names, r.Name)
		}
	}
	return names
}

func errorStrings(errs []error) []string {
	strs := make([]string, 0, len(errs))
	for _, e := range errs {
		strs = append(strs, e.Error())
	}
	return strs
}
