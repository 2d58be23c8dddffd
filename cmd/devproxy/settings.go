package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/health"
	"github.com/rathix/devproxy/internal/telemetry"
)

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 5173
	defaultRetentionDays   = 30
	defaultProbeTimeout    = 5 * time.Second
	defaultRateLimitWindow = time.Minute
)

// options holds command-line settings. Flag defaults come from the
// environment, so the precedence is Flag > Env > config file > default.
type options struct {
	ConfigFile   string
	Host         string
	Port         int
	Profile      string
	Target       string
	Rewrite      bool
	StaticDir    string
	FrontendURL  string
	BasePath     string
	HistoryFile  string
	TrustProxy   bool
	LogLevel     string
	LogFormat    string
	OTLPExporter string
	OTLPEndpoint string
}

func optionsFromEnv() *options {
	return &options{
		ConfigFile:   getEnv("DEVPROXY_CONFIG", ""),
		Host:         getEnv("DEVPROXY_HOST", ""),
		Port:         getEnvInt("DEVPROXY_PORT", 0),
		Profile:      getEnv("DEVPROXY_PROFILE", ""),
		Target:       getEnv("DEVPROXY_TARGET", ""),
		Rewrite:      getEnvBool("DEVPROXY_REWRITE", true),
		StaticDir:    getEnv("DEVPROXY_STATIC_DIR", ""),
		FrontendURL:  getEnv("DEVPROXY_FRONTEND_URL", ""),
		BasePath:     getEnv("DEVPROXY_BASE_PATH", ""),
		HistoryFile:  getEnv("DEVPROXY_HISTORY_FILE", ""),
		TrustProxy:   getEnvBool("DEVPROXY_TRUST_PROXY", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		OTLPExporter: getEnv("DEVPROXY_OTLP_EXPORTER", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// bindConfigFlag registers --config, shared by every subcommand.
func bindConfigFlag(cmd *cobra.Command, o *options) {
	cmd.PersistentFlags().StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile, "path to YAML or TOML config file")
}

// bindRuleFlags registers the flags that select proxy rules.
func bindRuleFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVarP(&o.Profile, "profile", "p", o.Profile, `proxy profile ("lan", "local" or one from the config file)`)
	cmd.Flags().StringVar(&o.Target, "target", o.Target, "proxy /api to this backend instead of a profile")
	cmd.Flags().BoolVar(&o.Rewrite, "rewrite", o.Rewrite, "strip /api before forwarding to --target")
}

// bindServeFlags registers the listener, frontend and ambient flags.
func bindServeFlags(cmd *cobra.Command, o *options) {
	bindRuleFlags(cmd, o)
	f := cmd.Flags()
	f.StringVar(&o.Host, "host", o.Host, "listen host (default 0.0.0.0)")
	f.IntVar(&o.Port, "port", o.Port, "listen port (default 5173)")
	f.StringVar(&o.StaticDir, "static-dir", o.StaticDir, "serve the built frontend from this directory")
	f.StringVar(&o.FrontendURL, "frontend-url", o.FrontendURL, "proxy non-API requests to this frontend dev server")
	f.StringVar(&o.BasePath, "base-path", o.BasePath, "also serve everything under this path prefix")
	f.StringVar(&o.HistoryFile, "history-file", o.HistoryFile, "append upstream health transitions to this JSONL file")
	f.BoolVar(&o.TrustProxy, "trust-proxy", o.TrustProxy, "honor X-Forwarded-For/Proto from a reverse proxy")
	f.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&o.LogFormat, "log-format", o.LogFormat, "log format (json or text)")
	f.StringVar(&o.OTLPExporter, "otlp-exporter", o.OTLPExporter, `OTLP trace exporter ("http", "grpc" or empty to disable)`)
	f.StringVar(&o.OTLPEndpoint, "otlp-endpoint", o.OTLPEndpoint, "OTLP collector endpoint")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return n
	}
	return fallback
}

// settings are the effective values after layering options over the config
// file over defaults.
type settings struct {
	Server          config.ServerConfig
	HealthDisabled  bool
	HealthInterval  time.Duration
	ProbeTimeout    time.Duration
	HistoryFile     string
	RetentionDays   int
	RateLimitWindow time.Duration
	Telemetry       telemetry.Config
}

// Addr is the listen address.
func (s settings) Addr() string {
	return net.JoinHostPort(s.Server.Host, strconv.Itoa(s.Server.Port))
}

func resolveSettings(o *options, cfg *config.Config) (settings, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if o.LogFormat != "json" && o.LogFormat != "text" {
		return settings{}, fmt.Errorf("unsupported log format %q: must be \"json\" or \"text\"", o.LogFormat)
	}
	if o.Port < 0 || o.Port > 65535 {
		return settings{}, fmt.Errorf("port must be between 0 and 65535, got %d", o.Port)
	}
	switch o.OTLPExporter {
	case telemetry.ExporterNone, telemetry.ExporterHTTP, telemetry.ExporterGRPC:
	default:
		return settings{}, fmt.Errorf("unsupported OTLP exporter %q: must be \"http\", \"grpc\" or empty", o.OTLPExporter)
	}

	srv := cfg.Server
	srv.Host = firstNonEmpty(o.Host, srv.Host, defaultHost)
	srv.Port = firstNonZero(o.Port, srv.Port, defaultPort)
	srv.BasePath = firstNonEmpty(o.BasePath, srv.BasePath, "/")
	srv.TrustProxy = o.TrustProxy || srv.TrustProxy

	// A frontend chosen on the command line replaces both file settings.
	switch {
	case o.StaticDir != "":
		srv.StaticDir, srv.FrontendURL = o.StaticDir, ""
	case o.FrontendURL != "":
		target, err := config.NormalizeTarget(o.FrontendURL)
		if err != nil {
			return settings{}, fmt.Errorf("frontend url: %w", err)
		}
		srv.StaticDir, srv.FrontendURL = "", target
	}

	s := settings{
		Server:          srv,
		HealthDisabled:  cfg.Health.Disabled,
		HealthInterval:  health.DefaultInterval,
		ProbeTimeout:    defaultProbeTimeout,
		HistoryFile:     firstNonEmpty(o.HistoryFile, cfg.History.File),
		RetentionDays:   firstNonZero(cfg.History.RetentionDays, defaultRetentionDays),
		RateLimitWindow: defaultRateLimitWindow,
		Telemetry: telemetry.Config{
			Exporter:       o.OTLPExporter,
			Endpoint:       o.OTLPEndpoint,
			ServiceName:    "devproxy",
			ServiceVersion: Version,
		},
	}
	// Durations in the file were validated by config.Validate.
	if d, err := time.ParseDuration(cfg.Health.Interval); err == nil {
		s.HealthInterval = d
	}
	if d, err := time.ParseDuration(cfg.Health.Timeout); err == nil {
		s.ProbeTimeout = d
	}
	if d, err := time.ParseDuration(srv.RateLimit.Window); err == nil {
		s.RateLimitWindow = d
	}
	return s, nil
}

// selectRules returns the active rules and the profile they came from. The
// profile is empty when rules come from --target or the file's rules list.
func selectRules(o *options, cfg *config.Config) ([]config.ProxyRule, string, error) {
	if o.Target != "" {
		rule, err := config.NormalizeRule(config.ProxyRule{
			Name:         "api",
			Prefix:       config.DefaultPrefix,
			Target:       o.Target,
			Rewrite:      o.Rewrite,
			ChangeOrigin: true,
		})
		if err != nil {
			return nil, "", fmt.Errorf("--target: %w", err)
		}
		return []config.ProxyRule{rule}, "", nil
	}

	if cfg != nil && len(cfg.Rules) > 0 {
		rules, err := config.ResolveRules(cfg, "")
		return rules, "", err
	}

	profile := o.Profile
	if profile == "" && cfg != nil {
		profile = cfg.Profile
	}
	if profile == "" {
		profile = config.DefaultProfile
	}
	rules, err := config.ResolveRules(cfg, profile)
	if err != nil {
		return nil, "", err
	}
	return rules, profile, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
