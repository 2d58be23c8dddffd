package config

// Config is the top-level configuration parsed from the YAML or TOML config file.
type Config struct {
	Server   ServerConfig           `yaml:"server"   toml:"server"   json:"server"`
	Profile  string                 `yaml:"profile"  toml:"profile"  json:"profile"`
	Rules    []ProxyRule            `yaml:"rules"    toml:"rules"    json:"rules"`
	Profiles map[string][]ProxyRule `yaml:"profiles" toml:"profiles" json:"profiles"`
	Env      map[string]string      `yaml:"env"      toml:"env"      json:"env"`
	Health   HealthConfig           `yaml:"health"   toml:"health"   json:"health"`
	History  HistoryConfig          `yaml:"history"  toml:"history"  json:"history"`
}

// ServerConfig controls the listener and the frontend fallback.
type ServerConfig struct {
	Host        string          `yaml:"host"        toml:"host"        json:"host"`
	Port        int             `yaml:"port"        toml:"port"        json:"port"`
	BasePath    string          `yaml:"basePath"    toml:"basePath"    json:"basePath"`
	StaticDir   string          `yaml:"staticDir"   toml:"staticDir"   json:"staticDir"`
	FrontendURL string          `yaml:"frontendUrl" toml:"frontendUrl" json:"frontendUrl"`
	CORSOrigins []string        `yaml:"corsOrigins" toml:"corsOrigins" json:"corsOrigins"`
	RateLimit   RateLimitConfig `yaml:"rateLimit"   toml:"rateLimit"   json:"rateLimit"`
	// TrustProxy honors X-Forwarded-For/Proto from a reverse proxy in front.
	TrustProxy bool `yaml:"trustProxy" toml:"trustProxy" json:"trustProxy"`
}

// RateLimitConfig enables a per-client sliding window limit. Zero Requests disables it.
type RateLimitConfig struct {
	Requests int    `yaml:"requests" toml:"requests" json:"requests"`
	Window   string `yaml:"window"   toml:"window"   json:"window"`
}

// ProxyRule forwards requests under Prefix to Target.
type ProxyRule struct {
	Name         string `yaml:"name"         toml:"name"         json:"name"`
	Prefix       string `yaml:"prefix"       toml:"prefix"       json:"prefix"`
	Target       string `yaml:"target"       toml:"target"       json:"target"`
	Rewrite      bool   `yaml:"rewrite"      toml:"rewrite"      json:"rewrite"`
	ChangeOrigin bool   `yaml:"changeOrigin" toml:"changeOrigin" json:"changeOrigin"`
	HealthPath   string `yaml:"healthPath"   toml:"healthPath"   json:"healthPath"`
	Timeout      string `yaml:"timeout"      toml:"timeout"      json:"timeout"`
}

// HealthConfig controls upstream probing.
type HealthConfig struct {
	Disabled bool   `yaml:"disabled" toml:"disabled" json:"disabled"`
	Interval string `yaml:"interval" toml:"interval" json:"interval"`
	Timeout  string `yaml:"timeout"  toml:"timeout"  json:"timeout"`
}

// HistoryConfig controls the upstream transition log.
type HistoryConfig struct {
	File          string `yaml:"file"          toml:"file"          json:"file"`
	RetentionDays int    `yaml:"retentionDays" toml:"retentionDays" json:"retentionDays"`
}
