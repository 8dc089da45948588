// Package config resolves the server's startup configuration: the
// TOML document, environment variables, and CLI flags, in that
// ascending order of precedence, into one normalized Config snapshot.
//
// Layout follows one small struct per concern, each with a
// Default*Config constructor.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ListenerConfig is the network address a daemon binds to.
type ListenerConfig struct {
	Host string `toml:"host" mapstructure:"host"`
	Port int    `toml:"port" mapstructure:"port"`
}

func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// ServerConfig is the [server] table.
type ServerConfig struct {
	ListenerConfig `mapstructure:",squash"`
	CORSOrigins    []string `toml:"cors_origins" mapstructure:"cors_origins"`
}

// SourceType enumerates the closed set of driver variants.
type SourceType string

const (
	SourceTypePMTiles  SourceType = "pmtiles"
	SourceTypeMBTiles  SourceType = "mbtiles"
	SourceTypeCOG      SourceType = "cog"
	SourceTypePostgres SourceType = "postgres"
)

// SourceConfig is one entry of [[sources]].
type SourceConfig struct {
	ID          string     `toml:"id" mapstructure:"id"`
	Type        SourceType `toml:"type" mapstructure:"type"`
	Path        string     `toml:"path" mapstructure:"path"`
	URL         string     `toml:"url" mapstructure:"url"`
	Name        string     `toml:"name" mapstructure:"name"`
	Attribution string     `toml:"attribution" mapstructure:"attribution"`

	// PostGIS-only fields; ignored by other driver types.
	Function string `toml:"function" mapstructure:"function"`
	Schema   string `toml:"schema" mapstructure:"schema"`

	// COG-only fields.
	Colormap string    `toml:"colormap" mapstructure:"colormap"`
	Rescale  []float64 `toml:"rescale" mapstructure:"rescale"`
	MinZoom  *int      `toml:"minzoom" mapstructure:"minzoom"`
	MaxZoom  *int      `toml:"maxzoom" mapstructure:"maxzoom"`
}

// PathOrURL returns whichever of Path/URL is set, preferring Path.
func (s SourceConfig) PathOrURL() string {
	if s.Path != "" {
		return s.Path
	}
	return s.URL
}

// StyleConfig is one entry of [[styles]].
type StyleConfig struct {
	ID   string `toml:"id" mapstructure:"id"`
	Path string `toml:"path" mapstructure:"path"`
}

// TelemetryConfig is the optional [telemetry] table; out of scope as
// an engineering surface, carried only as an opaque endpoint the
// metrics sink may be pointed at.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint" mapstructure:"endpoint"`
}

// RenderConfig is the [render] table governing the renderer pool.
type RenderConfig struct {
	PoolSizePerRatio  int `toml:"pool_size_per_ratio" mapstructure:"pool_size_per_ratio"`
	QueueDepthPerRatio int `toml:"queue_depth_per_ratio" mapstructure:"queue_depth_per_ratio"`
	CheckoutTimeoutMS int `toml:"checkout_timeout_ms" mapstructure:"checkout_timeout_ms"`
	RenderDeadlineMS  int `toml:"render_deadline_ms" mapstructure:"render_deadline_ms"`
	PoisonThreshold   int `toml:"poison_threshold" mapstructure:"poison_threshold"`
}

// Config is the normalized, immutable snapshot loaded once at startup.
type Config struct {
	Fonts  string `toml:"fonts" mapstructure:"fonts"`
	Files  string `toml:"files" mapstructure:"files"`
	DataRoot string `toml:"data_root" mapstructure:"data_root"`

	Server    ServerConfig      `toml:"server" mapstructure:"server"`
	Sources   []SourceConfig    `toml:"sources" mapstructure:"sources"`
	Styles    []StyleConfig     `toml:"styles" mapstructure:"styles"`
	Telemetry *TelemetryConfig  `toml:"telemetry" mapstructure:"telemetry"`
	Render    RenderConfig      `toml:"render" mapstructure:"render"`

	// PropagateQueryKey, when non-empty, is echoed onto every
	// generated tile/WMTS URL as ?key=<value> for client-side
	// analytics. It is never validated server-side.
	PropagateQueryKey string `toml:"propagate_query_key" mapstructure:"propagate_query_key"`
}

// DefaultListenerConfig is the address a server binds to absent any
// configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{Host: "0.0.0.0", Port: 8080}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenerConfig: DefaultListenerConfig(),
		CORSOrigins:    []string{"*"},
	}
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		PoolSizePerRatio:   4,
		QueueDepthPerRatio: 8,
		CheckoutTimeoutMS:  5000,
		RenderDeadlineMS:   10000,
		PoisonThreshold:    3,
	}
}

// DefaultConfig returns the zero-sources, zero-styles baseline that
// every loaded Config is unmarshalled on top of.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Render: DefaultRenderConfig(),
	}
}

// validSourceID reports whether id matches the namespace pattern.
func validSourceID(id string) bool {
	return id != "" && sourceIDPattern.MatchString(id)
}

// CORSPolicy is the compiled form of ServerConfig.CORSOrigins: either
// a wildcard or a case-sensitive allow-list.
type CORSPolicy struct {
	Wildcard bool
	Allowed  map[string]struct{}
}

// Allows reports whether origin may be granted CORS access.
func (p CORSPolicy) Allows(origin string) bool {
	if p.Wildcard {
		return true
	}
	if origin == "" {
		return false
	}
	_, ok := p.Allowed[origin]
	return ok
}

// CompileCORS builds a CORSPolicy from the configured origin list.
func CompileCORS(origins []string) CORSPolicy {
	p := CORSPolicy{Allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.Wildcard = true
			continue
		}
		p.Allowed[o] = struct{}{}
	}
	return p
}

// CORS compiles this Config's configured origin list.
func (c *Config) CORS() CORSPolicy {
	return CompileCORS(c.Server.CORSOrigins)
}

// BindFlags registers the CLI flags that may override config-file and
// environment values as persistent flags on the root command.
// Precedence is wired by viper: flags bound here take effect only
// once viper.BindPFlag has been called against them.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "./config.toml", "configuration file")
	flags.String("host", DefaultListenerConfig().Host, "bind host")
	flags.Int("port", DefaultListenerConfig().Port, "bind port")
	flags.Bool("ui", true, "enable/disable embedded web UI")
	flags.BoolP("verbose", "v", false, "verbose logging")
}

// Load resolves the Config from (in ascending precedence) defaults,
// the config file, environment variables, and CLI flags by layering
// viper.SetDefault under viper.AutomaticEnv and viper.ReadInConfig.
// flags may be nil to load from env/file/defaults only (used by
// tests). The config file is decoded with UnmarshalExact, so an
// unrecognized key anywhere in the document is a load error rather
// than a silently ignored typo.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := DefaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.cors_origins", def.Server.CORSOrigins)
	v.SetDefault("render.pool_size_per_ratio", def.Render.PoolSizePerRatio)
	v.SetDefault("render.queue_depth_per_ratio", def.Render.QueueDepthPerRatio)
	v.SetDefault("render.checkout_timeout_ms", def.Render.CheckoutTimeoutMS)
	v.SetDefault("render.render_deadline_ms", def.Render.RenderDeadlineMS)
	v.SetDefault("render.poison_threshold", def.Render.PoisonThreshold)

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.port", "PORT")

	configPath := "./config.toml"
	if flags != nil {
		if p, err := flags.GetString("config"); err == nil && p != "" {
			configPath = p
		}
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile makes viper report a missing file as a plain
		// fs error rather than ConfigFileNotFoundError.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	if flags != nil {
		// Only "host" and "port" map onto Config fields (server.host,
		// server.port); "config", "ui", and "verbose" are CLI-only
		// concerns read directly off the FlagSet elsewhere and must not
		// be bound into the schema UnmarshalExact validates below.
		if f := flags.Lookup("host"); f != nil {
			if err := v.BindPFlag("server.host", f); err != nil {
				return nil, fmt.Errorf("config: binding host flag: %w", err)
			}
		}
		if f := flags.Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, fmt.Errorf("config: binding port flag: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize canonicalizes paths and validates the source-id
// namespace, the minzoom≤maxzoom precondition deferred to driver
// metadata, and duplicate-id rejection.
func normalize(cfg *Config) error {
	if cfg.DataRoot != "" {
		root, err := canonicalize(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("config: data_root: %w", err)
		}
		cfg.DataRoot = root
	}
	if cfg.Fonts != "" {
		p, err := canonicalizeUnder(cfg.Fonts, cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("config: fonts: %w", err)
		}
		cfg.Fonts = p
	}
	if cfg.Files != "" {
		p, err := canonicalizeUnder(cfg.Files, cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("config: files: %w", err)
		}
		cfg.Files = p
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if !validSourceID(s.ID) {
			return fmt.Errorf("config: source %q: invalid id (must match %s)", s.ID, sourceIDPattern.String())
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("config: duplicate source id %q", s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Path != "" && s.Type != SourceTypePostgres {
			p, err := canonicalizeUnder(s.Path, cfg.DataRoot)
			if err != nil {
				return fmt.Errorf("config: source %q: %w", s.ID, err)
			}
			s.Path = p
		}
	}

	seenStyles := make(map[string]struct{}, len(cfg.Styles))
	for i := range cfg.Styles {
		st := &cfg.Styles[i]
		if !validSourceID(st.ID) {
			return fmt.Errorf("config: style %q: invalid id", st.ID)
		}
		if _, dup := seenStyles[st.ID]; dup {
			return fmt.Errorf("config: duplicate style id %q", st.ID)
		}
		seenStyles[st.ID] = struct{}{}
		if st.Path != "" {
			p, err := canonicalizeUnder(st.Path, cfg.DataRoot)
			if err != nil {
				return fmt.Errorf("config: style %q: %w", st.ID, err)
			}
			st.Path = p
		}
	}
	return nil
}

// canonicalize expands "~" and resolves p to an absolute, clean path.
func canonicalize(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// canonicalizeUnder canonicalizes p and, when root is non-empty,
// rejects any path that resolves outside it — the path-traversal
// guard applied to fonts/files/sprites roots.
func canonicalizeUnder(p, root string) (string, error) {
	abs, err := canonicalize(p)
	if err != nil {
		return "", err
	}
	if root == "" {
		return abs, nil
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves outside data root %q", p, root)
	}
	return abs, nil
}
