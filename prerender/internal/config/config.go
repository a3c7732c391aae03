// CLAUDE:SUMMARY Defines snapshot-run config structs, parses YAML files and .env files, applies PRERENDER_* overrides and defaults.
// Package config builds the run configuration once: defaults, then an
// optional YAML file, then an optional .env file, then PRERENDER_*
// environment variables. The result is validated and passed down read-only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Transport modes.
const (
	TransportStatic   = "static"   // own content server over the build directory
	TransportExternal = "external" // an already running server (dev server, staging)
)

// Config is the top-level run configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Render    RenderConfig    `yaml:"render"`
	Browser   BrowserConfig   `yaml:"browser"`
	Routes    RoutesConfig    `yaml:"routes"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sitemap   SitemapConfig   `yaml:"sitemap"`
	Watch     WatchConfig     `yaml:"watch"`
}

// AppConfig locates the build artifacts.
type AppConfig struct {
	BuildDir  string `yaml:"build_dir"`
	OutputDir string `yaml:"output_dir"` // default: build_dir (snapshots written in place)
	Manifest  string `yaml:"manifest"`   // default: <build_dir>/blog/list.json
}

// ServerConfig controls the static content server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Warmup       time.Duration `yaml:"warmup"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// TransportConfig selects how the application is served to the browser.
type TransportConfig struct {
	Mode    string `yaml:"mode"`     // static | external
	BaseURL string `yaml:"base_url"` // external only
}

// RenderConfig controls per-route rendering.
type RenderConfig struct {
	NavigationTimeout time.Duration    `yaml:"navigation_timeout"`
	ReadinessTimeout  time.Duration    `yaml:"readiness_timeout"`
	ExtractTimeout    time.Duration    `yaml:"extract_timeout"` // page open and DOM serialisation
	PollInterval      time.Duration    `yaml:"poll_interval"`
	Predicates        route.Predicates `yaml:"predicates"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Bin              string        `yaml:"bin"`
	Remote           string        `yaml:"remote"`
	NoSandbox        *bool         `yaml:"no_sandbox"` // default true
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	RecycleAfter     int           `yaml:"recycle_after"`
	IdleWindow       time.Duration `yaml:"idle_window"`
}

// SandboxDisabled reports the effective no_sandbox setting.
func (b BrowserConfig) SandboxDisabled() bool {
	return b.NoSandbox == nil || *b.NoSandbox
}

// RoutesConfig drives route resolution.
type RoutesConfig struct {
	Structural   []route.Route `yaml:"structural"`
	IDField      string        `yaml:"id_field"`
	DetailPrefix string        `yaml:"detail_prefix"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type          string `yaml:"type"`           // stdout | webhook | nats
	URL           string `yaml:"url"`            // webhook endpoint or NATS server
	SubjectPrefix string `yaml:"subject_prefix"` // for nats
	Retries       int    `yaml:"retries"`        // for webhook
}

// LedgerConfig enables the SQLite run ledger when Path is set.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig enables the Prometheus textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// SitemapConfig enables sitemap.xml generation when BaseURL is set.
type SitemapConfig struct {
	BaseURL string `yaml:"base_url"`
}

// WatchConfig controls the re-render loop.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Paths    []string      `yaml:"paths"`    // default: the manifest
	Schedule string        `yaml:"schedule"` // optional: "6h" or a cron expression
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultPredicates returns the readiness predicates of the blog layout:
// the listing waits for the home component, detail pages for the rendered
// markdown container, static pages for a non-empty app root.
func DefaultPredicates() route.Predicates {
	return route.Predicates{
		route.KindListing: {Selector: "app-home", NonEmpty: true},
		route.KindDetail:  {Selector: "#rendered-markdown", NonEmpty: true},
		route.KindStatic:  {Selector: "app-root", NonEmpty: true},
	}
}

func (c *Config) applyDefaults() {
	if c.App.BuildDir == "" {
		c.App.BuildDir = filepath.Join("dist", "dev-digest", "browser")
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4200
	}
	if c.Server.Warmup == 0 {
		c.Server.Warmup = 3 * time.Second
	}
	if c.Server.ProbeTimeout <= 0 {
		c.Server.ProbeTimeout = 10 * time.Second
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = TransportStatic
	}
	if c.Render.NavigationTimeout <= 0 {
		c.Render.NavigationTimeout = 60 * time.Second
	}
	if c.Render.ReadinessTimeout <= 0 {
		c.Render.ReadinessTimeout = 30 * time.Second
	}
	if c.Render.ExtractTimeout <= 0 {
		c.Render.ExtractTimeout = 30 * time.Second
	}
	if c.Render.PollInterval <= 0 {
		c.Render.PollInterval = 250 * time.Millisecond
	}
	defaults := DefaultPredicates()
	if c.Render.Predicates == nil {
		c.Render.Predicates = route.Predicates{}
	}
	for k, p := range defaults {
		if _, ok := c.Render.Predicates[k]; !ok {
			c.Render.Predicates[k] = p
		}
	}
	if c.Browser.IdleWindow <= 0 {
		c.Browser.IdleWindow = 500 * time.Millisecond
	}
	if len(c.Routes.Structural) == 0 {
		c.Routes.Structural = []route.Route{{Path: "/", Kind: route.KindListing}}
	}
	if c.Routes.IDField == "" {
		c.Routes.IDField = "slug"
	}
	if c.Routes.DetailPrefix == "" {
		c.Routes.DetailPrefix = "/blog/"
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = time.Second
	}
}

// OutputRoot is where snapshots land: output_dir, or the build directory
// when unset.
func (c *Config) OutputRoot() string {
	if c.App.OutputDir != "" {
		return c.App.OutputDir
	}
	return c.App.BuildDir
}

// ManifestPath is the configured manifest, or <build_dir>/blog/list.json.
func (c *Config) ManifestPath() string {
	if c.App.Manifest != "" {
		return c.App.Manifest
	}
	return filepath.Join(c.App.BuildDir, "blog", "list.json")
}

// Addr is the content server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the configuration for contradictions. It does not touch
// the filesystem.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Mode {
	case TransportStatic:
		if c.App.BuildDir == "" {
			errs = append(errs, errors.New("app.build_dir is required"))
		}
	case TransportExternal:
		if c.Transport.BaseURL == "" {
			errs = append(errs, errors.New("transport.base_url is required in external mode"))
		}
		if c.App.OutputDir == "" {
			errs = append(errs, errors.New("app.output_dir is required in external mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.mode %q: want static or external", c.Transport.Mode))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Warmup < 0 {
		errs = append(errs, errors.New("server.warmup must not be negative"))
	}
	if c.Render.ReadinessTimeout >= c.Render.NavigationTimeout {
		errs = append(errs, fmt.Errorf("render.readiness_timeout (%s) must be lower than render.navigation_timeout (%s)",
			c.Render.ReadinessTimeout, c.Render.NavigationTimeout))
	}
	if err := c.Render.Predicates.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range c.Routes.Structural {
		if _, err := route.ParseKind(string(r.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("routes.structural %q: %w", r.Path, err))
		}
		if hasDotSegment(r.Path) {
			errs = append(errs, fmt.Errorf("routes.structural %q: dot segments are not allowed", r.Path))
		}
	}
	if c.Browser.RecycleAfter < 0 {
		errs = append(errs, errors.New("browser.recycle_after must not be negative"))
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook", "nats":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: %s sink needs a url", i, s.Type))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// hasDotSegment reports whether p contains a "." or ".." path segment.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(strings.ReplaceAll(p, `\`, "/"), "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
