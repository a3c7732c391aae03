package prerender

import (
	"log/slog"

	"github.com/hazyhaar/snapgen/prerender/internal/config"
	"github.com/hazyhaar/snapgen/prerender/internal/registry"
	"github.com/hazyhaar/snapgen/prerender/internal/verify"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// Config is the run configuration. See DefaultConfig and LoadConfig.
type Config = config.Config

// SinkConfig defines an output backend in Config.Sinks.
type SinkConfig = config.SinkConfig

// Transport modes for Config.Transport.Mode.
const (
	TransportStatic   = config.TransportStatic
	TransportExternal = config.TransportExternal
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig builds a validated Config from defaults, the optional YAML file
// at path, the optional .env file and PRERENDER_* variables.
func LoadConfig(path, dotenv string) (*Config, error) { return config.Load(path, dotenv) }

// ResolveRoutes loads the configured manifest and returns the crawl list:
// structural routes first, then one detail route per manifest entry.
func ResolveRoutes(cfg *Config, logger *slog.Logger) ([]route.Route, error) {
	entries, err := registry.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	if entries == nil {
		logger.Info("prerender: no manifest, structural routes only", "manifest", cfg.ManifestPath())
	}
	return registry.Resolve(entries, cfg.Routes.Structural, registry.Options{
		IDField:      cfg.Routes.IDField,
		DetailPrefix: cfg.Routes.DetailPrefix,
		Logger:       logger,
	}), nil
}

// VerifyReport is the outcome of Verify.
type VerifyReport = verify.Report

// Verify checks the output tree against the resolved routes and readiness
// predicates without starting a browser. shell, when non-nil, is the
// unrendered application document.
func Verify(cfg *Config, shell []byte, logger *slog.Logger) (*VerifyReport, error) {
	routes, err := ResolveRoutes(cfg, logger)
	if err != nil {
		return nil, err
	}
	return verify.Tree(cfg.OutputRoot(), routes, cfg.Render.Predicates, shell)
}
