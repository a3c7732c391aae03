package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/hazyhaar/snapgen/prerender"
)

// Global is shared by every subcommand.
type Global struct {
	Ctx    context.Context
	Logger *slog.Logger
}

// CLI holds the global flags and subcommands.
type CLI struct {
	Config   string           `short:"c" help:"YAML configuration file (optional)" type:"path"`
	EnvFile  string           `name:"env-file" help:"dotenv file loaded before PRERENDER_* variables" default:".env"`
	LogLevel string           `name:"log-level" help:"Log level: debug, info, warn, error" default:"info" enum:"debug,info,warn,error"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	Render RenderCmd `cmd:"" default:"1" help:"Render every route once and exit with the run's exit code"`
	Routes RoutesCmd `cmd:"" help:"Print the resolved crawl list as JSON"`
	Serve  ServeCmd  `cmd:"" help:"Serve the output tree over HTTP with the application fallback"`
	Verify VerifyCmd `cmd:"" help:"Check the output tree without starting a browser"`
	Watch  WatchCmd  `cmd:"" help:"Render, then re-render whenever the manifest changes"`
}

// exitError carries a process exit code out of a subcommand without being
// logged as a failure.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Overrides are flag-level settings applied on top of the loaded config.
type Overrides struct {
	BuildDir  string `name:"build-dir" help:"Application build directory"`
	OutputDir string `name:"output-dir" help:"Snapshot output directory (defaults to the build directory)"`
	Port      int    `help:"Content server port"`
	BaseURL   string `name:"base-url" help:"Render against an already running server instead of the build directory"`
}

func (o Overrides) apply(cfg *prerender.Config) {
	if o.BuildDir != "" {
		cfg.App.BuildDir = o.BuildDir
	}
	if o.OutputDir != "" {
		cfg.App.OutputDir = o.OutputDir
	}
	if o.Port > 0 {
		cfg.Server.Port = o.Port
	}
	if o.BaseURL != "" {
		cfg.Transport.Mode = prerender.TransportExternal
		cfg.Transport.BaseURL = o.BaseURL
	}
}

func (c *CLI) load(o Overrides) (*prerender.Config, error) {
	cfg, err := prerender.LoadConfig(c.Config, c.EnvFile)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newPipeline(cfg *prerender.Config, stdout io.Writer, logger *slog.Logger) (*prerender.Pipeline, func() error, error) {
	sinks, closeSinks, err := prerender.SinksFromConfig(cfg, stdout, logger)
	if err != nil {
		return nil, nil, err
	}
	return prerender.New(cfg, logger, sinks...), closeSinks, nil
}

// RenderCmd performs a single run.
type RenderCmd struct {
	Overrides `embed:""`
}

func (r *RenderCmd) Run(g *Global, cli *CLI) error {
	cfg, err := cli.load(r.Overrides)
	if err != nil {
		return err
	}
	p, closeSinks, err := newPipeline(cfg, os.Stdout, g.Logger)
	if err != nil {
		return err
	}
	sum := p.Run(g.Ctx)
	if err := closeSinks(); err != nil {
		g.Logger.Warn("prerender: close sinks", "error", err)
	}
	if sum.ExitCode != 0 {
		return exitError{code: sum.ExitCode}
	}
	return nil
}

// RoutesCmd prints the crawl list.
type RoutesCmd struct {
	Overrides `embed:""`
}

func (r *RoutesCmd) Run(g *Global, cli *CLI) error {
	cfg, err := cli.load(r.Overrides)
	if err != nil {
		return err
	}
	routes, err := prerender.ResolveRoutes(cfg, g.Logger)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(routes)
}

// ServeCmd previews the output tree.
type ServeCmd struct {
	Overrides `embed:""`
	Root string `help:"Directory to serve (defaults to the output root)" type:"path"`
}

func (s *ServeCmd) Run(g *Global, cli *CLI) error {
	cfg, err := cli.load(s.Overrides)
	if err != nil {
		return err
	}
	return prerender.Serve(g.Ctx, cfg, s.Root, g.Logger)
}

// VerifyCmd checks the output tree.
type VerifyCmd struct {
	Overrides `embed:""`
	Shell string `help:"Unrendered application document; snapshots identical to it are reported" type:"existingfile"`
}

func (v *VerifyCmd) Run(g *Global, cli *CLI) error {
	cfg, err := cli.load(v.Overrides)
	if err != nil {
		return err
	}
	var shell []byte
	if v.Shell != "" {
		if shell, err = os.ReadFile(v.Shell); err != nil {
			return fmt.Errorf("read shell: %w", err)
		}
	}
	report, err := prerender.Verify(cfg, shell, g.Logger)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	g.Logger.Info("prerender: verify", "ok", report.OK, "bad", report.Bad)
	if !report.Passed() {
		return exitError{code: 1}
	}
	return nil
}

// WatchCmd keeps re-rendering until interrupted.
type WatchCmd struct {
	Overrides `embed:""`
}

func (w *WatchCmd) Run(g *Global, cli *CLI) error {
	cfg, err := cli.load(w.Overrides)
	if err != nil {
		return err
	}
	p, closeSinks, err := newPipeline(cfg, os.Stdout, g.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			g.Logger.Warn("prerender: close sinks", "error", err)
		}
	}()
	return prerender.Watch(g.Ctx, p)
}
