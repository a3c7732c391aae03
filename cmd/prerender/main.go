// CLAUDE:SUMMARY CLI entry point for prerender: render, routes, serve, verify and watch subcommands over one config.
// Command prerender snapshots a built single-page application into static
// HTML, one file per route.
//
// Usage:
//
//	prerender render                       # one run with defaults, .env and PRERENDER_* vars
//	prerender -c prerender.yaml render     # one run from a YAML config
//	prerender routes                       # print the resolved crawl list
//	prerender serve                        # preview the output tree
//	prerender verify --shell dist/index.html
//	prerender watch                        # re-render when the manifest changes
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("prerender"),
		kong.Description("Static snapshot generator for single-page applications."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	g := &Global{Ctx: ctx, Logger: newLogger(cli.LogLevel)}
	err := kctx.Run(g, &cli)

	var exit exitError
	if errors.As(err, &exit) {
		stop()
		os.Exit(exit.code)
	}
	if err != nil {
		g.Logger.Error("prerender: fatal", "error", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
