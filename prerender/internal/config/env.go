package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PRERENDER_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from PRERENDER_* variables looked up through
// getenv (os.Getenv when nil). Timeouts accept a Go duration ("45s") or a
// bare number of milliseconds ("45000").
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(name string) string { return strings.TrimSpace(getenv(EnvPrefix + name)) }

	var errs []error
	str := func(name string, dst *string) {
		if v := get(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		v := get(name)
		if v == "" {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	if v := get("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPORT: %w", EnvPrefix, err))
		} else {
			c.Server.Port = port
		}
	}
	dur("NAV_TIMEOUT", &c.Render.NavigationTimeout)
	dur("READY_TIMEOUT", &c.Render.ReadinessTimeout)
	dur("EXTRACT_TIMEOUT", &c.Render.ExtractTimeout)
	dur("WARMUP", &c.Server.Warmup)
	str("BROWSER_BIN", &c.Browser.Bin)
	str("BROWSER_REMOTE", &c.Browser.Remote)
	str("BUILD_DIR", &c.App.BuildDir)
	str("OUTPUT_DIR", &c.App.OutputDir)
	str("MANIFEST", &c.App.Manifest)
	str("BASE_URL", &c.Transport.BaseURL)
	str("TRANSPORT", &c.Transport.Mode)
	str("WATCH_SCHEDULE", &c.Watch.Schedule)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative duration %q", v)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then the .env file, then the environment. The result is
// validated.
func Load(path, dotenv string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(dotenv); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
