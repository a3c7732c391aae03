package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/snapgen/prerender/route"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.Server.Port != 4200 {
		t.Errorf("port = %d", c.Server.Port)
	}
	if c.Render.NavigationTimeout != 60*time.Second || c.Render.ReadinessTimeout != 30*time.Second {
		t.Errorf("timeouts = %s/%s", c.Render.NavigationTimeout, c.Render.ReadinessTimeout)
	}
	if c.Render.ExtractTimeout != 30*time.Second {
		t.Errorf("extract timeout = %s", c.Render.ExtractTimeout)
	}
	if c.Server.Warmup != 3*time.Second {
		t.Errorf("warmup = %s", c.Server.Warmup)
	}
	if c.OutputRoot() != c.App.BuildDir {
		t.Errorf("output root = %q, want build dir", c.OutputRoot())
	}
	if c.ManifestPath() != filepath.Join(c.App.BuildDir, "blog", "list.json") {
		t.Errorf("manifest = %q", c.ManifestPath())
	}
	if c.Addr() != "127.0.0.1:4200" {
		t.Errorf("addr = %q", c.Addr())
	}
	if !c.Browser.SandboxDisabled() {
		t.Error("no_sandbox should default to true")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prerender.yaml")
	yml := `
app:
  build_dir: dist/site/browser
  output_dir: out
server:
  port: 8080
  warmup: 500ms
render:
  navigation_timeout: 20s
  readiness_timeout: 5s
  predicates:
    detail:
      selector: article.post
      non_empty: true
browser:
  no_sandbox: false
  resource_blocking: [images, fonts]
  recycle_after: 50
routes:
  structural:
    - {path: /, kind: listing}
    - {path: /about, kind: static}
  detail_prefix: /posts/
sinks:
  - type: stdout
  - type: nats
    url: nats://127.0.0.1:4222
    subject_prefix: site.prerender
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != 8080 || c.Server.Warmup != 500*time.Millisecond {
		t.Errorf("server = %+v", c.Server)
	}
	if c.Render.NavigationTimeout != 20*time.Second {
		t.Errorf("navigation = %s", c.Render.NavigationTimeout)
	}
	if got := c.Render.Predicates[route.KindDetail]; got.Selector != "article.post" || !got.NonEmpty {
		t.Errorf("detail predicate = %+v", got)
	}
	if got := c.Render.Predicates[route.KindListing]; got.Selector != "app-home" {
		t.Errorf("listing predicate not defaulted: %+v", got)
	}
	if c.Browser.SandboxDisabled() {
		t.Error("no_sandbox: false ignored")
	}
	if len(c.Routes.Structural) != 2 || c.Routes.Structural[1].Kind != route.KindStatic {
		t.Errorf("structural = %+v", c.Routes.Structural)
	}
	if c.Routes.IDField != "slug" || c.Routes.DetailPrefix != "/posts/" {
		t.Errorf("routes = %+v", c.Routes)
	}
	if c.OutputRoot() != "out" {
		t.Errorf("output root = %q", c.OutputRoot())
	}
	if len(c.Sinks) != 2 || c.Sinks[1].SubjectPrefix != "site.prerender" {
		t.Errorf("sinks = %+v", c.Sinks)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [not, a, map"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PRERENDER_PORT":            "9000",
		"PRERENDER_NAV_TIMEOUT":     "45000",
		"PRERENDER_READY_TIMEOUT":   "15s",
		"PRERENDER_EXTRACT_TIMEOUT": "20s",
		"PRERENDER_WARMUP":          "0",
		"PRERENDER_BROWSER_BIN":     "/usr/bin/chromium",
		"PRERENDER_BUILD_DIR":       "build",
		"PRERENDER_WATCH_SCHEDULE":  "0 3 * * *",
	}
	c := Default()
	if err := c.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != 9000 {
		t.Errorf("port = %d", c.Server.Port)
	}
	if c.Render.NavigationTimeout != 45*time.Second {
		t.Errorf("navigation = %s", c.Render.NavigationTimeout)
	}
	if c.Render.ReadinessTimeout != 15*time.Second {
		t.Errorf("readiness = %s", c.Render.ReadinessTimeout)
	}
	if c.Render.ExtractTimeout != 20*time.Second {
		t.Errorf("extract = %s", c.Render.ExtractTimeout)
	}
	if c.Server.Warmup != 0 {
		t.Errorf("warmup = %s", c.Server.Warmup)
	}
	if c.Browser.Bin != "/usr/bin/chromium" || c.App.BuildDir != "build" {
		t.Errorf("browser bin = %q build dir = %q", c.Browser.Bin, c.App.BuildDir)
	}
	if c.Watch.Schedule != "0 3 * * *" {
		t.Errorf("schedule = %q", c.Watch.Schedule)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	env := map[string]string{
		"PRERENDER_PORT":        "http",
		"PRERENDER_NAV_TIMEOUT": "-5s",
	}
	c := Default()
	err := c.ApplyEnv(func(k string) string { return env[k] })
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "PRERENDER_PORT") || !strings.Contains(err.Error(), "PRERENDER_NAV_TIMEOUT") {
		t.Errorf("error should name both variables: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"readiness not below navigation", func(c *Config) { c.Render.ReadinessTimeout = c.Render.NavigationTimeout }, "readiness_timeout"},
		{"unknown transport", func(c *Config) { c.Transport.Mode = "ssh" }, "transport.mode"},
		{"external without base url", func(c *Config) {
			c.Transport.Mode = TransportExternal
			c.App.OutputDir = "out"
		}, "base_url"},
		{"external without output dir", func(c *Config) {
			c.Transport.Mode = TransportExternal
			c.Transport.BaseURL = "http://localhost:4200"
		}, "output_dir"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad structural kind", func(c *Config) { c.Routes.Structural = []route.Route{{Path: "/x", Kind: "page"}} }, "structural"},
		{"structural path escapes output", func(c *Config) {
			c.Routes.Structural = []route.Route{{Path: "/../../x", Kind: route.KindStatic}}
		}, "dot segments"},
		{"structural path with dot", func(c *Config) {
			c.Routes.Structural = []route.Route{{Path: "/about/./team", Kind: route.KindStatic}}
		}, "dot segments"},
		{"structural backslash traversal", func(c *Config) {
			c.Routes.Structural = []route.Route{{Path: `\..\x`, Kind: route.KindStatic}}
		}, "dot segments"},
		{"webhook without url", func(c *Config) { c.Sinks = []SinkConfig{{Type: "webhook"}} }, "needs a url"},
		{"unknown sink", func(c *Config) { c.Sinks = []SinkConfig{{Type: "kafka"}} }, "unknown type"},
		{"missing predicate", func(c *Config) { delete(c.Render.Predicates, route.KindStatic) }, "static"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env must be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("PRERENDER_TEST_DOTENV_KEY=from-file\n"), 0o644)
	t.Setenv("PRERENDER_TEST_DOTENV_KEY", "")
	os.Unsetenv("PRERENDER_TEST_DOTENV_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PRERENDER_TEST_DOTENV_KEY"); got != "from-file" {
		t.Errorf("env = %q", got)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prerender.yaml")
	os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644)
	t.Setenv("PRERENDER_PORT", "8181")

	c, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != 8181 {
		t.Errorf("port = %d, want env override", c.Server.Port)
	}
}
