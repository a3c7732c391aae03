// CLAUDE:SUMMARY Manages Chrome headless lifecycle for snapshot runs: launch or connect, isolated pages, recycling, teardown.
// Package browser manages the headless Chrome instance used for snapshot
// runs: launch (or connect to a remote instance) via Rod, hand out pages in
// isolated incognito contexts, recycle the process every N pages, close.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrLaunch wraps every failure to start or connect to Chrome.
var ErrLaunch = errors.New("browser: launch failed")

// Config configures the browser manager.
type Config struct {
	// Bin overrides the Chrome executable. Empty = launcher lookup
	// (system Chrome, or Rod's managed download).
	Bin string

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NoSandbox disables the Chrome sandbox (containers, CI runners).
	NoSandbox bool

	// Stealth creates pages through go-rod/stealth.
	Stealth bool

	// ResourceBlocking lists resource types to block: images, fonts, media,
	// stylesheets, manifests, pings. Unknown names fail Start.
	ResourceBlocking []string

	// RecycleAfter relaunches Chrome after this many pages. 0 = never.
	RecycleAfter int

	// IdleWindow is the quiet period that counts as network idle. Default: 500ms.
	IdleWindow time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.IdleWindow <= 0 {
		c.IdleWindow = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process for one run.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	blocked blockList
	startAt time.Time
	pages   int
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance). Errors wrap
// ErrLaunch.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: manager is closed", ErrLaunch)
	}
	if m.browser != nil {
		return nil
	}

	blocked, err := parseBlockList(m.cfg.ResourceBlocking)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	m.blocked = blocked

	b, err := m.launch(ctx)
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()
	m.pages = 0
	return nil
}

// Recycle kills Chrome and starts a fresh process.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	return m.recycleLocked(ctx)
}

// Close shuts down Chrome. Idempotent; safe when Start never succeeded.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.cleanup()
}

// OpenPage creates a blank page in a fresh incognito context. Nothing
// (cookies, storage, cache, JS globals) is shared with other pages. The
// caller must Close the page.
func (m *Manager) OpenPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if m.closed || m.browser == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser: no active browser")
	}
	if m.cfg.RecycleAfter > 0 && m.pages >= m.cfg.RecycleAfter {
		if err := m.recycleLocked(ctx); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	m.pages++
	b := m.browser
	m.mu.Unlock()

	inc, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}
	// Detach the context from ctx: Close must work after ctx expired.
	inc = inc.Context(context.Background())

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(inc)
	} else {
		page, err = inc.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		inc.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	p := &Page{page: page, incognito: inc, idle: m.cfg.IdleWindow, logger: m.cfg.Logger}

	if len(m.blocked) > 0 {
		router, err := m.blocked.hijack(page, &p.blocked)
		if err != nil {
			m.cfg.Logger.Warn("browser: resource blocking disabled for page", "error", err)
		} else {
			p.router = router
		}
	}
	return p, nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true).Set("disable-setuid-sandbox")
		}
		l = l.Set("disable-dev-shm-usage")

		u, err := l.Launch()
		if err != nil {
			l.Kill()
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "bin", m.cfg.Bin)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Kill()
			m.lnch = nil
		}
		return nil, fmt.Errorf("%w: connect: %v", ErrLaunch, err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked(ctx context.Context) error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt), "pages", m.pages)

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}

	b, err := m.launch(ctx)
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.pages = 0
	return nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
