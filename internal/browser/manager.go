// Package browser runs Chrome through rod and exposes its pages as
// surface.Surface values.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedcrawler/pkg/config"
	"feedcrawler/pkg/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Manager owns one Chrome process shared by every surface it opens
type Manager struct {
	cfg    config.BrowserConfig
	logger logger.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a manager. Chrome starts on the first NewSurface.
func NewManager(cfg config.BrowserConfig, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	return &Manager{cfg: cfg, logger: log.WithField("component", "browser")}
}

// start launches or attaches to Chrome. Caller holds mu.
func (m *Manager) start(ctx context.Context) (*rod.Browser, error) {
	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		m.logger.InfoWithFields("Connecting to remote browser", map[string]interface{}{"url": wsURL})
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		m.logger.InfoWithFields("Launched local browser", map[string]interface{}{
			"headless": m.cfg.Headless,
			"stealth":  m.cfg.Stealth,
		})
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	// the connection outlives the context used to dial it
	m.browser = b.Context(context.Background())
	return m.browser, nil
}

// NewSurface opens a fresh page
func (m *Manager) NewSurface(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	b, err := m.start(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if m.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}); err != nil {
			m.logger.WithError(err).Warn("Failed to override user agent")
		}
	}

	var router *rod.HijackRouter
	if len(m.cfg.ResourceBlocking) > 0 {
		router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}

	return &Page{
		page:       page,
		router:     router,
		navTimeout: m.cfg.NavigationTimeout,
		logger:     m.logger,
	}, nil
}

// Close shuts Chrome down. Pages opened from it stop working.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}
