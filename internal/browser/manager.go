// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/browser/session"
	"github.com/xkilldash9x/comet-monkey/internal/config"
)

const (
	launchTimeout       = 30 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

// Manager owns the browser process and hands out one isolated tab per page run.
type Manager struct {
	logger  *zap.Logger
	browser config.BrowserConfig
	network config.NetworkConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager creates a manager. The browser is launched lazily on the first
// NewSession call.
func NewManager(cfg config.Interface, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		browser:  cfg.Browser(),
		network:  cfg.Network(),
		sessions: make(map[string]*session.Session),
	}
	m.logger.Debug("Browser manager created (initialization deferred).")
	return m
}

// DefaultAllocatorOptions builds the exec allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// allocatorFlags returns the command line flags implied by cfg, keyed by flag
// name without the leading dashes.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"disable-dev-shm-usage":         true,
		"disable-extensions":            true,
		"disable-background-networking": true,
		"mute-audio":                    true,
	}
	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
	}
	if cfg.DisableCache {
		flags["disk-cache-size"] = "1"
		flags["media-cache-size"] = "1"
		flags["disable-cache"] = true
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// initialize starts the browser process and confirms it responds.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.browser.Headless))

		// The browser outlives any single caller context.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.browser)...)
		var ctxOpts []chromedp.ContextOption
		if m.browser.Debug {
			sugar := m.logger.Sugar()
			ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
		}
		m.rootCtx, m.rootCancel = chromedp.NewContext(m.allocCtx, ctxOpts...)

		// The first Run allocates the browser and ties it to the context it
		// is given, so it must not carry the caller's deadline.
		launched := make(chan error, 1)
		go func() { launched <- chromedp.Run(m.rootCtx) }()

		var err error
		select {
		case err = <-launched:
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(launchTimeout):
			err = fmt.Errorf("timed out after %s", launchTimeout)
		}
		if err != nil {
			m.rootCancel()
			m.allocCancel()
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		m.logger.Info("Browser launched successfully.")
	})
	return m.initErr
}

// NewSession opens a new tab configured from the network and browser settings.
func (m *Manager) NewSession(ctx context.Context) (*session.Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	opts := session.Options{
		NavigationTimeout: m.network.NavigationTimeout,
		IdleTimeout:       m.network.IdleTimeout,
		QuietPeriod:       m.network.QuietPeriod,
		PostLoadWait:      m.network.PostLoadWait,
		Headers:           m.network.Headers,
		UserAgent:         m.browser.UserAgent,
		ViewportWidth:     m.browser.Viewport["width"],
		ViewportHeight:    m.browser.Viewport["height"],
		EventBufferSize:   m.network.EventBufferSize,
	}

	m.wg.Add(1)
	var s *session.Session
	onClose := func() {
		m.mu.Lock()
		if s != nil {
			delete(m.sessions, s.ID())
		}
		m.mu.Unlock()
		m.wg.Done()
	}
	s, err := session.New(ctx, m.rootCtx, m.logger, opts, onClose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.logger.Debug("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// NewPage implements schemas.BrowserManager.
func (m *Manager) NewPage(ctx context.Context) (schemas.PageSession, error) {
	s, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Shutdown closes every open session and then the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.rootCancel == nil {
		m.logger.Debug("Browser was never launched, nothing to shut down.")
		return nil
	}
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	open := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()
	for _, s := range open {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	// Cancelling the first browser context closes the browser gracefully.
	closed := make(chan struct{})
	go func() {
		m.rootCancel()
		m.allocCancel()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(shutdownGracePeriod):
		return fmt.Errorf("browser did not exit within %s", shutdownGracePeriod)
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
