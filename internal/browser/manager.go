// Package browser owns the Chrome lifecycle behind the capture sessions:
// launch or remote-connect via Rod, monitor the JS heap, recycle long-lived
// processes, and hand out stealth tabs for page attachment.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how pages are driven.
type Mode int

const (
	ModeHeadless Mode = iota // default: headless with stealth
	ModeHeadful              // headful under Xvfb for hostile targets
)

// heapCheckInterval paces the recycle monitor.
const heapCheckInterval = 30 * time.Second

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty launches a local Chrome.
	RemoteURL string

	// MemoryLimit in bytes. Chrome is recycled when its JS heap exceeds
	// it. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of one Chrome process.
	// Default: 4h.
	RecycleInterval time.Duration

	// BlockResources lists resource types to drop at the network layer.
	// Captures only need structure; images, fonts, and media are dead
	// weight. Default: none.
	BlockResources []string

	Mode Mode

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager drives one Chrome process. Tabs opened against a recycled
// process are dead; the recycle hook lets the session table drop them.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu       sync.RWMutex
	handle   *rod.Browser
	local    *launcher.Launcher // nil when attached to a remote Chrome
	display  *virtualDisplay    // nil outside headful mode
	bootedAt time.Time
	stopped  bool

	recycleHook func()
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// OnRecycle registers the post-recycle notification. At most one.
func (m *Manager) OnRecycle(fn func()) {
	m.mu.Lock()
	m.recycleHook = fn
	m.mu.Unlock()
}

// Start brings up Chrome and begins the heap and lifetime monitor. The
// monitor stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if err := m.bootLocked(); err != nil {
		return nil, err
	}

	go m.watch(ctx)
	return m.handle, nil
}

// Browser returns the current Rod handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Recycle tears Chrome down, boots a fresh process, and fires the hook.
func (m *Manager) Recycle() error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}

	m.log.Info("browser: recycling", "uptime", time.Since(m.bootedAt))
	m.teardownLocked()
	if err := m.bootLocked(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	hook := m.recycleHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	m.log.Info("browser: recycled")
	return nil
}

// Close shuts down Chrome and the virtual display. The manager cannot be
// restarted afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.teardownLocked()
	return nil
}

// bootLocked connects to the configured Chrome: remote when a control URL
// is set, a freshly launched local process otherwise.
func (m *Manager) bootLocked() error {
	if m.cfg.Mode == ModeHeadful && m.display == nil {
		d, err := openDisplay(m.cfg.XvfbDisplay, 5*time.Second)
		if err != nil {
			return err
		}
		m.display = d
		m.log.Info("browser: virtual display up", "display", d.name, "pid", d.pid())
	}

	controlURL := m.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.cfg.Mode != ModeHeadful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == ModeHeadful {
			l = l.Env("DISPLAY", m.cfg.XvfbDisplay)
		}

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		controlURL = u
		m.local = l
		m.log.Info("browser: local chrome up", "headful", m.cfg.Mode == ModeHeadful)
	} else {
		m.log.Info("browser: attaching to remote chrome", "url", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		m.log.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.handle = b
	m.bootedAt = time.Now()
	return nil
}

func (m *Manager) teardownLocked() {
	if m.handle != nil {
		m.handle.Close()
		m.handle = nil
	}
	if m.local != nil {
		m.local.Cleanup()
		m.local = nil
	}
	if m.display != nil {
		m.display.close()
		m.display = nil
		m.log.Info("browser: virtual display closed")
	}
}

// watch recycles Chrome when it outlives its interval or its JS heap grows
// past the limit. Heap-read failures are not actionable and only logged at
// debug.
func (m *Manager) watch(ctx context.Context) {
	ticker := time.NewTicker(heapCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		if m.stopped || m.handle == nil {
			m.mu.RUnlock()
			return
		}
		b := m.handle
		age := time.Since(m.bootedAt)
		m.mu.RUnlock()

		reason := ""
		if age > m.cfg.RecycleInterval {
			reason = "lifetime"
		} else if used, err := heapBytes(b); err != nil {
			m.log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
			m.log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if reason == "" {
			continue
		}

		m.log.Info("browser: recycle triggered", "reason", reason, "age", age)
		if err := m.Recycle(); err != nil {
			m.log.Error("browser: recycle failed", "error", err)
		}
	}
}

// heapBytes reads the JS heap through the first open page as a proxy for
// overall process weight.
func heapBytes(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
