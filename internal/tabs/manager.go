// Package tabs opens ephemeral, unfocused browser tabs, waits for them to
// finish loading and guarantees they are closed exactly once.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

// LoadState is the navigation state of an ephemeral tab.
type LoadState string

const (
	StateLoading  LoadState = "loading"
	StateComplete LoadState = "complete"
	StateError    LoadState = "error"
)

// Target is one browsing context created by a Driver.
type Target interface {
	ID() string
	// Navigate loads url and blocks until the load event or an error.
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Driver creates browsing contexts.
type Driver interface {
	NewTarget(ctx context.Context) (Target, error)
}

// Manager owns the lifecycle of ephemeral tabs.
type Manager struct {
	driver Driver
	settle time.Duration

	mu    sync.Mutex
	hooks []func(tabID string)
	open  map[string]*Handle
}

// NewManager creates a manager. settle is waited after navigation completes so
// page scripts can issue their own resource requests.
func NewManager(driver Driver, settle time.Duration) *Manager {
	return &Manager{
		driver: driver,
		settle: settle,
		open:   make(map[string]*Handle),
	}
}

// OnClose registers fn to run once for every tab closed by this manager.
func (m *Manager) OnClose(fn func(tabID string)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// OpenCount returns the number of tabs opened and not yet closed.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// OpenAndWait opens url in a new tab and waits up to timeout for it to load.
// On failure the tab is already closed and the error carries
// NAVIGATION_TIMEOUT or NAVIGATION_FAILED. On success the caller owns the
// handle and must Close it.
func (m *Manager) OpenAndWait(ctx context.Context, url string, timeout time.Duration) (*Handle, error) {
	target, err := m.driver.NewTarget(ctx)
	if err != nil {
		return nil, apperr.New(apperr.CodeNavigationFailed, "open tab", err)
	}

	h := &Handle{manager: m, target: target, url: url, state: StateLoading}
	m.mu.Lock()
	m.open[h.ID()] = h
	m.mu.Unlock()

	slog.Debug("tab opened", "tab_id", h.ID(), "url", truncateURL(url), "timeout", timeout)

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	err = target.Navigate(navCtx, url)
	timedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	if err != nil {
		h.setState(StateError)
		if closeErr := h.Close(); closeErr != nil {
			slog.Warn("tab close after navigation error failed", "tab_id", h.ID(), "error", closeErr)
		}
		if timedOut {
			return nil, apperr.New(apperr.CodeNavigationTimeout, fmt.Sprintf("tab did not load within %s: %s", timeout, url), err)
		}
		return nil, apperr.New(apperr.CodeNavigationFailed, "tab load failed: "+url, err)
	}
	h.setState(StateComplete)

	if m.settle > 0 {
		select {
		case <-time.After(m.settle):
		case <-ctx.Done():
			if closeErr := h.Close(); closeErr != nil {
				slog.Warn("tab close after cancel failed", "tab_id", h.ID(), "error", closeErr)
			}
			return nil, apperr.New(apperr.CodeNavigationFailed, "tab settle interrupted: "+url, ctx.Err())
		}
	}

	slog.Debug("tab loaded", "tab_id", h.ID(), "url", truncateURL(url))
	return h, nil
}

// With opens url, runs fn with the loaded tab and always closes it.
func (m *Manager) With(ctx context.Context, url string, timeout time.Duration, fn func(*Handle) error) error {
	h, err := m.OpenAndWait(ctx, url, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := h.Close(); closeErr != nil {
			slog.Warn("tab close failed", "tab_id", h.ID(), "error", closeErr)
		}
	}()
	return fn(h)
}

func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	delete(m.open, h.ID())
	hooks := append([]func(string){}, m.hooks...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(h.ID())
	}
}

// Handle is an opaque reference to an ephemeral tab.
type Handle struct {
	manager *Manager
	target  Target
	url     string

	mu    sync.Mutex
	state LoadState

	closeOnce sync.Once
	closeErr  error
}

func (h *Handle) ID() string  { return h.target.ID() }
func (h *Handle) URL() string { return h.url }

func (h *Handle) State() LoadState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s LoadState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Title returns the loaded document title.
func (h *Handle) Title(ctx context.Context) (string, error) {
	return h.target.Title(ctx)
}

// HTML returns the rendered outer HTML of the document.
func (h *Handle) HTML(ctx context.Context) (string, error) {
	return h.target.HTML(ctx)
}

// Close closes the tab. Only the first call reaches the browser; later calls
// return the first result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.target.Close()
		h.manager.release(h)
		slog.Debug("tab closed", "tab_id", h.ID())
	})
	return h.closeErr
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
