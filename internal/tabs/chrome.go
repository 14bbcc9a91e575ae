package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ResponseObserver receives every response a tab completes.
type ResponseObserver interface {
	ObserveResponse(tabID, url, mimeType string)
}

// ChromeDriver creates tabs in a running Chromium over CDP.
type ChromeDriver struct {
	cdpURL   string
	observer ResponseObserver

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeDriver creates a driver for the CDP endpoint at cdpURL. observer
// may be nil.
func NewChromeDriver(cdpURL string, observer ResponseObserver) *ChromeDriver {
	return &ChromeDriver{cdpURL: cdpURL, observer: observer}
}

// Connect attaches to the browser.
func (d *ChromeDriver) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("Connecting to Chromium", "url", d.cdpURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), d.cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	d.mu.Lock()
	d.allocCtx, d.allocCancel = allocCtx, allocCancel
	d.browserCtx, d.browserCancel = browserCtx, browserCancel
	d.mu.Unlock()

	slog.Info("Connected to Chromium", "url", d.cdpURL)
	return nil
}

// NewTarget opens a blank tab with network and page domains enabled.
func (d *ChromeDriver) NewTarget(ctx context.Context) (Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("chrome driver not connected")
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx, network.Enable(), network.SetCacheDisabled(true), page.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to enable network/page domains: %w", err)
	}

	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		tabCancel()
		return nil, fmt.Errorf("tab target not attached")
	}
	t := &chromeTarget{id: string(c.Target.TargetID), ctx: tabCtx, cancel: tabCancel}
	chromedp.ListenTarget(tabCtx, d.createEventHandler(t.id))
	return t, nil
}

func (d *ChromeDriver) createEventHandler(tabID string) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				slog.Debug("Tab navigated", "tab_id", tabID, "url", truncateURL(e.Frame.URL))
			}
		case *network.EventResponseReceived:
			if d.observer != nil && e.Response != nil {
				d.observer.ObserveResponse(tabID, e.Response.URL, e.Response.MimeType)
			}
		case *network.EventLoadingFailed:
			slog.Debug("Tab request failed", "tab_id", tabID, "request_id", e.RequestID, "error", e.ErrorText, "canceled", e.Canceled)
		}
	}
}

// Close detaches from the browser. Tabs still open are closed with it.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.browserCtx = nil
	slog.Info("CDP driver closed")
	return nil
}

type chromeTarget struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *chromeTarget) ID() string { return t.id }

// bind derives a run context from the tab context that also honours ctx's
// deadline and cancellation. Cancelling it aborts the action, not the tab.
func (t *chromeTarget) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(t.ctx)
	if dl, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, dl)
		parentCancel := cancel
		cancel = func() {
			cancelDeadline()
			parentCancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (t *chromeTarget) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := t.bind(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (t *chromeTarget) Title(ctx context.Context) (string, error) {
	runCtx, cancel := t.bind(ctx)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (t *chromeTarget) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := t.bind(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (t *chromeTarget) Close() error {
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	if err != nil {
		return fmt.Errorf("close tab %s: %w", t.id, err)
	}
	return nil
}
