// Package app assembles the download service from configuration. Both the
// CLI and the HTTP server start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dgnsrekt/webarchivist/internal/browser"
	"github.com/dgnsrekt/webarchivist/internal/config"
	"github.com/dgnsrekt/webarchivist/internal/fetch"
	"github.com/dgnsrekt/webarchivist/internal/intercept"
	"github.com/dgnsrekt/webarchivist/internal/notify"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/relay"
	"github.com/dgnsrekt/webarchivist/internal/service"
	"github.com/dgnsrekt/webarchivist/internal/sink"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/storage"
	"github.com/dgnsrekt/webarchivist/internal/tabs"
	"github.com/dgnsrekt/webarchivist/internal/tiles"
)

const journalBuffer = 256

// App owns the service and everything it was built from.
type App struct {
	Service *service.Service
	Broker  *relay.Broker
	Sink    *sink.Sink

	launcher *browser.Launcher
	driver   *tabs.ChromeDriver
	journal  *storage.Journal
}

// New builds the service. withBrowser connects to (and, when configured,
// launches) Chromium; without it only sites that need no browser work.
func New(ctx context.Context, cfg *config.Config, withBrowser bool) (*App, error) {
	if err := rangejob.Preflight(); err != nil {
		return nil, err
	}

	a := &App{Broker: relay.NewBroker()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	client := fetch.NewClient(fetch.Options{
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.FetchRPS,
		Burst:             cfg.FetchBurst,
		RetryAttempts:     cfg.FetchRetries,
	})
	prober, err := tiles.NewProber(client, tiles.ProbeOptions{MaxLevel: cfg.ProbeMaxLevel, MinLevel: cfg.ProbeMinLevel})
	if err != nil {
		return nil, err
	}

	a.Sink, err = sink.Open(ctx, cfg.SinkURL, "")
	if err != nil {
		return nil, err
	}
	if cfg.JournalDir != "" {
		a.journal = storage.NewJournal(cfg.JournalDir, journalBuffer, 0)
	}

	opts := service.Options{
		Fetch:            client,
		Sink:             a.Sink,
		Prober:           prober,
		Assembler:        tiles.NewAssembler(client, cfg.TileConcurrency, cfg.JPEGQuality),
		Broker:           a.Broker,
		Notifier:         &notify.Notifier{Endpoint: cfg.NtfyEndpoint, Client: &http.Client{Timeout: 10 * time.Second}},
		NavTimeout:       cfg.NavTimeout,
		InterceptTimeout: cfg.InterceptTimeout,
		TileSize:         cfg.TileSize,
		ManifestURL:      cfg.ManifestURL,
		Version:          cfg.Version,
	}
	if a.journal != nil {
		opts.Journal = a.journal
	}

	if withBrowser {
		store, mgr, err := a.connectBrowser(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.Store = store
		opts.Tabs = mgr
	}

	a.Service = service.New(opts)
	ok = true
	return a, nil
}

func (a *App) connectBrowser(ctx context.Context, cfg *config.Config) (*intercept.Store, *tabs.Manager, error) {
	if cfg.BrowserAutoLaunch {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.BrowserProfileDir,
			Headless:   cfg.BrowserHeadless,
		})
		if err := a.launcher.Launch(ctx); err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	rules, err := config.LoadSites(cfg.SitesFile)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("sites file not found, using built-in rules", "path", cfg.SitesFile)
		rules, err = []intercept.Rule{sites.YandexRule()}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	store := intercept.NewStore()
	a.driver = tabs.NewChromeDriver(cfg.CDPURL(), intercept.NewWatcher(store, rules))
	if err := a.driver.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect browser at %s: %w", cfg.CDPURL(), err)
	}
	mgr := tabs.NewManager(a.driver, cfg.Settle)
	mgr.OnClose(store.Purge)
	return store, mgr, nil
}

// Close stops jobs and releases the browser, the sink and the journal.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			slog.Debug("browser driver close failed", "error", err)
		}
	}
	if a.launcher != nil {
		a.launcher.Stop()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}
	if a.Sink != nil {
		if err := a.Sink.Close(); err != nil {
			slog.Debug("sink close failed", "error", err)
		}
	}
}
