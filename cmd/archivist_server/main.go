package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/webarchivist/internal/api"
	"github.com/dgnsrekt/webarchivist/internal/app"
	"github.com/dgnsrekt/webarchivist/internal/config"
	"github.com/dgnsrekt/webarchivist/internal/netutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("archivist_server config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"browser_autolaunch", cfg.BrowserAutoLaunch,
		"browser_headless", cfg.BrowserHeadless,
		"sink_url", cfg.SinkURL,
		"nav_timeout", cfg.NavTimeout,
		"intercept_timeout", cfg.InterceptTimeout,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"version", cfg.Version,
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	a, err := app.New(startCtx, cfg, true)
	startCancel()
	if err != nil {
		slog.Error("failed to start archivist", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	host, _, err := net.SplitHostPort(cfg.BindAddr)
	if err != nil {
		slog.Error("invalid bind address", "bind_addr", cfg.BindAddr, "error", err)
		a.Close()
		os.Exit(1)
	}
	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, netutil.Candidates(host, cfg.PortCandidates), cfg.PortCandidates != "")
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		a.Close()
		os.Exit(1)
	}

	h := api.NewServer(a.Service, a.Broker, cfg.Version)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("archivist_server listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs", "sink", a.Sink.URL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("archivist_server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("archivist_server shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
