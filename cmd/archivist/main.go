package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/webarchivist/internal/config"
)

var (
	flagLogLevel string
	flagSink     string
)

var rootCmd = &cobra.Command{
	Use:           "archivist",
	Short:         "Download pages from Yandex Archive, the Presidential Library and Goskatalog",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error (default from ARCHIVIST_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagSink, "sink", "", "output bucket URL, e.g. file://./downloads or s3://bucket (default from ARCHIVIST_SINK_URL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagSink != "" {
		cfg.SinkURL = flagSink
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("logger setup failed: %w", err)
	}
	return cfg, nil
}

// setupLogger writes logs to the rotating file only; the terminal belongs to
// the progress bars.
func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
