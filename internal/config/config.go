// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings shared by the CLI and the server.
type Config struct {
	// CDP connection and browser process
	CDPAddress        string
	CDPPort           int
	BrowserAutoLaunch bool
	BrowserHeadless   bool
	BrowserProfileDir string

	// HTTP server
	BindAddr       string
	PortCandidates string

	LogLevel string
	LogFile  string

	SinkURL string

	// Page loading and interception
	NavTimeout       time.Duration
	Settle           time.Duration
	InterceptTimeout time.Duration

	// Tiles
	ProbeMaxLevel   int
	ProbeMinLevel   int
	TileSize        int
	TileConcurrency int
	JPEGQuality     int

	// Outbound fetches
	FetchRPS     float64
	FetchBurst   int
	FetchRetries int
	UserAgent    string

	JournalDir   string
	NtfyEndpoint string

	ManifestURL string
	Version     string

	SitesFile string
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BrowserAutoLaunch: getEnvBoolOrDefault("BROWSER_AUTOLAUNCH", true),
		BrowserHeadless:   getEnvBoolOrDefault("BROWSER_HEADLESS", true),
		BrowserProfileDir: getEnvOrDefault("BROWSER_PROFILE_DIR", "./browser_profile"),

		BindAddr:       getEnvOrDefault("ARCHIVIST_BIND_ADDR", "127.0.0.1:8790"),
		PortCandidates: getEnvOrDefault("ARCHIVIST_PORT_CANDIDATES", "8791,8792,8793"),

		LogLevel: strings.ToLower(getEnvOrDefault("ARCHIVIST_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("ARCHIVIST_LOG_FILE", "logs/archivist.log"),

		SinkURL: getEnvOrDefault("ARCHIVIST_SINK_URL", "file://./downloads"),

		NavTimeout:       getEnvMillisOrDefault("ARCHIVIST_NAV_TIMEOUT_MS", 35000),
		Settle:           getEnvMillisOrDefault("ARCHIVIST_SETTLE_MS", 1000),
		InterceptTimeout: getEnvMillisOrDefault("ARCHIVIST_INTERCEPT_TIMEOUT_MS", 10000),

		ProbeMaxLevel:   getEnvIntOrDefault("ARCHIVIST_PROBE_MAX_LEVEL", 10),
		ProbeMinLevel:   getEnvIntOrDefault("ARCHIVIST_PROBE_MIN_LEVEL", 0),
		TileSize:        getEnvIntOrDefault("ARCHIVIST_TILE_SIZE", 256),
		TileConcurrency: getEnvIntOrDefault("ARCHIVIST_TILE_CONCURRENCY", 8),
		JPEGQuality:     getEnvIntOrDefault("ARCHIVIST_JPEG_QUALITY", 92),

		FetchRPS:     getEnvFloatOrDefault("ARCHIVIST_FETCH_RPS", 8),
		FetchBurst:   getEnvIntOrDefault("ARCHIVIST_FETCH_BURST", 8),
		FetchRetries: getEnvIntOrDefault("ARCHIVIST_FETCH_RETRIES", 2),
		UserAgent:    getEnvOrDefault("ARCHIVIST_USER_AGENT", ""),

		JournalDir:   getEnvOrDefault("ARCHIVIST_JOURNAL_DIR", "./journal"),
		NtfyEndpoint: getEnvOrDefault("ARCHIVIST_NTFY_ENDPOINT", ""),

		ManifestURL: getEnvOrDefault("ARCHIVIST_MANIFEST_URL", "https://afterliferus.github.io/webarchivist/manifest.json"),
		Version:     getEnvOrDefault("ARCHIVIST_VERSION", "1.0.0"),

		SitesFile: getEnvOrDefault("ARCHIVIST_SITES_FILE", "./config/sites.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the downloaders cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.ProbeMinLevel < 0 || c.ProbeMinLevel > c.ProbeMaxLevel:
		return fmt.Errorf("config: probe levels %d..%d are invalid", c.ProbeMaxLevel, c.ProbeMinLevel)
	case c.TileSize <= 0:
		return fmt.Errorf("config: tile size must be positive, got %d", c.TileSize)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("config: jpeg quality must be 1..100, got %d", c.JPEGQuality)
	case c.NavTimeout <= 0 || c.InterceptTimeout <= 0:
		return fmt.Errorf("config: navigation and interception timeouts must be positive")
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvMillisOrDefault(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvIntOrDefault(key, defaultMS)) * time.Millisecond
}
