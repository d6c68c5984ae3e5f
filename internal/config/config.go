// Package config loads medscan-mcp settings from the environment.
//
// Variables may also come from a .env file in the working directory (or the
// file named by MEDSCAN_ENV_FILE). Values already present in the environment
// win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ironsheep/medscan-mcp/internal/acquire"
	"github.com/ironsheep/medscan-mcp/internal/extract"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/pipeline"
)

// Config holds server configuration.
type Config struct {
	LogLevel  slog.Level
	LogFormat string
	Language  locale.Language

	// Preprocessing
	MaxWidth int
	Tiling   imaging.TilingMode

	// Recognition
	RegionTimeout  time.Duration
	StatusInterval time.Duration
	TessdataPrefix string
	HeuristicsFile string

	// Camera
	Warmup       time.Duration
	CameraDevice string
	FFmpeg       string
}

// Environment variable names.
const (
	EnvFile           = "MEDSCAN_ENV_FILE"
	EnvLogLevel       = "MEDSCAN_LOG_LEVEL"
	EnvLogFormat      = "MEDSCAN_LOG_FORMAT"
	EnvLanguage       = "MEDSCAN_LANGUAGE"
	EnvMaxWidth       = "MEDSCAN_MAX_WIDTH"
	EnvTiling         = "MEDSCAN_TILING"
	EnvRegionTimeout  = "MEDSCAN_REGION_TIMEOUT"
	EnvStatusInterval = "MEDSCAN_STATUS_INTERVAL"
	EnvWarmup         = "MEDSCAN_WARMUP"
	EnvTessdataPrefix = "MEDSCAN_TESSDATA_PREFIX"
	EnvHeuristicsFile = "MEDSCAN_HEURISTICS_FILE"
	EnvCameraDevice   = "MEDSCAN_CAMERA_DEVICE"
	EnvFFmpeg         = "MEDSCAN_FFMPEG"
)

// Load reads the optional .env file, then the environment, and validates
// the result.
func Load() (*Config, error) {
	envFile := getEnvOrDefault(EnvFile, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error

	level, err := parseLevel(getEnvOrDefault(EnvLogLevel, "info"))
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		LogLevel:       level,
		LogFormat:      strings.ToLower(getEnvOrDefault(EnvLogFormat, "text")),
		Language:       locale.Parse(getEnvOrDefault(EnvLanguage, "en")),
		MaxWidth:       getEnvAsInt(EnvMaxWidth, 800, &errs),
		Tiling:         imaging.TilingMode(strings.ToLower(getEnvOrDefault(EnvTiling, string(imaging.TilingBands)))),
		RegionTimeout:  getEnvAsDuration(EnvRegionTimeout, 20*time.Second, &errs),
		StatusInterval: getEnvAsDuration(EnvStatusInterval, 2500*time.Millisecond, &errs),
		TessdataPrefix: os.Getenv(EnvTessdataPrefix),
		HeuristicsFile: os.Getenv(EnvHeuristicsFile),
		Warmup:         getEnvAsDuration(EnvWarmup, acquire.DefaultWarmup, &errs),
		CameraDevice:   getEnvOrDefault(EnvCameraDevice, acquire.DefaultDevice),
		FFmpeg:         getEnvOrDefault(EnvFFmpeg, acquire.DefaultFFmpeg),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration invalid: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%s must be text or json, got %q", EnvLogFormat, c.LogFormat)
	}
	if c.MaxWidth < 64 || c.MaxWidth > 8192 {
		return fmt.Errorf("%s must be between 64 and 8192, got %d", EnvMaxWidth, c.MaxWidth)
	}
	if c.Tiling != imaging.TilingBands && c.Tiling != imaging.TilingSingle {
		return fmt.Errorf("%s must be %q or %q, got %q", EnvTiling, imaging.TilingBands, imaging.TilingSingle, c.Tiling)
	}
	if c.RegionTimeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvRegionTimeout)
	}
	if c.StatusInterval < 100*time.Millisecond {
		return fmt.Errorf("%s must be at least 100ms, got %s", EnvStatusInterval, c.StatusInterval)
	}
	if c.Warmup < 0 || c.Warmup > 30*time.Second {
		return fmt.Errorf("%s must be between 0 and 30s, got %s", EnvWarmup, c.Warmup)
	}
	if c.HeuristicsFile != "" {
		if _, err := os.Stat(c.HeuristicsFile); err != nil {
			return fmt.Errorf("%s: %w", EnvHeuristicsFile, err)
		}
	}
	return nil
}

// Pipeline derives the scan pipeline configuration.
func (c *Config) Pipeline() (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()
	pc.Preprocess.MaxWidth = c.MaxWidth
	pc.Tiling = c.Tiling
	pc.RegionTimeout = c.RegionTimeout
	pc.StatusInterval = c.StatusInterval
	if c.HeuristicsFile != "" {
		h, err := extract.LoadHeuristics(c.HeuristicsFile)
		if err != nil {
			return pc, err
		}
		pc.Heuristics = h
	}
	return pc, nil
}

// CaptureWarmup returns the warm-up in the form acquire.NewCapturer expects.
func (c *Config) CaptureWarmup() time.Duration {
	if c.Warmup == 0 {
		return -1
	}
	return c.Warmup
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	return level, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, s))
		return defaultValue
	}
	return v
}

// getEnvAsDuration accepts Go durations ("1.5s") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, s))
		return defaultValue
	}
	return d
}
