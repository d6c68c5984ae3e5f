package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/acquire"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/locale"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvFile, EnvLogLevel, EnvLogFormat, EnvLanguage, EnvMaxWidth, EnvTiling, EnvRegionTimeout,
		EnvStatusInterval, EnvWarmup, EnvTessdataPrefix, EnvHeuristicsFile, EnvCameraDevice, EnvFFmpeg,
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: got %v", cfg.LogLevel)
	}
	if cfg.Language != locale.English {
		t.Errorf("Language: got %v", cfg.Language)
	}
	if cfg.MaxWidth != 800 || cfg.Tiling != imaging.TilingBands {
		t.Errorf("preprocess: got %d %q", cfg.MaxWidth, cfg.Tiling)
	}
	if cfg.RegionTimeout != 20*time.Second || cfg.StatusInterval != 2500*time.Millisecond {
		t.Errorf("timings: got %v %v", cfg.RegionTimeout, cfg.StatusInterval)
	}
	if cfg.Warmup != acquire.DefaultWarmup || cfg.CameraDevice != acquire.DefaultDevice || cfg.FFmpeg != acquire.DefaultFFmpeg {
		t.Errorf("camera: got %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLanguage, "ar")
	t.Setenv(EnvMaxWidth, "640")
	t.Setenv(EnvTiling, "SINGLE")
	t.Setenv(EnvRegionTimeout, "5s")
	t.Setenv(EnvStatusInterval, "1000")
	t.Setenv(EnvWarmup, "0")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.Language != locale.Arabic {
		t.Errorf("got level %v language %v", cfg.LogLevel, cfg.Language)
	}
	if cfg.MaxWidth != 640 || cfg.Tiling != imaging.TilingSingle {
		t.Errorf("got %d %q", cfg.MaxWidth, cfg.Tiling)
	}
	if cfg.RegionTimeout != 5*time.Second || cfg.StatusInterval != time.Second {
		t.Errorf("got %v %v", cfg.RegionTimeout, cfg.StatusInterval)
	}
	if cfg.CaptureWarmup() >= 0 {
		t.Errorf("zero warm-up should disable the wait, got %v", cfg.CaptureWarmup())
	}

	pc, err := cfg.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if pc.Preprocess.MaxWidth != 640 || pc.Tiling != imaging.TilingSingle || pc.RegionTimeout != 5*time.Second {
		t.Errorf("pipeline config: %+v", pc)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvLogLevel, "loud"},
		{EnvLogFormat, "xml"},
		{EnvMaxWidth, "wide"},
		{EnvMaxWidth, "10"},
		{EnvTiling, "grid"},
		{EnvRegionTimeout, "soon"},
		{EnvStatusInterval, "10ms"},
		{EnvWarmup, "1m"},
		{EnvHeuristicsFile, "/nonexistent/heuristics.json"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "medscan.env")
	if err := os.WriteFile(path, []byte("MEDSCAN_MAX_WIDTH=1024\nMEDSCAN_LANGUAGE=ar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvFile, path)
	// godotenv.Load does not override variables already set, and clearEnv
	// sets them to "". Unset the two under test.
	os.Unsetenv(EnvMaxWidth)
	os.Unsetenv(EnvLanguage)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxWidth != 1024 || cfg.Language != locale.Arabic {
		t.Errorf("got %d %v", cfg.MaxWidth, cfg.Language)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "absent.env"))
	if _, err := Load(); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestPipeline_HeuristicsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "heuristics.json")
	if err := os.WriteFile(path, []byte(`{"word_cap": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvHeuristicsFile, path)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	pc, err := cfg.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if pc.Heuristics.WordCap != 2 {
		t.Errorf("WordCap: got %d", pc.Heuristics.WordCap)
	}
}
