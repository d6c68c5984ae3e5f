package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/medscan-mcp/internal/acquire"
	"github.com/ironsheep/medscan-mcp/internal/config"
	"github.com/ironsheep/medscan-mcp/internal/interactions"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/logging"
	"github.com/ironsheep/medscan-mcp/internal/ocr/tesseract"
	"github.com/ironsheep/medscan-mcp/internal/pipeline"
	"github.com/ironsheep/medscan-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("medscan-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp(os.Stdout)
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "medscan-mcp: %v\n", err)
		os.Exit(2)
	}

	// Logging goes to stderr; stdout is for MCP protocol
	logger := logging.New(os.Stderr, cfg.LogLevel, logging.Format(cfg.LogFormat))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(cfg, logger)
	if err != nil {
		logger.Error("failed to build scan pipeline", "error", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "scan" {
		os.Exit(runScan(ctx, runner, cfg, os.Args[2:], os.Stdout, logger))
	}

	logger.Debug("starting medscan MCP server",
		"version", Version, "built", BuildTime, "commit", GitCommit,
		"language", cfg.Language, "tiling", cfg.Tiling)

	camera := acquire.NewFFmpegCamera(cfg.CameraDevice, cfg.FFmpeg, logger)
	srv, err := server.New(server.Options{
		Runner:   runner,
		Capturer: acquire.NewCapturer(camera, cfg.CaptureWarmup(), logger),
		Checker:  interactions.NewStaticTable(),
		Language: cfg.Language,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	server.Version = Version

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newRunner(cfg *config.Config, logger *slog.Logger) (*pipeline.Runner, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	engine := tesseract.New(tesseract.Config{TessdataPrefix: cfg.TessdataPrefix}, logger)
	if info := engine.Info(); !info.Available {
		logger.Warn("recognizer unavailable, scans will fail", "engine", info.Name, "error", info.Error)
	}
	return pipeline.New(engine, pc, logger)
}

// runScan implements "medscan-mcp scan [-lang ar|en] <image>".
func runScan(ctx context.Context, runner *pipeline.Runner, cfg *config.Config, args []string, out io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	lang := fs.String("lang", string(cfg.Language), "interface language (ar or en)")
	check := fs.Bool("interactions", false, "check the extracted names for interactions")
	age := fs.Int("age", 0, "patient age for the interaction check")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: medscan-mcp scan [-lang ar|en] [-interactions] [-age N] <image>")
		return 2
	}

	raw, err := acquire.FromFile(fs.Arg(0))
	if err != nil {
		language := locale.Parse(*lang)
		fmt.Fprintln(os.Stderr, language.ErrorMessage(err))
		logger.Debug("acquisition failed", "error", err)
		return 1
	}

	var report *interactions.Report
	opts := pipeline.RunOptions{Language: locale.Parse(*lang)}
	if *check {
		opts.OnExtracted = func(candidates []string) {
			r := interactions.NewStaticTable().Check(candidates, *age)
			report = &r
		}
	}

	res, runErr := runner.Run(ctx, raw, opts)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	payload := struct {
		*pipeline.Result
		Interactions *interactions.Report `json:"interactions,omitempty"`
	}{res, report}
	if err := enc.Encode(payload); err != nil {
		logger.Error("failed to encode result", "error", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "medscan-mcp - MCP server that reads medication names from package photos")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  medscan-mcp                 Run the MCP server on stdin/stdout")
	fmt.Fprintln(w, "  medscan-mcp scan [flags] <image>")
	fmt.Fprintln(w, "                              Scan one image and print the result as JSON")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scan flags:")
	fmt.Fprintln(w, "  -lang ar|en                 Interface language")
	fmt.Fprintln(w, "  -interactions               Check extracted names for interactions")
	fmt.Fprintln(w, "  -age N                      Patient age for the interaction check")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --version, -v               Print version information")
	fmt.Fprintln(w, "  --help, -h                  Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (also read from .env):")
	for _, line := range [][2]string{
		{config.EnvLogLevel, "debug, info, warn or error (default info)"},
		{config.EnvLogFormat, "text or json (default text)"},
		{config.EnvLanguage, "ar or en (default en)"},
		{config.EnvMaxWidth, "downscale width in pixels (default 800)"},
		{config.EnvTiling, "bands or single (default bands)"},
		{config.EnvRegionTimeout, "per-region recognition timeout (default 20s)"},
		{config.EnvStatusInterval, "status message rotation period (default 2.5s)"},
		{config.EnvWarmup, "camera warm-up before capture, 0 disables (default 1s)"},
		{config.EnvTessdataPrefix, "directory holding Tesseract language data"},
		{config.EnvHeuristicsFile, "JSON file overriding extraction heuristics"},
		{config.EnvCameraDevice, "V4L2 device (default /dev/video0)"},
		{config.EnvFFmpeg, "ffmpeg binary used for capture (default ffmpeg)"},
	} {
		fmt.Fprintf(w, "  %-26s %s\n", line[0], line[1])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configure the server in your MCP client (e.g., Claude Desktop).")
}
