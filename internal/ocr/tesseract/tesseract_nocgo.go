//go:build !cgo

package tesseract

import (
	"context"
	"log/slog"

	"github.com/ironsheep/medscan-mcp/internal/ocr"
)

// Config configures the Tesseract engine.
type Config struct {
	TessdataPrefix string
}

// Engine is the cgo-less stand-in: it reports itself unavailable.
type Engine struct{}

// New constructs the stand-in engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Start always fails with ocr.ErrUnavailable.
func (e *Engine) Start(ctx context.Context, languages []string) (ocr.Session, error) {
	return nil, ocr.ErrUnavailable
}

// Info implements ocr.Describer.
func (e *Engine) Info() ocr.EngineInfo {
	return ocr.EngineInfo{
		Name:      e.Name(),
		Available: false,
		Backend:   "none",
		Error:     "built without cgo; Tesseract is unavailable",
	}
}
