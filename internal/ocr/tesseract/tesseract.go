//go:build cgo

package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/ocr"
)

// Config configures the Tesseract engine.
type Config struct {
	// TessdataPrefix is the directory containing *.traineddata files. Empty
	// uses the library default (TESSDATA_PREFIX or the install location).
	TessdataPrefix string
}

// Engine implements ocr.Engine with one gosseract client per session.
type Engine struct {
	cfg           Config
	logger        *slog.Logger
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:           cfg,
		logger:        logger.With("component", "tesseract"),
		clientFactory: gosseract.NewClient,
	}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Start creates a gosseract client for the given languages.
//
// gosseract initializes the Tesseract API lazily, so a missing language
// model surfaces on the first Recognize rather than here.
func (e *Engine) Start(ctx context.Context, languages []string) (ocr.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := e.clientFactory()

	if e.cfg.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to set language: %w", err)
		}
	}

	e.logger.Debug("session started", "languages", strings.Join(languages, "+"))
	return &session{
		client: c,
		logger: e.logger,
		slot:   make(chan struct{}, 1),
	}, nil
}

// Info reports the library version.
func (e *Engine) Info() ocr.EngineInfo {
	c := e.clientFactory()
	defer c.Close()
	return ocr.EngineInfo{
		Name:      e.Name(),
		Available: true,
		Version:   c.Version(),
		Backend:   "gosseract",
	}
}

// session owns one gosseract client. slot serializes access to the client:
// a Recognize that gives up on ctx leaves its worker goroutine holding the
// slot until Tesseract returns, so the client is never used concurrently.
type session struct {
	client *gosseract.Client
	logger *slog.Logger
	slot   chan struct{}

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

func (s *session) Configure(settings ocr.Settings) error {
	s.slot <- struct{}{}
	defer func() { <-s.slot }()
	if s.closed {
		return ocr.ErrSessionClosed
	}

	if settings.Whitelist != "" {
		if err := s.client.SetWhitelist(settings.Whitelist); err != nil {
			return fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if settings.PageSegMode != 0 {
		if err := s.client.SetPageSegMode(gosseract.PageSegMode(settings.PageSegMode)); err != nil {
			return fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}
	if settings.DPI > 0 {
		if err := s.client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(settings.DPI)); err != nil {
			return fmt.Errorf("failed to set dpi: %w", err)
		}
	}
	return nil
}

type outcome struct {
	pass *ocr.Pass
	err  error
}

func (s *session) Recognize(ctx context.Context, img image.Image, region imaging.Region) (*ocr.Pass, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.closed {
		<-s.slot
		return nil, ocr.ErrSessionClosed
	}

	cropped, err := imaging.Crop(img, region)
	if err != nil {
		<-s.slot
		return nil, err
	}
	data, err := imaging.EncodePNGBytes(cropped)
	if err != nil {
		<-s.slot
		return nil, err
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() { <-s.slot }()
		pass, err := s.recognize(data, region)
		done <- outcome{pass: pass, err: err}
	}()

	select {
	case out := <-done:
		return out.pass, out.err
	case <-ctx.Done():
		s.logger.Warn("recognition abandoned", "region", region.Name, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// recognize runs Tesseract on an encoded crop and maps boxes back to the
// coordinates of the full image.
func (s *session) recognize(data []byte, region imaging.Region) (*ocr.Pass, error) {
	start := time.Now()

	if err := s.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	pass := &ocr.Pass{Region: region, Text: text}

	// Word boxes are optional; keep the text when they fail.
	boxes, err := s.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		s.logger.Debug("word boxes unavailable", "region", region.Name, "error", err)
	} else {
		pass.Words = make([]ocr.Word, 0, len(boxes))
		for _, box := range boxes {
			if strings.TrimSpace(box.Word) == "" {
				continue
			}
			pass.Words = append(pass.Words, ocr.Word{
				Text:       box.Word,
				Confidence: box.Confidence / 100.0,
				Box: ocr.Box{
					X0: box.Box.Min.X,
					Y0: box.Box.Min.Y,
					X1: box.Box.Max.X,
					Y1: box.Box.Max.Y,
				}.Offset(region.Left, region.Top),
			})
		}
	}

	pass.Duration = time.Since(start)
	return pass, nil
}

// Close waits for any in-flight recognition, then releases the client.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.slot <- struct{}{}
		defer func() { <-s.slot }()
		s.closed = true
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
