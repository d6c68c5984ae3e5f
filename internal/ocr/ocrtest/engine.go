// Package ocrtest provides a scripted ocr.Engine for tests.
package ocrtest

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/ocr"
)

// Response scripts the outcome of one Recognize call.
type Response struct {
	Text string

	// Words are returned as given; they must already be in image coordinates.
	Words []ocr.Word

	Err error

	// Delay postpones the answer. A cancelled ctx wins over the delay.
	Delay time.Duration

	// Hang blocks until ctx is done.
	Hang bool
}

// Engine answers Recognize calls from a per-region script and records every
// interaction for assertions.
type Engine struct {
	// Queue is consumed first, one entry per Recognize call, across all
	// sessions. Once empty, Responses is keyed by region name and missing
	// names use Default.
	Queue     []Response
	Responses map[string]Response
	Default   Response

	// StartErr makes Start fail.
	StartErr error

	// ConfigureErr makes Configure fail.
	ConfigureErr error

	mu        sync.Mutex
	starts    int
	closes    int
	languages [][]string
	settings  []ocr.Settings
	calls     []string
	sizes     []image.Rectangle
	open      int
	maxOpen   int
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "scripted" }

// Info implements ocr.Describer.
func (e *Engine) Info() ocr.EngineInfo {
	return ocr.EngineInfo{Name: e.Name(), Available: true, Version: "test", Backend: "ocrtest"}
}

// Start implements ocr.Engine.
func (e *Engine) Start(ctx context.Context, languages []string) (ocr.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	e.languages = append(e.languages, append([]string(nil), languages...))
	if e.StartErr != nil {
		return nil, e.StartErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.open++
	if e.open > e.maxOpen {
		e.maxOpen = e.open
	}
	return &session{engine: e}, nil
}

// MaxOpen returns the highest number of sessions that were open at once.
func (e *Engine) MaxOpen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxOpen
}

// Starts returns how many sessions were started.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Closes returns how many times Close was called across all sessions.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Languages returns the language lists passed to Start.
func (e *Engine) Languages() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.languages...)
}

// Settings returns every Settings passed to Configure.
func (e *Engine) Settings() []ocr.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ocr.Settings(nil), e.settings...)
}

// Calls returns the region names passed to Recognize, in call order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// ImageBounds returns the bounds of every image passed to Recognize.
func (e *Engine) ImageBounds() []image.Rectangle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]image.Rectangle(nil), e.sizes...)
}

func (e *Engine) responseLocked(region string) Response {
	if len(e.Queue) > 0 {
		r := e.Queue[0]
		e.Queue = e.Queue[1:]
		return r
	}
	if r, ok := e.Responses[region]; ok {
		return r
	}
	return e.Default
}

type session struct {
	engine *Engine
	closed bool
}

func (s *session) Configure(settings ocr.Settings) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.settings = append(s.engine.settings, settings)
	return s.engine.ConfigureErr
}

func (s *session) Recognize(ctx context.Context, img image.Image, region imaging.Region) (*ocr.Pass, error) {
	s.engine.mu.Lock()
	if s.closed {
		s.engine.mu.Unlock()
		return nil, ocr.ErrSessionClosed
	}
	s.engine.calls = append(s.engine.calls, region.Name)
	s.engine.sizes = append(s.engine.sizes, img.Bounds())
	resp := s.engine.responseLocked(region.Name)
	s.engine.mu.Unlock()

	if resp.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &ocr.Pass{
		Region: region,
		Text:   resp.Text,
		Words:  append([]ocr.Word(nil), resp.Words...),
	}, nil
}

func (s *session) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.closes++
	if !s.closed {
		s.engine.open--
	}
	s.closed = true
	return nil
}
