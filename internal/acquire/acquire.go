// Package acquire produces the RawImage a scan starts from: an uploaded file
// or a single frame captured from a camera.
package acquire

import (
	"context"
	"errors"
	"image"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
)

// FromFile loads an image file. Non-image content and missing files are
// acquisition errors and never reach the pipeline.
func FromFile(path string) (*imaging.RawImage, error) {
	return imaging.LoadFile(path)
}

// FromBytes decodes an in-memory upload. declaredMIME is the content type the
// client claimed and may be empty.
func FromBytes(data []byte, declaredMIME, name string) (*imaging.RawImage, error) {
	return imaging.DecodeBytes(data, declaredMIME, name)
}

// ReadyState mirrors a media track's lifecycle.
type ReadyState string

const (
	Live  ReadyState = "live"
	Ended ReadyState = "ended"
)

// Track is one media track of a camera stream.
type Track interface {
	Kind() string
	ReadyState() ReadyState

	// Stop ends the track. Stopping twice is a no-op.
	Stop()
}

// Stream is an open camera.
type Stream interface {
	Tracks() []Track

	// Frame captures one still image.
	Frame(ctx context.Context) (image.Image, error)
}

// Constraints request camera properties on a best-effort basis.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// DefaultConstraints ask for the rear camera at 1080p.
var DefaultConstraints = Constraints{FacingMode: "environment", Width: 1920, Height: 1080}

// Camera opens camera streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// DefaultWarmup lets exposure settle before the frame is taken.
const DefaultWarmup = time.Second

// Capturer takes single photos from a camera. Only one capture may hold the
// camera at a time.
type Capturer struct {
	camera      Camera
	warmup      time.Duration
	constraints Constraints
	logger      *slog.Logger
	busy        atomic.Bool
}

// NewCapturer wraps camera. A negative warmup disables the delay; zero uses
// DefaultWarmup.
func NewCapturer(camera Camera, warmup time.Duration, logger *slog.Logger) *Capturer {
	if warmup == 0 {
		warmup = DefaultWarmup
	}
	if warmup < 0 {
		warmup = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		camera:      camera,
		warmup:      warmup,
		constraints: DefaultConstraints,
		logger:      logger.With("component", "camera"),
	}
}

// Capture opens the camera, waits for warm-up, grabs one frame and stops
// every track before returning, on every path.
func (c *Capturer) Capture(ctx context.Context) (*imaging.RawImage, error) {
	if c.camera == nil {
		return nil, apperr.Acquisition(apperr.ReasonCameraUnavailable, "no camera configured", nil)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return nil, apperr.Acquisition(apperr.ReasonCameraBusy, "another capture is in progress", nil)
	}
	defer c.busy.Store(false)

	stream, err := c.camera.Open(ctx, c.constraints)
	if err != nil {
		return nil, asAcquisition(err, apperr.ReasonCameraUnavailable, "failed to open camera")
	}
	defer StopAll(stream)

	if c.warmup > 0 {
		timer := time.NewTimer(c.warmup)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	frame, err := stream.Frame(ctx)
	StopAll(stream)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, asAcquisition(err, apperr.ReasonCaptureFailed, "failed to capture frame")
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, apperr.Acquisition(apperr.ReasonCaptureFailed, "camera returned an empty frame", nil)
	}

	b := frame.Bounds()
	c.logger.Info("frame captured", "width", b.Dx(), "height", b.Dy())
	return imaging.FromImage(frame, "camera"), nil
}

// Busy reports whether a capture currently holds the camera.
func (c *Capturer) Busy() bool { return c.busy.Load() }

// StopAll stops every track of stream.
func StopAll(stream Stream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}

// asAcquisition keeps acquisition errors as they are and wraps anything else
// with the fallback reason.
func asAcquisition(err error, reason, msg string) error {
	if apperr.KindOf(err) == apperr.KindAcquisition {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrPermission):
		reason = apperr.ReasonCameraPermission
	case errors.Is(err, fs.ErrNotExist):
		reason = apperr.ReasonCameraUnavailable
	}
	return apperr.Acquisition(reason, msg, err)
}
