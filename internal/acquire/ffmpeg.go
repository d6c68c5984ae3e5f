package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
)

// Default V4L2 settings.
const (
	DefaultDevice = "/dev/video0"
	DefaultFFmpeg = "ffmpeg"
)

// FFmpegCamera captures V4L2 frames by running ffmpeg. The device node is
// probed on Open; each Frame call runs ffmpeg once and reads a PNG from
// stdout.
type FFmpegCamera struct {
	Device string
	Binary string
	Runner Runner
	Logger *slog.Logger

	// Stat probes the device node. Defaults to os.Stat.
	Stat func(name string) (fs.FileInfo, error)
}

// NewFFmpegCamera returns a camera for device using the ffmpeg binary.
func NewFFmpegCamera(device, binary string, logger *slog.Logger) *FFmpegCamera {
	if device == "" {
		device = DefaultDevice
	}
	if binary == "" {
		binary = DefaultFFmpeg
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegCamera{
		Device: device,
		Binary: binary,
		Runner: ExecRunner{},
		Logger: logger.With("component", "ffmpeg", "device", device),
		Stat:   os.Stat,
	}
}

// Open checks the device node and returns a stream with one video track.
// V4L2 has no facing mode; the configured device is used as is.
func (c *FFmpegCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stat := c.Stat
	if stat == nil {
		stat = os.Stat
	}
	if _, err := stat(c.Device); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, apperr.Acquisition(apperr.ReasonCameraUnavailable, "camera device not found: "+c.Device, err)
		case errors.Is(err, fs.ErrPermission):
			return nil, apperr.Acquisition(apperr.ReasonCameraPermission, "camera access denied: "+c.Device, err)
		default:
			return nil, apperr.Acquisition(apperr.ReasonCameraUnavailable, "camera device unusable: "+c.Device, err)
		}
	}
	return &ffmpegStream{
		camera: c,
		cons:   cons,
		video:  &track{kind: "video"},
	}, nil
}

type ffmpegStream struct {
	camera *FFmpegCamera
	cons   Constraints
	video  *track
}

func (s *ffmpegStream) Tracks() []Track { return []Track{s.video} }

func (s *ffmpegStream) Frame(ctx context.Context) (image.Image, error) {
	if s.video.ReadyState() == Ended {
		return nil, apperr.Acquisition(apperr.ReasonCaptureFailed, "camera stream already stopped", nil)
	}
	c := s.camera
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if s.cons.Width > 0 && s.cons.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", s.cons.Width, s.cons.Height))
	}
	args = append(args, "-i", c.Device, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout, stderr, err := c.Runner.Run(ctx, c.Binary, logger, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFFmpeg(err, string(stderr))
	}
	raw, err := imaging.DecodeBytes(stdout, "image/png", "camera")
	if err != nil {
		return nil, apperr.Acquisition(apperr.ReasonCaptureFailed, "camera returned unreadable data", err)
	}
	return raw.Image, nil
}

// classifyFFmpeg maps ffmpeg failures to acquisition reasons.
func classifyFFmpeg(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return apperr.Acquisition(apperr.ReasonCameraUnavailable, "ffmpeg is not installed", err)
	case strings.Contains(msg, "permission denied"):
		return apperr.Acquisition(apperr.ReasonCameraPermission, "camera access denied", err)
	case strings.Contains(msg, "device or resource busy"):
		return apperr.Acquisition(apperr.ReasonCameraBusy, "camera is used by another application", err)
	case strings.Contains(msg, "no such file or directory"), strings.Contains(msg, "no such device"):
		return apperr.Acquisition(apperr.ReasonCameraUnavailable, "camera device disappeared", err)
	default:
		return apperr.Acquisition(apperr.ReasonCaptureFailed, "ffmpeg capture failed: "+firstLine(stderr), err)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type track struct {
	kind  string
	mu    sync.Mutex
	ended bool
}

func (t *track) Kind() string { return t.kind }

func (t *track) ReadyState() ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return Ended
	}
	return Live
}

func (t *track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
}
