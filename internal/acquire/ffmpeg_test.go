package acquire

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
)

type fakeRunner struct {
	stdout []byte
	stderr string
	err    error

	name string
	args []string
}

func (r *fakeRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return r.stdout, []byte(r.stderr), r.err
}

func statOK(string) (fs.FileInfo, error) { return nil, nil }

func newTestCamera(r Runner) *FFmpegCamera {
	cam := NewFFmpegCamera("/dev/video7", "/usr/bin/ffmpeg", testLogger())
	cam.Runner = r
	cam.Stat = statOK
	return cam
}

func TestFFmpegCamera_Capture(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testFrame(32, 24)); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{stdout: buf.Bytes()}
	cam := newTestCamera(runner)

	raw, err := NewCapturer(cam, -1, testLogger()).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if raw.Width() != 32 || raw.Height() != 24 {
		t.Errorf("frame size: %dx%d", raw.Width(), raw.Height())
	}

	if runner.name != "/usr/bin/ffmpeg" {
		t.Errorf("binary: got %q", runner.name)
	}
	joined := strings.Join(runner.args, " ")
	for _, want := range []string{"-f v4l2", "-video_size 1920x1080", "-i /dev/video7", "-frames:v 1", "-vcodec png -"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestFFmpegCamera_OpenProbesDevice(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"missing", fs.ErrNotExist, apperr.ReasonCameraUnavailable},
		{"denied", fs.ErrPermission, apperr.ReasonCameraPermission},
		{"other", errors.New("io error"), apperr.ReasonCameraUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := newTestCamera(&fakeRunner{})
			cam.Stat = func(string) (fs.FileInfo, error) { return nil, tt.err }
			_, err := cam.Open(context.Background(), DefaultConstraints)
			if got := apperr.ReasonOf(err); got != tt.reason {
				t.Errorf("reason: got %q, want %q (%v)", got, tt.reason, err)
			}
		})
	}
}

func TestFFmpegCamera_ClassifiesFailures(t *testing.T) {
	exitErr := errors.New("exit status 1")
	tests := []struct {
		name   string
		stderr string
		err    error
		reason string
	}{
		{"no binary", "", exec.ErrNotFound, apperr.ReasonCameraUnavailable},
		{"permission", "/dev/video7: Permission denied", exitErr, apperr.ReasonCameraPermission},
		{"busy", "ioctl(VIDIOC_STREAMON): Device or resource busy", exitErr, apperr.ReasonCameraBusy},
		{"gone", "/dev/video7: No such file or directory", exitErr, apperr.ReasonCameraUnavailable},
		{"other", "Invalid data found when processing input\nmore", exitErr, apperr.ReasonCaptureFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := newTestCamera(&fakeRunner{stderr: tt.stderr, err: tt.err})
			stream, err := cam.Open(context.Background(), DefaultConstraints)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer StopAll(stream)
			_, err = stream.Frame(context.Background())
			if got := apperr.ReasonOf(err); got != tt.reason {
				t.Errorf("reason: got %q, want %q (%v)", got, tt.reason, err)
			}
		})
	}
}

func TestFFmpegCamera_GarbageOutput(t *testing.T) {
	cam := newTestCamera(&fakeRunner{stdout: []byte("not a png")})
	stream, err := cam.Open(context.Background(), DefaultConstraints)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Frame(context.Background()); apperr.ReasonOf(err) != apperr.ReasonCaptureFailed {
		t.Errorf("expected capture_failed, got %v", err)
	}
}

func TestFFmpegCamera_FrameAfterStop(t *testing.T) {
	cam := newTestCamera(&fakeRunner{})
	stream, err := cam.Open(context.Background(), DefaultConstraints)
	if err != nil {
		t.Fatal(err)
	}
	StopAll(stream)
	StopAll(stream)
	for _, tr := range stream.Tracks() {
		if tr.ReadyState() != Ended {
			t.Errorf("track %s: %s", tr.Kind(), tr.ReadyState())
		}
	}
	if _, err := stream.Frame(context.Background()); apperr.ReasonOf(err) != apperr.ReasonCaptureFailed {
		t.Errorf("expected capture_failed, got %v", err)
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, _, err := ExecRunner{}.Run(ctx, "echo", testLogger(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("stdout: got %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("short", 10) != "short" {
		t.Error("short strings are kept")
	}
	if got := truncate("0123456789", 4); got != "0123...(truncated)" {
		t.Errorf("truncate: got %q", got)
	}
}
