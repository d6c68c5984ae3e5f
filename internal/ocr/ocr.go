package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/imaging"
)

var (
	// ErrUnavailable is returned by engines that cannot run in this build or
	// on this host (e.g. no Tesseract library).
	ErrUnavailable = errors.New("ocr: engine unavailable")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("ocr: session closed")
)

// Box is a word bounding box. (X0,Y0) is inclusive, (X1,Y1) exclusive.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Y1 - b.Y0 }

// Offset translates the box by (dx, dy).
func (b Box) Offset(dx, dy int) Box {
	return Box{X0: b.X0 + dx, Y0: b.Y0 + dy, X1: b.X1 + dx, Y1: b.Y1 + dy}
}

// Word is a single recognized token.
type Word struct {
	Text string `json:"text"`

	// Box is in ProcessedImage coordinates, not region-relative.
	Box Box `json:"box"`

	// Confidence is 0..1.
	Confidence float64 `json:"confidence"`
}

// Pass is the recognizer output for one region.
type Pass struct {
	Region imaging.Region `json:"region"`

	// Text is the recognized text with original line breaks.
	Text string `json:"text"`

	// Words is empty when the engine could not provide word geometry.
	Words []Word `json:"words,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// PageSegMode mirrors Tesseract's page segmentation modes.
type PageSegMode int

const (
	PSMAuto        PageSegMode = 3
	PSMSingleBlock PageSegMode = 6
	PSMSingleLine  PageSegMode = 7
	PSMSparseText  PageSegMode = 11
)

// Settings configures a session before recognition.
type Settings struct {
	// Whitelist restricts recognition to these characters. Empty means no restriction.
	Whitelist string

	// PageSegMode selects layout analysis; PSMSingleBlock treats each region
	// as one block of text.
	PageSegMode PageSegMode

	// DPI is a resolution hint; zero leaves the engine default.
	DPI int
}

// Engine creates recognizer sessions.
type Engine interface {
	Name() string

	// Start initializes a session with language models in priority order.
	Start(ctx context.Context, languages []string) (Session, error)
}

// Session is one initialized recognizer. It may be used for any number of
// sequential Recognize calls before Close. Sessions are not safe for
// concurrent Recognize calls.
type Session interface {
	Configure(settings Settings) error

	// Recognize reads the region of img. Word boxes in the returned Pass are
	// in img coordinates. Implementations must honor ctx cancellation.
	Recognize(ctx context.Context, img image.Image, region imaging.Region) (*Pass, error)

	// Close releases the recognizer. Closing twice is a no-op.
	Close() error
}

// EngineInfo describes an engine for diagnostics.
type EngineInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
	Error     string `json:"error,omitempty"`
}

// Describer is implemented by engines that can report their status.
type Describer interface {
	Info() EngineInfo
}

// JoinText concatenates the text of all passes, one pass per block.
func JoinText(passes []*Pass) string {
	parts := make([]string, 0, len(passes))
	for _, p := range passes {
		if p == nil {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// JoinWords concatenates the words of all passes in region order.
func JoinWords(passes []*Pass) []Word {
	var words []Word
	for _, p := range passes {
		if p == nil {
			continue
		}
		words = append(words, p.Words...)
	}
	return words
}
