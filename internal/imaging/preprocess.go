package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
)

// LuminanceMode selects the grayscale formula.
type LuminanceMode string

const (
	// LuminanceWeighted uses ITU-R BT.601 weights: 0.299*R + 0.587*G + 0.114*B.
	LuminanceWeighted LuminanceMode = "weighted"

	// LuminanceAverage uses the unweighted mean (R+G+B)/3.
	LuminanceAverage LuminanceMode = "average"
)

// PreprocessOptions configures Preprocess. The zero value is not useful;
// start from DefaultPreprocessOptions.
type PreprocessOptions struct {
	// MaxWidth is the widest output allowed. Wider images are scaled down
	// proportionally; narrower images are never upscaled.
	MaxWidth int `json:"max_width"`

	// Luminance selects the grayscale formula.
	Luminance LuminanceMode `json:"luminance"`

	// DarkBelow classifies an image as dark when its mean brightness (0-255)
	// is strictly below this value.
	DarkBelow float64 `json:"dark_below"`

	// Binarize enables black/white thresholding. When false the output is
	// plain grayscale.
	Binarize bool `json:"binarize"`

	// Threshold is the binarization level for normal images.
	Threshold uint8 `json:"threshold"`

	// DarkThreshold is the binarization level for dark images.
	DarkThreshold uint8 `json:"dark_threshold"`

	// DarkContrast is the contrast stretch around the midpoint applied to
	// dark images before thresholding, as an imaging.AdjustContrast
	// percentage (-100..100).
	DarkContrast float64 `json:"dark_contrast"`
}

// DefaultPreprocessOptions returns the tuned defaults for package photos.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		MaxWidth:      800,
		Luminance:     LuminanceWeighted,
		DarkBelow:     100,
		Binarize:      true,
		Threshold:     128,
		DarkThreshold: 100,
		DarkContrast:  50,
	}
}

// ProcessedImage is the OCR-ready bitmap derived from a RawImage.
type ProcessedImage struct {
	// Gray holds the output pixels. Its bounds start at (0,0).
	Gray *image.Gray

	// MeanBrightness is the mean grayscale value (0-255) before thresholding.
	MeanBrightness float64

	// Dark reports whether the amplified-contrast path was used.
	Dark bool

	// Threshold is the binarization level that was applied (0 when Binarize is off).
	Threshold uint8

	// Scale is output width divided by input width (1 when not downscaled).
	Scale float64
}

// Width returns the processed width in pixels.
func (p *ProcessedImage) Width() int { return p.Gray.Bounds().Dx() }

// Height returns the processed height in pixels.
func (p *ProcessedImage) Height() int { return p.Gray.Bounds().Dy() }

// Preprocess converts a RawImage into an OCR-ready ProcessedImage.
//
// The steps are:
//  1. Downscale to opts.MaxWidth (never upscale).
//  2. Convert to grayscale with the configured luminance formula.
//  3. Compute the mean brightness and classify the image as dark or normal.
//  4. For dark images, stretch contrast around the midpoint.
//  5. Binarize: pixels at or above the threshold become 255, the rest 0.
//
// Preprocess is a pure function of the pixel content: the same input always
// yields bit-identical output, and raw is never modified.
func Preprocess(raw *RawImage, opts PreprocessOptions) (*ProcessedImage, error) {
	if raw == nil || raw.Image == nil {
		return nil, apperr.Preprocessing(apperr.ReasonEmptyImage, "no image to preprocess", nil)
	}
	bounds := raw.Image.Bounds()
	if bounds.Empty() {
		return nil, apperr.Preprocessing(apperr.ReasonEmptyImage, "image has no pixels", nil)
	}

	src := raw.Image
	scale := 1.0
	if opts.MaxWidth > 0 && bounds.Dx() > opts.MaxWidth {
		src = imaging.Resize(src, opts.MaxWidth, 0, imaging.Lanczos)
		scale = float64(opts.MaxWidth) / float64(bounds.Dx())
	}

	var gray *image.NRGBA
	switch opts.Luminance {
	case LuminanceAverage:
		gray = imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
			v := uint8((int(c.R) + int(c.G) + int(c.B)) / 3)
			return color.NRGBA{R: v, G: v, B: v, A: c.A}
		})
	default:
		gray = imaging.Grayscale(src)
	}

	mean := MeanBrightness(gray)
	dark := mean < opts.DarkBelow

	out := &ProcessedImage{
		MeanBrightness: mean,
		Dark:           dark,
		Scale:          scale,
	}

	if dark && opts.DarkContrast != 0 {
		gray = imaging.AdjustContrast(gray, opts.DarkContrast)
	}

	if !opts.Binarize {
		out.Gray = toGray(gray)
		return out, nil
	}

	level := opts.Threshold
	if dark {
		level = opts.DarkThreshold
	}
	out.Threshold = level
	out.Gray = segment.Threshold(gray, level)
	return out, nil
}

// MeanBrightness returns the mean of the red channel of a grayscale NRGBA
// image, which equals its mean luminance.
func MeanBrightness(gray *image.NRGBA) float64 {
	b := gray.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum uint64
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += uint64(row[x])
		}
	}
	return float64(sum) / float64(n)
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
