package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSLColor represents a color in HSL space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// ColorFrequency is one entry of a quantized palette.
type ColorFrequency struct {
	Hex        string   `json:"hex"`
	Percentage float64  `json:"percentage"`
	HSL        HSLColor `json:"hsl"`

	// Lightness is CIE L* (0-100), a perceptual brightness measure.
	Lightness float64 `json:"lightness"`
}

// Analysis summarizes the brightness and palette of an acquired image. It
// tells a caller why the dark path was (or was not) chosen for a photo.
type Analysis struct {
	Width          int              `json:"width"`
	Height         int              `json:"height"`
	MeanBrightness float64          `json:"mean_brightness"`
	Dark           bool             `json:"dark"`
	Palette        []ColorFrequency `json:"palette"`
}

// Analyze computes brightness statistics and the dominant colors of raw.
// count bounds the palette size; darkBelow is the dark classification cutoff.
func Analyze(raw *RawImage, count int, darkBelow float64) (*Analysis, error) {
	if raw == nil || raw.Image == nil || raw.Image.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	mean := MeanBrightness(imaging.Grayscale(raw.Image))
	return &Analysis{
		Width:          raw.Width(),
		Height:         raw.Height(),
		MeanBrightness: math.Round(mean*100) / 100,
		Dark:           mean < darkBelow,
		Palette:        DominantColors(raw.Image, count),
	}, nil
}

// DominantColors returns the count most common colors of img.
//
// RGB components are quantized in steps of 16 so that near-identical shades
// group together; each entry reports the mean color of its bucket. Results
// are sorted by frequency, most common first; ties are broken by hex value
// so the output is deterministic.
func DominantColors(img image.Image, count int) []ColorFrequency {
	type bucket struct {
		n       int
		r, g, b uint64
	}
	bounds := img.Bounds()
	buckets := make(map[[3]uint8]*bucket)
	total := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			r, g, b = r>>8, g>>8, b>>8
			key := [3]uint8{uint8(r / 16), uint8(g / 16), uint8(b / 16)}
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.n++
			bk.r += uint64(r)
			bk.g += uint64(g)
			bk.b += uint64(b)
			total++
		}
	}
	if total == 0 {
		return nil
	}

	colors := make([]ColorFrequency, 0, len(buckets))
	for _, bk := range buckets {
		n := float64(bk.n)
		c := colorful.Color{
			R: math.Round(float64(bk.r)/n) / 255,
			G: math.Round(float64(bk.g)/n) / 255,
			B: math.Round(float64(bk.b)/n) / 255,
		}
		h, s, l := c.Hsl()
		lightness, _, _ := c.Lab()
		colors = append(colors, ColorFrequency{
			Hex:        c.Hex(),
			Percentage: math.Round(n/float64(total)*10000) / 100,
			HSL:        HSLColor{H: int(math.Round(h)) % 360, S: int(math.Round(s * 100)), L: int(math.Round(l * 100))},
			Lightness:  math.Round(lightness*10000) / 100,
		})
	}

	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})

	if count > 0 && len(colors) > count {
		colors = colors[:count]
	}
	return colors
}
