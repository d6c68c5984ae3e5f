package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
)

// edgeLevel is the Sobel magnitude above which a pixel counts as an edge.
const edgeLevel = 96

// TextLikelihood scores how likely a region is to hold printed text.
type TextLikelihood struct {
	Region Region `json:"region"`

	// EdgeDensity is the fraction of edge pixels in the region.
	EdgeDensity float64 `json:"edge_density"`

	// Horizontal is the share of horizontal edge runs among all runs. Lines
	// of print score above 0.5.
	Horizontal float64 `json:"horizontal"`

	// Score combines both into 0..1; blank or noisy regions score near 0.
	Score float64 `json:"score"`
}

// ScoreRegions rates each region of img for text content. Text typically has
// a medium edge density, peaking around 0.2, with mostly horizontal runs.
func ScoreRegions(img image.Image, regions []Region) []TextLikelihood {
	edges := edgeMap(img)
	var bounds image.Rectangle
	if len(edges) > 0 {
		bounds = image.Rect(0, 0, len(edges[0]), len(edges))
	}
	out := make([]TextLikelihood, 0, len(regions))
	for _, r := range regions {
		rect := r.Rect().Intersect(bounds)
		tl := TextLikelihood{Region: r}
		if !rect.Empty() {
			tl.EdgeDensity = density(edges, rect)
			tl.Horizontal = horizontalShare(edges, rect)
			if tl.EdgeDensity >= 0.05 && tl.EdgeDensity <= 0.4 {
				tl.Score = tl.Horizontal * (1 - math.Abs(tl.EdgeDensity-0.2)/0.2)
			}
		}
		tl.EdgeDensity = round3(tl.EdgeDensity)
		tl.Horizontal = round3(tl.Horizontal)
		tl.Score = round3(math.Max(tl.Score, 0))
		out = append(out, tl)
	}
	return out
}

// edgeMap runs a Sobel filter and thresholds the magnitude. The result is
// indexed [y][x] from the image origin.
func edgeMap(img image.Image) [][]bool {
	sobel := effect.Sobel(img)
	b := sobel.Bounds()
	edges := make([][]bool, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		edges[y] = make([]bool, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			i := sobel.PixOffset(b.Min.X+x, b.Min.Y+y)
			edges[y][x] = sobel.Pix[i] > edgeLevel
		}
	}
	return edges
}

func density(edges [][]bool, r image.Rectangle) float64 {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges[y][x] {
				n++
			}
		}
	}
	return float64(n) / float64(r.Dx()*r.Dy())
}

func horizontalShare(edges [][]bool, r image.Rectangle) float64 {
	horizontal, vertical := 0, 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		in := false
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges[y][x] && !in {
				horizontal++
			}
			in = edges[y][x]
		}
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		in := false
		for y := r.Min.Y; y < r.Max.Y; y++ {
			if edges[y][x] && !in {
				vertical++
			}
			in = edges[y][x]
		}
	}
	if horizontal+vertical == 0 {
		return 0
	}
	return float64(horizontal) / float64(horizontal+vertical)
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
