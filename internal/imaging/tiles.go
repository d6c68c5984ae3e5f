package imaging

import (
	"fmt"
	"image"
)

// Region is a rectangle in ProcessedImage pixel coordinates.
type Region struct {
	Name   string `json:"name"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// TilingMode selects how many regions are recognized per run.
type TilingMode string

const (
	// TilingBands yields full image, top half and middle band, in that order.
	TilingBands TilingMode = "bands"

	// TilingSingle yields the full image only.
	TilingSingle TilingMode = "single"
)

// Region names. The first three are the tiling bands; the rest are accepted
// by NamedRegion for diagnostics.
const (
	RegionFull       = "full"
	RegionTopHalf    = "top-half"
	RegionMiddleBand = "middle-band"
)

// Middle band vertical extent, in percent of image height.
const (
	middleBandTopPct    = 20
	middleBandBottomPct = 60
)

// Tiles derives the ordered recognition regions for an image of the given size.
//
// Order matters: the full image first, then the top half where brand names
// usually sit, then the middle band. Every region lies inside bounds.
func Tiles(width, height int, mode TilingMode) []Region {
	names := []string{RegionFull, RegionTopHalf, RegionMiddleBand}
	if mode == TilingSingle {
		names = names[:1]
	}
	regions := make([]Region, 0, len(names))
	for _, name := range names {
		r, err := NamedRegion(width, height, name)
		if err != nil || r.Empty() {
			continue
		}
		regions = append(regions, r)
	}
	return regions
}

// NamedRegion resolves a named sub-area of a width x height image.
func NamedRegion(width, height int, name string) (Region, error) {
	midY := height / 2

	var x1, y1, x2, y2 int

	switch name {
	case RegionFull:
		x1, y1, x2, y2 = 0, 0, width, height
	case RegionTopHalf:
		x1, y1, x2, y2 = 0, 0, width, midY
	case RegionMiddleBand:
		x1, y1, x2, y2 = 0, height*middleBandTopPct/100, width, height*middleBandBottomPct/100
	case "bottom-half":
		x1, y1, x2, y2 = 0, midY, width, height
	case "top-third":
		x1, y1, x2, y2 = 0, 0, width, height/3
	case "center":
		qW := width / 4
		qH := height / 4
		x1, y1, x2, y2 = qW, qH, width-qW, height-qH
	default:
		return Region{}, fmt.Errorf("unknown region: %s", name)
	}

	return clampRegion(Region{Name: name, Left: x1, Top: y1, Width: x2 - x1, Height: y2 - y1}, width, height), nil
}

// Clamp returns r cut to the bounds of a width x height image.
func (r Region) Clamp(width, height int) Region { return clampRegion(r, width, height) }

func clampRegion(r Region, width, height int) Region {
	rect := r.Rect().Intersect(image.Rect(0, 0, width, height))
	return Region{
		Name:   r.Name,
		Left:   rect.Min.X,
		Top:    rect.Min.Y,
		Width:  rect.Dx(),
		Height: rect.Dy(),
	}
}
