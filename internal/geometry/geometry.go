// Package geometry converts proportional surface dimensions into absolute
// cell coordinates for the current viewport.
package geometry

import "math"

const (
	// ChromeLines is the number of viewport lines reserved for host chrome
	// (status line, command line, tab line and one line of padding).
	ChromeLines = 4

	// RowOffset shifts the surface one line up so it sits centred between the
	// tab line and the status line.
	RowOffset = 1
)

// Ratios are proportional dimensions, each expected in (0,1].
type Ratios struct {
	Height float64 `json:"height" toml:"height"`
	Width  float64 `json:"width" toml:"width"`
	X      float64 `json:"x" toml:"x"`
	Y      float64 `json:"y" toml:"y"`
}

// Viewport is the size of the host display in cells.
type Viewport struct {
	Columns int
	Lines   int
}

// Rect is an absolute surface placement in host cells.
type Rect struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Col    int `json:"col"`
	Row    int `json:"row"`
}

// Calculate derives the absolute rectangle for r inside v.
//
// Ratios are not validated. Values outside (0,1] yield geometry outside the
// viewport; clipping or rejecting it is up to the host.
func Calculate(r Ratios, v Viewport) Rect {
	cols := float64(v.Columns)
	lines := float64(v.Lines)

	width := int(math.Ceil(cols * r.Width))
	height := int(math.Ceil(lines*r.Height - ChromeLines))

	return Rect{
		Width:  width,
		Height: height,
		Col:    int(math.Ceil((cols - float64(width)) * r.X)),
		Row:    int(math.Ceil((lines-float64(height))*r.Y - RowOffset)),
	}
}

// Inner returns the content width and height of rect, excluding a one-cell
// border on each side when bordered is true. Results are never negative.
func (r Rect) Inner(bordered bool) (width, height int) {
	width, height = r.Width, r.Height
	if bordered {
		width -= 2
		height -= 2
	}
	return max(width, 0), max(height, 0)
}
