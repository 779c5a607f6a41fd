package geometry

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCalculateReferenceViewport(t *testing.T) {
	got := Calculate(
		Ratios{Width: 0.8, Height: 0.8, X: 0.5, Y: 0.5},
		Viewport{Columns: 100, Lines: 50},
	)
	want := Rect{Width: 80, Height: 36, Col: 10, Row: 6}
	if got != want {
		t.Fatalf("Calculate: want %+v, got %+v", want, got)
	}
}

func TestCalculateFullScreen(t *testing.T) {
	got := Calculate(Ratios{Width: 1, Height: 1, X: 1, Y: 1}, Viewport{Columns: 120, Lines: 40})
	// Full height still loses the chrome lines; the row offset pulls the
	// surface up one line.
	want := Rect{Width: 120, Height: 36, Col: 0, Row: 3}
	if got != want {
		t.Fatalf("Calculate: want %+v, got %+v", want, got)
	}
}

func TestCalculateOutOfRangeIsNotClamped(t *testing.T) {
	got := Calculate(Ratios{Width: 1.5, Height: 0.5, X: 0.5, Y: 0.5}, Viewport{Columns: 100, Lines: 50})
	if got.Width != 150 {
		t.Errorf("Width: want 150, got %d", got.Width)
	}
	if got.Col >= 0 {
		t.Errorf("Col: want negative offset for oversized surface, got %d", got.Col)
	}
}

// Feature: popterm, Property 1: surfaces fit horizontally for ratios in (0,1]
func TestCalculateFitsHorizontally(t *testing.T) {
	ratio := rapid.Float64Range(0.01, 1)
	rapid.Check(t, func(t *rapid.T) {
		v := Viewport{
			Columns: rapid.IntRange(1, 500).Draw(t, "columns"),
			Lines:   rapid.IntRange(1, 200).Draw(t, "lines"),
		}
		r := Ratios{
			Width:  ratio.Draw(t, "width"),
			Height: ratio.Draw(t, "height"),
			X:      ratio.Draw(t, "x"),
			Y:      ratio.Draw(t, "y"),
		}
		got := Calculate(r, v)
		if got.Width < 1 || got.Width > v.Columns {
			t.Fatalf("width %d outside [1,%d]", got.Width, v.Columns)
		}
		if got.Col < 0 || got.Col+got.Width > v.Columns {
			t.Fatalf("col %d + width %d overflows %d columns", got.Col, got.Width, v.Columns)
		}
		if got.Height > v.Lines-ChromeLines+1 {
			t.Fatalf("height %d ignores the %d chrome lines of %d", got.Height, ChromeLines, v.Lines)
		}
	})
}

func TestInner(t *testing.T) {
	r := Rect{Width: 10, Height: 5}
	if w, h := r.Inner(true); w != 8 || h != 3 {
		t.Errorf("Inner(true): want 8x3, got %dx%d", w, h)
	}
	if w, h := r.Inner(false); w != 10 || h != 5 {
		t.Errorf("Inner(false): want 10x5, got %dx%d", w, h)
	}
	if w, h := (Rect{Width: 1, Height: -3}).Inner(true); w != 0 || h != 0 {
		t.Errorf("Inner clamps at zero, got %dx%d", w, h)
	}
}
