package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/esvd-explorer/server/internal/points"
)

func newRenderer() *MapRenderer {
	return NewMapRenderer(Config{Width: 360, Height: 180, DefaultColormap: "viridis", RadiusMin: 3, RadiusMax: 60})
}

func TestProject(t *testing.T) {
	r := newRenderer()

	cases := []struct {
		lat, lon, x, y float64
	}{
		{0, 0, 180, 90},
		{90, -180, 0, 0},
		{-90, 180, 360, 180},
		{45, 90, 270, 45},
	}
	for _, c := range cases {
		x, y := r.Project(c.lat, c.lon)
		if x != c.x || y != c.y {
			t.Fatalf("Project(%v, %v) = (%v, %v), want (%v, %v)", c.lat, c.lon, x, y, c.x, c.y)
		}
	}
}

func TestScaleAndRadius(t *testing.T) {
	r := newRenderer()

	if got := Scale(5, 5, 15); got != 0 {
		t.Fatalf("expected 0 at p5, got %v", got)
	}
	if got := Scale(15, 5, 15); got != 1 {
		t.Fatalf("expected 1 at p95, got %v", got)
	}
	if got := Scale(7, 7, 7); got != 0.5 {
		t.Fatalf("expected 0.5 for a degenerate range, got %v", got)
	}
	if got := Scale(0, -1e308, 1e308); got != 0.5 {
		t.Fatalf("expected 0.5 midway across the full float range, got %v", got)
	}
	if got := r.Radius(0); got != 3 {
		t.Fatalf("expected min radius 3, got %v", got)
	}
	if got := r.Radius(1); got != 60 {
		t.Fatalf("expected max radius 60, got %v", got)
	}
}

func TestColormapFallback(t *testing.T) {
	r := NewMapRenderer(Config{DefaultColormap: "unknown"})
	if got := r.Colormap("nope").Name(); got != "viridis" {
		t.Fatalf("expected viridis fallback, got %q", got)
	}
	if got := r.Colormap("magma").Name(); got != "magma" {
		t.Fatalf("expected magma, got %q", got)
	}
}

func TestRender(t *testing.T) {
	r := newRenderer()
	view := points.MapView{
		Points: []points.StudyPoint{
			{StudyID: "1", Latitude: 10, Longitude: 20, Value: 5, ValueClip: 5},
			{StudyID: "2", Latitude: -30, Longitude: -60, Value: 50, ValueClip: 15},
		},
		P5:  5,
		P95: 15,
	}

	data, err := r.Render(view, "ocean")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 360 || b.Dy() != 180 {
		t.Fatalf("unexpected bounds %v", b)
	}

	// the centre of the large point is dark blue, not the pale background
	x, y := r.Project(-30, -60)
	red, _, _, _ := img.At(int(x), int(y)).RGBA()
	if red>>8 > 200 {
		t.Fatalf("expected the point to be drawn, got red=%d", red>>8)
	}
	red, _, _, _ = img.At(5, 5).RGBA()
	if red>>8 != 245 {
		t.Fatalf("expected background at the corner, got red=%d", red>>8)
	}
}

func TestRender_Empty(t *testing.T) {
	data, err := newRenderer().Render(points.MapView{}, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
