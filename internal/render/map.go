// Package render draws study points onto a static world map using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"sort"
	"sync"

	"github.com/fogleman/gg"

	"github.com/esvd-explorer/server/internal/points"
	"github.com/esvd-explorer/server/pkg/colormap"
)

// Point fill alpha, as in the interactive map.
const fillAlpha = 160

// Config contains renderer configuration.
type Config struct {
	Width           int
	Height          int
	DefaultColormap string
	RadiusMin       float64 // pixels
	RadiusMax       float64 // pixels
}

// MapRenderer renders map previews.
type MapRenderer struct {
	config     Config
	bufferPool sync.Pool
}

// NewMapRenderer creates a new map renderer.
func NewMapRenderer(cfg Config) *MapRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = cfg.Width / 2
	}
	if cfg.RadiusMax < cfg.RadiusMin {
		cfg.RadiusMin, cfg.RadiusMax = cfg.RadiusMax, cfg.RadiusMin
	}
	if _, ok := colormap.Lookup(cfg.DefaultColormap); !ok {
		cfg.DefaultColormap = colormap.Viridis.Name()
	}
	return &MapRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Colormap resolves name, falling back to the configured default.
func (r *MapRenderer) Colormap(name string) colormap.Linear {
	if c, ok := colormap.Lookup(name); ok {
		return c
	}
	c, _ := colormap.Lookup(r.config.DefaultColormap)
	return c
}

// Project maps a coordinate to pixels with an equirectangular projection.
func (r *MapRenderer) Project(lat, lon float64) (x, y float64) {
	x = (lon + 180) / 360 * float64(r.config.Width)
	y = (90 - lat) / 180 * float64(r.config.Height)
	return x, y
}

// Scale returns the position of a clipped value within [p5, p95], in [0, 1].
// A degenerate range places every point in the middle.
func Scale(clip, p5, p95 float64) float64 {
	if p95 <= p5 {
		return 0.5
	}
	// halved so the range of opposite-signed extremes stays finite
	t := (clip/2 - p5/2) / (p95/2 - p5/2)
	if math.IsNaN(t) {
		return 0.5
	}
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Radius returns the pixel radius for a scale position.
func (r *MapRenderer) Radius(t float64) float64 {
	return r.config.RadiusMin + t*(r.config.RadiusMax-r.config.RadiusMin)
}

// Render draws view and returns a PNG. Larger points are drawn first so
// small ones stay visible.
func (r *MapRenderer) Render(view points.MapView, colormapName string) ([]byte, error) {
	dc := gg.NewContext(r.config.Width, r.config.Height)
	r.drawBackground(dc)

	cmap := r.Colormap(colormapName).WithAlpha(fillAlpha)

	order := make([]int, len(view.Points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return view.Points[order[a]].ValueClip > view.Points[order[b]].ValueClip
	})

	for _, i := range order {
		p := view.Points[i]
		x, y := r.Project(p.Latitude, p.Longitude)
		t := Scale(p.ValueClip, view.P5, view.P95)

		dc.DrawCircle(x, y, r.Radius(t))
		dc.SetColor(cmap.At(t))
		dc.FillPreserve()
		dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 200})
		dc.SetLineWidth(1)
		dc.Stroke()
	}

	return r.encodeContext(dc)
}

func (r *MapRenderer) drawBackground(dc *gg.Context) {
	dc.SetColor(color.RGBA{R: 245, G: 247, B: 250, A: 255})
	dc.Clear()

	// graticule every 30 degrees
	dc.SetColor(color.RGBA{R: 210, G: 214, B: 220, A: 255})
	dc.SetLineWidth(1)
	for lon := -180.0; lon <= 180; lon += 30 {
		x0, y0 := r.Project(90, lon)
		x1, y1 := r.Project(-90, lon)
		dc.DrawLine(x0, y0, x1, y1)
	}
	for lat := -90.0; lat <= 90; lat += 30 {
		x0, y0 := r.Project(lat, -180)
		x1, y1 := r.Project(lat, 180)
		dc.DrawLine(x0, y0, x1, y1)
	}
	dc.Stroke()
}

func (r *MapRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
