// Package colormap maps normalized values to colors.
package colormap

import (
	"image/color"
	"math"
	"sort"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
}

// Linear interpolates between evenly spaced color stops.
type Linear struct {
	name  string
	stops []color.RGBA
}

// Name returns the registered name of the colormap.
func (c Linear) Name() string { return c.name }

// At returns the color at position t (0-1). NaN maps to the first stop.
func (c Linear) At(t float64) color.Color {
	if math.IsNaN(t) || t <= 0 {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[len(c.stops)-1]
	}

	idx := t * float64(len(c.stops)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.stops) {
		upper = len(c.stops) - 1
	}
	return interpolate(c.stops[lower], c.stops[upper], idx-float64(lower))
}

// WithAlpha returns a copy whose stops all have alpha a.
// Stops are stored premultiplied, as image/color expects.
func (c Linear) WithAlpha(a uint8) Linear {
	stops := make([]color.RGBA, len(c.stops))
	for i, s := range c.stops {
		stops[i] = color.RGBA{
			R: premultiply(s.R, a),
			G: premultiply(s.G, a),
			B: premultiply(s.B, a),
			A: a,
		}
	}
	return Linear{name: c.name, stops: stops}
}

func premultiply(v, a uint8) uint8 {
	return uint8(uint16(v) * uint16(a) / 255)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + t*(float64(b)-float64(a)))
	}
	return color.RGBA{R: lerp(c1.R, c2.R), G: lerp(c1.G, c2.G), B: lerp(c1.B, c2.B), A: lerp(c1.A, c2.A)}
}

// Viridis (matplotlib).
var Viridis = Linear{name: "viridis", stops: []color.RGBA{
	{68, 1, 84, 255},
	{72, 35, 116, 255},
	{64, 67, 135, 255},
	{52, 94, 141, 255},
	{41, 120, 142, 255},
	{32, 144, 140, 255},
	{34, 167, 132, 255},
	{68, 190, 112, 255},
	{121, 209, 81, 255},
	{189, 222, 38, 255},
	{253, 231, 37, 255},
}}

// Plasma (matplotlib).
var Plasma = Linear{name: "plasma", stops: []color.RGBA{
	{13, 8, 135, 255},
	{75, 3, 161, 255},
	{125, 3, 168, 255},
	{168, 34, 150, 255},
	{203, 70, 121, 255},
	{229, 107, 93, 255},
	{248, 148, 65, 255},
	{253, 195, 40, 255},
	{240, 249, 33, 255},
}}

// Magma (matplotlib).
var Magma = Linear{name: "magma", stops: []color.RGBA{
	{0, 0, 4, 255},
	{28, 16, 68, 255},
	{79, 18, 123, 255},
	{129, 37, 129, 255},
	{181, 54, 122, 255},
	{229, 80, 100, 255},
	{251, 135, 97, 255},
	{254, 194, 135, 255},
	{252, 253, 191, 255},
}}

// YlGn runs from pale yellow to dark green.
var YlGn = Linear{name: "ylgn", stops: []color.RGBA{
	{255, 255, 229, 255},
	{217, 240, 163, 255},
	{120, 198, 121, 255},
	{35, 132, 67, 255},
	{0, 69, 41, 255},
}}

// Ocean is a single-hue blue ramp ending at the study point blue.
var Ocean = Linear{name: "ocean", stops: []color.RGBA{
	{198, 219, 239, 255},
	{107, 174, 214, 255},
	{50, 120, 200, 255},
	{8, 48, 107, 255},
}}

var registry = map[string]Linear{}

func init() {
	for _, c := range []Linear{Viridis, Plasma, Magma, YlGn, Ocean} {
		registry[c.name] = c
	}
}

// Lookup returns the colormap registered under name.
func Lookup(name string) (Linear, bool) {
	c, ok := registry[name]
	return c, ok
}

// Names returns the registered colormap names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
