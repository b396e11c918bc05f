// Package render maps rasters to images: palette ramps for index rasters,
// gamma-stretched true colour for reflectance bands, and thumbnail scaling.
package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// VisParams describes how raster values become pixels.
type VisParams struct {
	Min     float64
	Max     float64
	Palette []color.Color
	Gamma   float64

	// Bands names the red, green and blue source bands for true colour output.
	Bands []string

	// Dimensions is the length of the longest side of the rendered thumbnail.
	// Zero keeps the raster's native size.
	Dimensions int
}

// Default visualizations.
var (
	NDVIParams = VisParams{
		Min:        0,
		Max:        1,
		Palette:    MustPalette("brown", "yellow", "lightgreen", "darkgreen"),
		Dimensions: 512,
	}

	ChangeParams = VisParams{
		Min:        -0.5,
		Max:        0.5,
		Palette:    MustPalette("red", "white", "green"),
		Dimensions: 512,
	}

	RGBParams = VisParams{
		Bands:      []string{"B4", "B3", "B2"},
		Min:        0,
		Max:        3000,
		Gamma:      1.4,
		Dimensions: 512,
	}
)

// ParsePalette resolves SVG colour names or #rrggbb hex codes.
func ParsePalette(names ...string) ([]color.Color, error) {
	out := make([]color.Color, 0, len(names))
	for _, name := range names {
		c, err := parseColor(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MustPalette is ParsePalette for package-level defaults.
func MustPalette(names ...string) []color.Color {
	p, err := ParsePalette(names...)
	if err != nil {
		panic(err)
	}
	return p
}

func parseColor(s string) (color.Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(name, "#")
	if len(hex) != 6 {
		return nil, fmt.Errorf("unknown colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("unknown colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func (p VisParams) validate() error {
	if p.Max <= p.Min {
		return fmt.Errorf("invalid range [%g, %g]", p.Min, p.Max)
	}
	if p.Gamma < 0 {
		return fmt.Errorf("invalid gamma %g", p.Gamma)
	}
	return nil
}
