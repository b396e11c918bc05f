package ndvi

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two rasters that must be
	// co-registered differ in shape or missing-pixel mask.
	ErrDimensionMismatch = errors.New("raster dimension mismatch")

	// ErrEmptyRegion is returned when a reduction is requested over a raster
	// with no valid pixels (e.g. full cloud cover).
	ErrEmptyRegion = errors.New("region has no valid pixels")
)

// Raster is an immutable 2-D grid of samples stored row-major, with a
// parallel validity mask. A pixel whose mask entry is false is missing and
// its value is meaningless.
type Raster struct {
	width  int
	height int
	values []float64
	valid  []bool
}

// NewRaster builds a raster from row-major values and a validity mask.
// Both slices are copied. A nil mask marks every pixel valid. NaN and
// infinite samples are always treated as missing.
func NewRaster(width, height int, values []float64, valid []bool) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	n := width * height
	if len(values) != n {
		return nil, fmt.Errorf("data size mismatch: expected %d, got %d", n, len(values))
	}
	if valid != nil && len(valid) != n {
		return nil, fmt.Errorf("mask size mismatch: expected %d, got %d", n, len(valid))
	}

	r := &Raster{
		width:  width,
		height: height,
		values: make([]float64, n),
		valid:  make([]bool, n),
	}
	copy(r.values, values)
	if valid == nil {
		for i := range r.valid {
			r.valid[i] = true
		}
	} else {
		copy(r.valid, valid)
	}
	for i, v := range r.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			r.values[i] = 0
			r.valid[i] = false
		}
	}
	return r, nil
}

// FromNullable builds a raster where nil entries are missing pixels.
func FromNullable(width, height int, samples []*float64) (*Raster, error) {
	values := make([]float64, len(samples))
	valid := make([]bool, len(samples))
	for i, s := range samples {
		if s != nil {
			values[i] = *s
			valid[i] = true
		}
	}
	return NewRaster(width, height, values, valid)
}

// blank allocates an all-missing raster of the given shape.
func blank(width, height int) *Raster {
	n := width * height
	return &Raster{
		width:  width,
		height: height,
		values: make([]float64, n),
		valid:  make([]bool, n),
	}
}

func (r *Raster) Width() int  { return r.width }
func (r *Raster) Height() int { return r.height }

// Len returns the number of pixels in the grid.
func (r *Raster) Len() int { return len(r.values) }

// At returns the value at column x, row y and whether the pixel is valid.
// Out-of-range coordinates are reported as missing.
func (r *Raster) At(x, y int) (float64, bool) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return 0, false
	}
	i := y*r.width + x
	return r.values[i], r.valid[i]
}

// Index returns the value at flat index i and whether it is valid.
func (r *Raster) Index(i int) (float64, bool) {
	if i < 0 || i >= len(r.values) {
		return 0, false
	}
	return r.values[i], r.valid[i]
}

// ValidCount returns the number of non-missing pixels.
func (r *Raster) ValidCount() int {
	n := 0
	for _, ok := range r.valid {
		if ok {
			n++
		}
	}
	return n
}

// SameShape reports whether r and o have identical dimensions.
func (r *Raster) SameShape(o *Raster) bool {
	return r != nil && o != nil && r.width == o.width && r.height == o.height
}

// SameMask reports whether r and o have identical shape and missing-pixel masks.
func (r *Raster) SameMask(o *Raster) bool {
	if !r.SameShape(o) {
		return false
	}
	for i := range r.valid {
		if r.valid[i] != o.valid[i] {
			return false
		}
	}
	return true
}
