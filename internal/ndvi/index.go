// Package ndvi implements the normalized difference vegetation index over
// masked rasters, its change between two periods, and region reductions.
package ndvi

import "fmt"

// ComputeNDVI returns (nir-red)/(nir+red) per pixel. The two bands must be
// co-registered: same dimensions and same missing-pixel mask. Pixels where
// red+nir is zero are emitted as missing rather than NaN.
func ComputeNDVI(red, nir *Raster) (*Raster, error) {
	if !red.SameShape(nir) {
		return nil, fmt.Errorf("%w: red %s, nir %s", ErrDimensionMismatch, shape(red), shape(nir))
	}
	if !red.SameMask(nir) {
		return nil, fmt.Errorf("%w: red and nir masks differ", ErrDimensionMismatch)
	}

	out := blank(red.width, red.height)
	for i := range out.values {
		if !red.valid[i] || !nir.valid[i] {
			continue
		}
		sum := nir.values[i] + red.values[i]
		if sum == 0 {
			continue
		}
		out.values[i] = (nir.values[i] - red.values[i]) / sum
		out.valid[i] = true
	}
	return out, nil
}

// ComputeChange returns b-a per pixel, missing where either side is missing.
func ComputeChange(a, b *Raster) (*Raster, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrDimensionMismatch, shape(a), shape(b))
	}

	out := blank(a.width, a.height)
	for i := range out.values {
		if a.valid[i] && b.valid[i] {
			out.values[i] = b.values[i] - a.values[i]
			out.valid[i] = true
		}
	}
	return out, nil
}

func shape(r *Raster) string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%dx%d", r.width, r.height)
}
