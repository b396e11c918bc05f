package ndvi

import (
	"gonum.org/v1/gonum/floats"
)

// Summary describes the valid pixels of a raster.
type Summary struct {
	ValidPixels int     `json:"validPixels"`
	TotalPixels int     `json:"totalPixels"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
}

// RegionMean returns the unweighted arithmetic mean of all valid pixels.
// Pixels are on a uniform grid so no area weighting is applied.
func RegionMean(r *Raster) (float64, error) {
	vals := r.validValues()
	if len(vals) == 0 {
		return 0, ErrEmptyRegion
	}
	return floats.Sum(vals) / float64(len(vals)), nil
}

// Summarize computes counts, extrema and mean over valid pixels.
func Summarize(r *Raster) (Summary, error) {
	vals := r.validValues()
	if len(vals) == 0 {
		return Summary{TotalPixels: r.Len()}, ErrEmptyRegion
	}
	return Summary{
		ValidPixels: len(vals),
		TotalPixels: r.Len(),
		Min:         floats.Min(vals),
		Max:         floats.Max(vals),
		Mean:        floats.Sum(vals) / float64(len(vals)),
	}, nil
}

func (r *Raster) validValues() []float64 {
	out := make([]float64, 0, len(r.values))
	for i, v := range r.values {
		if r.valid[i] {
			out = append(out, v)
		}
	}
	return out
}
