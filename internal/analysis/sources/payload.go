// Package sources provides composite sources for the analysis service: an
// HTTP earth-observation API and a directory of pre-exported composites.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/i474232898/ndvi-change/internal/analysis"
	"github.com/i474232898/ndvi-change/internal/ndvi"
)

var (
	// ErrMissingStatistic is returned when a reduction response lacks the
	// expected statistic or reports it as null.
	ErrMissingStatistic = errors.New("reduction result missing statistic")

	// ErrAmbiguousStatistic is returned when a reduction response carries
	// more keys than the single statistic requested.
	ErrAmbiguousStatistic = errors.New("reduction result has unexpected statistics")
)

// compositePayload is the wire form of a composite. Bands are row-major
// with null for masked pixels.
type compositePayload struct {
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	ImageCount int                   `json:"imageCount"`
	Bands      map[string][]*float64 `json:"bands"`
}

func decodeComposite(r io.Reader, source string, want []string) (analysis.Composite, error) {
	var payload compositePayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return analysis.Composite{}, fmt.Errorf("decode composite: %w", err)
	}

	comp := analysis.Composite{
		Source:     source,
		ImageCount: payload.ImageCount,
		Bands:      make(map[string]*ndvi.Raster, len(want)),
	}
	for _, name := range want {
		samples, ok := payload.Bands[name]
		if !ok {
			return analysis.Composite{}, fmt.Errorf("composite missing band %s", name)
		}
		raster, err := ndvi.FromNullable(payload.Width, payload.Height, samples)
		if err != nil {
			return analysis.Composite{}, fmt.Errorf("band %s: %w", name, err)
		}
		comp.Bands[name] = raster
	}
	return comp, nil
}

// statistic extracts exactly one named value from a reduction result.
func statistic(result map[string]*float64, key string) (float64, error) {
	v, ok := result[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %q", ErrMissingStatistic, key)
	}
	if len(result) != 1 {
		return 0, fmt.Errorf("%w: got %d keys, want only %q", ErrAmbiguousStatistic, len(result), key)
	}
	return *v, nil
}
