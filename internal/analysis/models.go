package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/ndvi-change/internal/ndvi"
)

// Sentinel-2 band names used by the pipeline.
const (
	BandBlue  = "B2"
	BandGreen = "B3"
	BandRed   = "B4"
	BandNIR   = "B8"
)

// Region is the fixed rectangle being analysed, in WGS84 degrees.
type Region struct {
	Name     string  `json:"name" validate:"required"`
	Locality string  `json:"locality"`
	West     float64 `json:"west" validate:"gte=-180,lte=180"`
	South    float64 `json:"south" validate:"gte=-90,lte=90"`
	East     float64 `json:"east" validate:"gte=-180,lte=180,gtfield=West"`
	North    float64 `json:"north" validate:"gte=-90,lte=90,gtfield=South"`
}

// Key returns a canonical string key for indexing this region in stores.
func (r Region) Key() string {
	return fmt.Sprintf("%s:%.5f,%.5f,%.5f,%.5f", r.Name, r.West, r.South, r.East, r.North)
}

// BBox returns the rectangle as [west, south, east, north].
func (r Region) BBox() [4]float64 {
	return [4]float64{r.West, r.South, r.East, r.North}
}

// Period is a labelled time window whose scenes are composited together.
// To is exclusive, matching the date filter of the composite services.
type Period struct {
	Label string    `json:"label" validate:"required"`
	From  time.Time `json:"from" validate:"required"`
	To    time.Time `json:"to" validate:"required,gtfield=From"`
}

// Slug returns a filesystem-friendly form of the label.
func (p Period) Slug() string {
	s := strings.ToLower(strings.TrimSpace(p.Label))
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		s = p.From.Format("2006-01-02") + "_" + p.To.Format("2006-01-02")
	}
	return s
}

// CompositeRequest asks a source for a cloud-filtered median composite.
type CompositeRequest struct {
	Region      Region
	Period      Period
	Collection  string
	Bands       []string
	MaxCloudPct float64
	ScaleMeters float64
}

// Composite is a set of co-registered band rasters for one period.
type Composite struct {
	Source     string
	Period     Period
	ImageCount int
	Bands      map[string]*ndvi.Raster
}

// Band returns the named band or an error when the source did not supply it.
func (c Composite) Band(name string) (*ndvi.Raster, error) {
	r, ok := c.Bands[name]
	if !ok || r == nil {
		return nil, fmt.Errorf("composite from %s missing band %s", c.Source, name)
	}
	return r, nil
}

// Trend is the direction of the mean NDVI change.
type Trend string

const (
	TrendIncrease  Trend = "increase"
	TrendDecrease  Trend = "decrease"
	TrendUnchanged Trend = "unchanged"
)

// PeriodStats is the per-period outcome of an analysis run.
type PeriodStats struct {
	Period     Period       `json:"period"`
	Source     string       `json:"source"`
	ImageCount int          `json:"imageCount"`
	MeanNDVI   float64      `json:"meanNdvi"`
	NDVI       ndvi.Summary `json:"ndvi"`
}

// Result is one completed comparison.
type Result struct {
	ID            string      `json:"id"`
	Region        Region      `json:"region"`
	GeneratedAt   time.Time   `json:"generatedAt"` // always UTC
	Before        PeriodStats `json:"before"`
	After         PeriodStats `json:"after"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"changePercent"`
	Trend         Trend       `json:"trend"`

	// FigurePath is the configured output file. Later runs overwrite it, so
	// for older results it holds the newest figure, not the one they produced.
	FigurePath string `json:"figurePath,omitempty"`
}

// NewComparison derives the change fields from the two period means.
func NewComparison(before, after PeriodStats) Result {
	change := after.MeanNDVI - before.MeanNDVI
	trend := TrendUnchanged
	switch {
	case change > 0:
		trend = TrendIncrease
	case change < 0:
		trend = TrendDecrease
	}
	return Result{
		Before:        before,
		After:         after,
		Change:        change,
		ChangePercent: change * 100,
		Trend:         trend,
	}
}

// ChangeLabel formats the change the way it is reported, e.g. "+0.150 (+15.0%)".
func (r Result) ChangeLabel() string {
	return fmt.Sprintf("%+.3f (%+.1f%%)", r.Change, r.ChangePercent)
}

// TrendLabel is the human-readable verdict.
func (r Result) TrendLabel() string {
	switch r.Trend {
	case TrendIncrease:
		return "Increase in vegetation"
	case TrendDecrease:
		return "Decrease in vegetation"
	default:
		return "No change in vegetation"
	}
}
