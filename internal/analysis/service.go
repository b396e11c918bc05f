package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/ndvi-change/internal/figure"
	"github.com/i474232898/ndvi-change/internal/ndvi"
	"github.com/i474232898/ndvi-change/internal/render"
)

var (
	// ErrNoSources is returned when the service has no composite source configured.
	ErrNoSources = errors.New("no composite sources configured")

	// ErrNoComposite is returned when every source failed for a period.
	ErrNoComposite = errors.New("no composite available")

	// ErrNoStore is returned by the read methods when the service was built
	// without a result store.
	ErrNoStore = errors.New("no result store configured")
)

// Config holds everything a comparison run needs besides its collaborators.
type Config struct {
	Region Region
	Before Period
	After  Period

	Collection  string
	MaxCloudPct float64
	ScaleMeters float64

	// OutputPath is where the figure is written. Empty disables the figure.
	// Every run overwrites the same file.
	OutputPath string
	FigureDPI  int

	NDVIVis   render.VisParams
	ChangeVis render.VisParams
	RGBVis    render.VisParams

	// MeanTolerance is the largest accepted gap between the local region mean
	// and a server-side reduction before a warning is logged.
	MeanTolerance float64
}

// Service orchestrates fetching composites, computing NDVI and change,
// rendering the figure and persisting results.
type Service struct {
	cfg     Config
	store   Store
	sources []Source

	// runs share the output path, so only one may be in flight.
	mu sync.Mutex
}

// NewService creates a new Service. Sources are tried in order for each period.
func NewService(cfg Config, store Store, sources []Source) *Service {
	if cfg.MeanTolerance <= 0 {
		cfg.MeanTolerance = 0.01
	}
	if len(cfg.RGBVis.Bands) != 3 {
		cfg.RGBVis.Bands = []string{BandRed, BandGreen, BandBlue}
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		sources: sources,
	}
}

// Region returns the configured analysis region.
func (s *Service) Region() Region {
	return s.cfg.Region
}

type periodRun struct {
	composite Composite
	source    Source
	ndvi      *ndvi.Raster
	stats     PeriodStats
}

// Run performs one full comparison: both composites are fetched
// concurrently, NDVI, change and region means are computed, the figure is
// written and the result is stored.
func (s *Service) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.WithField("region", s.cfg.Region.Name)
	if len(s.sources) == 0 {
		logger.Error("no sources available to fetch composites")
		return Result{}, ErrNoSources
	}

	periods := [2]Period{s.cfg.Before, s.cfg.After}
	var (
		wg   sync.WaitGroup
		runs [2]periodRun
		errs [2]error
	)
	for i, p := range periods {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runs[i], errs[i] = s.runPeriod(ctx, p)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs[0], errs[1]); err != nil {
		return Result{}, err
	}
	before, after := runs[0], runs[1]

	change, err := ndvi.ComputeChange(before.ndvi, after.ndvi)
	if err != nil {
		return Result{}, fmt.Errorf("ndvi change: %w", err)
	}

	for _, r := range runs {
		s.crossCheck(ctx, r)
	}

	res := NewComparison(before.stats, after.stats)
	res.ID = uuid.NewString()
	res.Region = s.cfg.Region
	res.GeneratedAt = time.Now().UTC()

	if s.cfg.OutputPath != "" {
		if err := s.writeFigure(res, before, after, change); err != nil {
			return Result{}, err
		}
		res.FigurePath = s.cfg.OutputPath
		logger.WithField("path", s.cfg.OutputPath).Info("figure saved")
	}

	logger.WithFields(log.Fields{
		"before":  fmt.Sprintf("%s=%.3f", before.stats.Period.Label, before.stats.MeanNDVI),
		"after":   fmt.Sprintf("%s=%.3f", after.stats.Period.Label, after.stats.MeanNDVI),
		"change":  res.ChangeLabel(),
		"verdict": res.TrendLabel(),
	}).Info("ndvi comparison complete")

	if s.store != nil {
		if err := s.store.SaveResult(res); err != nil {
			return res, fmt.Errorf("save result: %w", err)
		}
	}
	return res, nil
}

func (s *Service) runPeriod(ctx context.Context, p Period) (periodRun, error) {
	comp, src, err := s.fetch(ctx, p)
	if err != nil {
		return periodRun{}, err
	}

	red, err := comp.Band(BandRed)
	if err != nil {
		return periodRun{}, err
	}
	nir, err := comp.Band(BandNIR)
	if err != nil {
		return periodRun{}, err
	}

	index, err := ndvi.ComputeNDVI(red, nir)
	if err != nil {
		return periodRun{}, fmt.Errorf("period %s: ndvi: %w", p.Label, err)
	}
	summary, err := ndvi.Summarize(index)
	if err != nil {
		return periodRun{}, fmt.Errorf("period %s: %w", p.Label, err)
	}

	return periodRun{
		composite: comp,
		source:    src,
		ndvi:      index,
		stats: PeriodStats{
			Period:     p,
			Source:     src.Name(),
			ImageCount: comp.ImageCount,
			MeanNDVI:   summary.Mean,
			NDVI:       summary,
		},
	}, nil
}

// fetch tries each source in order and returns the first composite.
func (s *Service) fetch(ctx context.Context, p Period) (Composite, Source, error) {
	req := s.request(p)
	var failures []error
	for _, src := range s.sources {
		comp, err := src.FetchComposite(ctx, req)
		if err != nil {
			log.WithFields(log.Fields{
				"source": src.Name(),
				"period": p.Label,
			}).WithError(err).Warn("composite fetch failed")
			failures = append(failures, fmt.Errorf("%s: %w", src.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		comp.Period = p
		if comp.Source == "" {
			comp.Source = src.Name()
		}
		log.WithFields(log.Fields{
			"source": src.Name(),
			"period": p.Label,
			"images": comp.ImageCount,
		}).Debug("composite fetched")
		return comp, src, nil
	}
	return Composite{}, nil, fmt.Errorf("%w for %s: %w", ErrNoComposite, p.Label, errors.Join(failures...))
}

func (s *Service) request(p Period) CompositeRequest {
	bands := []string{BandRed, BandNIR}
	for _, b := range s.cfg.RGBVis.Bands {
		if !slices.Contains(bands, b) {
			bands = append(bands, b)
		}
	}
	return CompositeRequest{
		Region:      s.cfg.Region,
		Period:      p,
		Collection:  s.cfg.Collection,
		Bands:       bands,
		MaxCloudPct: s.cfg.MaxCloudPct,
		ScaleMeters: s.cfg.ScaleMeters,
	}
}

// crossCheck compares the local mean with the source's own reduction when
// the source offers one. Disagreement is logged, never fatal.
func (s *Service) crossCheck(ctx context.Context, r periodRun) {
	reducer, ok := r.source.(RegionReducer)
	if !ok {
		return
	}
	logger := log.WithFields(log.Fields{
		"source": r.source.Name(),
		"period": r.stats.Period.Label,
	})

	remote, err := reducer.ReduceRegionMean(ctx, s.request(r.stats.Period))
	if err != nil {
		logger.WithError(err).Warn("server-side region mean unavailable")
		return
	}
	if diff := math.Abs(remote - r.stats.MeanNDVI); diff > s.cfg.MeanTolerance {
		logger.WithFields(log.Fields{
			"local":  r.stats.MeanNDVI,
			"remote": remote,
		}).Warn("region mean disagrees with server-side reduction")
	}
}

func (s *Service) writeFigure(res Result, before, after periodRun, change *ndvi.Raster) error {
	rgbBefore, err := s.renderRGB(before.composite)
	if err != nil {
		return err
	}
	rgbAfter, err := s.renderRGB(after.composite)
	if err != nil {
		return err
	}
	ndviBefore, err := s.renderIndex(before.ndvi, s.cfg.NDVIVis)
	if err != nil {
		return err
	}
	ndviAfter, err := s.renderIndex(after.ndvi, s.cfg.NDVIVis)
	if err != nil {
		return err
	}
	changeImg, err := s.renderIndex(change, s.cfg.ChangeVis)
	if err != nil {
		return err
	}

	bp, ap := before.stats.Period.Label, after.stats.Period.Label
	fig := &figure.Figure{
		Title:  fmt.Sprintf("NDVI Comparison: %s", joinNonEmpty(", ", s.cfg.Region.Name, s.cfg.Region.Locality)),
		RGBA:   figure.Panel{Title: "RGB - " + bp, Image: rgbBefore},
		RGBB:   figure.Panel{Title: "RGB - " + ap, Image: rgbAfter},
		Change: figure.Panel{Title: "NDVI Change\n(Red=Decrease, Green=Increase)", Image: changeImg},
		NDVIA:  figure.Panel{Title: fmt.Sprintf("NDVI - %s\n(Mean: %.3f)", bp, before.stats.MeanNDVI), Image: ndviBefore},
		NDVIB:  figure.Panel{Title: fmt.Sprintf("NDVI - %s\n(Mean: %.3f)", ap, after.stats.MeanNDVI), Image: ndviAfter},
		Stats:  StatsText(res),
		DPI:    s.cfg.FigureDPI,
	}
	if err := fig.Save(s.cfg.OutputPath); err != nil {
		return fmt.Errorf("write figure: %w", err)
	}
	return nil
}

func (s *Service) renderRGB(c Composite) (image.Image, error) {
	var bands [3]*ndvi.Raster
	for i, name := range s.cfg.RGBVis.Bands {
		b, err := c.Band(name)
		if err != nil {
			return nil, err
		}
		bands[i] = b
	}
	img, err := render.ComposeRGB(bands[0], bands[1], bands[2], s.cfg.RGBVis)
	if err != nil {
		return nil, fmt.Errorf("render rgb %s: %w", c.Period.Label, err)
	}
	return render.Thumbnail(img, s.cfg.RGBVis.Dimensions), nil
}

func (s *Service) renderIndex(r *ndvi.Raster, p render.VisParams) (image.Image, error) {
	img, err := render.Colorize(r, p)
	if err != nil {
		return nil, err
	}
	return render.Thumbnail(img, p.Dimensions), nil
}

// StatsText is the body of the statistics panel.
func StatsText(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", res.Region.Name)
	if res.Region.Locality != "" {
		fmt.Fprintf(&b, "   %s\n", res.Region.Locality)
	}
	b.WriteString("\nStatistics:\n\n")
	fmt.Fprintf(&b, "%s:\n  NDVI = %.3f\n\n", res.Before.Period.Label, res.Before.MeanNDVI)
	fmt.Fprintf(&b, "%s:\n  NDVI = %.3f\n\n", res.After.Period.Label, res.After.MeanNDVI)
	fmt.Fprintf(&b, "Change:\n  %s\n\n", res.ChangeLabel())
	b.WriteString(res.TrendLabel())
	return b.String()
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest() (Result, error) {
	if s.store == nil {
		return Result{}, ErrNoStore
	}
	return s.store.GetLatest(s.cfg.Region)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(from, to time.Time) ([]Result, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetRange(s.cfg.Region, from, to)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
