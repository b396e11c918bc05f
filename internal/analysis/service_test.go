package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ndvi-change/internal/ndvi"
	"github.com/i474232898/ndvi-change/internal/render"
)

type fakeSource struct {
	name      string
	err       error
	red, nir  []float64
	reduced   float64
	reduceErr error

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchComposite(_ context.Context, req CompositeRequest) (Composite, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return Composite{}, f.err
	}
	red, _ := ndvi.NewRaster(len(f.red), 1, f.red, nil)
	nir, _ := ndvi.NewRaster(len(f.nir), 1, f.nir, nil)
	bands := map[string]*ndvi.Raster{BandRed: red, BandNIR: nir}
	for _, b := range req.Bands {
		if _, ok := bands[b]; !ok {
			bands[b] = red
		}
	}
	return Composite{ImageCount: 3, Bands: bands}, nil
}

func (f *fakeSource) ReduceRegionMean(context.Context, CompositeRequest) (float64, error) {
	return f.reduced, f.reduceErr
}

// periodSource serves a different composite per period label.
type periodSource map[string]*fakeSource

func (p periodSource) Name() string { return "by-period" }

func (p periodSource) FetchComposite(ctx context.Context, req CompositeRequest) (Composite, error) {
	return p[req.Period.Label].FetchComposite(ctx, req)
}

type fakeStore struct {
	saved []Result
}

func (s *fakeStore) SaveResult(res Result) error {
	s.saved = append(s.saved, res)
	return nil
}

func (s *fakeStore) GetLatest(Region) (Result, error) {
	if len(s.saved) == 0 {
		return Result{}, errors.New("empty")
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *fakeStore) GetRange(_ Region, from, to time.Time) ([]Result, error) {
	return s.saved, nil
}

func testConfig() Config {
	return Config{
		Region: Region{Name: "Test Forest", Locality: "Somewhere", West: 23.66, South: 38.03, East: 23.69, North: 38.055},
		Before: Period{Label: "Summer 2020", From: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC)},
		After:  Period{Label: "Summer 2025", From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)},
		NDVIVis:   render.NDVIParams,
		ChangeVis: render.ChangeParams,
		RGBVis:    render.RGBParams,
	}
}

func TestServiceRun(t *testing.T) {
	t.Parallel()

	t.Run("computes means and change", func(t *testing.T) {
		t.Parallel()
		src := periodSource{
			"Summer 2020": {name: "a", red: []float64{0.1, 0.2}, nir: []float64{0.3, 0.2}},
			"Summer 2025": {name: "b", red: []float64{0.1, 0.1}, nir: []float64{0.3, 0.3}},
		}
		st := &fakeStore{}
		svc := NewService(testConfig(), st, []Source{src})

		res, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, res.ID)
		assert.InDelta(t, 0.25, res.Before.MeanNDVI, 1e-12)
		assert.InDelta(t, 0.5, res.After.MeanNDVI, 1e-12)
		assert.InDelta(t, 0.25, res.Change, 1e-12)
		assert.Equal(t, TrendIncrease, res.Trend)
		assert.Equal(t, "by-period", res.Before.Source)
		assert.Equal(t, 2, res.Before.NDVI.ValidPixels)
		assert.Empty(t, res.FigurePath)
		require.Len(t, st.saved, 1)
		assert.Equal(t, res.ID, st.saved[0].ID)
	})

	t.Run("falls back to next source", func(t *testing.T) {
		t.Parallel()
		broken := &fakeSource{name: "broken", err: errors.New("boom")}
		good := &fakeSource{name: "good", red: []float64{0.1}, nir: []float64{0.3}}
		svc := NewService(testConfig(), &fakeStore{}, []Source{broken, good})

		res, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "good", res.After.Source)
		assert.Equal(t, 2, broken.calls)
		assert.Equal(t, TrendUnchanged, res.Trend)
	})

	t.Run("all sources failing", func(t *testing.T) {
		t.Parallel()
		svc := NewService(testConfig(), &fakeStore{}, []Source{&fakeSource{name: "x", err: errors.New("down")}})
		_, err := svc.Run(context.Background())
		assert.ErrorIs(t, err, ErrNoComposite)
	})

	t.Run("empty region surfaces", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{name: "dark", red: []float64{0, 0}, nir: []float64{0, 0}}
		st := &fakeStore{}
		svc := NewService(testConfig(), st, []Source{src})
		_, err := svc.Run(context.Background())
		assert.ErrorIs(t, err, ndvi.ErrEmptyRegion)
		assert.Empty(t, st.saved)
	})

	t.Run("no sources", func(t *testing.T) {
		t.Parallel()
		_, err := NewService(testConfig(), &fakeStore{}, nil).Run(context.Background())
		assert.ErrorIs(t, err, ErrNoSources)
	})

	t.Run("writes figure", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.OutputPath = filepath.Join(t.TempDir(), "data", "comparison.png")
		cfg.FigureDPI = 20
		src := &fakeSource{name: "s", red: []float64{0.1, 0.2, 0.05}, nir: []float64{0.4, 0.3, 0.5}, reduced: 0.9}
		svc := NewService(cfg, &fakeStore{}, []Source{src})

		res, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, cfg.OutputPath, res.FigurePath)
		_, err = os.Stat(cfg.OutputPath)
		assert.NoError(t, err)
	})
}

// TestRunCrossCheck is not parallel: it inspects the global logger.
func TestRunCrossCheck(t *testing.T) {
	hook := test.NewGlobal()
	t.Cleanup(hook.Reset)

	warnings := func(msg string) []*logrus.Entry {
		var out []*logrus.Entry
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Message == msg {
				out = append(out, e)
			}
		}
		return out
	}

	t.Run("disagreement keeps local mean", func(t *testing.T) {
		hook.Reset()
		src := &fakeSource{name: "remote", red: []float64{0.1, 0.2}, nir: []float64{0.3, 0.2}, reduced: 0.5}
		res, err := NewService(testConfig(), &fakeStore{}, []Source{src}).Run(context.Background())
		require.NoError(t, err)

		assert.InDelta(t, 0.25, res.Before.MeanNDVI, 1e-12)
		assert.InDelta(t, 0.25, res.After.MeanNDVI, 1e-12)

		entries := warnings("region mean disagrees with server-side reduction")
		require.Len(t, entries, 2)
		assert.Equal(t, 0.5, entries[0].Data["remote"])
		assert.InDelta(t, 0.25, entries[0].Data["local"], 1e-12)
	})

	t.Run("agreement within tolerance is quiet", func(t *testing.T) {
		hook.Reset()
		src := &fakeSource{name: "remote", red: []float64{0.1, 0.2}, nir: []float64{0.3, 0.2}, reduced: 0.255}
		_, err := NewService(testConfig(), &fakeStore{}, []Source{src}).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, warnings("region mean disagrees with server-side reduction"))
	})

	t.Run("reduction failure is not fatal", func(t *testing.T) {
		hook.Reset()
		src := &fakeSource{name: "remote", red: []float64{0.1, 0.2}, nir: []float64{0.3, 0.2}, reduceErr: errors.New("quota")}
		st := &fakeStore{}
		res, err := NewService(testConfig(), st, []Source{src}).Run(context.Background())
		require.NoError(t, err)

		assert.InDelta(t, 0.25, res.Before.MeanNDVI, 1e-12)
		assert.Len(t, st.saved, 1)
		assert.Len(t, warnings("server-side region mean unavailable"), 2)
	})
}

func TestReadsWithoutStore(t *testing.T) {
	svc := NewService(testConfig(), nil, nil)

	_, err := svc.GetLatest()
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = svc.GetRange(time.Time{}, time.Now())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestComparisonReporting(t *testing.T) {
	res := NewComparison(PeriodStats{MeanNDVI: 0.4}, PeriodStats{MeanNDVI: 0.55})
	assert.Equal(t, TrendIncrease, res.Trend)
	assert.Equal(t, "+0.150 (+15.0%)", res.ChangeLabel())
	assert.Equal(t, "Increase in vegetation", res.TrendLabel())

	res = NewComparison(PeriodStats{MeanNDVI: 0.55}, PeriodStats{MeanNDVI: 0.4})
	assert.Equal(t, TrendDecrease, res.Trend)
	assert.Equal(t, "-0.150 (-15.0%)", res.ChangeLabel())
	assert.Equal(t, "Decrease in vegetation", res.TrendLabel())
}

func TestStatsText(t *testing.T) {
	res := NewComparison(
		PeriodStats{Period: Period{Label: "Summer 2020"}, MeanNDVI: 0.4},
		PeriodStats{Period: Period{Label: "Summer 2025"}, MeanNDVI: 0.55},
	)
	res.Region = Region{Name: "Forest Poikilo Mountain", Locality: "Chaidari, Attica"}

	want := "Forest Poikilo Mountain\n" +
		"   Chaidari, Attica\n" +
		"\nStatistics:\n\n" +
		"Summer 2020:\n  NDVI = 0.400\n\n" +
		"Summer 2025:\n  NDVI = 0.550\n\n" +
		"Change:\n  +0.150 (+15.0%)\n\n" +
		"Increase in vegetation"
	assert.Equal(t, want, StatsText(res))
}

func TestPeriodSlug(t *testing.T) {
	assert.Equal(t, "summer-2020", Period{Label: " Summer  2020 "}.Slug())
	p := Period{From: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2020-06-01_2020-08-31", p.Slug())
}
