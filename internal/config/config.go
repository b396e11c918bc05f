package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/ndvi-change/internal/analysis"
	"github.com/i474232898/ndvi-change/internal/common"
	"github.com/i474232898/ndvi-change/internal/render"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

type AppConfig struct {
	Region analysis.Region
	Before analysis.Period
	After  analysis.Period

	Collection      string  `validate:"required"`
	MaxCloudPct     float64 `validate:"gte=0,lte=100"`
	ScaleMeters     float64 `validate:"gt=0"`
	ThumbDimensions int     `validate:"gte=0"`

	NDVIVis   render.VisParams
	ChangeVis render.VisParams
	RGBVis    render.VisParams

	// Composite sources, tried API first.
	CompositeAPIURL string `validate:"omitempty,url"`
	CompositeAPIKey string
	CompositeDir    string `validate:"required_without=CompositeAPIURL"`

	OutputPath string
	FigureDPI  int `validate:"gt=0,lte=1200"`

	HTTPTimeout      time.Duration `validate:"gt=0"`
	AnalysisInterval time.Duration `validate:"gt=0"`
	RunTimeout       time.Duration `validate:"gt=0"`

	StoreDriver     string `validate:"oneof=memory sqlite"`
	StorePath       string `validate:"required_if=StoreDriver sqlite"`
	StoreMaxHistory int    // max number of results per region (0 = unlimited)
	StoreMaxAge     time.Duration

	// Serve keeps the process running with the HTTP API and scheduler.
	// When false a single comparison is run and the process exits.
	Serve    bool
	Port     string
	LogLevel log.Level
}

// Load reads configuration from environment with defaults that reproduce
// the Poikilo Mountain comparison.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Infof("no .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	region, err := loadRegion()
	if err != nil {
		return nil, err
	}
	cfg.Region = region

	if cfg.Before, err = loadPeriod("PERIOD_A", "Summer 2020", "2020-06-01", "2020-08-31"); err != nil {
		return nil, err
	}
	if cfg.After, err = loadPeriod("PERIOD_B", "Summer 2025", "2025-01-01", "2025-02-15"); err != nil {
		return nil, err
	}

	cfg.Collection = getenvDefault("COLLECTION", "COPERNICUS/S2_SR")
	if cfg.MaxCloudPct, err = getenvFloat("MAX_CLOUD_PCT", 10); err != nil {
		return nil, err
	}
	if cfg.ScaleMeters, err = getenvFloat("SCALE_METERS", 10); err != nil {
		return nil, err
	}
	cfg.ThumbDimensions = getenvInt("THUMB_DIMENSIONS", 512)

	if cfg.NDVIVis, err = loadVis("NDVI", render.NDVIParams, cfg.ThumbDimensions); err != nil {
		return nil, err
	}
	if cfg.ChangeVis, err = loadVis("CHANGE", render.ChangeParams, cfg.ThumbDimensions); err != nil {
		return nil, err
	}
	if cfg.RGBVis, err = loadVis("RGB", render.RGBParams, cfg.ThumbDimensions); err != nil {
		return nil, err
	}

	cfg.CompositeAPIURL = os.Getenv("COMPOSITE_API_URL")
	cfg.CompositeAPIKey = os.Getenv("COMPOSITE_API_KEY")
	cfg.CompositeDir = getenvDefault("COMPOSITE_DIR", "data/composites")

	cfg.OutputPath = getenvDefault("OUTPUT_PATH", "data/poikilo_oros_comparison.png")
	cfg.FigureDPI = getenvInt("FIGURE_DPI", 300)

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.AnalysisInterval, err = getenvDuration("ANALYSIS_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getenvDuration("RUN_TIMEOUT", "5m"); err != nil {
		return nil, err
	}

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", "memory")
	cfg.StorePath = getenvDefault("STORE_PATH", "data/results.db")
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 30)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "0"); err != nil {
		return nil, err
	}

	cfg.Serve = getenvBool("SERVE", false)
	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.LogLevel, err = log.ParseLevel(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ServiceConfig projects the settings the analysis service needs.
func (c *AppConfig) ServiceConfig() analysis.Config {
	return analysis.Config{
		Region:      c.Region,
		Before:      c.Before,
		After:       c.After,
		Collection:  c.Collection,
		MaxCloudPct: c.MaxCloudPct,
		ScaleMeters: c.ScaleMeters,
		OutputPath:  c.OutputPath,
		FigureDPI:   c.FigureDPI,
		NDVIVis:     c.NDVIVis,
		ChangeVis:   c.ChangeVis,
		RGBVis:      c.RGBVis,
	}
}

func loadRegion() (analysis.Region, error) {
	bbox, err := common.ParseFloatList(getenvDefault("REGION_BBOX", "23.660,38.030,23.690,38.055"))
	if err != nil {
		return analysis.Region{}, fmt.Errorf("invalid REGION_BBOX: %w", err)
	}
	if len(bbox) != 4 {
		return analysis.Region{}, fmt.Errorf("REGION_BBOX must be west,south,east,north")
	}
	return analysis.Region{
		Name:     getenvDefault("REGION_NAME", "Forest Poikilo Mountain"),
		Locality: getenvDefault("REGION_LOCALITY", "Chaidari, Attica"),
		West:     bbox[0],
		South:    bbox[1],
		East:     bbox[2],
		North:    bbox[3],
	}, nil
}

func loadPeriod(prefix, label, from, to string) (analysis.Period, error) {
	p := analysis.Period{Label: getenvDefault(prefix+"_LABEL", label)}

	var err error
	if p.From, err = time.Parse(dateLayout, getenvDefault(prefix+"_FROM", from)); err != nil {
		return p, fmt.Errorf("invalid %s_FROM: %w", prefix, err)
	}
	if p.To, err = time.Parse(dateLayout, getenvDefault(prefix+"_TO", to)); err != nil {
		return p, fmt.Errorf("invalid %s_TO: %w", prefix, err)
	}
	return p, nil
}

// loadVis overlays <PREFIX>_RANGE ("min,max"), <PREFIX>_PALETTE and
// <PREFIX>_GAMMA on a default visualization.
func loadVis(prefix string, def render.VisParams, dims int) (render.VisParams, error) {
	vis := def
	vis.Dimensions = dims

	if v := os.Getenv(prefix + "_RANGE"); v != "" {
		r, err := common.ParseFloatList(v)
		if err != nil || len(r) != 2 {
			return vis, fmt.Errorf("invalid %s_RANGE %q: want min,max", prefix, v)
		}
		vis.Min, vis.Max = r[0], r[1]
	}
	if v := os.Getenv(prefix + "_PALETTE"); v != "" {
		p, err := render.ParsePalette(common.SplitList(v)...)
		if err != nil {
			return vis, fmt.Errorf("invalid %s_PALETTE: %w", prefix, err)
		}
		vis.Palette = p
	}
	if v := os.Getenv(prefix + "_GAMMA"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil || g <= 0 {
			return vis, fmt.Errorf("invalid %s_GAMMA %q", prefix, v)
		}
		vis.Gamma = g
	}
	if vis.Max <= vis.Min {
		return vis, fmt.Errorf("invalid %s_RANGE: max must exceed min", prefix)
	}
	return vis, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
