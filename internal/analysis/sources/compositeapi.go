package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/ndvi-change/internal/analysis"
)

const (
	dateLayout = "2006-01-02"

	// ndviStatistic is the key the reduce endpoint uses for a normalized
	// difference band.
	ndviStatistic = "nd"
)

// CompositeAPISource implements analysis.Source against an HTTP
// earth-observation API that filters a collection by bounds, date and cloud
// percentage and returns a per-pixel median composite.
type CompositeAPISource struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewCompositeAPISource(client *http.Client, baseURL, apiKey string) *CompositeAPISource {
	return &CompositeAPISource{
		name:    "composite-api",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("composite-api"),
	}
}

// WithBackoff overrides the retry policy.
func (s *CompositeAPISource) WithBackoff(b BackoffConfig) *CompositeAPISource {
	s.httpCfg.Backoff = b
	return s
}

func (s *CompositeAPISource) Name() string {
	return s.name
}

type compositeQuery struct {
	Collection         string     `json:"collection"`
	BBox               [4]float64 `json:"bbox"`
	Start              string     `json:"start"`
	End                string     `json:"end"`
	MaxCloudPercentage float64    `json:"maxCloudPercentage"`
	Reducer            string     `json:"reducer"`
	Bands              []string   `json:"bands"`
	Scale              float64    `json:"scale"`
}

type reduceQuery struct {
	compositeQuery
	Index         []string `json:"normalizedDifference"`
	RegionReducer string   `json:"regionReducer"`
}

func newCompositeQuery(req analysis.CompositeRequest) compositeQuery {
	return compositeQuery{
		Collection:         req.Collection,
		BBox:               req.Region.BBox(),
		Start:              req.Period.From.Format(dateLayout),
		End:                req.Period.To.Format(dateLayout),
		MaxCloudPercentage: req.MaxCloudPct,
		Reducer:            "median",
		Bands:              req.Bands,
		Scale:              req.ScaleMeters,
	}
}

func (s *CompositeAPISource) FetchComposite(ctx context.Context, req analysis.CompositeRequest) (analysis.Composite, error) {
	if s.baseURL == "" {
		return analysis.Composite{}, fmt.Errorf("composite api url is not configured")
	}

	resp, err := s.post(ctx, "/v1/composites", newCompositeQuery(req))
	if err != nil {
		return analysis.Composite{}, err
	}
	defer resp.Body.Close()

	return decodeComposite(resp.Body, s.name, req.Bands)
}

// ReduceRegionMean asks the service for the mean NDVI over the region at the
// request scale. The response must carry exactly the "nd" statistic.
func (s *CompositeAPISource) ReduceRegionMean(ctx context.Context, req analysis.CompositeRequest) (float64, error) {
	if s.baseURL == "" {
		return 0, fmt.Errorf("composite api url is not configured")
	}

	q := reduceQuery{
		compositeQuery: newCompositeQuery(req),
		Index:          []string{analysis.BandNIR, analysis.BandRed},
		RegionReducer:  "mean",
	}
	q.Bands = nil

	resp, err := s.post(ctx, "/v1/reduce", q)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result map[string]*float64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode reduction: %w", err)
	}
	return statistic(result, ndviStatistic)
}

func (s *CompositeAPISource) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		return req, nil
	}

	return doRequestWithResilience(ctx, s.httpCfg, s.circuit, buildRequest)
}
