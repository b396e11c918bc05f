package analysis

import (
	"context"
	"time"
)

// Source abstracts a remote earth-observation service that returns
// median composites for a region and period.
type Source interface {
	Name() string
	FetchComposite(ctx context.Context, req CompositeRequest) (Composite, error)
}

// RegionReducer is implemented by sources that can also compute the region
// mean NDVI server-side. It is used to cross-check the local reduction.
type RegionReducer interface {
	ReduceRegionMean(ctx context.Context, req CompositeRequest) (float64, error)
}

// Store is the contract the in-memory store (and the sqlite store) must satisfy.
type Store interface {
	SaveResult(res Result) error
	GetLatest(region Region) (Result, error)
	GetRange(region Region, from, to time.Time) ([]Result, error)
}
