package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/ndvi-change/internal/analysis"
)

var (
	// ErrNotFound is returned when no result is available for a given region.
	ErrNotFound = errors.New("no analysis result for region")
)

// ResultHistory holds a time-ordered list of results for a region.
type ResultHistory struct {
	Results []analysis.Result
}

// MemoryStore is a concurrency-safe in-memory implementation of a result store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: region key, value: history
	data map[string]*ResultHistory

	maxHistory int           // max number of results per region
	maxAge     time.Duration // optional max age for results

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ResultHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveResult appends a result for its region and enforces retention.
func (s *MemoryStore) SaveResult(res analysis.Result) error {
	key := res.Region.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &ResultHistory{}
		s.data[key] = history
	}

	history.Results = append(history.Results, res)
	sort.SliceStable(history.Results, func(i, j int) bool {
		return history.Results[i].GeneratedAt.Before(history.Results[j].GeneratedAt)
	})

	if s.maxHistory > 0 && len(history.Results) > s.maxHistory {
		over := len(history.Results) - s.maxHistory
		history.Results = history.Results[over:]
	}

	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := sort.Search(len(history.Results), func(i int) bool {
			return !history.Results[i].GeneratedAt.Before(cutoff)
		})
		history.Results = history.Results[i:]
	}
	return nil
}

// GetLatest returns the most recent result for a region.
func (s *MemoryStore) GetLatest(region analysis.Region) (analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[region.Key()]
	if !ok || len(history.Results) == 0 {
		return analysis.Result{}, ErrNotFound
	}
	return history.Results[len(history.Results)-1], nil
}

// GetRange returns all results for a region generated between from and to (inclusive).
func (s *MemoryStore) GetRange(region analysis.Region, from, to time.Time) ([]analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[region.Key()]
	if !ok || len(history.Results) == 0 {
		return nil, ErrNotFound
	}

	var result []analysis.Result
	for _, res := range history.Results {
		if !res.GeneratedAt.Before(from) && !res.GeneratedAt.After(to) {
			result = append(result, res)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
