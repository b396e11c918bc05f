package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/ndvi-change/internal/analysis"
)

// SQLiteStore persists results in a sqlite database so history survives
// restarts. Results are stored as JSON alongside indexed lookup columns.
type SQLiteStore struct {
	db *sql.DB

	maxHistory int           // max number of results per region
	maxAge     time.Duration // optional max age for results
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Retention follows MemoryStore: maxHistory <= 0 keeps any number of
// results per region, maxAge <= 0 keeps them forever.
func NewSQLiteStore(path string, maxHistory int, maxAge time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; avoid SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_results (
			id                TEXT PRIMARY KEY,
			region_key        TEXT NOT NULL,
			generated_at_ns   BIGINT NOT NULL,
			mean_before       DOUBLE,
			mean_after        DOUBLE,
			ndvi_change       DOUBLE,
			payload           TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_analysis_results_region_time
			ON analysis_results (region_key, generated_at_ns);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, maxHistory: maxHistory, maxAge: maxAge}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(res analysis.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO analysis_results
			(id, region_key, generated_at_ns, mean_before, mean_after, ndvi_change, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Region.Key(), res.GeneratedAt.UnixNano(),
		res.Before.MeanNDVI, res.After.MeanNDVI, res.Change, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if s.maxHistory > 0 {
		_, err := s.db.Exec(
			`DELETE FROM analysis_results
			 WHERE region_key = ? AND id NOT IN (
				SELECT id FROM analysis_results
				WHERE region_key = ?
				ORDER BY generated_at_ns DESC LIMIT ?
			 )`,
			res.Region.Key(), res.Region.Key(), s.maxHistory,
		)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge).UnixNano()
		if _, err := s.db.Exec(`DELETE FROM analysis_results WHERE generated_at_ns < ?`, cutoff); err != nil {
			return fmt.Errorf("prune results: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetLatest(region analysis.Region) (analysis.Result, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM analysis_results
		 WHERE region_key = ?
		 ORDER BY generated_at_ns DESC LIMIT 1`,
		region.Key(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.Result{}, ErrNotFound
	}
	if err != nil {
		return analysis.Result{}, err
	}
	return decodeResult(payload)
}

func (s *SQLiteStore) GetRange(region analysis.Region, from, to time.Time) ([]analysis.Result, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM analysis_results
		 WHERE region_key = ? AND generated_at_ns BETWEEN ? AND ?
		 ORDER BY generated_at_ns ASC`,
		region.Key(), from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []analysis.Result
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		res, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results, nil
}

func decodeResult(payload string) (analysis.Result, error) {
	var res analysis.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return analysis.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
