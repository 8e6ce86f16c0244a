package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CacheEntry is one cached source payload, keyed by the canonicalized
// source name and parameters. Immutable entries hold historical facts and
// never expire; everything else is subject to the TTL at read time.
type CacheEntry struct {
	Key       string
	Payload   []byte
	Immutable bool
	FetchedAt time.Time
}

// QueryRecord is the persisted trace of one pipeline execution.
type QueryRecord struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	QueryText    string    `json:"query_text"`
	Intent       string    `json:"intent"`
	Confidence   float64   `json:"confidence"`
	QualityScore float64   `json:"quality_score"`
	Guidance     string    `json:"guidance,omitempty"`
	State        string    `json:"state"`
	ResultsJSON  string    `json:"results_json,omitempty"`
}
