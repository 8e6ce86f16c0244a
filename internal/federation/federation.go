// Package federation invokes the recommended sources concurrently and
// aggregates their answers with provenance. Per-source failures become data,
// never errors: a query's result sequence always has one entry per
// recommendation, in rank order.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halwell/parlq/internal/params"
	"github.com/halwell/parlq/internal/recommend"
	"github.com/halwell/parlq/internal/registry"
	"github.com/halwell/parlq/internal/sources"
)

// Status classifies one source attempt.
type Status string

const (
	StatusOK          Status = "ok"
	StatusError       Status = "error"
	StatusRateLimited Status = "rate_limited"
	StatusNoData      Status = "no_data"
)

// Result is one source attempt with provenance.
type Result struct {
	SourceName string          `json:"source_name"`
	Status     Status          `json:"status"`
	Detail     string          `json:"detail,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	FetchedAt  time.Time       `json:"fetched_at"`
	CacheHit   bool            `json:"cache_hit"`
}

// Usable reports whether the attempt produced payload worth evaluating.
func (r Result) Usable() bool {
	return r.Status == StatusOK && len(r.Payload) > 0
}

// Cache is the result cache owned by the executor. Get applies the TTL
// policy internally; Put tags historical facts immutable.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, payload []byte, immutable bool) error
}

// Fetcher dispatches one descriptor invocation to its upstream client.
type Fetcher interface {
	Fetch(ctx context.Context, src registry.Descriptor, params map[string]string) (json.RawMessage, error)
}

const defaultSourceTimeout = 5 * time.Second

// Executor runs the fan-out for one query.
type Executor struct {
	fetcher Fetcher
	cache   Cache
	timeout time.Duration
}

// NewExecutor creates an Executor with the given per-source timeout; a
// non-positive timeout selects the default.
func NewExecutor(fetcher Fetcher, cache Cache, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Executor{fetcher: fetcher, cache: cache, timeout: timeout}
}

// Execute attempts every recommendation concurrently, bounded by the
// recommendation count, and waits for all attempts to reach a terminal
// state. The returned sequence preserves recommendation rank order: results
// are written into a pre-sized slice indexed by rank, not appended in
// completion order.
func (e *Executor) Execute(ctx context.Context, recs []recommend.Recommendation) []Result {
	results := make([]Result, len(recs))
	if len(recs) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(len(recs))
	for i, rec := range recs {
		g.Go(func() error {
			results[i] = e.attempt(ctx, rec)
			return nil
		})
	}
	g.Wait()
	return results
}

func (e *Executor) attempt(ctx context.Context, rec recommend.Recommendation) Result {
	key := params.CanonicalKey(rec.Source.Name, rec.Params)

	if payload, hit, err := e.cache.Get(key); err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	} else if hit {
		return Result{
			SourceName: rec.Source.Name,
			Status:     StatusOK,
			Payload:    payload,
			FetchedAt:  time.Now(),
			CacheHit:   true,
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := e.fetcher.Fetch(cctx, rec.Source, rec.Params)
	result := Result{SourceName: rec.Source.Name, FetchedAt: time.Now()}

	switch {
	case err == nil:
		result.Status = StatusOK
		result.Payload = payload
		if err := e.cache.Put(key, payload, rec.Source.Immutable); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
	case sources.IsRateLimit(err):
		result.Status = StatusRateLimited
		result.Detail = err.Error()
	case errors.Is(err, sources.ErrNoData):
		result.Status = StatusNoData
	case ctx.Err() != nil:
		// The whole pipeline was cancelled mid-flight; the attempt is
		// recorded, never left pending.
		result.Status = StatusError
		result.Detail = "cancelled"
	default:
		result.Status = StatusError
		result.Detail = err.Error()
	}
	return result
}
