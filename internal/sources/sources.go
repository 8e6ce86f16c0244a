// Package sources holds the clients for the upstream parliamentary APIs.
// Each client normalizes its native response shape into an opaque JSON
// payload at the boundary and reports failures as typed errors so the
// federation layer can classify them without string matching.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halwell/parlq/internal/registry"
)

// ErrNoData means the source was reachable but found nothing for the
// parameters. Distinct from transport errors so callers can tell "nothing
// there" from "couldn't ask".
var ErrNoData = errors.New("source returned no data")

// ErrNotConfigured means the source needs a credential that is not set.
var ErrNotConfigured = errors.New("source not configured")

// RateLimitError is returned when an upstream signals throttling. The
// federation layer records it without retrying inside the request.
type RateLimitError struct {
	Source string
	Status int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (HTTP %d)", e.Source, e.Status)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Source is one upstream client. Fetch returns the normalized payload for an
// endpoint and parameter map, or a typed error.
type Source interface {
	Fetch(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error)
}

// Prober is implemented by clients that can cheaply report availability.
type Prober interface {
	Probe(ctx context.Context) error
}

// Set dispatches descriptor invocations to the client registered for their
// kind.
type Set struct {
	byKind map[string]Source
}

// NewSet builds a dispatch set from kind-to-client pairs.
func NewSet(clients map[string]Source) *Set {
	return &Set{byKind: clients}
}

// Fetch resolves the descriptor's client and invokes its endpoint.
func (s *Set) Fetch(ctx context.Context, src registry.Descriptor, params map[string]string) (json.RawMessage, error) {
	client, ok := s.byKind[src.Invocation.Kind]
	if !ok {
		return nil, fmt.Errorf("no client for source kind %q", src.Invocation.Kind)
	}
	return client.Fetch(ctx, src.Invocation.Endpoint, params)
}

// Probe checks the client behind the descriptor, if it supports probing.
func (s *Set) Probe(ctx context.Context, src registry.Descriptor) error {
	client, ok := s.byKind[src.Invocation.Kind]
	if !ok {
		return fmt.Errorf("no client for source kind %q", src.Invocation.Kind)
	}
	p, ok := client.(Prober)
	if !ok {
		return nil
	}
	return p.Probe(ctx)
}
