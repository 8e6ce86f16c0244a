// Package registry holds the static catalog of upstream parliamentary data
// sources. The catalog is built once at process start and shared read-only
// by every in-flight query.
package registry

import (
	"fmt"
	"time"

	"github.com/halwell/parlq/internal/intent"
)

// Window is a half-open [From, To) coverage range. A zero To means the
// source covers everything from From onwards.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to,omitzero"`
}

// Covers reports whether the window fully contains the hinted range.
func (w Window) Covers(hint intent.DateRange) bool {
	if w.From.After(hint.From) {
		return false
	}
	return w.To.IsZero() || !w.To.Before(hint.To)
}

func (w Window) String() string {
	if w.To.IsZero() {
		return fmt.Sprintf("%s onwards", w.From.Format("2006"))
	}
	return fmt.Sprintf("%s to %s", w.From.Format("2006"), w.To.Format("2006"))
}

// Invocation is the opaque call template for a source: which client kind to
// dispatch to, the endpoint within it, default parameters, and the result
// count ceiling the parameter builder must clamp to.
type Invocation struct {
	Kind       string            `json:"kind"`
	Endpoint   string            `json:"endpoint"`
	Defaults   map[string]string `json:"defaults,omitempty"`
	MaxResults int               `json:"max_results,omitempty"`
}

// Descriptor is one registry entry describing an upstream capability.
type Descriptor struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Capabilities    []intent.Intent `json:"capabilities"`
	Coverage        *Window         `json:"coverage,omitempty"` // nil means no temporal restriction
	ReliabilityTier int             `json:"reliability_tier"`   // higher wins ties
	Immutable       bool            `json:"immutable"`          // results are historical facts, cacheable forever
	Invocation      Invocation      `json:"invocation"`
}

// Serves reports whether the descriptor's capability tags include the intent.
func (d Descriptor) Serves(label intent.Intent) bool {
	for _, c := range d.Capabilities {
		if c == label {
			return true
		}
	}
	return false
}

// Registry is an immutable collection of source descriptors.
type Registry struct {
	sources []Descriptor
	byName  map[string]int
}

// New builds a Registry from the given descriptors. Duplicate names are a
// programming error.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		sources: descriptors,
		byName:  make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", d.Name)
		}
		r.byName[d.Name] = i
	}
	return r, nil
}

// All returns the descriptors in catalog order. Callers must not mutate the
// returned slice.
func (r *Registry) All() []Descriptor {
	return r.sources
}

// Get returns the descriptor with the given name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.sources[i], true
}

// Len returns the number of catalog entries.
func (r *Registry) Len() int {
	return len(r.sources)
}

func year(y int) time.Time {
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Builtin returns the standard parlq catalog of UK parliamentary sources.
func Builtin() *Registry {
	r, err := New(
		Descriptor{
			Name:            "members-api",
			Description:     "UK Parliament Members API: current and former member search",
			Capabilities:    []intent.Intent{intent.MemberSearch, intent.HistoricalLookup},
			Coverage:        nil, // searchable for any era, though pre-2001 data is thin
			ReliabilityTier: 3,
			Invocation: Invocation{
				Kind:       "members",
				Endpoint:   "/Members/Search",
				Defaults:   map[string]string{"take": "10"},
				MaxResults: 20,
			},
		},
		Descriptor{
			Name:            "members-api-constituencies",
			Description:     "UK Parliament Members API: constituency search",
			Capabilities:    []intent.Intent{intent.ConstituencySearch},
			Coverage:        nil,
			ReliabilityTier: 3,
			Invocation: Invocation{
				Kind:       "members",
				Endpoint:   "/Location/Constituency/Search",
				Defaults:   map[string]string{"take": "20"},
				MaxResults: 20,
			},
		},
		Descriptor{
			Name:            "members-api-elections",
			Description:     "UK Parliament Members API: constituency election results",
			Capabilities:    []intent.Intent{intent.ElectionResults},
			Coverage:        &Window{From: year(2010)},
			ReliabilityTier: 3,
			Immutable:       true, // past election results never change
			Invocation: Invocation{
				Kind:       "members",
				Endpoint:   "/Location/Constituency/Search",
				Defaults:   map[string]string{"take": "5"},
				MaxResults: 10,
			},
		},
		Descriptor{
			Name:            "twfy-people",
			Description:     "TheyWorkForYou: historical member records, 1935 onwards",
			Capabilities:    []intent.Intent{intent.HistoricalLookup, intent.MemberSearch},
			Coverage:        &Window{From: year(1935)},
			ReliabilityTier: 2,
			Immutable:       true,
			Invocation: Invocation{
				Kind:     "twfy",
				Endpoint: "getPerson",
				Defaults: map[string]string{"output": "js"},
			},
		},
		Descriptor{
			Name:            "twfy-debates",
			Description:     "TheyWorkForYou: debate and speech search, 1935 onwards",
			Capabilities:    []intent.Intent{intent.DebateSearch, intent.PolicyResearch},
			Coverage:        &Window{From: year(1935)},
			ReliabilityTier: 2,
			Immutable:       true,
			Invocation: Invocation{
				Kind:       "twfy",
				Endpoint:   "getDebates",
				Defaults:   map[string]string{"output": "js", "type": "commons"},
				MaxResults: 20,
			},
		},
		Descriptor{
			Name:            "hansard-archive",
			Description:     "Hansard archive search, 1803 onwards",
			Capabilities:    []intent.Intent{intent.DebateSearch, intent.HistoricalLookup, intent.PolicyResearch},
			Coverage:        &Window{From: year(1803)},
			ReliabilityTier: 1,
			Immutable:       true,
			Invocation: Invocation{
				Kind:       "hansard",
				Endpoint:   "/search",
				MaxResults: 20,
			},
		},
	)
	if err != nil {
		// Builtin descriptors are compiled in; a duplicate is unreachable
		// short of a bad edit.
		panic(err)
	}
	return r
}
