// Package recommend ranks registry sources against an analyzed query.
package recommend

import (
	"fmt"
	"sort"

	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/registry"
)

// DefaultCap is the number of sources recommended when no override is set.
const DefaultCap = 3

// Coverage handling. A source whose window contains the hinted range always
// ranks above one with no temporal restriction, regardless of the analysis
// confidence; a source whose window misses the range is excluded entirely.
// The bonus discounts the reported confidence on top of that ordering.
const (
	rankExact        = 2
	rankUnrestricted = 1

	bonusExact        = 1.0
	bonusUnrestricted = 0.85
)

// Recommendation pairs a source with the confidence that it can answer the
// query, plus a short human-readable reason.
type Recommendation struct {
	Source     registry.Descriptor `json:"source"`
	Confidence float64             `json:"confidence"`
	Reason     string              `json:"reason"`
	// Params is filled in by the parameter builder after ranking.
	Params map[string]string `json:"params,omitempty"`
}

// Recommender ranks catalog sources for analyzed queries.
type Recommender struct {
	registry *registry.Registry
	cap      int
}

// New creates a Recommender over the given catalog. A non-positive cap
// selects DefaultCap.
func New(reg *registry.Registry, cap int) *Recommender {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Recommender{registry: reg, cap: cap}
}

// Recommend returns up to cap sources able to serve the analysis: covering
// sources before unrestricted ones, then descending confidence. An
// unrecognized intent yields no recommendations: the evaluator turns that
// into guidance rather than a fan-out to nothing.
func (r *Recommender) Recommend(analysis intent.Analysis) []Recommendation {
	if analysis.Intent == intent.Unknown {
		return nil
	}

	type scored struct {
		rec  Recommendation
		rank int
	}

	var recs []scored
	for _, src := range r.registry.All() {
		if !src.Serves(analysis.Intent) {
			continue
		}

		rank := rankExact
		bonus := bonusExact
		reason := fmt.Sprintf("serves %s queries", analysis.Intent)
		if analysis.TemporalHint != nil {
			hint := describeHint(*analysis.TemporalHint)
			switch {
			case src.Coverage == nil:
				rank = rankUnrestricted
				bonus = bonusUnrestricted
				reason = fmt.Sprintf("serves %s queries, coverage of %s unverified", analysis.Intent, hint)
			case src.Coverage.Covers(*analysis.TemporalHint):
				reason = fmt.Sprintf("serves %s queries and covers %s", analysis.Intent, hint)
			default:
				// Window misses the hinted range entirely.
				continue
			}
		}

		recs = append(recs, scored{
			rec: Recommendation{
				Source:     src,
				Confidence: intent.Clamp(analysis.Confidence * bonus),
				Reason:     reason,
			},
			rank: rank,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].rank != recs[j].rank {
			return recs[i].rank > recs[j].rank
		}
		if recs[i].rec.Confidence != recs[j].rec.Confidence {
			return recs[i].rec.Confidence > recs[j].rec.Confidence
		}
		if recs[i].rec.Source.ReliabilityTier != recs[j].rec.Source.ReliabilityTier {
			return recs[i].rec.Source.ReliabilityTier > recs[j].rec.Source.ReliabilityTier
		}
		return recs[i].rec.Source.Name < recs[j].rec.Source.Name
	})

	if len(recs) > r.cap {
		recs = recs[:r.cap]
	}
	out := make([]Recommendation, len(recs))
	for i, s := range recs {
		out[i] = s.rec
	}
	return out
}

// describeHint renders a hinted range as years, matching how coverage windows
// read in the catalog. The range is half-open, so the displayed end year comes
// from the last covered day.
func describeHint(r intent.DateRange) string {
	fromYear := r.From.Year()
	toYear := r.To.AddDate(0, 0, -1).Year()
	if fromYear == toYear {
		return fmt.Sprintf("%d", fromYear)
	}
	return fmt.Sprintf("%d to %d", fromYear, toYear)
}
