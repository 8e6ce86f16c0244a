// Package evaluate scores aggregated federation results and produces the
// guidance text explaining what was tried. It is pure post-processing: no
// external calls, deterministic output for a given input.
package evaluate

import (
	"fmt"
	"strings"
	"time"

	"github.com/halwell/parlq/internal/federation"
	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/registry"
)

// Evaluation is the final verdict on one query's results.
type Evaluation struct {
	QualityScore float64 `json:"quality_score"`
	Guidance     string  `json:"guidance"`
	// SuggestRefinement is set when re-entering the pipeline with adjusted
	// parameters could plausibly do better.
	SuggestRefinement bool `json:"suggest_refinement"`
}

// Hansard's printed record starts in 1803; nothing in the catalog reaches
// further back.
var hansardEpoch = time.Date(1803, time.January, 1, 0, 0, 0, 0, time.UTC)

// Evaluator scores results against the catalog's reliability tiers.
type Evaluator struct {
	registry *registry.Registry
}

// New creates an Evaluator over the given catalog.
func New(reg *registry.Registry) *Evaluator {
	return &Evaluator{registry: reg}
}

// Evaluate scores the result sequence and builds guidance. A zero score with
// explanatory guidance is the normal outcome for an unanswerable query;
// evaluation itself never fails.
func (e *Evaluator) Evaluate(results []federation.Result, analysis intent.Analysis) Evaluation {
	if analysis.Intent == intent.Unknown {
		return Evaluation{
			QualityScore: 0,
			Guidance:     "Query intent not recognized. Rephrase the question naming a member, constituency, debate topic, or election.",
		}
	}

	if len(results) == 0 {
		return Evaluation{
			QualityScore: 0,
			Guidance:     fmt.Sprintf("No source can serve %s queries%s.", analysis.Intent, e.coverageNote(analysis)),
		}
	}

	return Evaluation{
		QualityScore:      e.score(results),
		Guidance:          e.guidance(results, analysis),
		SuggestRefinement: allUnusable(results),
	}
}

// score is the reliability-weighted fraction of sources that returned usable
// payload. Weighting by tier means a usable answer from a more reliable
// source counts for more, and adding a usable result never lowers the score.
func (e *Evaluator) score(results []federation.Result) float64 {
	var usable, total float64
	for _, r := range results {
		w := e.weight(r.SourceName)
		total += w
		if r.Usable() {
			usable += w
		}
	}
	if total == 0 {
		return 0
	}
	return usable / total
}

func (e *Evaluator) weight(sourceName string) float64 {
	if src, ok := e.registry.Get(sourceName); ok && src.ReliabilityTier > 0 {
		return float64(src.ReliabilityTier)
	}
	return 1
}

func allUnusable(results []federation.Result) bool {
	for _, r := range results {
		if r.Usable() {
			return false
		}
	}
	return true
}

// guidance enumerates every attempted source and what came of it, then adds
// suggestions when nothing was found.
func (e *Evaluator) guidance(results []federation.Result, analysis intent.Analysis) string {
	var lines []string
	okCount := 0
	rateLimited := false
	tried := make(map[string]struct{}, len(results))

	for _, r := range results {
		tried[r.SourceName] = struct{}{}
		switch r.Status {
		case federation.StatusOK:
			okCount++
			if r.CacheHit {
				lines = append(lines, fmt.Sprintf("%s: answered from cache.", r.SourceName))
			} else {
				lines = append(lines, fmt.Sprintf("%s: returned data.", r.SourceName))
			}
		case federation.StatusNoData:
			lines = append(lines, fmt.Sprintf("%s: reachable but found nothing for these parameters.", r.SourceName))
		case federation.StatusRateLimited:
			rateLimited = true
			lines = append(lines, fmt.Sprintf("%s: rate limited, not retried within this request.", r.SourceName))
		default:
			detail := r.Detail
			if detail == "" {
				detail = "unreachable"
			}
			lines = append(lines, fmt.Sprintf("%s: failed (%s).", r.SourceName, detail))
		}
	}

	summary := fmt.Sprintf("%d of %d sources returned data.", okCount, len(results))
	parts := []string{summary}
	parts = append(parts, lines...)

	if okCount == 0 {
		if alts := e.alternatives(analysis, tried); len(alts) > 0 {
			parts = append(parts, fmt.Sprintf("Alternative sources for %s queries: %s.",
				analysis.Intent, strings.Join(alts, ", ")))
		} else if rateLimited {
			parts = append(parts, "All capable sources were tried; retry later.")
		} else {
			parts = append(parts, "Try a broader date range or a different spelling of the name.")
		}
		if note := e.coverageNote(analysis); note != "" {
			parts = append(parts, strings.TrimPrefix(note, " ")+".")
		}
	}

	return strings.Join(parts, " ")
}

// alternatives names catalog sources that serve the intent, cover the hint,
// and were not attempted.
func (e *Evaluator) alternatives(analysis intent.Analysis, tried map[string]struct{}) []string {
	var alts []string
	for _, src := range e.registry.All() {
		if _, attempted := tried[src.Name]; attempted {
			continue
		}
		if !src.Serves(analysis.Intent) {
			continue
		}
		if analysis.TemporalHint != nil && src.Coverage != nil && !src.Coverage.Covers(*analysis.TemporalHint) {
			continue
		}
		alts = append(alts, src.Name)
	}
	return alts
}

// coverageNote adds era context for hints that predate the machine-readable
// records.
func (e *Evaluator) coverageNote(analysis intent.Analysis) string {
	h := analysis.TemporalHint
	if h == nil {
		return ""
	}
	switch {
	case h.To.Before(hansardEpoch) || h.To.Equal(hansardEpoch):
		return " (the requested period predates Hansard records, which begin in 1803)"
	case h.From.Before(time.Date(1935, time.January, 1, 0, 0, 0, 0, time.UTC)):
		return " (for periods before 1935 only the hansard-archive source has coverage)"
	default:
		return ""
	}
}
