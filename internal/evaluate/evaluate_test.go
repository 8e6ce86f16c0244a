package evaluate

import (
	"strings"
	"testing"
	"time"

	"github.com/halwell/parlq/internal/federation"
	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/registry"
)

func evaluator() *Evaluator {
	return New(registry.Builtin())
}

func okResult(name string) federation.Result {
	return federation.Result{SourceName: name, Status: federation.StatusOK, Payload: []byte(`{"n":1}`)}
}

func TestEvaluate_UnknownIntent(t *testing.T) {
	got := evaluator().Evaluate(nil, intent.Analysis{Intent: intent.Unknown})
	if got.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.QualityScore)
	}
	if !strings.Contains(got.Guidance, "intent not recognized") {
		t.Errorf("Guidance = %q", got.Guidance)
	}
}

func TestEvaluate_NoMatchingSource(t *testing.T) {
	got := evaluator().Evaluate(nil, intent.Analysis{Intent: intent.StatusQuery, Confidence: 0.8})
	if got.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.QualityScore)
	}
	if !strings.Contains(got.Guidance, "No source can serve") {
		t.Errorf("Guidance = %q", got.Guidance)
	}
}

func TestEvaluate_AllUsable(t *testing.T) {
	results := []federation.Result{okResult("twfy-people"), okResult("members-api")}
	got := evaluator().Evaluate(results, intent.Analysis{Intent: intent.MemberSearch, Confidence: 0.9})

	if got.QualityScore != 1 {
		t.Errorf("QualityScore = %v, want 1", got.QualityScore)
	}
	if got.SuggestRefinement {
		t.Error("SuggestRefinement = true with all sources usable")
	}
	if !strings.Contains(got.Guidance, "2 of 2 sources returned data") {
		t.Errorf("Guidance = %q", got.Guidance)
	}
}

func TestEvaluate_PartialWeightedByReliability(t *testing.T) {
	// members-api is tier 3, hansard-archive tier 1: a usable answer from
	// the more reliable source scores higher than one from the less.
	e := evaluator()
	analysis := intent.Analysis{Intent: intent.HistoricalLookup, Confidence: 0.9}

	reliableOK := e.Evaluate([]federation.Result{
		okResult("members-api"),
		{SourceName: "hansard-archive", Status: federation.StatusError},
	}, analysis)
	archiveOK := e.Evaluate([]federation.Result{
		{SourceName: "members-api", Status: federation.StatusError},
		okResult("hansard-archive"),
	}, analysis)

	if reliableOK.QualityScore <= archiveOK.QualityScore {
		t.Errorf("reliable-source score %v not above archive-only score %v",
			reliableOK.QualityScore, archiveOK.QualityScore)
	}
	if reliableOK.QualityScore <= 0 || reliableOK.QualityScore >= 1 {
		t.Errorf("partial score = %v, want in (0,1)", reliableOK.QualityScore)
	}
}

func TestEvaluate_ScoreMonotonicity(t *testing.T) {
	e := evaluator()
	analysis := intent.Analysis{Intent: intent.HistoricalLookup, Confidence: 0.9}

	base := []federation.Result{
		okResult("hansard-archive"),
		{SourceName: "twfy-people", Status: federation.StatusNoData},
	}
	extended := append(append([]federation.Result{}, base...), okResult("members-api"))

	before := e.Evaluate(base, analysis).QualityScore
	after := e.Evaluate(extended, analysis).QualityScore
	if after < before {
		t.Errorf("score dropped from %v to %v after adding a usable high-reliability result", before, after)
	}
}

func TestEvaluate_RateLimitedSuggestsAlternative(t *testing.T) {
	hint := &intent.DateRange{
		From: time.Date(1992, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(1992, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	results := []federation.Result{
		{SourceName: "twfy-people", Status: federation.StatusRateLimited, Detail: "theyworkforyou rate limited (HTTP 429)"},
	}
	got := evaluator().Evaluate(results, intent.Analysis{
		Intent: intent.HistoricalLookup, TemporalHint: hint, Confidence: 0.9,
	})

	if got.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.QualityScore)
	}
	if !strings.Contains(got.Guidance, "twfy-people: rate limited") {
		t.Errorf("Guidance = %q, want rate-limited source named", got.Guidance)
	}
	if !strings.Contains(got.Guidance, "hansard-archive") {
		t.Errorf("Guidance = %q, want hansard-archive suggested", got.Guidance)
	}
	if !got.SuggestRefinement {
		t.Error("SuggestRefinement = false with no usable results")
	}
}

func TestEvaluate_AllNoDataSuggestsBroadening(t *testing.T) {
	results := []federation.Result{
		{SourceName: "members-api", Status: federation.StatusNoData},
		{SourceName: "twfy-people", Status: federation.StatusNoData},
		{SourceName: "hansard-archive", Status: federation.StatusNoData},
	}
	got := evaluator().Evaluate(results, intent.Analysis{Intent: intent.HistoricalLookup, Confidence: 0.9})

	if got.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.QualityScore)
	}
	if !strings.Contains(got.Guidance, "broader date range") {
		t.Errorf("Guidance = %q, want broadening suggestion", got.Guidance)
	}
}

func TestEvaluate_PreHansardEra(t *testing.T) {
	hint := &intent.DateRange{
		From: time.Date(1750, time.January, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(1751, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	got := evaluator().Evaluate(nil, intent.Analysis{
		Intent: intent.HistoricalLookup, TemporalHint: hint, Confidence: 0.9,
	})
	if !strings.Contains(got.Guidance, "predates Hansard") {
		t.Errorf("Guidance = %q, want pre-Hansard note", got.Guidance)
	}
}

func TestEvaluate_CacheHitMentioned(t *testing.T) {
	results := []federation.Result{{
		SourceName: "twfy-people", Status: federation.StatusOK,
		Payload: []byte(`{}`), CacheHit: true,
	}}
	got := evaluator().Evaluate(results, intent.Analysis{Intent: intent.HistoricalLookup, Confidence: 0.9})
	if !strings.Contains(got.Guidance, "from cache") {
		t.Errorf("Guidance = %q, want cache mention", got.Guidance)
	}
}
