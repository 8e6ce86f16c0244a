package recommend

import (
	"strings"
	"testing"
	"time"

	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/registry"
)

func hintRange(fromYear int, fromMonth time.Month) *intent.DateRange {
	from := time.Date(fromYear, fromMonth, 1, 0, 0, 0, 0, time.UTC)
	return &intent.DateRange{From: from, To: from.AddDate(0, 1, 0)}
}

func TestRecommend_UnknownIntent(t *testing.T) {
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{Intent: intent.Unknown, Confidence: 0})
	if len(got) != 0 {
		t.Errorf("Recommend(unknown) = %d recommendations, want 0", len(got))
	}
}

func TestRecommend_HistoricalQueryPrefersCoveringSource(t *testing.T) {
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{
		Intent:       intent.HistoricalLookup,
		Entities:     []string{"Tim Eggar"},
		TemporalHint: hintRange(1992, time.March),
		Confidence:   0.9,
	})

	if len(got) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(got))
	}
	// Exact-coverage sources first, higher reliability breaking the tie,
	// then the unrestricted member search at a discount.
	if got[0].Source.Name != "twfy-people" {
		t.Errorf("rank 0 = %q, want twfy-people", got[0].Source.Name)
	}
	if got[1].Source.Name != "hansard-archive" {
		t.Errorf("rank 1 = %q, want hansard-archive", got[1].Source.Name)
	}
	if got[2].Source.Name != "members-api" {
		t.Errorf("rank 2 = %q, want members-api", got[2].Source.Name)
	}
	if got[2].Confidence >= got[0].Confidence {
		t.Errorf("unrestricted source confidence %v not discounted below %v",
			got[2].Confidence, got[0].Confidence)
	}
}

func TestRecommend_UnservedIntent(t *testing.T) {
	// No catalog source serves status queries; a recognised intent with no
	// capable source yields an empty recommendation, not an error.
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{Intent: intent.StatusQuery, Confidence: 0.8})
	if len(got) != 0 {
		t.Errorf("Recommend(status_query) = %d recommendations, want 0", len(got))
	}
}

func TestRecommend_CoverageOutranksConfidence(t *testing.T) {
	// Covering sources stay above unrestricted ones even when the analysis
	// confidence is zero and every product collapses to the same value.
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{
		Intent:       intent.HistoricalLookup,
		TemporalHint: hintRange(1992, time.March),
		Confidence:   0,
	})

	if len(got) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(got))
	}
	if got[0].Source.Name != "twfy-people" {
		t.Errorf("rank 0 = %q, want twfy-people", got[0].Source.Name)
	}
	if got[1].Source.Name != "hansard-archive" {
		t.Errorf("rank 1 = %q, want hansard-archive", got[1].Source.Name)
	}
	if got[2].Source.Name != "members-api" {
		t.Errorf("rank 2 = %q, want unrestricted members-api last", got[2].Source.Name)
	}
}

func TestRecommend_ReasonUsesYears(t *testing.T) {
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{
		Intent:       intent.HistoricalLookup,
		TemporalHint: hintRange(1992, time.March),
		Confidence:   0.9,
	})
	if len(got) == 0 {
		t.Fatal("expected recommendations")
	}
	if want := "covers 1992"; !strings.Contains(got[0].Reason, want) {
		t.Errorf("reason = %q, want substring %q", got[0].Reason, want)
	}
}

func TestRecommend_WindowMissExcludes(t *testing.T) {
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{
		Intent:       intent.ElectionResults,
		TemporalHint: hintRange(1950, time.February),
		Confidence:   0.8,
	})
	for _, rec := range got {
		if rec.Source.Name == "members-api-elections" {
			t.Errorf("members-api-elections recommended despite coverage starting 2010")
		}
	}
}

func TestRecommend_NoHintTieBreaksOnReliability(t *testing.T) {
	r := New(registry.Builtin(), 0)
	got := r.Recommend(intent.Analysis{Intent: intent.MemberSearch, Confidence: 0.7})

	if len(got) < 2 {
		t.Fatalf("got %d recommendations, want at least 2", len(got))
	}
	if got[0].Source.Name != "members-api" {
		t.Errorf("rank 0 = %q, want members-api (highest reliability tier)", got[0].Source.Name)
	}
}

func TestRecommend_CapEnforced(t *testing.T) {
	r := New(registry.Builtin(), 1)
	got := r.Recommend(intent.Analysis{
		Intent:       intent.HistoricalLookup,
		TemporalHint: hintRange(1992, time.March),
		Confidence:   0.9,
	})
	if len(got) != 1 {
		t.Errorf("got %d recommendations with cap 1, want 1", len(got))
	}
}

func TestRecommend_ConfidenceScalesWithAnalysis(t *testing.T) {
	r := New(registry.Builtin(), 0)
	high := r.Recommend(intent.Analysis{Intent: intent.DebateSearch, Confidence: 0.9})
	low := r.Recommend(intent.Analysis{Intent: intent.DebateSearch, Confidence: 0.3})

	if len(high) == 0 || len(low) == 0 {
		t.Fatal("expected recommendations for debate_search")
	}
	if low[0].Confidence >= high[0].Confidence {
		t.Errorf("low-confidence analysis produced %v, want below %v",
			low[0].Confidence, high[0].Confidence)
	}
}
