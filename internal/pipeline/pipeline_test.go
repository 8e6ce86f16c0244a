package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halwell/parlq/internal/evaluate"
	"github.com/halwell/parlq/internal/federation"
	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/recommend"
	"github.com/halwell/parlq/internal/registry"
	"github.com/halwell/parlq/internal/sources"
	"github.com/halwell/parlq/internal/storage"
)

// scriptedFetcher returns canned payloads or errors per source name and
// remembers the parameters it was called with.
type scriptedFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	errs     map[string]error
	seen     map[string]map[string]string
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		payloads: map[string]string{},
		errs:     map[string]error{},
		seen:     map[string]map[string]string{},
	}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, src registry.Descriptor, p map[string]string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[src.Name] = p
	if err := f.errs[src.Name]; err != nil {
		return nil, err
	}
	if payload, ok := f.payloads[src.Name]; ok {
		return json.RawMessage(payload), nil
	}
	return nil, sources.ErrNoData
}

func (f *scriptedFetcher) paramsFor(name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[name]
}

func testPipeline(t *testing.T, fetcher federation.Fetcher) (*Pipeline, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.Builtin()
	analyzer := &intent.RuleAnalyzer{Now: func() time.Time {
		return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	}}
	p := New(
		analyzer,
		recommend.New(reg, 0),
		federation.NewExecutor(fetcher, federation.NewStoreCache(store, time.Hour), time.Second),
		evaluate.New(reg),
		store,
		10*time.Second,
	)
	return p, store
}

func TestRun_ConstituencyScenario(t *testing.T) {
	f := newScriptedFetcher()
	f.payloads["members-api-constituencies"] = `{"items":[{"value":{"name":"Birmingham, Edgbaston"}}],"totalResults":1}`

	p, store := testPipeline(t, f)
	got := p.Run(context.Background(), "Find Birmingham constituencies", nil)

	if got.State != StateDone {
		t.Errorf("State = %s, want done", got.State)
	}
	if len(got.Recommendations) == 0 {
		t.Fatal("no recommendations for constituency search")
	}
	if got.Recommendations[0].Source.Name != "members-api-constituencies" {
		t.Errorf("top source = %q", got.Recommendations[0].Source.Name)
	}
	if len(got.Results) != len(got.Recommendations) {
		t.Errorf("results %d != recommendations %d", len(got.Results), len(got.Recommendations))
	}
	if f.paramsFor("members-api-constituencies")["searchText"] != "Birmingham" {
		t.Errorf("searchText = %q, want Birmingham", f.paramsFor("members-api-constituencies")["searchText"])
	}
	if got.Evaluation.QualityScore <= 0 {
		t.Errorf("QualityScore = %v, want > 0", got.Evaluation.QualityScore)
	}

	// The run was recorded in the query log.
	rec, err := store.GetQuery(got.QueryID)
	if err != nil {
		t.Fatalf("GetQuery(%s): %v", got.QueryID, err)
	}
	if rec.Intent != string(intent.ConstituencySearch) || rec.State != string(StateDone) {
		t.Errorf("record = %+v", rec)
	}
}

func TestRun_EmptyQuery(t *testing.T) {
	p, _ := testPipeline(t, newScriptedFetcher())
	got := p.Run(context.Background(), "   ", nil)

	if got.Analysis.Intent != intent.Unknown || got.Analysis.Confidence != 0 {
		t.Errorf("Analysis = %+v", got.Analysis)
	}
	if len(got.Recommendations) != 0 || len(got.Results) != 0 {
		t.Errorf("recs %d, results %d; want both 0", len(got.Recommendations), len(got.Results))
	}
	if got.Evaluation.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.Evaluation.QualityScore)
	}
	if !strings.Contains(got.Evaluation.Guidance, "intent not recognized") {
		t.Errorf("Guidance = %q", got.Evaluation.Guidance)
	}
	if got.State != StateDone {
		t.Errorf("State = %s, want done", got.State)
	}
}

func TestRun_HistoricalRateLimited(t *testing.T) {
	f := newScriptedFetcher()
	f.errs["twfy-people"] = &sources.RateLimitError{Source: "theyworkforyou", Status: 429}
	// hansard-archive and members-api default to no_data

	p, _ := testPipeline(t, f)
	got := p.Run(context.Background(), "Was Tim Eggar an MP in March 1992?", nil)

	if got.Analysis.Intent != intent.HistoricalLookup {
		t.Fatalf("Intent = %q", got.Analysis.Intent)
	}
	if got.Recommendations[0].Source.Name != "twfy-people" {
		t.Errorf("top source = %q, want twfy-people", got.Recommendations[0].Source.Name)
	}
	if got.Results[0].Status != federation.StatusRateLimited {
		t.Errorf("top result status = %s", got.Results[0].Status)
	}
	if got.Evaluation.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0", got.Evaluation.QualityScore)
	}
	if !strings.Contains(got.Evaluation.Guidance, "twfy-people: rate limited") {
		t.Errorf("Guidance = %q", got.Evaluation.Guidance)
	}
	if !got.Evaluation.SuggestRefinement {
		t.Error("SuggestRefinement = false")
	}
}

func TestRun_ResultsPreserveRecommendationOrder(t *testing.T) {
	f := newScriptedFetcher()
	f.payloads["twfy-people"] = `[{"full_name":"Tim Eggar"}]`
	f.payloads["hansard-archive"] = `{"results":[{"title":"Coal"}],"count":1}`
	f.payloads["members-api"] = `{"items":[{}],"totalResults":1}`

	p, _ := testPipeline(t, f)
	got := p.Run(context.Background(), "Was Tim Eggar an MP in March 1992?", nil)

	if len(got.Results) != len(got.Recommendations) {
		t.Fatalf("results %d != recommendations %d", len(got.Results), len(got.Recommendations))
	}
	for i := range got.Results {
		if got.Results[i].SourceName != got.Recommendations[i].Source.Name {
			t.Errorf("result[%d] = %q, recommendation = %q",
				i, got.Results[i].SourceName, got.Recommendations[i].Source.Name)
		}
	}
}

func TestResume_AppliesOverrides(t *testing.T) {
	f := newScriptedFetcher()
	p, _ := testPipeline(t, f)

	first := p.Run(context.Background(), "Was Tim Eggar an MP in March 1992?", nil)

	f.payloads["twfy-people"] = `[{"full_name":"Tim Eggar"}]`
	second := p.Resume(context.Background(), first, map[string]string{
		"startDate": "1990-01-01",
		"endDate":   "1995-12-31",
	})

	if second.QueryID == first.QueryID {
		t.Error("Resume reused the query ID")
	}
	seen := f.paramsFor("twfy-people")
	if seen["startDate"] != "1990-01-01" || seen["endDate"] != "1995-12-31" {
		t.Errorf("override params = %v", seen)
	}
	if second.Evaluation.QualityScore <= 0 {
		t.Errorf("refined QualityScore = %v, want > 0", second.Evaluation.QualityScore)
	}
	if len(second.Results) != len(second.Recommendations) {
		t.Errorf("results %d != recommendations %d", len(second.Results), len(second.Recommendations))
	}
}
