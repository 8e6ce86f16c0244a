package intent

import (
	"context"
	"reflect"
	"testing"
	"time"
)

// fixedClock pins the rule analyzer's reference time so past/future
// decisions are stable.
func fixedClock() time.Time {
	return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
}

func ruleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{Now: fixedClock}
}

func TestAnalyze_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		got := ruleAnalyzer().Analyze(context.Background(), q)
		if got.Intent != Unknown {
			t.Errorf("Analyze(%q).Intent = %q, want unknown", q, got.Intent)
		}
		if got.Confidence != 0 {
			t.Errorf("Analyze(%q).Confidence = %v, want 0", q, got.Confidence)
		}
		if len(got.Entities) != 0 {
			t.Errorf("Analyze(%q).Entities = %v, want empty", q, got.Entities)
		}
	}
}

func TestAnalyze_HistoricalMemberQuery(t *testing.T) {
	got := ruleAnalyzer().Analyze(context.Background(), "Was Tim Eggar an MP in March 1992?")

	if got.Intent != HistoricalLookup {
		t.Errorf("Intent = %q, want historical_lookup", got.Intent)
	}
	if !reflect.DeepEqual(got.Entities, []string{"Tim Eggar"}) {
		t.Errorf("Entities = %v, want [Tim Eggar]", got.Entities)
	}
	if got.TemporalHint == nil {
		t.Fatal("TemporalHint = nil, want March 1992")
	}
	wantFrom := time.Date(1992, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.TemporalHint.From.Equal(wantFrom) {
		t.Errorf("TemporalHint.From = %v, want %v", got.TemporalHint.From, wantFrom)
	}
	if !got.TemporalHint.To.Equal(wantFrom.AddDate(0, 1, 0)) {
		t.Errorf("TemporalHint.To = %v, want %v", got.TemporalHint.To, wantFrom.AddDate(0, 1, 0))
	}
}

func TestAnalyze_ConstituencyQuery(t *testing.T) {
	got := ruleAnalyzer().Analyze(context.Background(), "Find Birmingham constituencies")

	if got.Intent != ConstituencySearch {
		t.Errorf("Intent = %q, want constituency_search", got.Intent)
	}
	if !reflect.DeepEqual(got.Entities, []string{"Birmingham"}) {
		t.Errorf("Entities = %v, want [Birmingham]", got.Entities)
	}
	if got.TemporalHint != nil {
		t.Errorf("TemporalHint = %v, want nil", got.TemporalHint)
	}
	if got.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", got.Confidence)
	}
}

func TestAnalyze_CurrentMemberQuery(t *testing.T) {
	got := ruleAnalyzer().Analyze(context.Background(), "Who is the MP for Hackney North?")

	if got.Intent != MemberSearch {
		t.Errorf("Intent = %q, want member_search", got.Intent)
	}
}

func TestAnalyze_IntentTable(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"Search debates about climate change in 2019", DebateSearch},
		{"What were the election results in Hartlepool?", ElectionResults},
		{"Written question on housing policy", PolicyResearch},
		{"Is the members API available?", StatusQuery},
		{"blorp snarf wibble", Unknown},
	}

	for _, tt := range tests {
		got := ruleAnalyzer().Analyze(context.Background(), tt.query)
		if got.Intent != tt.want {
			t.Errorf("Analyze(%q).Intent = %q, want %q", tt.query, got.Intent, tt.want)
		}
	}
}

func TestAnalyze_ConfidenceInRange(t *testing.T) {
	queries := []string{
		"", "Was Tim Eggar an MP in March 1992?", "Find Birmingham constituencies",
		"debates", "???", "a b c d e f",
	}
	for _, q := range queries {
		got := ruleAnalyzer().Analyze(context.Background(), q)
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("Analyze(%q).Confidence = %v, out of [0,1]", q, got.Confidence)
		}
	}
}

func TestExtractEntities_QuotedAndDeduplicated(t *testing.T) {
	got := extractEntities(`Find "net zero" debates mentioning Boris Johnson and Boris Johnson`)
	want := []string{"net zero", "Boris Johnson"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extractEntities = %v, want %v", got, want)
	}
}

func TestParseTemporalHint(t *testing.T) {
	tests := []struct {
		text     string
		wantFrom string
		wantTo   string
	}{
		{"on 1992-03-14 exactly", "1992-03-14", "1992-03-15"},
		{"during 1992-03", "1992-03-01", "1992-04-01"},
		{"in March 1992", "1992-03-01", "1992-04-01"},
		{"back in 1992", "1992-01-01", "1993-01-01"},
	}

	for _, tt := range tests {
		got := ParseTemporalHint(tt.text)
		if got == nil {
			t.Errorf("ParseTemporalHint(%q) = nil", tt.text)
			continue
		}
		if got.From.Format("2006-01-02") != tt.wantFrom || got.To.Format("2006-01-02") != tt.wantTo {
			t.Errorf("ParseTemporalHint(%q) = %v, want [%s, %s)", tt.text, got, tt.wantFrom, tt.wantTo)
		}
	}

	if got := ParseTemporalHint("no dates here"); got != nil {
		t.Errorf("ParseTemporalHint(no dates) = %v, want nil", got)
	}
}
