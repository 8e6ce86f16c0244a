package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Intent classifies the purpose of a query.
type Intent string

const (
	ConstituencySearch Intent = "constituency_search"
	MemberSearch       Intent = "member_search"
	HistoricalLookup   Intent = "historical_lookup"
	PolicyResearch     Intent = "policy_research"
	DebateSearch       Intent = "debate_search"
	ElectionResults    Intent = "election_results"
	StatusQuery        Intent = "status_query"
	Unknown            Intent = "unknown"
)

// Known reports whether s is a recognised intent label.
func Known(s string) bool {
	switch Intent(s) {
	case ConstituencySearch, MemberSearch, HistoricalLookup, PolicyResearch,
		DebateSearch, ElectionResults, StatusQuery, Unknown:
		return true
	}
	return false
}

// DateRange is a half-open [From, To) time window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether the range fully covers other.
func (r DateRange) Contains(other DateRange) bool {
	return !r.From.After(other.From) && !r.To.Before(other.To)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

// Analysis is the structured result of analysing a query. It is created once
// per incoming query and never mutated afterwards.
type Analysis struct {
	Intent       Intent     `json:"intent"`
	Entities     []string   `json:"entities,omitempty"` // deduplicated, insertion order preserved
	TemporalHint *DateRange `json:"temporal_hint,omitempty"`
	Confidence   float64    `json:"confidence"` // always within [0, 1]
}

// Analyzer turns raw query text into an Analysis. Implementations never
// return an error: any internal failure degrades to Unknown with zero
// confidence so the pipeline always has some analysis to work with.
type Analyzer interface {
	Analyze(ctx context.Context, query string) Analysis
}

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})(?:-(\d{2}))?\b`)
	monthRe    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	bareYearRe = regexp.MustCompile(`\b(1[6-9]\d{2}|20\d{2})\b`)
)

var monthIndex = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// ParseTemporalHint extracts a date or date range from free text. Recognised
// forms, most specific first: YYYY-MM-DD, YYYY-MM, "March 1992", bare years.
// Returns nil when no usable hint is present.
func ParseTemporalHint(text string) *DateRange {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			if m[3] != "" {
				day, _ := strconv.Atoi(m[3])
				from := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				if from.Day() == day { // reject e.g. Feb 30 rollover
					return &DateRange{From: from, To: from.AddDate(0, 0, 1)}
				}
			}
			from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			return &DateRange{From: from, To: from.AddDate(0, 1, 0)}
		}
	}

	if m := monthRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		from := time.Date(year, monthIndex[strings.ToLower(m[1])], 1, 0, 0, 0, 0, time.UTC)
		return &DateRange{From: from, To: from.AddDate(0, 1, 0)}
	}

	if m := bareYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return &DateRange{From: from, To: from.AddDate(1, 0, 0)}
	}

	return nil
}

// Clamp bounds a confidence value to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// dedupe removes duplicate strings preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
