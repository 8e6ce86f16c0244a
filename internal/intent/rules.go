package intent

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// RuleAnalyzer is a deterministic keyword-and-pattern analyzer. It serves as
// the test implementation and as the fallback when no reasoning service is
// configured.
type RuleAnalyzer struct {
	// Now returns the reference time used to decide whether a temporal hint
	// lies in the past. Defaults to time.Now; fixed in tests.
	Now func() time.Time
}

// NewRuleAnalyzer creates a RuleAnalyzer with the real clock.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{Now: time.Now}
}

// intentKeywords maps lowercased keywords to the intent they signal.
// Ordering matters for overlapping vocabularies: the scoring loop counts
// hits per intent and the highest count wins.
var intentKeywords = map[Intent][]string{
	ConstituencySearch: {"constituency", "constituencies", "seat", "boundary"},
	DebateSearch:       {"debate", "debates", "hansard", "speech", "speeches", "said", "contribution"},
	ElectionResults:    {"election", "elections", "electoral", "majority", "turnout", "result", "results"},
	PolicyResearch:     {"policy", "policies", "bill", "bills", "legislation", "written question", "amendment"},
	StatusQuery:        {"status", "available", "availability", "api", "health"},
	MemberSearch:       {"mp", "mps", "member", "members", "lord", "lords", "minister", "who is", "who was"},
}

// queryStopwords are capitalized tokens that never count as entities.
var queryStopwords = map[string]struct{}{
	"Was": {}, "Were": {}, "Is": {}, "Are": {}, "Did": {}, "Do": {}, "Does": {},
	"Find": {}, "Search": {}, "Show": {}, "List": {}, "Get": {}, "Give": {},
	"Who": {}, "What": {}, "When": {}, "Where": {}, "Which": {}, "How": {},
	"The": {}, "A": {}, "An": {}, "In": {}, "On": {}, "At": {}, "Of": {}, "For": {},
	"MP": {}, "MPs": {}, "Lord": {}, "Lords": {}, "Commons": {}, "House": {},
	"Parliament": {}, "Parliamentary": {}, "Hansard": {},
	"January": {}, "February": {}, "March": {}, "April": {}, "May": {}, "June": {},
	"July": {}, "August": {}, "September": {}, "October": {}, "November": {}, "December": {},
}

// Analyze classifies the query by keyword scoring, extracts capitalized and
// quoted entities, and parses any temporal hint. Empty or whitespace-only
// input yields Unknown with zero confidence.
func (a *RuleAnalyzer) Analyze(_ context.Context, query string) Analysis {
	query = strings.TrimSpace(query)
	if query == "" {
		return Analysis{Intent: Unknown, Entities: []string{}, Confidence: 0}
	}

	hint := ParseTemporalHint(query)
	label, hits := a.classify(query, hint)

	confidence := 0.0
	switch {
	case label == Unknown:
		confidence = 0
	case hits >= 2:
		confidence = 0.9
	default:
		confidence = 0.7
	}

	return Analysis{
		Intent:       label,
		Entities:     extractEntities(query),
		TemporalHint: hint,
		Confidence:   Clamp(confidence),
	}
}

func (a *RuleAnalyzer) classify(query string, hint *DateRange) (Intent, int) {
	lower := strings.ToLower(query)
	wordSet := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		wordSet[w] = struct{}{}
	}

	best := Unknown
	bestHits := 0
	// Iterate in fixed order so overlapping scores resolve deterministically.
	for _, label := range []Intent{ConstituencySearch, DebateSearch, ElectionResults, PolicyResearch, StatusQuery, MemberSearch} {
		hits := 0
		for _, kw := range intentKeywords[label] {
			if strings.ContainsRune(kw, ' ') {
				// Multi-word keywords match as substrings.
				if strings.Contains(lower, kw) {
					hits++
				}
			} else if _, ok := wordSet[kw]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best = label
			bestHits = hits
		}
	}

	// Member lookups anchored to a past date are historical lookups: a
	// different set of sources can answer them.
	if best == MemberSearch && hint != nil {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		if hint.To.Before(now()) {
			return HistoricalLookup, bestHits
		}
	}

	return best, bestHits
}

// extractEntities pulls quoted phrases and runs of capitalized words out of
// the query, deduplicated in order of first appearance.
func extractEntities(query string) []string {
	var entities []string

	// Quoted phrases are taken verbatim.
	rest := query
	for {
		start := strings.IndexByte(rest, '"')
		if start == -1 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end == -1 {
			break
		}
		if phrase := strings.TrimSpace(rest[start+1 : start+1+end]); phrase != "" {
			entities = append(entities, phrase)
		}
		rest = rest[start+1+end+1:]
	}

	// Runs of capitalized words ("Tim Eggar", "Birmingham Edgbaston").
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	var run []string
	flush := func() {
		if len(run) > 0 {
			entities = append(entities, strings.Join(run, " "))
			run = nil
		}
	}
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) {
			if _, stop := queryStopwords[w]; !stop {
				run = append(run, w)
				continue
			}
		}
		flush()
	}
	flush()

	return dedupe(entities)
}
