package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/halwell/parlq/internal/ollama"
)

const defaultExtractionTimeout = 3 * time.Second

// Chatter is the interface for chat completion via the reasoning service.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// LLMAnalyzer uses a fast local LLM to classify queries. On any failure
// (timeout, quota, malformed JSON) it degrades to Unknown with zero
// confidence — analysis never fails.
type LLMAnalyzer struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewLLMAnalyzer creates an LLMAnalyzer using the given client and model name.
// A non-positive timeout selects the default.
func NewLLMAnalyzer(client Chatter, model string, timeout time.Duration) *LLMAnalyzer {
	if timeout <= 0 {
		timeout = defaultExtractionTimeout
	}
	return &LLMAnalyzer{client: client, model: model, timeout: timeout}
}

// rawAnalysis mirrors the JSON shape the model is asked to produce.
type rawAnalysis struct {
	Intent       string   `json:"intent"`
	Entities     []string `json:"entities"`
	TemporalHint string   `json:"temporal_hint"`
	Confidence   float64  `json:"confidence"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, query string) Analysis {
	degraded := Analysis{Intent: Unknown, Entities: []string{}, Confidence: 0}

	if isBlank(query) {
		return degraded
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.client.Chat(ctx, a.model, buildAnalysisPrompt(query), analysisSchema())
	if err != nil {
		slog.Warn("query analysis chat failed", "error", err)
		return degraded
	}

	var result rawAnalysis
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal analysis from LLM response", "error", err, "response", raw)
		return degraded
	}

	label := Intent(result.Intent)
	if !Known(result.Intent) {
		label = Unknown
	}

	// Temporal hints from the model come back as free text; reuse the
	// deterministic parser so both analyzers agree on the range shape.
	var hint *DateRange
	if result.TemporalHint != "" {
		hint = ParseTemporalHint(result.TemporalHint)
	}
	if hint == nil {
		hint = ParseTemporalHint(query)
	}

	entities := result.Entities
	if entities == nil {
		entities = []string{}
	}

	return Analysis{
		Intent:       label,
		Entities:     dedupe(entities),
		TemporalHint: hint,
		Confidence:   Clamp(result.Confidence),
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func buildAnalysisPrompt(query string) []ollama.Message {
	system := `You classify questions about the UK Parliament for a research system.
Classify the intent as exactly one of: constituency_search, member_search,
historical_lookup, policy_research, debate_search, election_results,
status_query, unknown. Use historical_lookup when the question asks about a
member at a past date. Extract entities: names of people, places,
constituencies, parties, and topics. Report any date or period mentioned in
temporal_hint using YYYY-MM-DD, YYYY-MM, or YYYY. Set confidence between 0.0
and 1.0 for how certain the classification is.`

	return []ollama.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}
}

// analysisSchema returns the JSON schema for structured analysis output.
func analysisSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"intent":        {Type: "string", Description: "One of the fixed intent labels"},
			"entities":      {Type: "array", Description: "Named entities mentioned in the query"},
			"temporal_hint": {Type: "string", Description: "Date or period mentioned, empty if none"},
			"confidence":    {Type: "number", Description: "Classification confidence 0.0-1.0"},
		},
		Required: []string{"intent", "entities", "temporal_hint", "confidence"},
	}
}
