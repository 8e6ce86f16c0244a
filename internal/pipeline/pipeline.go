// Package pipeline orchestrates one query's path from raw text to an
// evaluated, provenance-tagged answer: analyze, recommend, build parameters,
// federate, evaluate. The pipeline never returns an error for "no data
// found" — a failed query is a well-formed answer with a zero quality score
// and explanatory guidance.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halwell/parlq/internal/evaluate"
	"github.com/halwell/parlq/internal/federation"
	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/params"
	"github.com/halwell/parlq/internal/recommend"
	"github.com/halwell/parlq/internal/storage"
)

// State is the per-query lifecycle position. The machine is acyclic:
// received → analyzed → recommended → executing → evaluated → done, with
// executing skipped when nothing was recommended. Refinement is a caller
// re-entry at recommended, not an internal loop.
type State string

const (
	StateReceived    State = "received"
	StateAnalyzed    State = "analyzed"
	StateRecommended State = "recommended"
	StateExecuting   State = "executing"
	StateEvaluated   State = "evaluated"
	StateDone        State = "done"
)

// Answer is the final structured result of one pipeline execution.
type Answer struct {
	QueryID         string                     `json:"query_id"`
	Query           string                     `json:"query"`
	Analysis        intent.Analysis            `json:"analysis"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Results         []federation.Result        `json:"results"`
	Evaluation      evaluate.Evaluation        `json:"evaluation"`
	State           State                      `json:"state"`
	ElapsedMs       int64                      `json:"elapsed_ms"`
}

const defaultPipelineTimeout = 30 * time.Second

// Pipeline wires the stages together. One Run per incoming query; the
// pipeline itself is stateless and safe for concurrent use.
type Pipeline struct {
	analyzer    intent.Analyzer
	recommender *recommend.Recommender
	executor    *federation.Executor
	evaluator   *evaluate.Evaluator
	store       *storage.Store // optional query log; nil disables persistence
	timeout     time.Duration
}

// New creates a Pipeline. A non-positive timeout selects the default
// whole-pipeline budget.
func New(
	analyzer intent.Analyzer,
	recommender *recommend.Recommender,
	executor *federation.Executor,
	evaluator *evaluate.Evaluator,
	store *storage.Store,
	timeout time.Duration,
) *Pipeline {
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	return &Pipeline{
		analyzer:    analyzer,
		recommender: recommender,
		executor:    executor,
		evaluator:   evaluator,
		store:       store,
		timeout:     timeout,
	}
}

// Run executes the full pipeline for one query. Overrides carry explicit
// caller-supplied parameters (date context, result counts) applied on top of
// what the analysis derives; nil means none.
func (p *Pipeline) Run(ctx context.Context, query string, overrides map[string]string) Answer {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	answer := Answer{QueryID: uuid.NewString(), Query: query, State: StateReceived}

	answer.Analysis = p.analyzer.Analyze(ctx, query)
	answer.State = StateAnalyzed
	slog.Debug("query analyzed",
		"query_id", answer.QueryID,
		"intent", answer.Analysis.Intent,
		"entities", len(answer.Analysis.Entities),
		"confidence", answer.Analysis.Confidence,
	)

	answer.Recommendations = p.recommender.Recommend(answer.Analysis)
	for i := range answer.Recommendations {
		rec := &answer.Recommendations[i]
		rec.Params = params.Build(rec.Source, answer.Analysis, overrides)
	}
	answer.State = StateRecommended

	p.execute(ctx, &answer)
	p.finish(&answer, start)
	return answer
}

// Resume re-enters the pipeline at the recommended state using a previous
// answer's analysis and recommendations, with caller-adjusted parameter
// overrides applied on top. It is how refinement happens: a repetition
// driven from outside, keeping the state machine itself acyclic.
func (p *Pipeline) Resume(ctx context.Context, prev Answer, overrides map[string]string) Answer {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	answer := Answer{
		QueryID:  uuid.NewString(),
		Query:    prev.Query,
		Analysis: prev.Analysis,
		State:    StateRecommended,
	}

	answer.Recommendations = make([]recommend.Recommendation, len(prev.Recommendations))
	copy(answer.Recommendations, prev.Recommendations)
	for i := range answer.Recommendations {
		rec := &answer.Recommendations[i]
		rec.Params = params.Build(rec.Source, answer.Analysis, overrides)
	}

	p.execute(ctx, &answer)
	p.finish(&answer, start)
	return answer
}

func (p *Pipeline) execute(ctx context.Context, answer *Answer) {
	if len(answer.Recommendations) > 0 {
		answer.State = StateExecuting
		answer.Results = p.executor.Execute(ctx, answer.Recommendations)
	} else {
		// Nothing to execute; the empty result set goes straight to the
		// evaluator, which explains why no tool was found.
		answer.Results = []federation.Result{}
	}

	answer.Evaluation = p.evaluator.Evaluate(answer.Results, answer.Analysis)
	answer.State = StateEvaluated
}

func (p *Pipeline) finish(answer *Answer, start time.Time) {
	answer.State = StateDone
	answer.ElapsedMs = time.Since(start).Milliseconds()

	slog.Info("query pipeline complete",
		"query_id", answer.QueryID,
		"intent", answer.Analysis.Intent,
		"sources", len(answer.Results),
		"quality", answer.Evaluation.QualityScore,
		"elapsed_ms", answer.ElapsedMs,
	)

	if p.store == nil {
		return
	}
	resultsJSON, err := json.Marshal(answer.Results)
	if err != nil {
		slog.Warn("encoding results for query log", "error", err)
		resultsJSON = []byte("[]")
	}
	record := storage.QueryRecord{
		ID:           answer.QueryID,
		CreatedAt:    start,
		QueryText:    answer.Query,
		Intent:       string(answer.Analysis.Intent),
		Confidence:   answer.Analysis.Confidence,
		QualityScore: answer.Evaluation.QualityScore,
		Guidance:     answer.Evaluation.Guidance,
		State:        string(answer.State),
		ResultsJSON:  string(resultsJSON),
	}
	if err := p.store.SaveQuery(record); err != nil {
		slog.Warn("recording query", "query_id", answer.QueryID, "error", err)
	}
}
