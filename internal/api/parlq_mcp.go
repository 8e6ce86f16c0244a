package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halwell/parlq/internal/params"
	"github.com/halwell/parlq/internal/pipeline"
	"github.com/halwell/parlq/internal/registry"
	"github.com/halwell/parlq/internal/sources"
	"github.com/halwell/parlq/internal/storage"
)

// QueryPipeline is the query orchestrator as seen by the serving layer.
type QueryPipeline interface {
	Run(ctx context.Context, query string, overrides map[string]string) pipeline.Answer
	Resume(ctx context.Context, prev pipeline.Answer, overrides map[string]string) pipeline.Answer
}

// SourceSet dispatches direct source invocations and health probes.
type SourceSet interface {
	Fetch(ctx context.Context, src registry.Descriptor, params map[string]string) (json.RawMessage, error)
	Probe(ctx context.Context, src registry.Descriptor) error
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline QueryPipeline
	Registry *registry.Registry
	Sources  SourceSet
	Store    *storage.Store
}

const probeTimeout = 3 * time.Second

// NewMCPServer creates an MCP server with all parlq tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"parlq",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("parlq — answers questions about UK parliamentary data by federating the Members API, TheyWorkForYou, and the Hansard archive."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_parliament",
			mcp.WithDescription("Answer a natural-language question about UK Parliament by routing it to the most suitable upstream sources. Returns per-source results with provenance, a quality score, and guidance."),
			mcp.WithString("query", mcp.Description("The question, e.g. 'Was Tim Eggar an MP in March 1992?'"), mcp.Required()),
			mcp.WithString("start_date", mcp.Description("Optional explicit start date (YYYY-MM-DD), overrides any date found in the query")),
			mcp.WithString("end_date", mcp.Description("Optional explicit end date (YYYY-MM-DD)")),
		),
		mcpAskParliament(deps),
	)

	s.AddTool(
		mcp.NewTool("search_constituency",
			mcp.WithDescription("Search UK parliamentary constituencies by name."),
			mcp.WithString("search", mcp.Description("Constituency name or fragment, e.g. 'Birmingham'"), mcp.Required()),
			mcp.WithNumber("take", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchConstituency(deps),
	)

	s.AddTool(
		mcp.NewTool("search_member_historical",
			mcp.WithDescription("Look up a member of Parliament in the historical record (1935 onwards)."),
			mcp.WithString("name", mcp.Description("Member name"), mcp.Required()),
			mcp.WithString("date", mcp.Description("Optional date of interest (YYYY-MM-DD)")),
		),
		mcpSearchMemberHistorical(deps),
	)

	s.AddTool(
		mcp.NewTool("search_debates",
			mcp.WithDescription("Search parliamentary debates by topic, falling back to the Hansard archive when needed."),
			mcp.WithString("search", mcp.Description("Debate topic or phrase"), mcp.Required()),
			mcp.WithString("start_date", mcp.Description("Optional start date (YYYY-MM-DD)")),
			mcp.WithString("end_date", mcp.Description("Optional end date (YYYY-MM-DD)")),
		),
		mcpSearchDebates(deps),
	)

	s.AddTool(
		mcp.NewTool("get_source_status",
			mcp.WithDescription("Probe every upstream source and report availability."),
		),
		mcpSourceStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"parlq://sources",
			"Source Catalog",
			mcp.WithResourceDescription("The registered upstream sources with capabilities and coverage"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSources(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"parlq://recent",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 answered queries with quality scores"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAskParliament(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		overrides := map[string]string{}
		explicitDates := false
		if v := req.GetString("start_date", ""); v != "" {
			overrides["startDate"] = v
			explicitDates = true
		}
		if v := req.GetString("end_date", ""); v != "" {
			overrides["endDate"] = v
			explicitDates = true
		}

		answer := deps.Pipeline.Run(ctx, query, overrides)

		// One refinement pass with a broadened window when nothing came
		// back and the caller did not pin the dates themselves.
		if answer.Evaluation.SuggestRefinement && !explicitDates && answer.Analysis.TemporalHint != nil {
			refined := deps.Pipeline.Resume(ctx, answer, broadenWindow(answer))
			if refined.Evaluation.QualityScore > answer.Evaluation.QualityScore {
				answer = refined
			}
		}

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// broadenWindow widens the hinted range by a year on each side.
func broadenWindow(answer pipeline.Answer) map[string]string {
	h := answer.Analysis.TemporalHint
	return map[string]string{
		"startDate": h.From.AddDate(-1, 0, 0).Format("2006-01-02"),
		"endDate":   h.To.AddDate(1, 0, -1).Format("2006-01-02"),
	}
}

func mcpSearchConstituency(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		search, err := req.RequireString("search")
		if err != nil {
			return mcpError("search is required"), nil
		}
		overrides := map[string]string{"searchText": search}
		if take := req.GetInt("take", 0); take > 0 {
			overrides["take"] = strconv.Itoa(take)
		}
		return directFetch(ctx, deps, "members-api-constituencies", overrides), nil
	}
}

func mcpSearchMemberHistorical(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		overrides := map[string]string{"search": name}
		if date := req.GetString("date", ""); date != "" {
			overrides["date"] = date
		}
		return directFetch(ctx, deps, "twfy-people", overrides), nil
	}
}

func mcpSearchDebates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		search, err := req.RequireString("search")
		if err != nil {
			return mcpError("search is required"), nil
		}

		twfyOverrides := map[string]string{"search": search}
		hansardOverrides := map[string]string{"searchTerm": search}
		for key, arg := range map[string]string{"startDate": "start_date", "endDate": "end_date"} {
			if v := req.GetString(arg, ""); v != "" {
				twfyOverrides[key] = v
				hansardOverrides[key] = v
			}
		}

		result := directFetch(ctx, deps, "twfy-debates", twfyOverrides)
		if result.IsError {
			// The archive reaches further back and needs no credential.
			result = directFetch(ctx, deps, "hansard-archive", hansardOverrides)
		}
		return result, nil
	}
}

// directFetch invokes one catalog source with built parameters, outside the
// full pipeline. Used by the capability-specific tools.
func directFetch(ctx context.Context, deps MCPDeps, sourceName string, overrides map[string]string) *mcp.CallToolResult {
	src, ok := deps.Registry.Get(sourceName)
	if !ok {
		return mcpError(fmt.Sprintf("source %q not in catalog", sourceName))
	}

	p := params.BuildDirect(src, overrides)
	payload, err := deps.Sources.Fetch(ctx, src, p)
	switch {
	case errors.Is(err, sources.ErrNoData):
		return mcpText("[]")
	case err != nil:
		return mcpError(fmt.Sprintf("%s: %v", sourceName, err))
	}
	return mcpText(string(payload))
}

type sourceStatus struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

func mcpSourceStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statuses := probeAll(ctx, deps)
		b, err := json.Marshal(statuses)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal statuses: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func probeAll(ctx context.Context, deps MCPDeps) []sourceStatus {
	statuses := make([]sourceStatus, 0, deps.Registry.Len())
	for _, src := range deps.Registry.All() {
		st := sourceStatus{Name: src.Name, Description: src.Description, Status: "ok"}
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		if err := deps.Sources.Probe(pctx, src); err != nil {
			st.Status = "unavailable"
			st.Error = err.Error()
		}
		cancel()
		statuses = append(statuses, st)
	}
	return statuses
}

type catalogEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Coverage     string   `json:"coverage,omitempty"`
	Reliability  int      `json:"reliability_tier"`
	Immutable    bool     `json:"immutable"`
}

func mcpResourceSources(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries := make([]catalogEntry, 0, deps.Registry.Len())
		for _, src := range deps.Registry.All() {
			e := catalogEntry{
				Name:        src.Name,
				Description: src.Description,
				Reliability: src.ReliabilityTier,
				Immutable:   src.Immutable,
			}
			for _, c := range src.Capabilities {
				e.Capabilities = append(e.Capabilities, string(c))
			}
			if src.Coverage != nil {
				e.Coverage = src.Coverage.String()
			}
			entries = append(entries, e)
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.Store.RecentQueries(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent queries: %w", err)
		}

		type querySummary struct {
			ID           string  `json:"id"`
			CreatedAt    string  `json:"created_at"`
			Query        string  `json:"query"`
			Intent       string  `json:"intent"`
			QualityScore float64 `json:"quality_score"`
		}

		summaries := make([]querySummary, len(records))
		for i, r := range records {
			summaries[i] = querySummary{
				ID:           r.ID,
				CreatedAt:    r.CreatedAt.Format(time.RFC3339),
				Query:        r.QueryText,
				Intent:       r.Intent,
				QualityScore: r.QualityScore,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queries: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
