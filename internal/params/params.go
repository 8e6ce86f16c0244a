// Package params maps query analyses onto concrete call parameters for each
// recommended source. Building is pure and total: anything unresolvable
// falls back to the source's defaults.
package params

import (
	"sort"
	"strconv"
	"strings"

	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/registry"
)

const dateLayout = "2006-01-02"

// countParams are the parameter names treated as result-count limits and
// clamped to the source's MaxResults.
var countParams = []string{"take", "count", "num", "limit"}

// Build produces the parameter map for one source invocation. Overrides come
// from a caller re-entering the pipeline with adjusted parameters; they win
// over both defaults and derived values, but counts are still clamped.
func Build(src registry.Descriptor, analysis intent.Analysis, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(src.Invocation.Defaults)+4)
	for k, v := range src.Invocation.Defaults {
		out[k] = v
	}

	if term := firstEntity(analysis); term != "" {
		out[searchParam(src)] = term
	}

	if h := analysis.TemporalHint; h != nil {
		out["startDate"] = h.From.Format(dateLayout)
		// The hint range is half-open; sources take inclusive end dates.
		out["endDate"] = h.To.AddDate(0, 0, -1).Format(dateLayout)
	}

	for k, v := range overrides {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}

	clampCounts(out, src.Invocation.MaxResults)
	return out
}

// BuildDirect builds parameters for a direct source invocation that has no
// query analysis behind it, just explicit values on top of the defaults.
func BuildDirect(src registry.Descriptor, overrides map[string]string) map[string]string {
	return Build(src, intent.Analysis{}, overrides)
}

// firstEntity returns the first extracted entity, the natural search term.
func firstEntity(analysis intent.Analysis) string {
	if len(analysis.Entities) == 0 {
		return ""
	}
	return analysis.Entities[0]
}

// searchParam names the free-text search parameter for the source's API
// family.
func searchParam(src registry.Descriptor) string {
	switch src.Invocation.Kind {
	case "members":
		if src.Invocation.Endpoint == "/Members/Search" {
			return "Name"
		}
		return "searchText"
	case "twfy":
		return "search"
	default:
		return "searchTerm"
	}
}

func clampCounts(p map[string]string, max int) {
	if max <= 0 {
		return
	}
	for _, key := range countParams {
		v, ok := p[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n > max {
			p[key] = strconv.Itoa(max)
		} else if n < 1 {
			p[key] = "1"
		}
	}
}

// CanonicalKey folds a source name and its parameters into a stable cache
// key: parameters sorted by name so equivalent maps produce equal keys.
func CanonicalKey(sourceName string, p map[string]string) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(sourceName)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}
