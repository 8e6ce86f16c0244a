package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/halwell/parlq/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// NewHTTPHandler returns the REST surface mirroring the MCP tools. An empty
// token disables authentication (local use).
func NewHTTPHandler(deps MCPDeps, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(bearerAuth(token))
		}
		r.Post("/ask", handleAsk(deps))
		r.Get("/sources", handleSources(deps))
		r.Get("/sources/status", handleSourceStatus(deps))
		r.Get("/queries", handleQueries(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type askRequest struct {
	Query     string `json:"query"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func handleAsk(deps MCPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		overrides := map[string]string{}
		if req.StartDate != "" {
			overrides["startDate"] = req.StartDate
		}
		if req.EndDate != "" {
			overrides["endDate"] = req.EndDate
		}

		answer := deps.Pipeline.Run(r.Context(), req.Query, overrides)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answer)
	}
}

func handleSources(deps MCPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func handleSourceStatus(deps MCPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(probeAll(r.Context(), deps))
	}
}

func handleQueries(deps MCPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and 100")
				return
			}
			limit = n
		}

		records, err := deps.Store.RecentQueries(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing queries: %v", err)
			return
		}
		if records == nil {
			records = []storage.QueryRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
