package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

const defaultTWFYBaseURL = "https://www.theyworkforyou.com/api"

// TWFYClient talks to the TheyWorkForYou API. The service requires an API
// key; without one the client reports ErrNotConfigured so the federation
// layer records the source as degraded instead of failing the pipeline.
type TWFYClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewTWFYClient creates a client for the given base URL (the public API when
// empty) and key.
func NewTWFYClient(baseURL, apiKey string) *TWFYClient {
	if baseURL == "" {
		baseURL = defaultTWFYBaseURL
	}
	return &TWFYClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(2), 2),
	}
}

// callbackRe matches the optional JS callback wrapper the "js" output format
// can add around the JSON body.
var callbackRe = regexp.MustCompile(`^\s*[\w.$]+\(([\s\S]*)\)\s*;?\s*$`)

// twfyError is the error envelope the API returns with HTTP 200.
type twfyError struct {
	Error string `json:"error"`
}

func (c *TWFYClient) Fetch(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("theyworkforyou: %w", ErrNotConfigured)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("output", "js")
	for k, v := range params {
		if k == "key" {
			continue
		}
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting theyworkforyou: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: "theyworkforyou", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("theyworkforyou status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading theyworkforyou response: %w", err)
	}
	return normalizeTWFY(body)
}

// normalizeTWFY strips any JS callback wrapper, surfaces API-level errors,
// and maps empty result shapes to ErrNoData.
func normalizeTWFY(body []byte) (json.RawMessage, error) {
	if m := callbackRe.FindSubmatch(body); m != nil && json.Valid(m[1]) {
		body = m[1]
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("theyworkforyou returned invalid JSON")
	}

	var apiErr twfyError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("theyworkforyou error: %s", apiErr.Error)
	}

	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.Equal(trimmed, []byte("[]")), bytes.Equal(trimmed, []byte("null")):
		return nil, ErrNoData
	case bytes.HasPrefix(trimmed, []byte("{")):
		var env struct {
			Rows []json.RawMessage `json:"rows"`
		}
		// getDebates-style envelopes carry results in "rows"; an envelope
		// without rows at all is passed through as-is.
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Rows != nil && len(env.Rows) == 0 {
			return nil, ErrNoData
		}
	}
	return json.RawMessage(trimmed), nil
}

// Probe reports whether the client has a key; the API has no unauthenticated
// health endpoint worth hitting.
func (c *TWFYClient) Probe(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("theyworkforyou: %w", ErrNotConfigured)
	}
	return nil
}
