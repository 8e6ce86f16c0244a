package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const defaultMembersBaseURL = "https://members-api.parliament.uk/api"

// MembersClient talks to the UK Parliament Members API. Responses arrive as
// {"items": [...], "totalResults": n}; an empty item list maps to ErrNoData.
type MembersClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMembersClient creates a client for the given base URL, or the public
// API when empty. Requests are politely throttled to a few per second.
func NewMembersClient(baseURL string) *MembersClient {
	if baseURL == "" {
		baseURL = defaultMembersBaseURL
	}
	return &MembersClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

type membersEnvelope struct {
	Items        []json.RawMessage `json:"items"`
	TotalResults int               `json:"totalResults"`
}

func (c *MembersClient) Fetch(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	body, err := c.get(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}

	var env membersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding members response: %w", err)
	}
	if len(env.Items) == 0 {
		return nil, ErrNoData
	}
	return body, nil
}

// Probe hits the constituency search with a trivial query to confirm the
// API answers.
func (c *MembersClient) Probe(ctx context.Context) error {
	q := url.Values{}
	q.Set("searchText", "london")
	q.Set("take", "1")
	_, err := c.get(ctx, "/Location/Constituency/Search", q)
	return err
}

func (c *MembersClient) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting members api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: "members-api", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("members api status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
