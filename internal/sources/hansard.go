package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const defaultHansardBaseURL = "https://hansard.parliament.uk"

// HansardClient searches the Hansard archive. The archive has no stable JSON
// API for deep history, so the client scrapes the search results page and
// normalizes the debate links it finds into a JSON payload.
type HansardClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHansardClient creates a client for the given base URL, or the public
// archive when empty.
func NewHansardClient(baseURL string) *HansardClient {
	if baseURL == "" {
		baseURL = defaultHansardBaseURL
	}
	return &HansardClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(1), 2),
	}
}

// hansardHit is one normalized search result.
type hansardHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (c *HansardClient) Fetch(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	max := 20
	if n, err := strconv.Atoi(params["take"]); err == nil && n > 0 {
		max = n
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting hansard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: "hansard", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hansard status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing hansard page: %w", err)
	}

	hits := extractDebateLinks(doc, c.baseURL, max)
	if len(hits) == 0 {
		return nil, ErrNoData
	}

	payload, err := json.Marshal(struct {
		Results []hansardHit `json:"results"`
		Count   int          `json:"count"`
	}{Results: hits, Count: len(hits)})
	if err != nil {
		return nil, fmt.Errorf("encoding hansard results: %w", err)
	}
	return payload, nil
}

// extractDebateLinks walks the parsed page collecting anchors that point at
// debate records, deduplicated by href, up to max entries.
func extractDebateLinks(doc *html.Node, baseURL string, max int) []hansardHit {
	var hits []hansardHit
	seen := map[string]struct{}{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(hits) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if strings.Contains(href, "/debates/") || strings.Contains(href, "/division/") {
				title := strings.Join(strings.Fields(textContent(n)), " ")
				if title != "" {
					if _, dup := seen[href]; !dup {
						seen[href] = struct{}{}
						if strings.HasPrefix(href, "/") {
							href = baseURL + href
						}
						hits = append(hits, hansardHit{Title: title, URL: href})
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return hits
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(textContent(child))
	}
	return b.String()
}

// Probe issues a cheap request for the archive landing page.
func (c *HansardClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("hansard status %d", resp.StatusCode)
	}
	return nil
}
