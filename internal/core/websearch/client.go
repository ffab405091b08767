// Package websearch wraps the external search API used to enrich answers
// with fresh results beyond the notebook's own documents.
package websearch

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Studya/internal/core"
)

// Client calls a JSON search API. Endpoint and key come from configuration;
// the expected response shape is {"results": [{title,url,snippet,image_url}]}.
type Client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("web search URL not set")
	}
	return &Client{
		http:    resty.New(),
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

var _ core.WebSearchProvider = (*Client)(nil)

type searchResponse struct {
	Results []core.WebResult `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]core.WebResult, error) {
	if limit <= 0 {
		limit = 5
	}

	var body searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-API-Key", c.apiKey).
		SetQueryParams(map[string]string{
			"q":     query,
			"limit": fmt.Sprintf("%d", limit),
		}).
		SetResult(&body).
		Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("web search: status %d", resp.StatusCode())
	}

	if len(body.Results) > limit {
		body.Results = body.Results[:limit]
	}
	return body.Results, nil
}
