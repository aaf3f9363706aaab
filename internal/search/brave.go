package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

var _ Backend = &Brave{}

// Brave queries the Brave Search web API
type Brave struct {
	token string
	cfg   clientConfig
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}

func NewBrave(token string, options ...Option) (*Brave, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &Brave{
		token: token,
		cfg:   newClientConfig("https://api.search.brave.com", options),
	}, nil
}

func (b *Brave) Name() string {
	return "brave"
}

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(clampLimit(limit, 20)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.baseURL+"/res/v1/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", b.token)

	body, err := b.cfg.get(req, b.Name())
	if err != nil {
		return nil, err
	}

	var data braveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("brave: invalid response: %w", err)
	}

	results := make([]Result, 0, len(data.Web.Results))
	for _, r := range data.Web.Results {
		results = append(results, Result{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Description,
			Source:    b.Name(),
			Published: r.Age,
		})
	}
	return results, nil
}
