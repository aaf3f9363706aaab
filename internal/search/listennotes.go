package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var _ Backend = &ListenNotes{}

// ListenNotes queries the Listen Notes podcast API for episodes
type ListenNotes struct {
	token string
	cfg   clientConfig
}

type listenNotesResponse struct {
	Results []struct {
		TitleOriginal       string `json:"title_original"`
		DescriptionOriginal string `json:"description_original"`
		ListennotesURL      string `json:"listennotes_url"`
		PubDateMS           int64  `json:"pub_date_ms"`
		Podcast             struct {
			TitleOriginal string `json:"title_original"`
		} `json:"podcast"`
	} `json:"results"`
}

func NewListenNotes(token string, options ...Option) (*ListenNotes, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &ListenNotes{
		token: token,
		cfg:   newClientConfig("https://listen-api.listennotes.com", options),
	}, nil
}

func (l *ListenNotes) Name() string {
	return "listennotes"
}

func (l *ListenNotes) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "episode")
	params.Set("page_size", strconv.Itoa(clampLimit(limit, 10)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.baseURL+"/api/v2/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-ListenAPI-Key", l.token)

	body, err := l.cfg.get(req, l.Name())
	if err != nil {
		return nil, err
	}

	var data listenNotesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("listennotes: invalid response: %w", err)
	}

	results := make([]Result, 0, len(data.Results))
	for _, r := range data.Results {
		result := Result{
			Title:   r.TitleOriginal,
			URL:     r.ListennotesURL,
			Snippet: r.DescriptionOriginal,
			Source:  r.Podcast.TitleOriginal,
		}
		if r.PubDateMS > 0 {
			result.Published = time.UnixMilli(r.PubDateMS).UTC().Format("2006-01-02")
		}
		results = append(results, result)
	}
	return results, nil
}
