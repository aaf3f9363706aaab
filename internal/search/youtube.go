package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

var _ Backend = &YouTube{}

// YouTube queries the YouTube Data API v3 for videos
type YouTube struct {
	token string
	cfg   clientConfig
}

type youtubeResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

func NewYouTube(token string, options ...Option) (*YouTube, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &YouTube{
		token: token,
		cfg:   newClientConfig("https://www.googleapis.com", options),
	}, nil
}

func (y *YouTube) Name() string {
	return "youtube"
}

func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(clampLimit(limit, 25)))
	params.Set("key", y.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.cfg.baseURL+"/youtube/v3/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	body, err := y.cfg.get(req, y.Name())
	if err != nil {
		return nil, err
	}

	var data youtubeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("youtube: invalid response: %w", err)
	}

	results := make([]Result, 0, len(data.Items))
	for _, item := range data.Items {
		if item.ID.VideoID == "" {
			continue
		}
		results = append(results, Result{
			Title:     item.Snippet.Title,
			URL:       "https://www.youtube.com/watch?v=" + item.ID.VideoID,
			Snippet:   item.Snippet.Description,
			Source:    item.Snippet.ChannelTitle,
			Published: item.Snippet.PublishedAt,
		})
	}
	return results, nil
}
