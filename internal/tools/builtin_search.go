package tools

import (
	"context"
	"fmt"

	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/search"
)

// SearchBackends are the optional sources behind the search tools.
// A nil backend leaves its tool unregistered.
type SearchBackends struct {
	Web        search.Backend
	Video      search.Backend
	Podcast    search.Backend
	Reader     *search.Reader
	MaxResults int
}

// SearchTools returns the search tools for the configured backends
func SearchTools(b SearchBackends) []Tool {
	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	var out []Tool
	if b.Web != nil {
		out = append(out, searchTool("web_search",
			"Search the public web. Use for recent news, roles and company information. Cite result URLs in your answer.",
			b.Web, maxResults))
	}
	if b.Video != nil {
		out = append(out, searchTool("youtube_search",
			"Search YouTube for talks, interviews and videos featuring a person or organization.",
			b.Video, maxResults))
	}
	if b.Podcast != nil {
		out = append(out, searchTool("podcast_search",
			"Search podcast episodes for appearances by a person or discussion of an organization.",
			b.Podcast, maxResults))
	}
	if b.Reader != nil {
		reader := b.Reader
		out = append(out, Tool{
			Name:        "read_webpage",
			Description: "Fetch a web page and return its readable article text. Use after a search to verify details.",
			Category:    CategorySearch,
			Parameters: []llmtypes.Parameter{
				{Name: "url", Type: llmtypes.TypeString, Description: "Absolute http(s) URL", Required: true},
			},
			Handler: func(ctx context.Context, args Args, _ Env) (any, error) {
				article, err := reader.Read(ctx, args.String("url"))
				if err != nil {
					return nil, err
				}
				if article.Truncated {
					return Partial(article, "page text truncated"), nil
				}
				return article, nil
			},
		})
	}
	return out
}

func searchTool(name, description string, backend search.Backend, maxResults int) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Category:    CategorySearch,
		Parameters: []llmtypes.Parameter{
			{Name: "query", Type: llmtypes.TypeString, Description: "Search query", Required: true},
			{Name: "count", Type: llmtypes.TypeInteger, Description: fmt.Sprintf("Number of results (max %d)", maxResults), Default: maxResults},
		},
		Handler: func(ctx context.Context, args Args, _ Env) (any, error) {
			count := min(args.Int("count"), maxResults)
			results, err := backend.Search(ctx, args.String("query"), count)
			if err != nil {
				return nil, fmt.Errorf("%s search failed: %w", backend.Name(), err)
			}
			return map[string]any{
				"query":   args.String("query"),
				"results": results,
			}, nil
		},
	}
}
