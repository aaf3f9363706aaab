package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const readerUserAgent = "Mozilla/5.0 (compatible; crmassist/1.0)"

// Article is the readable text of a fetched web page
type Article struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Byline    string `json:"byline,omitempty"`
	SiteName  string `json:"site_name,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// Reader fetches pages and extracts their main content
type Reader struct {
	client   *http.Client
	maxChars int
}

func NewReader(timeout time.Duration, maxChars int) *Reader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Reader{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
	}
}

// Read downloads rawURL and returns its article text.
// Non-HTML bodies are returned as-is.
func (r *Reader) Read(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q: only http and https are supported", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", readerUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	article := &Article{URL: rawURL}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") || isHTML(body) {
		parsedArticle, err := readability.FromReader(bytes.NewReader(body), parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to extract article: %w", err)
		}
		article.Title = parsedArticle.Title
		article.Byline = parsedArticle.Byline
		article.SiteName = parsedArticle.SiteName
		article.Excerpt = parsedArticle.Excerpt
		article.Text = strings.TrimSpace(parsedArticle.TextContent)
	} else {
		article.Text = string(body)
	}

	if len(article.Text) > r.maxChars {
		article.Text = article.Text[:r.maxChars]
		article.Truncated = true
	}
	return article, nil
}

func isHTML(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}
