package search

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	testHelpers "github.com/user/crmassist/internal/testing"
)

func TestBrave_Search(t *testing.T) {
	var gotQuery, gotToken string
	server := testHelpers.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotToken = r.Header.Get("X-Subscription-Token")
		if r.URL.Path != "/res/v1/web/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		testHelpers.SetJSONHeaders(w)
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Ada Lovelace","url":"https://example.com/ada","description":"Mathematician","age":"2 days ago"}]}}`))
	})

	brave, err := NewBrave("brave-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	results, err := brave.Search(context.Background(), "ada lovelace", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotQuery != "ada lovelace" || gotToken != "brave-key" {
		t.Errorf("unexpected request q=%q token=%q", gotQuery, gotToken)
	}
	if len(results) != 1 || results[0].URL != "https://example.com/ada" || results[0].Snippet != "Mathematician" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestYouTube_Search(t *testing.T) {
	server := testHelpers.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "yt-key" || r.URL.Query().Get("type") != "video" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		testHelpers.SetJSONHeaders(w)
		_, _ = w.Write([]byte(`{"items":[
			{"id":{"kind":"youtube#channel"},"snippet":{"title":"skip me"}},
			{"id":{"videoId":"abc123"},"snippet":{"title":"Talk","description":"A talk","channelTitle":"Conf","publishedAt":"2024-05-01T00:00:00Z"}}
		]}`))
	})

	yt, _ := NewYouTube("yt-key", WithBaseURL(server.URL))
	results, err := yt.Search(context.Background(), "talk", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected items without video id to be skipped, got %d", len(results))
	}
	if results[0].URL != "https://www.youtube.com/watch?v=abc123" || results[0].Source != "Conf" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestListenNotes_Search(t *testing.T) {
	server := testHelpers.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-ListenAPI-Key") != "ln-key" {
			t.Errorf("missing api key header")
		}
		testHelpers.SetJSONHeaders(w)
		_, _ = w.Write([]byte(`{"results":[{"title_original":"Ep 1","description_original":"Guest","listennotes_url":"https://ln/e1","pub_date_ms":1704067200000,"podcast":{"title_original":"Show"}}]}`))
	})

	ln, _ := NewListenNotes("ln-key", WithBaseURL(server.URL))
	results, err := ln.Search(context.Background(), "guest", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Published != "2024-01-01" || results[0].Source != "Show" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestBackends_ErrorStatus(t *testing.T) {
	server := testHelpers.NewMockServer(t, testHelpers.StatusHandler(http.StatusForbidden, `{"message":"bad key"}`))

	brave, _ := NewBrave("k", WithBaseURL(server.URL))
	_, err := brave.Search(context.Background(), "x", 1)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestNewBackend_RequiresToken(t *testing.T) {
	if _, err := NewBrave(""); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
	if _, err := NewYouTube(""); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
	if _, err := NewListenNotes(""); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

type countingBackend struct {
	calls int
}

func (c *countingBackend) Name() string { return "counting" }

func (c *countingBackend) Search(context.Context, string, int) ([]Result, error) {
	c.calls++
	return nil, nil
}

func TestLimited_RespectsContext(t *testing.T) {
	backend := &countingBackend{}
	limited := NewLimited(backend, 0.001)

	if _, err := limited.Search(context.Background(), "a", 1); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Search(ctx, "b", 1); err == nil {
		t.Error("expected the second call to be refused within the deadline")
	}
	if backend.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", backend.calls)
	}
}

func TestLimited_ZeroRateIsUnlimited(t *testing.T) {
	backend := &countingBackend{}
	limited := NewLimited(backend, 0)
	for i := 0; i < 5; i++ {
		if _, err := limited.Search(context.Background(), "q", 1); err != nil {
			t.Fatal(err)
		}
	}
	if backend.calls != 5 || limited.Name() != "counting" {
		t.Errorf("unexpected calls %d", backend.calls)
	}
}

func TestReader_ExtractsArticle(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Grace Hopper joins Acme</title></head><body>
<nav>menu</nav>
<article><h1>Grace Hopper joins Acme</h1>
<p>Grace Hopper has joined Acme Corp as chief scientist, the company announced on Monday. She will lead the compilers group and report to the board.</p>
<p>Before joining Acme she spent many years working on programming languages and was widely recognised for her contributions to the field of computing.</p>
<p>The company said the appointment reflects its long term investment in research and developer tooling across all of its product lines.</p>
</article></body></html>`

	server := testHelpers.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})

	reader := NewReader(time.Second, 0)
	article, err := reader.Read(context.Background(), server.URL+"/news")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	testHelpers.AssertContains(t, article.Text, "chief scientist")
	if article.Truncated {
		t.Error("short page should not be truncated")
	}
}

func TestReader_TruncatesAndRejectsSchemes(t *testing.T) {
	server := testHelpers.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	})

	reader := NewReader(time.Second, 10)
	article, err := reader.Read(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(article.Text) != 10 || !article.Truncated {
		t.Errorf("expected truncation to 10 chars, got %d", len(article.Text))
	}

	if _, err := reader.Read(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("expected non-http scheme to be rejected")
	}
}
