package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docuchat/internal/models"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.MaxDepth, s.Config().MaxDepth)
	assert.Equal(t, config.Timeout, s.Config().Timeout)
	assert.Equal(t, DefaultMaxPages, s.Config().MaxPages)
	assert.Equal(t, DefaultUserAgent, s.Config().UserAgent)

	_, err = NewWithConfig(ScraperConfig{MaxDepth: -1})
	assert.Error(t, err)

	assert.Equal(t, 0, New().Config().MaxDepth)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/", ""},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	c := &crawl{baseHost: "example.com"}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(c, tt.url))
		})
	}
}

func newSite(t *testing.T, hits *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<html>
				<head><title>Test Page</title></head>
				<body>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/page2.html#section">Same link</a>
						<a href="https://elsewhere.example.org/">External</a>
					</main>
				</body>
			</html>`)
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		fmt.Fprint(w, `<html><head><title>Second</title></head><body><article>Second page</article><a href="/">Home</a></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestScrape_SinglePageByDefault(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)

	s, err := NewWithConfig(ScraperConfig{RateLimit: 100})
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	doc := docs[0]
	assert.Equal(t, models.FormatHTML, doc.Format)
	assert.Equal(t, server.URL+"/", doc.Filename)
	assert.Equal(t, "Test Page", doc.Metadata["title"])
	assert.Contains(t, string(doc.Data), "This is a test paragraph.")
	assert.NotEmpty(t, doc.ID)
}

func TestScrape_FollowsSameHostLinks(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(url string) { progress = append(progress, url) },
	})
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Second", docs[1].Metadata["title"])
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", docs[1].Metadata["last_modified"])
	assert.Equal(t, 1, docs[1].Metadata["depth"])
	assert.Equal(t, []string{server.URL + "/", server.URL + "/page2.html"}, progress)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestScrape_MaxPages(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)

	s, err := NewWithConfig(ScraperConfig{MaxDepth: 3, MaxPages: 1, RateLimit: 100})
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestScrape_Errors(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)

	s, err := NewWithConfig(ScraperConfig{RateLimit: 100})
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
	}{
		{"not found", server.URL + "/missing"},
		{"bad scheme", "ftp://example.com/file"},
		{"unparsable", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Scrape(context.Background(), tt.url)
			assert.Error(t, err)
		})
	}
}
