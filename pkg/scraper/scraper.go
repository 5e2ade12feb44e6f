// Package scraper fetches web pages for ingestion. It can follow links on
// the same host up to a configured depth.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2
	DefaultMaxPages  = 50
	DefaultMaxBytes  = 10 << 20
	DefaultUserAgent = "docuchat/1.0"
)

type ScraperConfig struct {
	MaxDepth          int     // 0 fetches only the given page
	MaxPages          int     // upper bound on fetched pages per Scrape
	MaxBytes          int64   // upper bound on a single response body
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	OnProgress        func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth cannot be negative")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = DefaultRateLimit
	}
	if config.MaxPages == 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New() *Scraper {
	s, _ := NewWithConfig(ScraperConfig{})
	return s
}

func (s *Scraper) Config() ScraperConfig { return s.config }

// crawl is the state of one Scrape call.
type crawl struct {
	baseHost  string
	visited   map[string]bool
	documents []models.Document
}

func (s *Scraper) shouldProcessURL(c *crawl, urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	if parsedURL.Host != c.baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			// extensionless paths such as /docs/intro
			last := path[strings.LastIndex(path, "/")+1:]
			if !strings.Contains(last, ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

// Scrape fetches startURL and, up to MaxDepth, the same-host pages it links
// to. Each page becomes an html Document holding the raw page.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %v", startURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	parsed.Fragment = ""
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	c := &crawl{baseHost: parsed.Host, visited: make(map[string]bool)}
	if err := s.scrapeRecursive(ctx, c, parsed.String(), 0); err != nil {
		return nil, err
	}
	return c.documents, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, c *crawl, urlStr string, depth int) error {
	if depth > s.config.MaxDepth || c.visited[urlStr] || len(c.documents) >= s.config.MaxPages {
		return nil
	}
	if depth > 0 && !s.shouldProcessURL(c, urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	doc, page, err := s.fetch(ctx, urlStr, depth)
	if err != nil {
		return err
	}
	c.documents = append(c.documents, doc)

	if depth == s.config.MaxDepth {
		return nil
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}

	page.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("skipping link", "href", href, "error", err)
			return
		}
		link = base.ResolveReference(link)
		link.Fragment = ""

		if err := s.scrapeRecursive(ctx, c, link.String(), depth+1); err != nil {
			logger.Warn("error scraping url", "url", link.String(), "error", err)
		}
	})

	return nil
}

func (s *Scraper) fetch(ctx context.Context, urlStr string, depth int) (models.Document, *goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes))
	if err != nil {
		return models.Document{}, nil, fmt.Errorf("failed to read %s: %v", urlStr, err)
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return models.Document{}, nil, err
	}

	doc := models.NewDocument(urlStr, models.FormatHTML, data)
	doc.Metadata["url"] = urlStr
	doc.Metadata["title"] = strings.TrimSpace(page.Find("title").First().Text())
	doc.Metadata["depth"] = depth
	doc.Metadata["fetched_at"] = time.Now().UTC().Format(time.RFC3339)
	doc.Metadata["content_type"] = resp.Header.Get("Content-Type")
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		doc.Metadata["last_modified"] = lm
	}

	return doc, page, nil
}
