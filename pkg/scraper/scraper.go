package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/internal/models"
)

// ErrUnexpectedStatus is returned when a source answers with a non-2xx status.
var ErrUnexpectedStatus = goerr.New("unexpected status code")

type ScraperConfig struct {
	MaxDepth          int     // 0 fetches only the given URL
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	Client            *http.Client
	OnProgress        func(url string) // called before each page request
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.MaxDepth < 0 {
		return nil, goerr.New("max depth must not be negative", goerr.V("max_depth", config.MaxDepth))
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.UserAgent == "" {
		config.UserAgent = "agrigenius/1.0"
	}

	// Copy so the caller's client keeps its own timeout.
	client := &http.Client{}
	if config.Client != nil {
		*client = *config.Client
	}
	client.Timeout = config.Timeout

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Fetch downloads rawURL and, when MaxDepth > 0, the same-host pages it links
// to. All page texts are merged into one Document in visit order.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	pages, err := s.Scrape(ctx, rawURL)
	if err != nil {
		return models.Document{}, err
	}

	doc := pages[0]
	if len(pages) > 1 {
		parts := make([]string, 0, len(pages))
		for _, p := range pages {
			parts = append(parts, p.Content)
		}
		doc.Content = strings.Join(parts, "\n\n")
	}
	doc.Metadata["pages"] = len(pages)
	return doc, nil
}

// Scrape returns one Document per visited page. A failure on the root page is
// returned; failures on linked pages are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) ([]models.Document, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid URL", goerr.V("url", rawURL))
	}

	c := &crawl{
		Scraper:  s,
		visited:  make(map[string]bool),
		baseHost: root.Host,
	}
	if err := c.visit(ctx, rawURL, 0); err != nil {
		return nil, err
	}
	return c.documents, nil
}

type crawl struct {
	*Scraper
	visited   map[string]bool
	baseHost  string
	documents []models.Document
}

func (c *crawl) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != c.baseHost {
		return false
	}

	// Check extensions
	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range c.config.AllowedExtensions {
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range c.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (c *crawl) visit(ctx context.Context, urlStr string, depth int) error {
	c.visited[urlStr] = true
	if c.config.OnProgress != nil {
		c.config.OnProgress(urlStr)
	}

	doc, page, err := c.get(ctx, urlStr)
	if err != nil {
		return err
	}
	doc.Metadata["depth"] = depth
	c.documents = append(c.documents, doc)

	if page == nil || depth >= c.config.MaxDepth {
		return nil
	}

	// Find and follow links
	base, _ := url.Parse(urlStr)
	page.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		ref.Fragment = ""
		next := base.ResolveReference(ref).String()

		if c.visited[next] || !c.shouldProcessURL(next) {
			return
		}
		if err := c.visit(ctx, next, depth+1); err != nil {
			logging.From(ctx).Warn("skipping linked page", logging.ErrAttrs(err)...)
		}
	})

	return nil
}

// get fetches one page. page is nil for non-HTML bodies, whose text is kept verbatim.
func (s *Scraper) get(ctx context.Context, urlStr string) (models.Document, *goquery.Document, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, nil, goerr.Wrap(err, "rate limiter", goerr.V("url", urlStr))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, nil, goerr.Wrap(err, "build request", goerr.V("url", urlStr))
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, nil, goerr.Wrap(err, "fetch URL", goerr.V("url", urlStr))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Document{}, nil, goerr.Wrap(ErrUnexpectedStatus, "fetch URL",
			goerr.V("url", urlStr), goerr.V("status", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Document{}, nil, goerr.Wrap(err, "read body", goerr.V("url", urlStr))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	document := models.Document{
		ID:     urlStr,
		Source: urlStr,
		Kind:   models.SourceURL,
		Metadata: map[string]interface{}{
			"time":         time.Now(),
			"contentType":  contentType,
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}

	if !strings.Contains(contentType, "html") {
		document.Content = string(body)
		return document, nil, nil
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return models.Document{}, nil, goerr.Wrap(err, "parse HTML", goerr.V("url", urlStr))
	}

	document.Title = strings.TrimSpace(page.Find("title").First().Text())
	document.Content = extractMainContent(page)
	return document, page, nil
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}
