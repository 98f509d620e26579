package urlcollector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// Config holds configuration for a crawl
type Config struct {
	MaxPages  int
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	UserAgent string
	MaxBody   int64
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxPages:  5,
		Timeout:   5 * time.Second,
		RateLimit: 5,
		UserAgent: "reconprobe-crawler/1.0",
		MaxBody:   2 << 20,
	}
}

// Page is one crawled HTML page.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Result of a crawl. Documents are linked files (PDF) that were not fetched.
type Result struct {
	Pages     []Page   `json:"pages"`
	Documents []string `json:"documents,omitempty"`
}

// Crawler walks a site breadth first.
type Crawler struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a crawler. Zero config fields take their defaults.
func New(config Config, logger *zap.Logger) *Crawler {
	def := DefaultConfig()
	if config.MaxPages <= 0 {
		config.MaxPages = def.MaxPages
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxBody <= 0 {
		config.MaxBody = def.MaxBody
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(zap.String("component", "crawler")),
	}
}

// StartURL turns a bare host into an http URL.
func StartURL(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return "http://" + target
}

// Crawl visits at most MaxPages URLs under the start URL. Pages that fail or
// are not HTML are skipped. On cancellation the pages collected so far are
// returned with the context error.
func (c *Crawler) Crawl(ctx context.Context, target string) (*Result, error) {
	u, err := url.Parse(StartURL(target))
	if err != nil {
		return nil, fmt.Errorf("invalid crawl target: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	start := u.String()

	res := &Result{Pages: []Page{}}
	visited := map[string]bool{}
	docs := map[string]bool{}
	queue := []string{start}

	for len(queue) > 0 && len(visited) < c.config.MaxPages {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		if err := c.limiter.Wait(ctx); err != nil {
			return res, err
		}
		page, links, err := c.fetch(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.logger.Debug("page skipped", zap.String("url", current), zap.Error(err))
			continue
		}
		res.Pages = append(res.Pages, *page)

		for _, link := range links {
			if !strings.HasPrefix(link, start) || visited[link] {
				continue
			}
			if isDocument(link) {
				if !docs[link] {
					docs[link] = true
					res.Documents = append(res.Documents, link)
				}
				continue
			}
			queue = append(queue, link)
		}
	}
	c.logger.Debug("crawl complete", zap.String("start", start),
		zap.Int("pages", len(res.Pages)), zap.Int("documents", len(res.Documents)))
	return res, nil
}

// fetch downloads one URL and returns its title and outgoing links.
func (c *Crawler) fetch(ctx context.Context, pageURL string) (*Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return nil, nil, fmt.Errorf("content type %q is not html", ct)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, c.config.MaxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{URL: pageURL}
	var links []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" {
						if resolved := resolveURL(pageURL, attr.Val); resolved != "" {
							links = append(links, resolved)
						}
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			f(child)
		}
	}
	f(doc)
	return page, links, nil
}

// resolveURL resolves relative URLs
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "#" || strings.HasPrefix(ref, "mailto:") || strings.HasPrefix(ref, "tel:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}

	baseParsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refParsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	resolved := baseParsed.ResolveReference(refParsed)
	resolved.Fragment = ""
	return resolved.String()
}

func isDocument(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
