// Package scraper collects wiki articles that make up the raw corpus.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/printdesk/internal/models"
)

const (
	wikiPrefix      = "/wiki/"
	defaultTitle    = "Без названия"
	defaultCategory = "Общее"
)

// contentSelectors are tried in order; the first one with enough text wins.
var contentSelectors = []string{
	".wiki-content",
	".article-content",
	".content",
	"article",
	".main-content",
	"main",
}

type ScraperConfig struct {
	MaxArticles      int
	RateLimit        float64 // requests per second
	Timeout          time.Duration
	UserAgent        string
	IgnorePatterns   []string
	MinContentLength int
	OnProgress       func(done, total int, url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig, logger *zap.Logger) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxArticles == 0 {
		config.MaxArticles = 100
	}
	if config.RateLimit == 0 {
		config.RateLimit = 0.5 // one request every two seconds
	}
	if config.MinContentLength == 0 {
		config.MinContentLength = 100
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; printdesk/1.0)"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// Scrape collects article links from the wiki index and scrapes each one.
// Articles that fail or are too short are skipped.
func (s *Scraper) Scrape(ctx context.Context, indexURL string) ([]models.Article, error) {
	links, err := s.CollectLinks(ctx, indexURL, s.config.MaxArticles)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collected article links", zap.Int("count", len(links)))

	var articles []models.Article
	for i, link := range links {
		article, err := s.ScrapeArticle(ctx, link)
		if s.config.OnProgress != nil {
			s.config.OnProgress(i+1, len(links), link)
		}
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			s.logger.Warn("failed to scrape article", zap.String("url", link), zap.Error(err))
			continue
		}
		if n := utf8.RuneCountInString(article.Content); n <= s.config.MinContentLength {
			s.logger.Debug("skipping short article", zap.String("url", link), zap.Int("length", n))
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// CollectLinks returns up to limit unique same-host article links found on
// the index page.
func (s *Scraper) CollectLinks(ctx context.Context, indexURL string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.config.MaxArticles
	}
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("invalid index URL: %w", err)
	}
	doc, err := s.fetch(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		link, ok := s.articleURL(base, href)
		if ok && !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
		return len(links) < limit
	})
	return links, nil
}

func (s *Scraper) articleURL(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	u.RawQuery = ""

	if u.Host != base.Host || !strings.HasPrefix(u.Path, wikiPrefix) || u.Path == wikiPrefix {
		return "", false
	}
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(u.String(), pattern) {
			return "", false
		}
	}
	return u.String(), true
}

// ScrapeArticle fetches a single article page.
func (s *Scraper) ScrapeArticle(ctx context.Context, articleURL string) (models.Article, error) {
	doc, err := s.fetch(ctx, articleURL)
	if err != nil {
		return models.Article{}, err
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = defaultTitle
	}

	return models.Article{
		URL:      articleURL,
		Title:    title,
		Category: categoryFromURL(articleURL),
		Content:  s.extractMainContent(doc),
	}, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, target)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	var content string
	for _, selector := range contentSelectors {
		selected := doc.Find(selector).First()
		if selected.Length() == 0 {
			continue
		}
		selected.Find("script, style, nav, footer").Remove()
		content = blockText(selected)
		if utf8.RuneCountInString(content) > s.config.MinContentLength {
			break
		}
	}
	return content
}

// blockText joins the trimmed text nodes under sel with newlines.
func blockText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, "\n")
}

// categoryFromURL turns the first path segment after /wiki/ into a label:
// "/wiki/pla-plastic" becomes "Pla Plastic".
func categoryFromURL(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil {
		return defaultCategory
	}
	rest := strings.TrimPrefix(u.Path, wikiPrefix)
	if rest == u.Path || rest == "" {
		return defaultCategory
	}
	segment, _, _ := strings.Cut(rest, "/")
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}

	words := strings.Fields(strings.ReplaceAll(segment, "-", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return defaultCategory
	}
	return strings.Join(words, " ")
}
