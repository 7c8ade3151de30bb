package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longText = strings.Repeat("Температура сопла для PLA обычно 200 градусов. ", 5)

func newWikiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/wiki/":
			fmt.Fprint(w, `<html><body>
				<a href="/wiki/">Главная</a>
				<a href="/wiki/pla-plastic">PLA</a>
				<a href="/wiki/pla-plastic#history">PLA again</a>
				<a href="/wiki/nozzle/cleaning">Сопло</a>
				<a href="/wiki/short">Short</a>
				<a href="/wiki/broken">Broken</a>
				<a href="/forum/topic">Forum</a>
				<a href="https://other.example/wiki/foreign">Foreign</a>
			</body></html>`)
		case "/wiki/pla-plastic":
			fmt.Fprintf(w, `<html><head><title>PLA | wiki</title></head><body>
				<h1> PLA пластик </h1>
				<div class="wiki-content"><p>%s</p><script>var x = 1;</script><nav>menu</nav></div>
			</body></html>`, longText)
		case "/wiki/nozzle/cleaning":
			fmt.Fprintf(w, `<html><head><title>Чистка сопла</title></head><body>
				<div class="content"><p>коротко</p></div>
				<article><p>%s</p><p>Второй абзац.</p></article>
			</body></html>`, longText)
		case "/wiki/short":
			fmt.Fprint(w, `<html><body><h1>Short</h1><main>мало текста</main></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testScraper(config ScraperConfig) *Scraper {
	if config.RateLimit == 0 {
		config.RateLimit = 1000
	}
	return NewWithConfig(config, nil)
}

func TestCollectLinks(t *testing.T) {
	srv := newWikiServer(t)
	s := testScraper(ScraperConfig{IgnorePatterns: []string{"broken"}})

	links, err := s.CollectLinks(context.Background(), srv.URL+"/wiki/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/wiki/pla-plastic",
		srv.URL + "/wiki/nozzle/cleaning",
		srv.URL + "/wiki/short",
	}, links)

	links, err = s.CollectLinks(context.Background(), srv.URL+"/wiki/", 1)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestScrapeArticle(t *testing.T) {
	srv := newWikiServer(t)
	s := testScraper(ScraperConfig{})

	article, err := s.ScrapeArticle(context.Background(), srv.URL+"/wiki/pla-plastic")
	require.NoError(t, err)
	assert.Equal(t, "PLA пластик", article.Title)
	assert.Equal(t, "Pla Plastic", article.Category)
	assert.Contains(t, article.Content, "Температура сопла")
	assert.NotContains(t, article.Content, "var x")
	assert.NotContains(t, article.Content, "menu")

	// the .content block is too short, so article wins; title falls back to <title>
	article, err = s.ScrapeArticle(context.Background(), srv.URL+"/wiki/nozzle/cleaning")
	require.NoError(t, err)
	assert.Equal(t, "Чистка сопла", article.Title)
	assert.Equal(t, "Nozzle", article.Category)
	assert.Contains(t, article.Content, "\nВторой абзац.")

	_, err = s.ScrapeArticle(context.Background(), srv.URL+"/wiki/missing")
	assert.Error(t, err)
}

func TestScrape(t *testing.T) {
	srv := newWikiServer(t)

	var progress []int
	s := testScraper(ScraperConfig{
		OnProgress: func(done, total int, url string) { progress = append(progress, done) },
	})

	articles, err := s.Scrape(context.Background(), srv.URL+"/wiki/")
	require.NoError(t, err)

	// broken is a 404 and short is under the minimum length
	require.Len(t, articles, 2)
	assert.Equal(t, srv.URL+"/wiki/pla-plastic", articles[0].URL)
	assert.Equal(t, srv.URL+"/wiki/nozzle/cleaning", articles[1].URL)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
}

func TestScrapeCancelled(t *testing.T) {
	srv := newWikiServer(t)
	s := testScraper(ScraperConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scrape(ctx, srv.URL+"/wiki/")
	assert.Error(t, err)
}

func TestCategoryFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://3dtoday.ru/wiki/pla-plastic", "Pla Plastic"},
		{"https://3dtoday.ru/wiki/ABS", "Abs"},
		{"https://3dtoday.ru/wiki/", "Общее"},
		{"https://3dtoday.ru/blog/post", "Общее"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFromURL(tt.url))
		})
	}
}
