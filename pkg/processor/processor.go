// Package processor turns scraped articles into bounded corpus chunks.
package processor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/printdesk/internal/models"
)

const defaultTitle = "Без заголовка"

type ProcessorConfig struct {
	ChunkSize        int // runes
	ChunkOverlap     int // runes
	MinChunkLength   int
	MinContentLength int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 100
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 50
	}
	if config.MinContentLength == 0 {
		config.MinContentLength = 100
	}

	return Processor{
		config: config,
	}
}

// Process normalizes the articles and chunks each one, keeping article order.
func (p *Processor) Process(articles []models.Article) []models.Chunk {
	var chunks []models.Chunk
	for i, article := range p.Normalize(articles) {
		if article.URL == "" {
			article.URL = fmt.Sprintf("doc_%d", i)
		}
		chunks = append(chunks, p.Chunk(article)...)
	}
	return chunks
}

// Normalize collapses whitespace, fills in missing titles and drops
// articles whose content is shorter than MinContentLength.
func (p *Processor) Normalize(articles []models.Article) []models.Article {
	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		a.Title = cleanText(a.Title)
		if a.Title == "" {
			a.Title = defaultTitle
		}
		a.Content = cleanText(a.Content)
		if utf8.RuneCountInString(a.Content) < p.config.MinContentLength {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Chunk splits an article into chunks of at most ChunkSize runes. Chunk ids
// are the article URL with a running suffix.
func (p *Processor) Chunk(article models.Article) []models.Chunk {
	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}

	texts := p.splitIntoChunks(cleanText(article.Content))
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:        fmt.Sprintf("%s#%d", article.URL, i),
			Title:     article.Title,
			Text:      text,
			SourceURL: article.URL,
			Category:  article.Category,
			Tags:      tags,
		}
	}
	return chunks
}

func cleanText(text string) string {
	// Replace multiple spaces with single space
	return strings.Join(strings.Fields(text), " ")
}

func (p *Processor) splitIntoChunks(text string) []string {
	size := p.config.ChunkSize
	var (
		chunks  []string
		current []rune
	)

	flush := func() {
		c := strings.TrimSpace(string(current))
		if c == "" {
			return
		}
		// A short trailing fragment is already covered by the overlap.
		if len(chunks) > 0 && utf8.RuneCountInString(c) < p.config.MinChunkLength {
			return
		}
		chunks = append(chunks, c)
	}

	for _, sentence := range splitIntoSentences(text) {
		for _, piece := range splitRunes([]rune(sentence), size) {
			if len(current) > 0 && len(current)+1+len(piece) > size {
				flush()
				tail := overlapTail(current, p.config.ChunkOverlap)
				current = nil
				if len(tail) > 0 && len(tail)+1+len(piece) <= size {
					current = append(current, tail...)
				}
			}
			if len(current) > 0 {
				current = append(current, ' ')
			}
			current = append(current, piece...)
		}
	}
	flush()

	return chunks
}

// splitIntoSentences breaks after '.', '!' or '?' followed by whitespace.
func splitIntoSentences(text string) []string {
	runes := []rune(text)
	var sentences []string

	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// splitRunes cuts an over-long sentence into pieces of at most size runes.
func splitRunes(r []rune, size int) [][]rune {
	var pieces [][]rune
	for len(r) > size {
		pieces = append(pieces, r[:size])
		r = r[size:]
	}
	if len(r) > 0 {
		pieces = append(pieces, r)
	}
	return pieces
}

// overlapTail returns up to n trailing runes, starting at a word boundary
// when there is one.
func overlapTail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if len(r) <= n {
		return r
	}
	tail := r[len(r)-n:]
	for i, c := range tail {
		if unicode.IsSpace(c) {
			return []rune(strings.TrimSpace(string(tail[i:])))
		}
	}
	return tail
}
