package processor_test

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/processor"
)

const sentence = "Перед печатью PLA прогрейте стол до шестидесяти градусов и проверьте первый слой. "

func TestProcessor_Normalize(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MinContentLength: 20})

	articles := p.Normalize([]models.Article{
		{URL: "https://wiki.example/a", Title: "  Сопло\n", Content: "Чистка   сопла\n\nпроводится   горячим методом."},
		{URL: "https://wiki.example/b", Content: "Стол выравнивают бумагой, не спеша."},
		{URL: "https://wiki.example/c", Title: "Коротко", Content: "мало"},
	})

	require.Len(t, articles, 2)
	assert.Equal(t, "Сопло", articles[0].Title)
	assert.Equal(t, "Чистка сопла проводится горячим методом.", articles[0].Content)
	assert.Equal(t, "Без заголовка", articles[1].Title)
}

func TestProcessor_ChunkBounds(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200, ChunkOverlap: 40, MinChunkLength: 10})

	article := models.Article{
		URL:      "https://wiki.example/pla",
		Title:    "PLA",
		Category: "Pla",
		Content:  strings.Repeat(sentence, 12),
	}
	chunks := p.Chunk(article)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 200, "chunk %d", i)
		assert.NotEmpty(t, c.Text)
		assert.Equal(t, "https://wiki.example/pla#"+strconv.Itoa(i), c.ID)
		assert.Equal(t, "PLA", c.Title)
		assert.Equal(t, "Pla", c.Category)
		assert.Equal(t, article.URL, c.SourceURL)
		assert.NotNil(t, c.Tags)
		assert.True(t, utf8.ValidString(c.Text))
	}

	// consecutive chunks share text through the overlap
	prevWords := strings.Fields(chunks[0].Text)
	assert.Contains(t, chunks[1].Text, prevWords[len(prevWords)-1])
}

func TestProcessor_LongSentenceIsCut(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 50, ChunkOverlap: 10, MinChunkLength: 1})

	chunks := p.Chunk(models.Article{URL: "u", Content: strings.Repeat("я", 180)})
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 50)
	}
}

func TestProcessor_Process(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 100})

	chunks := p.Process([]models.Article{
		{URL: "https://wiki.example/a", Title: "A", Content: strings.Repeat(sentence, 2)},
		{Title: "B", Content: strings.Repeat(sentence, 2)},
		{URL: "https://wiki.example/c", Title: "C", Content: "мало"},
	})

	require.Len(t, chunks, 2)
	assert.Equal(t, "https://wiki.example/a#0", chunks[0].ID)
	assert.Equal(t, "doc_1#0", chunks[1].ID)
}
