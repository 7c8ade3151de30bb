// Package lexical scores chunks by raw token occurrence. It is the search
// path used whenever vector search cannot serve a query.
package lexical

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xhad/printdesk/internal/models"
)

const (
	minTokenLen = 3
	titleWeight = 3
)

// Tokens splits the lower-cased query on whitespace and drops tokens of two
// characters or fewer.
func Tokens(query string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(field) >= minTokenLen {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// Score is 3 x title occurrences + body occurrences summed over tokens.
// Occurrences are counted as non-overlapping substrings of the lower-cased
// title and body.
func Score(tokens []string, chunk models.Chunk) int {
	title := strings.ToLower(chunk.Title)
	body := strings.ToLower(chunk.Text)

	score := 0
	for _, token := range tokens {
		score += titleWeight*strings.Count(title, token) + strings.Count(body, token)
	}
	return score
}

// Rank returns at most topK chunks with a positive score, best first. Ties
// keep corpus order. It never fails; no match yields an empty slice.
func Rank(query string, corpus []models.Chunk, topK int) []models.Chunk {
	tokens := Tokens(query)
	if len(tokens) == 0 || topK <= 0 {
		return []models.Chunk{}
	}

	type scored struct {
		idx   int
		score int
	}
	var matches []scored
	for i, chunk := range corpus {
		if s := Score(tokens, chunk); s > 0 {
			matches = append(matches, scored{idx: i, score: s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]models.Chunk, len(matches))
	for i, m := range matches {
		out[i] = corpus[m.idx]
	}
	return out
}
