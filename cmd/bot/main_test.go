package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/printdesk/internal/models"
)

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name string
		resp models.Response
		want string
	}{
		{
			name: "no sources",
			resp: models.Response{Answer: "Ответ"},
			want: "Ответ",
		},
		{
			name: "at most three sources",
			resp: models.Response{Answer: "Ответ", Sources: []string{"https://a", "https://b", "https://c", "https://d"}},
			want: "Ответ\n\n📚 Источники:\n• https://a\n• https://b\n• https://c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatReply(&tt.resp))
		})
	}
}

func TestFormatReplyTruncates(t *testing.T) {
	reply := formatReply(&models.Response{Answer: strings.Repeat("я", 5000)})
	assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(reply))
	assert.True(t, strings.HasSuffix(reply, "…"))
}
