package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/internal/types"
	"github.com/xhad/printdesk/pkg/llm"
)

const systemPrompt = "Ты эксперт по 3D-печати с многолетним опытом. " +
	"Твоя задача - дать максимально полезный и структурированный ответ.\n\n" +
	"ВАЖНО:\n" +
	"- Используй ТОЛЬКО факты из предоставленного контекста\n" +
	"- Если информации недостаточно - честно скажи об этом\n" +
	"- Давай конкретные параметры (температуры, скорости, и т.д.)\n" +
	"- Структурируй ответ по пунктам"

const fallbackTemplate = "По запросу '%s' (категория: %s):\n\n" +
	"Не удалось сформировать детальный ответ. " +
	"Проверьте настройки API или попробуйте переформулировать вопрос."

// Generation is the outcome of the generate stage. Used lists the chunks the
// answer was built from and is empty on the fallback path.
type Generation struct {
	Answer   string
	Used     []models.Chunk
	Fallback bool
	Reason   string
}

// FallbackAnswer is the deterministic answer given when no context was found
// or the backend failed.
func FallbackAnswer(question string, category models.Category) string {
	return fmt.Sprintf(fallbackTemplate, question, category)
}

// BuildContext renders retrieved chunks as the numbered knowledge block sent
// to the backend. Each body is cut to maxChars runes.
func BuildContext(hits []models.Hit, maxChars int) string {
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		title := h.Chunk.Title
		if title == "" {
			title = "Без заголовка"
		}
		source := h.Chunk.SourceURL
		if source == "" {
			source = "N/A"
		}
		parts = append(parts, fmt.Sprintf("[Документ %d]\nЗаголовок: %s\nИсточник: %s\nСодержание: %s\n",
			i+1, title, source, truncateRunes(h.Chunk.Text, maxChars)))
	}
	return strings.Join(parts, "\n")
}

func buildMessages(question string, category models.Category, dialogContext, knowledge string) []types.Message {
	if dialogContext == "" {
		dialogContext = "Нет"
	}
	user := fmt.Sprintf("Категория: %s\nКонтекст: %s\n\nБаза знаний:\n%s\n\nВопрос: %s\n\nДай структурированный ответ.",
		category, dialogContext, knowledge, question)
	return []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt},
		{Role: types.RoleUser, Content: user},
	}
}

func (p *Pipeline) generate(ctx context.Context, logger *zap.Logger, question string, category models.Category, dialogContext string, hits []models.Hit) Generation {
	fallback := func(reason string) Generation {
		return Generation{Answer: FallbackAnswer(question, category), Fallback: true, Reason: reason}
	}

	if len(hits) == 0 {
		return fallback(ReasonNoContext)
	}
	if p.completer == nil {
		return fallback(ReasonBackendDown)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fallback(ReasonBackendBusy)
	}
	defer p.sem.Release(1)

	if p.settings.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.GenerationTimeout)
		defer cancel()
	}

	messages := buildMessages(question, category, dialogContext, BuildContext(hits, p.settings.ContextChars))
	answer, err := p.completer.Complete(ctx, messages, p.settings.Temperature, p.settings.MaxTokens)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = llm.ErrMalformedResponse
	}
	if err != nil {
		reason := backendReason(err)
		logger.Warn("generation failed, using fallback answer", zap.String("reason", reason), zap.Error(err))
		return fallback(reason)
	}

	used := make([]models.Chunk, len(hits))
	for i, h := range hits {
		used[i] = h.Chunk
	}
	return Generation{Answer: answer, Used: used}
}

func backendReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonBackendTimeout
	case errors.Is(err, llm.ErrMalformedResponse):
		return ReasonBackendMalformed
	default:
		return ReasonBackendDown
	}
}

// Sources returns the distinct non-empty source references of chunks in
// first-seen order.
func Sources(chunks []models.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.SourceURL == "" {
			continue
		}
		if _, ok := seen[c.SourceURL]; ok {
			continue
		}
		seen[c.SourceURL] = struct{}{}
		out = append(out, c.SourceURL)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
