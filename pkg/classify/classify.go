// Package classify routes a question to one of the fixed categories.
package classify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/internal/types"
)

var ErrUnparseable = errors.New("classify: backend reply names no category")

// Classifier never fails: anything it cannot place is CategoryOther.
type Classifier interface {
	Classify(ctx context.Context, query string) models.Category
}

type rule struct {
	category models.Category
	keywords []string
}

// rules are checked top to bottom and the first hit wins. Defect vocabulary
// is the most specific and must not be shadowed by a material or printer
// mention in the same sentence.
var rules = []rule{
	{models.CategoryDefectDiagnosis, []string{
		"забилось", "забилась", "сопло", "экструдер", "дефект", "слои", "полосы",
		"трещины", "расслаивается", "не прилипает", "отклеивается",
	}},
	{models.CategoryMaterialSelection, []string{
		"материал", "pla", "abs", "petg", "filament", "пластик", "филамент", "tpu", "nylon",
	}},
	{models.CategoryPrinterTuning, []string{
		"настройка", "калибровка", "температура", "скорость", "ретракт", "настроить", "откалибровать",
	}},
	{models.CategorySlicer, []string{
		"слайсер", "cura", "prusaslicer", "slicer", "нарезка",
	}},
	{models.CategoryBasics, []string{
		"начинаю", "новичок", "первый", "основы", "выбрать", "принтер", "какой принтер",
	}},
}

// Keyword matches the lower-cased query against per-category substrings.
type Keyword struct{}

func NewKeyword() Keyword { return Keyword{} }

func (Keyword) Classify(_ context.Context, query string) models.Category {
	q := strings.ToLower(query)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.category
			}
		}
	}
	return models.CategoryOther
}

const llmSystemPrompt = "Ты классификатор запросов по 3D-печати. " +
	"Верни ОДНО слово из списка: basics, material_selection, printer_tuning, " +
	"defect_diagnosis, slicer, other."

// aliases lets the backend answer with the Russian labels it was trained on.
var aliases = map[models.Category][]string{
	models.CategoryBasics:            {"основы"},
	models.CategoryMaterialSelection: {"подбор_материала"},
	models.CategoryPrinterTuning:     {"настройка_принтера"},
	models.CategoryDefectDiagnosis:   {"диагностика_дефектов"},
	models.CategorySlicer:            {"слайсер"},
	models.CategoryOther:             {"другое"},
}

// LLM delegates classification to the generation backend.
type LLM struct {
	completer types.Completer
	logger    *zap.Logger
}

func NewLLM(completer types.Completer, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{completer: completer, logger: logger}
}

func (c *LLM) Classify(ctx context.Context, query string) models.Category {
	reply, err := c.completer.Complete(ctx, []types.Message{
		{Role: types.RoleSystem, Content: llmSystemPrompt},
		{Role: types.RoleUser, Content: query},
	}, 0, 10)
	if err != nil {
		c.logger.Warn("classification backend failed", zap.Error(err))
		return models.CategoryOther
	}

	category, err := ParseReply(reply)
	if err != nil {
		c.logger.Warn("unparseable classification", zap.String("reply", reply), zap.Error(err))
	}
	return category
}

// ParseReply finds the category named in a backend reply. An exact token
// match wins; otherwise the first category whose label occurs in the reply.
func ParseReply(reply string) (models.Category, error) {
	text := strings.ToLower(strings.TrimSpace(reply))
	if text == "" {
		return models.CategoryOther, ErrUnparseable
	}

	token := strings.Trim(text, " \t\n.,:;!\"'`*")
	if c, ok := models.ParseCategory(token); ok {
		return c, nil
	}
	for _, c := range models.Categories {
		for _, label := range aliases[c] {
			if token == label {
				return c, nil
			}
		}
	}

	for _, c := range models.Categories {
		if strings.Contains(text, string(c)) {
			return c, nil
		}
		for _, label := range aliases[c] {
			if strings.Contains(text, label) {
				return c, nil
			}
		}
	}
	return models.CategoryOther, ErrUnparseable
}
