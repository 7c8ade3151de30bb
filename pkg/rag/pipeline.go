// Package rag answers 3D-printing questions: it classifies the question,
// retrieves matching chunks, asks the generation backend for an answer and
// checks it for hazards.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/internal/types"
	"github.com/xhad/printdesk/pkg/classify"
	"github.com/xhad/printdesk/pkg/corpus"
	"github.com/xhad/printdesk/pkg/safety"
)

// OutOfDomainAnswer is returned for questions that are not about 3D printing.
const OutOfDomainAnswer = "Я специализируюсь на вопросах о 3D-печати. " +
	"Пожалуйста, задайте вопрос по этой теме (например, о выборе принтера, " +
	"настройке печати, устранении дефектов)."

const maxTopK = 50

// domainTerms gate the pipeline: a question must mention at least one.
var domainTerms = []string{
	"принтер", "печат", "3d", "pla", "abs", "petg", "сопло",
	"экструдер", "слайсер", "филамент", "модель", "слой",
}

// Settings tune generation and retrieval.
type Settings struct {
	DefaultTopK       int
	ContextChars      int
	Temperature       float64
	MaxTokens         int
	GenerationTimeout time.Duration
	MaxConcurrency    int
}

func (s *Settings) applyDefaults() {
	if s.DefaultTopK <= 0 {
		s.DefaultTopK = 3
	}
	if s.ContextChars <= 0 {
		s.ContextChars = 800
	}
	if s.Temperature == 0 {
		s.Temperature = 0.4
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 1200
	}
	if s.GenerationTimeout <= 0 {
		s.GenerationTimeout = 60 * time.Second
	}
	if s.MaxConcurrency <= 0 {
		s.MaxConcurrency = 4
	}
}

// Options are the collaborators of a Pipeline. Corpus is required; a nil
// Index or Embedder leaves only lexical retrieval, a nil Classifier means
// keyword rules.
type Options struct {
	Corpus     []models.Chunk
	Index      VectorSearcher
	Embedder   types.Embedder
	Completer  types.Completer
	Classifier classify.Classifier
	Settings   Settings
	Metrics    *Metrics
	Logger     *zap.Logger
}

// Pipeline is built once at startup and shared by all queries. Nothing in it
// is mutated after New returns, so Query is safe for concurrent use.
type Pipeline struct {
	corpus         []models.Chunk
	searcher       VectorSearcher
	embedder       types.Embedder
	completer      types.Completer
	classifier     classify.Classifier
	settings       Settings
	metrics        *Metrics
	logger         *zap.Logger
	sem            *semaphore.Weighted
	vectorDisabled string
}

// Request is a single question.
type Request struct {
	Question         string
	TopK             int
	DialogContext    string
	EnableValidation bool
}

func New(opts Options) (*Pipeline, error) {
	if len(opts.Corpus) == 0 {
		return nil, corpus.ErrEmptyCorpus
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.NewKeyword()
	}
	settings := opts.Settings
	settings.applyDefaults()

	p := &Pipeline{
		corpus:     opts.Corpus,
		searcher:   opts.Index,
		embedder:   opts.Embedder,
		completer:  opts.Completer,
		classifier: classifier,
		settings:   settings,
		metrics:    opts.Metrics,
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(settings.MaxConcurrency)),
	}

	reason, err := checkIndex(opts.Index, opts.Embedder, opts.Corpus)
	p.vectorDisabled = reason
	if reason != "" {
		logger.Warn("vector search disabled for this session, using lexical ranking",
			zap.String("reason", reason), zap.Error(err))
	} else {
		logger.Info("vector search enabled",
			zap.Int("vectors", opts.Index.Len()), zap.String("embedder", opts.Embedder.ModelInfo()))
	}
	return p, nil
}

// CorpusSize returns the number of loaded chunks.
func (p *Pipeline) CorpusSize() int { return len(p.corpus) }

// VectorSearch reports whether the vector path is in use.
func (p *Pipeline) VectorSearch() bool { return p.vectorDisabled == "" }

// InDomain reports whether the question mentions any 3D-printing term.
func InDomain(question string) bool {
	q := strings.ToLower(question)
	for _, term := range domainTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// Query answers a question. Backend and index problems never surface as
// errors; they degrade to lexical ranking or the fallback answer. The only
// error is the caller's context ending between stages.
func (p *Pipeline) Query(ctx context.Context, req Request) (*models.Response, error) {
	logger := p.logger.With(zap.String("query_id", uuid.NewString()))
	stage := StageIdle
	abandoned := func() (*models.Response, error) {
		last := stage
		stage = StageErrored
		logger.Info("query abandoned", zap.Stringer("after", last), zap.Error(ctx.Err()))
		return nil, fmt.Errorf("query abandoned after stage %s: %w", last, ctx.Err())
	}
	if ctx.Err() != nil {
		return abandoned()
	}

	if !InDomain(req.Question) {
		p.metrics.countOutOfDomain()
		logger.Info("question outside the domain")
		return &models.Response{Category: models.CategoryOther, Answer: OutOfDomainAnswer, Sources: []string{}}, nil
	}

	start := time.Now()
	category := p.classifier.Classify(ctx, req.Question)
	stage = StageClassified
	p.metrics.observeStage(stage, start)
	logger = logger.With(zap.String("category", string(category)))
	if ctx.Err() != nil {
		return abandoned()
	}

	start = time.Now()
	retrieval := p.retrieve(ctx, logger, req.Question, p.topK(req.TopK))
	stage = StageRetrieved
	p.metrics.observeStage(stage, start)
	p.metrics.countDegraded(retrieval.Degraded)
	logger.Debug("retrieved",
		zap.String("path", string(retrieval.Path)),
		zap.Int("hits", len(retrieval.Hits)),
		zap.String("degraded", retrieval.Degraded))
	if ctx.Err() != nil {
		return abandoned()
	}

	start = time.Now()
	generation := p.generate(ctx, logger, req.Question, category, req.DialogContext, retrieval.Hits)
	stage = StageGenerated
	p.metrics.observeStage(stage, start)
	p.metrics.countDegraded(generation.Reason)
	if ctx.Err() != nil {
		return abandoned()
	}

	answer := generation.Answer
	if req.EnableValidation {
		start = time.Now()
		if validated := safety.Validate(answer); validated != answer {
			logger.Info("hazard term in answer, safety notice added")
			answer = validated
		}
		stage = StageValidated
		p.metrics.observeStage(stage, start)
	}

	stage = StageDone
	p.metrics.countQuery(string(category))
	logger.Info("query answered",
		zap.String("path", string(retrieval.Path)),
		zap.Bool("fallback", generation.Fallback),
		zap.String("reason", generation.Reason))

	return &models.Response{
		Category: category,
		Answer:   answer,
		Sources:  Sources(generation.Used),
	}, nil
}

func (p *Pipeline) topK(requested int) int {
	switch {
	case requested <= 0:
		return p.settings.DefaultTopK
	case requested > maxTopK:
		return maxTopK
	default:
		return requested
	}
}
