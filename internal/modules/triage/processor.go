package triage

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
	"github.com/quantive/chatfolio/internal/modules/analytics"
)

// MutationExecutor applies a validated intent to the owner's store.
// Implemented by the portfolio executor.
type MutationExecutor interface {
	Execute(intent *domain.Intent, owner domain.OwnerRef) domain.MutationResult
}

// Metadata carries the structured extras alongside a processor result.
type Metadata struct {
	Intent            *domain.Intent `json:"intent,omitempty"`
	ModelProvider     string         `json:"modelProvider,omitempty"`
	DBOperations      int            `json:"dbOperations"`
	PortfolioModified bool           `json:"portfolioModified"`
	AssetsAffected    []string       `json:"assetsAffected,omitempty"`
	ValueChanged      *float64       `json:"valueChanged,omitempty"`
}

// Result is what the chat pipeline gets back for a query.
type Result struct {
	Success         bool     `json:"success"`
	Content         string   `json:"content"`
	ProcessingType  Strategy `json:"processingType"`
	Confidence      float64  `json:"confidence"`
	ExecutionTimeMs int64    `json:"executionTimeMs"`
	Metadata        Metadata `json:"metadata"`
	Error           string   `json:"error,omitempty"`
}

// Processor runs the triage pipeline: classify, route, optionally enrich,
// execute, trace. Each request is independent; the processor itself holds
// no per-request state.
type Processor struct {
	classifier *Classifier
	completer  *Completer // nil when no generator is configured
	generator  Generator  // nil when no generator is configured
	executor   MutationExecutor
	recorder   *analytics.Recorder
	provider   string
	log        zerolog.Logger
}

// NewProcessor wires the pipeline. generator may be nil; in that case
// hybrid and model-only strategies degrade to an unavailable answer.
func NewProcessor(
	classifier *Classifier,
	completer *Completer,
	generator Generator,
	executor MutationExecutor,
	recorder *analytics.Recorder,
	provider string,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		classifier: classifier,
		completer:  completer,
		generator:  generator,
		executor:   executor,
		recorder:   recorder,
		provider:   provider,
		log:        log.With().Str("component", "triage_processor").Logger(),
	}
}

// ProcessQuery converts raw chat text into a validated mutation or query
// against the owner's portfolio and returns the structured outcome.
func (p *Processor) ProcessQuery(ctx context.Context, text string, owner domain.OwnerRef) Result {
	start := time.Now()
	trace := analytics.NewTrace(ownerKind(owner), text)

	intent := p.classifier.Classify(text)
	trace.Mark("classified")

	strategy := Route(intent, text)
	confidence := 0.0
	if intent != nil {
		confidence = intent.Confidence
	}

	if strategy == StrategyHybrid {
		enriched, ok := p.enrich(ctx, intent, text, trace)
		if !ok {
			// Completion failed or was discarded; reprocess the whole
			// query through the model instead.
			strategy = StrategyModel
		} else {
			intent = enriched
			confidence = intent.Confidence
		}
	}

	var result Result
	switch strategy {
	case StrategyRule, StrategyHybrid:
		result = p.executeIntent(intent, owner, trace)
	case StrategyModel:
		result = p.modelOnly(ctx, text, trace)
	}

	result.ProcessingType = strategy
	result.Confidence = confidence
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	trace.Finalize(string(strategy), confidence, result.Success, truncate(result.Content, 200), result.Error)
	if p.recorder != nil {
		p.recorder.Record(trace)
	}

	p.log.Info().
		Str("correlation_id", trace.CorrelationID).
		Str("strategy", string(strategy)).
		Float64("confidence", confidence).
		Bool("success", result.Success).
		Int64("elapsed_ms", result.ExecutionTimeMs).
		Msg("Query processed")

	return result
}

// enrich runs hybrid completion. A false return means the attempt was
// discarded and the caller should fall back to model-only handling.
func (p *Processor) enrich(ctx context.Context, intent *domain.Intent, text string, trace *analytics.TriageTrace) (*domain.Intent, bool) {
	missing := intent.MissingFields()
	if len(missing) == 0 {
		// Moderately confident but nothing to fill; the intent is usable
		// as it stands.
		return intent, true
	}
	if p.completer == nil {
		return nil, false
	}

	enriched, err := p.completer.Complete(ctx, intent, text, missing)
	trace.Mark("enriched")
	if err != nil {
		p.log.Debug().Err(err).Msg("Hybrid completion discarded")
		return nil, false
	}
	return enriched, true
}

func (p *Processor) executeIntent(intent *domain.Intent, owner domain.OwnerRef, trace *analytics.TriageTrace) Result {
	mutation := p.executor.Execute(intent, owner)
	trace.Mark("applied")

	meta := Metadata{
		Intent:            intent,
		DBOperations:      len(mutation.Changes),
		PortfolioModified: mutation.Success && intent.Action.IsMutation(),
	}
	for _, change := range mutation.Changes {
		meta.AssetsAffected = append(meta.AssetsAffected, change.Symbol)
	}
	if len(meta.AssetsAffected) == 0 && intent.Symbol != domain.SymbolAll {
		meta.AssetsAffected = []string{intent.Symbol}
	}
	if mutation.Success && intent.Action == domain.ActionAdd && intent.HasQuantity() && intent.HasPrice() {
		v := *intent.Quantity * *intent.Price
		meta.ValueChanged = &v
	}

	return Result{
		Success:  mutation.Success,
		Content:  mutation.Message,
		Metadata: meta,
		Error:    mutation.Error,
	}
}

// modelOnly hands the whole query to the text-generation service for
// open-ended reasoning.
func (p *Processor) modelOnly(ctx context.Context, text string, trace *analytics.TriageTrace) Result {
	if p.generator == nil {
		return Result{
			Success: false,
			Content: "I couldn't understand that as a portfolio command, and free-form answers are not available right now.",
			Error:   "text generation not configured",
		}
	}

	reply, err := p.generator.Generate(ctx, buildModelPrompt(text))
	trace.Mark("generated")
	if err != nil {
		p.log.Warn().Err(err).Msg("Model-only generation failed")
		return Result{
			Success: false,
			Content: "I couldn't process that request right now. Please try again.",
			Error:   (&domain.UpstreamError{Op: "generate", Err: err}).Error(),
		}
	}

	return Result{
		Success:  true,
		Content:  reply,
		Metadata: Metadata{ModelProvider: p.provider},
	}
}

func buildModelPrompt(text string) string {
	return "You are a portfolio assistant. Answer the user's question about " +
		"investing or their holdings in plain, non-technical language. If the " +
		"request is a command you cannot execute, explain what the user should " +
		"say instead.\n\nUser: " + text
}

func ownerKind(owner domain.OwnerRef) string {
	if owner.Guest {
		return "guest"
	}
	return "user"
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
