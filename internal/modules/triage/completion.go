package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/domain"
)

// Generator is the contract for the external text-generation service:
// prompt in, text out. The only implementation in production is the Gemini
// client; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Completion payload acceptance threshold: the model's self-reported
// confidence must be at least this high or the attempt is discarded.
const completionMinConfidence = 0.7

// completionBoost is added to the intent's own confidence after a
// successful merge, capped at 1.0.
const completionBoost = 0.1

// completionPayload is the strict schema a completion reply must match.
// Anything else - extra fields, wrong types, prose - is rejected wholesale;
// an unvalidated payload is never partially merged.
type completionPayload struct {
	Quantity   *float64 `json:"quantity"`
	Price      *float64 `json:"price"`
	Confidence float64  `json:"confidence"`
}

// Completer fills missing intent fields through the text-generation
// service. Any failure degrades to model-only handling of the original
// query, never to a half-applied mutation.
type Completer struct {
	gen     Generator
	timeout time.Duration
	log     zerolog.Logger
}

// NewCompleter creates a hybrid completer over a generator.
func NewCompleter(gen Generator, timeout time.Duration, log zerolog.Logger) *Completer {
	return &Completer{
		gen:     gen,
		timeout: timeout,
		log:     log.With().Str("component", "completer").Logger(),
	}
}

// Complete asks the service for the missing fields and merges them into a
// copy of the intent. Fields the classifier already extracted are never
// overwritten. The returned error means the attempt was discarded and the
// caller should fall through to model-only processing.
func (c *Completer) Complete(ctx context.Context, intent *domain.Intent, text string, missing []string) (*domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildCompletionPrompt(intent, text, missing)
	reply, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "completion", Err: err}
	}

	payload, err := parseCompletionPayload(reply)
	if err != nil {
		c.log.Debug().Err(err).Msg("Discarding unparseable completion reply")
		return nil, &domain.UpstreamError{Op: "completion", Err: err}
	}

	if payload.Confidence < completionMinConfidence {
		return nil, fmt.Errorf("completion self-reported confidence %.2f below %.2f",
			payload.Confidence, completionMinConfidence)
	}

	// Merge only what was missing; known fields always win.
	enriched := *intent
	if enriched.Quantity == nil && payload.Quantity != nil && *payload.Quantity > 0 {
		enriched.Quantity = payload.Quantity
	}
	if enriched.Price == nil && payload.Price != nil && *payload.Price > 0 {
		enriched.Price = payload.Price
	}
	enriched.Confidence = clamp01(enriched.Confidence + completionBoost)

	return &enriched, nil
}

// buildCompletionPrompt constrains the service to a small structured
// payload instead of free text.
func buildCompletionPrompt(intent *domain.Intent, text string, missing []string) string {
	var b strings.Builder
	b.WriteString("You extract structured fields from portfolio commands.\n")
	fmt.Fprintf(&b, "User request: %q\n", text)
	fmt.Fprintf(&b, "Parsed so far: action=%s symbol=%s", intent.Action, intent.Symbol)
	if intent.HasQuantity() {
		fmt.Fprintf(&b, " quantity=%g", *intent.Quantity)
	}
	if intent.HasPrice() {
		fmt.Fprintf(&b, " price=%g", *intent.Price)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Missing fields: %s\n", strings.Join(missing, ", "))
	b.WriteString("Reply with a single JSON object and nothing else, using only these keys: ")
	b.WriteString(`{"quantity": number or null, "price": number or null, "confidence": number between 0 and 1}` + "\n")
	b.WriteString("Set a field to null if the request does not imply a value for it. ")
	b.WriteString("Report your confidence honestly; low confidence is a valid answer.")
	return b.String()
}

// parseCompletionPayload extracts and strictly decodes the JSON object in
// a reply. Unknown fields fail the decode.
func parseCompletionPayload(reply string) (*completionPayload, error) {
	raw := extractJSONObject(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var payload completionPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("completion payload does not match schema: %w", err)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, fmt.Errorf("completion confidence %v out of range", payload.Confidence)
	}
	return &payload, nil
}

// extractJSONObject pulls the first top-level {...} out of a reply,
// tolerating markdown fences around it.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
