// Package analytics provides per-request triage tracing and the
// fire-and-forget sink the pipeline reports into.
package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a single timestamped step in a request's life.
type Stage struct {
	Name      string    `json:"name" msgpack:"name"`
	At        time.Time `json:"at" msgpack:"at"`
	ElapsedMs int64     `json:"elapsedMs" msgpack:"elapsed_ms"`
}

// TriageTrace is the per-request record: correlation id, stage timings,
// the chosen strategy and the outcome summary. It is created at request
// start, appended to at each stage and finalized exactly once.
type TriageTrace struct {
	CorrelationID string    `json:"correlationId" msgpack:"correlation_id"`
	StartedAt     time.Time `json:"startedAt" msgpack:"started_at"`
	OwnerKind     string    `json:"ownerKind" msgpack:"owner_kind"` // "user" or "guest"
	Query         string    `json:"query" msgpack:"query"`
	Stages        []Stage   `json:"stages" msgpack:"stages"`
	Strategy      string    `json:"strategy" msgpack:"strategy"`
	Confidence    float64   `json:"confidence" msgpack:"confidence"`
	Success       bool      `json:"success" msgpack:"success"`
	Summary       string    `json:"summary" msgpack:"summary"`
	ErrorDetail   string    `json:"errorDetail,omitempty" msgpack:"error_detail"`
	DurationMs    int64     `json:"durationMs" msgpack:"duration_ms"`

	finalized bool
}

// NewTrace starts a trace for one request.
func NewTrace(ownerKind, query string) *TriageTrace {
	return &TriageTrace{
		CorrelationID: uuid.New().String(),
		StartedAt:     time.Now().UTC(),
		OwnerKind:     ownerKind,
		Query:         query,
	}
}

// Mark appends a stage timestamped now.
func (t *TriageTrace) Mark(stage string) {
	now := time.Now().UTC()
	t.Stages = append(t.Stages, Stage{
		Name:      stage,
		At:        now,
		ElapsedMs: now.Sub(t.StartedAt).Milliseconds(),
	})
}

// Finalize stamps the outcome. Repeated calls are ignored so a trace is
// emitted at most once.
func (t *TriageTrace) Finalize(strategy string, confidence float64, success bool, summary, errorDetail string) {
	if t.finalized {
		return
	}
	t.finalized = true
	t.Strategy = strategy
	t.Confidence = confidence
	t.Success = success
	t.Summary = summary
	t.ErrorDetail = errorDetail
	t.DurationMs = time.Since(t.StartedAt).Milliseconds()
}
