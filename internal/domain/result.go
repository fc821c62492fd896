package domain

// PositionChange records a single store-level change made while executing
// an intent, for the audit trail.
type PositionChange struct {
	Symbol    string   `json:"symbol"`
	Operation string   `json:"operation"` // added, aggregated, removed, reduced, updated
	Quantity  *float64 `json:"quantity,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	Previous  *float64 `json:"previous,omitempty"` // prior quantity, when one existed
	New       *float64 `json:"new,omitempty"`      // resulting quantity, when one remains
}

// MutationResult is the outcome of executing an Intent against a store.
type MutationResult struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	Changes         []PositionChange `json:"changes,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	Error           string           `json:"error,omitempty"`
}
