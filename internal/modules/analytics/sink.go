package analytics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SQLiteSink appends msgpack-encoded traces to the analytics database.
type SQLiteSink struct {
	conn *sql.DB
	log  zerolog.Logger
}

// NewSQLiteSink creates a sink over the analytics database connection.
func NewSQLiteSink(conn *sql.DB, log zerolog.Logger) *SQLiteSink {
	return &SQLiteSink{
		conn: conn,
		log:  log.With().Str("sink", "traces").Logger(),
	}
}

// Append stores one finalized trace.
func (s *SQLiteSink) Append(trace *TriageTrace) error {
	payload, err := msgpack.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}

	_, err = s.conn.Exec(
		`INSERT OR REPLACE INTO triage_traces (correlation_id, created_at, strategy, success, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		trace.CorrelationID, trace.StartedAt.Unix(), trace.Strategy, boolToInt(trace.Success), payload)
	if err != nil {
		return fmt.Errorf("failed to append trace: %w", err)
	}
	return nil
}

// DeleteOlderThan prunes traces started before the cutoff and returns the
// number of rows removed.
func (s *SQLiteSink) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.conn.Exec(`DELETE FROM triage_traces WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune traces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned traces: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("Pruned old traces")
	}
	return n, nil
}

// Load decodes a stored trace by correlation id.
func (s *SQLiteSink) Load(correlationID string) (*TriageTrace, error) {
	var payload []byte
	err := s.conn.QueryRow(
		`SELECT payload FROM triage_traces WHERE correlation_id = ?`, correlationID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}

	var trace TriageTrace
	if err := msgpack.Unmarshal(payload, &trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	return &trace, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
