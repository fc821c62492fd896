package analytics

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink persists finalized traces. Append failures must never propagate to
// the request path.
type Sink interface {
	Append(trace *TriageTrace) error
}

// Recorder fans a finalized trace out to the sink, a bounded in-memory
// ring for local inspection, and any live subscribers. Safe for concurrent
// use.
type Recorder struct {
	mu          sync.RWMutex
	ring        []*TriageTrace
	ringSize    int
	next        int
	filled      bool
	subscribers map[int]chan *TriageTrace
	subSeq      int
	sink        Sink
	log         zerolog.Logger
}

// NewRecorder creates a recorder with a ring of ringSize entries. sink may
// be nil, in which case traces are only kept in the ring.
func NewRecorder(ringSize int, sink Sink, log zerolog.Logger) *Recorder {
	if ringSize <= 0 {
		ringSize = 64
	}
	return &Recorder{
		ring:        make([]*TriageTrace, ringSize),
		ringSize:    ringSize,
		subscribers: make(map[int]chan *TriageTrace),
		sink:        sink,
		log:         log.With().Str("component", "trace_recorder").Logger(),
	}
}

// Record accepts a finalized trace. Sink errors are logged and swallowed;
// slow subscribers are skipped rather than blocked on.
func (r *Recorder) Record(trace *TriageTrace) {
	r.mu.Lock()
	r.ring[r.next] = trace
	r.next = (r.next + 1) % r.ringSize
	if r.next == 0 {
		r.filled = true
	}
	subs := make([]chan *TriageTrace, 0, len(r.subscribers))
	for _, ch := range r.subscribers {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- trace:
		default:
		}
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.Append(trace); err != nil {
		r.log.Warn().Err(err).Str("correlation_id", trace.CorrelationID).Msg("Trace sink append failed")
	}
}

// Recent returns the ring's contents, newest first.
func (r *Recorder) Recent() []*TriageTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	if r.filled {
		count = r.ringSize
	}
	out := make([]*TriageTrace, 0, count)
	for i := 1; i <= count; i++ {
		idx := (r.next - i + r.ringSize) % r.ringSize
		if r.ring[idx] != nil {
			out = append(out, r.ring[idx])
		}
	}
	return out
}

// Subscribe registers a live trace feed. The returned cancel func must be
// called when the consumer goes away.
func (r *Recorder) Subscribe() (<-chan *TriageTrace, func()) {
	ch := make(chan *TriageTrace, 16)

	r.mu.Lock()
	id := r.subSeq
	r.subSeq++
	r.subscribers[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
	return ch, cancel
}
