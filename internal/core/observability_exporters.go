package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"time"

	"benchcore/pkg/domain"
)

// Operation outcomes reported by spans.
const (
	OutcomeOK           = "ok"
	OutcomeRejected     = "rejected"
	OutcomeBlocked      = "blocked"
	OutcomeNotPersisted = "not_persisted"
	OutcomeFailed       = "failed"
)

// outcomeOf classifies an operation error. Domain rejections and rule blocks
// are expected outcomes; anything else is a failure.
func outcomeOf(err error) string {
	var rv RuleViolationError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &rv):
		return OutcomeBlocked
	case errors.Is(err, domain.ErrNotPersisted):
		return OutcomeNotPersisted
	case errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrInvariantViolation),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrEditNotAllowed):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// ExpvarRecorder publishes per-operation counters as one expvar map, served
// at /debug/vars next to the runtime memstats. Each operation holds "ok",
// "failed" and "duration_ms" entries.
type ExpvarRecorder struct {
	name string
	mu   sync.Mutex
	ops  *expvar.Map
}

// NewExpvarRecorder publishes a recorder under name. expvar names are process
// global, so publishing the same name twice is an error.
func NewExpvarRecorder(name string) (*ExpvarRecorder, error) {
	if name == "" {
		return nil, errors.New("expvar name required")
	}
	if expvar.Get(name) != nil {
		return nil, fmt.Errorf("expvar %q already published", name)
	}
	return &ExpvarRecorder{name: name, ops: expvar.NewMap(name)}, nil
}

// Name returns the published expvar name.
func (r *ExpvarRecorder) Name() string { return r.name }

func (r *ExpvarRecorder) operation(op string) *expvar.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.ops.Get(op).(*expvar.Map); ok {
		return m
	}
	m := new(expvar.Map).Init()
	r.ops.Set(op, m)
	return m
}

// Observe implements MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	m := r.operation(operation)
	if success {
		m.Add("ok", 1)
	} else {
		m.Add("failed", 1)
	}
	m.AddFloat("duration_ms", float64(duration)/float64(time.Millisecond))
}

// Counts reports the ok and failed totals recorded for operation.
func (r *ExpvarRecorder) Counts(operation string) (ok, failed int64) {
	m, found := r.ops.Get(operation).(*expvar.Map)
	if !found {
		return 0, 0
	}
	if v, isInt := m.Get("ok").(*expvar.Int); isInt {
		ok = v.Value()
	}
	if v, isInt := m.Get("failed").(*expvar.Int); isInt {
		failed = v.Value()
	}
	return ok, failed
}

// SpanRecord is one JSON line written by JSONTracer.
type SpanRecord struct {
	Operation  string     `json:"operation"`
	Entity     EntityType `json:"entity,omitempty"`
	Action     Action     `json:"action,omitempty"`
	Outcome    string     `json:"outcome"`
	DurationMS float64    `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
}

// JSONTracer writes one JSON line per finished operation.
type JSONTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONTracer writes spans to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{enc: json.NewEncoder(w), now: func() time.Time { return time.Now().UTC() }}
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: t.now()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	meta := operations[s.operation]
	rec := SpanRecord{
		Operation:  s.operation,
		Entity:     meta.entity,
		Action:     meta.action,
		Outcome:    outcomeOf(err),
		DurationMS: float64(s.tracer.now().Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	_ = s.tracer.enc.Encode(rec)
}
