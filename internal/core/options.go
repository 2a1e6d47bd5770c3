package core

import (
	"context"
	"time"

	"benchcore/internal/tasks"
)

// Clock supplies the current time to the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock. A nil ClockFunc reports the
// current UTC time.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus describes the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures a single audited service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for completed operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended once per operation with its final error.
type TraceSpan interface {
	End(err error)
}

// Tracer starts a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// Authorizer reports whether the caller may mutate state.
type Authorizer interface {
	CanEdit(ctx context.Context) bool
}

// AuthorizerFunc adapts a function into an Authorizer.
type AuthorizerFunc func(ctx context.Context) bool

// CanEdit implements Authorizer.
func (f AuthorizerFunc) CanEdit(ctx context.Context) bool { return f(ctx) }

// AllowAll grants edit capability to every caller.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context) bool { return true })

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type serviceOptions struct {
	clock         Clock
	logger        Logger
	audit         AuditRecorder
	metrics       MetricsRecorder
	tracer        Tracer
	authorizer    Authorizer
	publisher     EventPublisher
	policy        tasks.Policy
	shelfLifeDays int
	defaultPeriod int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:     noopLogger{},
		audit:      noopAuditRecorder{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		authorizer: AllowAll,
		publisher:  noopPublisher{},
		policy:     tasks.DefaultPolicy(),
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the time source used for date arithmetic.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuthorizer sets the edit capability check applied to mutations.
func WithAuthorizer(authorizer Authorizer) ServiceOption {
	return func(o *serviceOptions) {
		if authorizer != nil {
			o.authorizer = authorizer
		}
	}
}

// WithEventPublisher sets the sink for post-commit events.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(o *serviceOptions) {
		if publisher != nil {
			o.publisher = publisher
		}
	}
}

// WithTaskPolicy overrides the task generation thresholds.
func WithTaskPolicy(policy tasks.Policy) ServiceOption {
	return func(o *serviceOptions) {
		o.policy = policy
	}
}

// WithCompositeShelfLifeDays sets the expiry applied to composites whose
// sources carry no expiry date.
func WithCompositeShelfLifeDays(days int) ServiceOption {
	return func(o *serviceOptions) {
		o.shelfLifeDays = days
	}
}

// WithDefaultValidationPeriod sets the period applied to equipment created
// without one.
func WithDefaultValidationPeriod(days int) ServiceOption {
	return func(o *serviceOptions) {
		o.defaultPeriod = days
	}
}
