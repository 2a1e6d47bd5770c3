package core

import (
	"context"
	"errors"
	"time"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/internal/tasks"
	"benchcore/pkg/domain"
)

// Service runs named operations against a persistent store. Every operation
// executes in exactly one store transaction, re-evaluates maintenance tasks for
// the records it touched, and publishes its effects after commit.
//
// When a durable store commits in memory but fails to write the snapshot
// through, the operation returns an error matching domain.ErrNotPersisted.
// The committed state stands and its events are still published; the next
// successful commit persists it.
type Service struct {
	store         PersistentStore
	engine        *RulesEngine
	now           func() time.Time
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

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{
		store:         store,
		engine:        extractRulesEngine(store),
		now:           selectNowFunc(store, options.clock),
		logger:        options.logger,
		audit:         options.audit,
		metrics:       options.metrics,
		tracer:        options.tracer,
		authorizer:    options.authorizer,
		publisher:     options.publisher,
		policy:        options.policy,
		shelfLifeDays: options.shelfLifeDays,
		defaultPeriod: options.defaultPeriod,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. The
// store shares the service clock so record timestamps and date arithmetic
// agree.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	var storeOpts []memory.Option
	if options.clock != nil {
		storeOpts = append(storeOpts, memory.WithNowFunc(options.clock.Now))
	}
	return NewService(memory.NewStore(engine, storeOpts...), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated at commit, when the store exposes it.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// Now reports the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// View runs fn against a read-only snapshot of committed state.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(rulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

// selectNowFunc prefers an explicit clock, then the store's clock, then UTC now.
func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return clock.Now
	}
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return fn
		}
	}
	return ClockFunc(nil).Now
}

// run executes fn in one store transaction with the capability gate, tracing,
// metrics, audit and logging applied uniformly. Events collected by fn are
// published only after a successful commit.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction, fx *effects) error) (Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	s.logger.Debug("operation started", "operation", op)

	var (
		fx  effects
		res Result
		err error
	)
	if meta, known := operations[op]; known && meta.mutates && !s.authorizer.CanEdit(ctx) {
		err = domain.ErrEditNotAllowed
	} else {
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			fx = effects{}
			return fn(tx, &fx)
		})
	}
	duration := time.Since(start)

	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, fx.entityID, err, duration)
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		s.logFailure(op, err, duration)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Error("commit not persisted", "operation", op, "entity_id", fx.entityID, "error", err, "duration", duration)
	} else {
		s.logger.Debug("operation finished", "operation", op, "entity_id", fx.entityID, "duration", duration)
	}
	s.publish(ctx, op, fx.events)
	return res, err
}

func (s *Service) logFailure(op string, err error, duration time.Duration) {
	switch outcomeOf(err) {
	case OutcomeBlocked:
		var rv RuleViolationError
		errors.As(err, &rv)
		for _, v := range rv.Result.Violations {
			s.logger.Warn("operation blocked", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	case OutcomeRejected:
		s.logger.Warn("operation rejected", "operation", op, "error", err, "duration", duration)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err, "duration", duration)
	}
}

func (s *Service) publish(ctx context.Context, op string, events []Event) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed", "operation", op, "event", string(event.Type), "entity_id", event.EntityID, "error", err)
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, err error, duration time.Duration) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// evaluateTasks is the post-mutation hook: it re-runs the task generator for
// one record and queues task.created events for anything it opened.
func (s *Service) evaluateTasks(tx Transaction, fx *effects, entity EntityType, id string, now time.Time) error {
	created, err := tasks.Evaluate(tx, entity, id, now, s.policy)
	if err != nil {
		return err
	}
	for _, task := range created {
		fx.emit(EventTaskCreated, domain.EntityTask, task.ID, now, task)
	}
	return nil
}
