package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"testing"
	"time"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRunRecordsAuditMetricsAndSpans(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	donor := mustDonor(t, svc)
	entry := audit.last(t)
	if entry.Operation != OpCreateDonor || entry.Entity != domain.EntityDonor || entry.Action != ActionCreate {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.EntityID != donor.ID || entry.Status != AuditStatusSuccess || !entry.Timestamp.Equal(testNow) {
		t.Fatalf("unexpected audit entry %+v", entry)
	}

	_, _, err := svc.SetCultureStatus(ctx, "missing", domain.CultureFrozen)
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	entry = audit.last(t)
	if entry.Status != AuditStatusError || entry.Error == "" || entry.EntityID != "missing" {
		t.Fatalf("unexpected failure audit entry %+v", entry)
	}

	if len(metrics.calls) != 2 || !metrics.calls[0].success || metrics.calls[1].success || metrics.calls[1].op != OpSetCultureStatus {
		t.Fatalf("unexpected metric calls %+v", metrics.calls)
	}
	if len(tracer.spans) != 2 || tracer.spans[0].err != nil || tracer.spans[1].err == nil {
		t.Fatalf("unexpected spans %+v", tracer.spans)
	}
}

func TestRunLogsByFailureKind(t *testing.T) {
	logger := &captureLogger{}
	svc := newTestService(t, WithLogger(logger))
	ctx := context.Background()

	mustDonor(t, svc)
	if !logger.has("d:operation started") || !logger.has("d:operation finished") {
		t.Fatalf("expected debug lifecycle logs, got %v", logger.calls)
	}
	_, _, _ = svc.ApproveConsumable(ctx, "missing")
	if !logger.has("w:operation rejected") {
		t.Fatalf("expected domain error at warn, got %v", logger.calls)
	}
	_, _ = svc.run(ctx, OpSweep, func(Transaction, *effects) error { return errors.New("disk full") })
	if !logger.has("e:operation failed") {
		t.Fatalf("expected unexpected error at error level, got %v", logger.calls)
	}
}

func TestAuthorizerGatesMutations(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc := newTestService(t, WithAuditRecorder(audit), WithAuthorizer(AuthorizerFunc(func(context.Context) bool { return false })))
	ctx := context.Background()

	if _, _, err := svc.CreateDonor(ctx, domain.Donor{Code: "D-9"}); !errors.Is(err, domain.ErrEditNotAllowed) {
		t.Fatalf("expected edit to be refused, got %v", err)
	}
	if _, _, err := svc.Sweep(ctx); !errors.Is(err, domain.ErrEditNotAllowed) {
		t.Fatalf("expected sweep to be refused, got %v", err)
	}
	if audit.last(t).Status != AuditStatusError {
		t.Fatalf("expected refused edit to be audited as an error")
	}
	_ = svc.View(ctx, func(v TransactionView) error {
		if len(v.ListDonors()) != 0 {
			t.Fatalf("refused edit must not commit")
		}
		return nil
	})
}

func TestPublishFailureIsLoggedOnly(t *testing.T) {
	logger := &captureLogger{}
	pub := &capturePublisher{err: errors.New("broker down")}
	svc := newTestService(t, WithLogger(logger), WithEventPublisher(pub))

	item := mustApprovedItem(t, svc, "FBS", "500", "10")
	if _, _, err := svc.ConsumeStock(context.Background(), item.ID, dec("10"), ""); err != nil {
		t.Fatalf("publish failure must not fail the operation: %v", err)
	}
	if !logger.has("w:event publish failed") {
		t.Fatalf("expected publish failure to be logged, got %v", logger.calls)
	}
}

func TestClockSelection(t *testing.T) {
	if got := ClockFunc(nil).Now(); got.Location() != time.UTC {
		t.Fatalf("expected UTC default clock, got %v", got.Location())
	}
	local := time.Date(2026, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	if got := ClockFunc(func() time.Time { return local }).Now(); !got.Equal(local) || got.Location() != time.UTC {
		t.Fatalf("expected clock normalised to UTC, got %v", got)
	}

	fixed := testNow.Add(time.Hour)
	store := memory.NewStore(nil, memory.WithNowFunc(func() time.Time { return fixed }))
	if got := selectNowFunc(store, nil)(); !got.Equal(fixed) {
		t.Fatalf("expected store clock, got %v", got)
	}
	if got := selectNowFunc(store, stubClock{now: testNow})(); !got.Equal(testNow) {
		t.Fatalf("expected explicit clock to win, got %v", got)
	}

	engine := NewDefaultRulesEngine()
	svc := NewService(memory.NewStore(engine))
	if svc.RulesEngine() != engine {
		t.Fatalf("expected service to expose the store engine")
	}
}

func TestExpvarRecorderCountsPerOperation(t *testing.T) {
	rec, err := NewExpvarRecorder("benchcore_test_ops")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	svc := newTestService(t, WithMetricsRecorder(rec))
	mustDonor(t, svc)
	_, _, _ = svc.CreateDonor(context.Background(), domain.Donor{})

	if ok, failed := rec.Counts(OpCreateDonor); ok != 1 || failed != 1 {
		t.Fatalf("expected 1 ok and 1 failed, got %d/%d", ok, failed)
	}
	if ok, failed := rec.Counts(OpSweep); ok != 0 || failed != 0 {
		t.Fatalf("expected no counts for an unseen operation, got %d/%d", ok, failed)
	}
	published, isMap := expvar.Get(rec.Name()).(*expvar.Map)
	if !isMap {
		t.Fatalf("expected %s to be published as a map", rec.Name())
	}
	var decoded map[string]map[string]float64
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded[OpCreateDonor]["ok"] != 1 || decoded[OpCreateDonor]["duration_ms"] < 0 {
		t.Fatalf("unexpected expvar payload %v", decoded)
	}

	if _, err := NewExpvarRecorder(rec.Name()); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
	if _, err := NewExpvarRecorder(""); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
}

func TestJSONTracerClassifiesOutcomes(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(t, WithTracer(NewJSONTracer(&buf)))
	ctx := context.Background()

	mustDonor(t, svc)
	_, _, _ = svc.SetCultureStatus(ctx, "missing", domain.CultureFrozen)
	_, _ = svc.run(ctx, OpSweep, func(Transaction, *effects) error { return errors.New("disk full") })

	dec := json.NewDecoder(&buf)
	var spans []SpanRecord
	for dec.More() {
		var rec SpanRecord
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode span: %v", err)
		}
		spans = append(spans, rec)
	}
	if len(spans) != 3 {
		t.Fatalf("expected three spans, got %+v", spans)
	}
	if spans[0].Operation != OpCreateDonor || spans[0].Entity != domain.EntityDonor || spans[0].Action != ActionCreate || spans[0].Outcome != OutcomeOK || spans[0].Error != "" {
		t.Fatalf("unexpected create span %+v", spans[0])
	}
	if spans[1].Outcome != OutcomeRejected || spans[1].Entity != domain.EntityCulture || spans[1].Error == "" {
		t.Fatalf("unexpected rejected span %+v", spans[1])
	}
	if spans[2].Outcome != OutcomeFailed || spans[2].Error != "disk full" {
		t.Fatalf("unexpected failed span %+v", spans[2])
	}
}

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("wrap: %w", domain.ErrIllegalTransition), OutcomeRejected},
		{RuleViolationError{}, OutcomeBlocked},
		{domain.PersistError{Backend: "sqlite", Err: errors.New("locked")}, OutcomeNotPersisted},
		{errors.New("boom"), OutcomeFailed},
	}
	for _, tc := range cases {
		if got := outcomeOf(tc.err); got != tc.want {
			t.Fatalf("outcomeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	capture := &captureMetricsRecorder{}
	svc := newTestService(t, WithMetricsRecorder(MultiMetricsRecorder{rec, capture, nil}))
	mustDonor(t, svc)
	_, _, _ = svc.CreateDonor(context.Background(), domain.Donor{})

	if len(capture.calls) != 2 {
		t.Fatalf("expected fan-out to every recorder, got %d", len(capture.calls))
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var histogram *dto.MetricFamily
	for _, mf := range families {
		switch mf.GetName() {
		case "benchcore_operations_total":
			for _, m := range mf.GetMetric() {
				counts[labelValue(m, "status")] += m.GetCounter().GetValue()
			}
		case "benchcore_operation_duration_seconds":
			histogram = mf
		}
	}
	if counts["success"] != 1 || counts["error"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if histogram == nil || histogram.GetMetric()[0].GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected two duration samples")
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// unpersistedStore commits in memory and then fails the write-through.
type unpersistedStore struct {
	*memory.Store
}

func (s unpersistedStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, domain.PersistError{Backend: "test", Err: errors.New("disk full")}
}

func TestUnpersistedCommitStillPublishes(t *testing.T) {
	logger := &captureLogger{}
	pub := &capturePublisher{}
	store := unpersistedStore{memory.NewStore(NewDefaultRulesEngine(), memory.WithNowFunc(func() time.Time { return testNow }))}
	svc := NewService(store, WithClock(stubClock{now: testNow}), WithLogger(logger), WithEventPublisher(pub))

	item, _, err := svc.CreateConsumable(context.Background(), domain.ConsumableItem{
		Name:            "PBS",
		TotalVolume:     dec("500"),
		RemainingVolume: dec("50"),
		Unit:            "ml",
	})
	if !errors.Is(err, domain.ErrNotPersisted) {
		t.Fatalf("expected not-persisted error, got %v", err)
	}
	var perr domain.PersistError
	if !errors.As(err, &perr) || perr.Backend != "test" {
		t.Fatalf("expected persist error detail, got %v", err)
	}
	if item.ID == "" {
		t.Fatalf("expected committed item to be returned")
	}
	_ = svc.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindConsumable(item.ID); !ok {
			t.Fatalf("committed state must stand")
		}
		return nil
	})
	if len(pub.ofType(EventTaskCreated)) != 1 {
		t.Fatalf("expected events of the committed state to be published, got %v", pub.events)
	}
	if !logger.has("e:commit not persisted") {
		t.Fatalf("expected persist failure to be logged, got %v", logger.calls)
	}
}
