package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"benchcore/pkg/domain"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) last(t *testing.T) AuditEntry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		t.Fatalf("expected audit entries")
	}
	return c.entries[len(c.entries)-1]
}

type metricCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricCall{op: op, success: success})
}

type captureSpan struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	spans []*captureSpan
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	span := &captureSpan{op: op}
	c.mu.Lock()
	c.spans = append(c.spans, span)
	c.mu.Unlock()
	return ctx, span
}

func (s *captureSpan) End(err error) { s.err = err }

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *captureLogger) record(prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, prefix+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.record("d:", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.record("i:", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("w:", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.record("e:", msg) }

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c == entry {
			return true
		}
	}
	return false
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) ofType(kind EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithClock(stubClock{now: testNow})}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustApprovedItem(t *testing.T, svc *Service, name, total, remaining string) domain.ConsumableItem {
	t.Helper()
	ctx := context.Background()
	item, _, err := svc.CreateConsumable(ctx, domain.ConsumableItem{
		Name:            name,
		LotNumber:       fmt.Sprintf("LOT-%s", name),
		Category:        domain.CategoryBase,
		TotalVolume:     dec(total),
		RemainingVolume: dec(remaining),
		Unit:            "ml",
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	approved, _, err := svc.ApproveConsumable(ctx, item.ID)
	if err != nil {
		t.Fatalf("approve %s: %v", name, err)
	}
	return approved
}

func mustDonor(t *testing.T, svc *Service) domain.Donor {
	t.Helper()
	donor, _, err := svc.CreateDonor(context.Background(), domain.Donor{Code: "DN-001", Consent: true})
	if err != nil {
		t.Fatalf("create donor: %v", err)
	}
	return donor
}

func openTasks(t *testing.T, svc *Service, entityID string) []domain.MaintenanceTask {
	t.Helper()
	var out []domain.MaintenanceTask
	_ = svc.View(context.Background(), func(v TransactionView) error {
		for _, task := range v.ListTasks() {
			if task.RelatedEntityID == entityID && task.Open() {
				out = append(out, task)
			}
		}
		return nil
	})
	return out
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func ptrDec(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
