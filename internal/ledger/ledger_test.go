package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/internal/ledger"
	"benchcore/pkg/domain"

	"github.com/shopspring/decimal"
)

func seedItem(t *testing.T, store *memory.Store, total, remaining int64, status domain.ConsumableStatus) string {
	t.Helper()
	var id string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		item, err := tx.CreateConsumable(domain.ConsumableItem{
			Name:            "DMEM",
			LotNumber:       "L-1",
			TotalVolume:     decimal.NewFromInt(total),
			RemainingVolume: decimal.NewFromInt(remaining),
			Unit:            "ml",
			Status:          status,
		})
		id = item.ID
		return err
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return id
}

func consume(store *memory.Store, id string, amount decimal.Decimal) (ledger.Outcome, error) {
	var out ledger.Outcome
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		out, err = ledger.Consume(tx, id, amount, domain.MovementConsume, "bench")
		return err
	})
	return out, err
}

func TestConsumeClampsAndExhausts(t *testing.T) {
	store := memory.NewStore(nil)
	id := seedItem(t, store, 500, 120, domain.ConsumableApproved)

	out, err := consume(store, id, decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !out.NewRemaining.IsZero() {
		t.Fatalf("expected clamp to zero, got %s", out.NewRemaining)
	}
	if !out.BecameExhausted || out.Item.Status != domain.ConsumableExhausted {
		t.Fatalf("expected exhausted item, got %+v", out.Item)
	}
	if !out.Applied.Equal(decimal.NewFromInt(120)) || !out.Clamped() {
		t.Fatalf("expected 120 applied and clamped, got %s", out.Applied)
	}
	if !out.Movement.Requested.Equal(decimal.NewFromInt(300)) || out.Movement.Reference != "bench" {
		t.Fatalf("unexpected movement %+v", out.Movement)
	}

	again, err := consume(store, id, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("consume exhausted: %v", err)
	}
	if again.BecameExhausted || !again.Applied.IsZero() {
		t.Fatalf("exhausted item must not re-exhaust, got %+v", again)
	}
}

func TestConsumePartial(t *testing.T) {
	store := memory.NewStore(nil)
	id := seedItem(t, store, 500, 200, domain.ConsumableApproved)
	out, err := consume(store, id, decimal.RequireFromString("80.5"))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !out.NewRemaining.Equal(decimal.RequireFromString("119.5")) || out.BecameExhausted || out.Clamped() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Item.Status != domain.ConsumableApproved {
		t.Fatalf("status should not change, got %s", out.Item.Status)
	}
}

func TestConsumeRejections(t *testing.T) {
	store := memory.NewStore(nil)
	approved := seedItem(t, store, 100, 100, domain.ConsumableApproved)
	disposed := seedItem(t, store, 100, 40, domain.ConsumableDisposed)

	cases := []struct {
		name   string
		id     string
		amount decimal.Decimal
		want   error
	}{
		{"negative amount", approved, decimal.NewFromInt(-1), domain.ErrInvariantViolation},
		{"unknown item", "missing", decimal.NewFromInt(1), domain.ErrInvalidReference},
		{"disposed item", disposed, decimal.NewFromInt(1), domain.ErrIllegalTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := consume(store, tc.id, tc.amount); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		item, _ := v.FindConsumable(approved)
		if !item.RemainingVolume.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("rejected consumption mutated stock: %s", item.RemainingVolume)
		}
		if len(v.ListStockMovements("")) != 0 {
			t.Fatalf("rejected consumption recorded a movement")
		}
		return nil
	})
}

func TestConsumeKeepsStockWithinBounds(t *testing.T) {
	store := memory.NewStore(nil)
	id := seedItem(t, store, 1000, 1000, domain.ConsumableApproved)
	rng := rand.New(rand.NewSource(42))
	total := decimal.NewFromInt(1000)
	for i := 0; i < 200; i++ {
		amount := decimal.NewFromInt(rng.Int63n(40)).Add(decimal.New(rng.Int63n(100), -2))
		out, err := consume(store, id, amount)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out.NewRemaining.IsNegative() || out.NewRemaining.GreaterThan(total) {
			t.Fatalf("step %d: remaining %s out of bounds", i, out.NewRemaining)
		}
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		item, _ := v.FindConsumable(id)
		if !ledger.Consumed(v, id).Add(item.RemainingVolume).Equal(total) {
			t.Fatalf("ledger does not reconcile: consumed %s remaining %s", ledger.Consumed(v, id), item.RemainingVolume)
		}
		return nil
	})
}
