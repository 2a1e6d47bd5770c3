package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/pkg/domain"
)

func blockedBy(t *testing.T, err error, rule string) {
	t.Helper()
	var rv RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range rv.Result.Violations {
		if v.Rule == rule && v.Severity == SeverityBlock {
			return
		}
	}
	t.Fatalf("expected %s to block, got %+v", rule, rv.Result.Violations)
}

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"stock_bounds", "lifecycle_transition", "open_task_unique", "validation_schedule", "equipment_parameters"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStockBoundsRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateConsumable(domain.ConsumableItem{Name: "over", TotalVolume: dec("10"), RemainingVolume: dec("11"), Status: domain.ConsumableApproved})
		return err
	})
	blockedBy(t, err, "stock_bounds")

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateConsumable(domain.ConsumableItem{
			Name:            "mix",
			TotalVolume:     dec("100"),
			RemainingVolume: dec("100"),
			Status:          domain.ConsumableApproved,
			Components:      []domain.Component{{SourceID: "a", VolumeConsumed: dec("60")}},
		})
		return err
	})
	blockedBy(t, err, "stock_bounds")

	if n := countConsumables(t, store); n != 0 {
		t.Fatalf("blocked transactions must not commit, found %d items", n)
	}
}

func countConsumables(t *testing.T, store *memory.Store) int {
	t.Helper()
	var n int
	_ = store.View(context.Background(), func(v TransactionView) error {
		n = len(v.ListConsumables())
		return nil
	})
	return n
}

func TestLifecycleTransitionRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateConsumable(domain.ConsumableItem{Name: "x", TotalVolume: dec("1"), RemainingVolume: dec("1"), Status: "opened"})
		return err
	})
	blockedBy(t, err, "lifecycle_transition")

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		item, err := tx.CreateConsumable(domain.ConsumableItem{Name: "x", TotalVolume: dec("1"), RemainingVolume: dec("1"), Status: domain.ConsumableDisposed})
		id = item.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateConsumable(id, func(c *domain.ConsumableItem) error {
			c.Status = domain.ConsumableApproved
			return nil
		})
		return err
	})
	blockedBy(t, err, "lifecycle_transition")
}

func TestOpenTaskUniqueRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()
	task := domain.MaintenanceTask{
		Title:           "Reorder",
		Status:          domain.TaskNew,
		Priority:        domain.PriorityMedium,
		DueDate:         testNow,
		RelatedEntity:   domain.EntityConsumable,
		RelatedEntityID: "item-1",
		Condition:       domain.ConditionLowStock,
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateTask(task); err != nil {
			return err
		}
		_, err := tx.CreateTask(task)
		return err
	})
	blockedBy(t, err, "open_task_unique")

	// Completed tasks release the slot.
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		done := task
		done.Status = domain.TaskCompleted
		if _, err := tx.CreateTask(done); err != nil {
			return err
		}
		_, err := tx.CreateTask(task)
		return err
	})
	if err != nil {
		t.Fatalf("expected completed task to free the slot, got %v", err)
	}
}

func TestValidationScheduleAndParameterRules(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	ctx := context.Background()
	last := testNow
	wrong := testNow.Add(24 * time.Hour)

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateEquipment(domain.Equipment{Name: "Hood", Status: domain.EquipmentActive, ValidationPeriodDays: 365, LastValidationDate: &last, NextValidationDate: &wrong})
		return err
	})
	blockedBy(t, err, "validation_schedule")

	lo, hi := 10.0, 5.0
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateEquipment(domain.Equipment{Name: "Centrifuge", Status: domain.EquipmentActive, Parameters: domain.CriticalParameters{RPM: &domain.ParameterRange{Min: &lo, Max: &hi}}})
		return err
	})
	blockedBy(t, err, "equipment_parameters")
}

func TestServiceLogsBlockedCommit(t *testing.T) {
	logger := &captureLogger{}
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()), WithClock(stubClock{now: testNow}), WithLogger(logger))
	_, err := svc.run(context.Background(), OpCreateTask, func(tx Transaction, _ *effects) error {
		_, err := tx.CreateConsumable(domain.ConsumableItem{Name: "bad", TotalVolume: dec("1"), RemainingVolume: dec("2"), Status: domain.ConsumableApproved})
		return err
	})
	blockedBy(t, err, "stock_bounds")
	if !logger.has("w:operation blocked") {
		t.Fatalf("expected blocked commit to be logged at warn, got %v", logger.calls)
	}
}

func TestLifecycleMachinesTrackDomainStatuses(t *testing.T) {
	cases := []struct {
		entity   domain.EntityType
		status   string
		terminal bool
	}{
		{domain.EntityConsumable, string(domain.ConsumableQuarantine), false},
		{domain.EntityConsumable, string(domain.ConsumableExhausted), false},
		{domain.EntityConsumable, string(domain.ConsumableDisposed), true},
		{domain.EntityEquipment, string(domain.EquipmentRepair), false},
		{domain.EntityEquipment, string(domain.EquipmentDecommissioned), true},
		{domain.EntityCulture, string(domain.CultureFrozen), false},
		{domain.EntityCulture, string(domain.CultureReleased), true},
		{domain.EntityStorageUnit, string(domain.StoragePartiallyRetrieved), false},
		{domain.EntityStorageUnit, string(domain.StorageDisposed), true},
		{domain.EntityMasterBank, string(domain.MasterBankPartiallyUsed), false},
		{domain.EntityMasterBank, string(domain.MasterBankDisposed), true},
		{domain.EntityRelease, string(domain.ReleasePending), false},
		{domain.EntityRelease, string(domain.ReleaseCancelled), true},
		{domain.EntityTask, string(domain.TaskOverdue), false},
		{domain.EntityTask, string(domain.TaskCompleted), true},
	}
	for _, tc := range cases {
		machine, ok := lifecycleMachines[tc.entity]
		if !ok {
			t.Fatalf("no lifecycle machine for %s", tc.entity)
		}
		if _, valid := machine.valid[tc.status]; !valid {
			t.Fatalf("%s status %q not accepted", tc.entity, tc.status)
		}
		if _, terminal := machine.terminal[tc.status]; terminal != tc.terminal {
			t.Fatalf("%s status %q terminal=%v, want %v", tc.entity, tc.status, terminal, tc.terminal)
		}
	}
}
