// Package tasks derives maintenance tasks from consumable stock, expiry and
// equipment validation state. Each (entity, condition) pair holds at most one
// task that is not completed.
package tasks

import (
	"fmt"
	"time"

	"benchcore/internal/schedule"
	"benchcore/pkg/domain"
)

// LowStock reports whether item sits in (0, threshold].
func LowStock(item domain.ConsumableItem, policy Policy) bool {
	policy = policy.normalized()
	threshold := policy.LowStockThreshold
	if item.LowStockThreshold != nil {
		threshold = *item.LowStockThreshold
	}
	return item.RemainingVolume.IsPositive() && item.RemainingVolume.LessThanOrEqual(threshold)
}

// Expiring reports whether item expires within the policy window but has not
// expired yet.
func Expiring(item domain.ConsumableItem, now time.Time, policy Policy) bool {
	if item.ExpiresAt == nil {
		return false
	}
	days := schedule.DaysUntil(*item.ExpiresAt, now)
	return days > 0 && days <= policy.normalized().ExpiringWindowDays
}

// ValidationDue reports whether equipment needs a validation task.
func ValidationDue(e domain.Equipment, now time.Time, policy Policy) bool {
	if e.Status == domain.EquipmentDecommissioned {
		return false
	}
	return schedule.IsDueSoon(e, now, policy.normalized().ValidationHorizonDays)
}

// Evaluate creates the tasks implied by the current state of one entity and
// returns only the newly created ones. Calling it again without a state change
// creates nothing.
func Evaluate(tx domain.Transaction, entity domain.EntityType, entityID string, now time.Time, policy Policy) ([]domain.MaintenanceTask, error) {
	policy = policy.normalized()
	var candidates []domain.MaintenanceTask
	switch entity {
	case domain.EntityConsumable:
		item, ok := tx.FindConsumable(entityID)
		if !ok {
			return nil, domain.InvalidReferenceError{Entity: entity, ID: entityID}
		}
		candidates = consumableCandidates(item, now, policy)
	case domain.EntityEquipment:
		eq, ok := tx.FindEquipment(entityID)
		if !ok {
			return nil, domain.InvalidReferenceError{Entity: entity, ID: entityID}
		}
		candidates = equipmentCandidates(eq, now, policy)
	default:
		return nil, domain.InvariantViolationError{Entity: entity, ID: entityID, Reason: "entity type has no task conditions"}
	}

	var created []domain.MaintenanceTask
	for _, candidate := range candidates {
		if _, exists := tx.FindOpenTask(candidate.RelatedEntityID, candidate.Condition); exists {
			continue
		}
		task, err := tx.CreateTask(candidate)
		if err != nil {
			return created, fmt.Errorf("create %s task: %w", candidate.Condition, err)
		}
		created = append(created, task)
	}
	return created, nil
}

func consumableCandidates(item domain.ConsumableItem, now time.Time, policy Policy) []domain.MaintenanceTask {
	if item.Status == domain.ConsumableDisposed || item.Status == domain.ConsumableExhausted {
		return nil
	}
	var out []domain.MaintenanceTask
	if LowStock(item, policy) {
		out = append(out, domain.MaintenanceTask{
			Title:           fmt.Sprintf("Low stock: %s", label(item)),
			Description:     fmt.Sprintf("%s %s remaining; reorder or prepare a replacement.", item.RemainingVolume.String(), item.Unit),
			Priority:        domain.PriorityMedium,
			DueDate:         now.AddDate(0, 0, policy.LowStockDueDays),
			RelatedEntity:   domain.EntityConsumable,
			RelatedEntityID: item.ID,
			Condition:       domain.ConditionLowStock,
		})
	}
	if Expiring(item, now, policy) {
		out = append(out, domain.MaintenanceTask{
			Title:           fmt.Sprintf("Expiring: %s", label(item)),
			Description:     fmt.Sprintf("Expires on %s.", item.ExpiresAt.Format(time.DateOnly)),
			Priority:        domain.PriorityHigh,
			DueDate:         *item.ExpiresAt,
			RelatedEntity:   domain.EntityConsumable,
			RelatedEntityID: item.ID,
			Condition:       domain.ConditionExpiring,
		})
	}
	for i := range out {
		out[i].Status = domain.TaskNew
	}
	return out
}

func equipmentCandidates(e domain.Equipment, now time.Time, policy Policy) []domain.MaintenanceTask {
	if !ValidationDue(e, now, policy) {
		return nil
	}
	next, _ := schedule.NextValidation(e)
	return []domain.MaintenanceTask{{
		Title:           fmt.Sprintf("Validation due: %s", e.Name),
		Description:     fmt.Sprintf("Next validation on %s.", next.Format(time.DateOnly)),
		Priority:        domain.PriorityHigh,
		Status:          domain.TaskNew,
		DueDate:         next,
		RelatedEntity:   domain.EntityEquipment,
		RelatedEntityID: e.ID,
		Condition:       domain.ConditionValidationDue,
	}}
}

func label(item domain.ConsumableItem) string {
	if item.LotNumber == "" {
		return item.Name
	}
	return fmt.Sprintf("%s (lot %s)", item.Name, item.LotNumber)
}

// MarkOverdue moves new and in-progress tasks whose due date has passed to
// overdue and returns them.
func MarkOverdue(tx domain.Transaction, now time.Time) ([]domain.MaintenanceTask, error) {
	var moved []domain.MaintenanceTask
	for _, task := range tx.ListTasks() {
		if task.Status != domain.TaskNew && task.Status != domain.TaskInProgress {
			continue
		}
		if !task.DueDate.Before(now) {
			continue
		}
		updated, err := tx.UpdateTask(task.ID, func(t *domain.MaintenanceTask) error {
			t.Status = domain.TaskOverdue
			return nil
		})
		if err != nil {
			return moved, err
		}
		moved = append(moved, updated)
	}
	return moved, nil
}

// SweepReport summarizes a full generator pass.
type SweepReport struct {
	Created []domain.MaintenanceTask
	Overdue []domain.MaintenanceTask
}

// Sweep evaluates every consumable and equipment record, then marks overdue
// tasks. Time-driven conditions surface here without a triggering mutation.
func Sweep(tx domain.Transaction, now time.Time, policy Policy) (SweepReport, error) {
	var report SweepReport
	for _, item := range tx.ListConsumables() {
		created, err := Evaluate(tx, domain.EntityConsumable, item.ID, now, policy)
		if err != nil {
			return report, err
		}
		report.Created = append(report.Created, created...)
	}
	for _, eq := range tx.ListEquipment() {
		created, err := Evaluate(tx, domain.EntityEquipment, eq.ID, now, policy)
		if err != nil {
			return report, err
		}
		report.Created = append(report.Created, created...)
	}
	overdue, err := MarkOverdue(tx, now)
	if err != nil {
		return report, err
	}
	report.Overdue = overdue
	return report, nil
}
