package core

import (
	"context"
	"fmt"
	"strings"

	"benchcore/internal/tasks"
	"benchcore/pkg/domain"
)

// CreateTask records a manually planned task. Manual tasks carry no condition
// unless the caller claims one, in which case the condition slot must be free.
func (s *Service) CreateTask(ctx context.Context, task domain.MaintenanceTask) (domain.MaintenanceTask, Result, error) {
	var created domain.MaintenanceTask
	res, err := s.run(ctx, OpCreateTask, func(tx Transaction, fx *effects) error {
		invalid := func(reason string) error {
			return domain.InvariantViolationError{Entity: domain.EntityTask, ID: task.ID, Reason: reason}
		}
		switch {
		case strings.TrimSpace(task.Title) == "":
			return invalid("title is required")
		case task.DueDate.IsZero():
			return invalid("due date is required")
		}
		if task.RelatedEntityID != "" {
			if !relatedExists(tx, task.RelatedEntity, task.RelatedEntityID) {
				return domain.InvalidReferenceError{Entity: task.RelatedEntity, ID: task.RelatedEntityID}
			}
			if task.Condition != domain.ConditionNone {
				if open, ok := tx.FindOpenTask(task.RelatedEntityID, task.Condition); ok {
					return invalid(fmt.Sprintf("task %s already tracks %s for %s", open.ID, task.Condition, task.RelatedEntityID))
				}
			}
		}
		if task.Priority == "" {
			task.Priority = domain.PriorityMedium
		}
		task.Status = domain.TaskNew
		task.CompletedAt = nil
		var err error
		if created, err = tx.CreateTask(task); err != nil {
			return err
		}
		fx.entityID = created.ID
		fx.emit(EventTaskCreated, domain.EntityTask, created.ID, s.now(), created)
		return nil
	})
	return created, res, err
}

func relatedExists(view TransactionView, entity EntityType, id string) bool {
	var ok bool
	switch entity {
	case domain.EntityConsumable:
		_, ok = view.FindConsumable(id)
	case domain.EntityEquipment:
		_, ok = view.FindEquipment(id)
	case domain.EntityDonor:
		_, ok = view.FindDonor(id)
	case domain.EntityCulture:
		_, ok = view.FindCulture(id)
	case domain.EntityStorageUnit:
		_, ok = view.FindStorageUnit(id)
	case domain.EntityMasterBank:
		_, ok = view.FindMasterBank(id)
	case domain.EntityRelease:
		_, ok = view.FindRelease(id)
	}
	return ok
}

func (s *Service) moveTask(ctx context.Context, op, id string, to domain.TaskStatus, from ...domain.TaskStatus) (domain.MaintenanceTask, Result, error) {
	var updated domain.MaintenanceTask
	res, err := s.run(ctx, op, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		now := s.now()
		var err error
		updated, err = tx.UpdateTask(id, func(t *domain.MaintenanceTask) error {
			if !contains(from, t.Status) {
				return domain.IllegalTransitionError{Entity: domain.EntityTask, ID: id, From: string(t.Status), To: string(to)}
			}
			t.Status = to
			if to == domain.TaskCompleted {
				t.CompletedAt = &now
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// StartTask moves a new or overdue task into progress.
func (s *Service) StartTask(ctx context.Context, id string) (domain.MaintenanceTask, Result, error) {
	return s.moveTask(ctx, OpStartTask, id, domain.TaskInProgress, domain.TaskNew, domain.TaskOverdue)
}

// CompleteTask completes a task and frees its condition slot. Cancelled tasks
// may be completed to release the slot they still hold.
func (s *Service) CompleteTask(ctx context.Context, id string) (domain.MaintenanceTask, Result, error) {
	return s.moveTask(ctx, OpCompleteTask, id, domain.TaskCompleted,
		domain.TaskNew, domain.TaskInProgress, domain.TaskOverdue, domain.TaskCancelled)
}

// CancelTask cancels an open task. The task keeps its condition slot.
func (s *Service) CancelTask(ctx context.Context, id string) (domain.MaintenanceTask, Result, error) {
	return s.moveTask(ctx, OpCancelTask, id, domain.TaskCancelled,
		domain.TaskNew, domain.TaskInProgress, domain.TaskOverdue)
}

// EvaluateTasks runs the task generator for a single consumable or equipment
// record and returns the tasks it opened.
func (s *Service) EvaluateTasks(ctx context.Context, entity EntityType, id string) ([]domain.MaintenanceTask, Result, error) {
	var created []domain.MaintenanceTask
	res, err := s.run(ctx, OpEvaluateTasks, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		now := s.now()
		var err error
		if created, err = tasks.Evaluate(tx, entity, id, now, s.policy); err != nil {
			return err
		}
		for _, task := range created {
			fx.emit(EventTaskCreated, domain.EntityTask, task.ID, now, task)
		}
		return nil
	})
	return created, res, err
}

// Sweep evaluates every consumable and equipment record and marks overdue
// tasks. It surfaces conditions that appear with the passage of time alone.
func (s *Service) Sweep(ctx context.Context) (tasks.SweepReport, Result, error) {
	var report tasks.SweepReport
	res, err := s.run(ctx, OpSweep, func(tx Transaction, fx *effects) error {
		now := s.now()
		var err error
		if report, err = tasks.Sweep(tx, now, s.policy); err != nil {
			return err
		}
		for _, task := range report.Created {
			fx.emit(EventTaskCreated, domain.EntityTask, task.ID, now, task)
		}
		return nil
	})
	return report, res, err
}
