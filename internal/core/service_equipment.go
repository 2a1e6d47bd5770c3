package core

import (
	"context"
	"fmt"
	"time"

	"benchcore/internal/schedule"
	"benchcore/pkg/domain"
)

// CreateEquipment registers an instrument. Equipment starts active, and when a
// last validation is known the next one is derived from it.
func (s *Service) CreateEquipment(ctx context.Context, eq domain.Equipment) (domain.Equipment, Result, error) {
	var created domain.Equipment
	res, err := s.run(ctx, OpCreateEquipment, func(tx Transaction, fx *effects) error {
		if eq.Name == "" {
			return domain.InvariantViolationError{Entity: domain.EntityEquipment, ID: eq.ID, Reason: "name is required"}
		}
		if err := checkParameters(eq); err != nil {
			return err
		}
		if eq.ValidationPeriodDays <= 0 {
			eq.ValidationPeriodDays = s.validationPeriod()
		}
		if eq.LastValidationDate != nil {
			next := schedule.NextDue(*eq.LastValidationDate, eq.ValidationPeriodDays)
			eq.NextValidationDate = &next
		}
		eq.Status = domain.EquipmentActive
		var err error
		if created, err = tx.CreateEquipment(eq); err != nil {
			return err
		}
		fx.entityID = created.ID
		return s.evaluateTasks(tx, fx, domain.EntityEquipment, created.ID, s.now())
	})
	return created, res, err
}

func (s *Service) validationPeriod() int {
	if s.defaultPeriod > 0 {
		return s.defaultPeriod
	}
	return schedule.DefaultPeriodDays
}

func checkParameters(eq domain.Equipment) error {
	for name, r := range eq.Parameters.Ranges() {
		if r.Inverted() {
			return domain.InvariantViolationError{
				Entity: domain.EntityEquipment,
				ID:     eq.ID,
				Reason: fmt.Sprintf("%s range has min above max", name),
			}
		}
	}
	return nil
}

var equipmentStatuses = map[domain.EquipmentStatus]struct{}{
	domain.EquipmentActive:         {},
	domain.EquipmentMaintenance:    {},
	domain.EquipmentRepair:         {},
	domain.EquipmentDecommissioned: {},
}

// SetEquipmentStatus moves equipment between service states. Decommissioning
// is terminal and cancels any open validation task.
func (s *Service) SetEquipmentStatus(ctx context.Context, id string, status domain.EquipmentStatus) (domain.Equipment, Result, error) {
	var updated domain.Equipment
	res, err := s.run(ctx, OpSetEquipmentStatus, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		if _, ok := equipmentStatuses[status]; !ok {
			return domain.InvariantViolationError{Entity: domain.EntityEquipment, ID: id, Reason: fmt.Sprintf("unknown status %q", status)}
		}
		var err error
		updated, err = tx.UpdateEquipment(id, func(e *domain.Equipment) error {
			if e.Status == domain.EquipmentDecommissioned {
				return domain.IllegalTransitionError{Entity: domain.EntityEquipment, ID: id, From: string(e.Status), To: string(status)}
			}
			e.Status = status
			return nil
		})
		if err != nil {
			return err
		}
		if status == domain.EquipmentDecommissioned {
			if task, ok := tx.FindOpenTask(id, domain.ConditionValidationDue); ok && task.Status != domain.TaskCancelled {
				if _, err := tx.UpdateTask(task.ID, func(t *domain.MaintenanceTask) error {
					t.Status = domain.TaskCancelled
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		}
		return s.evaluateTasks(tx, fx, domain.EntityEquipment, id, s.now())
	})
	return updated, res, err
}

// CompleteValidation records a validation performed now.
func (s *Service) CompleteValidation(ctx context.Context, id string) (schedule.Completion, Result, error) {
	return s.CompleteValidationAt(ctx, id, time.Time{})
}

// CompleteValidationAt records a validation performed at performedAt, which
// may be backdated but not in the future. A zero time means now.
func (s *Service) CompleteValidationAt(ctx context.Context, id string, performedAt time.Time) (schedule.Completion, Result, error) {
	var completion schedule.Completion
	res, err := s.run(ctx, OpCompleteValidation, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		now := s.now()
		if performedAt.IsZero() {
			performedAt = now
		}
		if performedAt.After(now) {
			return domain.InvariantViolationError{Entity: domain.EntityEquipment, ID: id, Reason: "validation cannot be recorded in the future"}
		}
		var err error
		if completion, err = schedule.Complete(tx, id, performedAt.UTC()); err != nil {
			return err
		}
		return s.evaluateTasks(tx, fx, domain.EntityEquipment, id, now)
	})
	return completion, res, err
}
