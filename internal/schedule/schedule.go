// Package schedule computes equipment validation due dates and records
// completed validations.
package schedule

import (
	"math"
	"time"

	"benchcore/pkg/domain"
)

const (
	// DefaultPeriodDays applies when an equipment record has no validation period.
	DefaultPeriodDays = 365
	// DefaultHorizonDays is the look-ahead window for DueSoon.
	DefaultHorizonDays = 30
)

// NextDue returns last plus the validation period, defaulting the period.
func NextDue(last time.Time, periodDays int) time.Time {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	return last.AddDate(0, 0, periodDays)
}

// DaysUntil returns the whole days from now until t, rounded up. Past dates
// yield zero or negative values.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// NextValidation resolves the next validation date of e, deriving it from the
// last validation when only that is recorded. It reports false when the
// equipment has never been scheduled.
func NextValidation(e domain.Equipment) (time.Time, bool) {
	switch {
	case e.NextValidationDate != nil:
		return *e.NextValidationDate, true
	case e.LastValidationDate != nil:
		return NextDue(*e.LastValidationDate, e.ValidationPeriodDays), true
	default:
		return time.Time{}, false
	}
}

// IsDueSoon reports whether the next validation of e falls within horizonDays
// of now. Overdue equipment is due soon; a zero horizon matches equipment due
// today or overdue.
func IsDueSoon(e domain.Equipment, now time.Time, horizonDays int) bool {
	next, ok := NextValidation(e)
	if !ok {
		return false
	}
	return DaysUntil(next, now) <= max(horizonDays, 0)
}

// DueSoon is IsDueSoon over the default horizon.
func DueSoon(e domain.Equipment, now time.Time) bool {
	return IsDueSoon(e, now, DefaultHorizonDays)
}

// Overdue reports whether the next validation date has passed.
func Overdue(e domain.Equipment, now time.Time) bool {
	next, ok := NextValidation(e)
	return ok && DaysUntil(next, now) < 0
}

// Completion reports the outcome of a recorded validation.
type Completion struct {
	Equipment    domain.Equipment
	PreviousNext *time.Time
	Reactivated  bool
	ClosedTasks  []domain.MaintenanceTask
}

// Complete records a validation performed at performedAt. Equipment under
// maintenance or repair returns to active, and open validation-due tasks for
// the equipment are completed.
func Complete(tx domain.Transaction, equipmentID string, performedAt time.Time) (Completion, error) {
	current, ok := tx.FindEquipment(equipmentID)
	if !ok {
		return Completion{}, domain.InvalidReferenceError{Entity: domain.EntityEquipment, ID: equipmentID}
	}
	if current.Status == domain.EquipmentDecommissioned {
		return Completion{}, domain.IllegalTransitionError{
			Entity: domain.EntityEquipment,
			ID:     equipmentID,
			From:   string(domain.EquipmentDecommissioned),
			To:     "validated",
		}
	}

	out := Completion{PreviousNext: current.NextValidationDate}
	updated, err := tx.UpdateEquipment(equipmentID, func(e *domain.Equipment) error {
		if e.ValidationPeriodDays <= 0 {
			e.ValidationPeriodDays = DefaultPeriodDays
		}
		last := performedAt
		next := NextDue(last, e.ValidationPeriodDays)
		e.LastValidationDate = &last
		e.NextValidationDate = &next
		if e.Status == domain.EquipmentMaintenance || e.Status == domain.EquipmentRepair {
			e.Status = domain.EquipmentActive
			out.Reactivated = true
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	out.Equipment = updated

	task, ok := tx.FindOpenTask(equipmentID, domain.ConditionValidationDue)
	for ok {
		closed, err := tx.UpdateTask(task.ID, func(t *domain.MaintenanceTask) error {
			completedAt := tx.Now()
			t.Status = domain.TaskCompleted
			t.CompletedAt = &completedAt
			return nil
		})
		if err != nil {
			return Completion{}, err
		}
		out.ClosedTasks = append(out.ClosedTasks, closed)
		task, ok = tx.FindOpenTask(equipmentID, domain.ConditionValidationDue)
	}
	return out, nil
}
