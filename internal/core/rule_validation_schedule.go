package core

import (
	"context"
	"fmt"

	"benchcore/internal/schedule"
	"benchcore/pkg/domain"
)

// NewValidationScheduleRule blocks equipment whose next validation date is not
// the last validation date plus the validation period.
func NewValidationScheduleRule() domain.Rule {
	return validationScheduleRule{}
}

type validationScheduleRule struct{}

func (validationScheduleRule) Name() string { return "validation_schedule" }

func (validationScheduleRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityEquipment {
			continue
		}
		eq, ok := decodeChangePayload[domain.Equipment](change.After)
		if !ok || eq.LastValidationDate == nil || eq.NextValidationDate == nil {
			continue
		}
		want := schedule.NextDue(*eq.LastValidationDate, eq.ValidationPeriodDays)
		if !eq.NextValidationDate.Equal(want) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "validation_schedule",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("equipment %s next validation %s should be %s", eq.ID, eq.NextValidationDate.Format("2006-01-02"), want.Format("2006-01-02")),
				Entity:   domain.EntityEquipment,
				EntityID: eq.ID,
			})
		}
	}
	return res, nil
}
