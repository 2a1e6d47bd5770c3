package core

import (
	"context"
	"fmt"
	"sort"

	"benchcore/pkg/domain"
)

// NewEquipmentParametersRule blocks critical parameter ranges whose minimum
// exceeds their maximum.
func NewEquipmentParametersRule() domain.Rule {
	return equipmentParametersRule{}
}

type equipmentParametersRule struct{}

func (equipmentParametersRule) Name() string { return "equipment_parameters" }

func (equipmentParametersRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityEquipment {
			continue
		}
		eq, ok := decodeChangePayload[domain.Equipment](change.After)
		if !ok {
			continue
		}
		ranges := eq.Parameters.Ranges()
		names := make([]string, 0, len(ranges))
		for name := range ranges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if r := ranges[name]; r.Inverted() {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "equipment_parameters",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("equipment %s %s range min %v exceeds max %v", eq.ID, name, *r.Min, *r.Max),
					Entity:   domain.EntityEquipment,
					EntityID: eq.ID,
				})
			}
		}
	}
	return res, nil
}
