package core

import (
	"context"
	"fmt"

	"benchcore/pkg/domain"
)

// NewLifecycleTransitionRule blocks invalid statuses and any change away from
// a terminal status.
func NewLifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	entity    domain.EntityType
	label     string
	valid     map[string]struct{}
	terminal  map[string]struct{}
	extractor func(domain.ChangePayload) (string, string, bool)
}

func statusOf[T any](status func(T) (string, string)) func(domain.ChangePayload) (string, string, bool) {
	return func(payload domain.ChangePayload) (string, string, bool) {
		v, ok := decodeChangePayload[T](payload)
		if !ok {
			return "", "", false
		}
		id, state := status(v)
		return id, state, true
	}
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityConsumable: {
		entity:   domain.EntityConsumable,
		label:    "consumable",
		valid:    toSet(domain.ConsumableQuarantine, domain.ConsumableApproved, domain.ConsumableExhausted, domain.ConsumableDisposed),
		terminal: toSet(domain.ConsumableDisposed),
		extractor: statusOf(func(c domain.ConsumableItem) (string, string) {
			return c.ID, string(c.Status)
		}),
	},
	domain.EntityEquipment: {
		entity:   domain.EntityEquipment,
		label:    "equipment",
		valid:    toSet(domain.EquipmentActive, domain.EquipmentMaintenance, domain.EquipmentRepair, domain.EquipmentDecommissioned),
		terminal: toSet(domain.EquipmentDecommissioned),
		extractor: statusOf(func(e domain.Equipment) (string, string) {
			return e.ID, string(e.Status)
		}),
	},
	domain.EntityCulture: {
		entity:   domain.EntityCulture,
		label:    "culture",
		valid:    toSet(domain.CultureInWork, domain.CultureFrozen, domain.CultureReleased, domain.CultureDisposed),
		terminal: toSet(domain.CultureReleased, domain.CultureDisposed),
		extractor: statusOf(func(c domain.Culture) (string, string) {
			return c.ID, string(c.Status)
		}),
	},
	domain.EntityStorageUnit: {
		entity:   domain.EntityStorageUnit,
		label:    "storage unit",
		valid:    toSet(domain.StorageStored, domain.StoragePartiallyRetrieved, domain.StorageReleased, domain.StorageDisposed),
		terminal: toSet(domain.StorageReleased, domain.StorageDisposed),
		extractor: statusOf(func(u domain.StorageUnit) (string, string) {
			return u.ID, string(u.Status)
		}),
	},
	domain.EntityMasterBank: {
		entity:   domain.EntityMasterBank,
		label:    "master bank",
		valid:    toSet(domain.MasterBankStored, domain.MasterBankPartiallyUsed, domain.MasterBankUsed, domain.MasterBankDisposed),
		terminal: toSet(domain.MasterBankDisposed),
		extractor: statusOf(func(b domain.MasterBank) (string, string) {
			return b.ID, string(b.Status)
		}),
	},
	domain.EntityRelease: {
		entity:   domain.EntityRelease,
		label:    "release",
		valid:    toSet(domain.ReleasePending, domain.ReleaseConfirmed, domain.ReleaseCancelled),
		terminal: toSet(domain.ReleaseConfirmed, domain.ReleaseCancelled),
		extractor: statusOf(func(r domain.Release) (string, string) {
			return r.ID, string(r.Status)
		}),
	},
	domain.EntityTask: {
		entity:   domain.EntityTask,
		label:    "task",
		valid:    toSet(domain.TaskNew, domain.TaskInProgress, domain.TaskCompleted, domain.TaskOverdue, domain.TaskCancelled),
		terminal: toSet(domain.TaskCompleted),
		extractor: statusOf(func(t domain.MaintenanceTask) (string, string) {
			return t.ID, string(t.Status)
		}),
	},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if _, valid := machine.valid[afterState]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s is set to invalid state %q", machine.label, afterID, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
			continue
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, terminal := machine.terminal[beforeState]; terminal && afterState != beforeState {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet[S ~string](values ...S) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[string(v)] = struct{}{}
	}
	return set
}
