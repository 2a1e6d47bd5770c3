package core

import (
	"context"
	"fmt"

	"benchcore/pkg/domain"
)

// NewOpenTaskUniqueRule blocks a second open task for the same
// (entity, condition) slot.
func NewOpenTaskUniqueRule() domain.Rule {
	return openTaskUniqueRule{}
}

type openTaskUniqueRule struct{}

func (openTaskUniqueRule) Name() string { return "open_task_unique" }

func (openTaskUniqueRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := false
	for _, change := range changes {
		if change.Entity == domain.EntityTask {
			touched = true
			break
		}
	}
	if !touched {
		return res, nil
	}

	type slot struct {
		entityID  string
		condition domain.ConditionKind
	}
	holders := make(map[slot]string)
	for _, task := range view.ListTasks() {
		if task.Condition == domain.ConditionNone || !task.Open() {
			continue
		}
		key := slot{task.RelatedEntityID, task.Condition}
		first, taken := holders[key]
		if !taken {
			holders[key] = task.ID
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "open_task_unique",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("task %s duplicates open %s task %s for %s", task.ID, task.Condition, first, task.RelatedEntityID),
			Entity:   domain.EntityTask,
			EntityID: task.ID,
		})
	}
	return res, nil
}
