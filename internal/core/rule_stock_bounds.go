package core

import (
	"context"
	"fmt"

	"benchcore/pkg/domain"

	"github.com/shopspring/decimal"
)

// NewStockBoundsRule blocks remaining volumes outside [0, total] and composites
// whose total differs from the volume drawn from their sources.
func NewStockBoundsRule() domain.Rule {
	return stockBoundsRule{}
}

type stockBoundsRule struct{}

func (stockBoundsRule) Name() string { return "stock_bounds" }

func (r stockBoundsRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(item domain.ConsumableItem, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("consumable %s (%s): ", item.Name, item.ID) + fmt.Sprintf(format, args...),
			Entity:   domain.EntityConsumable,
			EntityID: item.ID,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityConsumable {
			continue
		}
		item, ok := decodeChangePayload[domain.ConsumableItem](change.After)
		if !ok {
			continue
		}
		switch {
		case item.RemainingVolume.IsNegative():
			block(item, "remaining volume %s is negative", item.RemainingVolume)
		case item.RemainingVolume.GreaterThan(item.TotalVolume):
			block(item, "remaining volume %s exceeds total %s", item.RemainingVolume, item.TotalVolume)
		}
		if change.Action == domain.ActionCreate && item.IsComposite() {
			sum := decimal.Zero
			for _, c := range item.Components {
				sum = sum.Add(c.VolumeConsumed)
			}
			if !sum.Equal(item.TotalVolume) {
				block(item, "total %s does not match %s drawn from components", item.TotalVolume, sum)
			}
		}
	}
	return res, nil
}
