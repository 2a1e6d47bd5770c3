// Package ledger applies stock consumption to consumable items. Consumption is
// clamped at zero rather than rejected, and every call appends a stock
// movement so the applied amount stays auditable.
package ledger

import (
	"benchcore/pkg/domain"

	"github.com/shopspring/decimal"
)

// Outcome reports the effect of a single consumption.
type Outcome struct {
	Item            domain.ConsumableItem
	NewRemaining    decimal.Decimal
	Applied         decimal.Decimal
	BecameExhausted bool
	Movement        domain.StockMovement
}

// Clamped reports whether less than the requested amount was applied.
func (o Outcome) Clamped() bool {
	return o.Applied.LessThan(o.Movement.Requested)
}

// Consume decrements the remaining volume of itemID by amount inside tx.
// The item is marked exhausted when its remaining volume reaches zero from a
// nonzero value.
func Consume(tx domain.Transaction, itemID string, amount decimal.Decimal, reason domain.MovementReason, reference string) (Outcome, error) {
	if amount.IsNegative() {
		return Outcome{}, domain.InvariantViolationError{
			Entity: domain.EntityConsumable,
			ID:     itemID,
			Reason: "consumption amount must not be negative",
		}
	}
	current, ok := tx.FindConsumable(itemID)
	if !ok {
		return Outcome{}, domain.InvalidReferenceError{Entity: domain.EntityConsumable, ID: itemID}
	}
	if current.Status == domain.ConsumableDisposed {
		return Outcome{}, domain.IllegalTransitionError{
			Entity: domain.EntityConsumable,
			ID:     itemID,
			From:   string(domain.ConsumableDisposed),
			To:     "consumed",
		}
	}
	if reason == "" {
		reason = domain.MovementConsume
	}

	var (
		applied   decimal.Decimal
		exhausted bool
	)
	updated, err := tx.UpdateConsumable(itemID, func(item *domain.ConsumableItem) error {
		previous := item.RemainingVolume
		applied = decimal.Min(amount, decimal.Max(previous, decimal.Zero))
		item.RemainingVolume = decimal.Max(decimal.Zero, previous.Sub(amount))
		if previous.IsPositive() && item.RemainingVolume.IsZero() {
			item.Status = domain.ConsumableExhausted
			exhausted = true
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	movement, err := tx.AppendStockMovement(domain.StockMovement{
		ItemID:    itemID,
		Requested: amount,
		Applied:   applied,
		Reason:    reason,
		Reference: reference,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Item:            updated,
		NewRemaining:    updated.RemainingVolume,
		Applied:         applied,
		BecameExhausted: exhausted,
		Movement:        movement,
	}, nil
}

// Consumed sums the applied amounts recorded for itemID.
func Consumed(view domain.TransactionView, itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, m := range view.ListStockMovements(itemID) {
		total = total.Add(m.Applied)
	}
	return total
}
