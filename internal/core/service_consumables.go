package core

import (
	"context"

	"benchcore/internal/compose"
	"benchcore/internal/ledger"
	"benchcore/pkg/domain"

	"github.com/shopspring/decimal"
)

// CreateConsumable registers a manually received medium or reagent. Manual
// items always start in quarantine; an unset remaining volume means a full
// bottle.
func (s *Service) CreateConsumable(ctx context.Context, item domain.ConsumableItem) (domain.ConsumableItem, Result, error) {
	var created domain.ConsumableItem
	res, err := s.run(ctx, OpCreateConsumable, func(tx Transaction, fx *effects) error {
		if err := validateManualConsumable(item); err != nil {
			return err
		}
		if item.RemainingVolume.IsZero() {
			item.RemainingVolume = item.TotalVolume
		}
		if item.Category == "" {
			item.Category = domain.CategoryOther
		}
		item.Status = domain.ConsumableQuarantine
		var err error
		if created, err = tx.CreateConsumable(item); err != nil {
			return err
		}
		fx.entityID = created.ID
		return s.evaluateTasks(tx, fx, domain.EntityConsumable, created.ID, s.now())
	})
	return created, res, err
}

func validateManualConsumable(item domain.ConsumableItem) error {
	invalid := func(reason string) error {
		return domain.InvariantViolationError{Entity: domain.EntityConsumable, ID: item.ID, Reason: reason}
	}
	switch {
	case item.IsComposite():
		return invalid("composite items are created by composition")
	case item.TotalVolume.IsNegative():
		return invalid("total volume must not be negative")
	case item.RemainingVolume.IsNegative():
		return invalid("remaining volume must not be negative")
	case item.RemainingVolume.GreaterThan(item.TotalVolume):
		return invalid("remaining volume exceeds total volume")
	case item.LowStockThreshold != nil && item.LowStockThreshold.IsNegative():
		return invalid("low stock threshold must not be negative")
	}
	return nil
}

// ApproveConsumable releases a quarantined item for use.
func (s *Service) ApproveConsumable(ctx context.Context, id string) (domain.ConsumableItem, Result, error) {
	var updated domain.ConsumableItem
	res, err := s.run(ctx, OpApproveConsumable, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		updated, err = tx.UpdateConsumable(id, func(item *domain.ConsumableItem) error {
			if item.Status != domain.ConsumableQuarantine {
				return domain.IllegalTransitionError{Entity: domain.EntityConsumable, ID: id, From: string(item.Status), To: string(domain.ConsumableApproved)}
			}
			item.Status = domain.ConsumableApproved
			return nil
		})
		if err != nil {
			return err
		}
		return s.evaluateTasks(tx, fx, domain.EntityConsumable, id, s.now())
	})
	return updated, res, err
}

// DisposeConsumable retires an item. Disposal is terminal.
func (s *Service) DisposeConsumable(ctx context.Context, id string) (domain.ConsumableItem, Result, error) {
	var updated domain.ConsumableItem
	res, err := s.run(ctx, OpDisposeConsumable, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		updated, err = tx.UpdateConsumable(id, func(item *domain.ConsumableItem) error {
			if item.Status == domain.ConsumableDisposed {
				return domain.IllegalTransitionError{Entity: domain.EntityConsumable, ID: id, From: string(item.Status), To: string(domain.ConsumableDisposed)}
			}
			item.Status = domain.ConsumableDisposed
			return nil
		})
		return err
	})
	return updated, res, err
}

// ConsumeStock draws amount from an item. Requests beyond the remaining volume
// are clamped and the applied amount is reported in the outcome.
func (s *Service) ConsumeStock(ctx context.Context, id string, amount decimal.Decimal, reference string) (ledger.Outcome, Result, error) {
	var outcome ledger.Outcome
	res, err := s.run(ctx, OpConsumeStock, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		if outcome, err = ledger.Consume(tx, id, amount, domain.MovementConsume, reference); err != nil {
			return err
		}
		now := s.now()
		if outcome.BecameExhausted {
			fx.emit(EventConsumableExhausted, domain.EntityConsumable, id, now, outcome.Item)
		}
		return s.evaluateTasks(tx, fx, domain.EntityConsumable, id, now)
	})
	return outcome, res, err
}

// ComposeMedia mixes approved sources into a new composite item. Either every
// source is decremented and the composite exists, or nothing changed.
func (s *Service) ComposeMedia(ctx context.Context, req compose.Request) (compose.Result, Result, error) {
	var result compose.Result
	res, err := s.run(ctx, OpComposeMedia, func(tx Transaction, fx *effects) error {
		now := s.now()
		var opts []compose.Option
		if s.shelfLifeDays > 0 {
			opts = append(opts, compose.WithShelfLifeDays(s.shelfLifeDays))
		}
		var err error
		if result, err = compose.Compose(tx, req, now, opts...); err != nil {
			return err
		}
		fx.entityID = result.Item.ID
		fx.emit(EventConsumableComposed, domain.EntityConsumable, result.Item.ID, now, result.Item)
		for _, source := range result.Exhausted() {
			fx.emit(EventConsumableExhausted, domain.EntityConsumable, source.ID, now, source)
		}
		for _, consumed := range result.Consumed {
			if err := s.evaluateTasks(tx, fx, domain.EntityConsumable, consumed.Item.ID, now); err != nil {
				return err
			}
		}
		return s.evaluateTasks(tx, fx, domain.EntityConsumable, result.Item.ID, now)
	})
	return result, res, err
}
