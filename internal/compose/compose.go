// Package compose creates composite media from approved source consumables.
// Sources are consumed through the stock ledger inside the caller's
// transaction, so a failure leaves every source untouched.
package compose

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"benchcore/internal/ledger"
	"benchcore/pkg/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultShelfLifeDays applies when no source carries an expiry date.
const DefaultShelfLifeDays = 14

// ComponentRequest names a source and the volume drawn from it.
type ComponentRequest struct {
	SourceID   string          `json:"source_id"`
	VolumeUsed decimal.Decimal `json:"volume_used"`
}

// Request describes a composite to prepare.
type Request struct {
	Name              string                    `json:"name"`
	Category          domain.ConsumableCategory `json:"category"`
	Components        []ComponentRequest        `json:"components"`
	Sterile           bool                      `json:"sterile"`
	SterilityMethod   string                    `json:"sterility_method,omitempty"`
	LowStockThreshold *decimal.Decimal          `json:"low_stock_threshold,omitempty"`
}

// Result carries the composite and the ledger outcome for each source.
type Result struct {
	Item     domain.ConsumableItem
	Consumed []ledger.Outcome
}

// Exhausted returns the sources that reached zero during composition.
func (r Result) Exhausted() []domain.ConsumableItem {
	var out []domain.ConsumableItem
	for _, o := range r.Consumed {
		if o.BecameExhausted {
			out = append(out, o.Item)
		}
	}
	return out
}

// Option tunes composition.
type Option func(*options)

type options struct {
	shelfLifeDays int
}

// WithShelfLifeDays overrides the default shelf life used when no source expires.
func WithShelfLifeDays(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.shelfLifeDays = days
		}
	}
}

// LotCode builds a composite lot number of the form MIX-YYYYMMDD-XXXXXX.
func LotCode(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("MIX-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(id[:3])))
}

type resolved struct {
	source domain.ConsumableItem
	volume decimal.Decimal
}

// Compose validates req against the sources visible in tx, consumes each
// source and stores the approved composite.
func Compose(tx domain.Transaction, req Request, now time.Time, opts ...Option) (Result, error) {
	cfg := options{shelfLifeDays: DefaultShelfLifeDays}
	for _, opt := range opts {
		opt(&cfg)
	}

	parts, err := resolve(tx, req, now)
	if err != nil {
		return Result{}, err
	}

	total := decimal.Zero
	var expiry *time.Time
	for _, p := range parts {
		total = total.Add(p.volume)
		if exp := p.source.ExpiresAt; exp != nil && (expiry == nil || exp.Before(*expiry)) {
			e := *exp
			expiry = &e
		}
	}
	if !total.IsPositive() {
		return Result{}, domain.InvariantViolationError{Entity: domain.EntityConsumable, Reason: "composite total volume must be positive"}
	}
	if expiry == nil {
		fallback := now.AddDate(0, 0, cfg.shelfLifeDays)
		expiry = &fallback
	}

	compositeID := tx.NewID()
	result := Result{Consumed: make([]ledger.Outcome, 0, len(parts))}
	components := make([]domain.Component, 0, len(parts))
	for _, p := range parts {
		outcome, err := ledger.Consume(tx, p.source.ID, p.volume, domain.MovementCompose, compositeID)
		if err != nil {
			return Result{}, fmt.Errorf("consume source %s: %w", p.source.ID, err)
		}
		result.Consumed = append(result.Consumed, outcome)
		components = append(components, domain.Component{
			SourceID:       p.source.ID,
			SourceName:     p.source.Name,
			SourceLot:      p.source.LotNumber,
			VolumeConsumed: p.volume,
		})
	}

	category := req.Category
	if category == "" {
		category = domain.CategoryOther
	}
	item, err := tx.CreateConsumable(domain.ConsumableItem{
		Base:              domain.Base{ID: compositeID},
		Name:              req.Name,
		LotNumber:         LotCode(now),
		Category:          category,
		TotalVolume:       total,
		RemainingVolume:   total,
		Unit:              parts[0].source.Unit,
		ExpiresAt:         expiry,
		LowStockThreshold: req.LowStockThreshold,
		Sterile:           req.Sterile,
		SterilityMethod:   req.SterilityMethod,
		Status:            domain.ConsumableApproved,
		Components:        components,
	})
	if err != nil {
		return Result{}, err
	}
	result.Item = item
	return result, nil
}

func resolve(tx domain.TransactionView, req Request, now time.Time) ([]resolved, error) {
	invalid := func(id, reason string) error {
		return domain.InvariantViolationError{Entity: domain.EntityConsumable, ID: id, Reason: reason}
	}
	if len(req.Components) == 0 {
		return nil, invalid("", "composite requires at least one component")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("", "composite name is required")
	}

	parts := make([]resolved, 0, len(req.Components))
	for _, c := range req.Components {
		if c.VolumeUsed.IsNegative() {
			return nil, invalid(c.SourceID, "volume used must not be negative")
		}
		source, ok := tx.FindConsumable(c.SourceID)
		if !ok {
			return nil, domain.InvalidReferenceError{Entity: domain.EntityConsumable, ID: c.SourceID}
		}
		switch {
		case source.Status != domain.ConsumableApproved:
			return nil, invalid(source.ID, fmt.Sprintf("source is %s, not approved", source.Status))
		case source.ExpiresAt != nil && !source.ExpiresAt.After(now):
			return nil, invalid(source.ID, "source has expired")
		case !source.RemainingVolume.IsPositive():
			return nil, invalid(source.ID, "source has no remaining volume")
		case len(parts) > 0 && source.Unit != parts[0].source.Unit:
			return nil, invalid(source.ID, fmt.Sprintf("unit %q differs from %q", source.Unit, parts[0].source.Unit))
		}
		parts = append(parts, resolved{source: source, volume: c.VolumeUsed})
	}
	return parts, nil
}
