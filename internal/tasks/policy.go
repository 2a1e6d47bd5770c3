package tasks

import "github.com/shopspring/decimal"

// Policy holds the thresholds the generator applies.
type Policy struct {
	// LowStockThreshold applies to items without their own threshold.
	LowStockThreshold     decimal.Decimal
	LowStockDueDays       int
	ExpiringWindowDays    int
	ValidationHorizonDays int
}

// Default policy values.
const (
	DefaultLowStockThreshold     = 100
	DefaultLowStockDueDays       = 7
	DefaultExpiringWindowDays    = 14
	DefaultValidationHorizonDays = 30
)

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		LowStockThreshold:     decimal.NewFromInt(DefaultLowStockThreshold),
		LowStockDueDays:       DefaultLowStockDueDays,
		ExpiringWindowDays:    DefaultExpiringWindowDays,
		ValidationHorizonDays: DefaultValidationHorizonDays,
	}
}

// normalized fills unset or invalid fields with defaults.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if !p.LowStockThreshold.IsPositive() {
		p.LowStockThreshold = def.LowStockThreshold
	}
	if p.LowStockDueDays <= 0 {
		p.LowStockDueDays = def.LowStockDueDays
	}
	if p.ExpiringWindowDays <= 0 {
		p.ExpiringWindowDays = def.ExpiringWindowDays
	}
	if p.ValidationHorizonDays <= 0 {
		p.ValidationHorizonDays = def.ValidationHorizonDays
	}
	return p
}
