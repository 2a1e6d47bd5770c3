// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by benchcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityConsumable identifies a media or reagent record.
	EntityConsumable EntityType = "consumable"
	// EntityEquipment identifies an equipment record.
	EntityEquipment EntityType = "equipment"
	// EntityDonor identifies a donor record.
	EntityDonor EntityType = "donor"
	// EntityCulture identifies a culture holding.
	EntityCulture EntityType = "culture"
	// EntityStorageUnit identifies a storage unit holding.
	EntityStorageUnit EntityType = "storage_unit"
	// EntityMasterBank identifies a master bank holding.
	EntityMasterBank EntityType = "master_bank"
	// EntityRelease identifies a release record.
	EntityRelease EntityType = "release"
	// EntityTask identifies a maintenance task record.
	EntityTask EntityType = "maintenance_task"
	// EntityStockMovement identifies an append-only stock ledger line.
	EntityStockMovement EntityType = "stock_movement"
)

// ConsumableCategory classifies media and reagents.
type ConsumableCategory string

// Canonical consumable categories.
const (
	CategoryBase     ConsumableCategory = "base"
	CategoryAdditive ConsumableCategory = "additive"
	CategoryEnzyme   ConsumableCategory = "enzyme"
	CategoryOther    ConsumableCategory = "other"
)

// ConsumableStatus enumerates media/reagent lifecycle states.
type ConsumableStatus string

// Canonical consumable statuses. Manual items start in quarantine, composites
// start approved.
const (
	ConsumableQuarantine ConsumableStatus = "quarantine"
	ConsumableApproved   ConsumableStatus = "approved"
	ConsumableExhausted  ConsumableStatus = "exhausted"
	ConsumableDisposed   ConsumableStatus = "disposed"
)

// EquipmentStatus enumerates equipment service states.
type EquipmentStatus string

// Canonical equipment statuses; decommissioned is terminal.
const (
	EquipmentActive         EquipmentStatus = "active"
	EquipmentMaintenance    EquipmentStatus = "maintenance"
	EquipmentRepair         EquipmentStatus = "repair"
	EquipmentDecommissioned EquipmentStatus = "decommissioned"
)

// CultureStatus enumerates culture lifecycle states.
type CultureStatus string

// Canonical culture statuses.
const (
	CultureInWork   CultureStatus = "in_work"
	CultureFrozen   CultureStatus = "frozen"
	CultureReleased CultureStatus = "released"
	CultureDisposed CultureStatus = "disposed"
)

// StorageStatus enumerates storage unit lifecycle states.
type StorageStatus string

// Canonical storage unit statuses.
const (
	StorageStored             StorageStatus = "stored"
	StoragePartiallyRetrieved StorageStatus = "partially_retrieved"
	StorageReleased           StorageStatus = "released"
	StorageDisposed           StorageStatus = "disposed"
)

// MasterBankStatus enumerates master bank lifecycle states.
type MasterBankStatus string

// Canonical master bank statuses.
const (
	MasterBankStored        MasterBankStatus = "stored"
	MasterBankPartiallyUsed MasterBankStatus = "partially_used"
	MasterBankUsed          MasterBankStatus = "used"
	MasterBankDisposed      MasterBankStatus = "disposed"
)

// ReleaseSource identifies the holding type a release draws from.
type ReleaseSource string

// Supported release sources.
const (
	SourceCulture    ReleaseSource = "culture"
	SourceStorage    ReleaseSource = "storage"
	SourceMasterBank ReleaseSource = "master_bank"
)

// ReleaseStatus enumerates release workflow states.
type ReleaseStatus string

// Canonical release statuses; confirmed and cancelled are terminal.
const (
	ReleasePending   ReleaseStatus = "pending"
	ReleaseConfirmed ReleaseStatus = "confirmed"
	ReleaseCancelled ReleaseStatus = "cancelled"
)

// TaskStatus enumerates maintenance task states.
type TaskStatus string

// Canonical task statuses.
const (
	TaskNew        TaskStatus = "new"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOverdue    TaskStatus = "overdue"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskPriority ranks maintenance tasks.
type TaskPriority string

// Canonical task priorities.
const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// ConditionKind names the condition a generated task tracks. Manual tasks
// carry ConditionNone.
type ConditionKind string

// Conditions surfaced by the task generator.
const (
	ConditionNone          ConditionKind = ""
	ConditionLowStock      ConditionKind = "low_stock"
	ConditionExpiring      ConditionKind = "expiring"
	ConditionValidationDue ConditionKind = "validation_due"
)

// MovementReason records why stock left a consumable.
type MovementReason string

// Stock movement reasons.
const (
	MovementConsume MovementReason = "consume"
	MovementCompose MovementReason = "compose"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Component records one source consumed into a composite item.
type Component struct {
	SourceID       string          `json:"source_id"`
	SourceName     string          `json:"source_name"`
	SourceLot      string          `json:"source_lot"`
	VolumeConsumed decimal.Decimal `json:"volume_consumed"`
}

// ConsumableItem models a medium or reagent bottle tracked by volume.
type ConsumableItem struct {
	Base
	Name              string             `json:"name"`
	LotNumber         string             `json:"lot_number"`
	Category          ConsumableCategory `json:"category"`
	Manufacturer      string             `json:"manufacturer,omitempty"`
	TotalVolume       decimal.Decimal    `json:"total_volume"`
	RemainingVolume   decimal.Decimal    `json:"remaining_volume"`
	Unit              string             `json:"unit"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty"`
	LowStockThreshold *decimal.Decimal   `json:"low_stock_threshold,omitempty"`
	Sterile           bool               `json:"sterile"`
	SterilityMethod   string             `json:"sterility_method,omitempty"`
	Status            ConsumableStatus   `json:"status"`
	Components        []Component        `json:"components,omitempty"`
}

// IsComposite reports whether the item was mixed from other consumables.
func (c ConsumableItem) IsComposite() bool { return len(c.Components) > 0 }

// ParameterRange bounds a critical operating parameter.
type ParameterRange struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// Contains reports whether value lies within the configured bounds.
func (r ParameterRange) Contains(value float64) bool {
	if r.Min != nil && value < *r.Min {
		return false
	}
	if r.Max != nil && value > *r.Max {
		return false
	}
	return true
}

// Inverted reports whether both bounds are set and min exceeds max.
func (r ParameterRange) Inverted() bool {
	return r.Min != nil && r.Max != nil && *r.Min > *r.Max
}

// CriticalParameters captures the operating envelope of a piece of equipment.
type CriticalParameters struct {
	Temperature       *ParameterRange `json:"temperature,omitempty"`
	CO2               *ParameterRange `json:"co2,omitempty"`
	Humidity          *ParameterRange `json:"humidity,omitempty"`
	RPM               *ParameterRange `json:"rpm,omitempty"`
	Pressure          *ParameterRange `json:"pressure,omitempty"`
	Airflow           *ParameterRange `json:"airflow,omitempty"`
	SterilizationTemp *ParameterRange `json:"sterilization_temp,omitempty"`
	SterilizationTime *int            `json:"sterilization_time_minutes,omitempty"`
	Magnification     *float64        `json:"magnification,omitempty"`
	NitrogenLevel     *float64        `json:"nitrogen_level,omitempty"`
}

// Ranges returns the named ranges that are set.
func (p CriticalParameters) Ranges() map[string]ParameterRange {
	out := make(map[string]ParameterRange)
	add := func(name string, r *ParameterRange) {
		if r != nil {
			out[name] = *r
		}
	}
	add("temperature", p.Temperature)
	add("co2", p.CO2)
	add("humidity", p.Humidity)
	add("rpm", p.RPM)
	add("pressure", p.Pressure)
	add("airflow", p.Airflow)
	add("sterilization_temp", p.SterilizationTemp)
	return out
}

// Equipment represents an instrument that requires periodic validation.
type Equipment struct {
	Base
	Name                 string             `json:"name"`
	Type                 string             `json:"type"`
	SerialNumber         string             `json:"serial_number,omitempty"`
	Location             string             `json:"location,omitempty"`
	Parameters           CriticalParameters `json:"parameters"`
	ValidationPeriodDays int                `json:"validation_period_days"`
	LastValidationDate   *time.Time         `json:"last_validation_date,omitempty"`
	NextValidationDate   *time.Time         `json:"next_validation_date,omitempty"`
	Status               EquipmentStatus    `json:"status"`
}

// Donor is the origin of cell material held in cultures, storage and banks.
type Donor struct {
	Base
	Code    string `json:"code"`
	Origin  string `json:"origin,omitempty"`
	Consent bool   `json:"consent"`
	Notes   string `json:"notes,omitempty"`
}

// Holding carries the attributes shared by every physical holding.
type Holding struct {
	DonorID   string `json:"donor_id"`
	CellType  string `json:"cell_type"`
	TubeCount int    `json:"tube_count"`
}

// Culture is a cell population in active work or frozen.
type Culture struct {
	Base
	Holding
	Passage int           `json:"passage"`
	Status  CultureStatus `json:"status"`
}

// StorageUnit is a set of cryopreserved tubes in a storage location.
type StorageUnit struct {
	Base
	Holding
	Location string        `json:"location"`
	Status   StorageStatus `json:"status"`
}

// MasterBank is a curated reserve of cryopreserved tubes.
type MasterBank struct {
	Base
	Holding
	SourceCultureID *string          `json:"source_culture_id,omitempty"`
	Status          MasterBankStatus `json:"status"`
}

// Recipient identifies who receives released material.
type Recipient struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Contact      string `json:"contact,omitempty"`
}

// Release moves holding material to an external recipient.
type Release struct {
	Base
	SourceType      ReleaseSource `json:"source_type"`
	SourceID        string        `json:"source_id"`
	Recipient       Recipient     `json:"recipient"`
	ApplicationType string        `json:"application_type"`
	TubeCount       int           `json:"tube_count"`
	Status          ReleaseStatus `json:"status"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
}

// MaintenanceTask is a follow-up action tied to an entity condition.
type MaintenanceTask struct {
	Base
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Priority        TaskPriority  `json:"priority"`
	Status          TaskStatus    `json:"status"`
	DueDate         time.Time     `json:"due_date"`
	RelatedEntity   EntityType    `json:"related_entity"`
	RelatedEntityID string        `json:"related_entity_id"`
	Condition       ConditionKind `json:"condition,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Open reports whether the task still occupies its (entity, condition) slot.
// Only completion releases the slot.
func (t MaintenanceTask) Open() bool { return t.Status != TaskCompleted }

// StockMovement is an append-only line recorded for each consumption.
type StockMovement struct {
	Base
	ItemID     string          `json:"item_id"`
	Requested  decimal.Decimal `json:"requested"`
	Applied    decimal.Decimal `json:"applied"`
	Reason     MovementReason  `json:"reason"`
	Reference  string          `json:"reference,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   ChangePayload
	After    ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
