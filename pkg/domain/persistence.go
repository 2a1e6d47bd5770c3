package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to snapshot data for rules and
// for lookups inside a transaction.
type TransactionView interface {
	ListConsumables() []ConsumableItem
	FindConsumable(id string) (ConsumableItem, bool)
	ListEquipment() []Equipment
	FindEquipment(id string) (Equipment, bool)
	ListDonors() []Donor
	FindDonor(id string) (Donor, bool)
	ListCultures() []Culture
	FindCulture(id string) (Culture, bool)
	ListStorageUnits() []StorageUnit
	FindStorageUnit(id string) (StorageUnit, bool)
	ListMasterBanks() []MasterBank
	FindMasterBank(id string) (MasterBank, bool)
	ListReleases() []Release
	FindRelease(id string) (Release, bool)
	ListTasks() []MaintenanceTask
	FindTask(id string) (MaintenanceTask, bool)
	// FindOpenTask looks up the task occupying the (entityID, condition) slot.
	FindOpenTask(entityID string, condition ConditionKind) (MaintenanceTask, bool)
	ListStockMovements(itemID string) []StockMovement
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Every method observes earlier writes of the same
// transaction; nothing is visible to other readers until commit.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	Now() time.Time
	NewID() string

	CreateConsumable(ConsumableItem) (ConsumableItem, error)
	UpdateConsumable(id string, mutator func(*ConsumableItem) error) (ConsumableItem, error)
	CreateEquipment(Equipment) (Equipment, error)
	UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error)
	CreateDonor(Donor) (Donor, error)
	UpdateDonor(id string, mutator func(*Donor) error) (Donor, error)
	CreateCulture(Culture) (Culture, error)
	UpdateCulture(id string, mutator func(*Culture) error) (Culture, error)
	CreateStorageUnit(StorageUnit) (StorageUnit, error)
	UpdateStorageUnit(id string, mutator func(*StorageUnit) error) (StorageUnit, error)
	CreateMasterBank(MasterBank) (MasterBank, error)
	UpdateMasterBank(id string, mutator func(*MasterBank) error) (MasterBank, error)
	CreateRelease(Release) (Release, error)
	UpdateRelease(id string, mutator func(*Release) error) (Release, error)
	CreateTask(MaintenanceTask) (MaintenanceTask, error)
	UpdateTask(id string, mutator func(*MaintenanceTask) error) (MaintenanceTask, error)
	AppendStockMovement(StockMovement) (StockMovement, error)
}

// PersistentStore is the entity store contract used by the service layer.
// Durable backends wrap the in-memory implementation and persist the
// committed state after each successful transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
