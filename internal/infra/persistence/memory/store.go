// Package memory provides the in-memory transactional entity store. It is the
// single logical owner of every collection; durable backends embed it and
// persist its committed snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"benchcore/pkg/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Compile-time contract assertion ensuring Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// ConsumableItem aliases domain.ConsumableItem.
	ConsumableItem = domain.ConsumableItem
	// Equipment aliases domain.Equipment.
	Equipment = domain.Equipment
	// Donor aliases domain.Donor.
	Donor = domain.Donor
	// Culture aliases domain.Culture.
	Culture = domain.Culture
	// StorageUnit aliases domain.StorageUnit.
	StorageUnit = domain.StorageUnit
	// MasterBank aliases domain.MasterBank.
	MasterBank = domain.MasterBank
	// Release aliases domain.Release.
	Release = domain.Release
	// MaintenanceTask aliases domain.MaintenanceTask.
	MaintenanceTask = domain.MaintenanceTask
	// StockMovement aliases domain.StockMovement.
	StockMovement = domain.StockMovement
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	consumables map[string]ConsumableItem
	equipment   map[string]Equipment
	donors      map[string]Donor
	cultures    map[string]Culture
	storage     map[string]StorageUnit
	banks       map[string]MasterBank
	releases    map[string]Release
	tasks       map[string]MaintenanceTask
	movements   []StockMovement
}

// Snapshot captures a point-in-time clone of the store state. It is the
// contract with the persistence collaborators.
type Snapshot struct {
	Consumables  map[string]ConsumableItem  `json:"consumables"`
	Equipment    map[string]Equipment       `json:"equipment"`
	Donors       map[string]Donor           `json:"donors"`
	Cultures     map[string]Culture         `json:"cultures"`
	StorageUnits map[string]StorageUnit     `json:"storage_units"`
	MasterBanks  map[string]MasterBank      `json:"master_banks"`
	Releases     map[string]Release         `json:"releases"`
	Tasks        map[string]MaintenanceTask `json:"tasks"`
	Movements    []StockMovement            `json:"movements"`
}

func newMemoryState() memoryState {
	return memoryState{
		consumables: make(map[string]ConsumableItem),
		equipment:   make(map[string]Equipment),
		donors:      make(map[string]Donor),
		cultures:    make(map[string]Culture),
		storage:     make(map[string]StorageUnit),
		banks:       make(map[string]MasterBank),
		releases:    make(map[string]Release),
		tasks:       make(map[string]MaintenanceTask),
	}
}

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func identity[T any](v T) T { return v }

func (s memoryState) clone() memoryState {
	return memoryState{
		consumables: cloneMap(s.consumables, cloneConsumable),
		equipment:   cloneMap(s.equipment, cloneEquipment),
		donors:      cloneMap(s.donors, identity[Donor]),
		cultures:    cloneMap(s.cultures, identity[Culture]),
		storage:     cloneMap(s.storage, identity[StorageUnit]),
		banks:       cloneMap(s.banks, cloneMasterBank),
		releases:    cloneMap(s.releases, cloneRelease),
		tasks:       cloneMap(s.tasks, cloneTask),
		movements:   append([]StockMovement(nil), s.movements...),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Consumables:  cloned.consumables,
		Equipment:    cloned.equipment,
		Donors:       cloned.donors,
		Cultures:     cloned.cultures,
		StorageUnits: cloned.storage,
		MasterBanks:  cloned.banks,
		Releases:     cloned.releases,
		Tasks:        cloned.tasks,
		Movements:    cloned.movements,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		consumables: s.Consumables,
		equipment:   s.Equipment,
		donors:      s.Donors,
		cultures:    s.Cultures,
		storage:     s.StorageUnits,
		banks:       s.MasterBanks,
		releases:    s.Releases,
		tasks:       s.Tasks,
		movements:   s.Movements,
	}
	// nil maps from partial snapshots are normalised by clone via cloneMap.
	return state.clone()
}

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneConsumable(c ConsumableItem) ConsumableItem {
	cp := c
	cp.ExpiresAt = timePtr(c.ExpiresAt)
	if c.LowStockThreshold != nil {
		th := *c.LowStockThreshold
		cp.LowStockThreshold = &th
	}
	if len(c.Components) != 0 {
		cp.Components = append([]domain.Component(nil), c.Components...)
	}
	return cp
}

func cloneRange(r *domain.ParameterRange) *domain.ParameterRange {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Min != nil {
		v := *r.Min
		cp.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		cp.Max = &v
	}
	return &cp
}

func cloneEquipment(e Equipment) Equipment {
	cp := e
	cp.LastValidationDate = timePtr(e.LastValidationDate)
	cp.NextValidationDate = timePtr(e.NextValidationDate)
	p := e.Parameters
	cp.Parameters = domain.CriticalParameters{
		Temperature:       cloneRange(p.Temperature),
		CO2:               cloneRange(p.CO2),
		Humidity:          cloneRange(p.Humidity),
		RPM:               cloneRange(p.RPM),
		Pressure:          cloneRange(p.Pressure),
		Airflow:           cloneRange(p.Airflow),
		SterilizationTemp: cloneRange(p.SterilizationTemp),
	}
	if p.SterilizationTime != nil {
		v := *p.SterilizationTime
		cp.Parameters.SterilizationTime = &v
	}
	if p.Magnification != nil {
		v := *p.Magnification
		cp.Parameters.Magnification = &v
	}
	if p.NitrogenLevel != nil {
		v := *p.NitrogenLevel
		cp.Parameters.NitrogenLevel = &v
	}
	return cp
}

func cloneMasterBank(b MasterBank) MasterBank {
	cp := b
	if b.SourceCultureID != nil {
		id := *b.SourceCultureID
		cp.SourceCultureID = &id
	}
	return cp
}

func cloneRelease(r Release) Release {
	cp := r
	cp.ConfirmedAt = timePtr(r.ConfirmedAt)
	cp.CancelledAt = timePtr(r.CancelledAt)
	return cp
}

func cloneTask(t MaintenanceTask) MaintenanceTask {
	cp := t
	cp.CompletedAt = timePtr(t.CompletedAt)
	return cp
}

func mustPayload[T any](value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		panic(fmt.Errorf("memory store encode change payload: %w", err))
	}
	return payload
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the time provider used for transaction timestamps.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	transactionView
	store   *Store
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](in map[string]T, clone func(T) T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byBase(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ListConsumables returns all consumables ordered by creation.
func (v transactionView) ListConsumables() []ConsumableItem {
	return sortedValues(v.state.consumables, cloneConsumable, func(a, b ConsumableItem) bool { return byBase(a.Base, b.Base) })
}

// FindConsumable retrieves a consumable by ID.
func (v transactionView) FindConsumable(id string) (ConsumableItem, bool) {
	c, ok := v.state.consumables[id]
	if !ok {
		return ConsumableItem{}, false
	}
	return cloneConsumable(c), true
}

// ListEquipment returns all equipment ordered by creation.
func (v transactionView) ListEquipment() []Equipment {
	return sortedValues(v.state.equipment, cloneEquipment, func(a, b Equipment) bool { return byBase(a.Base, b.Base) })
}

// FindEquipment retrieves equipment by ID.
func (v transactionView) FindEquipment(id string) (Equipment, bool) {
	e, ok := v.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(e), true
}

// ListDonors returns all donors.
func (v transactionView) ListDonors() []Donor {
	return sortedValues(v.state.donors, identity[Donor], func(a, b Donor) bool { return byBase(a.Base, b.Base) })
}

// FindDonor retrieves a donor by ID.
func (v transactionView) FindDonor(id string) (Donor, bool) {
	d, ok := v.state.donors[id]
	return d, ok
}

// ListCultures returns all cultures.
func (v transactionView) ListCultures() []Culture {
	return sortedValues(v.state.cultures, identity[Culture], func(a, b Culture) bool { return byBase(a.Base, b.Base) })
}

// FindCulture retrieves a culture by ID.
func (v transactionView) FindCulture(id string) (Culture, bool) {
	c, ok := v.state.cultures[id]
	return c, ok
}

// ListStorageUnits returns all storage units.
func (v transactionView) ListStorageUnits() []StorageUnit {
	return sortedValues(v.state.storage, identity[StorageUnit], func(a, b StorageUnit) bool { return byBase(a.Base, b.Base) })
}

// FindStorageUnit retrieves a storage unit by ID.
func (v transactionView) FindStorageUnit(id string) (StorageUnit, bool) {
	u, ok := v.state.storage[id]
	return u, ok
}

// ListMasterBanks returns all master banks.
func (v transactionView) ListMasterBanks() []MasterBank {
	return sortedValues(v.state.banks, cloneMasterBank, func(a, b MasterBank) bool { return byBase(a.Base, b.Base) })
}

// FindMasterBank retrieves a master bank by ID.
func (v transactionView) FindMasterBank(id string) (MasterBank, bool) {
	b, ok := v.state.banks[id]
	if !ok {
		return MasterBank{}, false
	}
	return cloneMasterBank(b), true
}

// ListReleases returns all releases.
func (v transactionView) ListReleases() []Release {
	return sortedValues(v.state.releases, cloneRelease, func(a, b Release) bool { return byBase(a.Base, b.Base) })
}

// FindRelease retrieves a release by ID.
func (v transactionView) FindRelease(id string) (Release, bool) {
	r, ok := v.state.releases[id]
	if !ok {
		return Release{}, false
	}
	return cloneRelease(r), true
}

// ListTasks returns all maintenance tasks ordered by due date.
func (v transactionView) ListTasks() []MaintenanceTask {
	return sortedValues(v.state.tasks, cloneTask, func(a, b MaintenanceTask) bool {
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
}

// FindTask retrieves a maintenance task by ID.
func (v transactionView) FindTask(id string) (MaintenanceTask, bool) {
	t, ok := v.state.tasks[id]
	if !ok {
		return MaintenanceTask{}, false
	}
	return cloneTask(t), true
}

// FindOpenTask returns the non-completed task for the (entity, condition) pair.
func (v transactionView) FindOpenTask(entityID string, condition domain.ConditionKind) (MaintenanceTask, bool) {
	if condition == domain.ConditionNone {
		return MaintenanceTask{}, false
	}
	for _, t := range v.state.tasks {
		if t.RelatedEntityID == entityID && t.Condition == condition && t.Open() {
			return cloneTask(t), true
		}
	}
	return MaintenanceTask{}, false
}

// ListStockMovements returns the movements recorded for an item, oldest first.
// An empty itemID returns every movement.
func (v transactionView) ListStockMovements(itemID string) []StockMovement {
	var out []StockMovement
	for _, m := range v.state.movements {
		if itemID == "" || m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no blocking
// rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &transaction{
		transactionView: transactionView{state: &state},
		store:           s,
		now:             s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.Snapshot(), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, id string, before, after domain.ChangePayload) {
	tx.changes = append(tx.changes, Change{Entity: entity, Action: action, EntityID: id, Before: before, After: after})
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return tx.transactionView
}

// Now returns the timestamp fixed at transaction start.
func (tx *transaction) Now() time.Time { return tx.now }

// NewID returns a fresh entity identifier.
func (tx *transaction) NewID() string { return uuid.NewString() }

func (tx *transaction) stamp(b *domain.Base) {
	if b.ID == "" {
		b.ID = tx.NewID()
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
}

// CreateConsumable stores a new consumable.
func (tx *transaction) CreateConsumable(c ConsumableItem) (ConsumableItem, error) {
	tx.stamp(&c.Base)
	if _, exists := tx.state.consumables[c.ID]; exists {
		return ConsumableItem{}, fmt.Errorf("consumable %q already exists", c.ID)
	}
	if c.Name == "" {
		return ConsumableItem{}, domain.InvariantViolationError{Entity: domain.EntityConsumable, ID: c.ID, Reason: "name is required"}
	}
	tx.state.consumables[c.ID] = cloneConsumable(c)
	tx.recordChange(domain.EntityConsumable, domain.ActionCreate, c.ID, domain.ChangePayload{}, mustPayload(c))
	return cloneConsumable(c), nil
}

// UpdateConsumable mutates an existing consumable.
func (tx *transaction) UpdateConsumable(id string, mutator func(*ConsumableItem) error) (ConsumableItem, error) {
	current, ok := tx.state.consumables[id]
	if !ok {
		return ConsumableItem{}, domain.InvalidReferenceError{Entity: domain.EntityConsumable, ID: id}
	}
	before := cloneConsumable(current)
	if err := mutator(&current); err != nil {
		return ConsumableItem{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.consumables[id] = cloneConsumable(current)
	tx.recordChange(domain.EntityConsumable, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return cloneConsumable(current), nil
}

// CreateEquipment stores a new equipment record.
func (tx *transaction) CreateEquipment(e Equipment) (Equipment, error) {
	tx.stamp(&e.Base)
	if _, exists := tx.state.equipment[e.ID]; exists {
		return Equipment{}, fmt.Errorf("equipment %q already exists", e.ID)
	}
	tx.state.equipment[e.ID] = cloneEquipment(e)
	tx.recordChange(domain.EntityEquipment, domain.ActionCreate, e.ID, domain.ChangePayload{}, mustPayload(e))
	return cloneEquipment(e), nil
}

// UpdateEquipment mutates an existing equipment record.
func (tx *transaction) UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error) {
	current, ok := tx.state.equipment[id]
	if !ok {
		return Equipment{}, domain.InvalidReferenceError{Entity: domain.EntityEquipment, ID: id}
	}
	before := cloneEquipment(current)
	if err := mutator(&current); err != nil {
		return Equipment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.equipment[id] = cloneEquipment(current)
	tx.recordChange(domain.EntityEquipment, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return cloneEquipment(current), nil
}

// CreateDonor stores a new donor.
func (tx *transaction) CreateDonor(d Donor) (Donor, error) {
	tx.stamp(&d.Base)
	if _, exists := tx.state.donors[d.ID]; exists {
		return Donor{}, fmt.Errorf("donor %q already exists", d.ID)
	}
	tx.state.donors[d.ID] = d
	tx.recordChange(domain.EntityDonor, domain.ActionCreate, d.ID, domain.ChangePayload{}, mustPayload(d))
	return d, nil
}

// UpdateDonor mutates an existing donor.
func (tx *transaction) UpdateDonor(id string, mutator func(*Donor) error) (Donor, error) {
	current, ok := tx.state.donors[id]
	if !ok {
		return Donor{}, domain.InvalidReferenceError{Entity: domain.EntityDonor, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Donor{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.donors[id] = current
	tx.recordChange(domain.EntityDonor, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return current, nil
}

func (tx *transaction) requireDonor(entity domain.EntityType, id string, h domain.Holding) error {
	if h.DonorID == "" {
		return domain.InvariantViolationError{Entity: entity, ID: id, Reason: "donor reference is required"}
	}
	if _, ok := tx.state.donors[h.DonorID]; !ok {
		return domain.InvalidReferenceError{Entity: domain.EntityDonor, ID: h.DonorID}
	}
	if h.TubeCount < 0 {
		return domain.InvariantViolationError{Entity: entity, ID: id, Reason: "tube count cannot be negative"}
	}
	return nil
}

// CreateCulture stores a new culture.
func (tx *transaction) CreateCulture(c Culture) (Culture, error) {
	tx.stamp(&c.Base)
	if _, exists := tx.state.cultures[c.ID]; exists {
		return Culture{}, fmt.Errorf("culture %q already exists", c.ID)
	}
	if err := tx.requireDonor(domain.EntityCulture, c.ID, c.Holding); err != nil {
		return Culture{}, err
	}
	tx.state.cultures[c.ID] = c
	tx.recordChange(domain.EntityCulture, domain.ActionCreate, c.ID, domain.ChangePayload{}, mustPayload(c))
	return c, nil
}

// UpdateCulture mutates an existing culture.
func (tx *transaction) UpdateCulture(id string, mutator func(*Culture) error) (Culture, error) {
	current, ok := tx.state.cultures[id]
	if !ok {
		return Culture{}, domain.InvalidReferenceError{Entity: domain.EntityCulture, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Culture{}, err
	}
	if err := tx.requireDonor(domain.EntityCulture, id, current.Holding); err != nil {
		return Culture{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.cultures[id] = current
	tx.recordChange(domain.EntityCulture, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return current, nil
}

// CreateStorageUnit stores a new storage unit.
func (tx *transaction) CreateStorageUnit(u StorageUnit) (StorageUnit, error) {
	tx.stamp(&u.Base)
	if _, exists := tx.state.storage[u.ID]; exists {
		return StorageUnit{}, fmt.Errorf("storage unit %q already exists", u.ID)
	}
	if err := tx.requireDonor(domain.EntityStorageUnit, u.ID, u.Holding); err != nil {
		return StorageUnit{}, err
	}
	tx.state.storage[u.ID] = u
	tx.recordChange(domain.EntityStorageUnit, domain.ActionCreate, u.ID, domain.ChangePayload{}, mustPayload(u))
	return u, nil
}

// UpdateStorageUnit mutates an existing storage unit.
func (tx *transaction) UpdateStorageUnit(id string, mutator func(*StorageUnit) error) (StorageUnit, error) {
	current, ok := tx.state.storage[id]
	if !ok {
		return StorageUnit{}, domain.InvalidReferenceError{Entity: domain.EntityStorageUnit, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return StorageUnit{}, err
	}
	if err := tx.requireDonor(domain.EntityStorageUnit, id, current.Holding); err != nil {
		return StorageUnit{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.storage[id] = current
	tx.recordChange(domain.EntityStorageUnit, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return current, nil
}

// CreateMasterBank stores a new master bank.
func (tx *transaction) CreateMasterBank(b MasterBank) (MasterBank, error) {
	tx.stamp(&b.Base)
	if _, exists := tx.state.banks[b.ID]; exists {
		return MasterBank{}, fmt.Errorf("master bank %q already exists", b.ID)
	}
	if err := tx.requireDonor(domain.EntityMasterBank, b.ID, b.Holding); err != nil {
		return MasterBank{}, err
	}
	if b.SourceCultureID != nil {
		if _, ok := tx.state.cultures[*b.SourceCultureID]; !ok {
			return MasterBank{}, domain.InvalidReferenceError{Entity: domain.EntityCulture, ID: *b.SourceCultureID}
		}
	}
	tx.state.banks[b.ID] = cloneMasterBank(b)
	tx.recordChange(domain.EntityMasterBank, domain.ActionCreate, b.ID, domain.ChangePayload{}, mustPayload(b))
	return cloneMasterBank(b), nil
}

// UpdateMasterBank mutates an existing master bank.
func (tx *transaction) UpdateMasterBank(id string, mutator func(*MasterBank) error) (MasterBank, error) {
	current, ok := tx.state.banks[id]
	if !ok {
		return MasterBank{}, domain.InvalidReferenceError{Entity: domain.EntityMasterBank, ID: id}
	}
	before := cloneMasterBank(current)
	if err := mutator(&current); err != nil {
		return MasterBank{}, err
	}
	if err := tx.requireDonor(domain.EntityMasterBank, id, current.Holding); err != nil {
		return MasterBank{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.banks[id] = cloneMasterBank(current)
	tx.recordChange(domain.EntityMasterBank, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return cloneMasterBank(current), nil
}

// CreateRelease stores a new release.
func (tx *transaction) CreateRelease(r Release) (Release, error) {
	tx.stamp(&r.Base)
	if _, exists := tx.state.releases[r.ID]; exists {
		return Release{}, fmt.Errorf("release %q already exists", r.ID)
	}
	tx.state.releases[r.ID] = cloneRelease(r)
	tx.recordChange(domain.EntityRelease, domain.ActionCreate, r.ID, domain.ChangePayload{}, mustPayload(r))
	return cloneRelease(r), nil
}

// UpdateRelease mutates an existing release.
func (tx *transaction) UpdateRelease(id string, mutator func(*Release) error) (Release, error) {
	current, ok := tx.state.releases[id]
	if !ok {
		return Release{}, domain.InvalidReferenceError{Entity: domain.EntityRelease, ID: id}
	}
	before := cloneRelease(current)
	if err := mutator(&current); err != nil {
		return Release{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.releases[id] = cloneRelease(current)
	tx.recordChange(domain.EntityRelease, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return cloneRelease(current), nil
}

// CreateTask stores a new maintenance task.
func (tx *transaction) CreateTask(t MaintenanceTask) (MaintenanceTask, error) {
	tx.stamp(&t.Base)
	if _, exists := tx.state.tasks[t.ID]; exists {
		return MaintenanceTask{}, fmt.Errorf("task %q already exists", t.ID)
	}
	tx.state.tasks[t.ID] = cloneTask(t)
	tx.recordChange(domain.EntityTask, domain.ActionCreate, t.ID, domain.ChangePayload{}, mustPayload(t))
	return cloneTask(t), nil
}

// UpdateTask mutates an existing maintenance task.
func (tx *transaction) UpdateTask(id string, mutator func(*MaintenanceTask) error) (MaintenanceTask, error) {
	current, ok := tx.state.tasks[id]
	if !ok {
		return MaintenanceTask{}, domain.InvalidReferenceError{Entity: domain.EntityTask, ID: id}
	}
	before := cloneTask(current)
	if err := mutator(&current); err != nil {
		return MaintenanceTask{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tasks[id] = cloneTask(current)
	tx.recordChange(domain.EntityTask, domain.ActionUpdate, id, mustPayload(before), mustPayload(current))
	return cloneTask(current), nil
}

// AppendStockMovement records a ledger line. Movements are never updated.
func (tx *transaction) AppendStockMovement(m StockMovement) (StockMovement, error) {
	tx.stamp(&m.Base)
	if _, ok := tx.state.consumables[m.ItemID]; !ok {
		return StockMovement{}, domain.InvalidReferenceError{Entity: domain.EntityConsumable, ID: m.ItemID}
	}
	if m.Applied.GreaterThan(m.Requested) || m.Applied.LessThan(decimal.Zero) {
		return StockMovement{}, domain.InvariantViolationError{Entity: domain.EntityStockMovement, ID: m.ID, Reason: "applied amount must lie within [0, requested]"}
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = tx.now
	}
	tx.state.movements = append(tx.state.movements, m)
	tx.recordChange(domain.EntityStockMovement, domain.ActionCreate, m.ID, domain.ChangePayload{}, mustPayload(m))
	return m, nil
}

// ReplaceState swaps the transactional state for snapshot. Every imported
// record is recorded as created so commit-time rules check the whole state
// before it can replace the committed one.
func (tx *transaction) ReplaceState(snapshot Snapshot) {
	*tx.state = memoryStateFromSnapshot(snapshot)
	recordImported(tx, domain.EntityConsumable, tx.state.consumables)
	recordImported(tx, domain.EntityEquipment, tx.state.equipment)
	recordImported(tx, domain.EntityDonor, tx.state.donors)
	recordImported(tx, domain.EntityCulture, tx.state.cultures)
	recordImported(tx, domain.EntityStorageUnit, tx.state.storage)
	recordImported(tx, domain.EntityMasterBank, tx.state.banks)
	recordImported(tx, domain.EntityRelease, tx.state.releases)
	recordImported(tx, domain.EntityTask, tx.state.tasks)
	for _, m := range tx.state.movements {
		tx.recordChange(domain.EntityStockMovement, domain.ActionCreate, m.ID, domain.ChangePayload{}, mustPayload(m))
	}
}

func recordImported[T any](tx *transaction, entity domain.EntityType, records map[string]T) {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tx.recordChange(entity, domain.ActionCreate, id, domain.ChangePayload{}, mustPayload(records[id]))
	}
}
