package core

import "benchcore/pkg/domain"

// Operation names as reported to audit, metrics and tracing.
const (
	OpCreateConsumable   = "create_consumable"
	OpApproveConsumable  = "approve_consumable"
	OpDisposeConsumable  = "dispose_consumable"
	OpConsumeStock       = "consume_stock"
	OpComposeMedia       = "compose_media"
	OpCreateEquipment    = "create_equipment"
	OpSetEquipmentStatus = "set_equipment_status"
	OpCompleteValidation = "complete_validation"
	OpCreateDonor        = "create_donor"
	OpCreateCulture      = "create_culture"
	OpSetCultureStatus   = "set_culture_status"
	OpCreateStorageUnit  = "create_storage_unit"
	OpSetStorageStatus   = "set_storage_status"
	OpCreateMasterBank   = "create_master_bank"
	OpSetMasterStatus    = "set_master_bank_status"
	OpCreateRelease      = "create_release"
	OpConfirmRelease     = "confirm_release"
	OpCancelRelease      = "cancel_release"
	OpCreateTask         = "create_task"
	OpStartTask          = "start_task"
	OpCompleteTask       = "complete_task"
	OpCancelTask         = "cancel_task"
	OpEvaluateTasks      = "evaluate_tasks"
	OpSweep              = "sweep"
	OpRestore            = "restore_snapshot"
)

type operationMeta struct {
	entity  EntityType
	action  Action
	mutates bool
}

var operations = map[string]operationMeta{
	OpCreateConsumable:   {domain.EntityConsumable, ActionCreate, true},
	OpApproveConsumable:  {domain.EntityConsumable, ActionUpdate, true},
	OpDisposeConsumable:  {domain.EntityConsumable, ActionUpdate, true},
	OpConsumeStock:       {domain.EntityConsumable, ActionUpdate, true},
	OpComposeMedia:       {domain.EntityConsumable, ActionCreate, true},
	OpCreateEquipment:    {domain.EntityEquipment, ActionCreate, true},
	OpSetEquipmentStatus: {domain.EntityEquipment, ActionUpdate, true},
	OpCompleteValidation: {domain.EntityEquipment, ActionUpdate, true},
	OpCreateDonor:        {domain.EntityDonor, ActionCreate, true},
	OpCreateCulture:      {domain.EntityCulture, ActionCreate, true},
	OpSetCultureStatus:   {domain.EntityCulture, ActionUpdate, true},
	OpCreateStorageUnit:  {domain.EntityStorageUnit, ActionCreate, true},
	OpSetStorageStatus:   {domain.EntityStorageUnit, ActionUpdate, true},
	OpCreateMasterBank:   {domain.EntityMasterBank, ActionCreate, true},
	OpSetMasterStatus:    {domain.EntityMasterBank, ActionUpdate, true},
	OpCreateRelease:      {domain.EntityRelease, ActionCreate, true},
	OpConfirmRelease:     {domain.EntityRelease, ActionUpdate, true},
	OpCancelRelease:      {domain.EntityRelease, ActionUpdate, true},
	OpCreateTask:         {domain.EntityTask, ActionCreate, true},
	OpStartTask:          {domain.EntityTask, ActionUpdate, true},
	OpCompleteTask:       {domain.EntityTask, ActionUpdate, true},
	OpCancelTask:         {domain.EntityTask, ActionUpdate, true},
	OpEvaluateTasks:      {domain.EntityTask, ActionCreate, true},
	OpSweep:              {domain.EntityTask, ActionUpdate, true},
	OpRestore:            {"", ActionUpdate, true},
}
