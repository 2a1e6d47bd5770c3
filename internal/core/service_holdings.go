package core

import (
	"context"
	"fmt"

	"benchcore/pkg/domain"
)

// statusMachine describes which holding statuses exist, which are terminal,
// and which may only be reached through a release confirmation.
type statusMachine[S ~string] struct {
	entity   EntityType
	valid    []S
	terminal []S
	reserved S
}

func contains[S comparable](set []S, v S) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (m statusMachine[S]) check(id string, from, to S) error {
	if !contains(m.valid, to) {
		return domain.InvariantViolationError{Entity: m.entity, ID: id, Reason: fmt.Sprintf("unknown status %q", to)}
	}
	if contains(m.terminal, from) || (m.reserved != "" && to == m.reserved && from != to) {
		return domain.IllegalTransitionError{Entity: m.entity, ID: id, From: string(from), To: string(to)}
	}
	return nil
}

var (
	cultureStatuses = statusMachine[domain.CultureStatus]{
		entity:   domain.EntityCulture,
		valid:    []domain.CultureStatus{domain.CultureInWork, domain.CultureFrozen, domain.CultureReleased, domain.CultureDisposed},
		terminal: []domain.CultureStatus{domain.CultureReleased, domain.CultureDisposed},
		reserved: domain.CultureReleased,
	}
	storageStatuses = statusMachine[domain.StorageStatus]{
		entity:   domain.EntityStorageUnit,
		valid:    []domain.StorageStatus{domain.StorageStored, domain.StoragePartiallyRetrieved, domain.StorageReleased, domain.StorageDisposed},
		terminal: []domain.StorageStatus{domain.StorageReleased, domain.StorageDisposed},
		reserved: domain.StorageReleased,
	}
	masterBankStatuses = statusMachine[domain.MasterBankStatus]{
		entity:   domain.EntityMasterBank,
		valid:    []domain.MasterBankStatus{domain.MasterBankStored, domain.MasterBankPartiallyUsed, domain.MasterBankUsed, domain.MasterBankDisposed},
		terminal: []domain.MasterBankStatus{domain.MasterBankDisposed},
	}
)

// CreateDonor registers the origin of holding material.
func (s *Service) CreateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, Result, error) {
	var created domain.Donor
	res, err := s.run(ctx, OpCreateDonor, func(tx Transaction, fx *effects) error {
		if donor.Code == "" {
			return domain.InvariantViolationError{Entity: domain.EntityDonor, ID: donor.ID, Reason: "code is required"}
		}
		var err error
		created, err = tx.CreateDonor(donor)
		fx.entityID = created.ID
		return err
	})
	return created, res, err
}

// CreateCulture registers a culture; it starts in work unless frozen is given.
func (s *Service) CreateCulture(ctx context.Context, culture domain.Culture) (domain.Culture, Result, error) {
	var created domain.Culture
	res, err := s.run(ctx, OpCreateCulture, func(tx Transaction, fx *effects) error {
		if culture.Status != domain.CultureFrozen {
			culture.Status = domain.CultureInWork
		}
		var err error
		created, err = tx.CreateCulture(culture)
		fx.entityID = created.ID
		return err
	})
	return created, res, err
}

// SetCultureStatus changes a culture status. Released is reachable only by
// confirming a release.
func (s *Service) SetCultureStatus(ctx context.Context, id string, status domain.CultureStatus) (domain.Culture, Result, error) {
	var updated domain.Culture
	res, err := s.run(ctx, OpSetCultureStatus, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		updated, err = tx.UpdateCulture(id, func(c *domain.Culture) error {
			if err := cultureStatuses.check(id, c.Status, status); err != nil {
				return err
			}
			c.Status = status
			return nil
		})
		return err
	})
	return updated, res, err
}

// CreateStorageUnit registers cryopreserved tubes in a location.
func (s *Service) CreateStorageUnit(ctx context.Context, unit domain.StorageUnit) (domain.StorageUnit, Result, error) {
	var created domain.StorageUnit
	res, err := s.run(ctx, OpCreateStorageUnit, func(tx Transaction, fx *effects) error {
		unit.Status = domain.StorageStored
		var err error
		created, err = tx.CreateStorageUnit(unit)
		fx.entityID = created.ID
		return err
	})
	return created, res, err
}

// SetStorageStatus changes a storage unit status. Released is reachable only
// by confirming a release.
func (s *Service) SetStorageStatus(ctx context.Context, id string, status domain.StorageStatus) (domain.StorageUnit, Result, error) {
	var updated domain.StorageUnit
	res, err := s.run(ctx, OpSetStorageStatus, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		updated, err = tx.UpdateStorageUnit(id, func(u *domain.StorageUnit) error {
			if err := storageStatuses.check(id, u.Status, status); err != nil {
				return err
			}
			u.Status = status
			return nil
		})
		return err
	})
	return updated, res, err
}

// CreateMasterBank registers a master bank.
func (s *Service) CreateMasterBank(ctx context.Context, bank domain.MasterBank) (domain.MasterBank, Result, error) {
	var created domain.MasterBank
	res, err := s.run(ctx, OpCreateMasterBank, func(tx Transaction, fx *effects) error {
		bank.Status = domain.MasterBankStored
		var err error
		created, err = tx.CreateMasterBank(bank)
		fx.entityID = created.ID
		return err
	})
	return created, res, err
}

// SetMasterBankStatus changes a master bank status.
func (s *Service) SetMasterBankStatus(ctx context.Context, id string, status domain.MasterBankStatus) (domain.MasterBank, Result, error) {
	var updated domain.MasterBank
	res, err := s.run(ctx, OpSetMasterStatus, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		var err error
		updated, err = tx.UpdateMasterBank(id, func(b *domain.MasterBank) error {
			if err := masterBankStatuses.check(id, b.Status, status); err != nil {
				return err
			}
			b.Status = status
			return nil
		})
		return err
	})
	return updated, res, err
}
